package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/omnirom/omnigerrit/internal/models"
)

// DetailSource fetches the detail of a single change.
type DetailSource interface {
	FetchRevisionDetail(ctx context.Context, changeID, revisionID string) (*models.ChangeDetail, error)
}

// DetailError reports a failed detail lookup. The previous selection is
// kept; callers show it as a notification rather than a load error.
type DetailError struct {
	ChangeID string
	Err      error
}

func (e *DetailError) Error() string {
	return fmt.Sprintf("load detail of %s: %v", e.ChangeID, e.Err)
}

func (e *DetailError) Unwrap() error { return e.Err }

// DetailLoader holds the currently selected change detail.
type DetailLoader struct {
	log *slog.Logger
	src DetailSource

	mu       sync.Mutex
	selected *models.ChangeDetail
}

func NewDetailLoader(src DetailSource, logger *slog.Logger) *DetailLoader {
	if logger == nil {
		logger = slog.Default()
	}
	return &DetailLoader{log: logger, src: src}
}

// Select loads the detail of change and makes it the selection. Build
// entries carry everything locally and need no request.
func (d *DetailLoader) Select(ctx context.Context, change models.Change) (*models.ChangeDetail, error) {
	if change.IsBuild() {
		if change.Build == nil {
			return nil, &DetailError{Err: errors.New("entry has neither change id nor build")}
		}
		detail := &models.ChangeDetail{Change: change, CommitMessage: change.Subject}
		d.set(detail)
		return detail, nil
	}

	detail, err := d.src.FetchRevisionDetail(ctx, change.ID, change.RevisionID)
	if err != nil {
		d.log.Warn("detail: lookup failed, keeping previous selection", "change", change.ID, "error", err)
		return nil, &DetailError{ChangeID: change.ID, Err: err}
	}
	d.set(detail)
	return detail, nil
}

func (d *DetailLoader) set(detail *models.ChangeDetail) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.selected = detail
}

// Selected returns the current selection, or nil.
func (d *DetailLoader) Selected() *models.ChangeDetail {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.selected
}

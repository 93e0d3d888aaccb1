package remote

import (
	"fmt"
	"time"

	"github.com/omnirom/omnigerrit/internal/models"
)

// gerritTimeLayout is the timestamp format of the review server (always UTC).
const gerritTimeLayout = "2006-01-02 15:04:05.000000000"

// changeInfo is the ChangeInfo entity of the change-list and detail endpoints.
type changeInfo struct {
	ID              string                  `json:"id"`
	Project         string                  `json:"project"`
	Branch          string                  `json:"branch"`
	Topic           string                  `json:"topic"`
	ChangeID        string                  `json:"change_id"`
	Subject         string                  `json:"subject"`
	Status          string                  `json:"status"`
	Created         string                  `json:"created"`
	Updated         string                  `json:"updated"`
	Number          int                     `json:"_number"`
	Owner           accountInfo             `json:"owner"`
	CurrentRevision string                  `json:"current_revision"`
	Revisions       map[string]revisionInfo `json:"revisions"`
	MoreChanges     bool                    `json:"_more_changes"`
}

type accountInfo struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Username string `json:"username"`
}

type revisionInfo struct {
	Number int                `json:"_number"`
	Commit *models.CommitInfo `json:"commit"`
}

// buildInfo is one entry of the build snapshot feed.
type buildInfo struct {
	Filename  string `json:"filename"`
	Timestamp int64  `json:"timestamp"`
	Size      int64  `json:"size"`
}

func parseGerritTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	t, err := time.ParseInLocation(gerritTimeLayout, s, time.UTC)
	if err != nil {
		// Some servers drop the nanosecond part.
		if t2, err2 := time.ParseInLocation("2006-01-02 15:04:05", s, time.UTC); err2 == nil {
			return t2, nil
		}
		return time.Time{}, fmt.Errorf("parse timestamp %q: %w", s, err)
	}
	return t, nil
}

func (ci *changeInfo) toModel() (models.Change, error) {
	created, err := parseGerritTime(ci.Created)
	if err != nil {
		return models.Change{}, err
	}
	updated, err := parseGerritTime(ci.Updated)
	if err != nil {
		return models.Change{}, err
	}

	c := models.Change{
		ID:       ci.ID,
		ChangeID: ci.ChangeID,
		Number:   ci.Number,
		Project:  ci.Project,
		Branch:   ci.Branch,
		Subject:  ci.Subject,
		Status:   ci.Status,
		Created:  created,
		Updated:  updated,
		Owner: models.Account{
			Name:     ci.Owner.Name,
			Email:    ci.Owner.Email,
			Username: ci.Owner.Username,
		},
		RevisionID: ci.CurrentRevision,
		Topic:      ci.Topic,
	}
	if rev, ok := ci.Revisions[ci.CurrentRevision]; ok && rev.Commit != nil {
		c.CommitMessage = rev.Commit.TrimmedMessage()
	}
	return c, nil
}

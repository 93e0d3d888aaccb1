package remote

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"math/rand"
	"net/http"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/omnirom/omnigerrit/internal/metrics"
	"github.com/omnirom/omnigerrit/internal/models"
)

// SnapshotSource fetches the per-session, non-paged inputs of a timeline.
type SnapshotSource interface {
	FetchBuildSnapshot(ctx context.Context, dev models.Device) ([]models.Build, error)
	FetchAllowList(ctx context.Context, device string) (map[string]bool, error)
}

// RetryConfig configures retries of snapshot fetches.
type RetryConfig struct {
	MaxRetries     int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	JitterFraction float64 // 0.0 to 1.0

	Clock  clockwork.Clock
	Logger *slog.Logger
}

// DefaultRetryConfig returns the retry policy used by the binaries.
func DefaultRetryConfig() *RetryConfig {
	return &RetryConfig{
		MaxRetries:     2,
		InitialBackoff: 250 * time.Millisecond,
		MaxBackoff:     5 * time.Second,
		JitterFraction: 0.25,
	}
}

// RetryClient retries snapshot fetches that fail transiently. Change pages
// are never routed through it: a failed page is surfaced to the consumer,
// who retries explicitly.
type RetryClient struct {
	inner  SnapshotSource
	policy RetryConfig
	clock  clockwork.Clock
	log    *slog.Logger
}

func NewRetryClient(inner SnapshotSource, cfg *RetryConfig) *RetryClient {
	if cfg == nil {
		cfg = DefaultRetryConfig()
	}
	rc := &RetryClient{inner: inner, policy: *cfg, clock: cfg.Clock, log: cfg.Logger}
	if rc.clock == nil {
		rc.clock = clockwork.NewRealClock()
	}
	if rc.log == nil {
		rc.log = slog.Default()
	}
	return rc
}

// isRetryable reports whether another attempt may succeed: network
// failures, 5xx and 429. Malformed payloads and cancellation are final.
func isRetryable(err error) bool {
	switch {
	case err == nil:
		return false
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return false
	}
	var pe *ParseError
	if errors.As(err, &pe) {
		return false
	}
	var se *ServerError
	if errors.As(err, &se) {
		return se.Status >= 500 || se.Status == http.StatusTooManyRequests
	}
	return IsTransient(err)
}

// backoff is InitialBackoff doubled per attempt, capped at MaxBackoff,
// spread by +/- JitterFraction.
func (rc *RetryClient) backoff(attempt int) time.Duration {
	d := float64(rc.policy.InitialBackoff) * math.Pow(2, float64(attempt))
	d = math.Min(d, float64(rc.policy.MaxBackoff))
	if j := rc.policy.JitterFraction; j > 0 {
		d += d * j * (rand.Float64()*2 - 1)
	}
	return time.Duration(math.Max(d, 0))
}

func (rc *RetryClient) wait(ctx context.Context, d time.Duration) error {
	select {
	case <-rc.clock.After(d):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (rc *RetryClient) retry(ctx context.Context, op string, fn func() error) error {
	for attempt := 0; ; attempt++ {
		err := fn()
		if err == nil || !isRetryable(err) {
			return err
		}
		if attempt == rc.policy.MaxRetries {
			rc.log.Warn("retries exhausted", "op", op, "attempts", attempt+1, "error", err)
			return fmt.Errorf("%s: %w (after %d retries)", op, err, rc.policy.MaxRetries)
		}

		d := rc.backoff(attempt)
		metrics.SnapshotRetriesTotal.WithLabelValues(op).Inc()
		rc.log.Debug("retrying", "op", op, "attempt", attempt+1, "backoff", d, "error", err)
		if werr := rc.wait(ctx, d); werr != nil {
			return fmt.Errorf("%s: %w (retry cancelled)", op, err)
		}
	}
}

func (rc *RetryClient) FetchBuildSnapshot(ctx context.Context, dev models.Device) (builds []models.Build, err error) {
	err = rc.retry(ctx, "fetch build snapshot", func() error {
		builds, err = rc.inner.FetchBuildSnapshot(ctx, dev)
		return err
	})
	return
}

func (rc *RetryClient) FetchAllowList(ctx context.Context, device string) (allowed map[string]bool, err error) {
	err = rc.retry(ctx, "fetch allow-list", func() error {
		allowed, err = rc.inner.FetchAllowList(ctx, device)
		return err
	})
	return
}

package transition

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.uber.org/zap"

	"github.com/PhillipSMartin/StJames/internal/domain/event"
)

var (
	// ErrStatusMismatch means the expected-status precondition failed; no
	// write was attempted.
	ErrStatusMismatch = errors.New("current status does not match expected status")

	// ErrConcurrencyExhausted means the conditioned write kept losing the
	// version race until the retry budget ran out.
	ErrConcurrencyExhausted = errors.New("status transition retry budget exhausted")
)

// Config bounds the optimistic-concurrency retry loop.
type Config struct {
	MaxAttempts     int
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

func DefaultConfig() Config {
	return Config{
		MaxAttempts:     10,
		InitialInterval: 20 * time.Millisecond,
		MaxInterval:     2 * time.Second,
	}
}

// Service provides atomic, race-safe status transitions for a single
// (event, website) pair. All destination websites and the generic CRUD
// surface compete for the same row; the version-conditioned write is the
// sole correctness guard.
type Service struct {
	repo   event.Repository
	cfg    Config
	logger *zap.Logger
}

func NewService(repo event.Repository, cfg Config, logger *zap.Logger) *Service {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultConfig().MaxAttempts
	}
	if cfg.InitialInterval <= 0 {
		cfg.InitialInterval = DefaultConfig().InitialInterval
	}
	if cfg.MaxInterval <= 0 {
		cfg.MaxInterval = DefaultConfig().MaxInterval
	}
	return &Service{
		repo:   repo,
		cfg:    cfg,
		logger: logger.Named("transition"),
	}
}

// GetStatus reads the event and derives the current status of website by
// scanning the three buckets. StatusUnknown is reported as-is; the caller
// decides whether that is an error.
func (s *Service) GetStatus(ctx context.Context, dateID string, website event.Website) (*event.Event, event.Status, error) {
	ev, err := s.repo.Get(ctx, event.AccessPublic, dateID)
	if err != nil {
		return nil, event.StatusUnknown, err
	}
	return ev, ev.StatusOf(website), nil
}

// Transition moves website into the newStatus bucket, removing it from
// whichever bucket currently holds it, conditioned on the version being
// unchanged since read. When expectedOld is non-nil and does not match the
// observed status the call fails with ErrStatusMismatch without writing.
// Version conflicts re-read and retry the whole operation with exponential
// backoff up to the configured bound.
func (s *Service) Transition(ctx context.Context, dateID string, website event.Website, expectedOld *event.Status, newStatus event.Status) error {
	backoffCfg := backoff.NewExponentialBackOff()
	backoffCfg.InitialInterval = s.cfg.InitialInterval
	backoffCfg.MaxInterval = s.cfg.MaxInterval

	for attempt := 1; attempt <= s.cfg.MaxAttempts; attempt++ {
		ev, current, err := s.GetStatus(ctx, dateID, website)
		if err != nil {
			return err
		}

		if expectedOld != nil && current != *expectedOld {
			return fmt.Errorf("%w: current status of %q is %q, expected %q",
				ErrStatusMismatch, website, statusLabel(current), statusLabel(*expectedOld))
		}

		if err := ev.MoveTo(website, newStatus); err != nil {
			return err
		}

		err = s.repo.SaveConditioned(ctx, ev, ev.Version)
		if err == nil {
			s.logger.Info("status_transitioned",
				zap.String("date_id", dateID),
				zap.String("website", string(website)),
				zap.String("from", statusLabel(current)),
				zap.String("to", string(newStatus)),
				zap.Int64("version", ev.Version),
			)
			return nil
		}
		if !errors.Is(err, event.ErrVersionConflict) {
			return err
		}

		s.logger.Warn("status_transition_conflict",
			zap.String("date_id", dateID),
			zap.String("website", string(website)),
			zap.Int("attempt", attempt),
		)

		sleep := backoffCfg.NextBackOff()
		if sleep == backoff.Stop {
			sleep = s.cfg.MaxInterval
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(sleep):
		}
	}

	return fmt.Errorf("%w: gave up on %s/%s after %d attempts",
		ErrConcurrencyExhausted, dateID, website, s.cfg.MaxAttempts)
}

func statusLabel(s event.Status) string {
	if s == event.StatusUnknown {
		return "unknown"
	}
	return string(s)
}

package reconciler

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/PhillipSMartin/StJames/internal/domain/event"
	"github.com/PhillipSMartin/StJames/internal/transition"
)

// PostingReconciler sweeps (event, website) pairs stuck in posting beyond a
// staleness threshold back to post. A worker that times out after its claim
// but before finalize leaves the pair in posting; without this sweep the pair
// would stay claimed until a human noticed.
type PostingReconciler struct {
	repo        event.Repository
	transitions *transition.Service
	logger      *zap.Logger
	interval    time.Duration
	staleAfter  time.Duration
	batchSize   int
}

func NewPostingReconciler(repo event.Repository, transitions *transition.Service, interval, staleAfter time.Duration, logger *zap.Logger) *PostingReconciler {
	if interval <= 0 {
		interval = time.Minute
	}
	if staleAfter <= 0 {
		staleAfter = 15 * time.Minute
	}
	return &PostingReconciler{
		repo:        repo,
		transitions: transitions,
		logger:      logger.Named("posting.reconciler"),
		interval:    interval,
		staleAfter:  staleAfter,
		batchSize:   50,
	}
}

func (r *PostingReconciler) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := r.Sweep(ctx); err != nil {
				r.logger.Error("reconcile_failed", zap.Error(err))
			}
		}
	}
}

// Sweep resets every stale posting membership it finds. Per-pair failures are
// logged and skipped; the next sweep gets another chance.
func (r *PostingReconciler) Sweep(ctx context.Context) error {
	cutoff := time.Now().UTC().Add(-r.staleAfter)
	events, err := r.repo.ListStalePosting(ctx, cutoff, r.batchSize)
	if err != nil {
		return err
	}

	for _, ev := range events {
		// Copy before transitioning; each Transition rewrites the buckets.
		stuck := append([]event.Website(nil), ev.Posting...)
		for _, website := range stuck {
			expected := event.StatusPosting
			if err := r.transitions.Transition(ctx, ev.DateID, website, &expected, event.StatusPost); err != nil {
				r.logger.Warn("posting_reset_failed",
					zap.Error(err),
					zap.String("date_id", ev.DateID),
					zap.String("website", string(website)),
				)
				continue
			}
			r.logger.Info("posting_reset",
				zap.String("date_id", ev.DateID),
				zap.String("website", string(website)),
				zap.Duration("stale_after", r.staleAfter),
			)
		}
	}
	return nil
}

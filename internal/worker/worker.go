package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/PhillipSMartin/StJames/internal/domain/event"
	"github.com/PhillipSMartin/StJames/internal/domain/publishing"
	"github.com/PhillipSMartin/StJames/internal/outbox"
	"github.com/PhillipSMartin/StJames/internal/transition"
)

// Config bounds one worker instance.
type Config struct {
	PollInterval time.Duration
	BatchSize    int
	// BatchBudget is the wall-clock budget for one batch. A timeout after a
	// claim but before finalize leaves the pair in posting until the
	// reconciler sweeps it back.
	BatchBudget time.Duration
}

func DefaultConfig() Config {
	return Config{
		PollInterval: 5 * time.Second,
		BatchSize:    5,
		BatchBudget:  30 * time.Second,
	}
}

// Worker drives (event, website) pairs through claim -> publish -> finalize
// for one destination website. Workers for different websites share no
// in-process state; the claim step's conditional write is the only guard
// against double-publication.
type Worker struct {
	adapter     publishing.SiteAdapter
	queue       *outbox.Queue
	transitions *transition.Service
	results     *ResultPublisher
	logger      *zap.Logger
	cfg         Config
}

// ResultPublisher decouples the worker from the concrete result notifier.
type ResultPublisher struct {
	Publish func(ctx context.Context, result publishing.Result) error
}

func New(adapter publishing.SiteAdapter, queue *outbox.Queue, transitions *transition.Service, results *ResultPublisher, cfg Config, logger *zap.Logger) *Worker {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultConfig().PollInterval
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultConfig().BatchSize
	}
	if cfg.BatchBudget <= 0 {
		cfg.BatchBudget = DefaultConfig().BatchBudget
	}
	return &Worker{
		adapter:     adapter,
		queue:       queue,
		transitions: transitions,
		results:     results,
		logger:      logger.Named("worker." + string(adapter.Website())),
		cfg:         cfg,
	}
}

// Run polls the notification queue until ctx is done.
func (w *Worker) Run(ctx context.Context) {
	if err := w.ProcessBatch(ctx); err != nil {
		w.logger.Error("worker_initial_poll_failed", zap.Error(err))
	}

	ticker := time.NewTicker(w.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := w.ProcessBatch(ctx); err != nil {
				w.logger.Error("worker_poll_failed", zap.Error(err))
			}
		}
	}
}

// ProcessBatch claims a batch of notifications and processes each under a
// shared wall-clock budget. One notification's failure never aborts the rest.
func (w *Worker) ProcessBatch(ctx context.Context) error {
	batchCtx, cancel := context.WithTimeout(ctx, w.cfg.BatchBudget)
	defer cancel()

	notifications, err := w.queue.ClaimPending(batchCtx, w.adapter.Website(), w.cfg.BatchSize)
	if err != nil {
		return err
	}

	for _, notification := range notifications {
		if err := w.process(batchCtx, notification); err != nil {
			w.logger.Error("notification_processing_failed",
				zap.Error(err),
				zap.Int64("notification_id", notification.ID),
				zap.String("date_id", notification.DateID),
			)
		}
	}
	return nil
}

// run holds everything one claim/publish/finalize sequence needs. Threading
// it explicitly keeps concurrent invocations from cross-contaminating state.
type run struct {
	notification outbox.Notification
	snapshot     publishing.Snapshot
	website      event.Website
}

func (w *Worker) process(ctx context.Context, notification outbox.Notification) error {
	r := run{
		notification: notification,
		snapshot:     notification.Snapshot(),
		website:      w.adapter.Website(),
	}

	// Claim: post -> posting. Losing here means a concurrent or duplicate
	// invocation got the pair first; do not touch the external site.
	expected := event.StatusPost
	if err := w.transitions.Transition(ctx, r.snapshot.DateID, r.website, &expected, event.StatusPosting); err != nil {
		if errors.Is(err, transition.ErrConcurrencyExhausted) {
			// Transient row contention, not a lost claim: record the
			// attempt and leave the notification for redelivery.
			w.publishResult(ctx, r, false, err.Error())
			return w.queue.MarkFailed(ctx, r.notification, err.Error())
		}
		w.logger.Info("claim_rejected",
			zap.String("date_id", r.snapshot.DateID),
			zap.Error(err),
		)
		return w.finish(ctx, r, false, fmt.Sprintf("claim failed: %v", err))
	}

	// Publish through the site adapter.
	if err := w.adapter.Submit(ctx, r.snapshot); err != nil {
		reason := err.Error()
		var adapterErr *publishing.AdapterError
		if errors.As(err, &adapterErr) {
			reason = adapterErr.Reason
		}
		w.logger.Warn("site_submit_failed",
			zap.String("date_id", r.snapshot.DateID),
			zap.String("reason", reason),
		)

		// Roll back the claim so a future run can retry.
		if rbErr := w.transitions.Transition(ctx, r.snapshot.DateID, r.website, nil, event.StatusPost); rbErr != nil {
			w.logger.Error("claim_rollback_failed",
				zap.String("date_id", r.snapshot.DateID),
				zap.Error(rbErr),
			)
			reason = fmt.Sprintf("%s (rollback also failed: %v)", reason, rbErr)
		}
		return w.finish(ctx, r, false, reason)
	}

	w.logger.Info("site_submit_succeeded",
		zap.String("date_id", r.snapshot.DateID),
		zap.String("title", r.snapshot.Title),
	)

	// Finalize: posting -> posted. A failure here is surfaced through the
	// result record rather than retried indefinitely.
	if err := w.transitions.Transition(ctx, r.snapshot.DateID, r.website, nil, event.StatusPosted); err != nil {
		w.logger.Error("finalize_failed",
			zap.String("date_id", r.snapshot.DateID),
			zap.Error(err),
		)
		return w.finish(ctx, r, true, fmt.Sprintf("posted, but finalize failed: %v", err))
	}

	return w.finish(ctx, r, true, "")
}

// finish emits one result record and completes the notification.
func (w *Worker) finish(ctx context.Context, r run, success bool, reason string) error {
	w.publishResult(ctx, r, success, reason)
	return w.queue.MarkCompleted(ctx, r.notification.ID)
}

// publishResult records the attempt outcome. Every processed notification
// produces a result, including attempts that end in redelivery.
func (w *Worker) publishResult(ctx context.Context, r run, success bool, reason string) {
	result := publishing.Result{
		Website: r.website,
		Success: success,
		Title:   r.snapshot.Title,
		Reason:  reason,
	}
	if err := w.results.Publish(ctx, result); err != nil {
		w.logger.Error("result_publish_failed",
			zap.Error(err),
			zap.String("date_id", r.snapshot.DateID),
		)
	}
}

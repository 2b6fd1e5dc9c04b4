package notifier

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/PhillipSMartin/StJames/internal/domain/event"
	"github.com/PhillipSMartin/StJames/internal/domain/publishing"
	"github.com/PhillipSMartin/StJames/internal/outbox"
)

// ChangeNotifier periodically scans for future-dated public events whose post
// bucket is non-empty and fans out one notification per pending website. It
// never mutates status; claiming is the workers' job.
type ChangeNotifier struct {
	repo     event.Repository
	queue    *outbox.Queue
	logger   *zap.Logger
	interval time.Duration
	// batchSize caps fan-out per scan so overlapping scans cannot flood the
	// queue with duplicates faster than workers drain it.
	batchSize int
}

func NewChangeNotifier(repo event.Repository, queue *outbox.Queue, interval time.Duration, batchSize int, logger *zap.Logger) *ChangeNotifier {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	if batchSize <= 0 {
		batchSize = 3
	}
	return &ChangeNotifier{
		repo:      repo,
		queue:     queue,
		logger:    logger.Named("change.notifier"),
		interval:  interval,
		batchSize: batchSize,
	}
}

// Run scans once immediately and then on every tick until ctx is done.
func (n *ChangeNotifier) Run(ctx context.Context) {
	if err := n.Scan(ctx); err != nil {
		n.logger.Error("notifier_initial_scan_failed", zap.Error(err))
	}

	ticker := time.NewTicker(n.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := n.Scan(ctx); err != nil {
				n.logger.Error("notifier_scan_failed", zap.Error(err))
			}
		}
	}
}

// Scan emits notifications for up to batchSize qualifying events. A failure
// to enqueue for one event is logged and never blocks the rest.
func (n *ChangeNotifier) Scan(ctx context.Context) error {
	today := time.Now().UTC().Format("2006-01-02")
	events, err := n.repo.ListPendingAfter(ctx, today, n.batchSize)
	if err != nil {
		return err
	}

	for _, ev := range events {
		snap := publishing.Snapshot{
			Title:       ev.Title,
			Time:        ev.Time,
			Description: ev.Description,
			DateID:      ev.DateID,
		}
		for _, website := range ev.Post {
			if err := n.queue.Enqueue(ctx, website, snap); err != nil {
				n.logger.Error("notification_enqueue_failed",
					zap.Error(err),
					zap.String("date_id", ev.DateID),
					zap.String("website", string(website)),
				)
				continue
			}
			n.logger.Info("notification_enqueued",
				zap.String("date_id", ev.DateID),
				zap.String("website", string(website)),
				zap.String("title", ev.Title),
			)
		}
	}
	return nil
}

package outbox

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/PhillipSMartin/StJames/internal/domain/event"
	"github.com/PhillipSMartin/StJames/internal/domain/publishing"
	"github.com/PhillipSMartin/StJames/pkg/snowflake"
)

// Queue is the durable channel between the change notifier and the
// publication workers. Claiming uses per-row conditional updates with
// RowsAffected arbitration, so concurrent workers never double-claim a row.
type Queue struct {
	db          *gorm.DB
	node        *snowflake.Node
	maxAttempts int
}

func NewQueue(db *gorm.DB, node *snowflake.Node) *Queue {
	return &Queue{
		db:          db,
		node:        node,
		maxAttempts: 10,
	}
}

// Enqueue records one notification for (snapshot, website). At most one live
// entry per (date_id, website) is kept; a duplicate enqueue while an earlier
// one is still pending or processing is a no-op. The count check is the fast
// path; the partial unique index on live rows closes the race between
// overlapping scans.
func (q *Queue) Enqueue(ctx context.Context, website event.Website, snap publishing.Snapshot) error {
	var live int64
	err := q.db.WithContext(ctx).Model(&Notification{}).
		Where("website = ? AND date_id = ? AND status IN ?",
			string(website), snap.DateID,
			[]NotificationStatus{StatusPending, StatusProcessing}).
		Count(&live).Error
	if err != nil {
		return err
	}
	if live > 0 {
		return nil
	}

	now := time.Now().UTC()
	notification := Notification{
		ID:          q.node.GenerateID(),
		Website:     string(website),
		DateID:      snap.DateID,
		Title:       snap.Title,
		Time:        snap.Time,
		Description: snap.Description,
		Status:      StatusPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := q.db.WithContext(ctx).Create(&notification).Error; err != nil {
		// A concurrent scan inserted the live entry between the count and
		// the insert; theirs stands.
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil
		}
		return err
	}
	return nil
}

// ClaimPending fetches up to batch deliverable notifications for website and
// flips each to processing. A row that loses the conditional update was taken
// by a concurrent worker and is skipped.
func (q *Queue) ClaimPending(ctx context.Context, website event.Website, batch int) ([]Notification, error) {
	now := time.Now().UTC()

	var candidates []Notification
	err := q.db.WithContext(ctx).
		Where("website = ? AND status IN ? AND (next_attempt_at IS NULL OR next_attempt_at <= ?) AND attempts < ?",
			string(website),
			[]NotificationStatus{StatusPending, StatusFailed},
			now,
			q.maxAttempts,
		).
		Order("created_at asc").
		Limit(batch).
		Find(&candidates).Error
	if err != nil {
		return nil, err
	}

	claimed := make([]Notification, 0, len(candidates))
	for _, candidate := range candidates {
		result := q.db.WithContext(ctx).Model(&Notification{}).
			Where("id = ? AND status IN ?", candidate.ID,
				[]NotificationStatus{StatusPending, StatusFailed}).
			Updates(map[string]any{
				"status":     StatusProcessing,
				"attempts":   gorm.Expr("attempts + 1"),
				"locked_at":  now,
				"updated_at": now,
				"last_error": "",
			})
		if result.Error != nil {
			return claimed, result.Error
		}
		if result.RowsAffected == 0 {
			continue
		}
		candidate.Status = StatusProcessing
		candidate.Attempts++
		claimed = append(claimed, candidate)
	}
	return claimed, nil
}

// MarkCompleted finishes a processing notification. A completed row is never
// redelivered; re-publication happens only through the change notifier
// observing the post bucket again.
func (q *Queue) MarkCompleted(ctx context.Context, id int64) error {
	now := time.Now().UTC()
	return q.db.WithContext(ctx).Model(&Notification{}).
		Where("id = ? AND status = ?", id, StatusProcessing).
		Updates(map[string]any{
			"status":       StatusCompleted,
			"processed_at": now,
			"updated_at":   now,
			"last_error":   "",
		}).Error
}

// MarkFailed schedules a redelivery with exponential backoff. Rows past the
// attempt cap stop being claimed and are left for operator inspection.
func (q *Queue) MarkFailed(ctx context.Context, notification Notification, reason string) error {
	now := time.Now().UTC()
	nextAttempt := now.Add(redeliveryBackoff(notification.Attempts))
	return q.db.WithContext(ctx).Model(&Notification{}).
		Where("id = ?", notification.ID).
		Updates(map[string]any{
			"status":          StatusFailed,
			"last_error":      reason,
			"next_attempt_at": nextAttempt,
			"updated_at":      now,
		}).Error
}

// Snapshot rebuilds the publishing snapshot carried by the notification.
func (n *Notification) Snapshot() publishing.Snapshot {
	return publishing.Snapshot{
		Title:       n.Title,
		Time:        n.Time,
		Description: n.Description,
		DateID:      n.DateID,
	}
}

func redeliveryBackoff(attempt int) time.Duration {
	if attempt <= 1 {
		return 10 * time.Second
	}

	maxBackoff := 5 * time.Minute
	base := 10 * time.Second
	shift := attempt - 1
	if shift > 6 {
		shift = 6
	}

	d := base * time.Duration(1<<shift)
	if d > maxBackoff {
		return maxBackoff
	}
	return d
}

package outbox

import "time"

type NotificationStatus string

const (
	StatusPending    NotificationStatus = "pending"
	StatusProcessing NotificationStatus = "processing"
	StatusCompleted  NotificationStatus = "completed"
	StatusFailed     NotificationStatus = "failed"
)

// Notification is one durable fan-out entry: a snapshot of an event bound for
// one destination website. The snapshot is frozen at enqueue time and carries
// no version number; it is advisory only.
type Notification struct {
	ID            int64              `gorm:"primaryKey"`
	Website       string             `gorm:"type:varchar(50);not null;index"`
	DateID        string             `gorm:"column:date_id;type:varchar(100);not null"`
	Title         string             `gorm:"type:text"`
	Time          string             `gorm:"type:varchar(100)"`
	Description   string             `gorm:"type:text"`
	Status        NotificationStatus `gorm:"type:varchar(50);not null"`
	Attempts      int                `gorm:"not null;default:0"`
	LastError     string             `gorm:"type:text"`
	LockedAt      *time.Time
	NextAttemptAt *time.Time
	ProcessedAt   *time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

func (Notification) TableName() string {
	return "notifications"
}

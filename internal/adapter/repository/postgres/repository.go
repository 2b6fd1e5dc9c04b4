package postgres

import (
	"context"
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/PhillipSMartin/StJames/internal/domain/event"
)

// WebsiteList stores a status bucket as a JSON text column so the model works
// on both the postgres driver and the sqlite driver used in tests.
type WebsiteList []event.Website

func (l WebsiteList) Value() (driver.Value, error) {
	if l == nil {
		l = WebsiteList{}
	}
	b, err := json.Marshal(l)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func (l *WebsiteList) Scan(src any) error {
	if src == nil {
		*l = WebsiteList{}
		return nil
	}
	var raw []byte
	switch v := src.(type) {
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("unsupported bucket column type %T", src)
	}
	if len(raw) == 0 {
		*l = WebsiteList{}
		return nil
	}
	return json.Unmarshal(raw, l)
}

// EventModel is the database DTO with Gorm tags.
type EventModel struct {
	ID          int64       `gorm:"primaryKey"`
	Access      string      `gorm:"type:varchar(20);not null;uniqueIndex:idx_events_access_date_id,priority:1"`
	DateID      string      `gorm:"column:date_id;type:varchar(100);not null;uniqueIndex:idx_events_access_date_id,priority:2"`
	Title       string      `gorm:"type:text"`
	Time        string      `gorm:"type:varchar(100)"`
	Description string      `gorm:"type:text"`
	Post        WebsiteList `gorm:"type:text"`
	Posting     WebsiteList `gorm:"type:text"`
	Posted      WebsiteList `gorm:"type:text"`
	Version     int64       `gorm:"not null;default:0"`
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

func (EventModel) TableName() string {
	return "events"
}

type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) Create(ctx context.Context, ev *event.Event) error {
	existing, err := r.Get(ctx, ev.Access, ev.DateID)
	if err != nil && !errors.Is(err, event.ErrNotFound) {
		return err
	}
	if existing != nil {
		return event.ErrConflict
	}

	model := toModel(ev)
	now := time.Now().UTC()
	model.CreatedAt = now
	model.UpdatedAt = now
	if err := r.db.WithContext(ctx).Create(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return event.ErrConflict
		}
		return err
	}
	ev.CreatedAt = model.CreatedAt
	ev.UpdatedAt = model.UpdatedAt
	return nil
}

func (r *Repository) Get(ctx context.Context, access event.AccessScope, dateID string) (*event.Event, error) {
	var model EventModel
	err := r.db.WithContext(ctx).
		Where("access = ? AND date_id = ?", string(access), dateID).
		First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, event.ErrNotFound
		}
		return nil, err
	}
	return toDomain(model), nil
}

func (r *Repository) List(ctx context.Context, access event.AccessScope, limit int) ([]*event.Event, error) {
	query := r.db.WithContext(ctx).
		Where("access = ?", string(access)).
		Order("date_id desc")
	if limit > 0 {
		query = query.Limit(limit)
	}

	var models []EventModel
	if err := query.Find(&models).Error; err != nil {
		return nil, err
	}
	return toDomainList(models), nil
}

func (r *Repository) Delete(ctx context.Context, access event.AccessScope, dateID string) error {
	result := r.db.WithContext(ctx).
		Where("access = ? AND date_id = ?", string(access), dateID).
		Delete(&EventModel{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return event.ErrNotFound
	}
	return nil
}

// SaveConditioned writes the full record back only if the stored version still
// equals expectedVersion, incrementing it on success. RowsAffected arbitrates
// the race; there is no lock.
func (r *Repository) SaveConditioned(ctx context.Context, ev *event.Event, expectedVersion int64) error {
	now := time.Now().UTC()
	result := r.db.WithContext(ctx).Model(&EventModel{}).
		Where("access = ? AND date_id = ? AND version = ?", string(ev.Access), ev.DateID, expectedVersion).
		Updates(map[string]any{
			"title":       ev.Title,
			"time":        ev.Time,
			"description": ev.Description,
			"post":        WebsiteList(ev.Post),
			"posting":     WebsiteList(ev.Posting),
			"posted":      WebsiteList(ev.Posted),
			"version":     expectedVersion + 1,
			"updated_at":  now,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		// Either the row vanished or another writer bumped the version.
		if _, err := r.Get(ctx, ev.Access, ev.DateID); err != nil {
			return err
		}
		return event.ErrVersionConflict
	}
	ev.Version = expectedVersion + 1
	ev.UpdatedAt = now
	return nil
}

func (r *Repository) ListPendingAfter(ctx context.Context, date string, limit int) ([]*event.Event, error) {
	// The post bucket is a JSON text column; comparing against the empty
	// encoding keeps fully-posted rows out of the window BEFORE the limit
	// applies, so they cannot crowd out genuinely pending events.
	query := r.db.WithContext(ctx).
		Where("access = ? AND date_id > ? AND post <> '[]'", string(event.AccessPublic), date).
		Order("date_id asc")
	if limit > 0 {
		query = query.Limit(limit)
	}

	var models []EventModel
	if err := query.Find(&models).Error; err != nil {
		return nil, err
	}
	return toDomainList(models), nil
}

func (r *Repository) ListStalePosting(ctx context.Context, cutoff time.Time, limit int) ([]*event.Event, error) {
	query := r.db.WithContext(ctx).
		Where("access = ? AND updated_at < ? AND posting <> '[]'", string(event.AccessPublic), cutoff).
		Order("updated_at asc")
	if limit > 0 {
		query = query.Limit(limit)
	}

	var models []EventModel
	if err := query.Find(&models).Error; err != nil {
		return nil, err
	}
	return toDomainList(models), nil
}

// Mappers

func toDomain(m EventModel) *event.Event {
	return &event.Event{
		Access:      event.AccessScope(m.Access),
		DateID:      m.DateID,
		Title:       m.Title,
		Time:        m.Time,
		Description: m.Description,
		Post:        []event.Website(m.Post),
		Posting:     []event.Website(m.Posting),
		Posted:      []event.Website(m.Posted),
		Version:     m.Version,
		CreatedAt:   m.CreatedAt,
		UpdatedAt:   m.UpdatedAt,
	}
}

func toDomainList(models []EventModel) []*event.Event {
	items := make([]*event.Event, 0, len(models))
	for _, model := range models {
		items = append(items, toDomain(model))
	}
	return items
}

func toModel(d *event.Event) EventModel {
	return EventModel{
		Access:      string(d.Access),
		DateID:      d.DateID,
		Title:       d.Title,
		Time:        d.Time,
		Description: d.Description,
		Post:        WebsiteList(d.Post),
		Posting:     WebsiteList(d.Posting),
		Posted:      WebsiteList(d.Posted),
		Version:     d.Version,
		CreatedAt:   d.CreatedAt,
		UpdatedAt:   d.UpdatedAt,
	}
}

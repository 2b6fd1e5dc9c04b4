package event

import (
	"context"
	"time"
)

// Repository is the Event Store port. Implementations must enforce the
// version-conditioned write contract of SaveConditioned: the row is only
// written when its stored version still equals expectedVersion, and a
// successful write increments the version by one.
type Repository interface {
	Create(ctx context.Context, ev *Event) error
	Get(ctx context.Context, access AccessScope, dateID string) (*Event, error)
	List(ctx context.Context, access AccessScope, limit int) ([]*Event, error)
	Delete(ctx context.Context, access AccessScope, dateID string) error

	// SaveConditioned writes the full record back, conditioned on the version
	// being unchanged since read. Returns ErrVersionConflict when another
	// writer got there first.
	SaveConditioned(ctx context.Context, ev *Event, expectedVersion int64) error

	// ListPendingAfter returns public events dated strictly after date whose
	// post bucket is non-empty, oldest date first.
	ListPendingAfter(ctx context.Context, date string, limit int) ([]*Event, error)

	// ListStalePosting returns public events with a non-empty posting bucket
	// not written since cutoff.
	ListStalePosting(ctx context.Context, cutoff time.Time, limit int) ([]*Event, error)
}

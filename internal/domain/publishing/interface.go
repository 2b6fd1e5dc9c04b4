package publishing

import (
	"context"

	"github.com/PhillipSMartin/StJames/internal/domain/event"
)

// Snapshot carries the event fields a worker needs to publish. It is copied
// into the notification at fan-out time so a worker racing ahead of later
// event edits still has a consistent view of what it was asked to post.
// Version numbers are never included; the snapshot is advisory only.
type Snapshot struct {
	Title       string `json:"title"`
	Time        string `json:"time,omitempty"`
	Description string `json:"description,omitempty"`
	DateID      string `json:"date_id"`
}

// SiteAdapter is the per-destination collaborator responsible for
// authentication, request construction, and response interpretation against
// one third-party service. Submit returns nil on a successful post.
type SiteAdapter interface {
	Website() event.Website
	Submit(ctx context.Context, snap Snapshot) error
}

// Result is the per-attempt outcome record handed to the result notifier.
type Result struct {
	Website event.Website `json:"website"`
	Success bool          `json:"success"`
	Title   string        `json:"title"`
	Reason  string        `json:"reason,omitempty"`
}

// AdapterError wraps an external-site failure with its descriptive reason so
// it is never conflated with internal errors.
type AdapterError struct {
	Website event.Website
	Reason  string
}

func (e *AdapterError) Error() string {
	return "site " + string(e.Website) + ": " + e.Reason
}

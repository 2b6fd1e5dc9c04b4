// Package moms submits events to the community calendar.
package moms

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/PhillipSMartin/StJames/internal/adapter/site"
	"github.com/PhillipSMartin/StJames/internal/domain/event"
	"github.com/PhillipSMartin/StJames/internal/domain/publishing"
)

type Adapter struct {
	client *site.Client
}

func NewAdapter(cfg site.Config) *Adapter {
	return &Adapter{client: site.NewClient("moms", cfg)}
}

func (a *Adapter) Website() event.Website {
	return event.WebsiteMoms
}

type calendarEntry struct {
	Name      string `json:"name"`
	StartsAt  int64  `json:"starts_at"`
	Details   string `json:"details,omitempty"`
	LocalTime string `json:"local_time,omitempty"`
}

// Submit posts the event as a calendar entry. The calendar wants an epoch
// start rather than a date string.
func (a *Adapter) Submit(ctx context.Context, snap publishing.Snapshot) error {
	date, _, found := strings.Cut(snap.DateID, "#")
	if !found {
		return &publishing.AdapterError{
			Website: a.Website(),
			Reason:  fmt.Sprintf("malformed date id %q", snap.DateID),
		}
	}
	day, err := time.Parse("2006-01-02", date)
	if err != nil {
		return &publishing.AdapterError{
			Website: a.Website(),
			Reason:  fmt.Sprintf("unparseable date %q", date),
		}
	}

	entry := calendarEntry{
		Name:      snap.Title,
		StartsAt:  day.Unix(),
		Details:   snap.Description,
		LocalTime: snap.Time,
	}
	if err := a.client.PostJSON(ctx, "/calendar/entries", entry, nil); err != nil {
		return &publishing.AdapterError{Website: a.Website(), Reason: err.Error()}
	}
	return nil
}

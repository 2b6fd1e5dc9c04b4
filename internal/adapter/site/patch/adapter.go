// Package patch submits events to the paid listing service.
package patch

import (
	"context"
	"fmt"
	"strings"

	"github.com/PhillipSMartin/StJames/internal/adapter/site"
	"github.com/PhillipSMartin/StJames/internal/domain/event"
	"github.com/PhillipSMartin/StJames/internal/domain/publishing"
)

type Adapter struct {
	client *site.Client
}

func NewAdapter(cfg site.Config) *Adapter {
	return &Adapter{client: site.NewClient("patch", cfg)}
}

func (a *Adapter) Website() event.Website {
	return event.WebsitePatch
}

type submission struct {
	Title       string `json:"title"`
	Date        string `json:"date"`
	Time        string `json:"time,omitempty"`
	Description string `json:"description,omitempty"`
	Category    string `json:"category"`
}

func (a *Adapter) Submit(ctx context.Context, snap publishing.Snapshot) error {
	date, _, found := strings.Cut(snap.DateID, "#")
	if !found {
		return &publishing.AdapterError{
			Website: a.Website(),
			Reason:  fmt.Sprintf("malformed date id %q", snap.DateID),
		}
	}

	payload := submission{
		Title:       snap.Title,
		Date:        date,
		Time:        snap.Time,
		Description: snap.Description,
		Category:    "community-events",
	}
	if err := a.client.PostJSON(ctx, "/api/v1/events", payload, nil); err != nil {
		return &publishing.AdapterError{Website: a.Website(), Reason: err.Error()}
	}
	return nil
}

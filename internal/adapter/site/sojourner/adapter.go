// Package sojourner submits events through the help-desk submission form.
package sojourner

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/PhillipSMartin/StJames/internal/adapter/site"
	"github.com/PhillipSMartin/StJames/internal/domain/event"
	"github.com/PhillipSMartin/StJames/internal/domain/publishing"
)

type Adapter struct {
	client *site.Client
}

func NewAdapter(cfg site.Config) *Adapter {
	return &Adapter{client: site.NewClient("sojourner", cfg)}
}

func (a *Adapter) Website() event.Website {
	return event.WebsiteSojourner
}

// Submit files a help-desk ticket carrying the event; the help desk only
// accepts a form post.
func (a *Adapter) Submit(ctx context.Context, snap publishing.Snapshot) error {
	date, _, found := strings.Cut(snap.DateID, "#")
	if !found {
		return &publishing.AdapterError{
			Website: a.Website(),
			Reason:  fmt.Sprintf("malformed date id %q", snap.DateID),
		}
	}

	form := url.Values{}
	form.Set("subject", fmt.Sprintf("Event listing request: %s", snap.Title))
	form.Set("event_date", date)
	if snap.Time != "" {
		form.Set("event_time", snap.Time)
	}
	if snap.Description != "" {
		form.Set("body", snap.Description)
	}

	if err := a.client.PostForm(ctx, "/helpdesk/tickets", form); err != nil {
		return &publishing.AdapterError{Website: a.Website(), Reason: err.Error()}
	}
	return nil
}

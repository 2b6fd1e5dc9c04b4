// Package sitetest is the wiring-check destination: it performs no network
// call and succeeds or fails on command, so the full claim/publish/finalize
// path can be exercised end to end.
package sitetest

import (
	"context"

	"go.uber.org/zap"

	"github.com/PhillipSMartin/StJames/internal/domain/event"
	"github.com/PhillipSMartin/StJames/internal/domain/publishing"
)

type Adapter struct {
	logger *zap.Logger
	// FailWith, when non-empty, makes every Submit fail with this reason.
	FailWith string
}

func NewAdapter(failWith string, logger *zap.Logger) *Adapter {
	return &Adapter{
		logger:   logger.Named("site.test"),
		FailWith: failWith,
	}
}

func (a *Adapter) Website() event.Website {
	return event.WebsiteTest
}

func (a *Adapter) Submit(ctx context.Context, snap publishing.Snapshot) error {
	if a.FailWith != "" {
		return &publishing.AdapterError{Website: a.Website(), Reason: a.FailWith}
	}
	a.logger.Info("test_submit",
		zap.String("title", snap.Title),
		zap.String("date_id", snap.DateID),
	)
	return nil
}

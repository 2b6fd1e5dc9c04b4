package testhelper

import (
	"context"
	"sync"

	"github.com/PhillipSMartin/StJames/internal/domain/event"
	"github.com/PhillipSMartin/StJames/internal/domain/publishing"
)

// MockSiteAdapter records submissions and fails on command.
type MockSiteAdapter struct {
	Site     event.Website
	FailWith string

	mu          sync.Mutex
	submissions []publishing.Snapshot
}

func (m *MockSiteAdapter) Website() event.Website {
	return m.Site
}

func (m *MockSiteAdapter) Submit(ctx context.Context, snap publishing.Snapshot) error {
	m.mu.Lock()
	m.submissions = append(m.submissions, snap)
	m.mu.Unlock()

	if m.FailWith != "" {
		return &publishing.AdapterError{Website: m.Site, Reason: m.FailWith}
	}
	return nil
}

// Submissions returns a copy of everything submitted so far.
func (m *MockSiteAdapter) Submissions() []publishing.Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]publishing.Snapshot(nil), m.submissions...)
}

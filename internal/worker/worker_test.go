package worker_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/PhillipSMartin/StJames/internal/adapter/repository/postgres"
	"github.com/PhillipSMartin/StJames/internal/domain/event"
	"github.com/PhillipSMartin/StJames/internal/domain/publishing"
	"github.com/PhillipSMartin/StJames/internal/outbox"
	"github.com/PhillipSMartin/StJames/internal/transition"
	"github.com/PhillipSMartin/StJames/internal/worker"
	"github.com/PhillipSMartin/StJames/pkg/snowflake"
	"github.com/PhillipSMartin/StJames/pkg/testhelper"
)

const testDateID = "2099-06-01#3d6a1e46-52f0-4d6b-b42f-0a3a64a2d111"

// resultRecorder collects results the way the result notifier would.
type resultRecorder struct {
	mu      sync.Mutex
	results []publishing.Result
}

func (r *resultRecorder) publish(_ context.Context, result publishing.Result) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.results = append(r.results, result)
	return nil
}

func (r *resultRecorder) all() []publishing.Result {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]publishing.Result(nil), r.results...)
}

type fixture struct {
	db      *gorm.DB
	repo    *postgres.Repository
	queue   *outbox.Queue
	adapter *testhelper.MockSiteAdapter
	results *resultRecorder
	worker  *worker.Worker
}

func newFixture(t *testing.T, failWith string) *fixture {
	t.Helper()
	db := testhelper.OpenSQLite(t, &postgres.EventModel{}, &outbox.Notification{})
	repo := postgres.NewRepository(db)

	node, err := snowflake.NewNode()
	require.NoError(t, err)
	queue := outbox.NewQueue(db, node)

	transitions := transition.NewService(repo, transition.Config{
		MaxAttempts:     10,
		InitialInterval: time.Millisecond,
		MaxInterval:     5 * time.Millisecond,
	}, zap.NewNop())

	adapter := &testhelper.MockSiteAdapter{Site: event.WebsitePatch, FailWith: failWith}
	results := &resultRecorder{}
	w := worker.New(adapter, queue, transitions,
		&worker.ResultPublisher{Publish: results.publish},
		worker.Config{PollInterval: time.Second, BatchSize: 5, BatchBudget: 10 * time.Second},
		zap.NewNop())

	return &fixture{db: db, repo: repo, queue: queue, adapter: adapter, results: results, worker: w}
}

func (f *fixture) seedAndEnqueue(t *testing.T) *event.Event {
	t.Helper()
	ctx := context.Background()
	ev := &event.Event{
		Access: event.AccessPublic,
		DateID: testDateID,
		Title:  "Shrove Tuesday Pancake Supper",
		Time:   "5:30 PM",
		Post:   []event.Website{event.WebsitePatch},
	}
	require.NoError(t, f.repo.Create(ctx, ev))
	require.NoError(t, f.queue.Enqueue(ctx, event.WebsitePatch, publishing.Snapshot{
		Title:       ev.Title,
		Time:        ev.Time,
		Description: ev.Description,
		DateID:      ev.DateID,
	}))
	return ev
}

func TestProcessBatch_SuccessfulPublication(t *testing.T) {
	f := newFixture(t, "")
	f.seedAndEnqueue(t)
	ctx := context.Background()

	require.NoError(t, f.worker.ProcessBatch(ctx))

	// The pair landed in posted via exactly two conditioned writes.
	got, err := f.repo.Get(ctx, event.AccessPublic, testDateID)
	require.NoError(t, err)
	assert.Equal(t, event.StatusPosted, got.StatusOf(event.WebsitePatch))
	assert.Equal(t, int64(2), got.Version)

	// One submission reached the site.
	subs := f.adapter.Submissions()
	require.Len(t, subs, 1)
	assert.Equal(t, "Shrove Tuesday Pancake Supper", subs[0].Title)

	// Exactly one success result.
	results := f.results.all()
	require.Len(t, results, 1)
	assert.True(t, results[0].Success)
	assert.Equal(t, event.WebsitePatch, results[0].Website)
	assert.Empty(t, results[0].Reason)

	// The notification is done, not redelivered.
	again, err := f.queue.ClaimPending(ctx, event.WebsitePatch, 10)
	require.NoError(t, err)
	assert.Empty(t, again)
}

func TestProcessBatch_SiteFailureRollsBack(t *testing.T) {
	f := newFixture(t, "calendar rejected the date")
	f.seedAndEnqueue(t)
	ctx := context.Background()

	require.NoError(t, f.worker.ProcessBatch(ctx))

	// Claim then rollback: the pair is back in post, version moved twice.
	got, err := f.repo.Get(ctx, event.AccessPublic, testDateID)
	require.NoError(t, err)
	assert.Equal(t, event.StatusPost, got.StatusOf(event.WebsitePatch))
	assert.Equal(t, int64(2), got.Version)

	results := f.results.all()
	require.Len(t, results, 1)
	assert.False(t, results[0].Success)
	assert.Equal(t, "calendar rejected the date", results[0].Reason)
}

func TestProcessBatch_ClaimRejectedReportsFailure(t *testing.T) {
	f := newFixture(t, "")
	ev := f.seedAndEnqueue(t)
	ctx := context.Background()

	// Someone else already moved the pair to posted; the claim precondition
	// fails and the site is never called.
	require.NoError(t, ev.MoveTo(event.WebsitePatch, event.StatusPosted))
	require.NoError(t, f.repo.SaveConditioned(ctx, ev, 0))

	require.NoError(t, f.worker.ProcessBatch(ctx))

	assert.Empty(t, f.adapter.Submissions())

	results := f.results.all()
	require.Len(t, results, 1)
	assert.False(t, results[0].Success)
	assert.Contains(t, results[0].Reason, "claim failed")

	// The notification is completed, not left for redelivery; re-publication
	// happens only through a fresh enqueue.
	again, err := f.queue.ClaimPending(ctx, event.WebsitePatch, 10)
	require.NoError(t, err)
	assert.Empty(t, again)
}

// contendedRepo loses every conditioned write, as if another writer always
// bumps the version first.
type contendedRepo struct {
	event.Repository
}

func (contendedRepo) SaveConditioned(context.Context, *event.Event, int64) error {
	return event.ErrVersionConflict
}

func TestProcessBatch_ExhaustedClaimStillReportsResult(t *testing.T) {
	f := newFixture(t, "")
	f.seedAndEnqueue(t)
	ctx := context.Background()

	contended := transition.NewService(contendedRepo{f.repo}, transition.Config{
		MaxAttempts:     2,
		InitialInterval: time.Millisecond,
		MaxInterval:     time.Millisecond,
	}, zap.NewNop())
	w := worker.New(f.adapter, f.queue, contended,
		&worker.ResultPublisher{Publish: f.results.publish},
		worker.Config{PollInterval: time.Second, BatchSize: 5, BatchBudget: 10 * time.Second},
		zap.NewNop())

	require.NoError(t, w.ProcessBatch(ctx))

	// The site was never called, but the attempt still produced a failure
	// result.
	assert.Empty(t, f.adapter.Submissions())
	results := f.results.all()
	require.Len(t, results, 1)
	assert.False(t, results[0].Success)
	assert.Contains(t, results[0].Reason, "gave up")

	// The notification is parked for redelivery, not completed.
	var stored outbox.Notification
	require.NoError(t, f.db.WithContext(ctx).First(&stored).Error)
	assert.Equal(t, outbox.StatusFailed, stored.Status)
	require.NotNil(t, stored.NextAttemptAt)

	// The event row itself was never mutated.
	got, err := f.repo.Get(ctx, event.AccessPublic, testDateID)
	require.NoError(t, err)
	assert.Equal(t, event.StatusPost, got.StatusOf(event.WebsitePatch))
	assert.Equal(t, int64(0), got.Version)
}

func TestProcessBatch_EmptyQueueIsQuiet(t *testing.T) {
	f := newFixture(t, "")
	require.NoError(t, f.worker.ProcessBatch(context.Background()))
	assert.Empty(t, f.adapter.Submissions())
	assert.Empty(t, f.results.all())
}

func TestProcessBatch_OneFailureDoesNotAbortBatch(t *testing.T) {
	f := newFixture(t, "")
	ctx := context.Background()

	first := f.seedAndEnqueue(t)

	second := &event.Event{
		Access: event.AccessPublic,
		DateID: "2099-07-01#3d6a1e46-52f0-4d6b-b42f-0a3a64a2d222",
		Title:  "Vestry Meeting",
		Post:   []event.Website{event.WebsitePatch},
	}
	require.NoError(t, f.repo.Create(ctx, second))
	require.NoError(t, f.queue.Enqueue(ctx, event.WebsitePatch, publishing.Snapshot{
		Title:  second.Title,
		DateID: second.DateID,
	}))

	// Break the first pair's claim precondition only.
	require.NoError(t, first.MoveTo(event.WebsitePatch, event.StatusPosted))
	require.NoError(t, f.repo.SaveConditioned(ctx, first, 0))

	require.NoError(t, f.worker.ProcessBatch(ctx))

	got, err := f.repo.Get(ctx, event.AccessPublic, second.DateID)
	require.NoError(t, err)
	assert.Equal(t, event.StatusPosted, got.StatusOf(event.WebsitePatch))

	results := f.results.all()
	require.Len(t, results, 2)
}

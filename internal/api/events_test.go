package api_test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/PhillipSMartin/StJames/internal/adapter/repository/postgres"
	"github.com/PhillipSMartin/StJames/internal/api"
	"github.com/PhillipSMartin/StJames/internal/config"
	"github.com/PhillipSMartin/StJames/internal/domain/event"
	"github.com/PhillipSMartin/StJames/internal/transition"
	"github.com/PhillipSMartin/StJames/pkg/testhelper"
)

const testDateID = "2099-06-01#3d6a1e46-52f0-4d6b-b42f-0a3a64a2d111"

func newTestRouter(t *testing.T) (*api.Router, *postgres.Repository) {
	t.Helper()
	db := testhelper.OpenSQLite(t, &postgres.EventModel{})
	repo := postgres.NewRepository(db)
	transitions := transition.NewService(repo, transition.Config{
		MaxAttempts:     10,
		InitialInterval: time.Millisecond,
		MaxInterval:     5 * time.Millisecond,
	}, zap.NewNop())
	cfg := &config.Config{Port: "0", ListPageSize: 50}
	return api.NewRouter(cfg, repo, transitions, zap.NewNop()), repo
}

// eventPath escapes the '#' in date_id so it is not parsed as a URL fragment.
func eventPath(access, dateID string) string {
	return "/events/" + access + "/" + url.PathEscape(dateID)
}

func doJSON(t *testing.T, router *api.Router, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.Engine().ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func TestHealth(t *testing.T) {
	router, _ := newTestRouter(t)
	rec := doJSON(t, router, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestCreateEvent_WithDateID(t *testing.T) {
	router, repo := newTestRouter(t)

	rec := doJSON(t, router, http.MethodPost, "/events", map[string]any{
		"access":  "public",
		"date_id": testDateID,
		"title":   "Blessing of the Animals",
		"time":    "10:00 AM",
		"post":    []string{"patch", "moms"},
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	body := decodeBody(t, rec)
	assert.Equal(t, "Created", body["message"])
	assert.Equal(t, "/events/public/"+testDateID, body["location"])
	assert.Equal(t, "/events/public/"+testDateID, rec.Header().Get("Location"))

	stored, err := repo.Get(t.Context(), event.AccessPublic, testDateID)
	require.NoError(t, err)
	assert.Equal(t, "Blessing of the Animals", stored.Title)
	assert.Equal(t, []event.Website{event.WebsitePatch, event.WebsiteMoms}, stored.Post)
}

func TestCreateEvent_GeneratesDateID(t *testing.T) {
	router, _ := newTestRouter(t)

	rec := doJSON(t, router, http.MethodPost, "/events", map[string]any{
		"access": "public",
		"date":   "2099-06-01",
		"title":  "Evensong",
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	body := decodeBody(t, rec)
	item := body["item"].(map[string]any)
	dateID := item["date_id"].(string)
	assert.True(t, event.ValidDateID(dateID))
	assert.Contains(t, dateID, "2099-06-01#")
}

func TestCreateEvent_Validation(t *testing.T) {
	router, _ := newTestRouter(t)

	tests := []struct {
		name string
		body map[string]any
		want int
	}{
		{
			name: "bad access",
			body: map[string]any{"access": "secret", "date": "2099-06-01"},
			want: http.StatusUnprocessableEntity,
		},
		{
			name: "missing date and date_id",
			body: map[string]any{"access": "public", "title": "No date"},
			want: http.StatusUnprocessableEntity,
		},
		{
			name: "malformed date",
			body: map[string]any{"access": "public", "date": "June 1st"},
			want: http.StatusUnprocessableEntity,
		},
		{
			name: "malformed date_id",
			body: map[string]any{"access": "public", "date_id": "2099-06-01"},
			want: http.StatusUnprocessableEntity,
		},
		{
			name: "unknown website in bucket",
			body: map[string]any{"access": "public", "date": "2099-06-01", "post": []string{"nextdoor"}},
			want: http.StatusUnprocessableEntity,
		},
		{
			name: "website in two buckets",
			body: map[string]any{
				"access": "public", "date": "2099-06-01",
				"post": []string{"patch"}, "posted": []string{"patch"},
			},
			want: http.StatusUnprocessableEntity,
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rec := doJSON(t, router, http.MethodPost, "/events", tc.body)
			assert.Equal(t, tc.want, rec.Code)
		})
	}
}

func TestCreateEvent_Duplicate(t *testing.T) {
	router, _ := newTestRouter(t)
	body := map[string]any{"access": "public", "date_id": testDateID, "title": "First"}

	rec := doJSON(t, router, http.MethodPost, "/events", body)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = doJSON(t, router, http.MethodPost, "/events", body)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "Item already exists", decodeBody(t, rec)["message"])
}

func TestGetEvent(t *testing.T) {
	router, _ := newTestRouter(t)
	rec := doJSON(t, router, http.MethodPost, "/events", map[string]any{
		"access": "public", "date_id": testDateID, "title": "Harvest Fair",
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = doJSON(t, router, http.MethodGet, eventPath("public", testDateID), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	item := decodeBody(t, rec)["item"].(map[string]any)
	assert.Equal(t, "Harvest Fair", item["title"])
	// Buckets render as empty arrays, never null.
	assert.Equal(t, []any{}, item["post"])
}

func TestGetEvent_NotFound(t *testing.T) {
	router, _ := newTestRouter(t)
	rec := doJSON(t, router, http.MethodGet, eventPath("public", testDateID), nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestListEvents(t *testing.T) {
	router, _ := newTestRouter(t)
	for i := 1; i <= 3; i++ {
		rec := doJSON(t, router, http.MethodPost, "/events", map[string]any{
			"access":  "public",
			"date_id": fmt.Sprintf("2099-06-0%d#3d6a1e46-52f0-4d6b-b42f-0a3a64a2d11%d", i, i),
			"title":   fmt.Sprintf("Event %d", i),
		})
		require.Equal(t, http.StatusCreated, rec.Code)
	}

	rec := doJSON(t, router, http.MethodGet, "/events/public?limit=2", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	items := decodeBody(t, rec)["items"].([]any)
	require.Len(t, items, 2)
	// Newest first.
	assert.Equal(t, "Event 3", items[0].(map[string]any)["title"])
}

func TestListEvents_BadLimit(t *testing.T) {
	router, _ := newTestRouter(t)
	rec := doJSON(t, router, http.MethodGet, "/events/public?limit=zero", nil)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestUpdateEvent_PartialMerge(t *testing.T) {
	router, repo := newTestRouter(t)
	rec := doJSON(t, router, http.MethodPost, "/events", map[string]any{
		"access": "public", "date_id": testDateID,
		"title": "Before", "time": "9:00 AM", "post": []string{"patch"},
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = doJSON(t, router, http.MethodPut, eventPath("public", testDateID), map[string]any{
		"title": "After",
	})
	require.Equal(t, http.StatusOK, rec.Code)

	stored, err := repo.Get(t.Context(), event.AccessPublic, testDateID)
	require.NoError(t, err)
	assert.Equal(t, "After", stored.Title)
	// Untouched fields survive the merge.
	assert.Equal(t, "9:00 AM", stored.Time)
	assert.Equal(t, []event.Website{event.WebsitePatch}, stored.Post)
	assert.Equal(t, int64(1), stored.Version)
}

func TestUpdateEvent_BucketValidation(t *testing.T) {
	router, _ := newTestRouter(t)
	rec := doJSON(t, router, http.MethodPost, "/events", map[string]any{
		"access": "public", "date_id": testDateID, "post": []string{"patch"},
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = doJSON(t, router, http.MethodPut, eventPath("public", testDateID), map[string]any{
		"posting": []string{"patch"},
	})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestUpdateEvent_NotFound(t *testing.T) {
	router, _ := newTestRouter(t)
	rec := doJSON(t, router, http.MethodPut, eventPath("public", testDateID), map[string]any{
		"title": "Ghost",
	})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDeleteEvent(t *testing.T) {
	router, _ := newTestRouter(t)
	rec := doJSON(t, router, http.MethodPost, "/events", map[string]any{
		"access": "public", "date_id": testDateID,
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = doJSON(t, router, http.MethodDelete, eventPath("public", testDateID), nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, router, http.MethodDelete, eventPath("public", testDateID), nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestEventKey_RejectsMalformedParams(t *testing.T) {
	router, _ := newTestRouter(t)

	rec := doJSON(t, router, http.MethodGet, eventPath("secret", testDateID), nil)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = doJSON(t, router, http.MethodGet, "/events/public/not-a-date-id", nil)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

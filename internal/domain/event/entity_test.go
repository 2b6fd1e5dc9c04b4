package event

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDateID(t *testing.T) {
	dateID, err := NewDateID("2025-06-01")
	require.NoError(t, err)
	assert.True(t, ValidDateID(dateID))
	assert.True(t, strings.HasPrefix(dateID, "2025-06-01#"))
}

func TestNewDateID_RejectsMalformedDates(t *testing.T) {
	for _, date := range []string{"", "2025-6-1", "06/01/2025", "2025-13-01", "not-a-date"} {
		_, err := NewDateID(date)
		assert.Error(t, err, "date %q", date)

		var validationErr *ValidationError
		assert.ErrorAs(t, err, &validationErr)
	}
}

func TestStatusOf(t *testing.T) {
	ev := &Event{
		Post:    []Website{WebsitePatch},
		Posting: []Website{WebsiteMoms},
		Posted:  []Website{WebsiteSojourner},
	}

	assert.Equal(t, StatusPost, ev.StatusOf(WebsitePatch))
	assert.Equal(t, StatusPosting, ev.StatusOf(WebsiteMoms))
	assert.Equal(t, StatusPosted, ev.StatusOf(WebsiteSojourner))
	assert.Equal(t, StatusUnknown, ev.StatusOf(WebsiteTest))
}

func TestMoveTo_UpholdsDisjointness(t *testing.T) {
	ev := &Event{Post: []Website{WebsitePatch, WebsiteMoms}}

	require.NoError(t, ev.MoveTo(WebsitePatch, StatusPosting))
	assert.Equal(t, []Website{WebsiteMoms}, ev.Post)
	assert.Equal(t, []Website{WebsitePatch}, ev.Posting)
	assert.Empty(t, ev.Posted)
	require.NoError(t, ev.ValidateBuckets())

	require.NoError(t, ev.MoveTo(WebsitePatch, StatusPosted))
	assert.Equal(t, []Website{WebsiteMoms}, ev.Post)
	assert.Empty(t, ev.Posting)
	assert.Equal(t, []Website{WebsitePatch}, ev.Posted)
	require.NoError(t, ev.ValidateBuckets())
}

func TestMoveTo_RejectsUnknownStatus(t *testing.T) {
	ev := &Event{Post: []Website{WebsitePatch}}
	assert.Error(t, ev.MoveTo(WebsitePatch, Status("published")))
}

func TestValidateBuckets(t *testing.T) {
	tests := []struct {
		name    string
		post    []Website
		posting []Website
		posted  []Website
		wantErr string
	}{
		{
			name: "all empty",
		},
		{
			name:    "disjoint membership",
			post:    []Website{WebsitePatch},
			posting: []Website{WebsiteMoms},
			posted:  []Website{WebsiteSojourner, WebsiteTest},
		},
		{
			name:    "unknown website",
			post:    []Website{Website("craigslist")},
			wantErr: "invalid value",
		},
		{
			name:    "overlap across buckets",
			post:    []Website{WebsitePatch},
			posting: []Website{WebsitePatch},
			wantErr: "more than one",
		},
		{
			name:    "duplicate within one bucket",
			post:    []Website{WebsitePatch, WebsitePatch},
			wantErr: "more than once",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateBuckets(tt.post, tt.posting, tt.posted)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

package event

import (
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/google/uuid"
)

// AccessScope partitions events; only public events are ever published externally.
type AccessScope string

const (
	AccessPublic  AccessScope = "public"
	AccessPrivate AccessScope = "private"
)

// Website identifies one external calendar/listing destination.
type Website string

const (
	WebsiteMoms      Website = "moms"
	WebsiteSojourner Website = "sojourner"
	WebsitePatch     Website = "patch"
	WebsiteTest      Website = "test"
)

// AllWebsites is the fixed destination enumeration; bucket membership is
// validated against it.
func AllWebsites() []Website {
	return []Website{WebsiteMoms, WebsiteSojourner, WebsitePatch, WebsiteTest}
}

// Status is the per-(event, website) lifecycle stage, derived from bucket
// membership rather than stored on its own.
type Status string

const (
	StatusPost    Status = "post"
	StatusPosting Status = "posting"
	StatusPosted  Status = "posted"

	// StatusUnknown means the website appears in no bucket. It is a caller
	// error state, never silently defaulted.
	StatusUnknown Status = ""
)

var (
	ErrNotFound        = errors.New("event not found")
	ErrConflict        = errors.New("event already exists")
	ErrVersionConflict = errors.New("event version conflict")
)

// ValidationError reports a malformed or disallowed field. It maps to 422 at
// the API surface.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string { return e.Reason }

func validationf(format string, args ...any) error {
	return &ValidationError{Reason: fmt.Sprintf(format, args...)}
}

var (
	dateRE   = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)
	dateIDRE = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}#[0-9a-fA-F-]{36}$`)
)

// NewDateID builds a date-ordered composite key "YYYY-MM-DD#<uuid>" from a
// bare date, generating the uuid suffix server-side.
func NewDateID(date string) (string, error) {
	if !dateRE.MatchString(date) {
		return "", validationf("date must match 'YYYY-MM-DD'")
	}
	if _, err := time.Parse("2006-01-02", date); err != nil {
		return "", validationf("date %q is not a calendar date", date)
	}
	return fmt.Sprintf("%s#%s", date, uuid.New()), nil
}

// ValidDateID reports whether s has the "YYYY-MM-DD#<guid>" shape.
func ValidDateID(s string) bool {
	return dateIDRE.MatchString(s)
}

// ValidAccess reports whether s is a member of the access enumeration.
func ValidAccess(s string) bool {
	return s == string(AccessPublic) || s == string(AccessPrivate)
}

// Event is the unit of publication. The three bucket slices record which
// destination websites are at which lifecycle stage; a website appears in at
// most one bucket at any time. Version guards every status write.
type Event struct {
	Access      AccessScope
	DateID      string
	Title       string
	Time        string
	Description string

	Post    []Website
	Posting []Website
	Posted  []Website

	Version int64

	CreatedAt time.Time
	UpdatedAt time.Time
}

// StatusOf scans the three buckets for website.
func (e *Event) StatusOf(website Website) Status {
	if containsWebsite(e.Post, website) {
		return StatusPost
	}
	if containsWebsite(e.Posting, website) {
		return StatusPosting
	}
	if containsWebsite(e.Posted, website) {
		return StatusPosted
	}
	return StatusUnknown
}

// MoveTo removes website from every bucket and appends it to the bucket named
// by status, upholding disjointness.
func (e *Event) MoveTo(website Website, status Status) error {
	switch status {
	case StatusPost, StatusPosting, StatusPosted:
	default:
		return validationf("status must be one of post/posting/posted")
	}

	e.Post = removeWebsite(e.Post, website)
	e.Posting = removeWebsite(e.Posting, website)
	e.Posted = removeWebsite(e.Posted, website)

	switch status {
	case StatusPost:
		e.Post = append(e.Post, website)
	case StatusPosting:
		e.Posting = append(e.Posting, website)
	case StatusPosted:
		e.Posted = append(e.Posted, website)
	}
	return nil
}

// ValidateBuckets checks that every bucket member is a known website and that
// no website appears in more than one bucket.
func (e *Event) ValidateBuckets() error {
	return ValidateBuckets(e.Post, e.Posting, e.Posted)
}

func ValidateBuckets(post, posting, posted []Website) error {
	seen := make(map[Website]string)
	buckets := []struct {
		name    string
		members []Website
	}{
		{"post", post},
		{"posting", posting},
		{"posted", posted},
	}
	for _, b := range buckets {
		for _, w := range b.members {
			if !knownWebsite(w) {
				return validationf("%s contains invalid value %q", b.name, w)
			}
			if prev, ok := seen[w]; ok {
				if prev == b.name {
					return validationf("%s lists %q more than once", b.name, w)
				}
				return validationf("%q may not appear in more than one of post/posting/posted", w)
			}
			seen[w] = b.name
		}
	}
	return nil
}

func knownWebsite(w Website) bool {
	for _, known := range AllWebsites() {
		if w == known {
			return true
		}
	}
	return false
}

func containsWebsite(list []Website, w Website) bool {
	for _, v := range list {
		if v == w {
			return true
		}
	}
	return false
}

func removeWebsite(list []Website, w Website) []Website {
	out := list[:0]
	for _, v := range list {
		if v != w {
			out = append(out, v)
		}
	}
	return out
}

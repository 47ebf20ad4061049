package audit

import (
	"errors"
	"time"

	"github.com/fieldforce/fieldforce/internal/shared"
)

// ErrStoreNotConfigured is returned when the service has no backing store.
var ErrStoreNotConfigured = errors.New("audit: store not configured")

// Entry is an immutable audit record.
type Entry struct {
	ID             string         `json:"id"`
	Action         string         `json:"action"`
	Resource       string         `json:"resource"`
	ResourceID     string         `json:"resourceId,omitempty"`
	UserID         string         `json:"userId,omitempty"`
	OrganizationID string         `json:"organizationId,omitempty"`
	Details        map[string]any `json:"details,omitempty"`
	IPAddress      string         `json:"ipAddress,omitempty"`
	UserAgent      string         `json:"userAgent,omitempty"`
	CreatedAt      time.Time      `json:"createdAt"`
}

// By attributes the entry to actor unless it already names a user.
func (e Entry) By(actor *shared.Session) Entry {
	if actor == nil {
		return e
	}
	if e.UserID == "" {
		e.UserID = actor.UserID
	}
	if e.OrganizationID == "" {
		e.OrganizationID = actor.OrganizationID
	}
	return e
}

// Filters narrows an audit query. Zero values mean "any". The date range is inclusive.
type Filters struct {
	UserID         string
	OrganizationID string
	Action         string
	Resource       string
	ResourceID     string
	StartDate      time.Time
	EndDate        time.Time
	Limit          int
	Offset         int
}

// Page is one window of audit entries, newest first.
type Page struct {
	Logs       []Entry           `json:"logs"`
	Pagination shared.Pagination `json:"pagination"`
}

// Match reports whether e satisfies f, ignoring pagination.
func (f Filters) Match(e Entry) bool {
	if f.UserID != "" && e.UserID != f.UserID {
		return false
	}
	if f.OrganizationID != "" && e.OrganizationID != f.OrganizationID {
		return false
	}
	if f.Action != "" && e.Action != f.Action {
		return false
	}
	if f.Resource != "" && e.Resource != f.Resource {
		return false
	}
	if f.ResourceID != "" && e.ResourceID != f.ResourceID {
		return false
	}
	if !f.StartDate.IsZero() && e.CreatedAt.Before(f.StartDate) {
		return false
	}
	if !f.EndDate.IsZero() && e.CreatedAt.After(f.EndDate) {
		return false
	}
	return true
}

// Package bookings holds scheduled engagements and their lifecycle.
package bookings

import (
	"errors"
	"slices"
	"strings"
	"time"
)

// Status is a booking's lifecycle state.
type Status string

const (
	StatusDraft     Status = "draft"
	StatusPending   Status = "pending"
	StatusApproved  Status = "approved"
	StatusRejected  Status = "rejected"
	StatusCanceled  Status = "canceled"
	StatusCompleted Status = "completed"
)

// ParseStatus maps a stored or requested status onto the enum.
func ParseStatus(raw string) (Status, bool) {
	s := Status(strings.ToLower(strings.TrimSpace(raw)))
	switch s {
	case StatusDraft, StatusPending, StatusApproved, StatusRejected, StatusCanceled, StatusCompleted:
		return s, true
	case "cancelled":
		return StatusCanceled, true
	}
	return "", false
}

// sources lists the states each target may be entered from.
var sources = map[Status][]Status{
	StatusPending:   {StatusDraft},
	StatusApproved:  {StatusPending},
	StatusRejected:  {StatusDraft, StatusPending},
	StatusCanceled:  {StatusDraft, StatusPending, StatusApproved},
	StatusCompleted: {StatusApproved},
}

// CanTransition reports whether from -> to is a legal move.
func CanTransition(from, to Status) bool {
	return slices.Contains(sources[to], from)
}

// ErrStaleStatus is returned by conditional writes that found the row in an unexpected state.
var ErrStaleStatus = errors.New("bookings: status changed")

// Booking is a scheduled engagement at a location for a client organization.
type Booking struct {
	ID              string     `json:"id"`
	OrganizationID  string     `json:"organizationId"`
	LocationID      string     `json:"locationId"`
	Title           string     `json:"title"`
	Notes           string     `json:"notes,omitempty"`
	StartsAt        time.Time  `json:"startsAt"`
	EndsAt          time.Time  `json:"endsAt"`
	Status          Status     `json:"status"`
	RequestedByID   string     `json:"requestedById,omitempty"`
	ApprovedByID    string     `json:"approvedById,omitempty"`
	ApprovedAt      *time.Time `json:"approvedAt,omitempty"`
	RejectedByID    string     `json:"rejectedById,omitempty"`
	RejectedAt      *time.Time `json:"rejectedAt,omitempty"`
	RejectionReason string     `json:"rejectionReason,omitempty"`
	CanceledByID    string     `json:"canceledById,omitempty"`
	CanceledAt      *time.Time `json:"canceledAt,omitempty"`
	CompletedAt     *time.Time `json:"completedAt,omitempty"`
	CreatedAt       time.Time  `json:"createdAt"`
	UpdatedAt       time.Time  `json:"updatedAt"`
}

// Change is a conditional status write.
type Change struct {
	To      Status
	ActorID string
	At      time.Time
	Reason  string
}

// ListFilters narrows booking listings.
type ListFilters struct {
	OrganizationID string
	LocationID     string
	Status         Status
	From           time.Time
	To             time.Time
	Limit          int
	Offset         int
}

// CreateInput is the request body for a new booking.
type CreateInput struct {
	OrganizationID string    `json:"organizationId"`
	LocationID     string    `json:"locationId" validate:"required"`
	Title          string    `json:"title" validate:"required,max=200"`
	Notes          string    `json:"notes" validate:"max=2000"`
	StartsAt       time.Time `json:"startsAt" validate:"required"`
	EndsAt         time.Time `json:"endsAt" validate:"required"`
	Submit         bool      `json:"submit"`
}

const (
	defaultListLimit = 50
	maxListLimit     = 200
	maxReasonLen     = 1000
)

// Package locations holds the location catalogue and its approval workflow.
package locations

import (
	"errors"
	"strings"
	"time"
)

// Status is a location's position in the approval workflow.
type Status string

const (
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusRejected Status = "rejected"

	// statusLegacyActive is an older spelling of approved still present in stored rows.
	statusLegacyActive Status = "active"
)

// ParseStatus normalises a stored or requested status. The legacy "active" reads as approved.
func ParseStatus(raw string) (Status, bool) {
	switch Status(strings.ToLower(strings.TrimSpace(raw))) {
	case StatusPending:
		return StatusPending, true
	case StatusApproved, statusLegacyActive:
		return StatusApproved, true
	case StatusRejected:
		return StatusRejected, true
	}
	return "", false
}

// ErrNotPending is returned by conditional writes that found the row outside pending.
var ErrNotPending = errors.New("locations: not pending")

// Location is a venue where bookings take place.
type Location struct {
	ID               string     `json:"id"`
	Name             string     `json:"name"`
	Address1         string     `json:"address1"`
	Address2         string     `json:"address2,omitempty"`
	City             string     `json:"city"`
	StateID          string     `json:"stateId"`
	PostalCode       string     `json:"postalCode,omitempty"`
	Country          string     `json:"country"`
	Latitude         *float64   `json:"latitude,omitempty"`
	Longitude        *float64   `json:"longitude,omitempty"`
	PlaceID          string     `json:"placeId,omitempty"`
	FormattedAddress string     `json:"formattedAddress,omitempty"`
	GeocodedAt       *time.Time `json:"geocodedAt,omitempty"`
	BrandID          string     `json:"brandId,omitempty"`
	Status           Status     `json:"status"`
	RequestedByID    string     `json:"requestedById,omitempty"`
	ApprovedByID     string     `json:"approvedById,omitempty"`
	ApprovedAt       *time.Time `json:"approvedAt,omitempty"`
	RejectedByID     string     `json:"rejectedById,omitempty"`
	RejectedAt       *time.Time `json:"rejectedAt,omitempty"`
	RejectionReason  string     `json:"rejectionReason,omitempty"`
	SearchText       string     `json:"-"`
	CreatedAt        time.Time  `json:"createdAt"`
	UpdatedAt        time.Time  `json:"updatedAt"`
}

// Decision is a conditional pending -> approved|rejected write.
type Decision struct {
	To         Status
	ReviewerID string
	At         time.Time
	Reason     string
}

// ListFilters narrows reviewer listings.
type ListFilters struct {
	Status  Status
	BrandID string
	Limit   int
	Offset  int
}

// ApprovedFilters narrows the approved catalogue. Search is matched against the folded search text.
type ApprovedFilters struct {
	ExcludeBrandID string
	StateID        string
	Search         string
}

// SubmitInput is the request body for a new location.
type SubmitInput struct {
	Name       string   `json:"name" validate:"required,max=200"`
	Address1   string   `json:"address1" validate:"required,max=200"`
	Address2   string   `json:"address2" validate:"max=200"`
	City       string   `json:"city" validate:"required,max=100"`
	StateID    string   `json:"stateId" validate:"required,max=10"`
	PostalCode string   `json:"postalCode" validate:"max=20"`
	Country    string   `json:"country" validate:"max=2"`
	BrandID    string   `json:"brandId"`
	Latitude   *float64 `json:"latitude" validate:"omitempty,latitude"`
	Longitude  *float64 `json:"longitude" validate:"omitempty,longitude"`
}

func (in SubmitInput) address() string {
	parts := []string{in.Address1, in.Address2, in.City, in.StateID, in.PostalCode, in.Country}
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return strings.Join(out, ", ")
}

const (
	defaultListLimit = 50
	maxListLimit     = 200
	maxReasonLen     = 1000
)

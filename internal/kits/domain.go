// Package kits tracks equipment kit templates and the physical instances assigned to bookings.
package kits

import (
	"errors"
	"time"
)

// Status is a kit instance's availability.
type Status string

const (
	StatusAvailable Status = "available"
	StatusAssigned  Status = "assigned"
	StatusRetired   Status = "retired"
)

// ParseStatus maps a requested status onto the enum.
func ParseStatus(raw string) (Status, bool) {
	switch s := Status(raw); s {
	case StatusAvailable, StatusAssigned, StatusRetired:
		return s, true
	}
	return "", false
}

// ErrStatusChanged is returned when a conditional write finds the instance in another state.
var ErrStatusChanged = errors.New("kits: status changed")

// Item is one line of a template's packing list.
type Item struct {
	Name     string `json:"name" validate:"required,max=200"`
	Quantity int    `json:"quantity" validate:"min=1"`
}

// Template describes what a kit contains. A template without an organization is shared.
type Template struct {
	ID             string    `json:"id"`
	OrganizationID string    `json:"organizationId,omitempty"`
	Name           string    `json:"name"`
	Description    string    `json:"description,omitempty"`
	Items          []Item    `json:"items"`
	Active         bool      `json:"active"`
	CreatedAt      time.Time `json:"createdAt"`
}

// Instance is a physical kit.
type Instance struct {
	ID           string     `json:"id"`
	TemplateID   string     `json:"templateId"`
	SerialNumber string     `json:"serialNumber"`
	Status       Status     `json:"status"`
	BookingID    string     `json:"bookingId,omitempty"`
	AssignedAt   *time.Time `json:"assignedAt,omitempty"`
	CreatedAt    time.Time  `json:"createdAt"`
	UpdatedAt    time.Time  `json:"updatedAt"`
}

// TemplateInput is the request body for a new template.
type TemplateInput struct {
	OrganizationID string `json:"organizationId"`
	Name           string `json:"name" validate:"required,max=200"`
	Description    string `json:"description" validate:"max=2000"`
	Items          []Item `json:"items" validate:"required,min=1,dive"`
}

// InstanceInput is the request body for a new instance.
type InstanceInput struct {
	TemplateID   string `json:"templateId" validate:"required"`
	SerialNumber string `json:"serialNumber" validate:"required,max=100"`
}

// InstanceFilters narrows instance listings. OrganizationID limits results to that organization's
// templates plus shared ones.
type InstanceFilters struct {
	TemplateID     string
	BookingID      string
	Status         Status
	OrganizationID string
}

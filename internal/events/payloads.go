package events

// LocationDecision is the payload of location approval events.
type LocationDecision struct {
	LocationID    string `json:"locationId"`
	Name          string `json:"name"`
	Status        string `json:"status"`
	BrandID       string `json:"brandId,omitempty"`
	RequestedByID string `json:"requestedById,omitempty"`
	ReviewerID    string `json:"reviewerId,omitempty"`
	Reason        string `json:"reason,omitempty"`
}

// BookingDecision is the payload of booking lifecycle events.
type BookingDecision struct {
	BookingID      string `json:"bookingId"`
	OrganizationID string `json:"organizationId"`
	LocationID     string `json:"locationId"`
	Title          string `json:"title"`
	Status         string `json:"status"`
	PreviousStatus string `json:"previousStatus,omitempty"`
	RequestedByID  string `json:"requestedById,omitempty"`
	ActorID        string `json:"actorId,omitempty"`
	Reason         string `json:"reason,omitempty"`
}

// KitMovement is the payload of kit assignment events.
type KitMovement struct {
	InstanceID   string `json:"instanceId"`
	TemplateID   string `json:"templateId"`
	SerialNumber string `json:"serialNumber"`
	BookingID    string `json:"bookingId,omitempty"`
	ActorID      string `json:"actorId,omitempty"`
}

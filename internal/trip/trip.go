package trip

import (
	"context"
)

// Status tracks the lifecycle of a saved trip. Nothing in the planner core
// moves a trip past Planned; later transitions belong to the owning app.
type Status string

const (
	StatusPlanned   Status = "planned"
	StatusBooked    Status = "booked"
	StatusCompleted Status = "completed"
)

// Trip is a persisted, immutable travel plan.
type Trip struct {
	ID            string  `json:"id"`
	Destination   string  `json:"destination"`
	StartDate     string  `json:"startDate"` // ISO date or "TBD"
	EndDate       string  `json:"endDate"`   // ISO date or "TBD"
	EstimatedCost float64 `json:"estimatedCost"`
	EstimatedCo2  float64 `json:"estimatedCo2"` // kg
	Status        Status  `json:"status"`
	Notes         string  `json:"notes"`
	TransportMode string  `json:"transportMode,omitempty"`
}

// Proposal is a partially filled trip, produced either by the extractor or by
// the user selecting a recommendation card. Advisory until accepted.
type Proposal struct {
	Destination   string  `json:"destination"`
	StartDate     string  `json:"startDate,omitempty"`
	EndDate       string  `json:"endDate,omitempty"`
	EstimatedCost float64 `json:"estimatedCost"`
	EstimatedCo2  float64 `json:"estimatedCo2"`
	TransportMode string  `json:"transportMode,omitempty"`
	Notes         string  `json:"notes,omitempty"`
}

// FromProposal materialises an accepted proposal into a Trip. Missing dates
// default to "TBD"; the destination falls back to "Unknown". Numeric fields
// keep their zero values when the proposal left them unset.
func FromProposal(p Proposal, id string) Trip {
	t := Trip{
		ID:            id,
		Destination:   p.Destination,
		StartDate:     p.StartDate,
		EndDate:       p.EndDate,
		EstimatedCost: p.EstimatedCost,
		EstimatedCo2:  p.EstimatedCo2,
		Status:        StatusPlanned,
		Notes:         p.Notes,
		TransportMode: p.TransportMode,
	}
	if t.Destination == "" {
		t.Destination = "Unknown"
	}
	if t.StartDate == "" {
		t.StartDate = "TBD"
	}
	if t.EndDate == "" {
		t.EndDate = "TBD"
	}
	return t
}

// UserSettings parametrises the assistant: annual limits feed the system
// instruction, the SerpApi key gates the flight/hotel search tools. Read-only
// from the core's perspective.
type UserSettings struct {
	AnnualBudget   float64 `json:"annualBudget"`
	AnnualCo2Limit float64 `json:"annualCo2Limit"` // kg
	HasOnboarded   bool    `json:"hasOnboarded"`
	SerpAPIKey     string  `json:"serpApiKey,omitempty"`
}

// SpentBudget sums the estimated cost of the given trips.
func SpentBudget(trips []Trip) float64 {
	var total float64
	for _, t := range trips {
		total += t.EstimatedCost
	}
	return total
}

// SpentCo2 sums the estimated CO2 of the given trips in kg.
func SpentCo2(trips []Trip) float64 {
	var total float64
	for _, t := range trips {
		total += t.EstimatedCo2
	}
	return total
}

// Recommendation is a card-style travel option produced by the model through
// the displayRecommendations tool. Immutable once attached to a message.
type Recommendation struct {
	Title              string  `json:"title"`
	Destination        string  `json:"destination"`
	Description        string  `json:"description"`
	TotalCost          float64 `json:"totalCost"`
	Co2Kg              float64 `json:"co2Kg"`
	TransportMode      string  `json:"transportMode"`
	ImageKeyword       string  `json:"imageKeyword"`
	FlightPrice        float64 `json:"flightPrice,omitempty"`
	AccommodationPrice float64 `json:"accommodationPrice,omitempty"`
	FlightLink         string  `json:"flightLink,omitempty"`
	AccommodationLink  string  `json:"accommodationLink,omitempty"`
	AccommodationType  string  `json:"accommodationType,omitempty"`
}

// Repository persists trips and settings. The conversation core only reads
// through it at construction time; writes happen in the surrounding app.
type Repository interface {
	ListTrips(ctx context.Context) ([]Trip, error)
	AddTrip(ctx context.Context, t Trip) error
	LoadSettings(ctx context.Context) (UserSettings, error)
	SaveSettings(ctx context.Context, s UserSettings) error
}

// DefaultSettings are applied on first run, before onboarding.
func DefaultSettings() UserSettings {
	return UserSettings{
		AnnualBudget:   5000,
		AnnualCo2Limit: 2000,
	}
}

package model

import (
	"time"

	"github.com/ecotravel/server/internal/trip"
)

// Role identifies who produced a chat message.
type Role string

const (
	RoleUser  Role = "user"
	RoleModel Role = "model"
)

// Message is one entry in the visible conversation. Messages are append-only;
// the only mutation allowed is appending streamed text to the newest model
// message while a turn is in flight.
type Message struct {
	ID              string                `json:"id"`
	Role            Role                  `json:"role"`
	Text            string                `json:"text"`
	Timestamp       time.Time             `json:"timestamp"`
	Recommendations []trip.Recommendation `json:"recommendations,omitempty"`
	// IsSystemAction marks synthetic confirmations (widget submissions)
	// that were not typed by the user.
	IsSystemAction bool `json:"isSystemAction,omitempty"`
}

// GroundingSource is a web citation attached to the most recent model turn.
type GroundingSource struct {
	Title string `json:"title"`
	URI   string `json:"uri"`
}

// WidgetKind enumerates the UI widgets a tool call can open.
type WidgetKind string

const (
	WidgetNone        WidgetKind = ""
	WidgetPersonCount WidgetKind = "personCount"
	WidgetTripDetails WidgetKind = "tripDetails"
)

// PendingToolCall tracks the single tool call whose result is still owed to
// the chat session. At most one exists at any time.
type PendingToolCall struct {
	Name   string `json:"name"`
	CallID string `json:"callId"`
}

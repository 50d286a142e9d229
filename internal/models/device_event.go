package models

import (
	"slices"
	"time"
)

// Event types recorded in the device event log.
const (
	EventLinkOpened      = "LINK_OPENED"
	EventLinkClosed      = "LINK_CLOSED"
	EventStart           = "START"
	EventStop            = "STOP"
	EventSetTemp         = "SET_TEMP"
	EventTimer           = "TIMER"
	EventLED             = "LED"
	EventIdleTimeout     = "IDLE_TIMEOUT"
	EventActionScheduled = "ACTION_SCHEDULED"
	EventActionCancelled = "ACTION_CANCELLED"
	EventActionFired     = "ACTION_FIRED"
	EventActionFailed    = "ACTION_FAILED"
)

// EventTypes lists every event type, in the order the API documents them.
var EventTypes = []string{
	EventLinkOpened, EventLinkClosed,
	EventStart, EventStop, EventSetTemp, EventTimer, EventLED, EventIdleTimeout,
	EventActionScheduled, EventActionCancelled, EventActionFired, EventActionFailed,
}

// IsEventType reports whether t is one of EventTypes. Matching is exact.
func IsEventType(t string) bool {
	return slices.Contains(EventTypes, t)
}

// DeviceEvent is a single log entry.
type DeviceEvent struct {
	EventID     string    `json:"event_id"`
	OccurredAt  time.Time `json:"occurred_at"`
	Type        string    `json:"type"`        // see Event* constants
	Description string    `json:"description"` // human-readable
	Metadata    any       `json:"metadata,omitempty"`
}

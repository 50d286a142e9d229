package models

import "time"

// ActionSummary is the public view of a scheduled action. Scheduler handles stay internal.
type ActionSummary struct {
	ID             int       `json:"id"`
	Kind           string    `json:"kind"`
	RequestedStart time.Time `json:"requested_start"`
	Temperature    string    `json:"temperature,omitempty"`
	Status         string    `json:"status"`
	CreatedAt      time.Time `json:"created_at"`
}

package domain

import "time"

// Result describes one committed transition.
type Result struct {
	EntityID string `json:"entity_id"`
	Graph    string `json:"graph"`
	Event    string `json:"event"`
	From     string `json:"from"`
	To       string `json:"to"`
	// NewVersion is the entity version after the commit.
	NewVersion int64 `json:"new_version"`
	// AllowedNextEvents lists the transition names available from the new
	// state, sorted.
	AllowedNextEvents []string `json:"allowed_next_events"`
	// Warnings carries after-callback failures. They never reverse the
	// commit; they are surfaced so callers can alert on them.
	Warnings    []string  `json:"warnings,omitempty"`
	CompletedAt time.Time `json:"completed_at"`
}

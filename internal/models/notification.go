package models

import (
	"maps"
	"time"
)

// Notification is a user-facing event record
type Notification struct {
	ID        string           `json:"id"`
	Title     string           `json:"title"`
	Message   string           `json:"message"`
	Type      NotificationType `json:"type"`
	Timestamp time.Time        `json:"timestamp"`
	Read      bool             `json:"read"`
	ActionURL string           `json:"action_url,omitempty"`
	Metadata  map[string]any   `json:"metadata,omitempty"`
}

// Clone copies n including its metadata map.
func (n Notification) Clone() Notification {
	n.Metadata = maps.Clone(n.Metadata)
	return n
}

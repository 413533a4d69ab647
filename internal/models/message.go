package models

import (
	"time"

	"github.com/google/uuid"
)

// GroupMessage represents a message posted to a group.
// Deleted hides the row from normal reads; the row itself is retained.
// Edited marks an in-place body replacement; CreatedAt is never mutated.
type GroupMessage struct {
	ID         string    `json:"id"` // ULID
	GroupID    uuid.UUID `json:"group_id"`
	Tenant     string    `json:"tenant"`
	Author     string    `json:"author"`
	Body       string    `json:"body"`
	Attachment string    `json:"attachment,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	Edited     bool      `json:"edited"`
	Deleted    bool      `json:"deleted"`
}

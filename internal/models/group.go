package models

import (
	"time"

	"github.com/google/uuid"
)

// Group represents a named, tenant-owned channel for broadcast messages.
type Group struct {
	ID        uuid.UUID `json:"id"`
	Tenant    string    `json:"tenant"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

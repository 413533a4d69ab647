package models

import "time"

// PrivateMessage represents a pairwise message between two participants.
// Sender and Recipient are free-form participant identifiers, not account
// foreign keys. Rows are immutable once created; there is no soft delete.
type PrivateMessage struct {
	ID             string    `json:"id"` // ULID
	Tenant         string    `json:"tenant"`
	Sender         string    `json:"sender"`
	Recipient      string    `json:"recipient"`
	Body           string    `json:"body"`
	AttachmentLink string    `json:"attachment_link,omitempty"`
	AttachmentFile string    `json:"attachment_file,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

// HasAttachment reports whether the message carries any attachment reference.
func (m *PrivateMessage) HasAttachment() bool {
	return m.AttachmentLink != "" || m.AttachmentFile != ""
}

// Package conversation derives the private-conversation view from the flat
// private message table. Nothing here is persisted: a conversation is the
// unordered participant pair, identified for the querying user by the other
// participant, recomputed on every request.
package conversation

import (
	"sort"

	"github.com/kchat-io/kchat/internal/models"
)

// Conversation is a derived view of all messages between the requesting user
// and one other participant.
type Conversation struct {
	OtherParticipant string                 `json:"other_participant"`
	LastMessage      *models.PrivateMessage `json:"last_message"`
	MessageCount     int                    `json:"message_count"`
}

// Derive computes the user's conversations from their private messages.
// Messages are bucketed by the other participant; each bucket keeps the
// message with maximum (created_at, id) and the bucket size. The result is
// ordered by last-message recency, newest first.
func Derive(msgs []models.PrivateMessage, user string) []Conversation {
	byOther := make(map[string]*Conversation)

	for i := range msgs {
		msg := &msgs[i]
		other := msg.Recipient
		if msg.Recipient == user {
			other = msg.Sender
		}

		conv, ok := byOther[other]
		if !ok {
			conv = &Conversation{OtherParticipant: other}
			byOther[other] = conv
		}
		conv.MessageCount++
		if conv.LastMessage == nil || newer(msg, conv.LastMessage) {
			conv.LastMessage = msg
		}
	}

	convs := make([]Conversation, 0, len(byOther))
	for _, conv := range byOther {
		convs = append(convs, *conv)
	}
	sort.Slice(convs, func(i, j int) bool {
		return newer(convs[i].LastMessage, convs[j].LastMessage)
	})
	return convs
}

// newer reports whether a was created after b, breaking created_at ties by
// maximum ID. Timestamps alone are not unique enough under rapid sends.
func newer(a, b *models.PrivateMessage) bool {
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.After(b.CreatedAt)
	}
	return a.ID > b.ID
}

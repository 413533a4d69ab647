package kchat

import (
	"context"
	"time"
)

// GroupSession binds a Client and a View to one open group. The REST write
// and the push emit are two independent actions: a send that persisted but
// failed to emit still reaches other clients through their poll ticks.
type GroupSession struct {
	client  *Client
	view    *View
	groupID string
	user    string
	window  int
	push    *PushConn // optional
}

// OpenGroup loads the most recent window of a group's messages into a fresh
// view and returns the session.
func (c *Client) OpenGroup(groupID, user string, window int) (*GroupSession, error) {
	if window < 1 {
		window = 50
	}

	s := &GroupSession{
		client:  c,
		view:    NewView(),
		groupID: groupID,
		user:    user,
		window:  window,
	}
	if err := s.Reload(); err != nil {
		return nil, err
	}
	return s, nil
}

// AttachPush wires a push connection so sends are also announced live.
func (s *GroupSession) AttachPush(p *PushConn) {
	s.push = p
}

// Reload replaces the view with the most recent window, fetched fresh.
func (s *GroupSession) Reload() error {
	page, err := s.client.GroupMessages(s.groupID, s.window, 0)
	if err != nil {
		return err
	}
	// The first page exposes the total; recent messages live on the last one
	if page.Pagination.Total > s.window {
		page, err = s.client.GroupMessages(s.groupID, s.window, page.Pagination.Total-s.window)
		if err != nil {
			return err
		}
	}
	s.view.Load(page.Messages)
	return nil
}

// PollOnce fetches the recent window and merges anything beyond the
// watermark into the view. Returns the number of messages added.
func (s *GroupSession) PollOnce() (int, error) {
	page, err := s.client.GroupMessages(s.groupID, s.window, 0)
	if err != nil {
		return 0, err
	}
	if page.Pagination.Total > s.window {
		page, err = s.client.GroupMessages(s.groupID, s.window, page.Pagination.Total-s.window)
		if err != nil {
			return 0, err
		}
	}
	return s.view.ApplyPoll(page.Messages), nil
}

// RunPolling polls at the given interval until the context is cancelled.
// Poll failures are skipped; the next tick retries.
func (s *GroupSession) RunPolling(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_, _ = s.PollOnce()
		}
	}
}

// HandlePush merges a push event into the view if it belongs to this group.
// Reports whether the view changed.
func (s *GroupSession) HandlePush(ev *PushEvent) bool {
	if ev.Event != "group_message" || ev.Message.GroupID != s.groupID {
		return false
	}
	return s.view.ApplyPush(ev.Message)
}

// Send appends a provisional entry, persists the message over REST, then
// announces it on the push channel. A failed persist marks the provisional
// entry errored in place; a failed announce is ignored.
func (s *GroupSession) Send(body string) (*Message, error) {
	localID := s.view.AppendLocal(Message{
		GroupID: s.groupID,
		Author:  s.user,
		Body:    body,
	})

	msg, err := s.client.PostGroupMessage(s.groupID, body, "")
	if err != nil {
		s.view.MarkFailed(localID)
		return nil, err
	}

	if s.push != nil {
		_ = s.push.Emit(PushEvent{Event: "group_message", Message: *msg})
	}
	return msg, nil
}

// Messages returns the current merged view.
func (s *GroupSession) Messages() []Message {
	return s.view.Messages()
}

// ConversationSession binds a Client and a View to one open private
// conversation, identified by the other participant.
type ConversationSession struct {
	client *Client
	view   *View
	user   string
	other  string
	push   *PushConn // optional
}

// OpenConversation loads the full history with the other participant into a
// fresh view and returns the session.
func (c *Client) OpenConversation(user, other string) (*ConversationSession, error) {
	s := &ConversationSession{
		client: c,
		view:   NewView(),
		user:   user,
		other:  other,
	}
	if err := s.Reload(); err != nil {
		return nil, err
	}
	return s, nil
}

// AttachPush wires a push connection so sends are also announced live.
func (s *ConversationSession) AttachPush(p *PushConn) {
	s.push = p
}

// Reload replaces the view with a fresh full fetch.
func (s *ConversationSession) Reload() error {
	msgs, err := s.client.ConversationMessages(s.other)
	if err != nil {
		return err
	}
	s.view.Load(msgs)
	return nil
}

// PollOnce fetches the history and merges anything beyond the watermark.
func (s *ConversationSession) PollOnce() (int, error) {
	msgs, err := s.client.ConversationMessages(s.other)
	if err != nil {
		return 0, err
	}
	return s.view.ApplyPoll(msgs), nil
}

// RunPolling polls at the given interval until the context is cancelled.
func (s *ConversationSession) RunPolling(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_, _ = s.PollOnce()
		}
	}
}

// HandlePush merges a push event into the view if it belongs to this
// conversation, in either direction.
func (s *ConversationSession) HandlePush(ev *PushEvent) bool {
	if ev.Event != "private_message" {
		return false
	}
	m := ev.Message
	match := (m.Sender == s.user && m.Recipient == s.other) ||
		(m.Sender == s.other && m.Recipient == s.user)
	if !match {
		return false
	}
	return s.view.ApplyPush(m)
}

// Send appends a provisional entry, persists the message, then announces it.
func (s *ConversationSession) Send(body string) (*Message, error) {
	localID := s.view.AppendLocal(Message{
		Sender:    s.user,
		Recipient: s.other,
		Body:      body,
	})

	msg, err := s.client.SendPrivateMessage(s.other, body, "", "")
	if err != nil {
		s.view.MarkFailed(localID)
		return nil, err
	}

	if s.push != nil {
		_ = s.push.Emit(PushEvent{Event: "private_message", Message: *msg})
	}
	return msg, nil
}

// Messages returns the current merged view.
func (s *ConversationSession) Messages() []Message {
	return s.view.Messages()
}

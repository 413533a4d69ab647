// Package kchat provides a client for the KChat multi-tenant chat service,
// including the view reconciliation used to keep open conversations
// consistent across reads, push events, and polling.
package kchat

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// Client is a KChat API client. Token is the session token issued by the
// identity service; the tenant is bound inside it.
type Client struct {
	BaseURL    string
	Token      string
	HTTPClient *http.Client
}

// NewClient creates a new KChat client.
func NewClient(baseURL, token string) *Client {
	return &Client{
		BaseURL:    baseURL,
		Token:      token,
		HTTPClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// APIError is a non-2xx response from the service.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("kchat error %d: %s", e.Status, e.Message)
}

// apiEnvelope is the uniform response wrapper.
type apiEnvelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

// doRequest performs an HTTP request and unwraps the response envelope.
func (c *Client) doRequest(method, path string, body []byte) (json.RawMessage, error) {
	req, err := http.NewRequest(method, c.BaseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.Token)

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	var env apiEnvelope
	if err := json.Unmarshal(respBody, &env); err != nil {
		return nil, fmt.Errorf("kchat: malformed response: %w", err)
	}
	if resp.StatusCode >= 400 || !env.Success {
		return nil, &APIError{Status: resp.StatusCode, Message: env.Message}
	}

	return env.Data, nil
}

// Group represents a tenant-owned message channel.
type Group struct {
	ID        string    `json:"id"`
	Tenant    string    `json:"tenant"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

// Message represents a message from either surface. Group messages carry
// Author and GroupID; private messages carry Sender and Recipient. The
// reconciliation fields are local-only and never serialized.
type Message struct {
	ID         string    `json:"id,omitempty"`
	GroupID    string    `json:"group_id,omitempty"`
	Author     string    `json:"author,omitempty"`
	Sender     string    `json:"sender,omitempty"`
	Recipient  string    `json:"recipient,omitempty"`
	Body       string    `json:"body"`
	Attachment string    `json:"attachment,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	Edited     bool      `json:"edited,omitempty"`

	// Reconciliation state for locally-appended provisional entries
	LocalID string `json:"-"`
	Pending bool   `json:"-"`
	Failed  bool   `json:"-"`
}

// Pagination describes a returned page.
type Pagination struct {
	Limit   int  `json:"limit"`
	Offset  int  `json:"offset"`
	Total   int  `json:"total"`
	HasMore bool `json:"has_more"`
}

// MessagesPage is a page of group messages in ascending order.
type MessagesPage struct {
	Messages   []Message  `json:"messages"`
	Pagination Pagination `json:"pagination"`
}

// Conversation is the derived per-participant overview entry.
type Conversation struct {
	OtherParticipant string   `json:"other_participant"`
	LastMessage      *Message `json:"last_message"`
	MessageCount     int      `json:"message_count"`
}

// DeleteGroupResult reports the outcome of a group deletion.
type DeleteGroupResult struct {
	MessagesRemoved int64 `json:"messages_removed"`
	GroupDeleted    bool  `json:"group_deleted"`
}

// CreateGroup creates a new group.
func (c *Client) CreateGroup(name string) (*Group, error) {
	body, _ := json.Marshal(map[string]string{"name": name})
	data, err := c.doRequest("POST", "/groups", body)
	if err != nil {
		return nil, err
	}

	var group Group
	if err := json.Unmarshal(data, &group); err != nil {
		return nil, err
	}
	return &group, nil
}

// Groups lists the tenant's groups, newest-created first.
func (c *Client) Groups() ([]Group, error) {
	data, err := c.doRequest("GET", "/groups", nil)
	if err != nil {
		return nil, err
	}

	var resp struct {
		Groups []Group `json:"groups"`
	}
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, err
	}
	return resp.Groups, nil
}

// DeleteGroup deletes a group and its messages.
func (c *Client) DeleteGroup(groupID string) (*DeleteGroupResult, error) {
	data, err := c.doRequest("DELETE", "/groups/"+groupID, nil)
	if err != nil {
		return nil, err
	}

	var result DeleteGroupResult
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// GroupMessages retrieves a page of a group's messages, ascending.
func (c *Client) GroupMessages(groupID string, limit, offset int) (*MessagesPage, error) {
	path := fmt.Sprintf("/groups/%s/messages?limit=%d&offset=%d", groupID, limit, offset)
	data, err := c.doRequest("GET", path, nil)
	if err != nil {
		return nil, err
	}

	var page MessagesPage
	if err := json.Unmarshal(data, &page); err != nil {
		return nil, err
	}
	return &page, nil
}

// PostGroupMessage posts a message to a group.
func (c *Client) PostGroupMessage(groupID, body, attachment string) (*Message, error) {
	reqBody, _ := json.Marshal(map[string]string{"body": body, "attachment": attachment})
	data, err := c.doRequest("POST", "/groups/"+groupID+"/messages", reqBody)
	if err != nil {
		return nil, err
	}

	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

// EditMessage replaces the body of the caller's own message.
func (c *Client) EditMessage(messageID, body string) (*Message, error) {
	reqBody, _ := json.Marshal(map[string]string{"body": body})
	data, err := c.doRequest("PUT", "/messages/"+messageID, reqBody)
	if err != nil {
		return nil, err
	}

	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

// DeleteMessage soft-deletes the caller's own message.
func (c *Client) DeleteMessage(messageID string) error {
	_, err := c.doRequest("DELETE", "/messages/"+messageID, nil)
	return err
}

// SendPrivateMessage sends a private message to another participant.
func (c *Client) SendPrivateMessage(recipient, body, attachmentLink, attachmentFile string) (*Message, error) {
	reqBody, _ := json.Marshal(map[string]string{
		"recipient":       recipient,
		"body":            body,
		"attachment_link": attachmentLink,
		"attachment_file": attachmentFile,
	})
	data, err := c.doRequest("POST", "/private-messages", reqBody)
	if err != nil {
		return nil, err
	}

	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

// PrivateMessages retrieves every private message the caller sent or
// received, newest first.
func (c *Client) PrivateMessages() ([]Message, error) {
	data, err := c.doRequest("GET", "/private-messages", nil)
	if err != nil {
		return nil, err
	}

	var resp struct {
		Messages []Message `json:"messages"`
	}
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, err
	}
	return resp.Messages, nil
}

// ConversationMessages retrieves the full history with another participant,
// ascending.
func (c *Client) ConversationMessages(other string) ([]Message, error) {
	data, err := c.doRequest("GET", "/private-messages/conversation?b="+url.QueryEscape(other), nil)
	if err != nil {
		return nil, err
	}

	var resp struct {
		Messages []Message `json:"messages"`
	}
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, err
	}
	return resp.Messages, nil
}

// Participants lists every distinct private-message participant in the
// tenant, sorted.
func (c *Client) Participants() ([]string, error) {
	data, err := c.doRequest("GET", "/private-messages/participants", nil)
	if err != nil {
		return nil, err
	}

	var resp struct {
		Participants []string `json:"participants"`
	}
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, err
	}
	return resp.Participants, nil
}

// Conversations retrieves the derived conversation overview, ordered by
// last-message recency.
func (c *Client) Conversations() ([]Conversation, error) {
	data, err := c.doRequest("GET", "/conversations", nil)
	if err != nil {
		return nil, err
	}

	var resp struct {
		Conversations []Conversation `json:"conversations"`
	}
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, err
	}
	return resp.Conversations, nil
}

package handlers

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/kchat-io/kchat/internal/api/middleware"
	"github.com/kchat-io/kchat/internal/conversation"
	"github.com/kchat-io/kchat/internal/metrics"
	"github.com/kchat-io/kchat/internal/models"
)

// SendPrivateMessageRequest represents the private message request. The
// attachment fields are opaque references supplied by the upload service;
// this store never inspects file contents.
type SendPrivateMessageRequest struct {
	Recipient      string `json:"recipient"`
	Body           string `json:"body"`
	AttachmentLink string `json:"attachment_link,omitempty"`
	AttachmentFile string `json:"attachment_file,omitempty"`
}

// SendPrivateMessage handles creating a private message. The sender is the
// authenticated user.
func (h *Handler) SendPrivateMessage(w http.ResponseWriter, r *http.Request) {
	principal := middleware.GetPrincipal(r.Context())

	var req SendPrivateMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.Fail(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	req.Recipient = strings.TrimSpace(req.Recipient)
	if req.Recipient == "" {
		h.Fail(w, http.StatusBadRequest, "recipient is required")
		return
	}
	if req.Recipient == principal.User {
		h.Fail(w, http.StatusBadRequest, "cannot message yourself")
		return
	}

	msg := &models.PrivateMessage{
		Tenant:         principal.Tenant,
		Sender:         principal.User,
		Recipient:      req.Recipient,
		Body:           strings.TrimSpace(req.Body),
		AttachmentLink: strings.TrimSpace(req.AttachmentLink),
		AttachmentFile: strings.TrimSpace(req.AttachmentFile),
	}

	// Body may be empty only when an attachment stands in for it
	if msg.Body == "" && !msg.HasAttachment() {
		h.Fail(w, http.StatusBadRequest, "body or attachment is required")
		return
	}

	if err := h.db.CreatePrivateMessage(r.Context(), msg); err != nil {
		h.StorageError(w, "create private message", err)
		return
	}

	metrics.MessagesPosted.WithLabelValues("private").Inc()
	h.OK(w, http.StatusCreated, msg)
}

// ListPrivateMessages handles fetching every message the authenticated user
// sent or received, newest first.
func (h *Handler) ListPrivateMessages(w http.ResponseWriter, r *http.Request) {
	principal := middleware.GetPrincipal(r.Context())

	msgs, err := h.db.ListPrivateMessagesFor(r.Context(), principal.Tenant, principal.User)
	if err != nil {
		h.StorageError(w, "list private messages", err)
		return
	}
	if msgs == nil {
		msgs = []models.PrivateMessage{}
	}

	h.OK(w, http.StatusOK, map[string]interface{}{"messages": msgs})
}

// ConversationMessages handles fetching the full message history between two
// participants, ascending. The pair is unordered: a/b and b/a read the same.
func (h *Handler) ConversationMessages(w http.ResponseWriter, r *http.Request) {
	principal := middleware.GetPrincipal(r.Context())

	a := strings.TrimSpace(r.URL.Query().Get("a"))
	b := strings.TrimSpace(r.URL.Query().Get("b"))
	if a == "" {
		a = principal.User
	}
	if b == "" {
		h.Fail(w, http.StatusBadRequest, "b participant is required")
		return
	}

	msgs, err := h.db.ListConversationMessages(r.Context(), principal.Tenant, a, b)
	if err != nil {
		h.StorageError(w, "list conversation", err)
		return
	}
	if msgs == nil {
		msgs = []models.PrivateMessage{}
	}

	h.OK(w, http.StatusOK, map[string]interface{}{"messages": msgs})
}

// ListParticipants handles listing every distinct private-message
// participant in the tenant, sorted.
func (h *Handler) ListParticipants(w http.ResponseWriter, r *http.Request) {
	principal := middleware.GetPrincipal(r.Context())

	participants, err := h.db.ListParticipants(r.Context(), principal.Tenant)
	if err != nil {
		h.StorageError(w, "list participants", err)
		return
	}
	if participants == nil {
		participants = []string{}
	}

	h.OK(w, http.StatusOK, map[string]interface{}{"participants": participants})
}

// ListConversations handles the derived conversation overview for the
// authenticated user: one entry per other participant, ordered by
// last-message recency. Recomputed on every request.
func (h *Handler) ListConversations(w http.ResponseWriter, r *http.Request) {
	principal := middleware.GetPrincipal(r.Context())

	msgs, err := h.db.ListPrivateMessagesFor(r.Context(), principal.Tenant, principal.User)
	if err != nil {
		h.StorageError(w, "list private messages", err)
		return
	}

	convs := conversation.Derive(msgs, principal.User)
	h.OK(w, http.StatusOK, map[string]interface{}{"conversations": convs})
}

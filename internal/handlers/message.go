package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/kchat-io/kchat/internal/api/middleware"
	"github.com/kchat-io/kchat/internal/metrics"
	"github.com/kchat-io/kchat/internal/models"
)

const maxGroupMessageLength = 1000

// PostMessageRequest represents the post message request.
type PostMessageRequest struct {
	Body       string `json:"body"`
	Attachment string `json:"attachment,omitempty"`
}

// UpdateMessageRequest represents the edit message request.
type UpdateMessageRequest struct {
	Body string `json:"body"`
}

// Pagination describes the page returned by a paginated listing.
type Pagination struct {
	Limit   int  `json:"limit"`
	Offset  int  `json:"offset"`
	Total   int  `json:"total"`
	HasMore bool `json:"has_more"`
}

// MessagesPage represents the paginated group messages response.
type MessagesPage struct {
	Messages   []models.GroupMessage `json:"messages"`
	Pagination Pagination            `json:"pagination"`
}

// PostGroupMessage handles posting a message to a group. The author is the
// authenticated user, never a request field.
func (h *Handler) PostGroupMessage(w http.ResponseWriter, r *http.Request) {
	principal := middleware.GetPrincipal(r.Context())

	groupID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		h.Fail(w, http.StatusNotFound, "group not found")
		return
	}

	exists, err := h.db.GroupExists(r.Context(), groupID, principal.Tenant)
	if err != nil {
		h.StorageError(w, "check group", err)
		return
	}
	if !exists {
		h.Fail(w, http.StatusNotFound, "group not found")
		return
	}

	var req PostMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.Fail(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	// Group messages require a body unconditionally, attachment or not
	req.Body = strings.TrimSpace(req.Body)
	if req.Body == "" {
		h.Fail(w, http.StatusBadRequest, "body is required")
		return
	}
	if utf8.RuneCountInString(req.Body) > maxGroupMessageLength {
		h.Fail(w, http.StatusBadRequest, "body too long (max 1000 characters)")
		return
	}

	msg := &models.GroupMessage{
		GroupID:    groupID,
		Tenant:     principal.Tenant,
		Author:     principal.User,
		Body:       req.Body,
		Attachment: strings.TrimSpace(req.Attachment),
	}
	if err := h.db.CreateGroupMessage(r.Context(), msg); err != nil {
		h.StorageError(w, "create message", err)
		return
	}

	metrics.MessagesPosted.WithLabelValues("group").Inc()
	h.OK(w, http.StatusCreated, msg)
}

// ListGroupMessages handles fetching a page of a group's messages, ascending
// by creation time.
func (h *Handler) ListGroupMessages(w http.ResponseWriter, r *http.Request) {
	principal := middleware.GetPrincipal(r.Context())

	groupID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		h.Fail(w, http.StatusNotFound, "group not found")
		return
	}

	exists, err := h.db.GroupExists(r.Context(), groupID, principal.Tenant)
	if err != nil {
		h.StorageError(w, "check group", err)
		return
	}
	if !exists {
		h.Fail(w, http.StatusNotFound, "group not found")
		return
	}

	limit := parseIntParam(r, "limit", 50)
	if limit < 1 {
		limit = 1
	}
	if limit > 100 {
		limit = 100
	}
	offset := parseIntParam(r, "offset", 0)
	if offset < 0 {
		offset = 0
	}

	msgs, total, err := h.db.ListGroupMessages(r.Context(), groupID, principal.Tenant, limit, offset)
	if err != nil {
		h.StorageError(w, "list messages", err)
		return
	}
	if msgs == nil {
		msgs = []models.GroupMessage{}
	}

	h.OK(w, http.StatusOK, MessagesPage{
		Messages: msgs,
		Pagination: Pagination{
			Limit:   limit,
			Offset:  offset,
			Total:   total,
			HasMore: offset+limit < total,
		},
	})
}

// UpdateMessage handles editing a message body. Only the original author
// matches; a missing row and someone else's row answer identically.
func (h *Handler) UpdateMessage(w http.ResponseWriter, r *http.Request) {
	principal := middleware.GetPrincipal(r.Context())
	msgID := chi.URLParam(r, "id")

	var req UpdateMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.Fail(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	req.Body = strings.TrimSpace(req.Body)
	if req.Body == "" {
		h.Fail(w, http.StatusBadRequest, "body is required")
		return
	}
	if utf8.RuneCountInString(req.Body) > maxGroupMessageLength {
		h.Fail(w, http.StatusBadRequest, "body too long (max 1000 characters)")
		return
	}

	matched, err := h.db.UpdateGroupMessage(r.Context(), msgID, principal.Tenant, principal.User, req.Body)
	if err != nil {
		h.StorageError(w, "update message", err)
		return
	}
	if !matched {
		h.Fail(w, http.StatusNotFound, "message not found")
		return
	}

	msg, err := h.db.GetGroupMessage(r.Context(), msgID, principal.Tenant, false)
	if err != nil {
		h.StorageError(w, "get message", err)
		return
	}

	metrics.MessagesEdited.Inc()
	h.OK(w, http.StatusOK, msg)
}

// DeleteMessage handles soft-deleting a message. Same collapsed 404 as edit.
func (h *Handler) DeleteMessage(w http.ResponseWriter, r *http.Request) {
	principal := middleware.GetPrincipal(r.Context())
	msgID := chi.URLParam(r, "id")

	matched, err := h.db.SoftDeleteGroupMessage(r.Context(), msgID, principal.Tenant, principal.User)
	if err != nil {
		h.StorageError(w, "delete message", err)
		return
	}
	if !matched {
		h.Fail(w, http.StatusNotFound, "message not found")
		return
	}

	metrics.MessagesDeleted.Inc()
	h.OK(w, http.StatusOK, map[string]bool{"deleted": true})
}

// RecentMessages handles listing the tenant's most recent messages across
// all groups, newest first.
func (h *Handler) RecentMessages(w http.ResponseWriter, r *http.Request) {
	principal := middleware.GetPrincipal(r.Context())

	limit := parseIntParam(r, "limit", 20)
	if limit < 1 {
		limit = 1
	}
	if limit > 100 {
		limit = 100
	}

	msgs, err := h.db.ListRecentMessages(r.Context(), principal.Tenant, limit)
	if err != nil {
		h.StorageError(w, "list recent messages", err)
		return
	}
	if msgs == nil {
		msgs = []models.GroupMessage{}
	}

	h.OK(w, http.StatusOK, map[string]interface{}{"messages": msgs})
}

// MessagesByDateRange handles listing the tenant's messages between two
// dates (inclusive), ascending.
func (h *Handler) MessagesByDateRange(w http.ResponseWriter, r *http.Request) {
	principal := middleware.GetPrincipal(r.Context())

	start, err := time.Parse("2006-01-02", r.URL.Query().Get("start"))
	if err != nil {
		h.Fail(w, http.StatusBadRequest, "start must be a date (YYYY-MM-DD)")
		return
	}
	end, err := time.Parse("2006-01-02", r.URL.Query().Get("end"))
	if err != nil {
		h.Fail(w, http.StatusBadRequest, "end must be a date (YYYY-MM-DD)")
		return
	}
	if end.Before(start) {
		h.Fail(w, http.StatusBadRequest, "end must not precede start")
		return
	}

	msgs, err := h.db.ListMessagesByDateRange(r.Context(), principal.Tenant, start, end.AddDate(0, 0, 1))
	if err != nil {
		h.StorageError(w, "list messages by range", err)
		return
	}
	if msgs == nil {
		msgs = []models.GroupMessage{}
	}

	h.OK(w, http.StatusOK, map[string]interface{}{"messages": msgs})
}

func parseIntParam(r *http.Request, name string, def int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return v
}

package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"unicode/utf8"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/kchat-io/kchat/internal/api/middleware"
	"github.com/kchat-io/kchat/internal/metrics"
	"github.com/kchat-io/kchat/internal/models"
	"github.com/kchat-io/kchat/internal/store"
)

// CreateGroupRequest represents the group creation request.
type CreateGroupRequest struct {
	Name string `json:"name"`
}

// DeleteGroupResponse represents the group deletion response.
type DeleteGroupResponse struct {
	MessagesRemoved int64 `json:"messages_removed"`
	GroupDeleted    bool  `json:"group_deleted"`
}

// CreateGroup handles group creation.
func (h *Handler) CreateGroup(w http.ResponseWriter, r *http.Request) {
	principal := middleware.GetPrincipal(r.Context())

	var req CreateGroupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.Fail(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	// Validated before any storage access
	req.Name = strings.TrimSpace(req.Name)
	if utf8.RuneCountInString(req.Name) < 2 {
		h.Fail(w, http.StatusBadRequest, "name must be at least 2 characters")
		return
	}

	group, err := h.db.CreateGroup(r.Context(), principal.Tenant, req.Name)
	if err != nil {
		if errors.Is(err, store.ErrConflict) {
			h.Fail(w, http.StatusConflict, "a group with that name already exists")
			return
		}
		h.StorageError(w, "create group", err)
		return
	}

	metrics.GroupsCreated.Inc()
	h.OK(w, http.StatusCreated, group)
}

// ListGroups handles listing the tenant's groups, newest-created first.
func (h *Handler) ListGroups(w http.ResponseWriter, r *http.Request) {
	principal := middleware.GetPrincipal(r.Context())

	groups, err := h.db.ListGroups(r.Context(), principal.Tenant)
	if err != nil {
		h.StorageError(w, "list groups", err)
		return
	}
	if groups == nil {
		groups = []models.Group{}
	}

	h.OK(w, http.StatusOK, map[string]interface{}{"groups": groups})
}

// DeleteGroup handles group deletion with its message cascade. The count of
// removed messages is returned for observability.
func (h *Handler) DeleteGroup(w http.ResponseWriter, r *http.Request) {
	principal := middleware.GetPrincipal(r.Context())

	// A malformed or foreign-tenant ID is indistinguishable from absence
	groupID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		h.Fail(w, http.StatusNotFound, "group not found")
		return
	}

	removed, found, err := h.db.DeleteGroup(r.Context(), groupID, principal.Tenant)
	if err != nil {
		h.StorageError(w, "delete group", err)
		return
	}
	if !found {
		h.Fail(w, http.StatusNotFound, "group not found")
		return
	}

	metrics.GroupsDeleted.Inc()
	h.OK(w, http.StatusOK, DeleteGroupResponse{
		MessagesRemoved: removed,
		GroupDeleted:    true,
	})
}

package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/kchat-io/kchat/internal/hub"
	"github.com/kchat-io/kchat/internal/store"
)

// Handler contains shared dependencies for all HTTP handlers.
type Handler struct {
	db     store.DataStore
	redis  *store.RedisStore
	hub    *hub.Hub
	logger zerolog.Logger
}

// NewHandler creates a new Handler with the given dependencies.
func NewHandler(db store.DataStore, redis *store.RedisStore, h *hub.Hub, logger zerolog.Logger) *Handler {
	return &Handler{db: db, redis: redis, hub: h, logger: logger}
}

// envelope is the uniform response shape for success and failure alike.
type envelope struct {
	Success bool        `json:"success"`
	Message string      `json:"message,omitempty"`
	Data    interface{} `json:"data,omitempty"`
}

// OK sends a success envelope with the given status code.
func (h *Handler) OK(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(envelope{Success: true, Data: data})
}

// Fail sends a failure envelope with the given status code.
func (h *Handler) Fail(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(envelope{Success: false, Message: message})
}

// StorageError logs the underlying error and sends a generic 500. The
// datastore error text never reaches the caller.
func (h *Handler) StorageError(w http.ResponseWriter, op string, err error) {
	h.logger.Error().Err(err).Str("op", op).Msg("storage error")
	h.Fail(w, http.StatusInternalServerError, "internal error")
}

package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kchat-io/kchat/internal/api/middleware"
	"github.com/kchat-io/kchat/internal/hub"
	"github.com/kchat-io/kchat/internal/models"
	"github.com/kchat-io/kchat/internal/store"
)

const testSecret = "test-secret"

type envelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func newTestRouter(t *testing.T) http.Handler {
	t.Helper()

	db, err := store.NewSQLiteStore(context.Background(), filepath.Join(t.TempDir(), "api.db"))
	require.NoError(t, err)
	t.Cleanup(db.Close)

	logger := zerolog.Nop()
	return NewRouter(Options{
		Logger:    logger,
		Store:     db,
		Hub:       hub.New(logger),
		JWTSecret: testSecret,
	})
}

func signToken(t *testing.T, secret, tenant, user string) string {
	t.Helper()
	claims := middleware.Claims{
		Tenant: tenant,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return signed
}

func doJSON(t *testing.T, h http.Handler, method, path, token string, body interface{}) (*httptest.ResponseRecorder, envelope) {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	var env envelope
	if rec.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env), "body: %s", rec.Body.String())
	}
	return rec, env
}

func TestHealthIsPublic(t *testing.T) {
	r := newTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"healthy"`)
}

func TestAuthRequired(t *testing.T) {
	r := newTestRouter(t)

	rec, env := doJSON(t, r, http.MethodGet, "/groups", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.False(t, env.Success)

	rec, _ = doJSON(t, r, http.MethodGet, "/groups", "not-a-token", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	// Valid shape, wrong key
	forged := signToken(t, "other-secret", "acme", "u1")
	rec, _ = doJSON(t, r, http.MethodGet, "/groups", forged, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestTokenMustCarryTenantAndSubject(t *testing.T) {
	r := newTestRouter(t)

	claims := middleware.Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "u1",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	require.NoError(t, err)

	rec, _ := doJSON(t, r, http.MethodGet, "/groups", signed, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestGroupMessageLifecycle(t *testing.T) {
	r := newTestRouter(t)
	u1 := signToken(t, testSecret, "acme", "u1")
	u2 := signToken(t, testSecret, "acme", "u2")

	rec, env := doJSON(t, r, http.MethodPost, "/groups", u1, map[string]string{"name": "Sales"})
	require.Equal(t, http.StatusCreated, rec.Code, env.Message)
	var group models.Group
	require.NoError(t, json.Unmarshal(env.Data, &group))
	assert.Equal(t, "Sales", group.Name)
	assert.Equal(t, "acme", group.Tenant)

	base := "/groups/" + group.ID.String() + "/messages"

	rec, env = doJSON(t, r, http.MethodPost, base, u1, map[string]string{"body": "hi"})
	require.Equal(t, http.StatusCreated, rec.Code, env.Message)
	var first models.GroupMessage
	require.NoError(t, json.Unmarshal(env.Data, &first))
	assert.Equal(t, "u1", first.Author)

	rec, env = doJSON(t, r, http.MethodPost, base, u2, map[string]string{"body": "hello"})
	require.Equal(t, http.StatusCreated, rec.Code)
	var second models.GroupMessage
	require.NoError(t, json.Unmarshal(env.Data, &second))

	rec, env = doJSON(t, r, http.MethodGet, base, u1, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var page struct {
		Messages   []models.GroupMessage `json:"messages"`
		Pagination struct {
			Total   int  `json:"total"`
			HasMore bool `json:"has_more"`
		} `json:"pagination"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &page))
	require.Len(t, page.Messages, 2)
	assert.Equal(t, "hi", page.Messages[0].Body)
	assert.Equal(t, "hello", page.Messages[1].Body)
	assert.Equal(t, 2, page.Pagination.Total)
	assert.False(t, page.Pagination.HasMore)

	// Author edits; position in the listing must not move
	rec, env = doJSON(t, r, http.MethodPut, "/messages/"+first.ID, u1, map[string]string{"body": "hi there"})
	require.Equal(t, http.StatusOK, rec.Code, env.Message)
	var edited models.GroupMessage
	require.NoError(t, json.Unmarshal(env.Data, &edited))
	assert.True(t, edited.Edited)
	assert.Equal(t, "hi there", edited.Body)

	rec, env = doJSON(t, r, http.MethodGet, base, u1, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(env.Data, &page))
	assert.Equal(t, first.ID, page.Messages[0].ID)
	assert.Equal(t, "hi there", page.Messages[0].Body)

	// Someone else's message reads as absent on write
	rec, env = doJSON(t, r, http.MethodDelete, "/messages/"+first.ID, u2, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "message not found", env.Message)

	rec, _ = doJSON(t, r, http.MethodDelete, "/messages/"+first.ID, u1, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec, env = doJSON(t, r, http.MethodGet, base, u1, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(env.Data, &page))
	require.Len(t, page.Messages, 1)
	assert.Equal(t, second.ID, page.Messages[0].ID)
	assert.Equal(t, 1, page.Pagination.Total)
}

func TestCreateGroupValidation(t *testing.T) {
	r := newTestRouter(t)
	token := signToken(t, testSecret, "acme", "u1")

	rec, env := doJSON(t, r, http.MethodPost, "/groups", token, map[string]string{"name": "x"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.False(t, env.Success)

	// Whitespace does not count toward the minimum
	rec, _ = doJSON(t, r, http.MethodPost, "/groups", token, map[string]string{"name": "  a  "})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = doJSON(t, r, http.MethodPost, "/groups", token, map[string]string{"name": "Sales"})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec, env = doJSON(t, r, http.MethodPost, "/groups", token, map[string]string{"name": "Sales"})
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.False(t, env.Success)
}

func TestPostMessageValidation(t *testing.T) {
	r := newTestRouter(t)
	token := signToken(t, testSecret, "acme", "u1")

	// Unknown and malformed group ids answer the same way
	rec, _ := doJSON(t, r, http.MethodPost, "/groups/"+uuid.NewString()+"/messages", token, map[string]string{"body": "hi"})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec, _ = doJSON(t, r, http.MethodPost, "/groups/not-a-uuid/messages", token, map[string]string{"body": "hi"})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	_, env := doJSON(t, r, http.MethodPost, "/groups", token, map[string]string{"name": "Sales"})
	var group models.Group
	require.NoError(t, json.Unmarshal(env.Data, &group))
	base := "/groups/" + group.ID.String() + "/messages"

	rec, _ = doJSON(t, r, http.MethodPost, base, token, map[string]string{"body": "   "})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	long := make([]rune, 1001)
	for i := range long {
		long[i] = 'x'
	}
	rec, _ = doJSON(t, r, http.MethodPost, base, token, map[string]string{"body": string(long)})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// Exactly at the limit is fine
	rec, _ = doJSON(t, r, http.MethodPost, base, token, map[string]string{"body": string(long[:1000])})
	assert.Equal(t, http.StatusCreated, rec.Code)
}

func TestTenantIsolationOverHTTP(t *testing.T) {
	r := newTestRouter(t)
	acme := signToken(t, testSecret, "acme", "u1")
	globex := signToken(t, testSecret, "globex", "u1")

	_, env := doJSON(t, r, http.MethodPost, "/groups", acme, map[string]string{"name": "Sales"})
	var group models.Group
	require.NoError(t, json.Unmarshal(env.Data, &group))

	rec, env := doJSON(t, r, http.MethodGet, "/groups", globex, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var listing struct {
		Groups []models.Group `json:"groups"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &listing))
	assert.Empty(t, listing.Groups)

	// The other tenant cannot even observe that the group exists
	rec, _ = doJSON(t, r, http.MethodPost, "/groups/"+group.ID.String()+"/messages", globex, map[string]string{"body": "hi"})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec, _ = doJSON(t, r, http.MethodDelete, "/groups/"+group.ID.String(), globex, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDeleteGroupReportsCascade(t *testing.T) {
	r := newTestRouter(t)
	token := signToken(t, testSecret, "acme", "u1")

	_, env := doJSON(t, r, http.MethodPost, "/groups", token, map[string]string{"name": "Sales"})
	var group models.Group
	require.NoError(t, json.Unmarshal(env.Data, &group))
	base := "/groups/" + group.ID.String() + "/messages"

	for _, body := range []string{"one", "two", "three"} {
		rec, _ := doJSON(t, r, http.MethodPost, base, token, map[string]string{"body": body})
		require.Equal(t, http.StatusCreated, rec.Code)
	}

	rec, env := doJSON(t, r, http.MethodDelete, "/groups/"+group.ID.String(), token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var result struct {
		MessagesRemoved int64 `json:"messages_removed"`
		GroupDeleted    bool  `json:"group_deleted"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &result))
	assert.Equal(t, int64(3), result.MessagesRemoved)
	assert.True(t, result.GroupDeleted)

	rec, _ = doJSON(t, r, http.MethodDelete, "/groups/"+group.ID.String(), token, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGroupMessagePaginationOverHTTP(t *testing.T) {
	r := newTestRouter(t)
	token := signToken(t, testSecret, "acme", "u1")

	_, env := doJSON(t, r, http.MethodPost, "/groups", token, map[string]string{"name": "Sales"})
	var group models.Group
	require.NoError(t, json.Unmarshal(env.Data, &group))
	base := "/groups/" + group.ID.String() + "/messages"

	for _, body := range []string{"one", "two", "three"} {
		rec, _ := doJSON(t, r, http.MethodPost, base, token, map[string]string{"body": body})
		require.Equal(t, http.StatusCreated, rec.Code)
	}

	rec, env := doJSON(t, r, http.MethodGet, base+"?limit=2", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var page struct {
		Messages   []models.GroupMessage `json:"messages"`
		Pagination struct {
			Limit   int  `json:"limit"`
			Offset  int  `json:"offset"`
			Total   int  `json:"total"`
			HasMore bool `json:"has_more"`
		} `json:"pagination"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &page))
	assert.Len(t, page.Messages, 2)
	assert.Equal(t, 3, page.Pagination.Total)
	assert.True(t, page.Pagination.HasMore)

	rec, env = doJSON(t, r, http.MethodGet, base+"?limit=2&offset=2", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(env.Data, &page))
	assert.Len(t, page.Messages, 1)
	assert.False(t, page.Pagination.HasMore)
	assert.Equal(t, "three", page.Messages[0].Body)
}

func TestPrivateMessageFlow(t *testing.T) {
	r := newTestRouter(t)
	alice := signToken(t, testSecret, "acme", "alice")
	bob := signToken(t, testSecret, "acme", "bob")

	rec, env := doJSON(t, r, http.MethodPost, "/private-messages", alice, map[string]string{"recipient": "bob", "body": "hi bob"})
	require.Equal(t, http.StatusCreated, rec.Code, env.Message)
	var sent models.PrivateMessage
	require.NoError(t, json.Unmarshal(env.Data, &sent))
	assert.Equal(t, "alice", sent.Sender)

	rec, _ = doJSON(t, r, http.MethodPost, "/private-messages", bob, map[string]string{"recipient": "alice", "body": "hi alice"})
	require.Equal(t, http.StatusCreated, rec.Code)

	// Self-send and empty sends are rejected before storage
	rec, env = doJSON(t, r, http.MethodPost, "/private-messages", alice, map[string]string{"recipient": "alice", "body": "me"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "cannot message yourself", env.Message)

	rec, _ = doJSON(t, r, http.MethodPost, "/private-messages", alice, map[string]string{"recipient": "bob", "body": "  "})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// An attachment reference stands in for a body
	rec, _ = doJSON(t, r, http.MethodPost, "/private-messages", alice, map[string]string{"recipient": "bob", "attachment_link": "https://files.example/1"})
	assert.Equal(t, http.StatusCreated, rec.Code)

	rec, env = doJSON(t, r, http.MethodGet, "/private-messages/conversation?b=bob", alice, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var history struct {
		Messages []models.PrivateMessage `json:"messages"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &history))
	assert.Len(t, history.Messages, 3)

	// The pair is unordered: bob reads the same history
	rec, env = doJSON(t, r, http.MethodGet, "/private-messages/conversation?b=alice", bob, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(env.Data, &history))
	assert.Len(t, history.Messages, 3)

	rec, env = doJSON(t, r, http.MethodGet, "/private-messages/conversation", alice, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, env = doJSON(t, r, http.MethodGet, "/private-messages/participants", alice, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var participants struct {
		Participants []string `json:"participants"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &participants))
	assert.Equal(t, []string{"alice", "bob"}, participants.Participants)
}

func TestConversationOverview(t *testing.T) {
	r := newTestRouter(t)
	alice := signToken(t, testSecret, "acme", "alice")
	bob := signToken(t, testSecret, "acme", "bob")

	rec, _ := doJSON(t, r, http.MethodPost, "/private-messages", alice, map[string]string{"recipient": "carol", "body": "old"})
	require.Equal(t, http.StatusCreated, rec.Code)
	rec, _ = doJSON(t, r, http.MethodPost, "/private-messages", alice, map[string]string{"recipient": "bob", "body": "ping"})
	require.Equal(t, http.StatusCreated, rec.Code)
	rec, _ = doJSON(t, r, http.MethodPost, "/private-messages", bob, map[string]string{"recipient": "alice", "body": "pong"})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec, env := doJSON(t, r, http.MethodGet, "/conversations", alice, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var overview struct {
		Conversations []struct {
			OtherParticipant string                 `json:"other_participant"`
			LastMessage      *models.PrivateMessage `json:"last_message"`
			MessageCount     int                    `json:"message_count"`
		} `json:"conversations"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &overview))
	require.Len(t, overview.Conversations, 2)
	assert.Equal(t, "bob", overview.Conversations[0].OtherParticipant)
	assert.Equal(t, "pong", overview.Conversations[0].LastMessage.Body)
	assert.Equal(t, 2, overview.Conversations[0].MessageCount)
	assert.Equal(t, "carol", overview.Conversations[1].OtherParticipant)
}

func TestRecentAndRange(t *testing.T) {
	r := newTestRouter(t)
	token := signToken(t, testSecret, "acme", "u1")

	_, env := doJSON(t, r, http.MethodPost, "/groups", token, map[string]string{"name": "Sales"})
	var group models.Group
	require.NoError(t, json.Unmarshal(env.Data, &group))
	base := "/groups/" + group.ID.String() + "/messages"

	for _, body := range []string{"one", "two"} {
		rec, _ := doJSON(t, r, http.MethodPost, base, token, map[string]string{"body": body})
		require.Equal(t, http.StatusCreated, rec.Code)
	}

	rec, env := doJSON(t, r, http.MethodGet, "/messages/recent?limit=1", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var listing struct {
		Messages []models.GroupMessage `json:"messages"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &listing))
	require.Len(t, listing.Messages, 1)
	assert.Equal(t, "two", listing.Messages[0].Body)

	today := time.Now().UTC().Format("2006-01-02")
	rec, env = doJSON(t, r, http.MethodGet, "/messages/range?start="+today+"&end="+today, token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(env.Data, &listing))
	assert.Len(t, listing.Messages, 2)

	rec, _ = doJSON(t, r, http.MethodGet, "/messages/range?start=2025-06-02&end=2025-06-01", token, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = doJSON(t, r, http.MethodGet, "/messages/range?start=junk&end="+today, token, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestEditValidation(t *testing.T) {
	r := newTestRouter(t)
	token := signToken(t, testSecret, "acme", "u1")

	_, env := doJSON(t, r, http.MethodPost, "/groups", token, map[string]string{"name": "Sales"})
	var group models.Group
	require.NoError(t, json.Unmarshal(env.Data, &group))

	rec, env := doJSON(t, r, http.MethodPost, "/groups/"+group.ID.String()+"/messages", token, map[string]string{"body": "hi"})
	require.Equal(t, http.StatusCreated, rec.Code)
	var msg models.GroupMessage
	require.NoError(t, json.Unmarshal(env.Data, &msg))

	rec, _ = doJSON(t, r, http.MethodPut, "/messages/"+msg.ID, token, map[string]string{"body": ""})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = doJSON(t, r, http.MethodPut, "/messages/does-not-exist", token, map[string]string{"body": "new"})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

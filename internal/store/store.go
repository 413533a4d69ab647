package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/kchat-io/kchat/internal/models"
)

// ErrConflict is returned when a write violates a unique constraint,
// e.g. two groups with the same name inside one tenant.
var ErrConflict = errors.New("store: conflict")

// DataStore defines the interface for persistent storage of groups and
// messages. Both PostgresStore and SQLiteStore implement this interface.
// Every method is scoped by tenant; a row that exists under a different
// tenant is indistinguishable from a missing row and is reported as
// (nil, nil) or a false matched flag.
type DataStore interface {
	// Connection management
	Close()
	Ping(ctx context.Context) error

	// Group operations
	CreateGroup(ctx context.Context, tenant, name string) (*models.Group, error)
	ListGroups(ctx context.Context, tenant string) ([]models.Group, error)
	GetGroup(ctx context.Context, id uuid.UUID, tenant string) (*models.Group, error)
	GroupExists(ctx context.Context, id uuid.UUID, tenant string) (bool, error)
	// DeleteGroup removes the group's messages first, then the group row,
	// as two ordered statements without a wrapping transaction. If the
	// second step fails the messages are already gone; a group whose
	// messages outlive it never occurs.
	DeleteGroup(ctx context.Context, id uuid.UUID, tenant string) (removed int64, found bool, err error)

	// Group message operations. Update and soft delete scope by author as
	// well; 0 matched rows covers missing, foreign-tenant and not-owner
	// alike, and the caller collapses those into one not-found answer.
	CreateGroupMessage(ctx context.Context, msg *models.GroupMessage) error
	ListGroupMessages(ctx context.Context, groupID uuid.UUID, tenant string, limit, offset int) ([]models.GroupMessage, int, error)
	GetGroupMessage(ctx context.Context, id, tenant string, includeDeleted bool) (*models.GroupMessage, error)
	UpdateGroupMessage(ctx context.Context, id, tenant, author, body string) (bool, error)
	SoftDeleteGroupMessage(ctx context.Context, id, tenant, author string) (bool, error)
	CountGroupMessages(ctx context.Context, groupID uuid.UUID, tenant string) (int64, error)
	ListRecentMessages(ctx context.Context, tenant string, limit int) ([]models.GroupMessage, error)
	ListMessagesByDateRange(ctx context.Context, tenant string, start, end time.Time) ([]models.GroupMessage, error)

	// Private message operations
	CreatePrivateMessage(ctx context.Context, msg *models.PrivateMessage) error
	ListPrivateMessagesFor(ctx context.Context, tenant, user string) ([]models.PrivateMessage, error)
	ListConversationMessages(ctx context.Context, tenant, a, b string) ([]models.PrivateMessage, error)
	ListParticipants(ctx context.Context, tenant string) ([]string, error)
	LastMessageBetween(ctx context.Context, tenant, a, b string) (*models.PrivateMessage, error)
}

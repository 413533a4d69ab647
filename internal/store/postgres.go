package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/oklog/ulid/v2"

	"github.com/kchat-io/kchat/internal/models"
)

// PostgresStore handles PostgreSQL database operations.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgreSQL store with a connection pool.
func NewPostgresStore(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, err
	}

	if err := pool.Ping(ctx); err != nil {
		return nil, err
	}

	return &PostgresStore{pool: pool}, nil
}

// RunMigrations creates the schema if it doesn't exist.
func RunMigrations(ctx context.Context, databaseURL string) error {
	conn, err := pgx.Connect(ctx, databaseURL)
	if err != nil {
		return err
	}
	defer conn.Close(ctx)

	schema := `
	CREATE TABLE IF NOT EXISTS groups (
		id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
		tenant TEXT NOT NULL,
		name TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		UNIQUE (tenant, name)
	);

	CREATE TABLE IF NOT EXISTS group_messages (
		id TEXT PRIMARY KEY,
		group_id UUID NOT NULL,
		tenant TEXT NOT NULL,
		author TEXT NOT NULL,
		body TEXT NOT NULL,
		attachment TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		edited BOOLEAN NOT NULL DEFAULT FALSE,
		deleted BOOLEAN NOT NULL DEFAULT FALSE
	);

	CREATE TABLE IF NOT EXISTS private_messages (
		id TEXT PRIMARY KEY,
		tenant TEXT NOT NULL,
		sender TEXT NOT NULL,
		recipient TEXT NOT NULL,
		body TEXT NOT NULL,
		attachment_link TEXT NOT NULL DEFAULT '',
		attachment_file TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);

	CREATE INDEX IF NOT EXISTS idx_groups_tenant ON groups(tenant, created_at);
	CREATE INDEX IF NOT EXISTS idx_group_messages_group ON group_messages(tenant, group_id, created_at);
	CREATE INDEX IF NOT EXISTS idx_group_messages_tenant ON group_messages(tenant, created_at);
	CREATE INDEX IF NOT EXISTS idx_private_messages_sender ON private_messages(tenant, sender);
	CREATE INDEX IF NOT EXISTS idx_private_messages_recipient ON private_messages(tenant, recipient);
	`

	_, err = conn.Exec(ctx, schema)
	return err
}

// Close closes the database connection pool.
func (s *PostgresStore) Close() {
	s.pool.Close()
}

// Ping checks the database connection.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// isPgConflict reports whether err is a unique-constraint violation.
func isPgConflict(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

// CreateGroup creates a new group for the tenant.
func (s *PostgresStore) CreateGroup(ctx context.Context, tenant, name string) (*models.Group, error) {
	group := &models.Group{}
	err := s.pool.QueryRow(ctx, `
		INSERT INTO groups (tenant, name)
		VALUES ($1, $2)
		RETURNING id, tenant, name, created_at
	`, tenant, name).Scan(
		&group.ID,
		&group.Tenant,
		&group.Name,
		&group.CreatedAt,
	)
	if err != nil {
		if isPgConflict(err) {
			return nil, ErrConflict
		}
		return nil, err
	}
	return group, nil
}

// ListGroups retrieves the tenant's groups, newest-created first.
func (s *PostgresStore) ListGroups(ctx context.Context, tenant string) ([]models.Group, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, tenant, name, created_at
		FROM groups
		WHERE tenant = $1
		ORDER BY created_at DESC, id DESC
	`, tenant)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var groups []models.Group
	for rows.Next() {
		var group models.Group
		if err := rows.Scan(&group.ID, &group.Tenant, &group.Name, &group.CreatedAt); err != nil {
			return nil, err
		}
		groups = append(groups, group)
	}
	return groups, rows.Err()
}

// GetGroup retrieves a group by ID within the tenant.
func (s *PostgresStore) GetGroup(ctx context.Context, id uuid.UUID, tenant string) (*models.Group, error) {
	group := &models.Group{}
	err := s.pool.QueryRow(ctx, `
		SELECT id, tenant, name, created_at
		FROM groups WHERE id = $1 AND tenant = $2
	`, id, tenant).Scan(
		&group.ID,
		&group.Tenant,
		&group.Name,
		&group.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return group, nil
}

// GroupExists reports whether the group exists within the tenant.
func (s *PostgresStore) GroupExists(ctx context.Context, id uuid.UUID, tenant string) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM groups WHERE id = $1 AND tenant = $2)
	`, id, tenant).Scan(&exists)
	return exists, err
}

// DeleteGroup removes the group's messages, then the group row.
func (s *PostgresStore) DeleteGroup(ctx context.Context, id uuid.UUID, tenant string) (int64, bool, error) {
	exists, err := s.GroupExists(ctx, id, tenant)
	if err != nil {
		return 0, false, err
	}
	if !exists {
		return 0, false, nil
	}

	// Messages go first; see DataStore.DeleteGroup.
	res, err := s.pool.Exec(ctx, `
		DELETE FROM group_messages WHERE group_id = $1 AND tenant = $2
	`, id, tenant)
	if err != nil {
		return 0, false, err
	}
	removed := res.RowsAffected()

	if _, err := s.pool.Exec(ctx, `
		DELETE FROM groups WHERE id = $1 AND tenant = $2
	`, id, tenant); err != nil {
		return removed, false, err
	}

	return removed, true, nil
}

// CreateGroupMessage stores a message (generates ID and timestamp).
func (s *PostgresStore) CreateGroupMessage(ctx context.Context, msg *models.GroupMessage) error {
	if msg.ID == "" {
		msg.ID = ulid.Make().String()
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO group_messages (id, group_id, tenant, author, body, attachment, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, msg.ID, msg.GroupID, msg.Tenant, msg.Author, msg.Body, msg.Attachment, msg.CreatedAt)
	return err
}

// ListGroupMessages retrieves a page of the group's messages ascending by
// (created_at, id), excluding soft-deleted rows. Returns the total count of
// visible messages alongside the page.
func (s *PostgresStore) ListGroupMessages(ctx context.Context, groupID uuid.UUID, tenant string, limit, offset int) ([]models.GroupMessage, int, error) {
	var total int
	err := s.pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM group_messages
		WHERE group_id = $1 AND tenant = $2 AND deleted = FALSE
	`, groupID, tenant).Scan(&total)
	if err != nil {
		return nil, 0, err
	}

	rows, err := s.pool.Query(ctx, `
		SELECT id, group_id, tenant, author, body, attachment, created_at, edited, deleted
		FROM group_messages
		WHERE group_id = $1 AND tenant = $2 AND deleted = FALSE
		ORDER BY created_at ASC, id ASC
		LIMIT $3 OFFSET $4
	`, groupID, tenant, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	msgs, err := scanPgMessages(rows)
	if err != nil {
		return nil, 0, err
	}
	return msgs, total, nil
}

// GetGroupMessage retrieves a message by ID within the tenant. Soft-deleted
// rows are only visible when includeDeleted is set.
func (s *PostgresStore) GetGroupMessage(ctx context.Context, id, tenant string, includeDeleted bool) (*models.GroupMessage, error) {
	query := `
		SELECT id, group_id, tenant, author, body, attachment, created_at, edited, deleted
		FROM group_messages WHERE id = $1 AND tenant = $2
	`
	if !includeDeleted {
		query += ` AND deleted = FALSE`
	}

	msg := &models.GroupMessage{}
	err := s.pool.QueryRow(ctx, query, id, tenant).Scan(
		&msg.ID,
		&msg.GroupID,
		&msg.Tenant,
		&msg.Author,
		&msg.Body,
		&msg.Attachment,
		&msg.CreatedAt,
		&msg.Edited,
		&msg.Deleted,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return msg, nil
}

// UpdateGroupMessage replaces the body of the author's message and marks it
// edited. Reports whether a row matched.
func (s *PostgresStore) UpdateGroupMessage(ctx context.Context, id, tenant, author, body string) (bool, error) {
	res, err := s.pool.Exec(ctx, `
		UPDATE group_messages SET body = $1, edited = TRUE
		WHERE id = $2 AND tenant = $3 AND author = $4 AND deleted = FALSE
	`, body, id, tenant, author)
	if err != nil {
		return false, err
	}
	return res.RowsAffected() > 0, nil
}

// SoftDeleteGroupMessage hides the author's message from normal reads.
// Reports whether a row matched.
func (s *PostgresStore) SoftDeleteGroupMessage(ctx context.Context, id, tenant, author string) (bool, error) {
	res, err := s.pool.Exec(ctx, `
		UPDATE group_messages SET deleted = TRUE
		WHERE id = $1 AND tenant = $2 AND author = $3 AND deleted = FALSE
	`, id, tenant, author)
	if err != nil {
		return false, err
	}
	return res.RowsAffected() > 0, nil
}

// CountGroupMessages returns the number of visible messages in the group.
func (s *PostgresStore) CountGroupMessages(ctx context.Context, groupID uuid.UUID, tenant string) (int64, error) {
	var count int64
	err := s.pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM group_messages
		WHERE group_id = $1 AND tenant = $2 AND deleted = FALSE
	`, groupID, tenant).Scan(&count)
	return count, err
}

// ListRecentMessages retrieves the tenant's most recent messages across all
// groups, newest first.
func (s *PostgresStore) ListRecentMessages(ctx context.Context, tenant string, limit int) ([]models.GroupMessage, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, group_id, tenant, author, body, attachment, created_at, edited, deleted
		FROM group_messages
		WHERE tenant = $1 AND deleted = FALSE
		ORDER BY created_at DESC, id DESC
		LIMIT $2
	`, tenant, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanPgMessages(rows)
}

// ListMessagesByDateRange retrieves the tenant's messages created in
// [start, end), ascending.
func (s *PostgresStore) ListMessagesByDateRange(ctx context.Context, tenant string, start, end time.Time) ([]models.GroupMessage, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, group_id, tenant, author, body, attachment, created_at, edited, deleted
		FROM group_messages
		WHERE tenant = $1 AND deleted = FALSE AND created_at >= $2 AND created_at < $3
		ORDER BY created_at ASC, id ASC
	`, tenant, start, end)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanPgMessages(rows)
}

func scanPgMessages(rows pgx.Rows) ([]models.GroupMessage, error) {
	var msgs []models.GroupMessage
	for rows.Next() {
		var msg models.GroupMessage
		err := rows.Scan(
			&msg.ID,
			&msg.GroupID,
			&msg.Tenant,
			&msg.Author,
			&msg.Body,
			&msg.Attachment,
			&msg.CreatedAt,
			&msg.Edited,
			&msg.Deleted,
		)
		if err != nil {
			return nil, err
		}
		msgs = append(msgs, msg)
	}
	return msgs, rows.Err()
}

// CreatePrivateMessage stores a private message (generates ID and timestamp).
func (s *PostgresStore) CreatePrivateMessage(ctx context.Context, msg *models.PrivateMessage) error {
	if msg.ID == "" {
		msg.ID = ulid.Make().String()
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO private_messages (id, tenant, sender, recipient, body, attachment_link, attachment_file, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, msg.ID, msg.Tenant, msg.Sender, msg.Recipient, msg.Body, msg.AttachmentLink, msg.AttachmentFile, msg.CreatedAt)
	return err
}

// ListPrivateMessagesFor retrieves every message the user sent or received
// within the tenant, newest first.
func (s *PostgresStore) ListPrivateMessagesFor(ctx context.Context, tenant, user string) ([]models.PrivateMessage, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, tenant, sender, recipient, body, attachment_link, attachment_file, created_at
		FROM private_messages
		WHERE tenant = $1 AND (sender = $2 OR recipient = $2)
		ORDER BY created_at DESC, id DESC
	`, tenant, user)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanPgPrivateMessages(rows)
}

// ListConversationMessages retrieves the messages between a and b in either
// direction, ascending. Symmetric over (a, b).
func (s *PostgresStore) ListConversationMessages(ctx context.Context, tenant, a, b string) ([]models.PrivateMessage, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, tenant, sender, recipient, body, attachment_link, attachment_file, created_at
		FROM private_messages
		WHERE tenant = $1 AND ((sender = $2 AND recipient = $3) OR (sender = $3 AND recipient = $2))
		ORDER BY created_at ASC, id ASC
	`, tenant, a, b)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanPgPrivateMessages(rows)
}

// ListParticipants returns the sorted distinct union of every sender and
// recipient in the tenant.
func (s *PostgresStore) ListParticipants(ctx context.Context, tenant string) ([]string, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT sender AS participant FROM private_messages WHERE tenant = $1
		UNION
		SELECT recipient FROM private_messages WHERE tenant = $1
		ORDER BY participant ASC
	`, tenant)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var participants []string
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, err
		}
		participants = append(participants, p)
	}
	return participants, rows.Err()
}

// LastMessageBetween retrieves the newest message between a and b, in either
// direction. Ties on created_at break by maximum ID.
func (s *PostgresStore) LastMessageBetween(ctx context.Context, tenant, a, b string) (*models.PrivateMessage, error) {
	msg := &models.PrivateMessage{}
	err := s.pool.QueryRow(ctx, `
		SELECT id, tenant, sender, recipient, body, attachment_link, attachment_file, created_at
		FROM private_messages
		WHERE tenant = $1 AND ((sender = $2 AND recipient = $3) OR (sender = $3 AND recipient = $2))
		ORDER BY created_at DESC, id DESC
		LIMIT 1
	`, tenant, a, b).Scan(
		&msg.ID,
		&msg.Tenant,
		&msg.Sender,
		&msg.Recipient,
		&msg.Body,
		&msg.AttachmentLink,
		&msg.AttachmentFile,
		&msg.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return msg, nil
}

func scanPgPrivateMessages(rows pgx.Rows) ([]models.PrivateMessage, error) {
	var msgs []models.PrivateMessage
	for rows.Next() {
		var msg models.PrivateMessage
		err := rows.Scan(
			&msg.ID,
			&msg.Tenant,
			&msg.Sender,
			&msg.Recipient,
			&msg.Body,
			&msg.AttachmentLink,
			&msg.AttachmentFile,
			&msg.CreatedAt,
		)
		if err != nil {
			return nil, err
		}
		msgs = append(msgs, msg)
	}
	return msgs, rows.Err()
}

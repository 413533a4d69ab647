package store

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/mattn/go-sqlite3"
	"github.com/oklog/ulid/v2"

	"github.com/kchat-io/kchat/internal/models"
)

// SQLiteStore handles SQLite database operations. It is the development and
// test backend; deployments use PostgresStore.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLite store.
// If dbPath is empty, defaults to "./data/kchat.db"
func NewSQLiteStore(ctx context.Context, dbPath string) (*SQLiteStore, error) {
	if dbPath == "" {
		dbPath = "./data/kchat.db"
	}

	// Ensure directory exists
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_foreign_keys=on")
	if err != nil {
		return nil, err
	}

	if err := db.PingContext(ctx); err != nil {
		return nil, err
	}

	store := &SQLiteStore{db: db}

	// Initialize schema
	if err := store.initSchema(ctx); err != nil {
		return nil, err
	}

	return store, nil
}

// initSchema creates tables if they don't exist.
func (s *SQLiteStore) initSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS groups (
		id TEXT PRIMARY KEY,
		tenant TEXT NOT NULL,
		name TEXT NOT NULL,
		created_at DATETIME NOT NULL,
		UNIQUE (tenant, name)
	);

	CREATE TABLE IF NOT EXISTS group_messages (
		id TEXT PRIMARY KEY,
		group_id TEXT NOT NULL,
		tenant TEXT NOT NULL,
		author TEXT NOT NULL,
		body TEXT NOT NULL,
		attachment TEXT NOT NULL DEFAULT '',
		created_at DATETIME NOT NULL,
		edited INTEGER NOT NULL DEFAULT 0,
		deleted INTEGER NOT NULL DEFAULT 0
	);

	CREATE TABLE IF NOT EXISTS private_messages (
		id TEXT PRIMARY KEY,
		tenant TEXT NOT NULL,
		sender TEXT NOT NULL,
		recipient TEXT NOT NULL,
		body TEXT NOT NULL,
		attachment_link TEXT NOT NULL DEFAULT '',
		attachment_file TEXT NOT NULL DEFAULT '',
		created_at DATETIME NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_groups_tenant ON groups(tenant, created_at);
	CREATE INDEX IF NOT EXISTS idx_group_messages_group ON group_messages(tenant, group_id, created_at);
	CREATE INDEX IF NOT EXISTS idx_group_messages_tenant ON group_messages(tenant, created_at);
	CREATE INDEX IF NOT EXISTS idx_private_messages_sender ON private_messages(tenant, sender);
	CREATE INDEX IF NOT EXISTS idx_private_messages_recipient ON private_messages(tenant, recipient);
	`

	_, err := s.db.ExecContext(ctx, schema)
	return err
}

// Close closes the database connection.
func (s *SQLiteStore) Close() {
	s.db.Close()
}

// Ping checks the database connection.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// isSQLiteConflict reports whether err is a unique-constraint violation.
func isSQLiteConflict(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.Code == sqlite3.ErrConstraint
	}
	return false
}

// CreateGroup creates a new group for the tenant.
func (s *SQLiteStore) CreateGroup(ctx context.Context, tenant, name string) (*models.Group, error) {
	group := &models.Group{
		ID:        uuid.New(),
		Tenant:    tenant,
		Name:      name,
		CreatedAt: time.Now().UTC(),
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO groups (id, tenant, name, created_at)
		VALUES (?, ?, ?, ?)
	`, group.ID.String(), group.Tenant, group.Name, group.CreatedAt)
	if err != nil {
		if isSQLiteConflict(err) {
			return nil, ErrConflict
		}
		return nil, err
	}

	return group, nil
}

// ListGroups retrieves the tenant's groups, newest-created first.
func (s *SQLiteStore) ListGroups(ctx context.Context, tenant string) ([]models.Group, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, tenant, name, created_at
		FROM groups
		WHERE tenant = ?
		ORDER BY created_at DESC, id DESC
	`, tenant)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var groups []models.Group
	for rows.Next() {
		var group models.Group
		var idStr string
		if err := rows.Scan(&idStr, &group.Tenant, &group.Name, &group.CreatedAt); err != nil {
			return nil, err
		}
		group.ID = uuid.MustParse(idStr)
		groups = append(groups, group)
	}
	return groups, rows.Err()
}

// GetGroup retrieves a group by ID within the tenant.
func (s *SQLiteStore) GetGroup(ctx context.Context, id uuid.UUID, tenant string) (*models.Group, error) {
	group := &models.Group{}
	var idStr string
	err := s.db.QueryRowContext(ctx, `
		SELECT id, tenant, name, created_at
		FROM groups WHERE id = ? AND tenant = ?
	`, id.String(), tenant).Scan(&idStr, &group.Tenant, &group.Name, &group.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	group.ID = uuid.MustParse(idStr)
	return group, nil
}

// GroupExists reports whether the group exists within the tenant.
func (s *SQLiteStore) GroupExists(ctx context.Context, id uuid.UUID, tenant string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx, `
		SELECT 1 FROM groups WHERE id = ? AND tenant = ?
	`, id.String(), tenant).Scan(&one)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// DeleteGroup removes the group's messages, then the group row.
func (s *SQLiteStore) DeleteGroup(ctx context.Context, id uuid.UUID, tenant string) (int64, bool, error) {
	exists, err := s.GroupExists(ctx, id, tenant)
	if err != nil {
		return 0, false, err
	}
	if !exists {
		return 0, false, nil
	}

	// Messages go first; see DataStore.DeleteGroup.
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM group_messages WHERE group_id = ? AND tenant = ?
	`, id.String(), tenant)
	if err != nil {
		return 0, false, err
	}
	removed, _ := res.RowsAffected()

	if _, err := s.db.ExecContext(ctx, `
		DELETE FROM groups WHERE id = ? AND tenant = ?
	`, id.String(), tenant); err != nil {
		return removed, false, err
	}

	return removed, true, nil
}

// CreateGroupMessage stores a message (generates ID and timestamp).
func (s *SQLiteStore) CreateGroupMessage(ctx context.Context, msg *models.GroupMessage) error {
	if msg.ID == "" {
		msg.ID = ulid.Make().String()
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO group_messages (id, group_id, tenant, author, body, attachment, created_at, edited, deleted)
		VALUES (?, ?, ?, ?, ?, ?, ?, 0, 0)
	`, msg.ID, msg.GroupID.String(), msg.Tenant, msg.Author, msg.Body, msg.Attachment, msg.CreatedAt)
	return err
}

// ListGroupMessages retrieves a page of the group's messages ascending by
// (created_at, id), excluding soft-deleted rows. Returns the total count of
// visible messages alongside the page.
func (s *SQLiteStore) ListGroupMessages(ctx context.Context, groupID uuid.UUID, tenant string, limit, offset int) ([]models.GroupMessage, int, error) {
	var total int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM group_messages
		WHERE group_id = ? AND tenant = ? AND deleted = 0
	`, groupID.String(), tenant).Scan(&total)
	if err != nil {
		return nil, 0, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, group_id, tenant, author, body, attachment, created_at, edited, deleted
		FROM group_messages
		WHERE group_id = ? AND tenant = ? AND deleted = 0
		ORDER BY created_at ASC, id ASC
		LIMIT ? OFFSET ?
	`, groupID.String(), tenant, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	msgs, err := scanSQLiteMessages(rows)
	if err != nil {
		return nil, 0, err
	}
	return msgs, total, nil
}

// GetGroupMessage retrieves a message by ID within the tenant. Soft-deleted
// rows are only visible when includeDeleted is set.
func (s *SQLiteStore) GetGroupMessage(ctx context.Context, id, tenant string, includeDeleted bool) (*models.GroupMessage, error) {
	query := `
		SELECT id, group_id, tenant, author, body, attachment, created_at, edited, deleted
		FROM group_messages WHERE id = ? AND tenant = ?
	`
	if !includeDeleted {
		query += ` AND deleted = 0`
	}

	msg := &models.GroupMessage{}
	var groupIDStr string
	var edited, deleted int
	err := s.db.QueryRowContext(ctx, query, id, tenant).Scan(
		&msg.ID,
		&groupIDStr,
		&msg.Tenant,
		&msg.Author,
		&msg.Body,
		&msg.Attachment,
		&msg.CreatedAt,
		&edited,
		&deleted,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	msg.GroupID = uuid.MustParse(groupIDStr)
	msg.Edited = edited == 1
	msg.Deleted = deleted == 1
	return msg, nil
}

// UpdateGroupMessage replaces the body of the author's message and marks it
// edited. Reports whether a row matched.
func (s *SQLiteStore) UpdateGroupMessage(ctx context.Context, id, tenant, author, body string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE group_messages SET body = ?, edited = 1
		WHERE id = ? AND tenant = ? AND author = ? AND deleted = 0
	`, body, id, tenant, author)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// SoftDeleteGroupMessage hides the author's message from normal reads.
// Reports whether a row matched.
func (s *SQLiteStore) SoftDeleteGroupMessage(ctx context.Context, id, tenant, author string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE group_messages SET deleted = 1
		WHERE id = ? AND tenant = ? AND author = ? AND deleted = 0
	`, id, tenant, author)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// CountGroupMessages returns the number of visible messages in the group.
func (s *SQLiteStore) CountGroupMessages(ctx context.Context, groupID uuid.UUID, tenant string) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM group_messages
		WHERE group_id = ? AND tenant = ? AND deleted = 0
	`, groupID.String(), tenant).Scan(&count)
	return count, err
}

// ListRecentMessages retrieves the tenant's most recent messages across all
// groups, newest first.
func (s *SQLiteStore) ListRecentMessages(ctx context.Context, tenant string, limit int) ([]models.GroupMessage, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, group_id, tenant, author, body, attachment, created_at, edited, deleted
		FROM group_messages
		WHERE tenant = ? AND deleted = 0
		ORDER BY created_at DESC, id DESC
		LIMIT ?
	`, tenant, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanSQLiteMessages(rows)
}

// ListMessagesByDateRange retrieves the tenant's messages created in
// [start, end), ascending.
func (s *SQLiteStore) ListMessagesByDateRange(ctx context.Context, tenant string, start, end time.Time) ([]models.GroupMessage, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, group_id, tenant, author, body, attachment, created_at, edited, deleted
		FROM group_messages
		WHERE tenant = ? AND deleted = 0 AND created_at >= ? AND created_at < ?
		ORDER BY created_at ASC, id ASC
	`, tenant, start, end)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanSQLiteMessages(rows)
}

func scanSQLiteMessages(rows *sql.Rows) ([]models.GroupMessage, error) {
	var msgs []models.GroupMessage
	for rows.Next() {
		var msg models.GroupMessage
		var groupIDStr string
		var edited, deleted int
		err := rows.Scan(
			&msg.ID,
			&groupIDStr,
			&msg.Tenant,
			&msg.Author,
			&msg.Body,
			&msg.Attachment,
			&msg.CreatedAt,
			&edited,
			&deleted,
		)
		if err != nil {
			return nil, err
		}
		msg.GroupID = uuid.MustParse(groupIDStr)
		msg.Edited = edited == 1
		msg.Deleted = deleted == 1
		msgs = append(msgs, msg)
	}
	return msgs, rows.Err()
}

// CreatePrivateMessage stores a private message (generates ID and timestamp).
func (s *SQLiteStore) CreatePrivateMessage(ctx context.Context, msg *models.PrivateMessage) error {
	if msg.ID == "" {
		msg.ID = ulid.Make().String()
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO private_messages (id, tenant, sender, recipient, body, attachment_link, attachment_file, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, msg.ID, msg.Tenant, msg.Sender, msg.Recipient, msg.Body, msg.AttachmentLink, msg.AttachmentFile, msg.CreatedAt)
	return err
}

// ListPrivateMessagesFor retrieves every message the user sent or received
// within the tenant, newest first.
func (s *SQLiteStore) ListPrivateMessagesFor(ctx context.Context, tenant, user string) ([]models.PrivateMessage, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, tenant, sender, recipient, body, attachment_link, attachment_file, created_at
		FROM private_messages
		WHERE tenant = ? AND (sender = ? OR recipient = ?)
		ORDER BY created_at DESC, id DESC
	`, tenant, user, user)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanSQLitePrivateMessages(rows)
}

// ListConversationMessages retrieves the messages between a and b in either
// direction, ascending. Symmetric over (a, b).
func (s *SQLiteStore) ListConversationMessages(ctx context.Context, tenant, a, b string) ([]models.PrivateMessage, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, tenant, sender, recipient, body, attachment_link, attachment_file, created_at
		FROM private_messages
		WHERE tenant = ? AND ((sender = ? AND recipient = ?) OR (sender = ? AND recipient = ?))
		ORDER BY created_at ASC, id ASC
	`, tenant, a, b, b, a)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanSQLitePrivateMessages(rows)
}

// ListParticipants returns the sorted distinct union of every sender and
// recipient in the tenant. UNION rather than a join: the two roles are
// symmetric projections of the same population.
func (s *SQLiteStore) ListParticipants(ctx context.Context, tenant string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT sender AS participant FROM private_messages WHERE tenant = ?
		UNION
		SELECT recipient FROM private_messages WHERE tenant = ?
		ORDER BY participant ASC
	`, tenant, tenant)
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
func (s *SQLiteStore) LastMessageBetween(ctx context.Context, tenant, a, b string) (*models.PrivateMessage, error) {
	msg := &models.PrivateMessage{}
	err := s.db.QueryRowContext(ctx, `
		SELECT id, tenant, sender, recipient, body, attachment_link, attachment_file, created_at
		FROM private_messages
		WHERE tenant = ? AND ((sender = ? AND recipient = ?) OR (sender = ? AND recipient = ?))
		ORDER BY created_at DESC, id DESC
		LIMIT 1
	`, tenant, a, b, b, a).Scan(
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
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return msg, nil
}

func scanSQLitePrivateMessages(rows *sql.Rows) ([]models.PrivateMessage, error) {
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

package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"edu-notify/internal/models"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"
)

// SQLiteStore implements NotificationStore on an embedded SQLite database.
// It backs local development and the test suites.
type SQLiteStore struct {
	db    *sqlx.DB
	clock *Clock
}

// NewSQLiteStore opens (or creates) the database at dbPath and applies
// pending migrations. ":memory:" gives a private in-memory database.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sqlx.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite db: %w", err)
	}

	// One connection: SQLite has a single writer, and an in-memory database
	// lives only as long as its connection.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys=ON",
		"PRAGMA busy_timeout=5000",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("%s: %w", pragma, err)
		}
	}

	s := &SQLiteStore{db: db, clock: processClock}
	if err := s.runMigrations(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) runMigrations() error {
	currentVersion := 0

	var tableCount int
	err := s.db.Get(&tableCount,
		"SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name='schema_version'")
	if err != nil {
		return fmt.Errorf("checking schema_version table: %w", err)
	}
	if tableCount > 0 {
		if err := s.db.Get(&currentVersion, "SELECT COALESCE(MAX(version), 0) FROM schema_version"); err != nil {
			return fmt.Errorf("reading schema version: %w", err)
		}
	}

	for _, m := range migrations {
		if m.version <= currentVersion {
			continue
		}
		if _, err := s.db.Exec(m.sql); err != nil {
			return fmt.Errorf("applying migration v%d: %w", m.version, err)
		}
	}
	return nil
}

func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) Create(ctx context.Context, n *models.Notification) (string, error) {
	if err := prepare(n, s.clock); err != nil {
		return "", err
	}

	data := ""
	if len(n.Data) > 0 {
		raw, err := json.Marshal(n.Data)
		if err != nil {
			return "", &models.ValidationError{Field: "data", Reason: "must be a JSON object"}
		}
		data = string(raw)
	}
	createdAt := n.CreatedAt.UnixMilli()

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO notifications (
			id, type, title, message, priority,
			audience_kind, audience_course_id,
			action_url, action_text, data, created_by, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		n.ID, string(n.Type), n.Title, n.Message, string(n.Priority),
		string(n.Audience.Kind), n.Audience.CourseID,
		n.ActionURL, n.ActionText, data, n.CreatedBy, createdAt,
	)
	if err != nil {
		return "", fmt.Errorf("inserting notification: %w", err)
	}

	stmt, err := tx.PreparexContext(ctx, `
		INSERT OR IGNORE INTO notification_recipients (notification_id, user_id, type, created_at)
		VALUES (?, ?, ?, ?)`)
	if err != nil {
		return "", fmt.Errorf("preparing recipient insert: %w", err)
	}
	defer stmt.Close()

	for _, userID := range n.Recipients {
		if _, err := stmt.ExecContext(ctx, n.ID, userID, string(n.Type), createdAt); err != nil {
			return "", fmt.Errorf("inserting recipient %s: %w", userID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("committing notification: %w", err)
	}
	return n.ID, nil
}

type userNotificationRow struct {
	ID         string        `db:"id"`
	Type       string        `db:"type"`
	Title      string        `db:"title"`
	Message    string        `db:"message"`
	Priority   string        `db:"priority"`
	ActionURL  string        `db:"action_url"`
	ActionText string        `db:"action_text"`
	Data       string        `db:"data"`
	CreatedAt  int64         `db:"created_at"`
	IsRead     int           `db:"is_read"`
	ReadAt     sql.NullInt64 `db:"read_at"`
}

func (r userNotificationRow) toModel() (models.UserNotification, error) {
	un := models.UserNotification{
		ID:         r.ID,
		Type:       models.NotificationType(r.Type),
		Title:      r.Title,
		Message:    r.Message,
		Priority:   models.Priority(r.Priority),
		ActionURL:  r.ActionURL,
		ActionText: r.ActionText,
		IsRead:     r.IsRead != 0,
		CreatedAt:  time.UnixMilli(r.CreatedAt).UTC(),
	}
	if r.ReadAt.Valid {
		t := time.UnixMilli(r.ReadAt.Int64).UTC()
		un.ReadAt = &t
	}
	if r.Data != "" {
		if err := json.Unmarshal([]byte(r.Data), &un.Data); err != nil {
			return models.UserNotification{}, fmt.Errorf("unmarshaling data for %s: %w", r.ID, err)
		}
	}
	return un, nil
}

const unreadCountQuery = `
	SELECT COUNT(*) FROM notification_recipients r
	LEFT JOIN read_states rs
		ON rs.notification_id = r.notification_id AND rs.user_id = r.user_id
	WHERE r.user_id = ? AND r.is_hidden = 0 AND COALESCE(rs.is_read, 0) = 0`

func (s *SQLiteStore) ListForUser(ctx context.Context, userID string, opts ListOptions) (*ListResult, error) {
	opts = opts.Normalize()

	where := "r.user_id = ? AND r.is_hidden = 0"
	args := []interface{}{userID}
	if opts.Type != "" {
		where += " AND r.type = ?"
		args = append(args, string(opts.Type))
	}

	// Items and both counters come from one transaction so they agree.
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	result := &ListResult{Page: opts.Page, PageSize: opts.PageSize, Items: []models.UserNotification{}}

	if err := tx.GetContext(ctx, &result.Total,
		"SELECT COUNT(*) FROM notification_recipients r WHERE "+where, args...); err != nil {
		return nil, fmt.Errorf("counting notifications: %w", err)
	}
	if err := tx.GetContext(ctx, &result.Unread, unreadCountQuery, userID); err != nil {
		return nil, fmt.Errorf("counting unread notifications: %w", err)
	}

	var rows []userNotificationRow
	err = tx.SelectContext(ctx, &rows, `
		SELECT n.id, n.type, n.title, n.message, n.priority,
			n.action_url, n.action_text, n.data, r.created_at,
			COALESCE(rs.is_read, 0) AS is_read, rs.read_at
		FROM notification_recipients r
		JOIN notifications n ON n.id = r.notification_id
		LEFT JOIN read_states rs
			ON rs.notification_id = r.notification_id AND rs.user_id = r.user_id
		WHERE `+where+`
		ORDER BY r.created_at DESC, r.notification_id DESC
		LIMIT ? OFFSET ?`,
		append(args, opts.PageSize, opts.offset())...,
	)
	if err != nil {
		return nil, fmt.Errorf("querying notifications: %w", err)
	}

	for _, row := range rows {
		un, err := row.toModel()
		if err != nil {
			return nil, err
		}
		result.Items = append(result.Items, un)
	}
	return result, tx.Commit()
}

func (s *SQLiteStore) UnreadCount(ctx context.Context, userID string) (int64, error) {
	var count int64
	if err := s.db.GetContext(ctx, &count, unreadCountQuery, userID); err != nil {
		return 0, fmt.Errorf("counting unread notifications: %w", err)
	}
	return count, nil
}

func (s *SQLiteStore) MarkRead(ctx context.Context, userID, notificationID string) error {
	now := time.Now().UTC().UnixMilli()

	// The SELECT only yields a row for a visible recipient, so read state can
	// never be created for anyone else. read_at keeps its first value.
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO read_states (notification_id, user_id, is_read, read_at)
		SELECT r.notification_id, r.user_id, 1, ?
		FROM notification_recipients r
		WHERE r.notification_id = ? AND r.user_id = ? AND r.is_hidden = 0
		ON CONFLICT (notification_id, user_id) DO UPDATE SET
			is_read = 1,
			read_at = COALESCE(read_states.read_at, excluded.read_at)`,
		now, notificationID, userID,
	)
	if err != nil {
		return fmt.Errorf("marking notification %s as read: %w", notificationID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return &models.NotFoundError{Resource: "notification", ID: notificationID}
	}
	return nil
}

func (s *SQLiteStore) MarkAllRead(ctx context.Context, userID string) (int64, error) {
	cutoff := s.clock.Now().UnixMilli()
	now := time.Now().UTC().UnixMilli()

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO read_states (notification_id, user_id, is_read, read_at)
		SELECT r.notification_id, r.user_id, 1, ?
		FROM notification_recipients r
		LEFT JOIN read_states rs
			ON rs.notification_id = r.notification_id AND rs.user_id = r.user_id
		WHERE r.user_id = ? AND r.is_hidden = 0 AND r.created_at <= ?
			AND COALESCE(rs.is_read, 0) = 0
		ON CONFLICT (notification_id, user_id) DO UPDATE SET
			is_read = 1,
			read_at = COALESCE(read_states.read_at, excluded.read_at)`,
		now, userID, cutoff,
	)
	if err != nil {
		return 0, fmt.Errorf("marking all notifications as read: %w", err)
	}
	return res.RowsAffected()
}

func (s *SQLiteStore) DeleteForUser(ctx context.Context, userID, notificationID string) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		UPDATE notification_recipients SET is_hidden = 1
		WHERE notification_id = ? AND user_id = ? AND is_hidden = 0`,
		notificationID, userID,
	)
	if err != nil {
		return fmt.Errorf("hiding notification %s: %w", notificationID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return &models.NotFoundError{Resource: "notification", ID: notificationID}
	}

	if _, err := tx.ExecContext(ctx,
		"DELETE FROM read_states WHERE notification_id = ? AND user_id = ?",
		notificationID, userID,
	); err != nil {
		return fmt.Errorf("removing read state for %s: %w", notificationID, err)
	}
	return tx.Commit()
}

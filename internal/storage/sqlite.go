package storage

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/taskflow/taskflow/internal/models"
)

//go:embed migrations_sqlite.sql
var sqliteMigrations embed.FS

// SQLiteStorage is the single-file development backend. It also serves as
// the storage under test, opened at ":memory:".
type SQLiteStorage struct {
	db     *sql.DB
	logger *zap.Logger
}

func NewSQLiteStorage(path string, logger *zap.Logger) (*SQLiteStorage, error) {
	if path == "" {
		return nil, fmt.Errorf("sqlite path is required")
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("error opening database: %v", err)
	}

	// A single connection keeps ":memory:" databases coherent and makes
	// the foreign_keys pragma stick.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		return nil, fmt.Errorf("error enabling foreign keys: %v", err)
	}

	s := &SQLiteStorage{db: db, logger: logger}

	if err := s.initializeSchema(); err != nil {
		return nil, fmt.Errorf("error initializing database schema: %v", err)
	}

	return s, nil
}

func (s *SQLiteStorage) initializeSchema() error {
	migrationSQL, err := sqliteMigrations.ReadFile("migrations_sqlite.sql")
	if err != nil {
		return fmt.Errorf("error reading migrations file: %v", err)
	}

	if _, err := s.db.Exec(string(migrationSQL)); err != nil {
		return fmt.Errorf("error executing migrations: %v", err)
	}

	return nil
}

const sqliteTaskColumns = "id, title, description, status, user_id, created_at, updated_at"

func scanSQLiteTask(row interface{ Scan(...any) error }) (models.Task, error) {
	var (
		t                  models.Task
		createdNs, updated int64
	)
	if err := row.Scan(&t.ID, &t.Title, &t.Description, &t.Status, &t.UserID, &createdNs, &updated); err != nil {
		return models.Task{}, err
	}
	t.CreatedAt = time.Unix(0, createdNs).UTC()
	t.UpdatedAt = time.Unix(0, updated).UTC()
	return t, nil
}

func (s *SQLiteStorage) CreateTask(ctx context.Context, userID, title, description string) (models.Task, error) {
	task, err := buildTask(userID, title, description)
	if err != nil {
		return models.Task{}, err
	}

	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO task (id, title, description, status, user_id, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		task.ID, task.Title, task.Description, task.Status, task.UserID,
		task.CreatedAt.UnixNano(), task.UpdatedAt.UnixNano(),
	); err != nil {
		return models.Task{}, fmt.Errorf("error creating task: %v", err)
	}

	return task, nil
}

func (s *SQLiteStorage) GetTask(ctx context.Context, userID, taskID string) (models.Task, error) {
	if !validID(taskID) {
		return models.Task{}, ErrTaskNotFound
	}

	task, err := scanSQLiteTask(s.db.QueryRowContext(ctx,
		`SELECT `+sqliteTaskColumns+` FROM task WHERE id = ? AND user_id = ?`, taskID, userID))
	if err == sql.ErrNoRows {
		return models.Task{}, ErrTaskNotFound
	}
	if err != nil {
		return models.Task{}, fmt.Errorf("error querying task: %v", err)
	}
	return task, nil
}

func (s *SQLiteStorage) ListTasks(ctx context.Context, userID string, filter TaskFilter) ([]models.Task, error) {
	query := `SELECT ` + sqliteTaskColumns + ` FROM task WHERE user_id = ?`
	args := []any{userID}

	if filter.Status != "" {
		query += " AND status = ?"
		args = append(args, filter.Status)
	}
	if keyword := strings.TrimSpace(filter.Search); keyword != "" {
		query += " AND (lower(title) LIKE ? OR lower(description) LIKE ?)"
		pattern := "%" + strings.ToLower(keyword) + "%"
		args = append(args, pattern, pattern)
	}
	query += " ORDER BY created_at DESC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("error querying tasks: %v", err)
	}
	defer rows.Close()

	tasks := []models.Task{}
	for rows.Next() {
		task, err := scanSQLiteTask(rows)
		if err != nil {
			return nil, fmt.Errorf("error scanning task: %v", err)
		}
		tasks = append(tasks, task)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating tasks: %v", err)
	}

	return tasks, nil
}

func (s *SQLiteStorage) UpdateTask(ctx context.Context, userID, taskID string, upd TaskUpdate) (models.Task, error) {
	if !validID(taskID) {
		return models.Task{}, ErrTaskNotFound
	}

	upd, err := normalizeUpdate(upd)
	if err != nil {
		return models.Task{}, err
	}

	sets := []string{"updated_at = ?"}
	args := []any{time.Now().UTC().UnixNano()}

	if upd.Title != nil {
		sets = append(sets, "title = ?")
		args = append(args, *upd.Title)
	}
	if upd.Description != nil {
		sets = append(sets, "description = ?")
		args = append(args, *upd.Description)
	}
	if upd.Status != nil {
		sets = append(sets, "status = ?")
		args = append(args, *upd.Status)
	}
	args = append(args, taskID, userID)

	result, err := s.db.ExecContext(ctx,
		"UPDATE task SET "+strings.Join(sets, ", ")+" WHERE id = ? AND user_id = ?", args...)
	if err != nil {
		return models.Task{}, fmt.Errorf("error updating task: %v", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return models.Task{}, fmt.Errorf("error getting rows affected: %v", err)
	}
	if affected == 0 {
		return models.Task{}, ErrTaskNotFound
	}

	return s.GetTask(ctx, userID, taskID)
}

func (s *SQLiteStorage) CompleteTask(ctx context.Context, userID, taskID string) (models.Task, error) {
	if !validID(taskID) {
		return models.Task{}, ErrTaskNotFound
	}

	// Unconditional: completing an already-completed task is a no-op, not
	// an error.
	result, err := s.db.ExecContext(ctx, `
		UPDATE task SET status = ?, updated_at = ?
		WHERE id = ? AND user_id = ?`,
		models.StatusCompleted, time.Now().UTC().UnixNano(), taskID, userID)
	if err != nil {
		return models.Task{}, fmt.Errorf("error completing task: %v", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return models.Task{}, fmt.Errorf("error getting rows affected: %v", err)
	}
	if affected == 0 {
		return models.Task{}, ErrTaskNotFound
	}

	return s.GetTask(ctx, userID, taskID)
}

func (s *SQLiteStorage) DeleteTask(ctx context.Context, userID, taskID string) error {
	if !validID(taskID) {
		return ErrTaskNotFound
	}

	result, err := s.db.ExecContext(ctx, `DELETE FROM task WHERE id = ? AND user_id = ?`, taskID, userID)
	if err != nil {
		return fmt.Errorf("error deleting task: %v", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("error getting rows affected: %v", err)
	}
	if affected == 0 {
		return ErrTaskNotFound
	}
	return nil
}

func (s *SQLiteStorage) DeleteAllTasks(ctx context.Context, userID string) (int64, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM task WHERE user_id = ?`, userID)
	if err != nil {
		return 0, fmt.Errorf("error deleting tasks: %v", err)
	}
	return result.RowsAffected()
}

func (s *SQLiteStorage) CompleteAllTasks(ctx context.Context, userID string) (int64, error) {
	result, err := s.db.ExecContext(ctx, `
		UPDATE task SET status = ?, updated_at = ?
		WHERE user_id = ? AND status = ?`,
		models.StatusCompleted, time.Now().UTC().UnixNano(), userID, models.StatusPending)
	if err != nil {
		return 0, fmt.Errorf("error completing tasks: %v", err)
	}
	return result.RowsAffected()
}

func (s *SQLiteStorage) GetOrCreateConversation(ctx context.Context, userID string) (models.Conversation, error) {
	query := `SELECT id, user_id, created_at FROM conversation WHERE user_id = ?`

	scan := func() (models.Conversation, error) {
		var (
			conv models.Conversation
			ns   int64
		)
		err := s.db.QueryRowContext(ctx, query, userID).Scan(&conv.ID, &conv.UserID, &ns)
		if err != nil {
			return models.Conversation{}, err
		}
		conv.CreatedAt = time.Unix(0, ns).UTC()
		return conv, nil
	}

	conv, err := scan()
	if err == nil {
		return conv, nil
	}
	if err != sql.ErrNoRows {
		return models.Conversation{}, fmt.Errorf("error querying conversation: %v", err)
	}

	// The unique index on user_id makes first-message races safe: the
	// losing insert is a no-op and the re-read returns the winner's row.
	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO conversation (id, user_id, created_at)
		VALUES (?, ?, ?)
		ON CONFLICT (user_id) DO NOTHING`,
		uuid.New().String(), userID, time.Now().UTC().UnixNano(),
	); err != nil {
		return models.Conversation{}, fmt.Errorf("error creating conversation: %v", err)
	}

	conv, err = scan()
	if err != nil {
		return models.Conversation{}, fmt.Errorf("error querying conversation: %v", err)
	}
	return conv, nil
}

func (s *SQLiteStorage) ListMessages(ctx context.Context, conversationID string, limit int) ([]models.Message, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, conversation_id, role, content, created_at
		FROM message
		WHERE conversation_id = ?
		ORDER BY created_at ASC
		LIMIT ?`,
		conversationID, limit)
	if err != nil {
		return nil, fmt.Errorf("error querying messages: %v", err)
	}
	defer rows.Close()

	messages := []models.Message{}
	for rows.Next() {
		var (
			m  models.Message
			ns int64
		)
		if err := rows.Scan(&m.ID, &m.ConversationID, &m.Role, &m.Content, &ns); err != nil {
			return nil, fmt.Errorf("error scanning message: %v", err)
		}
		m.CreatedAt = time.Unix(0, ns).UTC()
		messages = append(messages, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating messages: %v", err)
	}

	return messages, nil
}

func (s *SQLiteStorage) AppendMessage(ctx context.Context, conversationID, role, content string) (models.Message, error) {
	msg := models.Message{
		ID:             uuid.New().String(),
		ConversationID: conversationID,
		Role:           role,
		Content:        content,
		CreatedAt:      time.Now().UTC(),
	}

	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO message (id, conversation_id, role, content, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		msg.ID, msg.ConversationID, msg.Role, msg.Content, msg.CreatedAt.UnixNano(),
	); err != nil {
		return models.Message{}, fmt.Errorf("error appending message: %v", err)
	}

	return msg, nil
}

func (s *SQLiteStorage) GetSession(ctx context.Context, token string) (models.Session, error) {
	var (
		sess models.Session
		ns   sql.NullInt64
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT "userId", "expiresAt" FROM "session" WHERE "token" = ?`, token,
	).Scan(&sess.UserID, &ns)
	if err == sql.ErrNoRows {
		return models.Session{}, ErrSessionNotFound
	}
	if err != nil {
		return models.Session{}, fmt.Errorf("error querying session: %v", err)
	}

	sess.Token = token
	if ns.Valid {
		sess.ExpiresAt = time.Unix(0, ns.Int64).UTC()
	}
	return sess, nil
}

// PutSession inserts or replaces a session row. The session table is owned
// by the auth service in production; this exists for local development and
// tests.
func (s *SQLiteStorage) PutSession(ctx context.Context, sess models.Session) error {
	var ns any
	if !sess.ExpiresAt.IsZero() {
		ns = sess.ExpiresAt.UnixNano()
	}
	if _, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO "session" ("token", "userId", "expiresAt")
		VALUES (?, ?, ?)`,
		sess.Token, sess.UserID, ns,
	); err != nil {
		return fmt.Errorf("error writing session: %v", err)
	}
	return nil
}

func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

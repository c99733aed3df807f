package storage

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/taskflow/taskflow/internal/models"
)

//go:embed migrations_postgres.sql
var postgresMigrations embed.FS

type PostgresStorage struct {
	db     *sql.DB
	logger *zap.Logger
}

func NewPostgresStorage(cfg Config, logger *zap.Logger) (*PostgresStorage, error) {
	connStr := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.DBName, cfg.SSLMode)

	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("error opening database: %v", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("error connecting to the database: %v", err)
	}

	s := &PostgresStorage{db: db, logger: logger}

	if err := s.initializeSchema(); err != nil {
		return nil, fmt.Errorf("error initializing database schema: %v", err)
	}

	return s, nil
}

func (s *PostgresStorage) initializeSchema() error {
	migrationSQL, err := postgresMigrations.ReadFile("migrations_postgres.sql")
	if err != nil {
		return fmt.Errorf("error reading migrations file: %v", err)
	}

	if _, err := s.db.Exec(string(migrationSQL)); err != nil {
		return fmt.Errorf("error executing migrations: %v", err)
	}

	return nil
}

const postgresTaskColumns = "id, title, description, status, user_id, created_at, updated_at"

func scanPostgresTask(row interface{ Scan(...any) error }) (models.Task, error) {
	var t models.Task
	err := row.Scan(&t.ID, &t.Title, &t.Description, &t.Status, &t.UserID, &t.CreatedAt, &t.UpdatedAt)
	return t, err
}

func (s *PostgresStorage) CreateTask(ctx context.Context, userID, title, description string) (models.Task, error) {
	task, err := buildTask(userID, title, description)
	if err != nil {
		return models.Task{}, err
	}

	query := `
		INSERT INTO task (id, title, description, status, user_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`

	if _, err := s.db.ExecContext(ctx, query,
		task.ID, task.Title, task.Description, task.Status, task.UserID, task.CreatedAt, task.UpdatedAt,
	); err != nil {
		return models.Task{}, fmt.Errorf("error creating task: %v", err)
	}

	return task, nil
}

func (s *PostgresStorage) GetTask(ctx context.Context, userID, taskID string) (models.Task, error) {
	if !validID(taskID) {
		return models.Task{}, ErrTaskNotFound
	}

	query := `SELECT ` + postgresTaskColumns + ` FROM task WHERE id = $1 AND user_id = $2`

	task, err := scanPostgresTask(s.db.QueryRowContext(ctx, query, taskID, userID))
	if err == sql.ErrNoRows {
		return models.Task{}, ErrTaskNotFound
	}
	if err != nil {
		return models.Task{}, fmt.Errorf("error querying task: %v", err)
	}
	return task, nil
}

func (s *PostgresStorage) ListTasks(ctx context.Context, userID string, filter TaskFilter) ([]models.Task, error) {
	query := `SELECT ` + postgresTaskColumns + ` FROM task WHERE user_id = $1`
	args := []any{userID}

	if filter.Status != "" {
		args = append(args, filter.Status)
		query += fmt.Sprintf(" AND status = $%d", len(args))
	}
	if keyword := strings.TrimSpace(filter.Search); keyword != "" {
		args = append(args, "%"+keyword+"%")
		query += fmt.Sprintf(" AND (title ILIKE $%d OR description ILIKE $%d)", len(args), len(args))
	}
	query += " ORDER BY created_at DESC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("error querying tasks: %v", err)
	}
	defer rows.Close()

	tasks := []models.Task{}
	for rows.Next() {
		task, err := scanPostgresTask(rows)
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

func (s *PostgresStorage) UpdateTask(ctx context.Context, userID, taskID string, upd TaskUpdate) (models.Task, error) {
	if !validID(taskID) {
		return models.Task{}, ErrTaskNotFound
	}

	upd, err := normalizeUpdate(upd)
	if err != nil {
		return models.Task{}, err
	}

	sets := []string{"updated_at = $1"}
	args := []any{time.Now().UTC()}

	if upd.Title != nil {
		args = append(args, *upd.Title)
		sets = append(sets, fmt.Sprintf("title = $%d", len(args)))
	}
	if upd.Description != nil {
		args = append(args, *upd.Description)
		sets = append(sets, fmt.Sprintf("description = $%d", len(args)))
	}
	if upd.Status != nil {
		args = append(args, *upd.Status)
		sets = append(sets, fmt.Sprintf("status = $%d", len(args)))
	}

	args = append(args, taskID, userID)
	query := fmt.Sprintf(
		"UPDATE task SET %s WHERE id = $%d AND user_id = $%d RETURNING %s",
		strings.Join(sets, ", "), len(args)-1, len(args), postgresTaskColumns,
	)

	task, err := scanPostgresTask(s.db.QueryRowContext(ctx, query, args...))
	if err == sql.ErrNoRows {
		return models.Task{}, ErrTaskNotFound
	}
	if err != nil {
		return models.Task{}, fmt.Errorf("error updating task: %v", err)
	}
	return task, nil
}

func (s *PostgresStorage) CompleteTask(ctx context.Context, userID, taskID string) (models.Task, error) {
	if !validID(taskID) {
		return models.Task{}, ErrTaskNotFound
	}

	// Unconditional: completing an already-completed task is a no-op, not
	// an error.
	query := `
		UPDATE task SET status = $1, updated_at = $2
		WHERE id = $3 AND user_id = $4
		RETURNING ` + postgresTaskColumns

	task, err := scanPostgresTask(s.db.QueryRowContext(ctx, query,
		models.StatusCompleted, time.Now().UTC(), taskID, userID))
	if err == sql.ErrNoRows {
		return models.Task{}, ErrTaskNotFound
	}
	if err != nil {
		return models.Task{}, fmt.Errorf("error completing task: %v", err)
	}
	return task, nil
}

func (s *PostgresStorage) DeleteTask(ctx context.Context, userID, taskID string) error {
	if !validID(taskID) {
		return ErrTaskNotFound
	}

	result, err := s.db.ExecContext(ctx, `DELETE FROM task WHERE id = $1 AND user_id = $2`, taskID, userID)
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

func (s *PostgresStorage) DeleteAllTasks(ctx context.Context, userID string) (int64, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM task WHERE user_id = $1`, userID)
	if err != nil {
		return 0, fmt.Errorf("error deleting tasks: %v", err)
	}
	return result.RowsAffected()
}

func (s *PostgresStorage) CompleteAllTasks(ctx context.Context, userID string) (int64, error) {
	result, err := s.db.ExecContext(ctx, `
		UPDATE task SET status = $1, updated_at = $2
		WHERE user_id = $3 AND status = $4`,
		models.StatusCompleted, time.Now().UTC(), userID, models.StatusPending)
	if err != nil {
		return 0, fmt.Errorf("error completing tasks: %v", err)
	}
	return result.RowsAffected()
}

func (s *PostgresStorage) GetOrCreateConversation(ctx context.Context, userID string) (models.Conversation, error) {
	query := `SELECT id, user_id, created_at FROM conversation WHERE user_id = $1`

	var conv models.Conversation
	err := s.db.QueryRowContext(ctx, query, userID).Scan(&conv.ID, &conv.UserID, &conv.CreatedAt)
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
		VALUES ($1, $2, $3)
		ON CONFLICT (user_id) DO NOTHING`,
		uuid.New().String(), userID, time.Now().UTC(),
	); err != nil {
		return models.Conversation{}, fmt.Errorf("error creating conversation: %v", err)
	}

	if err := s.db.QueryRowContext(ctx, query, userID).Scan(&conv.ID, &conv.UserID, &conv.CreatedAt); err != nil {
		return models.Conversation{}, fmt.Errorf("error querying conversation: %v", err)
	}
	return conv, nil
}

func (s *PostgresStorage) ListMessages(ctx context.Context, conversationID string, limit int) ([]models.Message, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, conversation_id, role, content, created_at
		FROM message
		WHERE conversation_id = $1
		ORDER BY created_at ASC
		LIMIT $2`,
		conversationID, limit)
	if err != nil {
		return nil, fmt.Errorf("error querying messages: %v", err)
	}
	defer rows.Close()

	messages := []models.Message{}
	for rows.Next() {
		var m models.Message
		if err := rows.Scan(&m.ID, &m.ConversationID, &m.Role, &m.Content, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("error scanning message: %v", err)
		}
		messages = append(messages, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating messages: %v", err)
	}

	return messages, nil
}

func (s *PostgresStorage) AppendMessage(ctx context.Context, conversationID, role, content string) (models.Message, error) {
	msg := models.Message{
		ID:             uuid.New().String(),
		ConversationID: conversationID,
		Role:           role,
		Content:        content,
		CreatedAt:      time.Now().UTC(),
	}

	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO message (id, conversation_id, role, content, created_at)
		VALUES ($1, $2, $3, $4, $5)`,
		msg.ID, msg.ConversationID, msg.Role, msg.Content, msg.CreatedAt,
	); err != nil {
		return models.Message{}, fmt.Errorf("error appending message: %v", err)
	}

	return msg, nil
}

func (s *PostgresStorage) GetSession(ctx context.Context, token string) (models.Session, error) {
	var (
		sess      models.Session
		expiresAt sql.NullTime
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT "userId", "expiresAt" FROM "session" WHERE "token" = $1`, token,
	).Scan(&sess.UserID, &expiresAt)
	if err == sql.ErrNoRows {
		return models.Session{}, ErrSessionNotFound
	}
	if err != nil {
		return models.Session{}, fmt.Errorf("error querying session: %v", err)
	}

	sess.Token = token
	if expiresAt.Valid {
		sess.ExpiresAt = expiresAt.Time
	}
	return sess, nil
}

func (s *PostgresStorage) Close() error {
	return s.db.Close()
}

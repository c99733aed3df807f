package storage

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/taskflow/taskflow/internal/models"
)

var (
	// ErrTaskNotFound is returned when a task id does not exist or is not
	// owned by the requesting user. Callers must not distinguish the two
	// cases.
	ErrTaskNotFound = errors.New("task not found")

	// ErrSessionNotFound is returned when no session row matches a token.
	ErrSessionNotFound = errors.New("session not found")
)

// TaskFilter narrows ListTasks results. Zero values mean no filtering.
type TaskFilter struct {
	Status string // "pending" or "completed"
	Search string // case-insensitive keyword over title and description
}

// TaskUpdate carries the fields of a partial task update. Nil means leave
// unchanged.
type TaskUpdate struct {
	Title       *string
	Description *string
	Status      *string
}

// TaskStorage holds the task table operations. Every operation is scoped
// to the owning user id; cross-user reads and writes are impossible.
type TaskStorage interface {
	CreateTask(ctx context.Context, userID, title, description string) (models.Task, error)
	GetTask(ctx context.Context, userID, taskID string) (models.Task, error)
	ListTasks(ctx context.Context, userID string, filter TaskFilter) ([]models.Task, error)
	UpdateTask(ctx context.Context, userID, taskID string, upd TaskUpdate) (models.Task, error)
	CompleteTask(ctx context.Context, userID, taskID string) (models.Task, error)
	DeleteTask(ctx context.Context, userID, taskID string) error
	DeleteAllTasks(ctx context.Context, userID string) (int64, error)
	CompleteAllTasks(ctx context.Context, userID string) (int64, error)
}

// ConversationStorage holds the single-conversation-per-user thread and
// its append-only message log.
type ConversationStorage interface {
	GetOrCreateConversation(ctx context.Context, userID string) (models.Conversation, error)
	ListMessages(ctx context.Context, conversationID string, limit int) ([]models.Message, error)
	AppendMessage(ctx context.Context, conversationID, role, content string) (models.Message, error)
}

// SessionStorage resolves bearer tokens against the session table owned
// by the auth service.
type SessionStorage interface {
	GetSession(ctx context.Context, token string) (models.Session, error)
}

type Storage interface {
	TaskStorage
	ConversationStorage
	SessionStorage
	Close() error
}

// Config selects and configures a storage backend.
type Config struct {
	Driver   string // "postgres" or "sqlite"
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string
	Path     string // sqlite database file, ":memory:" for ephemeral
}

// New opens the storage backend named by cfg.Driver.
func New(cfg Config, logger *zap.Logger) (Storage, error) {
	switch cfg.Driver {
	case "postgres":
		return NewPostgresStorage(cfg, logger)
	case "sqlite":
		return NewSQLiteStorage(cfg.Path, logger)
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Driver)
	}
}

// Package tools executes the fixed set of task-mutation tools on behalf of
// the conversational agent. Execution never fails outward: every validation,
// not-found, or storage problem becomes a Result with status "error" so the
// model can react to it.
package tools

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/taskflow/taskflow/internal/models"
	"github.com/taskflow/taskflow/internal/storage"
)

// The seven tool names. The set is closed: dispatch is an exhaustive
// switch, not a registry.
const (
	ToolListTasks        = "list_tasks"
	ToolAddTask          = "add_task"
	ToolUpdateTask       = "update_task"
	ToolDeleteTask       = "delete_task"
	ToolCompleteTask     = "complete_task"
	ToolDeleteAllTasks   = "delete_all_tasks"
	ToolCompleteAllTasks = "complete_all_tasks"
)

// Result statuses. "ok" tags listings, "error" tags every failure path;
// the rest describe the mutation performed.
const (
	StatusOK           = "ok"
	StatusCreated      = "created"
	StatusUpdated      = "updated"
	StatusDeleted      = "deleted"
	StatusCompleted    = "completed"
	StatusDeletedAll   = "deleted_all"
	StatusCompletedAll = "completed_all"
	StatusError        = "error"
)

// TaskView is the task shape reported back to the model.
type TaskView struct {
	TaskID      string `json:"task_id"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Status      string `json:"status"`
	CreatedAt   string `json:"created_at"`
}

// Result is the structured outcome of one tool invocation.
type Result struct {
	Status      string     `json:"status"`
	Message     string     `json:"message,omitempty"`
	TaskID      string     `json:"task_id,omitempty"`
	Title       string     `json:"title,omitempty"`
	Description string     `json:"description,omitempty"`
	Count       *int64     `json:"count,omitempty"`
	Tasks       []TaskView `json:"tasks,omitempty"`
}

// JSON renders the result for the model context.
func (r Result) JSON() string {
	b, err := json.Marshal(r)
	if err != nil {
		return `{"status":"error","message":"failed to encode tool result"}`
	}
	return string(b)
}

type Executor struct {
	store  storage.TaskStorage
	logger *zap.Logger
}

func NewExecutor(store storage.TaskStorage, logger *zap.Logger) *Executor {
	return &Executor{store: store, logger: logger}
}

// Execute runs the named tool with the given arguments for userID. The
// user id always comes from the verified session of the surrounding
// request; a user_id present in args is ignored.
func (e *Executor) Execute(ctx context.Context, name string, args map[string]any, userID string) Result {
	switch name {
	case ToolListTasks:
		return e.listTasks(ctx, args, userID)
	case ToolAddTask:
		return e.addTask(ctx, args, userID)
	case ToolUpdateTask:
		return e.updateTask(ctx, args, userID)
	case ToolDeleteTask:
		return e.deleteTask(ctx, args, userID)
	case ToolCompleteTask:
		return e.completeTask(ctx, args, userID)
	case ToolDeleteAllTasks:
		return e.deleteAllTasks(ctx, userID)
	case ToolCompleteAllTasks:
		return e.completeAllTasks(ctx, userID)
	default:
		return errResult("unknown tool: " + name)
	}
}

func (e *Executor) listTasks(ctx context.Context, args map[string]any, userID string) Result {
	// Values outside the two known statuses are ignored rather than
	// rejected: the model then sees the full list instead of an error.
	status := argString(args, "status")
	if !models.ValidStatus(status) {
		status = ""
	}

	tasks, err := e.store.ListTasks(ctx, userID, storage.TaskFilter{Status: status})
	if err != nil {
		return e.storageError("list_tasks", err)
	}

	views := make([]TaskView, len(tasks))
	for i, t := range tasks {
		views[i] = TaskView{
			TaskID:      t.ID,
			Title:       t.Title,
			Description: t.Description,
			Status:      t.Status,
			CreatedAt:   t.CreatedAt.Format(time.RFC3339),
		}
	}
	count := int64(len(views))
	return Result{Status: StatusOK, Tasks: views, Count: &count}
}

func (e *Executor) addTask(ctx context.Context, args map[string]any, userID string) Result {
	title := argString(args, "title")
	if strings.TrimSpace(title) == "" {
		return errResult("Title is required")
	}

	task, err := e.store.CreateTask(ctx, userID, title, argString(args, "description"))
	if err != nil {
		return e.storageError("add_task", err)
	}

	return Result{Status: StatusCreated, TaskID: task.ID, Title: task.Title, Description: task.Description}
}

func (e *Executor) updateTask(ctx context.Context, args map[string]any, userID string) Result {
	taskID := argString(args, "task_id")
	if taskID == "" {
		return errResult("task_id is required")
	}
	title := argString(args, "title")
	if strings.TrimSpace(title) == "" {
		return errResult("Title is required")
	}

	upd := storage.TaskUpdate{Title: &title}
	if description, ok := args["description"].(string); ok && strings.TrimSpace(description) != "" {
		upd.Description = &description
	}

	task, err := e.store.UpdateTask(ctx, userID, taskID, upd)
	if err != nil {
		return e.storageError("update_task", err)
	}

	return Result{Status: StatusUpdated, TaskID: task.ID, Title: task.Title}
}

func (e *Executor) deleteTask(ctx context.Context, args map[string]any, userID string) Result {
	taskID := argString(args, "task_id")
	if taskID == "" {
		return errResult("task_id is required")
	}

	if err := e.store.DeleteTask(ctx, userID, taskID); err != nil {
		return e.storageError("delete_task", err)
	}
	return Result{Status: StatusDeleted, TaskID: taskID}
}

func (e *Executor) completeTask(ctx context.Context, args map[string]any, userID string) Result {
	taskID := argString(args, "task_id")
	if taskID == "" {
		return errResult("task_id is required")
	}

	task, err := e.store.CompleteTask(ctx, userID, taskID)
	if err != nil {
		return e.storageError("complete_task", err)
	}
	return Result{Status: StatusCompleted, TaskID: task.ID, Title: task.Title}
}

func (e *Executor) deleteAllTasks(ctx context.Context, userID string) Result {
	count, err := e.store.DeleteAllTasks(ctx, userID)
	if err != nil {
		return e.storageError("delete_all_tasks", err)
	}
	return Result{Status: StatusDeletedAll, Count: &count}
}

func (e *Executor) completeAllTasks(ctx context.Context, userID string) Result {
	count, err := e.store.CompleteAllTasks(ctx, userID)
	if err != nil {
		return e.storageError("complete_all_tasks", err)
	}
	return Result{Status: StatusCompletedAll, Count: &count}
}

// storageError folds a storage failure into an error result. NotFound and
// validation problems keep their message so the model can correct itself;
// anything else is reported generically and logged.
func (e *Executor) storageError(tool string, err error) Result {
	if errors.Is(err, storage.ErrTaskNotFound) {
		return errResult("Task not found")
	}
	var verr *models.ValidationError
	if errors.As(err, &verr) {
		return errResult(verr.Message)
	}
	e.logger.Error("tool storage failure", zap.String("tool", tool), zap.Error(err))
	return errResult("storage failure, try again")
}

func errResult(msg string) Result {
	return Result{Status: StatusError, Message: msg}
}

func argString(args map[string]any, key string) string {
	v, _ := args[key].(string)
	return v
}

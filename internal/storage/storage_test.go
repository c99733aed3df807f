package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/taskflow/taskflow/internal/models"
)

func openTestStorage(t *testing.T) *SQLiteStorage {
	t.Helper()
	s, err := NewSQLiteStorage(":memory:", zap.NewNop())
	if err != nil {
		t.Fatalf("opening test storage: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestCreateTask_Roundtrip(t *testing.T) {
	s := openTestStorage(t)
	ctx := context.Background()

	created, err := s.CreateTask(ctx, "user-a", "  Buy milk  ", "2% from the corner store")
	if err != nil {
		t.Fatalf("CreateTask: %v", err)
	}
	if created.Title != "Buy milk" {
		t.Errorf("Title = %q, want %q", created.Title, "Buy milk")
	}
	if created.Status != models.StatusPending {
		t.Errorf("Status = %q, want %q", created.Status, models.StatusPending)
	}

	tasks, err := s.ListTasks(ctx, "user-a", TaskFilter{})
	if err != nil {
		t.Fatalf("ListTasks: %v", err)
	}
	if len(tasks) != 1 {
		t.Fatalf("got %d tasks, want 1", len(tasks))
	}
	if tasks[0].ID != created.ID || tasks[0].Description != "2% from the corner store" {
		t.Errorf("unexpected task: %+v", tasks[0])
	}
}

func TestCreateTask_DescriptionDefaultsToTitle(t *testing.T) {
	s := openTestStorage(t)

	created, err := s.CreateTask(context.Background(), "user-a", "Water plants", "   ")
	if err != nil {
		t.Fatalf("CreateTask: %v", err)
	}
	if created.Description != "Water plants" {
		t.Errorf("Description = %q, want title fallback", created.Description)
	}
}

func TestCreateTask_Validation(t *testing.T) {
	s := openTestStorage(t)
	ctx := context.Background()

	var verr *models.ValidationError
	if _, err := s.CreateTask(ctx, "user-a", "   ", "desc"); !errors.As(err, &verr) {
		t.Fatalf("empty title: got %v, want ValidationError", err)
	}
	if _, err := s.CreateTask(ctx, "user-a", strings.Repeat("x", 201), "desc"); !errors.As(err, &verr) {
		t.Fatalf("long title: got %v, want ValidationError", err)
	}
	if _, err := s.CreateTask(ctx, "user-a", "ok", strings.Repeat("x", 1001)); !errors.As(err, &verr) {
		t.Fatalf("long description: got %v, want ValidationError", err)
	}
}

func TestListTasks_OwnershipIsolation(t *testing.T) {
	s := openTestStorage(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := s.CreateTask(ctx, "user-a", fmt.Sprintf("task %d", i), ""); err != nil {
			t.Fatalf("CreateTask: %v", err)
		}
	}

	tasks, err := s.ListTasks(ctx, "user-b", TaskFilter{})
	if err != nil {
		t.Fatalf("ListTasks: %v", err)
	}
	if len(tasks) != 0 {
		t.Fatalf("user-b sees %d of user-a's tasks", len(tasks))
	}
}

func TestListTasks_StatusFilterAndSearch(t *testing.T) {
	s := openTestStorage(t)
	ctx := context.Background()

	done, err := s.CreateTask(ctx, "user-a", "Ship release", "cut the 1.4 tag")
	if err != nil {
		t.Fatalf("CreateTask: %v", err)
	}
	if _, err := s.CreateTask(ctx, "user-a", "Write report", "quarterly numbers"); err != nil {
		t.Fatalf("CreateTask: %v", err)
	}
	if _, err := s.CompleteTask(ctx, "user-a", done.ID); err != nil {
		t.Fatalf("CompleteTask: %v", err)
	}

	pending, err := s.ListTasks(ctx, "user-a", TaskFilter{Status: models.StatusPending})
	if err != nil {
		t.Fatalf("ListTasks pending: %v", err)
	}
	if len(pending) != 1 || pending[0].Title != "Write report" {
		t.Fatalf("pending filter returned %+v", pending)
	}

	found, err := s.ListTasks(ctx, "user-a", TaskFilter{Search: "RELEASE"})
	if err != nil {
		t.Fatalf("ListTasks search: %v", err)
	}
	if len(found) != 1 || found[0].ID != done.ID {
		t.Fatalf("search returned %+v", found)
	}
}

func TestListTasks_RecentFirst(t *testing.T) {
	s := openTestStorage(t)
	ctx := context.Background()

	first, _ := s.CreateTask(ctx, "user-a", "first", "")
	second, _ := s.CreateTask(ctx, "user-a", "second", "")

	tasks, err := s.ListTasks(ctx, "user-a", TaskFilter{})
	if err != nil {
		t.Fatalf("ListTasks: %v", err)
	}
	if len(tasks) != 2 || tasks[0].ID != second.ID || tasks[1].ID != first.ID {
		t.Fatalf("want newest first, got %+v", tasks)
	}
}

func TestUpdateTask(t *testing.T) {
	s := openTestStorage(t)
	ctx := context.Background()

	created, err := s.CreateTask(ctx, "user-a", "Old title", "keep me")
	if err != nil {
		t.Fatalf("CreateTask: %v", err)
	}

	title := "New title"
	updated, err := s.UpdateTask(ctx, "user-a", created.ID, TaskUpdate{Title: &title})
	if err != nil {
		t.Fatalf("UpdateTask: %v", err)
	}
	if updated.Title != "New title" {
		t.Errorf("Title = %q", updated.Title)
	}
	if updated.Description != "keep me" {
		t.Errorf("Description changed to %q, want untouched", updated.Description)
	}

	empty := "   "
	var verr *models.ValidationError
	if _, err := s.UpdateTask(ctx, "user-a", created.ID, TaskUpdate{Title: &empty}); !errors.As(err, &verr) {
		t.Fatalf("empty title: got %v, want ValidationError", err)
	}

	// Cross-owner update must look like a missing row.
	if _, err := s.UpdateTask(ctx, "user-b", created.ID, TaskUpdate{Title: &title}); !errors.Is(err, ErrTaskNotFound) {
		t.Fatalf("cross-owner update: got %v, want ErrTaskNotFound", err)
	}
}

func TestCompleteTask_Idempotent(t *testing.T) {
	s := openTestStorage(t)
	ctx := context.Background()

	created, err := s.CreateTask(ctx, "user-a", "Do thing", "")
	if err != nil {
		t.Fatalf("CreateTask: %v", err)
	}

	for i := 0; i < 2; i++ {
		task, err := s.CompleteTask(ctx, "user-a", created.ID)
		if err != nil {
			t.Fatalf("CompleteTask call %d: %v", i+1, err)
		}
		if task.Status != models.StatusCompleted {
			t.Fatalf("Status = %q after call %d", task.Status, i+1)
		}
	}
}

func TestCompleteTask_NotFound(t *testing.T) {
	s := openTestStorage(t)
	ctx := context.Background()

	if _, err := s.CompleteTask(ctx, "user-a", "b5f0077e-0000-4000-8000-000000000000"); !errors.Is(err, ErrTaskNotFound) {
		t.Fatalf("got %v, want ErrTaskNotFound", err)
	}
	// A malformed id behaves like an absent row, not a driver error.
	if _, err := s.CompleteTask(ctx, "user-a", "not-a-uuid"); !errors.Is(err, ErrTaskNotFound) {
		t.Fatalf("malformed id: got %v, want ErrTaskNotFound", err)
	}
}

func TestDeleteTask(t *testing.T) {
	s := openTestStorage(t)
	ctx := context.Background()

	created, err := s.CreateTask(ctx, "user-a", "gone soon", "")
	if err != nil {
		t.Fatalf("CreateTask: %v", err)
	}

	if err := s.DeleteTask(ctx, "user-a", created.ID); err != nil {
		t.Fatalf("DeleteTask: %v", err)
	}
	if err := s.DeleteTask(ctx, "user-a", created.ID); !errors.Is(err, ErrTaskNotFound) {
		t.Fatalf("second delete: got %v, want ErrTaskNotFound", err)
	}
}

func TestDeleteAllTasks_Count(t *testing.T) {
	s := openTestStorage(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := s.CreateTask(ctx, "user-a", fmt.Sprintf("t%d", i), ""); err != nil {
			t.Fatalf("CreateTask: %v", err)
		}
	}
	if _, err := s.CreateTask(ctx, "user-b", "not mine to delete", ""); err != nil {
		t.Fatalf("CreateTask: %v", err)
	}

	count, err := s.DeleteAllTasks(ctx, "user-a")
	if err != nil {
		t.Fatalf("DeleteAllTasks: %v", err)
	}
	if count != 3 {
		t.Errorf("count = %d, want 3", count)
	}

	count, err = s.DeleteAllTasks(ctx, "user-a")
	if err != nil {
		t.Fatalf("DeleteAllTasks empty: %v", err)
	}
	if count != 0 {
		t.Errorf("count = %d, want 0", count)
	}

	others, _ := s.ListTasks(ctx, "user-b", TaskFilter{})
	if len(others) != 1 {
		t.Errorf("user-b lost tasks: %d left", len(others))
	}
}

func TestCompleteAllTasks_PendingOnly(t *testing.T) {
	s := openTestStorage(t)
	ctx := context.Background()

	done, _ := s.CreateTask(ctx, "user-a", "already done", "")
	s.CreateTask(ctx, "user-a", "todo 1", "")
	s.CreateTask(ctx, "user-a", "todo 2", "")
	if _, err := s.CompleteTask(ctx, "user-a", done.ID); err != nil {
		t.Fatalf("CompleteTask: %v", err)
	}

	count, err := s.CompleteAllTasks(ctx, "user-a")
	if err != nil {
		t.Fatalf("CompleteAllTasks: %v", err)
	}
	if count != 2 {
		t.Errorf("count = %d, want 2", count)
	}

	count, err = s.CompleteAllTasks(ctx, "user-a")
	if err != nil {
		t.Fatalf("CompleteAllTasks again: %v", err)
	}
	if count != 0 {
		t.Errorf("count = %d, want 0 on second pass", count)
	}
}

func TestGetOrCreateConversation_SingleRow(t *testing.T) {
	s := openTestStorage(t)
	ctx := context.Background()

	first, err := s.GetOrCreateConversation(ctx, "user-a")
	if err != nil {
		t.Fatalf("GetOrCreateConversation: %v", err)
	}
	second, err := s.GetOrCreateConversation(ctx, "user-a")
	if err != nil {
		t.Fatalf("GetOrCreateConversation again: %v", err)
	}
	if first.ID != second.ID {
		t.Fatalf("two conversations for one user: %s vs %s", first.ID, second.ID)
	}

	other, err := s.GetOrCreateConversation(ctx, "user-b")
	if err != nil {
		t.Fatalf("GetOrCreateConversation user-b: %v", err)
	}
	if other.ID == first.ID {
		t.Fatal("conversation shared across users")
	}
}

func TestMessages_OrderAndCap(t *testing.T) {
	s := openTestStorage(t)
	ctx := context.Background()

	conv, err := s.GetOrCreateConversation(ctx, "user-a")
	if err != nil {
		t.Fatalf("GetOrCreateConversation: %v", err)
	}

	for i := 0; i < 105; i++ {
		role := models.RoleUser
		if i%2 == 1 {
			role = models.RoleAssistant
		}
		if _, err := s.AppendMessage(ctx, conv.ID, role, fmt.Sprintf("msg %03d", i)); err != nil {
			t.Fatalf("AppendMessage %d: %v", i, err)
		}
	}

	messages, err := s.ListMessages(ctx, conv.ID, 100)
	if err != nil {
		t.Fatalf("ListMessages: %v", err)
	}
	if len(messages) != 100 {
		t.Fatalf("got %d messages, want 100", len(messages))
	}
	if messages[0].Content != "msg 000" {
		t.Errorf("first message = %q, want oldest", messages[0].Content)
	}
	for i := 1; i < len(messages); i++ {
		if messages[i].CreatedAt.Before(messages[i-1].CreatedAt) {
			t.Fatalf("messages out of order at %d", i)
		}
	}
}

func TestListMessages_EmptyConversation(t *testing.T) {
	s := openTestStorage(t)

	messages, err := s.ListMessages(context.Background(), "b5f0077e-0000-4000-8000-000000000000", 100)
	if err != nil {
		t.Fatalf("ListMessages: %v", err)
	}
	if len(messages) != 0 {
		t.Fatalf("got %d messages, want 0", len(messages))
	}
}

func TestGetSession(t *testing.T) {
	s := openTestStorage(t)
	ctx := context.Background()

	if _, err := s.GetSession(ctx, "missing"); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("missing token: got %v, want ErrSessionNotFound", err)
	}

	expires := time.Now().Add(time.Hour).UTC()
	if err := s.PutSession(ctx, models.Session{Token: "tok-1", UserID: "user-a", ExpiresAt: expires}); err != nil {
		t.Fatalf("PutSession: %v", err)
	}

	sess, err := s.GetSession(ctx, "tok-1")
	if err != nil {
		t.Fatalf("GetSession: %v", err)
	}
	if sess.UserID != "user-a" {
		t.Errorf("UserID = %q", sess.UserID)
	}
	if sess.Expired(time.Now()) {
		t.Error("session reported expired before its expiry")
	}
	if !sess.Expired(expires.Add(time.Minute)) {
		t.Error("session not reported expired after its expiry")
	}
}

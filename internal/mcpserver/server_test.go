package mcpserver

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"go.uber.org/zap"

	"github.com/taskflow/taskflow/internal/storage"
	"github.com/taskflow/taskflow/internal/tools"
)

func newTestExecutor(t *testing.T) *tools.Executor {
	t.Helper()
	store, err := storage.NewSQLiteStorage(":memory:", zap.NewNop())
	if err != nil {
		t.Fatalf("opening test storage: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return tools.NewExecutor(store, zap.NewNop())
}

func makeCallToolRequest(name string, args map[string]interface{}) mcp.CallToolRequest {
	return mcp.CallToolRequest{
		Params: mcp.CallToolParams{
			Name:      name,
			Arguments: args,
		},
	}
}

func toolText(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	if len(result.Content) == 0 {
		t.Fatal("no content in result")
	}
	tc, ok := result.Content[0].(mcp.TextContent)
	if !ok {
		t.Fatalf("expected TextContent, got %T", result.Content[0])
	}
	return tc.Text
}

func decodeResult(t *testing.T, text string) tools.Result {
	t.Helper()
	var r tools.Result
	if err := json.Unmarshal([]byte(text), &r); err != nil {
		t.Fatalf("decoding result %q: %v", text, err)
	}
	return r
}

func TestToolHandler_AddTask(t *testing.T) {
	handler := toolHandler(newTestExecutor(t), tools.ToolAddTask)

	req := makeCallToolRequest(tools.ToolAddTask, map[string]interface{}{
		"user_id": "user-a",
		"title":   "Buy milk",
	})
	result, err := handler(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	r := decodeResult(t, toolText(t, result))
	if r.Status != tools.StatusCreated || r.TaskID == "" {
		t.Fatalf("unexpected result: %+v", r)
	}
}

func TestToolHandler_MissingUserID(t *testing.T) {
	handler := toolHandler(newTestExecutor(t), tools.ToolListTasks)

	result, err := handler(context.Background(), makeCallToolRequest(tools.ToolListTasks, map[string]interface{}{}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.IsError {
		t.Fatal("missing user_id must be an in-band error result, not a protocol error")
	}

	r := decodeResult(t, toolText(t, result))
	if r.Status != tools.StatusError {
		t.Fatalf("status = %q, want error", r.Status)
	}
}

func TestToolHandler_FailureStaysInBand(t *testing.T) {
	handler := toolHandler(newTestExecutor(t), tools.ToolDeleteTask)

	req := makeCallToolRequest(tools.ToolDeleteTask, map[string]interface{}{
		"user_id": "user-a",
		"task_id": "b5f0077e-0000-4000-8000-000000000000",
	})
	result, err := handler(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	r := decodeResult(t, toolText(t, result))
	if r.Status != tools.StatusError || r.Message != "Task not found" {
		t.Fatalf("unexpected result: %+v", r)
	}
}

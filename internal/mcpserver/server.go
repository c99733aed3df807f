// Package mcpserver exposes the task tools over MCP stdio. The agent
// runner spawns this server as a subprocess of the same binary and talks
// to it through the singleton transport.
package mcpserver

import (
	"context"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/taskflow/taskflow/internal/tools"
)

// New creates an MCP server with the seven task tools registered.
//
// Every tool takes user_id as an argument. The value is injected by the
// agent loop from the verified session; it is declared here only so the
// schema the model sees matches the calls it has to make.
func New(executor *tools.Executor, version string) *server.MCPServer {
	s := server.NewMCPServer(
		"taskflow",
		version,
		server.WithToolCapabilities(true),
		server.WithInstructions("taskflow — per-user todo task store for the TaskFlow assistant."),
		server.WithRecovery(),
	)

	s.AddTool(
		mcp.NewTool(tools.ToolListTasks,
			mcp.WithDescription("List all tasks for the user, optionally filtered by status."),
			mcp.WithString("user_id", mcp.Description("Verified user id from the authentication context"), mcp.Required()),
			mcp.WithString("status", mcp.Description("Optional filter: 'pending' or 'completed'")),
		),
		toolHandler(executor, tools.ToolListTasks),
	)

	s.AddTool(
		mcp.NewTool(tools.ToolAddTask,
			mcp.WithDescription("Create a new task for the authenticated user. Description is optional."),
			mcp.WithString("user_id", mcp.Description("Verified user id from the authentication context"), mcp.Required()),
			mcp.WithString("title", mcp.Description("Task title"), mcp.Required()),
			mcp.WithString("description", mcp.Description("Optional task description; defaults to the title")),
		),
		toolHandler(executor, tools.ToolAddTask),
	)

	s.AddTool(
		mcp.NewTool(tools.ToolUpdateTask,
			mcp.WithDescription("Update a task's title and optionally its description."),
			mcp.WithString("user_id", mcp.Description("Verified user id from the authentication context"), mcp.Required()),
			mcp.WithString("task_id", mcp.Description("Id of the task to update"), mcp.Required()),
			mcp.WithString("title", mcp.Description("New title"), mcp.Required()),
			mcp.WithString("description", mcp.Description("New description; omit to keep the current one")),
		),
		toolHandler(executor, tools.ToolUpdateTask),
	)

	s.AddTool(
		mcp.NewTool(tools.ToolCompleteTask,
			mcp.WithDescription("Mark one task as completed."),
			mcp.WithString("user_id", mcp.Description("Verified user id from the authentication context"), mcp.Required()),
			mcp.WithString("task_id", mcp.Description("Id of the task to complete"), mcp.Required()),
		),
		toolHandler(executor, tools.ToolCompleteTask),
	)

	s.AddTool(
		mcp.NewTool(tools.ToolDeleteTask,
			mcp.WithDescription("Permanently delete one task."),
			mcp.WithString("user_id", mcp.Description("Verified user id from the authentication context"), mcp.Required()),
			mcp.WithString("task_id", mcp.Description("Id of the task to delete"), mcp.Required()),
		),
		toolHandler(executor, tools.ToolDeleteTask),
	)

	s.AddTool(
		mcp.NewTool(tools.ToolDeleteAllTasks,
			mcp.WithDescription("Delete ALL tasks owned by the user in one call. Use for 'delete all' or 'clear all' requests."),
			mcp.WithString("user_id", mcp.Description("Verified user id from the authentication context"), mcp.Required()),
		),
		toolHandler(executor, tools.ToolDeleteAllTasks),
	)

	s.AddTool(
		mcp.NewTool(tools.ToolCompleteAllTasks,
			mcp.WithDescription("Mark ALL pending tasks as completed in one call. Use for 'complete all' requests."),
			mcp.WithString("user_id", mcp.Description("Verified user id from the authentication context"), mcp.Required()),
		),
		toolHandler(executor, tools.ToolCompleteAllTasks),
	)

	return s
}

// toolHandler adapts one executor tool to the MCP wire. Failures are
// returned as ordinary text results carrying {"status":"error"} so the
// model sees them in-band; IsError is reserved for protocol misuse.
func toolHandler(executor *tools.Executor, name string) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		userID, err := req.RequireString("user_id")
		if err != nil || userID == "" {
			return mcpText(tools.Result{
				Status:  tools.StatusError,
				Message: "user_id is required",
			}.JSON()), nil
		}

		result := executor.Execute(ctx, name, req.GetArguments(), userID)
		return mcpText(result.JSON()), nil
	}
}

func mcpText(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: text},
		},
	}
}

package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/mcp"
)

// ToolSpec describes one tool as advertised by the transport, in the shape
// the model client needs.
type ToolSpec struct {
	Name        string
	Description string
	Schema      json.RawMessage
}

// ToolTransport is the channel through which the agent loop reaches the
// tool executor. The production implementation runs over an MCP stdio
// subprocess; tests substitute a fake.
type ToolTransport interface {
	ListTools(ctx context.Context) ([]ToolSpec, error)
	CallTool(ctx context.Context, name string, args map[string]any) (string, error)
	Ping(ctx context.Context) error
	Close() error
}

// StdioTransport speaks MCP to a tool-server subprocess over stdio.
type StdioTransport struct {
	client *client.Client
}

// NewStdioTransport spawns the tool-server subprocess and completes the
// MCP initialize handshake.
func NewStdioTransport(ctx context.Context, command string, args ...string) (*StdioTransport, error) {
	c, err := client.NewStdioMCPClient(command, nil, args...)
	if err != nil {
		return nil, fmt.Errorf("starting tool server subprocess: %w", err)
	}

	initReq := mcp.InitializeRequest{}
	initReq.Params.ProtocolVersion = mcp.LATEST_PROTOCOL_VERSION
	initReq.Params.ClientInfo = mcp.Implementation{Name: "taskflow-agent", Version: "1.0.0"}
	if _, err := c.Initialize(ctx, initReq); err != nil {
		c.Close()
		return nil, fmt.Errorf("initializing tool server: %w", err)
	}

	return &StdioTransport{client: c}, nil
}

func (t *StdioTransport) ListTools(ctx context.Context) ([]ToolSpec, error) {
	res, err := t.client.ListTools(ctx, mcp.ListToolsRequest{})
	if err != nil {
		return nil, fmt.Errorf("listing tools: %w", err)
	}

	specs := make([]ToolSpec, 0, len(res.Tools))
	for _, tool := range res.Tools {
		schema, err := json.Marshal(tool.InputSchema)
		if err != nil {
			return nil, fmt.Errorf("encoding schema for %s: %w", tool.Name, err)
		}
		specs = append(specs, ToolSpec{
			Name:        tool.Name,
			Description: tool.Description,
			Schema:      schema,
		})
	}
	return specs, nil
}

func (t *StdioTransport) CallTool(ctx context.Context, name string, args map[string]any) (string, error) {
	req := mcp.CallToolRequest{}
	req.Params.Name = name
	req.Params.Arguments = args

	res, err := t.client.CallTool(ctx, req)
	if err != nil {
		return "", fmt.Errorf("calling %s: %w", name, err)
	}

	// Tool-level failures arrive in-band as {"status":"error"} payloads;
	// only a transport-level error above aborts the loop.
	var sb strings.Builder
	for _, content := range res.Content {
		if tc, ok := content.(mcp.TextContent); ok {
			sb.WriteString(tc.Text)
		}
	}
	if sb.Len() == 0 {
		return `{"status":"error","message":"empty tool result"}`, nil
	}
	return sb.String(), nil
}

func (t *StdioTransport) Ping(ctx context.Context) error {
	return t.client.Ping(ctx)
}

func (t *StdioTransport) Close() error {
	return t.client.Close()
}

// Package agent drives the bounded tool-calling exchange between the
// model and the task tools for one chat turn.
package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/taskflow/taskflow/internal/models"
)

// maxToolRounds caps the number of model round-trips within one chat turn.
const maxToolRounds = 10

// fallbackReply is returned when the round-trip cap is reached without a
// terminal text response.
const fallbackReply = "Sorry, I could not complete that request."

// ErrAgent wraps model- and transport-level failures. Callers map it to a
// generic server error and must not persist a partial turn.
var ErrAgent = errors.New("agent failure")

// ChatCompleter is the slice of the OpenAI client the runner needs.
// *openai.Client satisfies it.
type ChatCompleter interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// Runner owns the process-wide tool transport and executes one agent run
// per chat request. Safe for concurrent use.
type Runner struct {
	client       ChatCompleter
	model        string
	maxTokens    int
	temperature  float32
	newTransport func(ctx context.Context) (ToolTransport, error)
	logger       *zap.Logger

	mu        sync.Mutex
	transport ToolTransport
}

func NewRunner(client ChatCompleter, model string, maxTokens int, temperature float64, newTransport func(ctx context.Context) (ToolTransport, error), logger *zap.Logger) *Runner {
	return &Runner{
		client:       client,
		model:        model,
		maxTokens:    maxTokens,
		temperature:  float32(temperature),
		newTransport: newTransport,
		logger:       logger,
	}
}

// getTransport returns the shared tool transport, starting a fresh one if
// none exists or the current one fails its health check. The mutex closes
// the check-then-use race between concurrent requests.
func (r *Runner) getTransport(ctx context.Context) (ToolTransport, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.transport != nil {
		if err := r.transport.Ping(ctx); err != nil {
			r.logger.Warn("tool transport unhealthy, restarting", zap.Error(err))
			r.transport.Close()
			r.transport = nil
		}
	}
	if r.transport == nil {
		t, err := r.newTransport(ctx)
		if err != nil {
			return nil, fmt.Errorf("starting tool transport: %w", err)
		}
		r.transport = t
		r.logger.Info("tool transport started")
	}
	return r.transport, nil
}

// reset discards the transport so the next request starts a fresh one.
func (r *Runner) reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.transport != nil {
		r.transport.Close()
		r.transport = nil
	}
}

// Shutdown closes the tool transport. Call on server exit.
func (r *Runner) Shutdown() {
	r.reset()
}

// Run executes one chat turn for the verified userID: prior history plus
// the new message go to the model, requested tools are executed, and the
// model's final text comes back. Any failure discards the transport and
// surfaces as ErrAgent; the request that hit it fails, the next one gets
// a fresh subprocess.
func (r *Runner) Run(ctx context.Context, userID string, history []models.Message, newMessage string) (string, error) {
	transport, err := r.getTransport(ctx)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrAgent, err)
	}

	reply, err := r.loop(ctx, transport, userID, history, newMessage)
	if err != nil {
		r.logger.Error("agent run failed, resetting tool transport", zap.Error(err))
		r.reset()
		return "", fmt.Errorf("%w: %v", ErrAgent, err)
	}
	return reply, nil
}

func (r *Runner) loop(ctx context.Context, transport ToolTransport, userID string, history []models.Message, newMessage string) (string, error) {
	specs, err := transport.ListTools(ctx)
	if err != nil {
		return "", err
	}
	toolDefs := make([]openai.Tool, len(specs))
	for i, spec := range specs {
		toolDefs[i] = openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        spec.Name,
				Description: spec.Description,
				Parameters:  spec.Schema,
			},
		}
	}

	messages := []openai.ChatCompletionMessage{
		{Role: openai.ChatMessageRoleSystem, Content: SystemPrompt(userID)},
	}
	for _, m := range history {
		if m.Role != models.RoleUser && m.Role != models.RoleAssistant {
			continue
		}
		messages = append(messages, openai.ChatCompletionMessage{Role: m.Role, Content: m.Content})
	}
	messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: newMessage})

	for round := 0; round < maxToolRounds; round++ {
		resp, err := r.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
			Model:       r.model,
			Messages:    messages,
			Tools:       toolDefs,
			MaxTokens:   r.maxTokens,
			Temperature: r.temperature,
		})
		if err != nil {
			return "", fmt.Errorf("chat completion: %w", err)
		}
		if len(resp.Choices) == 0 {
			return "", fmt.Errorf("chat completion returned no choices")
		}

		msg := resp.Choices[0].Message
		if len(msg.ToolCalls) == 0 {
			if strings.TrimSpace(msg.Content) == "" {
				return fallbackReply, nil
			}
			return msg.Content, nil
		}

		messages = append(messages, msg)

		// Results are appended in request order so they correlate with
		// the tool calls above them.
		for _, call := range msg.ToolCalls {
			args := map[string]any{}
			if call.Function.Arguments != "" {
				if err := json.Unmarshal([]byte(call.Function.Arguments), &args); err != nil {
					args = map[string]any{}
				}
			}
			// The verified identity always wins over whatever the model
			// put in the arguments.
			args["user_id"] = userID

			r.logger.Debug("executing tool",
				zap.String("tool", call.Function.Name),
				zap.Int("round", round))

			out, err := transport.CallTool(ctx, call.Function.Name, args)
			if err != nil {
				return "", err
			}
			messages = append(messages, openai.ChatCompletionMessage{
				Role:       openai.ChatMessageRoleTool,
				Content:    out,
				ToolCallID: call.ID,
			})
		}
	}

	r.logger.Warn("tool round cap reached without final response", zap.String("user_id", userID))
	return fallbackReply, nil
}

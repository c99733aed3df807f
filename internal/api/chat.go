package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/taskflow/taskflow/internal/models"
	"github.com/taskflow/taskflow/internal/storage"
)

// maxChatMessageLength bounds one inbound chat message, in runes.
const maxChatMessageLength = 2000

// historyLimit caps how many persisted messages feed one agent run.
const historyLimit = 100

// Agent executes one chat turn. Implemented by *agent.Runner.
type Agent interface {
	Run(ctx context.Context, userID string, history []models.Message, newMessage string) (string, error)
}

type chatRequest struct {
	Message string `json:"message"`
}

type chatResponse struct {
	Response       string `json:"response"`
	ConversationID string `json:"conversation_id"`
}

type messageView struct {
	ID        string    `json:"id"`
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

type historyResponse struct {
	ConversationID string        `json:"conversation_id"`
	Messages       []messageView `json:"messages"`
}

type chatHandler struct {
	store  storage.ConversationStorage
	agent  Agent
	logger *zap.Logger
}

// post runs one chat turn: load the user's conversation and history, hand
// both to the agent, and persist the exchanged pair only after the agent
// succeeds. A failed run persists nothing.
func (h *chatHandler) post(w http.ResponseWriter, r *http.Request) {
	userID := UserID(r.Context())

	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	message := strings.TrimSpace(req.Message)
	if message == "" {
		fieldErrors(w, fieldDetail{Field: "message", Message: "message must not be empty"})
		return
	}
	if utf8.RuneCountInString(req.Message) > maxChatMessageLength {
		fieldErrors(w, fieldDetail{Field: "message", Message: "message must be at most 2000 characters"})
		return
	}

	conv, err := h.store.GetOrCreateConversation(r.Context(), userID)
	if err != nil {
		h.logger.Error("conversation lookup failed", zap.Error(err))
		httpError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	history, err := h.store.ListMessages(r.Context(), conv.ID, historyLimit)
	if err != nil {
		h.logger.Error("loading history failed", zap.Error(err))
		httpError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	reply, err := h.agent.Run(r.Context(), userID, history, req.Message)
	if err != nil {
		h.logger.Error("agent run failed", zap.String("user_id", userID), zap.Error(err))
		httpError(w, http.StatusInternalServerError, "Agent error")
		return
	}

	// Message-append failures surface as errors rather than being
	// dropped: losing the persisted turn is user-visible data loss.
	if _, err := h.store.AppendMessage(r.Context(), conv.ID, models.RoleUser, req.Message); err != nil {
		h.logger.Error("persisting user message failed", zap.Error(err))
		httpError(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	if _, err := h.store.AppendMessage(r.Context(), conv.ID, models.RoleAssistant, reply); err != nil {
		h.logger.Error("persisting assistant message failed", zap.Error(err))
		httpError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	writeJSON(w, http.StatusOK, chatResponse{Response: reply, ConversationID: conv.ID})
}

// history returns the user's visible conversation log, oldest first.
func (h *chatHandler) history(w http.ResponseWriter, r *http.Request) {
	userID := UserID(r.Context())

	conv, err := h.store.GetOrCreateConversation(r.Context(), userID)
	if err != nil {
		h.logger.Error("conversation lookup failed", zap.Error(err))
		httpError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	messages, err := h.store.ListMessages(r.Context(), conv.ID, historyLimit)
	if err != nil {
		h.logger.Error("loading history failed", zap.Error(err))
		httpError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	views := make([]messageView, 0, len(messages))
	for _, m := range messages {
		if m.Role != models.RoleUser && m.Role != models.RoleAssistant {
			continue
		}
		views = append(views, messageView{
			ID:        m.ID,
			Role:      m.Role,
			Content:   m.Content,
			CreatedAt: m.CreatedAt,
		})
	}

	writeJSON(w, http.StatusOK, historyResponse{ConversationID: conv.ID, Messages: views})
}

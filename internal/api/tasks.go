package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/taskflow/taskflow/internal/models"
	"github.com/taskflow/taskflow/internal/storage"
)

type createTaskRequest struct {
	Title       string `json:"title"`
	Description string `json:"description"`
}

type updateTaskRequest struct {
	Title       *string `json:"title"`
	Description *string `json:"description"`
	Status      *string `json:"status"`
}

type taskHandler struct {
	store  storage.TaskStorage
	logger *zap.Logger
}

func (h *taskHandler) list(w http.ResponseWriter, r *http.Request) {
	userID := UserID(r.Context())
	q := r.URL.Query()

	filter := storage.TaskFilter{Search: q.Get("search")}
	if status := q.Get("status"); status != "" {
		if !models.ValidStatus(status) {
			httpError(w, http.StatusUnprocessableEntity, "Status must be 'pending' or 'completed'")
			return
		}
		filter.Status = status
	}

	tasks, err := h.store.ListTasks(r.Context(), userID, filter)
	if err != nil {
		h.logger.Error("listing tasks failed", zap.Error(err))
		httpError(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	if tasks == nil {
		tasks = []models.Task{}
	}
	writeJSON(w, http.StatusOK, tasks)
}

func (h *taskHandler) create(w http.ResponseWriter, r *http.Request) {
	userID := UserID(r.Context())

	var req createTaskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	// Unlike the chat tool path, the REST surface requires both fields.
	title, err := models.ValidateTitle(req.Title)
	if err != nil {
		writeValidationError(w, err)
		return
	}
	description, err := models.ValidateDescription(req.Description)
	if err != nil {
		writeValidationError(w, err)
		return
	}

	task, err := h.store.CreateTask(r.Context(), userID, title, description)
	if err != nil {
		h.handleStorageError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, task)
}

func (h *taskHandler) update(w http.ResponseWriter, r *http.Request) {
	userID := UserID(r.Context())
	taskID := chi.URLParam(r, "taskID")

	var req updateTaskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	task, err := h.store.GetTask(r.Context(), userID, taskID)
	if err != nil {
		h.handleStorageError(w, err)
		return
	}

	if req.Status != nil {
		// Stricter than the chat tool path: a repeat completion is
		// rejected here instead of succeeding idempotently.
		if *req.Status != models.StatusCompleted || task.Status != models.StatusPending {
			fieldErrors(w, fieldDetail{
				Field:   "status",
				Message: "Can only transition from pending to completed",
			})
			return
		}
	}

	updated, err := h.store.UpdateTask(r.Context(), userID, taskID, storage.TaskUpdate{
		Title:       req.Title,
		Description: req.Description,
		Status:      req.Status,
	})
	if err != nil {
		h.handleStorageError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (h *taskHandler) delete(w http.ResponseWriter, r *http.Request) {
	userID := UserID(r.Context())
	taskID := chi.URLParam(r, "taskID")

	if err := h.store.DeleteTask(r.Context(), userID, taskID); err != nil {
		h.handleStorageError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *taskHandler) handleStorageError(w http.ResponseWriter, err error) {
	var verr *models.ValidationError
	switch {
	case errors.Is(err, storage.ErrTaskNotFound):
		httpError(w, http.StatusNotFound, "Task not found")
	case errors.As(err, &verr):
		writeValidationError(w, err)
	default:
		h.logger.Error("task storage failure", zap.Error(err))
		httpError(w, http.StatusInternalServerError, "Internal server error")
	}
}

func writeValidationError(w http.ResponseWriter, err error) {
	var verr *models.ValidationError
	if errors.As(err, &verr) {
		fieldErrors(w, fieldDetail{Field: verr.Field, Message: verr.Message})
		return
	}
	httpError(w, http.StatusUnprocessableEntity, "%v", err)
}

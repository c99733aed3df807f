package storage

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/taskflow/taskflow/internal/models"
)

// buildTask validates input and assembles a new pending task. An empty
// description falls back to the trimmed title so the NOT NULL constraint
// always holds.
func buildTask(userID, title, description string) (models.Task, error) {
	title, err := models.ValidateTitle(title)
	if err != nil {
		return models.Task{}, err
	}
	description = strings.TrimSpace(description)
	if description == "" {
		description = title
	}
	description, err = models.ValidateDescription(description)
	if err != nil {
		return models.Task{}, err
	}
	now := time.Now().UTC()
	return models.Task{
		ID:          uuid.New().String(),
		Title:       title,
		Description: description,
		Status:      models.StatusPending,
		UserID:      userID,
		CreatedAt:   now,
		UpdatedAt:   now,
	}, nil
}

// normalizeUpdate validates and trims the provided fields of a partial
// update, leaving nil fields untouched.
func normalizeUpdate(upd TaskUpdate) (TaskUpdate, error) {
	if upd.Title != nil {
		title, err := models.ValidateTitle(*upd.Title)
		if err != nil {
			return TaskUpdate{}, err
		}
		upd.Title = &title
	}
	if upd.Description != nil {
		description, err := models.ValidateDescription(*upd.Description)
		if err != nil {
			return TaskUpdate{}, err
		}
		upd.Description = &description
	}
	if upd.Status != nil && !models.ValidStatus(*upd.Status) {
		return TaskUpdate{}, &models.ValidationError{Field: "status", Message: "Status must be 'pending' or 'completed'"}
	}
	return upd, nil
}

// validID guards id parameters that reach UUID-typed columns. A malformed
// id behaves like an absent row instead of a driver error.
func validID(id string) bool {
	return uuid.Validate(id) == nil
}

package models

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

const (
	MaxTitleLength       = 200
	MaxDescriptionLength = 1000
)

// ValidationError describes a user-correctable input problem on a single
// field.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidateTitle trims the title and checks the non-empty and length
// constraints, returning the trimmed value.
func ValidateTitle(title string) (string, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return "", &ValidationError{Field: "title", Message: "Title is required"}
	}
	if utf8.RuneCountInString(title) > MaxTitleLength {
		return "", &ValidationError{Field: "title", Message: fmt.Sprintf("Title must be at most %d characters", MaxTitleLength)}
	}
	return title, nil
}

// ValidateDescription trims the description and checks the non-empty and
// length constraints, returning the trimmed value.
func ValidateDescription(description string) (string, error) {
	description = strings.TrimSpace(description)
	if description == "" {
		return "", &ValidationError{Field: "description", Message: "Description is required"}
	}
	if utf8.RuneCountInString(description) > MaxDescriptionLength {
		return "", &ValidationError{Field: "description", Message: fmt.Sprintf("Description must be at most %d characters", MaxDescriptionLength)}
	}
	return description, nil
}

// ValidStatus reports whether s is one of the two known task statuses.
func ValidStatus(s string) bool {
	return s == StatusPending || s == StatusCompleted
}

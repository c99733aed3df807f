package api

import (
	"encoding/json"
	"fmt"
	"net/http"
)

// fieldDetail is the structured validation payload for 422 responses.
type fieldDetail struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func httpError(w http.ResponseWriter, code int, format string, args ...any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]any{
		"detail": fmt.Sprintf(format, args...),
	})
}

func fieldErrors(w http.ResponseWriter, details ...fieldDetail) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnprocessableEntity)
	json.NewEncoder(w).Encode(map[string]any{"detail": details})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

package api

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/taskflow/taskflow/internal/storage"
)

type contextKey string

const userIDKey contextKey = "userID"

// UserID returns the verified user id placed on the context by
// SessionAuth. It is empty only on routes outside the auth middleware.
func UserID(ctx context.Context) string {
	id, _ := ctx.Value(userIDKey).(string)
	return id
}

// SessionAuth resolves the bearer token against the session table and
// puts the owning user id on the request context. Missing, unknown, and
// expired tokens all end the request with 401 before any handler runs.
func SessionAuth(sessions storage.SessionStorage, logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			auth := r.Header.Get("Authorization")
			const prefix = "Bearer "
			if !strings.HasPrefix(auth, prefix) || auth == prefix {
				httpError(w, http.StatusUnauthorized, "Invalid token")
				return
			}
			token := auth[len(prefix):]

			session, err := sessions.GetSession(r.Context(), token)
			if err != nil {
				if !errors.Is(err, storage.ErrSessionNotFound) {
					logger.Error("session lookup failed", zap.Error(err))
				}
				httpError(w, http.StatusUnauthorized, "Invalid token")
				return
			}
			if session.Expired(time.Now()) {
				httpError(w, http.StatusUnauthorized, "Session expired")
				return
			}

			ctx := context.WithValue(r.Context(), userIDKey, session.UserID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

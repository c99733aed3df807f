// Package api is the HTTP surface: session-gated task CRUD plus the chat
// endpoints that drive the agent.
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/taskflow/taskflow/internal/storage"
)

// NewHandler assembles the router. Everything under /api sits behind the
// session gate; /health stays open for liveness probes.
func NewHandler(store storage.Storage, agent Agent, logger *zap.Logger) http.Handler {
	tasks := &taskHandler{store: store, logger: logger}
	chat := &chatHandler{store: store, agent: agent, logger: logger}

	r := chi.NewRouter()

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api", func(r chi.Router) {
		r.Use(SessionAuth(store, logger))

		r.Route("/tasks", func(r chi.Router) {
			r.Get("/", tasks.list)
			r.Post("/", tasks.create)
			r.Patch("/{taskID}", tasks.update)
			r.Delete("/{taskID}", tasks.delete)
		})

		r.Route("/chat", func(r chi.Router) {
			r.Post("/", chat.post)
			r.Get("/history", chat.history)
		})
	})

	return r
}

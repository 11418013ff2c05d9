// Package server assembles the HTTP surface and owns the listener
// lifecycle.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/uneezaismail/hackathon-todo-sub007/internal/handler"
	"github.com/uneezaismail/hackathon-todo-sub007/internal/handler/chat"
	"github.com/uneezaismail/hackathon-todo-sub007/internal/handler/tasks"
	"github.com/uneezaismail/hackathon-todo-sub007/internal/logging"
	"github.com/uneezaismail/hackathon-todo-sub007/internal/middleware"
	"github.com/uneezaismail/hackathon-todo-sub007/internal/svc"
)

// Run starts the HTTP server and the retention sweeper, then blocks
// until ctx is cancelled. Shutdown drains in-flight requests for up to
// 30 seconds.
func Run(ctx context.Context, svcCtx *svc.ServiceContext) error {
	svcCtx.Sweeper.Start()

	httpServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", svcCtx.Config.Port),
		Handler: Router(svcCtx),
		// WriteTimeout is omitted: it would cut long SSE streams.
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logging.Infof("server listening on %s", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logging.Infof("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return httpServer.Shutdown(shutdownCtx)
}

// Router builds the chi router. It is separate from Run so tests can
// mount the full surface on an httptest server.
func Router(svcCtx *svc.ServiceContext) http.Handler {
	r := chi.NewRouter()

	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(corsMiddleware())
	if svcCtx.Config.Server.MaxRequestBodySize > 0 {
		r.Use(bodyLimit(svcCtx.Config.Server.MaxRequestBodySize))
	}

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", handler.HealthHandler(svcCtx))
		r.Get("/ready", handler.ReadyHandler(svcCtx))

		if svcCtx.Config.Auth.IssuerEnabled {
			r.Post("/auth/token", handler.IssueTokenHandler(svcCtx))
		}

		// Everything under /api/{user_id} requires a valid token whose
		// subject matches the path owner.
		r.Route("/{user_id}", func(r chi.Router) {
			r.Use(middleware.JWT(svcCtx.Config.Auth.AccessSecret))
			r.Use(middleware.RequireOwner())

			r.Post("/tasks", tasks.CreateTaskHandler(svcCtx))
			r.Get("/tasks", tasks.ListTasksHandler(svcCtx))
			r.Get("/tasks/{task_id}", tasks.GetTaskHandler(svcCtx))
			r.Patch("/tasks/{task_id}", tasks.UpdateTaskHandler(svcCtx))
			r.Delete("/tasks/{task_id}", tasks.DeleteTaskHandler(svcCtx))

			r.Post("/chat", chat.ChatHandler(svcCtx))
			r.Get("/threads", chat.ListThreadsHandler(svcCtx))
			r.Get("/threads/{thread_id}/messages", chat.ThreadMessagesHandler(svcCtx))
		})
	})

	return r
}

func corsMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if origin := r.Header.Get("Origin"); origin != "" {
				w.Header().Set("Access-Control-Allow-Origin", origin)
				w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PATCH, DELETE, OPTIONS")
				w.Header().Set("Access-Control-Allow-Headers", "Authorization, Content-Type")
			}
			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func bodyLimit(maxBytes int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
			next.ServeHTTP(w, r)
		})
	}
}

// Package http собирает REST-поверхность сервиса: роутер chi,
// мидлвары и маршруты аутентификации/сессий.
package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/pribylovaa/helpdesk-auth/internal/service"
	"github.com/pribylovaa/helpdesk-auth/internal/transport/http/handlers"
	"github.com/pribylovaa/helpdesk-auth/internal/transport/http/middleware"
)

// Options — параметры сборки HTTP-роутера.
type Options struct {
	Logger   *slog.Logger
	Timeout  time.Duration
	BasePath string // например, "/api"; если пустой — роуты регистрируются на корне.
}

// NewRouter собирает http.Handler с chi и подключёнными middleware/роутами.
func NewRouter(svc *service.Service, opts Options) http.Handler {
	root := chi.NewRouter()

	// Middleware (внешний -> внутренний).
	root.Use(
		middleware.Recover(),            // безопасно ловим паники
		middleware.RequestID(),          // формируем/прокидываем X-Request-Id (до логирования!)
		middleware.Logging(opts.Logger), // кладём request-scoped логгер в контекст и логируем
	)
	if opts.Timeout > 0 {
		root.Use(middleware.Timeout(opts.Timeout)) // общий дедлайн запроса
	}

	h := handlers.New(svc)

	if opts.BasePath != "" {
		sub := chi.NewRouter()
		registerRoutes(sub, h, svc)
		root.Mount(opts.BasePath, sub)
		return root
	}

	registerRoutes(root, h, svc)
	return root
}

// registerRoutes — единая точка регистрации всех REST-эндпойнтов.
func registerRoutes(r chi.Router, h *handlers.Handlers, svc *service.Service) {
	// Публичные маршруты: аутентификация по паролю и по refresh-токену.
	r.Post("/auth/login", h.Login)
	r.Post("/auth/refresh", h.Refresh)

	// Маршруты под Bearer-токеном.
	r.Group(func(r chi.Router) {
		r.Use(middleware.RequireAuth(svc))

		r.Post("/auth/logout", h.Logout)
		r.Get("/auth/sessions", h.Sessions)
		r.Delete("/auth/sessions/{id}", h.RevokeSession)
		r.Post("/auth/invalidate", h.ForceInvalidate)
	})
}

package handler

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/zhouzirui/mindwave/backend/internal/handler/stream"
	"github.com/zhouzirui/mindwave/backend/internal/handler/thread"
	"github.com/zhouzirui/mindwave/backend/internal/handler/ws"
	middlewarePkg "github.com/zhouzirui/mindwave/backend/internal/middleware"
	chatService "github.com/zhouzirui/mindwave/backend/internal/service/chat"
	"github.com/zhouzirui/mindwave/backend/internal/service/session"
	"github.com/zhouzirui/mindwave/backend/pkg/utils"
)

// Deps are the services the router exposes.
type Deps struct {
	Sessions      *session.Manager
	Chat          *chatService.Service
	Authenticator *middlewarePkg.Authenticator
	Limiter       *middlewarePkg.RateLimiter
	Heartbeat     time.Duration
	Logger        zerolog.Logger
}

// NewRouter wires HTTP routes to core services.
func NewRouter(deps Deps) http.Handler {
	r := chi.NewRouter()

	r.Use(middlewarePkg.Metrics)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middlewarePkg.Logger(deps.Logger.With().Str("component", "http").Logger()))
	r.Use(middleware.Recoverer)
	r.Use(middlewarePkg.CORS)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		utils.RespondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", promhttp.Handler())

	threadHandler := thread.New(deps.Sessions, deps.Chat, deps.Limiter, deps.Logger)
	streamHandler := stream.New(deps.Sessions, deps.Heartbeat, deps.Logger)
	wsHandler := ws.New(deps.Sessions, deps.Chat, deps.Limiter, deps.Logger)

	r.Route("/api", func(api chi.Router) {
		api.Use(deps.Authenticator.Identify)

		threadHandler.RegisterRoutes(api)
		streamHandler.RegisterRoutes(api)
		wsHandler.RegisterRoutes(api)
	})

	return r
}

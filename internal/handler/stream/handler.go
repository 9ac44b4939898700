package stream

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/zhouzirui/mindwave/backend/internal/handler/thread"
	"github.com/zhouzirui/mindwave/backend/internal/middleware"
	"github.com/zhouzirui/mindwave/backend/internal/service/session"
	"github.com/zhouzirui/mindwave/backend/pkg/utils"
)

// DefaultHeartbeat is how often an idle stream sends a keep-alive comment.
const DefaultHeartbeat = 15 * time.Second

// Handler pushes the session view over Server-Sent Events whenever it changes.
type Handler struct {
	sessions  *session.Manager
	heartbeat time.Duration
	logger    zerolog.Logger
}

// New creates a stream handler. A zero heartbeat uses DefaultHeartbeat.
func New(sessions *session.Manager, heartbeat time.Duration, logger zerolog.Logger) *Handler {
	if heartbeat <= 0 {
		heartbeat = DefaultHeartbeat
	}
	return &Handler{
		sessions:  sessions,
		heartbeat: heartbeat,
		logger:    logger.With().Str("component", "sse").Logger(),
	}
}

// RegisterRoutes mounts GET /events.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.With(middleware.RequireIdentity).Get("/events", h.handleEvents)
}

func (h *Handler) handleEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		utils.RespondError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	sess, ok := thread.Session(w, r, h.sessions)
	if !ok {
		return
	}

	changes, unsubscribe := sess.Subscribe()
	defer unsubscribe()

	utils.SetupSSEHeaders(w)
	w.WriteHeader(http.StatusOK)

	uid := sess.Identity().UserID
	h.logger.Debug().Str("uid", uid).Msg("stream opened")
	defer h.logger.Debug().Str("uid", uid).Msg("stream closed")

	if err := utils.SendSSEEvent(w, flusher, "view", sess.View()); err != nil {
		return
	}

	ticker := time.NewTicker(h.heartbeat)
	defer ticker.Stop()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case <-changes:
			if err := utils.SendSSEEvent(w, flusher, "view", sess.View()); err != nil {
				return
			}
		case <-ticker.C:
			if err := utils.SendSSEComment(w, flusher, "heartbeat"); err != nil {
				return
			}
		}
	}
}

package thread

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/zhouzirui/mindwave/backend/internal/middleware"
	"github.com/zhouzirui/mindwave/backend/internal/model/chat"
	chatService "github.com/zhouzirui/mindwave/backend/internal/service/chat"
	"github.com/zhouzirui/mindwave/backend/internal/service/session"
	"github.com/zhouzirui/mindwave/backend/pkg/utils"
)

// Handler exposes sessions, threads and the send flow over REST.
type Handler struct {
	sessions *session.Manager
	chatSvc  *chatService.Service
	limiter  *middleware.RateLimiter
	logger   zerolog.Logger
}

// New creates the thread handler. limiter may be nil.
func New(sessions *session.Manager, chatSvc *chatService.Service, limiter *middleware.RateLimiter, logger zerolog.Logger) *Handler {
	return &Handler{
		sessions: sessions,
		chatSvc:  chatSvc,
		limiter:  limiter,
		logger:   logger.With().Str("component", "thread-handler").Logger(),
	}
}

// RegisterRoutes mounts the routes on r. Identity must already be resolved.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(middleware.RequireIdentity)

		r.Post("/session", h.handleSignIn)
		r.Delete("/session", h.handleSignOut)

		r.Get("/threads", h.handleListThreads)
		r.Post("/threads", h.handleCreateThread)
		r.Put("/threads/active", h.handleSwitchActive)
		r.Patch("/threads/{threadID}", h.handleRenameThread)
		r.Delete("/threads/{threadID}", h.handleDeleteThread)

		r.Get("/view", h.handleView)

		r.Group(func(r chi.Router) {
			if h.limiter != nil {
				r.Use(h.limiter.Middleware)
			}
			r.Post("/messages", h.handleSendMessage)
		})
	})
}

// Session resolves the signed-in session of the caller, writing 401 when
// there is none.
func Session(w http.ResponseWriter, r *http.Request, sessions *session.Manager) (*session.Session, bool) {
	identity := middleware.IdentityFrom(r.Context())
	sess, ok := sessions.Get(identity.UserID)
	if !identity.Valid() || !ok {
		utils.RespondError(w, http.StatusUnauthorized, "not signed in")
		return nil, false
	}
	return sess, true
}

func (h *Handler) handleSignIn(w http.ResponseWriter, r *http.Request) {
	sess, err := h.sessions.SignIn(r.Context(), middleware.IdentityFrom(r.Context()))
	switch {
	case errors.Is(err, session.ErrSnapshotUnavailable):
		utils.RespondError(w, http.StatusServiceUnavailable, "saved threads are unavailable, try again")
		return
	case err != nil:
		utils.RespondError(w, http.StatusUnauthorized, err.Error())
		return
	}
	utils.RespondJSON(w, http.StatusOK, sess.View())
}

func (h *Handler) handleSignOut(w http.ResponseWriter, r *http.Request) {
	h.sessions.SignOut(middleware.IdentityFrom(r.Context()).UserID)
	w.WriteHeader(http.StatusNoContent)
}

type threadList struct {
	ActiveThreadID string               `json:"activeThreadId"`
	Threads        []chat.ThreadSummary `json:"threads"`
}

func (h *Handler) handleListThreads(w http.ResponseWriter, r *http.Request) {
	sess, ok := Session(w, r, h.sessions)
	if !ok {
		return
	}
	utils.RespondJSON(w, http.StatusOK, threadList{ActiveThreadID: sess.ActiveID(), Threads: sess.Threads()})
}

func (h *Handler) handleCreateThread(w http.ResponseWriter, r *http.Request) {
	sess, ok := Session(w, r, h.sessions)
	if !ok {
		return
	}
	thread := sess.CreateThread(r.Context())
	utils.RespondJSON(w, http.StatusCreated, thread.Summary())
}

func (h *Handler) handleSwitchActive(w http.ResponseWriter, r *http.Request) {
	sess, ok := Session(w, r, h.sessions)
	if !ok {
		return
	}

	var payload struct {
		ThreadID string `json:"threadId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	// Unknown ids are ignored; the returned view shows what is active.
	sess.SwitchActive(r.Context(), payload.ThreadID)
	utils.RespondJSON(w, http.StatusOK, sess.View())
}

func (h *Handler) handleRenameThread(w http.ResponseWriter, r *http.Request) {
	sess, ok := Session(w, r, h.sessions)
	if !ok {
		return
	}

	var payload struct {
		Title string `json:"title"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(payload.Title) == "" {
		utils.RespondError(w, http.StatusBadRequest, "title is required")
		return
	}

	threadID := chi.URLParam(r, "threadID")
	if !sess.RenameThread(r.Context(), threadID, payload.Title) {
		utils.RespondError(w, http.StatusNotFound, "thread not found")
		return
	}
	thread, ok := sess.Thread(threadID)
	if !ok {
		// Deleted by a concurrent request after the rename.
		utils.RespondError(w, http.StatusNotFound, "thread not found")
		return
	}
	utils.RespondJSON(w, http.StatusOK, thread.Summary())
}

func (h *Handler) handleDeleteThread(w http.ResponseWriter, r *http.Request) {
	sess, ok := Session(w, r, h.sessions)
	if !ok {
		return
	}
	sess.DeleteThread(r.Context(), chi.URLParam(r, "threadID"))
	utils.RespondJSON(w, http.StatusOK, sess.View())
}

func (h *Handler) handleView(w http.ResponseWriter, r *http.Request) {
	sess, ok := Session(w, r, h.sessions)
	if !ok {
		return
	}
	utils.RespondJSON(w, http.StatusOK, sess.View())
}

type sendResponse struct {
	Reply chat.Message `json:"reply"`
	View  session.View `json:"view"`
}

func (h *Handler) handleSendMessage(w http.ResponseWriter, r *http.Request) {
	sess, ok := Session(w, r, h.sessions)
	if !ok {
		return
	}

	var payload struct {
		Text string `json:"text"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	reply, err := h.chatSvc.SendMessage(r.Context(), sess, payload.Text)
	if err != nil {
		utils.RespondError(w, SendErrorStatus(err), err.Error())
		return
	}
	utils.RespondJSON(w, http.StatusOK, sendResponse{Reply: reply, View: sess.View()})
}

// SendErrorStatus maps a send validation error to an HTTP status.
func SendErrorStatus(err error) int {
	switch {
	case errors.Is(err, chatService.ErrEmptyMessage):
		return http.StatusBadRequest
	case errors.Is(err, chatService.ErrSendInFlight), errors.Is(err, chatService.ErrNoActiveThread):
		return http.StatusConflict
	case errors.Is(err, chatService.ErrUnauthenticated):
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}

package ws

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/zhouzirui/mindwave/backend/internal/handler/thread"
	"github.com/zhouzirui/mindwave/backend/internal/middleware"
	chatService "github.com/zhouzirui/mindwave/backend/internal/service/chat"
	"github.com/zhouzirui/mindwave/backend/internal/service/session"
)

const (
	readTimeout  = 60 * time.Second
	pingInterval = 54 * time.Second
	writeTimeout = 10 * time.Second
)

// Handler serves a WebSocket that pushes the session view on every change and
// accepts send and switch commands.
type Handler struct {
	sessions *session.Manager
	chatSvc  *chatService.Service
	limiter  *middleware.RateLimiter
	logger   zerolog.Logger
	upgrader websocket.Upgrader
}

// New creates a WebSocket handler. limiter may be nil.
func New(sessions *session.Manager, chatSvc *chatService.Service, limiter *middleware.RateLimiter, logger zerolog.Logger) *Handler {
	return &Handler{
		sessions: sessions,
		chatSvc:  chatSvc,
		limiter:  limiter,
		logger:   logger.With().Str("component", "websocket").Logger(),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
}

// RegisterRoutes mounts GET /ws.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.With(middleware.RequireIdentity).Get("/ws", h.handleWebSocket)
}

type inboundMessage struct {
	Type     string `json:"type"`
	Text     string `json:"text,omitempty"`
	ThreadID string `json:"threadId,omitempty"`
}

type outgoingMessage struct {
	Type      string      `json:"type"`
	Data      interface{} `json:"data,omitempty"`
	Timestamp int64       `json:"timestamp"`
}

// conn serializes writes; gorilla allows one concurrent writer.
type conn struct {
	ws *websocket.Conn
	mu sync.Mutex
}

func (c *conn) send(msgType string, data interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.ws.SetWriteDeadline(time.Now().Add(writeTimeout))
	return c.ws.WriteJSON(outgoingMessage{Type: msgType, Data: data, Timestamp: time.Now().Unix()})
}

func (c *conn) ping() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeTimeout))
}

func (h *Handler) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	sess, ok := thread.Session(w, r, h.sessions)
	if !ok {
		return
	}

	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn().Err(err).Msg("upgrade failed")
		return
	}
	defer ws.Close()

	c := &conn{ws: ws}
	uid := sess.Identity().UserID
	logger := h.logger.With().Str("uid", uid).Logger()
	logger.Debug().Msg("connection opened")

	// Sends outlive the connection; only the feed stops with it.
	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	changes, unsubscribe := sess.Subscribe()
	defer unsubscribe()

	if err := c.send("view", sess.View()); err != nil {
		return
	}

	go h.feed(ctx, c, sess, changes)

	_ = ws.SetReadDeadline(time.Now().Add(readTimeout))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(readTimeout))
	})

	for {
		var msg inboundMessage
		if err := ws.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.Debug().Err(err).Msg("read error")
			}
			return
		}
		_ = ws.SetReadDeadline(time.Now().Add(readTimeout))
		h.handleMessage(ctx, c, sess, msg)
	}
}

func (h *Handler) handleMessage(ctx context.Context, c *conn, sess *session.Session, msg inboundMessage) {
	switch msg.Type {
	case "send":
		if h.limiter != nil && !h.limiter.Allow(sess.Identity().UserID) {
			h.sendError(c, "too many messages, slow down")
			return
		}
		// The reply arrives through the feed; the read loop keeps running.
		go func() {
			if _, err := h.chatSvc.SendMessage(ctx, sess, msg.Text); err != nil {
				h.sendError(c, err.Error())
			}
		}()
	case "switch":
		sess.SwitchActive(ctx, msg.ThreadID)
	case "new":
		sess.CreateThread(ctx)
	case "ping":
		_ = c.send("pong", nil)
	default:
		h.sendError(c, "unknown message type: "+msg.Type)
	}
}

func (h *Handler) feed(ctx context.Context, c *conn, sess *session.Session, changes <-chan struct{}) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-changes:
			if err := c.send("view", sess.View()); err != nil {
				return
			}
		case <-ticker.C:
			if err := c.ping(); err != nil {
				return
			}
		}
	}
}

func (h *Handler) sendError(c *conn, message string) {
	if err := c.send("error", map[string]string{"message": message}); err != nil {
		h.logger.Debug().Err(err).Msg("write error failed")
	}
}

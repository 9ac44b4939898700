package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zhouzirui/mindwave/backend/internal/middleware"
	"github.com/zhouzirui/mindwave/backend/internal/model/chat"
	chatservice "github.com/zhouzirui/mindwave/backend/internal/service/chat"
	"github.com/zhouzirui/mindwave/backend/internal/service/inference"
	"github.com/zhouzirui/mindwave/backend/internal/service/session"
	"github.com/zhouzirui/mindwave/backend/internal/store"
)

type replyClient struct{}

func (replyClient) Request(_ context.Context, req inference.Request) (inference.Result, error) {
	return inference.Result{Text: "heard: " + req.Text, Emotion: "happy"}, nil
}

type frame struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

func setup(t *testing.T) (string, *session.Manager) {
	t.Helper()
	sessions := session.NewManager(store.NewMemoryStore(), session.Options{})
	chatSvc := chatservice.NewService(replyClient{}, chatservice.Options{})

	r := chi.NewRouter()
	r.Use(middleware.NewAuthenticator("", zerolog.Nop()).Identify)
	New(sessions, chatSvc, nil, zerolog.Nop()).RegisterRoutes(r)

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http"), sessions
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	t.Cleanup(func() { conn.Close() })
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	return conn
}

// readUntil reads frames until match accepts one.
func readUntil(t *testing.T, conn *websocket.Conn, match func(frame) bool) frame {
	t.Helper()
	for {
		var f frame
		require.NoError(t, conn.ReadJSON(&f))
		if match(f) {
			return f
		}
	}
}

func TestWebSocketSendAndFeed(t *testing.T) {
	url, sessions := setup(t)
	_, err := sessions.SignIn(context.Background(), chat.Identity{UserID: "alice", Authenticated: true})
	require.NoError(t, err)

	conn := dial(t, url+"/ws?uid=alice")

	first := readUntil(t, conn, func(f frame) bool { return f.Type == "view" })
	var view session.View
	require.NoError(t, json.Unmarshal(first.Data, &view))
	assert.Empty(t, view.Messages)

	require.NoError(t, conn.WriteJSON(map[string]string{"type": "send", "text": "Hi there"}))

	readUntil(t, conn, func(f frame) bool {
		if f.Type != "view" {
			return false
		}
		var v session.View
		require.NoError(t, json.Unmarshal(f.Data, &v))
		if len(v.Messages) == 2 && !v.InFlight {
			view = v
			return true
		}
		return false
	})
	assert.Equal(t, "heard: Hi there", view.Messages[1].Text)
	assert.Equal(t, "Hi there", view.Title)
	assert.Equal(t, "happy", string(view.Emotion))
}

func TestWebSocketCommandsAndErrors(t *testing.T) {
	url, sessions := setup(t)
	sess, err := sessions.SignIn(context.Background(), chat.Identity{UserID: "alice", Authenticated: true})
	require.NoError(t, err)
	first := sess.ActiveID()

	conn := dial(t, url+"/ws?uid=alice")
	readUntil(t, conn, func(f frame) bool { return f.Type == "view" })

	require.NoError(t, conn.WriteJSON(map[string]string{"type": "send", "text": "   "}))
	errFrame := readUntil(t, conn, func(f frame) bool { return f.Type == "error" })
	assert.Contains(t, string(errFrame.Data), chatservice.ErrEmptyMessage.Error())

	require.NoError(t, conn.WriteJSON(map[string]string{"type": "dance"}))
	errFrame = readUntil(t, conn, func(f frame) bool { return f.Type == "error" })
	assert.Contains(t, string(errFrame.Data), "unknown message type")

	require.NoError(t, conn.WriteJSON(map[string]string{"type": "new"}))
	readUntil(t, conn, func(f frame) bool {
		var v session.View
		return f.Type == "view" && json.Unmarshal(f.Data, &v) == nil && len(v.Threads) == 2
	})
	assert.NotEqual(t, first, sess.ActiveID())

	require.NoError(t, conn.WriteJSON(map[string]string{"type": "switch", "threadId": first}))
	readUntil(t, conn, func(f frame) bool {
		var v session.View
		return f.Type == "view" && json.Unmarshal(f.Data, &v) == nil && v.ActiveThreadID == first
	})

	require.NoError(t, conn.WriteJSON(map[string]string{"type": "ping"}))
	readUntil(t, conn, func(f frame) bool { return f.Type == "pong" })
}

func TestWebSocketRequiresSignIn(t *testing.T) {
	url, _ := setup(t)

	_, resp, err := websocket.DefaultDialer.Dial(url+"/ws?uid=nobody", nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

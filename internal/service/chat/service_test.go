package chat_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zhouzirui/mindwave/backend/internal/analysis/emotion"
	model "github.com/zhouzirui/mindwave/backend/internal/model/chat"
	chat "github.com/zhouzirui/mindwave/backend/internal/service/chat"
	"github.com/zhouzirui/mindwave/backend/internal/service/inference"
	"github.com/zhouzirui/mindwave/backend/internal/service/session"
	"github.com/zhouzirui/mindwave/backend/internal/store"
)

type clientFunc func(ctx context.Context, req inference.Request) (inference.Result, error)

func (f clientFunc) Request(ctx context.Context, req inference.Request) (inference.Result, error) {
	return f(ctx, req)
}

// gatedClient blocks each request until release is closed.
type gatedClient struct {
	entered chan inference.Request
	release chan struct{}
	result  inference.Result
}

func newGatedClient(result inference.Result) *gatedClient {
	return &gatedClient{
		entered: make(chan inference.Request, 4),
		release: make(chan struct{}),
		result:  result,
	}
}

func (c *gatedClient) Request(ctx context.Context, req inference.Request) (inference.Result, error) {
	c.entered <- req
	<-c.release
	if err := ctx.Err(); err != nil {
		return inference.Result{}, err
	}
	return c.result, nil
}

func newSession(t *testing.T) *session.Session {
	t.Helper()
	identity := model.Identity{UserID: "u1", Authenticated: true}
	return session.Load(context.Background(), store.NewMemoryStore(), identity, session.Options{})
}

func waitEntered(t *testing.T, c *gatedClient) inference.Request {
	t.Helper()
	select {
	case req := <-c.entered:
		return req
	case <-time.After(2 * time.Second):
		t.Fatal("inference request never started")
		return inference.Request{}
	}
}

func TestSendMessageHappyPath(t *testing.T) {
	sess := newSession(t)
	var got inference.Request
	svc := chat.NewService(clientFunc(func(_ context.Context, req inference.Request) (inference.Result, error) {
		got = req
		return inference.Result{Text: "Hello!", Emotion: "happy"}, nil
	}), chat.Options{})

	reply, err := svc.SendMessage(context.Background(), sess, "Hi")
	require.NoError(t, err)
	assert.Equal(t, model.SenderAI, reply.Sender)
	assert.Equal(t, "Hello!", reply.Text)

	assert.Equal(t, "Hi", got.Text)
	assert.Equal(t, "u1", got.UserID)
	assert.Empty(t, got.History)

	view := sess.View()
	assert.Equal(t, "Hi", view.Title)
	require.Len(t, view.Messages, 2)
	assert.Equal(t, model.SenderUser, view.Messages[0].Sender)
	assert.Equal(t, "neutral", view.Messages[0].Emotion)
	assert.Equal(t, "happy", view.Messages[1].Emotion)
	assert.Equal(t, emotion.Happy, view.Emotion)
	assert.False(t, view.InFlight)
}

func TestSendMessageFailureRecordsFallback(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want string
	}{
		{
			name: "network",
			err:  &inference.Error{Kind: inference.KindTransport, Err: errors.New("connection refused")},
			want: "Sorry, I encountered an error: connection refused",
		},
		{
			name: "status",
			err:  &inference.Error{Kind: inference.KindStatus, StatusCode: 500},
			want: "Sorry, I encountered an error: HTTP error! status: 500",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			sess := newSession(t)
			svc := chat.NewService(clientFunc(func(context.Context, inference.Request) (inference.Result, error) {
				return inference.Result{}, tc.err
			}), chat.Options{})

			reply, err := svc.SendMessage(context.Background(), sess, "Hi")
			require.NoError(t, err)
			assert.Equal(t, tc.want, reply.Text)
			assert.Equal(t, "neutral", reply.Emotion)

			view := sess.View()
			require.Len(t, view.Messages, 2)
			assert.Equal(t, tc.want, view.Messages[1].Text)
			assert.Equal(t, emotion.Neutral, view.Emotion)
			assert.False(t, view.InFlight)
		})
	}
}

func TestSendMessageRejections(t *testing.T) {
	calls := 0
	svc := chat.NewService(clientFunc(func(context.Context, inference.Request) (inference.Result, error) {
		calls++
		return inference.Result{Text: "unused"}, nil
	}), chat.Options{})

	sess := newSession(t)
	for _, text := range []string{"", "   ", "\n\t"} {
		_, err := svc.SendMessage(context.Background(), sess, text)
		assert.ErrorIs(t, err, chat.ErrEmptyMessage)
	}
	assert.Empty(t, sess.View().Messages)

	anon := session.Load(context.Background(), store.NewMemoryStore(), model.Identity{UserID: "u2"}, session.Options{})
	_, err := svc.SendMessage(context.Background(), anon, "Hi")
	assert.ErrorIs(t, err, chat.ErrUnauthenticated)
	assert.Empty(t, anon.View().Messages)

	_, err = svc.SendMessage(context.Background(), nil, "Hi")
	assert.ErrorIs(t, err, chat.ErrUnauthenticated)

	assert.Zero(t, calls)
}

func TestSendMessageRejectsWhileInFlight(t *testing.T) {
	sess := newSession(t)
	client := newGatedClient(inference.Result{Text: "done", Emotion: "curious"})
	svc := chat.NewService(client, chat.Options{})

	done := make(chan error, 1)
	go func() {
		_, err := svc.SendMessage(context.Background(), sess, "first")
		done <- err
	}()
	waitEntered(t, client)

	assert.True(t, sess.View().InFlight)
	_, err := svc.SendMessage(context.Background(), sess, "second")
	assert.ErrorIs(t, err, chat.ErrSendInFlight)

	close(client.release)
	require.NoError(t, <-done)

	view := sess.View()
	require.Len(t, view.Messages, 2)
	assert.Equal(t, "first", view.Messages[0].Text)
	assert.False(t, view.InFlight)
}

func TestReplyLandsOnOriginalThreadAfterSwitch(t *testing.T) {
	ctx := context.Background()
	sess := newSession(t)
	threadA := sess.ActiveID()
	client := newGatedClient(inference.Result{Text: "Glad to hear", Emotion: "happy"})
	svc := chat.NewService(client, chat.Options{})

	done := make(chan error, 1)
	go func() {
		_, err := svc.SendMessage(ctx, sess, "Hi from A")
		done <- err
	}()
	waitEntered(t, client)

	threadB := sess.CreateThread(ctx).ID
	require.Equal(t, threadB, sess.ActiveID())

	close(client.release)
	require.NoError(t, <-done)

	a, ok := sess.Thread(threadA)
	require.True(t, ok)
	require.Len(t, a.Messages, 2)
	assert.Equal(t, "Glad to hear", a.Messages[1].Text)

	b, _ := sess.Thread(threadB)
	assert.Empty(t, b.Messages)

	view := sess.View()
	assert.Equal(t, threadB, view.ActiveThreadID)
	assert.Equal(t, emotion.Neutral, view.Emotion, "displayed emotion follows the active thread")
	assert.False(t, sess.InFlight(threadA))

	sess.SwitchActive(ctx, threadA)
	assert.Equal(t, emotion.Happy, sess.View().Emotion)
}

func TestReplyForDeletedThreadIsDropped(t *testing.T) {
	ctx := context.Background()
	sess := newSession(t)
	threadA := sess.ActiveID()
	client := newGatedClient(inference.Result{Text: "too late", Emotion: "sad"})
	svc := chat.NewService(client, chat.Options{})

	done := make(chan error, 1)
	go func() {
		_, err := svc.SendMessage(ctx, sess, "bye")
		done <- err
	}()
	waitEntered(t, client)

	sess.DeleteThread(ctx, threadA)
	close(client.release)
	require.NoError(t, <-done)

	_, ok := sess.Thread(threadA)
	assert.False(t, ok)
	require.Len(t, sess.Threads(), 1)
	assert.Empty(t, sess.View().Messages)
}

func TestCallerCancellationDoesNotLoseReply(t *testing.T) {
	sess := newSession(t)
	client := newGatedClient(inference.Result{Text: "still here", Emotion: "neutral"})
	svc := chat.NewService(client, chat.Options{})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := svc.SendMessage(ctx, sess, "closing the tab")
		done <- err
	}()
	waitEntered(t, client)
	cancel()
	close(client.release)
	require.NoError(t, <-done)

	view := sess.View()
	require.Len(t, view.Messages, 2)
	assert.Equal(t, "still here", view.Messages[1].Text)
}

func TestHistoryIsTrimmed(t *testing.T) {
	sess := newSession(t)
	var mu sync.Mutex
	var requests []inference.Request
	svc := chat.NewService(clientFunc(func(_ context.Context, req inference.Request) (inference.Result, error) {
		mu.Lock()
		requests = append(requests, req)
		mu.Unlock()
		return inference.Result{Text: "ok", Emotion: "neutral"}, nil
	}), chat.Options{HistoryLimit: 3})

	for _, text := range []string{"one", "two", "three"} {
		_, err := svc.SendMessage(context.Background(), sess, text)
		require.NoError(t, err)
	}

	last := requests[len(requests)-1]
	require.Len(t, last.History, 3)
	assert.Equal(t, model.Turn{Role: "ai", Content: "ok"}, last.History[0])
	assert.Equal(t, model.Turn{Role: "user", Content: "two"}, last.History[1])
	assert.Equal(t, model.Turn{Role: "ai", Content: "ok"}, last.History[2])
	assert.Equal(t, "three", last.Text)
}

func TestUserMessageCarriesDisplayedEmotion(t *testing.T) {
	sess := newSession(t)
	svc := chat.NewService(clientFunc(func(context.Context, inference.Request) (inference.Result, error) {
		return inference.Result{Text: "I hear you", Emotion: "sad"}, nil
	}), chat.Options{})

	_, err := svc.SendMessage(context.Background(), sess, "rough day")
	require.NoError(t, err)
	_, err = svc.SendMessage(context.Background(), sess, "really rough")
	require.NoError(t, err)

	msgs := sess.View().Messages
	require.Len(t, msgs, 4)
	assert.Equal(t, "neutral", msgs[0].Emotion)
	assert.Equal(t, "sad", msgs[2].Emotion)
}

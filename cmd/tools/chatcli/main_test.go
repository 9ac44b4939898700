package main

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zhouzirui/mindwave/backend/internal/model/chat"
	chatService "github.com/zhouzirui/mindwave/backend/internal/service/chat"
	"github.com/zhouzirui/mindwave/backend/internal/service/inference"
	"github.com/zhouzirui/mindwave/backend/internal/service/session"
	"github.com/zhouzirui/mindwave/backend/internal/store"
)

type upperClient struct{}

func (upperClient) Request(_ context.Context, req inference.Request) (inference.Result, error) {
	return inference.Result{Text: strings.ToUpper(req.Text), Emotion: "happy"}, nil
}

func TestREPL(t *testing.T) {
	ctx := context.Background()
	sess := session.Load(ctx, store.NewMemoryStore(), chat.Identity{UserID: "alice", Authenticated: true}, session.Options{})
	svc := chatService.NewService(upperClient{}, chatService.Options{})

	in := strings.NewReader("hello there\n\n/new\n/bogus\n/threads\n/quit\nnever sent\n")
	var out bytes.Buffer
	require.NoError(t, repl(ctx, in, &out, sess, svc))

	text := out.String()
	assert.Contains(t, text, "mindwave (happy): HELLO THERE")
	assert.Contains(t, text, "commands:")
	assert.NotContains(t, text, "NEVER SENT")

	threads := sess.Threads()
	require.Len(t, threads, 2)
	assert.Equal(t, "hello there", threads[1].Title)
	assert.Equal(t, threads[0].ID, sess.ActiveID())
}

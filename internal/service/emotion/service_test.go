package emotion

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	analysis "github.com/zhouzirui/mindwave/backend/internal/analysis/emotion"
	"github.com/zhouzirui/mindwave/backend/internal/model/chat"
)

type scriptedModel struct {
	reply  string
	err    error
	prompt []*schema.Message
}

func (m *scriptedModel) Generate(_ context.Context, input []*schema.Message, _ ...model.Option) (*schema.Message, error) {
	m.prompt = input
	if m.err != nil {
		return nil, m.err
	}
	return schema.AssistantMessage(m.reply, nil), nil
}

func (m *scriptedModel) Stream(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	msg, err := m.Generate(ctx, input, opts...)
	if err != nil {
		return nil, err
	}
	return schema.StreamReaderFromArray([]*schema.Message{msg}), nil
}

func (m *scriptedModel) BindTools([]*schema.ToolInfo) error { return nil }

func TestClassifyWithoutModelUsesHeuristic(t *testing.T) {
	svc, err := NewService(context.Background(), nil, Config{Enabled: true})
	require.NoError(t, err)
	assert.False(t, svc.Enabled())

	got := svc.Classify(context.Background(), nil, "I feel so lonely and tired")
	assert.Equal(t, analysis.Sad, got.Emotion)
	assert.Equal(t, "heuristic", got.Reason)
	assert.InDelta(t, 0.55, got.Confidence, 0.001)

	neutral := svc.Classify(context.Background(), nil, "ok")
	assert.Equal(t, analysis.Neutral, neutral.Emotion)
	assert.InDelta(t, 0.3, neutral.Confidence, 0.001)
}

func TestClassifyParsesModelAnswer(t *testing.T) {
	fake := &scriptedModel{reply: "Sure!\n```json\n{\"emotion\":\"Angry\",\"confidence\":1.7,\"reason\":\" blames the landlord \"}\n```"}
	svc, err := NewService(context.Background(), fake, Config{Enabled: true, HistoryLimit: 2})
	require.NoError(t, err)
	require.True(t, svc.Enabled())

	history := []chat.Turn{
		{Role: "user", Content: "dropped"},
		{Role: "ai", Content: "How did it go?"},
		{Role: "user", Content: "Badly."},
	}
	got := svc.Classify(context.Background(), history, "My landlord kept the deposit")

	assert.Equal(t, analysis.Angry, got.Emotion)
	assert.Equal(t, float32(1), got.Confidence)
	assert.Equal(t, "blames the landlord", got.Reason)

	require.Len(t, fake.prompt, 2)
	userPrompt := fake.prompt[1].Content
	assert.Contains(t, userPrompt, "Companion: How did it go?")
	assert.Contains(t, userPrompt, "User: Badly.")
	assert.NotContains(t, userPrompt, "dropped")
	assert.True(t, strings.HasSuffix(userPrompt, "My landlord kept the deposit"))
}

func TestClassifyFallsBack(t *testing.T) {
	cases := map[string]*scriptedModel{
		"model error":   {err: errors.New("quota exceeded")},
		"no json":       {reply: "The user seems curious."},
		"unknown label": {reply: `{"emotion":"wistful","confidence":0.9}`},
		"empty answer":  {reply: "   "},
	}
	for name, fake := range cases {
		t.Run(name, func(t *testing.T) {
			svc, err := NewService(context.Background(), fake, Config{Enabled: true})
			require.NoError(t, err)

			got := svc.Classify(context.Background(), nil, "why does this happen?")
			assert.Equal(t, analysis.Curious, got.Emotion)
			assert.Equal(t, "heuristic", got.Reason)
		})
	}
}

func TestParseClassifierOutput(t *testing.T) {
	payload, err := parseClassifierOutput(`noise {"emotion":"happy","confidence":0.4} trailing`)
	require.NoError(t, err)
	assert.Equal(t, "happy", payload.Emotion)
	assert.Equal(t, float32(0.4), payload.Confidence)

	_, err = parseClassifierOutput("no object here")
	assert.ErrorIs(t, err, errNoJSONObject)

	_, err = parseClassifierOutput(`{"emotion": }`)
	assert.Error(t, err)
}

func TestFormatHistoryEmpty(t *testing.T) {
	assert.Equal(t, "(no earlier messages)", formatHistory(nil, 6))
	assert.Equal(t, "(no earlier messages)", formatHistory([]chat.Turn{{Role: "user", Content: "  "}}, 6))
}

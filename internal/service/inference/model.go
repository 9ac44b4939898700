package inference

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"
	"github.com/rs/zerolog"

	"github.com/zhouzirui/mindwave/backend/internal/model/chat"
	emotionservice "github.com/zhouzirui/mindwave/backend/internal/service/emotion"
)

// ModelClient answers requests with a chat model directly, without the
// inference endpoint.
type ModelClient struct {
	chain      compose.Runnable[map[string]any, *schema.Message]
	classifier *emotionservice.Service
	prompt     PromptTemplate
	timeout    time.Duration
	logger     zerolog.Logger
}

// ModelOptions configure a ModelClient.
type ModelOptions struct {
	// Timeout bounds classification plus generation. Zero disables the deadline.
	Timeout time.Duration
	Logger  zerolog.Logger
}

// NewModelClient compiles the reply chain around chatModel. classifier may be
// nil, in which case replies are tagged neutral.
func NewModelClient(ctx context.Context, chatModel model.ChatModel, classifier *emotionservice.Service, opts ModelOptions) (*ModelClient, error) {
	if chatModel == nil {
		return nil, errors.New("chat model is required")
	}

	promptTemplate := prompt.FromMessages(
		schema.FString,
		schema.SystemMessage("{system}"),
		schema.MessagesPlaceholder("history", true),
		schema.UserMessage("{query}"),
	)

	chain := compose.NewChain[map[string]any, *schema.Message]()
	chain.AppendChatTemplate(promptTemplate)
	chain.AppendChatModel(chatModel)

	runnable, err := chain.Compile(ctx)
	if err != nil {
		return nil, fmt.Errorf("compile reply chain: %w", err)
	}

	return &ModelClient{
		chain:      runnable,
		classifier: classifier,
		prompt:     DefaultPrompt,
		timeout:    opts.Timeout,
		logger:     opts.Logger.With().Str("component", "inference-model").Logger(),
	}, nil
}

// Request classifies the user's mood, then generates a reply tuned to it. The
// reply carries the classified label as its emotion.
func (c *ModelClient) Request(ctx context.Context, req Request) (Result, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	var guidance *emotionservice.Guidance
	if c.classifier != nil {
		g := c.classifier.Classify(ctx, req.History, req.Text)
		guidance = &g
	}

	input := map[string]any{
		"system":  c.prompt.BuildSystemPrompt(guidance),
		"history": historyMessages(req.History),
		"query":   req.Text,
	}

	resp, err := c.chain.Invoke(ctx, input)
	if err != nil {
		return Result{}, &Error{Kind: KindTransport, Err: fmt.Errorf("run reply chain: %w", err)}
	}
	if resp == nil || strings.TrimSpace(resp.Content) == "" {
		return Result{}, &Error{Kind: KindDecode, Err: errors.New("model returned an empty reply")}
	}

	emotion := neutralEmotion
	if guidance != nil && guidance.Emotion != "" {
		emotion = string(guidance.Emotion)
	}

	c.logger.Debug().Str("uid", req.UserID).Int("length", len(resp.Content)).Str("emotion", emotion).Msg("reply generated")
	return Result{Text: resp.Content, Emotion: emotion}, nil
}

func historyMessages(turns []chat.Turn) []*schema.Message {
	if len(turns) == 0 {
		return nil
	}
	out := make([]*schema.Message, 0, len(turns))
	for _, turn := range turns {
		switch turn.Role {
		case "user":
			out = append(out, schema.UserMessage(turn.Content))
		case "ai":
			out = append(out, schema.AssistantMessage(turn.Content, nil))
		}
	}
	return out
}

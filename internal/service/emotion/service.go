package emotion

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"
	"github.com/rs/zerolog"

	analysis "github.com/zhouzirui/mindwave/backend/internal/analysis/emotion"
	"github.com/zhouzirui/mindwave/backend/internal/model/chat"
)

// Config controls the classifier.
type Config struct {
	Enabled      bool
	HistoryLimit int
	Logger       zerolog.Logger
}

// Guidance is the classified emotion of the user's latest message.
type Guidance struct {
	Emotion    analysis.Label `json:"emotion"`
	Confidence float32        `json:"confidence"`
	Reason     string         `json:"reason"`
}

// Service classifies user messages with a chat model and falls back to the
// keyword heuristic when the model is unavailable or answers badly.
type Service struct {
	enabled      bool
	classifier   compose.Runnable[map[string]any, *schema.Message]
	fallback     func(text string) analysis.Decision
	historyLimit int
	logger       zerolog.Logger
}

// NewService builds the classifier. A nil chatModel or a disabled config yields
// a heuristic-only service.
func NewService(ctx context.Context, chatModel model.ChatModel, cfg Config) (*Service, error) {
	historyLimit := cfg.HistoryLimit
	if historyLimit <= 0 {
		historyLimit = 6
	}

	svc := &Service{
		enabled:      cfg.Enabled && chatModel != nil,
		fallback:     analysis.Analyze,
		historyLimit: historyLimit,
		logger:       cfg.Logger.With().Str("component", "emotion-classifier").Logger(),
	}
	if !svc.enabled {
		return svc, nil
	}

	promptTemplate := prompt.FromMessages(
		schema.FString,
		schema.SystemMessage("{instructions}"),
		schema.UserMessage(classifierUserPrompt),
	)

	chain := compose.NewChain[map[string]any, *schema.Message]()
	chain.AppendChatTemplate(promptTemplate)
	chain.AppendChatModel(chatModel)

	runnable, err := chain.Compile(ctx)
	if err != nil {
		return nil, fmt.Errorf("compile emotion classifier chain: %w", err)
	}
	svc.classifier = runnable
	return svc, nil
}

// Enabled reports whether the model-backed classifier is active.
func (s *Service) Enabled() bool {
	return s != nil && s.enabled && s.classifier != nil
}

// Classify labels userMessage given the preceding turns.
func (s *Service) Classify(ctx context.Context, history []chat.Turn, userMessage string) Guidance {
	if !s.Enabled() {
		return s.fallbackGuidance(userMessage)
	}

	input := map[string]any{
		"instructions": classifierSystemPrompt,
		"history":      formatHistory(history, s.historyLimit),
		"user_message": strings.TrimSpace(userMessage),
	}

	msg, err := s.classifier.Invoke(ctx, input)
	if err != nil {
		s.logger.Warn().Err(err).Msg("classifier invoke failed, using heuristic")
		return s.fallbackGuidance(userMessage)
	}
	if msg == nil || strings.TrimSpace(msg.Content) == "" {
		return s.fallbackGuidance(userMessage)
	}

	result, err := parseClassifierOutput(msg.Content)
	if err != nil {
		s.logger.Warn().Err(err).Msg("classifier output unparsable, using heuristic")
		return s.fallbackGuidance(userMessage)
	}

	label, ok := analysis.Parse(result.Emotion)
	if !ok {
		s.logger.Debug().Str("emotion", result.Emotion).Msg("classifier returned unknown label")
		return s.fallbackGuidance(userMessage)
	}

	confidence := result.Confidence
	if confidence <= 0 {
		confidence = 0.6
	}
	if confidence > 1 {
		confidence = 1
	}

	return Guidance{
		Emotion:    label,
		Confidence: confidence,
		Reason:     strings.TrimSpace(result.Reason),
	}
}

func (s *Service) fallbackGuidance(userMessage string) Guidance {
	fallback := analysis.Analyze
	if s != nil && s.fallback != nil {
		fallback = s.fallback
	}
	decision := fallback(userMessage)

	confidence := float32(0.3)
	if decision.Score > 0 {
		confidence = 0.55
	}
	return Guidance{
		Emotion:    decision.Emotion,
		Confidence: confidence,
		Reason:     "heuristic",
	}
}

var errNoJSONObject = errors.New("missing json object")

// parseClassifierOutput extracts the first JSON object from the model output.
func parseClassifierOutput(content string) (*classifierPayload, error) {
	trimmed := strings.TrimSpace(content)
	start := strings.Index(trimmed, "{")
	end := strings.LastIndex(trimmed, "}")
	if start == -1 || end == -1 || end <= start {
		return nil, errNoJSONObject
	}

	payload := &classifierPayload{}
	if err := json.Unmarshal([]byte(trimmed[start:end+1]), payload); err != nil {
		return nil, err
	}
	return payload, nil
}

func formatHistory(turns []chat.Turn, limit int) string {
	if limit < 1 {
		limit = 1
	}
	start := len(turns) - limit
	if start < 0 {
		start = 0
	}

	lines := make([]string, 0, len(turns)-start)
	for _, turn := range turns[start:] {
		content := strings.TrimSpace(turn.Content)
		if content == "" {
			continue
		}
		role := "User"
		if turn.Role != "user" {
			role = "Companion"
		}
		lines = append(lines, role+": "+content)
	}
	if len(lines) == 0 {
		return "(no earlier messages)"
	}
	return strings.Join(lines, "\n")
}

type classifierPayload struct {
	Emotion    string  `json:"emotion"`
	Confidence float32 `json:"confidence"`
	Reason     string  `json:"reason"`
}

const classifierSystemPrompt = `You read a short conversation between a user and a supportive companion and decide how the user feels in their latest message.
Answer with a single JSON object and nothing else. Fields:
- emotion: one of neutral, happy, sad, angry, curious
- confidence: a number between 0 and 1
- reason: one short sentence`

const classifierUserPrompt = "Earlier conversation:\n{history}\n\nLatest user message:\n{user_message}"

package inference

import (
	"fmt"
	"strings"

	analysis "github.com/zhouzirui/mindwave/backend/internal/analysis/emotion"
	emotionservice "github.com/zhouzirui/mindwave/backend/internal/service/emotion"
)

// PromptTemplate holds the fixed parts of the companion system prompt.
type PromptTemplate struct {
	Role         string
	Hints        []string
	ContextRules []string
}

// DefaultPrompt is the companion persona used by ModelClient.
var DefaultPrompt = PromptTemplate{
	Role: "You are Mindwave, a warm and attentive companion. You listen first, keep replies short, and help the user notice and name how they feel.",
	Hints: []string{
		"Reflect the user's words back before offering anything new",
		"Ask at most one gentle question per reply",
		"Never diagnose; suggest professional help when the user mentions self-harm",
	},
	ContextRules: []string{
		"Reply in the user's language",
		"Keep replies under 120 words",
		"Do not mention that you are following instructions",
	},
}

var toneByEmotion = map[analysis.Label]string{
	analysis.Neutral: "The user seems calm. Keep a clear, friendly and natural tone.",
	analysis.Happy:   "The user seems in good spirits. Share the lightness and affirm what went well.",
	analysis.Sad:     "The user seems low. Be gentle, validate the feeling and slow down.",
	analysis.Angry:   "The user seems frustrated. Stay steady, acknowledge the frustration and avoid arguing.",
	analysis.Curious: "The user seems curious. Answer plainly and invite them to explore further.",
}

// BuildSystemPrompt renders the template with the classified emotion.
func (p PromptTemplate) BuildSystemPrompt(guidance *emotionservice.Guidance) string {
	var b strings.Builder
	b.WriteString(p.Role)
	if len(p.Hints) > 0 {
		b.WriteString("\n\nHow to respond:\n- ")
		b.WriteString(strings.Join(p.Hints, "\n- "))
	}
	if len(p.ContextRules) > 0 {
		b.WriteString("\n\nRules:\n- ")
		b.WriteString(strings.Join(p.ContextRules, "\n- "))
	}

	if guidance == nil || guidance.Emotion == "" {
		return b.String()
	}

	b.WriteString("\n\nCurrent read of the user's mood: ")
	if tone, ok := toneByEmotion[guidance.Emotion]; ok {
		b.WriteString(tone)
	} else {
		b.WriteString(fmt.Sprintf("emotion=%s.", guidance.Emotion))
	}
	b.WriteString(fmt.Sprintf(" (confidence %.1f)", guidance.Confidence))
	if guidance.Reason != "" {
		b.WriteString("\nReason: ")
		b.WriteString(guidance.Reason)
	}
	return b.String()
}

package emotion

import "github.com/zhouzirui/mindwave/backend/internal/model/chat"

// Current derives the displayed emotion of a thread: the emotion of the most
// recent AI message, or Neutral when the AI has not spoken yet.
func Current(messages []chat.Message) Label {
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Sender == chat.SenderAI {
			return ForDisplay(messages[i].Emotion)
		}
	}
	return Neutral
}

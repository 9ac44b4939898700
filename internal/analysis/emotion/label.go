package emotion

import "strings"

// Label is one of the emotions the presentation layer can render.
type Label string

const (
	Neutral Label = "neutral"
	Happy   Label = "happy"
	Sad     Label = "sad"
	Angry   Label = "angry"
	Curious Label = "curious"
)

// Labels lists the closed set in display order.
var Labels = []Label{Neutral, Happy, Sad, Angry, Curious}

// Parse recognises a raw label from storage or the wire.
func Parse(raw string) (Label, bool) {
	switch Label(strings.ToLower(strings.TrimSpace(raw))) {
	case Neutral:
		return Neutral, true
	case Happy:
		return Happy, true
	case Sad:
		return Sad, true
	case Angry:
		return Angry, true
	case Curious:
		return Curious, true
	default:
		return "", false
	}
}

// ForDisplay maps raw values outside the closed set to Neutral.
// The raw value itself is left untouched wherever it is stored.
func ForDisplay(raw string) Label {
	if label, ok := Parse(raw); ok {
		return label
	}
	return Neutral
}

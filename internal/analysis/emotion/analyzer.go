package emotion

import "strings"

// Decision is the outcome of the keyword heuristic.
type Decision struct {
	Emotion Label
	Score   int
}

var keywordBuckets = map[Label][]string{
	Happy: {
		"happy", "glad", "great", "awesome", "amazing", "wonderful", "excited", "love", "thanks",
		"thank you", "yay", "fantastic", "joy", "delighted", "grateful", "proud", "lol", "haha",
	},
	Sad: {
		"sad", "unhappy", "depressed", "lonely", "alone", "cry", "crying", "upset", "hurt", "tired",
		"anxious", "anxiety", "worried", "miss", "lost", "hopeless", "grief", "heartbroken", "down",
	},
	Angry: {
		"angry", "furious", "mad", "annoyed", "hate", "rage", "pissed", "frustrated", "irritated",
		"sick of", "fed up", "outraged", "unfair",
	},
	Curious: {
		"why", "how", "what if", "wonder", "curious", "explain", "tell me", "what is", "could you",
		"interested", "learn",
	},
}

var punctuationBoost = map[Label]int{
	Happy:   2,
	Curious: 2,
}

// Analyze scores text against the keyword buckets and returns the best label.
// Text with no signal comes back Neutral with a zero score.
func Analyze(text string) Decision {
	normalized := strings.TrimSpace(strings.ToLower(text))
	if normalized == "" {
		return Decision{Emotion: Neutral}
	}

	scores := make(map[Label]int)
	for label, keywords := range keywordBuckets {
		for _, word := range keywords {
			if containsWord(normalized, word) {
				scores[label] += 3
			}
		}
	}

	if exclamations := strings.Count(text, "!"); exclamations > 0 {
		scores[Happy] += punctuationBoost[Happy]
	}
	if questions := strings.Count(text, "?"); questions > 0 {
		scores[Curious] += questions * punctuationBoost[Curious]
	}

	best := Decision{Emotion: Neutral}
	// Iterate the closed set in order so ties resolve deterministically.
	for _, label := range Labels {
		if s := scores[label]; s > best.Score {
			best = Decision{Emotion: label, Score: s}
		}
	}
	return best
}

// containsWord matches at word starts so "sadness" still counts for "sad" but
// "shadow" does not count for "how".
func containsWord(text, word string) bool {
	idx := 0
	for {
		pos := strings.Index(text[idx:], word)
		if pos < 0 {
			return false
		}
		start := idx + pos
		if start == 0 || !isLetter(text[start-1]) {
			return true
		}
		idx = start + 1
	}
}

func isLetter(b byte) bool {
	return (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z')
}

package chat

const (
	titleMaxRunes = 30
	titleEllipsis = "..."
)

// DeriveTitle turns the first user message of a thread into its title. The
// text is kept as typed, surrounding whitespace included.
func DeriveTitle(text string) string {
	runes := []rune(text)
	if len(runes) <= titleMaxRunes {
		return text
	}
	return string(runes[:titleMaxRunes]) + titleEllipsis
}

package relay

import "unicode/utf8"

// DefaultMaxMessageLength is the platform limit for one text message, in characters.
const DefaultMaxMessageLength = 4096

// SplitChunks splits text into consecutive pieces of at most limit runes.
// Concatenating the result yields text exactly. Empty text yields no chunks.
func SplitChunks(text string, limit int) []string {
	if text == "" {
		return nil
	}
	if limit <= 0 {
		limit = DefaultMaxMessageLength
	}
	if utf8.RuneCountInString(text) <= limit {
		return []string{text}
	}

	chunks := make([]string, 0, utf8.RuneCountInString(text)/limit+1)
	start, runes := 0, 0
	for i := range text {
		if runes == limit {
			chunks = append(chunks, text[start:i])
			start, runes = i, 0
		}
		runes++
	}
	return append(chunks, text[start:])
}

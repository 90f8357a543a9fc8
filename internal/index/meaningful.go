package index

import (
	"strings"
	"unicode/utf8"
)

// minMeaningfulLen is the trimmed length in runes a turn must exceed to be
// indexed.
const minMeaningfulLen = 20

// fillerOpeners disqualify a turn when it starts with one of them.
var fillerOpeners = []string{
	"hi", "hello", "thanks", "thank you", "okay", "got it", "sure", "no problem",
}

// fillerTokens disqualify a turn when it is exactly one of them.
var fillerTokens = map[string]struct{}{
	"yes": {}, "no": {}, "ok": {}, "cool": {}, "great": {}, "fine": {},
}

// Meaningful reports whether a conversation turn is worth indexing.
// Short messages, greetings, and acknowledgements stay in raw conversation
// memory but are silently dropped from the history index.
func Meaningful(content string) bool {
	c := strings.ToLower(strings.TrimSpace(content))
	if utf8.RuneCountInString(c) <= minMeaningfulLen {
		return false
	}
	for _, opener := range fillerOpeners {
		if strings.HasPrefix(c, opener) {
			return false
		}
	}
	_, filler := fillerTokens[c]
	return !filler
}

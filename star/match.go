package star

import "strings"

// Matches reports whether text catches a star with word: the whole message,
// compared without regard to case. An empty word never matches.
func Matches(word, text string) bool {
	return word != "" && strings.EqualFold(word, text)
}

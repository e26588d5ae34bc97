// Package tokenizer estimates token counts for cost previews.
package tokenizer

import (
	"strings"
	"unicode/utf8"
)

// Estimate approximates the token count of text as the larger of
// four-thirds of the word count and a quarter of the rune count. Empty or
// blank text is zero tokens.
func Estimate(text string) int {
	words := len(strings.Fields(text))
	if words == 0 {
		return 0
	}
	byWords := words * 4 / 3
	byRunes := (utf8.RuneCountInString(text) + 3) / 4
	return max(byWords, byRunes, 1)
}

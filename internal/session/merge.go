package session

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// leadingJoiners are characters that attach directly to the preceding text,
// so no space is inserted before a delta starting with one of them.
const leadingJoiners = ".,!?;:"

// mergeDelta appends one streamed fragment to the accumulated reply,
// restoring the single space that token-level streaming tends to drop at
// word boundaries. Replaying the same delta sequence from empty always
// yields the same content.
func mergeDelta(existing, delta string) string {
	if needsSeparator(existing, delta) {
		return existing + " " + delta
	}
	return existing + delta
}

// needsSeparator reports whether a space must be inserted between the
// accumulated content and the incoming delta: only when there is prior
// content, it does not already end in whitespace, and the delta does not
// begin with whitespace or a joining punctuation mark.
func needsSeparator(existing, delta string) bool {
	if existing == "" || delta == "" {
		return false
	}
	last, _ := utf8.DecodeLastRuneInString(existing)
	if unicode.IsSpace(last) {
		return false
	}
	first, _ := utf8.DecodeRuneInString(delta)
	if unicode.IsSpace(first) || strings.ContainsRune(leadingJoiners, first) {
		return false
	}
	return true
}

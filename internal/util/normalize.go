package util

import "strings"

const (
	// MaxPostLength is the publishable length in runes.
	MaxPostLength = 273
	// sentenceCutFloor is the rune offset a terminal mark must pass for the
	// text to be cut at that sentence boundary.
	sentenceCutFloor = 200
	ellipsis         = "..."
)

func isTerminal(r rune) bool {
	switch r {
	case '.', '!', '?', '।':
		return true
	}
	return false
}

// Normalize turns raw generated text into a publishable message of at most
// MaxPostLength runes. It is pure: the same input always yields the same
// output, and Normalize(Normalize(s)) == Normalize(s).
func Normalize(raw string) string {
	text := strings.Join(strings.Fields(raw), " ")
	runes := []rune(text)
	if len(runes) <= MaxPostLength {
		return text
	}

	window := runes[:MaxPostLength]
	lastStop := -1
	for i := len(window) - 1; i >= 0; i-- {
		if isTerminal(window[i]) {
			lastStop = i
			break
		}
	}

	var cut []rune
	if lastStop > sentenceCutFloor {
		cut = window[:lastStop+1]
	} else {
		// Leave room for the ellipsis so the result stays within the limit.
		limit := MaxPostLength - len(ellipsis)
		cut = window[:limit]
		for i := limit; i > 0; i-- {
			if window[i] == ' ' {
				cut = window[:i]
				break
			}
		}
	}

	out := strings.TrimSpace(string(cut))
	if r := []rune(out); len(r) == 0 || !isTerminal(r[len(r)-1]) {
		out += ellipsis
	}
	return strings.TrimSpace(out)
}

// Preview shortens s to n runes followed by an ellipsis, for history listings.
func Preview(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + ellipsis
}

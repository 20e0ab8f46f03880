// Package guessclassify turns a chat line from a still-guessing player
// into a verdict: exact match, close (at most two edits away), or an ordinary
// chat message to relay.
package guessclassify

import (
	"strings"

	"github.com/agnivade/levenshtein"
)

// Verdict classifies one guess attempt against the round's word.
type Verdict int

const (
	// NoMatch means the message should be relayed as ordinary chat.
	NoMatch Verdict = iota
	// Close means the message missed by at most closeDistance character
	// edits and should trigger a "close guess" hint instead of being relayed verbatim.
	Close
	// Correct means the message is the word, case-insensitively.
	Correct
)

// closeDistance is the edit distance, inclusive, that counts as "close."
const closeDistance = 2

// Classify compares a trimmed chat message against the round's word.
// Both strings are lower-cased before comparison; callers should pass the
// raw guess and the raw word untouched.
func Classify(message, word string) Verdict {
	guess := strings.ToLower(strings.TrimSpace(message))
	target := strings.ToLower(strings.TrimSpace(word))

	if guess == "" {
		return NoMatch
	}
	if guess == target {
		return Correct
	}
	if levenshtein.ComputeDistance(guess, target) <= closeDistance {
		return Close
	}
	return NoMatch
}

// Package transcript folds the finalized segments of a word index into the
// committed plain-text transcript.
package transcript

import (
	"regexp"
	"strings"

	"transcript-sync-service/internal/service/wordindex"
)

// spaceBeforePunct matches whitespace immediately preceding sentence
// punctuation, which the recognizer introduces when word texts are joined.
var spaceBeforePunct = regexp.MustCompile(`\s+([.,!?;:])`)

// Accumulator derives the committed transcript from a word index. Recompute
// is a pure function of the index's final segments; the accumulator itself
// only tracks the previous length for shrink detection.
type Accumulator struct {
	lastLen int
	shrunk  bool
}

// New creates an accumulator for a fresh session.
func New() *Accumulator {
	return &Accumulator{}
}

// Normalize collapses whitespace before punctuation ("hello , world" ->
// "hello, world").
func Normalize(text string) string {
	return spaceBeforePunct.ReplaceAllString(text, "$1")
}

// Recompute concatenates the word text of every finalized segment in
// sequence order, space-joined, then applies punctuation normalization.
// Calling it twice on an unchanged index yields an identical string.
func (a *Accumulator) Recompute(ix *wordindex.Index) string {
	var parts []string
	for _, seg := range ix.FinalSegments() {
		for _, w := range seg.Words {
			if w.Text != "" {
				parts = append(parts, w.Text)
			}
		}
	}
	text := Normalize(strings.Join(parts, " "))
	a.shrunk = len(text) < a.lastLen
	a.lastLen = len(text)
	return text
}

// Shrunk reports whether the most recent Recompute produced a shorter text
// than the one before it. Committed text is append-only under normal
// operation, so a shrink is a protocol anomaly and the new value should be
// treated as untrusted (full replace rather than partial append).
func (a *Accumulator) Shrunk() bool {
	return a.shrunk
}

// Reset clears the tracked length for a new session.
func (a *Accumulator) Reset() {
	a.lastLen = 0
	a.shrunk = false
}

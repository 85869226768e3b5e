// Package docsync reconciles newly committed transcript text into the
// editable document without clobbering what is already there.
package docsync

import (
	"strings"

	"github.com/rs/zerolog"

	"transcript-sync-service/internal/observability/metrics"
	"transcript-sync-service/internal/service/document"
)

// Outcome describes what a reconcile did to the document.
type Outcome int

const (
	// OutcomeNoChange - the committed text already matches the projection.
	OutcomeNoChange Outcome = iota
	// OutcomeAppended - new text was structurally appended to the last block.
	OutcomeAppended
	// OutcomeReplaced - the document was reset to a single plain block.
	OutcomeReplaced
)

// String returns the string representation of the outcome.
func (o Outcome) String() string {
	switch o {
	case OutcomeNoChange:
		return "NO_CHANGE"
	case OutcomeAppended:
		return "APPENDED"
	case OutcomeReplaced:
		return "REPLACED"
	default:
		return "UNKNOWN"
	}
}

// leading characters that attach to the preceding word without a space.
const attachedPunct = ".,!?;:)]}"

// Engine applies committed-text updates to a document. It never lets an
// internal failure escape: a structural append that cannot complete
// degrades to a full replace.
type Engine struct {
	doc     *document.Document
	log     zerolog.Logger
	metrics *metrics.Metrics
}

// New creates a sync engine over the given document.
func New(doc *document.Document, log zerolog.Logger) *Engine {
	return &Engine{doc: doc, log: log, metrics: metrics.DefaultMetrics}
}

// Document returns the document the engine owns.
func (e *Engine) Document() *document.Document {
	return e.doc
}

// Reconcile brings the document in line with newCommittedText. If the
// current projection is empty or a strict prefix of the new text, the delta
// is appended structurally, preserving existing formatting; any other shape
// of change (shrink, out-of-order correction, first load) resets the
// document to a single unformatted block.
func (e *Engine) Reconcile(newCommittedText string) Outcome {
	current := e.doc.PlainText()

	if current == newCommittedText {
		return OutcomeNoChange
	}

	if current == "" || strings.HasPrefix(newCommittedText, current) {
		delta := newCommittedText[len(current):]
		if err := e.doc.AppendToLastBlock(delta); err != nil {
			e.log.Warn().Err(err).Msg("structural append failed, falling back to full replace")
			e.metrics.RecordAppendFallback()
			e.doc.ReplaceWithPlainText(newCommittedText)
			e.metrics.RecordReconcile(OutcomeReplaced.String())
			return OutcomeReplaced
		}
		e.metrics.RecordReconcile(OutcomeAppended.String())
		return OutcomeAppended
	}

	// Non-append change: discontinuous update, formatting is accepted loss.
	e.doc.ReplaceWithPlainText(newCommittedText)
	e.metrics.RecordReconcile(OutcomeReplaced.String())
	return OutcomeReplaced
}

// AppendDelta appends already-resolved delta text to the document's current
// projection, inserting a separating space unless the delta begins with
// punctuation that attaches to the preceding word. Used by the user's
// append resolution, where the delta is relative to the last synced text
// rather than the live projection.
func (e *Engine) AppendDelta(delta string) Outcome {
	delta = strings.TrimSpace(delta)
	if delta == "" {
		return OutcomeNoChange
	}

	current := e.doc.PlainText()
	if current != "" && !strings.HasSuffix(current, " ") &&
		!strings.ContainsRune(attachedPunct, rune(delta[0])) {
		delta = " " + delta
	}

	if err := e.doc.AppendToLastBlock(delta); err != nil {
		e.log.Warn().Err(err).Msg("structural append failed, falling back to full replace")
		e.metrics.RecordAppendFallback()
		e.doc.ReplaceWithPlainText(strings.TrimSpace(current + delta))
		e.metrics.RecordReconcile(OutcomeReplaced.String())
		return OutcomeReplaced
	}
	e.metrics.RecordReconcile(OutcomeAppended.String())
	return OutcomeAppended
}

// Replace resets the document to the given text as one unformatted block.
func (e *Engine) Replace(text string) Outcome {
	e.doc.ReplaceWithPlainText(text)
	e.metrics.RecordReconcile(OutcomeReplaced.String())
	return OutcomeReplaced
}

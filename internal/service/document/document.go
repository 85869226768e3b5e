// Package document owns the user-facing structured text: paragraph blocks
// of marked spans, a plain-text projection, and the two primitives the sync
// engine relies on (append to last block, replace with plain text).
package document

import (
	"encoding/json"
	"errors"
	"strings"
	"sync"
)

// ErrNoTextBlock is returned when a structural append cannot locate a
// text-bearing block to extend.
var ErrNoTextBlock = errors.New("document has no text-bearing block")

// Span is a run of text with inline formatting marks (bold, italic, ...).
type Span struct {
	Text  string   `json:"text"`
	Marks []string `json:"marks,omitempty"`
}

// Block is a paragraph of spans.
type Block struct {
	Spans []Span `json:"spans"`
}

// Document is the editable structured text. It is mutated either by the
// user-edit path or by the sync engine's reconcile path; callers on the
// engine side treat each mutation as atomic.
type Document struct {
	mu     sync.RWMutex
	blocks []Block
}

// New creates an empty document.
func New() *Document {
	return &Document{}
}

// FromPlainText creates a document holding the given text as a single
// unformatted paragraph. Empty text yields an empty document.
func FromPlainText(text string) *Document {
	d := New()
	d.ReplaceWithPlainText(text)
	return d
}

// PlainText returns the flattened projection: span texts concatenated,
// blocks joined by newline.
func (d *Document) PlainText() string {
	d.mu.RLock()
	defer d.mu.RUnlock()

	parts := make([]string, 0, len(d.blocks))
	for _, b := range d.blocks {
		var sb strings.Builder
		for _, s := range b.Spans {
			sb.WriteString(s.Text)
		}
		parts = append(parts, sb.String())
	}
	return strings.Join(parts, "\n")
}

// IsEmpty reports whether the document holds no text at all.
func (d *Document) IsEmpty() bool {
	return d.PlainText() == ""
}

// AppendToLastBlock inserts text at the end of the last text-bearing block
// without altering any preceding span, preserving formatting already
// applied upstream of the insertion point. The inserted text carries no
// marks. On an empty document the text becomes the first paragraph.
func (d *Document) AppendToLastBlock(text string) error {
	if text == "" {
		return nil
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if len(d.blocks) == 0 {
		d.blocks = []Block{{Spans: []Span{{Text: text}}}}
		return nil
	}

	last := &d.blocks[len(d.blocks)-1]
	if last.Spans == nil {
		return ErrNoTextBlock
	}
	if n := len(last.Spans); n > 0 && len(last.Spans[n-1].Marks) == 0 {
		// Extend the trailing unmarked span instead of fragmenting.
		last.Spans[n-1].Text += text
		return nil
	}
	last.Spans = append(last.Spans, Span{Text: text})
	return nil
}

// ReplaceWithPlainText resets the document to a single unformatted
// paragraph holding the given text. Prior structure and marks are lost.
func (d *Document) ReplaceWithPlainText(text string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if text == "" {
		d.blocks = nil
		return
	}
	d.blocks = []Block{{Spans: []Span{{Text: text}}}}
}

// SetBlocks installs externally edited structure, e.g. from the user-edit
// surface or a stored session.
func (d *Document) SetBlocks(blocks []Block) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.blocks = blocks
}

// Blocks returns a copy of the document structure.
func (d *Document) Blocks() []Block {
	d.mu.RLock()
	defer d.mu.RUnlock()

	out := make([]Block, len(d.blocks))
	for i, b := range d.blocks {
		out[i] = Block{Spans: append([]Span(nil), b.Spans...)}
	}
	return out
}

// MarshalJSON encodes the document structure for persistence.
func (d *Document) MarshalJSON() ([]byte, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return json.Marshal(struct {
		Blocks []Block `json:"blocks"`
	}{Blocks: d.blocks})
}

// UnmarshalJSON restores a persisted document structure.
func (d *Document) UnmarshalJSON(data []byte) error {
	var raw struct {
		Blocks []Block `json:"blocks"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	d.mu.Lock()
	d.blocks = raw.Blocks
	d.mu.Unlock()
	return nil
}

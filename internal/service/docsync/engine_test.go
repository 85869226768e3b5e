package docsync

import (
	"testing"

	"github.com/rs/zerolog"

	"transcript-sync-service/internal/service/document"
)

func newEngine() *Engine {
	return New(document.New(), zerolog.Nop())
}

func TestReconcile(t *testing.T) {
	tests := []struct {
		name        string
		current     string
		incoming    string
		wantOutcome Outcome
		wantText    string
	}{
		{
			name:        "empty document appends",
			current:     "",
			incoming:    "hello",
			wantOutcome: OutcomeAppended,
			wantText:    "hello",
		},
		{
			name:        "prefix growth appends the delta",
			current:     "hello",
			incoming:    "hello there",
			wantOutcome: OutcomeAppended,
			wantText:    "hello there",
		},
		{
			name:        "identical text is a no-op",
			current:     "hello",
			incoming:    "hello",
			wantOutcome: OutcomeNoChange,
			wantText:    "hello",
		},
		{
			name:        "shrink replaces",
			current:     "hello there",
			incoming:    "hello",
			wantOutcome: OutcomeReplaced,
			wantText:    "hello",
		},
		{
			name:        "out-of-order correction replaces",
			current:     "hello there",
			incoming:    "hi there friend",
			wantOutcome: OutcomeReplaced,
			wantText:    "hi there friend",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newEngine()
			if tt.current != "" {
				e.doc.ReplaceWithPlainText(tt.current)
			}

			got := e.Reconcile(tt.incoming)
			if got != tt.wantOutcome {
				t.Errorf("Reconcile() = %v, want %v", got, tt.wantOutcome)
			}
			if text := e.Document().PlainText(); text != tt.wantText {
				t.Errorf("document = %q, want %q", text, tt.wantText)
			}
		})
	}
}

func TestReconcilePreservesEarlierBlocks(t *testing.T) {
	e := newEngine()
	e.doc.SetBlocks([]document.Block{
		{Spans: []document.Span{{Text: "hello ", Marks: []string{"bold"}}, {Text: "world"}}},
	})

	if got := e.Reconcile("hello world again"); got != OutcomeAppended {
		t.Fatalf("Reconcile() = %v, want APPENDED", got)
	}

	blocks := e.Document().Blocks()
	if len(blocks) != 1 {
		t.Fatalf("blocks = %d, want 1", len(blocks))
	}
	first := blocks[0].Spans[0]
	if first.Text != "hello " || len(first.Marks) != 1 {
		t.Errorf("formatted span was altered: %+v", first)
	}
	if text := e.Document().PlainText(); text != "hello world again" {
		t.Errorf("document = %q", text)
	}
}

func TestAppendDelta(t *testing.T) {
	tests := []struct {
		name     string
		current  string
		delta    string
		wantText string
	}{
		{
			name:     "word delta gets a separating space",
			current:  "hello world",
			delta:    "there",
			wantText: "hello world there",
		},
		{
			name:     "attached punctuation joins without a space",
			current:  "Hello world",
			delta:    ", friend",
			wantText: "Hello world, friend",
		},
		{
			name:     "delta into empty document",
			current:  "",
			delta:    "hello",
			wantText: "hello",
		},
		{
			name:     "whitespace-only delta is a no-op",
			current:  "hello",
			delta:    "   ",
			wantText: "hello",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newEngine()
			if tt.current != "" {
				e.doc.ReplaceWithPlainText(tt.current)
			}
			e.AppendDelta(tt.delta)
			if text := e.Document().PlainText(); text != tt.wantText {
				t.Errorf("document = %q, want %q", text, tt.wantText)
			}
		})
	}
}

func TestReconcileFallsBackOnMalformedBlock(t *testing.T) {
	e := newEngine()
	// A block with no spans cannot take a structural append.
	e.doc.SetBlocks([]document.Block{{Spans: nil}})

	if got := e.Reconcile("hello"); got != OutcomeReplaced {
		t.Errorf("Reconcile() = %v, want REPLACED fallback", got)
	}
	if text := e.Document().PlainText(); text != "hello" {
		t.Errorf("document = %q, want %q", text, "hello")
	}
}

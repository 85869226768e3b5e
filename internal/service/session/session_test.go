package session

import (
	"context"
	"testing"

	"transcript-sync-service/internal/models"
	"transcript-sync-service/internal/service/dirty"
	"transcript-sync-service/internal/service/document"
)

type notification struct {
	kind string
	text string
}

// captureNotifier records outbound notifications in arrival order.
type captureNotifier struct {
	events []notification
}

func (n *captureNotifier) DocumentChanged(sessionID string, doc *document.Document) {
	n.events = append(n.events, notification{kind: "document", text: doc.PlainText()})
}

func (n *captureNotifier) PendingUpdate(sessionID, text string) {
	n.events = append(n.events, notification{kind: "pending", text: text})
}

func (n *captureNotifier) HighlightChanged(sessionID, wordID string) {
	n.events = append(n.events, notification{kind: "highlight", text: wordID})
}

func (n *captureNotifier) CommittedUpdate(sessionID, text string, autoSync bool) {
	n.events = append(n.events, notification{kind: "committed", text: text})
}

func (n *captureNotifier) TranscriptText(sessionID, text string, isFinal bool) {
	kind := "partial"
	if isFinal {
		kind = "final"
	}
	n.events = append(n.events, notification{kind: kind, text: text})
}

func (n *captureNotifier) last(kind string) (string, bool) {
	for i := len(n.events) - 1; i >= 0; i-- {
		if n.events[i].kind == kind {
			return n.events[i].text, true
		}
	}
	return "", false
}

func patchWords(segmentID string, base float64, texts ...string) []models.PatchWord {
	words := make([]models.PatchWord, 0, len(texts))
	for i, text := range texts {
		t0 := base + float64(i)
		t1 := t0 + 0.5
		words = append(words, models.PatchWord{
			ID:        segmentID + "_w" + text,
			Text:      text,
			StartTime: &t0,
			EndTime:   &t1,
		})
	}
	return words
}

func patch(sessionID, segmentID string, isFinal bool, words []models.PatchWord) PatchEvent {
	return PatchEvent{Patch: models.TranscriptPatch{
		SessionID: sessionID,
		SegmentID: segmentID,
		IsFinal:   isFinal,
		Words:     words,
	}}
}

func TestSessionRecordingFlow(t *testing.T) {
	ctx := context.Background()
	notifier := &captureNotifier{}
	s := New("s1", notifier, nil)
	defer s.Close()

	// Interim words arrive: nothing committed, document untouched.
	if err := s.Dispatch(ctx, patch("s1", "seg_0", false, patchWords("seg_0", 0, "hel"))); err != nil {
		t.Fatalf("interim dispatch: %v", err)
	}
	if got := s.CommittedText(); got != "" {
		t.Errorf("committed text after interim = %q, want empty", got)
	}
	if got := s.Document().PlainText(); got != "" {
		t.Errorf("document after interim = %q, want empty", got)
	}

	// The segment finalizes: committed text flows into the document.
	if err := s.Dispatch(ctx, patch("s1", "seg_0", true, patchWords("seg_0", 0, "hello"))); err != nil {
		t.Fatalf("final dispatch: %v", err)
	}
	if got := s.CommittedText(); got != "hello" {
		t.Errorf("committed text = %q, want %q", got, "hello")
	}
	if got := s.Document().PlainText(); got != "hello" {
		t.Errorf("document = %q, want %q", got, "hello")
	}
	if got := s.DirtyState(); got != dirty.StateClean {
		t.Errorf("state = %v, want CLEAN", got)
	}

	// The user edits the document: the session diverges.
	s.Dispatch(ctx, UserEditedEvent{
		SessionID: "s1",
		Blocks:    []document.Block{{Spans: []document.Span{{Text: "hello world"}}}},
	})
	if got := s.DirtyState(); got != dirty.StateDirtyNoPending {
		t.Errorf("state after edit = %v, want DIRTY_NO_PENDING", got)
	}

	// A new final arrives while dirty: parked, not applied.
	if err := s.Dispatch(ctx, patch("s1", "seg_1", true, patchWords("seg_1", 2, "there"))); err != nil {
		t.Fatalf("second final dispatch: %v", err)
	}
	if got := s.DirtyState(); got != dirty.StateDirtyPending {
		t.Errorf("state = %v, want DIRTY_PENDING", got)
	}
	if got := s.Document().PlainText(); got != "hello world" {
		t.Errorf("document while pending = %q, want user text preserved", got)
	}
	if text, ok := notifier.last("pending"); !ok || text != "hello there" {
		t.Errorf("pending notification = %q (%v), want %q", text, ok, "hello there")
	}

	// Append resolution splices only the new tail after the user's text.
	if err := s.Dispatch(ctx, ResolveEvent{SessionID: "s1", Action: ActionAppend}); err != nil {
		t.Fatalf("resolve append: %v", err)
	}
	if got := s.Document().PlainText(); got != "hello world there" {
		t.Errorf("document after append = %q, want %q", got, "hello world there")
	}
	if got := s.DirtyState(); got != dirty.StateDirtyNoPending {
		t.Errorf("state after append = %v, want DIRTY_NO_PENDING", got)
	}
}

func TestSessionResolveReplaceAndIgnore(t *testing.T) {
	ctx := context.Background()

	t.Run("replace overwrites the user text", func(t *testing.T) {
		s := New("s1", nil, nil)
		defer s.Close()
		s.Dispatch(ctx, patch("s1", "seg_0", true, patchWords("seg_0", 0, "hello")))
		s.Dispatch(ctx, UserEditedEvent{SessionID: "s1"})
		s.Dispatch(ctx, patch("s1", "seg_1", true, patchWords("seg_1", 2, "there")))

		if err := s.Dispatch(ctx, ResolveEvent{SessionID: "s1", Action: ActionReplace}); err != nil {
			t.Fatalf("resolve replace: %v", err)
		}
		if got := s.Document().PlainText(); got != "hello there" {
			t.Errorf("document = %q, want %q", got, "hello there")
		}
		if got := s.DirtyState(); got != dirty.StateClean {
			t.Errorf("state = %v, want CLEAN", got)
		}
	})

	t.Run("ignore discards the pending text", func(t *testing.T) {
		s := New("s1", nil, nil)
		defer s.Close()
		s.Dispatch(ctx, patch("s1", "seg_0", true, patchWords("seg_0", 0, "hello")))
		s.Dispatch(ctx, UserEditedEvent{
			SessionID: "s1",
			Blocks:    []document.Block{{Spans: []document.Span{{Text: "my notes"}}}},
		})
		s.Dispatch(ctx, patch("s1", "seg_1", true, patchWords("seg_1", 2, "there")))

		if err := s.Dispatch(ctx, ResolveEvent{SessionID: "s1", Action: ActionIgnore}); err != nil {
			t.Fatalf("resolve ignore: %v", err)
		}
		if got := s.Document().PlainText(); got != "my notes" {
			t.Errorf("document = %q, want user text untouched", got)
		}
		if got := s.DirtyState(); got != dirty.StateDirtyNoPending {
			t.Errorf("state = %v, want DIRTY_NO_PENDING", got)
		}
	})

	t.Run("resolve with no pending fails", func(t *testing.T) {
		s := New("s1", nil, nil)
		defer s.Close()
		if err := s.Dispatch(ctx, ResolveEvent{SessionID: "s1", Action: ActionAppend}); err == nil {
			t.Error("expected error resolving with nothing pending")
		}
	})
}

func TestSessionDiscardsForeignEvents(t *testing.T) {
	ctx := context.Background()
	s := New("s1", nil, nil)
	defer s.Close()

	if err := s.Dispatch(ctx, patch("other", "seg_0", true, patchWords("seg_0", 0, "hello"))); err != nil {
		t.Fatalf("foreign dispatch: %v", err)
	}
	if got := s.CommittedText(); got != "" {
		t.Errorf("foreign event mutated committed text: %q", got)
	}
	if got := s.Document().PlainText(); got != "" {
		t.Errorf("foreign event mutated document: %q", got)
	}
}

func TestSessionFinalizedSegmentUpdateIgnored(t *testing.T) {
	ctx := context.Background()
	s := New("s1", nil, nil)
	defer s.Close()

	s.Dispatch(ctx, patch("s1", "seg_0", true, patchWords("seg_0", 0, "hello")))
	// A late interim for the finalized segment must not change anything.
	s.Dispatch(ctx, patch("s1", "seg_0", false, patchWords("seg_0", 0, "help")))

	if got := s.CommittedText(); got != "hello" {
		t.Errorf("committed text = %q, want %q", got, "hello")
	}
}

func TestSessionPartialTextForwarded(t *testing.T) {
	notifier := &captureNotifier{}
	s := New("s1", notifier, nil)
	defer s.Close()

	s.Dispatch(context.Background(), PartialTextEvent{SessionID: "s1", Text: "hel"})
	if text, ok := notifier.last("partial"); !ok || text != "hel" {
		t.Errorf("partial notification = %q (%v), want %q", text, ok, "hel")
	}
	s.Dispatch(context.Background(), FinalTextEvent{SessionID: "s1", Text: "hello"})
	if text, ok := notifier.last("final"); !ok || text != "hello" {
		t.Errorf("final notification = %q (%v), want %q", text, ok, "hello")
	}
	if got := s.CommittedText(); got != "" {
		t.Errorf("display text leaked into committed state: %q", got)
	}
}

func TestSessionSeekEvaluatesHighlight(t *testing.T) {
	ctx := context.Background()
	notifier := &captureNotifier{}
	s := New("s1", notifier, nil)
	defer s.Close()

	s.Dispatch(ctx, patch("s1", "seg_0", true, patchWords("seg_0", 0, "hello", "there")))

	// Seek while paused still moves the highlight.
	s.Dispatch(ctx, PlayerEvent{SessionID: "s1", Kind: PlayerSeeked, Time: 1.1})
	if id, ok := notifier.last("highlight"); !ok || id != "seg_0_wthere" {
		t.Errorf("highlight = %q (%v), want %q", id, ok, "seg_0_wthere")
	}
	if got := s.ActiveWordID(); got != "seg_0_wthere" {
		t.Errorf("ActiveWordID = %q, want %q", got, "seg_0_wthere")
	}
}

func TestSessionSnapshotRestoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := New("s1", nil, nil)
	s.Dispatch(ctx, patch("s1", "seg_0", true, patchWords("seg_0", 0, "hello")))
	s.Dispatch(ctx, patch("s1", "seg_1", true, patchWords("seg_1", 2, "there")))
	snap := s.Snapshot()
	s.Close()

	if snap.FinalText != "hello there" {
		t.Fatalf("snapshot final text = %q", snap.FinalText)
	}
	if len(snap.Segments) != 2 {
		t.Fatalf("snapshot segments = %d, want 2", len(snap.Segments))
	}

	restored := New("s1", nil, nil)
	defer restored.Close()
	restored.Restore(snap)

	if got := restored.CommittedText(); got != "hello there" {
		t.Errorf("restored committed text = %q", got)
	}
	if got := restored.Document().PlainText(); got != "hello there" {
		t.Errorf("restored document = %q", got)
	}
	if got := restored.DirtyState(); got != dirty.StateClean {
		t.Errorf("restored state = %v, want CLEAN", got)
	}

	// A later final appends to the restored transcript instead of replacing it.
	restored.Dispatch(ctx, patch("s1", "seg_2", true, patchWords("seg_2", 4, "friend")))
	if got := restored.Document().PlainText(); got != "hello there friend" {
		t.Errorf("document after post-restore final = %q", got)
	}
}

package transcript

import (
	"testing"

	"transcript-sync-service/internal/models"
	"transcript-sync-service/internal/service/wordindex"
)

func f(v float64) *float64 { return &v }

func patch(texts ...string) []models.PatchWord {
	out := make([]models.PatchWord, 0, len(texts))
	for i, t := range texts {
		out = append(out, models.PatchWord{
			ID: t, Text: t, StartTime: f(float64(i)), EndTime: f(float64(i) + 0.5),
		})
	}
	return out
}

func TestNormalize(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"hello , world", "hello, world"},
		{"wait  !", "wait!"},
		{"no change", "no change"},
		{"a ; b : c . d", "a; b: c. d"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := Normalize(tt.in); got != tt.want {
			t.Errorf("Normalize(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestRecompute_FinalSegmentsOnly(t *testing.T) {
	ix := wordindex.New()
	a := New()

	ix.ApplySegment("seg_0", patch("hello"), true)
	ix.ApplySegment("seg_1", patch("still", "guessing"), false)

	if got := a.Recompute(ix); got != "hello" {
		t.Errorf("expected %q, got %q", "hello", got)
	}
}

func TestRecompute_OrderedBySequence(t *testing.T) {
	ix := wordindex.New()
	a := New()

	ix.ApplySegment("seg_1", patch("world"), true)
	ix.ApplySegment("seg_0", patch("hello"), true)

	if got := a.Recompute(ix); got != "hello world" {
		t.Errorf("expected %q, got %q", "hello world", got)
	}
}

func TestRecompute_Idempotent(t *testing.T) {
	ix := wordindex.New()
	a := New()

	ix.ApplySegment("seg_0", patch("hello", ",", "world"), true)
	ix.ApplySegment("seg_1", patch("again"), true)

	first := a.Recompute(ix)
	second := a.Recompute(ix)
	if first != second {
		t.Errorf("recompute not idempotent: %q vs %q", first, second)
	}
	if a.Shrunk() {
		t.Error("unchanged input must not report shrink")
	}
}

func TestRecompute_MonotonicPrefixExtension(t *testing.T) {
	ix := wordindex.New()
	a := New()

	ix.ApplySegment("seg_0", patch("one"), true)
	prev := a.Recompute(ix)

	ix.ApplySegment("seg_1", patch("two"), true)
	next := a.Recompute(ix)

	if len(next) <= len(prev) || next[:len(prev)] != prev {
		t.Errorf("expected %q to be a prefix-extension of %q", next, prev)
	}
	if a.Shrunk() {
		t.Error("forward-moving finals must not report shrink")
	}
}

func TestRecompute_DuplicateFinalNotDoubleCounted(t *testing.T) {
	ix := wordindex.New()
	a := New()

	ix.ApplySegment("seg_0", patch("hello", "world"), true)
	// Duplicate delivery is rejected by the index.
	ix.ApplySegment("seg_0", patch("hello", "world"), true)

	if got := a.Recompute(ix); got != "hello world" {
		t.Errorf("expected %q, got %q", "hello world", got)
	}
}

func TestShrunk(t *testing.T) {
	ix := wordindex.New()
	a := New()

	ix.ApplySegment("seg_0", patch("a", "long", "committed", "text"), true)
	a.Recompute(ix)

	// A fresh index standing in for corrupted upstream state.
	short := wordindex.New()
	short.ApplySegment("seg_0", patch("a"), true)

	if got := a.Recompute(short); got != "a" {
		t.Fatalf("expected %q, got %q", "a", got)
	}
	if !a.Shrunk() {
		t.Error("expected shrink to be detected")
	}

	a.Reset()
	if a.Shrunk() {
		t.Error("reset must clear shrink state")
	}
}

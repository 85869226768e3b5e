package playback

import (
	"sync"
	"testing"
	"time"

	"transcript-sync-service/internal/models"
	"transcript-sync-service/internal/service/wordindex"
)

func f(v float64) *float64 { return &v }

func buildIndex(t *testing.T) *wordindex.Index {
	t.Helper()
	ix := wordindex.New()
	err := ix.ApplySegment("seg_0", []models.PatchWord{
		{ID: "w1", Text: "hello", StartTime: f(0.0), EndTime: f(0.5)},
		{ID: "w2", Text: "world", StartTime: f(0.5), EndTime: f(1.2)},
	}, true)
	if err != nil {
		t.Fatalf("apply failed: %v", err)
	}
	return ix
}

// recorder captures highlight notifications.
type recorder struct {
	mu  sync.Mutex
	ids []string
}

func (r *recorder) record(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ids = append(r.ids, id)
}

func (r *recorder) all() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.ids...)
}

// fakeSource is a scripted time source.
type fakeSource struct {
	mu      sync.Mutex
	pos     float64
	playing bool
}

func (s *fakeSource) Position() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pos
}

func (s *fakeSource) Playing() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.playing
}

func (s *fakeSource) set(pos float64, playing bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pos = pos
	s.playing = playing
}

func TestEvaluate_HalfOpenIntervals(t *testing.T) {
	ix := buildIndex(t)
	s := New(ix, nil)

	tests := []struct {
		t    float64
		want string
	}{
		{0.0, "w1"},  // start inclusive
		{0.3, "w1"},
		{0.5, "w2"},  // w1 end exclusive, w2 start inclusive
		{1.19, "w2"},
		{1.2, ""},    // past the last word
		{2.0, ""},
		{-0.1, ""},   // before the first word
	}
	for _, tt := range tests {
		s.Evaluate(tt.t)
		if got := s.ActiveWordID(); got != tt.want {
			t.Errorf("Evaluate(%v): expected active %q, got %q", tt.t, tt.want, got)
		}
	}
}

func TestEvaluate_NotifiesOnlyOnChange(t *testing.T) {
	ix := buildIndex(t)
	rec := &recorder{}
	s := New(ix, rec.record)

	s.Evaluate(0.1) // w1
	s.Evaluate(0.2) // still w1, no notification
	s.Evaluate(0.6) // w2
	s.Evaluate(0.7) // still w2
	s.Evaluate(5.0) // none -> cleared

	got := rec.all()
	want := []string{"w1", "w2", ""}
	if len(got) != len(want) {
		t.Fatalf("expected notifications %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("notification %d: expected %q, got %q", i, want[i], got[i])
		}
	}
}

func TestEvaluate_PicksUpIndexGrowth(t *testing.T) {
	ix := buildIndex(t)
	s := New(ix, nil)

	s.Evaluate(2.0)
	if got := s.ActiveWordID(); got != "" {
		t.Fatalf("expected no active word, got %q", got)
	}

	ix.ApplySegment("seg_1", []models.PatchWord{
		{ID: "w3", Text: "again", StartTime: f(1.8), EndTime: f(2.4)},
	}, true)

	s.Evaluate(2.0)
	if got := s.ActiveWordID(); got != "w3" {
		t.Errorf("expected w3 after index growth, got %q", got)
	}
}

func TestAttachDetach(t *testing.T) {
	ix := buildIndex(t)
	rec := &recorder{}
	s := New(ix, rec.record)
	s.SetTick(5 * time.Millisecond)

	src := &fakeSource{}
	src.set(0.3, true)

	s.Attach(src)
	if !s.Attached() {
		t.Fatal("expected attached")
	}

	deadline := time.Now().Add(time.Second)
	for len(rec.all()) == 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if got := rec.all(); len(got) == 0 || got[0] != "w1" {
		t.Fatalf("expected w1 highlight from tick loop, got %v", got)
	}

	s.Detach()
	if s.Attached() {
		t.Error("expected detached")
	}

	// No evaluation may run after detach.
	before := len(rec.all())
	src.set(0.8, true)
	time.Sleep(30 * time.Millisecond)
	if after := len(rec.all()); after != before {
		t.Errorf("evaluation ran after detach: %d -> %d notifications", before, after)
	}
}

func TestAttach_ReplacesPreviousLoop(t *testing.T) {
	ix := buildIndex(t)
	s := New(ix, nil)
	s.SetTick(5 * time.Millisecond)

	src := &fakeSource{}
	s.Attach(src)
	s.Attach(src) // must not leave a dangling first loop
	s.Detach()

	if s.Attached() {
		t.Error("expected detached after single Detach")
	}
}

func TestSeekEvaluatesWhilePaused(t *testing.T) {
	ix := buildIndex(t)
	rec := &recorder{}
	s := New(ix, rec.record)

	// Paused: the tick loop would skip, but a seek evaluates immediately.
	s.Evaluate(0.6)
	if got := s.ActiveWordID(); got != "w2" {
		t.Errorf("expected w2 after seek evaluation, got %q", got)
	}
}

func TestReset(t *testing.T) {
	ix := buildIndex(t)
	s := New(ix, nil)

	s.Evaluate(0.1)
	s.Reset()
	if got := s.ActiveWordID(); got != "" {
		t.Errorf("expected cleared active word, got %q", got)
	}
}

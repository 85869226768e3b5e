// Package playback maps the live playback clock to the currently active
// word so the transcript can highlight along with the audio.
package playback

import (
	"sort"
	"sync"
	"time"

	"transcript-sync-service/internal/models"
	"transcript-sync-service/internal/observability/metrics"
	"transcript-sync-service/internal/service/wordindex"
)

// TimeSource is the playback surface's clock.
type TimeSource interface {
	// Position returns the current playback position in seconds.
	Position() float64
	// Playing reports whether playback is running.
	Playing() bool
}

// HighlightFunc receives the active word ID whenever it changes. An empty
// ID means no word is active at the current position.
type HighlightFunc func(wordID string)

// DefaultTick is the evaluation interval while the time source is playing.
const DefaultTick = 50 * time.Millisecond

// Sync tracks the active word against a time source. Words come from the
// index's committed, fully-timestamped sequence; the flattened slice is
// cached and refreshed only when the index version moves.
type Sync struct {
	mu            sync.Mutex
	index         *wordindex.Index
	onHighlight   HighlightFunc
	activeWordID  string
	cached        []models.Word
	cachedVersion uint64
	haveCache     bool
	tick          time.Duration
	stop          chan struct{}
	metrics       *metrics.Metrics
}

// New creates a playback sync over the given index. onHighlight may be nil.
func New(ix *wordindex.Index, onHighlight HighlightFunc) *Sync {
	return &Sync{
		index:       ix,
		onHighlight: onHighlight,
		tick:        DefaultTick,
		metrics:     metrics.DefaultMetrics,
	}
}

// SetTick overrides the evaluation interval. Takes effect on the next
// Attach.
func (s *Sync) SetTick(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if d > 0 {
		s.tick = d
	}
}

// ActiveWordID returns the currently highlighted word, empty if none.
func (s *Sync) ActiveWordID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.activeWordID
}

// Attach begins periodic evaluation against the time source. Any previous
// attachment is detached first; no evaluation runs after Detach.
func (s *Sync) Attach(source TimeSource) {
	s.Detach()

	s.mu.Lock()
	stop := make(chan struct{})
	s.stop = stop
	tick := s.tick
	s.mu.Unlock()

	go func() {
		ticker := time.NewTicker(tick)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				if source.Playing() {
					s.Evaluate(source.Position())
				}
			}
		}
	}()
}

// Detach stops the evaluation loop. Idempotent.
func (s *Sync) Detach() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stop != nil {
		close(s.stop)
		s.stop = nil
	}
}

// Attached reports whether an evaluation loop is running.
func (s *Sync) Attached() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stop != nil
}

// Evaluate finds the word whose half-open interval [t0, t1) contains t and
// emits a highlight notification if the active word identity changed. A
// seek calls this once directly regardless of playing state.
func (s *Sync) Evaluate(t float64) {
	s.mu.Lock()

	if v := s.index.Version(); !s.haveCache || v != s.cachedVersion {
		s.cached = s.index.FlattenOrdered()
		s.cachedVersion = v
		s.haveCache = true
	}
	words := s.cached

	// Words are sorted by non-overlapping intervals: binary search for the
	// first word ending past t, then check it has started.
	var active string
	i := sort.Search(len(words), func(i int) bool {
		return *words[i].EndTime > t
	})
	if i < len(words) && *words[i].StartTime <= t {
		active = words[i].ID
	}

	changed := active != s.activeWordID
	s.activeWordID = active
	cb := s.onHighlight
	s.mu.Unlock()

	s.metrics.RecordPlaybackEvaluation()
	if changed {
		s.metrics.RecordHighlightChange()
		if cb != nil {
			cb(active)
		}
	}
}

// Reset clears the active word and drops the cached sequence, for a new
// session. The caller is expected to Detach first.
func (s *Sync) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.activeWordID = ""
	s.cached = nil
	s.haveCache = false
}

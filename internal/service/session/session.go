// Package session owns the per-recording reconciliation context: the word
// index, the committed-text accumulator, the editable document with its
// sync engine and dirty state, and playback highlighting. All engine state
// for one recording lives here and is reset together.
package session

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"transcript-sync-service/internal/events"
	"transcript-sync-service/internal/models"
	"transcript-sync-service/internal/observability/logging"
	"transcript-sync-service/internal/observability/metrics"
	"transcript-sync-service/internal/service/dirty"
	"transcript-sync-service/internal/service/docsync"
	"transcript-sync-service/internal/service/document"
	"transcript-sync-service/internal/service/playback"
	"transcript-sync-service/internal/service/transcript"
	"transcript-sync-service/internal/service/wordindex"
)

// Notifier receives the session's outbound notifications. Implementations
// must be safe for calls from the dispatch path; a nil Notifier is valid.
type Notifier interface {
	// DocumentChanged fires after the engine mutated the document.
	DocumentChanged(sessionID string, doc *document.Document)
	// PendingUpdate fires when new committed text is parked for the user.
	PendingUpdate(sessionID, text string)
	// HighlightChanged fires when the active playback word changes;
	// wordID is empty when no word is active.
	HighlightChanged(sessionID, wordID string)
	// TranscriptText forwards recognizer display text, interim or final.
	TranscriptText(sessionID, text string, isFinal bool)
	// CommittedUpdate fires whenever the committed text grows; autoSync
	// reports whether the document was reconciled automatically.
	CommittedUpdate(sessionID, text string, autoSync bool)
}

// Session is the reconciliation context for one recording.
type Session struct {
	id        string
	index     *wordindex.Index
	accum     *transcript.Accumulator
	engine    *docsync.Engine
	dirty     *dirty.Machine
	playback  *playback.Sync
	clock     *playback.Clock
	notifier  Notifier
	publisher *events.Publisher
	log       zerolog.Logger
	metrics   *metrics.Metrics
	startedAt time.Time
}

// New creates a fresh session. notifier and publisher may be nil.
func New(id string, notifier Notifier, publisher *events.Publisher) *Session {
	log := logging.WithSession(id)
	ix := wordindex.New()

	s := &Session{
		id:        id,
		index:     ix,
		accum:     transcript.New(),
		engine:    docsync.New(document.New(), log),
		dirty:     dirty.New(),
		notifier:  notifier,
		publisher: publisher,
		log:       log,
		metrics:   metrics.DefaultMetrics,
		startedAt: time.Now(),
	}
	s.clock = playback.NewClock()
	s.playback = playback.New(ix, func(wordID string) {
		if s.notifier != nil {
			s.notifier.HighlightChanged(s.id, wordID)
		}
	})

	s.metrics.RecordSessionStart()
	log.Info().Msg("Session created")
	return s
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

// SetPlaybackTick adjusts the highlight evaluation interval.
func (s *Session) SetPlaybackTick(d time.Duration) { s.playback.SetTick(d) }

// Document returns the session's editable document.
func (s *Session) Document() *document.Document { return s.engine.Document() }

// DirtyState returns the current divergence state.
func (s *Session) DirtyState() dirty.State { return s.dirty.State() }

// CommittedText returns the last committed text the engine derived.
func (s *Session) CommittedText() string { return s.dirty.LastSynced() }

// ActiveWordID returns the currently highlighted word, empty if none.
func (s *Session) ActiveWordID() string { return s.playback.ActiveWordID() }

// Words returns the full display word sequence, committed plus interim.
func (s *Session) Words() []models.Word { return s.index.FlattenAllWords() }

// Dispatch consumes one inbound event. Events whose session ID does not
// match are silently discarded; anomalies inside the handlers are logged
// and absorbed, never propagated as failures of the dispatch loop.
func (s *Session) Dispatch(ctx context.Context, ev Event) error {
	if ev.EventSessionID() != s.id {
		s.metrics.RecordStaleEvent()
		return nil
	}

	switch e := ev.(type) {
	case PatchEvent:
		s.applyPatch(ctx, e.Patch)
		return nil
	case PartialTextEvent:
		if s.notifier != nil {
			s.notifier.TranscriptText(s.id, e.Text, false)
		}
		return nil
	case FinalTextEvent:
		if s.notifier != nil {
			s.notifier.TranscriptText(s.id, e.Text, true)
		}
		return nil
	case UserEditedEvent:
		s.userEdited(e.Blocks)
		return nil
	case ResolveEvent:
		return s.resolve(ctx, e.Action)
	case PlayerEvent:
		s.player(e)
		return nil
	default:
		return fmt.Errorf("unknown event type %T", ev)
	}
}

// applyPatch feeds a segment update through the index and, for finals,
// recomputes the committed text and reconciles the document.
func (s *Session) applyPatch(ctx context.Context, patch models.TranscriptPatch) {
	if err := s.index.ApplySegment(patch.SegmentID, patch.Words, patch.IsFinal); err != nil {
		// Update for an already-finalized segment: discard, log, continue.
		s.metrics.RecordSegmentRejected()
		s.metrics.RecordProtocolAnomaly("finalized_segment_update")
		s.log.Warn().
			Str("segmentId", patch.SegmentID).
			Bool("isFinal", patch.IsFinal).
			Err(err).
			Msg("Segment patch ignored")
		return
	}
	s.metrics.RecordSegmentApplied(patch.IsFinal)

	if !patch.IsFinal {
		return
	}

	newText := s.accum.Recompute(s.index)
	if s.accum.Shrunk() {
		s.metrics.RecordProtocolAnomaly("committed_text_shrink")
		s.log.Warn().
			Int("length", len(newText)).
			Msg("Committed text shrank, treating as untrusted")
	}

	_, hadPending := s.dirty.Pending()

	if s.dirty.CommittedTextArrived(newText) {
		// Clean: reconcile the document automatically.
		outcome := s.engine.Reconcile(newText)
		s.log.Debug().
			Str("outcome", outcome.String()).
			Int("length", len(newText)).
			Msg("Committed text reconciled")
		if s.notifier != nil {
			if outcome != docsync.OutcomeNoChange {
				s.notifier.DocumentChanged(s.id, s.engine.Document())
			}
			s.notifier.CommittedUpdate(s.id, newText, true)
		}
		s.publishCommitted(ctx, newText, true)
		return
	}

	if pending, ok := s.dirty.Pending(); ok && pending == newText {
		if hadPending {
			s.metrics.RecordPendingSuperseded()
		}
		if s.notifier != nil {
			s.notifier.PendingUpdate(s.id, newText)
			s.notifier.CommittedUpdate(s.id, newText, false)
		}
		s.publishCommitted(ctx, newText, false)
	}
}

// userEdited installs the edited structure and marks divergence.
func (s *Session) userEdited(blocks []document.Block) {
	if blocks != nil {
		s.engine.Document().SetBlocks(blocks)
	}
	s.dirty.MarkEdited()
}

// resolve applies the user's decision about the pending update.
func (s *Session) resolve(ctx context.Context, action string) error {
	switch action {
	case ActionAppend:
		res, err := s.dirty.ResolveAppend()
		if err != nil {
			return err
		}
		if res.IsPrefix {
			s.engine.AppendDelta(res.Delta)
		} else {
			// Discontinuous update: appending would interleave unrelated
			// text, so degrade to a full replace.
			s.metrics.RecordProtocolAnomaly("non_prefix_pending")
			s.engine.Replace(res.Text)
		}
		s.metrics.RecordResolution(ActionAppend)
		s.publishResolution(ctx, ActionAppend, res.Text)
	case ActionReplace:
		text, err := s.dirty.ResolveReplace()
		if err != nil {
			return err
		}
		s.engine.Replace(text)
		s.metrics.RecordResolution(ActionReplace)
		s.publishResolution(ctx, ActionReplace, text)
	case ActionIgnore:
		if err := s.dirty.ResolveIgnore(); err != nil {
			return err
		}
		s.metrics.RecordResolution(ActionIgnore)
		s.publishResolution(ctx, ActionIgnore, "")
		return nil
	default:
		return fmt.Errorf("unknown resolution action %q", action)
	}

	if s.notifier != nil {
		s.notifier.DocumentChanged(s.id, s.engine.Document())
	}
	return nil
}

// player drives the playback sync from surface events.
func (s *Session) player(e PlayerEvent) {
	switch e.Kind {
	case PlayerPlay:
		s.clock.Play(e.Time)
		s.playback.Attach(s.clock)
	case PlayerPause, PlayerEnded:
		s.clock.Pause(e.Time)
		s.playback.Detach()
	case PlayerSeeked:
		s.clock.Seek(e.Time)
		// One immediate evaluation regardless of playing state.
		s.playback.Evaluate(e.Time)
	case PlayerTick:
		s.clock.Seek(e.Time)
	default:
		s.log.Debug().Str("kind", e.Kind).Msg("Unknown player event ignored")
	}
}

// Restore loads a stored snapshot into the session: segments into the
// index, the structured document if present (falling back to the plain
// final text), and the synced text so that later growth appends cleanly.
func (s *Session) Restore(snap models.SessionSnapshot) {
	s.index.Restore(snap.Segments)

	text := s.accum.Recompute(s.index)
	if text == "" {
		text = snap.FinalText
	}

	doc := s.engine.Document()
	restored := false
	if len(snap.Document) > 0 {
		if err := json.Unmarshal(snap.Document, doc); err != nil {
			s.log.Warn().Err(err).Msg("Stored document unreadable, using plain text")
		} else {
			restored = true
		}
	}
	if !restored {
		doc.ReplaceWithPlainText(text)
	}

	s.dirty.Reset()
	s.dirty.SetSynced(text)
	s.playback.Reset()
	s.metrics.RecordSessionLoad()
	s.log.Info().Int("segments", len(snap.Segments)).Msg("Session restored")
}

// Snapshot captures the session for persistence.
func (s *Session) Snapshot() models.SessionSnapshot {
	docJSON, err := json.Marshal(s.engine.Document())
	if err != nil {
		s.log.Error().Err(err).Msg("Document marshal failed")
		docJSON = nil
	}

	return models.SessionSnapshot{
		SessionID:  s.id,
		FinalText:  s.accum.Recompute(s.index),
		Document:   docJSON,
		Segments:   s.index.Records(s.id),
		DurationMs: time.Since(s.startedAt).Milliseconds(),
	}
}

// Close detaches playback and records the session duration. The session
// must not be dispatched to afterwards.
func (s *Session) Close() {
	s.playback.Detach()
	s.metrics.RecordSessionEnd(time.Since(s.startedAt).Seconds())
	s.log.Info().Msg("Session closed")
}

func (s *Session) publishCommitted(ctx context.Context, text string, autoSync bool) {
	if s.publisher == nil {
		return
	}
	ev := models.CommittedUpdate{
		EventType: "transcript.committed",
		SessionID: s.id,
		Text:      text,
		AutoSync:  autoSync,
		Timestamp: time.Now().UnixMilli(),
	}
	if err := s.publisher.PublishCommitted(ctx, s.id, ev); err != nil {
		s.log.Error().Err(err).Msg("Failed to publish committed update")
	}
}

func (s *Session) publishResolution(ctx context.Context, action, text string) {
	if s.publisher == nil {
		return
	}
	ev := models.SyncResolution{
		EventType: "transcript.sync.resolution",
		SessionID: s.id,
		Action:    action,
		Text:      text,
		Timestamp: time.Now().UnixMilli(),
	}
	if err := s.publisher.PublishResolution(ctx, s.id, ev); err != nil {
		s.log.Error().Err(err).Msg("Failed to publish resolution")
	}
}

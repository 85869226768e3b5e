package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"transcript-sync-service/internal/events"
	"transcript-sync-service/internal/models"
	"transcript-sync-service/internal/observability/metrics"
	"transcript-sync-service/internal/service/recording"
	"transcript-sync-service/internal/store"
)

// Manager owns the single active session and its collaborators. Starting
// or loading a session detaches and discards the previous one; events for
// any non-active session are dropped at dispatch.
type Manager struct {
	mu        sync.Mutex
	active    *Session
	store     *store.Store
	recorder  *recording.Recorder
	publisher *events.Publisher
	notifier  Notifier
	log       zerolog.Logger
	metrics   *metrics.Metrics
	tick      time.Duration
}

// NewManager creates a manager. store, recorder, publisher and notifier
// may each be nil.
func NewManager(st *store.Store, rec *recording.Recorder, pub *events.Publisher, notifier Notifier, log zerolog.Logger) *Manager {
	return &Manager{
		store:     st,
		recorder:  rec,
		publisher: pub,
		notifier:  notifier,
		log:       log,
		metrics:   metrics.DefaultMetrics,
	}
}

// StartSession creates a fresh session, replacing any active one. An empty
// id gets a generated one. Discarding the previous session cancels its
// in-flight state deterministically; nothing carries over.
func (m *Manager) StartSession(id string) *Session {
	if id == "" {
		id = uuid.NewString()
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.active != nil {
		m.active.Close()
	}
	m.active = New(id, m.notifier, m.publisher)
	if m.tick > 0 {
		m.active.SetPlaybackTick(m.tick)
	}
	return m.active
}

// SetPlaybackTick sets the highlight evaluation interval for sessions
// started afterwards.
func (m *Manager) SetPlaybackTick(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tick = d
}

// LoadSession reopens a stored session as the active one.
func (m *Manager) LoadSession(ctx context.Context, id string) (*Session, error) {
	snap, err := m.store.Load(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load session %s: %w", id, err)
	}

	s := m.StartSession(id)
	s.Restore(snap)
	return s, nil
}

// Active returns the active session, nil if none.
func (m *Manager) Active() *Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.active
}

// Dispatch routes an event to the active session. Events arriving with no
// active session, or for a different session, are silently discarded.
func (m *Manager) Dispatch(ctx context.Context, ev Event) error {
	m.mu.Lock()
	active := m.active
	m.mu.Unlock()

	if active == nil || ev.EventSessionID() != active.ID() {
		m.metrics.RecordStaleEvent()
		return nil
	}
	return active.Dispatch(ctx, ev)
}

// AppendAudio buffers an audio chunk for the session's recording.
func (m *Manager) AppendAudio(sessionID string, chunk []byte, mime string) bool {
	if m.recorder == nil {
		return false
	}
	return m.recorder.Append(sessionID, chunk, mime)
}

// StopRecording finalizes the session's audio file and persists the
// session snapshot with the recording metadata. Persistence failures are
// logged; the recording result is still returned.
func (m *Manager) StopRecording(ctx context.Context, sessionID string) (recording.Result, error) {
	if m.recorder == nil {
		return recording.Result{}, recording.ErrUnknownSession
	}
	res, err := m.recorder.Finalize(sessionID)
	if err != nil {
		return recording.Result{}, err
	}

	m.saveActive(ctx, sessionID, func(snap *models.SessionSnapshot) {
		snap.Status = "stopped"
		snap.AudioPath = res.Path
		snap.Mime = res.Mime
		snap.Digest = res.Digest
	})
	return res, nil
}

// FinalizeSession marks the active session finalized and persists it.
func (m *Manager) FinalizeSession(ctx context.Context, sessionID string) (string, error) {
	m.mu.Lock()
	active := m.active
	m.mu.Unlock()

	if active == nil || active.ID() != sessionID {
		return "", fmt.Errorf("session %s is not active", sessionID)
	}

	snap := active.Snapshot()
	snap.Status = "finalized"
	if err := m.store.SaveSnapshot(ctx, snap); err != nil {
		m.log.Error().Err(err).Str("sessionId", sessionID).Msg("Finalize save failed")
	}
	return snap.FinalText, nil
}

// Audio returns the finalized audio for a session, if available.
func (m *Manager) Audio(sessionID string) ([]byte, string, bool) {
	if m.recorder == nil {
		return nil, "", false
	}
	return m.recorder.Audio(sessionID)
}

// ListSessions returns stored session summaries, latest first.
func (m *Manager) ListSessions(ctx context.Context, limit int) ([]models.SessionSnapshot, error) {
	return m.store.List(ctx, limit)
}

// GetSession returns a stored session snapshot.
func (m *Manager) GetSession(ctx context.Context, id string) (models.SessionSnapshot, error) {
	return m.store.Load(ctx, id)
}

// Shutdown persists the active session and closes it.
func (m *Manager) Shutdown(ctx context.Context) {
	m.mu.Lock()
	active := m.active
	m.active = nil
	m.mu.Unlock()

	if active == nil {
		return
	}
	snap := active.Snapshot()
	snap.Status = "detached"
	if err := m.store.SaveSnapshot(ctx, snap); err != nil {
		m.log.Error().Err(err).Str("sessionId", active.ID()).Msg("Shutdown save failed")
	}
	active.Close()
}

func (m *Manager) saveActive(ctx context.Context, sessionID string, mutate func(*models.SessionSnapshot)) {
	m.mu.Lock()
	active := m.active
	m.mu.Unlock()

	if active == nil || active.ID() != sessionID {
		return
	}
	snap := active.Snapshot()
	if mutate != nil {
		mutate(&snap)
	}
	if err := m.store.SaveSnapshot(ctx, snap); err != nil {
		m.log.Error().Err(err).Str("sessionId", sessionID).Msg("Session save failed")
	}
}

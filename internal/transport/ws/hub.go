// Package ws is the realtime transport: one websocket surface carrying
// recognizer patches, user edits, resolution decisions, player events and
// audio chunks inbound, and document/pending/highlight updates outbound.
package ws

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"transcript-sync-service/internal/models"
	"transcript-sync-service/internal/observability/metrics"
	"transcript-sync-service/internal/schema"
	"transcript-sync-service/internal/service/document"
	"transcript-sync-service/internal/service/session"
)

// Envelope frames every message in both directions.
type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Inbound message types.
const (
	MsgStartSession  = "start_session"
	MsgLoadSession   = "load_session"
	MsgPatch         = "transcript_patch"
	MsgPartial       = "transcript_partial"
	MsgFinal         = "transcript_final"
	MsgUserEdited    = "user_edited"
	MsgSyncResolve   = "sync_resolve"
	MsgPlayer        = "player_event"
	MsgAudioChunk    = "audio_chunk"
	MsgStopRecording = "stop_recording"
	MsgFinalize      = "finalize"
)

// Outbound message types.
const (
	MsgSessionStarted = "session_started"
	MsgDocument       = "document"
	MsgPendingUpdate  = "pending_update"
	MsgHighlight      = "highlight"
	MsgPartialText    = "partial_text"
	MsgFinalText      = "final_text"
	MsgCommitted      = "committed"
	MsgAudioAck       = "audio_ack"
	MsgRecordingSaved = "recording_saved"
	MsgFinalized      = "session_finalized"
	MsgError          = "error"
)

type startPayload struct {
	SessionID string `json:"sessionId"`
}

type editPayload struct {
	SessionID string           `json:"sessionId"`
	Blocks    []document.Block `json:"blocks,omitempty"`
}

type resolvePayload struct {
	SessionID string `json:"sessionId"`
	Action    string `json:"action"`
}

type playerPayload struct {
	SessionID string  `json:"sessionId"`
	Kind      string  `json:"kind"`
	Time      float64 `json:"time"`
}

type audioPayload struct {
	SessionID string `json:"sessionId"`
	Data      string `json:"data"`
	Mime      string `json:"mime,omitempty"`
}

// Hub fans outbound session notifications to all connected clients and
// routes inbound envelopes into the session manager. It implements
// session.Notifier so it can be handed to the manager directly.
type Hub struct {
	manager *session.Manager

	mu      sync.RWMutex
	clients map[*websocket.Conn]bool

	log     zerolog.Logger
	metrics *metrics.Metrics
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// New creates a hub. Wire the hub into the manager as its notifier via
// SetManager after construction to break the mutual dependency.
func New(log zerolog.Logger) *Hub {
	return &Hub{
		clients: make(map[*websocket.Conn]bool),
		log:     log,
		metrics: metrics.DefaultMetrics,
	}
}

// SetManager installs the session manager the hub dispatches into.
func (h *Hub) SetManager(m *session.Manager) {
	h.manager = m
}

// ServeWS upgrades the request and runs the connection's read loop.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn().Err(err).Msg("Websocket upgrade failed")
		return
	}

	h.mu.Lock()
	h.clients[conn] = true
	total := len(h.clients)
	h.mu.Unlock()
	h.metrics.SetWSClients(total)
	h.log.Info().Int("clients", total).Msg("Client connected")

	// The request context dies when this handler returns; the connection
	// outlives it.
	go h.readLoop(context.Background(), conn)
}

func (h *Hub) readLoop(ctx context.Context, conn *websocket.Conn) {
	defer h.drop(conn)

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return
		}
		if err := h.HandleMessage(ctx, raw); err != nil {
			h.log.Warn().Err(err).Msg("Inbound message rejected")
			h.send(conn, Envelope{Type: MsgError, Payload: errPayload(err)})
		}
	}
}

func (h *Hub) drop(conn *websocket.Conn) {
	h.mu.Lock()
	if _, ok := h.clients[conn]; ok {
		delete(h.clients, conn)
		conn.Close()
	}
	total := len(h.clients)
	h.mu.Unlock()
	h.metrics.SetWSClients(total)
	h.log.Info().Int("clients", total).Msg("Client disconnected")
}

// HandleMessage decodes one inbound envelope and routes it. Exposed for
// the dispatch path to be exercised without a live connection.
func (h *Hub) HandleMessage(ctx context.Context, raw []byte) error {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return fmt.Errorf("decode envelope: %w", err)
	}
	h.metrics.RecordWSEvent(env.Type)

	switch env.Type {
	case MsgStartSession:
		var p startPayload
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			return fmt.Errorf("decode %s: %w", env.Type, err)
		}
		s := h.manager.StartSession(p.SessionID)
		h.Broadcast(MsgSessionStarted, startPayload{SessionID: s.ID()})
		return nil

	case MsgLoadSession:
		var p startPayload
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			return fmt.Errorf("decode %s: %w", env.Type, err)
		}
		s, err := h.manager.LoadSession(ctx, p.SessionID)
		if err != nil {
			return err
		}
		h.Broadcast(MsgSessionStarted, startPayload{SessionID: s.ID()})
		h.DocumentChanged(s.ID(), s.Document())
		return nil

	case MsgPatch:
		var p models.TranscriptPatch
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			return fmt.Errorf("decode %s: %w", env.Type, err)
		}
		if err := schema.ValidatePatch(p); err != nil {
			h.metrics.RecordProtocolAnomaly("invalid_patch")
			return fmt.Errorf("invalid %s: %w", env.Type, err)
		}
		return h.manager.Dispatch(ctx, session.PatchEvent{Patch: p})

	case MsgPartial:
		var p models.TranscriptPartial
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			return fmt.Errorf("decode %s: %w", env.Type, err)
		}
		return h.manager.Dispatch(ctx, session.PartialTextEvent{SessionID: p.SessionID, Text: p.Text})

	case MsgFinal:
		var p models.TranscriptFinal
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			return fmt.Errorf("decode %s: %w", env.Type, err)
		}
		return h.manager.Dispatch(ctx, session.FinalTextEvent{SessionID: p.SessionID, Text: p.Text})

	case MsgUserEdited:
		var p editPayload
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			return fmt.Errorf("decode %s: %w", env.Type, err)
		}
		return h.manager.Dispatch(ctx, session.UserEditedEvent{SessionID: p.SessionID, Blocks: p.Blocks})

	case MsgSyncResolve:
		var p resolvePayload
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			return fmt.Errorf("decode %s: %w", env.Type, err)
		}
		if err := schema.ValidateResolve(p.SessionID, p.Action); err != nil {
			h.metrics.RecordProtocolAnomaly("invalid_resolve")
			return fmt.Errorf("invalid %s: %w", env.Type, err)
		}
		return h.manager.Dispatch(ctx, session.ResolveEvent{SessionID: p.SessionID, Action: p.Action})

	case MsgPlayer:
		var p playerPayload
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			return fmt.Errorf("decode %s: %w", env.Type, err)
		}
		return h.manager.Dispatch(ctx, session.PlayerEvent{SessionID: p.SessionID, Kind: p.Kind, Time: p.Time})

	case MsgAudioChunk:
		var p audioPayload
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			return fmt.Errorf("decode %s: %w", env.Type, err)
		}
		chunk, err := base64.StdEncoding.DecodeString(p.Data)
		if err != nil {
			return fmt.Errorf("decode audio chunk: %w", err)
		}
		if h.manager.AppendAudio(p.SessionID, chunk, p.Mime) {
			h.Broadcast(MsgAudioAck, map[string]any{"sessionId": p.SessionID, "bytes": len(chunk)})
		}
		return nil

	case MsgStopRecording:
		var p startPayload
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			return fmt.Errorf("decode %s: %w", env.Type, err)
		}
		res, err := h.manager.StopRecording(ctx, p.SessionID)
		if err != nil {
			return err
		}
		h.Broadcast(MsgRecordingSaved, map[string]any{
			"sessionId": p.SessionID,
			"filename":  res.Filename,
			"size":      res.Size,
			"digest":    res.Digest,
		})
		return nil

	case MsgFinalize:
		var p startPayload
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			return fmt.Errorf("decode %s: %w", env.Type, err)
		}
		text, err := h.manager.FinalizeSession(ctx, p.SessionID)
		if err != nil {
			return err
		}
		h.Broadcast(MsgFinalized, map[string]any{"sessionId": p.SessionID, "text": text})
		return nil

	default:
		return fmt.Errorf("unknown message type %q", env.Type)
	}
}

// Broadcast sends one envelope to every connected client.
func (h *Hub) Broadcast(msgType string, payload any) {
	body, err := json.Marshal(payload)
	if err != nil {
		h.log.Error().Err(err).Str("type", msgType).Msg("Broadcast marshal failed")
		return
	}
	env := Envelope{Type: msgType, Payload: body}

	h.mu.Lock()
	defer h.mu.Unlock()
	for conn := range h.clients {
		if err := conn.WriteJSON(env); err != nil {
			h.log.Warn().Err(err).Msg("Write failed, dropping client")
			conn.Close()
			delete(h.clients, conn)
		}
	}
	h.metrics.SetWSClients(len(h.clients))
}

// send writes one envelope to a single connection. All connection writes
// are serialized under h.mu; the websocket library allows at most one
// concurrent writer per connection.
func (h *Hub) send(conn *websocket.Conn, env Envelope) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.clients[conn] {
		return
	}
	if err := conn.WriteJSON(env); err != nil {
		h.log.Warn().Err(err).Msg("Write failed")
	}
}

func errPayload(err error) json.RawMessage {
	body, _ := json.Marshal(map[string]string{"message": err.Error()})
	return body
}

// DocumentChanged implements session.Notifier.
func (h *Hub) DocumentChanged(sessionID string, doc *document.Document) {
	h.Broadcast(MsgDocument, map[string]any{
		"sessionId": sessionID,
		"blocks":    doc.Blocks(),
		"text":      doc.PlainText(),
	})
}

// PendingUpdate implements session.Notifier.
func (h *Hub) PendingUpdate(sessionID, text string) {
	h.Broadcast(MsgPendingUpdate, map[string]any{"sessionId": sessionID, "text": text})
}

// HighlightChanged implements session.Notifier.
func (h *Hub) HighlightChanged(sessionID, wordID string) {
	h.Broadcast(MsgHighlight, map[string]any{"sessionId": sessionID, "wordId": wordID})
}

// CommittedUpdate implements session.Notifier.
func (h *Hub) CommittedUpdate(sessionID, text string, autoSync bool) {
	h.Broadcast(MsgCommitted, map[string]any{
		"sessionId": sessionID,
		"text":      text,
		"autoSync":  autoSync,
	})
}

// TranscriptText implements session.Notifier.
func (h *Hub) TranscriptText(sessionID, text string, isFinal bool) {
	msgType := MsgPartialText
	if isFinal {
		msgType = MsgFinalText
	}
	h.Broadcast(msgType, map[string]any{"sessionId": sessionID, "text": text})
}

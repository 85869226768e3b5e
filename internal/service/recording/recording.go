// Package recording buffers inbound audio chunks per session and finalizes
// them into a playable file on stop.
package recording

import (
	"bytes"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"lukechampine.com/blake3"

	"transcript-sync-service/internal/observability/metrics"
)

// ErrUnknownSession is returned when finalizing a session that never
// received audio.
var ErrUnknownSession = errors.New("unknown recording session")

// DefaultMime is assumed when the capture surface does not report one.
const DefaultMime = "audio/webm"

// mimeExts maps the capture mime types we accept to file extensions, so
// the reported type survives a restart via the finalized filename.
var mimeExts = map[string]string{
	"audio/webm": ".webm",
	"audio/ogg":  ".ogg",
	"audio/mpeg": ".mp3",
	"audio/mp4":  ".m4a",
	"audio/wav":  ".wav",
}

func extForMime(mime string) string {
	// Browsers append codec parameters ("audio/webm;codecs=opus").
	if i := strings.IndexByte(mime, ';'); i >= 0 {
		mime = strings.TrimSpace(mime[:i])
	}
	if ext, ok := mimeExts[mime]; ok {
		return ext
	}
	return ".webm"
}

func mimeForExt(ext string) string {
	for m, e := range mimeExts {
		if e == ext {
			return m
		}
	}
	return DefaultMime
}

// Result describes a finalized recording.
type Result struct {
	Filename string
	Path     string
	Size     int64
	Digest   string // BLAKE3 hex digest of the audio bytes
	Mime     string
}

type session struct {
	chunks [][]byte
	mime   string
	closed bool
	bytes  []byte // populated on finalize
}

// Recorder accumulates audio chunks per session. Chunks arriving after a
// session is closed are acknowledged but dropped.
type Recorder struct {
	mu       sync.Mutex
	dir      string
	sessions map[string]*session
	log      zerolog.Logger
	metrics  *metrics.Metrics
}

// New creates a recorder writing finalized files under dir.
func New(dir string, log zerolog.Logger) (*Recorder, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create recordings dir: %w", err)
	}
	return &Recorder{
		dir:      dir,
		sessions: make(map[string]*session),
		log:      log,
		metrics:  metrics.DefaultMetrics,
	}, nil
}

// Append adds an audio chunk to the session, creating it if unseen.
// Returns false if the session is already closed (chunk dropped).
func (r *Recorder) Append(sessionID string, chunk []byte, mime string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[sessionID]
	if !ok {
		s = &session{}
		r.sessions[sessionID] = s
	}
	if s.closed {
		return false
	}
	if mime != "" {
		s.mime = mime
	}
	if len(chunk) > 0 {
		s.chunks = append(s.chunks, chunk)
		r.metrics.RecordAudioReceived(len(chunk))
	}
	return true
}

// Finalize closes the session, joins its chunks, and writes the file.
func (r *Recorder) Finalize(sessionID string) (Result, error) {
	r.mu.Lock()
	s, ok := r.sessions[sessionID]
	if !ok {
		r.mu.Unlock()
		return Result{}, ErrUnknownSession
	}
	s.closed = true
	data := bytes.Join(s.chunks, nil)
	s.bytes = data
	mime := s.mime
	r.mu.Unlock()

	if mime == "" {
		mime = DefaultMime
	}

	sum := blake3.Sum256(data)
	digest := hex.EncodeToString(sum[:])

	ts := time.Now().Format("20060102_150405")
	filename := fmt.Sprintf("%s_%s%s", sessionID, ts, extForMime(mime))
	path := filepath.Join(r.dir, filename)

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return Result{}, fmt.Errorf("write recording: %w", err)
	}

	r.metrics.RecordRecordingFinalized()
	r.log.Info().
		Str("sessionId", sessionID).
		Str("path", path).
		Int("bytes", len(data)).
		Str("digest", digest).
		Msg("Recording finalized")

	return Result{
		Filename: filename,
		Path:     path,
		Size:     int64(len(data)),
		Digest:   digest,
		Mime:     mime,
	}, nil
}

// Audio returns the finalized audio bytes and mime type for playback.
// Falls back to the on-disk file when the in-memory session is gone
// (e.g. after a restart).
func (r *Recorder) Audio(sessionID string) ([]byte, string, bool) {
	r.mu.Lock()
	if s, ok := r.sessions[sessionID]; ok && s.bytes != nil {
		mime := s.mime
		if mime == "" {
			mime = DefaultMime
		}
		data := s.bytes
		r.mu.Unlock()
		return data, mime, true
	}
	r.mu.Unlock()

	entries, err := os.ReadDir(r.dir)
	if err != nil {
		return nil, "", false
	}
	prefix := sessionID + "_"
	for _, e := range entries {
		if e.IsDir() || len(e.Name()) <= len(prefix) || e.Name()[:len(prefix)] != prefix {
			continue
		}
		data, err := os.ReadFile(filepath.Join(r.dir, e.Name()))
		if err != nil {
			continue
		}
		return data, mimeForExt(filepath.Ext(e.Name())), true
	}
	return nil, "", false
}

// Drop discards a session's buffered chunks without writing anything.
func (r *Recorder) Drop(sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, sessionID)
}

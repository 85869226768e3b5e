package recording

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
)

func newRecorder(t *testing.T) *Recorder {
	t.Helper()
	r, err := New(t.TempDir(), zerolog.Nop())
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return r
}

func TestAppendAndFinalize(t *testing.T) {
	r := newRecorder(t)

	if !r.Append("sess-1", []byte("chunk1"), "audio/webm") {
		t.Fatal("expected append to succeed")
	}
	if !r.Append("sess-1", []byte("chunk2"), "") {
		t.Fatal("expected append to succeed")
	}

	res, err := r.Finalize("sess-1")
	if err != nil {
		t.Fatalf("finalize failed: %v", err)
	}
	if res.Size != int64(len("chunk1chunk2")) {
		t.Errorf("expected size %d, got %d", len("chunk1chunk2"), res.Size)
	}
	if res.Mime != "audio/webm" {
		t.Errorf("expected mime audio/webm, got %s", res.Mime)
	}
	if len(res.Digest) != 64 {
		t.Errorf("expected 64-char hex digest, got %q", res.Digest)
	}

	data, err := os.ReadFile(res.Path)
	if err != nil {
		t.Fatalf("reading recording failed: %v", err)
	}
	if string(data) != "chunk1chunk2" {
		t.Errorf("expected joined chunks on disk, got %q", data)
	}
}

func TestAppend_AfterClose(t *testing.T) {
	r := newRecorder(t)

	r.Append("sess-1", []byte("data"), "")
	if _, err := r.Finalize("sess-1"); err != nil {
		t.Fatalf("finalize failed: %v", err)
	}

	if r.Append("sess-1", []byte("late"), "") {
		t.Error("expected append after close to be rejected")
	}

	data, _, ok := r.Audio("sess-1")
	if !ok {
		t.Fatal("expected audio to be available")
	}
	if string(data) != "data" {
		t.Errorf("late chunk leaked into recording: %q", data)
	}
}

func TestFinalize_UnknownSession(t *testing.T) {
	r := newRecorder(t)

	if _, err := r.Finalize("nope"); err != ErrUnknownSession {
		t.Errorf("expected ErrUnknownSession, got %v", err)
	}
}

func TestAudio_FromDiskFallback(t *testing.T) {
	dir := t.TempDir()
	r, err := New(dir, zerolog.Nop())
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	if err := os.WriteFile(filepath.Join(dir, "sess-9_20240101_000000.webm"), []byte("stored"), 0o644); err != nil {
		t.Fatalf("seed file failed: %v", err)
	}

	data, mime, ok := r.Audio("sess-9")
	if !ok {
		t.Fatal("expected fallback to find the stored file")
	}
	if string(data) != "stored" {
		t.Errorf("expected stored bytes, got %q", data)
	}
	if mime != DefaultMime {
		t.Errorf("expected default mime, got %s", mime)
	}
}

func TestAudio_FallbackKeepsReportedMime(t *testing.T) {
	dir := t.TempDir()
	r, err := New(dir, zerolog.Nop())
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	r.Append("sess-1", []byte("oggdata"), "audio/ogg;codecs=opus")
	res, err := r.Finalize("sess-1")
	if err != nil {
		t.Fatalf("finalize failed: %v", err)
	}
	if filepath.Ext(res.Filename) != ".ogg" {
		t.Errorf("expected .ogg extension, got %s", res.Filename)
	}

	// Restart: a fresh recorder only has the on-disk file to go by.
	r2, err := New(dir, zerolog.Nop())
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	data, mime, ok := r2.Audio("sess-1")
	if !ok {
		t.Fatal("expected fallback to find the stored file")
	}
	if string(data) != "oggdata" {
		t.Errorf("expected stored bytes, got %q", data)
	}
	if mime != "audio/ogg" {
		t.Errorf("expected audio/ogg from fallback, got %s", mime)
	}
}

func TestDrop(t *testing.T) {
	r := newRecorder(t)
	r.Append("sess-1", []byte("data"), "")
	r.Drop("sess-1")

	if _, err := r.Finalize("sess-1"); err != ErrUnknownSession {
		t.Errorf("expected ErrUnknownSession after drop, got %v", err)
	}
}

package snapshot

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestCaptureExisting(t *testing.T) {
	path := filepath.Join(t.TempDir(), "artifact.txt")
	if err := os.WriteFile(path, []byte("hello world"), 0o600); err != nil {
		t.Fatalf("write artifact: %v", err)
	}

	snap, err := Capture(path)
	if err != nil {
		t.Fatalf("capture: %v", err)
	}
	if !snap.Exists {
		t.Fatal("existing artifact should report Exists=true")
	}
	if snap.Content != "hello world" {
		t.Fatalf("content mismatch: %q", snap.Content)
	}
	if snap.SizeBytes != int64(len("hello world")) {
		t.Fatalf("size mismatch: %d", snap.SizeBytes)
	}
	if len(snap.Checksum) != 64 {
		t.Fatalf("checksum should be sha256 hex, got %q", snap.Checksum)
	}
}

func TestCaptureMissing(t *testing.T) {
	snap, err := Capture(filepath.Join(t.TempDir(), "nope.txt"))
	if err != nil {
		t.Fatalf("capture of missing artifact should not error: %v", err)
	}
	if snap.Exists {
		t.Fatal("missing artifact should report Exists=false")
	}
	if snap.Content != "" || snap.SizeBytes != 0 {
		t.Fatalf("missing artifact should be empty, got %q size=%d", snap.Content, snap.SizeBytes)
	}
}

func TestCaptureEmptyFileDiffersFromMissing(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.txt")
	if err := os.WriteFile(path, nil, 0o600); err != nil {
		t.Fatalf("write empty artifact: %v", err)
	}

	snap, err := Capture(path)
	if err != nil {
		t.Fatalf("capture: %v", err)
	}
	if !snap.Exists {
		t.Fatal("zero-byte file must still report Exists=true")
	}
}

func TestStoreRoundTrip(t *testing.T) {
	root := t.TempDir()
	artifact := filepath.Join(root, "a.txt")
	if err := os.WriteFile(artifact, []byte("v1"), 0o600); err != nil {
		t.Fatalf("write artifact: %v", err)
	}

	snap, err := Capture(artifact)
	if err != nil {
		t.Fatalf("capture: %v", err)
	}

	store := NewStore(root)
	if err := store.Save("chg_1", PhaseBefore, snap); err != nil {
		t.Fatalf("save: %v", err)
	}
	if !store.Has("chg_1", PhaseBefore) {
		t.Fatal("Has should report the saved snapshot")
	}
	if store.Has("chg_1", PhaseAfter) {
		t.Fatal("Has should not report an unsaved phase")
	}

	loaded, err := store.Load("chg_1", PhaseBefore)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if loaded.Content != "v1" {
		t.Fatalf("content round-trip failed: %q", loaded.Content)
	}
	if loaded.Checksum != snap.Checksum {
		t.Fatal("checksum mismatch after round-trip")
	}
	if !loaded.Exists {
		t.Fatal("Exists flag lost in round-trip")
	}

	// Raw content must not leak into the metadata sidecar.
	meta, err := os.ReadFile(filepath.Join(root, "snapshots", "chg_1", "before_metadata.json"))
	if err != nil {
		t.Fatalf("read metadata: %v", err)
	}
	if strings.Contains(string(meta), `"content"`) {
		t.Fatalf("metadata should not embed content: %s", meta)
	}
}

// Package snapshot captures immutable point-in-time copies of artifacts
// under change tracking. Content lives in plain text files beside a JSON
// metadata sidecar; a snapshot is never mutated after capture.
package snapshot

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"time"
)

// Phase names the position of a snapshot relative to a change.
const (
	PhaseBefore = "before"
	PhaseAfter  = "after"
)

// Snapshot is one capture of an artifact. Exists distinguishes a genuinely
// absent artifact from an existing zero-byte file; rollback of a creation
// relies on this rather than inferring absence from empty content.
type Snapshot struct {
	ArtifactPath string    `json:"artifact_path"`
	Content      string    `json:"-"`
	Checksum     string    `json:"checksum"`
	CapturedAt   time.Time `json:"captured_at"`
	SizeBytes    int64     `json:"size_bytes"`
	Exists       bool      `json:"exists"`
}

// Capture reads the artifact at path and returns its snapshot. A missing
// artifact yields a valid snapshot with Exists=false and empty content.
// Content is treated as opaque text; binary files are not supported.
func Capture(path string) (*Snapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &Snapshot{
				ArtifactPath: path,
				Checksum:     checksum(nil),
				CapturedAt:   time.Now(),
			}, nil
		}
		return nil, fmt.Errorf("capture %s: %w", path, err)
	}
	return &Snapshot{
		ArtifactPath: path,
		Content:      string(data),
		Checksum:     checksum(data),
		CapturedAt:   time.Now(),
		SizeBytes:    int64(len(data)),
		Exists:       true,
	}, nil
}

func checksum(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

package snapshot

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// Store persists snapshot content and metadata under
// <root>/snapshots/<change-id>/<phase>.txt and <phase>_metadata.json.
type Store struct {
	root string
}

// NewStore creates a store rooted at the given state directory.
func NewStore(root string) *Store {
	return &Store{root: root}
}

func (s *Store) changeDir(changeID string) string {
	return filepath.Join(s.root, "snapshots", changeID)
}

// Save writes the snapshot's content file and metadata sidecar for the given
// change and phase.
func (s *Store) Save(changeID, phase string, snap *Snapshot) error {
	if snap == nil {
		return fmt.Errorf("save snapshot: nil snapshot")
	}
	dir := s.changeDir(changeID)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("save snapshot: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, phase+".txt"), []byte(snap.Content), 0o600); err != nil {
		return fmt.Errorf("save snapshot content: %w", err)
	}
	meta, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("encode snapshot metadata: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, phase+"_metadata.json"), meta, 0o600); err != nil {
		return fmt.Errorf("save snapshot metadata: %w", err)
	}
	return nil
}

// Load reads back the snapshot for the given change and phase, rejoining
// content with its metadata sidecar.
func (s *Store) Load(changeID, phase string) (*Snapshot, error) {
	dir := s.changeDir(changeID)
	meta, err := os.ReadFile(filepath.Join(dir, phase+"_metadata.json"))
	if err != nil {
		return nil, fmt.Errorf("load snapshot metadata: %w", err)
	}
	var snap Snapshot
	if err := json.Unmarshal(meta, &snap); err != nil {
		return nil, fmt.Errorf("decode snapshot metadata: %w", err)
	}
	content, err := os.ReadFile(filepath.Join(dir, phase+".txt"))
	if err != nil {
		return nil, fmt.Errorf("load snapshot content: %w", err)
	}
	snap.Content = string(content)
	return &snap, nil
}

// Has reports whether a snapshot exists for the change and phase.
func (s *Store) Has(changeID, phase string) bool {
	_, err := os.Stat(filepath.Join(s.changeDir(changeID), phase+"_metadata.json"))
	return err == nil
}

package tracker

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/forgeloop/forgeloop/internal/snapshot"
)

const (
	changesFile   = "code_changes.json"
	entriesFile   = "changelog_entries.json"
	changelogFile = "CHANGELOG.md"
)

// Tracker owns all changes and changelog entries and is the sole writer of
// their persisted form. Mutating methods take the tracker lock and finish
// with a synchronous full-state persist.
type Tracker struct {
	mu      sync.Mutex
	root    string
	store   *snapshot.Store
	changes map[string]*Change
	entries map[string]*ChangelogEntry
}

// New creates a tracker rooted at the given state directory, loading any
// previously persisted changes and changelog entries. Unknown enum values in
// persisted state are load errors.
func New(root string) (*Tracker, error) {
	if err := os.MkdirAll(root, 0o700); err != nil {
		return nil, fmt.Errorf("tracker state dir: %w", err)
	}
	t := &Tracker{
		root:    root,
		store:   snapshot.NewStore(root),
		changes: make(map[string]*Change),
		entries: make(map[string]*ChangelogEntry),
	}
	if err := t.load(); err != nil {
		return nil, err
	}
	return t, nil
}

func (t *Tracker) load() error {
	data, err := os.ReadFile(filepath.Join(t.root, changesFile))
	if err == nil {
		if err := json.Unmarshal(data, &t.changes); err != nil {
			return fmt.Errorf("decode %s: %w", changesFile, err)
		}
		for id, c := range t.changes {
			if _, err := ParseChangeKind(string(c.Kind)); err != nil {
				return fmt.Errorf("change %s: %w", id, err)
			}
			if _, err := ParseChangeStatus(string(c.Status)); err != nil {
				return fmt.Errorf("change %s: %w", id, err)
			}
		}
	} else if !os.IsNotExist(err) {
		return fmt.Errorf("read %s: %w", changesFile, err)
	}

	data, err = os.ReadFile(filepath.Join(t.root, entriesFile))
	if err == nil {
		if err := json.Unmarshal(data, &t.entries); err != nil {
			return fmt.Errorf("decode %s: %w", entriesFile, err)
		}
	} else if !os.IsNotExist(err) {
		return fmt.Errorf("read %s: %w", entriesFile, err)
	}
	return nil
}

// persist rewrites the full persisted state. Disk failures are logged, never
// propagated: in-memory state stays authoritative.
func (t *Tracker) persist() {
	write := func(name string, v any) {
		data, err := json.MarshalIndent(v, "", "  ")
		if err != nil {
			slog.Error("Tracker: encode failed", "file", name, "error", err)
			return
		}
		if err := os.WriteFile(filepath.Join(t.root, name), data, 0o600); err != nil {
			slog.Error("Tracker: persist failed", "file", name, "error", err)
		}
	}
	write(changesFile, t.changes)
	write(entriesFile, t.entries)

	if err := os.WriteFile(filepath.Join(t.root, changelogFile), []byte(t.renderChangelogLocked(0)), 0o600); err != nil {
		slog.Error("Tracker: changelog write failed", "error", err)
	}
}

// BeginRequest carries the inputs for starting a new tracked change.
type BeginRequest struct {
	Path               string
	Description        string
	Kind               ChangeKind
	GeneratedBy        string
	ImprovementRequest string
	RelatedProposalID  string
	Documentation      string
}

// Begin captures a before-snapshot of the artifact (recording its absence
// explicitly when it does not exist yet) and registers a new change in
// status proposed. Returns the fresh change id.
func (t *Tracker) Begin(req BeginRequest) (string, error) {
	if req.Path == "" {
		return "", fmt.Errorf("begin change: path is required")
	}
	if _, err := ParseChangeKind(string(req.Kind)); err != nil {
		return "", fmt.Errorf("begin change: %w", err)
	}

	before, err := snapshot.Capture(req.Path)
	if err != nil {
		return "", fmt.Errorf("begin change: %w", err)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	id := "chg_" + uuid.NewString()
	if err := t.store.Save(id, snapshot.PhaseBefore, before); err != nil {
		slog.Error("Tracker: before-snapshot save failed", "change", id, "error", err)
		return "", err
	}

	t.changes[id] = &Change{
		ChangeID:           id,
		Kind:               req.Kind,
		ArtifactPath:       req.Path,
		Description:        req.Description,
		GeneratedBy:        req.GeneratedBy,
		CreatedAt:          time.Now(),
		Status:             StatusProposed,
		Before:             before,
		ImprovementRequest: req.ImprovementRequest,
		RelatedProposalID:  req.RelatedProposalID,
		Documentation:      req.Documentation,
	}
	t.persist()
	return id, nil
}

// FinalizeOpts carries the optional finalize inputs. A nil TestsPassed means
// no test result was recorded.
type FinalizeOpts struct {
	Status         ChangeStatus
	TestsGenerated []string
	TestsPassed    *bool
	TestOutput     string
}

// Finalize captures the after-snapshot, computes the diff summary, and moves
// the change to the requested status (default applied). A passing test
// result force-upgrades the status to tested. Snapshot I/O failure degrades
// the change to failed instead of surfacing the error.
func (t *Tracker) Finalize(id string, opts FinalizeOpts) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	c, ok := t.changes[id]
	if !ok {
		slog.Warn("Tracker: finalize for unknown change", "change", id)
		return fmt.Errorf("finalize: unknown change %s", id)
	}

	status := opts.Status
	if status == "" {
		status = StatusApplied
	}
	if opts.TestsPassed != nil && *opts.TestsPassed {
		status = StatusTested
	}
	if !CanTransition(c.Status, status) {
		slog.Warn("Tracker: illegal finalize transition", "change", id, "from", c.Status, "to", status)
		return fmt.Errorf("finalize: illegal transition %s -> %s", c.Status, status)
	}

	after, err := snapshot.Capture(c.ArtifactPath)
	if err != nil {
		slog.Error("Tracker: after-snapshot capture failed", "change", id, "error", err)
		c.Status = StatusFailed
		t.persist()
		return nil
	}
	if err := t.store.Save(id, snapshot.PhaseAfter, after); err != nil {
		slog.Error("Tracker: after-snapshot save failed", "change", id, "error", err)
		c.Status = StatusFailed
		t.persist()
		return nil
	}

	// The persisted change record holds snapshot metadata only; reload the
	// before content from the snapshot store for an accurate line count.
	before := c.Before
	if t.store.Has(id, snapshot.PhaseBefore) {
		if loaded, err := t.store.Load(id, snapshot.PhaseBefore); err == nil {
			before = loaded
		}
	}

	c.After = after
	c.DiffSummary = diffSummary(before, after)
	c.Status = status
	if len(opts.TestsGenerated) > 0 {
		c.TestsGenerated = opts.TestsGenerated
	}
	c.TestsPassed = opts.TestsPassed
	c.TestOutput = opts.TestOutput
	t.persist()
	return nil
}

// Rollback restores the artifact to its before-snapshot content, or removes
// it when the before-snapshot recorded that the artifact did not exist.
// Requires a before-snapshot and a non-terminal applied/tested change.
func (t *Tracker) Rollback(id, reason string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	c, ok := t.changes[id]
	if !ok {
		slog.Warn("Tracker: rollback for unknown change", "change", id)
		return fmt.Errorf("rollback: unknown change %s", id)
	}
	if !CanTransition(c.Status, StatusRolledBack) {
		slog.Warn("Tracker: illegal rollback transition", "change", id, "from", c.Status)
		return fmt.Errorf("rollback: illegal from status %s", c.Status)
	}
	if !t.store.Has(id, snapshot.PhaseBefore) {
		slog.Warn("Tracker: rollback without before-snapshot", "change", id)
		return fmt.Errorf("rollback: change %s has no before-snapshot", id)
	}

	before, err := t.store.Load(id, snapshot.PhaseBefore)
	if err != nil {
		slog.Error("Tracker: before-snapshot load failed", "change", id, "error", err)
		c.Status = StatusFailed
		t.persist()
		return nil
	}

	if before.Exists {
		if err := os.WriteFile(c.ArtifactPath, []byte(before.Content), 0o600); err != nil {
			slog.Error("Tracker: restore failed", "change", id, "error", err)
			c.Status = StatusFailed
			t.persist()
			return nil
		}
	} else {
		// The change created the artifact; rolling back means removing it.
		if err := os.Remove(c.ArtifactPath); err != nil && !os.IsNotExist(err) {
			slog.Error("Tracker: removal failed", "change", id, "error", err)
			c.Status = StatusFailed
			t.persist()
			return nil
		}
	}

	now := time.Now()
	c.Status = StatusRolledBack
	c.RolledBackAt = &now
	c.RollbackReason = reason
	t.persist()
	slog.Info("Tracker: change rolled back", "change", id, "reason", reason)
	return nil
}

// Get returns the change by id.
func (t *Tracker) Get(id string) (*Change, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	c, ok := t.changes[id]
	return c, ok
}

// List returns all changes, newest first.
func (t *Tracker) List() []*Change {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]*Change, 0, len(t.changes))
	for _, c := range t.changes {
		out = append(out, c)
	}
	sortChangesByTime(out)
	return out
}

// diffSummary is a human-readable line-count and byte-size delta. This core
// deliberately does not diff semantically.
func diffSummary(before, after *snapshot.Snapshot) string {
	beforeLines, beforeSize := 0, int64(0)
	if before != nil {
		beforeLines = countLines(before.Content)
		beforeSize = before.SizeBytes
	}
	afterLines, afterSize := 0, int64(0)
	if after != nil {
		afterLines = countLines(after.Content)
		afterSize = after.SizeBytes
	}
	return fmt.Sprintf("Lines: %d → %d (%+d) | Size: %d → %d bytes",
		beforeLines, afterLines, afterLines-beforeLines, beforeSize, afterSize)
}

func countLines(content string) int {
	if content == "" {
		return 0
	}
	n := strings.Count(content, "\n")
	if !strings.HasSuffix(content, "\n") {
		n++
	}
	return n
}

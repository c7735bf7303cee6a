package tracker

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
)

// GroupChangelog aggregates the given change ids into one changelog entry.
// Referenced ids are not validated; dangling references are skipped when the
// changelog is rendered.
func (t *Tracker) GroupChangelog(title, description string, changeIDs []string, generatedBy, version string) (string, error) {
	if title == "" {
		return "", fmt.Errorf("changelog entry: title is required")
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	id := "cle_" + uuid.NewString()
	t.entries[id] = &ChangelogEntry{
		EntryID:     id,
		CreatedAt:   time.Now(),
		Title:       title,
		Description: description,
		ChangeIDs:   append([]string(nil), changeIDs...),
		GeneratedBy: generatedBy,
		Version:     version,
	}
	t.persist()
	return id, nil
}

// Entries returns all changelog entries, newest first.
func (t *Tracker) Entries() []*ChangelogEntry {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.sortedEntriesLocked()
}

// RenderChangelog renders the newest limit entries as Markdown. A
// non-positive limit renders everything.
func (t *Tracker) RenderChangelog(limit int) string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.renderChangelogLocked(limit)
}

func (t *Tracker) renderChangelogLocked(limit int) string {
	entries := t.sortedEntriesLocked()
	if limit > 0 && len(entries) > limit {
		entries = entries[:limit]
	}

	var b strings.Builder
	b.WriteString("# Changelog\n")
	for _, e := range entries {
		fmt.Fprintf(&b, "\n## %s (%s)\n\n", e.Title, e.CreatedAt.Format("2006-01-02"))
		if e.Version != "" {
			fmt.Fprintf(&b, "Version: %s\n\n", e.Version)
		}
		if e.Description != "" {
			b.WriteString(e.Description + "\n\n")
		}
		for _, id := range e.ChangeIDs {
			c, ok := t.changes[id]
			if !ok {
				// Dangling reference, tolerated.
				continue
			}
			fmt.Fprintf(&b, "- %s `%s` %s%s\n", statusGlyph(c.Status), c.ArtifactPath, c.Description, testMarker(c))
		}
	}
	return b.String()
}

func (t *Tracker) sortedEntriesLocked() []*ChangelogEntry {
	out := make([]*ChangelogEntry, 0, len(t.entries))
	for _, e := range t.entries {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out
}

func sortChangesByTime(changes []*Change) {
	sort.Slice(changes, func(i, j int) bool { return changes[i].CreatedAt.After(changes[j].CreatedAt) })
}

func statusGlyph(s ChangeStatus) string {
	switch s {
	case StatusProposed:
		return "📋"
	case StatusApplied:
		return "🔧"
	case StatusTested:
		return "✅"
	case StatusFailed:
		return "❌"
	case StatusRolledBack:
		return "⏪"
	default:
		return "•"
	}
}

func testMarker(c *Change) string {
	if c.TestsPassed == nil {
		return ""
	}
	if *c.TestsPassed {
		return " [tests: pass]"
	}
	return " [tests: fail]"
}

// Stats summarizes tracked changes by kind and status.
type Stats struct {
	TotalChanges    int                  `json:"total_changes"`
	TotalEntries    int                  `json:"total_entries"`
	ByKind          map[ChangeKind]int   `json:"by_kind"`
	ByStatus        map[ChangeStatus]int `json:"by_status"`
	TestPassRate    float64              `json:"test_pass_rate"`
	TestedWithValue int                  `json:"tested_with_result"`
}

// Stats computes counts by kind and status plus the test pass rate across
// changes with a recorded test result (0 when none have one).
func (t *Tracker) Stats() Stats {
	t.mu.Lock()
	defer t.mu.Unlock()

	s := Stats{
		TotalChanges: len(t.changes),
		TotalEntries: len(t.entries),
		ByKind:       make(map[ChangeKind]int),
		ByStatus:     make(map[ChangeStatus]int),
	}
	passed, withResult := 0, 0
	for _, c := range t.changes {
		s.ByKind[c.Kind]++
		s.ByStatus[c.Status]++
		if c.TestsPassed != nil {
			withResult++
			if *c.TestsPassed {
				passed++
			}
		}
	}
	s.TestedWithValue = withResult
	if withResult > 0 {
		s.TestPassRate = float64(passed) / float64(withResult) * 100
	}
	return s
}

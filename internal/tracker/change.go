// Package tracker records artifact changes as before/after snapshot pairs
// with a small lifecycle state machine, groups them into changelog entries,
// and renders a Markdown changelog.
package tracker

import (
	"fmt"
	"time"

	"github.com/forgeloop/forgeloop/internal/snapshot"
)

// ChangeKind classifies what a change did to its artifact.
type ChangeKind string

// Change kind constants.
const (
	KindCreate       ChangeKind = "create"
	KindModify       ChangeKind = "modify"
	KindDelete       ChangeKind = "delete"
	KindRefactor     ChangeKind = "refactor"
	KindFix          ChangeKind = "fix"
	KindFeature      ChangeKind = "feature"
	KindOptimization ChangeKind = "optimization"
)

// ParseChangeKind maps a stored string to a ChangeKind, rejecting unknown
// values at the persistence boundary.
func ParseChangeKind(s string) (ChangeKind, error) {
	switch ChangeKind(s) {
	case KindCreate, KindModify, KindDelete, KindRefactor, KindFix, KindFeature, KindOptimization:
		return ChangeKind(s), nil
	}
	return "", fmt.Errorf("unknown change kind %q", s)
}

// ChangeStatus is the lifecycle state of one change.
type ChangeStatus string

// Change status constants.
const (
	StatusProposed   ChangeStatus = "proposed"
	StatusApplied    ChangeStatus = "applied"
	StatusTested     ChangeStatus = "tested"
	StatusFailed     ChangeStatus = "failed"
	StatusRolledBack ChangeStatus = "rolled_back"
)

// ParseChangeStatus maps a stored string to a ChangeStatus.
func ParseChangeStatus(s string) (ChangeStatus, error) {
	switch ChangeStatus(s) {
	case StatusProposed, StatusApplied, StatusTested, StatusFailed, StatusRolledBack:
		return ChangeStatus(s), nil
	}
	return "", fmt.Errorf("unknown change status %q", s)
}

// CanTransition reports whether moving a change between the two states is
// legal. Failed and rolled_back are terminal; further edits to the same
// artifact require a new change.
func CanTransition(from, to ChangeStatus) bool {
	switch from {
	case StatusProposed:
		return to == StatusApplied || to == StatusTested || to == StatusFailed
	case StatusApplied:
		return to == StatusTested || to == StatusFailed || to == StatusRolledBack
	case StatusTested:
		return to == StatusRolledBack || to == StatusFailed
	case StatusFailed, StatusRolledBack:
		return false
	default:
		return false
	}
}

// Change is the tracked unit of one artifact mutation, bounded by a before-
// and after-snapshot. Snapshot raw content is persisted separately by the
// snapshot store; only metadata is serialized here.
type Change struct {
	ChangeID           string             `json:"change_id"`
	Kind               ChangeKind         `json:"kind"`
	ArtifactPath       string             `json:"artifact_path"`
	Description        string             `json:"description"`
	GeneratedBy        string             `json:"generated_by"`
	CreatedAt          time.Time          `json:"created_at"`
	Status             ChangeStatus       `json:"status"`
	Before             *snapshot.Snapshot `json:"before_snapshot,omitempty"`
	After              *snapshot.Snapshot `json:"after_snapshot,omitempty"`
	DiffSummary        string             `json:"diff_summary,omitempty"`
	RelatedProposalID  string             `json:"related_proposal_id,omitempty"`
	ImprovementRequest string             `json:"improvement_request,omitempty"`
	Documentation      string             `json:"documentation,omitempty"`
	TestsGenerated     []string           `json:"tests_generated,omitempty"`
	TestsPassed        *bool              `json:"tests_passed,omitempty"`
	TestOutput         string             `json:"test_output,omitempty"`
	RolledBackAt       *time.Time         `json:"rolled_back_at,omitempty"`
	RollbackReason     string             `json:"rollback_reason,omitempty"`
}

// ChangelogEntry aggregates changes for reporting. It references changes by
// id only and does not own them; dangling ids are tolerated and skipped at
// render time.
type ChangelogEntry struct {
	EntryID           string    `json:"entry_id"`
	CreatedAt         time.Time `json:"created_at"`
	Title             string    `json:"title"`
	Description       string    `json:"description"`
	ChangeIDs         []string  `json:"change_ids"`
	GeneratedBy       string    `json:"generated_by"`
	Version           string    `json:"version,omitempty"`
	RelatedProposalID string    `json:"related_proposal_id,omitempty"`
}

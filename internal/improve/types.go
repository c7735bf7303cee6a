// Package improve tracks capability gaps and improvement proposals, applies
// the escalation policy, and delegates approved work to agents through the
// message broker.
package improve

import (
	"fmt"
	"time"
)

// Severity grades how badly a capability gap hurts.
type Severity string

// Severity constants.
const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// ParseSeverity maps a stored string to a Severity.
func ParseSeverity(s string) (Severity, error) {
	switch Severity(s) {
	case SeverityLow, SeverityMedium, SeverityHigh, SeverityCritical:
		return Severity(s), nil
	}
	return "", fmt.Errorf("unknown severity %q", s)
}

// severityRank orders severities for escalation comparisons.
func severityRank(s Severity) int {
	switch s {
	case SeverityLow:
		return 1
	case SeverityMedium:
		return 2
	case SeverityHigh:
		return 3
	case SeverityCritical:
		return 4
	default:
		return 0
	}
}

// ProposalKind classifies where a proposal came from.
type ProposalKind string

// Proposal kind constants.
const (
	KindCapabilityGap ProposalKind = "capability_gap"
	KindErrorPattern  ProposalKind = "error_pattern"
	KindPerformance   ProposalKind = "performance"
	KindWorkflow      ProposalKind = "workflow"
	KindTooling       ProposalKind = "tooling"
)

// ParseProposalKind maps a stored string to a ProposalKind.
func ParseProposalKind(s string) (ProposalKind, error) {
	switch ProposalKind(s) {
	case KindCapabilityGap, KindErrorPattern, KindPerformance, KindWorkflow, KindTooling:
		return ProposalKind(s), nil
	}
	return "", fmt.Errorf("unknown proposal kind %q", s)
}

// Priority orders proposals; higher values sort first. Serialized as its
// integer value.
type Priority int

// Priority constants.
const (
	PriorityLow Priority = iota + 1
	PriorityMedium
	PriorityHigh
	PriorityCritical
)

// String returns the lowercase name of the priority.
func (p Priority) String() string {
	switch p {
	case PriorityLow:
		return "low"
	case PriorityMedium:
		return "medium"
	case PriorityHigh:
		return "high"
	case PriorityCritical:
		return "critical"
	default:
		return "unknown"
	}
}

// ParsePriority validates a stored integer priority.
func ParsePriority(v int) (Priority, error) {
	if v < int(PriorityLow) || v > int(PriorityCritical) {
		return 0, fmt.Errorf("unknown priority value %d", v)
	}
	return Priority(v), nil
}

// Status is the lifecycle state of a proposal. Transitions are caller
// driven; the monotonic lifecycle is a convention, not an enforced
// invariant.
type Status string

// Proposal status constants.
const (
	StatusIdentified Status = "identified"
	StatusAnalyzing  Status = "analyzing"
	StatusPlanned    Status = "planned"
	StatusInProgress Status = "in_progress"
	StatusTesting    Status = "testing"
	StatusCompleted  Status = "completed"
	StatusCancelled  Status = "cancelled"
	StatusFailed     Status = "failed"
)

// ParseStatus maps a stored string to a Status.
func ParseStatus(s string) (Status, error) {
	switch Status(s) {
	case StatusIdentified, StatusAnalyzing, StatusPlanned, StatusInProgress,
		StatusTesting, StatusCompleted, StatusCancelled, StatusFailed:
		return Status(s), nil
	}
	return "", fmt.Errorf("unknown proposal status %q", s)
}

// Terminal reports whether the status ends the proposal's lifecycle.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled || s == StatusFailed
}

// maxGapExamples caps the stored examples per gap.
const maxGapExamples = 10

// CapabilityGap records a recurring missing or inadequate system behavior.
// Frequency increments and LastDetected refreshes whenever a semantically
// similar report arrives.
type CapabilityGap struct {
	GapID             string    `json:"gap_id"`
	Description       string    `json:"description"`
	Frequency         int       `json:"frequency"`
	Severity          Severity  `json:"severity"`
	Examples          []string  `json:"examples,omitempty"`
	FirstDetected     time.Time `json:"first_detected"`
	LastDetected      time.Time `json:"last_detected"`
	SuggestedSolution string    `json:"suggested_solution,omitempty"`
	AffectedAgents    []string  `json:"affected_agents,omitempty"`
}

// Proposal is a prioritized, staged unit of future work derived from an
// observed gap or pattern.
type Proposal struct {
	ProposalID          string            `json:"proposal_id"`
	Kind                ProposalKind      `json:"kind"`
	Priority            Priority          `json:"priority"`
	Title               string            `json:"title"`
	Description         string            `json:"description"`
	Rationale           string            `json:"rationale,omitempty"`
	ProposedBy          string            `json:"proposed_by"`
	CreatedAt           time.Time         `json:"created_at"`
	Status              Status            `json:"status"`
	EstimatedImpact     string            `json:"estimated_impact,omitempty"`
	EstimatedEffort     string            `json:"estimated_effort,omitempty"`
	AffectedComponents  []string          `json:"affected_components,omitempty"`
	ImplementationSteps []string          `json:"implementation_steps,omitempty"`
	SuccessMetrics      []string          `json:"success_metrics,omitempty"`
	AssignedTo          string            `json:"assigned_to,omitempty"`
	CompletedAt         *time.Time        `json:"completed_at,omitempty"`
	Metadata            map[string]string `json:"metadata,omitempty"`
}

// metadataGapIDs is the proposal metadata key linking back to the gap that
// triggered an auto-proposal. At most one auto-proposal exists per gap.
const metadataGapIDs = "gap_ids"

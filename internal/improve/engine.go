package improve

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/forgeloop/forgeloop/internal/broker"
)

const (
	gapsFile      = "capability_gaps.json"
	proposalsFile = "improvement_proposals.json"

	// autoProposeFrequency triggers an auto-proposal once a gap recurs this
	// often, independent of severity.
	autoProposeFrequency = 5

	// errorPatternThreshold is the occurrence count at which a recurring
	// error kind becomes a proposal. Exactly at, not every time after.
	errorPatternThreshold = 3

	// maxPatternMessages bounds the per-kind error/user pattern rings.
	maxPatternMessages = 50

	// maxMetricSamples bounds the per-metric rolling window.
	maxMetricSamples = 100

	// degradationFactor flags a metric when the recent mean exceeds the
	// prior mean by more than 20%.
	degradationFactor = 1.2
)

// Notifier announces engine decisions to an external channel. Failures are
// the notifier's problem; the engine never blocks on it.
type Notifier interface {
	ProposalDelegated(p *Proposal, agent string)
}

// Engine owns capability gaps and improvement proposals. Mutating methods
// take the engine lock and finish with a synchronous full-state persist;
// in-memory state stays authoritative when disk writes fail.
type Engine struct {
	mu         sync.Mutex
	root       string
	broker     *broker.Broker
	notifier   Notifier
	similarity Similarity

	gaps      map[string]*CapabilityGap
	proposals map[string]*Proposal

	errorPatterns map[string][]string
	errorCounts   map[string]int
	userPatterns  map[string][]string
	userCounts    map[string]int
	metrics       map[string][]float64
}

// New creates an engine rooted at the given state directory, loading any
// persisted gaps and proposals. The broker may be nil when delegation
// messages are not wanted (tests, offline tools).
func New(root string, b *broker.Broker) (*Engine, error) {
	if err := os.MkdirAll(root, 0o700); err != nil {
		return nil, fmt.Errorf("engine state dir: %w", err)
	}
	e := &Engine{
		root:          root,
		broker:        b,
		similarity:    SubstringSimilarity{},
		gaps:          make(map[string]*CapabilityGap),
		proposals:     make(map[string]*Proposal),
		errorPatterns: make(map[string][]string),
		errorCounts:   make(map[string]int),
		userPatterns:  make(map[string][]string),
		userCounts:    make(map[string]int),
		metrics:       make(map[string][]float64),
	}
	if err := e.load(); err != nil {
		return nil, err
	}
	return e, nil
}

// SetNotifier attaches an external notifier. Pass nil to detach.
func (e *Engine) SetNotifier(n Notifier) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.notifier = n
}

// SetSimilarity swaps the gap similarity strategy.
func (e *Engine) SetSimilarity(s Similarity) {
	if s == nil {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.similarity = s
}

func (e *Engine) load() error {
	data, err := os.ReadFile(filepath.Join(e.root, gapsFile))
	if err == nil {
		if err := json.Unmarshal(data, &e.gaps); err != nil {
			return fmt.Errorf("decode %s: %w", gapsFile, err)
		}
		for id, g := range e.gaps {
			if _, err := ParseSeverity(string(g.Severity)); err != nil {
				return fmt.Errorf("gap %s: %w", id, err)
			}
		}
	} else if !os.IsNotExist(err) {
		return fmt.Errorf("read %s: %w", gapsFile, err)
	}

	data, err = os.ReadFile(filepath.Join(e.root, proposalsFile))
	if err == nil {
		if err := json.Unmarshal(data, &e.proposals); err != nil {
			return fmt.Errorf("decode %s: %w", proposalsFile, err)
		}
		for id, p := range e.proposals {
			if _, err := ParseProposalKind(string(p.Kind)); err != nil {
				return fmt.Errorf("proposal %s: %w", id, err)
			}
			if _, err := ParseStatus(string(p.Status)); err != nil {
				return fmt.Errorf("proposal %s: %w", id, err)
			}
			if _, err := ParsePriority(int(p.Priority)); err != nil {
				return fmt.Errorf("proposal %s: %w", id, err)
			}
		}
	} else if !os.IsNotExist(err) {
		return fmt.Errorf("read %s: %w", proposalsFile, err)
	}
	return nil
}

func (e *Engine) persist() {
	write := func(name string, v any) {
		data, err := json.MarshalIndent(v, "", "  ")
		if err != nil {
			slog.Error("Engine: encode failed", "file", name, "error", err)
			return
		}
		if err := os.WriteFile(filepath.Join(e.root, name), data, 0o600); err != nil {
			slog.Error("Engine: persist failed", "file", name, "error", err)
		}
	}
	write(gapsFile, e.gaps)
	write(proposalsFile, e.proposals)
}

// ReportGap records one observation of a missing capability. A report
// similar to an existing gap increments that gap's frequency instead of
// creating a new one; the first similar gap in detection order wins. When
// the gap is critical or has recurred autoProposeFrequency times, exactly
// one improvement proposal is auto-created for it.
func (e *Engine) ReportGap(description, example string, severity Severity, affectedAgents []string) (string, error) {
	if description == "" {
		return "", fmt.Errorf("report gap: description is required")
	}
	if _, err := ParseSeverity(string(severity)); err != nil {
		return "", fmt.Errorf("report gap: %w", err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	gap := e.findSimilarGapLocked(description)
	if gap != nil {
		gap.Frequency++
		gap.LastDetected = time.Now()
		if severityRank(severity) > severityRank(gap.Severity) {
			gap.Severity = severity
		}
		if example != "" && !containsString(gap.Examples, example) && len(gap.Examples) < maxGapExamples {
			gap.Examples = append(gap.Examples, example)
		}
		for _, a := range affectedAgents {
			if !containsString(gap.AffectedAgents, a) {
				gap.AffectedAgents = append(gap.AffectedAgents, a)
			}
		}
	} else {
		now := time.Now()
		gap = &CapabilityGap{
			GapID:          "gap_" + uuid.NewString(),
			Description:    description,
			Frequency:      1,
			Severity:       severity,
			FirstDetected:  now,
			LastDetected:   now,
			AffectedAgents: append([]string(nil), affectedAgents...),
		}
		if example != "" {
			gap.Examples = []string{example}
		}
		e.gaps[gap.GapID] = gap
	}

	if gap.Severity == SeverityCritical || gap.Frequency >= autoProposeFrequency {
		e.autoProposeForGapLocked(gap)
	}

	e.persist()
	return gap.GapID, nil
}

// findSimilarGapLocked returns the earliest-detected gap similar to the
// description, so repeated reports land deterministically on one gap.
func (e *Engine) findSimilarGapLocked(description string) *CapabilityGap {
	var candidates []*CapabilityGap
	for _, g := range e.gaps {
		candidates = append(candidates, g)
	}
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].FirstDetected.Equal(candidates[j].FirstDetected) {
			return candidates[i].GapID < candidates[j].GapID
		}
		return candidates[i].FirstDetected.Before(candidates[j].FirstDetected)
	})
	for _, g := range candidates {
		if e.similarity.AreSimilar(g.Description, description) {
			return g
		}
	}
	return nil
}

// autoProposeForGapLocked creates at most one proposal per gap, keyed by the
// gap id recorded in proposal metadata.
func (e *Engine) autoProposeForGapLocked(gap *CapabilityGap) {
	for _, p := range e.proposals {
		if p.Metadata[metadataGapIDs] == gap.GapID {
			return
		}
	}

	priority := PriorityHigh
	if gap.Severity == SeverityCritical {
		priority = PriorityCritical
	}
	p := e.newProposalLocked(KindCapabilityGap, priority,
		"Close capability gap: "+truncate(gap.Description, 80),
		gap.Description,
		fmt.Sprintf("Reported %d time(s), severity %s", gap.Frequency, gap.Severity),
		"improvement-engine")
	p.AffectedComponents = append([]string(nil), gap.AffectedAgents...)
	p.Metadata = map[string]string{metadataGapIDs: gap.GapID}
	slog.Info("Engine: auto-proposed for gap", "gap", gap.GapID, "proposal", p.ProposalID, "priority", priority.String())
}

// ProposeOpts carries the optional proposal fields.
type ProposeOpts struct {
	EstimatedImpact     string
	EstimatedEffort     string
	AffectedComponents  []string
	ImplementationSteps []string
	SuccessMetrics      []string
	Metadata            map[string]string
}

// Propose creates a proposal in status identified and returns its id.
func (e *Engine) Propose(kind ProposalKind, priority Priority, title, description, rationale, proposedBy string, opts ProposeOpts) (string, error) {
	if _, err := ParseProposalKind(string(kind)); err != nil {
		return "", fmt.Errorf("propose: %w", err)
	}
	if _, err := ParsePriority(int(priority)); err != nil {
		return "", fmt.Errorf("propose: %w", err)
	}
	if title == "" {
		return "", fmt.Errorf("propose: title is required")
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	p := e.newProposalLocked(kind, priority, title, description, rationale, proposedBy)
	p.EstimatedImpact = opts.EstimatedImpact
	p.EstimatedEffort = opts.EstimatedEffort
	p.AffectedComponents = opts.AffectedComponents
	p.ImplementationSteps = opts.ImplementationSteps
	p.SuccessMetrics = opts.SuccessMetrics
	if len(opts.Metadata) > 0 {
		p.Metadata = opts.Metadata
	}
	e.persist()
	return p.ProposalID, nil
}

func (e *Engine) newProposalLocked(kind ProposalKind, priority Priority, title, description, rationale, proposedBy string) *Proposal {
	p := &Proposal{
		ProposalID:  "prop_" + uuid.NewString(),
		Kind:        kind,
		Priority:    priority,
		Title:       title,
		Description: description,
		Rationale:   rationale,
		ProposedBy:  proposedBy,
		CreatedAt:   time.Now(),
		Status:      StatusIdentified,
	}
	e.proposals[p.ProposalID] = p
	return p
}

// RecordErrorPattern logs one occurrence of an error kind. At exactly the
// third occurrence a high-priority proposal is auto-created for the pattern.
func (e *Engine) RecordErrorPattern(kind, message string) {
	if kind == "" {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	e.errorCounts[kind]++
	e.errorPatterns[kind] = appendCapped(e.errorPatterns[kind], message, maxPatternMessages)

	if e.errorCounts[kind] == errorPatternThreshold {
		p := e.newProposalLocked(KindErrorPattern, PriorityHigh,
			"Recurring error: "+kind,
			fmt.Sprintf("Error pattern %q has occurred %d times", kind, e.errorCounts[kind]),
			"Repeated failures of the same kind indicate a systemic defect",
			"improvement-engine")
		slog.Info("Engine: error pattern escalated", "kind", kind, "proposal", p.ProposalID)
		e.persist()
	}
}

// RecordUserPattern logs one occurrence of a user behavior pattern. Counted
// in statistics; no escalation policy is attached.
func (e *Engine) RecordUserPattern(kind, example string) {
	if kind == "" {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.userCounts[kind]++
	e.userPatterns[kind] = appendCapped(e.userPatterns[kind], example, maxPatternMessages)
}

// RecordPerformanceMetric appends a sample to the metric's rolling window
// and logs a degradation warning when the mean of the most recent ten
// samples exceeds the prior ten by more than 20%. It never auto-proposes.
func (e *Engine) RecordPerformanceMetric(name string, value float64) {
	if name == "" {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	samples := append(e.metrics[name], value)
	if len(samples) > maxMetricSamples {
		samples = samples[len(samples)-maxMetricSamples:]
	}
	e.metrics[name] = samples

	if len(samples) < 10 {
		return
	}
	recent := mean(samples[len(samples)-10:])
	prior := recent
	if len(samples) >= 20 {
		prior = mean(samples[len(samples)-20 : len(samples)-10])
	}
	if prior > 0 && recent > prior*degradationFactor {
		slog.Warn("Engine: performance degradation detected",
			"metric", name, "recent_mean", recent, "prior_mean", prior)
	}
}

// TopPriorities returns open proposals, highest priority first and newest
// first within equal priority, trimmed to limit.
func (e *Engine) TopPriorities(limit int) []*Proposal {
	e.mu.Lock()
	defer e.mu.Unlock()

	out := make([]*Proposal, 0, len(e.proposals))
	for _, p := range e.proposals {
		if p.Status == StatusCompleted || p.Status == StatusCancelled {
			continue
		}
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Priority != out[j].Priority {
			return out[i].Priority > out[j].Priority
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

// Get returns the proposal by id.
func (e *Engine) Get(id string) (*Proposal, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	p, ok := e.proposals[id]
	return p, ok
}

// Gaps returns all gaps, most recently detected first.
func (e *Engine) Gaps() []*CapabilityGap {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]*CapabilityGap, 0, len(e.gaps))
	for _, g := range e.gaps {
		out = append(out, g)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].LastDetected.After(out[j].LastDetected) })
	return out
}

// UpdateStatus sets the proposal's status, optionally assigns it, and stamps
// CompletedAt when the status becomes completed. When an assignee is named,
// a delegation message is published through the broker; delegation failure
// (unregistered agent) is logged and left to the caller to recover.
func (e *Engine) UpdateStatus(id string, status Status, assignedTo string) bool {
	if _, err := ParseStatus(string(status)); err != nil {
		slog.Warn("Engine: update with unknown status", "proposal", id, "status", status)
		return false
	}

	e.mu.Lock()
	p, ok := e.proposals[id]
	if !ok {
		e.mu.Unlock()
		slog.Warn("Engine: update for unknown proposal", "proposal", id)
		return false
	}
	if p.Status.Terminal() {
		slog.Warn("Engine: updating terminal proposal", "proposal", id, "from", p.Status, "to", status)
	}

	p.Status = status
	if assignedTo != "" {
		p.AssignedTo = assignedTo
	}
	if status == StatusCompleted {
		now := time.Now()
		p.CompletedAt = &now
	}
	e.persist()
	notifier := e.notifier
	e.mu.Unlock()

	if assignedTo != "" {
		e.delegate(p, assignedTo)
		if notifier != nil {
			notifier.ProposalDelegated(p, assignedTo)
		}
	}
	return true
}

// delegate publishes the delegation message naming the assignee as the
// recipient with the proposal id embedded in the message context.
func (e *Engine) delegate(p *Proposal, agent string) {
	if e.broker == nil {
		return
	}
	priority := broker.PriorityHigh
	if p.Priority == PriorityCritical {
		priority = broker.PriorityUrgent
	}
	ok := e.broker.Send(&broker.Message{
		Kind:     broker.KindDelegation,
		From:     "improvement-engine",
		To:       agent,
		Body:     fmt.Sprintf("Proposal %q assigned to you", p.Title),
		Priority: priority,
		Context: map[string]any{
			"proposal_id": p.ProposalID,
			"kind":        string(p.Kind),
			"priority":    p.Priority.String(),
		},
		RequiresResponse: true,
	})
	if !ok {
		slog.Warn("Engine: delegation undeliverable", "proposal", p.ProposalID, "agent", agent)
	}
}

// Stats summarizes engine state.
type Stats struct {
	TotalGaps         int              `json:"total_gaps"`
	ActiveGaps        int              `json:"active_gaps"`
	TotalProposals    int              `json:"total_proposals"`
	ByStatus          map[Status]int   `json:"by_status"`
	ByPriority        map[Priority]int `json:"by_priority"`
	ErrorPatternKinds int              `json:"error_pattern_kinds"`
	UserPatternKinds  int              `json:"user_pattern_kinds"`
	TrackedMetrics    int              `json:"tracked_metrics"`
}

// activeGapFrequency is the recurrence floor for counting a gap as active.
const activeGapFrequency = 3

// Stats computes gap and proposal counts. A gap is active once its
// frequency reaches three.
func (e *Engine) Stats() Stats {
	e.mu.Lock()
	defer e.mu.Unlock()

	s := Stats{
		TotalGaps:         len(e.gaps),
		TotalProposals:    len(e.proposals),
		ByStatus:          make(map[Status]int),
		ByPriority:        make(map[Priority]int),
		ErrorPatternKinds: len(e.errorPatterns),
		UserPatternKinds:  len(e.userPatterns),
		TrackedMetrics:    len(e.metrics),
	}
	for _, g := range e.gaps {
		if g.Frequency >= activeGapFrequency {
			s.ActiveGaps++
		}
	}
	for _, p := range e.proposals {
		s.ByStatus[p.Status]++
		s.ByPriority[p.Priority]++
	}
	return s
}

func appendCapped(list []string, item string, limit int) []string {
	list = append(list, item)
	if len(list) > limit {
		list = list[len(list)-limit:]
	}
	return list
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func mean(vals []float64) float64 {
	if len(vals) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range vals {
		sum += v
	}
	return sum / float64(len(vals))
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

package improve

import "strings"

// Similarity decides whether two gap descriptions describe the same gap.
// Pluggable so the crude default can be swapped for edit-distance or
// embedding matching without touching engine control flow.
type Similarity interface {
	AreSimilar(a, b string) bool
}

// SubstringSimilarity matches when either description contains the other,
// case-insensitive. Known to both under- and over-merge; it is the original
// heuristic this engine shipped with.
type SubstringSimilarity struct{}

// AreSimilar implements Similarity.
func (SubstringSimilarity) AreSimilar(a, b string) bool {
	la := strings.ToLower(strings.TrimSpace(a))
	lb := strings.ToLower(strings.TrimSpace(b))
	if la == "" || lb == "" {
		return false
	}
	return strings.Contains(la, lb) || strings.Contains(lb, la)
}

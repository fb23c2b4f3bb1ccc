package memory

import (
	"math"
	"strings"
	"time"

	"github.com/haasonsaas/orchestrator-core/internal/store"
)

// Recall ranking weights: combined = 0.6*similarity + 0.4*relevance_decay.
const (
	similarityWeight = 0.6
	relevanceWeight  = 0.4

	// decayHalfLife is how long since last access before a record's
	// relevance halves.
	decayHalfLife = 24 * time.Hour

	// accessBoostCap bounds how much repeated access can raise relevance.
	accessBoostCap = 0.5
)

// similarity is a token-overlap Jaccard score in [0,1] between two texts.
// Deliberately cheap: the core has no vector backend, and recall is
// best-effort by contract.
func similarity(content, query string) float64 {
	a := tokenSet(content)
	b := tokenSet(query)
	if len(a) == 0 || len(b) == 0 {
		return 0
	}

	intersection := 0
	for tok := range b {
		if a[tok] {
			intersection++
		}
	}
	union := len(a) + len(b) - intersection
	return float64(intersection) / float64(union)
}

// combinedScore folds similarity together with relevance decay: relevance
// decays exponentially with time since last access (creation time when the
// record was never recalled) and is boosted logarithmically by access count.
func combinedScore(sim float64, m store.Memory) float64 {
	if sim <= 0 {
		return 0
	}

	last := m.CreatedAt
	if m.AccessedAt != nil {
		last = *m.AccessedAt
	}
	age := time.Since(last)
	decay := math.Exp2(-age.Seconds() / decayHalfLife.Seconds())

	boost := math.Min(accessBoostCap, math.Log1p(float64(m.AccessCount))/10)
	relevance := math.Min(1, decay+boost)

	return similarityWeight*sim + relevanceWeight*relevance
}

func tokenSet(s string) map[string]bool {
	out := map[string]bool{}
	for _, tok := range strings.Fields(strings.ToLower(s)) {
		tok = strings.Trim(tok, ".,:;!?()[]{}\"'")
		if len(tok) > 1 {
			out[tok] = true
		}
	}
	return out
}

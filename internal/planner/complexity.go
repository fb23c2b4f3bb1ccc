// Package planner decomposes a request into a task DAG, classifies each
// task's complexity, and routes it to a worker role, in a single
// deterministic pass.
package planner

import "strings"

var (
	architectureKeywords = []string{"architecture", "design", "redesign", "migrate", "migration", "refactor the"}
	productionKeywords   = []string{"production", "security", "vulnerability", "credential", "secret", "compliance"}
)

// ClassifyComplexity assigns a Complexity to a task description by word
// count and keyword heuristics. Production/security keywords escalate to
// critical regardless of length; long descriptions using
// architecture/design vocabulary are complex; five words or fewer is
// trivial; anything under ten words is simple; everything else is moderate.
func ClassifyComplexity(description string) string {
	lower := strings.ToLower(description)
	words := len(strings.Fields(description))

	if containsAny(lower, productionKeywords) {
		return "critical"
	}
	if words >= 50 && containsAny(lower, architectureKeywords) {
		return "complex"
	}
	if words <= 5 {
		return "trivial"
	}
	if words < 10 {
		return "simple"
	}
	return "moderate"
}

func containsAny(haystack string, needles []string) bool {
	for _, n := range needles {
		if strings.Contains(haystack, n) {
			return true
		}
	}
	return false
}

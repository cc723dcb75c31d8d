// Package eval provides a small set of retrieval metrics over content ids,
// for use with hand-written test cases.
package eval

// Case is one labelled retrieval scenario.
type Case struct {
	Name     string
	Query    string
	Expected []string // content ids that should be retrieved
}

// RecallAtK computes recall@k for a single case.
func RecallAtK(got []string, expected []string, k int) float64 {
	if len(expected) == 0 {
		return 1.0
	}
	if k <= 0 {
		return 0.0
	}
	if k > len(got) {
		k = len(got)
	}

	exp := make(map[string]struct{}, len(expected))
	for _, e := range expected {
		exp[e] = struct{}{}
	}

	hit := 0
	for i := 0; i < k; i++ {
		if _, ok := exp[got[i]]; ok {
			hit++
		}
	}

	return float64(hit) / float64(len(expected))
}

// MRR computes mean reciprocal rank for a single case.
func MRR(got []string, expected []string) float64 {
	if len(expected) == 0 {
		return 1.0
	}
	exp := make(map[string]struct{}, len(expected))
	for _, e := range expected {
		exp[e] = struct{}{}
	}
	for i, g := range got {
		if _, ok := exp[g]; ok {
			return 1.0 / float64(i+1)
		}
	}
	return 0.0
}

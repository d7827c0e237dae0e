package scorer

// Reducer reduces a sequence of per-sample scores (for one scorer, across
// samples and epochs of the same sample) to a summary value. The set of
// reducers is open/pluggable; spec §4.6 requires at minimum mean,
// pass_at_k, and accuracy.
type Reducer func(scores []Score) float64

// Reducers is the built-in, named reducer registry.
var Reducers = map[string]Reducer{
	"mean":     Mean,
	"accuracy": Accuracy,
}

// Mean averages the float-coerced score values.
func Mean(scores []Score) float64 {
	if len(scores) == 0 {
		return 0
	}
	var sum float64
	for _, s := range scores {
		sum += s.Value.AsFloat()
	}
	return sum / float64(len(scores))
}

// Accuracy is the fraction of scores whose float-coerced value is >= 1
// (i.e. boolean-true or a correctness score of exactly 1).
func Accuracy(scores []Score) float64 {
	if len(scores) == 0 {
		return 0
	}
	correct := 0
	for _, s := range scores {
		if s.Value.AsFloat() >= 1 {
			correct++
		}
	}
	return float64(correct) / float64(len(scores))
}

// PassAtK implements the standard unbiased pass@k estimator (Chen et al.):
// given n total epoch samples for one dataset sample and c of them
// correct, the probability that at least one of k samples drawn without
// replacement is correct.
func PassAtK(scores []Score, k int) float64 {
	n := len(scores)
	if n == 0 || k <= 0 {
		return 0
	}
	if k > n {
		k = n
	}
	c := 0
	for _, s := range scores {
		if s.Value.AsFloat() >= 1 {
			c++
		}
	}
	if n-c < k {
		return 1
	}
	// 1 - C(n-c, k) / C(n, k), computed via a product form to avoid
	// overflow for large n.
	prob := 1.0
	for i := 0; i < k; i++ {
		prob *= float64(n-c-i) / float64(n-i)
	}
	return 1 - prob
}

// NewPassAtKReducer returns a Reducer bound to a fixed k, for registration
// under a name like "pass_at_5".
func NewPassAtKReducer(k int) Reducer {
	return func(scores []Score) float64 { return PassAtK(scores, k) }
}

// GroupBySample buckets scores by sample id across epochs, preserving
// first-seen sample order (spec §4.6: "across epochs for the same
// sample"). The second return value is the sample ids in that first-seen
// order, since map iteration order is not stable.
func GroupBySample(ids []any, scores []Score) (map[any][]Score, []any) {
	out := make(map[any][]Score, len(ids))
	order := make([]any, 0, len(ids))
	seen := make(map[any]bool, len(ids))
	for i, id := range ids {
		if i >= len(scores) {
			break
		}
		if !seen[id] {
			seen[id] = true
			order = append(order, id)
		}
		out[id] = append(out[id], scores[i])
	}
	return out, order
}

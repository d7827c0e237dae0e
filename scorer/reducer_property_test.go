package scorer_test

import (
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/evalforge/evalforge/scorer"
)

func scoresFor(n, c int) []scorer.Score {
	scores := make([]scorer.Score, n)
	for i := 0; i < n; i++ {
		scores[i] = scorer.Score{Value: scorer.BoolValue(i < c)}
	}
	return scores
}

// TestPassAtKStaysWithinUnitInterval checks the Chen et al. unbiased
// estimator never leaves [0, 1] regardless of sample count, correct
// count, or k.
func TestPassAtKStaysWithinUnitInterval(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("pass@k is within [0, 1]", prop.ForAll(
		func(n, cRaw, k int) bool {
			c := cRaw % (n + 1)
			if c < 0 {
				c = -c
			}
			v := scorer.PassAtK(scoresFor(n, c), k)
			return v >= 0 && v <= 1
		},
		gen.IntRange(0, 40),
		gen.IntRange(0, 40),
		gen.IntRange(0, 40),
	))

	properties.TestingRun(t)
}

// TestPassAtKAllCorrectIsOne checks that if every sample passed, pass@k is
// exactly 1 for any k.
func TestPassAtKAllCorrectIsOne(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 50
	properties := gopter.NewProperties(parameters)

	properties.Property("pass@k is 1 when every sample passed", prop.ForAll(
		func(n, k int) bool {
			if n == 0 {
				return true
			}
			return scorer.PassAtK(scoresFor(n, n), k) == 1
		},
		gen.IntRange(1, 30),
		gen.IntRange(1, 30),
	))

	properties.TestingRun(t)
}

// TestPassAtKNoneCorrectIsZero checks that if nothing passed, pass@k is 0.
func TestPassAtKNoneCorrectIsZero(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 50
	properties := gopter.NewProperties(parameters)

	properties.Property("pass@k is 0 when nothing passed", prop.ForAll(
		func(n, k int) bool {
			if n == 0 {
				return true
			}
			return scorer.PassAtK(scoresFor(n, 0), k) == 0
		},
		gen.IntRange(1, 30),
		gen.IntRange(1, 30),
	))

	properties.TestingRun(t)
}

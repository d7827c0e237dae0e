package scheduler

import "math"

// FailOnError encodes the four-way fail_on_error policy spec §4.1 defines:
// abort immediately, tolerate everything, tolerate a fraction, or tolerate
// a fixed count of errored samples.
type FailOnError struct {
	always   bool
	never    bool
	fraction float64
	count    int
}

// FailAlways aborts the run on the first unexpected sample error.
func FailAlways() FailOnError { return FailOnError{always: true} }

// FailNever logs every unexpected sample error but never aborts the run.
func FailNever() FailOnError { return FailOnError{never: true} }

// FailFraction tolerates up to floor(f*total) errored samples, f in (0,1].
func FailFraction(f float64) FailOnError { return FailOnError{fraction: f} }

// FailCount tolerates up to k errored samples, k >= 1.
func FailCount(k int) FailOnError { return FailOnError{count: k} }

// maxTolerated returns the number of errored samples this policy tolerates
// before the run must abort, given total samples in the run. The zero value
// of FailOnError behaves like FailAlways: spec §4.1's table only enumerates
// true/false/fraction/int, so an unconfigured policy defaults to the
// strictest reading rather than silently tolerating errors.
func (f FailOnError) maxTolerated(total int) int {
	switch {
	case f.never:
		return total
	case f.fraction > 0:
		return int(math.Floor(f.fraction * float64(total)))
	case f.count > 0:
		return f.count
	default:
		return 0
	}
}

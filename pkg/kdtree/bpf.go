package kdtree

import "sort"

// Warp is a piecewise-linear breakpoint function used to remap a raw
// coordinate difference before it is weighted and squared (distance
// capability, "warping function"). Points must be sorted by Time
// ascending.
type Warp struct {
	Time  []float64
	Value []float64
}

// NewWarp builds a breakpoint function from (time, value) pairs,
// already sorted by time ascending. At least two points are required.
func NewWarp(time, value []float64) *Warp {
	return &Warp{Time: time, Value: value}
}

// Apply returns the interpolated value at t: clamped to the first/last
// value outside the function's domain, linearly interpolated between
// the bracketing segment inside it.
func (w *Warp) Apply(t float64) float64 {
	n := len(w.Time)
	if n == 0 {
		return t
	}
	if t <= w.Time[0] {
		return w.Value[0]
	}
	last := n - 1
	if t >= w.Time[last] {
		return w.Value[last]
	}

	// Find the segment [i, i+1) containing t: the first index whose
	// time exceeds t, minus one.
	i := sort.Search(n, func(i int) bool { return w.Time[i] > t }) - 1
	if i < 0 {
		i = 0
	}
	if i >= last {
		i = last - 1
	}

	slope := (w.Value[i+1] - w.Value[i]) / (w.Time[i+1] - w.Time[i])
	return w.Value[i] + (t-w.Time[i])*slope
}

// applyWarp is the nil-safe hot-path helper: nil warp is the identity,
// keeping the no-warp case free of any interpolation overhead.
func applyWarp(w *Warp, diff float64) float64 {
	if w == nil {
		return diff
	}
	return w.Apply(diff)
}

// Package mif implements the Metric Inverted File: an approximate
// similarity index over an arbitrary metric space. It builds numref
// reference objects, assigns every data object to the ki reference
// objects it is closest to (one posting-list bin per rank), and
// answers k-NN queries by scanning the posting lists of the query's
// own closest reference objects within a bounded rank window.
package mif

import "math"

// DistanceFunc is the pluggable distance capability: a non-negative,
// expected-symmetric scalar between two row vectors, with init/free
// hooks for implementations that hold private precomputed state (a
// covariance matrix, a cached norm table, ...). The zero-value
// EuclideanDistance needs neither.
type DistanceFunc interface {
	Init() error
	Distance(a, b []float32) float64
	Free()
}

// EuclideanDistance is the default DistanceFunc: plain (unweighted)
// Euclidean distance, not squared, since MIF scores are a sum of
// integer rank differences rather than the distances themselves and
// so carry no preference for squared vs. linear distance.
type EuclideanDistance struct{}

func (EuclideanDistance) Init() error { return nil }
func (EuclideanDistance) Free()       {}

func (EuclideanDistance) Distance(a, b []float32) float64 {
	sum := 0.0
	for i := range a {
		diff := float64(a[i] - b[i])
		sum += diff * diff
	}
	return math.Sqrt(sum)
}

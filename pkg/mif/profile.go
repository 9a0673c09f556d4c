package mif

// Profile holds purely observational counters of internal operations,
// the MIF counterpart of pkg/kdtree.Profile, exported by the caller to
// the metrics stack (see pkg/observability).
type Profile struct {
	DistanceEvals int   // object-to-reference distance evaluations (build and query)
	Searches      int   // queries answered
	Neighbours    int   // results returned across all queries
	PostingBytes  int64 // posting-list bytes scanned during queries
	Rehashes      int   // accumulator-table rehashes
}

// ResetProfile zeroes the index's profile counters, letting a caller
// isolate a fresh window before pushing cumulative counts to the
// metrics stack.
func (idx *Index) ResetProfile() {
	idx.Profile = Profile{}
	idx.table.rehashes = 0
}

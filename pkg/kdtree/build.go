package kdtree

import "sort"

// Build partitions the permutation into the tree shape planned by
// SetData/InitNodes: for each inner node, level by level, it picks a
// split dimension, computes a pivot, partitions the node's object
// range around it, and assigns child ranges. useSigma selects whether
// the weighted distance (and the sigma-restricted candidate dimension
// list) is used while choosing split planes.
//
// Degenerate inputs (M=0, D=0) were already rejected at SetData; an
// empty tree's Build is a no-op.
func (t *Tree) Build(useSigma bool) error {
	if t.nnodes == 0 || len(t.permutation) == 0 {
		return nil
	}

	for l := 0; l < t.height-1; l++ {
		levelStart := pow2(l) - 1
		levelEnd := pow2(l+1) - 2
		if levelEnd >= t.ninner {
			levelEnd = t.ninner - 1
		}
		for n := levelStart; n <= levelEnd; n++ {
			t.buildNode(n, l, useSigma)
		}
	}
	return nil
}

// buildNode computes node n's split (or marks it degenerate) and
// partitions its object range accordingly, then assigns both
// children's ranges.
func (t *Tree) buildNode(n, level int, useSigma bool) {
	node := &t.nodes[n]
	s, e := node.Start, node.End
	size := e - s + 1

	if size <= 0 {
		t.setChildren(n, s, s-1, s, s-1)
		return
	}

	dim, ok := t.chooseSplitDim(s, e, level, useSigma)
	if !ok {
		node.Degenerate = true
		mid := (s + e) / 2
		t.setChildren(n, s, mid, mid+1, e)
		return
	}

	node.SplitDim = dim
	switch t.cfg.Decomposition {
	case Hyperplane:
		for d := 0; d < t.dim; d++ {
			t.means[n][d] = t.computePivot(d, s, e)
			t.splits[n][d] = 0
		}
		t.splits[n][dim] = 1
		node.SplitNorm = 1
		t.Profile.HyperComputed++
	default: // Orthogonal
		t.means[n][dim] = t.computePivot(dim, s, e)
		t.Profile.MeanComputed++
	}

	mid := t.partition(n, s, e, useSigma)
	t.setChildren(n, s, mid, mid+1, e)
}

func (t *Tree) setChildren(n, lstart, lend, rstart, rend int) {
	left := 2*n + 1
	right := 2*n + 2
	if left < len(t.nodes) {
		t.nodes[left] = Node{Start: lstart, End: lend}
	}
	if right < len(t.nodes) {
		t.nodes[right] = Node{Start: rstart, End: rend}
	}
}

// chooseSplitDim cycles through the candidate dimensions beginning at
// level mod numCandidates, skipping any dimension on which every
// object in [s,e] has an identical value. Returns ok=false if no
// non-degenerate dimension exists (the node is marked degenerate).
func (t *Tree) chooseSplitDim(s, e, level int, useSigma bool) (dim int, ok bool) {
	candidates := t.sigmaNNZ
	useCandidates := useSigma && t.sigma != nil && len(t.sigmaNNZ) > 0
	numCandidates := t.dim
	if useCandidates {
		numCandidates = len(candidates)
	}
	if numCandidates == 0 {
		return 0, false
	}

	start := level % numCandidates
	for c := 0; c < numCandidates; c++ {
		idx := (start + c) % numCandidates
		d := idx
		if useCandidates {
			d = candidates[idx]
		}
		if !t.allEqual(d, s, e) {
			return d, true
		}
	}
	return 0, false
}

func (t *Tree) allEqual(dim, s, e int) bool {
	first := t.row(t.permutation[s])[dim]
	for i := s + 1; i <= e; i++ {
		if t.row(t.permutation[i])[dim] != first {
			return false
		}
	}
	return true
}

// computePivot evaluates the configured pivot mode on dimension dim
// over the object range [s,e].
func (t *Tree) computePivot(dim, s, e int) float64 {
	switch t.cfg.Pivot {
	case Middle:
		min, max := t.minMax(dim, s, e)
		return (min + max) / 2
	case Median:
		return t.median(dim, s, e)
	default: // Mean
		return t.mean(dim, s, e)
	}
}

func (t *Tree) mean(dim, s, e int) float64 {
	sum := 0.0
	for i := s; i <= e; i++ {
		sum += float64(t.row(t.permutation[i])[dim])
	}
	return sum / float64(e-s+1)
}

func (t *Tree) minMax(dim, s, e int) (min, max float64) {
	min = float64(t.row(t.permutation[s])[dim])
	max = min
	for i := s + 1; i <= e; i++ {
		v := float64(t.row(t.permutation[i])[dim])
		if v < min {
			min = v
		}
		if v > max {
			max = v
		}
	}
	return min, max
}

func (t *Tree) median(dim, s, e int) float64 {
	n := e - s + 1
	vals := make([]float64, n)
	for i := 0; i < n; i++ {
		vals[i] = float64(t.row(t.permutation[s+i])[dim])
	}
	sort.Float64s(vals)
	return vals[n/2]
}

// partition performs the two-pointer sweep: every object with
// dist_to_node(n, x) <= 0 ends up at indices [s, mid], the rest at
// [mid+1, e]. Only permutation entries are swapped, never the
// underlying data rows.
func (t *Tree) partition(n, s, e int, useSigma bool) int {
	i, j := s, e
	for i <= j {
		d := t.distanceToNodeRow(n, t.row(t.permutation[i]), useSigma)
		if d <= 0 {
			i++
			continue
		}
		t.permutation[i], t.permutation[j] = t.permutation[j], t.permutation[i]
		j--
	}
	return j
}

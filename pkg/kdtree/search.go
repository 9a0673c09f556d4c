package kdtree

import (
	"fmt"
	"math"

	"github.com/therealutkarshpriyadarshi/discocore/pkg/objectid"
)

// resultSlot is one candidate held in the fixed-size k-NN result
// array during SearchKNN.
type resultSlot struct {
	id objectid.ID
	d2 float64
}

// SearchKNN runs a non-recursive, best-first pruning search for the k
// nearest neighbours of x. r > 0 restricts results to squared distance
// <= r (and the sentinel distance used before any result is found);
// r <= 0 means unrestricted (sentinel +Inf). useSigma requests
// weighted distance, silently degrading to unweighted if no sigma has
// been configured. Returns the identifiers and squared distances of
// the found results (length may be less than k if r restricted the
// search or the tree holds fewer than k objects), sorted ascending by
// distance when the tree's Sort flag is set.
func (t *Tree) SearchKNN(x []float64, k int, r float64, useSigma bool) ([]objectid.ID, []float64, error) {
	if len(x) != t.dim {
		return nil, nil, fmt.Errorf("kdtree: query dimension %d does not match tree dimension %d", len(x), t.dim)
	}
	if k <= 0 {
		return nil, nil, fmt.Errorf("kdtree: k must be positive, got %d", k)
	}
	if t.nnodes == 0 || len(t.permutation) == 0 {
		return nil, nil, nil
	}

	sentinel := math.Inf(1)
	if r > 0 {
		sentinel = r
	}

	results := make([]resultSlot, 0, k)
	bound := sentinel
	worstIdx := -1 // valid only once len(results) == k and !sort

	t.stack.clear()
	t.stack.push(0, 0)
	t.Profile.Searches++

	for !t.stack.empty() {
		if t.stack.size > t.Profile.MaxStack {
			t.Profile.MaxStack = t.stack.size
		}
		elem := t.stack.pop()
		if elem.dist > bound {
			continue
		}

		if elem.node >= t.ninner {
			node := t.nodes[elem.node]
			for i := node.Start; i <= node.End; i++ {
				id := t.permutation[i]
				row := t.row(id)
				d2 := t.squaredDistance(x, row, useSigma)
				t.Profile.VectorToVector++
				if d2 > bound {
					continue
				}
				results, bound, worstIdx = t.insertResult(results, worstIdx, k, id, d2, bound)
			}
			continue
		}

		d := t.distanceToNode(elem.node, x, useSigma)
		d2 := d * d
		near, far := 2*elem.node+1, 2*elem.node+2
		if d > 0 {
			near, far = far, near
		}
		t.stack.push(far, math.Max(elem.dist, d2))
		t.stack.push(near, elem.dist)
	}

	t.Profile.Neighbours += len(results)

	ids := make([]objectid.ID, len(results))
	d2s := make([]float64, len(results))
	for i, res := range results {
		ids[i] = res.id
		d2s[i] = res.d2
	}
	return ids, d2s, nil
}

// insertResult inserts (id, d2) into results (capacity k), maintaining
// either ascending order (stable on ties, t.sort) or an unordered
// worst-displaces-worst array whose current worst index is tracked in
// worstIdx. Returns the updated slice, pruning bound, and worst index.
func (t *Tree) insertResult(results []resultSlot, worstIdx, k int, id objectid.ID, d2, bound float64) ([]resultSlot, float64, int) {
	if len(results) < k {
		if t.sort {
			i := len(results)
			results = append(results, resultSlot{})
			for i > 0 && results[i-1].d2 > d2 {
				results[i] = results[i-1]
				i--
			}
			results[i] = resultSlot{id: id, d2: d2}
		} else {
			results = append(results, resultSlot{id: id, d2: d2})
		}
		if len(results) == k {
			bound, worstIdx = recomputeWorst(results, t.sort)
		}
		return results, bound, worstIdx
	}

	// Full: replace the current worst. d2 <= bound already verified
	// by the caller.
	if t.sort {
		i := k - 1
		for i > 0 && results[i-1].d2 > d2 {
			results[i] = results[i-1]
			i--
		}
		results[i] = resultSlot{id: id, d2: d2}
		bound = results[k-1].d2
		return results, bound, worstIdx
	}

	results[worstIdx] = resultSlot{id: id, d2: d2}
	bound, worstIdx = recomputeWorst(results, false)
	return results, bound, worstIdx
}

// recomputeWorst finds the current worst (largest-d2) slot. For
// sorted mode it is always the last element; for unsorted mode it
// requires a linear scan.
func recomputeWorst(results []resultSlot, sorted bool) (bound float64, worstIdx int) {
	if sorted {
		last := len(results) - 1
		return results[last].d2, last
	}
	worstIdx = 0
	for i := 1; i < len(results); i++ {
		if results[i].d2 > results[worstIdx].d2 {
			worstIdx = i
		}
	}
	return results[worstIdx].d2, worstIdx
}

// Package kdtree implements a k-dimensional binary search tree over
// externally-owned data blocks (pkg/discostore), supporting weighted
// Euclidean distance, configurable decomposition/pivot strategies, and
// best-first k-NN search with early pruning.
package kdtree

import (
	"fmt"
	"math/bits"

	"github.com/therealutkarshpriyadarshi/discocore/pkg/discostore"
	"github.com/therealutkarshpriyadarshi/discocore/pkg/objectid"
)

// Tree is a k-d tree over a discostore.Store. Zero value is not usable;
// construct with New, then SetData, InitNodes, optionally SetSigma,
// then Build.
type Tree struct {
	cfg   Config
	store discostore.Store
	dim   int

	// permutation is the only mutable state after Build: it reorders
	// object identifiers so each node's objects occupy [Start, End].
	permutation []objectid.ID

	sigma    []float64 // len == dim; 0 means "ignore this dimension"
	sigmaNNZ []int     // indices of non-zero-sigma dimensions
	warps    []*Warp   // len == dim, entries may be nil

	height    int
	maxHeight int
	nnodes    int
	ninner    int

	nodes  []Node
	means  [][]float64 // len == nnodes, each len == dim (only inner nodes populated)
	splits [][]float64 // len == nnodes when Hyperplane mode, else nil

	sort  bool
	stack *searchStack

	Profile Profile
}

// New constructs a tree bound to store with the given configuration.
func New(store discostore.Store, cfg Config) *Tree {
	return &Tree{
		cfg:   cfg,
		store: store,
		dim:   store.Dim(),
		sort:  cfg.Sort,
	}
}

// SetData assigns every object in the store to the permutation in
// block order and computes the planned tree shape. Returns the number
// of nodes the tree will build (nnodes), which the caller may use to
// preallocate node/mean/split storage for InitNodes.
func (t *Tree) SetData() (nnodes int, err error) {
	m := t.store.TotalObjects()
	if m == 0 {
		return 0, fmt.Errorf("kdtree: empty object store")
	}

	t.permutation = make([]objectid.ID, 0, m)
	for b := 0; b < t.store.NumBlocks(); b++ {
		n := t.store.NumObjects(b)
		for i := 0; i < n; i++ {
			t.permutation = append(t.permutation, objectid.New(b, i))
		}
	}

	t.maxHeight = maxHeightFor(m)
	t.height = resolveHeight(t.cfg.GivenHeight, t.maxHeight)
	if t.height < 1 {
		t.height = 1
	}
	if t.height > t.maxHeight {
		t.height = t.maxHeight
	}

	t.ninner = pow2(t.height-1) - 1
	t.nnodes = pow2(t.height) - 1
	t.stack = newSearchStack(4 * t.height)

	return t.nnodes, nil
}

// maxHeightFor returns floor(log2(m)), at least 1.
func maxHeightFor(m int) int {
	if m < 2 {
		return 1
	}
	return bits.Len(uint(m)) - 1
}

func resolveHeight(given, maxHeight int) int {
	if given > 0 {
		return given
	}
	return maxHeight + given
}

func pow2(n int) int {
	if n < 0 {
		return 0
	}
	return 1 << uint(n)
}

// InitNodes allocates node/mean/split storage and sets the root node
// to span the whole permutation. Must be called after SetData.
func (t *Tree) InitNodes() error {
	if t.nnodes == 0 {
		return fmt.Errorf("kdtree: SetData must be called before InitNodes")
	}

	t.nodes = make([]Node, t.nnodes)
	t.means = make([][]float64, t.nnodes)
	for i := range t.means {
		t.means[i] = make([]float64, t.dim)
	}
	if t.cfg.Decomposition == Hyperplane {
		t.splits = make([][]float64, t.nnodes)
		for i := range t.splits {
			t.splits[i] = make([]float64, t.dim)
		}
	}

	t.nodes[0] = Node{Start: 0, End: len(t.permutation) - 1}
	return nil
}

// SetSigma records the per-dimension weight vector and recomputes the
// non-zero-sigma index list used to skip ignored dimensions.
func (t *Tree) SetSigma(sigma []float64) error {
	if len(sigma) != t.dim {
		return fmt.Errorf("kdtree: sigma length %d does not match dimension %d", len(sigma), t.dim)
	}
	t.sigma = sigma
	t.sigmaNNZ = t.sigmaNNZ[:0]
	for i, s := range sigma {
		if s > 0 {
			t.sigmaNNZ = append(t.sigmaNNZ, i)
		}
	}
	return nil
}

// SetWarps installs per-dimension breakpoint warping functions. A nil
// entry disables warping for that dimension.
func (t *Tree) SetWarps(warps []*Warp) error {
	if len(warps) != t.dim {
		return fmt.Errorf("kdtree: warps length %d does not match dimension %d", len(warps), t.dim)
	}
	t.warps = warps
	return nil
}

func (t *Tree) row(id objectid.ID) []float32 {
	return t.store.Row(int(id.Base), int(id.Index))
}

// Dim returns the tree's vector dimension.
func (t *Tree) Dim() int { return t.dim }

// Height returns the resolved tree height.
func (t *Tree) Height() int { return t.height }

// NumNodes returns the total node count (2^H - 1).
func (t *Tree) NumNodes() int { return t.nnodes }

// NumInner returns the inner-node count (2^(H-1) - 1); node indices
// >= NumInner are leaves.
func (t *Tree) NumInner() int { return t.ninner }

// Node returns node i (valid after InitNodes/Build).
func (t *Tree) Node(i int) Node { return t.nodes[i] }

// ObjectAt returns the object identifier stored at permutation
// position i (valid after SetData, reordered by Build).
func (t *Tree) ObjectAt(i int) objectid.ID { return t.permutation[i] }

// useWeighted reports whether sigma-weighted distance should be used,
// silently degrading to unweighted if no sigma has been set.
func (t *Tree) useWeighted(requested bool) bool {
	return requested && t.sigma != nil
}

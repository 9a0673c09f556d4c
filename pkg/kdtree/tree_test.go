package kdtree

import (
	"math"
	"testing"

	"github.com/therealutkarshpriyadarshi/discocore/pkg/discostore"
)

func newTestTree(t *testing.T, rows [][]float32, cfg Config) *Tree {
	t.Helper()
	store, err := discostore.NewMemoryStore(1, rows)
	if err != nil {
		t.Fatalf("NewMemoryStore: %v", err)
	}
	tree := New(store, cfg)
	if _, err := tree.SetData(); err != nil {
		t.Fatalf("SetData: %v", err)
	}
	if err := tree.InitNodes(); err != nil {
		t.Fatalf("InitNodes: %v", err)
	}
	return tree
}

// A one-object, one-dimension tree returns that object at distance zero.
func TestSearchKNN_Trivial(t *testing.T) {
	tree := newTestTree(t, [][]float32{{3.14}}, DefaultConfig())
	if err := tree.Build(false); err != nil {
		t.Fatalf("Build: %v", err)
	}

	ids, d2s, err := tree.SearchKNN([]float64{3.14}, 1, 0, false)
	if err != nil {
		t.Fatalf("SearchKNN: %v", err)
	}
	if len(ids) != 1 {
		t.Fatalf("expected 1 result, got %d", len(ids))
	}
	if ids[0].Base != 0 || ids[0].Index != 0 {
		t.Errorf("expected object (0,0), got %v", ids[0])
	}
	if d2s[0] != 0 {
		t.Errorf("expected d2=0, got %v", d2s[0])
	}
}

// A balanced orthogonal tree over the corners of {0,1}x{0,1} repeated
// twice returns both copies of the matching corner first, in insertion
// order, followed by an adjacent corner (only two (0,0) points exist).
func TestSearchKNN_BalancedOrthogonal(t *testing.T) {
	rows := [][]float32{
		{0, 0}, {0, 1}, {1, 0}, {1, 1},
		{0, 0}, {0, 1}, {1, 0}, {1, 1},
	}
	cfg := DefaultConfig()
	tree := newTestTree(t, rows, cfg)
	if err := tree.Build(false); err != nil {
		t.Fatalf("Build: %v", err)
	}

	ids, _, err := tree.SearchKNN([]float64{0.1, 0.1}, 3, 0, false)
	if err != nil {
		t.Fatalf("SearchKNN: %v", err)
	}
	if len(ids) != 3 {
		t.Fatalf("expected 3 results, got %d", len(ids))
	}
	for i, want := range []int32{0, 4} {
		if ids[i].Index != want {
			t.Errorf("position %d: expected (0,0) object %d, got %v", i, want, ids[i])
		}
	}
	if row := rows[ids[2].Index]; row[0] == 0 && row[1] == 0 {
		t.Errorf("expected third result to be a non-(0,0) corner, got object %v -> %v", ids[2], row)
	}
}

// Weighted search with sigma[2]=0 ignores the third dimension.
func TestSearchKNN_Weighted(t *testing.T) {
	rows := [][]float32{
		{0, 0, 0},
		{1, 0, 0},
		{0, 10, 0},
		{0, 0, 100},
	}
	cfg := DefaultConfig()
	tree := newTestTree(t, rows, cfg)
	if err := tree.SetSigma([]float64{1, 1, 0}); err != nil {
		t.Fatalf("SetSigma: %v", err)
	}
	if err := tree.Build(true); err != nil {
		t.Fatalf("Build: %v", err)
	}

	ids, d2s, err := tree.SearchKNN([]float64{0, 0, 0}, 4, 0, true)
	if err != nil {
		t.Fatalf("SearchKNN: %v", err)
	}
	if len(ids) != 4 {
		t.Fatalf("expected 4 results, got %d", len(ids))
	}

	// Objects 0 and 3 both have d2=0 under sigma2=0; insertion order
	// (object 0 before object 3) must be preserved since both are
	// encountered in permutation order during the leaf scan.
	wantOrder := []int32{0, 3, 1, 2}
	for i, want := range wantOrder {
		if ids[i].Index != want {
			t.Errorf("position %d: expected object %d, got %d (d2=%v)", i, want, ids[i].Index, d2s[i])
		}
	}
	if d2s[0] != 0 || d2s[1] != 0 {
		t.Errorf("expected first two d2=0, got %v %v", d2s[0], d2s[1])
	}
	if d2s[2] != 1 {
		t.Errorf("expected object 1 d2=1, got %v", d2s[2])
	}
	if d2s[3] != 100 {
		t.Errorf("expected object 2 d2=100, got %v", d2s[3])
	}
}

// After build, size(n) = size(left(n)) + size(right(n)) for every
// inner node, and the root spans all M objects.
func TestBuild_SizeInvariant(t *testing.T) {
	rows := make([][]float32, 37)
	for i := range rows {
		rows[i] = []float32{float32(i), float32(i * 2), float32(-i)}
	}
	tree := newTestTree(t, rows, DefaultConfig())
	if err := tree.Build(false); err != nil {
		t.Fatalf("Build: %v", err)
	}

	if got := tree.Node(0).Size(); got != len(rows) {
		t.Errorf("root size = %d, want %d", got, len(rows))
	}
	for n := 0; n < tree.NumInner(); n++ {
		size := tree.Node(n).Size()
		leftSize := tree.Node(2*n + 1).Size()
		rightSize := tree.Node(2*n + 2).Size()
		if leftSize+rightSize != size {
			t.Errorf("node %d: size %d != left %d + right %d", n, size, leftSize, rightSize)
		}
	}
}

// Every non-degenerate orthogonal split puts values <= mean on the
// left and values > mean on the right.
func TestBuild_SplitInvariant(t *testing.T) {
	rows := make([][]float32, 64)
	for i := range rows {
		rows[i] = []float32{float32(i % 7), float32((i * 3) % 11), float32(i)}
	}
	tree := newTestTree(t, rows, DefaultConfig())
	if err := tree.Build(false); err != nil {
		t.Fatalf("Build: %v", err)
	}

	for n := 0; n < tree.NumInner(); n++ {
		node := tree.Node(n)
		if node.Degenerate {
			continue
		}
		mean := tree.means[n][node.SplitDim]
		left := 2*n + 1
		right := 2*n + 2
		for i := tree.Node(left).Start; i <= tree.Node(left).End; i++ {
			v := tree.row(tree.ObjectAt(i))[node.SplitDim]
			if float64(v) > mean {
				t.Errorf("node %d: left object value %v exceeds mean %v", n, v, mean)
			}
		}
		for i := tree.Node(right).Start; i <= tree.Node(right).End; i++ {
			v := tree.row(tree.ObjectAt(i))[node.SplitDim]
			if float64(v) <= mean {
				t.Errorf("node %d: right object value %v not greater than mean %v", n, v, mean)
			}
		}
	}
}

// SearchKNN returns at most k results, all within r, sorted
// ascending when the sort flag is on.
func TestSearchKNN_BoundedAndSorted(t *testing.T) {
	rows := make([][]float32, 50)
	for i := range rows {
		rows[i] = []float32{float32(i), float32(50 - i)}
	}
	tree := newTestTree(t, rows, DefaultConfig())
	if err := tree.Build(false); err != nil {
		t.Fatalf("Build: %v", err)
	}

	r := 100.0
	ids, d2s, err := tree.SearchKNN([]float64{0, 50}, 5, r, false)
	if err != nil {
		t.Fatalf("SearchKNN: %v", err)
	}
	if len(ids) > 5 {
		t.Fatalf("expected at most 5 results, got %d", len(ids))
	}
	for i, d2 := range d2s {
		if d2 > r {
			t.Errorf("result %d: d2 %v exceeds radius %v", i, d2, r)
		}
		if i > 0 && d2s[i-1] > d2 {
			t.Errorf("results not sorted ascending at position %d: %v then %v", i, d2s[i-1], d2)
		}
	}
}

// SearchKNN with k = M matches exhaustive weighted Euclidean distance.
func TestSearchKNN_ExhaustiveMatch(t *testing.T) {
	rows := make([][]float32, 40)
	for i := range rows {
		rows[i] = []float32{float32(i % 5), float32((i * 7) % 13), float32(i)}
	}
	tree := newTestTree(t, rows, DefaultConfig())
	if err := tree.SetSigma([]float64{1, 2, 0}); err != nil {
		t.Fatalf("SetSigma: %v", err)
	}
	if err := tree.Build(true); err != nil {
		t.Fatalf("Build: %v", err)
	}

	query := []float64{2, 3, 0}
	_, d2s, err := tree.SearchKNN(query, len(rows), 0, true)
	if err != nil {
		t.Fatalf("SearchKNN: %v", err)
	}
	if len(d2s) != len(rows) {
		t.Fatalf("expected %d results, got %d", len(rows), len(d2s))
	}

	want := make([]float64, len(rows))
	for i, row := range rows {
		d2 := 0.0
		for _, dim := range []int{0, 1} { // sigma[2] == 0, excluded
			sigma := 1.0
			if dim == 1 {
				sigma = 2.0
			}
			diff := (query[dim] - float64(row[dim])) / sigma
			d2 += diff * diff
		}
		want[i] = d2
	}

	gotSorted := append([]float64(nil), d2s...)
	wantSorted := append([]float64(nil), want...)
	sortFloat64s(gotSorted)
	sortFloat64s(wantSorted)
	for i := range gotSorted {
		if math.Abs(gotSorted[i]-wantSorted[i]) > 1e-9 {
			t.Fatalf("position %d: got %v, want %v", i, gotSorted[i], wantSorted[i])
		}
	}
}

// Hyperplane decomposition with an axis-aligned normal partitions the
// same way orthogonal does, so exhaustive search results must agree
// with brute force too.
func TestSearchKNN_HyperplaneExhaustiveMatch(t *testing.T) {
	rows := make([][]float32, 32)
	for i := range rows {
		rows[i] = []float32{float32(i % 4), float32((i * 5) % 9)}
	}
	cfg := DefaultConfig()
	cfg.Decomposition = Hyperplane
	tree := newTestTree(t, rows, cfg)
	if err := tree.Build(false); err != nil {
		t.Fatalf("Build: %v", err)
	}

	query := []float64{1.5, 4.0}
	_, d2s, err := tree.SearchKNN(query, len(rows), 0, false)
	if err != nil {
		t.Fatalf("SearchKNN: %v", err)
	}
	if len(d2s) != len(rows) {
		t.Fatalf("expected %d results, got %d", len(rows), len(d2s))
	}

	want := make([]float64, len(rows))
	for i, row := range rows {
		dx := query[0] - float64(row[0])
		dy := query[1] - float64(row[1])
		want[i] = dx*dx + dy*dy
	}
	sortFloat64s(want)
	for i := range d2s {
		if math.Abs(d2s[i]-want[i]) > 1e-9 {
			t.Fatalf("position %d: got %v, want %v", i, d2s[i], want[i])
		}
	}
}

// A per-dimension warp that doubles coordinate differences quadruples
// every squared distance.
func TestSearchKNN_Warped(t *testing.T) {
	rows := [][]float32{{0}, {1}, {3}, {7}}
	tree := newTestTree(t, rows, DefaultConfig())
	double := NewWarp([]float64{-1000, 1000}, []float64{-2000, 2000})
	if err := tree.SetWarps([]*Warp{double}); err != nil {
		t.Fatalf("SetWarps: %v", err)
	}
	if err := tree.Build(false); err != nil {
		t.Fatalf("Build: %v", err)
	}

	_, d2s, err := tree.SearchKNN([]float64{0}, len(rows), 0, false)
	if err != nil {
		t.Fatalf("SearchKNN: %v", err)
	}
	want := []float64{0, 4, 36, 196} // 4 * raw squared difference
	for i := range want {
		if math.Abs(d2s[i]-want[i]) > 1e-9 {
			t.Errorf("position %d: d2 = %v, want %v", i, d2s[i], want[i])
		}
	}
}

func TestWarp_Apply(t *testing.T) {
	w := NewWarp([]float64{0, 1, 2}, []float64{0, 10, 12})
	cases := []struct {
		in, want float64
	}{
		{-5, 0},   // clamped below the domain
		{0, 0},    // first breakpoint
		{0.5, 5},  // interpolated on the first segment
		{1, 10},   // middle breakpoint
		{1.5, 11}, // interpolated on the second segment
		{7, 12},   // clamped above the domain
	}
	for _, tc := range cases {
		if got := w.Apply(tc.in); math.Abs(got-tc.want) > 1e-12 {
			t.Errorf("Apply(%v) = %v, want %v", tc.in, got, tc.want)
		}
	}
}

// A non-positive GivenHeight is relative to the maximum height.
func TestSetData_HeightResolution(t *testing.T) {
	rows := make([][]float32, 64) // max height = 6
	for i := range rows {
		rows[i] = []float32{float32(i)}
	}
	cfg := DefaultConfig()
	cfg.GivenHeight = -2
	tree := newTestTree(t, rows, cfg)
	if tree.Height() != 4 {
		t.Errorf("height = %d, want 4", tree.Height())
	}
	if tree.NumNodes() != 15 {
		t.Errorf("nnodes = %d, want 15", tree.NumNodes())
	}
	if tree.NumInner() != 7 {
		t.Errorf("ninner = %d, want 7", tree.NumInner())
	}

	cfg.GivenHeight = 40 // clamped to the maximum
	tree = newTestTree(t, rows, cfg)
	if tree.Height() != 6 {
		t.Errorf("height = %d, want clamp to 6", tree.Height())
	}
}

// Unsorted mode returns the same result multiset as sorted mode.
func TestSearchKNN_UnsortedSameSet(t *testing.T) {
	rows := make([][]float32, 30)
	for i := range rows {
		rows[i] = []float32{float32((i * 13) % 17), float32((i * 7) % 19)}
	}
	sortedCfg := DefaultConfig()
	unsortedCfg := DefaultConfig()
	unsortedCfg.Sort = false

	sortedTree := newTestTree(t, rows, sortedCfg)
	if err := sortedTree.Build(false); err != nil {
		t.Fatalf("Build (sorted): %v", err)
	}
	unsortedTree := newTestTree(t, rows, unsortedCfg)
	if err := unsortedTree.Build(false); err != nil {
		t.Fatalf("Build (unsorted): %v", err)
	}

	query := []float64{8, 9}
	_, sortedD2, err := sortedTree.SearchKNN(query, 7, 0, false)
	if err != nil {
		t.Fatalf("SearchKNN (sorted): %v", err)
	}
	_, unsortedD2, err := unsortedTree.SearchKNN(query, 7, 0, false)
	if err != nil {
		t.Fatalf("SearchKNN (unsorted): %v", err)
	}
	if len(sortedD2) != len(unsortedD2) {
		t.Fatalf("result sizes differ: %d vs %d", len(sortedD2), len(unsortedD2))
	}
	sortFloat64s(unsortedD2)
	for i := range sortedD2 {
		if math.Abs(sortedD2[i]-unsortedD2[i]) > 1e-9 {
			t.Errorf("position %d: sorted %v, unsorted %v", i, sortedD2[i], unsortedD2[i])
		}
	}
}

// A radius restriction can return fewer than k results; every returned
// distance honours the bound.
func TestSearchKNN_RadiusRestricted(t *testing.T) {
	rows := [][]float32{{0}, {1}, {2}, {50}, {60}}
	tree := newTestTree(t, rows, DefaultConfig())
	if err := tree.Build(false); err != nil {
		t.Fatalf("Build: %v", err)
	}

	ids, d2s, err := tree.SearchKNN([]float64{0}, 5, 5.0, false)
	if err != nil {
		t.Fatalf("SearchKNN: %v", err)
	}
	if len(ids) != 3 {
		t.Fatalf("expected 3 results within r=5, got %d", len(ids))
	}
	for i, d2 := range d2s {
		if d2 > 5.0 {
			t.Errorf("result %d: d2 %v exceeds radius", i, d2)
		}
	}
}

func sortFloat64s(v []float64) {
	for i := 1; i < len(v); i++ {
		for j := i; j > 0 && v[j-1] > v[j]; j-- {
			v[j-1], v[j] = v[j], v[j-1]
		}
	}
}

package mif

import (
	"fmt"
	"math/rand"
	"runtime"
	"sort"
	"sync"

	"github.com/therealutkarshpriyadarshi/discocore/pkg/discostore"
	"github.com/therealutkarshpriyadarshi/discocore/pkg/objectid"
)

// Params configures an Index's shape and query behaviour.
type Params struct {
	// Numref is the number of randomly sampled reference objects.
	Numref int
	// Ki is the number of rank bins kept per posting list: object o is
	// recorded in reference r's posting list (bin k) only if r is o's
	// (k+1)-th nearest reference, for k in [0, ki).
	Ki int
	// Ks is the number of nearest reference objects scanned per query.
	Ks int
	// Mpd ("max posting distance") bounds the rank window scanned on
	// either side of the query's rank within a scanned posting list.
	Mpd int
	// Mixer selects the hash used by the query-time accumulator table.
	// Zero value (MixerXXHash) is the default.
	Mixer MixerKind
	// Seed seeds the reference sampler explicitly so a build is
	// reproducible across runs.
	Seed int64
}

// MixerKind selects the accumulator table's hash mixer.
type MixerKind int

const (
	MixerXXHash MixerKind = iota
	MixerNaive
)

func (p Params) mixerFunc() mixer {
	if p.Mixer == MixerNaive {
		return naiveMixer
	}
	return xxhashMixer
}

// Index is a built Metric Inverted File over a discostore.Store.
type Index struct {
	store  discostore.Store
	dist   DistanceFunc
	params Params

	refs         []objectid.ID
	postingLists []*PostingList

	table *accumTable

	Profile Profile
}

// New constructs an unbuilt index. Call Build before Query.
func New(store discostore.Store, dist DistanceFunc, params Params) (*Index, error) {
	if params.Numref <= 0 {
		return nil, fmt.Errorf("mif: numref must be positive, got %d", params.Numref)
	}
	if params.Ki <= 0 || params.Ki > params.Numref {
		return nil, fmt.Errorf("mif: ki must be in (0, numref], got %d", params.Ki)
	}
	if params.Ks <= 0 || params.Ks > params.Ki {
		return nil, fmt.Errorf("mif: ks must be in (0, ki], got %d", params.Ks)
	}
	if params.Mpd < 0 {
		return nil, fmt.Errorf("mif: mpd must be non-negative, got %d", params.Mpd)
	}
	if params.Mpd > params.Ki {
		params.Mpd = params.Ki
	}
	if dist == nil {
		dist = EuclideanDistance{}
	}
	if err := dist.Init(); err != nil {
		return nil, fmt.Errorf("mif: distance init: %w", err)
	}
	return &Index{
		store:  store,
		dist:   dist,
		params: params,
		table:  newAccumTable(params.Numref*4, params.mixerFunc()),
	}, nil
}

// Refs returns the sampled reference objects (valid after Build).
func (idx *Index) Refs() []objectid.ID { return idx.refs }

// Free releases the distance capability's private state and drops the
// index's posting lists. The index is unusable afterwards; the bound
// object store is caller-owned and untouched.
func (idx *Index) Free() {
	idx.dist.Free()
	idx.refs = nil
	idx.postingLists = nil
}

// BindStore attaches store as the source of row vectors for an index
// reconstructed via Store.Read, which persists only object
// identifiers and posting-list structure, not vector data. store must
// share the dimension and descriptor id the index was built against;
// the caller is responsible for checking compatibility (Data
// incompatibility errors, 7).
func (idx *Index) BindStore(store discostore.Store) { idx.store = store }

// allObjects enumerates every object in the store in (block, index)
// order, mirroring pkg/kdtree's SetData permutation.
func allObjects(store discostore.Store) []objectid.ID {
	ids := make([]objectid.ID, 0, store.TotalObjects())
	for b := 0; b < store.NumBlocks(); b++ {
		n := store.NumObjects(b)
		for i := 0; i < n; i++ {
			ids = append(ids, objectid.New(b, i))
		}
	}
	return ids
}

// rankedRef is a (reference index, distance) pair used by the
// top-ki/top-ks insertion-sort selection shared by build and query.
type rankedRef struct {
	ref int
	d   float64
}

// Build samples Numref reference objects, ranks every data object
// against them, and appends each data object to the posting lists of
// its ki closest references (bin k of its (k+1)-th closest). Distance
// computation is parallelised across GOMAXPROCS workers; posting-list
// application happens sequentially in object order on the calling
// goroutine so the resulting bin contents are deterministic
// regardless of worker scheduling.
func (idx *Index) Build() error {
	objects := allObjects(idx.store)
	m := len(objects)
	if m == 0 {
		return fmt.Errorf("mif: empty object store")
	}
	if idx.params.Numref > m {
		return fmt.Errorf("mif: numref %d exceeds object count %d", idx.params.Numref, m)
	}

	idx.refs = sampleReferences(objects, idx.params.Numref, idx.params.Seed)
	idx.postingLists = make([]*PostingList, idx.params.Numref)
	for i := range idx.postingLists {
		idx.postingLists[i] = NewPostingList(idx.params.Ki, 0)
	}

	refRows := make([][]float32, idx.params.Numref)
	for i, r := range idx.refs {
		refRows[i] = idx.store.Row(int(r.Base), int(r.Index))
	}

	workers := runtime.GOMAXPROCS(0)
	if workers > m {
		workers = m
	}
	if workers < 1 {
		workers = 1
	}

	rankings := make([][]rankedRef, m)
	var wg sync.WaitGroup
	chunk := (m + workers - 1) / workers
	for w := 0; w < workers; w++ {
		start := w * chunk
		end := start + chunk
		if end > m {
			end = m
		}
		if start >= end {
			continue
		}
		wg.Add(1)
		go func(start, end int) {
			defer wg.Done()
			for oi := start; oi < end; oi++ {
				obj := objects[oi]
				row := idx.store.Row(int(obj.Base), int(obj.Index))
				rankings[oi] = idx.topN(row, refRows, idx.params.Ki)
			}
		}(start, end)
	}
	wg.Wait()
	// Every object was measured against every reference; counted here
	// rather than inside topN so the workers never contend on the
	// profile.
	idx.Profile.DistanceEvals += m * idx.params.Numref

	for oi := 0; oi < m; oi++ {
		obj := objects[oi]
		for rank, rr := range rankings[oi] {
			idx.postingLists[rr.ref].Append(obj, rank)
		}
	}

	for _, pl := range idx.postingLists {
		pl.SortBins()
	}
	return nil
}

// topN returns the n references closest to row, ascending by
// distance, via insertion sort (n is expected small relative to
// Numref). Used for both Ki (build-time posting assignment) and Ks
// (query-time nearest-reference scan) since both are "closest n
// references to a row" under the same metric.
func (idx *Index) topN(row []float32, refRows [][]float32, n int) []rankedRef {
	if n > len(refRows) {
		n = len(refRows)
	}
	best := make([]rankedRef, 0, n)
	for r, refRow := range refRows {
		d := idx.dist.Distance(row, refRow)
		if len(best) < n {
			best = insertRanked(best, rankedRef{ref: r, d: d})
			continue
		}
		if d < best[len(best)-1].d {
			best[len(best)-1] = rankedRef{ref: r, d: d}
			bubbleDown(best)
		}
	}
	return best
}

func insertRanked(s []rankedRef, v rankedRef) []rankedRef {
	s = append(s, rankedRef{})
	i := len(s) - 1
	for i > 0 && s[i-1].d > v.d {
		s[i] = s[i-1]
		i--
	}
	s[i] = v
	return s
}

func bubbleDown(s []rankedRef) {
	for i := len(s) - 1; i > 0 && s[i-1].d > s[i].d; i-- {
		s[i-1], s[i] = s[i], s[i-1]
	}
}

// sampleReferences draws numref distinct indices from [0, len(objects))
// using a seeded generator: values are drawn in [0, len(objects)), any
// value already picked is redrawn, and the picked indices are sorted
// at the end, a resample-on-collision approach rather than a reservoir
// or Fisher-Yates shuffle.
func sampleReferences(objects []objectid.ID, numref int, seed int64) []objectid.ID {
	m := len(objects)
	rng := rand.New(rand.NewSource(seed))
	seen := make(map[int]bool, numref)
	picked := make([]int, 0, numref)
	for len(picked) < numref {
		v := rng.Intn(m)
		if seen[v] {
			continue
		}
		seen[v] = true
		picked = append(picked, v)
	}
	sort.Ints(picked)

	refs := make([]objectid.ID, numref)
	for i, v := range picked {
		refs[i] = objects[v]
	}
	return refs
}

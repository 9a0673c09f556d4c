package mif

import (
	"math"
	"testing"
	"time"

	"github.com/therealutkarshpriyadarshi/discocore/pkg/discostore"
	"github.com/therealutkarshpriyadarshi/discocore/pkg/objectid"
)

// ringRows places n unit vectors evenly around the circle.
func ringRows(n int) [][]float32 {
	rows := make([][]float32, n)
	for i := range rows {
		angle := 2 * math.Pi * float64(i) / float64(n)
		rows[i] = []float32{float32(math.Cos(angle)), float32(math.Sin(angle))}
	}
	return rows
}

func newTestIndex(t *testing.T, rows [][]float32, p Params) *Index {
	t.Helper()
	store, err := discostore.NewMemoryStore(1, rows)
	if err != nil {
		t.Fatalf("NewMemoryStore: %v", err)
	}
	idx, err := New(store, EuclideanDistance{}, p)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := idx.Build(); err != nil {
		t.Fatalf("Build: %v", err)
	}
	return idx
}

// A trivially small index (numref == object count) degenerates to
// an exhaustive scan — querying an object already in the index should
// return itself first, with score 0.
func TestQuery_SelfIsNearest(t *testing.T) {
	rows := [][]float32{
		{0, 0}, {10, 0}, {0, 10}, {10, 10}, {5, 5},
	}
	p := Params{Numref: 5, Ki: 5, Ks: 5, Mpd: 5, Seed: 1}
	idx := newTestIndex(t, rows, p)

	results, err := idx.Query([]float32{0, 0}, 1)
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("expected 1 result, got %d", len(results))
	}
	if results[0].Score != 0 {
		t.Errorf("expected score 0 for exact match, got %d", results[0].Score)
	}
}

// Query respects k, returning no more than requested even when
// more objects fall within the scanned window.
func TestQuery_RespectsK(t *testing.T) {
	rows := make([][]float32, 20)
	for i := range rows {
		rows[i] = []float32{float32(i), float32(i)}
	}
	p := Params{Numref: 10, Ki: 10, Ks: 5, Mpd: 10, Seed: 2}
	idx := newTestIndex(t, rows, p)

	results, err := idx.Query([]float32{0, 0}, 3)
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(results) > 3 {
		t.Fatalf("expected at most 3 results, got %d", len(results))
	}
}

// Results are sorted ascending by score.
func TestQuery_SortedByScore(t *testing.T) {
	rows := make([][]float32, 30)
	for i := range rows {
		rows[i] = []float32{float32(i % 6), float32((i * 3) % 9)}
	}
	p := Params{Numref: 12, Ki: 8, Ks: 4, Mpd: 3, Seed: 3}
	idx := newTestIndex(t, rows, p)

	results, err := idx.Query([]float32{2, 2}, 15)
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	for i := 1; i < len(results); i++ {
		if results[i-1].Score > results[i].Score {
			t.Fatalf("results not sorted ascending at position %d: %d then %d", i, results[i-1].Score, results[i].Score)
		}
	}
}

// Bin-size counts over a ring of 100 unit vectors with numref=20,
// ki=5 sum to exactly 100*5, and every object appears in exactly ki
// bins across all posting lists.
func TestBuild_RingBinPopulation(t *testing.T) {
	const n, numref, ki = 100, 20, 5
	p := Params{Numref: numref, Ki: ki, Ks: ki, Mpd: 2, Seed: 0}
	idx := newTestIndex(t, ringRows(n), p)

	total := 0
	appearances := make(map[objectid.ID]int)
	for _, pl := range idx.postingLists {
		for bin := 0; bin < pl.Ki(); bin++ {
			objs := pl.Bin(bin)
			total += len(objs)
			for _, o := range objs {
				appearances[o]++
			}
		}
	}
	if total != n*ki {
		t.Fatalf("total bin population = %d, want %d", total, n*ki)
	}
	if len(appearances) != n {
		t.Fatalf("%d distinct objects indexed, want %d", len(appearances), n)
	}
	for o, count := range appearances {
		if count != ki {
			t.Errorf("object %v appears in %d bins, want %d", o, count, ki)
		}
	}
}

// Querying an indexed ring point with a generous reference budget
// returns that point first with score zero: it sits in the first
// scanned bin of its own nearest reference, accumulates no rank
// disagreement anywhere, and its identifier sorts first within the
// bin.
func TestQuery_RingSelfFirst(t *testing.T) {
	rows := ringRows(100)
	p := Params{Numref: 20, Ki: 5, Ks: 5, Mpd: 3, Seed: 0}
	idx := newTestIndex(t, rows, p)

	results, err := idx.Query(rows[0], 10)
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(results) == 0 {
		t.Fatal("expected results")
	}
	if results[0].Object != objectid.New(0, 0) {
		t.Errorf("expected query object first, got %v (score %d)", results[0].Object, results[0].Score)
	}
	if results[0].Score != 0 {
		t.Errorf("expected score 0 for the query object, got %d", results[0].Score)
	}
	if len(results) > 10 {
		t.Errorf("expected at most 10 results, got %d", len(results))
	}
}

// New rejects parameter combinations the data model forbids.
func TestNew_ParameterValidation(t *testing.T) {
	store, err := discostore.NewMemoryStore(1, ringRows(10))
	if err != nil {
		t.Fatalf("NewMemoryStore: %v", err)
	}
	cases := []struct {
		name string
		p    Params
	}{
		{"zero numref", Params{Numref: 0, Ki: 1, Ks: 1}},
		{"ki exceeds numref", Params{Numref: 4, Ki: 5, Ks: 1}},
		{"ks exceeds ki", Params{Numref: 8, Ki: 3, Ks: 4}},
		{"negative mpd", Params{Numref: 8, Ki: 4, Ks: 2, Mpd: -1}},
	}
	for _, tc := range cases {
		if _, err := New(store, EuclideanDistance{}, tc.p); err == nil {
			t.Errorf("%s: expected error, got nil", tc.name)
		}
	}
}

// Profile counters account for build and query work.
func TestProfile_Counters(t *testing.T) {
	const n = 50
	p := Params{Numref: 10, Ki: 5, Ks: 5, Mpd: 2, Seed: 7}
	idx := newTestIndex(t, ringRows(n), p)

	if idx.Profile.DistanceEvals != n*p.Numref {
		t.Errorf("build distance evals = %d, want %d", idx.Profile.DistanceEvals, n*p.Numref)
	}

	if _, err := idx.Query(ringRows(n)[3], 5); err != nil {
		t.Fatalf("Query: %v", err)
	}
	if idx.Profile.DistanceEvals != n*p.Numref+p.Numref {
		t.Errorf("distance evals after query = %d, want %d", idx.Profile.DistanceEvals, n*p.Numref+p.Numref)
	}
	if idx.Profile.Searches != 1 {
		t.Errorf("searches = %d, want 1", idx.Profile.Searches)
	}
	if idx.Profile.PostingBytes == 0 {
		t.Error("expected posting bytes to be counted")
	}

	idx.ResetProfile()
	if idx.Profile != (Profile{}) {
		t.Errorf("profile not zeroed by reset: %+v", idx.Profile)
	}
}

// Build assigns every reference a posting list with exactly Ki
// bins.
func TestBuild_PostingListShape(t *testing.T) {
	rows := make([][]float32, 25)
	for i := range rows {
		rows[i] = []float32{float32(i), float32(25 - i)}
	}
	p := Params{Numref: 9, Ki: 6, Ks: 3, Mpd: 2, Seed: 4}
	idx := newTestIndex(t, rows, p)

	if len(idx.postingLists) != p.Numref {
		t.Fatalf("expected %d posting lists, got %d", p.Numref, len(idx.postingLists))
	}
	for i, pl := range idx.postingLists {
		if pl.Ki() != p.Ki {
			t.Errorf("posting list %d: expected %d bins, got %d", i, p.Ki, pl.Ki())
		}
	}
}

// Reference objects are distinct.
func TestBuild_DistinctReferences(t *testing.T) {
	rows := make([][]float32, 40)
	for i := range rows {
		rows[i] = []float32{float32(i), float32(i * 2)}
	}
	p := Params{Numref: 15, Ki: 5, Ks: 5, Mpd: 2, Seed: 5}
	idx := newTestIndex(t, rows, p)

	seen := make(map[int32]bool)
	for _, r := range idx.Refs() {
		if seen[r.Index] {
			t.Fatalf("duplicate reference object index %d", r.Index)
		}
		seen[r.Index] = true
	}
	if len(idx.Refs()) != p.Numref {
		t.Fatalf("expected %d references, got %d", p.Numref, len(idx.Refs()))
	}
}

// A fixed seed produces identical reference objects and posting-list
// contents across builds, regardless of worker scheduling.
func TestBuild_DeterministicWithSeed(t *testing.T) {
	rows := make([][]float32, 50)
	for i := range rows {
		rows[i] = []float32{float32(i % 11), float32((i * 5) % 17)}
	}
	p := Params{Numref: 10, Ki: 5, Ks: 5, Mpd: 2, Seed: 42}

	idx1 := newTestIndex(t, rows, p)
	idx2 := newTestIndex(t, rows, p)

	refs1, refs2 := idx1.Refs(), idx2.Refs()
	if len(refs1) != len(refs2) {
		t.Fatalf("reference count mismatch: %d vs %d", len(refs1), len(refs2))
	}
	for i := range refs1 {
		if refs1[i] != refs2[i] {
			t.Fatalf("reference %d differs across builds: %v vs %v", i, refs1[i], refs2[i])
		}
	}

	for refIdx := range idx1.postingLists {
		pl1, pl2 := idx1.postingLists[refIdx], idx2.postingLists[refIdx]
		for bin := 0; bin < pl1.Ki(); bin++ {
			b1, b2 := pl1.Bin(bin), pl2.Bin(bin)
			if len(b1) != len(b2) {
				t.Fatalf("ref %d bin %d: size %d vs %d", refIdx, bin, len(b1), len(b2))
			}
			for i := range b1 {
				if b1[i] != b2[i] {
					t.Fatalf("ref %d bin %d entry %d differs: %v vs %v", refIdx, bin, i, b1[i], b2[i])
				}
			}
		}
	}
}

// Query-cached results match uncached results and the cache
// records a hit on the second call.
func TestQueryCached_MatchesAndHits(t *testing.T) {
	rows := make([][]float32, 20)
	for i := range rows {
		rows[i] = []float32{float32(i), float32(20 - i)}
	}
	p := Params{Numref: 8, Ki: 6, Ks: 3, Mpd: 2, Seed: 6}
	idx := newTestIndex(t, rows, p)
	cache := NewQueryCache(16, time.Hour)

	query := []float32{5, 5}
	want, err := idx.Query(query, 5)
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	got, err := idx.QueryCached(cache, query, 5)
	if err != nil {
		t.Fatalf("QueryCached (miss): %v", err)
	}
	if len(got) != len(want) {
		t.Fatalf("cached result length %d != uncached %d", len(got), len(want))
	}

	if _, err := idx.QueryCached(cache, query, 5); err != nil {
		t.Fatalf("QueryCached (hit): %v", err)
	}
	hits, misses := cache.Stats()
	if hits != 1 {
		t.Errorf("expected 1 hit, got %d", hits)
	}
	if misses != 1 {
		t.Errorf("expected 1 miss, got %d", misses)
	}
}

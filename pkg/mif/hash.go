package mif

import (
	"encoding/binary"

	"github.com/cespare/xxhash/v2"
	"github.com/therealutkarshpriyadarshi/discocore/pkg/objectid"
)

// mixer turns an object identifier into a 64-bit hash for the query
// accumulator table below.
type mixer func(objectid.ID) uint64

// naiveMixer is the reference source's hash(base, index) = base +
// index: coarse, but kept available so a query's accumulator table can
// be checked against a reference trace bit-for-bit (Open Question 3).
func naiveMixer(id objectid.ID) uint64 {
	return uint64(uint32(id.Base)) + uint64(uint32(id.Index))
}

// xxhashMixer is the default mixer: a proper avalanche hash over the
// identifier's 8-byte layout, chosen because the naive sum collides
// constantly once base/index pairs are dense.
func xxhashMixer(id objectid.ID) uint64 {
	var buf [8]byte
	binary.LittleEndian.PutUint32(buf[0:4], uint32(id.Base))
	binary.LittleEndian.PutUint32(buf[4:8], uint32(id.Index))
	return xxhash.Sum64(buf[:])
}

const maxLoadFactor = 0.75

type cell struct {
	key   objectid.ID
	value int
	used  bool
}

// accumTable is a closed-addressing hash table with linear probing,
// used to accumulate rank-difference scores during a single MIF
// query. It is cleared (not freed) between queries by the owning
// Index so its backing array is reused across the query workload.
type accumTable struct {
	cells    []cell
	count    int
	mix      mixer
	rehashes int
}

func newAccumTable(initialCap int, mix mixer) *accumTable {
	if initialCap < 8 {
		initialCap = 8
	}
	if mix == nil {
		mix = xxhashMixer
	}
	return &accumTable{cells: make([]cell, initialCap), mix: mix}
}

// clear empties every cell without shrinking the backing array.
func (t *accumTable) clear() {
	for i := range t.cells {
		t.cells[i] = cell{}
	}
	t.count = 0
}

// slot returns the probe index cells would occupy key at, following
// the linear chain past any occupied cell with a different key.
func (t *accumTable) slot(key objectid.ID) int {
	idx := int(t.mix(key) % uint64(len(t.cells)))
	for t.cells[idx].used && t.cells[idx].key != key {
		idx = (idx + 1) % len(t.cells)
	}
	return idx
}

// get returns the current accumulator value for key, and whether it
// is present.
func (t *accumTable) get(key objectid.ID) (int, bool) {
	idx := t.slot(key)
	if !t.cells[idx].used {
		return 0, false
	}
	return t.cells[idx].value, true
}

// add inserts key with value delta if absent, or adds delta to its
// existing accumulator. Grows (and rehashes) when the load factor
// would exceed maxLoadFactor.
func (t *accumTable) add(key objectid.ID, delta int) {
	if float64(t.count+1) > maxLoadFactor*float64(len(t.cells)) {
		t.grow()
	}
	idx := t.slot(key)
	if t.cells[idx].used {
		t.cells[idx].value += delta
		return
	}
	t.cells[idx] = cell{key: key, value: delta, used: true}
	t.count++
}

func (t *accumTable) grow() {
	t.rehashes++
	old := t.cells
	t.cells = make([]cell, len(old)*2)
	t.count = 0
	for _, c := range old {
		if !c.used {
			continue
		}
		idx := t.slot(c.key)
		t.cells[idx] = c
		t.count++
	}
}

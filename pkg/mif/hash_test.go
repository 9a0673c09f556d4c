package mif

import (
	"testing"

	"github.com/therealutkarshpriyadarshi/discocore/pkg/objectid"
)

// get(k) returns the accumulated value inserted for k since the
// last clear, or "not present" if none.
func TestAccumTable_AddGetClear(t *testing.T) {
	for _, mix := range []struct {
		name string
		fn   mixer
	}{
		{"xxhash", xxhashMixer},
		{"naive", naiveMixer},
	} {
		t.Run(mix.name, func(t *testing.T) {
			tab := newAccumTable(8, mix.fn)

			a := objectid.New(0, 1)
			b := objectid.New(1, 0) // collides with a under the naive mixer
			if _, ok := tab.get(a); ok {
				t.Fatal("empty table reported a present key")
			}

			tab.add(a, 3)
			tab.add(b, 5)
			tab.add(a, 2)

			if v, ok := tab.get(a); !ok || v != 5 {
				t.Errorf("get(a) = %d,%v, want 5,true", v, ok)
			}
			if v, ok := tab.get(b); !ok || v != 5 {
				t.Errorf("get(b) = %d,%v, want 5,true", v, ok)
			}

			tab.clear()
			if _, ok := tab.get(a); ok {
				t.Error("get(a) present after clear")
			}
			tab.add(a, 7)
			if v, ok := tab.get(a); !ok || v != 7 {
				t.Errorf("get(a) after clear+add = %d,%v, want 7,true", v, ok)
			}
		})
	}
}

// The table grows past its initial capacity without losing entries,
// and records the rehash.
func TestAccumTable_Grow(t *testing.T) {
	tab := newAccumTable(8, xxhashMixer)

	const n = 100
	for i := 0; i < n; i++ {
		tab.add(objectid.New(i%3, i), i)
	}
	if tab.count != n {
		t.Fatalf("count = %d, want %d", tab.count, n)
	}
	if tab.rehashes == 0 {
		t.Error("expected at least one rehash growing 8 cells to 100 entries")
	}
	for i := 0; i < n; i++ {
		if v, ok := tab.get(objectid.New(i%3, i)); !ok || v != i {
			t.Fatalf("entry %d lost across growth: got %d,%v", i, v, ok)
		}
	}

	// Load factor holds after growth.
	if float64(tab.count) > maxLoadFactor*float64(len(tab.cells)) {
		t.Errorf("load factor exceeded: %d entries in %d cells", tab.count, len(tab.cells))
	}
}

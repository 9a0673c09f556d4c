// Package objectid defines the identifier used throughout the tree and
// MIF index to name a single data vector without copying it.
package objectid

import "fmt"

// ID names one row of one data block: Base selects the block, Index
// selects the row within it. The layout (two int32) is part of the
// on-disk posting-list entry format and must not change.
type ID struct {
	Base  int32
	Index int32
}

// None is the (-1, -1) identifier, used as a not-found sentinel by
// callers that need one (the hash table itself uses a presence flag, not this value).
var None = ID{Base: -1, Index: -1}

func New(base, index int) ID {
	return ID{Base: int32(base), Index: int32(index)}
}

func (id ID) String() string {
	return fmt.Sprintf("%d.%d", id.Base, id.Index)
}

// IsValid reports whether both fields are non-negative.
func (id ID) IsValid() bool {
	return id.Base >= 0 && id.Index >= 0
}

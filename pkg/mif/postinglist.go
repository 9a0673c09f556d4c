package mif

import (
	"sort"

	"github.com/therealutkarshpriyadarshi/discocore/pkg/objectid"
)

// Bin is a single rank-slot within a posting list: every object for
// which the owning reference object is the (rank+1)-th closest
// reference object.
type Bin struct {
	Objects []objectid.ID
	// Alloc is the bin's capacity in objects before persistence, or
	// (after a compressed round-trip) the compressed blob size in
	// bytes divided by the on-disk object size — retained purely for
	// profiling, per the storage design.
	Alloc int
}

func (b *Bin) append(obj objectid.ID) {
	b.Objects = append(b.Objects, obj)
}

// PostingList owns the ki bins for one reference object.
type PostingList struct {
	bins []Bin
}

// NewPostingList allocates ki bins, each pre-sized to capacityPerBin
// objects.
func NewPostingList(ki, capacityPerBin int) *PostingList {
	bins := make([]Bin, ki)
	if capacityPerBin > 0 {
		for i := range bins {
			bins[i].Objects = make([]objectid.ID, 0, capacityPerBin)
			bins[i].Alloc = capacityPerBin
		}
	}
	return &PostingList{bins: bins}
}

// Append records obj as ranked at rank (0-indexed) with respect to
// this posting list's reference object.
func (p *PostingList) Append(obj objectid.ID, rank int) {
	p.bins[rank].append(obj)
}

// Bin returns the (read-only by convention) object list at rank.
func (p *PostingList) Bin(rank int) []objectid.ID {
	return p.bins[rank].Objects
}

// Ki returns the number of bins.
func (p *PostingList) Ki() int { return len(p.bins) }

// SortBins orders every bin's entries by (base, index), improving the
// compressibility of the serialised blob.
func (p *PostingList) SortBins() {
	for i := range p.bins {
		objs := p.bins[i].Objects
		sort.Slice(objs, func(a, b int) bool { return less(objs[a], objs[b]) })
	}
}

func less(a, b objectid.ID) bool {
	if a.Base != b.Base {
		return a.Base < b.Base
	}
	return a.Index < b.Index
}

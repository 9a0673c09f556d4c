package discostore

import "fmt"

// MemoryBlock is an in-memory, caller-owned block of row vectors. Used
// in tests and for small corpora that do not warrant a memory-mapped
// file.
type MemoryBlock struct {
	name string
	rows [][]float32
}

// NewMemoryBlock wraps rows without copying them.
func NewMemoryBlock(name string, rows [][]float32) *MemoryBlock {
	return &MemoryBlock{name: name, rows: rows}
}

func (b *MemoryBlock) Filename() string { return b.name }
func (b *MemoryBlock) NumObjects() int  { return len(b.rows) }

func (b *MemoryBlock) Row(index int) []float32 {
	return b.rows[index]
}

// NewMemoryStore builds a store from one or more in-memory blocks,
// all required to have the same row dimension. descr identifies the
// data's feature-descriptor kind (caller-assigned, compared against a
// query store's descriptor id at bind time).
func NewMemoryStore(descr int32, namedBlocks ...[][]float32) (*MultiBlockStore, error) {
	if len(namedBlocks) == 0 {
		return nil, fmt.Errorf("discostore: at least one block required")
	}
	dim := 0
	blocks := make([]Block, 0, len(namedBlocks))
	for i, rows := range namedBlocks {
		if len(rows) == 0 {
			blocks = append(blocks, NewMemoryBlock(fmt.Sprintf("mem%d", i), rows))
			continue
		}
		if dim == 0 {
			dim = len(rows[0])
		}
		for _, r := range rows {
			if len(r) != dim {
				return nil, fmt.Errorf("discostore: block %d has inconsistent row dimension", i)
			}
		}
		blocks = append(blocks, NewMemoryBlock(fmt.Sprintf("mem%d", i), rows))
	}
	return NewMultiBlockStore(dim, descr, blocks...)
}

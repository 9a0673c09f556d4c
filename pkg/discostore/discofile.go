package discostore

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"unsafe"

	"golang.org/x/sys/unix"
)

// headerSize is the 12-byte DISCO file header: three little-endian
// int32 fields (ndata, ndim, descrid).
const headerSize = 12

// DiscoFile is a memory-mapped DISCO-format data file: a 12-byte
// header followed by ndata*ndim row-major float32 values. It
// implements Block directly, with Row returning a slice that aliases
// the mapped pages.
type DiscoFile struct {
	filename string
	ndata    int
	ndim     int
	descrid  int32
	mapping  []byte
	data     []float32
}

// OpenDiscoFile maps name read-only and validates the header.
func OpenDiscoFile(name string) (*DiscoFile, error) {
	f, err := os.Open(name)
	if err != nil {
		return nil, fmt.Errorf("discostore: open %s: %w", name, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("discostore: stat %s: %w", name, err)
	}
	size := info.Size()
	if size < headerSize {
		return nil, fmt.Errorf("discostore: %s too small for header (%d bytes)", name, size)
	}

	mapping, err := unix.Mmap(int(f.Fd()), 0, int(size), unix.PROT_READ, unix.MAP_SHARED)
	if err != nil {
		return nil, fmt.Errorf("discostore: mmap %s: %w", name, err)
	}

	ndata := int(int32(binary.LittleEndian.Uint32(mapping[0:4])))
	ndim := int(int32(binary.LittleEndian.Uint32(mapping[4:8])))
	descrid := int32(binary.LittleEndian.Uint32(mapping[8:12]))

	if ndata < 0 || ndim <= 0 {
		unix.Munmap(mapping)
		return nil, fmt.Errorf("discostore: %s has invalid header (ndata=%d ndim=%d)", name, ndata, ndim)
	}
	wantBody := int64(ndata) * int64(ndim) * 4
	if int64(len(mapping))-headerSize < wantBody {
		unix.Munmap(mapping)
		return nil, fmt.Errorf("discostore: %s body shorter than header declares (have %d, want %d)",
			name, int64(len(mapping))-headerSize, wantBody)
	}

	body := mapping[headerSize : headerSize+wantBody]
	var data []float32
	if ndata*ndim > 0 {
		data = unsafe.Slice((*float32)(unsafe.Pointer(&body[0])), ndata*ndim)
	}

	return &DiscoFile{
		filename: name,
		ndata:    ndata,
		ndim:     ndim,
		descrid:  descrid,
		mapping:  mapping,
		data:     data,
	}, nil
}

// Close unmaps the file.
func (d *DiscoFile) Close() error {
	if d.mapping == nil {
		return nil
	}
	err := unix.Munmap(d.mapping)
	d.mapping = nil
	d.data = nil
	return err
}

func (d *DiscoFile) Filename() string    { return d.filename }
func (d *DiscoFile) NumObjects() int     { return d.ndata }
func (d *DiscoFile) Dim() int            { return d.ndim }
func (d *DiscoFile) DescriptorID() int32 { return d.descrid }

func (d *DiscoFile) Row(index int) []float32 {
	start := index * d.ndim
	return d.data[start : start+d.ndim]
}

// WriteDiscoFile writes rows (ndata x ndim, row-major) to name in the
// DISCO format with the given descriptor id. Used by tests and by the
// disco-trunc tool.
func WriteDiscoFile(name string, rows [][]float32, descrid int32) error {
	f, err := os.Create(name)
	if err != nil {
		return fmt.Errorf("discostore: create %s: %w", name, err)
	}
	defer f.Close()
	return WriteDiscoStream(f, rows, descrid)
}

// WriteDiscoStream writes the DISCO header and body for rows to w,
// letting the disco-trunc tool write to stdout as well as to a named
// file without duplicating the framing logic.
func WriteDiscoStream(w io.Writer, rows [][]float32, descrid int32) error {
	ndim := 0
	if len(rows) > 0 {
		ndim = len(rows[0])
	}

	header := make([]byte, headerSize)
	binary.LittleEndian.PutUint32(header[0:4], uint32(int32(len(rows))))
	binary.LittleEndian.PutUint32(header[4:8], uint32(int32(ndim)))
	binary.LittleEndian.PutUint32(header[8:12], uint32(descrid))
	if _, err := w.Write(header); err != nil {
		return fmt.Errorf("discostore: write header: %w", err)
	}

	buf := make([]byte, ndim*4)
	for _, row := range rows {
		if len(row) != ndim {
			return fmt.Errorf("discostore: inconsistent row dimension")
		}
		for i, v := range row {
			binary.LittleEndian.PutUint32(buf[i*4:i*4+4], float32bits(v))
		}
		if _, err := w.Write(buf); err != nil {
			return fmt.Errorf("discostore: write row: %w", err)
		}
	}
	return nil
}

func float32bits(v float32) uint32 {
	return *(*uint32)(unsafe.Pointer(&v))
}

// TruncateDiscoFile implements the disco-trunc tool's operation: write
// the first nvec vectors of in to out (a named file) with an adjusted
// header.
func TruncateDiscoFile(in string, nvec int, out string) error {
	f, err := os.Create(out)
	if err != nil {
		return fmt.Errorf("discostore: create %s: %w", out, err)
	}
	defer f.Close()
	return TruncateDiscoStream(in, nvec, f)
}

// TruncateDiscoStream is TruncateDiscoFile generalised to any
// io.Writer, letting the disco-trunc CLI write to stdout when no
// output file is given.
func TruncateDiscoStream(in string, nvec int, w io.Writer) error {
	src, err := OpenDiscoFile(in)
	if err != nil {
		return err
	}
	defer src.Close()

	if nvec > src.ndata {
		nvec = src.ndata
	}
	if nvec < 0 {
		nvec = 0
	}

	rows := make([][]float32, nvec)
	for i := 0; i < nvec; i++ {
		row := src.Row(i)
		cp := make([]float32, len(row))
		copy(cp, row)
		rows[i] = cp
	}

	return WriteDiscoStream(w, rows, src.descrid)
}

// OpenDiscoFiles opens every named DISCO file, validating that all
// share the same dimension and descriptor id (Data incompatibility,
// error handling design 7), and returns a Store over them plus the
// opened files (the caller must Close each one). The first file's
// descriptor id becomes the store's descriptor id.
func OpenDiscoFiles(names []string) (*MultiBlockStore, []*DiscoFile, error) {
	if len(names) == 0 {
		return nil, nil, fmt.Errorf("discostore: at least one input file required")
	}

	files := make([]*DiscoFile, 0, len(names))
	closeAll := func() {
		for _, f := range files {
			f.Close()
		}
	}

	var dim int
	var descr int32
	blocks := make([]Block, 0, len(names))
	for i, name := range names {
		f, err := OpenDiscoFile(name)
		if err != nil {
			closeAll()
			return nil, nil, err
		}
		files = append(files, f)
		if i == 0 {
			dim = f.Dim()
			descr = f.DescriptorID()
		} else if f.Dim() != dim {
			closeAll()
			return nil, nil, fmt.Errorf("discostore: %s has dimension %d, expected %d", name, f.Dim(), dim)
		} else if f.DescriptorID() != descr {
			closeAll()
			return nil, nil, fmt.Errorf("discostore: %s has descriptor id %d, expected %d", name, f.DescriptorID(), descr)
		}
		blocks = append(blocks, f)
	}

	store, err := NewMultiBlockStore(dim, descr, blocks...)
	if err != nil {
		closeAll()
		return nil, nil, err
	}
	return store, files, nil
}

package mif

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/klauspost/compress/flate"
	_ "modernc.org/sqlite"

	"github.com/therealutkarshpriyadarshi/discocore/pkg/objectid"
)

const schemaVersion = 1

const schemaDDL = `
CREATE TABLE IF NOT EXISTS index_params (
    name       TEXT PRIMARY KEY,
    created_at INTEGER NOT NULL,
    version    INTEGER NOT NULL,
    numref     INTEGER NOT NULL,
    ki         INTEGER NOT NULL,
    ndim       INTEGER NOT NULL,
    descr_id   INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS file (
    fileid   INTEGER PRIMARY KEY,
    filename TEXT NOT NULL,
    numobj   INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS refobj (
    refobjid     INTEGER PRIMARY KEY,
    fileid       INTEGER NOT NULL REFERENCES file(fileid),
    object_index INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS postinglist (
    refobjid  INTEGER NOT NULL REFERENCES refobj(refobjid),
    bin_index INTEGER NOT NULL,
    size      INTEGER NOT NULL,
    compressed INTEGER NOT NULL,
    entries   BLOB NOT NULL,
    UNIQUE(refobjid, bin_index)
);
`

// Store is the SQLite persistence adapter for a built Index. Bin
// blobs are optionally
// passed through deflate when Compress is set, the on-disk layout
// otherwise being a flat array of (int32 base, int32 index) pairs per
// object entry.
type Store struct {
	db       *sql.DB
	Compress bool
}

// OpenStore opens (creating if necessary) a SQLite database at dsn and
// ensures the persistence schema exists.
func OpenStore(ctx context.Context, dsn string) (*Store, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("mif: open %q: %w", dsn, err)
	}
	if _, err := db.ExecContext(ctx, schemaDDL); err != nil {
		db.Close()
		return nil, fmt.Errorf("mif: create schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error { return s.db.Close() }

// Write persists idx under name. The file/refobj/postinglist tables
// hold a single index per database, so any previously persisted state
// is replaced wholesale. fileMeta supplies the (filename, numobj) pair
// recorded for each store block, in block order (entry i is block i);
// in the common single-block case callers pass a single entry.
func (s *Store) Write(ctx context.Context, name string, idx *Index, createdAt int64, ndim int, fileMeta []FileMeta) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("mif: begin: %w", err)
	}
	defer tx.Rollback()

	for _, table := range []string{"postinglist", "refobj", "file", "index_params"} {
		if _, err := tx.ExecContext(ctx, `DELETE FROM `+table); err != nil {
			return fmt.Errorf("mif: clear %s: %w", table, err)
		}
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO index_params(name, created_at, version, numref, ki, ndim, descr_id)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		name, createdAt, schemaVersion, idx.params.Numref, idx.params.Ki, ndim, idx.store.DescriptorID()); err != nil {
		return fmt.Errorf("mif: write index_params: %w", err)
	}

	fileIDs := make([]int64, len(fileMeta))
	for i, fm := range fileMeta {
		res, err := tx.ExecContext(ctx, `INSERT INTO file(filename, numobj) VALUES (?, ?)`, fm.Filename, fm.NumObj)
		if err != nil {
			return fmt.Errorf("mif: write file: %w", err)
		}
		fileIDs[i], _ = res.LastInsertId()
	}

	for refIdx, ref := range idx.refs {
		fileID := int64(0)
		if int(ref.Base) < len(fileIDs) {
			fileID = fileIDs[ref.Base]
		}
		res, err := tx.ExecContext(ctx, `INSERT INTO refobj(fileid, object_index) VALUES (?, ?)`, fileID, ref.Index)
		if err != nil {
			return fmt.Errorf("mif: write refobj: %w", err)
		}
		refobjID, _ := res.LastInsertId()

		pl := idx.postingLists[refIdx]
		for bin := 0; bin < pl.Ki(); bin++ {
			objs := pl.Bin(bin)
			raw := encodeBin(objs)
			compressed := false
			blob := raw
			if s.Compress {
				deflated, err := deflateBytes(raw)
				if err == nil && len(deflated) < len(raw) {
					blob = deflated
					compressed = true
				}
			}
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO postinglist(refobjid, bin_index, size, compressed, entries)
				VALUES (?, ?, ?, ?, ?)`,
				refobjID, bin, len(objs), boolToInt(compressed), blob); err != nil {
				return fmt.Errorf("mif: write postinglist: %w", err)
			}
		}
	}

	return tx.Commit()
}

// FileMeta records a source block's identity for the file table.
type FileMeta struct {
	Filename string
	NumObj   int
}

// IndexParams are the persisted shape fields a caller needs before
// deciding how to resolve formula-derived query parameters without
// reading the full index.
type IndexParams struct {
	Numref  int
	Ki      int
	Ndim    int
	DescrID int32
}

// ReadParams reads only the index_params row for name, letting a
// caller resolve formula defaults such as ks = numref/4 before the
// heavier Read reconstructs the full posting-list state.
func (s *Store) ReadParams(ctx context.Context, name string) (IndexParams, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT numref, ki, ndim, descr_id FROM index_params WHERE name = ?`, name)
	var p IndexParams
	if err := row.Scan(&p.Numref, &p.Ki, &p.Ndim, &p.DescrID); err != nil {
		return IndexParams{}, fmt.Errorf("mif: read index_params %q: %w", name, err)
	}
	return p, nil
}

// Read reconstructs an Index previously written under name. Numref and
// Ki are taken from the persisted row, overriding those in params; the
// rest of params and dist are used as given. Read checks no dimension
// or descriptor id and binds no object store: the caller attaches one
// with BindStore before querying. The returned Index's posting lists
// are freshly allocated and decompressed.
func (s *Store) Read(ctx context.Context, name string, params Params, dist DistanceFunc) (*Index, error) {
	ip, err := s.ReadParams(ctx, name)
	if err != nil {
		return nil, err
	}
	numref, ki := ip.Numref, ip.Ki

	files, err := s.readFiles(ctx)
	if err != nil {
		return nil, err
	}

	refRows, err := s.db.QueryContext(ctx, `SELECT refobjid, fileid, object_index FROM refobj ORDER BY refobjid`)
	if err != nil {
		return nil, fmt.Errorf("mif: read refobj: %w", err)
	}
	defer refRows.Close()

	type refEntry struct {
		refobjID int64
		obj      objectid.ID
	}
	var entries []refEntry
	for refRows.Next() {
		var refobjID, fileID int64
		var objIndex int32
		if err := refRows.Scan(&refobjID, &fileID, &objIndex); err != nil {
			return nil, fmt.Errorf("mif: scan refobj: %w", err)
		}
		entries = append(entries, refEntry{refobjID: refobjID, obj: objectid.New(int(files[fileID]), int(objIndex))})
	}
	if err := refRows.Err(); err != nil {
		return nil, err
	}

	params.Numref = numref
	params.Ki = ki
	if dist == nil {
		dist = EuclideanDistance{}
	}

	idx := &Index{
		dist:         dist,
		params:       params,
		refs:         make([]objectid.ID, len(entries)),
		postingLists: make([]*PostingList, len(entries)),
		table:        newAccumTable(numref*4, params.mixerFunc()),
	}

	for i, e := range entries {
		idx.refs[i] = e.obj
		pl := NewPostingList(ki, 0)
		if err := s.readBins(ctx, e.refobjID, pl); err != nil {
			return nil, err
		}
		idx.postingLists[i] = pl
	}

	return idx, nil
}

// FileNames returns the filenames recorded in the file table, in
// fileid order (matching the block order assigned at Write time), so
// a caller can reopen the exact DISCO files an index was built over.
func (s *Store) FileNames(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT filename FROM file ORDER BY fileid`)
	if err != nil {
		return nil, fmt.Errorf("mif: read file: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

func (s *Store) readFiles(ctx context.Context) (map[int64]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT fileid FROM file ORDER BY fileid`)
	if err != nil {
		return nil, fmt.Errorf("mif: read file: %w", err)
	}
	defer rows.Close()

	files := make(map[int64]int)
	block := 0
	for rows.Next() {
		var fileID int64
		if err := rows.Scan(&fileID); err != nil {
			return nil, err
		}
		files[fileID] = block
		block++
	}
	return files, rows.Err()
}

func (s *Store) readBins(ctx context.Context, refobjID int64, pl *PostingList) error {
	rows, err := s.db.QueryContext(ctx, `
		SELECT bin_index, size, compressed, entries FROM postinglist
		WHERE refobjid = ? ORDER BY bin_index`, refobjID)
	if err != nil {
		return fmt.Errorf("mif: read postinglist: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var binIndex, size, compressed int
		var blob []byte
		if err := rows.Scan(&binIndex, &size, &compressed, &blob); err != nil {
			return fmt.Errorf("mif: scan postinglist: %w", err)
		}
		raw := blob
		if compressed != 0 {
			inflated, err := inflateBytes(blob)
			if err != nil {
				return fmt.Errorf("mif: inflate bin %d: %w", binIndex, err)
			}
			raw = inflated
		}
		objs := decodeBin(raw, size)
		pl.bins[binIndex] = Bin{Objects: objs, Alloc: len(blob) / 8}
	}
	return rows.Err()
}

func encodeBin(objs []objectid.ID) []byte {
	buf := make([]byte, len(objs)*8)
	for i, o := range objs {
		binary.LittleEndian.PutUint32(buf[i*8:], uint32(o.Base))
		binary.LittleEndian.PutUint32(buf[i*8+4:], uint32(o.Index))
	}
	return buf
}

func decodeBin(raw []byte, size int) []objectid.ID {
	objs := make([]objectid.ID, size)
	for i := range objs {
		base := int32(binary.LittleEndian.Uint32(raw[i*8:]))
		index := int32(binary.LittleEndian.Uint32(raw[i*8+4:]))
		objs[i] = objectid.ID{Base: base, Index: index}
	}
	return objs
}

func deflateBytes(raw []byte) ([]byte, error) {
	var buf bytes.Buffer
	w, err := flate.NewWriter(&buf, flate.DefaultCompression)
	if err != nil {
		return nil, err
	}
	if _, err := w.Write(raw); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func inflateBytes(blob []byte) ([]byte, error) {
	r := flate.NewReader(bytes.NewReader(blob))
	defer r.Close()
	return io.ReadAll(r)
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

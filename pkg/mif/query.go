package mif

import (
	"sort"

	"github.com/therealutkarshpriyadarshi/discocore/pkg/objectid"
)

// Result is a single scored match returned by Query, ordered ascending
// by Score (lower is more similar: fewer/smaller rank disagreements
// across the scanned reference objects).
type Result struct {
	Object objectid.ID
	Score  int
}

// Query answers a k-NN request against the built index: it ranks the
// Ks reference objects closest to x, then for each such reference (at
// query-rank qr) scans the posting-list bins within +/-Mpd of qr,
// accumulating int(|bin_rank - qr|) into a per-object score. The k
// objects with the lowest accumulated score are returned, ties broken
// by first-seen order (the order objects are first inserted into the
// accumulator table during the scan).
func (idx *Index) Query(x []float32, k int) ([]Result, error) {
	if idx.refs == nil {
		return nil, errNotBuilt
	}

	refRows := make([][]float32, len(idx.refs))
	for i, r := range idx.refs {
		refRows[i] = idx.store.Row(int(r.Base), int(r.Index))
	}
	nearest := idx.topN(x, refRows, idx.params.Ks)
	ks := len(nearest)
	idx.Profile.DistanceEvals += len(refRows)
	idx.Profile.Searches++

	idx.table.clear()
	var order []objectid.ID
	seen := make(map[objectid.ID]bool)

	mpd := idx.params.Mpd
	for qr := 0; qr < ks; qr++ {
		refIdx := nearest[qr].ref
		pl := idx.postingLists[refIdx]
		lo := qr - mpd
		if lo < 0 {
			lo = 0
		}
		hi := qr + mpd
		if hi >= pl.Ki() {
			hi = pl.Ki() - 1
		}
		for rank := lo; rank <= hi; rank++ {
			diff := rank - qr
			if diff < 0 {
				diff = -diff
			}
			bin := pl.Bin(rank)
			idx.Profile.PostingBytes += int64(len(bin)) * 8
			for _, obj := range bin {
				if !seen[obj] {
					seen[obj] = true
					order = append(order, obj)
				}
				idx.table.add(obj, diff)
			}
		}
	}

	results := make([]Result, 0, len(order))
	for _, obj := range order {
		score, _ := idx.table.get(obj)
		results = append(results, Result{Object: obj, Score: score})
	}

	// Stable sort by score preserves first-seen order on ties.
	sort.SliceStable(results, func(i, j int) bool { return results[i].Score < results[j].Score })
	if k < len(results) {
		results = results[:k]
	}
	idx.Profile.Neighbours += len(results)
	idx.Profile.Rehashes = idx.table.rehashes
	return results, nil
}

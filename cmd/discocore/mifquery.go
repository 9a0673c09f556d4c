package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/therealutkarshpriyadarshi/discocore/pkg/config"
	"github.com/therealutkarshpriyadarshi/discocore/pkg/discostore"
	"github.com/therealutkarshpriyadarshi/discocore/pkg/mif"
	"github.com/therealutkarshpriyadarshi/discocore/pkg/observability"
)

// newMifQueryCmd implements `mif-query <ks> <mpd> <index-db>
// <query-file> [<nquery> [<k> [<out>]]]`. ks/mpd may be -1 to
// request the formula defaults (ks = numref/4, mpd = 5); nquery
// defaults to every query object in the file, k defaults to 5, out
// defaults to stdout.
func newMifQueryCmd(metrics *observability.Metrics) *cobra.Command {
	return &cobra.Command{
		Use:   "mif-query <ks> <mpd> <index-db> <query-file> [<nquery> [<k> [<out>]]]",
		Short: "Answer approximate k-NN queries against a built metric inverted file",
		Args:  cobra.RangeArgs(4, 7),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMifQuery(cmd, args, metrics)
		},
	}
}

func runMifQuery(cmd *cobra.Command, args []string, metrics *observability.Metrics) error {
	log := observability.GetGlobalLogger()

	ksArg, err := strconv.Atoi(args[0])
	if err != nil {
		return fmt.Errorf("mif-query: invalid ks %q: %w", args[0], err)
	}
	mpdArg, err := strconv.Atoi(args[1])
	if err != nil {
		return fmt.Errorf("mif-query: invalid mpd %q: %w", args[1], err)
	}
	indexDB := args[2]
	queryFile := args[3]

	nquery := -1
	k := 5
	outPath := ""
	if len(args) > 4 {
		if nquery, err = strconv.Atoi(args[4]); err != nil {
			return fmt.Errorf("mif-query: invalid nquery %q: %w", args[4], err)
		}
	}
	if len(args) > 5 {
		if k, err = strconv.Atoi(args[5]); err != nil {
			return fmt.Errorf("mif-query: invalid k %q: %w", args[5], err)
		}
	}
	if len(args) > 6 {
		outPath = args[6]
	}

	ctx := context.Background()
	db, err := mif.OpenStore(ctx, indexDB)
	if err != nil {
		return fmt.Errorf("mif-query: %w", err)
	}
	defer db.Close()

	ip, err := db.ReadParams(ctx, indexDB)
	if err != nil {
		return fmt.Errorf("mif-query: %w", err)
	}

	ks := ksArg
	if ks < 0 {
		ks = config.DefaultKi(ip.Numref)
	}
	if ks > ip.Ki {
		return fmt.Errorf("mif-query: ks %d exceeds the index's ki %d", ks, ip.Ki)
	}
	mpd := mpdArg
	if mpd < 0 {
		mpd = 5
	}

	params := mif.Params{Numref: ip.Numref, Ki: ip.Ki, Ks: ks, Mpd: mpd}
	rstart := time.Now()
	idx, err := db.Read(ctx, indexDB, params, mif.EuclideanDistance{})
	if err != nil {
		return fmt.Errorf("mif-query: %w", err)
	}
	metrics.RecordPersistRead(time.Since(rstart))

	qstore, qfiles, err := discostore.OpenDiscoFiles([]string{queryFile})
	if err != nil {
		return fmt.Errorf("mif-query: %w", err)
	}
	defer func() {
		for _, f := range qfiles {
			f.Close()
		}
	}()
	if qstore.Dim() != ip.Ndim {
		return fmt.Errorf("mif-query: query dimension %d does not match index dimension %d", qstore.Dim(), ip.Ndim)
	}
	if qstore.DescriptorID() != ip.DescrID {
		return fmt.Errorf("mif-query: query descriptor id %d does not match index descriptor id %d", qstore.DescriptorID(), ip.DescrID)
	}

	idxStore, idxFiles, err := idxStoreFromDB(ctx, db)
	if err != nil {
		return fmt.Errorf("mif-query: %w", err)
	}
	defer func() {
		for _, f := range idxFiles {
			f.Close()
		}
	}()
	idx.BindStore(idxStore)

	n := qstore.NumObjects(0)
	if nquery >= 0 && nquery < n {
		n = nquery
	}

	out := os.Stdout
	if outPath != "" {
		f, err := os.Create(outPath)
		if err != nil {
			return fmt.Errorf("mif-query: create %s: %w", outPath, err)
		}
		defer f.Close()
		out = f
	}
	w := bufio.NewWriter(out)
	defer w.Flush()

	log.Info("running mif queries", map[string]interface{}{
		"nquery": n, "ks": ks, "mpd": mpd, "k": k,
	})

	for i := 0; i < n; i++ {
		row := qstore.Row(0, i)
		qstart := time.Now()
		results, err := idx.Query(row, k)
		if err != nil {
			return fmt.Errorf("mif-query: query %d: %w", i, err)
		}
		metrics.RecordMIFQuery(time.Since(qstart), len(results))
		fmt.Fprintf(w, "0.%d %d", i, len(results))
		for _, r := range results {
			fmt.Fprintf(w, " %d.%d %d", r.Object.Base, r.Object.Index, r.Score)
		}
		fmt.Fprintln(w)
	}

	metrics.ObserveMIFProfile(observability.MIFProfile{
		DistanceEvals: int64(idx.Profile.DistanceEvals),
		PostingBytes:  idx.Profile.PostingBytes,
		Rehashes:      int64(idx.Profile.Rehashes),
	})
	return nil
}

// idxStoreFromDB reopens the source data files an index was built
// over (recorded in the file table) so Query has row vectors to
// measure distance against: persistence stores only identifiers
// and posting-list structure, never vector data.
func idxStoreFromDB(ctx context.Context, db *mif.Store) (discostore.Store, []*discostore.DiscoFile, error) {
	filenames, err := db.FileNames(ctx)
	if err != nil {
		return nil, nil, err
	}
	return discostore.OpenDiscoFiles(filenames)
}

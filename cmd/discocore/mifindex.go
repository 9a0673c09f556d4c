package main

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/therealutkarshpriyadarshi/discocore/pkg/config"
	"github.com/therealutkarshpriyadarshi/discocore/pkg/discostore"
	"github.com/therealutkarshpriyadarshi/discocore/pkg/mif"
	"github.com/therealutkarshpriyadarshi/discocore/pkg/observability"
)

// newMifIndexCmd implements `mif-index <numref> <ki> <dbname>
// <input-file...>`: numref and ki may be -1 to request the
// formula defaults (numref = 2*sqrt(M), ki = numref/4).
func newMifIndexCmd(metrics *observability.Metrics) *cobra.Command {
	var seed int64
	var compress bool

	cmd := &cobra.Command{
		Use:   "mif-index <numref> <ki> <dbname> <input-file...>",
		Short: "Build a metric inverted file index over one or more DISCO files",
		Args:  cobra.MinimumNArgs(4),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMifIndex(cmd, args, seed, compress, metrics)
		},
	}
	cmd.Flags().Int64Var(&seed, "seed", 0, "reference-sampling seed (same seed, same index)")
	cmd.Flags().BoolVar(&compress, "compress", false, "deflate posting-list blobs at rest")
	return cmd
}

func runMifIndex(cmd *cobra.Command, args []string, seed int64, compress bool, metrics *observability.Metrics) error {
	log := observability.GetGlobalLogger()

	numrefArg, err := strconv.Atoi(args[0])
	if err != nil {
		return fmt.Errorf("mif-index: invalid numref %q: %w", args[0], err)
	}
	kiArg, err := strconv.Atoi(args[1])
	if err != nil {
		return fmt.Errorf("mif-index: invalid ki %q: %w", args[1], err)
	}
	dbname := args[2]
	inputs := args[3:]

	store, files, err := discostore.OpenDiscoFiles(inputs)
	if err != nil {
		return fmt.Errorf("mif-index: %w", err)
	}
	defer func() {
		for _, f := range files {
			f.Close()
		}
	}()

	m := store.TotalObjects()
	numref := numrefArg
	if numref < 0 {
		numref = config.DefaultNumref(m)
	}
	ki := kiArg
	if ki < 0 {
		ki = config.DefaultKi(numref)
	}

	log.Info("building mif index", map[string]interface{}{
		"objects": m, "numref": numref, "ki": ki, "dbname": dbname,
	})

	params := mif.Params{Numref: numref, Ki: ki, Ks: ki, Mpd: 5, Seed: seed}
	idx, err := mif.New(store, mif.EuclideanDistance{}, params)
	if err != nil {
		return fmt.Errorf("mif-index: %w", err)
	}

	start := time.Now()
	if err := idx.Build(); err != nil {
		return fmt.Errorf("mif-index: build: %w", err)
	}
	metrics.RecordMIFBuild(time.Since(start), m)
	metrics.ObserveMIFProfile(observability.MIFProfile{
		DistanceEvals: int64(idx.Profile.DistanceEvals),
		PostingBytes:  idx.Profile.PostingBytes,
		Rehashes:      int64(idx.Profile.Rehashes),
	})
	log.Info("build complete", map[string]interface{}{"duration": time.Since(start)})

	ctx := context.Background()
	db, err := mif.OpenStore(ctx, dbname)
	if err != nil {
		return fmt.Errorf("mif-index: %w", err)
	}
	defer db.Close()
	db.Compress = compress

	fileMeta := make([]mif.FileMeta, len(files))
	for i, f := range files {
		fileMeta[i] = mif.FileMeta{Filename: f.Filename(), NumObj: f.NumObjects()}
	}

	wstart := time.Now()
	if err := db.Write(ctx, dbname, idx, time.Now().Unix(), store.Dim(), fileMeta); err != nil {
		return fmt.Errorf("mif-index: write: %w", err)
	}
	metrics.RecordPersistWrite(time.Since(wstart))

	fmt.Printf("wrote index %q: %d objects, numref=%d ki=%d\n", dbname, m, numref, ki)
	return nil
}

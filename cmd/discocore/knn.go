package main

import (
	"bufio"
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/therealutkarshpriyadarshi/discocore/pkg/discostore"
	"github.com/therealutkarshpriyadarshi/discocore/pkg/kdtree"
	"github.com/therealutkarshpriyadarshi/discocore/pkg/observability"
)

// newKNNCmd implements `knn <k> <query-file> <input-file...>`: build a
// k-d tree over the input files and answer an exact k-NN query for
// every vector in the query file, one result line per query on stdout
// (squared distances, ascending).
func newKNNCmd(metrics *observability.Metrics) *cobra.Command {
	var radius float64

	cmd := &cobra.Command{
		Use:   "knn <k> <query-file> <input-file...>",
		Short: "Answer exact k-NN queries with a k-d tree over DISCO files",
		Args:  cobra.MinimumNArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runKNN(cmd, args, radius, metrics)
		},
	}
	cmd.Flags().Float64Var(&radius, "radius", 0, "restrict results to squared distance <= radius (0 = unrestricted)")
	return cmd
}

func runKNN(cmd *cobra.Command, args []string, radius float64, metrics *observability.Metrics) error {
	log := observability.GetGlobalLogger()

	k, err := strconv.Atoi(args[0])
	if err != nil {
		return fmt.Errorf("knn: invalid k %q: %w", args[0], err)
	}
	queryFile := args[1]
	inputs := args[2:]

	store, files, err := discostore.OpenDiscoFiles(inputs)
	if err != nil {
		return fmt.Errorf("knn: %w", err)
	}
	defer func() {
		for _, f := range files {
			f.Close()
		}
	}()

	qstore, qfiles, err := discostore.OpenDiscoFiles([]string{queryFile})
	if err != nil {
		return fmt.Errorf("knn: %w", err)
	}
	defer func() {
		for _, f := range qfiles {
			f.Close()
		}
	}()
	if qstore.Dim() != store.Dim() {
		return fmt.Errorf("knn: query dimension %d does not match data dimension %d", qstore.Dim(), store.Dim())
	}
	if qstore.DescriptorID() != store.DescriptorID() {
		return fmt.Errorf("knn: query descriptor id %d does not match data descriptor id %d", qstore.DescriptorID(), store.DescriptorID())
	}

	tree := kdtree.New(store, kdtree.DefaultConfig())
	if _, err := tree.SetData(); err != nil {
		return fmt.Errorf("knn: %w", err)
	}
	if err := tree.InitNodes(); err != nil {
		return fmt.Errorf("knn: %w", err)
	}
	if err := tree.Build(false); err != nil {
		return fmt.Errorf("knn: build: %w", err)
	}

	n := qstore.NumObjects(0)
	log.Info("running knn queries", map[string]interface{}{
		"nquery": n, "k": k, "objects": store.TotalObjects(),
	})

	w := bufio.NewWriter(os.Stdout)
	defer w.Flush()

	query := make([]float64, store.Dim())
	for i := 0; i < n; i++ {
		row := qstore.Row(0, i)
		for j, v := range row {
			query[j] = float64(v)
		}
		ids, d2s, err := tree.SearchKNN(query, k, radius, false)
		if err != nil {
			return fmt.Errorf("knn: query %d: %w", i, err)
		}
		metrics.RecordTreeSearch(len(ids))
		fmt.Fprintf(w, "0.%d %d", i, len(ids))
		for j := range ids {
			fmt.Fprintf(w, " %d.%d %g", ids[j].Base, ids[j].Index, d2s[j])
		}
		fmt.Fprintln(w)
	}

	metrics.ObserveTreeProfile(observability.TreeProfile{
		VectorToVector: int64(tree.Profile.VectorToVector),
		VectorToNode:   int64(tree.Profile.VectorToNode),
		MeanComputed:   int64(tree.Profile.MeanComputed),
		HyperComputed:  int64(tree.Profile.HyperComputed),
		Searches:       int64(tree.Profile.Searches),
		Neighbours:     int64(tree.Profile.Neighbours),
		MaxStack:       tree.Profile.MaxStack,
	})
	return nil
}

// Command discocore bundles the mif-index, mif-query, and disco-trunc
// tools described by the CLI surface into a single cobra-based binary.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/therealutkarshpriyadarshi/discocore/pkg/observability"
)

var version = "0.1.0"

func main() {
	rootCmd := &cobra.Command{
		Use:   "discocore",
		Short: "K-d tree and metric inverted file tools for DISCO-format vector data",
		Long: `discocore builds and queries k-nearest-neighbour indexes over
DISCO-format vector files: a metric inverted file (mif-index, mif-query),
an exact k-d tree search (knn), and a file-truncation utility (disco-trunc).`,
	}

	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("discocore v%s\n", version)
		},
	})

	metrics := observability.NewMetrics()
	rootCmd.AddCommand(newMifIndexCmd(metrics))
	rootCmd.AddCommand(newMifQueryCmd(metrics))
	rootCmd.AddCommand(newKNNCmd(metrics))
	rootCmd.AddCommand(newDiscoTruncCmd())

	if err := rootCmd.Execute(); err != nil {
		observability.GetGlobalLogger().Error(err.Error())
		os.Exit(1)
	}
}

package main

import (
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/therealutkarshpriyadarshi/discocore/pkg/discostore"
)

// newDiscoTruncCmd implements `disco-trunc <nvec> <in> [<out>]`:
// write the first nvec vectors of in, with an adjusted header, to out
// (default stdout).
func newDiscoTruncCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "disco-trunc <nvec> <in> [<out>]",
		Short: "Write a DISCO file containing the first nvec vectors of another",
		Args:  cobra.RangeArgs(2, 3),
		RunE: func(cmd *cobra.Command, args []string) error {
			nvec, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("disco-trunc: invalid nvec %q: %w", args[0], err)
			}
			in := args[1]

			if len(args) == 3 {
				return discostore.TruncateDiscoFile(in, nvec, args[2])
			}
			return discostore.TruncateDiscoStream(in, nvec, os.Stdout)
		},
	}
}

// Command labctl runs simulations, timelines, chat questions and evaluations against the
// configured store without starting the API server.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "labctl",
		Short:         "Operate the lever experiment analytics engine",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(newSimulateCmd(), newTimelineCmd(), newAskCmd(), newEvalCmd())
	return root
}

package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/lever-lab/backend/internal/evaluation"
)

func newEvalCmd() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "eval <dataset.json>",
		Short: "Replay a question dataset through the chat pipeline and score the answers",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("failed to read dataset: %w", err)
			}
			dataset, err := evaluation.LoadDataset(data)
			if err != nil {
				return err
			}

			services, err := openServices()
			if err != nil {
				return err
			}
			defer services.Close()

			report, err := evaluation.NewEvaluator(services.Pipeline).Run(cmd.Context(), dataset)
			if err != nil {
				return err
			}

			if asJSON {
				return writeJSON(cmd.OutOrStdout(), report)
			}
			fmt.Fprint(cmd.OutOrStdout(), report.String())
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "print the full report as JSON")
	return cmd
}

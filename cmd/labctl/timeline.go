package main

import (
	"github.com/spf13/cobra"

	"github.com/lever-lab/backend/internal/timeline"
)

func newTimelineCmd() *cobra.Command {
	var f timeline.Filter

	cmd := &cobra.Command{
		Use:   "timeline",
		Short: "Align lever and control series for one filter set",
		RunE: func(cmd *cobra.Command, args []string) error {
			services, err := openServices()
			if err != nil {
				return err
			}
			defer services.Close()

			res, err := services.Aligner.Align(cmd.Context(), f)
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), res)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&f.Typology, "typology", "", "store typology")
	flags.StringVar(&f.Source, "source", "", "data source, e.g. Sell In or Sell Out")
	flags.StringVar(&f.Unit, "unit", "", "measurement unit")
	flags.StringVar(&f.Category, "category", "", "product category")
	flags.StringVar(&f.Lever, "lever", "", "lever")

	return cmd
}

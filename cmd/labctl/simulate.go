package main

import (
	"github.com/spf13/cobra"

	"github.com/lever-lab/backend/internal/simulation"
)

func newSimulateCmd() *cobra.Command {
	var in simulation.Input
	var size string

	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Project uplift, ROI and payback for a set of levers",
		RunE: func(cmd *cobra.Command, args []string) error {
			services, err := openServices()
			if err != nil {
				return err
			}
			defer services.Close()

			in.StoreSize = simulation.StoreSize(size)
			res, err := services.Calculator.Simulate(cmd.Context(), in)
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), res)
		},
	}

	f := cmd.Flags()
	f.StringVar(&in.Typology, "typology", "", "store typology")
	f.StringSliceVar(&in.Levers, "lever", nil, "lever to deploy (repeatable)")
	f.StringVar(&size, "size", string(simulation.SizeMedium), "store size: Pequeño, Mediano or Grande")
	f.Float64Var(&in.MarginPct, "margin", 35, "gross margin percentage")
	f.Float64Var(&in.FXRate, "fx", 1, "local currency units per base currency unit")
	f.Float64Var(&in.Features.OwnFacings, "own-facings", 0, "own facings")
	f.Float64Var(&in.Features.CompetitorFacings, "competitor-facings", 0, "competitor facings")
	f.Float64Var(&in.Features.OwnSKUs, "own-skus", 0, "own SKUs")
	f.Float64Var(&in.Features.CompetitorSKUs, "competitor-skus", 0, "competitor SKUs")
	f.Float64Var(&in.Features.OwnCoolers, "own-coolers", 0, "own cold equipment")
	f.Float64Var(&in.Features.CompetitorCoolers, "competitor-coolers", 0, "competitor cold equipment")
	f.Float64Var(&in.Features.OwnDoors, "own-doors", 0, "own cooler doors")
	f.Float64Var(&in.Features.CompetitorDoors, "competitor-doors", 0, "competitor cooler doors")

	_ = cmd.MarkFlagRequired("typology")
	_ = cmd.MarkFlagRequired("lever")

	return cmd
}

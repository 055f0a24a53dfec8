package main

import (
	"github.com/spf13/cobra"

	"github.com/danielpatrickdp/lineage-bridge/internal/app"
	"github.com/danielpatrickdp/lineage-bridge/internal/fixture"
)

var seedCmd = &cobra.Command{
	Use:   "seed <fixture.yaml>",
	Short: "Load stage and catalog rows from a fixture file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		fx, err := fixture.Load(args[0])
		if err != nil {
			return err
		}
		a, err := app.Open(cfg, nil, newLogger(cfg))
		if err != nil {
			return err
		}
		defer a.Close()

		n, err := fixture.Apply(cmd.Context(), fx, a.Stages, a.Catalog)
		if err != nil {
			return err
		}
		cmd.Printf("seeded %d stage rows and %d catalog rows\n", n.Stage, n.Catalog)
		return nil
	},
}

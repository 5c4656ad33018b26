package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/socialseed/graphseed/internal/common"
	"github.com/socialseed/graphseed/internal/common/app"
	"github.com/socialseed/graphseed/internal/common/util"
	"github.com/socialseed/graphseed/internal/graphseed/graphstore"
	"github.com/socialseed/graphseed/internal/graphseed/seeder"
)

func runCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Generates every population, loads it and computes the aggregates",
		RunE:  runSeeder,
	}
	cmd.Flags().Bool("reset", false, "Remove every node and edge from the graph store before seeding")
	return cmd
}

func runSeeder(cmd *cobra.Command, _ []string) error {
	reset, err := cmd.Flags().GetBool("reset")
	if err != nil {
		return err
	}
	config, err := loadConfig()
	if err != nil {
		return err
	}
	stopMetrics := common.ServeMetrics(config.Metrics.Port)
	defer stopMetrics()

	ctx := app.CreateContextWithShutdown()
	store, err := graphstore.Open(ctx, config.Store)
	if err != nil {
		return err
	}
	defer util.CloseResource("store", store)

	runner, err := seeder.NewRunner(config, store, &util.DefaultClock{})
	if err != nil {
		return err
	}
	defer util.CloseResource("seeder", runner)

	report, err := runner.Run(ctx, reset)
	fmt.Fprint(cmd.OutOrStdout(), report)
	return err
}

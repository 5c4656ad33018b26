package cmd

import (
	"github.com/spf13/cobra"

	"github.com/socialseed/graphseed/internal/common/app"
	"github.com/socialseed/graphseed/internal/common/util"
	"github.com/socialseed/graphseed/internal/graphseed/graphstore"
	"github.com/socialseed/graphseed/internal/graphseed/seeder"
)

func aggregateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "aggregate",
		Short: "Recomputes degree counts and interpolated dates over the data already in the graph store",
		RunE:  runAggregates,
	}
	return cmd
}

func runAggregates(_ *cobra.Command, _ []string) error {
	config, err := loadConfig()
	if err != nil {
		return err
	}
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

	if err := runner.Prepare(ctx, false); err != nil {
		return err
	}
	return runner.Aggregate(ctx)
}

package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/socialseed/graphseed/internal/common/app"
	"github.com/socialseed/graphseed/internal/common/util"
	"github.com/socialseed/graphseed/internal/graphseed/graphstore"
	"github.com/socialseed/graphseed/internal/graphseed/seeder"
)

func loadCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "load [phase]",
		Short: "Resumes loading the artifacts left in the manifest by an interrupted or failed phase",
		Long: "Resumes loading the artifacts left in the manifest by an interrupted or failed phase.\n" +
			"Without a phase, the one that generated the manifest is used. A phase that does not match the manifest is refused.",
		Example: "  graphseed load\n" +
			"  graphseed load FRIEND_OF",
		Args: cobra.MaximumNArgs(1),
		RunE: resumeLoad,
	}
	return cmd
}

func resumeLoad(cmd *cobra.Command, args []string) error {
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

	var phase seeder.Phase
	if len(args) == 0 {
		if phase, err = runner.PendingPhase(); err != nil {
			return err
		}
	} else {
		var ok bool
		if phase, ok = runner.LookupPhase(args[0]); !ok {
			return fmt.Errorf("unknown phase %q", args[0])
		}
	}
	if err := runner.Prepare(ctx, false); err != nil {
		return err
	}
	result, err := runner.Load(ctx, phase)
	if result != nil {
		fmt.Fprintf(cmd.OutOrStdout(), "%s: %d of %d artifacts loaded, %d retries\n", phase.Name, result.Loaded, result.Total, result.Retries)
	}
	return err
}

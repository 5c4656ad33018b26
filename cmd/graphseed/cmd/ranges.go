package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/socialseed/graphseed/internal/common"
	"github.com/socialseed/graphseed/internal/common/util"
	"github.com/socialseed/graphseed/internal/graphseed/partition"
)

func rangesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ranges",
		Short: "Prints how a population would be partitioned across generation tasks",
		PreRun: func(*cobra.Command, []string) {
			common.ConfigureCommandLineLogging()
		},
		RunE: printRanges,
	}
	cmd.Flags().Int64("total", 0, "Size of the population")
	cmd.Flags().Int("workers", 0, "Number of workers, 0 means one per cpu")
	_ = cmd.MarkFlagRequired("total")
	return cmd
}

func printRanges(cmd *cobra.Command, _ []string) error {
	total, err := cmd.Flags().GetInt64("total")
	if err != nil {
		return err
	}
	workers, err := cmd.Flags().GetInt("workers")
	if err != nil {
		return err
	}
	ranges, err := partition.CalculateRanges(total, workers)
	if err != nil {
		return err
	}
	w := util.NewTabbedStringBuilder(1, 1, 2, ' ', 0)
	w.Row("INDEX", "START", "END", "SIZE")
	for i, r := range ranges {
		w.Row(i, r.Start, r.End, r.Len())
	}
	fmt.Fprint(cmd.OutOrStdout(), w.String())
	fmt.Fprintf(cmd.OutOrStdout(), "%d ranges of up to %d for %d workers\n", len(ranges), ranges[0].Len(), partition.Workers(workers))
	return nil
}

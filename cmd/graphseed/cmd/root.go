package cmd

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/socialseed/graphseed/internal/common"
	commonconfig "github.com/socialseed/graphseed/internal/common/config"
	"github.com/socialseed/graphseed/internal/graphseed/configuration"
)

const (
	CustomConfigLocation string = "config"
	DefaultConfigPath    string = "./config/graphseed"
)

// RootCmd is the root Cobra command that gets called from the main func.
// All other sub-commands should be registered here.
func RootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:          "graphseed",
		SilenceUsage: true,
		Short:        "graphseed generates a synthetic social graph and loads it into a graph store",
	}

	cmd.PersistentFlags().StringSlice(
		CustomConfigLocation,
		[]string{},
		"Fully qualified path to application configuration file (for multiple config files repeat this arg or separate paths with commas)")
	_ = viper.BindPFlag(CustomConfigLocation, cmd.PersistentFlags().Lookup(CustomConfigLocation))

	cmd.AddCommand(
		runCmd(),
		loadCmd(),
		aggregateCmd(),
		rangesCmd(),
	)

	return cmd
}

func loadConfig() (configuration.Configuration, error) {
	var config configuration.Configuration
	userSpecifiedConfigs := viper.GetStringSlice(CustomConfigLocation)

	common.LoadConfig(&config, DefaultConfigPath, userSpecifiedConfigs)

	err := config.Validate()
	if err != nil {
		commonconfig.LogValidationErrors(err)
	}
	return config, err
}

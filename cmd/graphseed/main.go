package main

import (
	"os"

	"github.com/socialseed/graphseed/cmd/graphseed/cmd"
	"github.com/socialseed/graphseed/internal/common"
)

func main() {
	common.ConfigureLogging()
	if err := cmd.RootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

package main

import (
	"os"

	"github.com/kuhlman-labs/team-migrator/internal/cli"
)

func main() {
	if err := cli.NewRootCommand(cli.DefaultEnvFactory).Execute(); err != nil {
		os.Exit(1)
	}
}

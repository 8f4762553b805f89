// signet inspects the rollup system constants and builds blocks from
// pending transactions and bundles with the simulator.
package main

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v2"
	_ "go.uber.org/automaxprocs"
)

var app = &cli.App{
	Name:  "signet",
	Usage: "rollup block execution and simulation tool",
	Flags: []cli.Flag{
		configFileFlag,
		verbosityFlag,
		logFormatFlag,
		logFileFlag,
	},
	Before: setupLogging,
	Commands: []*cli.Command{
		constantsCommand,
		dumpConfigCommand,
		buildCommand,
	},
}

func main() {
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

package main

import (
	"github.com/signetlabs/signet-node/params"
	"github.com/urfave/cli/v2"
)

var (
	configFileFlag = &cli.StringFlag{
		Name:  "config",
		Usage: "TOML or YAML configuration file",
	}
	verbosityFlag = &cli.IntFlag{
		Name:  "verbosity",
		Usage: "Logging verbosity: 0=silent, 1=error, 2=warn, 3=info, 4=debug, 5=detail",
		Value: 3,
	}
	logFormatFlag = &cli.StringFlag{
		Name:  "log.format",
		Usage: "Log format to use (json|terminal)",
		Value: "terminal",
	}
	logFileFlag = &cli.StringFlag{
		Name:  "log.file",
		Usage: "Write logs to a file, rotated by size",
	}

	simCapacityFlag = &cli.IntFlag{
		Name:  "sim.capacity",
		Usage: "Maximum number of cached transactions and bundles",
	}
	simConcurrencyFlag = &cli.IntFlag{
		Name:  "sim.concurrency",
		Usage: "Number of candidates simulated per round",
	}
	simDeadlineFlag = &cli.DurationFlag{
		Name:  "sim.deadline",
		Usage: "Time budget for building a block",
	}
	simMaxGasFlag = &cli.Uint64Flag{
		Name:  "sim.maxgas",
		Usage: "Rollup gas budget of a block",
	}
	simMaxHostGasFlag = &cli.Uint64Flag{
		Name:  "sim.maxhostgas",
		Usage: "Host gas budget of a block",
	}
)

var simFlags = []cli.Flag{
	simCapacityFlag,
	simConcurrencyFlag,
	simDeadlineFlag,
	simMaxGasFlag,
	simMaxHostGasFlag,
}

// loadConfig reads the config file, if any, and applies flag overrides.
func loadConfig(ctx *cli.Context) (*params.Config, error) {
	cfg := params.DefaultConfig()
	if file := ctx.String(configFileFlag.Name); file != "" {
		var err error
		if cfg, err = params.LoadConfig(file); err != nil {
			return nil, err
		}
	}
	if ctx.IsSet(simCapacityFlag.Name) {
		cfg.Sim.Capacity = ctx.Int(simCapacityFlag.Name)
	}
	if ctx.IsSet(simConcurrencyFlag.Name) {
		cfg.Sim.Concurrency = ctx.Int(simConcurrencyFlag.Name)
	}
	if ctx.IsSet(simDeadlineFlag.Name) {
		cfg.Sim.Deadline = params.Duration{Duration: ctx.Duration(simDeadlineFlag.Name)}
	}
	if ctx.IsSet(simMaxGasFlag.Name) {
		cfg.Sim.MaxGas = ctx.Uint64(simMaxGasFlag.Name)
	}
	if ctx.IsSet(simMaxHostGasFlag.Name) {
		cfg.Sim.MaxHostGas = ctx.Uint64(simMaxHostGasFlag.Name)
	}
	return cfg, nil
}

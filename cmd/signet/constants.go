package main

import (
	"fmt"
	"os"
	"strconv"

	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"
	"github.com/signetlabs/signet-node/params"
	"github.com/urfave/cli/v2"
)

var (
	constantsCommand = &cli.Command{
		Name:   "constants",
		Usage:  "Print and validate the system constants",
		Action: printConstants,
	}
	dumpConfigCommand = &cli.Command{
		Name:   "dumpconfig",
		Usage:  "Print the effective configuration as TOML",
		Flags:  simFlags,
		Action: dumpConfig,
	}
)

func printConstants(ctx *cli.Context) error {
	cfg, err := loadConfig(ctx)
	if err != nil {
		return err
	}
	c := &cfg.Constants

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Chain", "Name", "Value"})
	table.SetAutoMergeCells(true)
	host := "host " + strconv.FormatUint(c.Host.ChainID, 10)
	rollup := "rollup " + strconv.FormatUint(c.Rollup.ChainID, 10)
	table.AppendBulk([][]string{
		{host, "deploy height", strconv.FormatUint(c.Host.DeployHeight, 10)},
		{host, "zenith", c.Host.Zenith.Hex()},
		{host, "orders", c.Host.Orders.Hex()},
		{host, "passage", c.Host.Passage.Hex()},
		{host, "transactor", c.Host.Transactor.Hex()},
		{host, "usdc", c.Host.Tokens.USDC.Hex()},
		{host, "usdt", c.Host.Tokens.USDT.Hex()},
		{host, "wbtc", c.Host.Tokens.WBTC.Hex()},
	})
	for _, rec := range c.Host.USD {
		table.Append([]string{host, fmt.Sprintf("usd %s (%d)", rec.Name, rec.Decimals), rec.Token.Hex()})
	}
	table.AppendBulk([][]string{
		{rollup, "orders", c.Rollup.Orders.Hex()},
		{rollup, "passage", c.Rollup.Passage.Hex()},
		{rollup, "base fee recipient", c.Rollup.BaseFeeRecipient.Hex()},
		{rollup, "usdc", c.Rollup.Tokens.USDC.Hex()},
		{rollup, "usdt", c.Rollup.Tokens.USDT.Hex()},
		{rollup, "wbtc", c.Rollup.Tokens.WBTC.Hex()},
		{rollup, "minter", params.MinterAddress.Hex()},
	})
	table.Render()

	if err := c.Validate(); err != nil {
		fmt.Println(color.RedString("invalid: %v", err))
		return err
	}
	fmt.Println(color.GreenString("constants ok"))
	return nil
}

func dumpConfig(ctx *cli.Context) error {
	cfg, err := loadConfig(ctx)
	if err != nil {
		return err
	}
	out, err := params.DumpConfig(cfg)
	if err != nil {
		return err
	}
	_, err = os.Stdout.Write(out)
	return err
}

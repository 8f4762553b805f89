package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/ethereum/go-ethereum/log"
	"github.com/mattn/go-colorable"
	"github.com/mattn/go-isatty"
	"github.com/urfave/cli/v2"
	"gopkg.in/natefinch/lumberjack.v2"
)

func setupLogging(ctx *cli.Context) error {
	var (
		level  = log.FromLegacyLevel(ctx.Int(verbosityFlag.Name))
		output io.Writer
		color  bool
	)
	if file := ctx.String(logFileFlag.Name); file != "" {
		output = &lumberjack.Logger{
			Filename:   file,
			MaxSize:    100, // megabytes
			MaxBackups: 10,
			Compress:   true,
		}
	} else {
		color = isatty.IsTerminal(os.Stderr.Fd()) && os.Getenv("TERM") != "dumb"
		output = os.Stderr
		if color {
			output = colorable.NewColorableStderr()
		}
	}

	var handler slog.Handler
	switch format := ctx.String(logFormatFlag.Name); format {
	case "json":
		handler = log.JSONHandlerWithLevel(output, level)
	case "terminal", "":
		handler = log.NewTerminalHandlerWithLevel(output, level, color)
	default:
		return fmt.Errorf("unknown log format %q", format)
	}
	log.SetDefault(log.NewLogger(handler))
	return nil
}

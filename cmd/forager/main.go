package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/jessevdk/go-flags"
)

type options struct {
	Config   string `short:"c" long:"config" env:"FORAGER_CONFIG" default:"config.yaml" description:"Path to the application config file"`
	LogLevel string `long:"log-level" env:"LOG_LEVEL" choice:"debug" choice:"info" choice:"warn" choice:"error" description:"Override log_level from the config file"`
}

func main() {
	var opts options

	parser := flags.NewParser(&opts, flags.Default)
	parser.SubcommandsOptional = false

	mustAdd(parser.AddCommand("sync",
		"Reconcile the subscriptions file into storage",
		"Create, update and optionally delete feeds so storage matches the subscriptions file.",
		&syncCommand{opts: &opts}))
	mustAdd(parser.AddCommand("fetch",
		"Fetch every enabled subscription once",
		"Fetch all enabled feeds from the subscriptions file and store new articles.",
		&fetchCommand{opts: &opts}))
	mustAdd(parser.AddCommand("preview",
		"Fetch a feed and print its entries without storing them",
		"Download and parse a single feed URL and print what would be ingested.",
		&previewCommand{opts: &opts}))
	mustAdd(parser.AddCommand("serve",
		"Run the HTTP API and the periodic fetch scheduler",
		"Serve the REST API and run a reconcile-and-fetch cycle on every sync interval.",
		&serveCommand{opts: &opts}))

	if _, err := parser.Parse(); err != nil {
		var flagsErr *flags.Error
		if errors.As(err, &flagsErr) && flagsErr.Type == flags.ErrHelp {
			os.Exit(0)
		}
		os.Exit(1)
	}
}

func mustAdd(_ *flags.Command, err error) {
	if err != nil {
		panic(fmt.Sprintf("register command: %v", err))
	}
}

func setupLogger(level string) *slog.Logger {
	var logLevel slog.Level
	switch level {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: logLevel}
	handler := slog.NewJSONHandler(os.Stdout, opts)
	return slog.New(handler)
}

package main

import (
	"errors"
	"fmt"
	"io"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

type options struct {
	ConfigDir string
	Scenario  string
	Console   bool
	Version   bool
}

// parseFlags reads the command line. Log flags are bound into viper so they
// win over the config file only when given.
func parseFlags(args []string, stderr io.Writer) (options, error) {
	var opts options

	fs := pflag.NewFlagSet(AppName, pflag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVarP(&opts.ConfigDir, "config", "c", ".", "directory holding "+configFileHint)
	fs.StringVarP(&opts.Scenario, "scenario", "s", "", "scenario YAML to replay (required)")
	fs.BoolVar(&opts.Console, "console", false, "log to stdout instead of the rotating log file")
	fs.BoolVar(&opts.Version, "version", false, "print version and exit")
	fs.String("log-level", "info", "debug, info, warn or error")
	fs.String("logs-dir", "./logs", "directory for log and backup files")

	if err := fs.Parse(args); err != nil {
		return opts, err
	}
	if err := viper.BindPFlag("logLevel", fs.Lookup("log-level")); err != nil {
		return opts, err
	}
	if err := viper.BindPFlag("logsDir", fs.Lookup("logs-dir")); err != nil {
		return opts, err
	}

	if opts.Version {
		return opts, nil
	}
	switch {
	case opts.Scenario == "" && fs.NArg() == 1:
		opts.Scenario = fs.Arg(0)
	case fs.NArg() > 0:
		return opts, fmt.Errorf("unexpected arguments: %v", fs.Args())
	}
	if opts.Scenario == "" {
		return opts, errors.New("no scenario given, pass --scenario <file>")
	}
	return opts, nil
}

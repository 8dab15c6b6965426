// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package cmd

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/mattn/go-colorable"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "owbus",
	Short: "1-wire bus tool",
	Long: `Enumerate and talk to 1-wire buses reached through HA7Net Ethernet
adapters or the Linux w1 kernel subsystem.

Buses come from the YAML file given with --config:

  buses:
    - name: cellar
      type: ha7net
      endpoint: 192.168.1.50
      timeout: 5s
    - name: local
      type: w1
      master: 1

or from --ha7 and --w1.`,
	SilenceUsage:      true,
	PersistentPreRunE: setup,
}

var (
	configPath string
	ha7Flags   []string
	w1Flags    []uint
	busFlags   []string
	timeout    time.Duration
	retries    uint
	debug      bool
)

// Set by setup.
var (
	cfg    *Config
	logger *slog.Logger
	policy *retryPolicy
)

// Execute adds all child commands to the root command and runs it.
func Execute(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}

func init() {
	f := rootCmd.PersistentFlags()
	f.StringVarP(&configPath, "config", "c", "", "YAML file listing the buses")
	f.StringSliceVar(&ha7Flags, "ha7", nil, "HA7Net endpoint (host[:port]), may be repeated")
	f.UintSliceVar(&w1Flags, "w1", nil, "w1 kernel bus master id, may be repeated")
	f.StringSliceVarP(&busFlags, "bus", "b", nil, "buses to use, all when empty")
	f.DurationVar(&timeout, "timeout", 0, "per read timeout, overrides the configured ones")
	f.UintVar(&retries, "retries", 2, "retries on adapter failures")
	f.BoolVarP(&debug, "debug", "d", false, "debug logging")
}

func setup(cmd *cobra.Command, args []string) error {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	out := os.Stdout
	if !isatty.IsTerminal(out.Fd()) && !isatty.IsCygwinTerminal(out.Fd()) {
		color.NoColor = true
	}
	cmd.SetOut(colorable.NewColorable(out))

	c, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	c.addFlags(ha7Flags, w1Flags)
	c.applyTimeout(timeout)
	cfg = c
	policy = &retryPolicy{retries: retries, delay: 200 * time.Millisecond, logger: logger}
	if len(cfg.Buses) == 0 && cmd.Annotations[annotationNoBus] != "" {
		return nil
	}
	if err := cfg.validate(); err != nil {
		return err
	}
	return registerBuses(cfg, logger)
}

// annotationNoBus marks commands that work without any configured bus.
const annotationNoBus = "nobus"

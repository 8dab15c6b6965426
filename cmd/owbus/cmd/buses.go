// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package cmd

import (
	"fmt"
	"strings"

	"github.com/GermanBionicSystems/owfs/w1netlink"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"periph.io/x/conn/v3/onewire/onewirereg"
	"periph.io/x/host/v3"
)

var busesCmd = &cobra.Command{
	Use:         "buses",
	Short:       "list the known 1-wire buses",
	Long:        `List the configured buses and the 1-wire buses registered by the periph host drivers.`,
	Args:        cobra.NoArgs,
	Annotations: map[string]string{annotationNoBus: "1"},
	RunE: func(cmd *cobra.Command, args []string) error {
		if _, err := host.Init(); err != nil {
			logger.Debug("host.Init", "err", err)
		}
		configured := map[string]string{}
		for _, b := range cfg.Buses {
			configured[b.Name] = b.String()
		}
		name := color.New(color.Bold).SprintFunc()
		out := cmd.OutOrStdout()
		for _, r := range onewirereg.All() {
			desc, ok := configured[r.Name]
			if !ok {
				desc = r.Name + " (host)"
				if r.Number != -1 {
					desc += fmt.Sprintf(" #%d", r.Number)
				}
			}
			if len(r.Aliases) != 0 {
				desc += " aka " + strings.Join(r.Aliases, ", ")
			}
			fmt.Fprintf(out, "%s\t%s\n", name(r.Name), desc)
		}
		return nil
	},
}

var mastersCmd = &cobra.Command{
	Use:         "masters",
	Short:       "list the Linux w1 bus masters",
	Args:        cobra.NoArgs,
	Annotations: map[string]string{annotationNoBus: "1"},
	RunE: func(cmd *cobra.Command, args []string) error {
		ids, err := w1netlink.Masters(&w1netlink.Opts{Timeout: timeout, Logger: logger})
		if err != nil {
			return err
		}
		for _, id := range ids {
			fmt.Fprintf(cmd.OutOrStdout(), "%d\n", id)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(busesCmd)
	rootCmd.AddCommand(mastersCmd)
}

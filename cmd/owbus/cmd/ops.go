// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/GermanBionicSystems/owfs/common"
	"github.com/GermanBionicSystems/owfs/owbus"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"periph.io/x/conn/v3/onewire"
)

var (
	okColor   = color.New(color.FgGreen).SprintFunc()
	failColor = color.New(color.FgRed).SprintFunc()
	busColor  = color.New(color.FgCyan, color.Bold).SprintFunc()
)

var detectCmd = &cobra.Command{
	Use:   "detect",
	Short: "detect the adapters of the selected buses",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return eachBus(cmd, func(ctx context.Context, out io.Writer, bus *owbus.Bus) error {
			c := bus.Conn()
			fmt.Fprintf(out, "%s\t%s mode=%s bundling=%d\n", busColor(c.Name), c.AdapterName, c.Mode, c.BundlingLength)
			return nil
		})
	},
}

var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "reset the selected buses",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return eachBus(cmd, func(ctx context.Context, out io.Writer, bus *owbus.Bus) error {
			err := policy.do(ctx, "reset", func() error {
				return bus.Tx(nil, nil, onewire.WeakPullup)
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "%s\t%s\n", busColor(bus.Conn().Name), okColor("reset"))
			return nil
		})
	},
}

var alarmOnly bool

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "enumerate the devices of the selected buses",
	Long:  `Search every selected bus concurrently and print the device addresses found.`,
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		buses, err := cfg.find(busFlags)
		if err != nil {
			return err
		}
		type result struct {
			addrs []onewire.Address
			err   error
		}
		results := make([]result, len(buses))
		g, ctx := errgroup.WithContext(cmd.Context())
		for i, b := range buses {
			i, b := i, b
			g.Go(func() error {
				bus, err := openBus(ctx, policy, b.Name)
				if err != nil {
					results[i].err = err
					return nil
				}
				defer bus.Close()
				results[i].err = policy.do(ctx, "search", func() error {
					var err error
					results[i].addrs, err = bus.Search(alarmOnly)
					return err
				})
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		failed := 0
		for i, b := range buses {
			r := results[i]
			fmt.Fprintf(out, "%s\t%d device(s)\n", busColor(b.Name), len(r.addrs))
			for _, a := range r.addrs {
				fmt.Fprintf(out, "  %s\tfamily %02X\n", common.EncodeAddress(a), common.Family(a))
			}
			if r.err != nil {
				failed++
				fmt.Fprintf(out, "  %s %v\n", failColor("error:"), r.err)
			}
		}
		if failed != 0 {
			return fmt.Errorf("%d of %d bus(es) failed", failed, len(buses))
		}
		return nil
	},
}

var touchCmd = &cobra.Command{
	Use:   "touch <address> <hexdata>",
	Short: "send data to a device and print the bytes read back",
	Long: `Address the device and exchange the bytes given in hex for as many bytes read
back. Use FF for read slots. The address is the 16 hex digits printed by list.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		addr, w, err := parseTouch(args[0], args[1])
		if err != nil {
			return err
		}
		buses, err := cfg.find(busFlags)
		if err != nil {
			return err
		}
		if len(buses) != 1 {
			return errors.New("select a single bus with --bus")
		}
		ctx := cmd.Context()
		bus, err := openBus(ctx, policy, buses[0].Name)
		if err != nil {
			return err
		}
		defer bus.Close()
		r := make([]byte, len(w))
		err = policy.do(ctx, "touch", func() error {
			return bus.SelectAndSendback(addr, w, r)
		})
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), common.EncodeData(r))
		return nil
	},
}

// parseTouch decodes the arguments of the touch command.
func parseTouch(address, data string) (onewire.Address, []byte, error) {
	address = strings.ToUpper(address)
	data = strings.ToUpper(data)
	if len(address) != common.AddressHexLen {
		return 0, nil, fmt.Errorf("address %q: want %d hex digits", address, common.AddressHexLen)
	}
	addr, err := common.DecodeAddress(address)
	if err != nil {
		return 0, nil, err
	}
	if !common.ValidAddress(addr) {
		return 0, nil, fmt.Errorf("address %q: %w", address, common.ErrCRC)
	}
	if len(data) == 0 || len(data)%2 != 0 {
		return 0, nil, fmt.Errorf("data %q: want an even number of hex digits", data)
	}
	w := make([]byte, len(data)/2)
	if err := common.DecodeData(data, w); err != nil {
		return 0, nil, err
	}
	return addr, w, nil
}

// eachBus opens the selected buses in turn and runs fn on them.
func eachBus(cmd *cobra.Command, fn func(ctx context.Context, out io.Writer, bus *owbus.Bus) error) error {
	buses, err := cfg.find(busFlags)
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	out := cmd.OutOrStdout()
	var errs []error
	for _, b := range buses {
		bus, err := openBus(ctx, policy, b.Name)
		if err == nil {
			err = fn(ctx, out, bus)
			bus.Close()
		}
		if err != nil {
			fmt.Fprintf(out, "%s\t%s %v\n", busColor(b.Name), failColor("error:"), err)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func init() {
	listCmd.Flags().BoolVarP(&alarmOnly, "alarm", "a", false, "only devices in alarm state")
	rootCmd.AddCommand(detectCmd)
	rootCmd.AddCommand(resetCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(touchCmd)
}

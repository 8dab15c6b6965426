// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/GermanBionicSystems/owfs/ha7net"
	"github.com/GermanBionicSystems/owfs/owbus"
	"github.com/GermanBionicSystems/owfs/w1netlink"
	"github.com/avast/retry-go"
	"periph.io/x/conn/v3/onewire"
	"periph.io/x/conn/v3/onewire/onewirereg"
)

// newAdapter returns the adapter described by b and the connection name.
func newAdapter(b BusConfig, logger *slog.Logger) (owbus.Adapter, string, error) {
	switch b.Type {
	case TypeHA7Net:
		a, err := ha7net.New(b.Endpoint, &ha7net.Opts{Timeout: b.Timeout, Logger: logger})
		if err != nil {
			return nil, "", err
		}
		return a, b.Endpoint, nil
	case TypeW1:
		a, err := w1netlink.New(b.Master, &w1netlink.Opts{Timeout: b.Timeout, Logger: logger})
		if err != nil {
			return nil, "", err
		}
		return a, fmt.Sprintf("%d", b.Master), nil
	default:
		return nil, "", fmt.Errorf("unknown bus type %q", b.Type)
	}
}

// registerBuses makes every configured bus available through onewirereg.
func registerBuses(cfg *Config, logger *slog.Logger) error {
	for _, b := range cfg.Buses {
		opener := func() (onewire.BusCloser, error) {
			a, name, err := newAdapter(b, logger.With("bus", b.Name))
			if err != nil {
				return nil, err
			}
			bus, err := owbus.Open(a, owbus.NewConn(name))
			if err != nil {
				return nil, err
			}
			return bus, nil
		}
		if _, registered := lookupRef(b.Name); registered {
			continue
		}
		if err := onewirereg.Register(b.Name, nil, -1, opener); err != nil {
			return err
		}
	}
	return nil
}

func lookupRef(name string) (*onewirereg.Ref, bool) {
	for _, r := range onewirereg.All() {
		if r.Name == name {
			return r, true
		}
	}
	return nil, false
}

// retryPolicy runs f up to retries+1 times. Only adapter failures are retried;
// configuration and usage errors are returned immediately.
type retryPolicy struct {
	retries uint
	delay   time.Duration
	logger  *slog.Logger
}

func (p *retryPolicy) do(ctx context.Context, op string, f func() error) error {
	return retry.Do(f,
		retry.Context(ctx),
		retry.Attempts(p.retries+1),
		retry.Delay(p.delay),
		retry.DelayType(retry.BackOffDelay),
		retry.RetryIf(func(err error) bool {
			return owbus.IsConnect(err) || owbus.IsTransmit(err) || owbus.IsProtocol(err)
		}),
		retry.OnRetry(func(n uint, err error) {
			p.logger.Warn("attempt failed", "op", op, "attempt", n+1, "err", err)
		}),
		retry.LastErrorOnly(true),
	)
}

// openBus opens a registered bus, retrying transient adapter failures.
func openBus(ctx context.Context, p *retryPolicy, name string) (*owbus.Bus, error) {
	var bus *owbus.Bus
	err := p.do(ctx, "open "+name, func() error {
		bc, err := onewirereg.Open(name)
		if err != nil {
			return err
		}
		b, ok := bc.(*owbus.Bus)
		if !ok {
			bc.Close()
			return fmt.Errorf("bus %q is not an owbus bus", name)
		}
		bus = b
		return nil
	})
	return bus, err
}

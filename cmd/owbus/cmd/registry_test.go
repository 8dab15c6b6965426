// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package cmd

import (
	"bufio"
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/GermanBionicSystems/owfs/owbus"
)

// serveEmptyBus answers every HA7Net request with an empty result page.
func serveEmptyBus(t *testing.T) string {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { l.Close() })
	go func() {
		for {
			c, err := l.Accept()
			if err != nil {
				return
			}
			go func() {
				defer c.Close()
				r := bufio.NewReader(c)
				// Request line and the blank line after it.
				for {
					line, err := r.ReadString('\n')
					if err != nil || strings.TrimSpace(line) == "" {
						break
					}
				}
				io.WriteString(c, "HTTP/1.1 200 OK\r\nContent-Type: text/html\r\n\r\n<html><body></body></html>")
			}()
		}
	}()
	return l.Addr().String()
}

func TestRegisterAndOpen(t *testing.T) {
	cfg := &Config{Buses: []BusConfig{{Name: "test-ha7", Type: TypeHA7Net, Endpoint: serveEmptyBus(t), Timeout: time.Second}}}
	if err := cfg.validate(); err != nil {
		t.Fatal(err)
	}
	l := slog.New(slog.NewTextHandler(io.Discard, nil))
	if err := registerBuses(cfg, l); err != nil {
		t.Fatal(err)
	}
	// Registering again is a no-op.
	if err := registerBuses(cfg, l); err != nil {
		t.Fatal(err)
	}
	if _, ok := lookupRef("test-ha7"); !ok {
		t.Fatal("bus not registered")
	}
	p := &retryPolicy{logger: l}
	bus, err := openBus(context.Background(), p, "test-ha7")
	if err != nil {
		t.Fatal(err)
	}
	defer bus.Close()
	if s := bus.String(); !strings.HasPrefix(s, "HA7Net{127.0.0.1:") {
		t.Fatal(s)
	}
	addrs, err := bus.Search(false)
	if err != nil {
		t.Fatal(err)
	}
	if len(addrs) != 0 {
		t.Fatal(addrs)
	}
	if _, err := openBus(context.Background(), p, "no-such-bus"); err == nil {
		t.Fatal("unknown bus opened")
	}
}

func TestRetryPolicy(t *testing.T) {
	p := &retryPolicy{retries: 2, delay: time.Millisecond, logger: slog.New(slog.NewTextHandler(io.Discard, nil))}
	calls := 0
	err := p.do(context.Background(), "test", func() error {
		calls++
		return owbus.ProtocolError("test", "bad reply")
	})
	if !owbus.IsProtocol(err) || calls != 3 {
		t.Fatalf("%d calls: %v", calls, err)
	}

	calls = 0
	err = p.do(context.Background(), "test", func() error {
		calls++
		if calls < 2 {
			return owbus.ConnectError("test", errors.New("refused"))
		}
		return nil
	})
	if err != nil || calls != 2 {
		t.Fatalf("%d calls: %v", calls, err)
	}

	calls = 0
	usage := errors.New("usage")
	err = p.do(context.Background(), "test", func() error {
		calls++
		return usage
	})
	if !errors.Is(err, usage) || calls != 1 {
		t.Fatalf("%d calls: %v", calls, err)
	}
}

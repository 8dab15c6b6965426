// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package owbus

import (
	"fmt"
	"sync"

	"periph.io/x/conn/v3/onewire"
)

// Bus exposes an Adapter as a onewire.Bus so periph 1-wire device drivers can
// use it.
//
// Unlike the adapters, Bus is safe for concurrent use.
type Bus struct {
	mu sync.Mutex
	a  Adapter
	c  *Conn
}

// Open detects the adapter on c and returns the bus.
func Open(a Adapter, c *Conn) (*Bus, error) {
	if err := a.Detect(c); err != nil {
		return nil, err
	}
	return &Bus{a: a, c: c}, nil
}

func (b *Bus) String() string {
	return b.c.String()
}

// Conn returns the connection state of the bus.
func (b *Bus) Conn() *Conn {
	return b.c
}

// Close implements onewire.BusCloser.
func (b *Bus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.a.Close(b.c)
	return nil
}

// Tx resets the bus, writes w and then reads len(r) bytes.
//
// The adapters cannot request a strong pull-up, power is ignored.
func (b *Bus) Tx(w, r []byte, power onewire.Pullup) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.a.Reset(b.c); err != nil {
		return err
	}
	n := len(w) + len(r)
	if n == 0 {
		return nil
	}
	out := make([]byte, n)
	copy(out, w)
	// Read slots are written as all ones.
	for i := len(w); i < n; i++ {
		out[i] = 0xff
	}
	in := make([]byte, n)
	if err := b.a.SendbackData(b.c, out, in); err != nil {
		return err
	}
	copy(r, in[len(w):])
	return nil
}

// SelectAndSendback addresses addr and exchanges w for r in one transaction,
// without the reset and match ROM prefix Tx expects in w.
func (b *Bus) SelectAndSendback(addr onewire.Address, w, r []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.a.SelectAndSendback(b.c, addr, w, r)
}

// Search runs a full enumeration pass and returns the addresses found.
//
// If the pass fails the addresses yielded so far are returned with the error.
func (b *Bus) Search(alarmOnly bool) ([]onewire.Address, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return Enumerate(b.a, b.c, alarmOnly)
}

// Enumerate runs a full pass of NextBoth on a.
func Enumerate(a Adapter, c *Conn, alarm bool) ([]onewire.Address, error) {
	var out []onewire.Address
	s := NewSearch(alarm)
	for {
		st, err := a.NextBoth(s, c)
		switch st {
		case SearchGood:
			out = append(out, s.Addr)
		case SearchDone:
			return out, nil
		default:
			if err == nil {
				err = fmt.Errorf("owbus: search on %s failed", c)
			}
			return out, err
		}
	}
}

var _ onewire.Bus = &Bus{}
var _ onewire.BusCloser = &Bus{}

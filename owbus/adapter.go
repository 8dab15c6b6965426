// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package owbus

import (
	"fmt"

	"periph.io/x/conn/v3/onewire"
)

// Adapter is a 1-wire bus master reached through some transport.
//
// None of the operations retry; a failure is returned to the caller which
// decides on the retry policy.
type Adapter interface {
	// Detect makes the transport ready and records the adapter kind, name and
	// bus mode in c.
	Detect(c *Conn) error
	// Reset issues a bus reset. A nil error means the reset succeeded.
	Reset(c *Conn) error
	// NextBoth yields the next device of the pass described by s.
	NextBoth(s *SearchState, c *Conn) (SearchStatus, error)
	// Select addresses the device addr, or resets the bus when addr is nil.
	Select(c *Conn, addr *onewire.Address) error
	// SelectAndSendback addresses addr, writes w and fills r with the
	// device's reply. len(r) must equal len(w).
	SelectAndSendback(c *Conn, addr onewire.Address, w, r []byte) error
	// SendbackData writes w to the currently addressed device and fills r with
	// the reply. len(r) must equal len(w).
	SendbackData(c *Conn, w, r []byte) error
	// Close releases the transport state. It never fails.
	Close(c *Conn)
}

// CheckSendback validates the buffers given to SelectAndSendback and
// SendbackData.
func CheckSendback(op string, w, r []byte) error {
	if len(w) != len(r) {
		return fmt.Errorf("%s: response buffer is %d bytes, request is %d", op, len(r), len(w))
	}
	return nil
}

// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package w1netlink

import (
	"errors"
	"time"
)

// socket is a datagram channel to the kernel w1 connector.
type socket interface {
	send(w []byte) error
	// recv reads one datagram into r, waiting at most timeout.
	recv(r []byte, timeout time.Duration) (int, error)
	close() error
}

var errTimeout = errors.New("timed out waiting for the kernel")

// openSocket is replaced in tests.
var openSocket = func() (socket, error) {
	s, err := newConnSocket()
	if err != nil {
		return nil, err
	}
	return s, nil
}

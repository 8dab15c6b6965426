// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package w1netlink

import (
	"fmt"
	"time"

	"golang.org/x/sys/unix"
)

// connSocket is a Linux netlink connector socket.
type connSocket struct {
	fd int
}

func newConnSocket() (*connSocket, error) {
	fd, err := unix.Socket(unix.AF_NETLINK, unix.SOCK_DGRAM|unix.SOCK_CLOEXEC, unix.NETLINK_CONNECTOR)
	if err != nil {
		return nil, fmt.Errorf("failed to open netlink socket: %v", err)
	}
	if err := unix.Bind(fd, &unix.SockaddrNetlink{Family: unix.AF_NETLINK}); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("failed to bind netlink socket: %v", err)
	}
	return &connSocket{fd: fd}, nil
}

func (s *connSocket) send(w []byte) error {
	for {
		err := unix.Sendto(s.fd, w, 0, &unix.SockaddrNetlink{Family: unix.AF_NETLINK})
		if err == unix.EINTR {
			continue
		}
		return err
	}
}

func (s *connSocket) recv(r []byte, timeout time.Duration) (int, error) {
	tv := unix.NsecToTimeval(timeout.Nanoseconds())
	if err := unix.SetsockoptTimeval(s.fd, unix.SOL_SOCKET, unix.SO_RCVTIMEO, &tv); err != nil {
		return 0, err
	}
	for {
		n, _, err := unix.Recvfrom(s.fd, r, 0)
		switch err {
		case nil:
			return n, nil
		case unix.EINTR:
			continue
		case unix.EAGAIN:
			return 0, errTimeout
		default:
			return 0, err
		}
	}
}

func (s *connSocket) close() error {
	fd := s.fd
	s.fd = -1
	return unix.Close(fd)
}

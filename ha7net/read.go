// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package ha7net

import (
	"bytes"
	"io"
	"net"
	"time"

	"github.com/GermanBionicSystems/owfs/owbus"
)

// readBufferLength is the size of one read attempt. A read that fills it
// completely means more of the body is waiting.
const readBufferLength = 2000

var (
	statusOK   = []byte("HTTP/1.1 200 OK")
	bodyMarker = []byte("<body>")
)

// memblob accumulates one reply.
type memblob struct {
	b []byte
}

func (m *memblob) init(size int) {
	m.b = make([]byte, 0, size)
}

func (m *memblob) add(p []byte) {
	m.b = append(m.b, p...)
}

// clear releases the backing storage.
func (m *memblob) clear() {
	m.b = nil
}

// data returns the body without the trailing NUL sentinel.
func (m *memblob) data() []byte {
	if n := len(m.b); n > 0 && m.b[n-1] == 0 {
		return m.b[:n-1]
	}
	return m.b
}

func (m *memblob) Len() int { return len(m.b) }
func (m *memblob) Cap() int { return cap(m.b) }

// tcpRead tries to fill buf before the timeout expires and returns the number
// of bytes read. A short count means the peer closed the connection or went
// quiet.
func tcpRead(c net.Conn, buf []byte, timeout time.Duration) int {
	if err := c.SetReadDeadline(time.Now().Add(timeout)); err != nil {
		return 0
	}
	n, _ := io.ReadFull(c, buf)
	return n
}

// readResponse reads a full HA7Net reply from c into mb, keeping everything
// from the <body> marker on.
//
// mb is cleared on every failure.
func readResponse(c net.Conn, mb *memblob, timeout time.Duration) error {
	const op = "ha7net: read"
	buf := make([]byte, readBufferLength)
	mb.init(readBufferLength)

	n := tcpRead(c, buf, timeout)
	if n == 0 {
		mb.clear()
		return owbus.ProtocolError(op, "no response")
	}
	head := buf[:n]
	if !bytes.HasPrefix(head, statusOK) {
		mb.clear()
		return owbus.ProtocolError(op, "response problem: %q", statusLine(head))
	}
	start := bytes.Index(head, bodyMarker)
	if start < 0 {
		mb.clear()
		return owbus.ProtocolError(op, "no HTTP body to parse")
	}
	mb.add(head[start:])

	for n == readBufferLength {
		n = tcpRead(c, buf, timeout)
		if n == 0 {
			mb.clear()
			return owbus.ProtocolError(op, "couldn't get rest of the body")
		}
		mb.add(buf[:n])
	}
	mb.add([]byte{0})
	return nil
}

// statusLine returns the first line of b, without the line terminator and at
// most 47 bytes long.
func statusLine(b []byte) []byte {
	if i := bytes.IndexByte(b, '\n'); i >= 0 {
		b = b[:i]
	}
	b = bytes.TrimRight(b, "\r")
	if len(b) > 47 {
		b = b[:47]
	}
	return b
}

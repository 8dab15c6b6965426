// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package ha7net

import (
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strings"
	"time"

	"github.com/GermanBionicSystems/owfs/common"
	"github.com/GermanBionicSystems/owfs/owbus"
	"periph.io/x/conn/v3/onewire"
)

// Opts contains options to pass to the constructor.
type Opts struct {
	Timeout time.Duration // per read attempt, also used to connect
	Logger  *slog.Logger  // nil means slog.Default()
}

// DefaultOpts is the recommended default options.
var DefaultOpts = Opts{
	Timeout: 60 * time.Second,
}

const (
	// maxBlock is the largest payload of a single WriteBlock.
	maxBlock = 32
	// fifoSize is the bundling length advertised in the connection.
	fifoSize = 128
	// defaultPort is used when the endpoint does not name one.
	defaultPort = "80"
)

// New returns an adapter for the HA7Net at endpoint ("host" or "host:port").
//
// Nothing is sent on the network until Detect.
func New(endpoint string, opts *Opts) (*Adapter, error) {
	if endpoint == "" {
		return nil, errors.New("ha7net: no endpoint given")
	}
	if opts == nil {
		opts = &DefaultOpts
	}
	a := &Adapter{endpoint: endpoint, opts: *opts, logger: opts.Logger}
	if a.opts.Timeout <= 0 {
		a.opts.Timeout = DefaultOpts.Timeout
	}
	if a.logger == nil {
		a.logger = slog.Default()
	}
	a.logger = a.logger.With("adapter", "ha7net", "endpoint", endpoint)
	return a, nil
}

// Adapter is an HA7Net bus master. It implements owbus.Adapter.
//
// Calls must be serialized by the caller.
type Adapter struct {
	endpoint string
	opts     Opts
	logger   *slog.Logger

	addr   *net.TCPAddr // resolved by Detect, nil after Close
	lockID string       // held lock, sent along with every command
}

func (a *Adapter) String() string {
	return fmt.Sprintf("HA7Net{%s}", a.endpoint)
}

// Detect resolves the endpoint and checks that an HA7Net answers a
// ReleaseLock command.
func (a *Adapter) Detect(c *owbus.Conn) error {
	const op = "ha7net: Detect"
	a.lockID = ""
	c.Locked = false

	ep := a.endpoint
	if _, _, err := net.SplitHostPort(ep); err != nil {
		ep = net.JoinHostPort(ep, defaultPort)
	}
	addr, err := net.ResolveTCPAddr("tcp", ep)
	if err != nil {
		return owbus.ConnectError(op, err)
	}
	a.addr = addr
	c.Kind = owbus.AdapterHA7Net

	var mb memblob
	defer mb.clear()
	if err := a.exchange(op, &Request{Command: cmdReleaseLock}, &mb); err != nil {
		a.addr = nil
		return err
	}
	c.AdapterName = "HA7Net"
	c.Mode = owbus.BusHA7Net
	c.AnyDevices = owbus.AnyDevicesUnknown
	c.BundlingLength = fifoSize
	a.logger.Debug("detected", "addr", addr.String())
	return nil
}

// Reset issues a 1-wire reset.
func (a *Adapter) Reset(c *owbus.Conn) error {
	var mb memblob
	defer mb.clear()
	if err := a.exchange("ha7net: Reset", &Request{Command: cmdReset}, &mb); err != nil {
		a.logger.Debug("trouble with reset", "err", err)
		return err
	}
	return nil
}

// NextBoth yields the next device of the pass, running a Search command at the
// start of the pass.
func (a *Adapter) NextBoth(s *owbus.SearchState, c *owbus.Conn) (owbus.SearchStatus, error) {
	return owbus.Next(s, c, func(db *owbus.DirBlob) error {
		return a.directory(s.Alarm, db)
	}, a.logger)
}

// Select addresses addr, or resets the bus when addr is nil.
func (a *Adapter) Select(c *owbus.Conn, addr *onewire.Address) error {
	if addr == nil {
		return a.Reset(c)
	}
	var mb memblob
	defer mb.clear()
	return a.exchange("ha7net: AddressDevice", &Request{Command: cmdAddressDevice, Address: addr}, &mb)
}

// SelectAndSendback addresses addr and exchanges w with it, 32 bytes at a time.
// Only the first block carries the address.
func (a *Adapter) SelectAndSendback(c *owbus.Conn, addr onewire.Address, w, r []byte) error {
	if err := owbus.CheckSendback("ha7net: SelectAndSendback", w, r); err != nil {
		return err
	}
	target := &addr
	for loc := 0; loc < len(w); loc += maxBlock {
		end := min(loc+maxBlock, len(w))
		if err := a.sendbackBlock(w[loc:end], r[loc:end], target); err != nil {
			return err
		}
		target = nil
	}
	return nil
}

// SendbackData exchanges w with the currently addressed device, 32 bytes at a
// time.
func (a *Adapter) SendbackData(c *owbus.Conn, w, r []byte) error {
	if err := owbus.CheckSendback("ha7net: SendbackData", w, r); err != nil {
		return err
	}
	for loc := 0; loc < len(w); loc += maxBlock {
		end := min(loc+maxBlock, len(w))
		if err := a.sendbackBlock(w[loc:end], r[loc:end], nil); err != nil {
			return err
		}
	}
	return nil
}

// Close forgets the resolved address and the lock.
func (a *Adapter) Close(c *owbus.Conn) {
	a.addr = nil
	a.lockID = ""
	c.Locked = false
}

// Lock acquires the HA7Net lock. Every later command carries the lock id until
// Unlock or Close.
func (a *Adapter) Lock(c *owbus.Conn) error {
	const op = "ha7net: GetLock"
	var mb memblob
	defer mb.clear()
	if err := a.exchange(op, &Request{Command: cmdGetLock}, &mb); err != nil {
		return err
	}
	id, ok := inputValue(mb.data(), "LockID_0")
	if !ok || id == "" {
		return owbus.ProtocolError(op, "no LockID in response")
	}
	a.lockID = id
	c.Locked = true
	return nil
}

// Unlock releases the lock acquired by Lock.
func (a *Adapter) Unlock(c *owbus.Conn) error {
	if a.lockID == "" {
		return nil
	}
	var mb memblob
	defer mb.clear()
	if err := a.exchange("ha7net: ReleaseLock", &Request{Command: cmdReleaseLock}, &mb); err != nil {
		return err
	}
	a.lockID = ""
	c.Locked = false
	return nil
}

//

// directory runs a Search and appends the addresses found to db.
//
// A malformed or CRC failing address aborts the search; the addresses added
// before it stay in db.
func (a *Adapter) directory(alarm bool, db *owbus.DirBlob) error {
	const op = "ha7net: Search"
	var mb memblob
	defer mb.clear()
	if err := a.exchange(op, &Request{Command: cmdSearch, Conditional: alarm}, &mb); err != nil {
		return err
	}
	var err error
	inputs(mb.data(), "Address_", func(f field) bool {
		if !f.hasValue {
			err = owbus.ProtocolError(op, "%s without VALUE", f.name)
			return false
		}
		addr, err2 := common.DecodeAddress(f.value)
		if err2 != nil {
			err = owbus.ProtocolError(op, "%s: %w", f.name, err2)
			return false
		}
		if err2 := db.AddAddress(addr); err2 != nil {
			err = owbus.ProtocolError(op, "%s: %w", f.name, err2)
			return false
		}
		return true
	})
	return err
}

// sendbackBlock runs one WriteBlock of at most maxBlock bytes.
func (a *Adapter) sendbackBlock(w, r []byte, addr *onewire.Address) error {
	const op = "ha7net: WriteBlock"
	var mb memblob
	defer mb.clear()
	if err := a.exchange(op, &Request{Command: cmdWriteBlock, Address: addr, Data: w}, &mb); err != nil {
		return err
	}
	v, ok := inputValue(mb.data(), "ResultData_0")
	if !ok {
		return owbus.ProtocolError(op, "no ResultData in response")
	}
	a.logger.Debug("sendback received", "size", len(w), "data", v)
	if err := common.DecodeData(v, r); err != nil {
		return owbus.ProtocolError(op, "%w", err)
	}
	return nil
}

// exchange runs req on a fresh connection and reads the reply into mb. The
// caller clears mb.
func (a *Adapter) exchange(op string, req *Request, mb *memblob) error {
	conn, err := a.connect(op)
	if err != nil {
		return err
	}
	defer conn.Close()
	if err := a.send(op, conn, req); err != nil {
		return err
	}
	return readResponse(conn, mb, a.opts.Timeout)
}

func (a *Adapter) connect(op string) (net.Conn, error) {
	if a.addr == nil {
		return nil, owbus.ConnectError(op, owbus.ErrNotDetected)
	}
	conn, err := net.DialTimeout("tcp", a.addr.String(), a.opts.Timeout)
	if err != nil {
		return nil, owbus.ConnectError(op, err)
	}
	return conn, nil
}

func (a *Adapter) send(op string, conn net.Conn, req *Request) error {
	if req.LockID == "" {
		req.LockID = a.lockID
	}
	b, err := req.Encode()
	if err != nil {
		return owbus.TransmitError(op, err)
	}
	a.logger.Debug("to HA7", "request", strings.TrimSpace(string(b)))
	if err := conn.SetWriteDeadline(time.Now().Add(a.opts.Timeout)); err != nil {
		return owbus.TransmitError(op, err)
	}
	// net.Conn.Write resumes interrupted writes and only returns early on
	// error.
	if n, err := conn.Write(b); err != nil {
		return owbus.TransmitError(op, fmt.Errorf("wrote %d of %d bytes: %w", n, len(b), err))
	}
	return nil
}

var _ owbus.Adapter = &Adapter{}

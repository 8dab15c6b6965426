// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package w1netlink

import (
	"encoding/binary"
	"fmt"
	"log/slog"
	"time"

	"github.com/GermanBionicSystems/owfs/common"
	"github.com/GermanBionicSystems/owfs/owbus"
	"periph.io/x/conn/v3/onewire"
)

// Opts contains options to pass to the constructor.
type Opts struct {
	Timeout time.Duration // per datagram read
	Logger  *slog.Logger  // nil means slog.Default()
}

// DefaultOpts is the recommended default options.
var DefaultOpts = Opts{
	Timeout: 10 * time.Second,
}

const (
	// fifoSize is the bundling length advertised in the connection.
	fifoSize = 128
	// recvBufferLength fits the largest search reply of the kernel.
	recvBufferLength = 16384
)

// New returns an adapter for the kernel bus master masterID, as reported by
// Masters or listed in /sys/bus/w1/devices/w1_bus_master<id>.
//
// The socket is opened by Detect, which fails on platforms other than Linux.
func New(masterID uint32, opts *Opts) (*Adapter, error) {
	if opts == nil {
		opts = &DefaultOpts
	}
	a := &Adapter{masterID: masterID, opts: *opts, logger: opts.Logger}
	if a.opts.Timeout <= 0 {
		a.opts.Timeout = DefaultOpts.Timeout
	}
	if a.logger == nil {
		a.logger = slog.Default()
	}
	a.logger = a.logger.With("adapter", "w1", "master", masterID)
	return a, nil
}

// Adapter is a kernel w1 bus master. It implements owbus.Adapter.
//
// Calls must be serialized by the caller.
type Adapter struct {
	masterID uint32
	opts     Opts
	logger   *slog.Logger

	s   socket // open between Detect and Close
	seq uint32
}

func (a *Adapter) String() string {
	return fmt.Sprintf("w1{%d}", a.masterID)
}

// Detect opens the netlink channel.
func (a *Adapter) Detect(c *owbus.Conn) error {
	if a.s != nil {
		a.s.close()
		a.s = nil
	}
	s, err := openSocket()
	if err != nil {
		return owbus.ConnectError("w1netlink: Detect", err)
	}
	a.s = s
	c.Kind = owbus.AdapterW1
	c.AdapterName = "w1"
	c.Mode = owbus.BusW1
	c.AnyDevices = owbus.AnyDevicesUnknown
	c.BundlingLength = fifoSize
	return nil
}

// Reset issues a 1-wire reset.
func (a *Adapter) Reset(c *owbus.Conn) error {
	a.logger.Debug("sending w1 reset message")
	_, err := a.exchange("w1netlink: Reset", masterMsg(a.masterID, CmdReset, nil))
	return err
}

// NextBoth yields the next device of the pass, running a search command at
// the start of the pass.
func (a *Adapter) NextBoth(s *owbus.SearchState, c *owbus.Conn) (owbus.SearchStatus, error) {
	return owbus.Next(s, c, func(db *owbus.DirBlob) error {
		return a.directory(s.Alarm, db)
	}, a.logger)
}

// Select resets the bus when addr is nil. Addressing is part of every slave
// command, so selecting a device is a no-op.
func (a *Adapter) Select(c *owbus.Conn, addr *onewire.Address) error {
	if addr == nil {
		return a.Reset(c)
	}
	return nil
}

// SelectAndSendback sends w to addr in one slave touch command and fills r with
// the reply.
func (a *Adapter) SelectAndSendback(c *owbus.Conn, addr onewire.Address, w, r []byte) error {
	if err := owbus.CheckSendback("w1netlink: SelectAndSendback", w, r); err != nil {
		return err
	}
	a.logger.Debug("sending w1 select message", "address", common.EncodeAddress(addr))
	return a.touch("w1netlink: SelectAndSendback", slaveMsg(addr, CmdTouch, w), r)
}

// SendbackData sends w in one master touch command and fills r with the reply.
func (a *Adapter) SendbackData(c *owbus.Conn, w, r []byte) error {
	if err := owbus.CheckSendback("w1netlink: SendbackData", w, r); err != nil {
		return err
	}
	a.logger.Debug("sending w1 send/receive data message", "size", len(w))
	return a.touch("w1netlink: SendbackData", masterMsg(a.masterID, CmdTouch, w), r)
}

// Close closes the netlink channel.
func (a *Adapter) Close(c *owbus.Conn) {
	if a.s == nil {
		return
	}
	if err := a.s.close(); err != nil {
		a.logger.Debug("close", "err", err)
	}
	a.s = nil
}

// Masters lists the bus master ids known to the kernel.
func Masters(opts *Opts) ([]uint32, error) {
	if opts == nil {
		opts = &DefaultOpts
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultOpts.Timeout
	}
	s, err := openSocket()
	if err != nil {
		return nil, owbus.ConnectError("w1netlink: Masters", err)
	}
	defer s.close()
	return listMasters(s, timeout)
}

//

func listMasters(s socket, timeout time.Duration) ([]uint32, error) {
	const op = "w1netlink: Masters"
	b, err := (&Message{Type: MsgListMasters}).MarshalBinary()
	if err != nil {
		return nil, owbus.TransmitError(op, err)
	}
	if err := s.send(frame(0, b)); err != nil {
		return nil, owbus.TransmitError(op, err)
	}
	buf := make([]byte, recvBufferLength)
	n, err := s.recv(buf, timeout)
	if err != nil {
		return nil, owbus.ProtocolError(op, "%w", err)
	}
	r, err := parseReply(buf[:n])
	if err != nil {
		return nil, owbus.ProtocolError(op, "%w", err)
	}
	if r.Msg.Type != MsgListMasters {
		return nil, owbus.ProtocolError(op, "got %s reply", r.Msg.Type)
	}
	d := r.Msg.Data
	if len(d)%4 != 0 {
		return nil, owbus.ProtocolError(op, "data size %d is not a multiple of 4", len(d))
	}
	var ids []uint32
	for ; len(d) > 0; d = d[4:] {
		ids = append(ids, binary.LittleEndian.Uint32(d))
	}
	return ids, nil
}

// directory runs a search command and appends every address returned to db.
func (a *Adapter) directory(alarm bool, db *owbus.DirBlob) error {
	const op = "w1netlink: Search"
	cmd := CmdSearch
	if alarm {
		cmd = CmdAlarmSearch
	}
	a.logger.Debug("sending w1 search (list devices) message", "cmd", cmd.String())
	replies, err := a.exchange(op, masterMsg(a.masterID, cmd, nil))
	if err != nil {
		return err
	}
	for _, r := range replies {
		if r.Msg.Cmd == nil || r.Msg.Cmd.Type != cmd {
			continue
		}
		d := r.Msg.Cmd.Data
		if len(d)%common.AddressSize != 0 {
			return owbus.ProtocolError(op, "search payload size %d is not a multiple of %d", len(d), common.AddressSize)
		}
		for ; len(d) > 0; d = d[common.AddressSize:] {
			if err := db.Add(d[:common.AddressSize]); err != nil {
				return owbus.ProtocolError(op, "%w", err)
			}
		}
	}
	return nil
}

// touch runs a touch command and copies the reply of the same length as the
// request into r. Replies of another length are discarded.
func (a *Adapter) touch(op string, m *Message, r []byte) error {
	replies, err := a.exchange(op, m)
	if err != nil {
		return err
	}
	if len(r) == 0 {
		return nil
	}
	found := false
	for _, rep := range replies {
		if rep.Msg.Cmd == nil || rep.Msg.Cmd.Type != CmdTouch || len(rep.Msg.Cmd.Data) != len(r) {
			continue
		}
		copy(r, rep.Msg.Cmd.Data)
		found = true
	}
	if !found {
		return owbus.ProtocolError(op, "no %d byte touch reply", len(r))
	}
	return nil
}

// exchange sends m and collects the data replies until the kernel's status
// message for it arrives.
//
// Replies carrying another sequence number are left over from earlier
// exchanges and are dropped. A non-zero status fails the exchange.
func (a *Adapter) exchange(op string, m *Message) ([]*Reply, error) {
	if a.s == nil {
		return nil, owbus.ConnectError(op, owbus.ErrNotDetected)
	}
	b, err := m.MarshalBinary()
	if err != nil {
		return nil, owbus.TransmitError(op, err)
	}
	a.seq++
	seq := a.seq
	if err := a.s.send(frame(seq, b)); err != nil {
		return nil, owbus.TransmitError(op, err)
	}

	var replies []*Reply
	buf := make([]byte, recvBufferLength)
	for {
		n, err := a.s.recv(buf, a.opts.Timeout)
		if err != nil {
			return nil, owbus.ProtocolError(op, "%w", err)
		}
		if n == 0 {
			return nil, owbus.ProtocolError(op, "zero length read")
		}
		r, err := parseReply(buf[:n])
		if err != nil {
			return nil, owbus.ProtocolError(op, "%w", err)
		}
		if r.Seq != seq {
			a.logger.Debug("dropping stale reply", "seq", r.Seq, "want", seq)
			continue
		}
		if r.Msg.Status != 0 {
			return nil, owbus.ProtocolError(op, "kernel status %d", r.Msg.Status)
		}
		if r.Ack == seq+1 {
			// parseReply slices buf; keep the payload past the next read.
			r.Msg = cloneMessage(r.Msg)
			replies = append(replies, r)
			continue
		}
		return replies, nil
	}
}

func cloneMessage(m *Message) *Message {
	c := *m
	c.Data = append([]byte(nil), m.Data...)
	if m.Cmd != nil {
		c.Cmd = &Cmd{Type: m.Cmd.Type, Data: append([]byte(nil), m.Cmd.Data...)}
	}
	return &c
}

var _ owbus.Adapter = &Adapter{}

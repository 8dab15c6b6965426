// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package w1netlink

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/GermanBionicSystems/owfs/common"
	"periph.io/x/conn/v3/onewire"
)

const (
	// Size of struct nlmsghdr.
	sizeofNlMsghdr = 16
	// Size of struct cn_msg.
	sizeofCnMsg = 20
	// Size of struct w1_netlink_msg.
	sizeofW1Msg = 12
	// Size of struct w1_netlink_cmd.
	sizeofW1Cmd = 4

	nlMsgDone = uint16(0x3)

	// 1-Wire connector IDs.
	cnW1Idx = uint32(0x3)
	cnW1Val = uint32(0x1)
)

// MsgType is the type of a w1_netlink_msg.
type MsgType uint8

const (
	MsgSlaveAdd     MsgType = 0
	MsgSlaveRemove  MsgType = 1
	MsgMasterAdd    MsgType = 2
	MsgMasterRemove MsgType = 3
	MsgMasterCmd    MsgType = 4
	MsgSlaveCmd     MsgType = 5
	MsgListMasters  MsgType = 6
)

func (t MsgType) String() string {
	switch t {
	case MsgSlaveAdd:
		return "slave-add"
	case MsgSlaveRemove:
		return "slave-remove"
	case MsgMasterAdd:
		return "master-add"
	case MsgMasterRemove:
		return "master-remove"
	case MsgMasterCmd:
		return "master-cmd"
	case MsgSlaveCmd:
		return "slave-cmd"
	case MsgListMasters:
		return "list-masters"
	default:
		return fmt.Sprintf("MsgType(%d)", uint8(t))
	}
}

// CmdType is the command of a w1_netlink_cmd.
type CmdType uint8

const (
	CmdRead        CmdType = 0
	CmdWrite       CmdType = 1
	CmdSearch      CmdType = 2
	CmdAlarmSearch CmdType = 3
	CmdTouch       CmdType = 4
	CmdReset       CmdType = 5
	CmdListSlaves  CmdType = 8
)

func (c CmdType) String() string {
	switch c {
	case CmdRead:
		return "read"
	case CmdWrite:
		return "write"
	case CmdSearch:
		return "search"
	case CmdAlarmSearch:
		return "alarm-search"
	case CmdTouch:
		return "touch"
	case CmdReset:
		return "reset"
	case CmdListSlaves:
		return "list-slaves"
	default:
		return fmt.Sprintf("CmdType(%d)", uint8(c))
	}
}

// Cmd is a w1_netlink_cmd and its payload.
type Cmd struct {
	Type CmdType
	Data []byte
}

// Message is a w1_netlink_msg.
//
// ID holds the little endian master id for master commands and the ROM code
// for slave commands. Cmd is nil for messages without a command, like
// MsgListMasters.
type Message struct {
	Type   MsgType
	Status uint8
	ID     [8]byte
	Cmd    *Cmd
	Data   []byte // payload of a message without command
}

// MasterID returns the master id stored in ID.
func (m *Message) MasterID() uint32 {
	return binary.LittleEndian.Uint32(m.ID[:4])
}

// Address returns the ROM code stored in ID.
func (m *Message) Address() onewire.Address {
	return onewire.Address(binary.LittleEndian.Uint64(m.ID[:]))
}

func masterMsg(masterID uint32, cmd CmdType, data []byte) *Message {
	m := &Message{Type: MsgMasterCmd, Cmd: &Cmd{Type: cmd, Data: data}}
	binary.LittleEndian.PutUint32(m.ID[:4], masterID)
	return m
}

func slaveMsg(addr onewire.Address, cmd CmdType, data []byte) *Message {
	return &Message{Type: MsgSlaveCmd, ID: common.AddressBytes(addr), Cmd: &Cmd{Type: cmd, Data: data}}
}

// MarshalBinary returns the memory layout of struct w1_netlink_msg followed
// by the command.
func (m *Message) MarshalBinary() ([]byte, error) {
	payload := m.Data
	if m.Cmd != nil {
		if len(m.Cmd.Data) > 0xffff-sizeofW1Cmd {
			return nil, fmt.Errorf("w1netlink: command payload of %d bytes is too large", len(m.Cmd.Data))
		}
		payload = make([]byte, sizeofW1Cmd+len(m.Cmd.Data))
		payload[0] = byte(m.Cmd.Type)
		// payload[1]: reserved
		binary.LittleEndian.PutUint16(payload[2:4], uint16(len(m.Cmd.Data)))
		copy(payload[sizeofW1Cmd:], m.Cmd.Data)
	}
	if len(payload) > 0xffff {
		return nil, fmt.Errorf("w1netlink: message payload of %d bytes is too large", len(payload))
	}
	b := make([]byte, sizeofW1Msg+len(payload))
	b[0] = byte(m.Type)
	b[1] = m.Status
	binary.LittleEndian.PutUint16(b[2:4], uint16(len(payload)))
	copy(b[4:12], m.ID[:])
	copy(b[sizeofW1Msg:], payload)
	return b, nil
}

// unmarshalMessage decodes a w1_netlink_msg. The command is decoded for all
// message types but MsgListMasters.
func unmarshalMessage(b []byte) (*Message, error) {
	if len(b) < sizeofW1Msg {
		return nil, fmt.Errorf("incomplete w1_netlink_msg; got %d bytes, want at least %d", len(b), sizeofW1Msg)
	}
	m := &Message{Type: MsgType(b[0]), Status: b[1]}
	copy(m.ID[:], b[4:12])
	l := int(binary.LittleEndian.Uint16(b[2:4]))
	b = b[sizeofW1Msg:]
	if len(b) < l {
		return nil, fmt.Errorf("invalid w1_netlink_msg payload length %d, want %d", len(b), l)
	}
	b = b[:l]
	if m.Type == MsgListMasters || l == 0 {
		m.Data = b
		return m, nil
	}
	if l < sizeofW1Cmd {
		return nil, fmt.Errorf("incomplete w1_netlink_cmd; got %d bytes, want at least %d", l, sizeofW1Cmd)
	}
	cl := int(binary.LittleEndian.Uint16(b[2:4]))
	if len(b)-sizeofW1Cmd != cl {
		return nil, fmt.Errorf("invalid w1_netlink_cmd payload length %d, want %d", len(b)-sizeofW1Cmd, cl)
	}
	m.Cmd = &Cmd{Type: CmdType(b[0]), Data: b[sizeofW1Cmd:]}
	return m, nil
}

// Reply is one decoded datagram from the kernel.
type Reply struct {
	Seq uint32 // connector sequence number, the one of the request
	Ack uint32 // seq+1 for data, the request's ack for status messages
	Msg *Message
}

// frame wraps data in a netlink header and a connector message.
func frame(seq uint32, data []byte) []byte {
	dataLen := len(data)
	nlLen := sizeofNlMsghdr + sizeofCnMsg + dataLen
	// Padded to 4 byte alignment.
	nl := make([]byte, nlLen+(4-nlLen%4)%4)
	binary.LittleEndian.PutUint32(nl[0:4], uint32(nlLen))
	binary.LittleEndian.PutUint16(nl[4:6], nlMsgDone)
	binary.LittleEndian.PutUint32(nl[8:12], seq)

	cn := nl[sizeofNlMsghdr:]
	binary.LittleEndian.PutUint32(cn[0:4], cnW1Idx)
	binary.LittleEndian.PutUint32(cn[4:8], cnW1Val)
	binary.LittleEndian.PutUint32(cn[8:12], seq)
	binary.LittleEndian.PutUint16(cn[16:18], uint16(dataLen))
	copy(cn[sizeofCnMsg:], data)
	return nl
}

var errEmpty = errors.New("empty connector message")

// parseReply verifies and strips the netlink and connector headers of b and
// decodes the w1 message they carry. Bundled messages are not supported.
func parseReply(b []byte) (*Reply, error) {
	n := len(b)
	if n < sizeofNlMsghdr {
		return nil, fmt.Errorf("incomplete netlink header; got %d bytes", n)
	}
	nlLen := int(binary.LittleEndian.Uint32(b[0:4]))
	if n < nlLen || nlLen < sizeofNlMsghdr {
		return nil, fmt.Errorf("received message size (%d bytes) does not fit netlink header length (%d bytes)", n, nlLen)
	}
	if got := binary.LittleEndian.Uint16(b[4:6]); got != nlMsgDone {
		return nil, fmt.Errorf("received netlink message type %d, want %d", got, nlMsgDone)
	}
	b = b[sizeofNlMsghdr:nlLen]
	if l := len(b); l < sizeofCnMsg {
		return nil, fmt.Errorf("incomplete netlink connector message; got %d bytes, want %d", l, sizeofCnMsg)
	}
	if idx, val := binary.LittleEndian.Uint32(b[0:4]), binary.LittleEndian.Uint32(b[4:8]); idx != cnW1Idx || val != cnW1Val {
		return nil, fmt.Errorf("got connector id %d:%d, want %d:%d", idx, val, cnW1Idx, cnW1Val)
	}
	r := &Reply{
		Seq: binary.LittleEndian.Uint32(b[8:12]),
		Ack: binary.LittleEndian.Uint32(b[12:16]),
	}
	l := int(binary.LittleEndian.Uint16(b[16:18]))
	b = b[sizeofCnMsg:]
	if len(b) != l {
		return nil, fmt.Errorf("invalid connector payload length %d, want %d", len(b), l)
	}
	if l == 0 {
		return nil, errEmpty
	}
	m, err := unmarshalMessage(b)
	if err != nil {
		return nil, err
	}
	r.Msg = m
	return r, nil
}

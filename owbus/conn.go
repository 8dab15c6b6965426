// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package owbus

// AdapterKind identifies the transport that detected a connection.
type AdapterKind int

const (
	AdapterUnknown AdapterKind = iota
	AdapterHA7Net
	AdapterW1
)

func (k AdapterKind) String() string {
	switch k {
	case AdapterHA7Net:
		return "HA7Net"
	case AdapterW1:
		return "w1"
	default:
		return "unknown"
	}
}

// BusMode is the bus mode recorded by Detect.
type BusMode int

const (
	BusUnknown BusMode = iota
	BusHA7Net
	BusW1
)

func (m BusMode) String() string {
	switch m {
	case BusHA7Net:
		return "ha7net"
	case BusW1:
		return "w1"
	default:
		return "unknown"
	}
}

// AnyDevices records whether any device was ever seen on the bus.
type AnyDevices int

const (
	// AnyDevicesUnknown is treated as AnyDevicesYes until proven otherwise.
	AnyDevicesUnknown AnyDevices = iota
	AnyDevicesYes
	AnyDevicesNo
)

func (a AnyDevices) String() string {
	switch a {
	case AnyDevicesYes:
		return "yes"
	case AnyDevicesNo:
		return "no"
	default:
		return "unknown"
	}
}

// Conn is the state of one bus connection.
//
// It is owned by the caller and passed to every Adapter operation. Adapters
// only touch the fields relevant to them.
type Conn struct {
	Name           string // endpoint or master id, as configured
	Kind           AdapterKind
	AdapterName    string // display name set by Detect
	Mode           BusMode
	AnyDevices     AnyDevices
	BundlingLength int  // largest block the adapter bundles in one exchange
	Locked         bool // HA7Net: a lock token is held

	Main  DirBlob // result of the last normal search
	Alarm DirBlob // result of the last conditional search
}

// NewConn returns a connection for the given endpoint name.
func NewConn(name string) *Conn {
	return &Conn{Name: name}
}

// Blob returns the directory blob used by searches of the given mode.
func (c *Conn) Blob(alarm bool) *DirBlob {
	if alarm {
		return &c.Alarm
	}
	return &c.Main
}

func (c *Conn) String() string {
	if c.AdapterName == "" {
		return c.Name
	}
	return c.AdapterName + "{" + c.Name + "}"
}

// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package owbus

import (
	"errors"
	"fmt"

	"periph.io/x/conn/v3/onewire"
)

// Kind classifies adapter failures.
type Kind int

const (
	// KindConnect means the transport could not be opened.
	KindConnect Kind = iota + 1
	// KindTransmit means a request could not be written completely.
	KindTransmit
	// KindProtocol means the reply did not parse as expected.
	KindProtocol
)

func (k Kind) String() string {
	switch k {
	case KindConnect:
		return "connect"
	case KindTransmit:
		return "transmit"
	case KindProtocol:
		return "protocol"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Error is returned by adapters for every failed exchange.
//
// Protocol errors implement onewire.BusError: the adapter itself is fine, the
// exchange on the bus failed.
type Error struct {
	Kind Kind
	Op   string // e.g. "ha7net: Search"
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return e.Op + ": " + e.Kind.String() + " failure"
	}
	return e.Op + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// BusError implements onewire.BusError.
func (e *Error) BusError() bool {
	return e.Kind == KindProtocol
}

// ConnectError returns a KindConnect error.
func ConnectError(op string, err error) error {
	return &Error{Kind: KindConnect, Op: op, Err: err}
}

// TransmitError returns a KindTransmit error.
func TransmitError(op string, err error) error {
	return &Error{Kind: KindTransmit, Op: op, Err: err}
}

// ProtocolError returns a KindProtocol error. The message is formatted with
// fmt.Errorf so %w is honored.
func ProtocolError(op, format string, a ...interface{}) error {
	return &Error{Kind: KindProtocol, Op: op, Err: fmt.Errorf(format, a...)}
}

// IsConnect reports whether err is a connection failure.
func IsConnect(err error) bool { return isKind(err, KindConnect) }

// IsTransmit reports whether err is a transmit failure.
func IsTransmit(err error) bool { return isKind(err, KindTransmit) }

// IsProtocol reports whether err is a protocol failure.
func IsProtocol(err error) bool { return isKind(err, KindProtocol) }

func isKind(err error, k Kind) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == k
}

// ErrNotDetected is wrapped by connection failures of operations attempted
// before a successful Detect or after Close.
var ErrNotDetected = errors.New("adapter not detected")

var _ onewire.BusError = &Error{}

// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package ha7net

import (
	"errors"
	"strings"

	"github.com/GermanBionicSystems/owfs/common"
	"periph.io/x/conn/v3/onewire"
)

// Commands understood by the HA7Net.
const (
	cmdReset         = "Reset"
	cmdSearch        = "Search"
	cmdAddressDevice = "AddressDevice"
	cmdWriteBlock    = "WriteBlock"
	cmdGetLock       = "GetLock"
	cmdReleaseLock   = "ReleaseLock"
)

// Request is one HA7Net command. It is built per exchange.
type Request struct {
	Command     string
	Address     *onewire.Address // device to address first, optional
	Conditional bool             // conditional (alarm) search
	Data        []byte           // WriteBlock payload; nil omits the parameter
	LockID      string
}

// Encode returns the request line.
//
// Parameter order is fixed: Address, Conditional, Data, LockID. Some adapter
// firmware rejects any other order.
func (r *Request) Encode() ([]byte, error) {
	if r.Command == "" {
		return nil, errors.New("ha7net: request without command")
	}
	var b strings.Builder
	b.WriteString("GET /1Wire/")
	b.WriteString(r.Command)
	b.WriteString(".html")
	sep := byte('?')
	param := func(name, value string) {
		b.WriteByte(sep)
		b.WriteString(name)
		b.WriteByte('=')
		b.WriteString(value)
		sep = '&'
	}
	if r.Address != nil {
		param("Address", common.EncodeAddress(*r.Address))
	}
	if r.Conditional {
		param("Conditional", "1")
	}
	if r.Data != nil {
		param("Data", common.EncodeData(r.Data))
	}
	if r.LockID != "" {
		param("LockID", r.LockID)
	}
	b.WriteString(" HTTP/1.0\n\n")
	return []byte(b.String()), nil
}

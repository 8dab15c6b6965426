// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package owbus

import (
	"github.com/GermanBionicSystems/owfs/common"
	"periph.io/x/conn/v3/onewire"
)

// DirBlob is the ordered result of one bulk search.
//
// Only addresses with a valid CRC are ever stored.
type DirBlob struct {
	addrs    []onewire.Address
	Troubled bool // the last bulk search failed
}

// Clear empties the blob and clears the troubled flag.
func (d *DirBlob) Clear() {
	d.addrs = nil
	d.Troubled = false
}

// Add appends the 8 byte ROM code b after checking its CRC.
func (d *DirBlob) Add(b []byte) error {
	a, err := common.AddressFromBytes(b)
	if err != nil {
		return err
	}
	d.addrs = append(d.addrs, a)
	return nil
}

// AddAddress appends a after checking its CRC.
func (d *DirBlob) AddAddress(a onewire.Address) error {
	b := common.AddressBytes(a)
	return d.Add(b[:])
}

// Get returns the address at index i; ok is false when i is out of range.
func (d *DirBlob) Get(i int) (a onewire.Address, ok bool) {
	if i < 0 || i >= len(d.addrs) {
		return 0, false
	}
	return d.addrs[i], true
}

// Len returns the number of stored addresses.
func (d *DirBlob) Len() int {
	return len(d.addrs)
}

// Addresses returns a copy of the stored addresses.
func (d *DirBlob) Addresses() []onewire.Address {
	return append([]onewire.Address(nil), d.addrs...)
}

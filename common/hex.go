// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package common

import (
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"periph.io/x/conn/v3/onewire"
)

// AddressSize is the size in bytes of a 1-wire ROM code.
const AddressSize = 8

// AddressHexLen is the length of an encoded address.
const AddressHexLen = 2 * AddressSize

// EncodeAddress returns the 16 uppercase hex digit form of a, most significant
// byte (the CRC) first.
func EncodeAddress(a onewire.Address) string {
	return fmt.Sprintf("%016X", uint64(a))
}

// DecodeAddress parses the first 16 characters of s, which must all be
// uppercase hex digits. The CRC is not checked; see AddressFromBytes.
func DecodeAddress(s string) (onewire.Address, error) {
	if HexRun(s) < AddressHexLen {
		return 0, fmt.Errorf("common: address %q is not %d hex digits", clip(s, AddressHexLen), AddressHexLen)
	}
	var b [AddressSize]byte
	// Reversed: the first digit pair is byte 7.
	for i := 0; i < AddressSize; i++ {
		b[AddressSize-1-i] = hexByte(s[2*i], s[2*i+1])
	}
	return onewire.Address(binary.LittleEndian.Uint64(b[:])), nil
}

// EncodeData returns data as uppercase hex, two characters per byte.
func EncodeData(data []byte) string {
	return strings.ToUpper(hex.EncodeToString(data))
}

// DecodeData fills dst from the first 2*len(dst) characters of s.
func DecodeData(s string, dst []byte) error {
	n := 2 * len(dst)
	if HexRun(s) < n {
		return fmt.Errorf("common: need %d hex digits, got %q", n, clip(s, n))
	}
	for i := range dst {
		dst[i] = hexByte(s[2*i], s[2*i+1])
	}
	return nil
}

// HexRun returns the number of leading characters of s that are uppercase
// hex digits.
func HexRun(s string) int {
	for i := 0; i < len(s); i++ {
		if nibble(s[i]) < 0 {
			return i
		}
	}
	return len(s)
}

// AddressBytes returns the ROM code bytes of a in bus order: family first,
// CRC last.
func AddressBytes(a onewire.Address) [AddressSize]byte {
	var b [AddressSize]byte
	binary.LittleEndian.PutUint64(b[:], uint64(a))
	return b
}

// ErrCRC is returned when the last byte of a ROM code is not the CRC-8 of the
// first seven.
var ErrCRC = errors.New("common: address CRC mismatch")

// AddressFromBytes converts an 8 byte ROM code into an address, verifying its
// CRC.
func AddressFromBytes(b []byte) (onewire.Address, error) {
	if len(b) != AddressSize {
		return 0, fmt.Errorf("common: address must be %d bytes, got %d", AddressSize, len(b))
	}
	if !onewire.CheckCRC(b) {
		return 0, fmt.Errorf("%w: % X", ErrCRC, b)
	}
	return onewire.Address(binary.LittleEndian.Uint64(b)), nil
}

// ValidAddress reports whether the CRC byte of a matches its other bytes.
func ValidAddress(a onewire.Address) bool {
	b := AddressBytes(a)
	return onewire.CheckCRC(b[:])
}

// Family returns the family code of a.
func Family(a onewire.Address) byte {
	return byte(a)
}

//

func nibble(c byte) int {
	switch {
	case c >= '0' && c <= '9':
		return int(c - '0')
	case c >= 'A' && c <= 'F':
		return int(c-'A') + 10
	default:
		return -1
	}
}

func hexByte(hi, lo byte) byte {
	return byte(nibble(hi)<<4 | nibble(lo))
}

func clip(s string, n int) string {
	if len(s) > n {
		return s[:n]
	}
	return s
}

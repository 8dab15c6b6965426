// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package common contains the address and payload codecs shared by the 1-wire
// bus adapters.
//
// Device addresses travel as 16 uppercase hex digits with the CRC byte first
// and the family code last, which is the natural "%016X" rendering of an
// onewire.Address. Data payloads travel as uppercase hex in memory order.
package common

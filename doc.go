// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package owfs is a container for 1-wire bus adapters.
//
// Package owbus defines the adapter contract and bridges any adapter to
// periph's onewire.Bus. Packages ha7net and w1netlink implement it for the
// HA7Net Ethernet adapter and the Linux w1 netlink connector. Package common
// holds the address and payload codecs they share.
package owfs

// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package owbus defines the contract shared by 1-wire bus adapters and the
// per-connection state they operate on.
//
// An Adapter resets the bus, enumerates the devices present, addresses one
// device and exchanges raw byte blocks with it. Enumeration is two level: a
// single bulk search fills a DirBlob and the SearchState machine replays it one
// address at a time.
//
// Adapters do not serialize calls; the caller owns a Conn and must not use it
// from several goroutines at once. Bus wraps an Adapter into a
// periph.io/x/conn/v3/onewire.Bus and does lock.
package owbus

// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package ha7net drives an Embedded Data Systems HA7Net Ethernet 1-wire
// adapter.
//
// The HA7Net answers plain HTTP/1.0 GET requests of the form
//
//	GET /1Wire/<Command>.html?Address=<16 hex>&Conditional=1&Data=<hex>&LockID=<id> HTTP/1.0
//
// with an HTML page holding the results in INPUT elements. Each exchange uses
// its own TCP connection, which is closed before the operation returns.
//
// The adapter only accepts 32 bytes per WriteBlock, so longer blocks are split
// and sent as consecutive exchanges.
package ha7net

// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package w1netlink drives a 1-wire bus master of the Linux w1 subsystem
// through the netlink connector, as described at
// https://www.kernel.org/doc/Documentation/w1/w1.netlink
//
// Each request is one w1_netlink_msg carrying one w1_netlink_cmd. The kernel
// answers with zero or more data messages followed by a status message; the
// adapter waits for the status message before returning.
//
// The kernel cannot request a strong pull-up after a write, so neither can
// this adapter.
package w1netlink

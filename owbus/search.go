// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package owbus

import (
	"log/slog"

	"github.com/GermanBionicSystems/owfs/common"
	"periph.io/x/conn/v3/onewire"
)

// SearchStatus is the outcome of one NextBoth call.
type SearchStatus int

const (
	// SearchGood means a device was found; its address is in SearchState.Addr.
	SearchGood SearchStatus = iota
	// SearchDone means the pass is over.
	SearchDone
	// SearchError means the bulk search failed.
	SearchError
)

func (s SearchStatus) String() string {
	switch s {
	case SearchGood:
		return "good"
	case SearchDone:
		return "done"
	case SearchError:
		return "error"
	default:
		return "invalid"
	}
}

// SearchState tracks one enumeration pass.
type SearchState struct {
	Alarm      bool            // conditional (alarm) search
	Index      int             // -1 before the first NextBoth of a pass
	LastDevice bool            // the pass is over
	Addr       onewire.Address // last address yielded
}

// NewSearch returns the state for a fresh pass.
func NewSearch(alarm bool) *SearchState {
	return &SearchState{Alarm: alarm, Index: -1}
}

// Restart rewinds s to the start of a new pass.
func (s *SearchState) Restart() {
	s.Index = -1
	s.LastDevice = false
	s.Addr = 0
}

// FillFunc runs a bulk search, appending the addresses found to db. db has
// already been cleared.
type FillFunc func(db *DirBlob) error

// Next advances s by one device, running fill at the start of a pass.
//
// It is the enumeration machine shared by the adapters: the bulk search
// happens only when the index wraps to 0, later calls replay the blob.
func Next(s *SearchState, c *Conn, fill FillFunc, logger *slog.Logger) (SearchStatus, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if c.AnyDevices == AnyDevicesNo {
		s.LastDevice = true
	}
	if s.LastDevice {
		return SearchDone, nil
	}
	db := c.Blob(s.Alarm)
	s.Index++
	if s.Index == 0 {
		db.Clear()
		if err := fill(db); err != nil {
			db.Troubled = true
			return SearchError, err
		}
	}
	a, ok := db.Get(s.Index)
	if !ok {
		s.LastDevice = true
		logger.Debug("SN finished", "bus", c.String(), "count", db.Len())
		return SearchDone, nil
	}
	s.Addr = a
	logger.Debug("SN found", "bus", c.String(), "address", common.EncodeAddress(a))
	return SearchGood, nil
}

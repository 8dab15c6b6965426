// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// owbus enumerates and talks to 1-wire buses reached through HA7Net adapters
// or the Linux w1 subsystem.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"time"

	"github.com/GermanBionicSystems/owfs/cmd/owbus/cmd"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	quitChan := make(chan os.Signal, 1)
	signal.Notify(quitChan, os.Interrupt)
	go func() {
		s := <-quitChan
		log.Printf("got %v, exiting", s)
		cancel()
		// An HA7Net exchange can block for a full read timeout.
		<-time.After(90 * time.Second)
		log.Fatal("took too long to shut down, forcefully exiting")
	}()
	if err := cmd.Execute(ctx); err != nil {
		os.Exit(1)
	}
}

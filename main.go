// SPDX-License-Identifier: MIT
package main

import (
	"context"
	"os"
	"os/signal"
	"runtime"
	"syscall"

	"audiofx/cmd"
	"audiofx/internal/log"
	"audiofx/pkg/build"
)

// main has three phases:
//
// 1. Startup (cold path): build information, runtime settings and
// argument parsing.
//
// 2. Streaming (hot path): the audio callback runs the chain until a
// termination signal arrives or the monitor quits.
//
// 3. Shutdown (cold path): recording is finalized, transports and the
// stream are closed.
func main() {
	if err := build.Initialize(); err != nil {
		log.Debugf("build: %v, running as %s", err, build.GetBuildFlags())
	}

	// One thread for the audio callback, one for UI and I/O.
	runtime.GOMAXPROCS(2)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := cmd.Execute(ctx); err != nil {
		stop()
		log.Fatalf("%v", err)
	}
}

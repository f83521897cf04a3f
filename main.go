// SPDX-License-Identifier: MIT
package main

import (
	"os"

	"keydetect/cmd"
	applog "keydetect/internal/log"
	"keydetect/pkg/build"
)

func main() {
	// Development builds skip the linker flags; the defaults are fine.
	if err := build.Initialize(); err != nil {
		applog.Debugf("build info not stamped: %v", err)
	}

	if err := cmd.Execute(); err != nil {
		applog.Errorf("%v", err)
		os.Exit(1)
	}
}

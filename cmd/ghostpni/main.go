package main

import (
	"github.com/ghostpni/ghostpni/internal/cmd"
	"github.com/ghostpni/ghostpni/internal/server/handlers"
)

// Overridden at build time with -ldflags "-X main.version=...".
var (
	version   = "dev"
	commit    = "unknown"
	buildDate = "unknown"
)

func main() {
	cmd.SetVersionInfo(version, commit, buildDate)
	handlers.SetVersionInfo(version, commit, buildDate)

	if err := cmd.Execute(); err != nil {
		cmd.ExitWithCodeStderr(cmd.ExitCodeFor(err), "ghostpni failed", err)
	}
}

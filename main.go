package main

import (
	"os"

	"github.com/tphakala/healthmon/cmd"
	"github.com/tphakala/healthmon/internal/app"
	"github.com/tphakala/healthmon/internal/buildinfo"
)

// Set at build time with -ldflags "-X main.version=..."
var (
	version   string
	buildDate string
	commit    string
)

func main() {
	ctx := app.NewContext(buildinfo.NewContext(version, buildDate, commit))

	if err := cmd.RootCommand(ctx).Execute(); err != nil {
		os.Exit(1)
	}
}

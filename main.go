package main

import (
	"os"

	"github.com/jupiter-voice/jupiter/cmd"
	"github.com/jupiter-voice/jupiter/internal/buildinfo"

	// registers the TFLite model loaders
	_ "github.com/jupiter-voice/jupiter/internal/model/interpreter"
)

// Set with -ldflags "-X main.version=... -X main.buildDate=..."
var (
	version   = "dev"
	buildDate = ""
)

func main() {
	info := buildinfo.NewContext(version, buildDate)
	if err := cmd.RootCommand(info).Execute(); err != nil {
		os.Exit(1)
	}
}

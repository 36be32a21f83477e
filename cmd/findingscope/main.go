// Command findingscope explores a snapshot of security findings: fuzzy
// search, severity and text filters, and the dashboard aggregates, either as
// one-shot terminal commands or as a JSON API.
package main

import (
	"os"
)

// Version information, set at build time with -ldflags.
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

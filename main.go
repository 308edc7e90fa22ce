package main

import (
	"fmt"
	"os"

	"github.com/keyhub-labs/keyhub/internal/cli"
	"github.com/keyhub-labs/keyhub/internal/errcode"
)

// version, commit, and date are set via ldflags at build time.
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

func main() {
	if err := cli.Execute(version, commit, date); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(errcode.ExitCode(err))
	}
}

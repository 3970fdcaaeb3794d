// Package main is the entry point for the threadclaw CLI.
package main

import (
	"os"

	"github.com/ThreadClaw/ThreadClaw/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}

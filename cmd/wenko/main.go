// Package main is the entry point for the wenko CLI.
package main

import (
	"os"

	"github.com/daijinru/wenko/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}

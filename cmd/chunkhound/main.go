// Package main provides the entry point for the chunkhound CLI.
package main

import (
	"os"

	"github.com/chunkhound-go/chunkhound/cmd/chunkhound/cmd"
)

func main() {
	os.Exit(cmd.Execute())
}

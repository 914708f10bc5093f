// Package main is the entry point for the leadbot CLI.
package main

import (
	"leadbot/cli/cmd"
)

func main() {
	cmd.Execute()
}

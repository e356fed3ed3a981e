// Command serpent-cli runs one scrape session from the command line.
package main

import (
	"os"

	"github.com/use-agent/serpent/cmd/serpent-cli/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}

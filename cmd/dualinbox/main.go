package main

import (
	"os"

	"dualinbox/cmd/dualinbox/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}

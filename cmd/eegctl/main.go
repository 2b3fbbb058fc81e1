package main

import (
	"os"

	"eeg-decoder-service/cmd/eegctl/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}

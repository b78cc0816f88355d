package main

import (
	"os"

	"github.com/spherical/scan2docx/cmd/scan2docx/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}

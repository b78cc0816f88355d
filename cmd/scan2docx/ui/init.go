// Package ui provides terminal output helpers for the scan2docx CLI.
package ui

import (
	"io"
	"os"

	"github.com/fatih/color"
)

var (
	// Out receives normal output.
	Out io.Writer = os.Stdout
	// ErrOut receives errors, progress bars and spinners.
	ErrOut io.Writer = os.Stderr

	verboseFlag bool
)

// InitUI applies the color and verbosity flags.
func InitUI(noColor, verbose bool) {
	verboseFlag = verbose
	if noColor {
		color.NoColor = true
	}
}

// Verbose reports whether verbose output was requested.
func Verbose() bool {
	return verboseFlag
}

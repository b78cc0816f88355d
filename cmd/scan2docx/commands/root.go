// Package commands implements the scan2docx command line.
package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/spherical/scan2docx/cmd/scan2docx/ui"
	"github.com/spherical/scan2docx/internal/config"
	"github.com/spherical/scan2docx/internal/domain"
	"github.com/spherical/scan2docx/internal/observability"
)

// Set at build time with -ldflags "-X .../commands.Version=...".
var Version = "dev"

var (
	cfgFile string
	verbose bool
	noColor bool

	appCfg *config.Config
	logger *observability.Logger
)

var rootCmd = &cobra.Command{
	Use:   "scan2docx",
	Short: "Convert scanned PDFs into editable Word documents",
	Long: `scan2docx renders every page of a PDF, recognizes its text with Tesseract,
and writes the pages in order into a single .docx file.

Run it once from the command line with "convert", or start the HTTP
service with "serve".`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		ui.InitUI(noColor, verbose)

		cfg, err := config.Load(cfgFile)
		if err != nil {
			return err
		}
		appCfg = cfg
		logger = cliLogger(cfg)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose output")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable colored output")
}

// Execute runs the root command and reports a failure on stderr.
func Execute() error {
	err := rootCmd.Execute()
	if err != nil {
		ui.Error("%s", errorText(err))
	}
	return err
}

// cliLogger logs to stderr in console format. Routine messages are hidden
// unless --verbose so they do not break the progress display.
func cliLogger(cfg *config.Config) *observability.Logger {
	level := "warn"
	if verbose {
		level = "debug"
	}
	return observability.NewLogger(observability.LogConfig{
		Level:  level,
		Format: "console",
		Output: os.Stderr,
	})
}

func errorText(err error) string {
	if domain.KindOf(err) == domain.ErrorTypeInternal {
		return fmt.Sprintf("Error: %v", err)
	}
	return domain.UserMessage(err)
}

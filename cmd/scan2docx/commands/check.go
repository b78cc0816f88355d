package commands

import (
	"context"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/spherical/scan2docx/cmd/scan2docx/ui"
	"github.com/spherical/scan2docx/internal/bootstrap"
)

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Verify the rasterizer, OCR engine and language packs",
	RunE:  runCheck,
}

func init() {
	rootCmd.AddCommand(checkCmd)
}

func runCheck(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	svc, err := bootstrap.NewService(appCfg, logger)
	if err != nil {
		return err
	}

	ui.Section("Engine check")
	ui.KeyValue("Rasterizer", engineLabel(appCfg.Engines.Rasterizer, appCfg.Engines.PdftoppmPath, "poppler"))
	ui.KeyValue("OCR", engineLabel(appCfg.Engines.OCR, appCfg.Engines.TesseractPath, "tesseract"))
	if appCfg.Engines.TessdataDir != "" {
		ui.KeyValue("Tessdata", appCfg.Engines.TessdataDir)
	}
	langs := make([]string, 0, len(svc.Languages()))
	for _, l := range svc.Languages() {
		langs = append(langs, string(l))
	}
	ui.KeyValue("Languages", strings.Join(langs, ", "))

	spin := ui.NewSpinner("Checking engines...")
	spin.Start()
	err = svc.CheckEngines(ctx)
	spin.Stop()
	if err != nil {
		return err
	}

	ui.Success("All engines ready")
	return nil
}

func engineLabel(name, binary, external string) string {
	if name == external {
		return name + " (" + binary + ")"
	}
	return name
}

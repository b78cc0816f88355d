package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/spherical/scan2docx/cmd/scan2docx/ui"
	"github.com/spherical/scan2docx/internal/domain"
)

var optionsCmd = &cobra.Command{
	Use:   "options",
	Short: "List supported languages, segmentation modes and DPI range",
	RunE:  runOptions,
}

func init() {
	rootCmd.AddCommand(optionsCmd)
}

func runOptions(cmd *cobra.Command, args []string) error {
	ui.Section("Languages")
	rows := make([][]string, 0)
	for _, l := range appCfg.SupportedLanguages() {
		def := ""
		if string(l) == appCfg.Conversion.Language {
			def = "*"
		}
		rows = append(rows, []string{string(l), def})
	}
	ui.Table([]string{"CODE", "DEFAULT"}, rows)

	ui.Section("Segmentation modes")
	rows = rows[:0]
	for _, m := range domain.SupportedSegmentationModes {
		def := ""
		if m == appCfg.DefaultSegMode() {
			def = "*"
		}
		rows = append(rows, []string{fmt.Sprint(int(m)), m.String(), def})
	}
	ui.Table([]string{"PSM", "NAME", "DEFAULT"}, rows)

	ui.Section("Resolution")
	ui.KeyValue("DPI range", fmt.Sprintf("%d-%d", domain.MinDPI, domain.MaxDPI))
	ui.KeyValue("Default DPI", fmt.Sprint(appCfg.Conversion.DPI))
	return nil
}

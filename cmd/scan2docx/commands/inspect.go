package commands

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/spherical/scan2docx/cmd/scan2docx/ui"
	"github.com/spherical/scan2docx/internal/docx"
	"github.com/spherical/scan2docx/internal/domain"
	"github.com/spherical/scan2docx/internal/pdf"
)

var inspectCmd = &cobra.Command{
	Use:   "inspect <file>",
	Short: "Show page count of a PDF or the outline of a generated .docx",
	Args:  cobra.ExactArgs(1),
	RunE:  runInspect,
}

func init() {
	rootCmd.AddCommand(inspectCmd)
}

func runInspect(cmd *cobra.Command, args []string) error {
	path := args[0]
	data, err := os.ReadFile(path)
	if err != nil {
		return domain.IOError(fmt.Sprintf("cannot read %s", path), err)
	}

	if strings.EqualFold(filepath.Ext(path), ".docx") || bytes.HasPrefix(data, []byte("PK")) {
		return inspectDOCX(path, data)
	}
	return inspectPDF(path, data)
}

func inspectPDF(path string, data []byte) error {
	info, err := pdf.NewInspector().Inspect(data)
	if err != nil {
		return err
	}

	ui.Section(filepath.Base(path))
	ui.KeyValue("Type", "PDF")
	ui.KeyValue("Version", info.Version)
	ui.KeyValue("Pages", fmt.Sprint(info.Pages))
	ui.KeyValue("Encrypted", fmt.Sprint(info.Encrypted))
	ui.KeyValue("Size", ui.FormatBytes(len(data)))
	return nil
}

func inspectDOCX(path string, data []byte) error {
	outline, err := docx.Inspect(data)
	if err != nil {
		return err
	}

	ui.Section(filepath.Base(path))
	ui.KeyValue("Type", "DOCX")
	if title := outline.Title(); title != "" {
		ui.KeyValue("Title", title)
	}
	pages := outline.Pages()
	ui.KeyValue("Pages", fmt.Sprint(len(pages)))
	ui.KeyValue("Page breaks", fmt.Sprint(outline.PageBreaks()))
	fmt.Fprintln(ui.Out)

	rows := make([][]string, 0, len(pages))
	for _, p := range pages {
		chars := 0
		for _, para := range p.Paragraphs {
			chars += len([]rune(para))
		}
		rows = append(rows, []string{p.Heading, fmt.Sprint(len(p.Paragraphs)), fmt.Sprint(chars), preview(p.Paragraphs)})
	}
	ui.Table([]string{"PAGE", "PARAGRAPHS", "CHARS", "FIRST LINE"}, rows)
	return nil
}

func preview(paras []string) string {
	if len(paras) == 0 {
		return ""
	}
	text := paras[0]
	if i := strings.IndexByte(text, '\n'); i >= 0 {
		text = text[:i]
	}
	const max = 40
	if r := []rune(text); len(r) > max {
		text = string(r[:max]) + "…"
	}
	return text
}

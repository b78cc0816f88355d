package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/spherical/scan2docx/cmd/scan2docx/ui"
	"github.com/spherical/scan2docx/internal/bootstrap"
	"github.com/spherical/scan2docx/internal/domain"
)

var (
	convertDPI    int
	convertLang   string
	convertPSM    string
	convertOutDir string
	convertOutput string
)

var convertCmd = &cobra.Command{
	Use:   "convert <file.pdf>",
	Short: "Convert a scanned PDF into a .docx file",
	Long: `Convert renders each page of the PDF, runs OCR on it and writes one
Word document with a heading and the recognized paragraphs for every page.

Press Ctrl-C to stop; the current page finishes and no file is written.`,
	Args: cobra.ExactArgs(1),
	RunE: runConvert,
}

func init() {
	convertCmd.Flags().IntVar(&convertDPI, "dpi", 0, fmt.Sprintf("render resolution, %d-%d (default from config)", domain.MinDPI, domain.MaxDPI))
	convertCmd.Flags().StringVarP(&convertLang, "lang", "l", "", "OCR language, e.g. eng or eng+deu (default from config)")
	convertCmd.Flags().StringVar(&convertPSM, "psm", "", "page segmentation mode, number or name (default from config)")
	convertCmd.Flags().StringVar(&convertOutDir, "out-dir", "", "directory for the generated file (default from config)")
	convertCmd.Flags().StringVarP(&convertOutput, "output", "o", "", "exact output file path, overrides --out-dir")
	rootCmd.AddCommand(convertCmd)
}

func runConvert(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	path := args[0]
	source, err := os.ReadFile(path)
	if err != nil {
		return domain.IOError(fmt.Sprintf("cannot read %s", path), err)
	}

	req, err := buildRequest(source, filepath.Base(path))
	if err != nil {
		return err
	}

	svc, err := bootstrap.NewService(appCfg, logger)
	if err != nil {
		return err
	}

	spin := ui.NewSpinner("Checking OCR engine...")
	spin.Start()
	err = svc.CheckEngines(ctx, req.Language)
	spin.Stop()
	if err != nil {
		return err
	}

	ui.Section("Converting " + req.SourceName)
	ui.KeyValue("Size", ui.FormatBytes(len(source)))
	ui.KeyValue("DPI", fmt.Sprint(domain.ClampDPI(req.DPI)))
	ui.KeyValue("Language", string(req.Language))
	ui.KeyValue("Segmentation", fmt.Sprintf("%d (%s)", req.SegMode, req.SegMode))
	fmt.Fprintln(ui.Out)

	progress := newConvertProgress()
	progress.spinner.Start()
	defer progress.stop()

	started := time.Now()
	result, err := svc.Convert(ctx, req, progress.handle)
	progress.stop()
	if err != nil {
		if domain.IsKind(err, domain.ErrorTypeCancelled) {
			ui.Warning("Conversion cancelled, no file was written")
		}
		return err
	}

	out := outputPath(result.Name)
	if err := os.MkdirAll(filepath.Dir(out), 0o755); err != nil {
		return domain.IOError("cannot create output directory", err)
	}
	if err := os.WriteFile(out, result.Document, 0o644); err != nil {
		return domain.IOError(fmt.Sprintf("cannot write %s", out), err)
	}

	ui.Success("Wrote %s (%d pages, %s) in %s", out, result.Pages, ui.FormatBytes(len(result.Document)), ui.FormatDuration(time.Since(started)))
	return nil
}

// buildRequest fills unset flags from the configuration.
func buildRequest(source []byte, name string) (domain.ConversionRequest, error) {
	req := domain.ConversionRequest{
		Source:     source,
		SourceName: name,
		DPI:        appCfg.Conversion.DPI,
		Language:   domain.Language(appCfg.Conversion.Language),
		SegMode:    appCfg.DefaultSegMode(),
	}
	if convertDPI != 0 {
		if convertDPI < domain.MinDPI || convertDPI > domain.MaxDPI {
			ui.Warning("DPI %d is outside %d-%d, using %d", convertDPI, domain.MinDPI, domain.MaxDPI, domain.ClampDPI(convertDPI))
		}
		req.DPI = convertDPI
	}
	if convertLang != "" {
		req.Language = domain.Language(convertLang)
	}
	if convertPSM != "" {
		mode, err := domain.ParseSegmentationMode(convertPSM)
		if err != nil {
			return req, err
		}
		req.SegMode = mode
	}
	return req, nil
}

func outputPath(name string) string {
	if convertOutput != "" {
		return convertOutput
	}
	dir := convertOutDir
	if dir == "" {
		dir = appCfg.Conversion.OutputDir
	}
	return filepath.Join(dir, name)
}

// convertProgress maps pipeline events onto a spinner and a page bar. The
// spinner covers opening and assembling; the bar covers OCR.
type convertProgress struct {
	spinner *ui.Spinner
	bar     *ui.ProgressBar
}

func newConvertProgress() *convertProgress {
	return &convertProgress{spinner: ui.NewSpinner("Opening document...")}
}

func (p *convertProgress) handle(ev domain.StreamEvent) {
	switch ev.Type {
	case domain.EventStart:
		p.spinner.Stop()
		if ev.Total > 0 {
			p.bar = ui.NewProgressBar(int64(ev.Total), "OCR page 1")
		}
		ui.Debug("%s", ev.Payload)
	case domain.EventPageComplete:
		if p.bar != nil {
			p.bar.Set(int64(ev.Completed))
			if ev.Completed < ev.Total {
				p.bar.Describe(fmt.Sprintf("OCR page %d", ev.Completed+1))
			}
		}
	case domain.EventAssembling:
		if p.bar != nil {
			p.bar.Finish()
			p.bar = nil
		}
		p.spinner.UpdateMessage("Assembling document...")
		p.spinner.Start()
	case domain.EventComplete:
		p.spinner.Stop()
	}
}

func (p *convertProgress) stop() {
	if p.spinner != nil {
		p.spinner.Stop()
	}
}

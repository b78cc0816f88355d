package ui

import (
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"
)

var (
	successMark = color.New(color.FgGreen, color.Bold).SprintFunc()
	errorMark   = color.New(color.FgRed, color.Bold).SprintFunc()
	warnMark    = color.New(color.FgYellow, color.Bold).SprintFunc()
	infoMark    = color.New(color.FgCyan).SprintFunc()
	heading     = color.New(color.Bold).SprintFunc()
	faint       = color.New(color.Faint).SprintFunc()
)

// Success displays a success message.
func Success(format string, args ...interface{}) {
	fmt.Fprintf(Out, "%s %s\n", successMark("✓"), fmt.Sprintf(format, args...))
}

// Error displays an error message to stderr.
func Error(format string, args ...interface{}) {
	fmt.Fprintf(ErrOut, "%s %s\n", errorMark("✗"), fmt.Sprintf(format, args...))
}

// Warning displays a warning message to stderr.
func Warning(format string, args ...interface{}) {
	fmt.Fprintf(ErrOut, "%s %s\n", warnMark("⚠"), fmt.Sprintf(format, args...))
}

// Info displays an informational message.
func Info(format string, args ...interface{}) {
	fmt.Fprintf(Out, "%s %s\n", infoMark("ℹ"), fmt.Sprintf(format, args...))
}

// Debug displays a message only in verbose mode.
func Debug(format string, args ...interface{}) {
	if verboseFlag {
		fmt.Fprintf(ErrOut, "%s\n", faint(fmt.Sprintf(format, args...)))
	}
}

// Section displays a section header.
func Section(title string) {
	fmt.Fprintf(Out, "\n%s\n%s\n\n", heading(title), strings.Repeat("=", len([]rune(title))))
}

// KeyValue displays a key-value pair.
func KeyValue(key, value string) {
	fmt.Fprintf(Out, "  %s: %s\n", key, value)
}

// Table displays rows under headers with aligned columns.
func Table(headers []string, rows [][]string) {
	w := tabwriter.NewWriter(Out, 0, 0, 2, ' ', 0)

	fmt.Fprintln(w, strings.Join(headers, "\t"))
	separator := make([]string, len(headers))
	for i, h := range headers {
		separator[i] = strings.Repeat("-", len(h))
	}
	fmt.Fprintln(w, strings.Join(separator, "\t"))

	for _, row := range rows {
		fmt.Fprintln(w, strings.Join(row, "\t"))
	}
	_ = w.Flush()
}

// FormatDuration formats a duration in a human-readable way.
func FormatDuration(d time.Duration) string {
	if d < time.Second {
		return d.Round(time.Millisecond).String()
	}
	d = d.Round(time.Second)

	hours := d / time.Hour
	d -= hours * time.Hour
	minutes := d / time.Minute
	d -= minutes * time.Minute
	seconds := d / time.Second

	if hours > 0 {
		return fmt.Sprintf("%dh %dm %ds", hours, minutes, seconds)
	}
	if minutes > 0 {
		return fmt.Sprintf("%dm %ds", minutes, seconds)
	}
	return fmt.Sprintf("%ds", seconds)
}

// FormatBytes formats a byte count with a binary unit.
func FormatBytes(n int) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for v := int64(n) / unit; v >= unit; v /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}

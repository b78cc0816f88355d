package ui

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func capture(t *testing.T) (*bytes.Buffer, *bytes.Buffer) {
	t.Helper()
	var out, errOut bytes.Buffer
	prevOut, prevErr := Out, ErrOut
	Out, ErrOut = &out, &errOut
	InitUI(true, false)
	t.Cleanup(func() { Out, ErrOut = prevOut, prevErr })
	return &out, &errOut
}

func TestMessages(t *testing.T) {
	out, errOut := capture(t)

	Success("wrote %s", "a.docx")
	Info("pages: %d", 3)
	Error("failed")
	Warning("cancelled")
	Debug("hidden")

	assert.Equal(t, "✓ wrote a.docx\nℹ pages: 3\n", out.String())
	assert.Equal(t, "✗ failed\n⚠ cancelled\n", errOut.String())
}

func TestTable(t *testing.T) {
	out, _ := capture(t)

	Table([]string{"CODE", "NAME"}, [][]string{{"3", "automatic"}, {"11", "sparse"}})

	lines := strings.Split(strings.TrimRight(out.String(), "\n"), "\n")
	assert.Len(t, lines, 4)
	assert.Equal(t, "CODE  NAME", lines[0])
	assert.Equal(t, "----  ----", lines[1])
	assert.Equal(t, "11    sparse", lines[3])
}

func TestFormatDuration(t *testing.T) {
	assert.Equal(t, "250ms", FormatDuration(250*time.Millisecond))
	assert.Equal(t, "42s", FormatDuration(42*time.Second))
	assert.Equal(t, "2m 5s", FormatDuration(125*time.Second))
	assert.Equal(t, "1h 0m 1s", FormatDuration(time.Hour+time.Second))
}

func TestFormatBytes(t *testing.T) {
	assert.Equal(t, "512 B", FormatBytes(512))
	assert.Equal(t, "1.5 KiB", FormatBytes(1536))
	assert.Equal(t, "2.0 MiB", FormatBytes(2<<20))
}

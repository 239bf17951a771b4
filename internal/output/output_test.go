package output

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/tanq16/danzo-http/internal/utils"
)

func TestFormatBytes(t *testing.T) {
	assert.Equal(t, "512 B", FormatBytes(512))
	assert.Equal(t, "1.0 KiB", FormatBytes(1024))
	assert.Equal(t, "2.5 MiB", FormatBytes(2*1024*1024+512*1024))
	assert.Equal(t, "0 B", FormatBytes(-5))
}

func TestFormatSpeed(t *testing.T) {
	assert.Equal(t, "0 B/s", FormatSpeed(0))
	assert.Equal(t, "2.0 KiB/s", FormatSpeed(2048))
}

func TestProgressLineUsesSampledSpeed(t *testing.T) {
	line := progressLine(utils.JobProgress{Downloaded: 1024 * 1024, Total: 4 * 1024 * 1024, Speed: 3 * 1024, ETA: "00:17"})
	assert.Contains(t, line, "25.0%")
	assert.Contains(t, line, "1.0 MiB / 4.0 MiB")
	assert.Contains(t, line, "3.0 KiB/s")
	assert.Contains(t, line, "ETA 00:17")

	unknown := progressLine(utils.JobProgress{Downloaded: 2048})
	assert.NotContains(t, unknown, "%")
	assert.Contains(t, unknown, "2.0 KiB")
	assert.Contains(t, unknown, "0 B/s")
	assert.NotContains(t, unknown, "ETA")
}

func TestPrintProgressBar(t *testing.T) {
	assert.Contains(t, PrintProgressBar(50, 100, 10), "50.0%")
	assert.Contains(t, PrintProgressBar(500, 100, 10), "100.0%")
	assert.Contains(t, PrintProgressBar(10, 0, 10), "100.0%")
}

func TestManagerLifecycle(t *testing.T) {
	var buf bytes.Buffer
	m := NewManagerTo(&buf)
	ok := m.Register("https://example.com/a")
	bad := m.Register("https://example.com/b")

	m.SetStatus(ok, "pending")
	m.AddProgressBarToStream(ok, utils.JobProgress{Downloaded: 10, Total: 100, Speed: 10})
	assert.Len(t, m.outputs[ok].StreamLines, 1)
	assert.Contains(t, m.outputs[ok].StreamLines[0], "10 B/s")
	m.Complete(ok, "")
	m.ReportError(bad, errors.New("boom"))

	assert.Equal(t, "success", m.outputs[ok].Status)
	assert.Empty(t, m.outputs[ok].StreamLines)
	assert.Equal(t, "error", m.outputs[bad].Status)

	success, failures, total := m.Counts()
	assert.Equal(t, 1, success)
	assert.Equal(t, 1, failures)
	assert.Equal(t, 2, total)

	m.ShowSummary()
	out := buf.String()
	assert.Contains(t, out, "Completed 1 of 2")
	assert.Contains(t, out, "Failed 1 of 2")
	assert.True(t, strings.Contains(out, "boom"))
}

func TestAddStreamLineKeepsTail(t *testing.T) {
	m := NewManagerTo(&bytes.Buffer{})
	id := m.Register("u")
	for range 15 {
		m.AddStreamLine(id, "line")
	}
	assert.Len(t, m.outputs[id].StreamLines, m.maxStreams)
}

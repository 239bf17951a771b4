package output

import (
	"fmt"
	"os"
	"strings"

	"github.com/dustin/go-humanize"
	"golang.org/x/term"

	"github.com/tanq16/danzo-http/internal/utils"
)

const progressBarWidth = 30

func FormatBytes(bytes int64) string {
	return humanize.IBytes(uint64(max(bytes, 0)))
}

// FormatSpeed renders a bytes-per-second rate as measured by the transfer sampler.
func FormatSpeed(bytesPerSecond int64) string {
	return FormatBytes(bytesPerSecond) + "/s"
}

// PrintProgressBar draws a fixed-width bar followed by the completed percentage. An
// unknown total is drawn as full.
func PrintProgressBar(current, total int64, width int) string {
	if width <= 0 {
		width = progressBarWidth
	}
	percent := 1.0
	if total > 0 {
		percent = float64(min(max(current, 0), total)) / float64(total)
	}
	filled := min(int(percent*float64(width)), width)
	bar := StyleSymbols["bullet"] + strings.Repeat(StyleSymbols["hline"], filled) +
		strings.Repeat(" ", width-filled) + StyleSymbols["bullet"]
	return debugStyle.Render(fmt.Sprintf("%s %.1f%% %s ", bar, percent*100, StyleSymbols["bullet"]))
}

// progressLine is the single stream line of a downloading job: bar, sizes, speed and ETA.
// The bar is left out when the total is unknown.
func progressLine(p utils.JobProgress) string {
	parts := []string{FormatBytes(p.Downloaded)}
	if p.Total > 0 {
		parts[0] += " / " + FormatBytes(p.Total)
	}
	parts = append(parts, FormatSpeed(p.Speed))
	if p.ETA != "" {
		parts = append(parts, "ETA "+p.ETA)
	}
	text := debugStyle.Render(strings.Join(parts, " "+StyleSymbols["bullet"]+" "))
	if p.Total <= 0 {
		return text
	}
	return PrintProgressBar(p.Downloaded, p.Total, progressBarWidth) + text
}

func terminalWidth() int {
	width, _, err := term.GetSize(int(os.Stdout.Fd()))
	if err != nil || width <= 0 {
		return 80
	}
	return width
}

// wrapText splits text into rune-counted lines that fit the terminal after indent.
func wrapText(text string, indent int) []string {
	maxWidth := terminalWidth() - indent - 2
	if maxWidth <= 10 {
		maxWidth = 80
	}
	runes := []rune(text)
	if len(runes) <= maxWidth {
		return []string{text}
	}
	var lines []string
	for len(runes) > maxWidth {
		lines = append(lines, string(runes[:maxWidth]))
		runes = runes[maxWidth:]
	}
	if len(runes) > 0 {
		lines = append(lines, string(runes))
	}
	return lines
}

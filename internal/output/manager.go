package output

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/term"

	"github.com/tanq16/danzo-http/internal/utils"
)

const indent = 2

type jobOutput struct {
	ID          int
	URL         string
	Status      string
	Message     string
	StreamLines []string
	Complete    bool
	StartTime   time.Time
	LastUpdated time.Time
	Error       error
}

type ErrorReport struct {
	URL   string
	Error error
	Time  time.Time
}

// Manager renders one status block per job and redraws it in place on a ticker.
type Manager struct {
	out         io.Writer
	outputs     map[int]*jobOutput
	mutex       sync.RWMutex
	numLines    int
	maxStreams  int // Max output stream lines per job
	errors      []ErrorReport
	doneCh      chan struct{}
	displayTick time.Duration
	jobCount    int
	displayWg   sync.WaitGroup
}

func NewManager() *Manager {
	return NewManagerTo(os.Stdout)
}

func NewManagerTo(out io.Writer) *Manager {
	return &Manager{
		out:         out,
		outputs:     make(map[int]*jobOutput),
		maxStreams:  10,
		doneCh:      make(chan struct{}),
		displayTick: 300 * time.Millisecond,
	}
}

func (m *Manager) Register(url string) int {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.jobCount++
	m.outputs[m.jobCount] = &jobOutput{
		ID:          m.jobCount,
		URL:         url,
		Status:      "pending",
		StartTime:   time.Now(),
		LastUpdated: time.Now(),
	}
	return m.jobCount
}

func (m *Manager) update(id int, fn func(info *jobOutput)) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	if info, exists := m.outputs[id]; exists {
		fn(info)
		info.LastUpdated = time.Now()
	}
}

func (m *Manager) SetMessage(id int, message string) {
	m.update(id, func(info *jobOutput) { info.Message = message })
}

func (m *Manager) SetStatus(id int, status string) {
	m.update(id, func(info *jobOutput) { info.Status = status })
}

func (m *Manager) Complete(id int, message string) {
	m.update(id, func(info *jobOutput) {
		info.StreamLines = nil
		if message == "" {
			message = fmt.Sprintf("Completed %s", info.URL)
		}
		info.Message = message
		info.Complete = true
		info.Status = "success"
	})
}

func (m *Manager) ReportError(id int, err error) {
	m.update(id, func(info *jobOutput) {
		info.Complete = true
		info.Status = "error"
		info.Error = err
		m.errors = append(m.errors, ErrorReport{URL: info.URL, Error: err, Time: time.Now()})
	})
}

func (m *Manager) AddStreamLine(id int, line string) {
	m.update(id, func(info *jobOutput) {
		info.StreamLines = append(info.StreamLines, wrapText(line, indent+4)...)
		if len(info.StreamLines) > m.maxStreams {
			info.StreamLines = info.StreamLines[len(info.StreamLines)-m.maxStreams:]
		}
	})
}

// AddProgressBarToStream replaces the job's stream with a single progress line.
func (m *Manager) AddProgressBarToStream(id int, p utils.JobProgress) {
	line := progressLine(p)
	m.update(id, func(info *jobOutput) {
		info.StreamLines = []string{line}
	})
}

func (m *Manager) GetStatusIndicator(status string) string {
	switch status {
	case "success", "pass":
		return successStyle.Render(StyleSymbols["pass"])
	case "error", "fail":
		return errorStyle.Render(StyleSymbols["fail"])
	case "warning":
		return warningStyle.Render(StyleSymbols["warning"])
	case "pending":
		return pendingStyle.Render(StyleSymbols["pending"])
	default:
		return infoStyle.Render(StyleSymbols["bullet"])
	}
}

func styleMessage(status, message string) string {
	switch status {
	case "success":
		return successStyle.Render(message)
	case "error":
		return errorStyle.Render(message)
	case "warning":
		return warningStyle.Render(message)
	default:
		return pendingStyle.Render(message)
	}
}

func (m *Manager) sortJobs() (active, pending, completed []*jobOutput) {
	all := make([]*jobOutput, 0, len(m.outputs))
	for _, info := range m.outputs {
		all = append(all, info)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].ID < all[j].ID })
	for _, f := range all {
		if f.Complete {
			completed = append(completed, f)
		} else if f.Status == "pending" && f.Message == "" {
			pending = append(pending, f)
		} else {
			active = append(active, f)
		}
	}
	return active, pending, completed
}

func (m *Manager) updateDisplay() {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	_, termHeight, _ := term.GetSize(int(os.Stdout.Fd()))
	if termHeight <= 0 {
		termHeight = 24
	}
	availableLines := termHeight - 3

	if m.numLines > 0 {
		fmt.Fprintf(m.out, "\033[%dA\033[J", m.numLines)
	}

	active, pending, completed := m.sortJobs()
	totalNeeded := len(completed)
	for _, f := range append(active, pending...) {
		totalNeeded += 1 + len(f.StreamLines)
	}
	if totalNeeded > availableLines {
		maxCompleted := max(availableLines-(totalNeeded-len(completed)), 0)
		if len(completed) > maxCompleted {
			completed = completed[len(completed)-maxCompleted:]
		}
	}

	lineCount := 0
	emit := func(format string, args ...any) bool {
		if lineCount >= availableLines {
			return false
		}
		fmt.Fprintf(m.out, format, args...)
		lineCount++
		return true
	}
	emitStream := func(info *jobOutput) {
		pad := strings.Repeat(" ", indent+4)
		for _, line := range info.StreamLines {
			if !emit("%s%s\n", pad, streamStyle.Render(line)) {
				return
			}
		}
	}

	for _, info := range active {
		elapsed := time.Since(info.StartTime).Round(time.Second)
		if !emit("%s%s %s %s\n", strings.Repeat(" ", indent), m.GetStatusIndicator(info.Status), debugStyle.Render(elapsed.String()), styleMessage(info.Status, info.Message)) {
			break
		}
		emitStream(info)
	}
	for _, info := range pending {
		if !emit("%s%s %s\n", strings.Repeat(" ", indent), m.GetStatusIndicator(info.Status), pendingStyle.Render("Waiting...")) {
			break
		}
		emitStream(info)
	}
	if len(completed) > 10 {
		emit("%s\n", infoStyle.Render(fmt.Sprintf("%s%d links completed with varying hidden status ...", strings.Repeat(" ", indent), len(completed)-8)))
		completed = completed[len(completed)-8:]
	}
	for _, info := range completed {
		total := info.LastUpdated.Sub(info.StartTime).Round(time.Second)
		if !emit("%s%s %s %s\n", strings.Repeat(" ", indent), m.GetStatusIndicator(info.Status), debugStyle.Render(total.String()), styleMessage(info.Status, info.Message)) {
			break
		}
		emitStream(info)
	}
	m.numLines = lineCount
}

func (m *Manager) StartDisplay() {
	m.displayWg.Add(1)
	go func() {
		defer m.displayWg.Done()
		ticker := time.NewTicker(m.displayTick)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				m.updateDisplay()
			case <-m.doneCh:
				m.updateDisplay()
				m.ShowSummary()
				return
			}
		}
	}()
}

func (m *Manager) StopDisplay() {
	close(m.doneCh)
	m.displayWg.Wait()
}

func (m *Manager) displayErrors() {
	if len(m.errors) == 0 {
		return
	}
	fmt.Fprintln(m.out)
	fmt.Fprintln(m.out, strings.Repeat(" ", indent)+errorStyle.Bold(true).Render("Errors:"))
	for i, report := range m.errors {
		fmt.Fprintf(m.out, "%s%s %s %s\n",
			strings.Repeat(" ", indent+2),
			errorStyle.Render(fmt.Sprintf("%d.", i+1)),
			debugStyle.Render(fmt.Sprintf("[%s]", report.Time.Format("15:04:05"))),
			errorStyle.Render(fmt.Sprintf("URL: %s", report.URL)))
		fmt.Fprintf(m.out, "%s%s\n", strings.Repeat(" ", indent+4), errorStyle.Render(fmt.Sprintf("Error: %v", report.Error)))
	}
}

// Counts returns how many jobs succeeded and failed so far.
func (m *Manager) Counts() (success, failures, total int) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	for _, info := range m.outputs {
		switch info.Status {
		case "success":
			success++
		case "error":
			failures++
		}
	}
	return success, failures, len(m.outputs)
}

func (m *Manager) ShowSummary() {
	success, failures, total := m.Counts()
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	fmt.Fprintln(m.out)
	fmt.Fprintln(m.out, strings.Repeat(" ", indent)+success2Style.Render(fmt.Sprintf("Completed %d of %d", success, total)))
	if failures > 0 {
		fmt.Fprintln(m.out, strings.Repeat(" ", indent)+errorStyle.Render(fmt.Sprintf("Failed %d of %d", failures, total)))
	}
	m.displayErrors()
	fmt.Fprintln(m.out)
}

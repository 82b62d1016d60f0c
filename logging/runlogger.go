// Package logging persists conduct run artifacts: per-scenario event
// traces and a run summary, under a per-run directory.
package logging

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/acarl005/stripansi"

	"github.com/threadbeat/thrum/conductor"
	"github.com/threadbeat/thrum/types"
)

const (
	RunDirectoryPrefix = "conductrun-" // Standardized prefix for run directories
	SummaryFilename    = "summary.log"
	TraceFileSuffix    = ".trace.log"
)

// AsyncFile provides non-blocking file writing capabilities
type AsyncFile struct {
	file    *os.File
	queue   chan []byte
	wg      sync.WaitGroup
	mu      sync.Mutex
	stopped bool
}

// NewAsyncFile creates a new AsyncFile for non-blocking writes
func NewAsyncFile(filepath string) (*AsyncFile, error) {
	file, err := os.Create(filepath)
	if err != nil {
		return nil, fmt.Errorf("failed to create file %s: %w", filepath, err)
	}

	af := &AsyncFile{
		file:  file,
		queue: make(chan []byte, 100), // Buffer channel to reduce blocking
	}

	af.wg.Add(1)
	go af.processQueue()

	return af, nil
}

// Write queues data to be written asynchronously
func (af *AsyncFile) Write(data []byte) error {
	af.mu.Lock()
	defer af.mu.Unlock()

	if af.stopped {
		return fmt.Errorf("async file is closed")
	}

	dataCopy := make([]byte, len(data))
	copy(dataCopy, data)

	af.queue <- dataCopy
	return nil
}

// processQueue processes the write queue in the background
func (af *AsyncFile) processQueue() {
	defer af.wg.Done()

	for data := range af.queue {
		if _, err := af.file.Write(data); err != nil {
			fmt.Fprintf(os.Stderr, "Error writing to file: %v\n", err)
		}
	}
}

// Close stops the async writer and closes the file
func (af *AsyncFile) Close() error {
	af.mu.Lock()
	if !af.stopped {
		af.stopped = true
		close(af.queue)
	}
	af.mu.Unlock()

	af.wg.Wait()
	return af.file.Close()
}

// RunLogger writes one run's artifacts under <baseDir>/conductrun-<runID>/.
type RunLogger struct {
	baseDir string
	logDir  string
	runID   string
	mu      sync.Mutex
	summary *AsyncFile
	start   time.Time
}

// NewRunLogger creates the run directory and opens the summary file.
func NewRunLogger(baseDir string, runID string) (*RunLogger, error) {
	if runID == "" {
		return nil, fmt.Errorf("run ID is required")
	}
	logDir := filepath.Join(baseDir, RunDirectoryPrefix+runID)
	if err := os.MkdirAll(logDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create log directory %s: %w", logDir, err)
	}

	summary, err := NewAsyncFile(filepath.Join(logDir, SummaryFilename))
	if err != nil {
		return nil, err
	}

	l := &RunLogger{
		baseDir: baseDir,
		logDir:  logDir,
		runID:   runID,
		summary: summary,
		start:   time.Now(),
	}
	if err := summary.Write([]byte(fmt.Sprintf("run %s started %s\n", runID, l.start.Format(time.RFC3339)))); err != nil {
		return nil, err
	}
	return l, nil
}

// GetRunID returns the run ID this logger was created for.
func (l *RunLogger) GetRunID() string { return l.runID }

// Directory returns the per-run artifact directory.
func (l *RunLogger) Directory() string { return l.logDir }

// WriteTrace persists one scenario's conduct event trace, one line per
// event.
func (l *RunLogger) WriteTrace(scenario string, events []conductor.Event) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	path := filepath.Join(l.logDir, sanitizeFilename(scenario)+TraceFileSuffix)
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create trace file %s: %w", path, err)
	}
	defer f.Close()

	for i, ev := range events {
		line := fmt.Sprintf("%04d %-18s beat=%d", i, ev.Kind, ev.Beat)
		if ev.Thread != "" {
			line += " thread=" + ev.Thread
		}
		if ev.Err != nil {
			line += " err=" + stripansi.Strip(ev.Err.Error())
		}
		if _, err := fmt.Fprintln(f, line); err != nil {
			return fmt.Errorf("failed to write trace file %s: %w", path, err)
		}
	}
	return nil
}

// LogSummary appends one scenario's outcome to the run summary file.
// Error text is stripped of ANSI escapes so assertion-library coloring
// does not end up in artifacts.
func (l *RunLogger) LogSummary(scenario string, status types.Status, duration time.Duration, err error) error {
	line := fmt.Sprintf("%-30s %-5s %12s", scenario, status, duration.Round(time.Millisecond))
	if err != nil {
		line += "  " + stripansi.Strip(err.Error())
	}
	return l.summary.Write([]byte(line + "\n"))
}

// Complete finalizes the summary file and releases the logger's writers.
func (l *RunLogger) Complete(status types.Status) error {
	if err := l.summary.Write([]byte(fmt.Sprintf("run %s %s after %s\n", l.runID, status, time.Since(l.start).Round(time.Millisecond)))); err != nil {
		return err
	}
	return l.summary.Close()
}

func sanitizeFilename(name string) string {
	out := []rune(name)
	for i, r := range out {
		switch r {
		case '/', '\\', ':', ' ':
			out[i] = '_'
		}
	}
	return string(out)
}

package cli

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"
)

// ProgressReporter reports progress for multi-step operations.
type ProgressReporter interface {
	Start(total int)
	Step(name string, detail string)
	Finish()
	Error(err error)
}

// LineProgress prints one line per completed step. Unlike a redrawn bar it
// stays readable when output is captured by a scheduler or log collector.
type LineProgress struct {
	mu      sync.Mutex
	total   int
	current int
	started time.Time
	writer  io.Writer
	now     func() time.Time
}

// NewProgressReporter creates a new progress reporter that writes to w.
// If w is nil, it defaults to os.Stderr.
func NewProgressReporter(w io.Writer) *LineProgress {
	if w == nil {
		w = os.Stderr
	}
	return &LineProgress{writer: w, now: time.Now}
}

// Start resets the reporter for total steps.
func (p *LineProgress) Start(total int) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.total = total
	p.current = 0
	p.started = p.now()
}

// Step records one completed step.
func (p *LineProgress) Step(name, detail string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.current++
	if detail != "" {
		fmt.Fprintf(p.writer, "[%d/%d] %s: %s\n", p.current, p.total, name, detail)
		return
	}
	fmt.Fprintf(p.writer, "[%d/%d] %s\n", p.current, p.total, name)
}

// Finish prints the elapsed time.
func (p *LineProgress) Finish() {
	p.mu.Lock()
	defer p.mu.Unlock()

	fmt.Fprintf(p.writer, "done: %d/%d steps in %s\n",
		p.current, p.total, p.now().Sub(p.started).Round(time.Millisecond))
}

// Error reports an error during progress.
func (p *LineProgress) Error(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	fmt.Fprintf(p.writer, "error after %d/%d steps: %v\n", p.current, p.total, err)
}

package main

import (
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os"
	"sync"
	"time"

	"github.com/schollz/progressbar/v3"
)

const progressDebounce = 250 * time.Millisecond

// progressReporter receives pipeline telemetry. Implementations own any
// state they need; nothing is process-wide.
type progressReporter interface {
	Stage(stage string)
	Message(msg string)
	Counter(description string, total int) progressCounter
}

type progressCounter interface {
	Add(n int)
	Finish()
}

func newProgressReporter(args *Arguments) progressReporter {
	switch {
	case args.Progress:
		return newJSONProgress(os.Stdout, progressDebounce)
	case args.JSON:
		return quietProgress{}
	default:
		return terminalProgress{w: os.Stderr}
	}
}

// --- JSON lines ---

// jsonProgress writes one JSON object per line. Messages closer together than
// interval are dropped; stages always go out.
type jsonProgress struct {
	mu          sync.Mutex
	w           io.Writer
	interval    time.Duration
	now         func() time.Time
	lastEmit    time.Time
	lastMessage string
}

func newJSONProgress(w io.Writer, interval time.Duration) *jsonProgress {
	return &jsonProgress{w: w, interval: interval, now: time.Now}
}

func (p *jsonProgress) Stage(stage string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.emit(map[string]string{"type": "PROGRESS_STAGE", "stage": stage})
}

func (p *jsonProgress) Message(msg string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	now := p.now()
	if !p.lastEmit.IsZero() && now.Sub(p.lastEmit) < p.interval {
		return
	}
	p.lastEmit = now
	p.lastMessage = msg
	p.emit(map[string]string{"type": "PROGRESS", "message": msg})
}

// flush sends msg regardless of the debounce window, unless it was the last
// message sent.
func (p *jsonProgress) flush(msg string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if msg == p.lastMessage {
		return
	}
	p.lastEmit = p.now()
	p.lastMessage = msg
	p.emit(map[string]string{"type": "PROGRESS", "message": msg})
}

func (p *jsonProgress) emit(record map[string]string) {
	data, err := json.Marshal(record)
	if err != nil {
		log.Printf("Failed to encode progress record: %v", err)
		return
	}
	fmt.Fprintln(p.w, string(data))
}

func (p *jsonProgress) Counter(description string, total int) progressCounter {
	return &jsonCounter{p: p, description: description, total: total}
}

type jsonCounter struct {
	mu          sync.Mutex
	p           *jsonProgress
	description string
	total       int
	done        int
}

func (c *jsonCounter) Add(n int) {
	c.mu.Lock()
	c.done += n
	done := c.done
	c.mu.Unlock()
	c.p.Message(c.status(done))
}

// Finish always reports where the batch ended.
func (c *jsonCounter) Finish() {
	c.mu.Lock()
	done := c.done
	c.mu.Unlock()
	c.p.flush(c.status(done))
}

func (c *jsonCounter) status(done int) string {
	return fmt.Sprintf("%s: %s", c.description, percent(done, c.total))
}

func percent(done, total int) string {
	if total <= 0 {
		return "100.0%"
	}
	return fmt.Sprintf("%.1f%%", 100*float64(done)/float64(total))
}

// --- Terminal ---

type terminalProgress struct {
	w io.Writer
}

func (p terminalProgress) Stage(stage string) { log.Printf("== %s", stage) }

func (p terminalProgress) Message(msg string) { log.Println(msg) }

func (p terminalProgress) Counter(description string, total int) progressCounter {
	bar := progressbar.NewOptions(total,
		progressbar.OptionSetWriter(p.w),
		progressbar.OptionSetDescription(description),
		progressbar.OptionShowCount(),
	)
	return barCounter{bar: bar, w: p.w}
}

type barCounter struct {
	bar *progressbar.ProgressBar
	w   io.Writer
}

func (c barCounter) Add(n int) { c.bar.Add(n) }

func (c barCounter) Finish() {
	c.bar.Finish()
	fmt.Fprintln(c.w)
}

// --- Quiet ---

type quietProgress struct{}

func (quietProgress) Stage(string) {}
func (quietProgress) Message(string) {}
func (quietProgress) Counter(string, int) progressCounter { return quietCounter{} }

type quietCounter struct{}

func (quietCounter) Add(int) {}
func (quietCounter) Finish() {}

// Package progress reports byte-consumption progress for long-running uploads.
//
// Two strategies are provided, chosen by source capability: Reader tracks real
// byte consumption when the total size is known, and Ticker synthesizes
// progress for sources that cannot report it. Both guarantee a monotonically
// non-decreasing percentage in [0,100] that terminates at exactly 100.
package progress

import (
	"io"
	"math"
	"sync"
	"time"
)

// Func receives percentage updates. Implementations must be fast; they are
// called on the reading goroutine.
type Func func(pct int)

// Reader wraps a byte source of known total size and reports the percentage
// consumed as reads pass through it. Reporting is purely observational: the
// bytes handed to callers are never altered or delayed.
type Reader struct {
	src      io.Reader
	total    int64
	consumed int64
	last     int
	report   Func
}

// NewReader returns a Reader over src. A total of zero means an empty source:
// the tracker jumps straight to 100 and reports nothing else.
func NewReader(src io.Reader, total int64, report Func) *Reader {
	r := &Reader{src: src, total: total, report: report}
	if total <= 0 {
		r.emit(100)
	}
	return r
}

func (r *Reader) Read(p []byte) (int, error) {
	n, err := r.src.Read(p)
	if n > 0 {
		r.consumed += int64(n)
		pct := int(math.Round(float64(r.consumed) / float64(r.total) * 100))
		if pct > 100 {
			pct = 100
		}
		r.emit(pct)
	}
	if err == io.EOF {
		// Force 100 even if rounding left the accumulated percentage short.
		r.emit(100)
	}
	return n, err
}

func (r *Reader) emit(pct int) {
	if r.report == nil || pct <= r.last {
		return
	}
	r.last = pct
	r.report(pct)
}

// Ticker synthesizes progress for sources whose length is unknown. Each tick
// adds a fixed step while the percentage stays below 90; Finish snaps to 100
// and Fail resets to 0.
type Ticker struct {
	mu     sync.Mutex
	pct    int
	step   int
	report Func
	done   bool
	stop   chan struct{}
}

// DefaultStep is the fallback increment per tick.
const DefaultStep = 5

// DefaultInterval is the fallback tick interval.
const DefaultInterval = 200 * time.Millisecond

// NewTicker creates a heuristic tracker. Step and interval fall back to the
// package defaults when non-positive.
func NewTicker(step int, interval time.Duration, report Func) *Ticker {
	if step <= 0 {
		step = DefaultStep
	}
	if interval <= 0 {
		interval = DefaultInterval
	}
	t := &Ticker{step: step, report: report, stop: make(chan struct{})}
	go t.run(interval)
	return t
}

func (t *Ticker) run(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			t.tick()
		case <-t.stop:
			return
		}
	}
}

func (t *Ticker) tick() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.done {
		return
	}
	if t.pct+t.step < 90 {
		t.pct += t.step
		t.emitLocked()
	}
}

// Finish snaps the percentage to 100 and stops the ticker.
func (t *Ticker) Finish() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.done {
		return
	}
	t.done = true
	t.pct = 100
	t.emitLocked()
	close(t.stop)
}

// Fail resets the percentage to 0 and stops the ticker.
func (t *Ticker) Fail() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.done {
		return
	}
	t.done = true
	t.pct = 0
	if t.report != nil {
		t.report(0)
	}
	close(t.stop)
}

func (t *Ticker) emitLocked() {
	if t.report != nil {
		t.report(t.pct)
	}
}

// Pct returns the current synthesized percentage.
func (t *Ticker) Pct() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.pct
}

// Package recording buffers device samples for one acquisition window at a time.
package recording

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"

	"github.com/leonardotrapani/neurotype/internal/eeg"
	"github.com/leonardotrapani/neurotype/internal/logging"
	"github.com/leonardotrapani/neurotype/internal/stream"
)

// Source is the part of the device link a Collector consumes.
type Source interface {
	SubscribeSamples(fn func(eeg.Sample)) stream.Handle
	Unsubscribe(h stream.Handle) bool
}

// Collector buffers samples between Start and Stop. It owns at most one
// listener on its Source at any time.
type Collector struct {
	source    Source
	recording atomic.Bool
	log       zerolog.Logger

	mu       sync.Mutex // guards everything below
	handle   stream.Handle
	attached bool
	gen      uint64
	buf      []eeg.Sample
}

// NewCollector creates a collector on source. A nil source yields empty windows.
func NewCollector(source Source) *Collector {
	return &Collector{
		source: source,
		log:    logging.WithComponent("collector"),
	}
}

// Start opens a new window: the buffer is reset and a fresh listener replaces
// any listener left from a previous Start.
func (c *Collector) Start() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.detachLocked()
	c.buf = nil
	c.gen++
	gen := c.gen

	if c.source != nil {
		c.handle = c.source.SubscribeSamples(func(s eeg.Sample) {
			c.append(gen, s)
		})
		c.attached = true
	} else {
		c.log.Warn().Msg("no live stream, window will stay empty")
	}
	c.recording.Store(true)
	c.log.Debug().Uint64("window", gen).Msg("collection started")
}

// Stop closes the window and returns an ordered copy of the buffer. Calling
// Stop without a prior Start returns an empty slice.
func (c *Collector) Stop() []eeg.Sample {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.detachLocked()
	c.recording.Store(false)

	out := make([]eeg.Sample, len(c.buf))
	copy(out, c.buf)
	c.log.Debug().Int("samples", len(out)).Msg("collection stopped")
	return out
}

// Active reports whether a window is open.
func (c *Collector) Active() bool {
	return c.recording.Load()
}

// Len returns the number of samples buffered in the current or last window.
func (c *Collector) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.buf)
}

func (c *Collector) append(gen uint64, s eeg.Sample) {
	c.mu.Lock()
	defer c.mu.Unlock()
	// The listener may still be running after Stop or a newer Start.
	if gen != c.gen || !c.attached {
		return
	}
	c.buf = append(c.buf, s)
}

func (c *Collector) detachLocked() {
	if !c.attached {
		return
	}
	c.source.Unsubscribe(c.handle)
	c.attached = false
}

var ErrWindowBusy = errors.New("another acquisition window is active")

// Window is the process-wide acquisition lock shared by the recording and
// training flows.
type Window struct {
	mu    sync.Mutex
	owner string
}

// Acquire claims the window for owner. Re-acquiring by the current owner is
// allowed.
func (w *Window) Acquire(owner string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.owner != "" && w.owner != owner {
		return fmt.Errorf("%w (held by %s)", ErrWindowBusy, w.owner)
	}
	w.owner = owner
	return nil
}

// Release frees the window if owner holds it.
func (w *Window) Release(owner string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.owner == owner {
		w.owner = ""
	}
}

func (w *Window) Owner() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.owner
}

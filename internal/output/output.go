// Package output hands processed text to the desktop, typing it into the
// focused window or copying it to the clipboard.
package output

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/leonardotrapani/neurotype/internal/logging"
)

var ErrNoBackend = errors.New("no output backend available")

const DefaultTimeout = 5 * time.Second

type Config struct {
	// Backends are tried in order until one delivers.
	Backends []string
	Timeout  time.Duration
}

// Deliverer delivers through the first backend that succeeds.
type Deliverer struct {
	backends []Backend
	timeout  time.Duration
	log      zerolog.Logger
}

func New(cfg Config) (*Deliverer, error) {
	known := Backends()
	d := &Deliverer{
		timeout: cfg.Timeout,
		log:     logging.WithComponent("output"),
	}
	if d.timeout <= 0 {
		d.timeout = DefaultTimeout
	}
	for _, name := range cfg.Backends {
		b, ok := known[name]
		if !ok {
			return nil, fmt.Errorf("unknown output backend %q", name)
		}
		d.backends = append(d.backends, b)
	}
	if len(d.backends) == 0 {
		return nil, ErrNoBackend
	}
	return d, nil
}

// Deliver returns the name of the backend that took the text.
func (d *Deliverer) Deliver(ctx context.Context, text string) (string, error) {
	if strings.TrimSpace(text) == "" {
		return "", errors.New("cannot deliver empty text")
	}

	var errs []error
	for _, b := range d.backends {
		if err := b.Available(); err != nil {
			d.log.Debug().Err(err).Str("backend", b.Name()).Msg("backend unavailable")
			errs = append(errs, err)
			continue
		}
		bctx, cancel := context.WithTimeout(ctx, d.timeout)
		err := b.Deliver(bctx, text)
		cancel()
		if err == nil {
			d.log.Info().Str("backend", b.Name()).Int("chars", len([]rune(text))).Msg("text delivered")
			return b.Name(), nil
		}
		d.log.Warn().Err(err).Str("backend", b.Name()).Msg("delivery failed, trying next backend")
		errs = append(errs, err)
	}
	return "", fmt.Errorf("%w: %w", ErrNoBackend, errors.Join(errs...))
}

// Check reports each configured backend with its availability error.
func (d *Deliverer) Check() map[string]error {
	out := make(map[string]error, len(d.backends))
	for _, b := range d.backends {
		out[b.Name()] = b.Available()
	}
	return out
}

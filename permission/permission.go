// Package permission tracks whether the microphone and keystroke injection
// are usable. The probes run once at startup; sessions only read the result.
package permission

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"opentranscribe/log"
)

var (
	ErrMicrophone = errors.New("microphone not available")
	ErrInput      = errors.New("keystroke injection not available")
)

// Probe reports nil when a capability is usable.
type Probe func(ctx context.Context) error

type Gate struct {
	mic   Probe
	input Probe

	micOK   atomic.Bool
	inputOK atomic.Bool

	once sync.Once
	err  error
}

// New builds a gate. A nil probe means the capability is not needed.
func New(mic, input Probe) *Gate {
	return &Gate{mic: mic, input: input}
}

// Request runs the probes. Only the first call does any work; later calls
// return its result.
func (g *Gate) Request(ctx context.Context) error {
	g.once.Do(func() {
		var errs []error
		if err := run(ctx, g.mic); err != nil {
			log.Warnf("microphone probe: %v", err)
			errs = append(errs, fmt.Errorf("%w: %w", ErrMicrophone, err))
		} else {
			g.micOK.Store(true)
		}
		if err := run(ctx, g.input); err != nil {
			log.Warnf("input probe: %v", err)
			errs = append(errs, fmt.Errorf("%w: %w", ErrInput, err))
		} else {
			g.inputOK.Store(true)
		}
		g.err = errors.Join(errs...)
	})
	return g.err
}

func run(ctx context.Context, p Probe) error {
	if p == nil {
		return nil
	}
	return p(ctx)
}

// Microphone reports the microphone capability. It is false until Request
// has run.
func (g *Gate) Microphone() bool { return g.micOK.Load() }

func (g *Gate) Input() bool { return g.inputOK.Load() }

// Granted reports whether a session may start.
func (g *Gate) Granted() bool { return g.Microphone() && g.Input() }

// Static is a gate with a fixed answer, for headless runs and tests.
type Static bool

func (s Static) Granted() bool    { return bool(s) }
func (s Static) Microphone() bool { return bool(s) }

// Package replay drives epochs through the pipeline, either as fast as
// possible or paced to the recorded receiver timeline.
package replay

import (
	"context"
	"sync"
	"time"

	"github.com/signalsfoundry/gnss-sentinel/model"
)

// Mode describes how the Pacer advances through recorded epochs.
type Mode int

const (
	// Burst replays epochs as quickly as the consumer can take them.
	Burst Mode = iota
	// Paced sleeps between epochs to reproduce the recorded cadence.
	Paced
)

// Pacer feeds recorded epochs to registered listeners in order.
type Pacer struct {
	mu   sync.RWMutex
	Mode Mode

	// current tracks the receiver time of the last delivered epoch.
	current time.Time

	listeners []func(*model.Epoch)
}

// NewPacer constructs a pacer in the given mode.
func NewPacer(mode Mode) *Pacer {
	return &Pacer{Mode: mode}
}

// Now returns the receiver time of the most recently delivered epoch.
func (p *Pacer) Now() time.Time {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.current
}

// AddListener registers a callback invoked for every delivered epoch.
// Listeners must be registered before Run starts.
func (p *Pacer) AddListener(fn func(*model.Epoch)) {
	p.listeners = append(p.listeners, fn)
}

// Run delivers the epochs in order, pacing by the gap between their
// receiver times when in Paced mode. It returns a channel that is
// closed when all epochs are delivered or the context is cancelled.
func (p *Pacer) Run(ctx context.Context, epochs []*model.Epoch) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)

		var prev time.Time
		for _, epoch := range epochs {
			if p.Mode == Paced && !prev.IsZero() {
				gap := epoch.Time.Sub(prev)
				if gap > 0 {
					select {
					case <-time.After(gap):
					case <-ctx.Done():
						return
					}
				}
			}
			if ctx.Err() != nil {
				return
			}
			prev = epoch.Time

			p.mu.Lock()
			p.current = epoch.Time
			p.mu.Unlock()

			for _, fn := range p.listeners {
				fn(epoch)
			}
		}
	}()
	return done
}

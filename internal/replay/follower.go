package replay

import (
	"context"
	"time"

	"github.com/signalsfoundry/gnss-sentinel/internal/ingest"
	"github.com/signalsfoundry/gnss-sentinel/internal/logging"
	"github.com/signalsfoundry/gnss-sentinel/model"
)

// Follower tails a growing observation file, delivering epochs that
// appeared since the previous poll. Epoch keys are file-positional, so
// re-reads line up as long as the file is append-only.
type Follower struct {
	path     string
	interval time.Duration
	log      logging.Logger

	delivered int
	listeners []func(*model.Epoch)
}

// NewFollower polls path every interval for appended epochs.
func NewFollower(path string, interval time.Duration, log logging.Logger) *Follower {
	if interval <= 0 {
		interval = time.Second
	}
	return &Follower{path: path, interval: interval, log: log}
}

// AddListener registers a callback invoked for every new epoch.
// Listeners must be registered before Run starts.
func (f *Follower) AddListener(fn func(*model.Epoch)) {
	f.listeners = append(f.listeners, fn)
}

// Run polls until the context is cancelled. A transient read error is
// logged and retried on the next poll rather than ending the run.
func (f *Follower) Run(ctx context.Context) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)

		ticker := time.NewTicker(f.interval)
		defer ticker.Stop()

		f.poll(ctx)
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				f.poll(ctx)
			}
		}
	}()
	return done
}

func (f *Follower) poll(ctx context.Context) {
	epochs, err := ingest.ReadEpochsFile(f.path)
	if err != nil {
		f.log.Warn(ctx, "observation poll failed", logging.Any("error", err))
		return
	}
	if len(epochs) <= f.delivered {
		return
	}
	fresh := epochs[f.delivered:]
	f.delivered = len(epochs)
	for _, epoch := range fresh {
		for _, fn := range f.listeners {
			fn(epoch)
		}
	}
}

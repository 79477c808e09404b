// Package ephemeris resolves and caches broadcast orbital elements for
// the positioning pipeline.
package ephemeris

import (
	"context"
	"errors"
	"time"

	"github.com/signalsfoundry/gnss-sentinel/model"
)

// ErrNotFound reports that no elements are available for a satellite
// around the requested time. Callers drop the satellite from the epoch
// and continue.
var ErrNotFound = errors.New("ephemeris: elements not found")

// Provider fetches one satellite's broadcast elements valid around a
// given time. Providers may be slow (file reads, network); the Cache
// keeps them out of the per-epoch hot path.
type Provider interface {
	Elements(ctx context.Context, satID string, at time.Time) (*model.OrbitalElements, error)
}

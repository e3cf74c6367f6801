// Package seed remembers the last converged sensor configuration so the next
// measurement can start its search close to steady state.
package seed

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/ztkent/sky-quality-meter/tsl2591"
)

var (
	// ErrNotFound means no seed has been saved yet.
	ErrNotFound = errors.New("seed: no record")
	// ErrSeedCorrupt means a record exists but cannot be trusted.
	ErrSeedCorrupt = errors.New("seed: record is corrupt")
)

// Seed is the durable form of a configuration. Gain keeps its register
// encoding and integration is stored in milliseconds.
type Seed struct {
	Gain          tsl2591.Gain `json:"gain"`
	IntegrationMs int          `json:"integrationMs"`
}

func FromConfig(c tsl2591.Config) Seed {
	return Seed{Gain: c.Gain, IntegrationMs: c.Integration.Millis()}
}

// Config validates the record and converts it back to a sensor configuration.
func (s Seed) Config() (tsl2591.Config, error) {
	if !s.Gain.Valid() {
		return tsl2591.Config{}, fmt.Errorf("%w: gain %d", ErrSeedCorrupt, s.Gain)
	}
	it, ok := tsl2591.IntegrationTimeFromMillis(s.IntegrationMs)
	if !ok {
		return tsl2591.Config{}, fmt.Errorf("%w: integration %dms", ErrSeedCorrupt, s.IntegrationMs)
	}
	return tsl2591.Config{Gain: s.Gain, Integration: it}, nil
}

// Store persists one seed record.
type Store interface {
	// Load returns ErrNotFound or ErrSeedCorrupt when there is nothing usable.
	Load(ctx context.Context) (tsl2591.Config, error)
	// Save replaces the record.
	Save(ctx context.Context, config tsl2591.Config) error
}

// Overrides are explicit settings from the operator; nil means Auto.
type Overrides struct {
	Gain        *tsl2591.Gain
	Integration *tsl2591.IntegrationTime
}

// Manual reports whether either axis is fixed by the operator.
func (o Overrides) Manual() bool {
	return o.Gain != nil || o.Integration != nil
}

// Start is where a measurement cycle begins.
type Start struct {
	Config tsl2591.Config
	// Manual cycles take a single forced read and are never saved as seeds.
	Manual bool
	Seeded bool
}

// Resolve picks the starting configuration. With no overrides the saved seed
// is used when valid, otherwise the default. Any override switches to manual
// mode: explicit axes are used as given and the other axis takes the default.
func Resolve(ctx context.Context, o Overrides, store Store, log logrus.FieldLogger) Start {
	start := Start{Config: tsl2591.DefaultConfig}
	if o.Manual() {
		start.Manual = true
		if o.Gain != nil {
			start.Config.Gain = *o.Gain
		}
		if o.Integration != nil {
			start.Config.Integration = *o.Integration
		}
		return start
	}
	if store == nil {
		return start
	}

	cfg, err := store.Load(ctx)
	switch {
	case err == nil:
		start.Config = cfg
		start.Seeded = true
		log.WithField("config", cfg.String()).Info("smart start from saved seed")
	case errors.Is(err, ErrNotFound):
		log.Debug("no saved seed, using defaults")
	default:
		log.WithError(err).Warn("discarding unusable seed, using defaults")
	}
	return start
}

package tsl2591

import (
	"time"

	"github.com/sirupsen/logrus"
)

// Preset holds the thresholds and limits of one auto-ranging policy.
type Preset struct {
	Name string
	// Full spectrum counts above High are in the saturation band.
	High uint16
	// Full spectrum counts below Low are in the underflow band.
	Low uint16
	// HardSaturation abandons ranging on a channel at 0xFFFF and reports
	// a zero-light reading instead of stepping down.
	HardSaturation bool
	MaxAttempts    int
	SettleMargin   time.Duration
}

var (
	PresetPiSQM = Preset{
		Name:         "pisqm",
		High:         60000,
		Low:          2000,
		MaxAttempts:  15,
		SettleMargin: 120 * time.Millisecond,
	}
	PresetDimSky = Preset{
		Name:         "dimsky",
		High:         60000,
		Low:          200,
		MaxAttempts:  15,
		SettleMargin: 120 * time.Millisecond,
	}
	PresetLegacy = Preset{
		Name:         "legacy",
		High:         0xFFE0,
		Low:          0x0010,
		MaxAttempts:  15,
		SettleMargin: 120 * time.Millisecond,
	}
	PresetHardSaturation = Preset{
		Name:           "hard-saturation",
		High:           60000,
		Low:            2000,
		HardSaturation: true,
		MaxAttempts:    15,
		SettleMargin:   120 * time.Millisecond,
	}
)

var presets = []Preset{PresetPiSQM, PresetDimSky, PresetLegacy, PresetHardSaturation}

// PresetByName looks up one of the named presets.
func PresetByName(name string) (Preset, bool) {
	for _, p := range presets {
		if p.Name == name {
			return p, true
		}
	}
	return Preset{}, false
}

// SettleTime is how long to wait after enabling or reconfiguring before a read.
func (p Preset) SettleTime(c Config) time.Duration {
	return c.Integration.Duration() + p.SettleMargin
}

// WorstCase bounds the wall-clock time of one ranging cycle.
func (p Preset) WorstCase() time.Duration {
	return time.Duration(p.MaxAttempts) * p.SettleTime(Config{Integration: TSL2591_INTEGRATIONTIME_600MS})
}

// Outcome says why a measurement cycle stopped.
type Outcome int

const (
	OutcomeConverged Outcome = iota // full spectrum count inside the band
	OutcomeClipped                  // above the band at Low/100ms
	OutcomeNoisy                    // below the band at Max/600ms
	OutcomeStraddled                // the band falls between two adjacent steps
	OutcomeExhausted                // attempt cap reached
	OutcomeSaturated                // hard saturation escape taken
	OutcomeManual                   // single read at a fixed configuration
	OutcomeBusFault                 // a register write failed, the cycle kept what it had
)

func (o Outcome) String() string {
	switch o {
	case OutcomeConverged:
		return "converged"
	case OutcomeClipped:
		return "clipped"
	case OutcomeNoisy:
		return "noisy"
	case OutcomeStraddled:
		return "straddled"
	case OutcomeExhausted:
		return "exhausted"
	case OutcomeSaturated:
		return "saturated"
	case OutcomeManual:
		return "manual"
	case OutcomeBusFault:
		return "busfault"
	default:
		return "unknown"
	}
}

// Sample is the result of one measurement cycle. Config is always the
// configuration that produced Reading.
type Sample struct {
	Reading  RawReading
	Config   Config
	Outcome  Outcome
	Attempts int
}

// Sensor is the part of the driver a measurement cycle needs.
type Sensor interface {
	Apply(config Config) error
	ReadChannels() (RawReading, error)
	Disable() error
}

// Ranger searches the gain/integration lattice for a configuration that keeps
// the full spectrum count inside the preset's band.
type Ranger struct {
	sensor Sensor
	preset Preset
	sleep  func(time.Duration)
}

type RangerOption func(*Ranger)

// WithSleep replaces time.Sleep for the settle waits.
func WithSleep(sleep func(time.Duration)) RangerOption {
	return func(r *Ranger) {
		r.sleep = sleep
	}
}

func NewRanger(sensor Sensor, preset Preset, opts ...RangerOption) *Ranger {
	r := &Ranger{
		sensor: sensor,
		preset: preset,
		sleep:  time.Sleep,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Ranger) Preset() Preset {
	return r.preset
}

// Range runs one bounded search starting at start. Only one axis moves per
// attempt, and the search never reverses direction within a cycle. The
// sensor is disabled when Range returns. A failed register write ends the
// cycle with OutcomeBusFault and the last reading taken, or a zero reading
// when none was.
func (r *Ranger) Range(start Config) (Sample, error) {
	defer r.disable()

	cfg := start
	if err := r.sensor.Apply(cfg); err != nil {
		return r.busFault(Sample{Config: cfg}, err), nil
	}

	sample := Sample{Config: cfg, Outcome: OutcomeExhausted}
	direction := 0
	for attempt := 1; attempt <= r.preset.MaxAttempts; attempt++ {
		r.sleep(r.preset.SettleTime(cfg))
		reading, err := r.sensor.ReadChannels()
		if err != nil {
			return sample, err
		}
		sample.Reading, sample.Config, sample.Attempts = reading, cfg, attempt

		l.WithFields(logrus.Fields{
			"attempt":     attempt,
			"full":        reading.Full,
			"ir":          reading.IR,
			"gain":        cfg.Gain.String(),
			"integration": cfg.Integration.String(),
		}).Debug("auto-range attempt")

		if r.preset.HardSaturation && reading.Saturated() {
			sample.Reading = RawReading{}
			sample.Outcome = OutcomeSaturated
			return sample, nil
		}

		var next Config
		var ok bool
		step := 0
		switch {
		case reading.Full > r.preset.High:
			next, ok = cfg.Desensitize()
			step = -1
			sample.Outcome = OutcomeClipped
		case reading.Full < r.preset.Low:
			next, ok = cfg.Sensitize()
			step = 1
			sample.Outcome = OutcomeNoisy
		default:
			sample.Outcome = OutcomeConverged
			return sample, nil
		}

		if direction != 0 && step != direction {
			sample.Outcome = OutcomeStraddled
			return sample, nil
		}
		if !ok {
			return sample, nil
		}
		direction = step

		if attempt == r.preset.MaxAttempts {
			break
		}
		if err := r.sensor.Apply(next); err != nil {
			return r.busFault(sample, err), nil
		}
		cfg = next
	}

	sample.Outcome = OutcomeExhausted
	l.WithField("config", sample.Config.String()).Warn("auto-range attempts exhausted, accepting last reading")
	return sample, nil
}

// ForcedRead takes a single reading at config without any ranging.
func (r *Ranger) ForcedRead(config Config) (Sample, error) {
	defer r.disable()

	if err := r.sensor.Apply(config); err != nil {
		return r.busFault(Sample{Config: config}, err), nil
	}
	r.sleep(r.preset.SettleTime(config))
	reading, err := r.sensor.ReadChannels()
	if err != nil {
		return Sample{Config: config}, err
	}
	return Sample{Reading: reading, Config: config, Outcome: OutcomeManual, Attempts: 1}, nil
}

func (r *Ranger) busFault(s Sample, err error) Sample {
	l.WithError(err).WithFields(logrus.Fields{
		"config":   s.Config.String(),
		"attempts": s.Attempts,
	}).Error("sensor write failed, ending cycle")
	s.Outcome = OutcomeBusFault
	return s
}

func (r *Ranger) disable() {
	if err := r.sensor.Disable(); err != nil {
		l.WithError(err).Error("failed to disable sensor")
	}
}

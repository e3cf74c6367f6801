package tsl2591

import "github.com/sirupsen/logrus"

const (
	DefaultNoiseFloor = 128
	DefaultMaxSamples = 40
)

// Averager repeats ranging cycles in very low light to reduce shot noise.
type Averager struct {
	ranger     *Ranger
	noiseFloor float64
	maxSamples int
}

func NewAverager(ranger *Ranger, noiseFloor float64, maxSamples int) *Averager {
	if maxSamples < 1 {
		maxSamples = 1
	}
	return &Averager{ranger: ranger, noiseFloor: noiseFloor, maxSamples: maxSamples}
}

// Averaged holds mean channel counts over one or more ranging cycles.
type Averaged struct {
	Full    float64
	IR      float64
	Samples int
	// Last is the final cycle; its Config is the one the means are reported against.
	Last Sample
}

// Visible is the mean full spectrum count minus the mean infrared count.
func (a Averaged) Visible() float64 {
	return a.Full - a.IR
}

// Measure runs a ranging cycle from start, then keeps repeating from the last
// configuration while the mean visible signal stays under the noise floor.
// It always stops after maxSamples cycles. Means only ever cover samples taken
// at one configuration: when a cycle settles elsewhere the means restart there.
// A hard saturation ends the measurement at the zero-light sentinel.
func (a *Averager) Measure(start Config) (Averaged, error) {
	var fullSum, irSum float64
	cfg := start
	out := Averaged{}
	for cycle := 0; cycle < a.maxSamples; cycle++ {
		sample, err := a.ranger.Range(cfg)
		if err != nil {
			return out, err
		}
		switch {
		case sample.Outcome == OutcomeSaturated:
			return Single(sample), nil
		case sample.Outcome == OutcomeBusFault && sample.Attempts == 0:
			// nothing was read
			if out.Samples == 0 {
				return Single(sample), nil
			}
			out.Last.Outcome = OutcomeBusFault
			return out, nil
		}

		if out.Samples > 0 && sample.Config != out.Last.Config {
			l.WithFields(logrus.Fields{
				"from":    out.Last.Config.String(),
				"to":      sample.Config.String(),
				"dropped": out.Samples,
			}).Debug("configuration moved, restarting low light average")
			fullSum, irSum, out.Samples = 0, 0, 0
		}
		out.Samples++
		out.Last = sample
		cfg = sample.Config

		fullSum += float64(sample.Reading.Full)
		irSum += float64(sample.Reading.IR)
		out.Full = fullSum / float64(out.Samples)
		out.IR = irSum / float64(out.Samples)

		if sample.Outcome == OutcomeBusFault || out.Visible() >= a.noiseFloor {
			break
		}
	}
	if out.Samples > 1 {
		l.WithField("samples", out.Samples).Debug("averaged low light readings")
	}
	return out, nil
}

// Single wraps one sample so manual and averaged reads share a shape.
func Single(s Sample) Averaged {
	return Averaged{
		Full:    float64(s.Reading.Full),
		IR:      float64(s.Reading.IR),
		Samples: 1,
		Last:    s,
	}
}

package tsl2591

import "math"

const (
	// Counts per µW/cm² on channel 0 at 400x gain and 100ms (datasheet).
	CountsPerMicrowatt = 264.1
	// DarkLimit is reported when the visible flux is not positive.
	DarkLimit = 25.0
)

// Calibration holds the externally supplied photometric constants.
type Calibration struct {
	M0 float64 // zero-point magnitude
	GA float64 // glass attenuation
}

var DefaultCalibration = Calibration{M0: -16.07, GA: 25.55}

// ChannelIrradiance converts channel counts to µW/cm² for config. A saturated
// channel or an unknown configuration yields (0, 0): the measurement is invalid.
func ChannelIrradiance(full, ir float64, config Config) (float64, float64) {
	if full >= float64(TSL2591_MAX_COUNT) || ir >= float64(TSL2591_MAX_COUNT) {
		return 0, 0
	}
	cpuW0 := (float64(config.Integration.Millis()) / 100.0) * (config.Gain.Multiplier() / 400.0) * CountsPerMicrowatt
	if cpuW0 == 0 {
		return 0, 0
	}
	return full / cpuW0, ir / cpuW0
}

// BrightnessMagnitude returns the sky brightness in magnitudes per square arcsecond.
func BrightnessMagnitude(fullIrradiance, irIrradiance float64, cal Calibration) float64 {
	flux := fullIrradiance - irIrradiance
	if flux <= 0 {
		return DarkLimit
	}
	return cal.M0 + cal.GA - 2.5*math.Log10(flux)
}

// Lux estimates illuminance from channel counts, based on the formula provided
// in the datasheet of the TSL2591 sensor.
func Lux(full, ir float64, config Config) float64 {
	if full >= float64(TSL2591_MAX_COUNT) || ir >= float64(TSL2591_MAX_COUNT) || full <= 0 {
		return 0
	}

	// The lux fit uses the datasheet's rounded gains, not the irradiance ones.
	var adjGain float64
	switch config.Gain {
	case TSL2591_GAIN_LOW:
		adjGain = 1.0
	case TSL2591_GAIN_MED:
		adjGain = 25.0
	case TSL2591_GAIN_HIGH:
		adjGain = 428.0
	case TSL2591_GAIN_MAX:
		adjGain = 9876.0
	default:
		return 0
	}

	cpl := (float64(config.Integration.Millis()) * adjGain) / TSL2591_LUX_DF
	if cpl == 0 {
		return 0
	}
	lux := (full - ir) * (1.0 - (ir / full)) / cpl
	if lux < 0 {
		return 0
	}
	return lux
}

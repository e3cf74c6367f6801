package tsl2591

import "time"

const (
	TSL2591_ADDR        uint16 = 0x29 ///< Default I2C address
	TSL2591_COMMAND_BIT byte   = 0xA0 ///< 1010 0000: bits 7 and 5 for 'command normal'
	TSL2591_DEVICE_ID   byte   = 0x50 ///< Value of the device id register

	TSL2591_ENABLE_POWEROFF byte = 0x00 ///< Flag for ENABLE register to disable
	TSL2591_ENABLE_POWERON  byte = 0x01 ///< Flag for ENABLE register to enable
	TSL2591_ENABLE_AEN      byte = 0x02 ///< ALS Enable. Writing a one activates the ALS.
	TSL2591_ENABLE_AIEN     byte = 0x10 ///< ALS Interrupt Enable, subject to the persist filter.

	TSL2591_LUX_DF float64 = 408.0 ///< Lux cooefficient

	TSL2591_MAX_COUNT uint16 = 0xFFFF ///< A channel at this value is saturated
)

// TSL2591 Register map
const (
	TSL2591_REGISTER_ENABLE        byte = 0x00 // Enable register
	TSL2591_REGISTER_CONTROL       byte = 0x01 // Control register
	TSL2591_REGISTER_DEVICE_ID     byte = 0x12 // Device Identification
	TSL2591_REGISTER_DEVICE_STATUS byte = 0x13 // Internal Status
	TSL2591_REGISTER_CHAN0_LOW     byte = 0x14 // Channel 0 data, low byte
	TSL2591_REGISTER_CHAN0_HIGH    byte = 0x15 // Channel 0 data, high byte
	TSL2591_REGISTER_CHAN1_LOW     byte = 0x16 // Channel 1 data, low byte
	TSL2591_REGISTER_CHAN1_HIGH    byte = 0x17 // Channel 1 data, high byte
)

// IntegrationTime is the control register encoding of the ADC integration time.
type IntegrationTime byte

const (
	TSL2591_INTEGRATIONTIME_100MS IntegrationTime = 0x00 // 100 millis
	TSL2591_INTEGRATIONTIME_200MS IntegrationTime = 0x01 // 200 millis
	TSL2591_INTEGRATIONTIME_300MS IntegrationTime = 0x02 // 300 millis
	TSL2591_INTEGRATIONTIME_400MS IntegrationTime = 0x03 // 400 millis
	TSL2591_INTEGRATIONTIME_500MS IntegrationTime = 0x04 // 500 millis
	TSL2591_INTEGRATIONTIME_600MS IntegrationTime = 0x05 // 600 millis
)

// Gain is the control register encoding of the analog gain.
type Gain byte

const (
	TSL2591_GAIN_LOW  Gain = 0x00 /// low gain (1x)
	TSL2591_GAIN_MED  Gain = 0x10 /// medium gain (24.5x)
	TSL2591_GAIN_HIGH Gain = 0x20 /// high gain (400x)
	TSL2591_GAIN_MAX  Gain = 0x30 /// max gain (9876x)
)

// Ordered from least to most sensitive.
var (
	Gains            = []Gain{TSL2591_GAIN_LOW, TSL2591_GAIN_MED, TSL2591_GAIN_HIGH, TSL2591_GAIN_MAX}
	IntegrationTimes = []IntegrationTime{
		TSL2591_INTEGRATIONTIME_100MS,
		TSL2591_INTEGRATIONTIME_200MS,
		TSL2591_INTEGRATIONTIME_300MS,
		TSL2591_INTEGRATIONTIME_400MS,
		TSL2591_INTEGRATIONTIME_500MS,
		TSL2591_INTEGRATIONTIME_600MS,
	}
)

// Valid reports whether t is one of the six integration steps.
func (t IntegrationTime) Valid() bool {
	return t <= TSL2591_INTEGRATIONTIME_600MS
}

// Millis returns the integration time in milliseconds, or 0 for an unknown encoding.
func (t IntegrationTime) Millis() int {
	if !t.Valid() {
		return 0
	}
	return (int(t) + 1) * 100
}

func (t IntegrationTime) Duration() time.Duration {
	return time.Duration(t.Millis()) * time.Millisecond
}

func (t IntegrationTime) String() string {
	switch t {
	case TSL2591_INTEGRATIONTIME_100MS:
		return "100ms"
	case TSL2591_INTEGRATIONTIME_200MS:
		return "200ms"
	case TSL2591_INTEGRATIONTIME_300MS:
		return "300ms"
	case TSL2591_INTEGRATIONTIME_400MS:
		return "400ms"
	case TSL2591_INTEGRATIONTIME_500MS:
		return "500ms"
	case TSL2591_INTEGRATIONTIME_600MS:
		return "600ms"
	default:
		return "Unknown"
	}
}

// IntegrationTimeFromMillis maps a millisecond value back to its step.
func IntegrationTimeFromMillis(ms int) (IntegrationTime, bool) {
	for _, t := range IntegrationTimes {
		if t.Millis() == ms {
			return t, true
		}
	}
	return 0, false
}

func (g Gain) Valid() bool {
	switch g {
	case TSL2591_GAIN_LOW, TSL2591_GAIN_MED, TSL2591_GAIN_HIGH, TSL2591_GAIN_MAX:
		return true
	}
	return false
}

// Multiplier returns the analog gain factor used by the irradiance conversion.
func (g Gain) Multiplier() float64 {
	switch g {
	case TSL2591_GAIN_LOW:
		return 1.0
	case TSL2591_GAIN_MED:
		return 24.5
	case TSL2591_GAIN_HIGH:
		return 400.0
	case TSL2591_GAIN_MAX:
		return 9876.0
	default:
		return 0
	}
}

func (g Gain) String() string {
	switch g {
	case TSL2591_GAIN_LOW:
		return "Low"
	case TSL2591_GAIN_MED:
		return "Medium"
	case TSL2591_GAIN_HIGH:
		return "High"
	case TSL2591_GAIN_MAX:
		return "Max"
	default:
		return "Unknown"
	}
}

// ParseGain accepts the names returned by Gain.String.
func ParseGain(s string) (Gain, bool) {
	for _, g := range Gains {
		if g.String() == s {
			return g, true
		}
	}
	return 0, false
}

// ParseIntegrationTime accepts the names returned by IntegrationTime.String.
func ParseIntegrationTime(s string) (IntegrationTime, bool) {
	for _, t := range IntegrationTimes {
		if t.String() == s {
			return t, true
		}
	}
	return 0, false
}

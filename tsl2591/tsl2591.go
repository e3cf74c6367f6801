package tsl2591

/*
 * tsl2591 - Package for measuring sky brightness with TSL2591 lux sensors.
 *
 * Ref:
 * https://github.com/adafruit/Adafruit_TSL2591_Library
 * https://github.com/mstahl/tsl2591
 *
 */

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

var l *logrus.Logger

func init() {
	l = logrus.New()
	l.Formatter = &logrus.JSONFormatter{}
	l.SetOutput(os.Stdout)
	switch strings.ToLower(os.Getenv("LOG_LEVEL")) {
	case "debug":
		l.SetLevel(logrus.DebugLevel)
	case "error":
		l.SetLevel(logrus.ErrorLevel)
	default:
		l.SetLevel(logrus.InfoLevel)
	}
}

// SetLogger replaces the package logger, so the driver shares the host's output.
func SetLogger(logger *logrus.Logger) {
	if logger != nil {
		l = logger
	}
}

var (
	ErrNotEnabled     = errors.New("sensor must be enabled")
	ErrDeviceNotFound = errors.New("no TSL2591 found on the I2C bus")
)

// Config is one point on the gain × integration time lattice.
type Config struct {
	Gain        Gain
	Integration IntegrationTime
}

// DefaultConfig is used whenever neither a seed nor an override supplies a value.
var DefaultConfig = Config{Gain: TSL2591_GAIN_MED, Integration: TSL2591_INTEGRATIONTIME_200MS}

func (c Config) Valid() bool {
	return c.Gain.Valid() && c.Integration.Valid()
}

// ControlByte is the packed value written to the control register.
func (c Config) ControlByte() byte {
	return byte(c.Integration) | byte(c.Gain)
}

func (c Config) String() string {
	return fmt.Sprintf("gain=%s integration=%s", c.Gain, c.Integration)
}

// Desensitize moves one step toward less sensitivity, lowering gain before
// integration time. It reports false when already at Low/100ms.
func (c Config) Desensitize() (Config, bool) {
	switch {
	case c.Gain > TSL2591_GAIN_LOW:
		c.Gain -= 0x10
	case c.Integration > TSL2591_INTEGRATIONTIME_100MS:
		c.Integration--
	default:
		return c, false
	}
	return c, true
}

// Sensitize moves one step toward more sensitivity, raising gain before
// integration time. It reports false when already at Max/600ms.
func (c Config) Sensitize() (Config, bool) {
	switch {
	case c.Gain < TSL2591_GAIN_MAX:
		c.Gain += 0x10
	case c.Integration < TSL2591_INTEGRATIONTIME_600MS:
		c.Integration++
	default:
		return c, false
	}
	return c, true
}

// RawReading holds the two channel counts from one read.
type RawReading struct {
	Full uint16 // channel 0, full spectrum
	IR   uint16 // channel 1, infrared
}

// Saturated reports whether either channel hit the ADC ceiling.
func (r RawReading) Saturated() bool {
	return r.Full == TSL2591_MAX_COUNT || r.IR == TSL2591_MAX_COUNT
}

// Visible is the full spectrum count minus infrared, floored at zero.
func (r RawReading) Visible() int {
	v := int(r.Full) - int(r.IR)
	if v < 0 {
		return 0
	}
	return v
}

// TSL2591 is an owned handle on one physical sensor. It is not safe for
// concurrent use; one measurement cycle must own it at a time.
type TSL2591 struct {
	bus     *RegisterBus
	config  Config
	enabled bool
}

// Connect to a TSL2591 over conn, verify its identity & set gain/timing.
// The device is left disabled.
func NewTSL2591(conn Conn, config Config) (*TSL2591, error) {
	if !config.Valid() {
		return nil, fmt.Errorf("invalid sensor configuration: %s", config)
	}
	tsl := &TSL2591{
		bus:    NewRegisterBus(conn),
		config: config,
	}

	id, err := tsl.bus.ReadByte(TSL2591_REGISTER_DEVICE_ID)
	if err != nil {
		return nil, fmt.Errorf("failed to read device id: %w", err)
	}
	if id != TSL2591_DEVICE_ID {
		return nil, fmt.Errorf("%w: device id 0x%02X", ErrDeviceNotFound, id)
	}

	if err := tsl.Apply(config); err != nil {
		return nil, err
	}
	if err := tsl.Disable(); err != nil {
		return nil, err
	}
	return tsl, nil
}

func (tsl *TSL2591) Config() Config {
	return tsl.config
}

func (tsl *TSL2591) Enabled() bool {
	return tsl.enabled
}

// Enable powers the sensor and starts ALS conversions.
func (tsl *TSL2591) Enable() error {
	err := tsl.bus.WriteByte(
		TSL2591_REGISTER_ENABLE,
		TSL2591_ENABLE_POWERON|TSL2591_ENABLE_AEN|TSL2591_ENABLE_AIEN,
	)
	if err != nil {
		return err
	}
	tsl.enabled = true
	return nil
}

// Disable stops conversions. It should be the last call of a measurement cycle.
func (tsl *TSL2591) Disable() error {
	if err := tsl.bus.WriteByte(TSL2591_REGISTER_ENABLE, TSL2591_ENABLE_POWEROFF); err != nil {
		return err
	}
	tsl.enabled = false
	return nil
}

// Set the gain for the sensor, leaving it enabled
func (tsl *TSL2591) SetGain(gain Gain) error {
	return tsl.Apply(Config{Gain: gain, Integration: tsl.config.Integration})
}

// Set the integration timing for the sensor, leaving it enabled
func (tsl *TSL2591) SetIntegration(timing IntegrationTime) error {
	return tsl.Apply(Config{Gain: tsl.config.Gain, Integration: timing})
}

// Apply re-powers the sensor and writes both settings in one control byte.
// Any reading taken afterwards must wait for SettleTime.
func (tsl *TSL2591) Apply(config Config) error {
	if !config.Valid() {
		return fmt.Errorf("invalid sensor configuration: %s", config)
	}
	if err := tsl.Enable(); err != nil {
		return err
	}
	if err := tsl.bus.WriteByte(TSL2591_REGISTER_CONTROL, config.ControlByte()); err != nil {
		return err
	}
	tsl.config = config
	return nil
}

// ReadChannels reads channel 0 then channel 1. A failed bus read is logged and
// counted as zero; the only error is calling it on a disabled sensor.
func (tsl *TSL2591) ReadChannels() (RawReading, error) {
	if !tsl.enabled {
		return RawReading{}, ErrNotEnabled
	}

	full, err := tsl.bus.ReadWord(TSL2591_REGISTER_CHAN0_LOW)
	if err != nil {
		l.WithError(err).Error("full spectrum read failed, using 0")
		full = 0
	}
	ir, err := tsl.bus.ReadWord(TSL2591_REGISTER_CHAN1_LOW)
	if err != nil {
		l.WithError(err).Error("infrared read failed, using 0")
		ir = 0
	}

	l.Debugf("Channel 0: %v, Channel 1: %v", full, ir)
	return RawReading{Full: full, IR: ir}, nil
}

// Close powers the sensor down and releases the bus.
func (tsl *TSL2591) Close() error {
	derr := tsl.Disable()
	if err := tsl.bus.Close(); err != nil {
		return err
	}
	return derr
}

// Package config reads the meter's settings from the environment.
package config

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/ztkent/sky-quality-meter/internal/seed"
	"github.com/ztkent/sky-quality-meter/tsl2591"
)

const (
	ModeServer = "server"
	ModeOnce   = "once"

	DriverDevfs  = "devfs"
	DriverPeriph = "periph"

	SeedStoreFile   = "file"
	SeedStoreSQLite = "sqlite"

	auto = "Auto"
)

// Config holds application configuration
type Config struct {
	Mode     string
	Port     string
	LogLevel string
	LogFile  string

	SSL      bool
	CertPath string
	KeyPath  string

	I2CDriver  string // "devfs" | "periph"
	I2CBus     string // device path for devfs, bus name for periph
	I2CAddress uint16

	Calibration tsl2591.Calibration
	Overrides   seed.Overrides
	Preset      tsl2591.Preset

	LowLightAveraging bool
	NoiseFloor        float64
	MaxSamples        int

	OverlayPath string
	SeedStore   string // "file" | "sqlite"
	SeedPath    string
	DBPath      string
	Interval    time.Duration
}

// Load builds a Config from getenv (usually os.Getenv). Unset variables take
// their defaults; malformed ones are reported together.
func Load(getenv func(string) string) (Config, error) {
	get := func(key, def string) string {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			return v
		}
		return def
	}

	cfg := Config{
		Mode:        get("SQM_MODE", ModeServer),
		CertPath:    get("SSL_CERT", "cert.pem"),
		KeyPath:     get("SSL_KEY", "key.pem"),
		LogLevel:    get("LOG_LEVEL", "info"),
		LogFile:     get("SQM_LOG_FILE", ""),
		I2CDriver:   get("SQM_I2C_DRIVER", DriverDevfs),
		I2CBus:      get("SQM_I2C_BUS", "/dev/i2c-1"),
		OverlayPath: get("SQM_OVERLAY_PATH", "/home/pi/allsky/config/overlay/extra/tsl2591.json"),
		SeedStore:   get("SQM_SEED_STORE", SeedStoreFile),
		SeedPath:    get("SQM_SEED_PATH", "tsl2591.seed.json"),
		DBPath:      get("SQM_DB_PATH", "skyquality.db"),
	}

	var errs []error
	fail := func(key, value string, err error) {
		errs = append(errs, fmt.Errorf("%s=%q: %w", key, value, err))
	}

	switch cfg.Mode {
	case ModeServer, ModeOnce:
	default:
		fail("SQM_MODE", cfg.Mode, errors.New("want server or once"))
	}
	switch cfg.I2CDriver {
	case DriverDevfs, DriverPeriph:
	default:
		fail("SQM_I2C_DRIVER", cfg.I2CDriver, errors.New("want devfs or periph"))
	}
	switch cfg.SeedStore {
	case SeedStoreFile, SeedStoreSQLite:
	default:
		fail("SQM_SEED_STORE", cfg.SeedStore, errors.New("want file or sqlite"))
	}

	ssl := get("SSL", "false")
	if v, err := strconv.ParseBool(ssl); err != nil {
		fail("SSL", ssl, err)
	} else {
		cfg.SSL = v
	}
	if cfg.SSL {
		cfg.Port = get("PORT", "443")
	} else {
		cfg.Port = get("PORT", "80")
	}

	addr := get("SQM_I2C_ADDRESS", "0x29")
	if v, err := strconv.ParseUint(strings.TrimPrefix(strings.ToLower(addr), "0x"), 16, 7); err != nil {
		fail("SQM_I2C_ADDRESS", addr, err)
	} else {
		cfg.I2CAddress = uint16(v)
	}

	m0 := get("SQM_M0", strconv.FormatFloat(tsl2591.DefaultCalibration.M0, 'f', -1, 64))
	if v, err := parseFinite(m0); err != nil {
		fail("SQM_M0", m0, err)
	} else {
		cfg.Calibration.M0 = v
	}
	ga := get("SQM_GA", strconv.FormatFloat(tsl2591.DefaultCalibration.GA, 'f', -1, 64))
	if v, err := parseFinite(ga); err != nil {
		fail("SQM_GA", ga, err)
	} else {
		cfg.Calibration.GA = v
	}

	gain := get("SQM_GAIN", auto)
	if gain != auto {
		g, ok := tsl2591.ParseGain(gain)
		if !ok {
			fail("SQM_GAIN", gain, errors.New("want Auto, Low, Medium, High or Max"))
		} else {
			cfg.Overrides.Gain = &g
		}
	}
	integration := get("SQM_INTEGRATION", auto)
	if integration != auto {
		it, ok := tsl2591.ParseIntegrationTime(integration)
		if !ok {
			fail("SQM_INTEGRATION", integration, errors.New("want Auto or 100ms..600ms"))
		} else {
			cfg.Overrides.Integration = &it
		}
	}

	presetName := get("SQM_PRESET", tsl2591.PresetPiSQM.Name)
	if p, ok := tsl2591.PresetByName(presetName); !ok {
		fail("SQM_PRESET", presetName, errors.New("unknown preset"))
	} else {
		cfg.Preset = p
	}

	averaging := get("SQM_LOW_LIGHT_AVERAGING", "true")
	if v, err := strconv.ParseBool(averaging); err != nil {
		fail("SQM_LOW_LIGHT_AVERAGING", averaging, err)
	} else {
		cfg.LowLightAveraging = v
	}
	floor := get("SQM_NOISE_FLOOR", strconv.Itoa(tsl2591.DefaultNoiseFloor))
	if v, err := parseFinite(floor); err != nil || v < 0 {
		fail("SQM_NOISE_FLOOR", floor, errors.New("want a non-negative number"))
	} else {
		cfg.NoiseFloor = v
	}
	samples := get("SQM_MAX_SAMPLES", strconv.Itoa(tsl2591.DefaultMaxSamples))
	if v, err := strconv.Atoi(samples); err != nil || v < 1 {
		fail("SQM_MAX_SAMPLES", samples, errors.New("want a positive integer"))
	} else {
		cfg.MaxSamples = v
	}

	interval := get("SQM_INTERVAL", "60s")
	if d, err := time.ParseDuration(interval); err != nil || d <= 0 {
		fail("SQM_INTERVAL", interval, errors.New("want a positive duration"))
	} else {
		cfg.Interval = d
	}

	if len(errs) > 0 {
		return Config{}, errors.Join(errs...)
	}
	return cfg, nil
}

func parseFinite(s string) (float64, error) {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, errors.New("not a finite number")
	}
	return v, nil
}

package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/ztkent/sky-quality-meter/internal/config"
	"github.com/ztkent/sky-quality-meter/internal/seed"
	"github.com/ztkent/sky-quality-meter/internal/skymeter"
	"github.com/ztkent/sky-quality-meter/internal/tools"
	"github.com/ztkent/sky-quality-meter/tsl2591"
)

/*
	Entry point for the Sky Quality Meter.
	In "once" mode it takes a single reading for the allsky overlay and exits,
	which suits a cron job or an allsky module hook. In "server" mode it runs
	the dashboard and records a reading every SQM_INTERVAL.
*/

func main() {
	cfg, err := config.Load(os.Getenv)
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		os.Exit(2)
	}

	log, err := tools.NewLogger(cfg.LogLevel, cfg.LogFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to open log file: %v\n", err)
		os.Exit(1)
	}
	tsl2591.SetLogger(log)

	pid := os.Getpid()
	log.WithFields(logrus.Fields{"pid": pid, "mode": cfg.Mode}).Info("Sky Quality Meter")

	device, err := connectSensor(cfg)
	if err != nil {
		log.WithError(err).Fatal("Failed to connect to the TSL2591 sensor")
	}
	defer device.Close()

	// The results DB is optional in once mode, unless it also holds the seed.
	var db *sql.DB
	if cfg.Mode == config.ModeServer || cfg.SeedStore == config.SeedStoreSQLite {
		db, err = tools.ConnectSqlite(cfg.DBPath, log)
		if err != nil {
			log.WithError(err).Fatal("Failed to connect to the sqlite database")
		}
		defer db.Close()
	}

	var store seed.Store
	if cfg.SeedStore == config.SeedStoreSQLite {
		store = seed.NewSQLiteStore(db)
	} else {
		store = seed.NewFileStore(cfg.SeedPath)
	}

	meter := skymeter.New(device, store, db, log, skymeter.Options{
		Preset:            cfg.Preset,
		Calibration:       cfg.Calibration,
		Overrides:         cfg.Overrides,
		LowLightAveraging: cfg.LowLightAveraging,
		NoiseFloor:        cfg.NoiseFloor,
		MaxSamples:        cfg.MaxSamples,
		OverlayPath:       cfg.OverlayPath,
		DBPath:            cfg.DBPath,
		Interval:          cfg.Interval,
	})
	meter.Pid = pid

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.Mode == config.ModeOnce {
		res, err := meter.Measure(ctx)
		if err != nil {
			log.WithError(err).Error("Measurement failed")
			device.Close()
			os.Exit(1)
		}
		if err := meter.Record(ctx, res); err != nil {
			log.WithError(err).Warn("Failed to record result")
		}
		fmt.Printf("%.2f\n", res.RoundedMagnitude())
		return
	}

	// Listen for any result messages from our jobs, record them in sqlite
	go meter.MonitorAndRecordResults(ctx)
	if _, err := meter.StartJob(); err != nil {
		log.WithError(err).Error("Failed to start the measurement job")
	}

	srv := &http.Server{Addr: ":" + cfg.Port, Handler: meter.NewRouter()}
	go func() {
		<-ctx.Done()
		meter.StopJob()
		srv.Shutdown(context.Background())
	}()

	if cfg.SSL {
		// Generate a self-signed certificate if one doesn't exist
		if err := tools.EnsureCertificate(cfg.CertPath, cfg.KeyPath); err != nil {
			log.WithError(err).Fatal("Failed to prepare the TLS certificate")
		}
		log.Infof("Starting HTTPS server on port %s", cfg.Port)
		err = srv.ListenAndServeTLS(cfg.CertPath, cfg.KeyPath)
	} else {
		log.Infof("Starting HTTP server on port %s", cfg.Port)
		err = srv.ListenAndServe()
	}
	if err != nil && err != http.ErrServerClosed {
		log.WithError(err).Fatal("Failed to start server")
	}
}

func connectSensor(cfg config.Config) (*tsl2591.TSL2591, error) {
	var conn tsl2591.Conn
	var err error
	switch cfg.I2CDriver {
	case config.DriverPeriph:
		conn, err = tsl2591.OpenPeriph(cfg.I2CBus, cfg.I2CAddress)
	default:
		conn, err = tsl2591.OpenDevfs(cfg.I2CBus, cfg.I2CAddress)
	}
	if err != nil {
		return nil, err
	}
	device, err := tsl2591.NewTSL2591(conn, tsl2591.DefaultConfig)
	if err != nil {
		conn.Close()
		return nil, err
	}
	return device, nil
}

package skymeter

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/ztkent/sky-quality-meter/internal/seed"
	"github.com/ztkent/sky-quality-meter/tsl2591"
)

const MAX_JOB_DURATION = 24 * time.Hour

var (
	// ErrBusy is returned when a measurement cycle already owns the sensor.
	ErrBusy          = errors.New("a measurement is already in progress")
	ErrJobRunning    = errors.New("the meter is already started")
	ErrJobNotRunning = errors.New("the meter is already stopped")
)

// Options are the measurement settings resolved from configuration.
type Options struct {
	Preset            tsl2591.Preset
	Calibration       tsl2591.Calibration
	Overrides         seed.Overrides
	LowLightAveraging bool
	NoiseFloor        float64
	MaxSamples        int
	OverlayPath       string
	DBPath            string
	Interval          time.Duration
	// Sleep replaces time.Sleep for sensor settle waits.
	Sleep func(time.Duration)
}

// SkyMeter owns the sensor and turns measurement cycles into results.
type SkyMeter struct {
	ranger   *tsl2591.Ranger
	averager *tsl2591.Averager
	seeds    seed.Store
	opts     Options
	log      logrus.FieldLogger
	now      func() time.Time

	ResultsDB   *sql.DB
	ResultsChan chan Result
	Pid         int

	// cycle gives one measurement exclusive use of the sensor.
	cycle sync.Mutex

	jobMu   sync.Mutex
	cancel  context.CancelFunc
	running bool
	jobID   string
	last    *Result
	// busFault is set while the latest cycle could not write to the sensor.
	busFault bool
}

// Result is the outcome of one measurement.
type Result struct {
	JobID         string              `json:"jobID"`
	Magnitude     float64             `json:"magnitude"`
	Lux           float64             `json:"lux"`
	Full          float64             `json:"full"`
	IR            float64             `json:"ir"`
	Gain          string              `json:"gain"`
	GainCode      int                 `json:"gainCode"`
	IntegrationMs int                 `json:"integrationMs"`
	Outcome       string              `json:"outcome"`
	Attempts      int                 `json:"attempts"`
	Samples       int                 `json:"samples"`
	Seeded        bool                `json:"seeded"`
	Manual        bool                `json:"manual"`
	Calibration   tsl2591.Calibration `json:"calibration"`
	Timestamp     time.Time           `json:"timestamp"`
}

func New(sensor tsl2591.Sensor, seeds seed.Store, db *sql.DB, log logrus.FieldLogger, opts Options) *SkyMeter {
	var rangerOpts []tsl2591.RangerOption
	if opts.Sleep != nil {
		rangerOpts = append(rangerOpts, tsl2591.WithSleep(opts.Sleep))
	}
	if opts.Interval <= 0 {
		opts.Interval = time.Minute
	}
	m := &SkyMeter{
		ranger:      tsl2591.NewRanger(sensor, opts.Preset, rangerOpts...),
		seeds:       seeds,
		opts:        opts,
		log:         log,
		now:         time.Now,
		ResultsDB:   db,
		ResultsChan: make(chan Result),
	}
	if opts.LowLightAveraging {
		m.averager = tsl2591.NewAverager(m.ranger, opts.NoiseFloor, opts.MaxSamples)
	}
	return m
}

// Measure runs one complete cycle: resolve the start configuration, range
// (or force) a reading, compute the magnitude, then persist the seed and the
// overlay record. A degraded reading is still a result, including one cut
// short by a failed sensor write; a busy sensor and failed reads are errors.
func (m *SkyMeter) Measure(ctx context.Context) (Result, error) {
	if !m.cycle.TryLock() {
		return Result{}, ErrBusy
	}
	defer m.cycle.Unlock()

	start := seed.Resolve(ctx, m.opts.Overrides, m.seeds, m.log)

	var avg tsl2591.Averaged
	switch {
	case start.Manual:
		s, err := m.ranger.ForcedRead(start.Config)
		if err != nil {
			return Result{}, fmt.Errorf("forced read failed: %w", err)
		}
		avg = tsl2591.Single(s)
		m.log.WithField("config", start.Config.String()).Info("using manual sensor settings")
	case m.averager != nil:
		a, err := m.averager.Measure(start.Config)
		if err != nil {
			return Result{}, fmt.Errorf("measurement failed: %w", err)
		}
		avg = a
	default:
		s, err := m.ranger.Range(start.Config)
		if err != nil {
			return Result{}, fmt.Errorf("measurement failed: %w", err)
		}
		avg = tsl2591.Single(s)
	}

	res := m.compute(avg, start)

	fault := avg.Last.Outcome == tsl2591.OutcomeBusFault
	if !start.Manual && !fault && avg.Last.Outcome != tsl2591.OutcomeSaturated && m.seeds != nil {
		if err := m.seeds.Save(ctx, avg.Last.Config); err != nil {
			m.log.WithError(err).Error("failed to save seed")
		}
	}
	if m.opts.OverlayPath != "" {
		if err := WriteOverlay(m.opts.OverlayPath, res); err != nil {
			m.log.WithError(err).Error("failed to write overlay record")
		}
	}

	m.jobMu.Lock()
	m.last = &res
	m.busFault = fault
	m.jobMu.Unlock()

	m.log.WithFields(logrus.Fields{
		"mpsas":       fmt.Sprintf("%.2f", res.Magnitude),
		"gain":        res.Gain,
		"integration": res.IntegrationMs,
		"outcome":     res.Outcome,
		"samples":     res.Samples,
	}).Info("sky brightness measured")
	return res, nil
}

func (m *SkyMeter) compute(avg tsl2591.Averaged, start seed.Start) Result {
	cfg := avg.Last.Config
	fullC, irC := tsl2591.ChannelIrradiance(avg.Full, avg.IR, cfg)
	if fullC == 0 && irC == 0 && (avg.Full > 0 || avg.IR > 0) {
		m.log.WithFields(logrus.Fields{"full": avg.Full, "ir": avg.IR}).Warn("measurement invalid, reporting dark limit")
	}
	return Result{
		Magnitude:     tsl2591.BrightnessMagnitude(fullC, irC, m.opts.Calibration),
		Lux:           tsl2591.Lux(avg.Full, avg.IR, cfg),
		Full:          avg.Full,
		IR:            avg.IR,
		Gain:          cfg.Gain.String(),
		GainCode:      int(cfg.Gain),
		IntegrationMs: cfg.Integration.Millis(),
		Outcome:       avg.Last.Outcome.String(),
		Attempts:      avg.Last.Attempts,
		Samples:       avg.Samples,
		Seeded:        start.Seeded,
		Manual:        start.Manual,
		Calibration:   m.opts.Calibration,
		Timestamp:     m.now(),
	}
}

// RoundedMagnitude is the magnitude as published: two decimal places.
func (r Result) RoundedMagnitude() float64 {
	return math.Round(r.Magnitude*100) / 100
}

// StartJob begins measuring every Interval until StopJob or MAX_JOB_DURATION.
func (m *SkyMeter) StartJob() (string, error) {
	m.jobMu.Lock()
	defer m.jobMu.Unlock()
	if m.running {
		return "", ErrJobRunning
	}

	ctx, cancel := context.WithTimeout(context.Background(), MAX_JOB_DURATION)
	m.cancel = cancel
	m.running = true
	m.jobID = uuid.New().String()
	go m.runJob(ctx, m.jobID)
	return m.jobID, nil
}

func (m *SkyMeter) StopJob() error {
	m.jobMu.Lock()
	defer m.jobMu.Unlock()
	if !m.running {
		return ErrJobNotRunning
	}
	m.cancel()
	m.running = false
	return nil
}

// Running reports whether the periodic job is active.
func (m *SkyMeter) Running() bool {
	m.jobMu.Lock()
	defer m.jobMu.Unlock()
	return m.running
}

// LastResult returns the most recent measurement of this process, if any.
func (m *SkyMeter) LastResult() (Result, bool) {
	m.jobMu.Lock()
	defer m.jobMu.Unlock()
	if m.last == nil {
		return Result{}, false
	}
	return *m.last, true
}

// Connected reports whether the sensor accepted the writes of the latest cycle.
func (m *SkyMeter) Connected() bool {
	m.jobMu.Lock()
	defer m.jobMu.Unlock()
	return !m.busFault
}

func (m *SkyMeter) runJob(ctx context.Context, jobID string) {
	log := m.log.WithField("jobID", jobID)
	log.WithField("interval", m.opts.Interval.String()).Info("It's going to be a dark night!")
	defer func() {
		m.jobMu.Lock()
		if m.jobID == jobID {
			m.running = false
		}
		m.jobMu.Unlock()
	}()

	ticker := time.NewTicker(m.opts.Interval)
	defer ticker.Stop()
	for ctx.Err() == nil {
		res, err := m.Measure(ctx)
		if err != nil {
			log.WithError(err).Error("The sensor failed to measure sky brightness")
		} else {
			res.JobID = jobID
			select {
			case m.ResultsChan <- res:
			case <-ctx.Done():
			}
		}

		select {
		case <-ctx.Done():
		case <-ticker.C:
		}
	}
	log.Info("Job Cancelled, stopping sensor")
}

// MonitorAndRecordResults reads from ResultsChan and writes the results to sqlite.
func (m *SkyMeter) MonitorAndRecordResults(ctx context.Context) {
	m.log.Info("Monitoring for new sky quality results...")
	for {
		select {
		case <-ctx.Done():
			return
		case result := <-m.ResultsChan:
			if err := m.Record(ctx, result); err != nil {
				m.log.WithError(err).Error("failed to record result")
			}
		}
	}
}

// Record stores one result in the history table.
func (m *SkyMeter) Record(ctx context.Context, result Result) error {
	if m.ResultsDB == nil {
		return nil
	}
	if math.IsNaN(result.Magnitude) || math.IsInf(result.Magnitude, 0) {
		return fmt.Errorf("magnitude %v is invalid, skipping record", result.Magnitude)
	}
	_, err := m.ResultsDB.ExecContext(ctx,
		`INSERT INTO sky_quality (job_id, magnitude, lux, full_count, ir_count, gain, integration_ms, outcome, samples, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		result.JobID,
		result.RoundedMagnitude(),
		result.Lux,
		result.Full,
		result.IR,
		result.GainCode,
		result.IntegrationMs,
		result.Outcome,
		result.Samples,
		result.Timestamp.UTC().Format("2006-01-02 15:04:05"),
	)
	if err != nil {
		return fmt.Errorf("failed to insert result: %w", err)
	}
	return nil
}

package tsl2591

import "testing"

func TestAverager_CapsDarkSky(t *testing.T) {
	conn := newFakeConn(RawReading{Full: 10, IR: 2})
	r, _ := newTestRanger(conn, PresetPiSQM)
	avg := NewAverager(r, DefaultNoiseFloor, DefaultMaxSamples)

	got, err := avg.Measure(DefaultConfig)
	if err != nil {
		t.Fatalf("Measure failed: %v", err)
	}
	if got.Samples != 40 {
		t.Errorf("got %d samples, want 40", got.Samples)
	}
	if got.Full != 10 || got.IR != 2 {
		t.Errorf("got means (%v, %v), want (10, 2)", got.Full, got.IR)
	}
	want := Config{Gain: TSL2591_GAIN_MAX, Integration: TSL2591_INTEGRATIONTIME_600MS}
	if got.Last.Config != want {
		t.Errorf("got last config %v, want %v", got.Last.Config, want)
	}
}

func TestAverager_StopsAboveNoiseFloor(t *testing.T) {
	conn := newFakeConn(RawReading{Full: 3000, IR: 100})
	r, _ := newTestRanger(conn, PresetPiSQM)
	avg := NewAverager(r, DefaultNoiseFloor, DefaultMaxSamples)

	got, err := avg.Measure(DefaultConfig)
	if err != nil {
		t.Fatalf("Measure failed: %v", err)
	}
	if got.Samples != 1 || got.Full != 3000 || got.IR != 100 {
		t.Errorf("got %+v, want a single sample", got)
	}
}

func TestAverager_MeanClearsFloor(t *testing.T) {
	// Visible signal of 100 then 200 counts: the running mean reaches 150.
	conn := newFakeConn(
		RawReading{Full: 2100, IR: 2000},
		RawReading{Full: 2300, IR: 2100},
		RawReading{Full: 9999, IR: 0},
	)
	r, _ := newTestRanger(conn, PresetPiSQM)
	avg := NewAverager(r, DefaultNoiseFloor, DefaultMaxSamples)

	got, err := avg.Measure(DefaultConfig)
	if err != nil {
		t.Fatalf("Measure failed: %v", err)
	}
	if got.Samples != 2 || got.Full != 2200 || got.IR != 2050 {
		t.Errorf("got %+v, want 2 samples averaging (2200, 2050)", got)
	}
}

func TestAverager_SaturationEndsEarly(t *testing.T) {
	conn := newFakeConn(RawReading{Full: 0xFFFF, IR: 0xFFFF})
	r, _ := newTestRanger(conn, PresetHardSaturation)
	avg := NewAverager(r, DefaultNoiseFloor, DefaultMaxSamples)

	got, err := avg.Measure(DefaultConfig)
	if err != nil {
		t.Fatalf("Measure failed: %v", err)
	}
	if got.Samples != 1 || got.Last.Outcome != OutcomeSaturated {
		t.Errorf("got %+v, want one saturated sample", got)
	}
}

func TestAverager_SaturationAfterDarkCycle(t *testing.T) {
	// A dark cycle under the floor, then the sky floods the sensor.
	conn := newFakeConn(
		RawReading{Full: 2050, IR: 2000},
		RawReading{Full: 0xFFFF, IR: 0xFFFF},
	)
	r, _ := newTestRanger(conn, PresetHardSaturation)
	avg := NewAverager(r, DefaultNoiseFloor, DefaultMaxSamples)

	got, err := avg.Measure(DefaultConfig)
	if err != nil {
		t.Fatalf("Measure failed: %v", err)
	}
	if got.Last.Outcome != OutcomeSaturated || got.Full != 0 || got.IR != 0 || got.Samples != 1 {
		t.Errorf("got %+v, want the zero-light sentinel alone", got)
	}
	fullC, irC := ChannelIrradiance(got.Full, got.IR, got.Last.Config)
	if mag := BrightnessMagnitude(fullC, irC, DefaultCalibration); mag != DarkLimit {
		t.Errorf("got magnitude %v, want %v", mag, DarkLimit)
	}
}

func TestAverager_RestartsWhenConfigMoves(t *testing.T) {
	// Two dim cycles at Medium/200ms, then the sky darkens below the band
	// and the third cycle steps up to High/200ms.
	conn := newFakeConn(
		RawReading{Full: 2100, IR: 2050},
		RawReading{Full: 2100, IR: 2050},
		RawReading{Full: 1000, IR: 990},
		RawReading{Full: 16000, IR: 15900},
	)
	r, _ := newTestRanger(conn, PresetPiSQM)
	avg := NewAverager(r, DefaultNoiseFloor, 3)

	got, err := avg.Measure(DefaultConfig)
	if err != nil {
		t.Fatalf("Measure failed: %v", err)
	}
	want := Config{Gain: TSL2591_GAIN_HIGH, Integration: TSL2591_INTEGRATIONTIME_200MS}
	if got.Last.Config != want {
		t.Fatalf("got last config %v, want %v", got.Last.Config, want)
	}
	if got.Samples != 1 || got.Full != 16000 || got.IR != 15900 {
		t.Errorf("got %+v, want only the High/200ms sample in the mean", got)
	}
}

func TestAverager_WriteFailureKeepsMean(t *testing.T) {
	conn := newFakeConn(RawReading{Full: 2100, IR: 2050})
	r, _ := newTestRanger(conn, PresetPiSQM)
	avg := NewAverager(r, DefaultNoiseFloor, DefaultMaxSamples)

	// Two cycles succeed, then every write fails.
	conn.failControlAfter = 2
	got, err := avg.Measure(DefaultConfig)
	if err != nil {
		t.Fatalf("Measure failed: %v", err)
	}
	if got.Samples != 2 || got.Full != 2100 || got.IR != 2050 || got.Last.Outcome != OutcomeBusFault {
		t.Errorf("got %+v, want two samples ending in a bus fault", got)
	}
}

func TestSingle(t *testing.T) {
	s := Sample{Reading: RawReading{Full: 40, IR: 8}, Config: DefaultConfig, Outcome: OutcomeManual, Attempts: 1}
	got := Single(s)
	if got.Full != 40 || got.IR != 8 || got.Samples != 1 || got.Visible() != 32 {
		t.Errorf("got %+v", got)
	}
}

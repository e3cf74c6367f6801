package tsl2591

import (
	"encoding/binary"
	"errors"
	"math"
	"time"
)

type regWrite struct {
	reg   byte
	value byte
}

// fakeConn is a scripted TSL2591. Channel reads either replay readings (the
// last one repeats) or, when scene is set, are derived from the last control
// byte written.
type fakeConn struct {
	id       byte
	readings []RawReading
	scene    func(Config) RawReading
	readErr  error
	writeErr error

	// failControlAfter > 0 fails every control write after that many.
	failControlAfter int

	control  byte
	current  RawReading
	served   int
	writes   []regWrite
	closed   bool
	channel0 int
}

func newFakeConn(readings ...RawReading) *fakeConn {
	return &fakeConn{id: TSL2591_DEVICE_ID, readings: readings}
}

func (f *fakeConn) ReadReg(reg byte, buf []byte) error {
	switch reg {
	case TSL2591_COMMAND_BIT | TSL2591_REGISTER_DEVICE_ID:
		buf[0] = f.id
		return nil
	case TSL2591_COMMAND_BIT | TSL2591_REGISTER_CHAN0_LOW:
		if f.readErr != nil {
			return f.readErr
		}
		f.current = f.next()
		f.channel0++
		binary.LittleEndian.PutUint16(buf, f.current.Full)
		return nil
	case TSL2591_COMMAND_BIT | TSL2591_REGISTER_CHAN1_LOW:
		if f.readErr != nil {
			return f.readErr
		}
		binary.LittleEndian.PutUint16(buf, f.current.IR)
		return nil
	}
	return errors.New("unexpected register")
}

func (f *fakeConn) next() RawReading {
	if f.scene != nil {
		return f.scene(Config{Gain: Gain(f.control & 0x30), Integration: IntegrationTime(f.control & 0x07)})
	}
	if len(f.readings) == 0 {
		return RawReading{}
	}
	i := f.served
	if i >= len(f.readings) {
		i = len(f.readings) - 1
	}
	f.served++
	return f.readings[i]
}

func (f *fakeConn) WriteReg(reg byte, buf []byte) error {
	if f.writeErr != nil {
		return f.writeErr
	}
	if reg == TSL2591_COMMAND_BIT|TSL2591_REGISTER_CONTROL {
		if f.failControlAfter > 0 && len(f.controls()) >= f.failControlAfter {
			return errors.New("nack")
		}
		f.control = buf[0]
	}
	f.writes = append(f.writes, regWrite{reg: reg, value: buf[0]})
	return nil
}

func (f *fakeConn) Close() error {
	f.closed = true
	return nil
}

// controls returns every configuration written to the control register.
func (f *fakeConn) controls() []Config {
	var out []Config
	for _, w := range f.writes {
		if w.reg == TSL2591_COMMAND_BIT|TSL2591_REGISTER_CONTROL {
			out = append(out, Config{Gain: Gain(w.value & 0x30), Integration: IntegrationTime(w.value & 0x07)})
		}
	}
	return out
}

func (f *fakeConn) lastWrite() regWrite {
	if len(f.writes) == 0 {
		return regWrite{}
	}
	return f.writes[len(f.writes)-1]
}

// skyScene simulates a constant irradiance seen through the sensor's response.
func skyScene(fullMicrowatts, irMicrowatts float64) func(Config) RawReading {
	counts := func(uw float64, c Config) uint16 {
		v := uw * (float64(c.Integration.Millis()) / 100.0) * (c.Gain.Multiplier() / 400.0) * CountsPerMicrowatt
		return uint16(math.Min(v, float64(TSL2591_MAX_COUNT)))
	}
	return func(c Config) RawReading {
		return RawReading{Full: counts(fullMicrowatts, c), IR: counts(irMicrowatts, c)}
	}
}

type sleepRecorder struct {
	waits []time.Duration
}

func (s *sleepRecorder) sleep(d time.Duration) {
	s.waits = append(s.waits, d)
}

func newTestSensor(conn *fakeConn, start Config) *TSL2591 {
	return &TSL2591{bus: NewRegisterBus(conn), config: start}
}

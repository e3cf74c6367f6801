package tsl2591

import (
	"encoding/binary"
	"errors"
	"fmt"

	"golang.org/x/exp/io/i2c"
	periphi2c "periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/host/v3"
)

// ErrBus wraps every transport failure on a register transaction.
var ErrBus = errors.New("tsl2591: bus transaction failed")

// Conn is a register-addressed connection to one device slot on an I2C bus.
// *i2c.Device from golang.org/x/exp/io/i2c satisfies it directly.
type Conn interface {
	ReadReg(reg byte, buf []byte) error
	WriteReg(reg byte, buf []byte) error
	Close() error
}

// RegisterBus issues TSL2591 command transactions: every register address is
// prefixed with the command bit before it reaches the wire.
type RegisterBus struct {
	conn Conn
}

func NewRegisterBus(conn Conn) *RegisterBus {
	return &RegisterBus{conn: conn}
}

// ReadWord reads a little-endian 16-bit value starting at register.
func (b *RegisterBus) ReadWord(register byte) (uint16, error) {
	buf := make([]byte, 2)
	if err := b.conn.ReadReg(TSL2591_COMMAND_BIT|register, buf); err != nil {
		return 0, fmt.Errorf("%w: read word 0x%02X: %v", ErrBus, register, err)
	}
	return binary.LittleEndian.Uint16(buf), nil
}

func (b *RegisterBus) ReadByte(register byte) (byte, error) {
	buf := make([]byte, 1)
	if err := b.conn.ReadReg(TSL2591_COMMAND_BIT|register, buf); err != nil {
		return 0, fmt.Errorf("%w: read byte 0x%02X: %v", ErrBus, register, err)
	}
	return buf[0], nil
}

func (b *RegisterBus) WriteByte(register byte, value byte) error {
	if err := b.conn.WriteReg(TSL2591_COMMAND_BIT|register, []byte{value}); err != nil {
		return fmt.Errorf("%w: write 0x%02X to 0x%02X: %v", ErrBus, value, register, err)
	}
	return nil
}

func (b *RegisterBus) Close() error {
	return b.conn.Close()
}

// OpenDevfs opens the sensor through the Linux i2c-dev interface.
func OpenDevfs(path string, addr uint16) (Conn, error) {
	if path == "" {
		// i2c-1 is the default I2C bus for the Raspberry Pi
		path = "/dev/i2c-1"
	}
	device, err := i2c.Open(&i2c.Devfs{Dev: path}, int(addr))
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	return device, nil
}

// periphConn adapts a periph.io device to Conn.
type periphConn struct {
	dev *periphi2c.Dev
	bus periphi2c.BusCloser
}

// OpenPeriph opens the sensor through periph.io. An empty name selects the
// first bus the host registry knows about.
func OpenPeriph(name string, addr uint16) (Conn, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("failed to initialise periph host: %w", err)
	}
	bus, err := i2creg.Open(name)
	if err != nil {
		return nil, fmt.Errorf("failed to open i2c bus %q: %w", name, err)
	}
	return &periphConn{
		dev: &periphi2c.Dev{Bus: bus, Addr: addr},
		bus: bus,
	}, nil
}

func (c *periphConn) ReadReg(reg byte, buf []byte) error {
	return c.dev.Tx([]byte{reg}, buf)
}

func (c *periphConn) WriteReg(reg byte, buf []byte) error {
	w := make([]byte, 0, len(buf)+1)
	w = append(w, reg)
	w = append(w, buf...)
	return c.dev.Tx(w, nil)
}

func (c *periphConn) Close() error {
	return c.bus.Close()
}

// Package i2cbus adapts a periph.io I2C bus to the clkdst register
// transport. The chip exposes its register file over I2C as a 16-bit
// register index followed by one data byte.
package i2cbus

import (
	"fmt"
	"sync"

	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/host/v3"

	"github.com/shiwa/clkdst/pkg/clkdst"
)

// Bus is one chip behind one I2C address. Multiple Bus values may share
// the underlying bus; periph serializes the transactions.
type Bus struct {
	mu  sync.Mutex
	bus i2c.BusCloser
	dev *i2c.Dev
}

var hostOnce sync.Once
var hostErr error

// Open connects to the chip at addr on the named I2C bus ("" selects
// the first available one).
func Open(busName string, addr uint16) (*Bus, error) {
	hostOnce.Do(func() { _, hostErr = host.Init() })
	if hostErr != nil {
		return nil, fmt.Errorf("i2cbus: host init: %w", hostErr)
	}
	b, err := i2creg.Open(busName)
	if err != nil {
		return nil, fmt.Errorf("i2cbus: open %q: %w", busName, err)
	}
	return &Bus{bus: b, dev: &i2c.Dev{Addr: addr, Bus: b}}, nil
}

// ReadReg reads one register: write the index, read one byte back.
func (b *Bus) ReadReg(reg uint16) (uint8, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	var buf [1]byte
	if err := b.dev.Tx([]byte{byte(reg >> 8), byte(reg)}, buf[:]); err != nil {
		return 0, fmt.Errorf("i2cbus: read 0x%04x: %w", reg, err)
	}
	return buf[0], nil
}

// WriteReg writes one register: index high, index low, value.
func (b *Bus) WriteReg(reg uint16, val uint8) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.dev.Tx([]byte{byte(reg >> 8), byte(reg), val}, nil); err != nil {
		return fmt.Errorf("i2cbus: write 0x%04x: %w", reg, err)
	}
	return nil
}

// Close releases the underlying bus.
func (b *Bus) Close() error {
	return b.bus.Close()
}

var _ clkdst.IO = (*Bus)(nil)

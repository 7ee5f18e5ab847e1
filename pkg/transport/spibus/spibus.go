// Package spibus adapts a periph.io SPI port to the clkdst register
// transport. The chip's serial port uses 24-bit frames: a read/write
// bit, a 15-bit register index and one data byte.
package spibus

import (
	"fmt"
	"sync"

	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi"
	"periph.io/x/conn/v3/spi/spireg"
	"periph.io/x/host/v3"

	"github.com/shiwa/clkdst/pkg/clkdst"
)

const readBit = 0x80 // set in the first frame byte for read access

// Port is one chip on one SPI chip select.
type Port struct {
	mu   sync.Mutex
	port spi.PortCloser
	conn spi.Conn
}

var hostOnce sync.Once
var hostErr error

// Open connects to the chip on the named SPI port (e.g. "SPI0.0"; ""
// selects the first available one).
func Open(portName string, hz physic.Frequency) (*Port, error) {
	hostOnce.Do(func() { _, hostErr = host.Init() })
	if hostErr != nil {
		return nil, fmt.Errorf("spibus: host init: %w", hostErr)
	}
	if hz == 0 {
		hz = 10 * physic.MegaHertz
	}
	p, err := spireg.Open(portName)
	if err != nil {
		return nil, fmt.Errorf("spibus: open %q: %w", portName, err)
	}
	conn, err := p.Connect(hz, spi.Mode0, 8)
	if err != nil {
		p.Close()
		return nil, fmt.Errorf("spibus: connect %q: %w", portName, err)
	}
	return &Port{port: p, conn: conn}, nil
}

// ReadReg clocks a read frame; the data byte arrives in the third
// received byte.
func (p *Port) ReadReg(reg uint16) (uint8, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	w := [3]byte{readBit | byte(reg>>8), byte(reg), 0}
	var r [3]byte
	if err := p.conn.Tx(w[:], r[:]); err != nil {
		return 0, fmt.Errorf("spibus: read 0x%04x: %w", reg, err)
	}
	return r[2], nil
}

// WriteReg clocks a write frame.
func (p *Port) WriteReg(reg uint16, val uint8) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	w := [3]byte{byte(reg >> 8), byte(reg), val}
	if err := p.conn.Tx(w[:], nil); err != nil {
		return fmt.Errorf("spibus: write 0x%04x: %w", reg, err)
	}
	return nil
}

// Close releases the underlying port.
func (p *Port) Close() error {
	return p.port.Close()
}

var _ clkdst.IO = (*Port)(nil)

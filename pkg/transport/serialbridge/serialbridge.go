// Package serialbridge adapts a UART register bridge to the clkdst
// transport. The bridge is a small MCU wired to the chip's serial port,
// speaking a line protocol:
//
//	-> R 005C          <- 5A
//	-> W 005C A7       <- OK
//
// Any other reply is an error, reported verbatim. Useful for lab
// bring-up when the host has no direct bus to the chip.
package serialbridge

import (
	"bufio"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.bug.st/serial"

	"github.com/shiwa/clkdst/pkg/clkdst"
)

// Bridge is one serial connection to a register bridge.
type Bridge struct {
	mu   sync.Mutex
	port serial.Port
	rd   *bufio.Reader
}

// Open opens the serial port at the given baud rate (115200 when zero).
func Open(portName string, baud int) (*Bridge, error) {
	if baud == 0 {
		baud = 115200
	}
	p, err := serial.Open(portName, &serial.Mode{BaudRate: baud})
	if err != nil {
		return nil, fmt.Errorf("serialbridge: open %s: %w", portName, err)
	}
	if err := p.SetReadTimeout(time.Second); err != nil {
		p.Close()
		return nil, fmt.Errorf("serialbridge: set timeout: %w", err)
	}
	return &Bridge{port: p, rd: bufio.NewReader(p)}, nil
}

// ReadReg requests one register from the bridge.
func (b *Bridge) ReadReg(reg uint16) (uint8, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	line, err := b.roundTrip(fmt.Sprintf("R %04X\n", reg))
	if err != nil {
		return 0, fmt.Errorf("serialbridge: read 0x%04x: %w", reg, err)
	}
	v, err := parseReadReply(line)
	if err != nil {
		return 0, fmt.Errorf("serialbridge: read 0x%04x: %w", reg, err)
	}
	return v, nil
}

// WriteReg sends one register write to the bridge.
func (b *Bridge) WriteReg(reg uint16, val uint8) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	line, err := b.roundTrip(fmt.Sprintf("W %04X %02X\n", reg, val))
	if err != nil {
		return fmt.Errorf("serialbridge: write 0x%04x: %w", reg, err)
	}
	if err := parseWriteReply(line); err != nil {
		return fmt.Errorf("serialbridge: write 0x%04x: %w", reg, err)
	}
	return nil
}

// Close closes the serial port.
func (b *Bridge) Close() error {
	return b.port.Close()
}

func (b *Bridge) roundTrip(cmd string) (string, error) {
	if _, err := b.port.Write([]byte(cmd)); err != nil {
		return "", err
	}
	line, err := b.rd.ReadString('\n')
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(line), nil
}

func parseReadReply(line string) (uint8, error) {
	if line == "" {
		return 0, fmt.Errorf("empty reply")
	}
	if strings.HasPrefix(line, "ERR") {
		return 0, fmt.Errorf("bridge: %s", line)
	}
	v, err := strconv.ParseUint(line, 16, 8)
	if err != nil {
		return 0, fmt.Errorf("bad reply %q", line)
	}
	return uint8(v), nil
}

func parseWriteReply(line string) error {
	if line != "OK" {
		return fmt.Errorf("bridge: %s", line)
	}
	return nil
}

var _ clkdst.IO = (*Bridge)(nil)

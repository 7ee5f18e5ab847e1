package clkdst

import (
	"fmt"
	"sync"
	"time"

	"github.com/shiwa/clkdst/internal/logger"
)

// IO is the register transport installed per device. Implementations
// live in pkg/transport; tests use an in-memory fake.
type IO interface {
	ReadReg(reg uint16) (uint8, error)
	WriteReg(reg uint16, val uint8) error
}

// LockStatuser is an optional IO fast path: a transport that can report
// PLL lock state without register traffic (e.g. lock pins wired to the
// bridge) may implement it.
type LockStatuser interface {
	LockStatus() (pll1, pll2 bool, err error)
}

// acquireTimeout bounds entry into a device critical section. A caller
// that cannot get in within this window fails instead of queueing.
const acquireTimeout = 200 * time.Millisecond

// Hooks for tests; production code never overrides these.
var (
	sleep   = time.Sleep
	timeNow = time.Now
)

// Driver owns the device table. All exported methods are safe for
// concurrent use; operations on the same device are serialized by a
// per-device critical section, operations on different devices proceed
// independently.
type Driver struct {
	mu     sync.Mutex
	ifMask DevMask
	ifDone bool
	devs   [MaxDevices]*devCtl
}

// devCtl is the per-device control block: transport, critical section,
// layer init flags, validated plan, derived constants and the register
// image. The plan, derived constants and image are only touched while
// the critical section is held.
type devCtl struct {
	dev Dev
	io  IO
	sem chan struct{} // capacity 1

	family Family
	params DevParams
	der    derived
	img    regImage

	// stateMu guards the init flags and the lock-inference state, which
	// are read by status calls that never enter the critical section.
	stateMu sync.Mutex
	lliDone bool          // transport installed
	appDone bool          // plan applied, device running
	settle  time.Duration // settling window for lock inference
	// lastCmd is the completion time of the most recent hardware
	// command; zeroed while a (re-)init is in flight. Locked() uses it
	// to infer lock state without touching the bus.
	lastCmd time.Time
}

// New returns an empty driver; call InitInterface before anything else.
func New() *Driver {
	return &Driver{}
}

// InitInterface prepares control blocks for every device in mask. It
// must run once before any per-device call and may run again to widen
// the mask.
func (d *Driver) InitInterface(mask DevMask) error {
	if mask == 0 || mask >= 1<<MaxDevices {
		return fmt.Errorf("%w: interface mask 0x%x", ErrBadDevice, mask)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	for dev := Dev(0); dev < MaxDevices; dev++ {
		if mask&(1<<dev) == 0 || d.devs[dev] != nil {
			continue
		}
		d.devs[dev] = &devCtl{
			dev: dev,
			sem: make(chan struct{}, 1),
		}
	}
	d.ifMask |= mask
	d.ifDone = true
	return nil
}

// ctl resolves a device handle to its control block.
func (d *Driver) ctl(dev Dev) (*devCtl, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.ifDone {
		return nil, fmt.Errorf("%w: interface not initialized", ErrNotInitialized)
	}
	if dev < 0 || dev >= MaxDevices || d.devs[dev] == nil {
		return nil, fmt.Errorf("%w: dev %d", ErrBadDevice, dev)
	}
	return d.devs[dev], nil
}

// appCtl is ctl plus the requirement that the device completed InitDevice.
func (d *Driver) appCtl(dev Dev) (*devCtl, error) {
	c, err := d.ctl(dev)
	if err != nil {
		return nil, err
	}
	c.stateMu.Lock()
	done := c.appDone
	c.stateMu.Unlock()
	if !done {
		return nil, fmt.Errorf("%w: dev %d not brought up", ErrNotInitialized, dev)
	}
	return c, nil
}

// transportReady reports whether a transport has been installed.
func (c *devCtl) transportReady() bool {
	c.stateMu.Lock()
	defer c.stateMu.Unlock()
	return c.lliDone
}

// acquire enters the device critical section, bounded by acquireTimeout.
// Never nest for the same device.
func (c *devCtl) acquire(op string) error {
	t := time.NewTimer(acquireTimeout)
	defer t.Stop()
	select {
	case c.sem <- struct{}{}:
		return nil
	case <-t.C:
		logger.Error("dev %d: %s: critical section busy for %v", c.dev, op, acquireTimeout)
		return fmt.Errorf("%w: dev %d (%s)", ErrBusy, c.dev, op)
	}
}

func (c *devCtl) release() {
	<-c.sem
}

// markCmd records command completion for lock inference.
func (c *devCtl) markCmd() {
	c.stateMu.Lock()
	c.lastCmd = timeNow()
	c.stateMu.Unlock()
}

// rdReg and wrReg are the raw register accessors. Callers hold the
// device critical section and have verified lliDone.
func (c *devCtl) rdReg(reg uint16) (uint8, error) {
	v, err := c.io.ReadReg(reg)
	if err != nil {
		return 0, fmt.Errorf("dev %d: read reg 0x%04x: %w", c.dev, reg, err)
	}
	return v, nil
}

func (c *devCtl) wrReg(reg uint16, val uint8) error {
	if err := c.io.WriteReg(reg, val); err != nil {
		return fmt.Errorf("dev %d: write reg 0x%04x: %w", c.dev, reg, err)
	}
	return nil
}

// toggle pulses a request bit: write 1, settle, write 0. The image keeps
// the bit at 0.
func (c *devCtl) toggle(f field, settle time.Duration) error {
	c.img.set(f, 1)
	if err := c.wrReg(f.reg, c.img.regs[f.reg]); err != nil {
		return err
	}
	sleep(settle)
	c.img.set(f, 0)
	return c.wrReg(f.reg, c.img.regs[f.reg])
}

package clkdst

import "fmt"

// Raw register access for low-level debugging. Both calls take the
// device critical section and bypass the image; a PokeReg therefore
// desynchronizes the shadow until the next bring-up.

// PeekReg reads one register directly from hardware.
func (d *Driver) PeekReg(dev Dev, reg uint16) (uint8, error) {
	c, err := d.ctl(dev)
	if err != nil {
		return 0, err
	}
	if err := checkRegIndex(reg); err != nil {
		return 0, err
	}
	if !c.transportReady() {
		return 0, fmt.Errorf("%w: dev %d has no transport", ErrNotInitialized, dev)
	}
	if err := c.acquire("peek"); err != nil {
		return 0, err
	}
	defer c.release()
	return c.rdReg(reg)
}

// PokeReg writes one register directly. The register image is not
// updated; use the command API for anything the driver manages.
func (d *Driver) PokeReg(dev Dev, reg uint16, val uint8) error {
	c, err := d.ctl(dev)
	if err != nil {
		return err
	}
	if err := checkRegIndex(reg); err != nil {
		return err
	}
	if !c.transportReady() {
		return fmt.Errorf("%w: dev %d has no transport", ErrNotInitialized, dev)
	}
	if err := c.acquire("poke"); err != nil {
		return err
	}
	defer c.release()
	if err := c.wrReg(reg, val); err != nil {
		return err
	}
	c.markCmd()
	return nil
}

func checkRegIndex(reg uint16) error {
	if reg > regIndexMax {
		return fmt.Errorf("%w: register index 0x%04x out of range", ErrBadParams, reg)
	}
	return nil
}

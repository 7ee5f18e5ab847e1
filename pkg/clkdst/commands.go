package clkdst

import "fmt"

// Runtime command API. Every command takes the device critical section,
// keeps the register image coherent with hardware and stamps the
// last-command time used by lock inference.

func checkChan(ch int) error {
	if ch < 0 || ch >= NumChans {
		return fmt.Errorf("%w: channel %d", ErrBadParams, ch)
	}
	return nil
}

// EnableChannel turns a configured output channel on.
func (d *Driver) EnableChannel(dev Dev, ch int) error {
	return d.setChanEnable(dev, ch, true)
}

// DisableChannel turns a configured output channel off. The channel
// keeps its configuration and can be re-enabled.
func (d *Driver) DisableChannel(dev Dev, ch int) error {
	return d.setChanEnable(dev, ch, false)
}

func (d *Driver) setChanEnable(dev Dev, ch int, on bool) error {
	if err := checkChan(ch); err != nil {
		return err
	}
	c, err := d.appCtl(dev)
	if err != nil {
		return err
	}
	if c.params.Chans[ch].Mode == ChanUnused {
		return fmt.Errorf("%w: channel %d not in the plan", ErrBadParams, ch)
	}
	if err := c.acquire("channel enable"); err != nil {
		return err
	}
	defer c.release()
	f := chEnable(ch)
	c.img.setBool(f, on)
	if err := c.wrReg(f.reg, c.img.regs[f.reg]); err != nil {
		return err
	}
	c.markCmd()
	return nil
}

// SlipChannels applies one slip event to the channels in mask (bit per
// channel). Each selected channel shifts its output phase by its
// configured slip quantum. Channels without a slip quantum are rejected.
func (d *Driver) SlipChannels(dev Dev, mask uint16) error {
	if mask == 0 || mask >= 1<<NumChans {
		return fmt.Errorf("%w: channel mask 0x%x", ErrBadParams, mask)
	}
	c, err := d.appCtl(dev)
	if err != nil {
		return err
	}
	for ch := 0; ch < NumChans; ch++ {
		if mask&(1<<ch) == 0 {
			continue
		}
		cp := &c.params.Chans[ch]
		if cp.Mode == ChanUnused || cp.SlipQuantumPs == 0 {
			return fmt.Errorf("%w: channel %d has no slip quantum", ErrBadParams, ch)
		}
	}
	if err := c.acquire("slip"); err != nil {
		return err
	}
	defer c.release()

	// Arm exactly the selected channels, pulse the global slip request,
	// then restore the configured arming.
	saved := make(map[int][2]uint8, NumChans)
	for ch := 0; ch < NumChans; ch++ {
		if c.params.Chans[ch].Mode == ChanUnused || c.params.Chans[ch].SlipQuantumPs == 0 {
			continue
		}
		slip, multi := chSlipEn(ch), chMultiSlip(ch)
		saved[ch] = [2]uint8{c.img.get(slip), c.img.get(multi)}
		sel := mask&(1<<ch) != 0
		multiCfg := c.params.Chans[ch].SlipQuantumPs > c.der.clkPeriodPs
		c.img.setBool(slip, sel && !multiCfg)
		c.img.setBool(multi, sel && multiCfg)
		if err := c.wrReg(slip.reg, c.img.regs[slip.reg]); err != nil {
			return err
		}
	}
	if err := c.toggle(fldSlipReq, slipSettle); err != nil {
		return err
	}
	for ch, v := range saved {
		slip, multi := chSlipEn(ch), chMultiSlip(ch)
		c.img.set(slip, v[0])
		c.img.set(multi, v[1])
		if err := c.wrReg(slip.reg, c.img.regs[slip.reg]); err != nil {
			return err
		}
	}
	c.markCmd()
	return nil
}

// SetSysrefMode switches the pulse generator operating mode at runtime.
// nPulses is only meaningful for SysrefPulsed.
func (d *Driver) SetSysrefMode(dev Dev, mode SysrefMode, nPulses SysrefNPulses) error {
	if mode == SysrefPulsed {
		if _, ok := pulseCode(nPulses); !ok {
			return fmt.Errorf("%w: burst length %d not in {1,2,4,8,16}", ErrBadParams, nPulses)
		}
	}
	c, err := d.appCtl(dev)
	if err != nil {
		return err
	}
	if err := c.acquire("sysref mode"); err != nil {
		return err
	}
	defer c.release()
	c.params.Sysref.Mode = mode
	if mode == SysrefPulsed {
		c.params.Sysref.NPulses = nPulses
	}
	c.img.set(fldPulseMode, pulseGenModeCode(mode, c.params.Sysref.NPulses))
	if err := c.wrReg(regPulseGen, c.img.regs[regPulseGen]); err != nil {
		return err
	}
	c.markCmd()
	return nil
}

// SysrefPulse fires a software-requested SYSREF burst of nPulses at
// the channels in mask (bit per channel). The device must be in pulsed
// mode and every selected channel must be a SYSREF output.
func (d *Driver) SysrefPulse(dev Dev, mask uint16, nPulses SysrefNPulses) error {
	code, ok := pulseCode(nPulses)
	if !ok {
		return fmt.Errorf("%w: burst length %d not in {1,2,4,8,16}", ErrBadParams, nPulses)
	}
	if mask == 0 || mask >= 1<<NumChans {
		return fmt.Errorf("%w: channel mask 0x%x", ErrBadParams, mask)
	}
	c, err := d.appCtl(dev)
	if err != nil {
		return err
	}
	for ch := 0; ch < NumChans; ch++ {
		if mask&(1<<ch) != 0 && c.params.Chans[ch].Mode != ChanSysref {
			return fmt.Errorf("%w: channel %d is not a SYSREF output", ErrBadParams, ch)
		}
	}
	if c.params.Sysref.Mode != SysrefPulsed {
		return fmt.Errorf("%w: software SYSREF pulse requires pulsed mode", ErrBadMode)
	}
	if err := c.acquire("sysref pulse"); err != nil {
		return err
	}
	defer c.release()
	if c.img.get(fldPulseMode) != code {
		c.params.Sysref.NPulses = nPulses
		c.img.set(fldPulseMode, code)
		if err := c.wrReg(regPulseGen, c.img.regs[regPulseGen]); err != nil {
			return err
		}
	}
	if err := c.toggle(fldPulseGen, pulseSettle); err != nil {
		return err
	}
	c.markCmd()
	return nil
}

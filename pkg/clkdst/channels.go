package clkdst

import "math"

// Channel programming. One routine serves all 14 channels; the blocks
// are identical and addressed through the block table.

// applyChannel programs one channel block in the image from the plan
// and the derived divider. Unused channels are parked disabled with the
// start-up state machine in asynchronous mode.
func (c *devCtl) applyChannel(ch int) {
	cp := &c.params.Chans[ch]

	if cp.Mode == ChanUnused {
		c.img.set(chStartMode(ch), startModeAsync)
		c.img.setBool(chEnable(ch), false)
		c.img.setBool(chSyncEn(ch), false)
		return
	}

	c.img.setBool(chEnable(ch), true)
	c.img.setBool(chSyncEn(ch), true)
	c.img.setBool(chHighPerf(ch), cp.HighPerfMode)

	// Pulse-generator SYSREF channels run the dynamic start-up state
	// machine; everything else starts asynchronously.
	if cp.Mode == ChanSysref && cp.DynDriverEn {
		c.img.set(chStartMode(ch), startModeDynamic)
	} else {
		c.img.set(chStartMode(ch), startModeAsync)
	}

	div := c.der.chDiv[ch]
	c.img.set(chDivL(ch), uint8(div))
	c.img.set(chDivH(ch), uint8(div>>8))

	if cp.AnaDelayPs > 0 {
		steps, _ := quantizeDelay("", cp.AnaDelayPs, anaDelayStepPs, anaDelayMaxStep)
		c.img.set(chADly(ch), steps)
	} else {
		c.img.set(chADly(ch), 0)
	}
	if cp.DigDelayPs > 0 {
		steps, _ := quantizeDelay("", cp.DigDelayPs, c.der.clkPeriodPs/2, digDelayMaxStep)
		c.img.set(chDDly(ch), steps)
	} else {
		c.img.set(chDDly(ch), 0)
	}

	// Slip: one clock period per event uses plain slip; a larger quantum
	// uses multislip with the step count biased by half the divider.
	c.img.setBool(chSlipEn(ch), false)
	c.img.setBool(chMultiSlip(ch), false)
	c.img.set(chMSDlyL(ch), 0)
	c.img.set(chMSDlyH(ch), 0)
	if cp.SlipQuantumPs > 0 {
		steps := uint32(math.Round(cp.SlipQuantumPs / c.der.clkPeriodPs))
		if steps == 1 {
			c.img.setBool(chSlipEn(ch), true)
		} else {
			ms := steps + div/2
			c.img.setBool(chMultiSlip(ch), true)
			c.img.set(chMSDlyL(ch), uint8(ms))
			c.img.set(chMSDlyH(ch), uint8(ms>>8))
		}
	}

	c.img.set(chOutMux(ch), outSelCode[cp.OutSel])

	c.img.set(chDrvMode(ch), uint8(cp.Driver))
	if cp.Driver == DrvCML {
		c.img.set(chDrvImp(ch), uint8(cp.CMLTerm))
	} else {
		c.img.set(chDrvImp(ch), 0)
	}
	c.img.setBool(chDynDrv(ch), cp.Mode == ChanSysref && cp.DynDriverEn)
	if cp.Mode == ChanClock && cp.IdleAtZero {
		c.img.set(chIdleZero(ch), 1)
	} else {
		c.img.set(chIdleZero(ch), 0)
	}
}

// applyChannels programs all channel blocks.
func (c *devCtl) applyChannels() {
	for ch := 0; ch < NumChans; ch++ {
		c.applyChannel(ch)
	}
}

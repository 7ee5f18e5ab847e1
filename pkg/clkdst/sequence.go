package clkdst

import (
	"fmt"
	"time"

	"github.com/shiwa/clkdst/internal/logger"
)

// Bring-up sequencing. The cold path follows the datasheet order: reset,
// identify, program the image, commit, restart the frequency state
// machines, reseed the output phases and verify. The warm path attaches
// to an already running device and reads the image back instead of
// programming.

// Toggle settle times.
const (
	resetSettle   = 200 * time.Microsecond
	restartSettle = 100 * time.Microsecond
	reseedSettle  = 100 * time.Microsecond
	pulseSettle   = 100 * time.Microsecond
	slipSettle    = 100 * time.Microsecond
)

// initWaitPeriods is the number of SYSREF periods to let the output
// phase settle after reseeding.
const initWaitPeriods = 6

// phaseCheckWait bounds the clock-output-phase verification poll.
const phaseCheckWait = 5 * time.Millisecond

type initStep struct {
	name string
	fn   func(*devCtl) error
}

// InitDevice validates the plan and brings the device up. With warm set
// the device is assumed to be configured and running (e.g. after a host
// restart): programming is skipped and the register image is read back
// from hardware instead.
//
// A failed bring-up leaves the device in an undefined state; rerun
// InitDevice. Re-initialization of a running device is allowed.
func (d *Driver) InitDevice(dev Dev, io IO, family Family, params *DevParams, warm bool) error {
	c, err := d.ctl(dev)
	if err != nil {
		return err
	}
	if io == nil {
		return fmt.Errorf("%w: dev %d: nil transport", ErrBadParams, dev)
	}
	if params == nil {
		return fmt.Errorf("%w: dev %d: nil parameters", ErrBadParams, dev)
	}
	der, err := validate(family, params)
	if err != nil {
		return err
	}

	if err := c.acquire("init"); err != nil {
		return err
	}
	defer c.release()

	c.stateMu.Lock()
	c.appDone = false
	c.lastCmd = time.Time{} // no inference while init is in flight
	c.stateMu.Unlock()
	c.io = io
	c.family = family
	c.params = *params
	c.der = der
	c.stateMu.Lock()
	c.lliDone = true
	c.settle = settleWindow(family, params, der)
	c.stateMu.Unlock()

	steps := coldSteps(c.family)
	if warm {
		steps = warmSteps()
	}
	for _, s := range steps {
		if err := s.fn(c); err != nil {
			logger.Error("dev %d: bring-up step %q failed: %v", dev, s.name, err)
			return fmt.Errorf("dev %d: %s: %w", dev, s.name, err)
		}
	}

	c.stateMu.Lock()
	c.appDone = true
	c.stateMu.Unlock()
	c.markCmd()
	logger.Info("dev %d: %s brought up (%s)", dev, family, initKind(warm))
	return nil
}

func initKind(warm bool) string {
	if warm {
		return "warm"
	}
	return "cold"
}

func coldSteps(f Family) []initStep {
	steps := []initStep{
		{"soft reset", (*devCtl).stepSoftReset},
		{"product id", (*devCtl).stepCheckProdID},
		{"load defaults", noFail((*devCtl).stepLoadDefaults)},
		{"gpio/sdata", noFail((*devCtl).stepGpioSdata)},
	}
	if f == HMC7044 {
		steps = append(steps,
			initStep{"reference inputs", noFail((*devCtl).applyRefInputs)},
			initStep{"pll2", noFail((*devCtl).applyPLL2)},
			initStep{"pll1", noFail((*devCtl).applyPLL1)},
			initStep{"oscillator", noFail((*devCtl).applyOsc)},
		)
	}
	steps = append(steps,
		initStep{"input stage", noFail((*devCtl).stepInputStage)},
		initStep{"sysref timer", noFail((*devCtl).stepSysrefTimer)},
		initStep{"pulse generator", noFail((*devCtl).stepPulseGen)},
		initStep{"channels", noFail((*devCtl).applyChannels)},
		initStep{"alarm mask", noFail((*devCtl).stepAlarmMask)},
		initStep{"commit", (*devCtl).stepCommit},
		initStep{"restart", (*devCtl).stepRestart},
	)
	if f == HMC7044 {
		steps = append(steps, initStep{"pll2 lock", (*devCtl).stepWaitPll2Lock})
	}
	steps = append(steps,
		initStep{"reseed", (*devCtl).stepReseed},
		initStep{"initial sysref stream", (*devCtl).stepInitialPulse},
		initStep{"phase settle", noFail((*devCtl).stepPhaseSettle)},
		initStep{"phase check", (*devCtl).stepPhaseCheck},
	)
	if f == HMC7044 {
		steps = append(steps, initStep{"pll1 lock", (*devCtl).stepWaitPll1Lock})
	}
	steps = append(steps, initStep{"disable sync", (*devCtl).stepDisableSync})
	return steps
}

func warmSteps() []initStep {
	return []initStep{
		{"product id", (*devCtl).stepCheckProdID},
		{"read back", (*devCtl).stepReadBack},
	}
}

func noFail(fn func(*devCtl)) func(*devCtl) error {
	return func(c *devCtl) error {
		fn(c)
		return nil
	}
}

func (c *devCtl) stepSoftReset() error {
	// The image is not loaded yet; pulse the bit directly.
	if err := c.wrReg(regSoftReset, 1); err != nil {
		return err
	}
	sleep(resetSettle)
	return c.wrReg(regSoftReset, 0)
}

func (c *devCtl) stepCheckProdID() error {
	var id uint32
	for i, reg := range []uint16{regProdIDL, regProdIDM, regProdIDH} {
		v, err := c.rdReg(reg)
		if err != nil {
			return err
		}
		id |= uint32(v) << (8 * i)
	}
	want := uint32(prodIDHmc7043)
	if c.family == HMC7044 {
		want = prodIDHmc7044
	}
	if id != want {
		return fmt.Errorf("%w: got 0x%06x, want 0x%06x (%s)", ErrBadChip, id, want, c.family)
	}
	return nil
}

func (c *devCtl) stepLoadDefaults() {
	c.img.loadDefaults()
}

func (c *devCtl) stepGpioSdata() {
	p := &c.params
	c.img.setBool(fldGpiEn, p.GpiEnabled)
	c.img.set(fldGpiSel, uint8(p.GpiFunc))
	c.img.setBool(fldGpoEn, p.GpoEnabled)
	c.img.set(fldGpoMod, uint8(p.GpoMode))
	c.img.set(fldGpoSel, uint8(p.GpoFunc))
	c.img.set(fldSdata, uint8(p.SdataMode))
}

func (c *devCtl) stepInputStage() {
	p := &c.params
	// On the HMC7044 the CLKIN buffer register belongs to reference
	// input 0 and is programmed with the other references.
	if c.family == HMC7043 {
		c.img.setBool(bufEnField(regClkInBuf), p.ClkInBuf.Enabled)
		c.img.set(bufModeField(regClkInBuf), uint8(p.ClkInBuf.Mode))
	}
	c.img.setBool(bufEnField(regSyncInBuf), p.SyncInBuf.Enabled)
	c.img.set(bufModeField(regSyncInBuf), uint8(p.SyncInBuf.Mode))
	c.img.setBool(fldLowFreqClkIn, p.LowFreqClkIn)
	c.img.setBool(fldClkInDiv2, c.family == HMC7043 && p.ClkInDiv == ClkInDiv2)

	// Power the analog delay stage down unless some channel uses it.
	lowPower := true
	for ch := range p.Chans {
		if p.Chans[ch].Mode != ChanUnused && p.Chans[ch].AnaDelayPs > 0 {
			lowPower = false
			break
		}
	}
	c.img.setBool(fldADlyLowPower, lowPower)
}

func (c *devCtl) stepSysrefTimer() {
	c.img.set(fldSrefTimerL, uint8(c.der.sysrefTimer))
	c.img.set(fldSrefTimerH, uint8(c.der.sysrefTimer>>8))
}

func (c *devCtl) stepPulseGen() {
	p := &c.params
	c.img.set(fldPulseMode, pulseGenModeCode(p.Sysref.Mode, p.Sysref.NPulses))
	c.img.setBool(fldSyncInvert, p.Sysref.InvertedSync)
	c.img.setBool(fldSyncRetime, p.Sysref.SyncRetime)
}

func pulseGenModeCode(m SysrefMode, n SysrefNPulses) uint8 {
	switch m {
	case SysrefLevelCtl:
		return pulseModeLevel
	case SysrefPulsed:
		code, _ := pulseCode(n)
		return code
	default:
		return pulseModeCont
	}
}

func (c *devCtl) stepAlarmMask() {
	a := &c.params.Alarms
	c.img.setBool(fldAlmEnSrefSync, a.SysrefSync)
	c.img.setBool(fldAlmEnClkPhase, a.ClockPhase)
	c.img.setBool(fldAlmEnSyncReq, a.SyncReq)
	c.img.setBool(fldAlmEnPllLock, c.family == HMC7044 && a.PLLLock)
}

func (c *devCtl) stepCommit() error {
	return c.img.commit(c.io, c.family)
}

func (c *devCtl) stepReadBack() error {
	return c.img.readBack(c.io, c.family)
}

func (c *devCtl) stepRestart() error {
	return c.toggle(fldRestart, restartSettle)
}

func (c *devCtl) stepReseed() error {
	return c.toggle(fldReseed, reseedSettle)
}

// stepInitialPulse sends the initial pulse generator stream so SYSREF
// slaves see a burst right after the outputs reseed.
func (c *devCtl) stepInitialPulse() error {
	return c.toggle(fldPulseGen, pulseSettle)
}

func (c *devCtl) stepPhaseSettle() {
	period := time.Duration(float64(time.Second) / float64(c.params.Sysref.Freq))
	sleep(time.Duration(initWaitPeriods) * period)
}

// stepPhaseCheck verifies that the outputs came up phase aligned: the
// clock output phase status bit must assert.
func (c *devCtl) stepPhaseCheck() error {
	ok, err := pollUntil(func() (bool, error) {
		v, err := c.rdReg(regAlarmRdbk)
		if err != nil {
			return false, err
		}
		return v&fldRbClkPhase.mask() != 0, nil
	}, 0, phaseCheckWait, time.Millisecond)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("clock output phase not asserted after %v", phaseCheckWait)
	}
	return nil
}

func (c *devCtl) stepWaitPll1Lock() error {
	return c.waitLock(1)
}

func (c *devCtl) stepWaitPll2Lock() error {
	return c.waitLock(2)
}

// stepDisableSync takes the used channels out of the sync group once
// bring-up is complete, so later SYNC/SYSREF events cannot move settled
// outputs. The control registers are written, not just the image.
func (c *devCtl) stepDisableSync() error {
	for ch := 0; ch < NumChans; ch++ {
		if c.params.Chans[ch].Mode == ChanUnused {
			continue
		}
		f := chSyncEn(ch)
		c.img.set(f, 0)
		if err := c.wrReg(f.reg, c.img.regs[f.reg]); err != nil {
			return err
		}
	}
	return nil
}

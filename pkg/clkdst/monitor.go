package clkdst

import (
	"fmt"
	"time"
)

// Lock and alarm monitoring.

// pollUntil samples pred until it reports true or the timeout elapses.
// preDelay runs once before the first sample. After the deadline one
// final grace sample is taken, so a condition that became true right at
// the boundary is not reported as a timeout.
func pollUntil(pred func() (bool, error), preDelay, timeout, interval time.Duration) (bool, error) {
	if preDelay > 0 {
		sleep(preDelay)
	}
	deadline := timeNow().Add(timeout)
	for timeNow().Before(deadline) {
		ok, err := pred()
		if ok || err != nil {
			return ok, err
		}
		sleep(interval)
	}
	return pred()
}

// lockedNow samples the lock state of one PLL, preferring the transport
// fast path when the IO provides one.
func (c *devCtl) lockedNow(pll int) (bool, error) {
	if ls, ok := c.io.(LockStatuser); ok {
		p1, p2, err := ls.LockStatus()
		if err != nil {
			return false, fmt.Errorf("dev %d: lock status: %w", c.dev, err)
		}
		if pll == 1 {
			return p1, nil
		}
		return p2, nil
	}
	v, err := c.rdReg(regAlarmRdbk)
	if err != nil {
		return false, err
	}
	f := fldRbPll1Lock
	if pll == 2 {
		f = fldRbPll2Lock
	}
	return v&f.mask() != 0, nil
}

// lockPreDelay lets the loop filter settle before the first lock sample.
const lockPreDelay = 100 * time.Microsecond

// waitLock polls one PLL until lock, bounded by the analytically derived
// timeout. Called with the critical section held.
func (c *devCtl) waitLock(pll int) error {
	wait := c.der.pll1.lockWait
	if pll == 2 {
		wait = c.der.pll2.lockWait
	}
	interval := wait / 20
	if interval < 100*time.Microsecond {
		interval = 100 * time.Microsecond
	}
	ok, err := pollUntil(func() (bool, error) { return c.lockedNow(pll) }, lockPreDelay, wait, interval)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: pll%d after %v", ErrLockTimeout, pll, wait)
	}
	return nil
}

// settleWindow is the settling window used by non-blocking lock
// inference, computed once at bring-up.
func settleWindow(f Family, p *DevParams, der derived) time.Duration {
	if f == HMC7044 {
		w := der.pll1.lockWait
		if der.pll2.lockWait > w {
			w = der.pll2.lockWait
		}
		return w
	}
	// No PLLs: the distribution outputs are settled a few SYSREF
	// periods after the last disturbing command.
	period := time.Duration(float64(time.Second) / float64(p.Sysref.Freq))
	return time.Duration(initWaitPeriods) * period
}

// Locked reports whether the device output state is settled (HMC7044:
// both PLLs locked; HMC7043: outputs phase aligned).
//
// With wait=false no hardware is touched: the state is inferred from
// the time elapsed since the last hardware command. During a bring-up
// (or when the settling window has not yet passed) it reports false.
// With wait=true the status registers are polled, bounded by the
// derived lock timeout, and a timeout returns ErrLockTimeout.
func (d *Driver) Locked(dev Dev, wait bool) (bool, error) {
	c, err := d.appCtl(dev)
	if err != nil {
		return false, err
	}

	if !wait {
		c.stateMu.Lock()
		defer c.stateMu.Unlock()
		if c.lastCmd.IsZero() {
			return false, nil
		}
		return timeNow().Sub(c.lastCmd) >= c.settle, nil
	}

	if err := c.acquire("locked"); err != nil {
		return false, err
	}
	defer c.release()
	if c.family == HMC7043 {
		ok, err := pollUntil(func() (bool, error) {
			v, err := c.rdReg(regAlarmRdbk)
			if err != nil {
				return false, err
			}
			return v&fldRbClkPhase.mask() != 0, nil
		}, 0, phaseCheckWait, time.Millisecond)
		if err != nil {
			return false, err
		}
		if !ok {
			return false, fmt.Errorf("%w: clock output phase", ErrLockTimeout)
		}
		return true, nil
	}
	if err := c.waitLock(2); err != nil {
		return false, err
	}
	if err := c.waitLock(1); err != nil {
		return false, err
	}
	return true, nil
}

// Alarm reads the combined alarm signal (the OR of the unmasked alarm
// sources, the same signal a GPO pin can export).
func (d *Driver) Alarm(dev Dev) (bool, error) {
	c, err := d.appCtl(dev)
	if err != nil {
		return false, err
	}
	if err := c.acquire("alarm"); err != nil {
		return false, err
	}
	defer c.release()
	v, err := c.rdReg(regAlarmSig)
	if err != nil {
		return false, err
	}
	return v&fldAlmSignal.mask() != 0, nil
}

// Alarms reads and decodes the full alarm readback, regardless of the
// alarm mask. On the HMC7044 the lock, holdover and per-input LOS bits
// are included.
func (d *Driver) Alarms(dev Dev) (Alarms, error) {
	var a Alarms
	c, err := d.appCtl(dev)
	if err != nil {
		return a, err
	}
	if err := c.acquire("alarms"); err != nil {
		return a, err
	}
	defer c.release()

	v, err := c.rdReg(regAlarmRdbk)
	if err != nil {
		return a, err
	}
	a.SysrefSync = v&fldRbSrefSync.mask() != 0
	a.ClockPhase = v&fldRbClkPhase.mask() != 0
	a.SyncReq = v&fldRbSyncReq.mask() != 0
	if c.family == HMC7044 {
		a.PLL2Locked = v&fldRbPll2Lock.mask() != 0
		a.PLL1Locked = v&fldRbPll1Lock.mask() != 0
		a.Holdover = v&fldRbHoldover.mask() != 0
		los, err := c.rdReg(regLOSRdbk)
		if err != nil {
			return a, err
		}
		for i := 0; i < NumRefs; i++ {
			a.RefLOS[i] = los&(1<<i) != 0
		}
		a.OscInLOS = los&(1<<NumRefs) != 0
	}
	return a, nil
}

// ClearAlarms clears the latched alarm flags.
func (d *Driver) ClearAlarms(dev Dev) error {
	c, err := d.appCtl(dev)
	if err != nil {
		return err
	}
	if err := c.acquire("clear alarms"); err != nil {
		return err
	}
	defer c.release()
	if err := c.toggle(fldAlarmClr, 0); err != nil {
		return err
	}
	c.markCmd()
	return nil
}

package clkdst

import (
	"errors"
	"testing"
	"time"
)

// fakeClock drives pollUntil deterministically: sleep advances the
// clock instead of blocking.
type fakeClock struct {
	t time.Time
}

func (c *fakeClock) now() time.Time        { return c.t }
func (c *fakeClock) sleep(d time.Duration) { c.t = c.t.Add(d) }

func withFakeClock(t *testing.T) *fakeClock {
	t.Helper()
	fc := &fakeClock{t: time.Unix(1000, 0)}
	oldNow, oldSleep := timeNow, sleep
	timeNow, sleep = fc.now, fc.sleep
	t.Cleanup(func() { timeNow, sleep = oldNow, oldSleep })
	return fc
}

func TestPollUntilGraceSample(t *testing.T) {
	withFakeClock(t)

	// Condition never comes true: the loop samples once per interval
	// plus exactly one grace sample after the deadline.
	calls := 0
	ok, err := pollUntil(func() (bool, error) {
		calls++
		return false, nil
	}, 0, 10*time.Millisecond, time.Millisecond)
	if err != nil || ok {
		t.Fatalf("pollUntil = (%v, %v), want (false, nil)", ok, err)
	}
	if calls != 11 {
		t.Errorf("%d samples, want 10 in-loop plus 1 grace", calls)
	}

	// Condition becomes true exactly at the grace sample.
	calls = 0
	ok, err = pollUntil(func() (bool, error) {
		calls++
		return calls == 11, nil
	}, 0, 10*time.Millisecond, time.Millisecond)
	if err != nil || !ok {
		t.Errorf("grace sample missed: (%v, %v) after %d calls", ok, err, calls)
	}
}

func TestPollUntilPreDelayAndErrors(t *testing.T) {
	fc := withFakeClock(t)

	start := fc.t
	calls := 0
	ok, err := pollUntil(func() (bool, error) {
		calls++
		if calls == 1 && fc.t.Sub(start) < 5*time.Millisecond {
			t.Error("first sample before the pre-check delay")
		}
		return true, nil
	}, 5*time.Millisecond, 10*time.Millisecond, time.Millisecond)
	if !ok || err != nil || calls != 1 {
		t.Errorf("pollUntil = (%v, %v) after %d calls", ok, err, calls)
	}

	boom := errors.New("boom")
	_, err = pollUntil(func() (bool, error) { return false, boom }, 0, time.Millisecond, time.Millisecond)
	if !errors.Is(err, boom) {
		t.Errorf("predicate error not propagated: %v", err)
	}
}

func TestLockedWait(t *testing.T) {
	d, io, err := bringUp(HMC7044, testParams44())
	if err != nil {
		t.Fatal(err)
	}
	ok, err := d.Locked(0, true)
	if err != nil || !ok {
		t.Errorf("Locked(wait) = (%v, %v), want (true, nil)", ok, err)
	}

	// Drop PLL1 lock: polling must time out with ErrLockTimeout.
	io.regs[regAlarmRdbk] = fldRbPll2Lock.mask()
	withFakeClock(t) // keep the derived 1 s poll from really sleeping
	ok, err = d.Locked(0, true)
	if ok || !errors.Is(err, ErrLockTimeout) {
		t.Errorf("Locked(wait) = (%v, %v), want ErrLockTimeout", ok, err)
	}
}

func TestWaitLockPreDelay(t *testing.T) {
	d, io, err := bringUp(HMC7044, testParams44())
	if err != nil {
		t.Fatal(err)
	}
	fc := withFakeClock(t)
	start := fc.t
	var first time.Time
	io.onRead = func(reg uint16) (uint8, bool) {
		if reg == regAlarmRdbk && first.IsZero() {
			first = fc.t
		}
		return 0, false
	}
	if ok, err := d.Locked(0, true); err != nil || !ok {
		t.Fatalf("Locked(wait) = (%v, %v), want (true, nil)", ok, err)
	}
	if first.Sub(start) < lockPreDelay {
		t.Errorf("first lock sample %v after the call, want at least %v",
			first.Sub(start), lockPreDelay)
	}
}

// Non-blocking lock inference must be safe alongside commands running
// on the same device.
func TestLockedInferenceDuringCommands(t *testing.T) {
	d, _, err := bringUp(HMC7043, testParams43())
	if err != nil {
		t.Fatal(err)
	}
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 200; i++ {
			if _, err := d.Locked(0, false); err != nil {
				t.Errorf("Locked: %v", err)
				return
			}
		}
	}()
	for i := 0; i < 200; i++ {
		if err := d.DisableChannel(0, 2); err != nil {
			t.Fatal(err)
		}
		if err := d.EnableChannel(0, 2); err != nil {
			t.Fatal(err)
		}
	}
	<-done
}

func TestLockedInference(t *testing.T) {
	d, _, err := bringUp(HMC7044, testParams44())
	if err != nil {
		t.Fatal(err)
	}

	// Immediately after bring-up the settling window has not passed.
	ok, err := d.Locked(0, false)
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Error("lock inferred immediately after bring-up")
	}

	// Once the derived window has elapsed the state is inferred as
	// locked, without touching the bus.
	old := timeNow
	timeNow = func() time.Time { return time.Now().Add(time.Hour) }
	t.Cleanup(func() { timeNow = old })
	ok, err = d.Locked(0, false)
	if err != nil || !ok {
		t.Errorf("Locked(no wait) = (%v, %v), want (true, nil)", ok, err)
	}
}

// lockPins simulates a bridge with the lock pins wired up.
type lockPins struct {
	*memIO
	pll1, pll2 bool
}

func (l *lockPins) LockStatus() (bool, bool, error) { return l.pll1, l.pll2, nil }

func TestLockedTransportFastPath(t *testing.T) {
	d := New()
	if err := d.InitInterface(1 << 0); err != nil {
		t.Fatal(err)
	}
	io := &lockPins{memIO: newMemIO(HMC7044), pll1: true, pll2: true}
	if err := d.InitDevice(0, io, HMC7044, testParams44(), false); err != nil {
		t.Fatal(err)
	}
	// Clear the lock bits in the status register: a true result can
	// only have come from the pins.
	io.regs[regAlarmRdbk] = 0
	ok, err := d.Locked(0, true)
	if err != nil || !ok {
		t.Errorf("Locked via fast path = (%v, %v), want (true, nil)", ok, err)
	}
}

func TestAlarmsReadAndClear(t *testing.T) {
	d, io, err := bringUp(HMC7044, testParams44())
	if err != nil {
		t.Fatal(err)
	}

	io.regs[regAlarmSig] = 1
	alarm, err := d.Alarm(0)
	if err != nil || !alarm {
		t.Errorf("Alarm = (%v, %v), want (true, nil)", alarm, err)
	}

	io.regs[regAlarmRdbk] = fldRbSrefSync.mask() | fldRbSyncReq.mask() |
		fldRbPll1Lock.mask() | fldRbPll2Lock.mask() | fldRbHoldover.mask()
	io.regs[regLOSRdbk] = 1<<1 | 1<<4 // ref1 and OSCIN LOS
	a, err := d.Alarms(0)
	if err != nil {
		t.Fatal(err)
	}
	if !a.SysrefSync || !a.SyncReq || a.ClockPhase {
		t.Errorf("alarm decode wrong: %+v", a)
	}
	if !a.PLL1Locked || !a.PLL2Locked || !a.Holdover {
		t.Errorf("lock decode wrong: %+v", a)
	}
	if a.RefLOS != [NumRefs]bool{false, true, false, false} || !a.OscInLOS {
		t.Errorf("LOS decode wrong: %+v", a)
	}

	if err := d.ClearAlarms(0); err != nil {
		t.Fatal(err)
	}
	if got := io.writesTo(regAlarmClr); len(got) < 2 ||
		got[len(got)-2]&1 != 1 || got[len(got)-1]&1 != 0 {
		t.Errorf("alarm clear writes = %v, want a 1-then-0 toggle", got)
	}
}

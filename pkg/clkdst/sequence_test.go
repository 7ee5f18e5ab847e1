package clkdst

import (
	"errors"
	"testing"
)

func TestColdBringUp7043(t *testing.T) {
	p := testParams43()
	d, io, err := bringUp(HMC7043, p)
	if err != nil {
		t.Fatalf("bring-up: %v", err)
	}

	// Soft reset was pulsed first.
	if got := io.writesTo(regSoftReset); len(got) != 2 || got[0] != 1 || got[1] != 0 {
		t.Errorf("soft reset writes = %v, want [1 0]", got)
	}

	// Restart, reseed and the initial pulse generator stream all
	// toggled through the request register.
	reqs := io.writesTo(regReqMode)
	var sawRestart, sawReseed, sawPulse bool
	for _, v := range reqs {
		if v&fldRestart.mask() != 0 {
			sawRestart = true
		}
		if v&fldReseed.mask() != 0 {
			sawReseed = true
		}
		if v&fldPulseGen.mask() != 0 {
			sawPulse = true
		}
	}
	if !sawRestart || !sawReseed || !sawPulse {
		t.Errorf("request register writes %v: restart=%v reseed=%v pulse=%v",
			reqs, sawRestart, sawReseed, sawPulse)
	}
	if reqs[len(reqs)-1]&(fldRestart.mask()|fldReseed.mask()|fldPulseGen.mask()) != 0 {
		t.Error("request bits left set after bring-up")
	}
	if io.regs[regReqMode]&fldHighPerf.mask() == 0 {
		t.Error("high performance path bit not set")
	}

	// SYSREF timer: 3.2 GHz / 1 MHz = 3200 = 0xC80.
	if io.regs[regSrefTimerL] != 0x80 || io.regs[regSrefTimerH] != 0x0C {
		t.Errorf("sysref timer = 0x%02x%02x, want 0x0C80",
			io.regs[regSrefTimerH], io.regs[regSrefTimerL])
	}

	// Channel 2: enabled, divider 4, LVPECL, idle at zero, sync
	// disabled again at the end of the sequence.
	ctl := io.regs[chanBase(2)+chOffCtl]
	if ctl&chEnable(2).mask() == 0 {
		t.Error("channel 2 not enabled")
	}
	if ctl&chSyncEn(2).mask() != 0 {
		t.Error("channel 2 still in the sync group after bring-up")
	}
	if ctl&chSlipEn(2).mask() == 0 {
		t.Error("channel 2 slip not armed")
	}
	if io.regs[chanBase(2)+chOffDivL] != 4 || io.regs[chanBase(2)+chOffDivH] != 0 {
		t.Errorf("channel 2 divider regs = %02x %02x, want 04 00",
			io.regs[chanBase(2)+chOffDivL], io.regs[chanBase(2)+chOffDivH])
	}

	// Channel 12 is a pulse-generator SYSREF output: dynamic start-up,
	// dynamic driver, 4 analog delay steps.
	if got := (io.regs[chanBase(12)+chOffCtl] & chStartMode(12).mask()) >> chStartMode(12).shift; got != startModeDynamic {
		t.Errorf("channel 12 start mode = %d, want %d", got, startModeDynamic)
	}
	if io.regs[chanBase(12)+chOffDrv]&chDynDrv(12).mask() == 0 {
		t.Error("channel 12 dynamic driver not set")
	}
	if io.regs[chanBase(12)+chOffADly] != 4 {
		t.Errorf("channel 12 analog delay = %d steps, want 4", io.regs[chanBase(12)+chOffADly])
	}

	// Unused channels parked disabled.
	if io.regs[chanBase(7)+chOffCtl]&chEnable(7).mask() != 0 {
		t.Error("unused channel 7 enabled")
	}

	// Image mirrors hardware except the sync bits written after commit.
	c := d.devs[0]
	if !c.img.valid || !c.appDone {
		t.Error("device not marked up")
	}
	for _, reg := range trackedRegs(HMC7043) {
		if c.img.regs[reg] != io.regs[reg] {
			t.Errorf("image desync at 0x%04x: image 0x%02x, hw 0x%02x",
				reg, c.img.regs[reg], io.regs[reg])
		}
	}
}

func TestColdBringUp7044(t *testing.T) {
	p := testParams44()
	_, io, err := bringUp(HMC7044, p)
	if err != nil {
		t.Fatalf("bring-up: %v", err)
	}

	// PLL1: R=1, N=4, cp code 7, lock exponent 22.
	if io.regs[regPll1RDivL] != 1 || io.regs[regPll1RDivH] != 0 {
		t.Error("pll1 R divider wrong")
	}
	if io.regs[regPll1NDivL] != 4 || io.regs[regPll1NDivH] != 0 {
		t.Error("pll1 N divider wrong")
	}
	if io.regs[regPll1CP] != 7 {
		t.Errorf("pll1 cp code = %d, want 7", io.regs[regPll1CP])
	}
	if io.regs[regPll1LockDet] != 22 {
		t.Errorf("pll1 lock exponent = %d, want 22", io.regs[regPll1LockDet])
	}
	// PLL2: N=12, doubler on.
	if io.regs[regPll2NDivL] != 12 || io.regs[regPll2NDivH] != 0 {
		t.Error("pll2 N divider wrong")
	}
	if io.regs[regPll2Doubler]&fldPll2Doubler.mask() == 0 {
		t.Error("pll2 doubler not set")
	}

	// Reference priority: ref2 has priority 0, so it ranks first;
	// ref0 second; disabled inputs parked at rank 3.
	want := uint8(1<<0 | 3<<2 | 0<<4 | 3<<6)
	if io.regs[regRefPrio] != want {
		t.Errorf("priority register = 0x%02x, want 0x%02x", io.regs[regRefPrio], want)
	}
}

func TestBringUpRequiresPhaseAligned(t *testing.T) {
	withFakeClock(t)
	d := New()
	if err := d.InitInterface(1 << 0); err != nil {
		t.Fatal(err)
	}
	io := newMemIO(HMC7043)
	io.regs[regAlarmRdbk] = 0 // phases never report aligned
	err := d.InitDevice(0, io, HMC7043, testParams43(), false)
	if err == nil {
		t.Fatal("bring-up succeeded with the phase status clear")
	}
	if _, err := d.Alarms(0); !errors.Is(err, ErrNotInitialized) {
		t.Errorf("device usable after failed bring-up: %v", err)
	}

	// Once the status asserts, a rerun succeeds and Locked agrees.
	io.regs[regAlarmRdbk] = fldRbClkPhase.mask()
	if err := d.InitDevice(0, io, HMC7043, testParams43(), false); err != nil {
		t.Fatalf("bring-up with phases aligned: %v", err)
	}
	if ok, err := d.Locked(0, true); err != nil || !ok {
		t.Errorf("Locked(wait) = (%v, %v), want (true, nil)", ok, err)
	}
	io.regs[regAlarmRdbk] = 0
	if _, err := d.Locked(0, true); !errors.Is(err, ErrLockTimeout) {
		t.Errorf("Locked(wait) with the phase status clear: %v", err)
	}
}

func TestBringUpWrongChip(t *testing.T) {
	d := New()
	if err := d.InitInterface(1 << 0); err != nil {
		t.Fatal(err)
	}
	io := newMemIO(HMC7043)
	err := d.InitDevice(0, io, HMC7044, testParams44(), false)
	if !errors.Is(err, ErrBadChip) {
		t.Fatalf("got %v, want ErrBadChip", err)
	}
	if _, err := d.Alarms(0); !errors.Is(err, ErrNotInitialized) {
		t.Errorf("device usable after failed bring-up: %v", err)
	}
}

func TestBringUpIdempotent(t *testing.T) {
	p := testParams43()
	d1, _, err := bringUp(HMC7043, p)
	if err != nil {
		t.Fatal(err)
	}
	d2, _, err := bringUp(HMC7043, p)
	if err != nil {
		t.Fatal(err)
	}
	if d1.devs[0].img.regs != d2.devs[0].img.regs {
		t.Error("two cold bring-ups from the same plan produced different images")
	}
}

func TestWarmInit(t *testing.T) {
	p := testParams43()
	_, io, err := bringUp(HMC7043, p)
	if err != nil {
		t.Fatal(err)
	}
	wrote := len(io.writes)

	// Re-attach to the running chip without reprogramming.
	d := New()
	if err := d.InitInterface(1 << 0); err != nil {
		t.Fatal(err)
	}
	if err := d.InitDevice(0, io, HMC7043, p, true); err != nil {
		t.Fatalf("warm init: %v", err)
	}
	if len(io.writes) != wrote {
		t.Errorf("warm init wrote %d registers", len(io.writes)-wrote)
	}
	c := d.devs[0]
	if !c.img.valid {
		t.Error("image not valid after warm init")
	}
	for _, reg := range trackedRegs(HMC7043) {
		if c.img.regs[reg] != io.regs[reg] {
			t.Errorf("warm image desync at 0x%04x", reg)
		}
	}
	if c.lastCmd.IsZero() {
		t.Error("last command time not set after warm init")
	}
}

func TestBringUpAbortsOnWriteFailure(t *testing.T) {
	d := New()
	if err := d.InitInterface(1 << 0); err != nil {
		t.Fatal(err)
	}
	io := newMemIO(HMC7043)
	io.failWrite = true
	io.failWriteReg = regDist9F
	err := d.InitDevice(0, io, HMC7043, testParams43(), false)
	if err == nil {
		t.Fatal("bring-up succeeded past a failing write")
	}
	for _, w := range io.writes {
		if w.reg > regDist9F {
			t.Fatalf("write to 0x%04x after the failure point", w.reg)
		}
	}
	// A rerun with working hardware recovers.
	io.failWrite = false
	if err := d.InitDevice(0, io, HMC7043, testParams43(), false); err != nil {
		t.Fatalf("rerun after failure: %v", err)
	}
}

func TestReinitAllowed(t *testing.T) {
	p := testParams43()
	d, io, err := bringUp(HMC7043, p)
	if err != nil {
		t.Fatal(err)
	}
	// Change the plan and bring the same device up again.
	p.Chans[2].Freq = 400000000
	if err := d.InitDevice(0, io, HMC7043, p, false); err != nil {
		t.Fatalf("re-init: %v", err)
	}
	if io.regs[chanBase(2)+chOffDivL] != 8 {
		t.Errorf("divider after re-init = %d, want 8", io.regs[chanBase(2)+chOffDivL])
	}
}

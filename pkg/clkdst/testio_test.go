package clkdst

import "fmt"

// memIO is the in-memory register transport used by the package tests.
// It keeps a register file, records every write in order and lets a
// test fail a specific register or override reads.
type regWrite struct {
	reg uint16
	val uint8
}

type memIO struct {
	regs   map[uint16]uint8
	writes []regWrite

	failWriteReg uint16
	failWrite    bool
	onRead       func(reg uint16) (uint8, bool)
}

func newMemIO(f Family) *memIO {
	m := &memIO{regs: map[uint16]uint8{}}
	id := uint32(prodIDHmc7043)
	// A healthy chip reports its output phases aligned.
	m.regs[regAlarmRdbk] = fldRbClkPhase.mask()
	if f == HMC7044 {
		id = prodIDHmc7044
		// Both PLLs report locked as well.
		m.regs[regAlarmRdbk] |= fldRbPll2Lock.mask() | fldRbPll1Lock.mask()
	}
	m.regs[regProdIDL] = uint8(id)
	m.regs[regProdIDM] = uint8(id >> 8)
	m.regs[regProdIDH] = uint8(id >> 16)
	return m
}

func (m *memIO) ReadReg(reg uint16) (uint8, error) {
	if m.onRead != nil {
		if v, ok := m.onRead(reg); ok {
			return v, nil
		}
	}
	return m.regs[reg], nil
}

func (m *memIO) WriteReg(reg uint16, val uint8) error {
	if m.failWrite && reg == m.failWriteReg {
		return fmt.Errorf("simulated write failure")
	}
	m.regs[reg] = val
	m.writes = append(m.writes, regWrite{reg, val})
	return nil
}

// writesTo returns the logged values written to one register, in order.
func (m *memIO) writesTo(reg uint16) []uint8 {
	var out []uint8
	for _, w := range m.writes {
		if w.reg == reg {
			out = append(out, w.val)
		}
	}
	return out
}

// testParams43 is a minimal valid HMC7043 plan: 3.2 GHz in, one clock
// output at 800 MHz, one pulse-generator SYSREF output.
func testParams43() *DevParams {
	p := &DevParams{
		ClkInFreq: 3200000000,
		ClkInDiv:  ClkInDiv1,
		ClkInBuf:  InputBuf{Enabled: true, Mode: BufAC | BufTerm100R},
		SyncInBuf: InputBuf{Enabled: true, Mode: BufAC},
		Sysref: SysrefParams{
			Freq:       1000000,
			Mode:       SysrefPulsed,
			NPulses:    SysrefPulses4,
			SyncRetime: true,
		},
		Alarms: AlarmMask{SyncReq: true, ClockPhase: true, SysrefSync: true},
	}
	p.Chans[2] = ChanParams{
		Mode:          ChanClock,
		Freq:          800000000,
		Driver:        DrvLVPECL,
		IdleAtZero:    true,
		HighPerfMode:  true,
		SlipQuantumPs: 312.5, // one period at 3.2 GHz
	}
	p.Chans[12] = ChanParams{
		Mode:        ChanSysref,
		Freq:        1000000,
		Driver:      DrvLVDS,
		DynDriverEn: true,
		AnaDelayPs:  100,
	}
	return p
}

// testParams44 is a minimal valid HMC7044 plan: 30.72 MHz reference,
// 122.88 MHz VCXO, 2.94912 GHz VCO.
func testParams44() *DevParams {
	p := &DevParams{
		SyncInBuf: InputBuf{Enabled: true, Mode: BufAC},
		OscInFreq: 122880000,
		OscInBuf:  InputBuf{Enabled: true, Mode: BufAC},
		PLL1: PLL1Params{
			RDiv:        1,
			CPCurrentUA: 1000,
			LoopBWHz:    50,
		},
		PLL2: PLL2Params{
			VCOFreq:     2949120000,
			RDiv:        1,
			Doubler:     true,
			CPCurrentUA: 1920,
			LoopBWHz:    300000,
		},
		Sysref: SysrefParams{
			Freq:    960000,
			Mode:    SysrefContinuous,
			NPulses: SysrefPulses4,
		},
		Alarms: AlarmMask{SyncReq: true, ClockPhase: true, SysrefSync: true, PLLLock: true},
	}
	p.Refs[0] = RefInput{Enabled: true, Freq: 30720000, Priority: 1,
		Buf: InputBuf{Enabled: true, Mode: BufAC}}
	p.Refs[2] = RefInput{Enabled: true, Freq: 30720000, Priority: 0,
		Buf: InputBuf{Enabled: true, Mode: BufAC}}
	p.Chans[0] = ChanParams{
		Mode:   ChanClock,
		Freq:   245760000,
		Driver: DrvCML, CMLTerm: CMLTerm100R,
		IdleAtZero: true,
	}
	return p
}

// bringUp is the common happy-path helper: fresh driver, fresh memIO,
// cold init of dev 0.
func bringUp(f Family, p *DevParams) (*Driver, *memIO, error) {
	d := New()
	if err := d.InitInterface(1 << 0); err != nil {
		return nil, nil, err
	}
	io := newMemIO(f)
	err := d.InitDevice(0, io, f, p, false)
	return d, io, err
}

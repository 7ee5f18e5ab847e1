// Package clkdst drives the HMC7043/HMC7044 family of clock distribution
// and jitter attenuation chips over a register-oriented serial interface.
//
// Both parts share one register architecture: 8-bit registers in a sparse
// index space, 14 output channels with identical per-channel register
// blocks, a SYSREF pulse generator and an alarm block. The HMC7044 adds
// PLL1 (reference cleanup) and PLL2 (VCO) on top of the distribution core.
//
// Typical use:
//
//	d := clkdst.New()
//	d.InitInterface(1 << dev)
//	err := d.InitDevice(dev, io, clkdst.HMC7044, params, false)
package clkdst

import "time"

// Dev is a small-integer device handle, 0 <= dev < MaxDevices.
type Dev int

// DevMask selects a set of devices, one bit per handle.
type DevMask uint32

// Freq is a frequency in Hz.
type Freq uint64

// Family identifies the chip variant behind a device handle.
type Family int

const (
	// HMC7043 is the distribution-only part (no PLLs, single clock input).
	HMC7043 Family = iota
	// HMC7044 is the jitter attenuator: PLL1 + PLL2, four reference
	// inputs, oscillator input/output, on top of the same distribution core.
	HMC7044
)

func (f Family) String() string {
	switch f {
	case HMC7043:
		return "HMC7043"
	case HMC7044:
		return "HMC7044"
	}
	return "unknown"
}

const (
	// MaxDevices is the size of the device table.
	MaxDevices = 10
	// NumChans is the number of output channels per device.
	NumChans = 14
	// NumRefs is the number of reference inputs on the HMC7044.
	NumRefs = 4
)

// ClkInDiv selects the input-clock divide mode of the distribution path.
type ClkInDiv int

const (
	ClkInDiv1 ClkInDiv = iota // fundamental
	ClkInDiv2                 // divide-by-2 ahead of the distribution network
)

// BufMode is the electrical configuration of an input buffer, a set of
// flag bits programmed directly into the buffer register.
type BufMode uint8

const (
	BufHighZ    BufMode = 1 << 0
	BufAC       BufMode = 1 << 1
	BufLVPECL   BufMode = 1 << 2
	BufTerm100R BufMode = 1 << 3
)

// InputBuf describes one input buffer (CLKIN, SYNCIN, references, OSCIN).
type InputBuf struct {
	Enabled bool
	Mode    BufMode
}

// GpiFunc selects the function routed to the GPI pin.
type GpiFunc uint8

const (
	GpiSleep    GpiFunc = 2
	GpiMute     GpiFunc = 3
	GpiPulseGen GpiFunc = 4
	GpiReseed   GpiFunc = 5
	GpiRestart  GpiFunc = 6
	GpiSlip     GpiFunc = 8
)

// GpoFunc selects the signal routed to the GPO pin.
type GpoFunc uint8

const (
	GpoAlarm       GpoFunc = 0x00
	GpoSdata       GpoFunc = 0x01
	GpoClkOutPhase GpoFunc = 0x04
	GpoSysrefSync  GpoFunc = 0x05
	GpoSyncReq     GpoFunc = 0x06
	GpoPllLock     GpoFunc = 0x08
	GpoPulseGenReq GpoFunc = 0x19
)

// OutPinMode is the electrical mode of the GPO/SDATA output drivers.
type OutPinMode uint8

const (
	OutOpenDrain OutPinMode = 0
	OutCMOS      OutPinMode = 1
)

// SysrefMode is the operating mode of the SYSREF pulse generator.
type SysrefMode int

const (
	SysrefContinuous SysrefMode = iota
	SysrefLevelCtl
	SysrefPulsed
)

// SysrefNPulses is a supported burst length of the pulse generator.
type SysrefNPulses int

const (
	SysrefPulses1  SysrefNPulses = 1
	SysrefPulses2  SysrefNPulses = 2
	SysrefPulses4  SysrefNPulses = 4
	SysrefPulses8  SysrefNPulses = 8
	SysrefPulses16 SysrefNPulses = 16
)

// ChanMode classifies an output channel within the frequency plan.
type ChanMode int

const (
	ChanUnused ChanMode = iota
	ChanClock
	ChanSysref
)

// DrvMode is the output driver standard of a channel.
type DrvMode uint8

const (
	DrvCML    DrvMode = 0
	DrvLVPECL DrvMode = 1
	DrvLVDS   DrvMode = 2
	DrvCMOS   DrvMode = 3
)

// CMLTerm is the internal termination of a CML output driver.
type CMLTerm uint8

const (
	CMLTermNone CMLTerm = 0
	CMLTerm100R CMLTerm = 1
	CMLTerm50R  CMLTerm = 3
)

// OutSel is the channel output mux source.
type OutSel int

const (
	OutDivider     OutSel = iota // channel divider
	OutDivAnalog                 // divider through the analog delay
	OutDivNeighbor               // neighbor channel divider
	OutFundamental               // input clock, divider bypassed
)

// ChanParams is the plan for one output channel.
type ChanParams struct {
	Mode ChanMode
	// Freq is the target output frequency; for OutFundamental it must
	// equal the internal distribution frequency.
	Freq Freq

	Driver     DrvMode
	CMLTerm    CMLTerm // CML driver only
	IdleAtZero bool
	OutSel     OutSel

	// DigDelayPs is the coarse digital delay, a multiple of half the
	// distribution clock period, at most 17 steps.
	DigDelayPs float64
	// AnaDelayPs is the fine analog delay, a multiple of 25 ps, at most
	// 23 steps. Not allowed on clock-mode channels.
	AnaDelayPs float64
	// SlipQuantumPs is the phase step applied per slip event, a multiple
	// of the distribution clock period. Zero disables slip on the channel.
	SlipQuantumPs float64

	HighPerfMode bool
	// DynDriverEn gates the driver dynamically from the pulse generator;
	// SYSREF-mode channels only.
	DynDriverEn bool
}

// RefInput is one PLL1 reference input of the HMC7044.
type RefInput struct {
	Enabled  bool
	Freq     Freq
	Priority uint8 // lower value is preferred
	Buf      InputBuf
}

// PLL1Params configures the HMC7044 reference PLL.
type PLL1Params struct {
	RDiv        uint16
	CPCurrentUA uint32
	LoopBWHz    Freq
}

// PLL2Params configures the HMC7044 VCO PLL.
type PLL2Params struct {
	VCOFreq     Freq
	RDiv        uint16
	Doubler     bool
	CPCurrentUA uint32
	LoopBWHz    Freq
}

// OscOutParams configures the HMC7044 buffered oscillator output.
type OscOutParams struct {
	Enabled bool
	Divider uint8 // 1, 2, 4 or 8
	Driver  DrvMode
}

// SysrefParams configures the SYSREF timer and pulse generator.
type SysrefParams struct {
	Freq         Freq
	Mode         SysrefMode
	NPulses      SysrefNPulses // pulsed mode only
	InvertedSync bool
	SyncRetime   bool
}

// AlarmMask enables individual alarm sources into the alarm signal.
type AlarmMask struct {
	SyncReq    bool
	ClockPhase bool
	SysrefSync bool
	PLLLock    bool // HMC7044 only
}

// Alarms is a decoded snapshot of the status readback registers. The
// flags mirror the raw status bits: ClockPhase and the PLL lock flags
// read true in the healthy state.
type Alarms struct {
	SyncReq    bool
	ClockPhase bool
	SysrefSync bool

	// HMC7044 only.
	PLL1Locked bool
	PLL2Locked bool
	Holdover   bool
	RefLOS     [NumRefs]bool
	OscInLOS   bool
}

// DevParams is the complete frequency plan for one device. The caller
// builds it (typically from a plan file) and hands it to InitDevice;
// the driver validates it and owns a copy afterwards.
type DevParams struct {
	// Distribution clock input (HMC7043: CLKIN; HMC7044: unused, the
	// distribution network runs from the PLL2 VCO).
	ClkInFreq    Freq
	ClkInDiv     ClkInDiv
	ClkInBuf     InputBuf
	LowFreqClkIn bool // input below the normal buffer range

	SyncInBuf InputBuf

	// HMC7044 only.
	Refs      [NumRefs]RefInput
	PLL1      PLL1Params
	PLL2      PLL2Params
	OscInFreq Freq
	OscInBuf  InputBuf
	OscOut    OscOutParams

	GpiEnabled bool
	GpiFunc    GpiFunc
	GpoEnabled bool
	GpoFunc    GpoFunc
	GpoMode    OutPinMode
	SdataMode  OutPinMode

	Sysref SysrefParams
	Alarms AlarmMask

	Chans [NumChans]ChanParams
}

// derived holds plan constants computed once at validation time.
type derived struct {
	effClkIn    Freq    // distribution network frequency
	clkPeriodPs float64 // one distribution clock period
	chDiv       [NumChans]uint32
	sysrefTimer uint16
	lcm         Freq // LCM of the enabled reference frequencies (7044)
	pll1        pllDerived
	pll2        pllDerived
}

type pllDerived struct {
	pdFreq   Freq
	nDiv     uint32
	cpCode   uint8
	lockExp  uint8
	lockWait time.Duration
}

package clkdst

// Register map shared by the HMC7043 and HMC7044. Registers are 8 bits
// wide in a sparse index space; the driver shadows every register it
// writes in a per-device image and commits the image in batch.

const (
	regSoftReset = 0x0000
	regReqMode   = 0x0001 // sleep/restart/pulse-gen/mute/reseed requests
	regSlipReq   = 0x0002
	regGlobal    = 0x0003
	regSyncCfg   = 0x0004 // SYSREF/SYNC polarity and retiming
	regRsvd05    = 0x0005
	regAlarmClr  = 0x0006
	regRsvd07    = 0x0007
	regRsvd08    = 0x0008
	regRsvd09    = 0x0009
	regClkInBuf  = 0x000A
	regSyncInBuf = 0x000B

	// HMC7044 extension block: reference inputs, PLL1, PLL2, oscillator.
	regRef1Buf     = 0x000C
	regRef2Buf     = 0x000D
	regRef3Buf     = 0x000E
	regRefPrio     = 0x0014
	regPll1RDivL   = 0x0021
	regPll1RDivH   = 0x0022
	regPll1NDivL   = 0x0026
	regPll1NDivH   = 0x0027
	regPll1LockDet = 0x0028
	regPll1CP      = 0x0029
	regPll2RDivL   = 0x0032
	regPll2RDivH   = 0x0033
	regPll2NDivL   = 0x0034
	regPll2NDivH   = 0x0035
	regPll2CP      = 0x0037
	regPll2Doubler = 0x0038
	regOscInBuf    = 0x0039
	regOscOut      = 0x003A

	regGpiCtl      = 0x0046
	regGpoCtl      = 0x0050
	regSdataCtl    = 0x0054
	regPulseGen    = 0x005A
	regSrefTimerL  = 0x005C
	regSrefTimerH  = 0x005D
	regClkInCtl    = 0x0064
	regAnaDlyPower = 0x0065
	regAlarmMask   = 0x0071

	// Read-only block.
	regProdIDL    = 0x0078
	regProdIDM    = 0x0079
	regProdIDH    = 0x007A
	regAlarmSig   = 0x007B
	regAlarmRdbk  = 0x007D
	regLOSRdbk    = 0x0082 // HMC7044
	regSrefFSM    = 0x0091

	// Distribution performance block, datasheet fixed values.
	regDist98 = 0x0098
	regDist99 = 0x0099
	regDist9D = 0x009D
	regDist9E = 0x009E
	regDist9F = 0x009F
	regDistA0 = 0x00A0
	regDistA2 = 0x00A2
	regDistA3 = 0x00A3
	regDistA4 = 0x00A4
	regDistAD = 0x00AD
	regDistB5 = 0x00B5
	regDistB6 = 0x00B6
	regDistB7 = 0x00B7
	regDistB8 = 0x00B8

	// Per-channel blocks: 9 registers at chanBase + chanStride*ch.
	chanBase0  = 0x00C8
	chanStride = 0x000A

	regIndexMax = 0x0152
	numRegs     = regIndexMax + 1
)

// Product IDs, registers 0x78 (LSB) .. 0x7A (MSB).
const (
	prodIDHmc7043 = 0x301651
	prodIDHmc7044 = 0x045201
)

// Per-channel register offsets within a channel block.
const (
	chOffCtl    = 0 // enable/slip/start-up/sync/performance
	chOffDivL   = 1
	chOffDivH   = 2 // 4 bits
	chOffADly   = 3 // fine analog delay, 25 ps steps
	chOffDDly   = 4 // coarse digital delay, half-period steps
	chOffMSDlyL = 5 // multislip step count
	chOffMSDlyH = 6 // 4 bits
	chOffMux    = 7
	chOffDrv    = 8
)

// field addresses a bit run inside one register of the image.
type field struct {
	reg   uint16
	shift uint8
	width uint8
}

func (f field) mask() uint8 { return ((1 << f.width) - 1) << f.shift }

// Global request bits (regReqMode). The request bits are written as
// 1-then-0 toggles; the high performance path bit stays set.
var (
	fldRestart  = field{regReqMode, 1, 1}
	fldPulseGen = field{regReqMode, 2, 1}
	fldHighPerf = field{regReqMode, 6, 1}
	fldReseed   = field{regReqMode, 7, 1}

	fldSlipReq  = field{regSlipReq, 1, 1}
	fldAlarmClr = field{regAlarmClr, 0, 1}

	fldSyncInvert = field{regSyncCfg, 0, 1}
	fldSyncRetime = field{regSyncCfg, 1, 1}

	fldGpiEn  = field{regGpiCtl, 0, 1}
	fldGpiSel = field{regGpiCtl, 1, 4}
	fldGpoEn  = field{regGpoCtl, 0, 1}
	fldGpoMod = field{regGpoCtl, 1, 1}
	fldGpoSel = field{regGpoCtl, 2, 5}
	fldSdata  = field{regSdataCtl, 0, 1}

	fldPulseMode = field{regPulseGen, 0, 3}

	fldSrefTimerL = field{regSrefTimerL, 0, 8}
	fldSrefTimerH = field{regSrefTimerH, 0, 4}

	fldLowFreqClkIn = field{regClkInCtl, 0, 1}
	fldClkInDiv2    = field{regClkInCtl, 1, 1}
	fldADlyLowPower = field{regAnaDlyPower, 0, 1}

	fldAlmEnSrefSync = field{regAlarmMask, 1, 1}
	fldAlmEnClkPhase = field{regAlarmMask, 2, 1}
	fldAlmEnSyncReq  = field{regAlarmMask, 4, 1}
	fldAlmEnPllLock  = field{regAlarmMask, 0, 1} // 7044

	fldAlmSignal = field{regAlarmSig, 0, 1}

	// Status readback (read-only).
	fldRbSrefSync = field{regAlarmRdbk, 1, 1}
	fldRbClkPhase = field{regAlarmRdbk, 2, 1} // 1 = output phases aligned
	fldRbPll2Lock = field{regAlarmRdbk, 3, 1} // 7044
	fldRbSyncReq  = field{regAlarmRdbk, 4, 1}
	fldRbPll1Lock = field{regAlarmRdbk, 5, 1} // 7044
	fldRbHoldover = field{regAlarmRdbk, 6, 1} // 7044

	// HMC7044 PLL block.
	fldPll1LockExp = field{regPll1LockDet, 0, 5}
	fldPll1CPCode  = field{regPll1CP, 0, 4}
	fldPll2CPCode  = field{regPll2CP, 0, 4}
	fldPll2Doubler = field{regPll2Doubler, 0, 1}
	fldOscOutEn    = field{regOscOut, 0, 1}
	fldOscOutDiv   = field{regOscOut, 1, 2}
	fldOscOutDrv   = field{regOscOut, 3, 2}
)

// Input buffer register layout (CLKIN, SYNCIN, references, OSCIN).
func bufEnField(reg uint16) field   { return field{reg, 0, 1} }
func bufModeField(reg uint16) field { return field{reg, 1, 4} }

func chanBase(ch int) uint16 { return chanBase0 + uint16(ch)*chanStride }

func chField(ch int, off uint16, shift, width uint8) field {
	return field{chanBase(ch) + off, shift, width}
}

// Channel control bits (chOffCtl).
func chEnable(ch int) field    { return chField(ch, chOffCtl, 0, 1) }
func chMultiSlip(ch int) field { return chField(ch, chOffCtl, 1, 1) }
func chStartMode(ch int) field { return chField(ch, chOffCtl, 2, 2) }
func chSlipEn(ch int) field    { return chField(ch, chOffCtl, 5, 1) }
func chSyncEn(ch int) field    { return chField(ch, chOffCtl, 6, 1) }
func chHighPerf(ch int) field  { return chField(ch, chOffCtl, 7, 1) }

func chDivL(ch int) field   { return chField(ch, chOffDivL, 0, 8) }
func chDivH(ch int) field   { return chField(ch, chOffDivH, 0, 4) }
func chADly(ch int) field   { return chField(ch, chOffADly, 0, 5) }
func chDDly(ch int) field   { return chField(ch, chOffDDly, 0, 5) }
func chMSDlyL(ch int) field { return chField(ch, chOffMSDlyL, 0, 8) }
func chMSDlyH(ch int) field { return chField(ch, chOffMSDlyH, 0, 4) }
func chOutMux(ch int) field { return chField(ch, chOffMux, 0, 2) }

func chDrvImp(ch int) field   { return chField(ch, chOffDrv, 0, 2) }
func chDrvMode(ch int) field  { return chField(ch, chOffDrv, 3, 2) }
func chDynDrv(ch int) field   { return chField(ch, chOffDrv, 5, 1) }
func chIdleZero(ch int) field { return chField(ch, chOffDrv, 6, 2) }

// Channel start-up mode codes.
const (
	startModeAsync   = 0x0
	startModeDynamic = 0x3 // pulse-generator SYSREF channels
)

// Output mux codes.
var outSelCode = map[OutSel]uint8{
	OutDivider:     0,
	OutDivAnalog:   1,
	OutDivNeighbor: 2,
	OutFundamental: 3,
}

// Pulse generator mode codes (regPulseGen).
const (
	pulseModeLevel = 0
	pulseModeCont  = 7
)

// pulseCode maps a burst length to its generator mode code (1, 2, 4, 8,
// 16 pulses map to codes 1..5).
func pulseCode(n SysrefNPulses) (uint8, bool) {
	switch n {
	case SysrefPulses1:
		return 1, true
	case SysrefPulses2:
		return 2, true
	case SysrefPulses4:
		return 3, true
	case SysrefPulses8:
		return 4, true
	case SysrefPulses16:
		return 5, true
	}
	return 0, false
}

// trackedRegs lists every register covered by the image, ascending. The
// batch commit and the warm read-back both walk this order.
func trackedRegs(f Family) []uint16 {
	regs := []uint16{
		regReqMode, regSlipReq, regGlobal, regSyncCfg, regRsvd05,
		regAlarmClr, regRsvd07, regRsvd08, regRsvd09,
		regClkInBuf, regSyncInBuf,
	}
	if f == HMC7044 {
		regs = append(regs,
			regRef1Buf, regRef2Buf, regRef3Buf, regRefPrio,
			regPll1RDivL, regPll1RDivH, regPll1NDivL, regPll1NDivH,
			regPll1LockDet, regPll1CP,
			regPll2RDivL, regPll2RDivH, regPll2NDivL, regPll2NDivH,
			regPll2CP, regPll2Doubler, regOscInBuf, regOscOut)
	}
	regs = append(regs,
		regGpiCtl, regGpoCtl, regSdataCtl,
		regPulseGen, regSrefTimerL, regSrefTimerH,
		regClkInCtl, regAnaDlyPower, regAlarmMask,
		regDist98, regDist99, regDist9D, regDist9E, regDist9F,
		regDistA0, regDistA2, regDistA3, regDistA4, regDistAD,
		regDistB5, regDistB6, regDistB7, regDistB8)
	for ch := 0; ch < NumChans; ch++ {
		base := chanBase(ch)
		for off := uint16(0); off <= chOffDrv; off++ {
			regs = append(regs, base+off)
		}
	}
	return regs
}

// regDefault holds the reset value the image assumes for a register
// before plan programming. Distribution block values are the datasheet
// performance settings; reserved registers are pinned to known values.
var regDefault = map[uint16]uint8{
	regReqMode: 0x40, // high performance distribution path, set in all cases
	regGlobal:  0x21, // chip enable + reserved field 0x2 at bits 4:5
	regRsvd05:  0x0F,

	regDist9D: 0xAA,
	regDist9E: 0xAA,
	regDist9F: 0x4D,
	regDistA0: 0xDF,
	regDistA2: 0x03,

	// Reserved control bit, set on channels 1, 2, 3 and 5 only.
	chanBase0 + 1*chanStride + chOffCtl: 0x10,
	chanBase0 + 2*chanStride + chOffCtl: 0x10,
	chanBase0 + 3*chanStride + chOffCtl: 0x10,
	chanBase0 + 5*chanStride + chOffCtl: 0x10,
}

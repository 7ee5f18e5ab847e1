package clkdst

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/shiwa/clkdst/internal/logger"
)

// Plan validation. Pure computation over DevParams: no hardware access,
// fail-fast with a diagnostic naming the offending parameter. On success
// the derived constants are filled in for the programming stage.

// Chip limits.
const (
	clkInMinHz      = 2e6
	clkInMaxFundHz  = 3.2e9 // fundamental mode
	clkInMaxDiv2Hz  = 6e9   // divide-by-2 mode
	vcoMinHz        = 2.65e9
	vcoMaxHz        = 3.55e9
	pll1PDMinHz     = 1e3
	pll1PDMaxHz     = 50e6
	pll2PDMinHz     = 1e6
	pll2PDMaxHz     = 250e6
	lcmMinHz        = 1e3   // absolute legal range
	lcmMaxHz        = 800e6
	lcmRecMinHz     = 10e3 // recommended range, advisory only
	lcmRecMaxHz     = 200e6
	sysrefMaxHz     = 4e6
	sysrefTimerMax  = 0xFFF
	chanDivMax      = 4094
	pulseGenDivMin  = 32 // pulse-generator channels need divider > 31
	anaDelayStepPs  = 25.0
	anaDelayMaxStep = 23
	digDelayMaxStep = 17
	delayTolPs      = 0.1
	pll2LockCycles  = 1 << 14
)

// cpTableUA is the charge pump DAC, ascending. The register code is the
// table index.
var cpTableUA = []uint32{
	120, 240, 360, 480, 600, 720, 840, 960,
	1080, 1200, 1320, 1440, 1560, 1680, 1800, 1920,
}

func gcd(a, b Freq) Freq {
	for b != 0 {
		a, b = b, a%b
	}
	return a
}

func lcm(a, b Freq) Freq {
	if a == 0 || b == 0 {
		return 0
	}
	return a / gcd(a, b) * b
}

// lcmAll folds lcm over the list; zero entries are rejected upstream.
func lcmAll(freqs []Freq) Freq {
	var l Freq
	for _, f := range freqs {
		if l == 0 {
			l = f
			continue
		}
		l = lcm(l, f)
	}
	return l
}

// nearestCPCode maps a requested charge pump current to the nearest
// table entry by bisection. Ties prefer the lower entry. Requests
// outside the table range fail.
func nearestCPCode(ua uint32) (uint8, uint32, error) {
	if ua < cpTableUA[0] || ua > cpTableUA[len(cpTableUA)-1] {
		return 0, 0, fmt.Errorf("%w: charge pump %d uA outside [%d, %d]",
			ErrBadParams, ua, cpTableUA[0], cpTableUA[len(cpTableUA)-1])
	}
	i := sort.Search(len(cpTableUA), func(i int) bool { return cpTableUA[i] >= ua })
	if i > 0 && ua-cpTableUA[i-1] <= cpTableUA[i]-ua {
		i-- // lower entry at least as close
	}
	return uint8(i), cpTableUA[i], nil
}

// lockDetectExp returns the lock detect timer exponent:
// ceil(log2(4 * lcm / loopBW)).
func lockDetectExp(lcm, loopBW Freq) uint8 {
	cycles := 4 * lcm / loopBW
	if 4*lcm%loopBW != 0 {
		cycles++
	}
	exp := uint8(0)
	for (Freq(1) << exp) < cycles {
		exp++
	}
	return exp
}

// quantizeDelay converts a picosecond delay to whole steps, enforcing
// the step grid within delayTolPs and the step ceiling.
func quantizeDelay(what string, ps, stepPs float64, maxSteps int) (uint8, error) {
	if ps < 0 {
		return 0, fmt.Errorf("%w: %s %.1f ps negative", ErrBadParams, what, ps)
	}
	steps := math.Round(ps / stepPs)
	if math.Abs(ps-steps*stepPs) > delayTolPs {
		return 0, fmt.Errorf("%w: %s %.1f ps not a multiple of %.1f ps",
			ErrBadParams, what, ps, stepPs)
	}
	if int(steps) > maxSteps {
		return 0, fmt.Errorf("%w: %s %.1f ps exceeds %d steps of %.1f ps",
			ErrBadParams, what, ps, maxSteps, stepPs)
	}
	return uint8(steps), nil
}

// validate checks the whole plan and computes the derived constants.
func validate(f Family, p *DevParams) (derived, error) {
	var der derived

	switch f {
	case HMC7043:
		if err := validateClkIn(p); err != nil {
			return der, err
		}
		der.effClkIn = p.ClkInFreq
		if p.ClkInDiv == ClkInDiv2 {
			der.effClkIn /= 2
		}
	case HMC7044:
		if err := validatePLLs(p, &der); err != nil {
			return der, err
		}
		der.effClkIn = p.PLL2.VCOFreq
	default:
		return der, fmt.Errorf("%w: family %d", ErrBadParams, f)
	}
	if der.effClkIn == 0 {
		return der, fmt.Errorf("%w: zero distribution frequency", ErrBadParams)
	}
	der.clkPeriodPs = 1e12 / float64(der.effClkIn)

	if err := validateSysref(p, &der); err != nil {
		return der, err
	}
	for ch := range p.Chans {
		if err := validateChan(ch, &p.Chans[ch], p, &der); err != nil {
			return der, err
		}
	}
	return der, nil
}

func validateClkIn(p *DevParams) error {
	max := Freq(clkInMaxFundHz)
	if p.ClkInDiv == ClkInDiv2 {
		max = Freq(clkInMaxDiv2Hz)
	}
	if p.ClkInFreq < Freq(clkInMinHz) || p.ClkInFreq > max {
		return fmt.Errorf("%w: CLKIN %d Hz outside [%d, %d] for divide mode %d",
			ErrBadParams, p.ClkInFreq, Freq(clkInMinHz), max, p.ClkInDiv)
	}
	return nil
}

func validatePLLs(p *DevParams, der *derived) error {
	// PLL1: references -> phase detector.
	var refFreqs []Freq
	for i, r := range p.Refs {
		if !r.Enabled {
			continue
		}
		if r.Freq == 0 {
			return fmt.Errorf("%w: reference %d enabled with zero frequency", ErrBadParams, i)
		}
		refFreqs = append(refFreqs, r.Freq)
	}
	if len(refFreqs) == 0 {
		return fmt.Errorf("%w: no enabled reference input", ErrBadParams)
	}
	if p.PLL1.RDiv == 0 {
		return fmt.Errorf("%w: PLL1 R divider zero", ErrBadParams)
	}
	if p.PLL1.LoopBWHz == 0 {
		return fmt.Errorf("%w: PLL1 loop bandwidth zero", ErrBadParams)
	}
	for i, r := range p.Refs {
		if !r.Enabled {
			continue
		}
		if r.Freq%Freq(p.PLL1.RDiv) != 0 {
			return fmt.Errorf("%w: reference %d (%d Hz) not divisible by PLL1 R=%d",
				ErrBadParams, i, r.Freq, p.PLL1.RDiv)
		}
		pd := r.Freq / Freq(p.PLL1.RDiv)
		if pd < Freq(pll1PDMinHz) || pd > Freq(pll1PDMaxHz) {
			return fmt.Errorf("%w: reference %d PLL1 phase detector %d Hz outside [%d, %d]",
				ErrBadParams, i, pd, Freq(pll1PDMinHz), Freq(pll1PDMaxHz))
		}
	}
	der.lcm = lcmAll(refFreqs)
	if der.lcm < Freq(lcmMinHz) || der.lcm > Freq(lcmMaxHz) {
		return fmt.Errorf("%w: reference LCM %d Hz outside legal [%d, %d]",
			ErrBadParams, der.lcm, Freq(lcmMinHz), Freq(lcmMaxHz))
	}
	if der.lcm < Freq(lcmRecMinHz) || der.lcm > Freq(lcmRecMaxHz) {
		logger.Info("reference LCM %d Hz outside recommended [%d, %d]",
			der.lcm, Freq(lcmRecMinHz), Freq(lcmRecMaxHz))
	}

	if p.OscInFreq == 0 {
		return fmt.Errorf("%w: OSCIN frequency zero", ErrBadParams)
	}
	// Phase detector of the active (highest priority) reference.
	active := refElection(p).Active()
	pd1 := p.Refs[active].Freq / Freq(p.PLL1.RDiv)
	if p.OscInFreq%pd1 != 0 {
		return fmt.Errorf("%w: OSCIN %d Hz not an integer multiple of PLL1 phase detector %d Hz",
			ErrBadParams, p.OscInFreq, pd1)
	}
	der.pll1.pdFreq = pd1
	der.pll1.nDiv = uint32(p.OscInFreq / pd1)
	if der.pll1.nDiv > 0xFFFF {
		return fmt.Errorf("%w: PLL1 N divider %d exceeds 16 bits", ErrBadParams, der.pll1.nDiv)
	}
	code, actual, err := nearestCPCode(p.PLL1.CPCurrentUA)
	if err != nil {
		return fmt.Errorf("PLL1: %w", err)
	}
	if actual != p.PLL1.CPCurrentUA {
		logger.Info("PLL1 charge pump %d uA quantized to %d uA", p.PLL1.CPCurrentUA, actual)
	}
	der.pll1.cpCode = code
	der.pll1.lockExp = lockDetectExp(der.lcm, p.PLL1.LoopBWHz)
	if der.pll1.lockExp > 31 {
		return fmt.Errorf("%w: PLL1 lock detect exponent %d exceeds 5 bits (loop bandwidth too narrow)",
			ErrBadParams, der.pll1.lockExp)
	}
	der.pll1.lockWait = lockWait(4<<der.pll1.lockExp, pd1, 10*time.Millisecond)

	// PLL2: OSCIN -> VCO.
	if p.PLL2.VCOFreq < Freq(vcoMinHz) || p.PLL2.VCOFreq > Freq(vcoMaxHz) {
		return fmt.Errorf("%w: VCO %d Hz outside [%d, %d]",
			ErrBadParams, p.PLL2.VCOFreq, Freq(vcoMinHz), Freq(vcoMaxHz))
	}
	if p.PLL2.RDiv == 0 || p.PLL2.RDiv > 0xFFF {
		return fmt.Errorf("%w: PLL2 R divider %d outside [1, 4095]", ErrBadParams, p.PLL2.RDiv)
	}
	ref2 := p.OscInFreq
	if p.PLL2.Doubler {
		ref2 *= 2
	}
	if ref2%Freq(p.PLL2.RDiv) != 0 {
		return fmt.Errorf("%w: PLL2 reference %d Hz not divisible by R=%d",
			ErrBadParams, ref2, p.PLL2.RDiv)
	}
	pd2 := ref2 / Freq(p.PLL2.RDiv)
	if pd2 < Freq(pll2PDMinHz) || pd2 > Freq(pll2PDMaxHz) {
		return fmt.Errorf("%w: PLL2 phase detector %d Hz outside [%d, %d]",
			ErrBadParams, pd2, Freq(pll2PDMinHz), Freq(pll2PDMaxHz))
	}
	if p.PLL2.VCOFreq%pd2 != 0 {
		return fmt.Errorf("%w: VCO %d Hz not an integer multiple of PLL2 phase detector %d Hz",
			ErrBadParams, p.PLL2.VCOFreq, pd2)
	}
	der.pll2.pdFreq = pd2
	der.pll2.nDiv = uint32(p.PLL2.VCOFreq / pd2)
	if der.pll2.nDiv > 0xFFFF {
		return fmt.Errorf("%w: PLL2 N divider %d exceeds 16 bits", ErrBadParams, der.pll2.nDiv)
	}
	code, actual, err = nearestCPCode(p.PLL2.CPCurrentUA)
	if err != nil {
		return fmt.Errorf("PLL2: %w", err)
	}
	if actual != p.PLL2.CPCurrentUA {
		logger.Info("PLL2 charge pump %d uA quantized to %d uA", p.PLL2.CPCurrentUA, actual)
	}
	der.pll2.cpCode = code
	der.pll2.lockWait = lockWait(pll2LockCycles, pd2, 5*time.Millisecond)

	if p.OscOut.Enabled {
		switch p.OscOut.Divider {
		case 1, 2, 4, 8:
		default:
			return fmt.Errorf("%w: OSCOUT divider %d not in {1,2,4,8}", ErrBadParams, p.OscOut.Divider)
		}
	}
	return nil
}

// lockWait converts a lock detect cycle count at the phase detector rate
// into a polling deadline, with 2x margin and a floor.
func lockWait(cycles Freq, pd Freq, min time.Duration) time.Duration {
	w := time.Duration(2 * float64(time.Second) * float64(cycles) / float64(pd))
	if w < min {
		return min
	}
	return w
}

func validateSysref(p *DevParams, der *derived) error {
	s := &p.Sysref
	if s.Freq == 0 {
		return fmt.Errorf("%w: SYSREF frequency zero", ErrBadParams)
	}
	if s.Freq > Freq(sysrefMaxHz) {
		return fmt.Errorf("%w: SYSREF %d Hz above %d Hz", ErrBadParams, s.Freq, Freq(sysrefMaxHz))
	}
	if der.effClkIn%s.Freq != 0 {
		return fmt.Errorf("%w: SYSREF %d Hz not a divisor of distribution clock %d Hz",
			ErrBadParams, s.Freq, der.effClkIn)
	}
	timer := der.effClkIn / s.Freq
	if timer > sysrefTimerMax {
		return fmt.Errorf("%w: SYSREF timer count %d exceeds 12 bits", ErrBadParams, timer)
	}
	der.sysrefTimer = uint16(timer)
	if s.Mode == SysrefPulsed {
		if _, ok := pulseCode(s.NPulses); !ok {
			return fmt.Errorf("%w: SYSREF burst length %d not in {1,2,4,8,16}", ErrBadParams, s.NPulses)
		}
	}
	return nil
}

func validateChan(ch int, cp *ChanParams, p *DevParams, der *derived) error {
	if cp.Mode == ChanUnused {
		return nil
	}
	if cp.Freq == 0 {
		return fmt.Errorf("%w: channel %d used with zero frequency", ErrBadParams, ch)
	}

	if cp.OutSel == OutFundamental {
		if cp.Freq != der.effClkIn {
			return fmt.Errorf("%w: channel %d fundamental output wants %d Hz, distribution clock is %d Hz",
				ErrBadParams, ch, cp.Freq, der.effClkIn)
		}
		der.chDiv[ch] = 1
	} else {
		if der.effClkIn%cp.Freq != 0 {
			return fmt.Errorf("%w: channel %d: %d Hz not an integer division of %d Hz",
				ErrBadParams, ch, cp.Freq, der.effClkIn)
		}
		div := uint32(der.effClkIn / cp.Freq)
		if div > chanDivMax {
			return fmt.Errorf("%w: channel %d divider %d exceeds %d", ErrBadParams, ch, div, chanDivMax)
		}
		// Odd dividers are only realizable as 1, 3 or 5.
		if div%2 == 1 && div != 1 && div != 3 && div != 5 {
			return fmt.Errorf("%w: channel %d odd divider %d not in {1,3,5}", ErrBadParams, ch, div)
		}
		der.chDiv[ch] = div
	}

	if cp.Mode == ChanSysref {
		if der.effClkIn%p.Sysref.Freq == 0 {
			chPer := der.effClkIn / cp.Freq
			srPer := der.effClkIn / p.Sysref.Freq
			if srPer%chPer != 0 {
				return fmt.Errorf("%w: channel %d frequency %d Hz not a multiple of SYSREF %d Hz",
					ErrBadParams, ch, cp.Freq, p.Sysref.Freq)
			}
		}
		if cp.DynDriverEn && der.chDiv[ch] < pulseGenDivMin {
			return fmt.Errorf("%w: channel %d pulse-generator divider %d must exceed 31",
				ErrBadParams, ch, der.chDiv[ch])
		}
	} else if cp.DynDriverEn {
		return fmt.Errorf("%w: channel %d dynamic driver on a clock channel", ErrBadParams, ch)
	}

	if cp.AnaDelayPs != 0 {
		if cp.Mode == ChanClock {
			// Analog delay path degrades clock phase noise.
			return fmt.Errorf("%w: channel %d analog delay on a clock channel", ErrBadParams, ch)
		}
		if _, err := quantizeDelay(fmt.Sprintf("channel %d analog delay", ch),
			cp.AnaDelayPs, anaDelayStepPs, anaDelayMaxStep); err != nil {
			return err
		}
	}
	if cp.DigDelayPs != 0 {
		if _, err := quantizeDelay(fmt.Sprintf("channel %d digital delay", ch),
			cp.DigDelayPs, der.clkPeriodPs/2, digDelayMaxStep); err != nil {
			return err
		}
	}
	if cp.SlipQuantumPs != 0 {
		steps := math.Round(cp.SlipQuantumPs / der.clkPeriodPs)
		if steps < 1 || math.Abs(cp.SlipQuantumPs-steps*der.clkPeriodPs) > delayTolPs {
			return fmt.Errorf("%w: channel %d slip quantum %.1f ps not a multiple of the clock period %.1f ps",
				ErrBadParams, ch, cp.SlipQuantumPs, der.clkPeriodPs)
		}
		if cp.SlipQuantumPs > der.clkPeriodPs {
			// Multislip count shares the 12-bit divider field width.
			if uint32(steps)+der.chDiv[ch]/2 > 0xFFF {
				return fmt.Errorf("%w: channel %d multislip count %d exceeds 12 bits",
					ErrBadParams, ch, uint32(steps)+der.chDiv[ch]/2)
			}
		}
	}
	return nil
}

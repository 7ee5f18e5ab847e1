package clkdst

// HMC7044 PLL block programming. Image-only: the values land on the
// chip with the batch commit.

import "github.com/shiwa/clkdst/internal/refselect"

func refElection(p *DevParams) *refselect.Election {
	cands := make([]refselect.Candidate, NumRefs)
	for i, r := range p.Refs {
		cands[i] = refselect.Candidate{Index: i, Priority: r.Priority, Enabled: r.Enabled}
	}
	return refselect.New(cands)
}

// applyRefInputs programs the reference buffers and the fallback
// priority register (two bits per input, 0 = first choice).
func (c *devCtl) applyRefInputs() {
	p := &c.params
	refBufRegs := [NumRefs]uint16{regClkInBuf, regRef1Buf, regRef2Buf, regRef3Buf}
	for i, r := range p.Refs {
		c.img.setBool(bufEnField(refBufRegs[i]), r.Enabled && r.Buf.Enabled)
		c.img.set(bufModeField(refBufRegs[i]), uint8(r.Buf.Mode))
	}
	var prio uint8
	el := refElection(p)
	for i := 0; i < NumRefs; i++ {
		rank := el.Rank(i)
		if rank < 0 {
			rank = 3 // disabled inputs go to the back of the line
		}
		prio |= uint8(rank&0x3) << (2 * i)
	}
	c.img.regs[regRefPrio] = prio
}

func (c *devCtl) applyPLL1() {
	p := &c.params
	c.img.regs[regPll1RDivL] = uint8(p.PLL1.RDiv)
	c.img.regs[regPll1RDivH] = uint8(p.PLL1.RDiv >> 8)
	c.img.regs[regPll1NDivL] = uint8(c.der.pll1.nDiv)
	c.img.regs[regPll1NDivH] = uint8(c.der.pll1.nDiv >> 8)
	c.img.set(fldPll1LockExp, c.der.pll1.lockExp)
	c.img.set(fldPll1CPCode, c.der.pll1.cpCode)
}

func (c *devCtl) applyPLL2() {
	p := &c.params
	c.img.regs[regPll2RDivL] = uint8(p.PLL2.RDiv)
	c.img.set(field{regPll2RDivH, 0, 4}, uint8(p.PLL2.RDiv>>8))
	c.img.regs[regPll2NDivL] = uint8(c.der.pll2.nDiv)
	c.img.regs[regPll2NDivH] = uint8(c.der.pll2.nDiv >> 8)
	c.img.set(fldPll2CPCode, c.der.pll2.cpCode)
	c.img.setBool(fldPll2Doubler, p.PLL2.Doubler)
}

func (c *devCtl) applyOsc() {
	p := &c.params
	c.img.setBool(bufEnField(regOscInBuf), p.OscInBuf.Enabled)
	c.img.set(bufModeField(regOscInBuf), uint8(p.OscInBuf.Mode))

	c.img.setBool(fldOscOutEn, p.OscOut.Enabled)
	if p.OscOut.Enabled {
		var code uint8
		switch p.OscOut.Divider {
		case 2:
			code = 1
		case 4:
			code = 2
		case 8:
			code = 3
		}
		c.img.set(fldOscOutDiv, code)
		c.img.set(fldOscOutDrv, uint8(p.OscOut.Driver))
	}
}

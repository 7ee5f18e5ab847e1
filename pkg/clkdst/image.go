package clkdst

import "fmt"

// regImage is the per-device register shadow. Plan programming mutates
// the image only; commit pushes the tracked registers to hardware in one
// ascending batch. The image is touched only inside the device critical
// section.
type regImage struct {
	regs  [numRegs]uint8
	valid bool
}

func (img *regImage) get(f field) uint8 {
	return (img.regs[f.reg] & f.mask()) >> f.shift
}

func (img *regImage) set(f field, v uint8) {
	r := &img.regs[f.reg]
	*r = (*r &^ f.mask()) | ((v << f.shift) & f.mask())
}

func (img *regImage) setBool(f field, v bool) {
	if v {
		img.set(f, 1)
	} else {
		img.set(f, 0)
	}
}

// loadDefaults resets the image to the assumed post-reset state plus the
// datasheet performance and reserved-register values. Every tracked
// register ends up with a known value; nothing is left to chance on
// commit.
func (img *regImage) loadDefaults() {
	img.regs = [numRegs]uint8{}
	for reg, v := range regDefault {
		img.regs[reg] = v
	}
	img.valid = false
}

// commit writes every tracked register to hardware in ascending order.
// The first failed write aborts; the image is then only partially
// committed and the caller must rerun the bring-up sequence.
func (img *regImage) commit(io IO, f Family) error {
	for _, reg := range trackedRegs(f) {
		if err := io.WriteReg(reg, img.regs[reg]); err != nil {
			return fmt.Errorf("commit reg 0x%04x: %w", reg, err)
		}
	}
	img.valid = true
	return nil
}

// readBack populates the image from hardware (warm attach to an already
// running device). The image becomes valid only after every tracked
// register has been read.
func (img *regImage) readBack(io IO, f Family) error {
	for _, reg := range trackedRegs(f) {
		v, err := io.ReadReg(reg)
		if err != nil {
			img.valid = false
			return fmt.Errorf("read back reg 0x%04x: %w", reg, err)
		}
		img.regs[reg] = v
	}
	img.valid = true
	return nil
}

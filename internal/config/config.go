// Package config loads the YAML frequency plan for the clkdst-bringup
// tool and converts it into driver parameters. The driver core itself
// never parses files; it only sees the converted DevParams.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/shiwa/clkdst/pkg/clkdst"
)

// Config is the plan file schema.
type Config struct {
	Family    string          `yaml:"family"` // hmc7043 | hmc7044
	Transport TransportConfig `yaml:"transport"`

	ClockIn ClockInConfig `yaml:"clock_in"`
	SyncIn  struct {
		Buffer BufferConfig `yaml:"buffer"`
	} `yaml:"sync_in"`

	// HMC7044 only.
	References []RefConfig  `yaml:"references"`
	PLL1       PLL1Config   `yaml:"pll1"`
	PLL2       PLL2Config   `yaml:"pll2"`
	OscIn      OscInConfig  `yaml:"osc_in"`
	OscOut     OscOutConfig `yaml:"osc_out"`

	Gpi      PinConfig    `yaml:"gpi"`
	Gpo      PinConfig    `yaml:"gpo"`
	Sdata    string       `yaml:"sdata"` // cmos | open-drain
	Sysref   SysrefConfig `yaml:"sysref"`
	Alarms   AlarmsConfig `yaml:"alarms"`
	Channels []ChanConfig `yaml:"channels"`
}

// TransportConfig selects how the tool reaches the chip.
type TransportConfig struct {
	Kind string `yaml:"kind"` // i2c | spi | serial
	Bus  string `yaml:"bus"`  // i2c bus name, "" = first available
	Addr uint16 `yaml:"addr"` // i2c device address
	Port string `yaml:"port"` // spi port name or serial device
	Baud int    `yaml:"baud"` // serial bridge baud rate
}

type ClockInConfig struct {
	Freq    uint64       `yaml:"freq"`
	Div2    bool         `yaml:"div2"`
	LowFreq bool         `yaml:"low_freq"`
	Buffer  BufferConfig `yaml:"buffer"`
}

type BufferConfig struct {
	Enabled bool     `yaml:"enabled"`
	Mode    []string `yaml:"mode"` // highz, ac, lvpecl, term100
}

type RefConfig struct {
	Enabled  bool         `yaml:"enabled"`
	Freq     uint64       `yaml:"freq"`
	Priority uint8        `yaml:"priority"`
	Buffer   BufferConfig `yaml:"buffer"`
}

type PLL1Config struct {
	R      uint16 `yaml:"r"`
	CPuA   uint32 `yaml:"cp_ua"`
	LoopBW uint64 `yaml:"loop_bw"`
}

type PLL2Config struct {
	VCO     uint64 `yaml:"vco"`
	R       uint16 `yaml:"r"`
	Doubler bool   `yaml:"doubler"`
	CPuA    uint32 `yaml:"cp_ua"`
	LoopBW  uint64 `yaml:"loop_bw"`
}

type OscInConfig struct {
	Freq   uint64       `yaml:"freq"`
	Buffer BufferConfig `yaml:"buffer"`
}

type OscOutConfig struct {
	Enabled bool   `yaml:"enabled"`
	Div     uint8  `yaml:"div"`
	Driver  string `yaml:"driver"`
}

type PinConfig struct {
	Enabled bool   `yaml:"enabled"`
	Func    string `yaml:"func"`
	Mode    string `yaml:"mode"` // gpo only: cmos | open-drain
}

type SysrefConfig struct {
	Freq    uint64 `yaml:"freq"`
	Mode    string `yaml:"mode"` // continuous | level | pulsed
	NPulses int    `yaml:"npulses"`
	Invert  bool   `yaml:"invert"`
	Retime  bool   `yaml:"retime"`
}

type AlarmsConfig struct {
	SyncRequest bool `yaml:"sync_request"`
	ClockPhase  bool `yaml:"clock_phase"`
	SysrefSync  bool `yaml:"sysref_sync"`
	PllLock     bool `yaml:"pll_lock"`
}

type ChanConfig struct {
	Index        int     `yaml:"index"`
	Mode         string  `yaml:"mode"` // clock | sysref
	Freq         uint64  `yaml:"freq"`
	Driver       string  `yaml:"driver"`   // cml | lvpecl | lvds | cmos
	CMLTerm      string  `yaml:"cml_term"` // none | 100 | 50
	Out          string  `yaml:"out"`      // divider | div-analog | div-neighbor | fundamental
	IdleZero     bool    `yaml:"idle_zero"`
	HighPerf     bool    `yaml:"high_perf"`
	DynDriver    bool    `yaml:"dyn_driver"`
	DigDelayPs   float64 `yaml:"dig_delay_ps"`
	AnaDelayPs   float64 `yaml:"ana_delay_ps"`
	SlipQuantum  float64 `yaml:"slip_quantum_ps"`
}

// Default returns the built-in plan defaults.
func Default() *Config {
	return &Config{
		Family: "hmc7043",
		Transport: TransportConfig{
			Kind: "i2c",
			Addr: 0x45,
			Baud: 115200,
		},
		Sysref: SysrefConfig{
			Mode:    "continuous",
			NPulses: 4,
		},
		Sdata: "cmos",
	}
}

// Load reads a plan from a YAML file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	var c Config
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	applyDefaults(&c)
	return &c, nil
}

func applyDefaults(c *Config) {
	d := Default()
	if c.Family == "" {
		c.Family = d.Family
	}
	if c.Transport.Kind == "" {
		c.Transport.Kind = d.Transport.Kind
	}
	if c.Transport.Addr == 0 {
		c.Transport.Addr = d.Transport.Addr
	}
	if c.Transport.Baud == 0 {
		c.Transport.Baud = d.Transport.Baud
	}
	if c.Sysref.Mode == "" {
		c.Sysref.Mode = d.Sysref.Mode
	}
	if c.Sysref.NPulses == 0 {
		c.Sysref.NPulses = d.Sysref.NPulses
	}
	if c.Sdata == "" {
		c.Sdata = d.Sdata
	}
}

// FamilyID converts the family name into the driver constant.
func (c *Config) FamilyID() (clkdst.Family, error) {
	switch c.Family {
	case "hmc7043":
		return clkdst.HMC7043, nil
	case "hmc7044":
		return clkdst.HMC7044, nil
	}
	return 0, fmt.Errorf("unknown family %q", c.Family)
}

// Params converts the plan into driver parameters.
func (c *Config) Params() (*clkdst.DevParams, error) {
	p := &clkdst.DevParams{}

	p.ClkInFreq = clkdst.Freq(c.ClockIn.Freq)
	if c.ClockIn.Div2 {
		p.ClkInDiv = clkdst.ClkInDiv2
	}
	p.LowFreqClkIn = c.ClockIn.LowFreq
	var err error
	if p.ClkInBuf, err = bufParams(c.ClockIn.Buffer); err != nil {
		return nil, fmt.Errorf("clock_in: %w", err)
	}
	if p.SyncInBuf, err = bufParams(c.SyncIn.Buffer); err != nil {
		return nil, fmt.Errorf("sync_in: %w", err)
	}

	if len(c.References) > clkdst.NumRefs {
		return nil, fmt.Errorf("%d references, chip has %d inputs", len(c.References), clkdst.NumRefs)
	}
	for i, r := range c.References {
		p.Refs[i].Enabled = r.Enabled
		p.Refs[i].Freq = clkdst.Freq(r.Freq)
		p.Refs[i].Priority = r.Priority
		if p.Refs[i].Buf, err = bufParams(r.Buffer); err != nil {
			return nil, fmt.Errorf("reference %d: %w", i, err)
		}
	}
	p.PLL1 = clkdst.PLL1Params{
		RDiv:        c.PLL1.R,
		CPCurrentUA: c.PLL1.CPuA,
		LoopBWHz:    clkdst.Freq(c.PLL1.LoopBW),
	}
	p.PLL2 = clkdst.PLL2Params{
		VCOFreq:     clkdst.Freq(c.PLL2.VCO),
		RDiv:        c.PLL2.R,
		Doubler:     c.PLL2.Doubler,
		CPCurrentUA: c.PLL2.CPuA,
		LoopBWHz:    clkdst.Freq(c.PLL2.LoopBW),
	}
	p.OscInFreq = clkdst.Freq(c.OscIn.Freq)
	if p.OscInBuf, err = bufParams(c.OscIn.Buffer); err != nil {
		return nil, fmt.Errorf("osc_in: %w", err)
	}
	if c.OscOut.Enabled {
		drv, err := drvMode(c.OscOut.Driver)
		if err != nil {
			return nil, fmt.Errorf("osc_out: %w", err)
		}
		p.OscOut = clkdst.OscOutParams{Enabled: true, Divider: c.OscOut.Div, Driver: drv}
	}

	if c.Gpi.Enabled {
		fn, err := gpiFunc(c.Gpi.Func)
		if err != nil {
			return nil, err
		}
		p.GpiEnabled, p.GpiFunc = true, fn
	}
	if c.Gpo.Enabled {
		fn, err := gpoFunc(c.Gpo.Func)
		if err != nil {
			return nil, err
		}
		mode, err := pinMode(c.Gpo.Mode)
		if err != nil {
			return nil, fmt.Errorf("gpo: %w", err)
		}
		p.GpoEnabled, p.GpoFunc, p.GpoMode = true, fn, mode
	}
	if p.SdataMode, err = pinMode(c.Sdata); err != nil {
		return nil, fmt.Errorf("sdata: %w", err)
	}

	p.Sysref.Freq = clkdst.Freq(c.Sysref.Freq)
	switch c.Sysref.Mode {
	case "continuous":
		p.Sysref.Mode = clkdst.SysrefContinuous
	case "level":
		p.Sysref.Mode = clkdst.SysrefLevelCtl
	case "pulsed":
		p.Sysref.Mode = clkdst.SysrefPulsed
	default:
		return nil, fmt.Errorf("unknown sysref mode %q", c.Sysref.Mode)
	}
	p.Sysref.NPulses = clkdst.SysrefNPulses(c.Sysref.NPulses)
	p.Sysref.InvertedSync = c.Sysref.Invert
	p.Sysref.SyncRetime = c.Sysref.Retime

	p.Alarms = clkdst.AlarmMask{
		SyncReq:    c.Alarms.SyncRequest,
		ClockPhase: c.Alarms.ClockPhase,
		SysrefSync: c.Alarms.SysrefSync,
		PLLLock:    c.Alarms.PllLock,
	}

	for _, ch := range c.Channels {
		if ch.Index < 0 || ch.Index >= clkdst.NumChans {
			return nil, fmt.Errorf("channel index %d out of range", ch.Index)
		}
		cp := &p.Chans[ch.Index]
		if cp.Mode != clkdst.ChanUnused {
			return nil, fmt.Errorf("channel %d configured twice", ch.Index)
		}
		switch ch.Mode {
		case "clock":
			cp.Mode = clkdst.ChanClock
		case "sysref":
			cp.Mode = clkdst.ChanSysref
		default:
			return nil, fmt.Errorf("channel %d: unknown mode %q", ch.Index, ch.Mode)
		}
		cp.Freq = clkdst.Freq(ch.Freq)
		if cp.Driver, err = drvMode(ch.Driver); err != nil {
			return nil, fmt.Errorf("channel %d: %w", ch.Index, err)
		}
		if cp.Driver == clkdst.DrvCML {
			if cp.CMLTerm, err = cmlTerm(ch.CMLTerm); err != nil {
				return nil, fmt.Errorf("channel %d: %w", ch.Index, err)
			}
		}
		if cp.OutSel, err = outSel(ch.Out); err != nil {
			return nil, fmt.Errorf("channel %d: %w", ch.Index, err)
		}
		cp.IdleAtZero = ch.IdleZero
		cp.HighPerfMode = ch.HighPerf
		cp.DynDriverEn = ch.DynDriver
		cp.DigDelayPs = ch.DigDelayPs
		cp.AnaDelayPs = ch.AnaDelayPs
		cp.SlipQuantumPs = ch.SlipQuantum
	}
	return p, nil
}

func bufParams(b BufferConfig) (clkdst.InputBuf, error) {
	out := clkdst.InputBuf{Enabled: b.Enabled}
	for _, m := range b.Mode {
		switch m {
		case "highz":
			out.Mode |= clkdst.BufHighZ
		case "ac":
			out.Mode |= clkdst.BufAC
		case "lvpecl":
			out.Mode |= clkdst.BufLVPECL
		case "term100":
			out.Mode |= clkdst.BufTerm100R
		default:
			return out, fmt.Errorf("unknown buffer mode %q", m)
		}
	}
	return out, nil
}

func drvMode(s string) (clkdst.DrvMode, error) {
	switch s {
	case "cml":
		return clkdst.DrvCML, nil
	case "lvpecl":
		return clkdst.DrvLVPECL, nil
	case "lvds":
		return clkdst.DrvLVDS, nil
	case "cmos":
		return clkdst.DrvCMOS, nil
	}
	return 0, fmt.Errorf("unknown driver %q", s)
}

func cmlTerm(s string) (clkdst.CMLTerm, error) {
	switch s {
	case "", "none":
		return clkdst.CMLTermNone, nil
	case "100":
		return clkdst.CMLTerm100R, nil
	case "50":
		return clkdst.CMLTerm50R, nil
	}
	return 0, fmt.Errorf("unknown cml termination %q", s)
}

func outSel(s string) (clkdst.OutSel, error) {
	switch s {
	case "", "divider":
		return clkdst.OutDivider, nil
	case "div-analog":
		return clkdst.OutDivAnalog, nil
	case "div-neighbor":
		return clkdst.OutDivNeighbor, nil
	case "fundamental":
		return clkdst.OutFundamental, nil
	}
	return 0, fmt.Errorf("unknown output mux %q", s)
}

func pinMode(s string) (clkdst.OutPinMode, error) {
	switch s {
	case "", "cmos":
		return clkdst.OutCMOS, nil
	case "open-drain":
		return clkdst.OutOpenDrain, nil
	}
	return 0, fmt.Errorf("unknown pin mode %q", s)
}

func gpiFunc(s string) (clkdst.GpiFunc, error) {
	switch s {
	case "sleep":
		return clkdst.GpiSleep, nil
	case "mute":
		return clkdst.GpiMute, nil
	case "pulse-gen":
		return clkdst.GpiPulseGen, nil
	case "reseed":
		return clkdst.GpiReseed, nil
	case "restart":
		return clkdst.GpiRestart, nil
	case "slip":
		return clkdst.GpiSlip, nil
	}
	return 0, fmt.Errorf("unknown gpi function %q", s)
}

func gpoFunc(s string) (clkdst.GpoFunc, error) {
	switch s {
	case "", "alarm":
		return clkdst.GpoAlarm, nil
	case "sdata":
		return clkdst.GpoSdata, nil
	case "clock-phase":
		return clkdst.GpoClkOutPhase, nil
	case "sysref-sync":
		return clkdst.GpoSysrefSync, nil
	case "sync-request":
		return clkdst.GpoSyncReq, nil
	case "pll-lock":
		return clkdst.GpoPllLock, nil
	case "pulse-gen-request":
		return clkdst.GpoPulseGenReq, nil
	}
	return 0, fmt.Errorf("unknown gpo function %q", s)
}

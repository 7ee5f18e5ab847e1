package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/shiwa/clkdst/pkg/clkdst"
)

const planYAML = `
family: hmc7044
transport:
  kind: serial
  port: /dev/ttyUSB0
clock_in:
  freq: 122880000
sync_in:
  buffer: {enabled: true, mode: [ac]}
references:
  - {enabled: true, freq: 30720000, priority: 1, buffer: {enabled: true, mode: [ac, term100]}}
  - {enabled: false}
  - {enabled: true, freq: 30720000, priority: 0, buffer: {enabled: true, mode: [ac]}}
pll1: {r: 1, cp_ua: 1000, loop_bw: 50}
pll2: {vco: 2949120000, r: 1, doubler: true, cp_ua: 1920, loop_bw: 300000}
osc_in:
  freq: 122880000
  buffer: {enabled: true, mode: [ac]}
gpi: {enabled: true, func: slip}
gpo: {enabled: true, func: alarm, mode: open-drain}
sysref: {freq: 960000, mode: pulsed, npulses: 4, retime: true}
alarms: {sync_request: true, clock_phase: true, sysref_sync: true, pll_lock: true}
channels:
  - {index: 0, mode: clock, freq: 245760000, driver: cml, cml_term: "100", idle_zero: true, high_perf: true}
  - {index: 12, mode: sysref, freq: 960000, driver: lvds, dyn_driver: true, ana_delay_ps: 100}
`

func writePlan(t *testing.T, text string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "plan.yml")
	if err := os.WriteFile(path, []byte(text), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadAndConvert(t *testing.T) {
	cfg, err := Load(writePlan(t, planYAML))
	if err != nil {
		t.Fatal(err)
	}
	family, err := cfg.FamilyID()
	if err != nil {
		t.Fatal(err)
	}
	if family != clkdst.HMC7044 {
		t.Errorf("family = %v, want HMC7044", family)
	}
	if cfg.Transport.Kind != "serial" || cfg.Transport.Baud != 115200 {
		t.Errorf("transport defaults not applied: %+v", cfg.Transport)
	}

	p, err := cfg.Params()
	if err != nil {
		t.Fatal(err)
	}
	if !p.Refs[0].Enabled || p.Refs[0].Priority != 1 || p.Refs[1].Enabled || !p.Refs[2].Enabled {
		t.Errorf("references wrong: %+v", p.Refs)
	}
	if p.Refs[0].Buf.Mode != clkdst.BufAC|clkdst.BufTerm100R {
		t.Errorf("ref 0 buffer mode = %v", p.Refs[0].Buf.Mode)
	}
	if p.PLL2.VCOFreq != 2949120000 || !p.PLL2.Doubler {
		t.Errorf("pll2 wrong: %+v", p.PLL2)
	}
	if p.GpiFunc != clkdst.GpiSlip || p.GpoMode != clkdst.OutOpenDrain {
		t.Errorf("pin config wrong: gpi %v gpo mode %v", p.GpiFunc, p.GpoMode)
	}
	if p.Sysref.Mode != clkdst.SysrefPulsed || p.Sysref.NPulses != clkdst.SysrefPulses4 {
		t.Errorf("sysref wrong: %+v", p.Sysref)
	}
	if p.Chans[0].Mode != clkdst.ChanClock || p.Chans[0].CMLTerm != clkdst.CMLTerm100R {
		t.Errorf("channel 0 wrong: %+v", p.Chans[0])
	}
	if p.Chans[12].Mode != clkdst.ChanSysref || !p.Chans[12].DynDriverEn || p.Chans[12].AnaDelayPs != 100 {
		t.Errorf("channel 12 wrong: %+v", p.Chans[12])
	}
	if p.Chans[1].Mode != clkdst.ChanUnused {
		t.Error("unlisted channel not left unused")
	}
}

func TestConvertErrors(t *testing.T) {
	cfg, err := Load(writePlan(t, planYAML))
	if err != nil {
		t.Fatal(err)
	}

	bad := *cfg
	bad.Family = "hmc9999"
	if _, err := bad.FamilyID(); err == nil {
		t.Error("unknown family accepted")
	}

	bad = *cfg
	bad.Channels = append([]ChanConfig{}, cfg.Channels...)
	bad.Channels[0].Driver = "rs485"
	if _, err := bad.Params(); err == nil {
		t.Error("unknown driver accepted")
	}

	bad = *cfg
	bad.Channels = append([]ChanConfig{}, cfg.Channels...)
	bad.Channels[0].Index = 99
	if _, err := bad.Params(); err == nil {
		t.Error("out-of-range channel index accepted")
	}

	bad = *cfg
	bad.Channels = append([]ChanConfig{}, cfg.Channels...)
	bad.Channels[1].Index = 0 // collides with channel 0
	if _, err := bad.Params(); err == nil {
		t.Error("duplicate channel index accepted")
	}

	bad = *cfg
	bad.Sysref.Mode = "sometimes"
	if _, err := bad.Params(); err == nil {
		t.Error("unknown sysref mode accepted")
	}
}

func TestDefaults(t *testing.T) {
	cfg, err := Load(writePlan(t, "family: hmc7043\nclock_in: {freq: 100000000}\n"))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Transport.Kind != "i2c" || cfg.Transport.Addr != 0x45 {
		t.Errorf("transport defaults: %+v", cfg.Transport)
	}
	if cfg.Sysref.Mode != "continuous" || cfg.Sdata != "cmos" {
		t.Errorf("sysref/sdata defaults: %q %q", cfg.Sysref.Mode, cfg.Sdata)
	}
}

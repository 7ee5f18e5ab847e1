// clkdst-bringup configures an HMC7043/HMC7044 clock distribution chip
// from a YAML frequency plan and reports its status.
//
// Usage:
//
//	clkdst-bringup -config plan.yml            — cold bring-up
//	clkdst-bringup -config plan.yml -warm      — attach to a running chip
//	clkdst-bringup -config plan.yml -pulse 4   — fire a SYSREF burst
//	clkdst-bringup -config plan.yml -monitor 1s — poll alarms until ^C
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/shiwa/clkdst/internal/config"
	"github.com/shiwa/clkdst/internal/logger"
	"github.com/shiwa/clkdst/pkg/clkdst"
	"github.com/shiwa/clkdst/pkg/transport/i2cbus"
	"github.com/shiwa/clkdst/pkg/transport/serialbridge"
	"github.com/shiwa/clkdst/pkg/transport/spibus"
)

func main() {
	configPath := flag.String("config", "clkdst.yml", "path to the YAML frequency plan")
	transport := flag.String("transport", "", "override transport kind: i2c, spi or serial")
	warm := flag.Bool("warm", false, "attach to an already configured chip without reprogramming")
	pulse := flag.Int("pulse", 0, "fire a SYSREF burst of N pulses after bring-up (pulsed mode only)")
	monitor := flag.Duration("monitor", 0, "poll alarms at this interval until interrupted")
	quiet := flag.Bool("quiet", false, "less output")
	flag.Parse()

	logger.Quiet = *quiet

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if *transport != "" {
		cfg.Transport.Kind = *transport
	}
	family, err := cfg.FamilyID()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	params, err := cfg.Params()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	bus, closer, err := openTransport(cfg)
	if err != nil {
		log.Fatalf("transport: %v", err)
	}
	defer closer.Close()

	const dev = clkdst.Dev(0)
	d := clkdst.New()
	if err := d.InitInterface(1 << dev); err != nil {
		log.Fatalf("interface: %v", err)
	}
	if err := d.InitDevice(dev, bus, family, params, *warm); err != nil {
		log.Fatalf("bring-up: %v", err)
	}

	if *pulse > 0 {
		if err := d.SysrefPulse(dev, sysrefMask(params), clkdst.SysrefNPulses(*pulse)); err != nil {
			log.Fatalf("sysref pulse: %v", err)
		}
		logger.Info("sysref burst of %d pulses fired", *pulse)
	}

	printStatus(d, dev, family)

	if *monitor > 0 {
		runMonitor(d, dev, family, *monitor)
	}
}

func openTransport(cfg *config.Config) (clkdst.IO, io.Closer, error) {
	t := cfg.Transport
	switch t.Kind {
	case "i2c":
		b, err := i2cbus.Open(t.Bus, t.Addr)
		return b, b, err
	case "spi":
		p, err := spibus.Open(t.Port, 0)
		return p, p, err
	case "serial":
		b, err := serialbridge.Open(t.Port, t.Baud)
		return b, b, err
	}
	return nil, nil, fmt.Errorf("unknown transport kind %q", t.Kind)
}

// sysrefMask selects every SYSREF channel of the plan.
func sysrefMask(p *clkdst.DevParams) uint16 {
	var mask uint16
	for ch := range p.Chans {
		if p.Chans[ch].Mode == clkdst.ChanSysref {
			mask |= 1 << ch
		}
	}
	return mask
}

func printStatus(d *clkdst.Driver, dev clkdst.Dev, family clkdst.Family) {
	a, err := d.Alarms(dev)
	if err != nil {
		logger.Error("alarms: %v", err)
		return
	}
	fmt.Printf("sync request: %v  clock phase: %v  sysref sync: %v\n",
		a.SyncReq, a.ClockPhase, a.SysrefSync)
	if family == clkdst.HMC7044 {
		fmt.Printf("pll1 locked: %v  pll2 locked: %v  holdover: %v  los: %v\n",
			a.PLL1Locked, a.PLL2Locked, a.Holdover, a.RefLOS)
	}
}

// runMonitor polls the alarm signal until SIGINT/SIGTERM.
func runMonitor(d *clkdst.Driver, dev clkdst.Dev, family clkdst.Family, interval time.Duration) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("signal %v, stopping", sig)
		cancel()
	}()

	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			alarm, err := d.Alarm(dev)
			if err != nil {
				logger.Error("alarm: %v", err)
				continue
			}
			if alarm {
				logger.Error("alarm signal active")
				printStatus(d, dev, family)
				if err := d.ClearAlarms(dev); err != nil {
					logger.Error("clear alarms: %v", err)
				}
			}
		}
	}
}

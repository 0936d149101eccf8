// Package agent runs one switch: its data plane, its flow-rule endpoint and
// periodic load reports to the controller.
package agent

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"sync/atomic"
	"time"

	log "github.com/sirupsen/logrus"

	"sdnctl/internal/addrutil"
	"sdnctl/internal/config"
	"sdnctl/internal/dataplane"
	"sdnctl/internal/fwd"
	"sdnctl/internal/model"
	"sdnctl/internal/telemetry"
)

// Agent couples a forwarding engine with the flow rules installed on it.
type Agent struct {
	id      string
	sw      *fwd.Switch
	sender  fwd.Sender
	rules   *Rules
	packets atomic.Uint64
	log     *log.Entry
}

// New creates an agent for switch id sending through sender.
func New(id string, sender fwd.Sender) *Agent {
	entry := log.WithField("switch", id)
	return &Agent{
		id:     id,
		sw:     fwd.NewSwitch(id, sender, fwd.WithLogger(entry)),
		sender: sender,
		rules:  NewRules(),
		log:    entry,
	}
}

// ID returns the switch id.
func (a *Agent) ID() string { return a.id }

// Switch returns the forwarding engine.
func (a *Agent) Switch() *fwd.Switch { return a.sw }

// Rules returns the installed flow rules.
func (a *Agent) Rules() *Rules { return a.rules }

// HandlePacket forwards p. A matching flow rule with an output port sends
// the packet to that port; otherwise the learning switch decides.
func (a *Agent) HandlePacket(ctx context.Context, p model.Packet) (fwd.Decision, error) {
	if err := p.Validate(); err != nil {
		return fwd.Decision{}, err
	}
	a.packets.Add(1)

	port, ok := a.rules.Match(p.Src(), p.Dst())
	if !ok {
		return a.sw.Process(ctx, p)
	}

	out := fwd.Output(strconv.Itoa(port))
	d := fwd.Decision{Mode: fwd.Unicast, Outputs: []fwd.Output{out}}
	d.Learned = a.sw.Table().Learn(p.Src(), fwd.OutputFor(p.Dst()))
	if err := a.sender.Send(ctx, out, p); err != nil {
		a.log.WithFields(log.Fields{"src": p.Src(), "output": out}).WithError(err).Warn("flow rule forward failed")
		var terr *model.TransportError
		if errors.As(err, &terr) {
			return d, err
		}
		return d, &model.TransportError{Target: string(out), Err: err}
	}
	return d, nil
}

// Report drains the packet counter into a load report. Load is the packet
// rate over interval as a fraction of capacity, capped at 1.
func (a *Agent) Report(interval time.Duration, capacityPPS int) telemetry.Report {
	n := a.packets.Swap(0)
	var load float64
	if interval > 0 && capacityPPS > 0 {
		load = float64(n) / interval.Seconds() / float64(capacityPPS)
	}
	if load > 1 {
		load = 1
	}
	return telemetry.Report{SwitchID: a.id, Load: load, HasLoad: true, Packets: int(n)}
}

// Run starts the switch described by cfg and blocks until ctx is done or
// the flow-rule endpoint fails.
func Run(ctx context.Context, cfg config.SwitchConfig, topo config.Topology) error {
	telemetryAddr := cfg.TelemetryAddr
	if telemetryAddr == "" {
		ctrl, err := addrutil.ParseController(cfg.Controller)
		if err != nil {
			return err
		}
		telemetryAddr = ctrl.Telemetry
	}
	if cfg.DataListen == "" {
		return fmt.Errorf("switch %s: data_listen is required", cfg.ID)
	}

	port, err := dataplane.Listen(cfg.DataListen)
	if err != nil {
		return err
	}
	defer port.Close()

	sender := dataplane.Sender{
		Port:     port,
		Resolver: dataplane.Resolver{Ports: cfg.Ports, Devices: topo.DataAddrs()},
	}
	a := New(cfg.ID, sender)
	port.Start(func(from *net.UDPAddr, p model.Packet) {
		if _, err := a.HandlePacket(ctx, p); err != nil {
			a.log.WithField("from", from.String()).WithError(err).Debug("packet not fully delivered")
		}
	})
	a.log.Infof("data plane on %s", port.LocalAddr())

	var public, nat string
	if len(cfg.STUNServers) > 0 {
		public, nat, err = port.Discover(ctx, cfg.STUNServers, 5*time.Second)
		if err != nil {
			a.log.WithError(err).Warn("STUN discovery failed")
		} else {
			a.log.WithFields(log.Fields{"public": public, "nat": nat}).Info("public mapping discovered")
		}
	}

	server := &http.Server{
		Addr:              cfg.APIListen,
		Handler:           a.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	serveErr := make(chan error, 1)
	go func() {
		a.log.Infof("flow-rule endpoint on %s", cfg.APIListen)
		serveErr <- server.ListenAndServe()
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	conn, err := net.Dial("udp", telemetryAddr)
	if err != nil {
		return err
	}
	defer conn.Close()

	interval := time.Duration(cfg.TelemetryIntervalSec) * time.Second
	if interval <= 0 {
		interval = config.DefaultTelemetryIntervalSec * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-serveErr:
			if errors.Is(err, http.ErrServerClosed) {
				return nil
			}
			return err
		case <-ticker.C:
			r := a.Report(interval, cfg.CapacityPPS)
			r.Public, r.NAT = public, nat
			if _, err := conn.Write([]byte(telemetry.Encode(r))); err != nil {
				a.log.WithError(err).Warn("telemetry send failed")
				break
			}
			a.log.WithFields(log.Fields{"load": r.Load, "packets": r.Packets}).Debug("telemetry sent")
		}
	}
}

// Package fwd implements the learning switch forwarding engine.
package fwd

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	log "github.com/sirupsen/logrus"

	"sdnctl/internal/model"
)

var (
	packetsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sdnctl_switch_packets_total",
		Help: "Packets processed by the forwarding engine, by decision.",
	}, []string{"switch", "mode"})
	sendErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sdnctl_switch_send_errors_total",
		Help: "Failed output sends.",
	}, []string{"switch"})
)

// Mode is the forwarding decision for a packet.
type Mode int

const (
	Unicast Mode = iota + 1
	Broadcast
)

func (m Mode) String() string {
	switch m {
	case Unicast:
		return "unicast"
	case Broadcast:
		return "broadcast"
	default:
		return "none"
	}
}

// Decision describes what Process did with a packet.
type Decision struct {
	Mode    Mode
	Outputs []Output
	// Learned is set when the packet's source was added to the table.
	Learned bool
}

// Sender delivers a packet to one output.
type Sender interface {
	Send(ctx context.Context, out Output, p model.Packet) error
}

// SenderFunc adapts a function to Sender.
type SenderFunc func(ctx context.Context, out Output, p model.Packet) error

func (f SenderFunc) Send(ctx context.Context, out Output, p model.Packet) error {
	return f(ctx, out, p)
}

// Switch owns a forwarding table and decides per packet whether to forward
// or broadcast.
type Switch struct {
	id     string
	table  *Table
	sender Sender
	log    *log.Entry
}

// Option configures a Switch.
type Option func(s *Switch)

// WithTable shares an existing table with the switch.
func WithTable(t *Table) Option {
	return func(s *Switch) {
		if t != nil {
			s.table = t
		}
	}
}

// WithLogger overrides the default logger.
func WithLogger(l *log.Entry) Option {
	return func(s *Switch) {
		if l != nil {
			s.log = l
		}
	}
}

// NewSwitch creates a switch that sends through sender.
func NewSwitch(id string, sender Sender, opts ...Option) *Switch {
	s := &Switch{
		id:     id,
		table:  NewTable(),
		sender: sender,
		log:    log.WithField("switch", id),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// ID returns the switch identifier.
func (s *Switch) ID() string { return s.id }

// Table returns the switch's forwarding table.
func (s *Switch) Table() *Table { return s.table }

// Process learns from p and forwards it: one unicast send when the
// destination is known, otherwise one send per distinct known output except
// the one equal to the packet's source. Broadcast sends are best effort; a
// failure is logged and the remaining outputs are still tried.
func (s *Switch) Process(ctx context.Context, p model.Packet) (Decision, error) {
	if err := p.Validate(); err != nil {
		return Decision{}, err
	}

	d := s.table.decide(p)
	entry := s.log.WithFields(log.Fields{"src": p.Src(), "dst": p.Dst()})
	if d.Learned {
		entry.Debugf("learned %s => %s", p.Src(), OutputFor(p.Dst()))
	}
	packetsTotal.WithLabelValues(s.id, d.Mode.String()).Inc()

	if d.Mode == Unicast {
		out := d.Outputs[0]
		if err := s.sender.Send(ctx, out, p); err != nil {
			sendErrorsTotal.WithLabelValues(s.id).Inc()
			entry.WithField("output", out).WithError(err).Warn("forward failed")
			var terr *model.TransportError
			if errors.As(err, &terr) {
				return d, err
			}
			return d, &model.TransportError{Target: string(out), Err: err}
		}
		entry.WithField("output", out).Debug("forwarded")
		return d, nil
	}

	var failed []string
	for _, out := range d.Outputs {
		if err := s.sender.Send(ctx, out, p); err != nil {
			sendErrorsTotal.WithLabelValues(s.id).Inc()
			entry.WithField("output", out).WithError(err).Warn("broadcast send failed")
			failed = append(failed, string(out))
		}
	}
	entry.WithField("outputs", len(d.Outputs)).Debug("broadcast")
	if len(failed) > 0 {
		return d, &model.TransportError{
			Target: strings.Join(failed, ","),
			Err:    fmt.Errorf("%d of %d broadcast sends failed", len(failed), len(d.Outputs)),
		}
	}
	return d, nil
}

// Entry is one row of a table dump.
type Entry struct {
	MAC    model.MAC
	Output Output
}

// Entries returns the learned table sorted by MAC.
func (s *Switch) Entries() []Entry {
	snap := s.table.Snapshot()
	entries := make([]Entry, 0, len(snap))
	for mac, out := range snap {
		entries = append(entries, Entry{MAC: mac, Output: out})
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].MAC.String() < entries[j].MAC.String()
	})
	return entries
}

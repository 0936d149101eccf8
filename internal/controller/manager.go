// Package controller implements the flow-rule lifecycle and the energy
// optimization loop, plus the controller process that serves them.
package controller

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/xid"
	log "github.com/sirupsen/logrus"

	"sdnctl/internal/api"
	"sdnctl/internal/config"
	"sdnctl/internal/energy"
	"sdnctl/internal/model"
	"sdnctl/internal/store"
)

var (
	ruleRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sdnctl_flow_rule_requests_total",
		Help: "Flow-rule install and update requests issued by the controller.",
	}, []string{"kind", "result"})
	optimizeUpdatesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sdnctl_optimize_updates_total",
		Help: "Paths replaced by the energy optimization loop.",
	})
)

// EndpointFunc returns the flow-rule base URL serving a target switch.
type EndpointFunc func(target string) string

// StaticEndpoint sends every request to one base URL.
func StaticEndpoint(baseURL string) EndpointFunc {
	return func(string) string { return baseURL }
}

// TopologyEndpoints uses each switch's api from the topology and falls back
// to def.
func TopologyEndpoints(topo config.Topology, def string) EndpointFunc {
	return func(target string) string { return topo.APIFor(target, def) }
}

// RuleOption customises a flow rule.
type RuleOption func(r *ruleOptions)

type ruleOptions struct {
	dstMAC  model.MAC
	port    int
	path    []string
	traffic model.TrafficType
}

// WithDestinationMAC adds an eth_dst match.
func WithDestinationMAC(mac model.MAC) RuleOption {
	return func(r *ruleOptions) { r.dstMAC = mac }
}

// WithOutputPort adds an output action.
func WithOutputPort(port int) RuleOption {
	return func(r *ruleOptions) { r.port = port }
}

// WithPath sets the intermediate switches used for scoring. The default
// path is the target switch alone.
func WithPath(switchIDs ...string) RuleOption {
	return func(r *ruleOptions) { r.path = append([]string(nil), switchIDs...) }
}

// WithTrafficType sets the traffic class used for priority.
func WithTrafficType(t model.TrafficType) RuleOption {
	return func(r *ruleOptions) { r.traffic = t }
}

// ManagerOption configures a Manager.
type ManagerOption func(m *Manager)

// WithRegistryPath persists the registry after every change.
func WithRegistryPath(path string) ManagerOption {
	return func(m *Manager) { m.regPath = path }
}

// WithManagerLogger overrides the default logger.
func WithManagerLogger(e *log.Entry) ManagerOption {
	return func(m *Manager) {
		if e != nil {
			m.log = e
		}
	}
}

// OptimizeReport summarises one optimization pass.
// Superseded counts updates that reached the switch after the path had been
// redefined; their fresh score is discarded.
type OptimizeReport struct {
	Scanned    int
	Updated    int
	Superseded int
	Failed     int
}

// Manager issues flow-rule requests and keeps the registry of active paths.
type Manager struct {
	reg       *store.Registry
	loads     energy.LoadSource
	endpoints EndpointFunc
	regPath   string
	log       *log.Entry

	mu      sync.Mutex
	devices map[string]model.Device
	clients map[string]*api.Client

	saveMu sync.Mutex
}

// NewManager builds a manager over reg. devices is the directory used to
// resolve registry ids back to devices and may be nil.
func NewManager(reg *store.Registry, loads energy.LoadSource, devices map[string]model.Device, endpoints EndpointFunc, opts ...ManagerOption) *Manager {
	if reg == nil {
		reg = store.NewRegistry()
	}
	m := &Manager{
		reg:       reg,
		loads:     loads,
		endpoints: endpoints,
		log:       log.WithField("component", "flow-manager"),
		devices:   make(map[string]model.Device, len(devices)),
		clients:   make(map[string]*api.Client),
	}
	for id, d := range devices {
		m.devices[id] = d
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Registry exposes the active path registry.
func (m *Manager) Registry() *store.Registry { return m.reg }

// Device looks up a device by id.
func (m *Manager) Device(id string) (model.Device, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.devices[id]
	return d, ok
}

// DefineFlowRule installs a rule for traffic from src on src's egress switch
// and records the path for (src, dst). On failure the registry is left
// untouched.
func (m *Manager) DefineFlowRule(ctx context.Context, src, dst model.Device, opts ...RuleOption) (api.Ack, error) {
	target, err := egress(src)
	if err != nil {
		return api.Ack{}, err
	}
	if isNil(dst) {
		return api.Ack{}, fmt.Errorf("destination device is required")
	}

	var ro ruleOptions
	for _, opt := range opts {
		opt(&ro)
	}
	if len(ro.path) == 0 {
		ro.path = []string{target}
	}

	rule := api.BuildFlowRule(xid.New().String(), src.MAC(), ro.dstMAC, ro.port)
	ack, err := m.client(target).InstallFlowRule(ctx, target, rule)
	if err != nil {
		ruleRequestsTotal.WithLabelValues("install", "error").Inc()
		m.log.WithError(err).WithFields(log.Fields{"src": src.ID(), "dst": dst.ID(), "target": target}).Warn("flow rule install failed")
		return ack, err
	}
	ruleRequestsTotal.WithLabelValues("install", "ok").Inc()

	score := energy.Score(energy.Path{Switches: ro.path, TrafficType: ro.traffic}, m.loads)
	stored := m.reg.Put(src.ID(), dst.ID(), store.FlowPath{
		RuleID:      rule.ID,
		Target:      target,
		Switches:    ro.path,
		TrafficType: ro.traffic,
		Score:       score,
		DstMAC:      ro.dstMAC,
		OutPort:     ro.port,
	})
	m.remember(src, dst)
	m.save()

	m.log.WithFields(log.Fields{
		"src":     src.ID(),
		"dst":     dst.ID(),
		"target":  target,
		"rule_id": rule.ID,
		"score":   stored.Score,
	}).Info("flow rule installed")
	return ack, nil
}

// UpdateFlowRule re-sends the rule for (src, dst) to the target's update
// endpoint. The stored rule options are reused when a path exists. Failures
// are reported and not retried.
func (m *Manager) UpdateFlowRule(ctx context.Context, src, dst model.Device) (api.Ack, error) {
	if isNil(dst) {
		return api.Ack{}, fmt.Errorf("destination device is required")
	}
	if isNil(src) {
		return api.Ack{}, fmt.Errorf("source device is required")
	}
	p, ok := m.reg.Get(src.ID(), dst.ID())
	return m.update(ctx, src, dst, p, ok)
}

func (m *Manager) update(ctx context.Context, src, dst model.Device, p store.FlowPath, known bool) (api.Ack, error) {
	target, err := egress(src)
	if err != nil {
		return api.Ack{}, err
	}

	id := p.RuleID
	if !known || id == "" {
		id = xid.New().String()
	}
	rule := api.BuildFlowRule(id, src.MAC(), p.DstMAC, p.OutPort)
	ack, err := m.client(target).UpdateFlowRule(ctx, target, rule)
	if err != nil {
		ruleRequestsTotal.WithLabelValues("update", "error").Inc()
		return ack, err
	}
	ruleRequestsTotal.WithLabelValues("update", "ok").Inc()
	return ack, nil
}

// OptimizeEnergyUsage rescores every active path with current loads and
// updates those whose score improved, highest fresh score first. A failed
// update is logged and leaves the cached score as it was.
func (m *Manager) OptimizeEnergyUsage(ctx context.Context) (OptimizeReport, error) {
	type candidate struct {
		entry store.Entry
		fresh float64
	}

	entries := m.reg.Entries()
	cands := make([]candidate, 0, len(entries))
	for _, e := range entries {
		fresh := energy.Score(energy.Path{Switches: e.Path.Switches, TrafficType: e.Path.TrafficType}, m.loads)
		cands = append(cands, candidate{entry: e, fresh: fresh})
	}
	sort.SliceStable(cands, func(i, j int) bool {
		if cands[i].fresh != cands[j].fresh {
			return cands[i].fresh > cands[j].fresh
		}
		if cands[i].entry.Src != cands[j].entry.Src {
			return cands[i].entry.Src < cands[j].entry.Src
		}
		return cands[i].entry.Dst < cands[j].entry.Dst
	})

	var report OptimizeReport
	for _, c := range cands {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		report.Scanned++
		if !(c.fresh > c.entry.Path.Score) {
			continue
		}

		entry := m.log.WithFields(log.Fields{
			"src":   c.entry.Src,
			"dst":   c.entry.Dst,
			"old":   c.entry.Path.Score,
			"score": c.fresh,
		})
		src, okSrc := m.Device(c.entry.Src)
		dst, okDst := m.Device(c.entry.Dst)
		if !okSrc || !okDst {
			report.Failed++
			entry.Warn("skipping path with unknown device")
			continue
		}
		if _, err := m.update(ctx, src, dst, c.entry.Path, true); err != nil {
			report.Failed++
			entry.WithError(err).Warn("path update failed")
			continue
		}

		if !m.reg.SetScore(c.entry.Src, c.entry.Dst, c.entry.Path.Version, c.fresh) {
			report.Superseded++
			entry.Debug("path redefined during update, keeping newer score")
			continue
		}
		report.Updated++
		optimizeUpdatesTotal.Inc()
		entry.Info("path updated")
	}

	if report.Updated > 0 {
		m.save()
	}
	return report, nil
}

// RunOptimizer calls OptimizeEnergyUsage every interval until ctx is done.
func (m *Manager) RunOptimizer(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			report, err := m.OptimizeEnergyUsage(ctx)
			if err != nil {
				return
			}
			m.log.WithFields(log.Fields{
				"scanned": report.Scanned,
				"updated":    report.Updated,
				"superseded": report.Superseded,
				"failed":     report.Failed,
			}).Debug("optimization pass")
		}
	}
}

// isNil reports whether d is nil or a typed nil device pointer.
func isNil(d model.Device) bool {
	switch v := d.(type) {
	case *model.Switch:
		return v == nil
	case *model.Host:
		return v == nil
	default:
		return d == nil
	}
}

func egress(d model.Device) (string, error) {
	switch v := d.(type) {
	case *model.Switch:
		if v == nil || v.Name == "" {
			return "", fmt.Errorf("switch without id")
		}
		return v.Name, nil
	case *model.Host:
		if v == nil || v.Switch == "" {
			return "", fmt.Errorf("host has no uplink switch")
		}
		return v.Switch, nil
	default:
		return "", fmt.Errorf("source device is required")
	}
}

func (m *Manager) client(target string) *api.Client {
	base := ""
	if m.endpoints != nil {
		base = m.endpoints(target)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.clients[base]
	if !ok {
		c = api.NewClient(base)
		m.clients[base] = c
	}
	return c
}

func (m *Manager) remember(devs ...model.Device) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, d := range devs {
		if _, ok := m.devices[d.ID()]; !ok {
			m.devices[d.ID()] = d
		}
	}
}

func (m *Manager) save() {
	if m.regPath == "" {
		return
	}
	m.saveMu.Lock()
	defer m.saveMu.Unlock()
	if err := store.SaveRegistry(m.regPath, m.reg); err != nil {
		m.log.WithError(err).Warn("saving registry")
	}
}

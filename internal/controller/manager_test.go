package controller

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"sdnctl/internal/api"
	"sdnctl/internal/energy"
	"sdnctl/internal/model"
	"sdnctl/internal/store"
)

type ruleRequest struct {
	Path string
	Rule api.FlowRule
}

// ruleServer is a fake flow-rule endpoint that records requests.
type ruleServer struct {
	*httptest.Server

	mu       sync.Mutex
	requests []ruleRequest
	// failUpdate makes every update request return 500.
	failUpdate bool
	// onUpdate runs before an update request is answered.
	onUpdate func()
}

func newRuleServer(t *testing.T) *ruleServer {
	t.Helper()
	rs := &ruleServer{}
	rs.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var rule api.FlowRule
		if err := json.NewDecoder(r.Body).Decode(&rule); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		rs.mu.Lock()
		rs.requests = append(rs.requests, ruleRequest{Path: r.URL.Path, Rule: rule})
		isUpdate := strings.HasSuffix(r.URL.Path, "/update")
		fail := rs.failUpdate && isUpdate
		hook := rs.onUpdate
		rs.mu.Unlock()
		if isUpdate && hook != nil {
			hook()
		}
		if fail {
			http.Error(w, "switch busy", http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusCreated)
	}))
	t.Cleanup(rs.Close)
	return rs
}

func (rs *ruleServer) recorded() []ruleRequest {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	return append([]ruleRequest(nil), rs.requests...)
}

func (rs *ruleServer) updates() []ruleRequest {
	var out []ruleRequest
	for _, r := range rs.recorded() {
		if strings.HasSuffix(r.Path, "/update") {
			out = append(out, r)
		}
	}
	return out
}

var (
	s1 = &model.Switch{Name: "s1", Addr: model.MustParseMAC("00:00:00:00:01:01")}
	s2 = &model.Switch{Name: "s2", Addr: model.MustParseMAC("00:00:00:00:01:02")}
	h1 = &model.Host{Name: "h1", Addr: model.MustParseMAC("00:00:00:00:00:01"), Switch: "s1"}
	h2 = &model.Host{Name: "h2", Addr: model.MustParseMAC("00:00:00:00:00:02"), Switch: "s1"}
	h3 = &model.Host{Name: "h3", Addr: model.MustParseMAC("00:00:00:00:00:03"), Switch: "s2"}
)

func TestDefineFlowRule_InstallsOnEgressSwitch(t *testing.T) {
	t.Parallel()

	rs := newRuleServer(t)
	loads := energy.Loads{"s1": 0.5}
	mgr := NewManager(nil, loads, nil, StaticEndpoint(rs.URL))

	ack, err := mgr.DefineFlowRule(context.Background(), h1, h2, WithTrafficType(model.TrafficLighting))
	require.NoError(t, err)
	require.Equal(t, "s1", ack.Target)
	require.Equal(t, http.StatusCreated, ack.Status)

	reqs := rs.recorded()
	require.Len(t, reqs, 1)
	require.Equal(t, "/hosts/s1/flow_rules", reqs[0].Path)
	require.Equal(t, h1.Addr.String(), reqs[0].Rule.Match.EthSrc)
	require.Empty(t, reqs[0].Rule.Match.EthDst)
	require.Len(t, reqs[0].Rule.Actions, 1)
	require.Zero(t, reqs[0].Rule.Actions[0].Port)

	p, ok := mgr.Registry().Get("h1", "h2")
	require.True(t, ok)
	require.Equal(t, []string{"s1"}, p.Switches)
	require.Equal(t, ack.RuleID, p.RuleID)
	require.InDelta(t, 0.225, p.Score, 1e-9)
}

func TestDefineFlowRule_SwitchSourceTargetsItself(t *testing.T) {
	t.Parallel()

	rs := newRuleServer(t)
	mgr := NewManager(nil, energy.Loads{}, nil, StaticEndpoint(rs.URL))

	_, err := mgr.DefineFlowRule(context.Background(), s2, h3,
		WithDestinationMAC(h3.Addr), WithOutputPort(3))
	require.NoError(t, err)

	reqs := rs.recorded()
	require.Len(t, reqs, 1)
	require.Equal(t, "/hosts/s2/flow_rules", reqs[0].Path)
	require.Equal(t, h3.Addr.String(), reqs[0].Rule.Match.EthDst)
	require.Equal(t, 3, reqs[0].Rule.Actions[0].Port)
}

func TestDefineFlowRule_UnreachableEndpointLeavesRegistryUnchanged(t *testing.T) {
	t.Parallel()

	dead := httptest.NewServer(http.NotFoundHandler())
	url := dead.URL
	dead.Close()

	mgr := NewManager(nil, energy.Loads{}, nil, StaticEndpoint(url))
	_, err := mgr.DefineFlowRule(context.Background(), h1, h2)
	require.Error(t, err)

	var terr *model.TransportError
	require.True(t, errors.As(err, &terr), "err=%v", err)
	require.Zero(t, mgr.Registry().Len())
}

func TestDefineFlowRule_Non2xxIsTransportError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "nope", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	mgr := NewManager(nil, energy.Loads{}, nil, StaticEndpoint(srv.URL))
	_, err := mgr.DefineFlowRule(context.Background(), h1, h2)

	var terr *model.TransportError
	require.True(t, errors.As(err, &terr), "err=%v", err)
	require.Contains(t, err.Error(), "nope")
	require.Zero(t, mgr.Registry().Len())
}

func TestDefineFlowRule_ReplacesPreviousPath(t *testing.T) {
	t.Parallel()

	rs := newRuleServer(t)
	mgr := NewManager(nil, energy.Loads{}, nil, StaticEndpoint(rs.URL))
	ctx := context.Background()

	_, err := mgr.DefineFlowRule(ctx, h1, h3, WithPath("s1", "s2"))
	require.NoError(t, err)
	_, err = mgr.DefineFlowRule(ctx, h1, h3)
	require.NoError(t, err)

	require.Equal(t, 1, mgr.Registry().Len())
	p, _ := mgr.Registry().Get("h1", "h3")
	require.Equal(t, []string{"s1"}, p.Switches)
	require.EqualValues(t, 2, p.Version)
}

func TestDefineFlowRule_RequiresSource(t *testing.T) {
	t.Parallel()

	mgr := NewManager(nil, energy.Loads{}, nil, StaticEndpoint("http://127.0.0.1:1"))
	_, err := mgr.DefineFlowRule(context.Background(), nil, h2)
	require.Error(t, err)

	_, err = mgr.DefineFlowRule(context.Background(), &model.Host{Name: "lost", Addr: h1.Addr}, h2)
	require.Error(t, err)
}

func TestUpdateFlowRule_ReusesStoredRule(t *testing.T) {
	t.Parallel()

	rs := newRuleServer(t)
	mgr := NewManager(nil, energy.Loads{}, nil, StaticEndpoint(rs.URL))
	ctx := context.Background()

	ack, err := mgr.DefineFlowRule(ctx, h1, h2, WithDestinationMAC(h2.Addr), WithOutputPort(2))
	require.NoError(t, err)
	_, err = mgr.UpdateFlowRule(ctx, h1, h2)
	require.NoError(t, err)

	ups := rs.updates()
	require.Len(t, ups, 1)
	require.Equal(t, "/hosts/s1/flow_rules/update", ups[0].Path)
	require.Equal(t, ack.RuleID, ups[0].Rule.ID)
	require.Equal(t, h2.Addr.String(), ups[0].Rule.Match.EthDst)
	require.Equal(t, 2, ups[0].Rule.Actions[0].Port)
}

func TestOptimize_EqualScoreDoesNotUpdate(t *testing.T) {
	t.Parallel()

	rs := newRuleServer(t)
	loads := energy.Loads{"s1": 0.2}
	mgr := NewManager(nil, loads, nil, StaticEndpoint(rs.URL))

	_, err := mgr.DefineFlowRule(context.Background(), h1, h2)
	require.NoError(t, err)

	report, err := mgr.OptimizeEnergyUsage(context.Background())
	require.NoError(t, err)
	require.Equal(t, OptimizeReport{Scanned: 1}, report)
	require.Empty(t, rs.updates())
}

func TestOptimize_ImprovedScoreIsUpdated(t *testing.T) {
	t.Parallel()

	rs := newRuleServer(t)
	loads := energy.Loads{"s1": 0.5}
	mgr := NewManager(nil, loads, nil, StaticEndpoint(rs.URL))

	_, err := mgr.DefineFlowRule(context.Background(), h1, h2, WithTrafficType(model.TrafficLighting))
	require.NoError(t, err)

	loads["s1"] = 0
	report, err := mgr.OptimizeEnergyUsage(context.Background())
	require.NoError(t, err)
	require.Equal(t, OptimizeReport{Scanned: 1, Updated: 1}, report)
	require.Len(t, rs.updates(), 1)

	p, _ := mgr.Registry().Get("h1", "h2")
	require.InDelta(t, 0.45, p.Score, 1e-9)

	// A second pass with unchanged loads finds nothing to do.
	report, err = mgr.OptimizeEnergyUsage(context.Background())
	require.NoError(t, err)
	require.Zero(t, report.Updated)
}

func TestOptimize_HigherPriorityFlowsFirst(t *testing.T) {
	t.Parallel()

	rs := newRuleServer(t)
	loads := energy.Loads{"s1": 0.5, "s2": 0.5}
	mgr := NewManager(nil, loads, nil, StaticEndpoint(rs.URL))
	ctx := context.Background()

	_, err := mgr.DefineFlowRule(ctx, h1, h3, WithTrafficType(model.TrafficLockControl))
	require.NoError(t, err)
	_, err = mgr.DefineFlowRule(ctx, h3, h1, WithTrafficType(model.TrafficLighting))
	require.NoError(t, err)

	loads["s1"], loads["s2"] = 0, 0
	report, err := mgr.OptimizeEnergyUsage(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, report.Updated)

	ups := rs.updates()
	require.Len(t, ups, 2)
	require.Equal(t, h3.Addr.String(), ups[0].Rule.Match.EthSrc, "lighting flow first")
	require.Equal(t, h1.Addr.String(), ups[1].Rule.Match.EthSrc)
}

func TestOptimize_FailedUpdateKeepsScoreAndContinues(t *testing.T) {
	t.Parallel()

	bad := newRuleServer(t)
	bad.mu.Lock()
	bad.failUpdate = true
	bad.mu.Unlock()
	good := newRuleServer(t)
	endpoints := func(target string) string {
		if target == "s1" {
			return bad.URL
		}
		return good.URL
	}

	loads := energy.Loads{"s1": 0.5, "s2": 0.5}
	mgr := NewManager(nil, loads, nil, endpoints)
	ctx := context.Background()

	_, err := mgr.DefineFlowRule(ctx, h1, h3, WithTrafficType(model.TrafficLighting))
	require.NoError(t, err)
	_, err = mgr.DefineFlowRule(ctx, h3, h1, WithTrafficType(model.TrafficLockControl))
	require.NoError(t, err)
	before, _ := mgr.Registry().Get("h1", "h3")

	loads["s1"], loads["s2"] = 0, 0
	report, err := mgr.OptimizeEnergyUsage(ctx)
	require.NoError(t, err)
	require.Equal(t, OptimizeReport{Scanned: 2, Updated: 1, Failed: 1}, report)

	after, _ := mgr.Registry().Get("h1", "h3")
	require.Equal(t, before.Score, after.Score)
	other, _ := mgr.Registry().Get("h3", "h1")
	require.InDelta(t, 0.25, other.Score, 1e-9)
}

func TestOptimize_RedefinedPathIsSuperseded(t *testing.T) {
	t.Parallel()

	rs := newRuleServer(t)
	loads := energy.Loads{"s1": 0.5}
	mgr := NewManager(nil, loads, nil, StaticEndpoint(rs.URL))

	_, err := mgr.DefineFlowRule(context.Background(), h1, h2, WithTrafficType(model.TrafficLighting))
	require.NoError(t, err)

	rs.mu.Lock()
	rs.onUpdate = func() {
		mgr.Registry().Put("h1", "h2", store.FlowPath{Target: "s1", Switches: []string{"s1"}, Score: 0.1})
	}
	rs.mu.Unlock()

	loads["s1"] = 0
	report, err := mgr.OptimizeEnergyUsage(context.Background())
	require.NoError(t, err)
	require.Equal(t, OptimizeReport{Scanned: 1, Superseded: 1}, report)

	p, _ := mgr.Registry().Get("h1", "h2")
	require.InDelta(t, 0.1, p.Score, 1e-9)
}

func TestManager_TypedNilDevicesAreRejected(t *testing.T) {
	t.Parallel()

	rs := newRuleServer(t)
	mgr := NewManager(nil, energy.Loads{}, nil, StaticEndpoint(rs.URL))
	ctx := context.Background()

	var nilHost *model.Host
	var nilSwitch *model.Switch

	_, err := mgr.DefineFlowRule(ctx, h1, nilHost)
	require.Error(t, err)
	_, err = mgr.DefineFlowRule(ctx, h1, nilSwitch)
	require.Error(t, err)
	_, err = mgr.UpdateFlowRule(ctx, h1, nilHost)
	require.Error(t, err)
	_, err = mgr.UpdateFlowRule(ctx, nilSwitch, h2)
	require.Error(t, err)

	require.Empty(t, rs.recorded())
	require.Zero(t, mgr.Registry().Len())
}

func TestOptimize_CancelledContextStopsScan(t *testing.T) {
	t.Parallel()

	rs := newRuleServer(t)
	mgr := NewManager(nil, energy.Loads{}, nil, StaticEndpoint(rs.URL))
	_, err := mgr.DefineFlowRule(context.Background(), h1, h2)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = mgr.OptimizeEnergyUsage(ctx)
	require.ErrorIs(t, err, context.Canceled)
}

func TestManager_PersistsRegistry(t *testing.T) {
	t.Parallel()

	rs := newRuleServer(t)
	path := filepath.Join(t.TempDir(), RegistryFile)
	mgr := NewManager(nil, energy.Loads{}, nil, StaticEndpoint(rs.URL), WithRegistryPath(path))

	_, err := mgr.DefineFlowRule(context.Background(), h1, h2, WithTrafficType(model.TrafficTemperature))
	require.NoError(t, err)

	reg, err := store.LoadRegistry(path)
	require.NoError(t, err)
	p, ok := reg.Get("h1", "h2")
	require.True(t, ok)
	require.Equal(t, model.TrafficTemperature, p.TrafficType)
}

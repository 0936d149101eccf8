package controller

import (
	"errors"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"

	"sdnctl/internal/api"
	"sdnctl/internal/model"
	"sdnctl/internal/store"
)

// LoadSnapshotter reports every known switch load.
type LoadSnapshotter interface {
	Snapshot() map[string]float64
}

// Server provides the controller HTTP API.
type Server struct {
	mgr   *Manager
	loads LoadSnapshotter
}

// NewServer constructs a controller server.
func NewServer(mgr *Manager, loads LoadSnapshotter) *Server {
	return &Server{mgr: mgr, loads: loads}
}

// Handler returns the routed API.
func (s *Server) Handler() http.Handler {
	r := mux.NewRouter()
	r.HandleFunc("/flows", s.handleDefineFlow).Methods(http.MethodPost)
	r.HandleFunc("/flows", s.handleFlows).Methods(http.MethodGet)
	r.HandleFunc("/optimize", s.handleOptimize).Methods(http.MethodPost)
	r.HandleFunc("/loads", s.handleLoads).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.Handler())
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		api.WriteError(w, http.StatusMethodNotAllowed, "method not allowed")
	})
	return r
}

func (s *Server) handleDefineFlow(w http.ResponseWriter, r *http.Request) {
	var req api.DefineFlowRequest
	if err := api.DecodeJSON(r, &req); err != nil {
		api.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Src == "" || req.Dst == "" {
		api.WriteError(w, http.StatusBadRequest, "src and dst are required")
		return
	}
	src, ok := s.mgr.Device(req.Src)
	if !ok {
		api.WriteError(w, http.StatusBadRequest, "unknown device "+req.Src)
		return
	}
	dst, ok := s.mgr.Device(req.Dst)
	if !ok {
		api.WriteError(w, http.StatusBadRequest, "unknown device "+req.Dst)
		return
	}

	var opts []RuleOption
	if req.DstMAC != "" {
		mac, err := model.ParseMAC(req.DstMAC)
		if err != nil {
			api.WriteError(w, http.StatusBadRequest, err.Error())
			return
		}
		opts = append(opts, WithDestinationMAC(mac))
	}
	if req.Port > 0 {
		opts = append(opts, WithOutputPort(req.Port))
	}
	if len(req.Path) > 0 {
		opts = append(opts, WithPath(req.Path...))
	}
	if req.TrafficType != "" {
		opts = append(opts, WithTrafficType(model.TrafficType(req.TrafficType)))
	}

	if _, err := s.mgr.DefineFlowRule(r.Context(), src, dst, opts...); err != nil {
		var terr *model.TransportError
		if errors.As(err, &terr) {
			api.WriteError(w, http.StatusBadGateway, err.Error())
			return
		}
		api.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	p, _ := s.mgr.Registry().Get(src.ID(), dst.ID())
	api.WriteJSON(w, http.StatusOK, flowEntry(store.Entry{Src: src.ID(), Dst: dst.ID(), Path: p}))
}

func (s *Server) handleFlows(w http.ResponseWriter, _ *http.Request) {
	entries := s.mgr.Registry().Entries()
	resp := api.FlowsResponse{Flows: make([]api.FlowEntry, 0, len(entries))}
	for _, e := range entries {
		resp.Flows = append(resp.Flows, flowEntry(e))
	}
	api.WriteJSON(w, http.StatusOK, resp)
}

func (s *Server) handleOptimize(w http.ResponseWriter, r *http.Request) {
	report, err := s.mgr.OptimizeEnergyUsage(r.Context())
	if err != nil {
		api.WriteError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	log.WithFields(log.Fields{"scanned": report.Scanned, "updated": report.Updated, "superseded": report.Superseded, "failed": report.Failed}).Info("optimization requested")
	api.WriteJSON(w, http.StatusOK, api.OptimizeResponse{
		Scanned:    report.Scanned,
		Updated:    report.Updated,
		Superseded: report.Superseded,
		Failed:     report.Failed,
	})
}

func (s *Server) handleLoads(w http.ResponseWriter, _ *http.Request) {
	resp := api.LoadsResponse{Loads: map[string]float64{}}
	if s.loads != nil {
		resp.Loads = s.loads.Snapshot()
	}
	api.WriteJSON(w, http.StatusOK, resp)
}

func flowEntry(e store.Entry) api.FlowEntry {
	return api.FlowEntry{
		Src:         e.Src,
		Dst:         e.Dst,
		RuleID:      e.Path.RuleID,
		Target:      e.Path.Target,
		Path:        e.Path.Switches,
		TrafficType: string(e.Path.TrafficType),
		Score:       e.Path.Score,
		Version:     e.Path.Version,
		UpdatedAt:   e.Path.UpdatedAt,
	}
}

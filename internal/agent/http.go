package agent

import (
	"errors"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"sdnctl/internal/api"
)

// Handler returns the switch's flow-rule and inspection endpoints.
func (a *Agent) Handler() http.Handler {
	r := mux.NewRouter()
	r.HandleFunc("/hosts/{id}/flow_rules", a.handleInstall).Methods(http.MethodPost)
	r.HandleFunc("/hosts/{id}/flow_rules/update", a.handleUpdate).Methods(http.MethodPost)
	r.HandleFunc("/hosts/{id}/flow_rules", a.handleList).Methods(http.MethodGet)
	r.HandleFunc("/mac-table", a.handleMACTable).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.Handler())
	return r
}

func (a *Agent) ownTarget(w http.ResponseWriter, r *http.Request) bool {
	if id := mux.Vars(r)["id"]; id != a.id {
		api.WriteError(w, http.StatusNotFound, "unknown target "+id)
		return false
	}
	return true
}

func (a *Agent) handleInstall(w http.ResponseWriter, r *http.Request) {
	if !a.ownTarget(w, r) {
		return
	}
	var rule api.FlowRule
	if err := api.DecodeJSON(r, &rule); err != nil {
		api.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	stored, err := a.rules.Install(rule)
	if err != nil {
		api.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	a.log.WithField("rule_id", stored.ID).Infof("flow rule installed eth_src=%s eth_dst=%s", stored.Match.EthSrc, stored.Match.EthDst)
	api.WriteJSON(w, http.StatusCreated, api.Ack{Target: a.id, RuleID: stored.ID, Status: http.StatusCreated})
}

func (a *Agent) handleUpdate(w http.ResponseWriter, r *http.Request) {
	if !a.ownTarget(w, r) {
		return
	}
	var rule api.FlowRule
	if err := api.DecodeJSON(r, &rule); err != nil {
		api.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	stored, ok, err := a.rules.Update(rule)
	if errors.Is(err, ErrRuleConflict) {
		api.WriteError(w, http.StatusConflict, err.Error())
		return
	}
	if err != nil {
		api.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	if !ok {
		api.WriteError(w, http.StatusNotFound, "no rule to update")
		return
	}
	a.log.WithField("rule_id", stored.ID).Info("flow rule updated")
	api.WriteJSON(w, http.StatusOK, api.Ack{Target: a.id, RuleID: stored.ID, Status: http.StatusOK})
}

func (a *Agent) handleList(w http.ResponseWriter, r *http.Request) {
	if !a.ownTarget(w, r) {
		return
	}
	api.WriteJSON(w, http.StatusOK, api.FlowRulesResponse{Target: a.id, Rules: a.rules.List()})
}

func (a *Agent) handleMACTable(w http.ResponseWriter, _ *http.Request) {
	entries := a.sw.Entries()
	resp := api.MACTableResponse{Switch: a.id, Entries: make([]api.MACEntry, 0, len(entries))}
	for _, e := range entries {
		resp.Entries = append(resp.Entries, api.MACEntry{MAC: e.MAC.String(), Output: string(e.Output)})
	}
	api.WriteJSON(w, http.StatusOK, resp)
}

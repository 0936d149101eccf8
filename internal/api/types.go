package api

import (
	"time"

	"sdnctl/internal/model"
)

// Match selects the packets a flow rule applies to.
type Match struct {
	EthSrc string `json:"eth_src"`
	EthDst string `json:"eth_dst,omitempty"`
}

// Action is applied to matching packets. A zero Port means no output action.
type Action struct {
	Port int `json:"port,omitempty"`
}

// FlowRule is the install/update document sent to a flow-rule endpoint.
type FlowRule struct {
	ID      string   `json:"id,omitempty"`
	Match   Match    `json:"match"`
	Actions []Action `json:"actions"`
}

// BuildFlowRule returns a fresh rule matching src and, when set, dst, with
// an output action when port > 0.
func BuildFlowRule(id string, src, dst model.MAC, port int) FlowRule {
	rule := FlowRule{
		ID:      id,
		Match:   Match{EthSrc: src.String()},
		Actions: []Action{{}},
	}
	if !dst.IsZero() {
		rule.Match.EthDst = dst.String()
	}
	if port > 0 {
		rule.Actions[0].Port = port
	}
	return rule
}

// OutputPort returns the port of the first action, if any.
func (r FlowRule) OutputPort() (int, bool) {
	if len(r.Actions) == 0 || r.Actions[0].Port <= 0 {
		return 0, false
	}
	return r.Actions[0].Port, true
}

// Ack acknowledges an accepted flow-rule request.
type Ack struct {
	Target string `json:"target"`
	RuleID string `json:"rule_id"`
	Status int    `json:"status"`
}

// FlowRulesResponse lists the rules installed on a switch.
type FlowRulesResponse struct {
	Target string     `json:"target"`
	Rules  []FlowRule `json:"rules"`
}

// DefineFlowRequest asks the controller to install a flow between two
// devices from its topology.
type DefineFlowRequest struct {
	Src         string   `json:"src"`
	Dst         string   `json:"dst"`
	DstMAC      string   `json:"dst_mac,omitempty"`
	Port        int      `json:"port,omitempty"`
	Path        []string `json:"path,omitempty"`
	TrafficType string   `json:"traffic_type,omitempty"`
}

// FlowEntry is the controller's view of one active path.
type FlowEntry struct {
	Src         string    `json:"src"`
	Dst         string    `json:"dst"`
	RuleID      string    `json:"rule_id"`
	Target      string    `json:"target"`
	Path        []string  `json:"path"`
	TrafficType string    `json:"traffic_type"`
	Score       float64   `json:"score"`
	Version     uint64    `json:"version"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// FlowsResponse lists active paths.
type FlowsResponse struct {
	Flows []FlowEntry `json:"flows"`
}

// OptimizeResponse summarises one optimization pass.
type OptimizeResponse struct {
	Scanned    int `json:"scanned"`
	Updated    int `json:"updated"`
	Superseded int `json:"superseded"`
	Failed     int `json:"failed"`
}

// LoadsResponse reports the switch loads currently known to the controller.
type LoadsResponse struct {
	Loads map[string]float64 `json:"loads"`
}

// MACEntry is one learned forwarding-table row.
type MACEntry struct {
	MAC    string `json:"mac"`
	Output string `json:"output"`
}

// MACTableResponse dumps a switch forwarding table.
type MACTableResponse struct {
	Switch  string     `json:"switch"`
	Entries []MACEntry `json:"entries"`
}

package agent

import (
	"errors"
	"sort"
	"sync"

	"github.com/rs/xid"

	"sdnctl/internal/api"
	"sdnctl/internal/model"
)

// ErrRuleConflict is returned when an update would move a rule onto a match
// already held by a different rule.
var ErrRuleConflict = errors.New("match already held by another rule")

type ruleKey struct {
	src model.MAC
	dst model.MAC
}

type installedRule struct {
	rule api.FlowRule
	key  ruleKey
	seq  uint64
}

// Rules holds the flow rules installed on a switch, keyed by match.
type Rules struct {
	mu    sync.Mutex
	seq   uint64
	rules map[ruleKey]installedRule
}

// NewRules returns an empty rule table.
func NewRules() *Rules {
	return &Rules{rules: make(map[ruleKey]installedRule)}
}

func keyOf(r api.FlowRule) (ruleKey, error) {
	src, err := model.ParseMAC(r.Match.EthSrc)
	if err != nil {
		return ruleKey{}, err
	}
	var dst model.MAC
	if r.Match.EthDst != "" {
		if dst, err = model.ParseMAC(r.Match.EthDst); err != nil {
			return ruleKey{}, err
		}
	}
	return ruleKey{src: src, dst: dst}, nil
}

// Install adds r, replacing any rule with the same match. A missing id is
// generated. The stored rule is returned.
func (t *Rules) Install(r api.FlowRule) (api.FlowRule, error) {
	key, err := keyOf(r)
	if err != nil {
		return api.FlowRule{}, err
	}
	if r.ID == "" {
		r.ID = xid.New().String()
	}
	r.Actions = append([]api.Action(nil), r.Actions...)

	t.mu.Lock()
	defer t.mu.Unlock()
	t.seq++
	t.rules[key] = installedRule{rule: r, key: key, seq: t.seq}
	return r, nil
}

// Update replaces the rule with r's id, or failing that r's match. It
// reports false when neither exists, and ErrRuleConflict when the rule
// found by id would overwrite a different rule holding r's match.
func (t *Rules) Update(r api.FlowRule) (api.FlowRule, bool, error) {
	key, err := keyOf(r)
	if err != nil {
		return api.FlowRule{}, false, err
	}
	r.Actions = append([]api.Action(nil), r.Actions...)

	t.mu.Lock()
	defer t.mu.Unlock()
	holder, held := t.rules[key]
	old, ok := holder, held
	if r.ID != "" {
		for _, ir := range t.rules {
			if ir.rule.ID == r.ID {
				old, ok = ir, true
				break
			}
		}
	}
	if !ok {
		return api.FlowRule{}, false, nil
	}
	if held && old.key != key {
		return api.FlowRule{}, true, ErrRuleConflict
	}
	if r.ID == "" {
		r.ID = old.rule.ID
	}
	delete(t.rules, old.key)
	t.rules[key] = installedRule{rule: r, key: key, seq: old.seq}
	return r, true, nil
}

// Match returns the output port of the rule applying to a packet. A rule
// with a destination match wins over one matching the source only. Rules
// without an output action never match.
func (t *Rules) Match(src, dst model.MAC) (int, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, key := range []ruleKey{{src: src, dst: dst}, {src: src}} {
		if ir, ok := t.rules[key]; ok {
			if port, ok := ir.rule.OutputPort(); ok {
				return port, true
			}
		}
	}
	return 0, false
}

// List returns installed rules in installation order.
func (t *Rules) List() []api.FlowRule {
	t.mu.Lock()
	items := make([]installedRule, 0, len(t.rules))
	for _, ir := range t.rules {
		items = append(items, ir)
	}
	t.mu.Unlock()

	sort.Slice(items, func(i, j int) bool { return items[i].seq < items[j].seq })
	out := make([]api.FlowRule, 0, len(items))
	for _, ir := range items {
		out = append(out, ir.rule)
	}
	return out
}

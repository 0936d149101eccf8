package fwd

import (
	"sort"
	"sync"

	"sdnctl/internal/model"
)

// Output identifies a switch output port or path.
type Output string

// OutputFor is the output a source MAC is associated with when it is learned
// from a packet: the packet's destination address.
func OutputFor(m model.MAC) Output {
	return Output(m.String())
}

// Table maps learned MAC addresses to outputs. Entries are never replaced
// or removed.
type Table struct {
	mu      sync.Mutex
	entries map[model.MAC]Output
}

// NewTable returns an empty table.
func NewTable() *Table {
	return &Table{entries: make(map[model.MAC]Output)}
}

// Learn records mac -> out unless mac is already known. It reports whether
// the table changed.
func (t *Table) Learn(mac model.MAC, out Output) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.learnLocked(mac, out)
}

func (t *Table) learnLocked(mac model.MAC, out Output) bool {
	if _, ok := t.entries[mac]; ok {
		return false
	}
	t.entries[mac] = out
	return true
}

// Lookup returns the output learned for mac.
func (t *Table) Lookup(mac model.MAC) (Output, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	out, ok := t.entries[mac]
	return out, ok
}

// Len returns the number of learned addresses.
func (t *Table) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}

// Snapshot returns a copy of all entries.
func (t *Table) Snapshot() map[model.MAC]Output {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make(map[model.MAC]Output, len(t.entries))
	for k, v := range t.entries {
		out[k] = v
	}
	return out
}

// decide learns from p and picks the outputs for it in a single critical
// section so concurrent packets see a consistent table.
func (t *Table) decide(p model.Packet) Decision {
	t.mu.Lock()
	defer t.mu.Unlock()

	learned := t.learnLocked(p.Src(), OutputFor(p.Dst()))
	if out, ok := t.entries[p.Dst()]; ok {
		return Decision{Mode: Unicast, Outputs: []Output{out}, Learned: learned}
	}

	skip := OutputFor(p.Src())
	seen := make(map[Output]struct{}, len(t.entries))
	outs := make([]Output, 0, len(t.entries))
	for _, out := range t.entries {
		if out == skip {
			continue
		}
		if _, dup := seen[out]; dup {
			continue
		}
		seen[out] = struct{}{}
		outs = append(outs, out)
	}
	sort.Slice(outs, func(i, j int) bool { return outs[i] < outs[j] })
	return Decision{Mode: Broadcast, Outputs: outs, Learned: learned}
}

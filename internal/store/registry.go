package store

import (
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"sdnctl/internal/model"
)

// FlowPath is the active path installed for one (source, destination) pair.
type FlowPath struct {
	RuleID      string            `yaml:"rule_id"`
	Target      string            `yaml:"target"`
	Switches    []string          `yaml:"switches"`
	TrafficType model.TrafficType `yaml:"traffic_type"`
	Score       float64           `yaml:"score"`
	DstMAC      model.MAC         `yaml:"dst_mac,omitempty"`
	OutPort     int               `yaml:"out_port,omitempty"`
	Version     uint64            `yaml:"version"`
	UpdatedAt   time.Time         `yaml:"updated_at"`
}

func (p FlowPath) clone() FlowPath {
	p.Switches = append([]string(nil), p.Switches...)
	return p
}

// Entry is one registry row.
type Entry struct {
	Src  string   `yaml:"src"`
	Dst  string   `yaml:"dst"`
	Path FlowPath `yaml:"path"`
}

// Registry holds at most one active FlowPath per (source, destination) pair.
// It is safe for concurrent use.
type Registry struct {
	mu    sync.RWMutex
	flows map[string]map[string]FlowPath
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{flows: make(map[string]map[string]FlowPath)}
}

// Get returns a copy of the path for src -> dst.
func (r *Registry) Get(src, dst string) (FlowPath, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.flows[src][dst]
	if !ok {
		return FlowPath{}, false
	}
	return p.clone(), true
}

// Put installs p as the active path for src -> dst, replacing any previous
// one, and returns the stored value with its new version.
func (r *Registry) Put(src, dst string, p FlowPath) FlowPath {
	r.mu.Lock()
	defer r.mu.Unlock()
	m := r.flows[src]
	if m == nil {
		m = make(map[string]FlowPath)
		r.flows[src] = m
	}
	p = p.clone()
	p.Version = m[dst].Version + 1
	if p.UpdatedAt.IsZero() {
		p.UpdatedAt = time.Now().UTC()
	}
	m[dst] = p
	return p.clone()
}

// SetScore replaces the cached score if the path is still at version. It
// reports false when the path was redefined or removed in the meantime.
func (r *Registry) SetScore(src, dst string, version uint64, score float64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.flows[src][dst]
	if !ok || p.Version != version {
		return false
	}
	p.Score = score
	p.UpdatedAt = time.Now().UTC()
	r.flows[src][dst] = p
	return true
}

// Len returns the number of active paths.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n := 0
	for _, m := range r.flows {
		n += len(m)
	}
	return n
}

// Entries returns a sorted copy of all active paths.
func (r *Registry) Entries() []Entry {
	r.mu.RLock()
	out := make([]Entry, 0, len(r.flows))
	for src, m := range r.flows {
		for dst, p := range m {
			out = append(out, Entry{Src: src, Dst: dst, Path: p.clone()})
		}
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].Src != out[j].Src {
			return out[i].Src < out[j].Src
		}
		return out[i].Dst < out[j].Dst
	})
	return out
}

type snapshot struct {
	UpdatedAt time.Time `yaml:"updated_at"`
	Flows     []Entry   `yaml:"flows"`
}

// LoadRegistry loads a registry snapshot from disk. If the file is missing,
// returns an empty registry.
func LoadRegistry(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return NewRegistry(), nil
		}
		return nil, err
	}

	var snap snapshot
	if err := yaml.Unmarshal(data, &snap); err != nil {
		return nil, err
	}

	reg := NewRegistry()
	for _, e := range snap.Flows {
		m := reg.flows[e.Src]
		if m == nil {
			m = make(map[string]FlowPath)
			reg.flows[e.Src] = m
		}
		m[e.Dst] = e.Path
	}
	return reg, nil
}

// SaveRegistry writes a snapshot of the registry to disk.
func SaveRegistry(path string, reg *Registry) error {
	if reg == nil {
		return nil
	}
	data, err := yaml.Marshal(snapshot{UpdatedAt: time.Now().UTC(), Flows: reg.Entries()})
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}

	return os.WriteFile(path, data, 0o600)
}

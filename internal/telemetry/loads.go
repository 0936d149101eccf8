package telemetry

import (
	"time"

	"github.com/patrickmn/go-cache"
)

// DefaultLoadTTL is how long a load report stays valid.
const DefaultLoadTTL = 30 * time.Second

// LoadTable keeps the latest load per switch. Reports older than the TTL
// are dropped and read as no load.
type LoadTable struct {
	c *cache.Cache
}

// NewLoadTable creates a table; ttl <= 0 selects DefaultLoadTTL.
func NewLoadTable(ttl time.Duration) *LoadTable {
	if ttl <= 0 {
		ttl = DefaultLoadTTL
	}
	return &LoadTable{c: cache.New(ttl, 2*ttl)}
}

// Set records the load of a switch.
func (t *LoadTable) Set(switchID string, load float64) {
	t.c.Set(switchID, load, cache.DefaultExpiration)
}

// Load implements energy.LoadSource.
func (t *LoadTable) Load(switchID string) (float64, bool) {
	v, ok := t.c.Get(switchID)
	if !ok {
		return 0, false
	}
	load, ok := v.(float64)
	return load, ok
}

// Snapshot returns all unexpired loads.
func (t *LoadTable) Snapshot() map[string]float64 {
	items := t.c.Items()
	out := make(map[string]float64, len(items))
	for k, item := range items {
		if v, ok := item.Object.(float64); ok {
			out[k] = v
		}
	}
	return out
}

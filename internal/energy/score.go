// Package energy scores flow paths for energy-aware path selection.
package energy

import "sdnctl/internal/model"

// DefaultPriority applies to traffic types missing from the table.
const DefaultPriority = 0.5

var priorities = map[model.TrafficType]float64{
	model.TrafficLighting:    0.9,
	model.TrafficTemperature: 0.7,
	model.TrafficLockControl: 0.5,
}

// Priority returns the weight of a traffic type.
func Priority(t model.TrafficType) float64 {
	if p, ok := priorities[t]; ok {
		return p
	}
	return DefaultPriority
}

// LoadSource reports the current load of a switch as a 0..1 fraction.
type LoadSource interface {
	Load(switchID string) (float64, bool)
}

// Loads is a fixed LoadSource.
type Loads map[string]float64

func (l Loads) Load(id string) (float64, bool) {
	v, ok := l[id]
	return v, ok
}

// Path is the input to Score.
type Path struct {
	// Switches lists the intermediate switches in order.
	Switches    []string
	TrafficType model.TrafficType
}

// PathLength counts the intermediate switches plus the destination hop.
func PathLength(p Path) int {
	return len(p.Switches) + 1
}

// NetworkLoad sums the reported load of every switch on the path. Switches
// without a report contribute zero. The sum is not clamped.
func NetworkLoad(p Path, loads LoadSource) float64 {
	if loads == nil {
		return 0
	}
	var sum float64
	for _, id := range p.Switches {
		if v, ok := loads.Load(id); ok {
			sum += v
		}
	}
	return sum
}

// Score computes (1/pathLength) * (1 - networkLoad) * priority. Shorter,
// less loaded, higher priority paths score higher. An aggregate load above
// 1 yields a negative score.
func Score(p Path, loads LoadSource) float64 {
	return Compute(PathLength(p), NetworkLoad(p, loads), Priority(p.TrafficType))
}

// Compute is the raw formula.
func Compute(pathLength int, networkLoad, priority float64) float64 {
	if pathLength < 1 {
		pathLength = 1
	}
	return (1 / float64(pathLength)) * (1 - networkLoad) * priority
}

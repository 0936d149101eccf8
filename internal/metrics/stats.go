package metrics

import (
	"math"
	"sort"
	"time"

	"sdnctl/internal/model"
)

// Summary is a per-switch load statistics snapshot.
type Summary struct {
	SwitchID string
	Count    int
	From     time.Time
	To       time.Time
	AvgLoad  float64
	P95Load  float64
	MaxLoad  float64
	Packets  int
}

// Summarize computes one summary per switch for samples at or after since,
// sorted by switch id.
func Summarize(items []model.LoadSample, since time.Time) []Summary {
	bySwitch := map[string][]model.LoadSample{}
	for _, m := range items {
		if m.Timestamp.Before(since) {
			continue
		}
		bySwitch[m.SwitchID] = append(bySwitch[m.SwitchID], m)
	}

	out := make([]Summary, 0, len(bySwitch))
	for id, samples := range bySwitch {
		out = append(out, summarize(id, samples))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SwitchID < out[j].SwitchID })
	return out
}

func summarize(id string, samples []model.LoadSample) Summary {
	values := make([]float64, 0, len(samples))
	var sum float64
	var packets int
	maxLoad := math.Inf(-1)
	from := samples[0].Timestamp
	to := samples[0].Timestamp

	for _, m := range samples {
		values = append(values, m.Load)
		sum += m.Load
		packets += m.Packets
		if m.Load > maxLoad {
			maxLoad = m.Load
		}
		if m.Timestamp.Before(from) {
			from = m.Timestamp
		}
		if m.Timestamp.After(to) {
			to = m.Timestamp
		}
	}

	sort.Float64s(values)
	return Summary{
		SwitchID: id,
		Count:    len(samples),
		From:     from,
		To:       to,
		AvgLoad:  sum / float64(len(samples)),
		P95Load:  percentile(values, 0.95),
		MaxLoad:  maxLoad,
		Packets:  packets,
	}
}

func percentile(values []float64, p float64) float64 {
	if len(values) == 0 {
		return 0
	}
	if p <= 0 {
		return values[0]
	}
	if p >= 1 {
		return values[len(values)-1]
	}
	idx := int(math.Ceil(p*float64(len(values)))) - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= len(values) {
		idx = len(values) - 1
	}
	return values[idx]
}

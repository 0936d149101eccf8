package energy

import (
	"testing"

	"github.com/stretchr/testify/require"

	"sdnctl/internal/model"
)

func TestScore_Scenarios(t *testing.T) {
	t.Parallel()

	loads := Loads{"s1": 0.2}
	lighting := Path{Switches: []string{"s1"}, TrafficType: model.TrafficLighting}
	lock := Path{Switches: []string{"s1"}, TrafficType: model.TrafficLockControl}

	require.InDelta(t, 0.36, Score(lighting, loads), 1e-9)
	require.InDelta(t, 0.2, Score(lock, loads), 1e-9)
	require.Greater(t, Score(lighting, loads), Score(lock, loads))
}

func TestPriority_DefaultsForUnknownTraffic(t *testing.T) {
	t.Parallel()

	require.Equal(t, 0.7, Priority(model.TrafficTemperature))
	require.Equal(t, DefaultPriority, Priority("video"))
	require.Equal(t, DefaultPriority, Priority(""))
}

func TestCompute_Monotonic(t *testing.T) {
	t.Parallel()

	for length := 1; length < 6; length++ {
		require.Greater(t, Compute(length, 0.3, 0.7), Compute(length+1, 0.3, 0.7))
	}
	for load := 0.0; load < 1.5; load += 0.1 {
		require.Greater(t, Compute(2, load, 0.7), Compute(2, load+0.1, 0.7))
	}
	require.GreaterOrEqual(t, Compute(2, 0.3, 0.9), Compute(2, 0.3, 0.7))
	require.GreaterOrEqual(t, Compute(2, 0.3, 0.5), Compute(2, 0.3, 0.5))
}

func TestNetworkLoad_UnclampedSum(t *testing.T) {
	t.Parallel()

	p := Path{Switches: []string{"s1", "s2", "s3"}}
	loads := Loads{"s1": 0.8, "s2": 0.7}
	require.InDelta(t, 1.5, NetworkLoad(p, loads), 1e-9)
	require.Less(t, Score(p, loads), 0.0)
	require.Equal(t, 4, PathLength(p))
	require.Zero(t, NetworkLoad(p, nil))
}

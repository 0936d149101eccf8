package telemetry

import (
	"context"
	"errors"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"sdnctl/internal/metrics"
	"sdnctl/internal/model"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m,
		goleak.IgnoreTopFunction("github.com/patrickmn/go-cache.(*janitor).Run"),
	)
}

func TestDecode(t *testing.T) {
	t.Parallel()

	r, err := Decode([]byte("switch=s1 load=0.25 packets=40 public=1.2.3.4:9"))
	require.NoError(t, err)
	require.Equal(t, "s1", r.SwitchID)
	require.True(t, r.HasLoad)
	require.InDelta(t, 0.25, r.Load, 1e-9)
	require.Equal(t, 40, r.Packets)
	require.Equal(t, "1.2.3.4:9", r.Public)

	r, err = Decode([]byte("  link up on port 3 "))
	require.NoError(t, err)
	require.False(t, r.HasLoad)
	require.Equal(t, "link up on port 3", r.Text)

	var perr *model.ProtocolError
	_, err = Decode([]byte{0xff, 0xfe})
	require.True(t, errors.As(err, &perr))
	_, err = Decode([]byte("switch=s1 load=abc"))
	require.True(t, errors.As(err, &perr))
	_, err = Decode([]byte("load=0.5"))
	require.True(t, errors.As(err, &perr))
}

func TestDecode_RejectsNonFiniteLoad(t *testing.T) {
	t.Parallel()

	for _, v := range []string{"NaN", "nan", "+Inf", "inf", "-Inf", "-0.1"} {
		_, err := Decode([]byte("switch=s1 load=" + v))
		var perr *model.ProtocolError
		require.Truef(t, errors.As(err, &perr), "load=%s", v)
		require.Equal(t, "load", perr.Field)
	}
}

func TestEncode_RoundTrip(t *testing.T) {
	t.Parallel()

	r, err := Decode([]byte(Encode(Report{SwitchID: "s2", Load: 0.5, Packets: 3, Public: "203.0.113.7:4000", NAT: "symmetric"})))
	require.NoError(t, err)
	require.Equal(t, "s2", r.SwitchID)
	require.Equal(t, "203.0.113.7:4000", r.Public)
	require.Equal(t, "symmetric", r.NAT)
	require.InDelta(t, 0.5, r.Load, 1e-9)
	require.Equal(t, 3, r.Packets)
}

func TestLoadTable_Expires(t *testing.T) {
	t.Parallel()

	loads := NewLoadTable(50 * time.Millisecond)
	loads.Set("s1", 0.4)
	v, ok := loads.Load("s1")
	require.True(t, ok)
	require.Equal(t, 0.4, v)
	require.Equal(t, map[string]float64{"s1": 0.4}, loads.Snapshot())

	require.Eventually(t, func() bool {
		_, ok := loads.Load("s1")
		return !ok
	}, time.Second, 10*time.Millisecond)
}

func TestListener_IngestsLoadReports(t *testing.T) {
	t.Parallel()

	samples := filepath.Join(t.TempDir(), "loads.csv")
	l, err := Listen("127.0.0.1:0", nil, WithSampleLog(samples))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- l.Run(ctx) }()

	conn, err := net.Dial("udp", l.LocalAddr())
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool {
		_, _ = conn.Write([]byte("switch=s1 load=0.3 packets=9"))
		v, ok := l.Loads().Load("s1")
		return ok && v == 0.3
	}, 2*time.Second, 20*time.Millisecond)

	_, _ = conn.Write([]byte{0xff})
	_, _ = conn.Write([]byte("hello from s1"))
	require.Eventually(t, func() bool {
		for _, msg := range l.Messages() {
			if msg == "hello from s1" {
				return true
			}
		}
		return false
	}, 2*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-errCh:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("listener did not stop on cancel")
	}

	_, err = os.Stat(samples)
	require.NoError(t, err)
	items, err := metrics.ReadCSV(samples)
	require.NoError(t, err)
	require.NotEmpty(t, items)
	require.Equal(t, "s1", items[0].SwitchID)
}

func TestListen_BindFailureIsListenerFault(t *testing.T) {
	t.Parallel()

	first, err := Listen("127.0.0.1:0", nil)
	require.NoError(t, err)
	defer first.Close()

	_, err = Listen(first.LocalAddr(), nil)
	var fault *model.ListenerFault
	require.True(t, errors.As(err, &fault), "err=%v", err)
}

func TestListener_CloseIsIdempotent(t *testing.T) {
	t.Parallel()

	l, err := Listen("127.0.0.1:0", nil)
	require.NoError(t, err)
	require.NoError(t, l.Close())
	require.NoError(t, l.Close())
	require.NoError(t, l.Run(context.Background()))
}

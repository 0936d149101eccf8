// Package telemetry receives switch status datagrams and exposes the load
// values they carry to the energy scorer.
package telemetry

import (
	"context"
	"errors"
	"net"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	log "github.com/sirupsen/logrus"

	"sdnctl/internal/metrics"
	"sdnctl/internal/model"
)

var datagramsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "sdnctl_telemetry_datagrams_total",
	Help: "Status datagrams received by the update listener.",
}, []string{"result"})

// Listener is the controller's update listener. It is created bound by
// Listen and runs until its context is cancelled or the socket fails.
type Listener struct {
	conn  *net.UDPConn
	addr  string
	loads *LoadTable
	log   *log.Entry

	samplePath string
	sampleMu   sync.Mutex

	mu   sync.Mutex
	last map[string]string

	closeOnce sync.Once
}

// ListenerOption configures a Listener.
type ListenerOption func(l *Listener)

// WithSampleLog appends every load report to a CSV file.
func WithSampleLog(path string) ListenerOption {
	return func(l *Listener) {
		l.samplePath = path
	}
}

// WithListenerLogger overrides the default logger.
func WithListenerLogger(e *log.Entry) ListenerOption {
	return func(l *Listener) {
		if e != nil {
			l.log = e
		}
	}
}

// Listen binds the UDP address. A bind failure is returned as a
// *model.ListenerFault.
func Listen(addr string, loads *LoadTable, opts ...ListenerOption) (*Listener, error) {
	udpAddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return nil, &model.ListenerFault{Addr: addr, Err: err}
	}
	conn, err := net.ListenUDP("udp", udpAddr)
	if err != nil {
		return nil, &model.ListenerFault{Addr: addr, Err: err}
	}
	if loads == nil {
		loads = NewLoadTable(0)
	}

	l := &Listener{
		conn:  conn,
		addr:  conn.LocalAddr().String(),
		loads: loads,
		last:  make(map[string]string),
	}
	l.log = log.WithField("listener", l.addr)
	for _, o := range opts {
		o(l)
	}
	return l, nil
}

// LocalAddr returns the bound address.
func (l *Listener) LocalAddr() string {
	if l == nil {
		return ""
	}
	return l.addr
}

// Loads returns the table fed by this listener.
func (l *Listener) Loads() *LoadTable { return l.loads }

// Close releases the socket. It is safe to call more than once.
func (l *Listener) Close() error {
	if l == nil || l.conn == nil {
		return nil
	}
	var err error
	l.closeOnce.Do(func() {
		err = l.conn.Close()
	})
	return err
}

// Messages returns the last text received from each sender.
func (l *Listener) Messages() map[string]string {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make(map[string]string, len(l.last))
	for k, v := range l.last {
		out[k] = v
	}
	return out
}

// Run receives datagrams until ctx is done (returns nil) or the socket
// fails (returns a *model.ListenerFault). The listener is closed on return
// and is not restarted.
func (l *Listener) Run(ctx context.Context) error {
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			_ = l.Close()
		case <-done:
		}
	}()
	defer l.Close()

	l.log.Info("update listener started")
	buf := make([]byte, 64*1024)
	for {
		n, from, err := l.conn.ReadFromUDP(buf)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				l.log.Info("update listener stopped")
				return nil
			}
			return &model.ListenerFault{Addr: l.addr, Err: err}
		}
		l.handle(from.String(), buf[:n])
	}
}

func (l *Listener) handle(sender string, b []byte) {
	entry := l.log.WithField("sender", sender)
	r, err := Decode(b)
	if err != nil {
		datagramsTotal.WithLabelValues("rejected").Inc()
		entry.WithError(err).Warn("dropping status message")
		return
	}
	datagramsTotal.WithLabelValues("accepted").Inc()

	l.mu.Lock()
	l.last[sender] = r.Text
	l.mu.Unlock()

	if !r.HasLoad {
		entry.Infof("status: %s", r.Text)
		return
	}
	l.loads.Set(r.SwitchID, r.Load)
	entry.WithFields(log.Fields{"switch": r.SwitchID, "load": r.Load}).Debug("load report")

	if l.samplePath == "" {
		return
	}
	sample := model.LoadSample{
		Timestamp: time.Now().UTC(),
		SwitchID:  r.SwitchID,
		Load:      r.Load,
		Packets:   r.Packets,
		Sender:    sender,
	}
	l.sampleMu.Lock()
	defer l.sampleMu.Unlock()
	if err := metrics.AppendCSV(l.samplePath, []model.LoadSample{sample}); err != nil {
		entry.WithError(err).Warn("append load sample failed")
	}
}

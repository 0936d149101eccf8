// Package host implements an end device: it sends frames to its uplink
// switch and buffers what it receives.
package host

import (
	"context"
	"net"
	"sync"

	log "github.com/sirupsen/logrus"

	"sdnctl/internal/dataplane"
	"sdnctl/internal/model"
)

// Message is one received packet.
type Message struct {
	Src  model.MAC
	Dst  model.MAC
	Data []byte
}

// Host is a device attached to one switch.
type Host struct {
	name   string
	mac    model.MAC
	uplink string
	port   *dataplane.Port
	log    *log.Entry

	mu       sync.Mutex
	received []Message
}

// Listen binds the host's data address and starts receiving. A zero mac is
// replaced with a generated one. uplink is the data address of the switch
// the host is attached to.
func Listen(name string, mac model.MAC, addr, uplink string) (*Host, error) {
	if mac.IsZero() {
		var err error
		if mac, err = model.GenerateMAC(); err != nil {
			return nil, err
		}
	}

	port, err := dataplane.Listen(addr)
	if err != nil {
		return nil, err
	}
	h := &Host{
		name:   name,
		mac:    mac,
		uplink: uplink,
		port:   port,
		log:    log.WithFields(log.Fields{"host": name, "mac": mac.String()}),
	}
	port.Start(h.receive)
	return h, nil
}

// Name returns the host name.
func (h *Host) Name() string { return h.name }

// MAC returns the host's address.
func (h *Host) MAC() model.MAC { return h.mac }

// LocalAddr returns the bound data address.
func (h *Host) LocalAddr() string { return h.port.LocalAddr() }

// Close stops receiving.
func (h *Host) Close() error { return h.port.Close() }

// Send builds a packet from this host to dst and hands it to the uplink.
func (h *Host) Send(ctx context.Context, dst model.MAC, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p, err := model.NewPacket(h.mac, dst, data)
	if err != nil {
		return err
	}
	if err := h.port.SendTo(h.uplink, p); err != nil {
		return err
	}
	h.log.WithField("dst", dst.String()).Debugf("sent %d bytes", len(data))
	return nil
}

// Received returns a copy of everything received so far.
func (h *Host) Received() []Message {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]Message, 0, len(h.received))
	for _, m := range h.received {
		m.Data = append([]byte(nil), m.Data...)
		out = append(out, m)
	}
	return out
}

func (h *Host) receive(from *net.UDPAddr, p model.Packet) {
	msg := Message{Src: p.Src(), Dst: p.Dst(), Data: p.Payload()}
	h.mu.Lock()
	h.received = append(h.received, msg)
	h.mu.Unlock()

	entry := h.log.WithFields(log.Fields{"src": msg.Src.String(), "from": from.String()})
	if msg.Dst != h.mac {
		entry.Debug("received frame for another device")
		return
	}
	entry.Infof("received: %s", msg.Data)
}

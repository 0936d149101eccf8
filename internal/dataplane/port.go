// Package dataplane carries encoded frames between switches and hosts over
// UDP. One socket per device serves both frames and STUN discovery.
package dataplane

import (
	"fmt"
	"io"
	"net"
	"sync"

	"github.com/pion/stun/v3"
	log "github.com/sirupsen/logrus"

	"sdnctl/internal/frame"
	"sdnctl/internal/model"
)

// Handler is called for every decoded frame, sequentially from the read
// loop. It must not call Close on the port that invoked it.
type Handler func(from *net.UDPAddr, p model.Packet)

// Port is a bound data-plane socket.
type Port struct {
	conn *net.UDPConn
	log  *log.Entry

	mu         sync.Mutex
	stunWriter io.Writer
	done       chan struct{}

	closeOnce sync.Once
}

// Listen binds addr. Frames are not read until Start. A bind failure is
// returned as a *model.ListenerFault.
func Listen(addr string) (*Port, error) {
	udpAddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return nil, &model.ListenerFault{Addr: addr, Err: err}
	}

	conn, err := net.ListenUDP("udp", udpAddr)
	if err != nil {
		return nil, &model.ListenerFault{Addr: addr, Err: err}
	}

	return &Port{
		conn: conn,
		log:  log.WithField("port", conn.LocalAddr().String()),
	}, nil
}

// Start runs the read loop, passing decoded frames to handler. Only the
// first call has an effect.
func (p *Port) Start(handler Handler) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.done != nil {
		return
	}
	p.done = make(chan struct{})
	go p.readLoop(handler, p.done)
}

// LocalAddr returns the bound address.
func (p *Port) LocalAddr() string {
	if p == nil || p.conn == nil {
		return ""
	}
	return p.conn.LocalAddr().String()
}

// Close stops the read loop and waits for it to exit. Safe to call more
// than once.
func (p *Port) Close() error {
	if p == nil || p.conn == nil {
		return nil
	}
	var err error
	p.closeOnce.Do(func() {
		err = p.conn.Close()
		p.mu.Lock()
		done := p.done
		p.mu.Unlock()
		if done != nil {
			<-done
		}
	})
	return err
}

// SendTo encodes a packet and writes it to addr.
func (p *Port) SendTo(addr string, pkt model.Packet) error {
	b, err := frame.Encode(pkt)
	if err != nil {
		return err
	}
	udpAddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return &model.TransportError{Target: addr, Err: err}
	}
	if _, err := p.conn.WriteToUDP(b, udpAddr); err != nil {
		return &model.TransportError{Target: addr, Err: err}
	}
	return nil
}

func (p *Port) readLoop(handler Handler, done chan struct{}) {
	defer close(done)
	buf := make([]byte, 2048)
	for {
		n, from, err := p.conn.ReadFromUDP(buf)
		if err != nil {
			return
		}
		if stun.IsMessage(buf[:n]) {
			p.mu.Lock()
			w := p.stunWriter
			p.mu.Unlock()
			if w != nil {
				_, _ = w.Write(buf[:n])
			}
			continue
		}

		pkt, err := frame.Decode(buf[:n])
		if err != nil {
			p.log.WithError(err).WithField("from", from.String()).Debug("dropping frame")
			continue
		}
		if handler != nil {
			handler(from, pkt)
		}
	}
}

func (p *Port) attachSTUN(w io.Writer) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.stunWriter != nil {
		return fmt.Errorf("stun probe already in progress")
	}
	p.stunWriter = w
	return nil
}

func (p *Port) detachSTUN() {
	p.mu.Lock()
	p.stunWriter = nil
	p.mu.Unlock()
}

package dataplane

import (
	"context"
	"fmt"
	"net"
	"strconv"

	"sdnctl/internal/fwd"
	"sdnctl/internal/model"
)

// Resolver maps forwarding outputs to UDP addresses.
type Resolver struct {
	// Ports maps named outputs, and numbered flow-rule ports, to addresses.
	Ports map[string]string
	// Devices maps device MACs to their data address.
	Devices map[model.MAC]string
}

// Resolve returns the address an output refers to. Lookup order is the port
// table, then the device directory, then a bare local port number.
func (r Resolver) Resolve(out fwd.Output) (string, error) {
	name := string(out)
	if addr, ok := r.Ports[name]; ok {
		return addr, nil
	}
	if mac, err := model.ParseMAC(name); err == nil {
		if addr, ok := r.Devices[mac]; ok {
			return addr, nil
		}
	}
	if n, err := strconv.Atoi(name); err == nil && n > 0 && n < 65536 {
		return net.JoinHostPort("127.0.0.1", strconv.Itoa(n)), nil
	}
	return "", fmt.Errorf("no address for output %q", name)
}

// Sender delivers packets through a Port. It implements fwd.Sender.
type Sender struct {
	Port     *Port
	Resolver Resolver
}

func (s Sender) Send(ctx context.Context, out fwd.Output, p model.Packet) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	addr, err := s.Resolver.Resolve(out)
	if err != nil {
		return &model.TransportError{Target: string(out), Err: err}
	}
	return s.Port.SendTo(addr, p)
}

package dataplane

import (
	"context"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/pion/stun/v3"
)

const (
	NATTypeUnknown          = "unknown"
	NATTypeSymmetric        = "symmetric"
	NATTypeConeOrRestricted = "cone_or_restricted"
)

// Discover asks each STUN server for the public mapping of this port and
// classifies the NAT from the answers. The first mapped address is returned.
func (p *Port) Discover(ctx context.Context, servers []string, timeout time.Duration) (string, string, error) {
	if len(servers) == 0 {
		return "", NATTypeUnknown, fmt.Errorf("no STUN servers provided")
	}

	results := make([]string, 0, len(servers))
	var lastErr error
	for _, server := range servers {
		addr, err := p.ProbeSTUN(ctx, server, timeout)
		if err != nil {
			lastErr = err
			continue
		}
		results = append(results, addr)
	}
	if len(results) == 0 {
		if lastErr == nil {
			lastErr = fmt.Errorf("stun probe failed")
		}
		return "", NATTypeUnknown, lastErr
	}
	return results[0], Classify(results), nil
}

// Classify infers NAT type by comparing mapped addresses from multiple servers.
func Classify(addrs []string) string {
	if len(addrs) < 2 {
		return NATTypeUnknown
	}
	for _, addr := range addrs[1:] {
		if addr != addrs[0] {
			return NATTypeSymmetric
		}
	}
	return NATTypeConeOrRestricted
}

// ProbeSTUN sends a binding request to server from this port's socket.
// Responses arrive through the read loop, so the port must be started.
func (p *Port) ProbeSTUN(ctx context.Context, server string, timeout time.Duration) (string, error) {
	if p == nil || p.conn == nil {
		return "", fmt.Errorf("port not initialized")
	}

	server = strings.TrimPrefix(strings.TrimSpace(server), "stun:")
	if server == "" {
		return "", fmt.Errorf("empty STUN server")
	}
	stunAddr, err := net.ResolveUDPAddr("udp", server)
	if err != nil {
		return "", err
	}

	// The client talks to one end of a pipe; the read loop feeds responses
	// into it and the goroutine below forwards requests to the server.
	stunL, stunR := net.Pipe()
	client, err := stun.NewClient(stunR, stun.WithNoConnClose())
	if err != nil {
		_ = stunL.Close()
		_ = stunR.Close()
		return "", err
	}
	defer func() {
		_ = client.Close()
		_ = stunL.Close()
		_ = stunR.Close()
	}()

	if err := p.attachSTUN(stunL); err != nil {
		return "", err
	}
	defer p.detachSTUN()

	writeErr := make(chan error, 1)
	go func() {
		buf := make([]byte, 1500)
		for {
			n, err := stunL.Read(buf)
			if err != nil {
				writeErr <- err
				return
			}
			if _, err := p.conn.WriteToUDP(buf[:n], stunAddr); err != nil {
				writeErr <- err
				return
			}
		}
	}()

	msg := stun.MustBuild(stun.TransactionID, stun.BindingRequest)
	var xorAddr stun.XORMappedAddress
	done := make(chan error, 1)
	go func() {
		done <- client.Do(msg, func(res stun.Event) {
			if res.Error != nil {
				return
			}
			_ = xorAddr.GetFrom(res.Message)
		})
	}()

	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	select {
	case err := <-done:
		if err != nil {
			return "", err
		}
		if xorAddr.IP == nil {
			return "", fmt.Errorf("stun response missing mapped address")
		}
		return xorAddr.String(), nil
	case err := <-writeErr:
		return "", err
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

package model

import (
	"crypto/rand"
	"fmt"
	"io"
	"net"
	"strings"
)

// MAC is a 6-octet link-layer address. The zero value means "absent".
type MAC [6]byte

// ParseMAC parses a colon-separated hex address such as "00:00:00:0a:1b:2c".
// Other notations accepted by net.ParseMAC (dashes, dots, EUI-64) are rejected.
func ParseMAC(s string) (MAC, error) {
	s = strings.TrimSpace(s)
	if strings.Count(s, ":") != 5 {
		return MAC{}, &ProtocolError{Field: "mac", Reason: fmt.Sprintf("%q is not colon-hex", s)}
	}
	hw, err := net.ParseMAC(s)
	if err != nil || len(hw) != 6 {
		return MAC{}, &ProtocolError{Field: "mac", Reason: fmt.Sprintf("invalid address %q", s)}
	}
	var m MAC
	copy(m[:], hw)
	return m, nil
}

// MustParseMAC is ParseMAC for constants; it panics on bad input.
func MustParseMAC(s string) MAC {
	m, err := ParseMAC(s)
	if err != nil {
		panic(err)
	}
	return m
}

// GenerateMAC returns a random non-zero address in the 00:00:00:xx:xx:xx
// range.
func GenerateMAC() (MAC, error) {
	return generateMAC(rand.Reader)
}

func generateMAC(r io.Reader) (MAC, error) {
	for {
		var m MAC
		if _, err := io.ReadFull(r, m[3:]); err != nil {
			return MAC{}, fmt.Errorf("mac: %w", err)
		}
		if !m.IsZero() {
			return m, nil
		}
	}
}

// IsZero reports whether the address is unset.
func (m MAC) IsZero() bool {
	return m == MAC{}
}

// HardwareAddr converts to the net package representation.
func (m MAC) HardwareAddr() net.HardwareAddr {
	hw := make(net.HardwareAddr, len(m))
	copy(hw, m[:])
	return hw
}

func (m MAC) String() string {
	return net.HardwareAddr(m[:]).String()
}

// MarshalText encodes the address for JSON and YAML.
func (m MAC) MarshalText() ([]byte, error) {
	if m.IsZero() {
		return []byte{}, nil
	}
	return []byte(m.String()), nil
}

// UnmarshalText accepts an empty string as the zero address.
func (m *MAC) UnmarshalText(b []byte) error {
	if len(b) == 0 {
		*m = MAC{}
		return nil
	}
	parsed, err := ParseMAC(string(b))
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}

// Package frame encodes packets as Ethernet II frames for the UDP data plane.
package frame

import (
	"encoding/binary"
	"fmt"

	"github.com/mdlayher/ethernet"

	"sdnctl/internal/model"
)

// EtherType marks frames carrying device messages (IEEE local experimental).
const EtherType ethernet.EtherType = 0x88b5

// MaxPayload is the largest message that fits a standard frame after the
// length prefix.
const MaxPayload = 1500 - 2

// Encode marshals p into an Ethernet frame. The payload is length-prefixed
// because short frames are zero padded on the wire.
func Encode(p model.Packet) ([]byte, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	data := p.Payload()
	if len(data) > MaxPayload {
		return nil, &model.ProtocolError{Field: "msg_data", Reason: fmt.Sprintf("%d bytes exceeds %d", len(data), MaxPayload)}
	}
	body := make([]byte, 2+len(data))
	binary.BigEndian.PutUint16(body, uint16(len(data)))
	copy(body[2:], data)

	f := &ethernet.Frame{
		Destination: p.Dst().HardwareAddr(),
		Source:      p.Src().HardwareAddr(),
		EtherType:   EtherType,
		Payload:     body,
	}
	return f.MarshalBinary()
}

// Decode parses a frame produced by Encode.
func Decode(b []byte) (model.Packet, error) {
	var f ethernet.Frame
	if err := f.UnmarshalBinary(b); err != nil {
		return model.Packet{}, &model.ProtocolError{Field: "frame", Reason: err.Error()}
	}
	if f.EtherType != EtherType {
		return model.Packet{}, &model.ProtocolError{Field: "ethertype", Reason: fmt.Sprintf("unexpected %#04x", uint16(f.EtherType))}
	}
	if len(f.Payload) < 2 {
		return model.Packet{}, &model.ProtocolError{Field: "msg_data", Reason: "truncated length"}
	}
	n := int(binary.BigEndian.Uint16(f.Payload))
	if n > len(f.Payload)-2 {
		return model.Packet{}, &model.ProtocolError{Field: "msg_data", Reason: fmt.Sprintf("length %d exceeds frame", n)}
	}

	var src, dst model.MAC
	copy(src[:], f.Source)
	copy(dst[:], f.Destination)
	return model.NewPacket(src, dst, f.Payload[2:2+n])
}

package model

// Packet is a single device-to-device message. Fields are unexported so a
// packet cannot be changed after NewPacket.
type Packet struct {
	src     MAC
	dst     MAC
	payload []byte
}

// NewPacket validates addresses and copies the payload.
func NewPacket(src, dst MAC, payload []byte) (Packet, error) {
	if src.IsZero() {
		return Packet{}, &ProtocolError{Field: "src_mac", Reason: "missing"}
	}
	if dst.IsZero() {
		return Packet{}, &ProtocolError{Field: "dst_mac", Reason: "missing"}
	}
	p := Packet{src: src, dst: dst}
	if len(payload) > 0 {
		p.payload = append([]byte(nil), payload...)
	}
	return p, nil
}

func (p Packet) Src() MAC { return p.src }

func (p Packet) Dst() MAC { return p.dst }

// Payload returns a copy of the message data.
func (p Packet) Payload() []byte {
	return append([]byte(nil), p.payload...)
}

// Validate reports a ProtocolError for packets built without NewPacket.
func (p Packet) Validate() error {
	if p.src.IsZero() {
		return &ProtocolError{Field: "src_mac", Reason: "missing"}
	}
	if p.dst.IsZero() {
		return &ProtocolError{Field: "dst_mac", Reason: "missing"}
	}
	return nil
}

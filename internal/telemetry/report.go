package telemetry

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"unicode/utf8"

	"sdnctl/internal/model"
)

// Report is the structured view of a status datagram. Fields a message does
// not carry are left zero; HasLoad tells whether a load term was present.
type Report struct {
	SwitchID string
	Load     float64
	HasLoad  bool
	Packets  int
	Public   string
	NAT      string
	Text     string
}

// Decode validates a datagram as UTF-8 text and extracts the key=value
// tokens it recognises. Unrecognised text is kept in Text only.
func Decode(b []byte) (Report, error) {
	if !utf8.Valid(b) {
		return Report{}, &model.ProtocolError{Field: "datagram", Reason: "not valid UTF-8"}
	}
	text := strings.TrimSpace(string(b))
	r := Report{Text: text}
	for _, tok := range strings.Fields(text) {
		key, value, ok := strings.Cut(tok, "=")
		if !ok {
			continue
		}
		switch key {
		case "switch":
			r.SwitchID = value
		case "load":
			v, err := strconv.ParseFloat(value, 64)
			if err != nil || v < 0 || math.IsNaN(v) || math.IsInf(v, 0) {
				return r, &model.ProtocolError{Field: "load", Reason: fmt.Sprintf("invalid value %q", value)}
			}
			r.Load = v
			r.HasLoad = true
		case "packets":
			if n, err := strconv.Atoi(value); err == nil {
				r.Packets = n
			}
		case "public":
			r.Public = value
		case "nat":
			r.NAT = value
		}
	}
	if r.HasLoad && r.SwitchID == "" {
		return r, &model.ProtocolError{Field: "switch", Reason: "load reported without switch id"}
	}
	return r, nil
}

// Encode renders a report in the form Decode understands.
func Encode(r Report) string {
	var b strings.Builder
	fmt.Fprintf(&b, "switch=%s load=%.4f packets=%d", r.SwitchID, r.Load, r.Packets)
	if r.Public != "" {
		b.WriteString(" public=")
		b.WriteString(r.Public)
	}
	if r.NAT != "" {
		b.WriteString(" nat=")
		b.WriteString(r.NAT)
	}
	return b.String()
}

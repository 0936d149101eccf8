package model

// Kind tags the device variant.
type Kind int

const (
	KindHost Kind = iota + 1
	KindSwitch
)

func (k Kind) String() string {
	switch k {
	case KindHost:
		return "host"
	case KindSwitch:
		return "switch"
	default:
		return "unknown"
	}
}

// Device is implemented only by *Host and *Switch.
type Device interface {
	ID() string
	MAC() MAC
	// EgressID names the switch whose flow-rule endpoint serves this device.
	EgressID() string
	Kind() Kind
	device()
}

// Host is an end device attached to one switch.
type Host struct {
	Name   string
	Addr   MAC
	Switch string
}

func (h *Host) ID() string       { return h.Name }
func (h *Host) MAC() MAC         { return h.Addr }
func (h *Host) EgressID() string { return h.Switch }
func (h *Host) Kind() Kind       { return KindHost }
func (*Host) device()            {}

// Switch is a forwarding element addressed by its own id.
type Switch struct {
	Name string
	Addr MAC
}

func (s *Switch) ID() string       { return s.Name }
func (s *Switch) MAC() MAC         { return s.Addr }
func (s *Switch) EgressID() string { return s.Name }
func (s *Switch) Kind() Kind       { return KindSwitch }
func (*Switch) device()            {}

// TrafficType classifies a flow for priority lookup.
type TrafficType string

const (
	TrafficLighting    TrafficType = "lighting"
	TrafficTemperature TrafficType = "temperature"
	TrafficLockControl TrafficType = "lock_control"
)

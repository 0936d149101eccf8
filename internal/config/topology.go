package config

import (
	"fmt"

	"sdnctl/internal/model"
)

// Topology lists every device of the lab network.
type Topology struct {
	Switches []SwitchNode `yaml:"switches"`
	Hosts    []HostNode   `yaml:"hosts"`
}

// SwitchNode describes one switch.
type SwitchNode struct {
	ID  string `yaml:"id"`
	MAC string `yaml:"mac"`
	// API is the base URL of the switch's flow-rule endpoint.
	API      string `yaml:"api"`
	DataAddr string `yaml:"data_addr"`
}

// HostNode describes one host and the switch it is attached to.
type HostNode struct {
	Name   string `yaml:"name"`
	MAC    string `yaml:"mac"`
	Switch string `yaml:"switch"`
	Addr   string `yaml:"addr"`
}

// Switch finds a switch by id.
func (t Topology) Switch(id string) (SwitchNode, bool) {
	for _, s := range t.Switches {
		if s.ID == id {
			return s, true
		}
	}
	return SwitchNode{}, false
}

// Host finds a host by name.
func (t Topology) Host(name string) (HostNode, bool) {
	for _, h := range t.Hosts {
		if h.Name == name {
			return h, true
		}
	}
	return HostNode{}, false
}

// HostNames returns host names in configuration order.
func (t Topology) HostNames() []string {
	names := make([]string, 0, len(t.Hosts))
	for _, h := range t.Hosts {
		names = append(names, h.Name)
	}
	return names
}

// Validate checks ids, addresses and host attachments.
func (t Topology) Validate() error {
	seen := map[string]bool{}
	for _, s := range t.Switches {
		if s.ID == "" {
			return fmt.Errorf("topology.switches: id is required")
		}
		if seen[s.ID] {
			return fmt.Errorf("topology: duplicate device id %q", s.ID)
		}
		seen[s.ID] = true
		if _, err := model.ParseMAC(s.MAC); err != nil {
			return fmt.Errorf("topology.switches[%s].mac: %w", s.ID, err)
		}
	}
	for _, h := range t.Hosts {
		if h.Name == "" {
			return fmt.Errorf("topology.hosts: name is required")
		}
		if seen[h.Name] {
			return fmt.Errorf("topology: duplicate device id %q", h.Name)
		}
		seen[h.Name] = true
		if _, err := model.ParseMAC(h.MAC); err != nil {
			return fmt.Errorf("topology.hosts[%s].mac: %w", h.Name, err)
		}
		if _, ok := t.Switch(h.Switch); !ok {
			return fmt.Errorf("topology.hosts[%s]: unknown switch %q", h.Name, h.Switch)
		}
	}
	return nil
}

// Devices builds the device directory keyed by device id.
func (t Topology) Devices() (map[string]model.Device, error) {
	devices := make(map[string]model.Device, len(t.Switches)+len(t.Hosts))
	for _, s := range t.Switches {
		mac, err := model.ParseMAC(s.MAC)
		if err != nil {
			return nil, fmt.Errorf("switch %s: %w", s.ID, err)
		}
		devices[s.ID] = &model.Switch{Name: s.ID, Addr: mac}
	}
	for _, h := range t.Hosts {
		mac, err := model.ParseMAC(h.MAC)
		if err != nil {
			return nil, fmt.Errorf("host %s: %w", h.Name, err)
		}
		devices[h.Name] = &model.Host{Name: h.Name, Addr: mac, Switch: h.Switch}
	}
	return devices, nil
}

// DataAddrs maps every device MAC to its data-plane UDP address.
func (t Topology) DataAddrs() map[model.MAC]string {
	out := map[model.MAC]string{}
	for _, s := range t.Switches {
		if mac, err := model.ParseMAC(s.MAC); err == nil && s.DataAddr != "" {
			out[mac] = s.DataAddr
		}
	}
	for _, h := range t.Hosts {
		if mac, err := model.ParseMAC(h.MAC); err == nil && h.Addr != "" {
			out[mac] = h.Addr
		}
	}
	return out
}

// APIFor returns the flow-rule base URL of a switch, falling back to def.
func (t Topology) APIFor(switchID, def string) string {
	if s, ok := t.Switch(switchID); ok && s.API != "" {
		return s.API
	}
	return def
}

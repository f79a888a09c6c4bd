// Package profiles provides the built-in scan profiles for hostenum.
// A profile selects the TCP port scope, whether OS detection and default
// scripts run, nmap timing and how many UDP ports are probed.
package profiles

import (
	"fmt"
	"sort"
)

// Port scope values.
const (
	PortsFast = "fast"
	PortsAll  = "all"
)

// Timing templates accepted by nmap.
const (
	TimingParanoid   = "T0"
	TimingSneaky     = "T1"
	TimingPolite     = "T2"
	TimingNormal     = "T3"
	TimingAggressive = "T4"
	TimingInsane     = "T5"
)

const maxUDPTopPorts = 1000

// Profile describes how a host is scanned.
type Profile struct {
	Name        string `json:"name" yaml:"name"`
	Description string `json:"description" yaml:"description"`

	// PortScope is PortsFast (nmap -F) or PortsAll (nmap -p-)
	PortScope string `json:"port_scope" yaml:"port_scope"`

	OSDetection    bool   `json:"os_detection" yaml:"os_detection"`
	DefaultScripts bool   `json:"default_scripts" yaml:"default_scripts"`
	Timing         string `json:"timing" yaml:"timing"`

	// UDPTopPorts is the --top-ports count for the UDP stage; 0 skips it
	UDPTopPorts int `json:"udp_top_ports" yaml:"udp_top_ports"`
}

var builtIn = map[string]Profile{
	"quick": {
		Name:           "quick",
		Description:    "Top 100 TCP ports with service detection and OS detection",
		PortScope:      PortsFast,
		OSDetection:    true,
		DefaultScripts: true,
		Timing:         TimingAggressive,
	},
	"full": {
		Name:           "full",
		Description:    "All 65535 TCP ports with service detection and OS detection",
		PortScope:      PortsAll,
		OSDetection:    true,
		DefaultScripts: true,
		Timing:         TimingAggressive,
	},
	"thorough": {
		Name:           "thorough",
		Description:    "All TCP ports plus the top 100 UDP ports",
		PortScope:      PortsAll,
		OSDetection:    true,
		DefaultScripts: true,
		Timing:         TimingAggressive,
		UDPTopPorts:    100,
	},
}

// Get returns the named built-in profile.
func Get(name string) (Profile, error) {
	p, ok := builtIn[name]
	if !ok {
		return Profile{}, fmt.Errorf("unknown profile: %s", name)
	}
	return p, nil
}

// List returns the built-in profiles sorted by name.
func List() []Profile {
	out := make([]Profile, 0, len(builtIn))
	for _, p := range builtIn {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Names returns the built-in profile names sorted.
func Names() []string {
	var names []string
	for _, p := range List() {
		names = append(names, p.Name)
	}
	return names
}

// Validate validates a profile definition.
func (p Profile) Validate() error {
	if p.Name == "" {
		return fmt.Errorf("profile name is required")
	}

	if p.PortScope != PortsFast && p.PortScope != PortsAll {
		return fmt.Errorf("invalid port scope: %s", p.PortScope)
	}

	validTimings := map[string]bool{
		TimingParanoid:   true,
		TimingSneaky:     true,
		TimingPolite:     true,
		TimingNormal:     true,
		TimingAggressive: true,
		TimingInsane:     true,
	}

	if p.Timing != "" && !validTimings[p.Timing] {
		return fmt.Errorf("invalid timing: %s", p.Timing)
	}

	if p.UDPTopPorts < 0 || p.UDPTopPorts > maxUDPTopPorts {
		return fmt.Errorf("invalid UDP top ports: %d (must be 0-%d)", p.UDPTopPorts, maxUDPTopPorts)
	}

	return nil
}

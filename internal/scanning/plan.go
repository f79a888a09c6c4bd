package scanning

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/anstrom/hostenum/internal/config"
	"github.com/anstrom/hostenum/internal/model"
	"github.com/anstrom/hostenum/internal/profiles"
	"github.com/anstrom/hostenum/internal/tools"
)

// Stage names used in logs and step results.
const (
	StageGeneral     = "general"
	StageOSDetection = "os_detection"
	StageUDP         = "udp"
	StageSMB         = "smb"
	StageNetBIOS     = "netbios"
	StageLDAP        = "ldap"
	StageSNMP        = "snmp"
)

// smbclientTimeout bounds the smbclient fallback independently of the
// enum4linux budget.
const smbclientTimeout = 60 * time.Second

// Step is one enumeration stage. Commands are alternatives tried in order;
// the step ends at the first result Accept approves.
type Step struct {
	Name     string
	Commands []tools.Command
	Accept   func(out tools.Output, err error) bool
}

// Accepts reports whether a result ends the step.
func (s Step) Accepts(out tools.Output, err error) bool {
	if s.Accept == nil {
		return err == nil
	}
	return s.Accept(out, err)
}

// Planner builds the per-host command plan.
type Planner struct {
	profile        profiles.Profile
	ports          string
	tools          config.ToolsConfig
	timeouts       config.TimeoutsConfig
	windows        config.WindowsConfig
	snmp           config.SNMPConfig
	generalTimeout time.Duration
}

// NewPlanner validates the profile and the custom port list.
func NewPlanner(cfg *config.Config, profile profiles.Profile) (*Planner, error) {
	if err := profile.Validate(); err != nil {
		return nil, fmt.Errorf("invalid profile %q: %w", profile.Name, err)
	}
	ports := cfg.Enumeration.Ports
	if ports != "" {
		if err := ValidatePorts(ports); err != nil {
			return nil, err
		}
		ports = normalizePorts(ports)
	}

	return &Planner{
		profile:        profile,
		ports:          ports,
		tools:          cfg.Tools,
		timeouts:       cfg.Timeouts,
		windows:        cfg.Enumeration.Windows,
		snmp:           cfg.Enumeration.SNMP,
		generalTimeout: cfg.TimeoutForProfile(profile),
	}, nil
}

// Profile returns the profile the planner was built with.
func (p *Planner) Profile() profiles.Profile { return p.profile }

func (p *Planner) nmap(ip string, source model.Source, timeout time.Duration, args ...string) tools.Command {
	args = append(args, ip)
	return tools.Command{
		Tool:    "nmap",
		Binary:  p.tools.Nmap,
		Args:    args,
		Target:  ip,
		Timeout: timeout,
		Source:  source,
	}
}

func (p *Planner) timing(args []string) []string {
	if p.profile.Timing != "" {
		args = append(args, "-"+p.profile.Timing)
	}
	return args
}

// General returns the service and version TCP scan.
func (p *Planner) General(ip string) Step {
	args := []string{"-sV"}
	if p.profile.DefaultScripts {
		args = append(args, "-sC")
	}
	args = p.timing(args)
	args = append(args, "--open", "-Pn")

	switch {
	case p.ports != "":
		args = append(args, "-p", p.ports)
	case p.profile.PortScope == profiles.PortsAll:
		args = append(args, "-p-")
	default:
		args = append(args, "-F")
	}

	return Step{
		Name:     StageGeneral,
		Commands: []tools.Command{p.nmap(ip, model.SourceGeneral, p.generalTimeout, args...)},
	}
}

// OSDetection returns the OS fingerprinting scan, or false when the profile
// disables it.
func (p *Planner) OSDetection(ip string) (Step, bool) {
	if !p.profile.OSDetection {
		return Step{}, false
	}
	args := p.timing([]string{"-O", "--osscan-guess"})
	args = append(args, "-Pn")
	return Step{
		Name:     StageOSDetection,
		Commands: []tools.Command{p.nmap(ip, model.SourceOSDetection, p.timeouts.OSDetection, args...)},
	}, true
}

// UDP returns the top-ports UDP scan, or false when the profile skips UDP.
func (p *Planner) UDP(ip string) (Step, bool) {
	if p.profile.UDPTopPorts <= 0 {
		return Step{}, false
	}
	args := []string{"-sU", "--top-ports", strconv.Itoa(p.profile.UDPTopPorts)}
	args = p.timing(args)
	args = append(args, "-Pn")
	return Step{
		Name:     StageUDP,
		Commands: []tools.Command{p.nmap(ip, model.SourceUDP, p.timeouts.UDP, args...)},
	}, true
}

// WindowsEnabled reports whether Windows stages may run at all.
func (p *Planner) WindowsEnabled() bool { return p.windows.Enabled }

// SMB returns enum4linux with the smbclient share listing as fallback.
func (p *Planner) SMB(ip string) Step {
	return Step{
		Name: StageSMB,
		Commands: []tools.Command{
			{
				Tool:    "enum4linux",
				Binary:  p.tools.Enum4linux,
				Args:    []string{"-a", ip},
				Target:  ip,
				Timeout: p.timeouts.SMB,
				Source:  model.SourceSMB,
			},
			{
				Tool:    "smbclient",
				Binary:  p.tools.Smbclient,
				Args:    []string{"-L", "//" + ip, "-N"},
				Target:  ip,
				Timeout: minDuration(p.timeouts.SMB, smbclientTimeout),
				Source:  model.SourceSMB,
			},
		},
		// enum4linux exits non-zero on partial results; a domain line is
		// still worth keeping.
		Accept: func(out tools.Output, err error) bool {
			if err == nil {
				return true
			}
			return strings.Contains(out.Text, "DOMAIN") || strings.Contains(out.Text, "WORKGROUP")
		},
	}
}

// NetBIOS returns nmblookup with nbtscan as fallback.
func (p *Planner) NetBIOS(ip string) Step {
	return Step{
		Name: StageNetBIOS,
		Commands: []tools.Command{
			{
				Tool:    "nmblookup",
				Binary:  p.tools.Nmblookup,
				Args:    []string{"-A", ip},
				Target:  ip,
				Timeout: p.timeouts.NetBIOS,
				Source:  model.SourceNetBIOS,
			},
			{
				Tool:    "nbtscan",
				Binary:  p.tools.Nbtscan,
				Args:    []string{ip},
				Target:  ip,
				Timeout: p.timeouts.NetBIOS,
				Source:  model.SourceNetBIOS,
			},
		},
	}
}

// LDAP returns a root DSE query, or false when no configured LDAP port is
// open on rec.
func (p *Planner) LDAP(ip string, rec *model.HostRecord) (Step, bool) {
	port, ok := p.openLDAPPort(rec)
	if !ok {
		return Step{}, false
	}
	return Step{
		Name: StageLDAP,
		Commands: []tools.Command{{
			Tool:    "ldapsearch",
			Binary:  p.tools.Ldapsearch,
			Args:    []string{"-x", "-H", ldapURL(ip, port), "-s", "base", "namingContexts", "defaultNamingContext"},
			Target:  ip,
			Timeout: p.timeouts.LDAP,
			Source:  model.SourceLDAP,
		}},
	}, true
}

func (p *Planner) openLDAPPort(rec *model.HostRecord) (int, bool) {
	for _, port := range p.windows.LDAPPorts {
		if e, ok := rec.Service(port, model.ProtocolTCP); ok && e.State == model.StateOpen {
			return port, true
		}
	}
	return 0, false
}

func ldapURL(ip string, port int) string {
	switch port {
	case 389:
		return "ldap://" + ip
	case 636:
		return "ldaps://" + ip
	case 3269:
		return fmt.Sprintf("ldaps://%s:%d", ip, port)
	default:
		return fmt.Sprintf("ldap://%s:%d", ip, port)
	}
}

// WindowsSteps returns the Windows stages applicable to rec in run order.
func (p *Planner) WindowsSteps(ip string, rec *model.HostRecord) []Step {
	if !p.windows.Enabled {
		return nil
	}
	steps := []Step{p.SMB(ip), p.NetBIOS(ip)}
	if ldap, ok := p.LDAP(ip, rec); ok {
		steps = append(steps, ldap)
	}
	return steps
}

// SNMP returns the in-process system group probe, or false when SNMP is
// disabled or the SNMP port was not seen on rec.
func (p *Planner) SNMP(ip string, rec *model.HostRecord) (Step, bool) {
	if !p.snmp.Enabled {
		return Step{}, false
	}
	e, ok := rec.Service(p.snmp.Port, model.ProtocolUDP)
	if !ok || (e.State != model.StateOpen && e.State != model.StateFiltered) {
		return Step{}, false
	}

	prober := NewSNMPProber(p.snmp)
	return Step{
		Name:     StageSNMP,
		Commands: []tools.Command{prober.Command(ip)},
	}, true
}

func minDuration(a, b time.Duration) time.Duration {
	if a < b {
		return a
	}
	return b
}

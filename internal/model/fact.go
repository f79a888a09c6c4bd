package model

import (
	"fmt"
	"strings"
)

// FactKind identifies what a Fact describes.
type FactKind string

const (
	KindOpenPort       FactKind = "OPEN_PORT"
	KindService        FactKind = "SERVICE"
	KindOSFamily       FactKind = "OS_FAMILY"
	KindOSVersionGuess FactKind = "OS_VERSION_GUESS"
	KindSMBShare       FactKind = "SMB_SHARE"
	KindSMBUser        FactKind = "SMB_USER"
	KindNetBIOSName    FactKind = "NETBIOS_NAME"
	KindDomain         FactKind = "DOMAIN"
	KindMACAddress     FactKind = "MAC_ADDRESS"
	KindLDAPContext    FactKind = "LDAP_CONTEXT"
	KindVulnHint       FactKind = "VULN_HINT"
	KindHostname       FactKind = "HOSTNAME"
	KindMarker         FactKind = "MARKER"
)

// AllKinds lists every fact kind in a stable order.
var AllKinds = []FactKind{
	KindOpenPort, KindService, KindOSFamily, KindOSVersionGuess,
	KindSMBShare, KindSMBUser, KindNetBIOSName, KindDomain,
	KindMACAddress, KindLDAPContext, KindVulnHint, KindHostname, KindMarker,
}

// IsPortKind reports whether facts of this kind carry a PortService payload.
func (k FactKind) IsPortKind() bool {
	return k == KindOpenPort || k == KindService
}

// Confidence is the trust tier of a fact.
type Confidence string

const (
	ConfidenceInferred Confidence = "INFERRED"
	ConfidenceVerified Confidence = "VERIFIED"
)

// AllConfidences lists every confidence tier, strongest first.
var AllConfidences = []Confidence{ConfidenceVerified, ConfidenceInferred}

// Rank orders confidence tiers. Unknown tiers rank below INFERRED.
func (c Confidence) Rank() int {
	switch c {
	case ConfidenceVerified:
		return 2
	case ConfidenceInferred:
		return 1
	default:
		return 0
	}
}

// Protocol is the transport protocol of a port.
type Protocol string

const (
	ProtocolTCP Protocol = "tcp"
	ProtocolUDP Protocol = "udp"
)

// ParseProtocol normalizes a protocol token such as "TCP" or "udp".
func ParseProtocol(s string) (Protocol, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "tcp":
		return ProtocolTCP, true
	case "udp":
		return ProtocolUDP, true
	}
	return "", false
}

// PortState is the reachability of a port as reported by a scanner.
type PortState string

const (
	StateOpen     PortState = "open"
	StateFiltered PortState = "filtered"
	StateClosed   PortState = "closed"
)

// PortService is the payload of OPEN_PORT and SERVICE facts.
type PortService struct {
	Port           int       `json:"port" yaml:"port"`
	Protocol       Protocol  `json:"protocol" yaml:"protocol"`
	State          PortState `json:"state" yaml:"state"`
	ServiceName    string    `json:"service_name,omitempty" yaml:"service_name,omitempty"`
	ServiceVersion string    `json:"service_version,omitempty" yaml:"service_version,omitempty"`
}

// ServiceKey is the natural key of a service within one host.
type ServiceKey struct {
	Port     int
	Protocol Protocol
}

func (k ServiceKey) String() string {
	return fmt.Sprintf("%d/%s", k.Port, k.Protocol)
}

// Key returns the natural key of the payload.
func (p PortService) Key() ServiceKey {
	return ServiceKey{Port: p.Port, Protocol: p.Protocol}
}

func (p PortService) valid() bool {
	if p.Port < 1 || p.Port > 65535 {
		return false
	}
	if p.Protocol != ProtocolTCP && p.Protocol != ProtocolUDP {
		return false
	}
	switch p.State {
	case StateOpen, StateFiltered, StateClosed:
		return true
	}
	return false
}

// OSFamily is the coarse operating system classification of a host.
type OSFamily string

const (
	OSUnknown OSFamily = "UNKNOWN"
	OSWindows OSFamily = "WINDOWS"
	OSLinux   OSFamily = "LINUX"
	OSUnix    OSFamily = "UNIX"
)

// ParseOSFamily accepts the canonical family names.
func ParseOSFamily(s string) OSFamily {
	switch OSFamily(strings.ToUpper(strings.TrimSpace(s))) {
	case OSWindows:
		return OSWindows
	case OSLinux:
		return OSLinux
	case OSUnix:
		return OSUnix
	}
	return OSUnknown
}

// Fact is a single typed datum extracted from one evidence record.
// Port kinds carry Service; every other kind carries Text.
type Fact struct {
	Kind          FactKind     `json:"kind" yaml:"kind"`
	Service       *PortService `json:"service,omitempty" yaml:"service,omitempty"`
	Text          string       `json:"text,omitempty" yaml:"text,omitempty"`
	Confidence    Confidence   `json:"confidence" yaml:"confidence"`
	SourceCommand string       `json:"source_command" yaml:"source_command"`
	EvidenceID    string       `json:"evidence_id" yaml:"evidence_id"`
}

// NewServiceFact builds a port fact backed by ev.
func NewServiceFact(kind FactKind, svc PortService, conf Confidence, ev Evidence) Fact {
	return Fact{
		Kind:          kind,
		Service:       &svc,
		Confidence:    conf,
		SourceCommand: ev.Command,
		EvidenceID:    ev.ID,
	}
}

// NewTextFact builds a text-valued fact backed by ev.
func NewTextFact(kind FactKind, text string, conf Confidence, ev Evidence) Fact {
	return Fact{
		Kind:          kind,
		Text:          strings.TrimSpace(text),
		Confidence:    conf,
		SourceCommand: ev.Command,
		EvidenceID:    ev.ID,
	}
}

// Valid reports whether the fact is well formed enough to be applied.
func (f Fact) Valid() bool {
	if f.Confidence.Rank() == 0 || f.EvidenceID == "" {
		return false
	}
	if f.Kind.IsPortKind() {
		return f.Service != nil && f.Service.valid()
	}
	if f.Kind == KindOSFamily {
		return ParseOSFamily(f.Text) != OSUnknown
	}
	return f.Text != ""
}

func (f Fact) String() string {
	if f.Service != nil {
		return fmt.Sprintf("%s %s %s %s %q (%s)", f.Kind, f.Service.Key(), f.Service.State,
			f.Service.ServiceName, f.Service.ServiceVersion, f.Confidence)
	}
	return fmt.Sprintf("%s %q (%s)", f.Kind, f.Text, f.Confidence)
}

package model

import (
	"net/netip"
	"sort"
	"time"
)

// Attribute is a singleton value together with its confidence and the
// evidence records backing it.
type Attribute struct {
	Value      string     `json:"value" yaml:"value"`
	Confidence Confidence `json:"confidence" yaml:"confidence"`
	Evidence   []string   `json:"evidence" yaml:"evidence"`
}

// Set reports whether the attribute holds a value.
func (a Attribute) Set() bool { return a.Value != "" }

// Item is one member of a set-like field.
type Item struct {
	Value      string     `json:"value" yaml:"value"`
	Confidence Confidence `json:"confidence" yaml:"confidence"`
	Evidence   []string   `json:"evidence" yaml:"evidence"`
}

// ServiceEntry is the merged state of one (port, protocol) key.
type ServiceEntry struct {
	PortService `yaml:",inline"`
	Confidence  Confidence `json:"confidence" yaml:"confidence"`
	Evidence    []string   `json:"evidence" yaml:"evidence"`
}

// orderedSet deduplicates by exact value and keeps first-appearance order.
type orderedSet struct {
	items []Item
	index map[string]int
}

func (s *orderedSet) add(value string, conf Confidence, evidenceID string) bool {
	if s.index == nil {
		s.index = make(map[string]int)
	}
	if i, ok := s.index[value]; ok {
		existing := &s.items[i]
		if conf.Rank() <= existing.Confidence.Rank() {
			return false
		}
		existing.Confidence = conf
		existing.Evidence = appendUnique(existing.Evidence, evidenceID)
		return true
	}
	s.index[value] = len(s.items)
	s.items = append(s.items, Item{Value: value, Confidence: conf, Evidence: []string{evidenceID}})
	return true
}

func (s *orderedSet) list() []Item {
	out := make([]Item, len(s.items))
	for i, item := range s.items {
		item.Evidence = append([]string(nil), item.Evidence...)
		out[i] = item
	}
	return out
}

type windowsInfo struct {
	shares       orderedSet
	users        orderedSet
	ldapContexts orderedSet
	netbiosName  Attribute
	macAddress   Attribute
}

// WindowsInfo is a read-only copy of the Windows specific enumeration state.
type WindowsInfo struct {
	Shares       []Item    `json:"shares" yaml:"shares"`
	Users        []Item    `json:"users" yaml:"users"`
	NetBIOSName  Attribute `json:"netbios_name" yaml:"netbios_name"`
	MACAddress   Attribute `json:"mac_address" yaml:"mac_address"`
	LDAPContexts []Item    `json:"ldap_contexts" yaml:"ldap_contexts"`
}

// HostRecord is the canonical enumeration result for one target address.
// Fields are unexported; use the accessors to read and the builder functions
// in this package to mutate.
type HostRecord struct {
	address   netip.Addr
	createdAt time.Time

	hostname Attribute
	domain   Attribute
	osFamily Attribute

	versionHints orderedSet
	services     map[ServiceKey]*ServiceEntry
	windows      *windowsInfo
	vulnHints    orderedSet
	markers      orderedSet

	evidence      []Evidence
	evidenceIndex map[string]int
	// structured holds the evidence IDs that backed at least one applied fact.
	structured map[string]struct{}
	finalized  bool
}

// NewHostRecord starts an empty record for addr.
func NewHostRecord(addr netip.Addr) *HostRecord {
	return &HostRecord{
		address:       addr,
		createdAt:     time.Now().UTC(),
		services:      make(map[ServiceKey]*ServiceEntry),
		evidenceIndex: make(map[string]int),
		structured:    make(map[string]struct{}),
	}
}

// Address returns the target address.
func (r *HostRecord) Address() netip.Addr { return r.address }

// Hostname returns the hostname attribute.
func (r *HostRecord) Hostname() Attribute { return copyAttribute(r.hostname) }

// Domain returns the domain attribute.
func (r *HostRecord) Domain() Attribute { return copyAttribute(r.domain) }

// OSFamily returns the OS family and the confidence it was established with.
// An unset family is reported as OSUnknown with an empty confidence.
func (r *HostRecord) OSFamily() (OSFamily, Confidence) {
	if !r.osFamily.Set() {
		return OSUnknown, ""
	}
	return OSFamily(r.osFamily.Value), r.osFamily.Confidence
}

// OSVersionHints returns the version guesses in discovery order.
func (r *HostRecord) OSVersionHints() []Item { return r.versionHints.list() }

// VulnHints returns the vulnerability hints in discovery order.
func (r *HostRecord) VulnHints() []Item { return r.vulnHints.list() }

// Markers returns explanations for gaps in the record.
func (r *HostRecord) Markers() []Item { return r.markers.list() }

// Service looks up a single service entry.
func (r *HostRecord) Service(port int, proto Protocol) (ServiceEntry, bool) {
	e, ok := r.services[ServiceKey{Port: port, Protocol: proto}]
	if !ok {
		return ServiceEntry{}, false
	}
	return copyService(e), true
}

// Services returns all service entries ordered by port then protocol.
func (r *HostRecord) Services() []ServiceEntry {
	out := make([]ServiceEntry, 0, len(r.services))
	for _, e := range r.services {
		out = append(out, copyService(e))
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Port != out[j].Port {
			return out[i].Port < out[j].Port
		}
		return out[i].Protocol < out[j].Protocol
	})
	return out
}

// Windows returns the Windows enumeration state, or nil when no Windows
// specific fact was ever applied.
func (r *HostRecord) Windows() *WindowsInfo {
	if r.windows == nil {
		return nil
	}
	return &WindowsInfo{
		Shares:       r.windows.shares.list(),
		Users:        r.windows.users.list(),
		NetBIOSName:  copyAttribute(r.windows.netbiosName),
		MACAddress:   copyAttribute(r.windows.macAddress),
		LDAPContexts: r.windows.ldapContexts.list(),
	}
}

// Evidence returns the evidence log in execution order.
func (r *HostRecord) Evidence() []Evidence {
	return append([]Evidence(nil), r.evidence...)
}

// EvidenceByID finds one evidence record in the log.
func (r *HostRecord) EvidenceByID(id string) (Evidence, bool) {
	i, ok := r.evidenceIndex[id]
	if !ok {
		return Evidence{}, false
	}
	return r.evidence[i], true
}

// Finalized reports whether the record has been frozen.
func (r *HostRecord) Finalized() bool { return r.finalized }

// ReferencedEvidence returns every evidence ID referenced by any field.
func (r *HostRecord) ReferencedEvidence() []string {
	var ids []string
	collect := func(refs []string) {
		for _, id := range refs {
			ids = appendUnique(ids, id)
		}
	}
	for _, a := range []Attribute{r.hostname, r.domain, r.osFamily} {
		collect(a.Evidence)
	}
	for _, set := range []*orderedSet{&r.versionHints, &r.vulnHints, &r.markers} {
		for _, item := range set.items {
			collect(item.Evidence)
		}
	}
	for _, e := range r.services {
		collect(e.Evidence)
	}
	if w := r.windows; w != nil {
		collect(w.netbiosName.Evidence)
		collect(w.macAddress.Evidence)
		for _, set := range []*orderedSet{&w.shares, &w.users, &w.ldapContexts} {
			for _, item := range set.items {
				collect(item.Evidence)
			}
		}
	}
	sort.Strings(ids)
	return ids
}

func copyAttribute(a Attribute) Attribute {
	a.Evidence = append([]string(nil), a.Evidence...)
	return a
}

func copyService(e *ServiceEntry) ServiceEntry {
	out := *e
	out.Evidence = append([]string(nil), e.Evidence...)
	return out
}

func appendUnique(list []string, v string) []string {
	for _, existing := range list {
		if existing == v {
			return list
		}
	}
	return append(list, v)
}

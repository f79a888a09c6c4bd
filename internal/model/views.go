package model

// FactsView is the slice of a record at one confidence tier. The renderer
// shows the verified and inferred views in separate sections.
type FactsView struct {
	Hostname       string        `json:"hostname,omitempty" yaml:"hostname,omitempty"`
	Domain         string        `json:"domain,omitempty" yaml:"domain,omitempty"`
	OSFamily       OSFamily      `json:"os_family,omitempty" yaml:"os_family,omitempty"`
	OSVersionHints []string      `json:"os_version_hints,omitempty" yaml:"os_version_hints,omitempty"`
	Services       []PortService `json:"services,omitempty" yaml:"services,omitempty"`
	Shares         []string      `json:"shares,omitempty" yaml:"shares,omitempty"`
	Users          []string      `json:"users,omitempty" yaml:"users,omitempty"`
	NetBIOSName    string        `json:"netbios_name,omitempty" yaml:"netbios_name,omitempty"`
	MACAddress     string        `json:"mac_address,omitempty" yaml:"mac_address,omitempty"`
	LDAPContexts   []string      `json:"ldap_contexts,omitempty" yaml:"ldap_contexts,omitempty"`
	VulnHints      []string      `json:"vuln_hints,omitempty" yaml:"vuln_hints,omitempty"`
	Markers        []string      `json:"markers,omitempty" yaml:"markers,omitempty"`
}

// Empty reports whether the view holds nothing.
func (v FactsView) Empty() bool {
	return v.Hostname == "" && v.Domain == "" && v.OSFamily == "" &&
		len(v.OSVersionHints) == 0 && len(v.Services) == 0 &&
		len(v.Shares) == 0 && len(v.Users) == 0 &&
		v.NetBIOSName == "" && v.MACAddress == "" &&
		len(v.LDAPContexts) == 0 && len(v.VulnHints) == 0 && len(v.Markers) == 0
}

// Verified returns everything established from positively confirmed output.
func (r *HostRecord) Verified() FactsView {
	return r.view(ConfidenceVerified)
}

// Inferred returns everything derived from heuristics or best guesses.
func (r *HostRecord) Inferred() FactsView {
	return r.view(ConfidenceInferred)
}

func (r *HostRecord) view(tier Confidence) FactsView {
	pick := func(a Attribute) string {
		if a.Set() && a.Confidence == tier {
			return a.Value
		}
		return ""
	}
	items := func(list []Item) []string {
		var out []string
		for _, item := range list {
			if item.Confidence == tier {
				out = append(out, item.Value)
			}
		}
		return out
	}

	v := FactsView{
		Hostname:       pick(r.hostname),
		Domain:         pick(r.domain),
		OSFamily:       OSFamily(pick(r.osFamily)),
		OSVersionHints: items(r.versionHints.items),
		VulnHints:      items(r.vulnHints.items),
		Markers:        items(r.markers.items),
	}
	for _, e := range r.Services() {
		if e.Confidence == tier {
			v.Services = append(v.Services, e.PortService)
		}
	}
	if w := r.windows; w != nil {
		v.Shares = items(w.shares.items)
		v.Users = items(w.users.items)
		v.LDAPContexts = items(w.ldapContexts.items)
		v.NetBIOSName = pick(w.netbiosName)
		v.MACAddress = pick(w.macAddress)
	}
	return v
}

// Snapshot is the serializable form of a finalized record.
type Snapshot struct {
	Address  string       `json:"address" yaml:"address"`
	OSFamily OSFamily     `json:"os_family" yaml:"os_family"`
	Verified FactsView    `json:"verified" yaml:"verified"`
	Inferred FactsView    `json:"inferred" yaml:"inferred"`
	Windows  *WindowsInfo `json:"windows_info,omitempty" yaml:"windows_info,omitempty"`
	Evidence []Evidence   `json:"evidence" yaml:"evidence"`
}

// Snapshot exports the record's three views for structured output.
func (r *HostRecord) Snapshot() Snapshot {
	family, _ := r.OSFamily()
	return Snapshot{
		Address:  r.address.String(),
		OSFamily: family,
		Verified: r.Verified(),
		Inferred: r.Inferred(),
		Windows:  r.Windows(),
		Evidence: r.Evidence(),
	}
}

package parsing

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/anstrom/hostenum/internal/model"
)

const (
	verified = model.ConfidenceVerified
	inferred = model.ConfidenceInferred
)

// DefaultRules returns the extraction table for nmap, enum4linux, smbclient,
// nmblookup, nbtstat, nbtscan, ldapsearch and the SNMP probe. New output
// formats are supported by adding rules here.
func DefaultRules() []Rule {
	return []Rule{
		// Ports and services.
		{
			Name:       "nmap-port-line",
			Kind:       model.KindService,
			Pattern:    regexp.MustCompile(`^(\d{1,5})/(tcp|udp)\s+(open\|filtered|closed\|filtered|open|filtered|closed|unfiltered)\s+(\S+)(?:\s+(.*?))?\s*$`),
			Confidence: verified,
			Extract:    each(extractPortLine),
		},
		{
			Name:       "nmap-grepable-ports",
			Kind:       model.KindService,
			Pattern:    regexp.MustCompile(`^Host:\s+(\S+).*\tPorts:\s+([^\t]+)`),
			Confidence: verified,
			Extract:    each(extractGrepablePorts),
		},
		{
			Name:       "nmap-discovered-port",
			Kind:       model.KindOpenPort,
			Pattern:    regexp.MustCompile(`^Discovered open port (\d{1,5})/(tcp|udp) on (\S+)`),
			Confidence: verified,
			Extract:    each(extractDiscoveredPort),
		},

		// Operating system. Exclusive so one OS source is counted per evidence.
		{
			Name:       "nmap-os-detection",
			Kind:       model.KindOSFamily,
			Scope:      ScopeBlock,
			Exclusive:  true,
			Pattern:    regexp.MustCompile(`(?m)^(OS details|Aggressive OS guesses|Running \(JUST GUESSING\)|Running):[ \t]*(.+?)[ \t]*$`),
			Confidence: verified,
			Extract:    extractNmapOS,
		},
		{
			Name:       "smb-os-discovery",
			Kind:       model.KindOSFamily,
			Scope:      ScopeBlock,
			Exclusive:  true,
			Pattern:    regexp.MustCompile(`(?m)^\|\s+OS:\s*(.+?)\s*$`),
			Confidence: inferred,
			Extract:    extractKeywordOS(true),
		},
		{
			Name:       "smbclient-os-banner",
			Kind:       model.KindOSFamily,
			Scope:      ScopeBlock,
			Exclusive:  true,
			Pattern:    regexp.MustCompile(`OS=\[([^\]]+)\]`),
			Confidence: inferred,
			Extract:    extractKeywordOS(true),
		},
		{
			Name:       "enum4linux-os",
			Kind:       model.KindOSFamily,
			Scope:      ScopeBlock,
			Exclusive:  true,
			Pattern:    regexp.MustCompile(`(?mi)^[ \t]*(?:\[\+\][ \t]*)?(OS|OS version)[ \t]*:[ \t]*'?([^'\n]+?)'?[ \t]*$`),
			Confidence: inferred,
			Extract:    extractEnum4linuxOS,
		},
		{
			Name:       "nmap-service-info-os",
			Kind:       model.KindOSFamily,
			Scope:      ScopeBlock,
			Exclusive:  true,
			Pattern:    regexp.MustCompile(`(?m)^Service Info:.*?\bOSs?:\s*([^;\n]+)`),
			Confidence: inferred,
			Extract:    extractKeywordOS(false),
		},
		{
			Name:       "snmp-sysdescr",
			Kind:       model.KindOSFamily,
			Scope:      ScopeBlock,
			Exclusive:  true,
			Pattern:    regexp.MustCompile(`(?m)sysDescr\.0\s*=\s*STRING:\s*"?(.+?)"?\s*$`),
			Confidence: inferred,
			Extract:    extractKeywordOS(true),
		},
		{
			Name:       "nmap-os-cpe",
			Kind:       model.KindOSVersionGuess,
			Pattern:    regexp.MustCompile(`^OS CPE:\s*(.+?)\s*$`),
			Confidence: inferred,
			Extract: each(func(g []string, e *emitter) {
				for _, cpe := range strings.Fields(g[1]) {
					e.text(model.KindOSVersionGuess, cpe)
				}
			}),
		},

		// Hostname.
		{
			Name:       "nmap-report-header",
			Kind:       model.KindHostname,
			Pattern:    regexp.MustCompile(`^Nmap scan report for (\S+) \((\d{1,3}(?:\.\d{1,3}){3})\)`),
			Confidence: verified,
			Extract: each(func(g []string, e *emitter) {
				if e.forHost(g[2]) && !looksLikeIPv4(g[1]) {
					e.text(model.KindHostname, g[1])
				}
			}),
		},
		{
			Name:       "nmap-rdns-record",
			Kind:       model.KindHostname,
			Pattern:    regexp.MustCompile(`^rDNS record for (\S+):\s*(\S+)`),
			Confidence: verified,
			Extract: each(func(g []string, e *emitter) {
				if e.forHost(g[1]) {
					e.text(model.KindHostname, g[2])
				}
			}),
		},
		{
			Name:       "computer-name",
			Kind:       model.KindHostname,
			Pattern:    regexp.MustCompile(`(?i)^[|_ \t]*(?:\[\+\][ \t]*)?Computer name:\s*([^\s\\]+)`),
			Confidence: verified,
			Extract:    group1(model.KindHostname),
		},
		{
			Name:       "smb-os-discovery-fqdn",
			Kind:       model.KindHostname,
			Pattern:    regexp.MustCompile(`^\|_?\s+FQDN:\s*(\S+)`),
			Confidence: verified,
			Extract:    group1(model.KindHostname),
		},
		{
			Name:       "nmap-service-info-host",
			Kind:       model.KindHostname,
			Pattern:    regexp.MustCompile(`^Service Info:.*?\bHost:\s*([^;\s]+)`),
			Confidence: inferred,
			Extract:    group1(model.KindHostname),
		},
		{
			Name:       "snmp-sysname",
			Kind:       model.KindHostname,
			Pattern:    regexp.MustCompile(`sysName\.0\s*=\s*STRING:\s*"?([^"\s]+)"?`),
			Confidence: inferred,
			Extract:    group1(model.KindHostname),
		},

		// Domain.
		{
			Name:       "ldap-domain-naming-context",
			Kind:       model.KindDomain,
			Pattern:    regexp.MustCompile(`(?i)^(?:defaultNamingContext|rootDomainNamingContext):\s*(.*\bDC=.+?)\s*$`),
			Confidence: verified,
			Extract:    each(extractDomainFromDN),
		},
		{
			Name:       "smb-os-discovery-domain",
			Kind:       model.KindDomain,
			Pattern:    regexp.MustCompile(`^\|_?\s+Domain name:\s*(\S+)`),
			Confidence: verified,
			Extract:    each(extractDomain),
		},
		{
			Name:       "enum4linux-domain",
			Kind:       model.KindDomain,
			Pattern:    regexp.MustCompile(`(?i)^[ \t]*(?:\[\+\][ \t]*)?(?:Got domain/workgroup name|Domain/Workgroup|Domain Name|Domain):[ \t]*(\S+)`),
			Confidence: verified,
			Extract:    each(extractDomain),
		},
		{
			Name:       "netbios-group-name",
			Kind:       model.KindDomain,
			Pattern:    regexp.MustCompile(`(?i)^\s*([^\s<]+)\s+<00>\s+(?:-\s+<GROUP>|GROUP\b)`),
			Confidence: inferred,
			Extract:    each(extractDomain),
		},
		{
			Name:       "smbclient-domain-banner",
			Kind:       model.KindDomain,
			Pattern:    regexp.MustCompile(`Domain=\[([^\]]+)\]`),
			Confidence: verified,
			Extract:    each(extractDomain),
		},

		// NetBIOS names.
		{
			Name:       "nmblookup-unique",
			Kind:       model.KindNetBIOSName,
			Pattern:    regexp.MustCompile(`^\s*([^\s<]+)\s+<00>\s+-\s+[BMHP]\s+<ACTIVE>`),
			Confidence: verified,
			Extract:    group1(model.KindNetBIOSName),
		},
		{
			Name:       "nbtstat-unique",
			Kind:       model.KindNetBIOSName,
			Pattern:    regexp.MustCompile(`(?i)^\s*([^\s<]+)\s+<00>\s+UNIQUE\b`),
			Confidence: verified,
			Extract:    group1(model.KindNetBIOSName),
		},
		{
			Name:       "nbtscan-row",
			Kind:       model.KindNetBIOSName,
			Pattern:    regexp.MustCompile(`^(\d{1,3}(?:\.\d{1,3}){3})\s+(\S+)\s+<server>`),
			Confidence: verified,
			Extract: each(func(g []string, e *emitter) {
				if e.forHost(g[1]) {
					e.text(model.KindNetBIOSName, g[2])
				}
			}),
		},
		{
			Name:       "smb-netbios-computer-name",
			Kind:       model.KindNetBIOSName,
			Pattern:    regexp.MustCompile(`^\|_?\s+NetBIOS computer name:\s*([^\s\\]+)`),
			Confidence: verified,
			Extract:    group1(model.KindNetBIOSName),
		},
		{
			Name:       "nmap-nbstat",
			Kind:       model.KindNetBIOSName,
			Pattern:    regexp.MustCompile(`nbstat:\s*NetBIOS name:\s*([^,\s]+)`),
			Confidence: verified,
			Extract:    group1(model.KindNetBIOSName),
		},

		// MAC addresses.
		{
			Name:       "nmap-mac-address",
			Kind:       model.KindMACAddress,
			Pattern:    regexp.MustCompile(`^MAC Address:\s*([0-9A-Fa-f]{2}(?::[0-9A-Fa-f]{2}){5})`),
			Confidence: verified,
			Extract:    each(extractMAC),
		},
		{
			Name:       "nmblookup-mac-address",
			Kind:       model.KindMACAddress,
			Pattern:    regexp.MustCompile(`MAC Address = ([0-9A-Fa-f]{2}(?:-[0-9A-Fa-f]{2}){5})`),
			Confidence: verified,
			Extract:    each(extractMAC),
		},
		{
			Name:       "nbstat-mac-address",
			Kind:       model.KindMACAddress,
			Pattern:    regexp.MustCompile(`NetBIOS MAC:\s*([0-9A-Fa-f]{2}(?::[0-9A-Fa-f]{2}){5})`),
			Confidence: verified,
			Extract:    each(extractMAC),
		},
		{
			Name:       "nbtscan-mac-address",
			Kind:       model.KindMACAddress,
			Pattern:    regexp.MustCompile(`^\s*\d{1,3}(?:\.\d{1,3}){3}\s.*\s([0-9A-Fa-f]{2}(?:[:-][0-9A-Fa-f]{2}){5})\s*$`),
			Confidence: inferred,
			Extract:    extractRowMAC,
		},

		// SMB shares.
		{
			Name:       "smbclient-share-table",
			Kind:       model.KindSMBShare,
			Scope:      ScopeBlock,
			Pattern:    regexp.MustCompile(`(?m)^[ \t]*Sharename[ \t]+Type[ \t]+Comment[ \t]*\n[ \t]*-+[ \t]+-+[ \t]+-+[ \t]*\n((?:[ \t]+\S[^\n]*(?:\n|$))*)`),
			Confidence: verified,
			Extract:    extractShareTable,
		},
		{
			Name:       "enum4linux-share-mapping",
			Kind:       model.KindSMBShare,
			Pattern:    regexp.MustCompile(`^//[^/\s]+/(\S+)\s+Mapping:\s*(\S+)`),
			Confidence: verified,
			Extract:    group1(model.KindSMBShare),
		},
		{
			Name:       "nmap-smb-enum-shares",
			Kind:       model.KindSMBShare,
			Pattern:    regexp.MustCompile(`^\|_?\s+\\\\[^\\\s]+\\([^:\\]+):\s*$`),
			Confidence: verified,
			Extract:    group1(model.KindSMBShare),
		},

		// SMB users.
		{
			Name:       "enum4linux-user",
			Kind:       model.KindSMBUser,
			Pattern:    regexp.MustCompile(`(?i)user:\[([^\]]+)\]`),
			Confidence: verified,
			Extract:    group1(model.KindSMBUser),
		},
		{
			Name:       "enum4linux-account",
			Kind:       model.KindSMBUser,
			Pattern:    regexp.MustCompile(`\bAccount:\s*(\S+)\s+Name:`),
			Confidence: verified,
			Extract:    group1(model.KindSMBUser),
		},
		{
			Name:       "nmap-smb-enum-users",
			Kind:       model.KindSMBUser,
			Pattern:    regexp.MustCompile(`^\|_?\s+(?:[^\\\s]+\\)?(\S+)\s+\(RID:\s*\d+\)`),
			Confidence: verified,
			Extract:    group1(model.KindSMBUser),
		},
		{
			Name:       "rid-cycling-user",
			Kind:       model.KindSMBUser,
			Pattern:    regexp.MustCompile(`^S-1-5-21-[\d-]+\s+[^\\\s]+\\(\S+)\s+\(Local User\)`),
			Confidence: verified,
			Extract:    group1(model.KindSMBUser),
		},

		// LDAP naming contexts.
		{
			Name:       "ldap-naming-contexts",
			Kind:       model.KindLDAPContext,
			Pattern:    regexp.MustCompile(`(?i)^namingContexts:\s*(\S.*?)\s*$`),
			Confidence: verified,
			Extract:    group1(model.KindLDAPContext),
		},
		{
			Name:       "ldap-default-naming-context",
			Kind:       model.KindLDAPContext,
			Pattern:    regexp.MustCompile(`(?i)^defaultNamingContext:\s*(\S.*?)\s*$`),
			Confidence: verified,
			Extract:    group1(model.KindLDAPContext),
		},

		// Vulnerability hints.
		{
			Name:       "nmap-script-output",
			Kind:       model.KindVulnHint,
			Scope:      ScopeBlock,
			Pattern:    regexp.MustCompile(`(?m)^\|[^\n]*(?:\n\|[^\n]*)*`),
			Confidence: verified,
			Extract:    extractScriptHints,
		},
		{
			Name:       "smb-signing-not-required",
			Kind:       model.KindVulnHint,
			Pattern:    regexp.MustCompile(`(?i)SMB signing required:\s*false`),
			Confidence: inferred,
			Extract: each(func(_ []string, e *emitter) {
				e.text(model.KindVulnHint, hintSigningNotRequired)
			}),
		},
		{
			Name:       "cve-reference",
			Kind:       model.KindVulnHint,
			Pattern:    regexp.MustCompile(`\bCVE-\d{4}-\d{4,7}\b`),
			Confidence: inferred,
			Extract:    extractCVEs,
		},
	}
}

const (
	hintSigningDisabled    = "SMB message signing disabled"
	hintSigningNotRequired = "SMB message signing not required"
)

var (
	ipv4Pattern   = regexp.MustCompile(`^\d{1,3}(?:\.\d{1,3}){3}$`)
	ipv4Anywhere  = regexp.MustCompile(`\b\d{1,3}(?:\.\d{1,3}){3}\b`)
	cvePattern    = regexp.MustCompile(`\bCVE-\d{4}-\d{4,7}\b`)
	dcComponent   = regexp.MustCompile(`(?i)\bDC=([^,]+)`)
	shareRow      = regexp.MustCompile(`^[ \t]*(\S(?:.*?\S)?)[ \t]+(Disk|IPC|Printer|Device)\b`)
	scriptHeader  = regexp.MustCompile(`^\|_? ?([A-Za-z0-9][\w.-]*):(.*)$`)
	scriptState   = regexp.MustCompile(`^\|_?\s+State:\s*(LIKELY VULNERABLE|VULNERABLE)\b`)
	signingOff    = regexp.MustCompile(`(?i)message_signing:\s*disabled`)
	signingOptOut = regexp.MustCompile(`(?i)signing enabled but not required`)
)

func looksLikeIPv4(s string) bool { return ipv4Pattern.MatchString(s) }

func extractPortLine(g []string, e *emitter) {
	port, err := strconv.Atoi(g[1])
	if err != nil {
		return
	}
	conf := verified
	var state model.PortState
	switch g[3] {
	case "open":
		state = model.StateOpen
	case "closed":
		state = model.StateClosed
	case "filtered":
		state = model.StateFiltered
	case "open|filtered", "closed|filtered":
		state = model.StateFiltered
		conf = inferred
	default:
		return
	}

	name := g[4]
	if strings.HasSuffix(name, "?") {
		name = strings.TrimSuffix(name, "?")
		conf = inferred
	}
	if name == "unknown" {
		name = ""
	}
	e.service(model.KindService, model.PortService{
		Port:           port,
		Protocol:       model.Protocol(g[2]),
		State:          state,
		ServiceName:    name,
		ServiceVersion: strings.TrimSpace(g[5]),
	}, conf)
}

// extractGrepablePorts handles `-oG` entries such as
// "22/open/tcp//ssh//OpenSSH 8.2/".
func extractGrepablePorts(g []string, e *emitter) {
	if !e.forHost(g[1]) {
		return
	}
	for _, entry := range strings.Split(g[2], ",") {
		fields := strings.Split(strings.TrimSpace(entry), "/")
		if len(fields) < 7 {
			continue
		}
		port, err := strconv.Atoi(fields[0])
		if err != nil {
			continue
		}
		proto, ok := model.ParseProtocol(fields[2])
		if !ok {
			continue
		}
		conf := verified
		var state model.PortState
		switch fields[1] {
		case "open":
			state = model.StateOpen
		case "closed":
			state = model.StateClosed
		case "filtered":
			state = model.StateFiltered
		case "open|filtered":
			state = model.StateFiltered
			conf = inferred
		default:
			continue
		}
		e.service(model.KindService, model.PortService{
			Port:           port,
			Protocol:       proto,
			State:          state,
			ServiceName:    strings.TrimSuffix(fields[4], "?"),
			ServiceVersion: strings.TrimSpace(fields[6]),
		}, conf)
	}
}

func extractDiscoveredPort(g []string, e *emitter) {
	if !e.forHost(g[3]) {
		return
	}
	port, err := strconv.Atoi(g[1])
	if err != nil {
		return
	}
	e.service(model.KindOpenPort, model.PortService{
		Port:     port,
		Protocol: model.Protocol(g[2]),
		State:    model.StateOpen,
	}, e.conf)
}

// extractDomain drops the Samba default workgroup, which never names a domain.
func extractDomain(g []string, e *emitter) {
	value := strings.Trim(g[1], "'\"[]")
	if strings.EqualFold(value, "WORKGROUP") {
		return
	}
	e.text(model.KindDomain, value)
}

func extractDomainFromDN(g []string, e *emitter) {
	if domain := domainFromDN(g[1]); domain != "" {
		e.text(model.KindDomain, domain)
	}
}

// domainFromDN turns "CN=Configuration,DC=corp,DC=local" into "corp.local".
func domainFromDN(dn string) string {
	var parts []string
	for _, m := range dcComponent.FindAllStringSubmatch(dn, -1) {
		parts = append(parts, strings.TrimSpace(m[1]))
	}
	return strings.ToLower(strings.Join(parts, "."))
}

func extractMAC(g []string, e *emitter) {
	mac := strings.ToUpper(strings.ReplaceAll(g[1], "-", ":"))
	if mac == "00:00:00:00:00:00" {
		return
	}
	e.text(model.KindMACAddress, mac)
}

// extractRowMAC skips nbtscan rows that name a different host, as in
// output covering a whole range.
func extractRowMAC(matches []Match, e *emitter) {
	for _, m := range matches {
		for _, addr := range ipv4Anywhere.FindAllString(m.Text, -1) {
			if !e.forHost(addr) {
				return
			}
		}
		extractMAC(m.Groups, e)
	}
}

func extractShareTable(matches []Match, e *emitter) {
	for _, m := range matches {
		for _, row := range strings.Split(m.Groups[1], "\n") {
			if r := shareRow.FindStringSubmatch(row); r != nil {
				e.text(model.KindSMBShare, r[1])
			}
		}
	}
}

// extractScriptHints walks runs of nmap script output and flags scripts that
// report a vulnerable state, plus weak SMB signing configurations.
func extractScriptHints(matches []Match, e *emitter) {
	for _, m := range matches {
		var script, state string
		var cves []string
		flush := func() {
			if script == "" || state == "" {
				return
			}
			hint := script + ": " + state
			if len(cves) > 0 {
				hint += " (" + strings.Join(cves, ", ") + ")"
			}
			conf := verified
			if strings.HasPrefix(state, "LIKELY") {
				conf = inferred
			}
			e.textAs(model.KindVulnHint, hint, conf)
		}

		for _, line := range strings.Split(m.Text, "\n") {
			if h := scriptHeader.FindStringSubmatch(line); h != nil {
				flush()
				script, state, cves = h[1], "", nil
			}
			if s := scriptState.FindStringSubmatch(line); s != nil {
				state = s[1]
			}
			for _, cve := range cvePattern.FindAllString(line, -1) {
				cves = appendOnce(cves, cve)
			}
			switch {
			case signingOff.MatchString(line):
				e.textAs(model.KindVulnHint, hintSigningDisabled, inferred)
			case signingOptOut.MatchString(line):
				e.textAs(model.KindVulnHint, hintSigningNotRequired, inferred)
			}
		}
		flush()
	}
}

// extractCVEs reports every identifier on the matched line, not just the first.
func extractCVEs(matches []Match, e *emitter) {
	for _, m := range matches {
		for _, cve := range cvePattern.FindAllString(m.Text, -1) {
			e.text(model.KindVulnHint, cve)
		}
	}
}

func appendOnce(list []string, v string) []string {
	for _, existing := range list {
		if existing == v {
			return list
		}
	}
	return append(list, v)
}

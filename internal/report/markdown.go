package report

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/anstrom/hostenum/internal/model"
)

const markdownTime = "2006-01-02 15:04:05 UTC"

// mdWriter accumulates the first write error so rendering code stays linear.
type mdWriter struct {
	w   *bufio.Writer
	err error
}

func (m *mdWriter) line(format string, args ...any) {
	if m.err != nil {
		return
	}
	if len(args) == 0 {
		_, m.err = m.w.WriteString(format + "\n")
		return
	}
	_, m.err = fmt.Fprintf(m.w, format+"\n", args...)
}

func (m *mdWriter) blank() { m.line("") }

func (m *mdWriter) rule() {
	m.line("---")
	m.blank()
}

func renderMarkdown(w io.Writer, records []*model.HostRecord, doc Document) error {
	m := &mdWriter{w: bufio.NewWriter(w)}

	m.line("# %s", doc.Title)
	m.blank()
	m.line("**Generated:** %s  ", doc.GeneratedAt.Format(markdownTime))
	m.line("**Enumeration Start Time:** %s  ", doc.StartedAt.Format(markdownTime))
	if doc.RunID != "" {
		m.line("**Run ID:** `%s`  ", doc.RunID)
	}
	if doc.Profile != "" {
		m.line("**Profile:** %s  ", doc.Profile)
	}
	if doc.Targets != "" {
		m.line("**Targets:** `%s`  ", doc.Targets)
	}
	if doc.Excluded != "" {
		m.line("**Excluded:** `%s`  ", doc.Excluded)
	}
	if len(doc.Unresolved) > 0 {
		m.line("**Unresolved Names:** %s  ", strings.Join(doc.Unresolved, ", "))
	}
	m.line("**Total Hosts Enumerated:** %d", len(records))
	m.blank()
	m.rule()

	if len(records) > 0 {
		m.line("## Table of Contents")
		m.blank()
		for i, rec := range records {
			m.line("%d. [%s](#%s)", i+1, hostTitle(rec), hostAnchor(i+1, rec))
		}
		m.blank()
		m.rule()
	}

	for i, rec := range records {
		writeHost(m, i+1, rec)
		m.rule()
	}

	writeSummary(m, doc)

	if m.err != nil {
		return m.err
	}
	return m.w.Flush()
}

func hostTitle(rec *model.HostRecord) string {
	title := rec.Address().String()
	if h := rec.Hostname(); h.Set() {
		title += " (" + h.Value + ")"
	}
	return title
}

func hostAnchor(n int, rec *model.HostRecord) string {
	return fmt.Sprintf("host-%d-%s", n, strings.ReplaceAll(rec.Address().String(), ".", "-"))
}

func writeHost(m *mdWriter, n int, rec *model.HostRecord) {
	m.line(`<a id="%s"></a>`, hostAnchor(n, rec))
	m.blank()
	m.line("## Host %d: %s", n, hostTitle(rec))
	m.blank()

	verified := rec.Verified()
	writeVerified(m, rec, verified)
	writeWindows(m, verified)
	writeUnverified(m, rec, rec.Inferred())
	writeEvidence(m, rec.Evidence())
}

func writeVerified(m *mdWriter, rec *model.HostRecord, v model.FactsView) {
	m.line("### Verified Information")
	m.blank()
	m.line("| Field | Value |")
	m.line("|-------|-------|")
	m.line("| IP Address | %s |", rec.Address())
	if v.Hostname != "" {
		m.line("| Hostname | %s |", cell(v.Hostname))
	}
	if v.Domain != "" {
		m.line("| Domain | %s |", cell(v.Domain))
	}
	if v.OSFamily != "" {
		m.line("| Operating System Type | %s |", v.OSFamily)
	}
	if len(v.Services) > 0 {
		names := make([]string, 0, len(v.Services))
		for _, svc := range v.Services {
			name := svc.ServiceName
			if name == "" {
				name = "unknown"
			}
			names = append(names, fmt.Sprintf("%s (%d/%s)", name, svc.Port, svc.Protocol))
		}
		m.line("| Active Services | %s |", cell(strings.Join(names, ", ")))
	}
	m.blank()

	if len(v.Services) == 0 {
		return
	}
	m.line("#### Open Ports")
	m.blank()
	m.line("| Port | Protocol | State | Service | Version |")
	m.line("|------|----------|-------|---------|---------|")
	for _, svc := range v.Services {
		m.line("| %d | %s | %s | %s | %s |", svc.Port, svc.Protocol, svc.State,
			cell(svc.ServiceName), cell(svc.ServiceVersion))
	}
	m.blank()
}

func writeWindows(m *mdWriter, v model.FactsView) {
	if len(v.Shares) == 0 && len(v.Users) == 0 && v.NetBIOSName == "" &&
		v.MACAddress == "" && len(v.LDAPContexts) == 0 {
		return
	}
	m.line("#### Windows Information")
	m.blank()
	m.line("| Field | Value |")
	m.line("|-------|-------|")
	if v.NetBIOSName != "" {
		m.line("| NetBIOS Name | %s |", cell(v.NetBIOSName))
	}
	if v.MACAddress != "" {
		m.line("| MAC Address | %s |", cell(v.MACAddress))
	}
	if len(v.Shares) > 0 {
		m.line("| SMB Shares | %s |", cell(strings.Join(v.Shares, ", ")))
	}
	if len(v.Users) > 0 {
		m.line("| Users | %s |", cell(strings.Join(v.Users, ", ")))
	}
	if len(v.LDAPContexts) > 0 {
		m.line("| LDAP Naming Contexts | %s |", cell(strings.Join(v.LDAPContexts, "<br>")))
	}
	m.blank()
}

func writeUnverified(m *mdWriter, rec *model.HostRecord, v model.FactsView) {
	m.line("### Unverified Information")
	m.blank()

	var items []string
	add := func(label, value string) {
		if value != "" {
			items = append(items, fmt.Sprintf("%s: %s", label, value))
		}
	}

	add("Operating system type (inferred)", string(v.OSFamily))
	add("Hostname (inferred)", v.Hostname)
	add("Domain (inferred)", v.Domain)
	for _, hint := range rec.OSVersionHints() {
		add("OS version hint", hint.Value)
	}
	for _, svc := range v.Services {
		desc := strings.TrimSpace(svc.ServiceName + " " + svc.ServiceVersion)
		if desc == "" {
			desc = "unknown service"
		}
		add(fmt.Sprintf("Service %d/%s %s", svc.Port, svc.Protocol, svc.State), desc)
	}
	add("NetBIOS name (inferred)", v.NetBIOSName)
	add("MAC address (inferred)", v.MACAddress)
	for _, s := range v.Shares {
		add("SMB share (inferred)", s)
	}
	for _, u := range v.Users {
		add("User (inferred)", u)
	}
	for _, c := range v.LDAPContexts {
		add("LDAP naming context (inferred)", c)
	}
	for _, hint := range rec.VulnHints() {
		add("Potential vulnerability", hint.Value)
	}
	for _, marker := range rec.Markers() {
		add("Note", marker.Value)
	}

	if len(items) == 0 {
		m.line("No unverified information available.")
		m.blank()
		return
	}
	for _, item := range items {
		m.line("- %s", item)
	}
	m.blank()
}

func writeEvidence(m *mdWriter, evidence []model.Evidence) {
	m.line("### Command Outputs")
	m.blank()
	if len(evidence) == 0 {
		m.line("No command outputs available.")
		m.blank()
		return
	}
	for _, ev := range evidence {
		m.line("#### `%s`", ev.Command)
		m.blank()
		if ev.Synthetic {
			m.line("_No output was captured for this command._")
			m.blank()
			continue
		}
		m.line("_Captured at %s_", ev.CapturedAt.UTC().Format(markdownTime))
		m.blank()
		fence := fenceFor(ev.RawOutput)
		m.line("%s", fence)
		m.line("%s", strings.TrimRight(ev.RawOutput, "\n"))
		m.line("%s", fence)
		m.blank()
	}
}

func writeSummary(m *mdWriter, doc Document) {
	s := doc.Summary
	m.line("## Report Summary")
	m.blank()
	m.line("| Metric | Value |")
	m.line("|--------|-------|")
	m.line("| Total Hosts | %d |", s.Hosts)
	m.line("| Windows Hosts | %d |", s.WindowsHosts)
	m.line("| Hosts With Open Ports | %d |", s.HostsWithPort)
	m.line("| Open Services | %d |", s.OpenServices)
	m.line("| Vulnerability Hints | %d |", s.VulnHints)
	for _, family := range sortedKeys(s.OSFamilies) {
		m.line("| OS %s | %d |", family, s.OSFamilies[family])
	}
	m.blank()
	m.line("**Enumeration End Time:** %s  ", doc.FinishedAt.Format(markdownTime))
	m.line("**Total Duration:** %s", doc.Duration)
}

// cell escapes a value for a Markdown table cell.
func cell(s string) string {
	s = strings.ReplaceAll(s, "|", `\|`)
	s = strings.ReplaceAll(s, "\r\n", "<br>")
	return strings.ReplaceAll(s, "\n", "<br>")
}

// fenceFor returns a backtick fence longer than any run inside s.
func fenceFor(s string) string {
	longest, run := 0, 0
	for _, r := range s {
		if r == '`' {
			run++
			if run > longest {
				longest = run
			}
			continue
		}
		run = 0
	}
	if longest < 3 {
		return "```"
	}
	return strings.Repeat("`", longest+1)
}

package report

import (
	"bytes"
	"encoding/json"
	"net/netip"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/anstrom/hostenum/internal/errors"
	"github.com/anstrom/hostenum/internal/model"
)

var (
	started  = time.Date(2024, 3, 9, 14, 5, 0, 0, time.UTC)
	finished = started.Add(90 * time.Second)
)

const generalOutput = "PORT    STATE SERVICE\n445/tcp open  microsoft-ds\n| uses ``` fences |\n"

func windowsRecord(t *testing.T) *model.HostRecord {
	t.Helper()
	rec := model.NewHostRecord(netip.MustParseAddr("10.0.0.5"))
	general := model.NewEvidence(model.SourceGeneral, "nmap -sV -sC -T4 --open -Pn -F 10.0.0.5", generalOutput, started)
	smb := model.NewEvidence(model.SourceSMB, "smbclient -L //10.0.0.5 -N", "Sharename Type Comment\n", started)
	require.True(t, model.AddEvidence(rec, general))
	require.True(t, model.AddEvidence(rec, smb))

	facts := []model.Fact{
		model.NewServiceFact(model.KindService, model.PortService{
			Port: 445, Protocol: model.ProtocolTCP, State: model.StateOpen, ServiceName: "microsoft-ds",
		}, model.ConfidenceVerified, general),
		model.NewServiceFact(model.KindService, model.PortService{
			Port: 3389, Protocol: model.ProtocolTCP, State: model.StateOpen, ServiceName: "ms-wbt-server",
		}, model.ConfidenceInferred, general),
		model.NewTextFact(model.KindHostname, "dc01.corp.local", model.ConfidenceVerified, general),
		model.NewTextFact(model.KindOSFamily, "WINDOWS", model.ConfidenceInferred, general),
		model.NewTextFact(model.KindOSVersionGuess, "Windows Server 2016", model.ConfidenceInferred, general),
		model.NewTextFact(model.KindVulnHint, "smb-vuln-ms17-010: VULNERABLE", model.ConfidenceInferred, general),
		model.NewTextFact(model.KindSMBShare, "ADMIN$", model.ConfidenceVerified, smb),
		model.NewTextFact(model.KindSMBShare, "Print|Docs", model.ConfidenceVerified, smb),
	}
	model.ApplyAll(rec, facts)
	model.Finalize(rec)
	return rec
}

func emptyRecord() *model.HostRecord {
	rec := model.NewHostRecord(netip.MustParseAddr("10.0.0.9"))
	model.Finalize(rec)
	return rec
}

func results(t *testing.T) *model.ResultSet {
	set := model.NewResultSet()
	set.Add(emptyRecord())
	set.Add(windowsRecord(t))
	return set
}

func meta() Meta {
	return Meta{
		RunID:      "run-1234",
		Targets:    "10.0.0.5,10.0.0.9",
		Profile:    "quick",
		StartedAt:  started,
		FinishedAt: finished,
	}
}

func TestRenderMarkdown(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Render(&buf, results(t), meta(), FormatMarkdown))
	out := buf.String()

	assert.True(t, strings.HasPrefix(out, "# Host Enumeration Report\n"))
	assert.Contains(t, out, "**Run ID:** `run-1234`")
	assert.Contains(t, out, "**Enumeration Start Time:** 2024-03-09 14:05:00 UTC")
	assert.Contains(t, out, "1. [10.0.0.5 (dc01.corp.local)](#host-1-10-0-0-5)")
	assert.Contains(t, out, "2. [10.0.0.9](#host-2-10-0-0-9)")

	assert.Contains(t, out, "| Hostname | dc01.corp.local |")
	assert.Contains(t, out, "| Active Services | microsoft-ds (445/tcp) |")
	assert.Contains(t, out, "| 445 | tcp | open | microsoft-ds |  |")
	assert.Contains(t, out, `| SMB Shares | ADMIN$, Print\|Docs |`)

	assert.Contains(t, out, "- Operating system type (inferred): WINDOWS")
	assert.Contains(t, out, "- OS version hint: Windows Server 2016")
	assert.Contains(t, out, "- Service 3389/tcp open: ms-wbt-server")
	assert.Contains(t, out, "- Potential vulnerability: smb-vuln-ms17-010: VULNERABLE")
	assert.NotContains(t, out, "| Operating System Type |", "inferred OS stays out of the verified table")

	// Raw output containing a triple backtick gets a longer fence.
	assert.Contains(t, out, "````\nPORT    STATE SERVICE\n445/tcp open  microsoft-ds\n| uses ``` fences |\n````")
	assert.Contains(t, out, "#### `nmap -sV -sC -T4 --open -Pn -F 10.0.0.5`")

	// The empty host is still reported with its gap marker.
	assert.Contains(t, out, "## Host 2: 10.0.0.9")
	assert.Contains(t, out, "- Note: no general scan evidence was captured for this host")
	assert.Contains(t, out, "_No output was captured for this command._")

	assert.Contains(t, out, "| Total Hosts | 2 |")
	assert.Contains(t, out, "| Windows Hosts | 1 |")
	assert.Contains(t, out, "| Open Services | 2 |")
	assert.Contains(t, out, "| OS UNKNOWN | 1 |")
	assert.Contains(t, out, "**Total Duration:** 1m30s")

	first := strings.Index(out, "## Host 1: 10.0.0.5")
	second := strings.Index(out, "## Host 2: 10.0.0.9")
	assert.True(t, first >= 0 && first < second, "hosts are ordered by address")
}

func TestRenderJSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Render(&buf, results(t), meta(), FormatJSON))

	var doc Document
	require.NoError(t, json.Unmarshal(buf.Bytes(), &doc))
	require.Len(t, doc.Hosts, 2)
	assert.Equal(t, "10.0.0.5", doc.Hosts[0].Address)
	assert.Equal(t, model.OSWindows, doc.Hosts[0].OSFamily)
	assert.Equal(t, "dc01.corp.local", doc.Hosts[0].Verified.Hostname)
	assert.Equal(t, []string{"Windows Server 2016"}, doc.Hosts[0].Inferred.OSVersionHints)
	assert.Len(t, doc.Hosts[0].Evidence, 2)
	assert.Equal(t, 2, doc.Summary.Hosts)
	assert.Equal(t, "1m30s", doc.Duration)
}

func TestRenderYAML(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Render(&buf, results(t), meta(), FormatYAML))

	var doc map[string]any
	require.NoError(t, yaml.Unmarshal(buf.Bytes(), &doc))
	assert.Equal(t, "Host Enumeration Report", doc["title"])
	hosts, ok := doc["hosts"].([]any)
	require.True(t, ok)
	assert.Len(t, hosts, 2)
}

func TestParseFormat(t *testing.T) {
	tests := []struct {
		in      string
		want    Format
		wantErr bool
	}{
		{"markdown", FormatMarkdown, false},
		{"MD", FormatMarkdown, false},
		{"", FormatMarkdown, false},
		{"json", FormatJSON, false},
		{"yml", FormatYAML, false},
		{"html", "", true},
	}
	for _, tt := range tests {
		got, err := ParseFormat(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseFormat(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseFormat(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestDefaultFilename(t *testing.T) {
	local := time.Date(2024, 3, 9, 16, 5, 0, 0, time.FixedZone("CEST", 2*3600))
	assert.Equal(t, "host_enumeration_report_20240309_1405_UTC.md", DefaultFilename(local, FormatMarkdown))
	assert.Equal(t, "host_enumeration_report_20240309_1405_UTC.json", DefaultFilename(local, FormatJSON))
	assert.Equal(t, "host_enumeration_report_20240309_1405_UTC.yaml", DefaultFilename(local, FormatYAML))
}

func TestWriteFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "reports", "nested", "out.md")
	require.NoError(t, WriteFile(path, results(t), meta(), FormatMarkdown))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "# Host Enumeration Report")

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())
}

func TestWriteFileBadDirectory(t *testing.T) {
	dir := t.TempDir()
	blocker := filepath.Join(dir, "file")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0600))

	err := WriteFile(filepath.Join(blocker, "out.md"), results(t), meta(), FormatMarkdown)
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.CodeDirectoryCreate))
}

func TestConsole(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Console(&buf, results(t)))
	out := buf.String()

	assert.Contains(t, out, "10.0.0.5")
	assert.Contains(t, out, "dc01.corp.local")
	assert.Contains(t, out, "WINDOWS")
	assert.Contains(t, out, "445/tcp")
	assert.Contains(t, out, "3389/tcp")
	assert.Contains(t, out, "10.0.0.9")
}

func TestServiceSummaryTruncates(t *testing.T) {
	var services []model.ServiceEntry
	for port := 1; port <= 9; port++ {
		services = append(services, model.ServiceEntry{PortService: model.PortService{
			Port: port, Protocol: model.ProtocolTCP, State: model.StateOpen,
		}})
	}
	got := serviceSummary(services)
	assert.True(t, strings.HasSuffix(got, "+3 more"), got)
}

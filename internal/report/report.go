// Package report renders finished host records as Markdown, JSON or YAML
// documents and as a console summary table. Rendering only formats what the
// model already holds; it never parses tool output.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/anstrom/hostenum/internal/errors"
	"github.com/anstrom/hostenum/internal/model"
)

const (
	reportDirPerm  = 0750
	reportFilePerm = 0600

	filenamePrefix  = "host_enumeration_report_"
	timestampLayout = "20060102_1504"
)

// Format is a report serialization.
type Format string

const (
	FormatMarkdown Format = "markdown"
	FormatJSON     Format = "json"
	FormatYAML     Format = "yaml"
)

// ParseFormat validates a format name. "md" and "yml" are accepted aliases.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "markdown", "md", "":
		return FormatMarkdown, nil
	case "json":
		return FormatJSON, nil
	case "yaml", "yml":
		return FormatYAML, nil
	}
	return "", fmt.Errorf("unsupported report format: %s", s)
}

// Extension returns the file extension for the format.
func (f Format) Extension() string {
	switch f {
	case FormatJSON:
		return "json"
	case FormatYAML:
		return "yaml"
	default:
		return "md"
	}
}

// Meta describes the run a report covers.
type Meta struct {
	RunID      string
	Targets    string
	Excluded   string
	Profile    string
	Version    string
	StartedAt  time.Time
	FinishedAt time.Time
	// Unresolved lists DNS target names that produced no address.
	Unresolved []string
}

// Summary holds run-wide counts.
type Summary struct {
	Hosts         int            `json:"hosts" yaml:"hosts"`
	WindowsHosts  int            `json:"windows_hosts" yaml:"windows_hosts"`
	HostsWithPort int            `json:"hosts_with_open_ports" yaml:"hosts_with_open_ports"`
	OpenServices  int            `json:"open_services" yaml:"open_services"`
	VulnHints     int            `json:"vuln_hints" yaml:"vuln_hints"`
	OSFamilies    map[string]int `json:"os_families" yaml:"os_families"`
}

// Document is the structured report.
type Document struct {
	Title       string           `json:"title" yaml:"title"`
	GeneratedAt time.Time        `json:"generated_at" yaml:"generated_at"`
	RunID       string           `json:"run_id,omitempty" yaml:"run_id,omitempty"`
	Version     string           `json:"version,omitempty" yaml:"version,omitempty"`
	Profile     string           `json:"profile,omitempty" yaml:"profile,omitempty"`
	Targets     string           `json:"targets,omitempty" yaml:"targets,omitempty"`
	Excluded    string           `json:"excluded,omitempty" yaml:"excluded,omitempty"`
	Unresolved  []string         `json:"unresolved,omitempty" yaml:"unresolved,omitempty"`
	StartedAt   time.Time        `json:"started_at" yaml:"started_at"`
	FinishedAt  time.Time        `json:"finished_at" yaml:"finished_at"`
	Duration    string           `json:"duration" yaml:"duration"`
	Hosts       []model.Snapshot `json:"hosts" yaml:"hosts"`
	Summary     Summary          `json:"summary" yaml:"summary"`
}

const reportTitle = "Host Enumeration Report"

// Build assembles the structured document for results.
func Build(results *model.ResultSet, meta Meta) Document {
	records := results.Records()
	doc := Document{
		Title:       reportTitle,
		GeneratedAt: meta.FinishedAt.UTC(),
		RunID:       meta.RunID,
		Version:     meta.Version,
		Profile:     meta.Profile,
		Targets:     meta.Targets,
		Excluded:    meta.Excluded,
		Unresolved:  meta.Unresolved,
		StartedAt:   meta.StartedAt.UTC(),
		FinishedAt:  meta.FinishedAt.UTC(),
		Duration:    meta.FinishedAt.Sub(meta.StartedAt).Round(time.Second).String(),
		Hosts:       make([]model.Snapshot, 0, len(records)),
		Summary:     summarize(records),
	}
	for _, rec := range records {
		doc.Hosts = append(doc.Hosts, rec.Snapshot())
	}
	return doc
}

func summarize(records []*model.HostRecord) Summary {
	s := Summary{Hosts: len(records), OSFamilies: make(map[string]int)}
	for _, rec := range records {
		family, _ := rec.OSFamily()
		s.OSFamilies[string(family)]++
		if model.NeedsWindowsEnumeration(rec) {
			s.WindowsHosts++
		}
		open := 0
		for _, svc := range rec.Services() {
			if svc.State == model.StateOpen {
				open++
			}
		}
		if open > 0 {
			s.HostsWithPort++
		}
		s.OpenServices += open
		s.VulnHints += len(rec.VulnHints())
	}
	return s
}

// Render writes results to w in the given format.
func Render(w io.Writer, results *model.ResultSet, meta Meta, format Format) error {
	doc := Build(results, meta)
	switch format {
	case FormatMarkdown:
		return renderMarkdown(w, results.Records(), doc)
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(doc)
	case FormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(doc); err != nil {
			return err
		}
		return enc.Close()
	}
	return fmt.Errorf("unsupported report format: %s", format)
}

// DefaultFilename returns host_enumeration_report_YYYYMMDD_HHMM_UTC.<ext>.
func DefaultFilename(t time.Time, format Format) string {
	return fmt.Sprintf("%s%s_UTC.%s", filenamePrefix, t.UTC().Format(timestampLayout), format.Extension())
}

// WriteFile renders the report to path, creating parent directories.
func WriteFile(path string, results *model.ResultSet, meta Meta, format Format) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, reportDirPerm); err != nil {
			return errors.WrapReportError(errors.CodeDirectoryCreate, "failed to create report directory", dir, err)
		}
	}

	// #nosec G304 - report path is chosen by the operator
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, reportFilePerm)
	if err != nil {
		return errors.WrapReportError(errors.CodeFilePermission, "failed to create report file", path, err)
	}

	if err := Render(f, results, meta, format); err != nil {
		_ = f.Close()
		e := errors.WrapReportError(errors.CodeReportFailed, "failed to render report", path, err)
		e.Format = string(format)
		return e
	}
	if err := f.Close(); err != nil {
		return errors.WrapReportError(errors.CodeReportFailed, "failed to write report", path, err)
	}
	return nil
}

func sortedKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

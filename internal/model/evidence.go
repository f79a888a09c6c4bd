// Package model holds the normalized host enumeration data model: evidence
// captured from external tools, the typed facts extracted from it, and the
// per-address host record those facts are folded into.
//
// A HostRecord is only ever mutated through AddEvidence, Apply and Finalize.
// Every merge is idempotent, so evidence resubmitted by a retried scan never
// duplicates data.
package model

import (
	"time"

	"github.com/google/uuid"
)

// Source tags the scan stage that produced a piece of evidence.
type Source string

const (
	SourceGeneral     Source = "general"
	SourceOSDetection Source = "os_detection"
	SourceUDP         Source = "udp"
	SourceSMB         Source = "smb"
	SourceNetBIOS     Source = "netbios"
	SourceLDAP        Source = "ldap"
	SourceSNMP        Source = "snmp"
	SourceImported    Source = "imported"
)

// Required reports whether evidence from this source is expected for every host.
// Only the general TCP scan and the OS detection scan are required; everything
// else is optional enrichment.
func (s Source) Required() bool {
	return s == SourceGeneral || s == SourceOSDetection
}

// Evidence is one executed command paired with its literal output.
// Values are treated as immutable once created.
type Evidence struct {
	ID         string    `json:"id" yaml:"id"`
	Command    string    `json:"command" yaml:"command"`
	RawOutput  string    `json:"raw_output" yaml:"raw_output"`
	CapturedAt time.Time `json:"captured_at" yaml:"captured_at"`
	Source     Source    `json:"source" yaml:"source"`
	// Synthetic is set on placeholder evidence created when a required scan
	// never produced any output.
	Synthetic bool `json:"synthetic,omitempty" yaml:"synthetic,omitempty"`
}

// NewEvidence captures a command and its output under a fresh identifier.
func NewEvidence(source Source, command, output string, capturedAt time.Time) Evidence {
	return Evidence{
		ID:         uuid.NewString(),
		Command:    command,
		RawOutput:  output,
		CapturedAt: capturedAt.UTC(),
		Source:     source,
	}
}

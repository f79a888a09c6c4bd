package model

import (
	"net/netip"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testAddr = netip.MustParseAddr("10.0.0.5")

func newTestRecord(t *testing.T, sources ...Source) (*HostRecord, []Evidence) {
	t.Helper()
	rec := NewHostRecord(testAddr)
	var evs []Evidence
	for i, src := range sources {
		ev := NewEvidence(src, "cmd "+string(src), "output", time.Date(2024, 1, 1, 0, 0, i, 0, time.UTC))
		require.True(t, AddEvidence(rec, ev))
		evs = append(evs, ev)
	}
	return rec, evs
}

func svc(port int, proto Protocol, state PortState, name, version string) PortService {
	return PortService{Port: port, Protocol: proto, State: state, ServiceName: name, ServiceVersion: version}
}

func snapshotOf(rec *HostRecord) Snapshot {
	return rec.Snapshot()
}

func TestApplyIdempotent(t *testing.T) {
	rec, evs := newTestRecord(t, SourceGeneral, SourceSMB)
	gen, smb := evs[0], evs[1]

	facts := []Fact{
		NewServiceFact(KindService, svc(22, ProtocolTCP, StateOpen, "ssh", "OpenSSH 8.2"), ConfidenceVerified, gen),
		NewServiceFact(KindService, svc(80, ProtocolTCP, StateOpen, "http", ""), ConfidenceInferred, gen),
		NewTextFact(KindOSFamily, "WINDOWS", ConfidenceInferred, gen),
		NewTextFact(KindOSVersionGuess, "Windows Server 2016", ConfidenceInferred, gen),
		NewTextFact(KindHostname, "dc01", ConfidenceVerified, gen),
		NewTextFact(KindDomain, "corp.local", ConfidenceVerified, smb),
		NewTextFact(KindSMBShare, "ADMIN$", ConfidenceVerified, smb),
		NewTextFact(KindSMBUser, "Administrator", ConfidenceVerified, smb),
		NewTextFact(KindNetBIOSName, "DC01", ConfidenceVerified, smb),
		NewTextFact(KindMACAddress, "00:0C:29:AA:BB:CC", ConfidenceVerified, smb),
		NewTextFact(KindLDAPContext, "DC=corp,DC=local", ConfidenceVerified, smb),
		NewTextFact(KindVulnHint, "smb-vuln-ms17-010: VULNERABLE", ConfidenceInferred, gen),
	}

	for _, f := range facts {
		t.Run(string(f.Kind), func(t *testing.T) {
			Apply(rec, f)
			before := snapshotOf(rec)
			assert.False(t, Apply(rec, f), "second apply must report no change")
			assert.Equal(t, before, snapshotOf(rec))
		})
	}
}

func TestApplyRejectsFactWithoutEvidence(t *testing.T) {
	rec := NewHostRecord(testAddr)
	orphan := NewEvidence(SourceGeneral, "nmap", "", time.Now())

	changed := Apply(rec, NewServiceFact(KindService, svc(22, ProtocolTCP, StateOpen, "ssh", ""), ConfidenceVerified, orphan))

	assert.False(t, changed)
	assert.Empty(t, rec.Services())
}

func TestApplyRejectsMalformedFacts(t *testing.T) {
	rec, evs := newTestRecord(t, SourceGeneral)
	ev := evs[0]

	tests := []struct {
		name string
		fact Fact
	}{
		{"port zero", NewServiceFact(KindService, svc(0, ProtocolTCP, StateOpen, "", ""), ConfidenceVerified, ev)},
		{"port too large", NewServiceFact(KindService, svc(70000, ProtocolTCP, StateOpen, "", ""), ConfidenceVerified, ev)},
		{"bad protocol", NewServiceFact(KindService, svc(22, "sctp", StateOpen, "", ""), ConfidenceVerified, ev)},
		{"missing payload", Fact{Kind: KindService, Confidence: ConfidenceVerified, EvidenceID: ev.ID}},
		{"unknown family", NewTextFact(KindOSFamily, "UNKNOWN", ConfidenceVerified, ev)},
		{"empty text", NewTextFact(KindSMBShare, "  ", ConfidenceVerified, ev)},
		{"no confidence", NewTextFact(KindHostname, "host", "", ev)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.False(t, Apply(rec, tt.fact))
		})
	}
	assert.Empty(t, rec.Services())
	assert.False(t, rec.Hostname().Set())
}

func TestServiceMergePolicy(t *testing.T) {
	t.Run("higher confidence replaces lower but keeps detail", func(t *testing.T) {
		rec, evs := newTestRecord(t, SourceGeneral, SourceGeneral)
		Apply(rec, NewServiceFact(KindService, svc(22, ProtocolTCP, StateFiltered, "ssh", "OpenSSH 8.2"), ConfidenceInferred, evs[0]))
		require.True(t, Apply(rec, NewServiceFact(KindOpenPort, svc(22, ProtocolTCP, StateOpen, "", ""), ConfidenceVerified, evs[1])))

		e, ok := rec.Service(22, ProtocolTCP)
		require.True(t, ok)
		assert.Equal(t, StateOpen, e.State)
		assert.Equal(t, "ssh", e.ServiceName)
		assert.Equal(t, "OpenSSH 8.2", e.ServiceVersion)
		assert.Equal(t, ConfidenceVerified, e.Confidence)
		assert.Equal(t, []string{evs[0].ID, evs[1].ID}, e.Evidence)
	})

	t.Run("lower confidence never replaces higher", func(t *testing.T) {
		rec, evs := newTestRecord(t, SourceGeneral)
		Apply(rec, NewServiceFact(KindService, svc(80, ProtocolTCP, StateOpen, "http", "nginx"), ConfidenceVerified, evs[0]))
		assert.False(t, Apply(rec, NewServiceFact(KindService, svc(80, ProtocolTCP, StateClosed, "www", "apache"), ConfidenceInferred, evs[0])))

		e, _ := rec.Service(80, ProtocolTCP)
		assert.Equal(t, svc(80, ProtocolTCP, StateOpen, "http", "nginx"), e.PortService)
	})

	t.Run("equal confidence fills absent detail only", func(t *testing.T) {
		rec, evs := newTestRecord(t, SourceGeneral, SourceGeneral)
		Apply(rec, NewServiceFact(KindOpenPort, svc(445, ProtocolTCP, StateOpen, "", ""), ConfidenceVerified, evs[0]))
		assert.True(t, Apply(rec, NewServiceFact(KindService, svc(445, ProtocolTCP, StateOpen, "microsoft-ds", ""), ConfidenceVerified, evs[1])))
		assert.False(t, Apply(rec, NewServiceFact(KindService, svc(445, ProtocolTCP, StateOpen, "smb", ""), ConfidenceVerified, evs[1])))

		e, _ := rec.Service(445, ProtocolTCP)
		assert.Equal(t, "microsoft-ds", e.ServiceName)
	})

	t.Run("same port different protocol are distinct keys", func(t *testing.T) {
		rec, evs := newTestRecord(t, SourceGeneral)
		Apply(rec, NewServiceFact(KindService, svc(53, ProtocolTCP, StateOpen, "domain", ""), ConfidenceVerified, evs[0]))
		Apply(rec, NewServiceFact(KindService, svc(53, ProtocolUDP, StateOpen, "domain", ""), ConfidenceVerified, evs[0]))
		assert.Len(t, rec.Services(), 2)
	})
}

func TestMergeOrderIndependence(t *testing.T) {
	rec1, evs := newTestRecord(t, SourceGeneral, SourceSMB)
	facts := []Fact{
		NewServiceFact(KindOpenPort, svc(139, ProtocolTCP, StateOpen, "", ""), ConfidenceVerified, evs[0]),
		NewServiceFact(KindService, svc(139, ProtocolTCP, StateOpen, "netbios-ssn", "Samba smbd"), ConfidenceVerified, evs[0]),
		NewServiceFact(KindService, svc(22, ProtocolTCP, StateOpen, "ssh", ""), ConfidenceVerified, evs[0]),
		NewTextFact(KindSMBShare, "IPC$", ConfidenceVerified, evs[1]),
		NewTextFact(KindSMBShare, "public", ConfidenceVerified, evs[1]),
		NewTextFact(KindSMBUser, "guest", ConfidenceVerified, evs[1]),
	}
	ApplyAll(rec1, facts)

	rec2 := NewHostRecord(testAddr)
	for _, ev := range evs {
		AddEvidence(rec2, ev)
	}
	reversed := make([]Fact, len(facts))
	for i, f := range facts {
		reversed[len(facts)-1-i] = f
	}
	ApplyAll(rec2, reversed)

	assert.Equal(t, rec1.Services(), rec2.Services())
	assert.ElementsMatch(t, rec1.Verified().Shares, rec2.Verified().Shares)
	assert.ElementsMatch(t, rec1.Verified().Users, rec2.Verified().Users)
	assert.Equal(t, rec1.Verified().Services, rec2.Verified().Services)
}

func TestSingletonMonotonicity(t *testing.T) {
	rec, evs := newTestRecord(t, SourceGeneral, SourceOSDetection, SourceSNMP)
	gen, osd, snmp := evs[0], evs[1], evs[2]

	require.True(t, Apply(rec, NewTextFact(KindOSFamily, "LINUX", ConfidenceInferred, snmp)))
	family, conf := rec.OSFamily()
	assert.Equal(t, OSLinux, family)
	assert.Equal(t, ConfidenceInferred, conf)

	// An inferred value is superseded by the first verified one.
	require.True(t, Apply(rec, NewTextFact(KindOSFamily, "WINDOWS", ConfidenceVerified, osd)))
	family, conf = rec.OSFamily()
	assert.Equal(t, OSWindows, family)
	assert.Equal(t, ConfidenceVerified, conf)

	// Verified values are permanent.
	assert.False(t, Apply(rec, NewTextFact(KindOSFamily, "LINUX", ConfidenceVerified, gen)))
	assert.False(t, Apply(rec, NewTextFact(KindOSFamily, "UNIX", ConfidenceInferred, gen)))
	assert.False(t, Apply(rec, NewTextFact(KindOSFamily, "UNKNOWN", ConfidenceVerified, gen)))
	family, conf = rec.OSFamily()
	assert.Equal(t, OSWindows, family)
	assert.Equal(t, ConfidenceVerified, conf)

	// Two inferred values: the first one stays.
	require.True(t, Apply(rec, NewTextFact(KindHostname, "web01", ConfidenceInferred, snmp)))
	assert.False(t, Apply(rec, NewTextFact(KindHostname, "web02", ConfidenceInferred, gen)))
	assert.Equal(t, "web01", rec.Hostname().Value)

	require.True(t, Apply(rec, NewTextFact(KindHostname, "web01", ConfidenceVerified, gen)))
	assert.Equal(t, ConfidenceVerified, rec.Hostname().Confidence)
	assert.Equal(t, []string{snmp.ID, gen.ID}, rec.Hostname().Evidence)
}

func TestSetFactsDeduplicate(t *testing.T) {
	// A retried SMB scan resubmits the same share.
	rec, evs := newTestRecord(t, SourceSMB, SourceSMB)
	first := NewTextFact(KindSMBShare, "ADMIN$", ConfidenceVerified, evs[0])
	retried := NewTextFact(KindSMBShare, "ADMIN$", ConfidenceVerified, evs[1])

	Apply(rec, first)
	Apply(rec, first)
	Apply(rec, retried)

	win := rec.Windows()
	require.NotNil(t, win)
	require.Len(t, win.Shares, 1)
	assert.Equal(t, "ADMIN$", win.Shares[0].Value)
}

func TestVersionHintsKeepDiscoveryOrder(t *testing.T) {
	rec, evs := newTestRecord(t, SourceOSDetection)
	for _, hint := range []string{"Windows Server 2012", "Windows Server 2016", "Windows Server 2012"} {
		Apply(rec, NewTextFact(KindOSVersionGuess, hint, ConfidenceInferred, evs[0]))
	}
	assert.Equal(t, []string{"Windows Server 2012", "Windows Server 2016"}, rec.Inferred().OSVersionHints)
}

func TestFinalizeMissingRequiredEvidence(t *testing.T) {
	rec, evs := newTestRecord(t, SourceSMB)
	Apply(rec, NewTextFact(KindSMBShare, "IPC$", ConfidenceVerified, evs[0]))

	Finalize(rec)

	family, _ := rec.OSFamily()
	assert.Equal(t, OSUnknown, family)
	assert.Empty(t, rec.Services())
	markers := rec.Markers()
	require.Len(t, markers, 1)
	assert.NotEmpty(t, markers[0].Value)
	assert.True(t, rec.Finalized())

	ev, ok := rec.EvidenceByID(markers[0].Evidence[0])
	require.True(t, ok)
	assert.True(t, ev.Synthetic)
}

func TestFinalizeOSDetectionWithoutGeneralScan(t *testing.T) {
	rec, evs := newTestRecord(t, SourceOSDetection)
	Apply(rec, NewTextFact(KindOSFamily, "LINUX", ConfidenceVerified, evs[0]))

	Finalize(rec)

	family, _ := rec.OSFamily()
	assert.Equal(t, OSLinux, family)
	markers := rec.Markers()
	require.Len(t, markers, 1)
	assert.Equal(t, markerNoRequiredEvidence, markers[0].Value)

	ev, ok := rec.EvidenceByID(markers[0].Evidence[0])
	require.True(t, ok)
	assert.True(t, ev.Synthetic)
	assert.Equal(t, SourceGeneral, ev.Source)
}

func TestFinalizeUnparseableGeneralWithOSDetection(t *testing.T) {
	rec, evs := newTestRecord(t, SourceGeneral, SourceOSDetection)
	Apply(rec, NewTextFact(KindOSFamily, "WINDOWS", ConfidenceVerified, evs[1]))

	Finalize(rec)

	assert.Empty(t, rec.Markers())
	assert.Len(t, rec.Evidence(), 2)
}

func TestFinalizeUnparseableRequiredEvidence(t *testing.T) {
	rec, evs := newTestRecord(t, SourceGeneral)

	Finalize(rec)

	markers := rec.Markers()
	require.Len(t, markers, 1)
	assert.Equal(t, markerNoStructure, markers[0].Value)
	assert.Equal(t, []string{evs[0].ID}, markers[0].Evidence)
	assert.Len(t, rec.Evidence(), 1)
}

func TestFinalizeWithStructureAddsNoMarker(t *testing.T) {
	rec, evs := newTestRecord(t, SourceGeneral)
	Apply(rec, NewServiceFact(KindService, svc(22, ProtocolTCP, StateOpen, "ssh", ""), ConfidenceVerified, evs[0]))

	Finalize(rec)
	Finalize(rec)

	assert.Empty(t, rec.Markers())
}

func TestFinalizedRecordIsReadOnly(t *testing.T) {
	rec, evs := newTestRecord(t, SourceGeneral)
	Finalize(rec)

	assert.False(t, Apply(rec, NewTextFact(KindHostname, "late", ConfidenceVerified, evs[0])))
	assert.False(t, AddEvidence(rec, NewEvidence(SourceGeneral, "nmap", "", time.Now())))
	assert.False(t, rec.Hostname().Set())
}

func TestEvidenceTraceability(t *testing.T) {
	rec, evs := newTestRecord(t, SourceGeneral, SourceSMB, SourceLDAP)
	ApplyAll(rec, []Fact{
		NewServiceFact(KindService, svc(389, ProtocolTCP, StateOpen, "ldap", ""), ConfidenceVerified, evs[0]),
		NewTextFact(KindSMBShare, "SYSVOL", ConfidenceVerified, evs[1]),
		NewTextFact(KindLDAPContext, "DC=corp,DC=local", ConfidenceVerified, evs[2]),
		NewTextFact(KindDomain, "corp.local", ConfidenceVerified, evs[2]),
	})
	Finalize(rec)

	refs := rec.ReferencedEvidence()
	require.NotEmpty(t, refs)
	for _, id := range refs {
		_, ok := rec.EvidenceByID(id)
		assert.True(t, ok, "evidence %s missing from log", id)
	}
}

func TestAddEvidenceKeepsExecutionOrder(t *testing.T) {
	rec, evs := newTestRecord(t, SourceGeneral, SourceOSDetection)
	assert.False(t, AddEvidence(rec, evs[0]))

	log := rec.Evidence()
	require.Len(t, log, 2)
	assert.Equal(t, evs[0].ID, log[0].ID)
	assert.Equal(t, evs[1].ID, log[1].ID)
}

func TestViewsSeparateTiers(t *testing.T) {
	rec, evs := newTestRecord(t, SourceGeneral, SourceSMB)
	ApplyAll(rec, []Fact{
		NewServiceFact(KindService, svc(22, ProtocolTCP, StateOpen, "ssh", ""), ConfidenceVerified, evs[0]),
		NewServiceFact(KindService, svc(8080, ProtocolTCP, StateOpen, "http-proxy", ""), ConfidenceInferred, evs[0]),
		NewTextFact(KindOSVersionGuess, "Windows 10 or later", ConfidenceInferred, evs[1]),
		NewTextFact(KindDomain, "CORP", ConfidenceVerified, evs[1]),
	})

	verified, inferred := rec.Verified(), rec.Inferred()
	assert.Equal(t, []PortService{svc(22, ProtocolTCP, StateOpen, "ssh", "")}, verified.Services)
	assert.Equal(t, []PortService{svc(8080, ProtocolTCP, StateOpen, "http-proxy", "")}, inferred.Services)
	assert.Equal(t, "CORP", verified.Domain)
	assert.Empty(t, inferred.Domain)
	assert.Equal(t, []string{"Windows 10 or later"}, inferred.OSVersionHints)
	assert.Empty(t, verified.OSVersionHints)
}

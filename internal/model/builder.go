package model

const (
	markerNoRequiredEvidence = "no general scan evidence was captured for this host"
	markerNoStructure        = "general scan output contained no recognizable port or OS information"
	placeholderCommand       = "(general scan not captured)"
)

// AddEvidence appends ev to the record's evidence log. Evidence already in the
// log is ignored, as is any evidence offered after the record was finalized.
func AddEvidence(rec *HostRecord, ev Evidence) bool {
	if rec.finalized || ev.ID == "" {
		return false
	}
	if _, ok := rec.evidenceIndex[ev.ID]; ok {
		return false
	}
	rec.evidenceIndex[ev.ID] = len(rec.evidence)
	rec.evidence = append(rec.evidence, ev)
	return true
}

// Apply folds one fact into the record and reports whether anything changed.
//
// Facts that are malformed, that reference evidence missing from the record
// or that arrive after Finalize are dropped. Applying the same fact twice is
// always a no-op the second time.
func Apply(rec *HostRecord, f Fact) bool {
	if rec.finalized || !f.Valid() {
		return false
	}
	if _, ok := rec.evidenceIndex[f.EvidenceID]; !ok {
		return false
	}

	var changed bool
	switch f.Kind {
	case KindOpenPort, KindService:
		changed = mergeService(rec, *f.Service, f.Confidence, f.EvidenceID)
	case KindOSFamily:
		changed = mergeSingleton(&rec.osFamily, string(ParseOSFamily(f.Text)), f.Confidence, f.EvidenceID)
	case KindHostname:
		changed = mergeSingleton(&rec.hostname, f.Text, f.Confidence, f.EvidenceID)
	case KindDomain:
		changed = mergeSingleton(&rec.domain, f.Text, f.Confidence, f.EvidenceID)
	case KindOSVersionGuess:
		changed = rec.versionHints.add(f.Text, f.Confidence, f.EvidenceID)
	case KindVulnHint:
		changed = rec.vulnHints.add(f.Text, f.Confidence, f.EvidenceID)
	case KindMarker:
		changed = rec.markers.add(f.Text, f.Confidence, f.EvidenceID)
	case KindSMBShare:
		changed = rec.windowsInfo().shares.add(f.Text, f.Confidence, f.EvidenceID)
	case KindSMBUser:
		changed = rec.windowsInfo().users.add(f.Text, f.Confidence, f.EvidenceID)
	case KindLDAPContext:
		changed = rec.windowsInfo().ldapContexts.add(f.Text, f.Confidence, f.EvidenceID)
	case KindNetBIOSName:
		changed = mergeSingleton(&rec.windowsInfo().netbiosName, f.Text, f.Confidence, f.EvidenceID)
	case KindMACAddress:
		changed = mergeSingleton(&rec.windowsInfo().macAddress, f.Text, f.Confidence, f.EvidenceID)
	default:
		return false
	}

	if f.Kind != KindMarker {
		rec.structured[f.EvidenceID] = struct{}{}
	}
	return changed
}

// ApplyAll applies facts in order and returns how many changed the record.
func ApplyAll(rec *HostRecord, facts []Fact) int {
	n := 0
	for _, f := range facts {
		if Apply(rec, f) {
			n++
		}
	}
	return n
}

// Finalize freezes the record. A record without a captured general scan gets
// a marker backed by a synthetic placeholder, even when OS detection found
// something. A record whose required scans produced no structure gets a
// marker backed by the last required evidence.
func Finalize(rec *HostRecord) {
	if rec.finalized {
		return
	}
	switch {
	case !rec.hasGeneralEvidence():
		ev := Evidence{
			ID:         "placeholder-" + rec.address.String(),
			Command:    placeholderCommand,
			CapturedAt: rec.createdAt,
			Source:     SourceGeneral,
			Synthetic:  true,
		}
		AddEvidence(rec, ev)
		Apply(rec, NewTextFact(KindMarker, markerNoRequiredEvidence, ConfidenceVerified, ev))
	case !rec.hasRequiredStructure():
		ev, _ := rec.lastRequiredEvidence()
		Apply(rec, NewTextFact(KindMarker, markerNoStructure, ConfidenceVerified, ev))
	}
	rec.finalized = true
}

func (r *HostRecord) windowsInfo() *windowsInfo {
	if r.windows == nil {
		r.windows = &windowsInfo{}
	}
	return r.windows
}

func (r *HostRecord) hasGeneralEvidence() bool {
	for _, ev := range r.evidence {
		if ev.Source == SourceGeneral && !ev.Synthetic {
			return true
		}
	}
	return false
}

func (r *HostRecord) hasRequiredStructure() bool {
	for _, ev := range r.evidence {
		if !ev.Source.Required() {
			continue
		}
		if _, ok := r.structured[ev.ID]; ok {
			return true
		}
	}
	return false
}

func (r *HostRecord) lastRequiredEvidence() (Evidence, bool) {
	for i := len(r.evidence) - 1; i >= 0; i-- {
		if r.evidence[i].Source.Required() && !r.evidence[i].Synthetic {
			return r.evidence[i], true
		}
	}
	return Evidence{}, false
}

// mergeSingleton implements first-verified-wins. An inferred value only lands
// on an unset field and is replaced by the first verified value.
func mergeSingleton(a *Attribute, value string, conf Confidence, evidenceID string) bool {
	switch {
	case !a.Set():
		*a = Attribute{Value: value, Confidence: conf, Evidence: []string{evidenceID}}
		return true
	case a.Value == value:
		if conf.Rank() > a.Confidence.Rank() {
			a.Confidence = conf
			a.Evidence = appendUnique(a.Evidence, evidenceID)
			return true
		}
		return false
	case a.Confidence != ConfidenceVerified && conf == ConfidenceVerified:
		*a = Attribute{Value: value, Confidence: conf, Evidence: []string{evidenceID}}
		return true
	}
	return false
}

// mergeService applies the keyed policy for (port, protocol). Higher
// confidence replaces lower without blanking populated detail; equal
// confidence only fills in absent detail.
func mergeService(rec *HostRecord, svc PortService, conf Confidence, evidenceID string) bool {
	key := svc.Key()
	existing, ok := rec.services[key]
	if !ok {
		rec.services[key] = &ServiceEntry{PortService: svc, Confidence: conf, Evidence: []string{evidenceID}}
		return true
	}

	switch {
	case conf.Rank() > existing.Confidence.Rank():
		merged := svc
		if merged.ServiceName == "" {
			merged.ServiceName = existing.ServiceName
		}
		if merged.ServiceVersion == "" {
			merged.ServiceVersion = existing.ServiceVersion
		}
		existing.PortService = merged
		existing.Confidence = conf
		existing.Evidence = appendUnique(existing.Evidence, evidenceID)
		return true
	case conf.Rank() == existing.Confidence.Rank():
		changed := false
		if existing.ServiceName == "" && svc.ServiceName != "" {
			existing.ServiceName = svc.ServiceName
			changed = true
		}
		if existing.ServiceVersion == "" && svc.ServiceVersion != "" {
			existing.ServiceVersion = svc.ServiceVersion
			changed = true
		}
		if changed {
			existing.Evidence = appendUnique(existing.Evidence, evidenceID)
		}
		return changed
	}
	return false
}

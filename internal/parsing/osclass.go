package parsing

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/anstrom/hostenum/internal/model"
)

// osCandidate is one OS match reported by a tool. Scores are opaque: only
// their ordering is used, never their scale.
type osCandidate struct {
	name   string
	score  float64
	scored bool
}

var (
	scoredCandidate = regexp.MustCompile(`\s*(?:or\s+)?(.+?)\s+\((\d+(?:\.\d+)?)%\)(?:,|$)`)
	candidateSplit  = regexp.MustCompile(`,\s*(?:or\s+)?`)
)

// nmapOSLabels lists the nmap OS lines from most to least specific.
var nmapOSLabels = []string{"OS details", "Aggressive OS guesses", "Running (JUST GUESSING)", "Running"}

// parseCandidates splits "A (96%), B (92%)" or "A, B, or C" into candidates.
func parseCandidates(list string) []osCandidate {
	var out []osCandidate
	if ms := scoredCandidate.FindAllStringSubmatch(list, -1); len(ms) > 0 {
		for _, m := range ms {
			score, err := strconv.ParseFloat(m[2], 64)
			if err != nil {
				continue
			}
			out = append(out, osCandidate{name: strings.TrimSpace(m[1]), score: score, scored: true})
		}
		return out
	}
	for _, part := range candidateSplit.Split(list, -1) {
		if name := strings.TrimSpace(part); name != "" {
			out = append(out, osCandidate{name: name})
		}
	}
	return out
}

// topCandidates returns the candidates sharing the highest score. When no
// candidate carries a score they all tie.
func topCandidates(cands []osCandidate) []osCandidate {
	var best float64
	anyScored := false
	for _, c := range cands {
		if c.scored && (!anyScored || c.score > best) {
			best = c.score
			anyScored = true
		}
	}

	var top []osCandidate
	seen := make(map[string]bool)
	for _, c := range cands {
		if anyScored && (!c.scored || c.score != best) {
			continue
		}
		if seen[c.name] {
			continue
		}
		seen[c.name] = true
		top = append(top, c)
	}
	return top
}

// classifyOS emits the family and version guesses for a candidate list.
// A unique best match yields its family at the dominant confidence and one
// version guess. A tie yields the keyword family as inferred, and only when
// every tied candidate agrees, plus every tied candidate as a version guess.
func classifyOS(cands []osCandidate, dominant model.Confidence, e *emitter) {
	top := topCandidates(cands)
	switch len(top) {
	case 0:
		return
	case 1:
		if family := familyOf(top[0].name); family != model.OSUnknown {
			e.textAs(model.KindOSFamily, string(family), dominant)
		}
		e.textAs(model.KindOSVersionGuess, top[0].name, inferred)
		return
	}

	family := familyOf(top[0].name)
	for _, c := range top[1:] {
		if familyOf(c.name) != family {
			family = model.OSUnknown
			break
		}
	}
	if family != model.OSUnknown {
		e.textAs(model.KindOSFamily, string(family), inferred)
	}
	for _, c := range top {
		e.textAs(model.KindOSVersionGuess, c.name, inferred)
	}
}

var familyKeywords = []struct {
	family   model.OSFamily
	keywords []string
}{
	{model.OSWindows, []string{"windows", "microsoft", "win32"}},
	{model.OSLinux, []string{"linux", "ubuntu", "debian", "centos", "red hat", "fedora", "suse"}},
	{model.OSUnix, []string{"freebsd", "openbsd", "netbsd", "solaris", "sunos", "aix", "hp-ux", "unix", "mac os x", "macos", "darwin"}},
}

// sambaLinuxHints mark a Samba banner from a Linux distribution.
var sambaLinuxHints = []string{"ubuntu", "debian", "centos", "red hat", "fedora", "suse", "linux"}

// familyOf classifies free text by keyword. Samba reports a Windows
// compatibility version, so it is checked first.
func familyOf(s string) model.OSFamily {
	lower := strings.ToLower(s)
	if strings.Contains(lower, "samba") {
		for _, kw := range sambaLinuxHints {
			if strings.Contains(lower, kw) {
				return model.OSLinux
			}
		}
		return model.OSUnix
	}
	for _, fk := range familyKeywords {
		for _, kw := range fk.keywords {
			if strings.Contains(lower, kw) {
				return fk.family
			}
		}
	}
	return model.OSUnknown
}

func extractNmapOS(matches []Match, e *emitter) {
	values := make(map[string]string)
	for _, m := range matches {
		if _, ok := values[m.Groups[1]]; !ok {
			values[m.Groups[1]] = m.Groups[2]
		}
	}
	for _, label := range nmapOSLabels {
		if v, ok := values[label]; ok {
			classifyOS(parseCandidates(v), e.conf, e)
			return
		}
	}
}

// extractKeywordOS classifies single OS strings such as SMB banners or an
// SNMP sysDescr by keyword only.
func extractKeywordOS(withHint bool) Extractor {
	return func(matches []Match, e *emitter) {
		for _, m := range matches {
			value := strings.TrimSpace(m.Groups[1])
			if family := familyOf(value); family != model.OSUnknown {
				e.text(model.KindOSFamily, string(family))
			}
			if withHint {
				e.textAs(model.KindOSVersionGuess, value, inferred)
			}
		}
	}
}

// extractEnum4linuxOS handles "OS: a, b, c" candidate lists and bare
// "OS version: 10.0" lines, which only bound the version from below.
func extractEnum4linuxOS(matches []Match, e *emitter) {
	for _, m := range matches {
		label, value := strings.ToLower(m.Groups[1]), strings.TrimSpace(m.Groups[2])
		if label == "os" {
			classifyOS(parseCandidates(value), inferred, e)
			continue
		}
		if family := familyOf(value); family != model.OSUnknown {
			e.text(model.KindOSFamily, string(family))
		}
		e.textAs(model.KindOSVersionGuess, "at least version "+value, inferred)
	}
}

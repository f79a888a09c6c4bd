package parsing

import (
	"regexp"

	"github.com/anstrom/hostenum/internal/model"
)

// Scope selects the unit of output a rule is matched against.
type Scope int

const (
	// ScopeLine matches one line at a time.
	ScopeLine Scope = iota
	// ScopeBlock matches the whole (host scoped) output; a match may span lines.
	ScopeBlock
)

// Match is one structural match handed to an extractor.
type Match struct {
	// Groups holds the pattern's submatches, Groups[0] being the full match.
	Groups []string
	// Text is the matched line for line rules and the matched span for block rules.
	Text string
}

// Extractor maps matches to facts. Line rules receive exactly one match,
// block rules receive every non-overlapping match of their pattern at once.
type Extractor func(matches []Match, e *emitter)

// Rule is one entry of the extraction table.
type Rule struct {
	Name       string
	Kind       model.FactKind
	Scope      Scope
	Pattern    *regexp.Regexp
	Confidence model.Confidence
	Extract    Extractor
	// Exclusive block rules claim the whole evidence record for their kind,
	// so no later rule of the same kind runs once they match.
	Exclusive bool
}

// each adapts a per-match mapping into an Extractor.
func each(fn func(groups []string, e *emitter)) Extractor {
	return func(matches []Match, e *emitter) {
		for _, m := range matches {
			fn(m.Groups, e)
		}
	}
}

// group1 emits the first submatch as a text fact of the rule's kind.
func group1(kind model.FactKind) Extractor {
	return each(func(g []string, e *emitter) {
		e.text(kind, g[1])
	})
}

// emitter accumulates the facts produced for one evidence record.
type emitter struct {
	ev    model.Evidence
	host  HostContext
	conf  model.Confidence
	facts []model.Fact
}

func (e *emitter) text(kind model.FactKind, value string) {
	e.textAs(kind, value, e.conf)
}

func (e *emitter) textAs(kind model.FactKind, value string, conf model.Confidence) {
	f := model.NewTextFact(kind, value, conf, e.ev)
	if f.Text == "" {
		return
	}
	e.facts = append(e.facts, f)
}

func (e *emitter) service(kind model.FactKind, svc model.PortService, conf model.Confidence) {
	e.facts = append(e.facts, model.NewServiceFact(kind, svc, conf, e.ev))
}

// forHost reports whether an address printed in the output refers to the
// host being parsed. Without a host context every address is accepted.
func (e *emitter) forHost(addr string) bool {
	if !e.host.Address.IsValid() {
		return true
	}
	return addr == e.host.Address.String()
}

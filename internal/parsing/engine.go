// Package parsing turns raw tool output into typed facts.
//
// Extraction is table driven. Each Rule pairs a pattern with a field mapping
// and a confidence tier; rules are grouped by the fact kind they produce and
// tried in table order. Inside one kind the first structural match for a unit
// of output wins: a line rule claims the line it matched, a block rule claims
// the lines its match spans, and an exclusive block rule claims the whole
// evidence record. Kinds never interfere with each other.
//
// Parsing never fails. Output that matches nothing yields no facts.
package parsing

import (
	"net/netip"
	"regexp"
	"strings"

	"github.com/anstrom/hostenum/internal/model"
)

// HostContext carries the explicit inputs a parse needs beyond the evidence.
type HostContext struct {
	// Address is the host being enumerated. When valid, multi-host tool output
	// is narrowed to the section for this address.
	Address netip.Addr
}

// Engine applies a fixed rule table. It holds no mutable state and is safe for
// concurrent use.
type Engine struct {
	groups   []ruleGroup
	decoders []decoder
}

type ruleGroup struct {
	kind  model.FactKind
	block []Rule
	line  []Rule
}

// NewEngine builds an engine over rules. Rules keep their relative order
// within a kind; block rules of a kind are always tried before its line rules.
func NewEngine(rules []Rule) *Engine {
	e := &Engine{decoders: defaultDecoders}
	index := make(map[model.FactKind]int)
	for _, r := range rules {
		i, ok := index[r.Kind]
		if !ok {
			i = len(e.groups)
			index[r.Kind] = i
			e.groups = append(e.groups, ruleGroup{kind: r.Kind})
		}
		if r.Scope == ScopeBlock {
			e.groups[i].block = append(e.groups[i].block, r)
		} else {
			e.groups[i].line = append(e.groups[i].line, r)
		}
	}
	return e
}

var defaultEngine = NewEngine(DefaultRules())

// Default returns the engine built from DefaultRules.
func Default() *Engine { return defaultEngine }

// Parse extracts facts from ev with the default engine.
func Parse(ev model.Evidence, host HostContext) []model.Fact {
	return defaultEngine.Parse(ev, host)
}

// Parse extracts facts from ev. The result depends only on the arguments.
func (e *Engine) Parse(ev model.Evidence, host HostContext) []model.Fact {
	raw := strings.ReplaceAll(ev.RawOutput, "\r\n", "\n")
	for _, d := range e.decoders {
		if d.detect(raw) {
			em := &emitter{ev: ev, host: host}
			d.decode(raw, em)
			return em.facts
		}
	}

	text := hostSection(raw, host.Address)
	if strings.TrimSpace(text) == "" {
		return nil
	}
	lines := strings.Split(text, "\n")
	starts := lineStarts(lines)

	var facts []model.Fact
	for _, g := range e.groups {
		claimed := make([]bool, len(lines))
		em := &emitter{ev: ev, host: host}
		if e.runBlockRules(g, text, starts, claimed, em) {
			facts = append(facts, em.facts...)
			continue
		}
		for i, line := range lines {
			if claimed[i] {
				continue
			}
			for _, r := range g.line {
				groups := r.Pattern.FindStringSubmatch(line)
				if groups == nil {
					continue
				}
				em.conf = r.Confidence
				r.Extract([]Match{{Groups: groups, Text: line}}, em)
				claimed[i] = true
				break
			}
		}
		facts = append(facts, em.facts...)
	}
	return facts
}

// runBlockRules applies the block rules of g and reports whether an exclusive
// rule claimed the whole evidence.
func (e *Engine) runBlockRules(g ruleGroup, text string, starts []int, claimed []bool, em *emitter) bool {
	for _, r := range g.block {
		var matches []Match
		for _, loc := range r.Pattern.FindAllStringSubmatchIndex(text, -1) {
			first, last := lineRange(starts, loc[0], loc[1])
			if anyClaimed(claimed, first, last) {
				continue
			}
			matches = append(matches, Match{Groups: submatches(text, loc), Text: text[loc[0]:loc[1]]})
			for i := first; i <= last; i++ {
				claimed[i] = true
			}
		}
		if len(matches) == 0 {
			continue
		}
		em.conf = r.Confidence
		r.Extract(matches, em)
		if r.Exclusive {
			return true
		}
	}
	return false
}

var reportHeader = regexp.MustCompile(`(?m)^Nmap scan report for (.+)$`)

// hostSection narrows nmap output that covers several hosts to the section
// for addr. Output without report headers is returned unchanged. When headers
// exist but none names addr, nothing is returned.
func hostSection(raw string, addr netip.Addr) string {
	if !addr.IsValid() {
		return raw
	}
	locs := reportHeader.FindAllStringSubmatchIndex(raw, -1)
	if len(locs) == 0 {
		return raw
	}
	want := addr.String()
	for i, loc := range locs {
		target := raw[loc[2]:loc[3]]
		if !headerNames(target, want) {
			continue
		}
		end := len(raw)
		if i+1 < len(locs) {
			end = locs[i+1][0]
		}
		return raw[loc[0]:end]
	}
	return ""
}

func headerNames(target, addr string) bool {
	target = strings.TrimSpace(target)
	if target == addr {
		return true
	}
	return strings.HasSuffix(target, "("+addr+")")
}

func lineStarts(lines []string) []int {
	starts := make([]int, len(lines))
	offset := 0
	for i, l := range lines {
		starts[i] = offset
		offset += len(l) + 1
	}
	return starts
}

// lineRange maps the byte range [start, end) to the first and last line index
// it touches.
func lineRange(starts []int, start, end int) (int, int) {
	if end > start {
		end--
	}
	return lineAt(starts, start), lineAt(starts, end)
}

func lineAt(starts []int, offset int) int {
	lo, hi := 0, len(starts)-1
	for lo < hi {
		mid := (lo + hi + 1) / 2
		if starts[mid] <= offset {
			lo = mid
		} else {
			hi = mid - 1
		}
	}
	return lo
}

func anyClaimed(claimed []bool, first, last int) bool {
	for i := first; i <= last; i++ {
		if claimed[i] {
			return true
		}
	}
	return false
}

func submatches(text string, loc []int) []string {
	out := make([]string, len(loc)/2)
	for i := range out {
		if loc[2*i] >= 0 {
			out[i] = text[loc[2*i]:loc[2*i+1]]
		}
	}
	return out
}

// Package targets parses target specifications into IPv4 host addresses.
//
// A specification is a comma-separated list of IPv4 addresses, CIDR blocks,
// last-octet ranges (10.0.0.1-20), full ranges (10.0.0.1-10.0.1.5) and DNS
// names. DNS names are resolved to their A records through a Resolver.
package targets

import (
	"context"
	"fmt"
	"net/netip"
	"sort"
	"strconv"
	"strings"

	"github.com/anstrom/hostenum/internal/errors"
)

// MaxAddresses bounds a single expansion to the size of a /16.
const MaxAddresses = 1 << 16

// Expansion is the result of expanding an include and exclude specification.
type Expansion struct {
	// Targets are the unique included addresses minus exclusions, sorted.
	Targets []netip.Addr
	// Unresolved lists DNS names that produced no A record.
	Unresolved []string
	// Resolved maps each resolved DNS name to its addresses.
	Resolved map[string][]netip.Addr
}

// Expand parses include and exclude and returns the difference.
func Expand(ctx context.Context, include, exclude string, r Resolver) (*Expansion, error) {
	inc, err := parse(ctx, include, r)
	if err != nil {
		return nil, err
	}
	if len(inc.addrs) == 0 && len(inc.unresolved) == 0 {
		return nil, errors.NewTargetError(errors.CodeTargetInvalid, "no targets specified", include)
	}
	exc, err := parse(ctx, exclude, r)
	if err != nil {
		return nil, err
	}

	out := &Expansion{
		Unresolved: append(inc.unresolved, exc.unresolved...),
		Resolved:   inc.resolved,
	}
	for name, addrs := range exc.resolved {
		out.Resolved[name] = addrs
	}
	for a := range inc.addrs {
		if _, excluded := exc.addrs[a]; !excluded {
			out.Targets = append(out.Targets, a)
		}
	}
	sort.Slice(out.Targets, func(i, j int) bool { return out.Targets[i].Less(out.Targets[j]) })
	return out, nil
}

// Parse expands a single specification into sorted unique addresses.
func Parse(ctx context.Context, spec string, r Resolver) ([]netip.Addr, error) {
	set, err := parse(ctx, spec, r)
	if err != nil {
		return nil, err
	}
	addrs := make([]netip.Addr, 0, len(set.addrs))
	for a := range set.addrs {
		addrs = append(addrs, a)
	}
	sort.Slice(addrs, func(i, j int) bool { return addrs[i].Less(addrs[j]) })
	return addrs, nil
}

// HasDNSNames reports whether spec contains any entry that is not an
// address, CIDR block or range.
func HasDNSNames(spec string) bool {
	for _, part := range splitSpec(spec) {
		if kindOf(part) == entryName {
			return true
		}
	}
	return false
}

type entryKind int

const (
	entryAddr entryKind = iota
	entryCIDR
	entryRange
	entryName
)

func kindOf(part string) entryKind {
	switch {
	case strings.Contains(part, "/"):
		return entryCIDR
	case strings.Contains(part, ":"):
		// IPv6 literal; rejected during parsing
		return entryAddr
	case looksNumeric(part) && strings.Contains(part, "-"):
		return entryRange
	case looksNumeric(part):
		return entryAddr
	default:
		return entryName
	}
}

// looksNumeric is true for strings made of digits, dots and dashes only.
func looksNumeric(s string) bool {
	for _, c := range s {
		if (c < '0' || c > '9') && c != '.' && c != '-' {
			return false
		}
	}
	return s != ""
}

func splitSpec(spec string) []string {
	var parts []string
	for _, p := range strings.Split(spec, ",") {
		if p = strings.TrimSpace(p); p != "" {
			parts = append(parts, p)
		}
	}
	return parts
}

type addrSet struct {
	addrs      map[netip.Addr]struct{}
	unresolved []string
	resolved   map[string][]netip.Addr
}

func (s *addrSet) add(a netip.Addr) error {
	s.addrs[a] = struct{}{}
	if len(s.addrs) > MaxAddresses {
		return errors.NewTargetError(errors.CodeTargetTooLarge,
			fmt.Sprintf("expansion exceeds %d addresses", MaxAddresses), "")
	}
	return nil
}

func parse(ctx context.Context, spec string, r Resolver) (*addrSet, error) {
	set := &addrSet{
		addrs:    make(map[netip.Addr]struct{}),
		resolved: make(map[string][]netip.Addr),
	}
	for _, part := range splitSpec(spec) {
		var err error
		switch kindOf(part) {
		case entryCIDR:
			err = addCIDR(set, part)
		case entryRange:
			err = addRange(set, part)
		case entryAddr:
			err = addAddr(set, part)
		case entryName:
			err = addName(ctx, set, part, r)
		}
		if err != nil {
			return nil, err
		}
	}
	return set, nil
}

func parseIPv4(s, spec string) (netip.Addr, error) {
	a, err := netip.ParseAddr(s)
	if err != nil {
		return netip.Addr{}, errors.WrapTargetError(errors.CodeTargetInvalid, "invalid IP address", spec, err)
	}
	if !a.Is4() {
		return netip.Addr{}, errors.NewTargetError(errors.CodeTargetInvalid, "only IPv4 targets are supported", spec)
	}
	return a, nil
}

func addAddr(set *addrSet, part string) error {
	a, err := parseIPv4(part, part)
	if err != nil {
		return err
	}
	return set.add(a)
}

func addCIDR(set *addrSet, part string) error {
	prefix, err := netip.ParsePrefix(part)
	if err != nil {
		return errors.WrapTargetError(errors.CodeTargetInvalid, "invalid CIDR block", part, err)
	}
	if !prefix.Addr().Is4() {
		return errors.NewTargetError(errors.CodeTargetInvalid, "only IPv4 targets are supported", part)
	}
	if prefix.Bits() < 16 {
		return errors.NewTargetError(errors.CodeTargetTooLarge, "CIDR blocks larger than /16 are not allowed", part)
	}
	prefix = prefix.Masked()

	// /31 and /32 have no network or broadcast address to drop.
	if prefix.Bits() >= 31 {
		for a := prefix.Addr(); prefix.Contains(a); a = a.Next() {
			if err := set.add(a); err != nil {
				return err
			}
		}
		return nil
	}

	first := prefix.Addr().Next()
	for a := first; prefix.Contains(a.Next()); a = a.Next() {
		if err := set.add(a); err != nil {
			return err
		}
	}
	return nil
}

func addRange(set *addrSet, part string) error {
	lo, hi, ok := strings.Cut(part, "-")
	if !ok || strings.Contains(hi, "-") {
		return errors.NewTargetError(errors.CodeTargetInvalid, "invalid address range", part)
	}
	start, err := parseIPv4(lo, part)
	if err != nil {
		return err
	}

	var end netip.Addr
	if strings.Contains(hi, ".") {
		if end, err = parseIPv4(hi, part); err != nil {
			return err
		}
	} else {
		octet, convErr := strconv.Atoi(hi)
		if convErr != nil || octet < 0 || octet > 255 {
			return errors.NewTargetError(errors.CodeTargetInvalid, "invalid range end octet", part)
		}
		b := start.As4()
		b[3] = byte(octet)
		end = netip.AddrFrom4(b)
	}

	if end.Less(start) {
		return errors.NewTargetError(errors.CodeTargetInvalid, "range end precedes range start", part)
	}
	if rangeSize(start, end) > MaxAddresses {
		return errors.NewTargetError(errors.CodeTargetTooLarge,
			fmt.Sprintf("range exceeds %d addresses", MaxAddresses), part)
	}

	for a := start; ; a = a.Next() {
		if err := set.add(a); err != nil {
			return err
		}
		if a == end {
			return nil
		}
	}
}

func rangeSize(start, end netip.Addr) uint64 {
	s, e := start.As4(), end.As4()
	toInt := func(b [4]byte) uint64 {
		return uint64(b[0])<<24 | uint64(b[1])<<16 | uint64(b[2])<<8 | uint64(b[3])
	}
	return toInt(e) - toInt(s) + 1
}

func addName(ctx context.Context, set *addrSet, name string, r Resolver) error {
	if r == nil {
		return errors.NewTargetError(errors.CodeDNSResolution, "no resolver configured for DNS target", name)
	}
	addrs, err := r.LookupA(ctx, name)
	if err != nil || len(addrs) == 0 {
		set.unresolved = append(set.unresolved, name)
		return nil
	}
	set.resolved[name] = addrs
	for _, a := range addrs {
		if err := set.add(a); err != nil {
			return err
		}
	}
	return nil
}

package model

import (
	"net/netip"
	"sort"
	"sync"
)

// ResultSet collects finished host records. Add is safe for concurrent use.
type ResultSet struct {
	mu      sync.Mutex
	records map[netip.Addr]*HostRecord
}

// NewResultSet creates an empty result set.
func NewResultSet() *ResultSet {
	return &ResultSet{records: make(map[netip.Addr]*HostRecord)}
}

// Add stores rec, replacing any earlier record for the same address.
func (s *ResultSet) Add(rec *HostRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[rec.Address()] = rec
}

// Get returns the record for addr.
func (s *ResultSet) Get(addr netip.Addr) (*HostRecord, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[addr]
	return rec, ok
}

// Len returns the number of records.
func (s *ResultSet) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}

// Records returns the records ordered by address.
func (s *ResultSet) Records() []*HostRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*HostRecord, 0, len(s.records))
	for _, rec := range s.records {
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Address().Less(out[j].Address())
	})
	return out
}

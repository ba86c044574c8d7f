/*
registry.go - Measurement lookup: interface, immutable snapshot, cache

PURPOSE:
  The registry is the read side of the measurement catalog. Mutation is
  owned by the surrounding CRUD layer; this core only ever looks units and
  packaging bands up. Because a demand computation must not observe a
  half-edited catalog, computations run against an immutable Snapshot taken
  at the top of the call.

KEY TYPES:
  Registry: Lookup contract consumed by Converter and Policy
  Source:   Bulk-load contract implemented by the persistence layer
  Snapshot: Immutable Registry built from one Source read
  Cache:    Process-wide Snapshot holder with explicit invalidation

INVALIDATION:
  The CRUD layer calls Cache.Invalidate() after editing a Measurement or
  CustomRange. The next Snapshot() reloads from the Source.

SEE ALSO:
  - converter.go: Consumes Registry for conversions
  - adjust.go: Consumes Registry for band selection
*/
package measure

import (
	"context"
	"sort"
	"sync"
)

// =============================================================================
// REGISTRY - Lookup contract
// =============================================================================

// Registry is the read-only measurement catalog used by all computations.
type Registry interface {
	// Measurement returns the measurement for id, or UnknownMeasurementError.
	Measurement(id ID) (Measurement, error)

	// Family returns every measurement sharing the base unit of id,
	// including the base unit itself. Order is unspecified.
	Family(id ID) ([]Measurement, error)

	// CustomRanges returns the packaging/rate bands for id, ordered by
	// ascending lower bound. An empty slice means no bands are configured.
	CustomRanges(id ID) ([]CustomRange, error)
}

// Source bulk-loads the catalog from persistence. Implemented by the
// sqlite store and by the in-memory store used in tests.
type Source interface {
	LoadMeasurements(ctx context.Context) ([]Measurement, error)
	LoadCustomRanges(ctx context.Context) ([]CustomRange, error)
}

// =============================================================================
// SNAPSHOT - Immutable registry view
// =============================================================================

// Snapshot is an immutable Registry built from one catalog read.
type Snapshot struct {
	byID     map[ID]Measurement
	families map[ID][]Measurement // keyed by base unit id
	ranges   map[ID][]CustomRange
}

// NewSnapshot indexes the given catalog. Ranges are sorted by lower bound.
func NewSnapshot(measurements []Measurement, ranges []CustomRange) *Snapshot {
	s := &Snapshot{
		byID:     make(map[ID]Measurement, len(measurements)),
		families: make(map[ID][]Measurement),
		ranges:   make(map[ID][]CustomRange),
	}
	for _, m := range measurements {
		s.byID[m.ID] = m
		s.families[m.BaseUnitID] = append(s.families[m.BaseUnitID], m)
	}
	for _, r := range ranges {
		s.ranges[r.MeasurementID] = append(s.ranges[r.MeasurementID], r)
	}
	for id := range s.ranges {
		rs := s.ranges[id]
		sort.Slice(rs, func(i, j int) bool { return rs[i].Lower.LessThan(rs[j].Lower) })
	}
	return s
}

func (s *Snapshot) Measurement(id ID) (Measurement, error) {
	m, ok := s.byID[id]
	if !ok {
		return Measurement{}, &UnknownMeasurementError{ID: id}
	}
	return m, nil
}

func (s *Snapshot) Family(id ID) ([]Measurement, error) {
	m, err := s.Measurement(id)
	if err != nil {
		return nil, err
	}
	return s.families[m.BaseUnitID], nil
}

func (s *Snapshot) CustomRanges(id ID) ([]CustomRange, error) {
	if _, err := s.Measurement(id); err != nil {
		return nil, err
	}
	return s.ranges[id], nil
}

// =============================================================================
// CACHE - Process-wide snapshot with explicit invalidation
// =============================================================================

// Cache holds the current Snapshot and rebuilds it lazily after
// Invalidate. Safe for concurrent use.
type Cache struct {
	src Source

	mu   sync.RWMutex
	snap *Snapshot
}

func NewCache(src Source) *Cache {
	return &Cache{src: src}
}

// Snapshot returns the current catalog view, loading it if needed.
// Callers hold the returned Snapshot for the whole computation so the
// catalog cannot change underneath them.
func (c *Cache) Snapshot(ctx context.Context) (*Snapshot, error) {
	c.mu.RLock()
	snap := c.snap
	c.mu.RUnlock()
	if snap != nil {
		return snap, nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.snap != nil {
		return c.snap, nil
	}
	measurements, err := c.src.LoadMeasurements(ctx)
	if err != nil {
		return nil, err
	}
	ranges, err := c.src.LoadCustomRanges(ctx)
	if err != nil {
		return nil, err
	}
	c.snap = NewSnapshot(measurements, ranges)
	return c.snap, nil
}

// Invalidate drops the cached snapshot. The owning CRUD layer calls this
// after any measurement or custom-range edit.
func (c *Cache) Invalidate() {
	c.mu.Lock()
	c.snap = nil
	c.mu.Unlock()
}

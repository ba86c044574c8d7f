// Package memory provides in-memory implementations of every contract the
// engine consumes (measurement catalog, menu/recipe/material sources,
// allocation store), for tests and dev mode. All methods are safe for
// concurrent use.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/warp/catering-engine/allocation"
	"github.com/warp/catering-engine/demand"
	"github.com/warp/catering-engine/measure"
)

type selectionKey struct {
	orderID    demand.OrderID
	functionID demand.FunctionID
}

// Store holds the whole dataset in maps.
type Store struct {
	mu           sync.RWMutex
	measurements []measure.Measurement
	ranges       []measure.CustomRange
	materials    map[demand.RawMaterialID]demand.RawMaterial
	functions    map[demand.OrderID][]demand.EventFunction
	selections   map[selectionKey][]demand.MenuSelection
	recipes      map[demand.MenuItemID][]demand.RecipeLine
	rows         map[allocation.RowID]allocation.Row
	agencies     map[allocation.RowID][]allocation.AgencyAllocation
}

func New() *Store {
	return &Store{
		materials:  make(map[demand.RawMaterialID]demand.RawMaterial),
		functions:  make(map[demand.OrderID][]demand.EventFunction),
		selections: make(map[selectionKey][]demand.MenuSelection),
		recipes:    make(map[demand.MenuItemID][]demand.RecipeLine),
		rows:       make(map[allocation.RowID]allocation.Row),
		agencies:   make(map[allocation.RowID][]allocation.AgencyAllocation),
	}
}

// =============================================================================
// FIXTURE SETTERS - Owned by the CRUD layer in production
// =============================================================================

func (s *Store) SetMeasurements(ms ...measure.Measurement) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.measurements = append([]measure.Measurement(nil), ms...)
}

func (s *Store) SetCustomRanges(rs ...measure.CustomRange) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ranges = append([]measure.CustomRange(nil), rs...)
}

func (s *Store) SetRawMaterial(m demand.RawMaterial) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.materials[m.ID] = m
}

func (s *Store) SetFunctions(orderID demand.OrderID, fns ...demand.EventFunction) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.functions[orderID] = append([]demand.EventFunction(nil), fns...)
}

func (s *Store) SetSelections(orderID demand.OrderID, functionID demand.FunctionID, sels ...demand.MenuSelection) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.selections[selectionKey{orderID, functionID}] = append([]demand.MenuSelection(nil), sels...)
}

func (s *Store) SetRecipe(menuItemID demand.MenuItemID, lines ...demand.RecipeLine) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.recipes[menuItemID] = append([]demand.RecipeLine(nil), lines...)
}

// =============================================================================
// measure.Source
// =============================================================================

func (s *Store) LoadMeasurements(context.Context) ([]measure.Measurement, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]measure.Measurement(nil), s.measurements...), nil
}

func (s *Store) LoadCustomRanges(context.Context) ([]measure.CustomRange, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]measure.CustomRange(nil), s.ranges...), nil
}

// =============================================================================
// demand.MenuSource / RecipeSource / MaterialSource
// =============================================================================

func (s *Store) Functions(_ context.Context, orderID demand.OrderID) ([]demand.EventFunction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]demand.EventFunction(nil), s.functions[orderID]...), nil
}

func (s *Store) Selections(_ context.Context, orderID demand.OrderID, functionID demand.FunctionID) ([]demand.MenuSelection, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]demand.MenuSelection(nil), s.selections[selectionKey{orderID, functionID}]...), nil
}

func (s *Store) Recipe(_ context.Context, menuItemID demand.MenuItemID) ([]demand.RecipeLine, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]demand.RecipeLine(nil), s.recipes[menuItemID]...), nil
}

func (s *Store) RawMaterial(_ context.Context, id demand.RawMaterialID) (demand.RawMaterial, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.materials[id]
	if !ok {
		return demand.RawMaterial{}, fmt.Errorf("raw material %d not found", id)
	}
	return m, nil
}

// =============================================================================
// allocation.Store
// =============================================================================

func (s *Store) ListRows(_ context.Context, orderID demand.OrderID) ([]allocation.Row, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []allocation.Row
	for _, row := range s.rows {
		if row.OrderID == orderID {
			out = append(out, row)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].FunctionID != out[j].FunctionID {
			return out[i].FunctionID < out[j].FunctionID
		}
		return out[i].RawMaterialID < out[j].RawMaterialID
	})
	return out, nil
}

func (s *Store) GetRow(_ context.Context, id allocation.RowID) (allocation.Row, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	row, ok := s.rows[id]
	if !ok {
		return allocation.Row{}, allocation.ErrAllocationNotFound
	}
	return row, nil
}

func (s *Store) InsertRow(_ context.Context, row allocation.Row) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.rows[row.ID]; ok {
		return fmt.Errorf("allocation %s already exists", row.ID)
	}
	s.rows[row.ID] = row
	return nil
}

func (s *Store) UpdateRow(_ context.Context, row allocation.Row) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.rows[row.ID]
	if !ok {
		return allocation.ErrAllocationNotFound
	}
	if current.Version != row.Version {
		return &allocation.StaleAllocationError{AllocationID: row.ID, ReadVersion: row.Version}
	}
	row.Version++
	s.rows[row.ID] = row
	return nil
}

func (s *Store) DeleteRow(_ context.Context, id allocation.RowID, version int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.rows[id]
	if !ok {
		return allocation.ErrAllocationNotFound
	}
	if current.Version != version {
		return &allocation.StaleAllocationError{AllocationID: id, ReadVersion: version}
	}
	delete(s.rows, id)
	delete(s.agencies, id)
	return nil
}

func (s *Store) Agencies(_ context.Context, allocationID allocation.RowID) ([]allocation.AgencyAllocation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]allocation.AgencyAllocation(nil), s.agencies[allocationID]...), nil
}

func (s *Store) ReplaceAgencies(_ context.Context, allocationID allocation.RowID, version int64, entries []allocation.AgencyAllocation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.rows[allocationID]
	if !ok {
		return allocation.ErrAllocationNotFound
	}
	if current.Version != version {
		return &allocation.StaleAllocationError{AllocationID: allocationID, ReadVersion: version}
	}
	current.Version++
	s.rows[allocationID] = current
	if len(entries) == 0 {
		delete(s.agencies, allocationID)
	} else {
		s.agencies[allocationID] = append([]allocation.AgencyAllocation(nil), entries...)
	}
	return nil
}

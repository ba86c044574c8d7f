/*
agency.go - Distributing adjusted quantities across supplying agencies

PURPOSE:
  An allocation row's purchasable quantity can be sourced from several
  external agencies. The manager applies a batch of agency requests while
  enforcing the one hard bound of this subsystem: the committed sum never
  exceeds the row's adjusted quantity.

BATCH SEMANTICS:
  Requests are grouped by target allocation. For each target, the batch
  replaces that target's entries for the agencies it names (resubmitting
  an agency corrects its quantity, it does not accumulate); entries for
  agencies the batch does not name are retained. The retained plus
  requested sum is validated against the adjusted quantity; on violation
  the whole group for that target is rejected with the remaining
  allocatable amount, while other targets in the batch still apply
  independently.

SEE ALSO:
  - store.go: ReplaceAgencies (version-guarded full-set swap)
*/
package allocation

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/warp/catering-engine/demand"
)

// AgencyRequest commits Quantity of one allocation row to one agency.
type AgencyRequest struct {
	AllocationID RowID
	AgencyID     AgencyID
	Quantity     decimal.Decimal
}

// AllocateResult reports which allocation rows a batch touched.
type AllocateResult struct {
	Applied []RowID
}

// Manager applies agency allocation batches.
type Manager struct {
	store Store
}

func NewManager(store Store) *Manager {
	return &Manager{store: store}
}

// Allocate applies a batch of agency requests for one order. Targets
// succeed or fail independently; failures are joined into the returned
// error while successful targets stay applied.
func (m *Manager) Allocate(ctx context.Context, orderID demand.OrderID, reqs []AgencyRequest) (AllocateResult, error) {
	var res AllocateResult

	// Group by target allocation, preserving first-seen order.
	var order []RowID
	groups := make(map[RowID][]AgencyRequest)
	for _, req := range reqs {
		if _, ok := groups[req.AllocationID]; !ok {
			order = append(order, req.AllocationID)
		}
		groups[req.AllocationID] = append(groups[req.AllocationID], req)
	}

	var failures []error
	for _, id := range order {
		if err := m.allocateOne(ctx, orderID, id, groups[id]); err != nil {
			failures = append(failures, err)
			continue
		}
		res.Applied = append(res.Applied, id)
	}
	return res, errors.Join(failures...)
}

func (m *Manager) allocateOne(ctx context.Context, orderID demand.OrderID, id RowID, reqs []AgencyRequest) error {
	row, err := m.store.GetRow(ctx, id)
	if err != nil {
		return err
	}
	if row.OrderID != orderID {
		return ErrAllocationNotFound
	}

	existing, err := m.store.Agencies(ctx, row.ID)
	if err != nil {
		return err
	}

	// Entries for agencies the batch names are replaced; the rest are
	// retained and count against the adjusted quantity.
	named := make(map[AgencyID]bool, len(reqs))
	requested := decimal.Zero
	for _, req := range reqs {
		if req.Quantity.IsNegative() {
			return fmt.Errorf("allocation %s, agency %d: %w", id, req.AgencyID, ErrNegativeQuantity)
		}
		named[req.AgencyID] = true
		requested = requested.Add(req.Quantity)
	}
	retained := decimal.Zero
	final := make([]AgencyAllocation, 0, len(existing)+len(reqs))
	for _, e := range existing {
		if named[e.AgencyID] {
			continue
		}
		retained = retained.Add(e.Quantity)
		final = append(final, e)
	}

	if retained.Add(requested).GreaterThan(row.Adjusted) {
		return &OverAllocationError{
			AllocationID: row.ID,
			Requested:    requested,
			Adjusted:     row.Adjusted,
			Remaining:    row.Adjusted.Sub(retained),
		}
	}

	for _, req := range reqs {
		if req.Quantity.IsZero() {
			// Zero withdraws the agency's commitment.
			continue
		}
		final = append(final, AgencyAllocation{
			ID:           uuid.NewString(),
			AllocationID: row.ID,
			AgencyID:     req.AgencyID,
			Quantity:     req.Quantity,
		})
	}

	return m.store.ReplaceAgencies(ctx, row.ID, row.Version, final)
}

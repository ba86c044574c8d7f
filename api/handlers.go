/*
handlers.go - HTTP handlers over the allocation engine

PURPOSE:
  Exposes the engine's operations via REST. Handles HTTP request/response,
  JSON serialization, and delegates everything else to the engine.

ENDPOINTS:
  Demand:
    GET  /api/orders/{orderID}/demand                Computed demand
    POST /api/orders/{orderID}/raw-materials/sync    Reconcile allocations

  Measurements:
    GET  /api/measurements/{id}/smallest             Finest sibling unit
    GET  /api/measurements/{id}/smallest-value       Quantity in finest unit
    GET  /api/measurements/{id}/adjusted-quantity    Packaging round-up

  Allocations:
    GET  /api/orders/{orderID}/allocations           Persisted rows
    PUT  /api/allocations/quantities                 Manual overrides
    POST /api/orders/{orderID}/agency-allocations    Agency distribution
    GET  /api/allocations/{id}/agencies              Agency commitments

ERROR HANDLING:
  Domain errors map to HTTP status codes:
  - 404: Unknown measurement / allocation
  - 409: Optimistic-lock conflict (refetch and retry)
  - 422: Over-allocation (body carries the remaining capacity),
         incompatible units, missing packaging range
  - 400: Malformed input
  - 500: Everything else

SECURITY NOTE:
  No authentication middleware. Authn/authz belongs to the surrounding
  application.

SEE ALSO:
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
*/
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/warp/catering-engine/allocation"
	"github.com/warp/catering-engine/demand"
	"github.com/warp/catering-engine/engine"
	"github.com/warp/catering-engine/measure"
)

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Engine *engine.Engine
}

func NewHandler(eng *engine.Engine) *Handler {
	return &Handler{Engine: eng}
}

// =============================================================================
// DEMAND HANDLERS
// =============================================================================

// GetDemand returns the order's computed demand.
// GET /api/orders/{orderID}/demand?level=function|order
func (h *Handler) GetDemand(w http.ResponseWriter, r *http.Request) {
	orderID, ok := orderParam(w, r)
	if !ok {
		return
	}

	var (
		reqs []demand.Requirement
		err  error
	)
	if r.URL.Query().Get("level") == "order" {
		reqs, err = h.Engine.ComputeOrderDemand(r.Context(), orderID)
	} else {
		reqs, err = h.Engine.ComputeDemand(r.Context(), orderID)
	}
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toRequirementDTOs(reqs))
}

// SyncRawMaterials reconciles the order's allocation rows with demand.
// POST /api/orders/{orderID}/raw-materials/sync
func (h *Handler) SyncRawMaterials(w http.ResponseWriter, r *http.Request) {
	orderID, ok := orderParam(w, r)
	if !ok {
		return
	}

	res, err := h.Engine.SyncRawMaterial(r.Context(), orderID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, SyncResultDTO{
		Created:   res.Created,
		Updated:   res.Updated,
		Deleted:   res.Deleted,
		Orphaned:  res.Orphaned,
		Unchanged: res.Unchanged,
	})
}

// =============================================================================
// MEASUREMENT HANDLERS
// =============================================================================

// GetSmallestUnit returns the finest sibling unit of a measurement.
// GET /api/measurements/{id}/smallest
func (h *Handler) GetSmallestUnit(w http.ResponseWriter, r *http.Request) {
	id, ok := measurementParam(w, r)
	if !ok {
		return
	}

	smallest, err := h.Engine.SmallestMeasurementID(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, SmallestUnitDTO{MeasurementID: int64(smallest)})
}

// GetSmallestValue re-expresses a quantity in the finest sibling unit.
// GET /api/measurements/{id}/smallest-value?quantity=12.3
func (h *Handler) GetSmallestValue(w http.ResponseWriter, r *http.Request) {
	id, ok := measurementParam(w, r)
	if !ok {
		return
	}
	qty, err := decimal.NewFromString(r.URL.Query().Get("quantity"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid quantity", err)
		return
	}

	value, unitID, err := h.Engine.SmallestMeasurement(r.Context(), qty, id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, SmallestValueDTO{
		Value:         value.String(),
		MeasurementID: int64(unitID),
	})
}

// GetAdjustedQuantity rounds a quantity to packaging constraints.
// GET /api/measurements/{id}/adjusted-quantity?quantity=12.3&adjust=true&supplier_rate=false
func (h *Handler) GetAdjustedQuantity(w http.ResponseWriter, r *http.Request) {
	id, ok := measurementParam(w, r)
	if !ok {
		return
	}
	qty, err := decimal.NewFromString(r.URL.Query().Get("quantity"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid quantity", err)
		return
	}
	adjust := r.URL.Query().Get("adjust") == "true"
	supplierRate := r.URL.Query().Get("supplier_rate") == "true"

	adj, err := h.Engine.AdjustedQuantity(r.Context(), qty, id, adjust, supplierRate)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, AdjustmentDTO{
		Adjusted:       adj.Adjusted.String(),
		AdjustedUnitID: int64(adj.AdjustedUnitID),
		Extra:          adj.Extra.String(),
		ExtraUnitID:    int64(adj.ExtraUnitID),
	})
}

// =============================================================================
// ALLOCATION HANDLERS
// =============================================================================

// ListAllocations returns the order's persisted allocation rows.
// GET /api/orders/{orderID}/allocations
func (h *Handler) ListAllocations(w http.ResponseWriter, r *http.Request) {
	orderID, ok := orderParam(w, r)
	if !ok {
		return
	}

	rows, err := h.Engine.Allocations(r.Context(), orderID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	dtos := make([]AllocationDTO, len(rows))
	for i, row := range rows {
		dtos[i] = toAllocationDTO(row)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// UpdateQuantities applies manual purchasable-quantity overrides.
// PUT /api/allocations/quantities
func (h *Handler) UpdateQuantities(w http.ResponseWriter, r *http.Request) {
	var body []QuantityEditRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	edits := make([]allocation.QuantityEdit, len(body))
	for i, e := range body {
		adjusted, err := decimal.NewFromString(e.Adjusted)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid adjusted quantity", err)
			return
		}
		edits[i] = allocation.QuantityEdit{
			AllocationID:  allocation.RowID(e.AllocationID),
			Adjusted:      adjusted,
			MeasurementID: measure.ID(e.MeasurementID),
			Version:       e.Version,
		}
	}

	if err := h.Engine.UpdateRawMaterialQuantity(r.Context(), edits); err != nil {
		writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// AllocateAgencies applies an agency allocation batch.
// POST /api/orders/{orderID}/agency-allocations
func (h *Handler) AllocateAgencies(w http.ResponseWriter, r *http.Request) {
	orderID, ok := orderParam(w, r)
	if !ok {
		return
	}
	var body []AgencyAllocationRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	reqs := make([]allocation.AgencyRequest, len(body))
	for i, a := range body {
		qty, err := decimal.NewFromString(a.Quantity)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid quantity", err)
			return
		}
		reqs[i] = allocation.AgencyRequest{
			AllocationID: allocation.RowID(a.AllocationID),
			AgencyID:     allocation.AgencyID(a.AgencyID),
			Quantity:     qty,
		}
	}

	res, err := h.Engine.AgencyAllocation(r.Context(), orderID, reqs)
	if err != nil {
		// Partial application: some targets may have succeeded.
		writeDomainError(w, err)
		return
	}

	applied := make([]string, len(res.Applied))
	for i, id := range res.Applied {
		applied[i] = string(id)
	}
	writeJSON(w, http.StatusOK, AllocateResponse{Applied: applied})
}

// ListAgencies returns one row's agency commitments.
// GET /api/allocations/{id}/agencies
func (h *Handler) ListAgencies(w http.ResponseWriter, r *http.Request) {
	id := allocation.RowID(chi.URLParam(r, "id"))

	agencies, err := h.Engine.AgencyAllocations(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	dtos := make([]AgencyAllocationDTO, len(agencies))
	for i, a := range agencies {
		dtos[i] = AgencyAllocationDTO{
			ID:           a.ID,
			AllocationID: string(a.AllocationID),
			AgencyID:     int64(a.AgencyID),
			Quantity:     a.Quantity.String(),
		}
	}
	writeJSON(w, http.StatusOK, dtos)
}

// =============================================================================
// HELPERS
// =============================================================================

func orderParam(w http.ResponseWriter, r *http.Request) (demand.OrderID, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "orderID"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid order id", err)
		return 0, false
	}
	return demand.OrderID(id), true
}

func measurementParam(w http.ResponseWriter, r *http.Request) (measure.ID, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid measurement id", err)
		return 0, false
	}
	return measure.ID(id), true
}

// writeDomainError maps engine errors to HTTP statuses.
func writeDomainError(w http.ResponseWriter, err error) {
	var over *allocation.OverAllocationError
	if errors.As(err, &over) {
		writeJSON(w, http.StatusUnprocessableEntity, ErrorResponse{
			Error:     "Agency allocation exceeds adjusted quantity",
			Details:   err.Error(),
			Remaining: over.Remaining.String(),
		})
		return
	}

	switch {
	case errors.Is(err, measure.ErrUnknownMeasurement),
		errors.Is(err, allocation.ErrAllocationNotFound):
		writeError(w, http.StatusNotFound, "Not found", err)
	case errors.Is(err, allocation.ErrStaleAllocation):
		writeError(w, http.StatusConflict, "Allocation changed concurrently; refetch and retry", err)
	case errors.Is(err, allocation.ErrNegativeQuantity):
		writeError(w, http.StatusUnprocessableEntity, "Invalid agency allocation", err)
	case errors.Is(err, measure.ErrIncompatibleUnits),
		errors.Is(err, measure.ErrMissingConversionFactor):
		writeError(w, http.StatusUnprocessableEntity, "Measurement configuration error", err)
	default:
		writeError(w, http.StatusInternalServerError, "Internal error", err)
	}
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

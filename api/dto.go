/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  JSON structures for the HTTP surface. They decouple the domain model
  from the wire contract and render decimals as strings so clients never
  see binary-float artifacts.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

VALIDATION:
  Validation is done in handlers, not in DTOs. DTOs are pure data carriers.

SEE ALSO:
  - handlers.go: Uses these types
*/
package api

import (
	"github.com/warp/catering-engine/allocation"
	"github.com/warp/catering-engine/demand"
)

// =============================================================================
// RESPONSE TYPES
// =============================================================================

// RequirementDTO is one computed demand entry. FunctionID is 0 in
// order-level views.
type RequirementDTO struct {
	FunctionID    int64  `json:"function_id"`
	RawMaterialID int64  `json:"raw_material_id"`
	MeasurementID int64  `json:"measurement_id"`
	Required      string `json:"required"`
}

// AllocationDTO is one persisted allocation row.
type AllocationDTO struct {
	ID             string `json:"id"`
	OrderID        int64  `json:"order_id"`
	FunctionID     int64  `json:"function_id"`
	RawMaterialID  int64  `json:"raw_material_id"`
	MeasurementID  int64  `json:"measurement_id"`
	Required       string `json:"required"`
	Adjusted       string `json:"adjusted"`
	AdjustedUnitID int64  `json:"adjusted_unit_id"`
	Extra          string `json:"extra"`
	ExtraUnitID    int64  `json:"extra_unit_id"`
	Source         string `json:"source"`
	Orphaned       bool   `json:"orphaned"`
	Version        int64  `json:"version"`
}

// SyncResultDTO summarizes one sync run.
type SyncResultDTO struct {
	Created   int `json:"created"`
	Updated   int `json:"updated"`
	Deleted   int `json:"deleted"`
	Orphaned  int `json:"orphaned"`
	Unchanged int `json:"unchanged"`
}

// AdjustmentDTO is the structured packaging round-up result.
type AdjustmentDTO struct {
	Adjusted       string `json:"adjusted"`
	AdjustedUnitID int64  `json:"adjusted_unit_id"`
	Extra          string `json:"extra"`
	ExtraUnitID    int64  `json:"extra_unit_id"`
}

// SmallestUnitDTO names the finest sibling unit of a measurement.
type SmallestUnitDTO struct {
	MeasurementID int64 `json:"measurement_id"`
}

// SmallestValueDTO carries a quantity re-expressed in the finest unit.
type SmallestValueDTO struct {
	Value         string `json:"value"`
	MeasurementID int64  `json:"measurement_id"`
}

// AgencyAllocationDTO is one agency commitment.
type AgencyAllocationDTO struct {
	ID           string `json:"id"`
	AllocationID string `json:"allocation_id"`
	AgencyID     int64  `json:"agency_id"`
	Quantity     string `json:"quantity"`
}

// AllocateResponse reports which allocation rows a batch touched.
type AllocateResponse struct {
	Applied []string `json:"applied"`
}

// ErrorResponse is the uniform error body. Remaining is set for
// over-allocation rejections so the client can correct the request.
type ErrorResponse struct {
	Error     string `json:"error"`
	Details   string `json:"details,omitempty"`
	Remaining string `json:"remaining,omitempty"`
}

// =============================================================================
// REQUEST TYPES
// =============================================================================

// QuantityEditRequest is one manual purchasable-quantity override.
type QuantityEditRequest struct {
	AllocationID  string `json:"allocation_id"`
	Adjusted      string `json:"adjusted"`
	MeasurementID int64  `json:"measurement_id,omitempty"`
	Version       int64  `json:"version"`
}

// AgencyAllocationRequest is one entry of an agency allocation batch.
type AgencyAllocationRequest struct {
	AllocationID string `json:"allocation_id"`
	AgencyID     int64  `json:"agency_id"`
	Quantity     string `json:"quantity"`
}

// =============================================================================
// CONVERSIONS
// =============================================================================

func toRequirementDTOs(reqs []demand.Requirement) []RequirementDTO {
	dtos := make([]RequirementDTO, len(reqs))
	for i, r := range reqs {
		dtos[i] = RequirementDTO{
			FunctionID:    int64(r.FunctionID),
			RawMaterialID: int64(r.RawMaterialID),
			MeasurementID: int64(r.MeasurementID),
			Required:      r.Required.String(),
		}
	}
	return dtos
}

func toAllocationDTO(row allocation.Row) AllocationDTO {
	return AllocationDTO{
		ID:             string(row.ID),
		OrderID:        int64(row.OrderID),
		FunctionID:     int64(row.FunctionID),
		RawMaterialID:  int64(row.RawMaterialID),
		MeasurementID:  int64(row.MeasurementID),
		Required:       row.Required.String(),
		Adjusted:       row.Adjusted.String(),
		AdjustedUnitID: int64(row.AdjustedUnitID),
		Extra:          row.Extra.String(),
		ExtraUnitID:    int64(row.ExtraUnitID),
		Source:         string(row.Source),
		Orphaned:       row.Orphaned,
		Version:        row.Version,
	}
}

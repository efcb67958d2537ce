package dto

import (
	"time"

	"github.com/edugraph/edugraph-api/internal/models"
)

// GradingSchemeCreateRequest creates a grading scheme for an organization.
type GradingSchemeCreateRequest struct {
	OrganizationID uint   `json:"organization_id" validate:"required"`
	AssignmentID   *uint  `json:"assignment_id"`
	Name           string `json:"name" validate:"required,max=255"`
	Code           string `json:"code" validate:"required"`
	IsDefault      bool   `json:"is_default"`
}

// GradingSchemeUpdateRequest mutates a grading scheme.
type GradingSchemeUpdateRequest struct {
	Name      *string `json:"name" validate:"omitempty,max=255"`
	Code      *string `json:"code"`
	IsDefault *bool   `json:"is_default"`
}

// GradingSchemeResponse is the API shape of a grading scheme.
type GradingSchemeResponse struct {
	ID             uint      `json:"id"`
	OrganizationID uint      `json:"organization_id"`
	AssignmentID   *uint     `json:"assignment_id"`
	Name           string    `json:"name"`
	Code           string    `json:"code"`
	IsDefault      bool      `json:"is_default"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// RecomputeResponse summarises a grade recompute batch.
type RecomputeResponse struct {
	AssignmentID uint `json:"assignment_id"`
	Total        int  `json:"total"`
	Failed       int  `json:"failed"`
}

// NewGradingSchemeResponse maps one grading scheme.
func NewGradingSchemeResponse(scheme models.GradingScheme) GradingSchemeResponse {
	return GradingSchemeResponse{
		ID:             scheme.ID,
		OrganizationID: scheme.OrganizationID,
		AssignmentID:   scheme.AssignmentID,
		Name:           scheme.Name,
		Code:           scheme.Code,
		IsDefault:      scheme.IsDefault,
		CreatedAt:      scheme.CreatedAt,
		UpdatedAt:      scheme.UpdatedAt,
	}
}

// NewGradingSchemeResponseSlice maps a list of schemes.
func NewGradingSchemeResponseSlice(schemes []models.GradingScheme) []GradingSchemeResponse {
	responses := make([]GradingSchemeResponse, 0, len(schemes))
	for _, scheme := range schemes {
		responses = append(responses, NewGradingSchemeResponse(scheme))
	}
	return responses
}

package dto

import (
	"encoding/json"
	"time"

	"github.com/edugraph/edugraph-api/internal/models"
)

// AssignmentCreateRequest creates an assignment definition.
type AssignmentCreateRequest struct {
	OrganizationID uint       `json:"organization_id" validate:"required"`
	Title          string     `json:"title" validate:"required,max=255"`
	Description    string     `json:"description"`
	DueDate        *time.Time `json:"due_date"`
	MaxAttempts    int        `json:"max_attempts" validate:"min=0"`
}

// AssignmentUpdateRequest mutates assignment metadata. A grading scheme
// change triggers a grade recompute for existing submissions.
type AssignmentUpdateRequest struct {
	Title           *string    `json:"title" validate:"omitempty,max=255"`
	Description     *string    `json:"description"`
	DueDate         *time.Time `json:"due_date"`
	GradingSchemeID *uint      `json:"grading_scheme_id"`
}

// BlockCreateRequest adds a block to an assignment.
type BlockCreateRequest struct {
	Type             models.BlockType        `json:"type" validate:"required"`
	Title            string                  `json:"title"`
	Index            int                     `json:"index" validate:"min=0"`
	Weight           int                     `json:"weight" validate:"min=1,max=10"`
	Granularity      int                     `json:"granularity" validate:"min=1,max=100"`
	LimitRange       bool                    `json:"limit_range"`
	Criteria         string                  `json:"criteria"`
	AssessmentMethod models.AssessmentMethod `json:"assessment_method"`
	MultipleCorrect  bool                    `json:"multiple_correct"`
	Choices          []ChoiceRequest         `json:"choices" validate:"dive"`
}

// BlockUpdateRequest mutates a block. A weight change triggers a grade
// recompute for existing submissions.
type BlockUpdateRequest struct {
	Title            *string                  `json:"title"`
	Weight           *int                     `json:"weight" validate:"omitempty,min=1,max=10"`
	Granularity      *int                     `json:"granularity" validate:"omitempty,min=1,max=100"`
	LimitRange       *bool                    `json:"limit_range"`
	Criteria         *string                  `json:"criteria"`
	AssessmentMethod *models.AssessmentMethod `json:"assessment_method"`
	ActionIDs        []uint                   `json:"action_ids"`
}

// ChoiceRequest is one option of a multiple-choice block.
type ChoiceRequest struct {
	Text         string `json:"text" validate:"required"`
	Correct      bool   `json:"correct"`
	CorrectScore int    `json:"correct_score" validate:"min=0,max=100"`
	WrongScore   int    `json:"wrong_score" validate:"min=0,max=100"`
}

// ActionCreateRequest attaches a check to a block. The config payload is
// validated against the schema for its type.
type ActionCreateRequest struct {
	Type               models.ActionType `json:"type" validate:"required"`
	Config             json.RawMessage   `json:"config" validate:"required"`
	StopOnMatch        bool              `json:"stop_on_match"`
	HideFeedback       bool              `json:"hide_feedback"`
	TeacherOnly        bool              `json:"teacher_only"`
	ForceOverrideCache bool              `json:"force_override_cache"`
}

// ActionUpdateRequest mutates an action's configuration or flags.
type ActionUpdateRequest struct {
	Config             json.RawMessage `json:"config"`
	StopOnMatch        *bool           `json:"stop_on_match"`
	HideFeedback       *bool           `json:"hide_feedback"`
	TeacherOnly        *bool           `json:"teacher_only"`
	ForceOverrideCache *bool           `json:"force_override_cache"`
}

// AssignmentResponse is the API shape of an assignment.
type AssignmentResponse struct {
	ID              uint            `json:"id"`
	OrganizationID  uint            `json:"organization_id"`
	Title           string          `json:"title"`
	Description     string          `json:"description"`
	DueDate         *time.Time      `json:"due_date"`
	GradingSchemeID *uint           `json:"grading_scheme_id"`
	MaxAttempts     int             `json:"max_attempts"`
	Blocks          []BlockResponse `json:"blocks"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

// BlockResponse is the API shape of a block.
type BlockResponse struct {
	ID               uint                    `json:"id"`
	Index            int                     `json:"index"`
	Type             models.BlockType        `json:"type"`
	Title            string                  `json:"title"`
	Weight           int                     `json:"weight"`
	Granularity      int                     `json:"granularity"`
	LimitRange       bool                    `json:"limit_range"`
	Criteria         string                  `json:"criteria"`
	AssessmentMethod models.AssessmentMethod `json:"assessment_method"`
	MultipleCorrect  bool                    `json:"multiple_correct"`
	ActionIDs        []uint                  `json:"action_ids"`
	Choices          []ChoiceResponse        `json:"choices"`
	Actions          []ActionResponse        `json:"actions"`
}

// ChoiceResponse is the API shape of a choice.
type ChoiceResponse struct {
	ID           uint   `json:"id"`
	Text         string `json:"text"`
	Correct      bool   `json:"correct"`
	CorrectScore int    `json:"correct_score"`
	WrongScore   int    `json:"wrong_score"`
}

// ActionResponse is the API shape of an action.
type ActionResponse struct {
	ID                 uint              `json:"id"`
	Type               models.ActionType `json:"type"`
	Config             json.RawMessage   `json:"config"`
	StopOnMatch        bool              `json:"stop_on_match"`
	HideFeedback       bool              `json:"hide_feedback"`
	TeacherOnly        bool              `json:"teacher_only"`
	ForceOverrideCache bool              `json:"force_override_cache"`
}

// NewAssignmentResponse maps an assignment with its blocks.
func NewAssignmentResponse(assignment models.Assignment) AssignmentResponse {
	blocks := make([]BlockResponse, 0, len(assignment.Blocks))
	for _, block := range assignment.Blocks {
		blocks = append(blocks, NewBlockResponse(block))
	}

	return AssignmentResponse{
		ID:              assignment.ID,
		OrganizationID:  assignment.OrganizationID,
		Title:           assignment.Title,
		Description:     assignment.Description,
		DueDate:         assignment.DueDate,
		GradingSchemeID: assignment.GradingSchemeID,
		MaxAttempts:     assignment.MaxAttempts,
		Blocks:          blocks,
		CreatedAt:       assignment.CreatedAt,
		UpdatedAt:       assignment.UpdatedAt,
	}
}

// NewBlockResponse maps one block.
func NewBlockResponse(block models.Block) BlockResponse {
	choices := make([]ChoiceResponse, 0, len(block.Choices))
	for _, choice := range block.Choices {
		choices = append(choices, ChoiceResponse{
			ID:           choice.ID,
			Text:         choice.Text,
			Correct:      choice.Correct,
			CorrectScore: choice.CorrectScore,
			WrongScore:   choice.WrongScore,
		})
	}

	actions := make([]ActionResponse, 0, len(block.Actions))
	for _, action := range block.Actions {
		actions = append(actions, NewActionResponse(action))
	}

	return BlockResponse{
		ID:               block.ID,
		Index:            block.Index,
		Type:             block.Type,
		Title:            block.Title,
		Weight:           block.Weight,
		Granularity:      block.Granularity,
		LimitRange:       block.LimitRange,
		Criteria:         block.Criteria,
		AssessmentMethod: block.AssessmentMethod,
		MultipleCorrect:  block.MultipleCorrect,
		ActionIDs:        block.ActionIDs,
		Choices:          choices,
		Actions:          actions,
	}
}

// NewActionResponse maps one action.
func NewActionResponse(action models.Action) ActionResponse {
	return ActionResponse{
		ID:                 action.ID,
		Type:               action.Type,
		Config:             json.RawMessage(action.Config),
		StopOnMatch:        action.StopOnMatch,
		HideFeedback:       action.HideFeedback,
		TeacherOnly:        action.TeacherOnly,
		ForceOverrideCache: action.ForceOverrideCache,
	}
}

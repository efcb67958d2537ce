package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/edugraph/edugraph-api/internal/dto"
	"github.com/edugraph/edugraph-api/internal/models"
	"github.com/edugraph/edugraph-api/internal/pipeline"
	"github.com/edugraph/edugraph-api/internal/repository"
)

var (
	// ErrAssignmentNotFound indicates the requested assignment does not exist.
	ErrAssignmentNotFound = errors.New("assignment not found")
	// ErrActionNotFound indicates the requested action does not exist.
	ErrActionNotFound = errors.New("action not found")
	// ErrActionConfigInvalid indicates the action config fails its schema.
	ErrActionConfigInvalid = errors.New("action config is invalid")
	// ErrActionTypeUnknown indicates an unsupported action type.
	ErrActionTypeUnknown = errors.New("unknown action type")
)

// AssignmentService covers assignment authoring: assignments, their blocks
// and the actions wired to each block. Mutations that change how existing
// submissions are weighed trigger a grade recompute.
type AssignmentService interface {
	List(ctx context.Context, organizationID uint) ([]dto.AssignmentResponse, error)
	Get(ctx context.Context, id uint) (dto.AssignmentResponse, error)
	Create(ctx context.Context, payload dto.AssignmentCreateRequest) (dto.AssignmentResponse, error)
	Update(ctx context.Context, id uint, payload dto.AssignmentUpdateRequest) (dto.AssignmentResponse, error)
	Delete(ctx context.Context, id uint) error

	AddBlock(ctx context.Context, assignmentID uint, payload dto.BlockCreateRequest) (dto.BlockResponse, error)
	UpdateBlock(ctx context.Context, blockID uint, payload dto.BlockUpdateRequest) (dto.BlockResponse, error)
	DeleteBlock(ctx context.Context, blockID uint) error

	AddAction(ctx context.Context, blockID uint, payload dto.ActionCreateRequest) (dto.ActionResponse, error)
	UpdateAction(ctx context.Context, actionID uint, payload dto.ActionUpdateRequest) (dto.ActionResponse, error)
	DeleteAction(ctx context.Context, actionID uint) error
}

type assignmentService struct {
	assignments repository.AssignmentRepository
	blocks      repository.BlockRepository
	actions     repository.ActionRepository
	recompute   RecomputeService
	validator   *validator.Validate
	logger      zerolog.Logger
}

// NewAssignmentService builds a new assignment authoring service.
func NewAssignmentService(
	assignments repository.AssignmentRepository,
	blocks repository.BlockRepository,
	actions repository.ActionRepository,
	recompute RecomputeService,
	validate *validator.Validate,
	logger zerolog.Logger,
) AssignmentService {
	return &assignmentService{
		assignments: assignments,
		blocks:      blocks,
		actions:     actions,
		recompute:   recompute,
		validator:   validate,
		logger:      logger.With().Str("component", "assignment_service").Logger(),
	}
}

func (s *assignmentService) List(ctx context.Context, organizationID uint) ([]dto.AssignmentResponse, error) {
	assignments, err := s.assignments.List(ctx, organizationID)
	if err != nil {
		return nil, err
	}

	responses := make([]dto.AssignmentResponse, 0, len(assignments))
	for _, assignment := range assignments {
		responses = append(responses, dto.NewAssignmentResponse(assignment))
	}
	return responses, nil
}

func (s *assignmentService) Get(ctx context.Context, id uint) (dto.AssignmentResponse, error) {
	assignment, err := s.assignments.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.AssignmentResponse{}, ErrAssignmentNotFound
		}
		return dto.AssignmentResponse{}, err
	}
	return dto.NewAssignmentResponse(assignment), nil
}

func (s *assignmentService) Create(ctx context.Context, payload dto.AssignmentCreateRequest) (dto.AssignmentResponse, error) {
	if err := s.validator.Struct(payload); err != nil {
		return dto.AssignmentResponse{}, err
	}

	assignment := models.Assignment{
		OrganizationID: payload.OrganizationID,
		Title:          payload.Title,
		Description:    payload.Description,
		DueDate:        payload.DueDate,
		MaxAttempts:    payload.MaxAttempts,
	}
	if err := s.assignments.Create(ctx, &assignment); err != nil {
		return dto.AssignmentResponse{}, err
	}

	s.logger.Info().Uint("assignment_id", assignment.ID).Str("title", assignment.Title).Msg("assignment created")
	return dto.NewAssignmentResponse(assignment), nil
}

func (s *assignmentService) Update(ctx context.Context, id uint, payload dto.AssignmentUpdateRequest) (dto.AssignmentResponse, error) {
	if err := s.validator.Struct(payload); err != nil {
		return dto.AssignmentResponse{}, err
	}

	assignment, err := s.assignments.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.AssignmentResponse{}, ErrAssignmentNotFound
		}
		return dto.AssignmentResponse{}, err
	}

	schemeChanged := false
	if payload.Title != nil {
		assignment.Title = *payload.Title
	}
	if payload.Description != nil {
		assignment.Description = *payload.Description
	}
	if payload.DueDate != nil {
		assignment.DueDate = payload.DueDate
	}
	if payload.GradingSchemeID != nil && !equalUintPtr(assignment.GradingSchemeID, payload.GradingSchemeID) {
		assignment.GradingSchemeID = payload.GradingSchemeID
		schemeChanged = true
	}

	if err := s.assignments.Update(ctx, &assignment); err != nil {
		return dto.AssignmentResponse{}, err
	}

	if schemeChanged {
		s.triggerRecompute(ctx, assignment.ID)
	}
	return dto.NewAssignmentResponse(assignment), nil
}

func (s *assignmentService) Delete(ctx context.Context, id uint) error {
	if _, err := s.assignments.GetByID(ctx, id); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrAssignmentNotFound
		}
		return err
	}
	return s.assignments.Delete(ctx, id)
}

func (s *assignmentService) AddBlock(ctx context.Context, assignmentID uint, payload dto.BlockCreateRequest) (dto.BlockResponse, error) {
	if err := s.validator.Struct(payload); err != nil {
		return dto.BlockResponse{}, err
	}

	if _, err := s.assignments.GetByID(ctx, assignmentID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.BlockResponse{}, ErrAssignmentNotFound
		}
		return dto.BlockResponse{}, err
	}

	block := models.Block{
		AssignmentID:     assignmentID,
		Index:            payload.Index,
		Type:             payload.Type,
		Title:            payload.Title,
		Weight:           payload.Weight,
		Granularity:      payload.Granularity,
		LimitRange:       payload.LimitRange,
		Criteria:         payload.Criteria,
		AssessmentMethod: payload.AssessmentMethod,
		MultipleCorrect:  payload.MultipleCorrect,
	}
	for _, choice := range payload.Choices {
		block.Choices = append(block.Choices, models.Choice{
			Text:         choice.Text,
			Correct:      choice.Correct,
			CorrectScore: choice.CorrectScore,
			WrongScore:   choice.WrongScore,
		})
	}

	if err := s.blocks.Create(ctx, &block); err != nil {
		return dto.BlockResponse{}, err
	}
	return dto.NewBlockResponse(block), nil
}

func (s *assignmentService) UpdateBlock(ctx context.Context, blockID uint, payload dto.BlockUpdateRequest) (dto.BlockResponse, error) {
	if err := s.validator.Struct(payload); err != nil {
		return dto.BlockResponse{}, err
	}

	block, err := s.blocks.GetByID(ctx, blockID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.BlockResponse{}, ErrBlockNotFound
		}
		return dto.BlockResponse{}, err
	}

	affectsGrades := false
	if payload.Title != nil {
		block.Title = *payload.Title
	}
	if payload.Weight != nil && *payload.Weight != block.Weight {
		block.Weight = *payload.Weight
		affectsGrades = true
	}
	if payload.Granularity != nil {
		block.Granularity = *payload.Granularity
	}
	if payload.LimitRange != nil {
		block.LimitRange = *payload.LimitRange
	}
	if payload.Criteria != nil {
		block.Criteria = *payload.Criteria
	}
	if payload.AssessmentMethod != nil && *payload.AssessmentMethod != block.AssessmentMethod {
		block.AssessmentMethod = *payload.AssessmentMethod
		affectsGrades = true
	}
	if payload.ActionIDs != nil {
		block.ActionIDs = datatypes.NewJSONSlice(payload.ActionIDs)
	}

	if err := s.blocks.Update(ctx, &block); err != nil {
		return dto.BlockResponse{}, err
	}

	if affectsGrades {
		s.triggerRecompute(ctx, block.AssignmentID)
	}
	return dto.NewBlockResponse(block), nil
}

func (s *assignmentService) DeleteBlock(ctx context.Context, blockID uint) error {
	block, err := s.blocks.GetByID(ctx, blockID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrBlockNotFound
		}
		return err
	}

	if err := s.blocks.Delete(ctx, blockID); err != nil {
		return err
	}

	if block.IsAssessed() {
		s.triggerRecompute(ctx, block.AssignmentID)
	}
	return nil
}

func (s *assignmentService) AddAction(ctx context.Context, blockID uint, payload dto.ActionCreateRequest) (dto.ActionResponse, error) {
	if err := s.validator.Struct(payload); err != nil {
		return dto.ActionResponse{}, err
	}
	if !knownActionType(payload.Type) {
		return dto.ActionResponse{}, fmt.Errorf("%w: %s", ErrActionTypeUnknown, payload.Type)
	}
	if err := pipeline.ValidateConfig(payload.Type, payload.Config); err != nil {
		return dto.ActionResponse{}, fmt.Errorf("%w: %v", ErrActionConfigInvalid, err)
	}

	block, err := s.blocks.GetByID(ctx, blockID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.ActionResponse{}, ErrBlockNotFound
		}
		return dto.ActionResponse{}, err
	}

	action := models.Action{
		BlockID:            blockID,
		Type:               payload.Type,
		Config:             datatypes.JSON(payload.Config),
		StopOnMatch:        payload.StopOnMatch,
		HideFeedback:       payload.HideFeedback,
		TeacherOnly:        payload.TeacherOnly,
		ForceOverrideCache: payload.ForceOverrideCache,
	}
	if err := s.actions.Create(ctx, &action); err != nil {
		return dto.ActionResponse{}, err
	}

	// New actions run last until the teacher reorders them.
	block.ActionIDs = append(block.ActionIDs, action.ID)
	if err := s.blocks.Update(ctx, &block); err != nil {
		return dto.ActionResponse{}, err
	}

	return dto.NewActionResponse(action), nil
}

func (s *assignmentService) UpdateAction(ctx context.Context, actionID uint, payload dto.ActionUpdateRequest) (dto.ActionResponse, error) {
	if err := s.validator.Struct(payload); err != nil {
		return dto.ActionResponse{}, err
	}

	action, err := s.actions.GetByID(ctx, actionID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.ActionResponse{}, ErrActionNotFound
		}
		return dto.ActionResponse{}, err
	}

	if payload.Config != nil {
		if err := pipeline.ValidateConfig(action.Type, payload.Config); err != nil {
			return dto.ActionResponse{}, fmt.Errorf("%w: %v", ErrActionConfigInvalid, err)
		}
		action.Config = datatypes.JSON(payload.Config)
	}
	if payload.StopOnMatch != nil {
		action.StopOnMatch = *payload.StopOnMatch
	}
	if payload.HideFeedback != nil {
		action.HideFeedback = *payload.HideFeedback
	}
	if payload.TeacherOnly != nil {
		action.TeacherOnly = *payload.TeacherOnly
	}
	if payload.ForceOverrideCache != nil {
		action.ForceOverrideCache = *payload.ForceOverrideCache
	}

	if err := s.actions.Update(ctx, &action); err != nil {
		return dto.ActionResponse{}, err
	}
	return dto.NewActionResponse(action), nil
}

func (s *assignmentService) DeleteAction(ctx context.Context, actionID uint) error {
	action, err := s.actions.GetByID(ctx, actionID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrActionNotFound
		}
		return err
	}

	if err := s.actions.Delete(ctx, actionID); err != nil {
		return err
	}

	block, err := s.blocks.GetByID(ctx, action.BlockID)
	if err != nil {
		return err
	}
	ids := make([]uint, 0, len(block.ActionIDs))
	for _, id := range block.ActionIDs {
		if id != actionID {
			ids = append(ids, id)
		}
	}
	block.ActionIDs = datatypes.NewJSONSlice(ids)
	return s.blocks.Update(ctx, &block)
}

// triggerRecompute re-derives grades after an authoring change. A failure is
// logged only; the mutation itself has already been persisted.
func (s *assignmentService) triggerRecompute(ctx context.Context, assignmentID uint) {
	if s.recompute == nil {
		return
	}
	if _, err := s.recompute.RecomputeGrades(ctx, assignmentID); err != nil {
		s.logger.Error().Err(err).Uint("assignment_id", assignmentID).Msg("grade recompute failed after authoring change")
	}
}

func knownActionType(actionType models.ActionType) bool {
	for _, known := range models.ActionTypes {
		if actionType == known {
			return true
		}
	}
	return false
}

func equalUintPtr(a, b *uint) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/edugraph/edugraph-api/internal/dto"
	"github.com/edugraph/edugraph-api/internal/models"
	"github.com/edugraph/edugraph-api/internal/repository"
	"github.com/edugraph/edugraph-api/pkg/sandbox"
)

var (
	// ErrSchemeNotFound indicates the requested grading scheme does not exist.
	ErrSchemeNotFound = errors.New("grading scheme not found")
	// ErrSchemeInvalid indicates the scheme code fails a sandbox dry run.
	ErrSchemeInvalid = errors.New("grading scheme code is invalid")
)

// GradingSchemeService manages the score-to-grade expressions of an
// organization. Scheme code is dry-run in the sandbox before it is stored so
// a broken expression never reaches the grading path.
type GradingSchemeService interface {
	List(ctx context.Context, organizationID uint) ([]dto.GradingSchemeResponse, error)
	Get(ctx context.Context, id uint) (dto.GradingSchemeResponse, error)
	Create(ctx context.Context, payload dto.GradingSchemeCreateRequest) (dto.GradingSchemeResponse, error)
	Update(ctx context.Context, id uint, payload dto.GradingSchemeUpdateRequest) (dto.GradingSchemeResponse, error)
	Delete(ctx context.Context, id uint) error
	// SetDefault makes the scheme the organization default, unsetting the
	// previous default atomically.
	SetDefault(ctx context.Context, id uint) error
	// ResetDefaults replaces the organization's schemes with the built-ins.
	ResetDefaults(ctx context.Context, organizationID uint) ([]dto.GradingSchemeResponse, error)
}

type gradingSchemeService struct {
	repo      repository.GradingSchemeRepository
	evaluator sandbox.Evaluator
	validator *validator.Validate
	logger    zerolog.Logger
}

// NewGradingSchemeService builds a new grading scheme service.
func NewGradingSchemeService(repo repository.GradingSchemeRepository, evaluator sandbox.Evaluator, validate *validator.Validate, logger zerolog.Logger) GradingSchemeService {
	return &gradingSchemeService{
		repo:      repo,
		evaluator: evaluator,
		validator: validate,
		logger:    logger.With().Str("component", "grading_scheme_service").Logger(),
	}
}

func (s *gradingSchemeService) List(ctx context.Context, organizationID uint) ([]dto.GradingSchemeResponse, error) {
	schemes, err := s.repo.ListByOrganization(ctx, organizationID)
	if err != nil {
		return nil, err
	}
	return dto.NewGradingSchemeResponseSlice(schemes), nil
}

func (s *gradingSchemeService) Get(ctx context.Context, id uint) (dto.GradingSchemeResponse, error) {
	scheme, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.GradingSchemeResponse{}, ErrSchemeNotFound
		}
		return dto.GradingSchemeResponse{}, err
	}
	return dto.NewGradingSchemeResponse(scheme), nil
}

func (s *gradingSchemeService) Create(ctx context.Context, payload dto.GradingSchemeCreateRequest) (dto.GradingSchemeResponse, error) {
	if err := s.validator.Struct(payload); err != nil {
		return dto.GradingSchemeResponse{}, err
	}
	if err := s.dryRun(ctx, payload.Code); err != nil {
		return dto.GradingSchemeResponse{}, err
	}

	scheme := models.GradingScheme{
		OrganizationID: payload.OrganizationID,
		AssignmentID:   payload.AssignmentID,
		Name:           payload.Name,
		Code:           payload.Code,
	}
	if err := s.repo.Create(ctx, &scheme); err != nil {
		return dto.GradingSchemeResponse{}, err
	}

	if payload.IsDefault {
		if err := s.repo.SetDefault(ctx, scheme.OrganizationID, scheme.ID); err != nil {
			return dto.GradingSchemeResponse{}, err
		}
		scheme.IsDefault = true
	}

	s.logger.Info().Uint("scheme_id", scheme.ID).Str("name", scheme.Name).Msg("grading scheme created")
	return dto.NewGradingSchemeResponse(scheme), nil
}

func (s *gradingSchemeService) Update(ctx context.Context, id uint, payload dto.GradingSchemeUpdateRequest) (dto.GradingSchemeResponse, error) {
	if err := s.validator.Struct(payload); err != nil {
		return dto.GradingSchemeResponse{}, err
	}

	scheme, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.GradingSchemeResponse{}, ErrSchemeNotFound
		}
		return dto.GradingSchemeResponse{}, err
	}

	if payload.Name != nil {
		scheme.Name = *payload.Name
	}
	if payload.Code != nil {
		if err := s.dryRun(ctx, *payload.Code); err != nil {
			return dto.GradingSchemeResponse{}, err
		}
		scheme.Code = *payload.Code
	}

	if err := s.repo.Update(ctx, &scheme); err != nil {
		return dto.GradingSchemeResponse{}, err
	}

	if payload.IsDefault != nil && *payload.IsDefault && !scheme.IsDefault {
		if err := s.repo.SetDefault(ctx, scheme.OrganizationID, scheme.ID); err != nil {
			return dto.GradingSchemeResponse{}, err
		}
		scheme.IsDefault = true
	}

	return dto.NewGradingSchemeResponse(scheme), nil
}

func (s *gradingSchemeService) Delete(ctx context.Context, id uint) error {
	if _, err := s.repo.GetByID(ctx, id); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrSchemeNotFound
		}
		return err
	}
	return s.repo.Delete(ctx, id)
}

func (s *gradingSchemeService) SetDefault(ctx context.Context, id uint) error {
	scheme, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrSchemeNotFound
		}
		return err
	}
	return s.repo.SetDefault(ctx, scheme.OrganizationID, scheme.ID)
}

func (s *gradingSchemeService) ResetDefaults(ctx context.Context, organizationID uint) ([]dto.GradingSchemeResponse, error) {
	schemes := models.DefaultGradingSchemes(organizationID)
	if err := s.repo.ReplaceForOrganization(ctx, organizationID, schemes); err != nil {
		return nil, err
	}

	s.logger.Info().Uint("organization_id", organizationID).Msg("grading schemes reset to built-ins")
	return dto.NewGradingSchemeResponseSlice(schemes), nil
}

// dryRun evaluates the scheme code against a sample score so syntax errors
// and obvious runtime faults surface at save time.
func (s *gradingSchemeService) dryRun(ctx context.Context, code string) error {
	_, err := s.evaluator.Evaluate(ctx, code, map[string]interface{}{
		"score":     float64(75),
		"questions": []float64{75},
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrSchemeInvalid, err)
	}
	return nil
}

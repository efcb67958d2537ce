package service

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/edugraph/edugraph-api/internal/dto"
	"github.com/edugraph/edugraph-api/internal/models"
	"github.com/edugraph/edugraph-api/internal/repository"
)

// ErrSubmissionNotHandedIn indicates approval of a submission that was never
// handed in.
var ErrSubmissionNotHandedIn = errors.New("submission has not been handed in")

// SubmissionService exposes read access to submissions plus the teacher
// approval step.
type SubmissionService interface {
	ListByAssignment(ctx context.Context, assignmentID uint, role string) ([]dto.SubmissionResponse, error)
	Get(ctx context.Context, id uint, role string) (dto.SubmissionResponse, error)
	// GetOwn returns the caller's submission for the assignment.
	GetOwn(ctx context.Context, assignmentID, studentID uint) (dto.SubmissionResponse, error)
	// Approve marks a handed-in submission as reviewed.
	Approve(ctx context.Context, id uint) (dto.SubmissionResponse, error)
}

type submissionService struct {
	repo   repository.SubmissionRepository
	logger zerolog.Logger
	now    func() time.Time
}

// NewSubmissionService builds a new submission service.
func NewSubmissionService(repo repository.SubmissionRepository, logger zerolog.Logger) SubmissionService {
	return &submissionService{
		repo:   repo,
		logger: logger.With().Str("component", "submission_service").Logger(),
		now:    time.Now,
	}
}

func (s *submissionService) ListByAssignment(ctx context.Context, assignmentID uint, role string) ([]dto.SubmissionResponse, error) {
	submissions, err := s.repo.ListByAssignment(ctx, assignmentID)
	if err != nil {
		return nil, err
	}
	return dto.NewSubmissionResponseSlice(submissions, role), nil
}

func (s *submissionService) Get(ctx context.Context, id uint, role string) (dto.SubmissionResponse, error) {
	submission, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.SubmissionResponse{}, ErrSubmissionNotFound
		}
		return dto.SubmissionResponse{}, err
	}
	return dto.NewSubmissionResponse(submission, role), nil
}

func (s *submissionService) GetOwn(ctx context.Context, assignmentID, studentID uint) (dto.SubmissionResponse, error) {
	submission, err := s.repo.GetByAssignmentAndStudent(ctx, assignmentID, studentID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.SubmissionResponse{}, ErrSubmissionNotFound
		}
		return dto.SubmissionResponse{}, err
	}
	return dto.NewSubmissionResponse(submission, models.RoleStudent), nil
}

func (s *submissionService) Approve(ctx context.Context, id uint) (dto.SubmissionResponse, error) {
	submission, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.SubmissionResponse{}, ErrSubmissionNotFound
		}
		return dto.SubmissionResponse{}, err
	}
	if !submission.IsFinal() {
		return dto.SubmissionResponse{}, ErrSubmissionNotHandedIn
	}

	now := s.now()
	submission.ApprovedAt = &now
	if err := s.repo.Update(ctx, &submission); err != nil {
		return dto.SubmissionResponse{}, err
	}

	s.logger.Info().Uint("submission_id", submission.ID).Msg("submission approved")
	return dto.NewSubmissionResponse(submission, models.RoleTeacher), nil
}

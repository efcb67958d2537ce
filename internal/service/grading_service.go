package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/edugraph/edugraph-api/internal/models"
	"github.com/edugraph/edugraph-api/internal/repository"
	"github.com/edugraph/edugraph-api/pkg/sandbox"
)

// ErrGradeComputation indicates the grading scheme failed to produce a grade.
var ErrGradeComputation = errors.New("grading scheme failed to produce a grade")

// GradingService turns persisted block feedback into a submission score and
// grade. Scores are a weighted mean over assessed blocks; blocks that were
// never evaluated do not drag the average down.
type GradingService interface {
	ComputeScore(submission models.Submission, assignment models.Assignment) *float64
	// ComputeGrade resolves the applicable scheme (assignment, then
	// organization default, then the built-in scoreAsGrade) and evaluates it.
	// A scheme that errors fails closed: the error is returned and no grade
	// is assigned.
	ComputeGrade(ctx context.Context, assignment models.Assignment, submission models.Submission, score float64) (string, error)
}

type gradingService struct {
	schemes   repository.GradingSchemeRepository
	evaluator sandbox.Evaluator
	logger    zerolog.Logger
}

// NewGradingService builds a new grading service.
func NewGradingService(schemes repository.GradingSchemeRepository, evaluator sandbox.Evaluator, logger zerolog.Logger) GradingService {
	return &gradingService{
		schemes:   schemes,
		evaluator: evaluator,
		logger:    logger.With().Str("component", "grading_service").Logger(),
	}
}

func (s *gradingService) ComputeScore(submission models.Submission, assignment models.Assignment) *float64 {
	var weighted, totalWeight float64
	for _, block := range assignment.Blocks {
		if !block.IsAssessed() {
			continue
		}
		feedback := submission.FeedbackFor(block.ID)
		if feedback == nil {
			continue
		}
		weighted += float64(feedback.Score) * float64(block.Weight)
		totalWeight += float64(block.Weight)
	}

	if totalWeight == 0 {
		return nil
	}

	score := weighted / totalWeight
	return &score
}

func (s *gradingService) ComputeGrade(ctx context.Context, assignment models.Assignment, submission models.Submission, score float64) (string, error) {
	scheme, err := s.resolveScheme(ctx, assignment)
	if err != nil {
		return "", err
	}

	questions := make([]float64, 0, len(assignment.Blocks))
	for _, block := range assignment.Blocks {
		if !block.IsAssessed() {
			continue
		}
		if feedback := submission.FeedbackFor(block.ID); feedback != nil {
			questions = append(questions, float64(feedback.Score))
		}
	}

	result, err := s.evaluator.Evaluate(ctx, scheme.Code, map[string]interface{}{
		"score":     score,
		"questions": questions,
	})
	if err != nil {
		s.logger.Error().Err(err).
			Str("scheme", scheme.Name).
			Uint("assignment_id", assignment.ID).
			Msg("grading scheme evaluation failed")
		return "", fmt.Errorf("%w: %v", ErrGradeComputation, err)
	}

	grade, err := gradeString(result)
	if err != nil {
		return "", err
	}
	return grade, nil
}

// resolveScheme walks the scheme precedence chain. A missing organization
// default falls through to the built-in scoreAsGrade code rather than failing.
func (s *gradingService) resolveScheme(ctx context.Context, assignment models.Assignment) (models.GradingScheme, error) {
	if assignment.GradingSchemeID != nil {
		scheme, err := s.schemes.GetByID(ctx, *assignment.GradingSchemeID)
		if err == nil {
			return scheme, nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return models.GradingScheme{}, err
		}
		s.logger.Warn().
			Uint("assignment_id", assignment.ID).
			Uint("scheme_id", *assignment.GradingSchemeID).
			Msg("configured grading scheme missing, falling back to organization default")
	}

	scheme, err := s.schemes.GetDefault(ctx, assignment.OrganizationID)
	if err == nil {
		return scheme, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return models.GradingScheme{}, err
	}

	return models.GradingScheme{
		Name: models.SchemeScoreAsGrade,
		Code: "return tostring(score)",
	}, nil
}

func gradeString(result interface{}) (string, error) {
	switch value := result.(type) {
	case string:
		return value, nil
	case float64:
		return strconv.FormatFloat(value, 'f', -1, 64), nil
	case bool:
		return strconv.FormatBool(value), nil
	default:
		return "", fmt.Errorf("%w: expression returned %T", ErrGradeComputation, result)
	}
}

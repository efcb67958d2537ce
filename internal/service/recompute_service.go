package service

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/edugraph/edugraph-api/internal/dto"
	"github.com/edugraph/edugraph-api/internal/models"
	"github.com/edugraph/edugraph-api/internal/repository"
)

const defaultRecomputeWorkers = 4

// RecomputeService re-derives submission scores and grades from the feedback
// records already on disk. It never re-runs action pipelines, so running it
// twice in a row yields the same result.
type RecomputeService interface {
	RecomputeGrades(ctx context.Context, assignmentID uint) (dto.RecomputeResponse, error)
}

type recomputeService struct {
	assignments repository.AssignmentRepository
	submissions repository.SubmissionRepository
	grading     GradingService
	events      EventDispatcher
	workers     int
	logger      zerolog.Logger
	tracer      trace.Tracer
}

// NewRecomputeService builds a recompute coordinator with the given worker
// pool size. Values below 1 fall back to the default.
func NewRecomputeService(
	assignments repository.AssignmentRepository,
	submissions repository.SubmissionRepository,
	grading GradingService,
	events EventDispatcher,
	workers int,
	logger zerolog.Logger,
) RecomputeService {
	if workers < 1 {
		workers = defaultRecomputeWorkers
	}
	return &recomputeService{
		assignments: assignments,
		submissions: submissions,
		grading:     grading,
		events:      events,
		workers:     workers,
		logger:      logger.With().Str("component", "recompute_service").Logger(),
		tracer:      otel.Tracer("github.com/edugraph/edugraph-api/internal/service"),
	}
}

func (s *recomputeService) RecomputeGrades(ctx context.Context, assignmentID uint) (dto.RecomputeResponse, error) {
	ctx, span := s.tracer.Start(ctx, "grading.recompute", trace.WithAttributes(
		attribute.Int("assignment.id", int(assignmentID)),
	))
	defer span.End()

	assignment, err := s.assignments.GetByID(ctx, assignmentID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.RecomputeResponse{}, ErrAssignmentNotFound
		}
		return dto.RecomputeResponse{}, err
	}

	submissions, err := s.submissions.ListByAssignment(ctx, assignmentID)
	if err != nil {
		return dto.RecomputeResponse{}, err
	}

	var failed int64
	jobs := make(chan models.Submission)
	var wg sync.WaitGroup
	for i := 0; i < s.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for submission := range jobs {
				if err := s.recomputeOne(ctx, assignment, submission); err != nil {
					atomic.AddInt64(&failed, 1)
					s.logger.Error().Err(err).
						Uint("submission_id", submission.ID).
						Msg("failed to recompute submission grade")
				}
			}
		}()
	}

	for _, submission := range submissions {
		jobs <- submission
	}
	close(jobs)
	wg.Wait()

	summary := dto.RecomputeResponse{
		AssignmentID: assignmentID,
		Total:        len(submissions),
		Failed:       int(failed),
	}
	span.SetAttributes(
		attribute.Int("recompute.total", summary.Total),
		attribute.Int("recompute.failed", summary.Failed),
	)

	s.events.Dispatch(SubjectGradingRecomputed, GradingRecomputedEvent(summary))

	s.logger.Info().
		Uint("assignment_id", assignmentID).
		Int("total", summary.Total).
		Int("failed", summary.Failed).
		Msg("grade recompute finished")

	return summary, nil
}

// recomputeOne derives the aggregate for one submission from its stored
// feedback. A failing grading scheme aborts the write so the previous grade
// stays visible.
func (s *recomputeService) recomputeOne(ctx context.Context, assignment models.Assignment, submission models.Submission) error {
	score := s.grading.ComputeScore(submission, assignment)
	if score == nil {
		return s.submissions.SaveGraded(ctx, submission.ID, nil, nil)
	}

	grade, err := s.grading.ComputeGrade(ctx, assignment, submission, *score)
	if err != nil {
		return err
	}
	return s.submissions.SaveGraded(ctx, submission.ID, score, &grade)
}

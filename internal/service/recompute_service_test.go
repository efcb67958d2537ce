package service

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/edugraph/edugraph-api/internal/models"
	"github.com/edugraph/edugraph-api/internal/repository"
	"github.com/edugraph/edugraph-api/pkg/sandbox"
)

func seedRecomputeData(t *testing.T, db *gorm.DB) models.Assignment {
	t.Helper()

	scheme := models.GradingScheme{
		OrganizationID: 1,
		Name:           "pass/fail",
		Code:           `if score >= 55 then return "pass" end return "fail"`,
		IsDefault:      true,
	}
	require.NoError(t, db.Create(&scheme).Error)

	assignment := models.Assignment{OrganizationID: 1, Title: "Homework"}
	require.NoError(t, db.Create(&assignment).Error)

	block := models.Block{AssignmentID: assignment.ID, Type: models.BlockTypeOpenQuestion, Weight: 1, Granularity: 100}
	require.NoError(t, db.Create(&block).Error)

	for i, score := range []int{90, 30} {
		submission := models.Submission{AssignmentID: assignment.ID, StudentID: uint(i + 1)}
		require.NoError(t, db.Create(&submission).Error)
		require.NoError(t, db.Create(&models.BlockFeedback{
			SubmissionID: submission.ID,
			BlockID:      block.ID,
			Score:        score,
			AttemptCount: 1,
		}).Error)
	}
	return assignment
}

func TestRecomputeGradesDerivesFromStoredFeedback(t *testing.T) {
	db := setupServiceDB(t)
	assignment := seedRecomputeData(t, db)

	evaluator := sandbox.NewLuaEvaluator(sandbox.Config{})
	submissions := repository.NewSubmissionRepository(db)
	grading := NewGradingService(repository.NewGradingSchemeRepository(db), evaluator, zerolog.Nop())
	dispatcher := &recordingDispatcher{}

	service := NewRecomputeService(repository.NewAssignmentRepository(db), submissions, grading, dispatcher, 2, zerolog.Nop())

	summary, err := service.RecomputeGrades(context.Background(), assignment.ID)
	require.NoError(t, err)
	require.Equal(t, 2, summary.Total)
	require.Zero(t, summary.Failed)
	require.Equal(t, []string{SubjectGradingRecomputed}, dispatcher.subjects)

	stored, err := submissions.ListByAssignment(context.Background(), assignment.ID)
	require.NoError(t, err)
	require.Len(t, stored, 2)

	require.NotNil(t, stored[0].Grade)
	require.Equal(t, "pass", *stored[0].Grade)
	require.NotNil(t, stored[1].Grade)
	require.Equal(t, "fail", *stored[1].Grade)
}

func TestRecomputeGradesIsIdempotent(t *testing.T) {
	db := setupServiceDB(t)
	assignment := seedRecomputeData(t, db)

	evaluator := sandbox.NewLuaEvaluator(sandbox.Config{})
	submissions := repository.NewSubmissionRepository(db)
	grading := NewGradingService(repository.NewGradingSchemeRepository(db), evaluator, zerolog.Nop())
	service := NewRecomputeService(repository.NewAssignmentRepository(db), submissions, grading, &recordingDispatcher{}, 0, zerolog.Nop())

	_, err := service.RecomputeGrades(context.Background(), assignment.ID)
	require.NoError(t, err)

	first, err := submissions.ListByAssignment(context.Background(), assignment.ID)
	require.NoError(t, err)

	_, err = service.RecomputeGrades(context.Background(), assignment.ID)
	require.NoError(t, err)

	second, err := submissions.ListByAssignment(context.Background(), assignment.ID)
	require.NoError(t, err)

	for i := range first {
		require.Equal(t, first[i].Score, second[i].Score)
		require.Equal(t, first[i].Grade, second[i].Grade)
	}
}

func TestRecomputeGradesCountsFailuresWithoutAborting(t *testing.T) {
	db := setupServiceDB(t)
	assignment := seedRecomputeData(t, db)

	// Swap the default scheme for a broken one after feedback exists.
	require.NoError(t, db.Model(&models.GradingScheme{}).
		Where("organization_id = ?", 1).
		Update("code", "return nonsense(").Error)

	evaluator := sandbox.NewLuaEvaluator(sandbox.Config{})
	submissions := repository.NewSubmissionRepository(db)
	grading := NewGradingService(repository.NewGradingSchemeRepository(db), evaluator, zerolog.Nop())
	service := NewRecomputeService(repository.NewAssignmentRepository(db), submissions, grading, &recordingDispatcher{}, 2, zerolog.Nop())

	summary, err := service.RecomputeGrades(context.Background(), assignment.ID)
	require.NoError(t, err)
	require.Equal(t, 2, summary.Total)
	require.Equal(t, 2, summary.Failed)

	// Failing schemes never wipe previously stored grades.
	stored, err := submissions.ListByAssignment(context.Background(), assignment.ID)
	require.NoError(t, err)
	for _, submission := range stored {
		require.Nil(t, submission.Grade)
	}
}

func TestRecomputeGradesUnknownAssignment(t *testing.T) {
	db := setupServiceDB(t)

	evaluator := sandbox.NewLuaEvaluator(sandbox.Config{})
	grading := NewGradingService(repository.NewGradingSchemeRepository(db), evaluator, zerolog.Nop())
	service := NewRecomputeService(repository.NewAssignmentRepository(db), repository.NewSubmissionRepository(db), grading, &recordingDispatcher{}, 2, zerolog.Nop())

	_, err := service.RecomputeGrades(context.Background(), 42)
	require.ErrorIs(t, err, ErrAssignmentNotFound)
}

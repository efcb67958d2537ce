package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/edugraph/edugraph-api/internal/models"
)

// SubmissionRepository defines data operations for submissions.
type SubmissionRepository interface {
	ListByAssignment(ctx context.Context, assignmentID uint) ([]models.Submission, error)
	GetByID(ctx context.Context, id uint) (models.Submission, error)
	GetByAssignmentAndStudent(ctx context.Context, assignmentID, studentID uint) (models.Submission, error)
	Create(ctx context.Context, submission *models.Submission) error
	Update(ctx context.Context, submission *models.Submission) error
	// SaveEvaluated persists the answer, the merged block feedback and the
	// recomputed submission score/grade in one transaction, so a concurrent
	// writer can never observe feedback without the matching aggregate.
	SaveEvaluated(ctx context.Context, submission *models.Submission, answer *models.Answer, feedback *models.BlockFeedback) error
	// SaveGraded persists only the submission aggregate (recompute path).
	SaveGraded(ctx context.Context, submissionID uint, score *float64, grade *string) error
}

type submissionRepository struct {
	db *gorm.DB
}

// NewSubmissionRepository instantiates the repository.
func NewSubmissionRepository(db *gorm.DB) SubmissionRepository {
	return &submissionRepository{db: db}
}

func (r *submissionRepository) baseQuery(ctx context.Context) *gorm.DB {
	return r.db.WithContext(ctx).Model(&models.Submission{}).
		Preload("Answers").
		Preload("Feedback")
}

func (r *submissionRepository) ListByAssignment(ctx context.Context, assignmentID uint) ([]models.Submission, error) {
	var submissions []models.Submission
	if err := r.baseQuery(ctx).
		Where("assignment_id = ?", assignmentID).
		Order("created_at ASC").
		Find(&submissions).Error; err != nil {
		return nil, err
	}
	return submissions, nil
}

func (r *submissionRepository) GetByID(ctx context.Context, id uint) (models.Submission, error) {
	var submission models.Submission
	if err := r.baseQuery(ctx).First(&submission, id).Error; err != nil {
		return models.Submission{}, err
	}
	return submission, nil
}

func (r *submissionRepository) GetByAssignmentAndStudent(ctx context.Context, assignmentID, studentID uint) (models.Submission, error) {
	var submission models.Submission
	if err := r.baseQuery(ctx).
		Where("assignment_id = ?", assignmentID).
		Where("student_id = ?", studentID).
		First(&submission).Error; err != nil {
		return models.Submission{}, err
	}
	return submission, nil
}

func (r *submissionRepository) Create(ctx context.Context, submission *models.Submission) error {
	return r.db.WithContext(ctx).Create(submission).Error
}

func (r *submissionRepository) Update(ctx context.Context, submission *models.Submission) error {
	return r.db.WithContext(ctx).Save(submission).Error
}

func (r *submissionRepository) SaveEvaluated(ctx context.Context, submission *models.Submission, answer *models.Answer, feedback *models.BlockFeedback) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if answer != nil {
			if err := tx.Save(answer).Error; err != nil {
				return err
			}
		}
		if feedback != nil {
			if err := tx.Save(feedback).Error; err != nil {
				return err
			}
		}
		return tx.Model(&models.Submission{}).
			Where("id = ?", submission.ID).
			Updates(map[string]interface{}{
				"score":            submission.Score,
				"grade":            submission.Grade,
				"completed_blocks": submission.CompletedBlocks,
				"last_activity_at": submission.LastActivityAt,
			}).Error
	})
}

func (r *submissionRepository) SaveGraded(ctx context.Context, submissionID uint, score *float64, grade *string) error {
	return r.db.WithContext(ctx).Model(&models.Submission{}).
		Where("id = ?", submissionID).
		Updates(map[string]interface{}{"score": score, "grade": grade}).Error
}

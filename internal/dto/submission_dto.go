package dto

import (
	"time"

	"github.com/edugraph/edugraph-api/internal/models"
)

// SubmissionResponse is the API shape of a submission.
type SubmissionResponse struct {
	ID              uint                    `json:"id"`
	AssignmentID    uint                    `json:"assignment_id"`
	StudentID       uint                    `json:"student_id"`
	Score           *float64                `json:"score"`
	Grade           *string                 `json:"grade"`
	SubmittedAt     *time.Time              `json:"submitted_at"`
	ApprovedAt      *time.Time              `json:"approved_at"`
	CompletedBlocks []uint                  `json:"completed_blocks"`
	LastActivityAt  time.Time               `json:"last_activity_at"`
	Feedback        []BlockFeedbackResponse `json:"feedback"`
}

// BlockFeedbackResponse is the API shape of persisted block feedback.
type BlockFeedbackResponse struct {
	BlockID       uint     `json:"block_id"`
	Text          []string `json:"text"`
	Log           []string `json:"log,omitempty"`
	Code          int      `json:"code"`
	Score         int      `json:"score"`
	OriginalScore *int     `json:"original_score,omitempty"`
	Justification string   `json:"justification,omitempty"`
	AttemptCount  int      `json:"attempt_count"`
}

// NewSubmissionResponse maps a submission for the given viewer role. Internal
// logs are stripped for students.
func NewSubmissionResponse(submission models.Submission, role string) SubmissionResponse {
	feedback := make([]BlockFeedbackResponse, 0, len(submission.Feedback))
	staff := models.IsStaff(role)
	for _, record := range submission.Feedback {
		item := BlockFeedbackResponse{
			BlockID:      record.BlockID,
			Text:         record.Text,
			Code:         record.Code,
			Score:        record.Score,
			AttemptCount: record.AttemptCount,
		}
		if staff {
			item.Log = record.Log
			item.OriginalScore = record.OriginalScore
			item.Justification = record.Justification
		}
		feedback = append(feedback, item)
	}

	return SubmissionResponse{
		ID:              submission.ID,
		AssignmentID:    submission.AssignmentID,
		StudentID:       submission.StudentID,
		Score:           submission.Score,
		Grade:           submission.Grade,
		SubmittedAt:     submission.SubmittedAt,
		ApprovedAt:      submission.ApprovedAt,
		CompletedBlocks: submission.CompletedBlocks,
		LastActivityAt:  submission.LastActivityAt,
		Feedback:        feedback,
	}
}

// NewSubmissionResponseSlice maps a list of submissions.
func NewSubmissionResponseSlice(submissions []models.Submission, role string) []SubmissionResponse {
	responses := make([]SubmissionResponse, 0, len(submissions))
	for _, submission := range submissions {
		responses = append(responses, NewSubmissionResponse(submission, role))
	}
	return responses
}

package models

import (
	"time"

	"gorm.io/datatypes"
)

// Submission is one student's attempt at an assignment. It is created lazily
// on the first answer and becomes immutable once SubmittedAt is set.
type Submission struct {
	ID              uint                      `gorm:"primaryKey" json:"id"`
	AssignmentID    uint                      `gorm:"index;not null" json:"assignment_id"`
	StudentID       uint                      `gorm:"index;not null" json:"student_id"`
	Score           *float64                  `json:"score"`
	Grade           *string                   `gorm:"size:64" json:"grade"`
	SubmittedAt     *time.Time                `json:"submitted_at"`
	ApprovedAt      *time.Time                `json:"approved_at"`
	CompletedBlocks datatypes.JSONSlice[uint] `json:"completed_blocks"`
	LastActivityAt  time.Time                 `json:"last_activity_at"`
	CreatedAt       time.Time                 `json:"created_at"`
	UpdatedAt       time.Time                 `json:"updated_at"`
	Assignment      Assignment                `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE" json:"assignment"`
	Answers         []Answer                  `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE" json:"answers"`
	Feedback        []BlockFeedback           `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE" json:"feedback"`
}

// IsFinal reports whether further answer or feedback writes are rejected.
func (s Submission) IsFinal() bool {
	return s.SubmittedAt != nil
}

// FeedbackFor returns the persisted feedback record for the given block, if any.
func (s Submission) FeedbackFor(blockID uint) *BlockFeedback {
	for i := range s.Feedback {
		if s.Feedback[i].BlockID == blockID {
			return &s.Feedback[i]
		}
	}
	return nil
}

// AnswerFor returns the stored answer for the given block, if any.
func (s Submission) AnswerFor(blockID uint) *Answer {
	for i := range s.Answers {
		if s.Answers[i].BlockID == blockID {
			return &s.Answers[i]
		}
	}
	return nil
}

// Answer holds one block's raw answer values for a submission. At most one
// record exists per block per submission.
type Answer struct {
	ID           uint                        `gorm:"primaryKey" json:"id"`
	SubmissionID uint                        `gorm:"index:idx_answer_submission_block,unique;not null" json:"submission_id"`
	BlockID      uint                        `gorm:"index:idx_answer_submission_block,unique;not null" json:"block_id"`
	Values       datatypes.JSONSlice[string] `json:"values"`
	FileURLs     datatypes.JSONSlice[string] `json:"file_urls"`
	CreatedAt    time.Time                   `json:"created_at"`
	UpdatedAt    time.Time                   `json:"updated_at"`
}

// BlockFeedback is the persisted result of evaluating a block's action
// pipeline for one submission. The text/log/code/score/attempt_count shape is
// the stored contract and must stay stable across releases.
type BlockFeedback struct {
	ID            uint                        `gorm:"primaryKey" json:"id"`
	SubmissionID  uint                        `gorm:"index:idx_feedback_submission_block,unique;not null" json:"submission_id"`
	BlockID       uint                        `gorm:"index:idx_feedback_submission_block,unique;not null" json:"block_id"`
	Text          datatypes.JSONSlice[string] `json:"text"`
	Log           datatypes.JSONSlice[string] `json:"log"`
	Code          int                         `json:"code"`
	Score         int                         `gorm:"default:0" json:"score"`
	OriginalScore *int                        `json:"original_score"`
	Justification string                      `gorm:"type:text" json:"justification"`
	AttemptCount  int                         `gorm:"default:0" json:"attempt_count"`
	CreatedAt     time.Time                   `json:"created_at"`
	UpdatedAt     time.Time                   `json:"updated_at"`
}

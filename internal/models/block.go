package models

import (
	"time"

	"gorm.io/datatypes"
)

// BlockType identifies the kind of content a block carries.
type BlockType string

const (
	BlockTypeText           BlockType = "text"
	BlockTypeMultipleChoice BlockType = "multiple_choice"
	BlockTypeOpenQuestion   BlockType = "open_question"
	BlockTypeCodeQuestion   BlockType = "code_question"
	BlockTypeDatabase       BlockType = "database_question"
	BlockTypeFileUpload     BlockType = "file_upload"
)

// AssessmentMethod controls how a block's score is produced.
type AssessmentMethod string

const (
	// AssessmentCorrectAnswer scores against the configured correct answer.
	AssessmentCorrectAnswer AssessmentMethod = "correct_answer"
	// AssessmentManual leaves scoring to the teacher.
	AssessmentManual AssessmentMethod = "manual"
	// AssessmentCustom scores through the block's action pipeline.
	AssessmentCustom AssessmentMethod = "custom"
)

// Block is one question or content unit within an assignment.
//
// ActionIDs is the order authority for the block's action pipeline: actions
// execute in the order their ids appear here, regardless of creation order.
type Block struct {
	ID               uint                       `gorm:"primaryKey" json:"id"`
	AssignmentID     uint                       `gorm:"index;not null" json:"assignment_id"`
	// Index maps to a "position" column because "index" is a reserved word
	// on some SQL dialects.
	Index            int                        `gorm:"column:position;not null" json:"index"`
	Type             BlockType                  `gorm:"size:32;not null" json:"type"`
	Title            string                     `gorm:"size:255" json:"title"`
	Weight           int                        `gorm:"default:1" json:"weight"`
	Granularity      int                        `gorm:"default:1" json:"granularity"`
	LimitRange       bool                       `json:"limit_range"`
	Criteria         string                     `gorm:"type:text" json:"criteria"`
	AssessmentMethod AssessmentMethod           `gorm:"size:32;default:correct_answer" json:"assessment_method"`
	MultipleCorrect  bool                       `json:"multiple_correct"`
	ActionIDs        datatypes.JSONSlice[uint]  `json:"action_ids"`
	AllowedFileTypes datatypes.JSONSlice[string] `json:"allowed_file_types"`
	CreatedAt        time.Time                  `json:"created_at"`
	UpdatedAt        time.Time                  `json:"updated_at"`
	Choices          []Choice                   `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE" json:"choices"`
	Actions          []Action                   `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE" json:"actions"`
}

// IsAssessed reports whether the block contributes to the assignment score.
func (b Block) IsAssessed() bool {
	return b.Type != BlockTypeText && b.Weight > 0
}

// CorrectChoices returns the choices treated as correct. When no choice is
// flagged correct the first one stands in, unless multiple answers are allowed.
func (b Block) CorrectChoices() []Choice {
	var correct []Choice
	for _, choice := range b.Choices {
		if choice.Correct {
			correct = append(correct, choice)
		}
	}
	if len(correct) == 0 && !b.MultipleCorrect && len(b.Choices) > 0 {
		correct = []Choice{b.Choices[0]}
	}
	if !b.MultipleCorrect && len(correct) > 1 {
		correct = correct[:1]
	}
	return correct
}

// Choice is one selectable option of a multiple-choice block.
type Choice struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	BlockID      uint      `gorm:"index;not null" json:"block_id"`
	Text         string    `gorm:"type:text" json:"text"`
	Correct      bool      `json:"correct"`
	CorrectScore int       `gorm:"default:100" json:"correct_score"`
	WrongScore   int       `gorm:"default:0" json:"wrong_score"`
	CreatedAt    time.Time `json:"created_at"`
}

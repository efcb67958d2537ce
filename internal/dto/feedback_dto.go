package dto

// FeedbackPreviewRequest asks for a block's feedback without persisting it.
type FeedbackPreviewRequest struct {
	BlockID uint     `json:"block_id" validate:"required"`
	Input   []string `json:"input" validate:"required"`
}

// AnswerSubmitRequest records a student's answer to one block.
type AnswerSubmitRequest struct {
	AssignmentID uint     `json:"assignment_id" validate:"required"`
	BlockID      uint     `json:"block_id" validate:"required"`
	Values       []string `json:"values" validate:"required"`
	FileURLs     []string `json:"file_urls"`
}

// ScoreOverrideRequest records a teacher's manual score for one block.
type ScoreOverrideRequest struct {
	Score         int    `json:"score" validate:"min=0,max=100"`
	Justification string `json:"justification"`
}

// FeedbackResponse is the computed feedback for one block's answer.
type FeedbackResponse struct {
	BlockID      uint     `json:"block_id"`
	Text         []string `json:"text"`
	Log          []string `json:"log,omitempty"`
	Code         int      `json:"code"`
	CodeMeaning  string   `json:"code_meaning"`
	Score        int      `json:"score"`
	AttemptCount int      `json:"attempt_count,omitempty"`
}

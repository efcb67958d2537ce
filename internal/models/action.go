package models

import (
	"time"

	"gorm.io/datatypes"
)

// ActionType identifies the check an action performs against an answer.
type ActionType string

const (
	ActionTypeCode     ActionType = "code"
	ActionTypeUnitTest ActionType = "unit_test"
	ActionTypeIOTest   ActionType = "io_test"
	ActionTypeWebhook  ActionType = "webhook"
	ActionTypeDatabase ActionType = "database"
	ActionTypeFeedback ActionType = "feedback"
	ActionTypeScoring  ActionType = "scoring"
)

// ActionTypes lists every supported action type.
var ActionTypes = []ActionType{
	ActionTypeCode,
	ActionTypeUnitTest,
	ActionTypeIOTest,
	ActionTypeWebhook,
	ActionTypeDatabase,
	ActionTypeFeedback,
	ActionTypeScoring,
}

// Action is one configured check attached to a block. Config carries the
// type-specific payload; fields not used by the declared type are ignored.
type Action struct {
	ID                 uint           `gorm:"primaryKey" json:"id"`
	BlockID            uint           `gorm:"index;not null" json:"block_id"`
	Type               ActionType     `gorm:"size:32;not null" json:"type"`
	Config             datatypes.JSON `json:"config"`
	StopOnMatch        bool           `json:"stop_on_match"`
	HideFeedback       bool           `json:"hide_feedback"`
	TeacherOnly        bool           `json:"teacher_only"`
	ForceOverrideCache bool           `json:"force_override_cache"`
	CreatedAt          time.Time      `json:"created_at"`
	UpdatedAt          time.Time      `json:"updated_at"`
}

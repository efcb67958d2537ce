package models

import "time"

// Assignment represents an assignment definition composed of ordered blocks.
type Assignment struct {
	ID              uint       `gorm:"primaryKey" json:"id"`
	OrganizationID  uint       `gorm:"index;not null" json:"organization_id"`
	Title           string     `gorm:"size:255;not null" json:"title"`
	Description     string     `gorm:"type:text" json:"description"`
	DueDate         *time.Time `json:"due_date"`
	GradingSchemeID *uint      `gorm:"index" json:"grading_scheme_id"`
	MaxAttempts     int        `json:"max_attempts"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
	Blocks          []Block    `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE" json:"blocks"`
}

// IsPastDue returns true when the assignment deadline has already passed.
func (a Assignment) IsPastDue(reference time.Time) bool {
	return a.DueDate != nil && reference.After(*a.DueDate)
}

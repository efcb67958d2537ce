package models

import "time"

// GradingScheme maps a numeric assignment score to a grade string through a
// short user-authored Lua expression evaluated with `score` (and `questions`,
// the per-block scores) bound.
type GradingScheme struct {
	ID             uint      `gorm:"primaryKey" json:"id"`
	OrganizationID uint      `gorm:"index;not null" json:"organization_id"`
	AssignmentID   *uint     `gorm:"index" json:"assignment_id"`
	Name           string    `gorm:"size:255;not null" json:"name"`
	Code           string    `gorm:"type:text;not null" json:"code"`
	IsDefault      bool      `json:"is_default"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// Built-in scheme names seeded for every organization.
const (
	SchemeScoreAsGrade = "scoreAsGrade"
	SchemePassFail     = "passFail"
	SchemeLetterGrade  = "letterGrade"
)

// DefaultGradingSchemes returns the built-in schemes for an organization.
// scoreAsGrade is the fallback used when no scheme is configured at all.
func DefaultGradingSchemes(organizationID uint) []GradingScheme {
	return []GradingScheme{
		{
			OrganizationID: organizationID,
			Name:           SchemeScoreAsGrade,
			Code:           "return tostring(score)",
			IsDefault:      true,
		},
		{
			OrganizationID: organizationID,
			Name:           SchemePassFail,
			Code:           "if score >= 55 then return \"pass\" end return \"fail\"",
		},
		{
			OrganizationID: organizationID,
			Name:           SchemeLetterGrade,
			Code: "if score >= 90 then return \"A\" end\n" +
				"if score >= 80 then return \"B\" end\n" +
				"if score >= 70 then return \"C\" end\n" +
				"if score >= 60 then return \"D\" end\n" +
				"return \"F\"",
		},
	}
}

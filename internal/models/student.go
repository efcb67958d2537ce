package models

import "time"

// Student represents a learner that can answer assignment blocks.
type Student struct {
	ID             uint      `gorm:"primaryKey" json:"id"`
	OrganizationID uint      `gorm:"index" json:"organization_id"`
	Name           string    `gorm:"size:255;not null" json:"name"`
	Email          string    `gorm:"size:255;uniqueIndex;not null" json:"email"`
	Role           string    `gorm:"size:32;not null;default:student" json:"role"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

const (
	// RoleStudent is the default learner role.
	RoleStudent = "student"
	// RoleTeacher marks course staff allowed to see internal logs and override scores.
	RoleTeacher = "teacher"
	// RoleAdmin marks organization administrators.
	RoleAdmin = "admin"
)

// IsStaff reports whether the role may view teacher-only feedback.
func IsStaff(role string) bool {
	return role == RoleTeacher || role == RoleAdmin
}

package collaborators

import (
	"time"

	"github.com/MarcoPoloResearchLab/fable/internal/users"
)

// Collaborator links one user to one work. A null ApprovedAt marks a pending
// request; removal deletes the row outright, so no rejected state exists.
type Collaborator struct {
	WorkID     string     `gorm:"column:work_id;primaryKey;size:36;not null"`
	UserID     string     `gorm:"column:user_id;primaryKey;size:36;not null"`
	ApprovedAt *time.Time `gorm:"column:approved_at"`
	CreatedAt  time.Time  `gorm:"column:created_at;autoCreateTime"`
}

// TableName provides the explicit table binding for GORM.
func (Collaborator) TableName() string {
	return "work_collaborators"
}

// Approved reports whether the row has been approved by the work owner.
func (c Collaborator) Approved() bool {
	return c.ApprovedAt != nil
}

// CollaboratorWithUser pairs a registry row with the user's public profile.
type CollaboratorWithUser struct {
	Collaborator Collaborator
	User         users.Profile
}

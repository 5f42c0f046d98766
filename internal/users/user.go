package users

import "time"

// User is the persisted account record. Credentials live in the external auth
// service; this table only carries what the API is allowed to expose.
type User struct {
	ID        string    `gorm:"column:id;primaryKey;size:36;not null"`
	Username  string    `gorm:"column:username;size:190;not null;uniqueIndex"`
	Email     string    `gorm:"column:email;size:320;not null;uniqueIndex"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
}

// TableName provides the explicit table binding for GORM.
func (User) TableName() string {
	return "users"
}

// Profile is the public projection joined onto author-facing responses.
type Profile struct {
	ID        string
	Username  string
	Email     string
	CreatedAt time.Time
}

func (u User) profile() Profile {
	return Profile{
		ID:        u.ID,
		Username:  u.Username,
		Email:     u.Email,
		CreatedAt: u.CreatedAt,
	}
}

package works

import "time"

// Work is a story container owned by one user. Its lifecycle is managed
// elsewhere; the page and collaborator services only read it.
type Work struct {
	ID                 string    `gorm:"column:id;primaryKey;size:36;not null"`
	AuthorID           string    `gorm:"column:author_id;size:36;not null;index"`
	Title              string    `gorm:"column:title;size:190;not null"`
	Description        string    `gorm:"column:description;type:text"`
	AllowCollaboration bool      `gorm:"column:allow_collaboration;not null;default:false"`
	PageCharLimit      int       `gorm:"column:page_char_limit;not null;default:2000"`
	CreatedAt          time.Time `gorm:"column:created_at;autoCreateTime"`
}

// TableName provides the explicit table binding for GORM.
func (Work) TableName() string {
	return "works"
}

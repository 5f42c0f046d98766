package pages

import (
	"time"

	"github.com/MarcoPoloResearchLab/fable/internal/users"
)

// PageStatus enumerates the page lifecycle states.
type PageStatus string

const (
	// StatusPending marks a contribution awaiting owner review. Pending pages
	// hold no page number and are invisible to public listing.
	StatusPending PageStatus = "pending"
	// StatusApproved marks a page that occupies a position in the work.
	StatusApproved PageStatus = "approved"
)

// Page is one unit of narrative content within a work.
//
// PageNumber is non-null exactly when the page is approved; across the
// approved pages of one work the numbers form a dense sequence starting at 1.
// The unique index turns a concurrent number assignment into a constraint
// violation instead of a silent duplicate.
type Page struct {
	ID         string     `gorm:"column:id;primaryKey;size:36;not null"`
	WorkID     string     `gorm:"column:work_id;size:36;not null;index:idx_pages_work_status,priority:1;uniqueIndex:idx_pages_work_number,priority:1"`
	AuthorID   string     `gorm:"column:author_id;size:36;not null;index"`
	Content    string     `gorm:"column:content;type:text;not null"`
	PageNumber *int       `gorm:"column:page_number;uniqueIndex:idx_pages_work_number,priority:2"`
	Status     PageStatus `gorm:"column:status;size:16;not null;default:pending;index:idx_pages_work_status,priority:2"`
	ApprovedAt *time.Time `gorm:"column:approved_at"`
	CreatedAt  time.Time  `gorm:"column:created_at;autoCreateTime"`
}

// TableName provides the explicit table binding for GORM.
func (Page) TableName() string {
	return "pages"
}

// PageWithAuthor pairs a page with its author's public profile.
type PageWithAuthor struct {
	Page   Page
	Author users.Profile
}

// Contributor is one row of the ranked contributor listing for a work.
type Contributor struct {
	UserID    string
	Username  string
	PageCount int
}

package pages

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"

	"github.com/MarcoPoloResearchLab/fable/internal/apperr"
	"github.com/MarcoPoloResearchLab/fable/internal/users"
	"github.com/MarcoPoloResearchLab/fable/internal/works"
)

type seqIDGenerator struct {
	next int
}

func (g *seqIDGenerator) NewID() (string, error) {
	g.next++
	return fmt.Sprintf("page-%d", g.next), nil
}

// tickingClock hands out strictly increasing timestamps so created_at
// ordering is deterministic in tests.
type tickingClock struct {
	current time.Time
}

func (c *tickingClock) Now() time.Time {
	c.current = c.current.Add(time.Second)
	return c.current
}

func newTestLedger(t *testing.T) (*Service, *gorm.DB) {
	t.Helper()

	dsn := fmt.Sprintf("file:fable_pages_test_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{TranslateError: true})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&users.User{}, &works.Work{}, &Page{}); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}

	usersService, err := users.NewService(users.ServiceConfig{Database: db})
	if err != nil {
		t.Fatalf("failed to construct users service: %v", err)
	}
	worksService, err := works.NewService(works.ServiceConfig{Database: db})
	if err != nil {
		t.Fatalf("failed to construct works service: %v", err)
	}

	clock := &tickingClock{current: time.Unix(1700000000, 0).UTC()}
	service, err := NewService(ServiceConfig{
		Database:   db,
		Works:      worksService,
		Users:      usersService,
		Clock:      clock.Now,
		IDProvider: &seqIDGenerator{},
	})
	if err != nil {
		t.Fatalf("failed to construct page ledger: %v", err)
	}

	return service, db
}

func seedUser(t *testing.T, db *gorm.DB, id, username string) {
	t.Helper()
	user := users.User{
		ID:        id,
		Username:  username,
		Email:     username + "@example.com",
		CreatedAt: time.Unix(1690000000, 0).UTC(),
	}
	if err := db.Create(&user).Error; err != nil {
		t.Fatalf("failed to seed user %s: %v", id, err)
	}
}

func seedWork(t *testing.T, db *gorm.DB, id, authorID string, allowCollaboration bool, charLimit int) {
	t.Helper()
	work := works.Work{
		ID:                 id,
		AuthorID:           authorID,
		Title:              "Test Novel",
		AllowCollaboration: allowCollaboration,
		PageCharLimit:      charLimit,
	}
	if err := db.Create(&work).Error; err != nil {
		t.Fatalf("failed to seed work %s: %v", id, err)
	}
}

func assertDomainError(t *testing.T, err error, kind apperr.Kind) *apperr.Error {
	t.Helper()
	if err == nil {
		t.Fatalf("expected %s error, got nil", kind)
	}
	var domainErr *apperr.Error
	if !errors.As(err, &domainErr) {
		t.Fatalf("expected domain error, got %v", err)
	}
	if domainErr.Kind() != kind {
		t.Fatalf("expected kind %s, got %s (%v)", kind, domainErr.Kind(), domainErr)
	}
	return domainErr
}

func approvedNumbers(t *testing.T, service *Service, workID string) []int {
	t.Helper()
	rows, err := service.FindAll(context.Background(), workID)
	if err != nil {
		t.Fatalf("failed to list pages: %v", err)
	}
	numbers := make([]int, 0, len(rows))
	for _, row := range rows {
		if row.Page.PageNumber == nil {
			t.Fatalf("approved page %s has no number", row.Page.ID)
		}
		numbers = append(numbers, *row.Page.PageNumber)
	}
	return numbers
}

package pages

import (
	"context"
	"errors"
	"sort"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/MarcoPoloResearchLab/fable/internal/apperr"
	"github.com/MarcoPoloResearchLab/fable/internal/users"
	"github.com/MarcoPoloResearchLab/fable/internal/works"
)

var (
	errMissingDatabase   = errors.New("database handle is required")
	errMissingWorks      = errors.New("work reader is required")
	errMissingUsers      = errors.New("profile reader is required")
	errMissingIDProvider = errors.New("id provider is required")
	noOpLogger           = zap.NewNop()
)

const (
	opCreate   = "pages.create"
	opRemove   = "pages.remove"
	opApprove  = "pages.approve_contribution"
	opContribs = "pages.get_collaborators"
)

// WorkReader resolves works for authorization and limit checks. A nil work
// means the work does not exist.
type WorkReader interface {
	GetWork(ctx context.Context, workID string) (*works.Work, error)
}

// ProfileReader resolves public user profiles for response joins.
type ProfileReader interface {
	GetPublicProfile(ctx context.Context, userID string) (users.Profile, error)
	GetPublicProfiles(ctx context.Context, userIDs []string) (map[string]users.Profile, error)
}

// IDProvider issues identifiers for new pages.
type IDProvider interface {
	NewID() (string, error)
}

// ServiceConfig describes the dependencies of the page ledger.
type ServiceConfig struct {
	Database   *gorm.DB
	Works      WorkReader
	Users      ProfileReader
	Clock      func() time.Time
	IDProvider IDProvider
	Logger     *zap.Logger
}

// Service owns the ordered sequence of approved pages per work and the queue
// of pending contributions awaiting owner review.
type Service struct {
	db         *gorm.DB
	works      WorkReader
	users      ProfileReader
	clock      func() time.Time
	idProvider IDProvider
	logger     *zap.Logger
}

// NewService constructs the page ledger service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, errMissingDatabase
	}
	if cfg.Works == nil {
		return nil, errMissingWorks
	}
	if cfg.Users == nil {
		return nil, errMissingUsers
	}
	if cfg.IDProvider == nil {
		return nil, errMissingIDProvider
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}
	return &Service{
		db:         cfg.Database,
		works:      cfg.Works,
		users:      cfg.Users,
		clock:      clock,
		idProvider: cfg.IDProvider,
		logger:     logger,
	}, nil
}

// Create submits a page to a work. Owner submissions are approved immediately
// and receive the next sequential number; any other submission is accepted
// while the work allows collaboration and lands in the pending queue.
func (s *Service) Create(ctx context.Context, workID, authorID, content string) (PageWithAuthor, error) {
	work, err := s.works.GetWork(ctx, workID)
	if err != nil {
		return PageWithAuthor{}, err
	}
	if work == nil {
		return PageWithAuthor{}, apperr.NotFound("Work not found")
	}

	isOwner := work.AuthorID == authorID
	if !isOwner && !work.AllowCollaboration {
		return PageWithAuthor{}, apperr.Forbidden("This work does not allow contributions")
	}
	if utf8.RuneCountInString(content) > work.PageCharLimit {
		return PageWithAuthor{}, apperr.BadRequest("Content exceeds the work's character limit of %d", work.PageCharLimit)
	}

	pageID, err := s.idProvider.NewID()
	if err != nil {
		return PageWithAuthor{}, err
	}

	page := Page{
		ID:        pageID,
		WorkID:    workID,
		AuthorID:  authorID,
		Content:   content,
		Status:    StatusPending,
		CreatedAt: s.clock().UTC(),
	}

	if isOwner {
		approvedAt := s.clock().UTC()
		err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			next, err := nextPageNumber(tx, workID)
			if err != nil {
				return err
			}
			page.PageNumber = &next
			page.Status = StatusApproved
			page.ApprovedAt = &approvedAt
			return tx.Create(&page).Error
		})
	} else {
		err = s.db.WithContext(ctx).Create(&page).Error
	}
	if err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return PageWithAuthor{}, apperr.Conflict("Page number was assigned concurrently, please retry")
		}
		s.logError(opCreate, err, zap.String("work_id", workID), zap.String("author_id", authorID))
		return PageWithAuthor{}, err
	}

	return s.withAuthor(ctx, page)
}

// FindAll lists the approved pages of a work in reading order. A work without
// approved pages yields an empty list.
func (s *Service) FindAll(ctx context.Context, workID string) ([]PageWithAuthor, error) {
	var rows []Page
	if err := s.db.WithContext(ctx).
		Where("work_id = ? AND status = ?", workID, StatusApproved).
		Order("page_number ASC").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	return s.withAuthors(ctx, rows)
}

// FindOne returns the approved page holding the given number in the work.
// Pending pages hold no number, so they can never be addressed here.
func (s *Service) FindOne(ctx context.Context, workID string, pageNumber int) (PageWithAuthor, error) {
	var page Page
	err := s.db.WithContext(ctx).
		Where("work_id = ? AND page_number = ? AND status = ?", workID, pageNumber, StatusApproved).
		Take(&page).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return PageWithAuthor{}, apperr.NotFound("Page not found")
	}
	if err != nil {
		return PageWithAuthor{}, err
	}
	return s.withAuthor(ctx, page)
}

// Update replaces the content of an approved page. Only the page author may
// edit, and the new content is re-validated against the work's limit.
func (s *Service) Update(ctx context.Context, pageID, actingUserID, content string) (PageWithAuthor, error) {
	page, err := s.byID(ctx, pageID)
	if err != nil {
		return PageWithAuthor{}, err
	}
	if page.Status != StatusApproved {
		return PageWithAuthor{}, apperr.Forbidden("Only approved pages can be edited")
	}
	if page.AuthorID != actingUserID {
		return PageWithAuthor{}, apperr.Forbidden("You are not the author of this page")
	}

	work, err := s.works.GetWork(ctx, page.WorkID)
	if err != nil {
		return PageWithAuthor{}, err
	}
	if work == nil {
		return PageWithAuthor{}, apperr.NotFound("Work not found")
	}
	if utf8.RuneCountInString(content) > work.PageCharLimit {
		return PageWithAuthor{}, apperr.BadRequest("Content exceeds the work's character limit of %d", work.PageCharLimit)
	}

	if err := s.db.WithContext(ctx).
		Model(&Page{}).
		Where("id = ?", pageID).
		Update("content", content).Error; err != nil {
		return PageWithAuthor{}, err
	}
	page.Content = content

	return s.withAuthor(ctx, page)
}

// Remove deletes an approved page and closes the numbering gap: every later
// page of the same work moves down by one. Both steps commit atomically.
func (s *Service) Remove(ctx context.Context, pageID, actingUserID string) error {
	page, err := s.byID(ctx, pageID)
	if err != nil {
		return err
	}
	if page.Status != StatusApproved {
		return apperr.Forbidden("Only approved pages can be deleted")
	}
	if page.AuthorID != actingUserID {
		return apperr.Forbidden("You are not the author of this page")
	}

	removedNumber := *page.PageNumber
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("id = ?", pageID).Delete(&Page{}).Error; err != nil {
			return err
		}
		// Shift in two steps through negative numbers so the unique index on
		// (work_id, page_number) holds no matter which row updates first.
		if err := tx.Model(&Page{}).
			Where("work_id = ? AND status = ? AND page_number > ?", page.WorkID, StatusApproved, removedNumber).
			Update("page_number", gorm.Expr("-(page_number - 1)")).Error; err != nil {
			return err
		}
		return tx.Model(&Page{}).
			Where("work_id = ? AND page_number < 0", page.WorkID).
			Update("page_number", gorm.Expr("-page_number")).Error
	})
	if err != nil {
		s.logError(opRemove, err, zap.String("page_id", pageID), zap.String("work_id", page.WorkID))
		return err
	}
	return nil
}

// GetPendingContributions lists the owner's review queue, oldest first.
func (s *Service) GetPendingContributions(ctx context.Context, workID, actingUserID string) ([]PageWithAuthor, error) {
	work, err := s.works.GetWork(ctx, workID)
	if err != nil {
		return nil, err
	}
	if work == nil {
		return nil, apperr.NotFound("Work not found")
	}
	if work.AuthorID != actingUserID {
		return nil, apperr.Forbidden("Only the work owner can perform this action")
	}

	var rows []Page
	if err := s.db.WithContext(ctx).
		Where("work_id = ? AND status = ?", workID, StatusPending).
		Order("created_at ASC").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	return s.withAuthors(ctx, rows)
}

// ApproveContribution moves a pending page into the approved sequence at the
// next available number.
func (s *Service) ApproveContribution(ctx context.Context, pageID, actingUserID string) (PageWithAuthor, error) {
	page, err := s.byID(ctx, pageID)
	if err != nil {
		return PageWithAuthor{}, err
	}
	if page.Status != StatusPending {
		return PageWithAuthor{}, apperr.BadRequest("Page is not pending approval")
	}

	work, err := s.works.GetWork(ctx, page.WorkID)
	if err != nil {
		return PageWithAuthor{}, err
	}
	if work == nil {
		return PageWithAuthor{}, apperr.NotFound("Work not found")
	}
	if work.AuthorID != actingUserID {
		return PageWithAuthor{}, apperr.Forbidden("Only the work owner can perform this action")
	}

	approvedAt := s.clock().UTC()
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		next, err := nextPageNumber(tx, page.WorkID)
		if err != nil {
			return err
		}
		// Guard the status in the update itself so a concurrent approval of
		// the same page loses cleanly instead of double-numbering.
		result := tx.Model(&Page{}).
			Where("id = ? AND status = ?", pageID, StatusPending).
			Updates(map[string]interface{}{
				"page_number": next,
				"status":      StatusApproved,
				"approved_at": approvedAt,
			})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return apperr.BadRequest("Page is not pending approval")
		}
		page.PageNumber = &next
		page.Status = StatusApproved
		page.ApprovedAt = &approvedAt
		return nil
	})
	if err != nil {
		var domainErr *apperr.Error
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return PageWithAuthor{}, apperr.Conflict("Page number was assigned concurrently, please retry")
		}
		if !errors.As(err, &domainErr) {
			s.logError(opApprove, err, zap.String("page_id", pageID))
		}
		return PageWithAuthor{}, err
	}

	return s.withAuthor(ctx, page)
}

// RejectContribution permanently deletes a pending page. No numbering side
// effects, since pending pages hold no number.
func (s *Service) RejectContribution(ctx context.Context, pageID, actingUserID string) error {
	page, err := s.byID(ctx, pageID)
	if err != nil {
		return err
	}
	if page.Status != StatusPending {
		return apperr.BadRequest("Page is not pending approval")
	}

	work, err := s.works.GetWork(ctx, page.WorkID)
	if err != nil {
		return err
	}
	if work == nil {
		return apperr.NotFound("Work not found")
	}
	if work.AuthorID != actingUserID {
		return apperr.Forbidden("Only the work owner can perform this action")
	}

	result := s.db.WithContext(ctx).
		Where("id = ? AND status = ?", pageID, StatusPending).
		Delete(&Page{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return apperr.BadRequest("Page is not pending approval")
	}
	return nil
}

// GetCollaborators ranks everyone with approved pages in the work by page
// count, ties broken by ascending username.
func (s *Service) GetCollaborators(ctx context.Context, workID string) ([]Contributor, error) {
	work, err := s.works.GetWork(ctx, workID)
	if err != nil {
		return nil, err
	}
	if work == nil {
		return nil, apperr.NotFound("Work not found")
	}

	type countRow struct {
		AuthorID  string
		PageCount int
	}
	var counts []countRow
	if err := s.db.WithContext(ctx).
		Model(&Page{}).
		Select("author_id, COUNT(*) AS page_count").
		Where("work_id = ? AND status = ?", workID, StatusApproved).
		Group("author_id").
		Scan(&counts).Error; err != nil {
		s.logError(opContribs, err, zap.String("work_id", workID))
		return nil, err
	}

	authorIDs := make([]string, 0, len(counts))
	for _, row := range counts {
		authorIDs = append(authorIDs, row.AuthorID)
	}
	profiles, err := s.users.GetPublicProfiles(ctx, authorIDs)
	if err != nil {
		return nil, err
	}

	contributors := make([]Contributor, 0, len(counts))
	for _, row := range counts {
		contributors = append(contributors, Contributor{
			UserID:    row.AuthorID,
			Username:  profiles[row.AuthorID].Username,
			PageCount: row.PageCount,
		})
	}
	sort.Slice(contributors, func(i, j int) bool {
		if contributors[i].PageCount != contributors[j].PageCount {
			return contributors[i].PageCount > contributors[j].PageCount
		}
		return contributors[i].Username < contributors[j].Username
	})
	return contributors, nil
}

func (s *Service) byID(ctx context.Context, pageID string) (Page, error) {
	var page Page
	err := s.db.WithContext(ctx).Where("id = ?", pageID).Take(&page).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Page{}, apperr.NotFound("Page not found")
	}
	if err != nil {
		return Page{}, err
	}
	return page, nil
}

// nextPageNumber computes max approved number + 1 within the transaction that
// will write it, so the read and the write commit together.
func nextPageNumber(tx *gorm.DB, workID string) (int, error) {
	var maxNumber int
	err := tx.Model(&Page{}).
		Where("work_id = ? AND status = ?", workID, StatusApproved).
		Select("COALESCE(MAX(page_number), 0)").
		Scan(&maxNumber).Error
	if err != nil {
		return 0, err
	}
	return maxNumber + 1, nil
}

func (s *Service) withAuthor(ctx context.Context, page Page) (PageWithAuthor, error) {
	profile, err := s.users.GetPublicProfile(ctx, page.AuthorID)
	if err != nil {
		return PageWithAuthor{}, err
	}
	return PageWithAuthor{Page: page, Author: profile}, nil
}

func (s *Service) withAuthors(ctx context.Context, rows []Page) ([]PageWithAuthor, error) {
	authorIDs := make([]string, 0, len(rows))
	for _, row := range rows {
		authorIDs = append(authorIDs, row.AuthorID)
	}
	profiles, err := s.users.GetPublicProfiles(ctx, authorIDs)
	if err != nil {
		return nil, err
	}

	joined := make([]PageWithAuthor, 0, len(rows))
	for _, row := range rows {
		joined = append(joined, PageWithAuthor{Page: row, Author: profiles[row.AuthorID]})
	}
	return joined, nil
}

func (s *Service) logError(operation string, err error, fields ...zap.Field) {
	attrs := append([]zap.Field{zap.String("operation", operation), zap.Error(err)}, fields...)
	s.logger.Error("page ledger error", attrs...)
}

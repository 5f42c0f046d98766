package collaborators

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/MarcoPoloResearchLab/fable/internal/apperr"
	"github.com/MarcoPoloResearchLab/fable/internal/users"
	"github.com/MarcoPoloResearchLab/fable/internal/works"
)

var (
	errMissingDatabase = errors.New("database handle is required")
	errMissingWorks    = errors.New("work reader is required")
	errMissingUsers    = errors.New("profile reader is required")
	noOpLogger         = zap.NewNop()
)

// WorkReader resolves works for authorization checks. A nil work means the
// work does not exist.
type WorkReader interface {
	GetWork(ctx context.Context, workID string) (*works.Work, error)
}

// ProfileReader resolves public user profiles for response joins.
type ProfileReader interface {
	GetPublicProfile(ctx context.Context, userID string) (users.Profile, error)
	GetPublicProfiles(ctx context.Context, userIDs []string) (map[string]users.Profile, error)
}

// ServiceConfig describes the dependencies of the collaboration registry.
type ServiceConfig struct {
	Database *gorm.DB
	Works    WorkReader
	Users    ProfileReader
	Clock    func() time.Time
	Logger   *zap.Logger
}

// Service tracks per-(work, user) collaboration status and governs who may
// stand as a collaborator on a work.
type Service struct {
	db     *gorm.DB
	works  WorkReader
	users  ProfileReader
	clock  func() time.Time
	logger *zap.Logger
}

// NewService constructs the collaboration registry service.
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
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}
	return &Service{
		db:     cfg.Database,
		works:  cfg.Works,
		users:  cfg.Users,
		clock:  clock,
		logger: logger,
	}, nil
}

// RequestCollaboration files a pending collaboration request for the user.
// Owners cannot request collaboration on their own work, and at most one row
// exists per (work, user) pair.
func (s *Service) RequestCollaboration(ctx context.Context, workID, userID string) (CollaboratorWithUser, error) {
	work, err := s.works.GetWork(ctx, workID)
	if err != nil {
		return CollaboratorWithUser{}, err
	}
	if work == nil {
		return CollaboratorWithUser{}, apperr.NotFound("Work not found")
	}
	if !work.AllowCollaboration {
		return CollaboratorWithUser{}, apperr.Forbidden("Collaboration is not allowed for this work")
	}
	if work.AuthorID == userID {
		return CollaboratorWithUser{}, apperr.Forbidden("You cannot collaborate on your own work")
	}

	var existing Collaborator
	err = s.db.WithContext(ctx).
		Where("work_id = ? AND user_id = ?", workID, userID).
		Take(&existing).Error
	switch {
	case err == nil:
		if existing.Approved() {
			return CollaboratorWithUser{}, apperr.Forbidden("You are already a collaborator on this work")
		}
		return CollaboratorWithUser{}, apperr.Conflict("You already have a pending collaboration request")
	case !errors.Is(err, gorm.ErrRecordNotFound):
		return CollaboratorWithUser{}, err
	}

	row := Collaborator{
		WorkID:    workID,
		UserID:    userID,
		CreatedAt: s.clock().UTC(),
	}
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return CollaboratorWithUser{}, apperr.Conflict("You already have a pending collaboration request")
		}
		s.logger.Error("collaboration request insert failed",
			zap.String("work_id", workID), zap.String("user_id", userID), zap.Error(err))
		return CollaboratorWithUser{}, err
	}

	return s.withUser(ctx, row)
}

// ApproveCollaborator marks a pending request as approved. Only the work
// owner may approve, and approving twice is a conflict.
func (s *Service) ApproveCollaborator(ctx context.Context, workID, userID, actingUserID string) (CollaboratorWithUser, error) {
	if err := s.requireOwner(ctx, workID, actingUserID); err != nil {
		return CollaboratorWithUser{}, err
	}
	row, err := s.row(ctx, workID, userID, "Collaboration request not found")
	if err != nil {
		return CollaboratorWithUser{}, err
	}
	if row.Approved() {
		return CollaboratorWithUser{}, apperr.Conflict("Collaboration request is already approved")
	}

	approvedAt := s.clock().UTC()
	if err := s.db.WithContext(ctx).
		Model(&Collaborator{}).
		Where("work_id = ? AND user_id = ?", workID, userID).
		Update("approved_at", approvedAt).Error; err != nil {
		return CollaboratorWithUser{}, err
	}
	row.ApprovedAt = &approvedAt

	return s.withUser(ctx, row)
}

// RemoveCollaborator deletes the registry row regardless of its state.
func (s *Service) RemoveCollaborator(ctx context.Context, workID, userID, actingUserID string) error {
	if err := s.requireOwner(ctx, workID, actingUserID); err != nil {
		return err
	}
	if _, err := s.row(ctx, workID, userID, "Collaborator not found"); err != nil {
		return err
	}
	return s.db.WithContext(ctx).
		Where("work_id = ? AND user_id = ?", workID, userID).
		Delete(&Collaborator{}).Error
}

// GetCollaborators lists approved collaborators with their public profiles.
// Public, no ownership check.
func (s *Service) GetCollaborators(ctx context.Context, workID string) ([]CollaboratorWithUser, error) {
	var rows []Collaborator
	if err := s.db.WithContext(ctx).
		Where("work_id = ? AND approved_at IS NOT NULL", workID).
		Order("created_at ASC").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	return s.withUsers(ctx, rows)
}

// GetPendingRequests lists pending requests for the work owner.
func (s *Service) GetPendingRequests(ctx context.Context, workID, actingUserID string) ([]CollaboratorWithUser, error) {
	if err := s.requireOwner(ctx, workID, actingUserID); err != nil {
		return nil, err
	}

	var rows []Collaborator
	if err := s.db.WithContext(ctx).
		Where("work_id = ? AND approved_at IS NULL", workID).
		Order("created_at ASC").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	return s.withUsers(ctx, rows)
}

// requireOwner performs the shared work-exists / actor-is-owner check for
// owner actions.
func (s *Service) requireOwner(ctx context.Context, workID, actingUserID string) error {
	work, err := s.works.GetWork(ctx, workID)
	if err != nil {
		return err
	}
	if work == nil {
		return apperr.NotFound("Work not found")
	}
	if work.AuthorID != actingUserID {
		return apperr.Forbidden("Only the work owner can perform this action")
	}
	return nil
}

func (s *Service) row(ctx context.Context, workID, userID, missingMessage string) (Collaborator, error) {
	var row Collaborator
	err := s.db.WithContext(ctx).
		Where("work_id = ? AND user_id = ?", workID, userID).
		Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Collaborator{}, apperr.NotFound("%s", missingMessage)
	}
	if err != nil {
		return Collaborator{}, err
	}
	return row, nil
}

func (s *Service) withUser(ctx context.Context, row Collaborator) (CollaboratorWithUser, error) {
	profile, err := s.users.GetPublicProfile(ctx, row.UserID)
	if err != nil {
		return CollaboratorWithUser{}, err
	}
	return CollaboratorWithUser{Collaborator: row, User: profile}, nil
}

func (s *Service) withUsers(ctx context.Context, rows []Collaborator) ([]CollaboratorWithUser, error) {
	userIDs := make([]string, 0, len(rows))
	for _, row := range rows {
		userIDs = append(userIDs, row.UserID)
	}
	profiles, err := s.users.GetPublicProfiles(ctx, userIDs)
	if err != nil {
		return nil, err
	}

	joined := make([]CollaboratorWithUser, 0, len(rows))
	for _, row := range rows {
		joined = append(joined, CollaboratorWithUser{Collaborator: row, User: profiles[row.UserID]})
	}
	return joined, nil
}

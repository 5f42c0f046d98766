package users

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"gorm.io/gorm"

	"github.com/MarcoPoloResearchLab/fable/internal/apperr"
)

// ServiceConfig describes the dependencies required for profile resolution.
type ServiceConfig struct {
	Database *gorm.DB
	Clock    func() time.Time
}

// Service manages user rows and their public profile projection.
type Service struct {
	db    *gorm.DB
	now   func() time.Time
	known sync.Map
}

// NewService constructs the users service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, fmt.Errorf("users: database connection required")
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	return &Service{db: cfg.Database, now: clock}, nil
}

// EnsureUser creates the user row for a session subject seen for the first
// time and returns the stored record. Existing rows are left untouched.
func (s *Service) EnsureUser(ctx context.Context, id, username, email string) (User, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return User{}, fmt.Errorf("users: user id required")
	}

	if _, ok := s.known.Load(id); ok {
		var existing User
		if err := s.db.WithContext(ctx).Where("id = ?", id).Take(&existing).Error; err == nil {
			return existing, nil
		}
		s.known.Delete(id)
	}

	var user User
	err := s.db.WithContext(ctx).Where("id = ?", id).Take(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		user = User{
			ID:        id,
			Username:  strings.TrimSpace(username),
			Email:     strings.TrimSpace(email),
			CreatedAt: s.now().UTC(),
		}
		if err := s.db.WithContext(ctx).Create(&user).Error; err != nil {
			return User{}, err
		}
	} else if err != nil {
		return User{}, err
	}

	s.known.Store(id, struct{}{})
	return user, nil
}

// GetPublicProfile returns the public projection for a single user.
func (s *Service) GetPublicProfile(ctx context.Context, userID string) (Profile, error) {
	var user User
	err := s.db.WithContext(ctx).Where("id = ?", userID).Take(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Profile{}, apperr.NotFound("User not found")
	}
	if err != nil {
		return Profile{}, err
	}
	return user.profile(), nil
}

// GetPublicProfiles returns the public projections for a set of user ids,
// keyed by id. Missing ids are simply absent from the result.
func (s *Service) GetPublicProfiles(ctx context.Context, userIDs []string) (map[string]Profile, error) {
	profiles := make(map[string]Profile, len(userIDs))
	if len(userIDs) == 0 {
		return profiles, nil
	}

	var rows []User
	if err := s.db.WithContext(ctx).Where("id IN ?", userIDs).Find(&rows).Error; err != nil {
		return nil, err
	}
	for _, row := range rows {
		profiles[row.ID] = row.profile()
	}
	return profiles, nil
}

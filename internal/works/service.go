package works

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
)

// ServiceConfig describes the dependencies of the work lookup service.
type ServiceConfig struct {
	Database *gorm.DB
}

// Service exposes read-only access to works for the page ledger and the
// collaboration registry.
type Service struct {
	db *gorm.DB
}

// NewService constructs the works read service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, fmt.Errorf("works: database connection required")
	}
	return &Service{db: cfg.Database}, nil
}

// GetWork returns the work with the given id, or nil when no such work exists.
func (s *Service) GetWork(ctx context.Context, workID string) (*Work, error) {
	var work Work
	err := s.db.WithContext(ctx).Where("id = ?", workID).Take(&work).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &work, nil
}

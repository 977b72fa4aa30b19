package store

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/lexi-tutor/lexi-api/internal/apperr"
	"github.com/lexi-tutor/lexi-api/internal/model"
)

// ProfileStore reads child profiles and engagement targets.
type ProfileStore struct {
	db   *gorm.DB
	opts options
}

// NewProfileStore creates a profile store.
func NewProfileStore(db *gorm.DB, opts ...Option) *ProfileStore {
	return &ProfileStore{db: db, opts: buildOptions(opts)}
}

// GetProfile loads a profile by user id.
func (s *ProfileStore) GetProfile(ctx context.Context, userID string) (*model.UserProfile, error) {
	var p model.UserProfile
	if err := s.db.WithContext(ctx).First(&p, "id = ?", userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFound("user")
		}
		return nil, fmt.Errorf("failed to get profile: %w", err)
	}
	return &p, nil
}

// UpsertProfile creates the profile or replaces its editable fields.
func (s *ProfileStore) UpsertProfile(ctx context.Context, p *model.UserProfile) error {
	if p.ID == "" {
		return apperr.Validation("user id is required")
	}
	now := s.opts.now()
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}
	p.UpdatedAt = now

	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"first_name", "grade", "city", "daily_target", "weekly_target", "updated_at"}),
	}).Create(p).Error
	if err != nil {
		return fmt.Errorf("failed to upsert profile: %w", err)
	}
	return nil
}

// RecordTimezoneOffset remembers the last offset the client reported.
func (s *ProfileStore) RecordTimezoneOffset(ctx context.Context, userID string, offsetMinutes int) error {
	res := s.db.WithContext(ctx).
		Model(&model.UserProfile{}).
		Where("id = ?", userID).
		Updates(map[string]any{"timezone_offset": offsetMinutes, "updated_at": s.opts.now()})
	if res.Error != nil {
		return fmt.Errorf("failed to record timezone offset: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return apperr.NotFound("user")
	}
	return nil
}

// ListProfiles pages through profiles ordered by id, starting after afterID.
func (s *ProfileStore) ListProfiles(ctx context.Context, afterID string, limit int) ([]model.UserProfile, error) {
	if limit <= 0 || limit > 1000 {
		limit = 200
	}
	out := []model.UserProfile{}
	err := s.db.WithContext(ctx).
		Where("id > ?", afterID).
		Order("id ASC").
		Limit(limit).
		Find(&out).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list profiles: %w", err)
	}
	return out, nil
}

package repositories

import (
	"context"
	"fmt"

	"office-realtime/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type AccessRepository struct {
	db *gorm.DB
}

func NewAccessRepository(db *gorm.DB) *AccessRepository {
	return &AccessRepository{db: db}
}

func (r *AccessRepository) HasAssignment(ctx context.Context, userID, entityClass, entityID string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.AccessAssignment{}).
		Where("user_id = ? AND entity_class = ? AND entity_id = ?", userID, entityClass, entityID).
		Limit(1).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("failed to check access assignment: %w", err)
	}
	return count > 0, nil
}

// Grant is idempotent: granting an existing assignment is not an error.
func (r *AccessRepository) Grant(ctx context.Context, a *models.AccessAssignment) error {
	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(a).Error
	if err != nil {
		return fmt.Errorf("failed to grant access: %w", err)
	}
	return nil
}

func (r *AccessRepository) Revoke(ctx context.Context, userID, entityClass, entityID string) error {
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND entity_class = ? AND entity_id = ?", userID, entityClass, entityID).
		Delete(&models.AccessAssignment{}).Error
	if err != nil {
		return fmt.Errorf("failed to revoke access: %w", err)
	}
	return nil
}

func (r *AccessRepository) ListForUser(ctx context.Context, userID string) ([]models.AccessAssignment, error) {
	var assignments []models.AccessAssignment
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("entity_class, entity_id").
		Find(&assignments).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list access assignments: %w", err)
	}
	return assignments, nil
}

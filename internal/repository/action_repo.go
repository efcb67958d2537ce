package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/edugraph/edugraph-api/internal/models"
)

// ActionRepository defines data operations for block actions.
type ActionRepository interface {
	ListByBlock(ctx context.Context, blockID uint) ([]models.Action, error)
	GetByID(ctx context.Context, id uint) (models.Action, error)
	Create(ctx context.Context, action *models.Action) error
	Update(ctx context.Context, action *models.Action) error
	Delete(ctx context.Context, id uint) error
}

type actionRepository struct {
	db *gorm.DB
}

// NewActionRepository instantiates the repository.
func NewActionRepository(db *gorm.DB) ActionRepository {
	return &actionRepository{db: db}
}

func (r *actionRepository) ListByBlock(ctx context.Context, blockID uint) ([]models.Action, error) {
	var actions []models.Action
	if err := r.db.WithContext(ctx).
		Where("block_id = ?", blockID).
		Find(&actions).Error; err != nil {
		return nil, err
	}
	return actions, nil
}

func (r *actionRepository) GetByID(ctx context.Context, id uint) (models.Action, error) {
	var action models.Action
	if err := r.db.WithContext(ctx).First(&action, id).Error; err != nil {
		return models.Action{}, err
	}
	return action, nil
}

func (r *actionRepository) Create(ctx context.Context, action *models.Action) error {
	return r.db.WithContext(ctx).Create(action).Error
}

func (r *actionRepository) Update(ctx context.Context, action *models.Action) error {
	return r.db.WithContext(ctx).Save(action).Error
}

func (r *actionRepository) Delete(ctx context.Context, id uint) error {
	return r.db.WithContext(ctx).Delete(&models.Action{}, id).Error
}

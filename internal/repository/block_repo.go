package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/edugraph/edugraph-api/internal/models"
)

// BlockRepository defines data operations for assignment blocks.
type BlockRepository interface {
	ListByAssignment(ctx context.Context, assignmentID uint) ([]models.Block, error)
	GetByID(ctx context.Context, id uint) (models.Block, error)
	Create(ctx context.Context, block *models.Block) error
	Update(ctx context.Context, block *models.Block) error
	Delete(ctx context.Context, id uint) error
}

type blockRepository struct {
	db *gorm.DB
}

// NewBlockRepository instantiates the repository.
func NewBlockRepository(db *gorm.DB) BlockRepository {
	return &blockRepository{db: db}
}

func (r *blockRepository) baseQuery(ctx context.Context) *gorm.DB {
	return r.db.WithContext(ctx).Model(&models.Block{}).
		Preload("Choices").
		Preload("Actions")
}

func (r *blockRepository) ListByAssignment(ctx context.Context, assignmentID uint) ([]models.Block, error) {
	var blocks []models.Block
	if err := r.baseQuery(ctx).
		Where("assignment_id = ?", assignmentID).
		Order("position ASC").
		Find(&blocks).Error; err != nil {
		return nil, err
	}
	return blocks, nil
}

func (r *blockRepository) GetByID(ctx context.Context, id uint) (models.Block, error) {
	var block models.Block
	if err := r.baseQuery(ctx).First(&block, id).Error; err != nil {
		return models.Block{}, err
	}
	return block, nil
}

func (r *blockRepository) Create(ctx context.Context, block *models.Block) error {
	return r.db.WithContext(ctx).Create(block).Error
}

func (r *blockRepository) Update(ctx context.Context, block *models.Block) error {
	return r.db.WithContext(ctx).Save(block).Error
}

// Delete removes the block and cascades to its choices and actions.
func (r *blockRepository) Delete(ctx context.Context, id uint) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("block_id = ?", id).Delete(&models.Action{}).Error; err != nil {
			return err
		}
		if err := tx.Where("block_id = ?", id).Delete(&models.Choice{}).Error; err != nil {
			return err
		}
		return tx.Delete(&models.Block{}, id).Error
	})
}

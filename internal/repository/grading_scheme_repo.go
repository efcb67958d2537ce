package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/edugraph/edugraph-api/internal/models"
)

// GradingSchemeRepository defines data operations for grading schemes.
type GradingSchemeRepository interface {
	ListByOrganization(ctx context.Context, organizationID uint) ([]models.GradingScheme, error)
	GetByID(ctx context.Context, id uint) (models.GradingScheme, error)
	GetDefault(ctx context.Context, organizationID uint) (models.GradingScheme, error)
	Create(ctx context.Context, scheme *models.GradingScheme) error
	Update(ctx context.Context, scheme *models.GradingScheme) error
	Delete(ctx context.Context, id uint) error
	// SetDefault flags the scheme as the organization default and unsets the
	// previous default in the same transaction.
	SetDefault(ctx context.Context, organizationID, schemeID uint) error
	// ReplaceForOrganization deletes the organization's schemes and recreates
	// the given set atomically.
	ReplaceForOrganization(ctx context.Context, organizationID uint, schemes []models.GradingScheme) error
}

type gradingSchemeRepository struct {
	db *gorm.DB
}

// NewGradingSchemeRepository instantiates the repository.
func NewGradingSchemeRepository(db *gorm.DB) GradingSchemeRepository {
	return &gradingSchemeRepository{db: db}
}

func (r *gradingSchemeRepository) ListByOrganization(ctx context.Context, organizationID uint) ([]models.GradingScheme, error) {
	var schemes []models.GradingScheme
	if err := r.db.WithContext(ctx).
		Where("organization_id = ?", organizationID).
		Order("name ASC").
		Find(&schemes).Error; err != nil {
		return nil, err
	}
	return schemes, nil
}

func (r *gradingSchemeRepository) GetByID(ctx context.Context, id uint) (models.GradingScheme, error) {
	var scheme models.GradingScheme
	if err := r.db.WithContext(ctx).First(&scheme, id).Error; err != nil {
		return models.GradingScheme{}, err
	}
	return scheme, nil
}

func (r *gradingSchemeRepository) GetDefault(ctx context.Context, organizationID uint) (models.GradingScheme, error) {
	var scheme models.GradingScheme
	if err := r.db.WithContext(ctx).
		Where("organization_id = ?", organizationID).
		Where("is_default = ?", true).
		First(&scheme).Error; err != nil {
		return models.GradingScheme{}, err
	}
	return scheme, nil
}

func (r *gradingSchemeRepository) Create(ctx context.Context, scheme *models.GradingScheme) error {
	return r.db.WithContext(ctx).Create(scheme).Error
}

func (r *gradingSchemeRepository) Update(ctx context.Context, scheme *models.GradingScheme) error {
	return r.db.WithContext(ctx).Save(scheme).Error
}

func (r *gradingSchemeRepository) Delete(ctx context.Context, id uint) error {
	return r.db.WithContext(ctx).Delete(&models.GradingScheme{}, id).Error
}

func (r *gradingSchemeRepository) SetDefault(ctx context.Context, organizationID, schemeID uint) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&models.GradingScheme{}).
			Where("organization_id = ?", organizationID).
			Where("is_default = ?", true).
			Update("is_default", false).Error; err != nil {
			return err
		}
		return tx.Model(&models.GradingScheme{}).
			Where("id = ?", schemeID).
			Where("organization_id = ?", organizationID).
			Update("is_default", true).Error
	})
}

func (r *gradingSchemeRepository) ReplaceForOrganization(ctx context.Context, organizationID uint, schemes []models.GradingScheme) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("organization_id = ?", organizationID).
			Delete(&models.GradingScheme{}).Error; err != nil {
			return err
		}
		if len(schemes) == 0 {
			return nil
		}
		return tx.Create(&schemes).Error
	})
}

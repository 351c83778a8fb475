package repository

import (
	"context"
	"errors"

	"github.com/Elogic360/neatify/internal/app/model"
	"github.com/Elogic360/neatify/pkg/logger"
	"gorm.io/gorm"
)

// ProductRepository reads catalog rows for the cart engine. BulkCreate is
// only used by the seeding tool.
type ProductRepository interface {
	FindByID(ctx context.Context, id uint) (*model.Product, error)
	FindVariationByID(ctx context.Context, id uint) (*model.ProductVariation, error)
	FindSlugs(ctx context.Context) (map[string]struct{}, error)
	BulkCreate(ctx context.Context, products []model.Product, batchSize int) error
}

type productRepository struct {
	db *gorm.DB
}

func NewProductRepository(db *gorm.DB) ProductRepository {
	return &productRepository{db: db}
}

func (r *productRepository) FindByID(ctx context.Context, id uint) (*model.Product, error) {
	logger.Debug("Finding product by ID in database", map[string]interface{}{
		"product_id": id,
	})

	var product model.Product
	if err := r.db.WithContext(ctx).First(&product, id).Error; err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			logger.Error("Failed to find product by ID in database", err, map[string]interface{}{
				"product_id": id,
			})
		}
		return nil, err
	}
	return &product, nil
}

func (r *productRepository) FindVariationByID(ctx context.Context, id uint) (*model.ProductVariation, error) {
	logger.Debug("Finding product variation by ID in database", map[string]interface{}{
		"variation_id": id,
	})

	var variation model.ProductVariation
	if err := r.db.WithContext(ctx).First(&variation, id).Error; err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			logger.Error("Failed to find product variation by ID in database", err, map[string]interface{}{
				"variation_id": id,
			})
		}
		return nil, err
	}
	return &variation, nil
}

// FindSlugs returns every product slug in the catalog.
func (r *productRepository) FindSlugs(ctx context.Context) (map[string]struct{}, error) {
	var slugs []string
	if err := r.db.WithContext(ctx).Model(&model.Product{}).Where("slug <> ''").Pluck("slug", &slugs).Error; err != nil {
		logger.Error("Failed to list product slugs", err)
		return nil, err
	}

	result := make(map[string]struct{}, len(slugs))
	for _, slug := range slugs {
		result[slug] = struct{}{}
	}
	return result, nil
}

// BulkCreate inserts products with their variations in batches inside one
// transaction.
func (r *productRepository) BulkCreate(ctx context.Context, products []model.Product, batchSize int) error {
	if len(products) == 0 {
		return nil
	}

	logger.Info("Bulk creating products", map[string]interface{}{
		"count":      len(products),
		"batch_size": batchSize,
	})

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.CreateInBatches(&products, batchSize).Error
	})
	if err != nil {
		logger.Error("Failed to bulk create products", err, map[string]interface{}{
			"count": len(products),
		})
		return err
	}
	return nil
}

package db

import (
	"fmt"

	"github.com/Elogic360/neatify/internal/app/model"
	"github.com/Elogic360/neatify/pkg/logger"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// cartIndexes keep at most one ACTIVE cart per owner. Both postgres and
// sqlite support partial indexes.
var cartIndexes = []string{
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_carts_active_user ON carts (user_id) WHERE status = 'active' AND user_id IS NOT NULL`,
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_carts_active_session ON carts (session_id) WHERE status = 'active' AND session_id IS NOT NULL`,
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_cart_items_line ON cart_items (cart_id, product_id, COALESCE(variation_id, 0))`,
}

func models() []interface{} {
	return []interface{}{
		&model.Product{},
		&model.ProductVariation{},
		&model.Cart{},
		&model.CartItem{},
	}
}

// Migrate runs database migrations
func Migrate() error {
	logger.Info("Running database migrations...")

	if err := MigrateSchema(DB); err != nil {
		logger.Error("Failed to run migrations", err)
		return err
	}

	logger.Info("Database migrations completed successfully", map[string]interface{}{
		"models_count": len(models()),
		"index_count":  len(cartIndexes),
	})
	return nil
}

// MigrateSchema creates tables and cart ownership indexes on db.
func MigrateSchema(db *gorm.DB) error {
	if err := db.AutoMigrate(models()...); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}
	for _, stmt := range cartIndexes {
		if err := db.Exec(stmt).Error; err != nil {
			return fmt.Errorf("create cart index: %w", err)
		}
	}
	return nil
}

// Seed adds demo catalog data to the database (optional)
func Seed() error {
	return SeedCatalog(DB)
}

// SeedCatalog inserts a small demo catalog when the products table is empty.
func SeedCatalog(db *gorm.DB) error {
	var count int64
	if err := db.Model(&model.Product{}).Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		logger.Info("Catalog already seeded, skipping...", map[string]interface{}{
			"existing_count": count,
		})
		return nil
	}

	logger.Info("Seeding demo catalog...")

	sizeStock := 4
	products := []model.Product{
		{Name: "Linen Shirt", Slug: "linen-shirt", Price: decimal.NewFromInt(25000), Stock: 40, IsActive: true,
			Variations: []model.ProductVariation{
				{Name: "Size", Value: "M", Stock: &sizeStock},
				{Name: "Size", Value: "L", PriceAdjustment: decimal.NewFromInt(2000)},
			}},
		{Name: "Leather Wallet", Slug: "leather-wallet", Price: decimal.NewFromInt(48000), Stock: 12, IsActive: true},
		{Name: "Wool Coat", Slug: "wool-coat", Price: decimal.NewFromInt(189000), Stock: 3, IsActive: true},
		{Name: "Canvas Tote", Slug: "canvas-tote", Price: decimal.NewFromInt(9900), Stock: 0, IsActive: true},
		{Name: "Discontinued Scarf", Slug: "discontinued-scarf", Price: decimal.NewFromInt(15000), Stock: 5, IsActive: false},
	}

	if err := db.Create(&products).Error; err != nil {
		logger.Error("Failed to seed catalog", err)
		return err
	}

	logger.Info("Demo catalog seeded successfully", map[string]interface{}{
		"products": len(products),
	})
	return nil
}

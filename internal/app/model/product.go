package model

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Product is the catalog row read by the catalog gateway. The cart engine
// never writes to it.
type Product struct {
	ID          uint            `gorm:"primarykey" json:"id"`
	Name        string          `gorm:"not null" json:"name"`
	Slug        string          `gorm:"type:varchar(255);index" json:"slug"`
	Description string          `gorm:"type:text" json:"description"`
	Price       decimal.Decimal `gorm:"type:numeric(12,2);not null" json:"price"`
	Stock       int             `gorm:"default:0" json:"stock"`
	IsActive    bool            `gorm:"not null" json:"is_active"`
	ImageURL    string          `json:"image_url"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
	DeletedAt   gorm.DeletedAt  `gorm:"index" json:"-"`

	// Relationships
	Variations []ProductVariation `gorm:"foreignKey:ProductID" json:"variations,omitempty"`
}

func (Product) TableName() string {
	return "products"
}

// ProductVariation is a size/colour style option of a product. A nil Stock
// means the variation draws from the product's stock.
type ProductVariation struct {
	ID              uint            `gorm:"primarykey" json:"id"`
	ProductID       uint            `gorm:"index;not null" json:"product_id"`
	Name            string          `gorm:"not null" json:"name"`
	Value           string          `json:"value"`
	Stock           *int            `json:"stock"`
	PriceAdjustment decimal.Decimal `gorm:"type:numeric(12,2);not null;default:0" json:"price_adjustment"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
	DeletedAt       gorm.DeletedAt  `gorm:"index" json:"-"`

	Product Product `gorm:"foreignKey:ProductID" json:"-"`
}

func (ProductVariation) TableName() string {
	return "product_variations"
}

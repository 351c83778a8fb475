package service

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/Elogic360/neatify/internal/app/repository"
	"github.com/Elogic360/neatify/pkg/logger"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

var ErrCatalogNotFound = errors.New("catalog entry not found")

// ProductInfo is the catalog's live view of a product.
type ProductInfo struct {
	ID       uint            `json:"id"`
	Name     string          `json:"name"`
	Price    decimal.Decimal `json:"price"`
	Stock    int             `json:"stock"`
	IsActive bool            `json:"is_active"`
}

// VariationInfo is the catalog's live view of a variation. A nil Stock means
// the variation shares its product's stock.
type VariationInfo struct {
	ID              uint            `json:"id"`
	ProductID       uint            `json:"product_id"`
	Stock           *int            `json:"stock,omitempty"`
	PriceAdjustment decimal.Decimal `json:"price_adjustment"`
}

// CatalogGateway answers existence, price and stock questions for products.
// Implementations return ErrCatalogNotFound for absent entries.
type CatalogGateway interface {
	GetProduct(ctx context.Context, id uint) (*ProductInfo, error)
	GetVariation(ctx context.Context, id, productID uint) (*VariationInfo, error)
}

type repositoryCatalog struct {
	productRepo repository.ProductRepository
}

// NewRepositoryCatalog reads the catalog tables directly.
func NewRepositoryCatalog(productRepo repository.ProductRepository) CatalogGateway {
	return &repositoryCatalog{productRepo: productRepo}
}

func (c *repositoryCatalog) GetProduct(ctx context.Context, id uint) (*ProductInfo, error) {
	product, err := c.productRepo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrCatalogNotFound
		}
		return nil, err
	}
	return &ProductInfo{
		ID:       product.ID,
		Name:     product.Name,
		Price:    product.Price,
		Stock:    product.Stock,
		IsActive: product.IsActive,
	}, nil
}

func (c *repositoryCatalog) GetVariation(ctx context.Context, id, productID uint) (*VariationInfo, error) {
	variation, err := c.productRepo.FindVariationByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrCatalogNotFound
		}
		return nil, err
	}
	if variation.ProductID != productID {
		return nil, ErrCatalogNotFound
	}
	return &VariationInfo{
		ID:              variation.ID,
		ProductID:       variation.ProductID,
		Stock:           variation.Stock,
		PriceAdjustment: variation.PriceAdjustment,
	}, nil
}

// CatalogCache is the subset of the redis JSON cache used by the caching
// gateway.
type CatalogCache interface {
	Key(parts ...string) string
	GetJSON(ctx context.Context, key string, dest interface{}) (bool, error)
	SetJSON(ctx context.Context, key string, value interface{}, ttl time.Duration) error
}

type cachedCatalog struct {
	next  CatalogGateway
	cache CatalogCache
	ttl   time.Duration
}

// NewCachedCatalog wraps next with a read-through cache. Cache failures are
// logged and fall through to next. Absent entries are not cached.
func NewCachedCatalog(next CatalogGateway, cache CatalogCache, ttl time.Duration) CatalogGateway {
	return &cachedCatalog{next: next, cache: cache, ttl: ttl}
}

func (c *cachedCatalog) GetProduct(ctx context.Context, id uint) (*ProductInfo, error) {
	key := c.cache.Key("product", strconv.FormatUint(uint64(id), 10))

	var cached ProductInfo
	if c.read(ctx, key, &cached) {
		return &cached, nil
	}

	product, err := c.next.GetProduct(ctx, id)
	if err != nil {
		return nil, err
	}
	c.write(ctx, key, product)
	return product, nil
}

func (c *cachedCatalog) GetVariation(ctx context.Context, id, productID uint) (*VariationInfo, error) {
	key := c.cache.Key("variation",
		strconv.FormatUint(uint64(productID), 10),
		strconv.FormatUint(uint64(id), 10))

	var cached VariationInfo
	if c.read(ctx, key, &cached) {
		return &cached, nil
	}

	variation, err := c.next.GetVariation(ctx, id, productID)
	if err != nil {
		return nil, err
	}
	c.write(ctx, key, variation)
	return variation, nil
}

func (c *cachedCatalog) read(ctx context.Context, key string, dest interface{}) bool {
	found, err := c.cache.GetJSON(ctx, key, dest)
	if err != nil {
		logger.Warn("Catalog cache read failed", map[string]interface{}{
			"key":   key,
			"error": err.Error(),
		})
		return false
	}
	return found
}

func (c *cachedCatalog) write(ctx context.Context, key string, value interface{}) {
	if err := c.cache.SetJSON(ctx, key, value, c.ttl); err != nil {
		logger.Warn("Catalog cache write failed", map[string]interface{}{
			"key":   key,
			"error": err.Error(),
		})
	}
}

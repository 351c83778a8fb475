package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Elogic360/neatify/internal/app/model"
	"github.com/Elogic360/neatify/pkg/logger"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var ErrInvalidOwner = errors.New("cart owner must be a user id or a session token")

// CartRepository persists carts and their items. Lookup methods return
// gorm.ErrRecordNotFound when nothing matches.
type CartRepository interface {
	WithTx(tx *gorm.DB) CartRepository
	Transaction(ctx context.Context, fn func(repo CartRepository) error) error

	Create(ctx context.Context, cart *model.Cart) error
	FindByID(ctx context.Context, id uint) (*model.Cart, error)
	FindActiveByOwner(ctx context.Context, owner model.Owner) (*model.Cart, error)
	LockByID(ctx context.Context, id uint) (*model.Cart, error)
	LockActiveByOwner(ctx context.Context, owner model.Owner) (*model.Cart, error)
	UpdateExpiration(ctx context.Context, id uint, expiresAt time.Time) error
	UpdateStatus(ctx context.Context, id uint, from, to model.CartStatus) (bool, error)
	SaveTotals(ctx context.Context, cart *model.Cart) error
	ExpireBefore(ctx context.Context, cutoff time.Time) (int64, error)

	FindItems(ctx context.Context, cartID uint) ([]model.CartItem, error)
	FindItemByID(ctx context.Context, cartID, itemID uint) (*model.CartItem, error)
	FindItemByLine(ctx context.Context, cartID, productID uint, variationID *uint) (*model.CartItem, error)
	CreateItem(ctx context.Context, item *model.CartItem) error
	UpdateItem(ctx context.Context, item *model.CartItem) error
	DeleteItem(ctx context.Context, cartID, itemID uint) error
	DeleteItemsByCart(ctx context.Context, cartID uint) error
}

type cartRepository struct {
	db *gorm.DB
}

func NewCartRepository(db *gorm.DB) CartRepository {
	return &cartRepository{db: db}
}

func (r *cartRepository) WithTx(tx *gorm.DB) CartRepository {
	return &cartRepository{db: tx}
}

// Transaction runs fn against a repository bound to a single transaction.
func (r *cartRepository) Transaction(ctx context.Context, fn func(repo CartRepository) error) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(r.WithTx(tx))
	})
}

func ownerScope(owner model.Owner) (func(*gorm.DB) *gorm.DB, error) {
	if !owner.Valid() {
		return nil, ErrInvalidOwner
	}
	if id, ok := owner.UserID(); ok {
		return func(db *gorm.DB) *gorm.DB {
			return db.Where("user_id = ?", id)
		}, nil
	}
	token, _ := owner.SessionID()
	return func(db *gorm.DB) *gorm.DB {
		return db.Where("session_id = ?", token)
	}, nil
}

func itemsInOrder(db *gorm.DB) *gorm.DB {
	return db.Order("cart_items.id ASC")
}

func (r *cartRepository) Create(ctx context.Context, cart *model.Cart) error {
	logger.Debug("Creating cart in database", map[string]interface{}{
		"owner":      cart.Owner().String(),
		"expires_at": cart.ExpiresAt,
	})

	if err := r.db.WithContext(ctx).Omit("Items").Create(cart).Error; err != nil {
		if !errors.Is(err, gorm.ErrDuplicatedKey) {
			logger.Error("Failed to create cart in database", err, map[string]interface{}{
				"owner": cart.Owner().String(),
			})
		}
		return err
	}

	logger.Debug("Cart created in database", map[string]interface{}{
		"cart_id": cart.ID,
		"owner":   cart.Owner().String(),
	})
	return nil
}

func (r *cartRepository) FindByID(ctx context.Context, id uint) (*model.Cart, error) {
	var cart model.Cart
	err := r.db.WithContext(ctx).
		Preload("Items", itemsInOrder).
		First(&cart, id).Error
	if err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			logger.Error("Failed to find cart by ID in database", err, map[string]interface{}{
				"cart_id": id,
			})
		}
		return nil, err
	}
	return &cart, nil
}

func (r *cartRepository) FindActiveByOwner(ctx context.Context, owner model.Owner) (*model.Cart, error) {
	scope, err := ownerScope(owner)
	if err != nil {
		return nil, err
	}

	logger.Debug("Finding active cart by owner in database", map[string]interface{}{
		"owner": owner.String(),
	})

	var cart model.Cart
	err = r.db.WithContext(ctx).
		Scopes(scope).
		Where("status = ?", model.CartStatusActive).
		Preload("Items", itemsInOrder).
		First(&cart).Error
	if err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			logger.Error("Failed to find active cart by owner in database", err, map[string]interface{}{
				"owner": owner.String(),
			})
		}
		return nil, err
	}
	return &cart, nil
}

// LockByID selects the cart row FOR UPDATE and loads its items. It must run
// inside a transaction.
func (r *cartRepository) LockByID(ctx context.Context, id uint) (*model.Cart, error) {
	var cart model.Cart
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&cart, id).Error
	if err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			logger.Error("Failed to lock cart in database", err, map[string]interface{}{
				"cart_id": id,
			})
		}
		return nil, err
	}

	items, err := r.FindItems(ctx, cart.ID)
	if err != nil {
		return nil, err
	}
	cart.Items = items
	return &cart, nil
}

func (r *cartRepository) LockActiveByOwner(ctx context.Context, owner model.Owner) (*model.Cart, error) {
	scope, err := ownerScope(owner)
	if err != nil {
		return nil, err
	}

	var cart model.Cart
	err = r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Scopes(scope).
		Where("status = ?", model.CartStatusActive).
		First(&cart).Error
	if err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			logger.Error("Failed to lock active cart by owner in database", err, map[string]interface{}{
				"owner": owner.String(),
			})
		}
		return nil, err
	}

	items, err := r.FindItems(ctx, cart.ID)
	if err != nil {
		return nil, err
	}
	cart.Items = items
	return &cart, nil
}

func (r *cartRepository) UpdateExpiration(ctx context.Context, id uint, expiresAt time.Time) error {
	logger.Debug("Updating cart expiration in database", map[string]interface{}{
		"cart_id":    id,
		"expires_at": expiresAt,
	})

	err := r.db.WithContext(ctx).
		Model(&model.Cart{ID: id}).
		Update("expires_at", expiresAt).Error
	if err != nil {
		logger.Error("Failed to update cart expiration in database", err, map[string]interface{}{
			"cart_id": id,
		})
		return err
	}
	return nil
}

// UpdateStatus moves the cart from one status to another and reports whether
// the row was in the expected status.
func (r *cartRepository) UpdateStatus(ctx context.Context, id uint, from, to model.CartStatus) (bool, error) {
	logger.Debug("Updating cart status in database", map[string]interface{}{
		"cart_id": id,
		"from":    from,
		"to":      to,
	})

	result := r.db.WithContext(ctx).
		Model(&model.Cart{}).
		Where("id = ? AND status = ?", id, from).
		Update("status", to)
	if result.Error != nil {
		logger.Error("Failed to update cart status in database", result.Error, map[string]interface{}{
			"cart_id": id,
			"to":      to,
		})
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

func (r *cartRepository) SaveTotals(ctx context.Context, cart *model.Cart) error {
	logger.Debug("Saving cart totals in database", map[string]interface{}{
		"cart_id":  cart.ID,
		"subtotal": cart.Subtotal.String(),
		"total":    cart.Total.String(),
	})

	err := r.db.WithContext(ctx).
		Model(&model.Cart{ID: cart.ID}).
		Select("subtotal", "tax_amount", "discount_amount", "total", "promo_code").
		Updates(map[string]interface{}{
			"subtotal":        cart.Subtotal,
			"tax_amount":      cart.TaxAmount,
			"discount_amount": cart.DiscountAmount,
			"total":           cart.Total,
			"promo_code":      cart.PromoCode,
		}).Error
	if err != nil {
		logger.Error("Failed to save cart totals in database", err, map[string]interface{}{
			"cart_id": cart.ID,
		})
		return err
	}
	return nil
}

func (r *cartRepository) ExpireBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	result := r.db.WithContext(ctx).
		Model(&model.Cart{}).
		Where("status = ? AND expires_at < ?", model.CartStatusActive, cutoff).
		Update("status", model.CartStatusExpired)
	if result.Error != nil {
		logger.Error("Failed to expire carts in database", result.Error, map[string]interface{}{
			"cutoff": cutoff,
		})
		return 0, result.Error
	}

	logger.Debug("Expired carts in database", map[string]interface{}{
		"cutoff": cutoff,
		"count":  result.RowsAffected,
	})
	return result.RowsAffected, nil
}

func (r *cartRepository) FindItems(ctx context.Context, cartID uint) ([]model.CartItem, error) {
	var items []model.CartItem
	err := r.db.WithContext(ctx).
		Where("cart_id = ?", cartID).
		Order("id ASC").
		Find(&items).Error
	if err != nil {
		logger.Error("Failed to find cart items in database", err, map[string]interface{}{
			"cart_id": cartID,
		})
		return nil, err
	}
	return items, nil
}

func (r *cartRepository) FindItemByID(ctx context.Context, cartID, itemID uint) (*model.CartItem, error) {
	var item model.CartItem
	err := r.db.WithContext(ctx).
		Where("id = ? AND cart_id = ?", itemID, cartID).
		First(&item).Error
	if err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			logger.Error("Failed to find cart item in database", err, map[string]interface{}{
				"cart_id":      cartID,
				"cart_item_id": itemID,
			})
		}
		return nil, err
	}
	return &item, nil
}

func (r *cartRepository) FindItemByLine(ctx context.Context, cartID, productID uint, variationID *uint) (*model.CartItem, error) {
	query := r.db.WithContext(ctx).Where("cart_id = ? AND product_id = ?", cartID, productID)
	if variationID == nil {
		query = query.Where("variation_id IS NULL")
	} else {
		query = query.Where("variation_id = ?", *variationID)
	}

	var item model.CartItem
	if err := query.First(&item).Error; err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			logger.Error("Failed to find cart item by line in database", err, map[string]interface{}{
				"cart_id":    cartID,
				"product_id": productID,
			})
		}
		return nil, err
	}
	return &item, nil
}

func (r *cartRepository) CreateItem(ctx context.Context, item *model.CartItem) error {
	logger.Debug("Creating cart item in database", map[string]interface{}{
		"cart_id":    item.CartID,
		"product_id": item.ProductID,
		"quantity":   item.Quantity,
	})

	if err := r.db.WithContext(ctx).Create(item).Error; err != nil {
		logger.Error("Failed to create cart item in database", err, map[string]interface{}{
			"cart_id":    item.CartID,
			"product_id": item.ProductID,
		})
		return err
	}
	return nil
}

func (r *cartRepository) UpdateItem(ctx context.Context, item *model.CartItem) error {
	logger.Debug("Updating cart item in database", map[string]interface{}{
		"cart_item_id": item.ID,
		"quantity":     item.Quantity,
		"unit_price":   item.UnitPrice.String(),
	})

	if err := r.db.WithContext(ctx).Save(item).Error; err != nil {
		logger.Error("Failed to update cart item in database", err, map[string]interface{}{
			"cart_item_id": item.ID,
		})
		return err
	}
	return nil
}

func (r *cartRepository) DeleteItem(ctx context.Context, cartID, itemID uint) error {
	result := r.db.WithContext(ctx).
		Where("id = ? AND cart_id = ?", itemID, cartID).
		Delete(&model.CartItem{})
	if result.Error != nil {
		logger.Error("Failed to delete cart item from database", result.Error, map[string]interface{}{
			"cart_id":      cartID,
			"cart_item_id": itemID,
		})
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (r *cartRepository) DeleteItemsByCart(ctx context.Context, cartID uint) error {
	logger.Debug("Deleting cart items by cart ID from database", map[string]interface{}{
		"cart_id": cartID,
	})

	if err := r.db.WithContext(ctx).Where("cart_id = ?", cartID).Delete(&model.CartItem{}).Error; err != nil {
		logger.Error("Failed to delete cart items from database", err, map[string]interface{}{
			"cart_id": cartID,
		})
		return fmt.Errorf("delete cart items: %w", err)
	}
	return nil
}

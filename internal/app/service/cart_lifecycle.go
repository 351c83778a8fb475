package service

import (
	"context"
	"errors"
	"time"

	"github.com/Elogic360/neatify/config"
	"github.com/Elogic360/neatify/internal/app/model"
	"github.com/Elogic360/neatify/internal/app/repository"
	"github.com/Elogic360/neatify/pkg/logger"
	"github.com/Elogic360/neatify/pkg/metrics"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Value extension tiers, highest first.
const (
	TierHighValue     = "high_value"
	TierMultiItem     = "multi_item"
	TierMatchingItems = "matching_items"

	highValueExtension     = 168 * time.Hour
	multiItemExtension     = 120 * time.Hour
	matchingItemsExtension = 96 * time.Hour
	multiItemMinimum       = 3
)

// LifecycleConfig holds the expiration policy.
type LifecycleConfig struct {
	ExpirationWindow   time.Duration
	HighValueThreshold decimal.Decimal
}

func LifecycleConfigFromConfig(cfg config.CartConfig) LifecycleConfig {
	return LifecycleConfig{
		ExpirationWindow:   cfg.ExpirationWindow,
		HighValueThreshold: cfg.HighValueThreshold,
	}
}

// ValueSignal describes what makes a cart worth keeping around longer.
type ValueSignal struct {
	ProductIDs         []uint `json:"product_ids"`
	ViewedCheckout     bool   `json:"viewed_checkout"`
	AddedMultipleItems bool   `json:"added_multiple_items"`
}

type ExtensionResult struct {
	Status              string          `json:"status"`
	Tier                string          `json:"tier,omitempty"`
	Extended            bool            `json:"expiration_extended"`
	MatchingProductIDs  []uint          `json:"valuable_items"`
	CartValue           decimal.Decimal `json:"cart_value"`
	ItemCount           int             `json:"item_count"`
	ExpiresAt           time.Time       `json:"expires_at"`
	ConversionPotential string          `json:"conversion_potential"`
}

// CartLifecycle resolves the cart for an owner and moves carts between
// statuses.
type CartLifecycle interface {
	ResolveOrCreate(ctx context.Context, owner model.Owner) (*model.Cart, error)
	Lookup(ctx context.Context, owner model.Owner) (*model.Cart, error)
	SweepExpired(ctx context.Context, now time.Time) (int64, error)
	ExtendForValue(ctx context.Context, cart *model.Cart, signal ValueSignal) (*ExtensionResult, error)
	MarkConverted(ctx context.Context, cart *model.Cart) error
	Claim(ctx context.Context, cart *model.Cart, check func(locked *model.Cart) error) (*model.Cart, error)
}

type LifecycleOption func(*cartLifecycle)

// WithLifecycleClock replaces time.Now.
func WithLifecycleClock(now func() time.Time) LifecycleOption {
	return func(l *cartLifecycle) {
		l.now = now
	}
}

type cartLifecycle struct {
	cartRepo repository.CartRepository
	cfg      LifecycleConfig
	metrics  *metrics.CartMetrics
	now      func() time.Time
}

func NewCartLifecycle(
	cartRepo repository.CartRepository,
	cfg LifecycleConfig,
	cartMetrics *metrics.CartMetrics,
	opts ...LifecycleOption,
) CartLifecycle {
	l := &cartLifecycle{
		cartRepo: cartRepo,
		cfg:      cfg,
		metrics:  cartMetrics,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func (l *cartLifecycle) clock() time.Time {
	return l.now().UTC()
}

func (l *cartLifecycle) ResolveOrCreate(ctx context.Context, owner model.Owner) (*model.Cart, error) {
	if !owner.Valid() {
		return nil, ErrInvalidOwner
	}

	now := l.clock()
	var (
		resolved *model.Cart
		created  bool
		expired  bool
	)

	err := l.cartRepo.Transaction(ctx, func(repo repository.CartRepository) error {
		current, err := repo.LockActiveByOwner(ctx, owner)
		if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}

		if current != nil && !current.IsExpired(now) {
			expiresAt := now.Add(l.cfg.ExpirationWindow)
			if err := repo.UpdateExpiration(ctx, current.ID, expiresAt); err != nil {
				return err
			}
			current.ExpiresAt = expiresAt
			resolved = current
			return nil
		}

		if current != nil {
			if _, err := repo.UpdateStatus(ctx, current.ID, model.CartStatusActive, model.CartStatusExpired); err != nil {
				return err
			}
			expired = true
		}

		fresh := model.NewCart(owner, now.Add(l.cfg.ExpirationWindow))
		if err := repo.Create(ctx, fresh); err != nil {
			return err
		}
		fresh.Items = []model.CartItem{}
		resolved = fresh
		created = true
		return nil
	})

	if errors.Is(err, gorm.ErrDuplicatedKey) {
		// Another request created the owner's cart first.
		logger.Debug("Concurrent cart creation detected, reading winner", map[string]interface{}{
			"owner": owner.String(),
		})
		winner, findErr := l.cartRepo.FindActiveByOwner(ctx, owner)
		if findErr != nil {
			logger.Error("Failed to read concurrently created cart", findErr, map[string]interface{}{
				"owner": owner.String(),
			})
			return nil, findErr
		}
		return winner, nil
	}
	if err != nil {
		logger.Error("Failed to resolve cart", err, map[string]interface{}{
			"owner": owner.String(),
		})
		return nil, err
	}

	if expired {
		l.metrics.AddExpired("access", 1)
	}
	if created {
		l.metrics.IncCreated()
		logger.Info("Cart created", map[string]interface{}{
			"cart_id":          resolved.ID,
			"owner":            owner.String(),
			"replaced_expired": expired,
		})
	}
	return resolved, nil
}

func (l *cartLifecycle) Lookup(ctx context.Context, owner model.Owner) (*model.Cart, error) {
	if !owner.Valid() {
		return nil, ErrInvalidOwner
	}

	cart, err := l.cartRepo.FindActiveByOwner(ctx, owner)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	if cart.IsExpired(l.clock()) {
		return nil, nil
	}
	return cart, nil
}

func (l *cartLifecycle) SweepExpired(ctx context.Context, now time.Time) (int64, error) {
	count, err := l.cartRepo.ExpireBefore(ctx, now.UTC())
	if err != nil {
		return 0, err
	}
	l.metrics.AddExpired("sweep", count)

	logger.Info("Expired carts swept", map[string]interface{}{
		"cutoff": now.UTC(),
		"count":  count,
	})
	return count, nil
}

// ExtendForValue pushes the expiration of a cart that looks likely to
// convert. Without product ids only the high value tier can apply, computed
// over every item. Expiration never moves backwards.
func (l *cartLifecycle) ExtendForValue(ctx context.Context, cart *model.Cart, signal ValueSignal) (*ExtensionResult, error) {
	if cart == nil {
		return nil, ErrCartNotFound
	}

	now := l.clock()
	result := &ExtensionResult{
		Status:              "standard",
		MatchingProductIDs:  []uint{},
		ConversionPotential: conversionPotential(signal),
	}

	err := l.cartRepo.Transaction(ctx, func(repo repository.CartRepository) error {
		locked, err := repo.LockByID(ctx, cart.ID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrCartNotFound
			}
			return err
		}
		if !locked.IsMutable(now) {
			return ErrCartNotActive
		}

		wanted := make(map[uint]struct{}, len(signal.ProductIDs))
		for _, id := range signal.ProductIDs {
			wanted[id] = struct{}{}
		}

		value := decimal.Zero
		for _, item := range locked.Items {
			if len(wanted) == 0 {
				value = value.Add(item.LineTotal())
				continue
			}
			if _, ok := wanted[item.ProductID]; ok {
				value = value.Add(item.LineTotal())
				result.MatchingProductIDs = append(result.MatchingProductIDs, item.ProductID)
			}
		}
		result.CartValue = value
		result.ItemCount = locked.ItemCount()
		result.ExpiresAt = locked.ExpiresAt

		tier, extension := l.tierFor(value, len(result.MatchingProductIDs))
		if tier == "" {
			return nil
		}
		result.Tier = tier

		expiresAt := now.Add(extension)
		if !expiresAt.After(locked.ExpiresAt) {
			return nil
		}
		if err := repo.UpdateExpiration(ctx, locked.ID, expiresAt); err != nil {
			return err
		}
		result.Status = "extended"
		result.Extended = true
		result.ExpiresAt = expiresAt
		return nil
	})
	if err != nil {
		if !errors.Is(err, ErrCartNotActive) && !errors.Is(err, ErrCartNotFound) {
			logger.Error("Failed to extend cart expiration", err, map[string]interface{}{
				"cart_id": cart.ID,
			})
		}
		return nil, err
	}

	if result.Extended {
		cart.ExpiresAt = result.ExpiresAt
		l.metrics.IncExtension(result.Tier)
		logger.Info("Cart expiration extended", map[string]interface{}{
			"cart_id":    cart.ID,
			"tier":       result.Tier,
			"cart_value": result.CartValue.String(),
			"expires_at": result.ExpiresAt,
		})
	}
	return result, nil
}

func (l *cartLifecycle) tierFor(value decimal.Decimal, matching int) (string, time.Duration) {
	switch {
	case value.GreaterThan(l.cfg.HighValueThreshold):
		return TierHighValue, highValueExtension
	case matching >= multiItemMinimum:
		return TierMultiItem, multiItemExtension
	case matching > 0:
		return TierMatchingItems, matchingItemsExtension
	default:
		return "", 0
	}
}

func conversionPotential(signal ValueSignal) string {
	switch {
	case signal.ViewedCheckout:
		return "high"
	case signal.AddedMultipleItems:
		return "medium"
	default:
		return "low"
	}
}

func (l *cartLifecycle) MarkConverted(ctx context.Context, cart *model.Cart) error {
	claimed, err := l.Claim(ctx, cart, nil)
	if err != nil {
		return err
	}
	if claimed == nil {
		return ErrCartNotActive
	}
	cart.Status = model.CartStatusConverted
	return nil
}

// Claim converts an active cart with its row locked and returns the locked
// snapshot, items included. check runs against that snapshot before the status
// change and aborts the claim when it fails. A cart that is no longer active
// yields nil, so at most one caller ever owns the snapshot.
func (l *cartLifecycle) Claim(ctx context.Context, cart *model.Cart, check func(locked *model.Cart) error) (*model.Cart, error) {
	if cart == nil {
		return nil, ErrCartNotFound
	}

	var claimed *model.Cart
	err := l.cartRepo.Transaction(ctx, func(repo repository.CartRepository) error {
		locked, err := repo.LockByID(ctx, cart.ID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrCartNotFound
			}
			return err
		}
		if locked.Status != model.CartStatusActive {
			return nil
		}
		if check != nil {
			if err := check(locked); err != nil {
				return err
			}
		}

		ok, err := repo.UpdateStatus(ctx, locked.ID, model.CartStatusActive, model.CartStatusConverted)
		if err != nil || !ok {
			return err
		}
		locked.Status = model.CartStatusConverted
		claimed = locked
		return nil
	})
	if err != nil {
		return nil, err
	}
	if claimed == nil {
		logger.Warn("Cannot convert cart: not active", map[string]interface{}{
			"cart_id": cart.ID,
		})
		return nil, nil
	}

	l.metrics.IncConverted()
	logger.Info("Cart converted", map[string]interface{}{
		"cart_id": claimed.ID,
		"owner":   claimed.Owner().String(),
	})
	return claimed, nil
}

package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Elogic360/neatify/config"
	"github.com/Elogic360/neatify/internal/app/model"
	"github.com/Elogic360/neatify/internal/app/repository"
	"github.com/Elogic360/neatify/pkg/logger"
	"github.com/Elogic360/neatify/pkg/metrics"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

const DefaultMaxQuantityPerItem = 10

// CartSummary is the read model shown before checkout.
type CartSummary struct {
	CartID        uint            `json:"cart_id"`
	ItemCount     int             `json:"item_count"`
	TotalQuantity int             `json:"total_quantity"`
	Subtotal      decimal.Decimal `json:"subtotal"`
	TaxAmount     decimal.Decimal `json:"tax_amount"`
	Shipping      decimal.Decimal `json:"shipping_estimate"`
	Discount      decimal.Decimal `json:"discount_amount"`
	Total         decimal.Decimal `json:"total"`
	GrandTotal    decimal.Decimal `json:"grand_total"`
	PromoCode     *string         `json:"promo_code,omitempty"`
	ExpiresAt     time.Time       `json:"expires_at"`
}

const (
	IssueCartEmpty          = "cart_empty"
	IssueProductUnavailable = "product_unavailable"
	IssueInsufficientStock  = "insufficient_stock"
	IssueCatalogError       = "catalog_error"
)

type CheckoutIssue struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	ItemID    uint   `json:"item_id,omitempty"`
	ProductID uint   `json:"product_id,omitempty"`
	Requested int    `json:"requested,omitempty"`
	Available int    `json:"available,omitempty"`
}

type CartService interface {
	ResolveCart(ctx context.Context, owner model.Owner) (*model.Cart, error)
	GetCart(ctx context.Context, owner model.Owner) (*model.Cart, error)
	AddItem(ctx context.Context, cart *model.Cart, productID uint, variationID *uint, quantity int) (*model.CartItem, error)
	UpdateItemQuantity(ctx context.Context, cart *model.Cart, itemID uint, quantity int) (*model.CartItem, error)
	RemoveItem(ctx context.Context, cart *model.Cart, itemID uint) error
	Clear(ctx context.Context, cart *model.Cart) error
	Summary(cart *model.Cart) *CartSummary
	ValidateForCheckout(ctx context.Context, cart *model.Cart) (bool, []CheckoutIssue)
	ApplyPromoCode(ctx context.Context, cart *model.Cart, code string) error
	RemovePromoCode(ctx context.Context, cart *model.Cart) error
	MarkConverted(ctx context.Context, cart *model.Cart) error
	Checkout(ctx context.Context, cart *model.Cart) (*CartSummary, []CheckoutIssue, error)
	HandleGuestCart(ctx context.Context, sessionID string, signal ValueSignal) (*ExtensionResult, error)

	DetectOwnershipStatus(ctx context.Context, userID *uint, sessionID string) (*OwnershipStatus, error)
	DetectRelevantCarts(ctx context.Context, productIDs []uint, userID *uint, sessionID string) (*RelevantCarts, error)
	SmartCartForProducts(ctx context.Context, productIDs []uint, userID *uint, sessionID string) (*SmartCart, error)
	MergeSessionIntoUser(ctx context.Context, userID uint, sessionID string) (*model.Cart, error)
	ConvertGuestToUser(ctx context.Context, sessionID string, userID uint) (*model.Cart, error)
	SessionStatistics(ctx context.Context, sessionID string) (*SessionStats, error)
}

// ServiceConfig holds the item policy.
type ServiceConfig struct {
	MaxQuantityPerItem int
	Pricing            Pricing
}

func ServiceConfigFromConfig(cfg config.CartConfig) ServiceConfig {
	return ServiceConfig{
		MaxQuantityPerItem: cfg.MaxQuantityPerItem,
		Pricing:            PricingFromConfig(cfg),
	}
}

type ServiceOption func(*cartService)

// WithServiceClock replaces time.Now.
func WithServiceClock(now func() time.Time) ServiceOption {
	return func(s *cartService) {
		s.now = now
	}
}

// WithSessionTokens replaces the session token generator used when a smart
// cart request carries no session.
func WithSessionTokens(generate func() string) ServiceOption {
	return func(s *cartService) {
		s.newSessionToken = generate
	}
}

// WithCheckoutCatalog sets the gateway checkout validation reads stock from.
// It defaults to the gateway used for item mutations.
func WithCheckoutCatalog(catalog CatalogGateway) ServiceOption {
	return func(s *cartService) {
		s.checkoutCatalog = catalog
	}
}

type cartService struct {
	cartRepo        repository.CartRepository
	lifecycle       CartLifecycle
	catalog         CatalogGateway
	checkoutCatalog CatalogGateway
	cfg             ServiceConfig
	metrics         *metrics.CartMetrics
	now             func() time.Time
	newSessionToken func() string
}

func NewCartService(
	cartRepo repository.CartRepository,
	lifecycle CartLifecycle,
	catalog CatalogGateway,
	cfg ServiceConfig,
	cartMetrics *metrics.CartMetrics,
	opts ...ServiceOption,
) CartService {
	if cfg.MaxQuantityPerItem <= 0 {
		cfg.MaxQuantityPerItem = DefaultMaxQuantityPerItem
	}
	s := &cartService{
		cartRepo:        cartRepo,
		lifecycle:       lifecycle,
		catalog:         catalog,
		checkoutCatalog: catalog,
		cfg:             cfg,
		metrics:         cartMetrics,
		now:             time.Now,
		newSessionToken: defaultSessionToken,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *cartService) ResolveCart(ctx context.Context, owner model.Owner) (*model.Cart, error) {
	logger.Debug("Resolving cart", map[string]interface{}{
		"owner": owner.String(),
	})
	return s.lifecycle.ResolveOrCreate(ctx, owner)
}

// GetCart returns the owner's active cart without creating one.
func (s *cartService) GetCart(ctx context.Context, owner model.Owner) (*model.Cart, error) {
	cart, err := s.lifecycle.Lookup(ctx, owner)
	if err != nil {
		return nil, err
	}
	if cart == nil {
		return nil, ErrCartNotFound
	}
	return cart, nil
}

// lineQuote is the catalog's answer for one product/variation pair.
type lineQuote struct {
	product   *ProductInfo
	unitPrice decimal.Decimal
	available int
}

func (s *cartService) quoteLine(ctx context.Context, productID uint, variationID *uint) (*lineQuote, error) {
	return quoteLineFrom(ctx, s.catalog, productID, variationID)
}

func quoteLineFrom(ctx context.Context, catalog CatalogGateway, productID uint, variationID *uint) (*lineQuote, error) {
	product, err := catalog.GetProduct(ctx, productID)
	if err != nil {
		if errors.Is(err, ErrCatalogNotFound) {
			return nil, &CartError{Err: ErrProductUnavailable, ProductID: productID}
		}
		return nil, fmt.Errorf("catalog product %d: %w", productID, err)
	}
	if !product.IsActive {
		return nil, &CartError{Err: ErrProductUnavailable, ProductID: productID}
	}

	quote := &lineQuote{
		product:   product,
		unitPrice: product.Price,
		available: product.Stock,
	}
	if variationID == nil {
		return quote, nil
	}

	variation, err := catalog.GetVariation(ctx, *variationID, productID)
	if err != nil {
		if errors.Is(err, ErrCatalogNotFound) {
			return nil, &CartError{Err: ErrVariationNotFound, ProductID: productID, VariationID: variationID}
		}
		return nil, fmt.Errorf("catalog variation %d: %w", *variationID, err)
	}
	if variation.Stock != nil {
		quote.available = *variation.Stock
	}
	quote.unitPrice = product.Price.Add(variation.PriceAdjustment)
	return quote, nil
}

// checkQuantity enforces the per-item cap, then stock.
func (s *cartService) checkQuantity(requested int, quote *lineQuote, base CartError) error {
	base.Requested = requested
	if requested > s.cfg.MaxQuantityPerItem {
		base.Err = ErrQuantityLimitExceeded
		base.Limit = s.cfg.MaxQuantityPerItem
		return &base
	}
	if requested > quote.available {
		base.Err = ErrInsufficientStock
		base.Available = quote.available
		return &base
	}
	return nil
}

// mutate runs fn and the totals recompute in one transaction with the cart row
// locked. On success cart is refreshed from the committed state.
func (s *cartService) mutate(ctx context.Context, cart *model.Cart, operation string, fn func(repo repository.CartRepository, locked *model.Cart) error) error {
	if cart == nil {
		return ErrCartNotFound
	}

	now := s.now().UTC()
	if !cart.IsMutable(now) {
		s.metrics.ObserveMutation(operation, outcomeOf(ErrCartNotActive))
		return ErrCartNotActive
	}

	var updated *model.Cart
	err := s.cartRepo.Transaction(ctx, func(repo repository.CartRepository) error {
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

		if err := fn(repo, locked); err != nil {
			return err
		}

		items, err := repo.FindItems(ctx, locked.ID)
		if err != nil {
			return err
		}
		locked.Items = items
		applyTotals(locked, CalculateTotals(items, locked.DiscountAmount, s.cfg.Pricing))
		if err := repo.SaveTotals(ctx, locked); err != nil {
			return err
		}
		updated = locked
		return nil
	})

	s.metrics.ObserveMutation(operation, outcomeOf(err))
	if err != nil {
		return err
	}
	*cart = *updated
	return nil
}

func outcomeOf(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrQuantityLimitExceeded):
		return "quantity_limit"
	case errors.Is(err, ErrInsufficientStock):
		return "insufficient_stock"
	case errors.Is(err, ErrProductUnavailable):
		return "product_unavailable"
	case errors.Is(err, ErrVariationNotFound):
		return "variation_not_found"
	case errors.Is(err, ErrCartItemNotFound):
		return "item_not_found"
	case errors.Is(err, ErrCartNotActive):
		return "cart_not_active"
	case errors.Is(err, ErrInvalidQuantity):
		return "invalid_quantity"
	default:
		return "error"
	}
}

func (s *cartService) AddItem(ctx context.Context, cart *model.Cart, productID uint, variationID *uint, quantity int) (*model.CartItem, error) {
	if cart == nil {
		return nil, ErrCartNotFound
	}

	logger.Info("Adding item to cart", map[string]interface{}{
		"cart_id":      cart.ID,
		"product_id":   productID,
		"variation_id": variationID,
		"quantity":     quantity,
	})

	if quantity <= 0 {
		s.metrics.ObserveMutation("add", outcomeOf(ErrInvalidQuantity))
		return nil, &CartError{Err: ErrInvalidQuantity, CartID: cart.ID, ProductID: productID, Requested: quantity}
	}

	quote, err := s.quoteLine(ctx, productID, variationID)
	if err != nil {
		s.metrics.ObserveMutation("add", outcomeOf(err))
		s.logRejection("Cannot add to cart", cart.ID, err)
		return nil, err
	}

	var saved model.CartItem
	err = s.mutate(ctx, cart, "add", func(repo repository.CartRepository, locked *model.Cart) error {
		existing, err := repo.FindItemByLine(ctx, locked.ID, productID, variationID)
		if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}

		requested := quantity
		if existing != nil {
			requested += existing.Quantity
		}
		base := CartError{CartID: locked.ID, ProductID: productID, VariationID: variationID}
		if existing != nil {
			base.ItemID = existing.ID
		}
		if err := s.checkQuantity(requested, quote, base); err != nil {
			return err
		}

		if existing != nil {
			existing.Quantity = requested
			existing.UnitPrice = quote.unitPrice
			if err := repo.UpdateItem(ctx, existing); err != nil {
				return err
			}
			saved = *existing
			return nil
		}

		item := &model.CartItem{
			CartID:      locked.ID,
			ProductID:   productID,
			VariationID: variationID,
			Quantity:    requested,
			UnitPrice:   quote.unitPrice,
		}
		if err := repo.CreateItem(ctx, item); err != nil {
			return err
		}
		saved = *item
		return nil
	})
	if err != nil {
		s.logRejection("Cannot add to cart", cart.ID, err)
		return nil, err
	}

	logger.Info("Cart item added successfully", map[string]interface{}{
		"cart_id":      cart.ID,
		"cart_item_id": saved.ID,
		"quantity":     saved.Quantity,
		"subtotal":     cart.Subtotal.String(),
	})
	return &saved, nil
}

// UpdateItemQuantity sets an item's quantity; unlike AddItem it is absolute.
func (s *cartService) UpdateItemQuantity(ctx context.Context, cart *model.Cart, itemID uint, quantity int) (*model.CartItem, error) {
	if cart == nil {
		return nil, ErrCartNotFound
	}

	logger.Info("Updating cart item", map[string]interface{}{
		"cart_id":      cart.ID,
		"cart_item_id": itemID,
		"quantity":     quantity,
	})

	if quantity <= 0 {
		s.metrics.ObserveMutation("update", outcomeOf(ErrInvalidQuantity))
		return nil, &CartError{Err: ErrInvalidQuantity, CartID: cart.ID, ItemID: itemID, Requested: quantity}
	}

	// The item's product is needed before the catalog can be consulted, and
	// the catalog must not be read while the cart row is locked.
	current, err := s.cartRepo.FindItemByID(ctx, cart.ID, itemID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			s.metrics.ObserveMutation("update", outcomeOf(ErrCartItemNotFound))
			return nil, &CartError{Err: ErrCartItemNotFound, CartID: cart.ID, ItemID: itemID}
		}
		return nil, err
	}

	quote, err := s.quoteLine(ctx, current.ProductID, current.VariationID)
	if err != nil {
		s.metrics.ObserveMutation("update", outcomeOf(err))
		s.logRejection("Cannot update cart item", cart.ID, err)
		return nil, err
	}

	var saved model.CartItem
	err = s.mutate(ctx, cart, "update", func(repo repository.CartRepository, locked *model.Cart) error {
		item, err := repo.FindItemByID(ctx, locked.ID, itemID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return &CartError{Err: ErrCartItemNotFound, CartID: locked.ID, ItemID: itemID}
			}
			return err
		}

		base := CartError{CartID: locked.ID, ItemID: item.ID, ProductID: item.ProductID, VariationID: item.VariationID}
		if err := s.checkQuantity(quantity, quote, base); err != nil {
			return err
		}

		item.Quantity = quantity
		item.UnitPrice = quote.unitPrice
		if err := repo.UpdateItem(ctx, item); err != nil {
			return err
		}
		saved = *item
		return nil
	})
	if err != nil {
		s.logRejection("Cannot update cart item", cart.ID, err)
		return nil, err
	}

	logger.Info("Cart item updated successfully", map[string]interface{}{
		"cart_id":      cart.ID,
		"cart_item_id": saved.ID,
		"quantity":     saved.Quantity,
	})
	return &saved, nil
}

func (s *cartService) RemoveItem(ctx context.Context, cart *model.Cart, itemID uint) error {
	if cart == nil {
		return ErrCartNotFound
	}

	logger.Info("Removing cart item", map[string]interface{}{
		"cart_id":      cart.ID,
		"cart_item_id": itemID,
	})

	err := s.mutate(ctx, cart, "remove", func(repo repository.CartRepository, locked *model.Cart) error {
		if err := repo.DeleteItem(ctx, locked.ID, itemID); err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return &CartError{Err: ErrCartItemNotFound, CartID: locked.ID, ItemID: itemID}
			}
			return err
		}
		return nil
	})
	if err != nil {
		s.logRejection("Cannot remove cart item", cart.ID, err)
		return err
	}

	logger.Info("Cart item removed successfully", map[string]interface{}{
		"cart_id":      cart.ID,
		"cart_item_id": itemID,
	})
	return nil
}

func (s *cartService) Clear(ctx context.Context, cart *model.Cart) error {
	if cart == nil {
		return ErrCartNotFound
	}

	logger.Info("Clearing cart", map[string]interface{}{
		"cart_id": cart.ID,
	})

	err := s.mutate(ctx, cart, "clear", func(repo repository.CartRepository, locked *model.Cart) error {
		locked.DiscountAmount = decimal.Zero
		return repo.DeleteItemsByCart(ctx, locked.ID)
	})
	if err != nil {
		s.logRejection("Cannot clear cart", cart.ID, err)
		return err
	}

	logger.Info("Cart cleared successfully", map[string]interface{}{
		"cart_id": cart.ID,
	})
	return nil
}

// Summary recomputes totals from the cart's loaded items. It never writes.
func (s *cartService) Summary(cart *model.Cart) *CartSummary {
	totals := CalculateTotals(cart.Items, cart.DiscountAmount, s.cfg.Pricing)
	return &CartSummary{
		CartID:        cart.ID,
		ItemCount:     cart.ItemCount(),
		TotalQuantity: cart.TotalQuantity(),
		Subtotal:      totals.Subtotal,
		TaxAmount:     totals.Tax,
		Shipping:      totals.Shipping,
		Discount:      totals.Discount,
		Total:         totals.Total,
		GrandTotal:    totals.GrandTotal,
		PromoCode:     cart.PromoCode,
		ExpiresAt:     cart.ExpiresAt,
	}
}

// ValidateForCheckout collects every problem with the cart against the
// checkout catalog. It never mutates and never stops at the first issue.
func (s *cartService) ValidateForCheckout(ctx context.Context, cart *model.Cart) (bool, []CheckoutIssue) {
	if cart == nil || len(cart.Items) == 0 {
		return false, []CheckoutIssue{{Code: IssueCartEmpty, Message: "cart is empty"}}
	}

	var issues []CheckoutIssue
	for _, item := range cart.Items {
		quote, err := quoteLineFrom(ctx, s.checkoutCatalog, item.ProductID, item.VariationID)
		if err != nil {
			issue := CheckoutIssue{ItemID: item.ID, ProductID: item.ProductID}
			switch {
			case errors.Is(err, ErrProductUnavailable), errors.Is(err, ErrVariationNotFound):
				issue.Code = IssueProductUnavailable
				issue.Message = fmt.Sprintf("product %d is no longer available", item.ProductID)
			default:
				logger.Error("Catalog lookup failed during checkout validation", err, map[string]interface{}{
					"cart_id":    cart.ID,
					"product_id": item.ProductID,
				})
				issue.Code = IssueCatalogError
				issue.Message = fmt.Sprintf("availability of product %d could not be verified", item.ProductID)
			}
			issues = append(issues, issue)
			continue
		}

		if item.Quantity > quote.available {
			issues = append(issues, CheckoutIssue{
				Code:      IssueInsufficientStock,
				Message:   fmt.Sprintf("'%s' has only %d items in stock (you have %d)", quote.product.Name, quote.available, item.Quantity),
				ItemID:    item.ID,
				ProductID: item.ProductID,
				Requested: item.Quantity,
				Available: quote.available,
			})
		}
	}

	logger.Info("Cart validated for checkout", map[string]interface{}{
		"cart_id": cart.ID,
		"issues":  len(issues),
	})
	return len(issues) == 0, issues
}

// ApplyPromoCode records the code. No discount is computed.
func (s *cartService) ApplyPromoCode(ctx context.Context, cart *model.Cart, code string) error {
	code = strings.TrimSpace(code)
	if code == "" {
		return ErrInvalidPromoCode
	}
	return s.setPromoCode(ctx, cart, &code)
}

func (s *cartService) RemovePromoCode(ctx context.Context, cart *model.Cart) error {
	return s.setPromoCode(ctx, cart, nil)
}

func (s *cartService) setPromoCode(ctx context.Context, cart *model.Cart, code *string) error {
	if cart == nil {
		return ErrCartNotFound
	}

	logger.Info("Setting cart promo code", map[string]interface{}{
		"cart_id":    cart.ID,
		"promo_code": code,
	})

	return s.mutate(ctx, cart, "promo_code", func(repo repository.CartRepository, locked *model.Cart) error {
		locked.PromoCode = code
		locked.DiscountAmount = decimal.Zero
		return nil
	})
}

func (s *cartService) MarkConverted(ctx context.Context, cart *model.Cart) error {
	return s.lifecycle.MarkConverted(ctx, cart)
}

// Checkout validates the cart and converts it for order placement. The
// conversion happens under the cart row lock and is refused with
// ErrCartChanged when the stored items differ from the validated ones. A
// cart with issues is returned untouched together with the issues.
func (s *cartService) Checkout(ctx context.Context, cart *model.Cart) (*CartSummary, []CheckoutIssue, error) {
	if cart == nil {
		return nil, nil, ErrCartNotFound
	}

	if valid, issues := s.ValidateForCheckout(ctx, cart); !valid {
		return nil, issues, nil
	}

	claimed, err := s.lifecycle.Claim(ctx, cart, func(locked *model.Cart) error {
		if !sameItems(locked.Items, cart.Items) {
			return &CartError{Err: ErrCartChanged, CartID: cart.ID}
		}
		return nil
	})
	if err != nil {
		s.logRejection("Checkout rejected", cart.ID, err)
		return nil, nil, err
	}
	if claimed == nil {
		return nil, nil, ErrCartNotActive
	}

	*cart = *claimed
	logger.Info("Cart checked out", map[string]interface{}{
		"cart_id": cart.ID,
	})
	return s.Summary(cart), nil, nil
}

// sameItems reports whether two item lists hold the same lines with the same
// quantities and prices.
func sameItems(a, b []model.CartItem) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i].ID != b[i].ID || a[i].Quantity != b[i].Quantity || !a[i].UnitPrice.Equal(b[i].UnitPrice) {
			return false
		}
	}
	return true
}

// HandleGuestCart extends a guest cart that holds products of interest.
func (s *cartService) HandleGuestCart(ctx context.Context, sessionID string, signal ValueSignal) (*ExtensionResult, error) {
	cart, err := s.GetCart(ctx, model.SessionOwner(sessionID))
	if err != nil {
		return nil, err
	}
	return s.lifecycle.ExtendForValue(ctx, cart, signal)
}

func (s *cartService) logRejection(msg string, cartID uint, err error) {
	var cartErr *CartError
	if errors.As(err, &cartErr) || errors.Is(err, ErrCartNotActive) || errors.Is(err, ErrCartNotFound) {
		logger.Warn(msg, map[string]interface{}{
			"cart_id": cartID,
			"reason":  err.Error(),
		})
		return
	}
	logger.Error(msg, err, map[string]interface{}{
		"cart_id": cartID,
	})
}

package service

import (
	"errors"
	"fmt"
	"strings"

	"github.com/Elogic360/neatify/internal/app/repository"
)

var (
	ErrProductUnavailable    = errors.New("product not available")
	ErrVariationNotFound     = errors.New("product variation not found")
	ErrCartItemNotFound      = errors.New("cart item not found")
	ErrQuantityLimitExceeded = errors.New("quantity limit exceeded")
	ErrInsufficientStock     = errors.New("insufficient stock")
	ErrCartNotFound          = errors.New("cart not found")
	ErrCartNotActive         = errors.New("cart is not active")
	ErrInvalidQuantity       = errors.New("quantity must be positive")
	ErrInvalidPromoCode      = errors.New("promo code is required")
	ErrCartChanged           = errors.New("cart changed during checkout")
	ErrInvalidOwner          = repository.ErrInvalidOwner
)

// CartError carries the request context of a cart policy violation. It
// unwraps to one of the sentinel errors above.
type CartError struct {
	Err         error
	CartID      uint
	ProductID   uint
	VariationID *uint
	ItemID      uint
	Requested   int
	Available   int
	Limit       int
}

func (e *CartError) Error() string {
	var parts []string
	if e.ProductID != 0 {
		parts = append(parts, fmt.Sprintf("product_id=%d", e.ProductID))
	}
	if e.VariationID != nil {
		parts = append(parts, fmt.Sprintf("variation_id=%d", *e.VariationID))
	}
	if e.ItemID != 0 {
		parts = append(parts, fmt.Sprintf("item_id=%d", e.ItemID))
	}
	if e.Requested != 0 {
		parts = append(parts, fmt.Sprintf("requested=%d", e.Requested))
	}
	if errors.Is(e.Err, ErrInsufficientStock) {
		parts = append(parts, fmt.Sprintf("available=%d", e.Available))
	}
	if e.Limit != 0 {
		parts = append(parts, fmt.Sprintf("limit=%d", e.Limit))
	}
	if len(parts) == 0 {
		return e.Err.Error()
	}
	return fmt.Sprintf("%s (%s)", e.Err.Error(), strings.Join(parts, ", "))
}

func (e *CartError) Unwrap() error {
	return e.Err
}

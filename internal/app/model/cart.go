package model

import (
	"time"

	"github.com/shopspring/decimal"
)

type CartStatus string

const (
	CartStatusActive    CartStatus = "active"
	CartStatusExpired   CartStatus = "expired"
	CartStatusConverted CartStatus = "converted"
)

// Cart is owned by exactly one of UserID or SessionID. Use Owner() rather
// than reading the columns directly.
type Cart struct {
	ID             uint            `gorm:"primarykey" json:"id"`
	UserID         *uint           `gorm:"index" json:"user_id,omitempty"`
	SessionID      *string         `gorm:"type:varchar(64);index" json:"session_id,omitempty"`
	Status         CartStatus      `gorm:"type:varchar(20);not null;default:'active';index" json:"status"`
	ExpiresAt      time.Time       `gorm:"not null;index" json:"expires_at"`
	Subtotal       decimal.Decimal `gorm:"type:numeric(12,2);not null;default:0" json:"subtotal"`
	TaxAmount      decimal.Decimal `gorm:"type:numeric(12,2);not null;default:0" json:"tax_amount"`
	DiscountAmount decimal.Decimal `gorm:"type:numeric(12,2);not null;default:0" json:"discount_amount"`
	Total          decimal.Decimal `gorm:"type:numeric(12,2);not null;default:0" json:"total"`
	PromoCode      *string         `gorm:"type:varchar(50)" json:"promo_code,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`

	// Relationships
	Items []CartItem `gorm:"foreignKey:CartID" json:"items"`
}

func (Cart) TableName() string {
	return "carts"
}

// NewCart builds an ACTIVE cart for owner expiring at expiresAt.
func NewCart(owner Owner, expiresAt time.Time) *Cart {
	cart := &Cart{
		Status:         CartStatusActive,
		ExpiresAt:      expiresAt,
		Subtotal:       decimal.Zero,
		TaxAmount:      decimal.Zero,
		DiscountAmount: decimal.Zero,
		Total:          decimal.Zero,
	}
	if id, ok := owner.UserID(); ok {
		cart.UserID = &id
	} else if token, ok := owner.SessionID(); ok {
		cart.SessionID = &token
	}
	return cart
}

// Owner reports the cart's owner as a tagged value.
func (c *Cart) Owner() Owner {
	if c.UserID != nil {
		return UserOwner(*c.UserID)
	}
	if c.SessionID != nil {
		return SessionOwner(*c.SessionID)
	}
	return Owner{}
}

// IsExpired reports whether an ACTIVE cart has passed its expiration time.
func (c *Cart) IsExpired(now time.Time) bool {
	return c.Status == CartStatusActive && now.After(c.ExpiresAt)
}

// IsMutable reports whether items may be changed at now.
func (c *Cart) IsMutable(now time.Time) bool {
	return c.Status == CartStatusActive && !c.IsExpired(now)
}

// ItemCount is the number of distinct lines in the cart.
func (c *Cart) ItemCount() int {
	return len(c.Items)
}

// TotalQuantity sums item quantities.
func (c *Cart) TotalQuantity() int {
	total := 0
	for _, item := range c.Items {
		total += item.Quantity
	}
	return total
}

type CartItem struct {
	ID          uint            `gorm:"primarykey" json:"id"`
	CartID      uint            `gorm:"not null;index" json:"cart_id"`
	ProductID   uint            `gorm:"not null;index" json:"product_id"`
	VariationID *uint           `gorm:"index" json:"variation_id,omitempty"`
	Quantity    int             `gorm:"not null;default:1" json:"quantity"`
	UnitPrice   decimal.Decimal `gorm:"type:numeric(12,2);not null;default:0" json:"unit_price"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

func (CartItem) TableName() string {
	return "cart_items"
}

// LineTotal is UnitPrice x Quantity.
func (i CartItem) LineTotal() decimal.Decimal {
	return i.UnitPrice.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

package service

import (
	"github.com/Elogic360/neatify/config"
	"github.com/Elogic360/neatify/internal/app/model"
	"github.com/shopspring/decimal"
)

// Pricing holds the policy constants used by CalculateTotals.
type Pricing struct {
	TaxRate               decimal.Decimal
	FreeShippingThreshold decimal.Decimal
	ShippingCost          decimal.Decimal
}

// DefaultPricing matches the stock configuration.
func DefaultPricing() Pricing {
	return Pricing{
		TaxRate:               decimal.RequireFromString("0.18"),
		FreeShippingThreshold: decimal.NewFromInt(50000),
		ShippingCost:          decimal.NewFromInt(5000),
	}
}

func PricingFromConfig(cfg config.CartConfig) Pricing {
	return Pricing{
		TaxRate:               cfg.TaxRate,
		FreeShippingThreshold: cfg.FreeShippingThreshold,
		ShippingCost:          cfg.ShippingCost,
	}
}

// Totals are the monetary aggregates of a cart. Total is what gets persisted
// and never includes shipping; GrandTotal adds the shipping estimate.
type Totals struct {
	Subtotal   decimal.Decimal `json:"subtotal"`
	Tax        decimal.Decimal `json:"tax_amount"`
	Shipping   decimal.Decimal `json:"shipping"`
	Discount   decimal.Decimal `json:"discount_amount"`
	Total      decimal.Decimal `json:"total"`
	GrandTotal decimal.Decimal `json:"grand_total"`
}

// CalculateTotals is pure: the same items, discount and pricing always give
// the same result.
func CalculateTotals(items []model.CartItem, discount decimal.Decimal, pricing Pricing) Totals {
	subtotal := decimal.Zero
	for _, item := range items {
		subtotal = subtotal.Add(item.LineTotal())
	}
	subtotal = subtotal.Round(2)

	tax := subtotal.Mul(pricing.TaxRate).Round(2)

	shipping := pricing.ShippingCost
	if subtotal.IsZero() || subtotal.GreaterThanOrEqual(pricing.FreeShippingThreshold) {
		shipping = decimal.Zero
	}

	total := subtotal.Add(tax).Sub(discount)
	return Totals{
		Subtotal:   subtotal,
		Tax:        tax,
		Shipping:   shipping,
		Discount:   discount,
		Total:      total,
		GrandTotal: total.Add(shipping),
	}
}

// applyTotals copies the persisted aggregates onto cart.
func applyTotals(cart *model.Cart, totals Totals) {
	cart.Subtotal = totals.Subtotal
	cart.TaxAmount = totals.Tax
	cart.DiscountAmount = totals.Discount
	cart.Total = totals.Total
}

package service

import (
	"context"
	"time"

	"github.com/Elogic360/neatify/internal/app/model"
	"github.com/Elogic360/neatify/pkg/logger"
	"github.com/Elogic360/neatify/pkg/util"
	"github.com/shopspring/decimal"
	"go.uber.org/multierr"
)

const (
	PriorityUser    = "user"
	PrioritySession = "session"
)

var defaultSessionToken = util.GenerateSessionToken

type OwnershipStatus struct {
	UserType         string `json:"user_type"`
	HasUserCart      bool   `json:"has_user_cart"`
	HasSessionCart   bool   `json:"has_session_cart"`
	UserCartItems    int    `json:"user_cart_items"`
	SessionCartItems int    `json:"session_cart_items"`
	CanMerge         bool   `json:"can_merge"`
	RecommendMerge   bool   `json:"recommend_merge"`
}

type RelevantItem struct {
	ItemID      uint  `json:"item_id"`
	ProductID   uint  `json:"product_id"`
	VariationID *uint `json:"variation_id,omitempty"`
	Quantity    int   `json:"quantity"`
	InStock     bool  `json:"in_stock"`
}

type RelevantCarts struct {
	UserHasRelevantCart    bool           `json:"user_has_relevant_cart"`
	SessionHasRelevantCart bool           `json:"session_has_relevant_cart"`
	RelevantUserItems      []RelevantItem `json:"relevant_user_items"`
	RelevantSessionItems   []RelevantItem `json:"relevant_session_items"`
	RecommendUserCart      bool           `json:"recommend_user_cart"`
	RecommendSessionMerge  bool           `json:"recommend_session_merge"`
	CartPriority           string         `json:"cart_priority"`
}

// SmartCart is the cart picked for a set of products. SessionID is set only
// when a new session token was minted for the caller.
type SmartCart struct {
	Cart             *model.Cart    `json:"cart"`
	Source           string         `json:"cart_source"`
	SessionID        string         `json:"session_id,omitempty"`
	MergeRecommended bool           `json:"merge_recommended"`
	Detection        *RelevantCarts `json:"detection_info"`
}

type SessionStats struct {
	SessionID       string          `json:"session_id"`
	TotalQuantity   int             `json:"total_quantity"`
	UniqueProducts  int             `json:"unique_products"`
	CartValue       decimal.Decimal `json:"cart_value"`
	LastActivity    *time.Time      `json:"last_activity"`
	CartStatus      string          `json:"cart_status,omitempty"`
	ExpiresAt       *time.Time      `json:"expires_at,omitempty"`
	EngagementScore int             `json:"engagement_score"`
}

// lookupOptional returns nil for a missing owner key or a missing cart.
func (s *cartService) lookupOptional(ctx context.Context, owner model.Owner) (*model.Cart, error) {
	if !owner.Valid() {
		return nil, nil
	}
	return s.lifecycle.Lookup(ctx, owner)
}

func (s *cartService) DetectOwnershipStatus(ctx context.Context, userID *uint, sessionID string) (*OwnershipStatus, error) {
	status := &OwnershipStatus{UserType: "guest"}

	if userID != nil {
		status.UserType = "registered"
		cart, err := s.lookupOptional(ctx, model.UserOwner(*userID))
		if err != nil {
			return nil, err
		}
		if cart != nil && len(cart.Items) > 0 {
			status.HasUserCart = true
			status.UserCartItems = len(cart.Items)
		}
	}

	cart, err := s.lookupOptional(ctx, model.SessionOwner(sessionID))
	if err != nil {
		return nil, err
	}
	if cart != nil && len(cart.Items) > 0 {
		status.HasSessionCart = true
		status.SessionCartItems = len(cart.Items)
	}

	if status.HasUserCart && status.HasSessionCart {
		status.CanMerge = true
		status.RecommendMerge = status.SessionCartItems > 0
	}
	return status, nil
}

func (s *cartService) relevantItems(ctx context.Context, cart *model.Cart, wanted map[uint]struct{}) []RelevantItem {
	items := []RelevantItem{}
	if cart == nil {
		return items
	}
	for _, item := range cart.Items {
		if _, ok := wanted[item.ProductID]; !ok {
			continue
		}
		inStock := false
		if quote, err := s.quoteLine(ctx, item.ProductID, item.VariationID); err == nil {
			inStock = quote.available >= item.Quantity
		}
		items = append(items, RelevantItem{
			ItemID:      item.ID,
			ProductID:   item.ProductID,
			VariationID: item.VariationID,
			Quantity:    item.Quantity,
			InStock:     inStock,
		})
	}
	return items
}

// DetectRelevantCarts reports which of the caller's carts already hold any of
// productIDs. The user cart takes priority when it has matches.
func (s *cartService) DetectRelevantCarts(ctx context.Context, productIDs []uint, userID *uint, sessionID string) (*RelevantCarts, error) {
	wanted := make(map[uint]struct{}, len(productIDs))
	for _, id := range productIDs {
		wanted[id] = struct{}{}
	}

	result := &RelevantCarts{
		RelevantUserItems:    []RelevantItem{},
		RelevantSessionItems: []RelevantItem{},
		CartPriority:         PrioritySession,
	}

	if userID != nil {
		cart, err := s.lookupOptional(ctx, model.UserOwner(*userID))
		if err != nil {
			return nil, err
		}
		result.RelevantUserItems = s.relevantItems(ctx, cart, wanted)
		if len(result.RelevantUserItems) > 0 {
			result.UserHasRelevantCart = true
			result.RecommendUserCart = true
			result.CartPriority = PriorityUser
		}
	}

	cart, err := s.lookupOptional(ctx, model.SessionOwner(sessionID))
	if err != nil {
		return nil, err
	}
	result.RelevantSessionItems = s.relevantItems(ctx, cart, wanted)
	result.SessionHasRelevantCart = len(result.RelevantSessionItems) > 0

	if userID != nil && result.UserHasRelevantCart && result.SessionHasRelevantCart {
		result.RecommendSessionMerge = true
	}
	return result, nil
}

func (s *cartService) SmartCartForProducts(ctx context.Context, productIDs []uint, userID *uint, sessionID string) (*SmartCart, error) {
	detection, err := s.DetectRelevantCarts(ctx, productIDs, userID, sessionID)
	if err != nil {
		return nil, err
	}

	smart := &SmartCart{Detection: detection}
	var owner model.Owner
	switch {
	case detection.CartPriority == PriorityUser && userID != nil:
		owner = model.UserOwner(*userID)
		smart.Source = PriorityUser
	case sessionID != "":
		owner = model.SessionOwner(sessionID)
		smart.Source = PrioritySession
		smart.MergeRecommended = detection.RecommendSessionMerge ||
			(userID != nil && detection.SessionHasRelevantCart)
	case userID != nil:
		owner = model.UserOwner(*userID)
		smart.Source = PriorityUser
	default:
		smart.SessionID = s.newSessionToken()
		owner = model.SessionOwner(smart.SessionID)
		smart.Source = PrioritySession
	}

	cart, err := s.lifecycle.ResolveOrCreate(ctx, owner)
	if err != nil {
		return nil, err
	}
	smart.Cart = cart

	logger.Info("Smart cart resolved", map[string]interface{}{
		"cart_id":           cart.ID,
		"cart_source":       smart.Source,
		"merge_recommended": smart.MergeRecommended,
		"product_count":     len(productIDs),
	})
	return smart, nil
}

// transferItems re-adds every item of from into to, skipping the ones that
// fail. It returns the number of skipped items.
func (s *cartService) transferItems(ctx context.Context, operation string, from, to *model.Cart) int {
	var errs error
	skipped := 0
	for _, item := range from.Items {
		if _, err := s.AddItem(ctx, to, item.ProductID, item.VariationID, item.Quantity); err != nil {
			skipped++
			errs = multierr.Append(errs, err)
		}
	}

	if skipped > 0 {
		s.metrics.AddMergeSkipped(operation, skipped)
		logger.Warn("Skipped cart items during transfer", map[string]interface{}{
			"operation":      operation,
			"source_cart_id": from.ID,
			"target_cart_id": to.ID,
			"skipped":        skipped,
			"errors":         errs.Error(),
		})
	}
	return skipped
}

// MergeSessionIntoUser adds the session cart's items to the user's cart on a
// best-effort basis and converts the session cart. The session cart is
// claimed before any item moves, so concurrent merges transfer it once. It
// returns nil when there is nothing to merge.
func (s *cartService) MergeSessionIntoUser(ctx context.Context, userID uint, sessionID string) (*model.Cart, error) {
	logger.Info("Merging session cart into user cart", map[string]interface{}{
		"user_id": userID,
	})

	sessionCart, err := s.lifecycle.Lookup(ctx, model.SessionOwner(sessionID))
	if err != nil {
		return nil, err
	}
	if sessionCart == nil || len(sessionCart.Items) == 0 {
		logger.Debug("No session cart to merge", map[string]interface{}{
			"user_id": userID,
		})
		return nil, nil
	}

	userCart, err := s.lifecycle.ResolveOrCreate(ctx, model.UserOwner(userID))
	if err != nil {
		return nil, err
	}

	claimed, err := s.lifecycle.Claim(ctx, sessionCart, nil)
	if err != nil {
		return nil, err
	}
	if claimed == nil {
		logger.Debug("Session cart already merged", map[string]interface{}{
			"user_id":         userID,
			"session_cart_id": sessionCart.ID,
		})
		return nil, nil
	}

	skipped := s.transferItems(ctx, "merge", claimed, userCart)

	logger.Info("Session cart merged successfully", map[string]interface{}{
		"user_id":         userID,
		"session_cart_id": claimed.ID,
		"user_cart_id":    userCart.ID,
		"merged":          len(claimed.Items) - skipped,
		"skipped":         skipped,
	})
	return userCart, nil
}

// ConvertGuestToUser replaces the user's cart contents with the guest cart's
// items and converts the guest cart. The guest cart is claimed before the user
// cart is cleared.
func (s *cartService) ConvertGuestToUser(ctx context.Context, sessionID string, userID uint) (*model.Cart, error) {
	logger.Info("Converting guest cart to user cart", map[string]interface{}{
		"user_id": userID,
	})

	guestCart, err := s.lifecycle.Lookup(ctx, model.SessionOwner(sessionID))
	if err != nil {
		return nil, err
	}
	if guestCart == nil || len(guestCart.Items) == 0 {
		logger.Warn("Cannot convert guest cart: none found", map[string]interface{}{
			"user_id": userID,
		})
		return nil, ErrCartNotFound
	}

	userCart, err := s.lifecycle.ResolveOrCreate(ctx, model.UserOwner(userID))
	if err != nil {
		return nil, err
	}

	claimed, err := s.lifecycle.Claim(ctx, guestCart, nil)
	if err != nil {
		return nil, err
	}
	if claimed == nil {
		logger.Warn("Cannot convert guest cart: already converted", map[string]interface{}{
			"user_id":       userID,
			"guest_cart_id": guestCart.ID,
		})
		return nil, ErrCartNotFound
	}

	if err := s.Clear(ctx, userCart); err != nil {
		return nil, err
	}
	skipped := s.transferItems(ctx, "convert", claimed, userCart)

	logger.Info("Guest cart converted successfully", map[string]interface{}{
		"user_id":       userID,
		"guest_cart_id": claimed.ID,
		"user_cart_id":  userCart.ID,
		"skipped":       skipped,
	})
	return userCart, nil
}

func (s *cartService) SessionStatistics(ctx context.Context, sessionID string) (*SessionStats, error) {
	stats := &SessionStats{SessionID: sessionID, CartValue: decimal.Zero}

	cart, err := s.lifecycle.Lookup(ctx, model.SessionOwner(sessionID))
	if err != nil {
		return nil, err
	}
	if cart == nil {
		return stats, nil
	}

	value := decimal.Zero
	for _, item := range cart.Items {
		value = value.Add(item.LineTotal())
	}

	lastActivity := cart.UpdatedAt
	expiresAt := cart.ExpiresAt
	stats.TotalQuantity = cart.TotalQuantity()
	stats.UniqueProducts = cart.ItemCount()
	stats.CartValue = value
	stats.LastActivity = &lastActivity
	stats.CartStatus = string(cart.Status)
	stats.ExpiresAt = &expiresAt
	stats.EngagementScore = stats.UniqueProducts * 10
	if stats.EngagementScore > 100 {
		stats.EngagementScore = 100
	}
	return stats, nil
}

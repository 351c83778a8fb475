package controller

import (
	"net/http"
	"strconv"

	"github.com/Elogic360/neatify/internal/app/model"
	"github.com/Elogic360/neatify/internal/app/service"
	apperrors "github.com/Elogic360/neatify/internal/errors"
	"github.com/Elogic360/neatify/internal/middleware"
	"github.com/Elogic360/neatify/pkg/logger"
	"github.com/Elogic360/neatify/pkg/util"
	"github.com/gin-gonic/gin"
)

type CartController struct {
	cartService     service.CartService
	session         *middleware.SessionMiddleware
	newSessionToken func() string
}

func NewCartController(cartService service.CartService, session *middleware.SessionMiddleware) *CartController {
	useJSONFieldNames()
	return &CartController{
		cartService:     cartService,
		session:         session,
		newSessionToken: util.GenerateSessionToken,
	}
}

type AddCartItemRequest struct {
	ProductID   uint  `json:"product_id" binding:"required"`
	VariationID *uint `json:"variation_id"`
	Quantity    *int  `json:"quantity"`
}

type UpdateCartItemRequest struct {
	Quantity int `json:"quantity"`
}

type ProductIDsRequest struct {
	ProductIDs []uint `json:"product_ids" binding:"required,min=1"`
}

type GuestCartSignalRequest struct {
	ProductIDs         []uint `json:"product_ids"`
	ViewedCheckout     bool   `json:"viewed_checkout"`
	AddedMultipleItems bool   `json:"added_multiple_items"`
}

type MergeCartRequest struct {
	SessionID string `json:"session_id"`
}

type PromoCodeRequest struct {
	Code string `json:"code" binding:"required"`
}

// CartResponse is the cart as shown to clients, with its summary and any
// checkout issues.
type CartResponse struct {
	Cart      *model.Cart             `json:"cart"`
	Summary   *service.CartSummary    `json:"summary"`
	HasIssues bool                    `json:"has_issues"`
	Issues    []service.CheckoutIssue `json:"issues"`
	SessionID string                  `json:"session_id,omitempty"`
}

// currentOwner prefers the authenticated user over the session token.
func currentOwner(c *gin.Context) (model.Owner, bool) {
	if userID, ok := middleware.GetUserID(c); ok {
		return model.UserOwner(userID), true
	}
	if sessionID := middleware.GetSessionID(c); sessionID != "" {
		return model.SessionOwner(sessionID), true
	}
	return model.Owner{}, false
}

// ownerOrNewSession mints a session for a caller with no identity at all.
func (ctrl *CartController) ownerOrNewSession(c *gin.Context) model.Owner {
	if owner, ok := currentOwner(c); ok {
		return owner
	}
	token := ctrl.newSessionToken()
	ctrl.session.SetSessionCookie(c, token)
	middleware.GetLoggerFromContext(c).Info("Issued new cart session", map[string]interface{}{
		"session_id": token,
	})
	return model.SessionOwner(token)
}

func respondCartError(c *gin.Context, log *logger.Logger, msg string, err error, fields map[string]interface{}) {
	info := apperrors.ParseError(err)
	if fields == nil {
		fields = map[string]interface{}{}
	}
	if info.Status >= http.StatusInternalServerError {
		log.Error(msg, err, fields)
	} else {
		fields["error"] = err.Error()
		log.Warn(msg, fields)
	}
	apperrors.ParseAndRespond(c, err)
}

func parseItemID(c *gin.Context) (uint, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil || id == 0 {
		apperrors.BadRequest(c, apperrors.ValidationInvalidID, "Invalid item ID")
		return 0, false
	}
	return uint(id), true
}

func (ctrl *CartController) cartResponse(c *gin.Context, cart *model.Cart) CartResponse {
	valid, issues := ctrl.cartService.ValidateForCheckout(c.Request.Context(), cart)
	resp := CartResponse{
		Cart:      cart,
		Summary:   ctrl.cartService.Summary(cart),
		HasIssues: !valid,
		Issues:    issues,
	}
	if resp.Issues == nil {
		resp.Issues = []service.CheckoutIssue{}
	}
	if sessionID, ok := cart.Owner().SessionID(); ok {
		resp.SessionID = sessionID
	}
	return resp
}

// existingCart loads the caller's active cart without creating one.
func (ctrl *CartController) existingCart(c *gin.Context, log *logger.Logger) (*model.Cart, bool) {
	owner, ok := currentOwner(c)
	if !ok {
		apperrors.NotFound(c, apperrors.CartNotFound, "Cart not found")
		return nil, false
	}
	cart, err := ctrl.cartService.GetCart(c.Request.Context(), owner)
	if err != nil {
		respondCartError(c, log, "Failed to load cart", err, map[string]interface{}{
			"owner": owner.String(),
		})
		return nil, false
	}
	return cart, true
}

// GetSmartCart returns the caller's cart, creating it on first access
// GET /api/v1/cart/smart
func (ctrl *CartController) GetSmartCart(c *gin.Context) {
	log := middleware.GetLoggerFromContext(c)
	owner := ctrl.ownerOrNewSession(c)

	cart, err := ctrl.cartService.ResolveCart(c.Request.Context(), owner)
	if err != nil {
		respondCartError(c, log, "Failed to resolve cart", err, map[string]interface{}{
			"owner": owner.String(),
		})
		return
	}

	log.Info("Cart fetched successfully", map[string]interface{}{
		"cart_id": cart.ID,
		"items":   cart.ItemCount(),
	})
	c.JSON(http.StatusOK, ctrl.cartResponse(c, cart))
}

// AddItem adds a product to the caller's cart
// POST /api/v1/cart/smart/items
func (ctrl *CartController) AddItem(c *gin.Context) {
	log := middleware.GetLoggerFromContext(c)

	var req AddCartItemRequest
	if !bindJSON(c, &req) {
		return
	}
	quantity := 1
	if req.Quantity != nil {
		quantity = *req.Quantity
	}

	owner := ctrl.ownerOrNewSession(c)
	cart, err := ctrl.cartService.ResolveCart(c.Request.Context(), owner)
	if err != nil {
		respondCartError(c, log, "Failed to resolve cart", err, map[string]interface{}{
			"owner": owner.String(),
		})
		return
	}

	item, err := ctrl.cartService.AddItem(c.Request.Context(), cart, req.ProductID, req.VariationID, quantity)
	if err != nil {
		respondCartError(c, log, "Failed to add item to cart", err, map[string]interface{}{
			"cart_id":    cart.ID,
			"product_id": req.ProductID,
			"quantity":   quantity,
		})
		return
	}

	log.Info("Item added to cart", map[string]interface{}{
		"cart_id": cart.ID,
		"item_id": item.ID,
	})
	c.JSON(http.StatusCreated, gin.H{
		"item": item,
		"cart": ctrl.cartResponse(c, cart),
	})
}

// UpdateItem sets an item's quantity
// PUT /api/v1/cart/smart/items/:id
func (ctrl *CartController) UpdateItem(c *gin.Context) {
	log := middleware.GetLoggerFromContext(c)

	itemID, ok := parseItemID(c)
	if !ok {
		return
	}
	var req UpdateCartItemRequest
	if !bindJSON(c, &req) {
		return
	}

	cart, ok := ctrl.existingCart(c, log)
	if !ok {
		return
	}

	item, err := ctrl.cartService.UpdateItemQuantity(c.Request.Context(), cart, itemID, req.Quantity)
	if err != nil {
		respondCartError(c, log, "Failed to update cart item", err, map[string]interface{}{
			"cart_id":  cart.ID,
			"item_id":  itemID,
			"quantity": req.Quantity,
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"item": item,
		"cart": ctrl.cartResponse(c, cart),
	})
}

// RemoveItem deletes an item from the caller's cart
// DELETE /api/v1/cart/smart/items/:id
func (ctrl *CartController) RemoveItem(c *gin.Context) {
	log := middleware.GetLoggerFromContext(c)

	itemID, ok := parseItemID(c)
	if !ok {
		return
	}
	cart, ok := ctrl.existingCart(c, log)
	if !ok {
		return
	}

	if err := ctrl.cartService.RemoveItem(c.Request.Context(), cart, itemID); err != nil {
		respondCartError(c, log, "Failed to remove cart item", err, map[string]interface{}{
			"cart_id": cart.ID,
			"item_id": itemID,
		})
		return
	}

	c.JSON(http.StatusOK, ctrl.cartResponse(c, cart))
}

// Clear empties the caller's cart
// DELETE /api/v1/cart
func (ctrl *CartController) Clear(c *gin.Context) {
	log := middleware.GetLoggerFromContext(c)

	cart, ok := ctrl.existingCart(c, log)
	if !ok {
		return
	}
	if err := ctrl.cartService.Clear(c.Request.Context(), cart); err != nil {
		respondCartError(c, log, "Failed to clear cart", err, map[string]interface{}{
			"cart_id": cart.ID,
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Cart cleared successfully"})
}

// GetStatus reports which carts the caller holds
// GET /api/v1/cart/smart/status
func (ctrl *CartController) GetStatus(c *gin.Context) {
	log := middleware.GetLoggerFromContext(c)

	status, err := ctrl.cartService.DetectOwnershipStatus(c.Request.Context(), middleware.GetUserIDPtr(c), middleware.GetSessionID(c))
	if err != nil {
		respondCartError(c, log, "Failed to detect cart status", err, nil)
		return
	}
	c.JSON(http.StatusOK, status)
}

// DetectCart picks the cart to use for a set of products
// POST /api/v1/cart/smart/detect
func (ctrl *CartController) DetectCart(c *gin.Context) {
	log := middleware.GetLoggerFromContext(c)

	var req ProductIDsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apperrors.BadRequest(c, apperrors.ValidationRequired, "product_ids is required")
		return
	}

	smart, err := ctrl.cartService.SmartCartForProducts(c.Request.Context(), req.ProductIDs, middleware.GetUserIDPtr(c), middleware.GetSessionID(c))
	if err != nil {
		respondCartError(c, log, "Failed to detect cart for products", err, map[string]interface{}{
			"product_ids": req.ProductIDs,
		})
		return
	}
	if smart.SessionID != "" {
		ctrl.session.SetSessionCookie(c, smart.SessionID)
	}

	c.JSON(http.StatusOK, gin.H{
		"cart":              ctrl.cartResponse(c, smart.Cart),
		"cart_source":       smart.Source,
		"session_id":        smart.SessionID,
		"merge_recommended": smart.MergeRecommended,
		"detection_info":    smart.Detection,
	})
}

// HandleGuestCart extends a valuable guest cart
// POST /api/v1/cart/smart/guest/handle
func (ctrl *CartController) HandleGuestCart(c *gin.Context) {
	log := middleware.GetLoggerFromContext(c)

	sessionID := middleware.GetSessionID(c)
	if sessionID == "" {
		apperrors.BadRequest(c, apperrors.CartOwnerRequired, "A cart session is required")
		return
	}

	var req GuestCartSignalRequest
	if !bindJSON(c, &req) {
		return
	}

	result, err := ctrl.cartService.HandleGuestCart(c.Request.Context(), sessionID, service.ValueSignal{
		ProductIDs:         req.ProductIDs,
		ViewedCheckout:     req.ViewedCheckout,
		AddedMultipleItems: req.AddedMultipleItems,
	})
	if err != nil {
		respondCartError(c, log, "Failed to handle guest cart", err, nil)
		return
	}
	c.JSON(http.StatusOK, result)
}

// ConvertGuestCart replaces the user's cart with the guest cart
// POST /api/v1/cart/smart/convert
func (ctrl *CartController) ConvertGuestCart(c *gin.Context) {
	log := middleware.GetLoggerFromContext(c)

	userID, _ := middleware.GetUserID(c)
	sessionID := middleware.GetSessionID(c)
	if sessionID == "" {
		apperrors.BadRequest(c, apperrors.CartOwnerRequired, "A cart session is required")
		return
	}

	cart, err := ctrl.cartService.ConvertGuestToUser(c.Request.Context(), sessionID, userID)
	if err != nil {
		respondCartError(c, log, "Failed to convert guest cart", err, map[string]interface{}{
			"user_id": userID,
		})
		return
	}

	c.JSON(http.StatusOK, ctrl.cartResponse(c, cart))
}

// MergeSessionCart merges the session cart into the user's cart
// POST /api/v1/cart/merge
func (ctrl *CartController) MergeSessionCart(c *gin.Context) {
	log := middleware.GetLoggerFromContext(c)

	userID, _ := middleware.GetUserID(c)

	var req MergeCartRequest
	if c.Request.ContentLength > 0 && !bindJSON(c, &req) {
		return
	}
	sessionID, ok := util.NormalizeSessionToken(req.SessionID)
	if !ok {
		sessionID = middleware.GetSessionID(c)
	}
	if sessionID == "" {
		apperrors.BadRequest(c, apperrors.CartOwnerRequired, "A cart session is required")
		return
	}

	cart, err := ctrl.cartService.MergeSessionIntoUser(c.Request.Context(), userID, sessionID)
	if err != nil {
		respondCartError(c, log, "Failed to merge session cart", err, map[string]interface{}{
			"user_id": userID,
		})
		return
	}
	if cart == nil {
		c.JSON(http.StatusOK, gin.H{
			"merged":  false,
			"message": "No session cart to merge",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"merged": true,
		"cart":   ctrl.cartResponse(c, cart),
	})
}

// GetSummary returns the pre-checkout totals
// GET /api/v1/cart/summary
func (ctrl *CartController) GetSummary(c *gin.Context) {
	log := middleware.GetLoggerFromContext(c)

	cart, ok := ctrl.existingCart(c, log)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, ctrl.cartService.Summary(cart))
}

// Validate checks the cart against the catalog
// POST /api/v1/cart/validate
func (ctrl *CartController) Validate(c *gin.Context) {
	log := middleware.GetLoggerFromContext(c)

	cart, ok := ctrl.existingCart(c, log)
	if !ok {
		return
	}

	valid, issues := ctrl.cartService.ValidateForCheckout(c.Request.Context(), cart)
	if issues == nil {
		issues = []service.CheckoutIssue{}
	}
	c.JSON(http.StatusOK, gin.H{
		"valid":  valid,
		"issues": issues,
	})
}

// Checkout validates the cart and converts it for order placement
// POST /api/v1/cart/checkout
func (ctrl *CartController) Checkout(c *gin.Context) {
	log := middleware.GetLoggerFromContext(c)

	cart, ok := ctrl.existingCart(c, log)
	if !ok {
		return
	}

	summary, issues, err := ctrl.cartService.Checkout(c.Request.Context(), cart)
	if err != nil {
		respondCartError(c, log, "Failed to check out cart", err, map[string]interface{}{
			"cart_id": cart.ID,
		})
		return
	}
	if len(issues) > 0 {
		log.Warn("Checkout rejected", map[string]interface{}{
			"cart_id": cart.ID,
			"issues":  len(issues),
		})
		c.JSON(http.StatusUnprocessableEntity, gin.H{
			"error":   apperrors.CartCheckoutInvalid,
			"message": "Cart cannot be checked out",
			"issues":  issues,
		})
		return
	}

	log.Info("Cart checked out", map[string]interface{}{
		"cart_id": cart.ID,
	})
	c.JSON(http.StatusOK, gin.H{
		"cart_id": cart.ID,
		"status":  cart.Status,
		"summary": summary,
	})
}

// ApplyPromoCode stores a promo code on the cart
// POST /api/v1/cart/promo-code
func (ctrl *CartController) ApplyPromoCode(c *gin.Context) {
	log := middleware.GetLoggerFromContext(c)

	var req PromoCodeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apperrors.BadRequest(c, apperrors.CartPromoCodeInvalid, "Promo code is required")
		return
	}
	cart, ok := ctrl.existingCart(c, log)
	if !ok {
		return
	}

	if err := ctrl.cartService.ApplyPromoCode(c.Request.Context(), cart, req.Code); err != nil {
		respondCartError(c, log, "Failed to apply promo code", err, map[string]interface{}{
			"cart_id": cart.ID,
		})
		return
	}
	c.JSON(http.StatusOK, ctrl.cartService.Summary(cart))
}

// RemovePromoCode clears the cart's promo code
// DELETE /api/v1/cart/promo-code
func (ctrl *CartController) RemovePromoCode(c *gin.Context) {
	log := middleware.GetLoggerFromContext(c)

	cart, ok := ctrl.existingCart(c, log)
	if !ok {
		return
	}
	if err := ctrl.cartService.RemovePromoCode(c.Request.Context(), cart); err != nil {
		respondCartError(c, log, "Failed to remove promo code", err, map[string]interface{}{
			"cart_id": cart.ID,
		})
		return
	}
	c.JSON(http.StatusOK, ctrl.cartService.Summary(cart))
}

// NewSession issues a fresh anonymous cart session
// GET /api/v1/cart/session/new
func (ctrl *CartController) NewSession(c *gin.Context) {
	token := ctrl.newSessionToken()
	ctrl.session.SetSessionCookie(c, token)
	c.JSON(http.StatusOK, gin.H{"session_id": token})
}

// GetSessionStats returns engagement statistics for a session
// GET /api/v1/cart/session/:session_id/stats
func (ctrl *CartController) GetSessionStats(c *gin.Context) {
	log := middleware.GetLoggerFromContext(c)

	sessionID, ok := util.NormalizeSessionToken(c.Param("session_id"))
	if !ok {
		apperrors.BadRequest(c, apperrors.ValidationInvalidInput, "Invalid session ID")
		return
	}

	stats, err := ctrl.cartService.SessionStatistics(c.Request.Context(), sessionID)
	if err != nil {
		respondCartError(c, log, "Failed to load session statistics", err, nil)
		return
	}
	c.JSON(http.StatusOK, stats)
}

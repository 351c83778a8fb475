package errors

// Error codes returned in the "error" field of every error response.
// Format: CATEGORY_SPECIFIC_DETAIL. Clients map on the code, never on the message.

const (
	// ==================== Auth (AUTH_) ====================
	AuthUnauthorized = "AUTH_UNAUTHORIZED" // login required
	AuthTokenExpired = "AUTH_TOKEN_EXPIRED"
	AuthTokenInvalid = "AUTH_TOKEN_INVALID"

	// ==================== Validation (VALIDATION_) ====================
	ValidationInvalidInput = "VALIDATION_INVALID_INPUT"
	ValidationInvalidID    = "VALIDATION_INVALID_ID"
	ValidationRequired     = "VALIDATION_REQUIRED"

	// ==================== Cart (CART_) ====================
	CartNotFound              = "CART_NOT_FOUND"
	CartNotActive             = "CART_NOT_ACTIVE"
	CartItemNotFound          = "CART_ITEM_NOT_FOUND"
	CartQuantityInvalid       = "CART_QUANTITY_INVALID"
	CartQuantityLimitExceeded = "CART_QUANTITY_LIMIT_EXCEEDED"
	CartInsufficientStock     = "CART_INSUFFICIENT_STOCK"
	CartOwnerRequired         = "CART_OWNER_REQUIRED" // neither user nor session
	CartPromoCodeInvalid      = "CART_PROMO_CODE_INVALID"
	CartCheckoutInvalid       = "CART_CHECKOUT_INVALID"
	CartChanged               = "CART_CHANGED" // modified while checking out

	// ==================== Catalog (PRODUCT_) ====================
	ProductUnavailable = "PRODUCT_UNAVAILABLE"
	VariationNotFound  = "PRODUCT_VARIATION_NOT_FOUND"

	// ==================== Internal (INTERNAL_) ====================
	InternalServerError   = "INTERNAL_SERVER_ERROR"
	InternalDatabaseError = "INTERNAL_DATABASE_ERROR"
	InternalTimeout       = "INTERNAL_TIMEOUT"
)

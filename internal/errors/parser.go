package errors

import (
	"context"
	stderrors "errors"
	"net/http"

	"github.com/Elogic360/neatify/internal/app/service"
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// ErrorInfo is the HTTP rendering of an error.
type ErrorInfo struct {
	Status  int
	Code    string
	Message string
	Details map[string]interface{}
}

var cartErrors = []struct {
	target  error
	status  int
	code    string
	message string
}{
	{service.ErrInvalidQuantity, http.StatusBadRequest, CartQuantityInvalid, "Quantity must be a positive number"},
	{service.ErrQuantityLimitExceeded, http.StatusUnprocessableEntity, CartQuantityLimitExceeded, "Maximum quantity per item exceeded"},
	{service.ErrInsufficientStock, http.StatusConflict, CartInsufficientStock, "Not enough stock for the requested quantity"},
	{service.ErrProductUnavailable, http.StatusNotFound, ProductUnavailable, "Product is not available"},
	{service.ErrVariationNotFound, http.StatusNotFound, VariationNotFound, "Product variation not found"},
	{service.ErrCartItemNotFound, http.StatusNotFound, CartItemNotFound, "Item not found in cart"},
	{service.ErrCartNotFound, http.StatusNotFound, CartNotFound, "Cart not found"},
	{service.ErrCartNotActive, http.StatusConflict, CartNotActive, "Cart is no longer active"},
	{service.ErrInvalidOwner, http.StatusBadRequest, CartOwnerRequired, "A user token or cart session is required"},
	{service.ErrInvalidPromoCode, http.StatusBadRequest, CartPromoCodeInvalid, "Promo code is required"},
	{service.ErrCartChanged, http.StatusConflict, CartChanged, "Cart changed during checkout, please review it and retry"},
}

// ParseError maps service and storage errors to a status, a stable code and
// a client message. Unknown errors become a 500 without leaking details.
func ParseError(err error) ErrorInfo {
	if err == nil {
		return ErrorInfo{Status: http.StatusOK}
	}

	for _, m := range cartErrors {
		if stderrors.Is(err, m.target) {
			return ErrorInfo{
				Status:  m.status,
				Code:    m.code,
				Message: m.message,
				Details: cartErrorDetails(err),
			}
		}
	}

	switch {
	case stderrors.Is(err, gorm.ErrRecordNotFound):
		return ErrorInfo{Status: http.StatusNotFound, Code: CartNotFound, Message: "Requested resource not found"}
	case stderrors.Is(err, context.DeadlineExceeded):
		return ErrorInfo{Status: http.StatusGatewayTimeout, Code: InternalTimeout, Message: "Request timed out. Please try again"}
	case stderrors.Is(err, gorm.ErrDuplicatedKey):
		return ErrorInfo{Status: http.StatusConflict, Code: InternalDatabaseError, Message: "Concurrent update, please retry"}
	}

	return ErrorInfo{
		Status:  http.StatusInternalServerError,
		Code:    InternalServerError,
		Message: "Internal server error. Please try again later",
	}
}

func cartErrorDetails(err error) map[string]interface{} {
	var cartErr *service.CartError
	if !stderrors.As(err, &cartErr) {
		return nil
	}

	details := map[string]interface{}{}
	if cartErr.ProductID != 0 {
		details["product_id"] = cartErr.ProductID
	}
	if cartErr.VariationID != nil {
		details["variation_id"] = *cartErr.VariationID
	}
	if cartErr.ItemID != 0 {
		details["item_id"] = cartErr.ItemID
	}
	if cartErr.Requested != 0 {
		details["requested"] = cartErr.Requested
	}
	if stderrors.Is(cartErr.Err, service.ErrInsufficientStock) {
		details["available"] = cartErr.Available
	}
	if cartErr.Limit != 0 {
		details["limit"] = cartErr.Limit
	}
	if len(details) == 0 {
		return nil
	}
	return details
}

// ParseAndRespond renders err with ParseError.
func ParseAndRespond(c *gin.Context, err error) {
	info := ParseError(err)
	c.JSON(info.Status, ErrorResponse{
		Error:   info.Code,
		Message: info.Message,
		Details: info.Details,
	})
}

package errors

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/Elogic360/neatify/internal/app/service"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func TestParseError(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"invalid quantity", service.ErrInvalidQuantity, http.StatusBadRequest, CartQuantityInvalid},
		{"cap", &service.CartError{Err: service.ErrQuantityLimitExceeded, Requested: 11, Limit: 10}, http.StatusUnprocessableEntity, CartQuantityLimitExceeded},
		{"stock", &service.CartError{Err: service.ErrInsufficientStock, Requested: 5, Available: 2}, http.StatusConflict, CartInsufficientStock},
		{"product", &service.CartError{Err: service.ErrProductUnavailable, ProductID: 3}, http.StatusNotFound, ProductUnavailable},
		{"variation", service.ErrVariationNotFound, http.StatusNotFound, VariationNotFound},
		{"item", service.ErrCartItemNotFound, http.StatusNotFound, CartItemNotFound},
		{"cart", service.ErrCartNotFound, http.StatusNotFound, CartNotFound},
		{"not active", fmt.Errorf("add item: %w", service.ErrCartNotActive), http.StatusConflict, CartNotActive},
		{"owner", service.ErrInvalidOwner, http.StatusBadRequest, CartOwnerRequired},
		{"promo", service.ErrInvalidPromoCode, http.StatusBadRequest, CartPromoCodeInvalid},
		{"changed during checkout", &service.CartError{Err: service.ErrCartChanged, CartID: 4}, http.StatusConflict, CartChanged},
		{"record", gorm.ErrRecordNotFound, http.StatusNotFound, CartNotFound},
		{"timeout", fmt.Errorf("query: %w", context.DeadlineExceeded), http.StatusGatewayTimeout, InternalTimeout},
		{"unknown", stderrors.New("connection reset by peer"), http.StatusInternalServerError, InternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			info := ParseError(tt.err)
			assert.Equal(t, tt.status, info.Status)
			assert.Equal(t, tt.code, info.Code)
			assert.NotEmpty(t, info.Message)
		})
	}
}

func TestParseError_Details(t *testing.T) {
	info := ParseError(&service.CartError{Err: service.ErrInsufficientStock, ProductID: 7, Requested: 5, Available: 0})
	assert.Equal(t, map[string]interface{}{
		"product_id": uint(7),
		"requested":  5,
		"available":  0,
	}, info.Details)

	assert.Nil(t, ParseError(service.ErrCartNotFound).Details)
	assert.NotContains(t, ParseError(stderrors.New("pq: password authentication failed")).Message, "pq")
}

func TestParseAndRespond(t *testing.T) {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)

	ParseAndRespond(c, &service.CartError{Err: service.ErrQuantityLimitExceeded, Requested: 12, Limit: 10})

	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	var body ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, CartQuantityLimitExceeded, body.Error)
	assert.Equal(t, float64(10), body.Details["limit"])
	assert.Equal(t, float64(12), body.Details["requested"])
}

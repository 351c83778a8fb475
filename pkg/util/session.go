package util

import (
	"strings"

	"github.com/google/uuid"
)

// GenerateSessionToken mints an opaque anonymous-cart token. Callers persist
// it client side (cookie) and send it back on every request.
func GenerateSessionToken() string {
	return uuid.NewString()
}

// NormalizeSessionToken trims the token and rejects values longer than the
// carts.session_id column.
func NormalizeSessionToken(token string) (string, bool) {
	token = strings.TrimSpace(token)
	if token == "" || len(token) > 64 {
		return "", false
	}
	return token, true
}

package bybit

import (
	"errors"
	"fmt"
)

// Sentinel errors for the API error classes that callers branch on.
var (
	ErrAuth      = errors.New("api authentication failed")
	ErrRateLimit = errors.New("api rate limit exceeded")
)

// APIError is a non-zero retCode returned by the exchange.
type APIError struct {
	RetCode int
	RetMsg  string
}

// Error implements the error interface.
func (e *APIError) Error() string {
	return fmt.Sprintf("bybit api error %d: %s", e.RetCode, e.RetMsg)
}

// Bybit V5 retCode classes.
var (
	authRetCodes  = map[int]bool{10003: true, 10004: true, 33004: true}
	orderRetCodes = map[int]bool{110001: true, 110003: true, 110004: true}
)

const rateLimitRetCode = 10006

// isOrderRetCode reports whether a retCode is an order execution error.
// These are logged and surfaced in the response rather than failing the
// whole sync cycle.
func isOrderRetCode(code int) bool {
	return orderRetCodes[code]
}

package models

import "errors"

// Sentinel errors for common failure conditions
var (
	ErrNotFound       = errors.New("resource not found")
	ErrConflict       = errors.New("resource already exists")
	ErrUnauthorized   = errors.New("unauthorized")
	ErrForbidden      = errors.New("forbidden")
	ErrBadRequest     = errors.New("bad request")
	ErrInternalServer = errors.New("internal server error")

	// Redemption state errors
	ErrCardNotFound        = errors.New("gift card not found")
	ErrCardAlreadyRedeemed = errors.New("gift card has already been redeemed")
	ErrRateLimitExceeded   = errors.New("rate limit exceeded")
)

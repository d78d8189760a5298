package service

import "net/http"

// AuthError is a terminal authentication or quota failure surfaced to the
// caller with a stable machine-readable code. Not-found, inactive, and
// revoked keys deliberately collapse into one invalid_credential outcome so
// responses never leak whether a key ever existed.
type AuthError struct {
	Code    string
	Message string
	Status  int
}

func (e *AuthError) Error() string {
	return e.Message
}

var (
	ErrMissingCredential   = &AuthError{Code: "missing_credential", Message: "missing credential", Status: http.StatusUnauthorized}
	ErrMalformedCredential = &AuthError{Code: "malformed_credential", Message: "invalid header format", Status: http.StatusUnauthorized}
	ErrInvalidCredential   = &AuthError{Code: "invalid_credential", Message: "invalid credential", Status: http.StatusUnauthorized}
	ErrExpiredCredential   = &AuthError{Code: "expired_credential", Message: "credential has expired", Status: http.StatusUnauthorized}
	ErrQuotaExceeded       = &AuthError{Code: "quota_exceeded", Message: "quota exceeded for the current window", Status: http.StatusTooManyRequests}

	// ErrStorageUnavailable is surfaced as a distinct 5xx so an outage is
	// never mistaken for a credential attack.
	ErrStorageUnavailable = &AuthError{Code: "storage_unavailable", Message: "storage temporarily unavailable", Status: http.StatusServiceUnavailable}
)

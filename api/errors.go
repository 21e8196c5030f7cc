package api

import (
	"errors"
	"fmt"
)

// Category classifies a failure so callers can branch on it without string
// matching.
type Category string

const (
	CategoryNetwork       Category = "network"
	CategoryApplication   Category = "application"
	CategoryNotAuthorized Category = "not_authorized"
	CategoryNoProvider    Category = "no_provider"
	CategoryUserRejected  Category = "user_rejected"
)

// Sentinel errors for the categories callers most often branch on.
var (
	// ErrNotAuthorized means the bearer credential is missing or invalid;
	// the caller should redirect to re-authentication.
	ErrNotAuthorized = errors.New("not authorized")

	// ErrNoProvider means no capable external signer is present in the
	// environment.
	ErrNoProvider = errors.New("no signer provider available")

	// ErrUserRejected means the user declined an interactive signer request.
	ErrUserRejected = errors.New("user rejected the request")
)

// Error is a categorized failure from the remote artifact service or the
// signer environment. It always carries a human-readable message.
type Error struct {
	Category Category
	Message  string
	Err      error
}

func (e *Error) Error() string {
	if e.Message != "" {
		return e.Message
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return string(e.Category)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// NewNetworkError wraps a transport failure (no usable response).
func NewNetworkError(err error) *Error {
	return &Error{
		Category: CategoryNetwork,
		Message:  fmt.Sprintf("network error: %v", err),
		Err:      err,
	}
}

// NewApplicationError wraps a rejection the server responded with.
func NewApplicationError(message string) *Error {
	return &Error{
		Category: CategoryApplication,
		Message:  message,
	}
}

// NewNotAuthorizedError marks a missing or invalid credential.
func NewNotAuthorizedError(message string) *Error {
	if message == "" {
		message = ErrNotAuthorized.Error()
	}
	return &Error{
		Category: CategoryNotAuthorized,
		Message:  message,
		Err:      ErrNotAuthorized,
	}
}

// NewNoProviderError marks an environment without a capable signer.
func NewNoProviderError() *Error {
	return &Error{
		Category: CategoryNoProvider,
		Message:  ErrNoProvider.Error(),
		Err:      ErrNoProvider,
	}
}

// NewUserRejectedError marks a declined interactive signer request.
func NewUserRejectedError() *Error {
	return &Error{
		Category: CategoryUserRejected,
		Message:  ErrUserRejected.Error(),
		Err:      ErrUserRejected,
	}
}

// CategoryOf returns the category of err, or CategoryNetwork for errors that
// did not come through this package (the conservative default for unknown
// failures).
func CategoryOf(err error) Category {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr.Category
	}
	switch {
	case errors.Is(err, ErrNotAuthorized):
		return CategoryNotAuthorized
	case errors.Is(err, ErrNoProvider):
		return CategoryNoProvider
	case errors.Is(err, ErrUserRejected):
		return CategoryUserRejected
	default:
		return CategoryNetwork
	}
}

// IsNotAuthorized reports whether err represents a credential failure.
func IsNotAuthorized(err error) bool {
	return errors.Is(err, ErrNotAuthorized)
}

// IsNoProvider reports whether err means no signer is available.
func IsNoProvider(err error) bool {
	return errors.Is(err, ErrNoProvider)
}

// IsUserRejected reports whether err means the user declined a signer prompt.
func IsUserRejected(err error) bool {
	return errors.Is(err, ErrUserRejected)
}

package auth

import (
	"errors"
	"fmt"
	"net/http"
)

// OAuthError represents an error reported by an OAuth provider.
type OAuthError struct {
	// Code is the OAuth error code.
	Code string `json:"error"`
	// Description is a human-readable description of the error.
	Description string `json:"error_description,omitempty"`
	// StatusCode is the HTTP status code associated with the error.
	StatusCode int `json:"-"`
}

// Error returns a string representation of the OAuth error.
func (e *OAuthError) Error() string {
	if e.Description != "" {
		return fmt.Sprintf("OAuth error %s: %s", e.Code, e.Description)
	}
	return fmt.Sprintf("OAuth error: %s", e.Code)
}

// NewOAuthError creates a new OAuth error with the specified code, description, and status code.
func NewOAuthError(code, description string, statusCode int) *OAuthError {
	return &OAuthError{
		Code:        code,
		Description: description,
		StatusCode:  statusCode,
	}
}

// AuthenticationError represents authentication-related errors.
type AuthenticationError struct {
	// Type is the type of authentication error.
	Type string `json:"type"`
	// Message is a human-readable message describing the error.
	Message string `json:"message"`
	// Code is the HTTP status code associated with the error.
	Code int `json:"code"`
	// Cause is the underlying error that caused this authentication error.
	Cause error `json:"-"`
}

// Error returns a string representation of the authentication error.
func (e *AuthenticationError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Type, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap exposes the cause to errors.Is and errors.As.
func (e *AuthenticationError) Unwrap() error {
	return e.Cause
}

// Is matches any AuthenticationError of the same Type, so wrapped instances
// compare equal to the sentinel they were derived from.
func (e *AuthenticationError) Is(target error) bool {
	var other *AuthenticationError
	if !errors.As(target, &other) {
		return false
	}
	return other.Type == e.Type
}

var (
	// ErrPortBind is returned when the local callback listener cannot bind a port.
	ErrPortBind = &AuthenticationError{
		Type:    "port_bind",
		Message: "Failed to bind local OAuth callback listener",
		Code:    http.StatusInternalServerError,
	}

	// ErrAuthorizationTimedOut is returned when the browser flow is not completed in time.
	ErrAuthorizationTimedOut = &AuthenticationError{
		Type:    "authorization_timed_out",
		Message: "Timeout waiting for OAuth callback",
		Code:    http.StatusRequestTimeout,
	}

	// ErrAuthorizationFailed is returned when the provider rejects the authorization or token exchange.
	ErrAuthorizationFailed = &AuthenticationError{
		Type:    "authorization_failed",
		Message: "Authorization was rejected",
		Code:    http.StatusBadRequest,
	}

	// ErrCredentialsInvalid is returned when a validation call gets an auth rejection status.
	ErrCredentialsInvalid = &AuthenticationError{
		Type:    "credentials_invalid",
		Message: "Stored credentials were rejected, try --renew",
		Code:    http.StatusUnauthorized,
	}

	// ErrValidationTransport is returned on network failures during validation.
	ErrValidationTransport = &AuthenticationError{
		Type:    "validation_transport",
		Message: "Network failure while validating credentials",
		Code:    http.StatusBadGateway,
	}

	// ErrFlowAlreadyInProgress is returned when an authorization for the same service is already running.
	ErrFlowAlreadyInProgress = &AuthenticationError{
		Type:    "flow_already_in_progress",
		Message: "An authorization flow is already running for this service",
		Code:    http.StatusConflict,
	}
)

// NewAuthenticationError creates a new authentication error with a cause based on a base error.
func NewAuthenticationError(baseErr *AuthenticationError, cause error) *AuthenticationError {
	return &AuthenticationError{
		Type:    baseErr.Type,
		Message: baseErr.Message,
		Code:    baseErr.Code,
		Cause:   cause,
	}
}

// IsAuthenticationError checks if an error is an authentication error.
func IsAuthenticationError(err error) bool {
	var authenticationError *AuthenticationError
	return errors.As(err, &authenticationError)
}

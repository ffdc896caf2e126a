// Package errs contains sentinel errors and the coded error wrapper used
// across layers for stable error mapping.
package errs

import (
	"errors"
	"fmt"
)

// Failure categories. Every caller-facing failure unwraps to exactly one of
// these so callers can branch with errors.Is.
var (
	// ErrValidation indicates malformed input caught before any network call.
	ErrValidation = errors.New("validation failed")

	// ErrAuthenticationFailed indicates rejected credentials.
	ErrAuthenticationFailed = errors.New("authentication failed")

	// ErrOtpDispatchFailed indicates a one-time code could not be sent.
	ErrOtpDispatchFailed = errors.New("otp dispatch failed")

	// ErrOtpInvalid indicates a submitted code did not match.
	ErrOtpInvalid = errors.New("otp invalid")

	// ErrOtpExpired indicates a submitted code is past its TTL or attempt cap.
	ErrOtpExpired = errors.New("otp expired")

	// ErrRegistrationFailed indicates the account could not be created
	// (e.g. duplicate email).
	ErrRegistrationFailed = errors.New("registration failed")

	// ErrSessionExpired indicates a 401 on an authenticated call; the
	// session must be torn down before this surfaces.
	ErrSessionExpired = errors.New("session expired")

	// ErrTransport indicates a network or response-parsing failure, distinct
	// from a well-formed error response.
	ErrTransport = errors.New("transport failure")

	// ErrNotFound indicates the requested entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrAlreadyExists indicates a unique constraint violation.
	ErrAlreadyExists = errors.New("already exists")

	// ErrRateLimited indicates temporary lockout due to too many attempts.
	ErrRateLimited = errors.New("rate limited")
)

// Error carries a stable machine code plus a short human-readable
// description suitable for a notification. It unwraps to its category
// sentinel.
type Error struct {
	Code        string
	Description string
	Category    error
}

// E builds a coded error in the given category.
func E(category error, code, description string) *Error {
	return &Error{Code: code, Description: description, Category: category}
}

func (e *Error) Error() string {
	if e.Code == "" {
		return e.Description
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Description)
}

func (e *Error) Unwrap() error { return e.Category }

// CodeOf extracts the machine code from err, or "" if it carries none.
func CodeOf(err error) string {
	var ce *Error
	if errors.As(err, &ce) {
		return ce.Code
	}
	return ""
}

// DescriptionOf extracts the user-presentable text from err, falling back
// to err.Error() so no failure ever surfaces blank.
func DescriptionOf(err error) string {
	var ce *Error
	if errors.As(err, &ce) && ce.Description != "" {
		return ce.Description
	}
	if err == nil {
		return ""
	}
	return err.Error()
}

// Package errors provides the standardized error taxonomy for the gateway.
// Every failure surfaced to a client maps to one of the codes below; the
// code travels in the response envelope's error_code field.
package errors

import (
	"fmt"
)

// Code represents a machine-readable error code carried on the wire.
type Code string

const (
	// Authentication and authorization
	AuthenticationFailed Code = "authentication_failed" // Device key unknown, inactive, or unresolvable
	RateLimited          Code = "rate_limited"          // Denied by the rate-limit oracle

	// Resource visibility
	NotFound     Code = "not_found"     // Content item does not exist
	NotVisible   Code = "not_visible"   // Hidden by the owner or a moderator
	NotAvailable Code = "not_available" // Not yet approved for distribution

	// Validation
	InvalidRequest        Code = "invalid_request"         // Malformed envelope or payload
	InvalidCriteria       Code = "invalid_criteria"        // Criteria list failed compilation
	InvalidEmoji          Code = "invalid_emoji"           // Emoji value outside 1-20 characters
	ReactionLimitExceeded Code = "reaction_limit_exceeded" // Sixth distinct emoji on one item
	UnknownRequestType    Code = "unknown_request_type"    // request_type not in the closed set

	// Server
	Internal Code = "internal_error" // Unmapped handler failure, details logged only
)

// Error is a typed gateway error. It implements the error interface and is
// the only error form that crosses the protocol boundary; anything else is
// converted to Internal before a response is built.
type Error struct {
	Code    Code   `json:"code"`
	Message string `json:"message"`
}

// New creates a new Error with the specified code and message.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Newf creates a new Error with a formatted message.
func Newf(code Code, format string, args ...interface{}) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Error implements the error interface.
func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Package core provides the poll cycle and the services built on it.
//
// # Error Codes Reference
//
// This file defines user-friendly error messages with codes for support reference.
// Cycle results, API responses and CLI output carry the code so an operator
// can look up what happened without reading the raw error.
//
// Error codes are grouped by category:
//
// # Network Errors (NET001-NET099)
//
//	NET001 - Unreachable: The remote API could not be contacted
//	         Action: Check connectivity; the resource is retried next cycle
//	         Patterns: "remote unreachable"
//
// # Remote Errors (REM001-REM099)
//
//	REM001 - Throttled: The remote API asked us to slow down
//	         Action: Lower poll concurrency
//	         Patterns: "http 429"
//
//	REM002 - Remote unavailable: The remote API returned a server error
//	         Action: None; the resource is retried next cycle
//	         Patterns: "remote error: http 5"
//
//	REM003 - Rejected: The remote API rejected the request
//	         Action: Check the key id and verification code
//	         Patterns: "remote error"
//
// # Document Errors (DOC001-DOC099)
//
//	DOC001 - API error: The document carried an error element
//	         Action: Inspect the archived Invalid document
//	         Patterns: "structurally invalid document: api error"
//
//	DOC002 - Malformed: The document is not well-formed XML
//	         Patterns: "malformed xml", "empty document"
//
//	DOC003 - Unexpected shape: An expected element is missing
//	         Patterns: "structurally invalid document"
//
// # Validation Errors (VAL001-VAL099)
//
//	VAL001 - Invalid date         Patterns: "invalid date"
//	VAL002 - Invalid number       Patterns: "invalid number"
//	VAL003 - Required field       Patterns: "required field"
//	VAL004 - Invalid boolean      Patterns: "invalid boolean"
//
// # Permission Errors (PERM001-PERM099)
//
//	PERM001 - Unknown capability    Patterns: "unknown capability"
//	PERM002 - Ambiguous capability  Patterns: "ambiguous capability"
//	PERM003 - Bad input type        Patterns: "invalid capability list", "invalid mask type"
//	PERM004 - Section required      Patterns: "section required"
//	PERM005 - Key not found         Patterns: "registered key not found"
//	PERM006 - Wrong section for key Patterns: "section does not match"
//
// # Database Errors (DB001-DB099)
//
//	DB001 - Foreign key           Patterns: "foreign key"
//	DB002 - Not null              Patterns: "not null", "null value"
//	DB003 - Connection refused    Patterns: "connection refused"
//	DB004 - Connection reset      Patterns: "connection reset"
//	DB005 - Deadlock / busy       Patterns: "deadlock", "database is locked"
//	DB006 - Timeout               Patterns: "timeout"
//
// # Cycle Errors (CYC001-CYC099)
//
//	CYC001 - System busy          Patterns: "too many cycles"
//	CYC002 - Cancelled            Patterns: "context canceled"
//	CYC003 - Timed out            Patterns: "context deadline exceeded"
//	CYC004 - Unknown endpoint     Patterns: "unknown endpoint"
//
// # Rate Limiting (RATE001-RATE099)
//
//	RATE001 - Rate limited        Patterns: "rate limit"
//
// # Default Error (ERR000)
//
// Fallback when no specific pattern matches:
//
//	ERR000 - Unknown error: An unexpected error occurred
//	         Action: Please try again or contact support
//
// # Pattern Matching
//
// Error patterns are matched case-insensitively using strings.Contains.
// The first matching pattern wins, so more specific patterns should be
// defined before general ones.
package core

import (
	"fmt"
	"strings"
)

// UserMessage provides user-friendly error information with actionable guidance.
type UserMessage struct {
	Message string `json:"message"` // What happened (user-friendly)
	Action  string `json:"action"`  // What to do about it
	Code    string `json:"code"`    // Error code for support reference
}

// errorPattern defines a pattern to match and its corresponding user message.
type errorPattern struct {
	pattern string
	msg     UserMessage
}

// errorPatterns maps technical error patterns (case-insensitive) to user messages.
// The first matching pattern wins, so order matters.
var errorPatterns = []errorPattern{
	// =========================================================================
	// Network and Remote Errors
	// =========================================================================
	{
		pattern: "remote unreachable",
		msg: UserMessage{
			Message: "The remote API could not be contacted",
			Action:  "Check network connectivity; the resource is retried next cycle",
			Code:    "NET001",
		},
	},
	{
		pattern: "http 429",
		msg: UserMessage{
			Message: "The remote API is throttling requests",
			Action:  "Lower poll concurrency or widen the poll interval",
			Code:    "REM001",
		},
	},
	{
		pattern: "remote error: http 5",
		msg: UserMessage{
			Message: "The remote API is unavailable",
			Action:  "No action needed; the resource is retried next cycle",
			Code:    "REM002",
		},
	},
	{
		pattern: "remote error",
		msg: UserMessage{
			Message: "The remote API rejected the request",
			Action:  "Check the key id and verification code",
			Code:    "REM003",
		},
	},

	// =========================================================================
	// Document Errors
	// =========================================================================
	{
		pattern: "structurally invalid document: api error",
		msg: UserMessage{
			Message: "The remote API reported an error",
			Action:  "Inspect the archived Invalid document for details",
			Code:    "DOC001",
		},
	},
	{
		pattern: "malformed xml",
		msg: UserMessage{
			Message: "The document is not well-formed XML",
			Action:  "Inspect the archived Invalid document for details",
			Code:    "DOC002",
		},
	},
	{
		pattern: "empty document",
		msg: UserMessage{
			Message: "The document is empty",
			Action:  "Inspect the archived Invalid document for details",
			Code:    "DOC002",
		},
	},
	{
		pattern: "structurally invalid document",
		msg: UserMessage{
			Message: "The document does not have the expected shape",
			Action:  "Check that the endpoint definition matches the API version",
			Code:    "DOC003",
		},
	},

	// =========================================================================
	// Validation Errors
	// =========================================================================
	{
		pattern: "invalid date",
		msg: UserMessage{
			Message: "Invalid date format detected",
			Action:  "Dates must use YYYY-MM-DD HH:MM:SS",
			Code:    "VAL001",
		},
	},
	{
		pattern: "invalid number",
		msg: UserMessage{
			Message: "Invalid number format detected",
			Action:  "Check the column types of the endpoint definition",
			Code:    "VAL002",
		},
	},
	{
		pattern: "required field",
		msg: UserMessage{
			Message: "Required field is empty",
			Action:  "Check the key columns of the endpoint definition",
			Code:    "VAL003",
		},
	},
	{
		pattern: "invalid boolean",
		msg: UserMessage{
			Message: "Invalid boolean value detected",
			Action:  "Check the column types of the endpoint definition",
			Code:    "VAL004",
		},
	},

	// =========================================================================
	// Permission Errors
	// =========================================================================
	{
		pattern: "unknown capability",
		msg: UserMessage{
			Message: "One or more capabilities are unknown",
			Action:  "List valid names with GET /api/masks",
			Code:    "PERM001",
		},
	},
	{
		pattern: "ambiguous capability",
		msg: UserMessage{
			Message: "The capability exists in more than one section",
			Action:  "Pass a section (account, char or corp)",
			Code:    "PERM002",
		},
	},
	{
		pattern: "invalid capability list",
		msg: UserMessage{
			Message: "Capabilities must be a comma-separated list of names",
			Action:  "Check the request body",
			Code:    "PERM003",
		},
	},
	{
		pattern: "invalid mask type",
		msg: UserMessage{
			Message: "Mask must be an integer",
			Action:  "Check the request body",
			Code:    "PERM003",
		},
	},
	{
		pattern: "section required",
		msg: UserMessage{
			Message: "A section is required",
			Action:  "Pass a section (account, char or corp)",
			Code:    "PERM004",
		},
	},
	{
		pattern: "registered key not found",
		msg: UserMessage{
			Message: "The key is not registered",
			Action:  "Register the key first",
			Code:    "PERM005",
		},
	},
	{
		pattern: "section does not match",
		msg: UserMessage{
			Message: "The capability belongs to a different section than the key",
			Action:  "Omit the section or use the one matching the key type",
			Code:    "PERM006",
		},
	},

	// =========================================================================
	// Database Errors
	// =========================================================================
	{
		pattern: "foreign key",
		msg: UserMessage{
			Message: "Referenced record does not exist",
			Action:  "Check the endpoint's target tables",
			Code:    "DB001",
		},
	},
	{
		pattern: "not null",
		msg: UserMessage{
			Message: "A required column was missing from the document",
			Action:  "Check the endpoint definition against the document",
			Code:    "DB002",
		},
	},
	{
		pattern: "null value",
		msg: UserMessage{
			Message: "A required column was missing from the document",
			Action:  "Check the endpoint definition against the document",
			Code:    "DB002",
		},
	},
	{
		pattern: "connection refused",
		msg: UserMessage{
			Message: "Unable to connect to database",
			Action:  "Please try again in a few moments",
			Code:    "DB003",
		},
	},
	{
		pattern: "connection reset",
		msg: UserMessage{
			Message: "Database connection was interrupted",
			Action:  "Please try again",
			Code:    "DB004",
		},
	},
	{
		pattern: "deadlock",
		msg: UserMessage{
			Message: "Database was busy with conflicting operations",
			Action:  "Please try again",
			Code:    "DB005",
		},
	},
	{
		pattern: "database is locked",
		msg: UserMessage{
			Message: "Database was busy with conflicting operations",
			Action:  "Please try again",
			Code:    "DB005",
		},
	},
	{
		pattern: "timeout",
		msg: UserMessage{
			Message: "Operation timed out",
			Action:  "Please try again later",
			Code:    "DB006",
		},
	},

	// =========================================================================
	// Cycle Errors
	// =========================================================================
	{
		pattern: "too many cycles",
		msg: UserMessage{
			Message: "Too many poll cycles are running",
			Action:  "Please wait a moment and try again",
			Code:    "CYC001",
		},
	},
	{
		pattern: "context canceled",
		msg: UserMessage{
			Message: "Request was cancelled",
			Action:  "Please try again",
			Code:    "CYC002",
		},
	},
	{
		pattern: "context deadline exceeded",
		msg: UserMessage{
			Message: "Request timed out",
			Action:  "Please try again",
			Code:    "CYC003",
		},
	},
	{
		pattern: "unknown endpoint",
		msg: UserMessage{
			Message: "Unknown endpoint",
			Action:  "List endpoints with GET /api/endpoints",
			Code:    "CYC004",
		},
	},

	// =========================================================================
	// Rate Limiting
	// =========================================================================
	{
		pattern: "rate limit",
		msg: UserMessage{
			Message: "Too many requests",
			Action:  "Please wait a moment before trying again",
			Code:    "RATE001",
		},
	},
}

// defaultMessage is returned when no pattern matches (ERR000).
var defaultMessage = UserMessage{
	Message: "An unexpected error occurred",
	Action:  "Please try again or contact support",
	Code:    "ERR000",
}

// MapError converts a technical error to a user-friendly message.
// It searches through known error patterns (case-insensitive) and returns
// the first match. If no pattern matches, a generic fallback message with
// code ERR000 is returned.
//
// Example:
//
//	err := errors.New("remote unreachable: dial tcp: connection refused")
//	msg := MapError(err)
//	// msg.Code == "NET001"
func MapError(err error) UserMessage {
	if err == nil {
		return UserMessage{}
	}

	errStr := strings.ToLower(err.Error())

	for _, ep := range errorPatterns {
		if strings.Contains(errStr, ep.pattern) {
			return ep.msg
		}
	}

	return defaultMessage
}

// FormatUserError creates a formatted error string for display.
// The format is: "Message (Code: XXX). Action"
func FormatUserError(err error) string {
	msg := MapError(err)
	if msg.Message == "" {
		return ""
	}
	return fmt.Sprintf("%s (Code: %s). %s", msg.Message, msg.Code, msg.Action)
}

// IsUserFacing checks if an error matches a known pattern and should be shown to users.
// Returns true if the error matches a specific pattern (not the generic ERR000 fallback).
func IsUserFacing(err error) bool {
	if err == nil {
		return false
	}
	msg := MapError(err)
	return msg.Code != defaultMessage.Code
}

// UserError wraps a technical error with a user-friendly message.
// The original error is preserved for logging while providing a clean message for users.
type UserError struct {
	Technical error       // Original technical error for logging
	User      UserMessage // User-friendly message for display
}

func (e *UserError) Error() string {
	return e.User.Message
}

func (e *UserError) Unwrap() error {
	return e.Technical
}

// NewUserError creates a UserError by mapping a technical error to a user-friendly message.
// Returns nil if err is nil.
func NewUserError(err error) *UserError {
	if err == nil {
		return nil
	}
	return &UserError{
		Technical: err,
		User:      MapError(err),
	}
}

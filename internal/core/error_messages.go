package core

// error_messages.go maps technical errors to user-facing messages with codes
// that can be quoted to support.
//
//	DB001-DB099    storage constraint and connectivity errors
//	VAL001-VAL099  row and request validation errors
//	FILE001-FILE099 upload file errors
//	JOB001-JOB099  ingestion job errors
//	SRCH001-SRCH099 search index errors
//	UPL001-UPL099  upload throttling and request lifecycle
//	RATE001        rate limiting
//	ERR000         fallback, check the logs for the technical error
//
// Patterns are matched case-insensitively with strings.Contains. The first
// match wins, so specific patterns come before general ones.

import (
	"fmt"
	"strings"
)

// UserMessage provides user-friendly error information with actionable guidance.
type UserMessage struct {
	Message string // What happened (user-friendly)
	Action  string // What to do about it
	Code    string // Error code for support reference
}

type errorPattern struct {
	pattern string
	msg     UserMessage
}

var errorPatterns = []errorPattern{
	// Storage constraints
	{
		pattern: "integrity error",
		msg: UserMessage{
			Message: "Another upload changed the same products first",
			Action:  "Upload the file again",
			Code:    "DB001",
		},
	},
	{
		pattern: "unique constraint",
		msg: UserMessage{
			Message: "A product with this part number and branch already exists",
			Action:  "Upload the file again to update the existing product",
			Code:    "DB002",
		},
	},
	{
		pattern: "duplicate key",
		msg: UserMessage{
			Message: "A product with this part number and branch already exists",
			Action:  "Upload the file again to update the existing product",
			Code:    "DB002",
		},
	},

	// Storage connectivity
	{
		pattern: "connection refused",
		msg: UserMessage{
			Message: "Unable to connect to database",
			Action:  "Please try again in a few moments",
			Code:    "DB004",
		},
	},
	{
		pattern: "connection reset",
		msg: UserMessage{
			Message: "Database connection was interrupted",
			Action:  "Please try again",
			Code:    "DB005",
		},
	},
	{
		pattern: "deadlock",
		msg: UserMessage{
			Message: "Database was busy with conflicting operations",
			Action:  "Please try again",
			Code:    "DB007",
		},
	},
	{
		pattern: "service unavailable",
		msg: UserMessage{
			Message: "A backing service is unavailable",
			Action:  "Please try again in a few moments",
			Code:    "DB008",
		},
	},

	// Validation
	{
		pattern: "invalid date",
		msg: UserMessage{
			Message: "Invalid timestamp detected",
			Action:  "Use ISO 8601 timestamps such as 2024-01-15T10:30:00",
			Code:    "VAL001",
		},
	},
	{
		pattern: "invalid number",
		msg: UserMessage{
			Message: "Invalid number format detected",
			Action:  "Use a plain decimal price such as 12.50",
			Code:    "VAL002",
		},
	},
	{
		pattern: "required field",
		msg: UserMessage{
			Message: "Required field is empty",
			Action:  "Ensure part_number, branch_id and part_price have values",
			Code:    "VAL003",
		},
	},
	{
		pattern: "invalid query parameter",
		msg: UserMessage{
			Message: "Invalid query parameter",
			Action:  "skip and limit must be non-negative integers",
			Code:    "VAL007",
		},
	},
	{
		pattern: "invalid json",
		msg: UserMessage{
			Message: "Request body is not valid JSON",
			Action:  "Send a JSON object with the product fields",
			Code:    "VAL008",
		},
	},

	// Files
	{
		pattern: "file too large",
		msg: UserMessage{
			Message: "File exceeds maximum size limit",
			Action:  "Split the file into smaller chunks",
			Code:    "FILE001",
		},
	},
	{
		pattern: "no file provided",
		msg: UserMessage{
			Message: "No file was selected",
			Action:  "Send the CSV in the multipart field named file",
			Code:    "FILE004",
		},
	},

	// Jobs
	{
		pattern: "job not found",
		msg: UserMessage{
			Message: "Upload job not found",
			Action:  "The job may have expired. Check the job ID or upload again",
			Code:    "JOB001",
		},
	},
	{
		pattern: "job queue full",
		msg: UserMessage{
			Message: "Too many uploads are waiting to be processed",
			Action:  "Please wait a moment and try again",
			Code:    "JOB002",
		},
	},
	{
		pattern: "unknown database descriptor",
		msg: UserMessage{
			Message: "Upload targets an unknown database",
			Action:  "Contact support",
			Code:    "JOB003",
		},
	},

	// Search
	{
		pattern: "search index",
		msg: UserMessage{
			Message: "Product search is unavailable",
			Action:  "Please try again in a few moments",
			Code:    "SRCH001",
		},
	},

	// Upload lifecycle
	{
		pattern: "too many concurrent uploads",
		msg: UserMessage{
			Message: "System is busy processing other uploads",
			Action:  "Please wait a moment and try again",
			Code:    "UPL002",
		},
	},
	{
		pattern: "context canceled",
		msg: UserMessage{
			Message: "Request was cancelled",
			Action:  "Please try again",
			Code:    "UPL004",
		},
	},
	{
		pattern: "context deadline exceeded",
		msg: UserMessage{
			Message: "Request timed out",
			Action:  "Try uploading a smaller file or check your connection",
			Code:    "UPL005",
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

	{
		pattern: "rate limit",
		msg: UserMessage{
			Message: "Too many requests",
			Action:  "Please wait a moment before trying again",
			Code:    "RATE001",
		},
	},
}

// defaultMessage is returned when no pattern matches.
var defaultMessage = UserMessage{
	Message: "An unexpected error occurred",
	Action:  "Please try again or contact support",
	Code:    "ERR000",
}

// MapError converts a technical error to a user-friendly message.
// Unmatched errors map to the ERR000 fallback.
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

// FormatUserError creates a formatted error string for display:
// "Message (Code: XXX). Action".
func FormatUserError(err error) string {
	msg := MapError(err)
	if msg.Message == "" {
		return ""
	}
	return fmt.Sprintf("%s (Code: %s). %s", msg.Message, msg.Code, msg.Action)
}

// IsUserFacing reports whether err matched a known pattern.
func IsUserFacing(err error) bool {
	if err == nil {
		return false
	}
	return MapError(err).Code != defaultMessage.Code
}

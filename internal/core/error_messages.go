package core

// # Error Codes Reference
//
// User-facing messages carry a code that support staff can look up.
//
// # Import Errors (IMP001-IMP099)
//
//	IMP001 - Duplicate contact: a contact with this number already exists
//	         Patterns: "already a contact with this number"
//	IMP002 - Contact not found
//	         Patterns: "contact not found"
//	IMP003 - Missing credential
//	         Patterns: "credential is required"
//	IMP004 - Missing organization
//	         Patterns: "organization id is required"
//	IMP005 - No importable file
//	         Patterns: "file is required"
//
// # File Errors (FILE001-FILE099)
//
//	FILE001 - File too large       Patterns: "file too large"
//	FILE002 - Unreadable CSV       Patterns: "parse csv file"
//	FILE003 - Unreadable XLSX      Patterns: "parse xlsx file"
//	FILE004 - Unsupported format   Patterns: "unsupported format"
//
// # Job Errors (JOB001-JOB099)
//
//	JOB001 - System busy           Patterns: "too many concurrent imports"
//	JOB002 - Job not found         Patterns: "job not found"
//	JOB003 - Request cancelled     Patterns: "context canceled"
//	JOB004 - Request timed out     Patterns: "context deadline exceeded"
//	JOB005 - Nothing to report     Patterns: "no errors to report"
//	JOB006 - Shutting down         Patterns: "service is shutting down"
//
// # Remote API Errors (API001-API099)
//
//	API001 - Credential rejected   Patterns: "401 unauthorized", "403 forbidden"
//	API002 - No matching contacts  Patterns: "no contacts match"
//	API003 - API unreachable       Patterns: "connection refused", "no such host"
//	API004 - API timeout           Patterns: "timeout"
//
// # Rate Limiting (RATE001)
//
//	RATE001 - Too many requests    Patterns: "rate limit"
//
// ERR000 is the fallback when nothing matches. Patterns are matched
// case-insensitively with strings.Contains; the first match wins.

import (
	"fmt"
	"strings"
)

// translations maps canonical API messages to the text shown in reports.
// Matching is exact; anything else passes through unchanged.
var translations = map[string]string{
	"There is already a contact with this number !": "Já existe um contato com este número.",
	"Contact not found!":                            "Contato não encontrado.",
}

// TranslateMessage returns the report text for an API message.
func TranslateMessage(msg string) string {
	if t, ok := translations[msg]; ok {
		return t
	}
	return msg
}

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

// errorPatterns maps technical error text (lowercase) to user messages.
// Specific patterns come before general ones.
var errorPatterns = []errorPattern{
	{
		pattern: "already a contact with this number",
		msg: UserMessage{
			Message: "A contact with this number already exists",
			Action:  "Enable update-if-exists or remove the duplicate row",
			Code:    "IMP001",
		},
	},
	{
		pattern: "contact not found",
		msg: UserMessage{
			Message: "Contact not found",
			Action:  "Check the number and try again",
			Code:    "IMP002",
		},
	},
	{
		pattern: "credential is required",
		msg: UserMessage{
			Message: "No access token was provided",
			Action:  "Send the access-token header with your request",
			Code:    "IMP003",
		},
	},
	{
		pattern: "organization id is required",
		msg: UserMessage{
			Message: "The channel has no organization",
			Action:  "Check that the access token belongs to a configured channel",
			Code:    "IMP004",
		},
	},
	{
		pattern: "file is required",
		msg: UserMessage{
			Message: "No file was selected",
			Action:  "Please select a CSV or XLSX file to import",
			Code:    "IMP005",
		},
	},
	{
		pattern: "file too large",
		msg: UserMessage{
			Message: "File exceeds the maximum size limit",
			Action:  "Split the file into smaller chunks",
			Code:    "FILE001",
		},
	},
	{
		pattern: "parse csv file",
		msg: UserMessage{
			Message: "File is not a valid CSV",
			Action:  "Ensure the file is comma-separated with a header row",
			Code:    "FILE002",
		},
	},
	{
		pattern: "parse xlsx file",
		msg: UserMessage{
			Message: "File is not a valid spreadsheet",
			Action:  "Save the file as .xlsx and try again",
			Code:    "FILE003",
		},
	},
	{
		pattern: "unsupported format",
		msg: UserMessage{
			Message: "Unsupported file format",
			Action:  "Upload a .csv or .xlsx file",
			Code:    "FILE004",
		},
	},
	{
		pattern: "too many concurrent imports",
		msg: UserMessage{
			Message: "System is busy processing other imports",
			Action:  "Please wait a moment and try again",
			Code:    "JOB001",
		},
	},
	{
		pattern: "service is shutting down",
		msg: UserMessage{
			Message: "The server is restarting",
			Action:  "Please try the import again in a moment",
			Code:    "JOB006",
		},
	},
	{
		pattern: "job not found",
		msg: UserMessage{
			Message: "Import not found",
			Action:  "The import may have expired. Please start a new import",
			Code:    "JOB002",
		},
	},
	{
		pattern: "context canceled",
		msg: UserMessage{
			Message: "Request was cancelled",
			Action:  "Please try again",
			Code:    "JOB003",
		},
	},
	{
		pattern: "context deadline exceeded",
		msg: UserMessage{
			Message: "Request timed out",
			Action:  "Try a smaller file or check your connection",
			Code:    "JOB004",
		},
	},
	{
		pattern: "no errors to report",
		msg: UserMessage{
			Message: "This import has no errors",
			Action:  "There is nothing to download",
			Code:    "JOB005",
		},
	},
	{
		pattern: "401 unauthorized",
		msg: UserMessage{
			Message: "The access token was rejected",
			Action:  "Check the token and try again",
			Code:    "API001",
		},
	},
	{
		pattern: "403 forbidden",
		msg: UserMessage{
			Message: "The access token was rejected",
			Action:  "Check the token and try again",
			Code:    "API001",
		},
	},
	{
		pattern: "no contacts match",
		msg: UserMessage{
			Message: "No contacts found with the selected tags",
			Action:  "Select different tags or clear the selection",
			Code:    "API002",
		},
	},
	{
		pattern: "connection refused",
		msg: UserMessage{
			Message: "Unable to reach the contact API",
			Action:  "Please try again in a few moments",
			Code:    "API003",
		},
	},
	{
		pattern: "no such host",
		msg: UserMessage{
			Message: "Unable to reach the contact API",
			Action:  "Please try again in a few moments",
			Code:    "API003",
		},
	},
	{
		pattern: "timeout",
		msg: UserMessage{
			Message: "The contact API did not answer in time",
			Action:  "Please try again later",
			Code:    "API004",
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

var defaultMessage = UserMessage{
	Message: "An unexpected error occurred",
	Action:  "Please try again or contact support",
	Code:    "ERR000",
}

// MapError converts a technical error to a user-friendly message. A nil
// error maps to the zero UserMessage.
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

// FormatUserError renders "Message (Code: XXX). Action".
func FormatUserError(err error) string {
	msg := MapError(err)
	if msg.Message == "" {
		return ""
	}
	return fmt.Sprintf("%s (Code: %s). %s", msg.Message, msg.Code, msg.Action)
}

// IsUserFacing reports whether err matches a known pattern.
func IsUserFacing(err error) bool {
	if err == nil {
		return false
	}
	return MapError(err).Code != defaultMessage.Code
}

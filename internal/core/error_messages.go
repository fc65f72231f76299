// Package core provides the business logic for building downstream parameter sets.
//
// # Error Codes Reference
//
// This file defines user-friendly error messages with codes for support reference.
// When a build fails, the code printed next to the message identifies the
// failure class without reading logs.
//
// # Input Errors (IN001-IN099)
//
//	IN001 - Mapping catalog not found
//	        Action: Check the --imports path
//
//	IN002 - Working directory not found
//	        Action: Check the --workdir path
//
//	IN003 - Run archive not found
//	        Action: Export the run as <upstream>.run.<run>.zip into the working directory
//
//	IN004 - Run archive is not a zip file
//	        Action: Re-export the run archive
//
//	IN005 - Invalid request
//	        Action: Provide upstream, run and downstream names
//
// # Metadata Errors (META001-META099)
//
//	META001 - Run archive must contain exactly one JSON metadata file
//	META002 - Run metadata is not valid JSON
//	META003 - Run archive belongs to another model or run
//
// # Catalog Errors (CAT001-CAT099)
//
//	CAT001 - Mapping catalog is missing a required column
//	CAT002 - Mapping catalog has an invalid value
//
// # Table Errors (TBL001-TBL099)
//
//	TBL001 - A mapped table is missing from the run archive
//
// # Set Errors (SET001-SET099)
//
//	SET001 - Too many builds in progress
//	SET002 - Build cancelled or timed out
//
// # Default Error (ERR000)
//
//	ERR000 - Unknown error: check logs for the technical error
//
// Typed errors are classified with errors.As first; plain errors fall back to
// case-insensitive substring patterns where the first match wins.
package core

import (
	"errors"
	"fmt"
	"strings"
)

// UserMessage provides user-friendly error information with actionable guidance.
type UserMessage struct {
	Message string // What happened (user-friendly)
	Action  string // What to do about it
	Code    string // Error code for support reference
}

// errorPattern defines a pattern to match and its corresponding user message.
type errorPattern struct {
	pattern string
	msg     UserMessage
}

var (
	msgCatalogNotFound = UserMessage{
		Message: "Mapping catalog not found",
		Action:  "Check the --imports path",
		Code:    "IN001",
	}
	msgWorkDirNotFound = UserMessage{
		Message: "Working directory not found",
		Action:  "Check the --workdir path",
		Code:    "IN002",
	}
	msgArchiveNotFound = UserMessage{
		Message: "Run archive not found",
		Action:  "Export the run as <upstream>.run.<run>.zip into the working directory",
		Code:    "IN003",
	}
	msgArchiveInvalid = UserMessage{
		Message: "Run archive is not a zip file",
		Action:  "Re-export the run archive",
		Code:    "IN004",
	}
	msgInvalidRequest = UserMessage{
		Message: "Invalid request",
		Action:  "Provide upstream, run and downstream names",
		Code:    "IN005",
	}
	msgMetadataCount = UserMessage{
		Message: "Run archive must contain exactly one JSON metadata file",
		Action:  "Re-export the run archive",
		Code:    "META001",
	}
	msgMetadataParse = UserMessage{
		Message: "Run metadata is not valid JSON",
		Action:  "Re-export the run archive",
		Code:    "META002",
	}
	msgIdentity = UserMessage{
		Message: "Run archive belongs to another model or run",
		Action:  "Check the --upstream and --run names",
		Code:    "META003",
	}
	msgCatalogColumn = UserMessage{
		Message: "Mapping catalog is missing a required column",
		Action:  "Add parameter_name, parameter_rank, from_name, from_model_name and is_sample_dim columns",
		Code:    "CAT001",
	}
	msgCatalogValue = UserMessage{
		Message: "Mapping catalog has an invalid value",
		Action:  "Fix the reported line of the mapping catalog",
		Code:    "CAT002",
	}
	msgNoTable = UserMessage{
		Message: "A mapped table is missing from the run archive",
		Action:  "Check from_name in the mapping catalog against the tables of the run",
		Code:    "TBL001",
	}
)

// errorPatterns maps untyped error text (case-insensitive) to user messages.
var errorPatterns = []errorPattern{
	{
		pattern: "too many concurrent builds",
		msg: UserMessage{
			Message: "Too many builds in progress",
			Action:  "Please wait a moment and try again",
			Code:    "SET001",
		},
	},
	{
		pattern: "context canceled",
		msg: UserMessage{
			Message: "Build was cancelled",
			Action:  "Start the build again",
			Code:    "SET002",
		},
	},
	{
		pattern: "context deadline exceeded",
		msg: UserMessage{
			Message: "Build timed out",
			Action:  "Start the build again",
			Code:    "SET002",
		},
	},
}

// defaultMessage is returned when no class or pattern matches (ERR000).
var defaultMessage = UserMessage{
	Message: "An unexpected error occurred",
	Action:  "Check the logs for details",
	Code:    "ERR000",
}

// MapError converts a technical error to a user-friendly message.
func MapError(err error) UserMessage {
	if err == nil {
		return UserMessage{}
	}

	var inputErr *InputError
	if errors.As(err, &inputErr) {
		switch inputErr.Kind {
		case InputCatalog:
			return msgCatalogNotFound
		case InputWorkDir:
			return msgWorkDirNotFound
		case InputArchive:
			return msgArchiveNotFound
		case InputArchiveInvalid:
			return msgArchiveInvalid
		default:
			return msgInvalidRequest
		}
	}

	var (
		countErr    *MetadataCountError
		parseErr    *MetadataParseError
		identityErr *IdentityMismatchError
		catalogErr  *CatalogError
		noTableErr  *NoTableMatchError
	)
	switch {
	case errors.As(err, &countErr):
		return msgMetadataCount
	case errors.As(err, &parseErr):
		return msgMetadataParse
	case errors.As(err, &identityErr):
		return msgIdentity
	case errors.As(err, &catalogErr):
		if errors.Is(err, ErrMissingColumn) {
			return msgCatalogColumn
		}
		return msgCatalogValue
	case errors.As(err, &noTableErr):
		return msgNoTable
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

// IsUserFacing reports whether err maps to a specific message rather than ERR000.
func IsUserFacing(err error) bool {
	if err == nil {
		return false
	}
	return MapError(err).Code != defaultMessage.Code
}

package core

// # Error Codes Reference
//
// This file maps technical errors to user-facing messages with a code that
// operators can quote to support staff.
//
// # Ingestion Errors (ING001-ING099)
//
//	ING001 - Unknown adapter: the requested instrument adapter is not registered
//	ING002 - Folder problem: the inbox or archive folder is missing or unreadable
//	ING003 - Unreadable export: a file could not be parsed
//	ING004 - Archive failed: data was saved but the file could not be moved
//	ING005 - Save failed: the records of a file could not be saved
//
// # Job Errors (JOB001-JOB099)
//
//	JOB001 - Job not found: unknown id, or the job expired from memory
//	JOB002 - Job running: these folders are already being ingested
//	JOB003 - System busy: too many jobs running
//	JOB004 - Shutting down: the service is stopping
//	JOB005 - Request cancelled
//	JOB006 - Request timeout
//
// # Database Errors (DB001-DB099)
//
//	DB001 - Duplicate key
//	DB004 - Connection refused
//	DB005 - Connection reset
//	DB006 - Timeout
//	DB007 - Deadlock or busy database
//
// # File Errors (FILE001-FILE099)
//
//	FILE001 - File too large
//	FILE002 - Encoding error
//	FILE003 - Header not found
//	FILE004 - Missing required value
//	FILE005 - Empty file
//
// # Other
//
//	RATE001 - Rate limited
//	AUTH001 - Missing or invalid API key
//	ERR000  - Unknown error; check the application log for the technical error
//
// Typed errors are matched first with errors.Is/As. Anything else falls back
// to case-insensitive substring patterns, first match wins.

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// UserMessage provides user-friendly error information with actionable guidance.
type UserMessage struct {
	Message string `json:"message"` // What happened (user-friendly)
	Action  string `json:"action"`  // What to do about it
	Code    string `json:"code"`    // Error code for support reference
}

var (
	msgUnknownAdapter = UserMessage{
		Message: "The selected instrument adapter is not available",
		Action:  "Choose one of the listed instruments",
		Code:    "ING001",
	}
	msgDiscovery = UserMessage{
		Message: "The inbox or archive folder is missing or unreadable",
		Action:  "Check that both folders exist and the service can access them",
		Code:    "ING002",
	}
	msgParse = UserMessage{
		Message: "An export file could not be read",
		Action:  "Check the file was exported with the expected instrument settings",
		Code:    "ING003",
	}
	msgMove = UserMessage{
		Message: "Data was saved but the file could not be archived",
		Action:  "Check permissions on the archive folder; the file will be retried on the next run",
		Code:    "ING004",
	}
	msgPersist = UserMessage{
		Message: "The file's records could not be saved",
		Action:  "Please try again; if it persists contact support",
		Code:    "ING005",
	}
	msgJobNotFound = UserMessage{
		Message: "Ingestion job not found",
		Action:  "The job may have expired. Start a new run",
		Code:    "JOB001",
	}
	msgJobInProgress = UserMessage{
		Message: "These folders are already being ingested",
		Action:  "Wait for the running job to finish",
		Code:    "JOB002",
	}
	msgTooManyJobs = UserMessage{
		Message: "Too many ingestion jobs are running",
		Action:  "Please wait a moment and try again",
		Code:    "JOB003",
	}
	msgShuttingDown = UserMessage{
		Message: "The ingestion service is shutting down",
		Action:  "Try again after the service restarts",
		Code:    "JOB004",
	}
	msgCancelled = UserMessage{
		Message: "Request was cancelled",
		Action:  "Please try again",
		Code:    "JOB005",
	}
	msgDeadline = UserMessage{
		Message: "Request timed out",
		Action:  "Please try again",
		Code:    "JOB006",
	}
)

// typedMessages are checked in order before the substring patterns.
var typedMessages = []struct {
	match func(error) bool
	msg   UserMessage
}{
	{func(err error) bool { return errors.Is(err, ErrUnknownAdapter) }, msgUnknownAdapter},
	{func(err error) bool { return errors.Is(err, ErrJobNotFound) }, msgJobNotFound},
	{func(err error) bool { return errors.Is(err, ErrJobInProgress) }, msgJobInProgress},
	{func(err error) bool { return errors.Is(err, ErrTooManyJobs) }, msgTooManyJobs},
	{func(err error) bool { return errors.Is(err, ErrShuttingDown) }, msgShuttingDown},
	{func(err error) bool { var e *DiscoveryError; return errors.As(err, &e) }, msgDiscovery},
	{func(err error) bool { var e *MoveError; return errors.As(err, &e) }, msgMove},
	{func(err error) bool { return errors.Is(err, context.Canceled) }, msgCancelled},
	{func(err error) bool { return errors.Is(err, context.DeadlineExceeded) }, msgDeadline},
}

// errorPattern defines a pattern to match and its corresponding user message.
type errorPattern struct {
	pattern string
	msg     UserMessage
}

// errorPatterns maps technical error patterns (case-insensitive) to user
// messages. More specific patterns come first.
var errorPatterns = []errorPattern{
	// File content
	{"file too large", UserMessage{
		Message: "File exceeds maximum size limit",
		Action:  "Split the export into smaller files",
		Code:    "FILE001",
	}},
	{"encoding error", UserMessage{
		Message: "File contains characters in an unsupported encoding",
		Action:  "Export as UTF-8 or UTF-16 text",
		Code:    "FILE002",
	}},
	{"header not found", UserMessage{
		Message: "Expected column headers were not found",
		Action:  "Check the export uses the instrument's standard column layout",
		Code:    "FILE003",
	}},
	{"required field", UserMessage{
		Message: "A required value is empty",
		Action:  "Ensure sample id and timestamp are filled in for every row",
		Code:    "FILE004",
	}},
	{"empty file", UserMessage{
		Message: "The file is empty",
		Action:  "Re-export the data from the instrument",
		Code:    "FILE005",
	}},

	// Database
	{"duplicate key", UserMessage{
		Message: "A record with this key already exists",
		Action:  "Check the export for repeated rows",
		Code:    "DB001",
	}},
	{"unique constraint", UserMessage{
		Message: "A record with this key already exists",
		Action:  "Check the export for repeated rows",
		Code:    "DB001",
	}},
	{"connection refused", UserMessage{
		Message: "Unable to connect to database",
		Action:  "Please try again in a few moments",
		Code:    "DB004",
	}},
	{"connection reset", UserMessage{
		Message: "Database connection was interrupted",
		Action:  "Please try again",
		Code:    "DB005",
	}},
	{"timeout", UserMessage{
		Message: "Operation timed out",
		Action:  "Please try again later",
		Code:    "DB006",
	}},
	{"deadlock", UserMessage{
		Message: "Database was busy with conflicting operations",
		Action:  "Please try again",
		Code:    "DB007",
	}},
	{"database is locked", UserMessage{
		Message: "Database was busy with conflicting operations",
		Action:  "Please try again",
		Code:    "DB007",
	}},

	// Transport
	{"rate limit", UserMessage{
		Message: "Too many requests",
		Action:  "Please wait a moment before trying again",
		Code:    "RATE001",
	}},
	{"api key", UserMessage{
		Message: "Missing or invalid API key",
		Action:  "Provide a valid key in the X-API-Key header",
		Code:    "AUTH001",
	}},
}

// defaultMessage is returned when nothing matches (ERR000).
var defaultMessage = UserMessage{
	Message: "An unexpected error occurred",
	Action:  "Please try again or contact support",
	Code:    "ERR000",
}

// MapError converts a technical error to a user-friendly message.
//
// Example:
//
//	msg := MapError(&DiscoveryError{Dir: "/inbox", Err: fs.ErrNotExist})
//	// msg.Code == "ING002"
func MapError(err error) UserMessage {
	if err == nil {
		return UserMessage{}
	}

	for _, tm := range typedMessages {
		if tm.match(err) {
			return tm.msg
		}
	}

	errStr := strings.ToLower(err.Error())
	for _, ep := range errorPatterns {
		if strings.Contains(errStr, ep.pattern) {
			return ep.msg
		}
	}

	// Typed fallbacks after patterns so a specific cause wins.
	var pe *ParseError
	if errors.As(err, &pe) {
		return msgParse
	}
	var perr *PersistError
	if errors.As(err, &perr) {
		return msgPersist
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

// UserError pairs a technical error with its user-facing message.
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

// NewUserError maps err to a UserError. Returns nil if err is nil.
func NewUserError(err error) *UserError {
	if err == nil {
		return nil
	}
	return &UserError{
		Technical: err,
		User:      MapError(err),
	}
}

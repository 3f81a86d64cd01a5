package core

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"testing"
)

func TestMapError(t *testing.T) {
	tests := []struct {
		name        string
		err         error
		wantCode    string
		wantMessage string
	}{
		{
			name:        "nil error returns empty",
			err:         nil,
			wantCode:    "",
			wantMessage: "",
		},
		{
			name:        "unknown adapter",
			err:         fmt.Errorf("%w: hplc", ErrUnknownAdapter),
			wantCode:    "ING001",
			wantMessage: "The selected instrument adapter is not available",
		},
		{
			name:        "discovery error",
			err:         &DiscoveryError{Dir: "/inbox", Err: fs.ErrNotExist},
			wantCode:    "ING002",
			wantMessage: "The inbox or archive folder is missing or unreadable",
		},
		{
			name:        "parse error without known cause",
			err:         &ParseError{File: "a.csv", Line: 4, Err: errors.New("bad row")},
			wantCode:    "ING003",
			wantMessage: "An export file could not be read",
		},
		{
			name:        "parse error with header cause",
			err:         &ParseError{File: "a.csv", Err: errors.New("header not found")},
			wantCode:    "FILE003",
			wantMessage: "Expected column headers were not found",
		},
		{
			name:        "move error",
			err:         &MoveError{File: "a.csv", Dest: "/archive", Err: fs.ErrPermission},
			wantCode:    "ING004",
			wantMessage: "Data was saved but the file could not be archived",
		},
		{
			name:        "persist error with connection cause",
			err:         &PersistError{Transient: true, Err: errors.New("dial tcp: connection refused")},
			wantCode:    "DB004",
			wantMessage: "Unable to connect to database",
		},
		{
			name:        "persist error without known cause",
			err:         &PersistError{Err: errors.New("column \"x\" does not exist")},
			wantCode:    "ING005",
			wantMessage: "The file's records could not be saved",
		},
		{
			name:        "job in progress",
			err:         &JobInProgressError{JobID: "abc"},
			wantCode:    "JOB002",
			wantMessage: "These folders are already being ingested",
		},
		{
			name:        "too many jobs",
			err:         ErrTooManyJobs,
			wantCode:    "JOB003",
			wantMessage: "Too many ingestion jobs are running",
		},
		{
			name:        "wrapped job not found",
			err:         fmt.Errorf("poll: %w", ErrJobNotFound),
			wantCode:    "JOB001",
			wantMessage: "Ingestion job not found",
		},
		{
			name:        "deadline exceeded",
			err:         context.DeadlineExceeded,
			wantCode:    "JOB006",
			wantMessage: "Request timed out",
		},
		{
			name:        "file too large",
			err:         errors.New("file too large: 200MB exceeds limit"),
			wantCode:    "FILE001",
			wantMessage: "File exceeds maximum size limit",
		},
		{
			name:        "rate limit",
			err:         errors.New("rate limit exceeded"),
			wantCode:    "RATE001",
			wantMessage: "Too many requests",
		},
		{
			name:        "unknown error returns default",
			err:         errors.New("some random internal error"),
			wantCode:    "ERR000",
			wantMessage: "An unexpected error occurred",
		},
		{
			name:        "case insensitive matching",
			err:         errors.New("DUPLICATE KEY value violates"),
			wantCode:    "DB001",
			wantMessage: "A record with this key already exists",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := MapError(tt.err)
			if got.Code != tt.wantCode {
				t.Errorf("MapError() code = %q, want %q", got.Code, tt.wantCode)
			}
			if got.Message != tt.wantMessage {
				t.Errorf("MapError() message = %q, want %q", got.Message, tt.wantMessage)
			}
		})
	}
}

func TestFormatUserError(t *testing.T) {
	result := FormatUserError(ErrTooManyJobs)

	expected := "Too many ingestion jobs are running (Code: JOB003). Please wait a moment and try again"
	if result != expected {
		t.Errorf("FormatUserError() = %q, want %q", result, expected)
	}
}

func TestIsUserFacing(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil error is not user facing", nil, false},
		{"known error is user facing", errors.New("duplicate key"), true},
		{"unknown error is not user facing", errors.New("random internal error xyz"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsUserFacing(tt.err); got != tt.want {
				t.Errorf("IsUserFacing() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestNewUserError(t *testing.T) {
	t.Run("nil error returns nil", func(t *testing.T) {
		if got := NewUserError(nil); got != nil {
			t.Errorf("NewUserError(nil) = %v, want nil", got)
		}
	})

	t.Run("wraps technical error with user message", func(t *testing.T) {
		techErr := errors.New("pq: duplicate key value")
		userErr := NewUserError(techErr)

		if userErr.Error() != "A record with this key already exists" {
			t.Errorf("Error() = %q, want user message", userErr.Error())
		}
		if !errors.Is(userErr, techErr) {
			t.Error("Unwrap() should return original error")
		}
	})
}

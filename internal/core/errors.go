package core

// errors.go defines the ingestion error taxonomy.
//
// Only DiscoveryError stops a job from being created. ParseError, PersistError
// and MoveError are recorded per file and counted in the job's failedCount;
// the run itself keeps going under the skip policy.

import (
	"errors"
	"fmt"
)

var (
	// ErrJobNotFound is returned when a job id is unknown or has been evicted.
	ErrJobNotFound = errors.New("job not found")

	// ErrUnknownAdapter is returned when Start names an unregistered adapter.
	ErrUnknownAdapter = errors.New("unknown adapter")

	// ErrJobInProgress is returned when the same source/archive pair is already being processed.
	ErrJobInProgress = errors.New("ingestion already running for these directories")

	// ErrTooManyJobs is returned when the service is at its concurrent job cap.
	ErrTooManyJobs = errors.New("too many ingestion jobs running, please try again later")

	// ErrShuttingDown is returned by Start once Shutdown has begun.
	ErrShuttingDown = errors.New("ingestion service is shutting down")
)

// DiscoveryError reports a missing or unreadable inbox/archive directory.
type DiscoveryError struct {
	Dir string
	Err error
}

func (e *DiscoveryError) Error() string {
	return fmt.Sprintf("discovery failed for %s: %v", e.Dir, e.Err)
}

func (e *DiscoveryError) Unwrap() error { return e.Err }

// ParseError reports malformed file content.
type ParseError struct {
	File string
	Line int // 0 when the error is not tied to a line
	Err  error
}

func (e *ParseError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("parse %s line %d: %v", e.File, e.Line, e.Err)
	}
	return fmt.Sprintf("parse %s: %v", e.File, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// PersistError reports a store failure. Transient errors are retried with
// backoff before the file is recorded as failed.
type PersistError struct {
	Transient bool
	Err       error
}

func (e *PersistError) Error() string {
	if e.Transient {
		return fmt.Sprintf("persist (transient): %v", e.Err)
	}
	return fmt.Sprintf("persist: %v", e.Err)
}

func (e *PersistError) Unwrap() error { return e.Err }

// MoveError reports a failed archive relocation. The file's records are
// already persisted; the file will be offered again by the next scan.
type MoveError struct {
	File string
	Dest string
	Err  error
}

func (e *MoveError) Error() string {
	return fmt.Sprintf("archive %s to %s: %v", e.File, e.Dest, e.Err)
}

func (e *MoveError) Unwrap() error { return e.Err }

// JobInProgressError carries the id of the job already holding the directories.
type JobInProgressError struct {
	JobID string
}

func (e *JobInProgressError) Error() string {
	return fmt.Sprintf("%v (job %s)", ErrJobInProgress, e.JobID)
}

func (e *JobInProgressError) Is(target error) bool { return target == ErrJobInProgress }

// IsTransient reports whether err is a PersistError worth retrying.
func IsTransient(err error) bool {
	var pe *PersistError
	return errors.As(err, &pe) && pe.Transient
}

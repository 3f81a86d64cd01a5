package core

// job.go is the per-job worker.
//
// One goroutine walks the pending list in order. Each file goes through
// read -> parse -> persist -> move without interruption; cancellation is only
// observed between files. currentIndex moves by exactly one per file whatever
// the outcome, and the file is archived only after its records committed.

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime/debug"
	"strings"
	"sync"
	"time"
)

type job struct {
	id     string
	key    string
	def    AdapterDefinition
	req    StartRequest
	files  []string
	policy ErrorPolicy

	progress *progress
	done     chan struct{}
	doneOnce sync.Once
	log      *slog.Logger
}

func newJob(id, key string, def AdapterDefinition, req StartRequest, files []string, policy ErrorPolicy, trigger string, started time.Time) *job {
	return &job{
		id:     id,
		key:    key,
		def:    def,
		req:    req,
		files:  files,
		policy: policy,
		progress: newProgress(Snapshot{
			JobID:      id,
			AdapterID:  def.Info.Key,
			SourceDir:  req.SourceDir,
			DestDir:    req.DestDir,
			Policy:     policy,
			Trigger:    trigger,
			Status:     StatusRunning,
			TotalFiles: len(files),
			StartedAt:  started,
		}),
		done: make(chan struct{}),
		log:  slog.Default(),
	}
}

// outcome builds the terminal snapshot for status without publishing it.
func (j *job) outcome(status JobStatus, lastErr string) Snapshot {
	snap := j.progress.load()
	finished := time.Now().UTC()
	snap.Status = status
	snap.CurrentFilename = ""
	snap.FinishedAt = &finished
	if lastErr != "" {
		snap.LastError = lastErr
	}
	return snap
}

// finish publishes final and releases waiters.
func (j *job) finish(final Snapshot) {
	j.progress.update(func(s *Snapshot) {
		s.Status = final.Status
		s.CurrentFilename = ""
		s.FinishedAt = final.FinishedAt
		s.LastError = final.LastError
	})
	j.doneOnce.Do(func() { close(j.done) })
}

// fileResult is the outcome of one file.
type fileResult struct {
	stage    FileStage
	inserted int
	updated  int
	err      error
}

// run drives the job to its end. History is recorded and the job's slot and
// directory claim are released before the terminal snapshot goes out, so a
// caller woken by it can start the next job straight away.
func (s *Service) run(j *job) {
	status, lastErr := s.loop(j)
	final := j.outcome(status, lastErr)

	j.log.Info("ingestion finished",
		"status", final.Status,
		"succeeded", final.SucceededCount,
		"failed", final.FailedCount,
		"rows_inserted", final.RowsInserted,
		"rows_updated", final.RowsUpdated,
		"duration_ms", final.FinishedAt.Sub(final.StartedAt).Milliseconds(),
	)

	s.record(j, final)
	s.limiter.Release()
	s.release(j.key, j.id)
	j.finish(final)
	s.cleanup(j.id, s.opts.JobRetention)
}

func (s *Service) loop(j *job) (status JobStatus, lastErr string) {
	defer func() {
		if r := recover(); r != nil {
			j.log.Error("ingestion worker panic", "panic", r, "stack", string(debug.Stack()))
			status, lastErr = StatusFailed, fmt.Sprintf("internal error: %v", r)
		}
	}()

	for _, name := range j.files {
		if j.progress.cancelling() {
			return StatusCancelled, ""
		}

		j.progress.update(func(snap *Snapshot) {
			snap.CurrentFilename = name
		})

		res := s.processFile(j, name)

		j.progress.update(func(snap *Snapshot) {
			snap.CurrentIndex++
			snap.CurrentFilename = ""
			if res.err == nil {
				snap.SucceededCount++
				snap.RowsInserted += res.inserted
				snap.RowsUpdated += res.updated
				return
			}
			snap.FailedCount++
			snap.LastError = failureMessage(name, res.err)
			snap.Failures = append(snap.Failures, FileFailure{
				FileName: name,
				Stage:    res.stage,
				Reason:   res.err.Error(),
			})
		})

		if res.err != nil && j.policy == PolicyHalt {
			return StatusFailed, failureMessage(name, res.err)
		}
	}

	if j.progress.cancelling() {
		return StatusCancelled, ""
	}
	return StatusCompleted, ""
}

// processFile runs one file to completion. It never returns early on
// cancellation; only Shutdown's hard stop can abort it.
func (s *Service) processFile(j *job, name string) fileResult {
	ctx, cancel := context.WithTimeout(s.hardCtx, s.opts.FileTimeout)
	defer cancel()

	path := filepath.Join(j.req.SourceDir, name)
	log := j.log.With("file", name)

	raw, err := readFile(path, name, s.opts.MaxFileSize)
	if err != nil {
		log.Warn("file failed", "stage", StageRead, "error", err)
		return fileResult{stage: StageRead, err: err}
	}

	records, err := parseFile(j.def, name, raw)
	if err != nil {
		log.Warn("file failed", "stage", StageParse, "error", err)
		return fileResult{stage: StageParse, err: err}
	}

	inserted, updated, err := s.persist(ctx, log, records)
	if err != nil {
		log.Warn("file failed", "stage", StagePersist, "error", err)
		return fileResult{stage: StagePersist, err: err}
	}

	if err := s.mover.Move(path, j.req.DestDir); err != nil {
		log.Error("records persisted but file not archived; the next scan will offer it again",
			"dest_dir", j.req.DestDir,
			"error", err,
		)
		return fileResult{stage: StageMove, err: err}
	}

	log.Debug("file ingested", "records", len(records), "inserted", inserted, "updated", updated)
	return fileResult{inserted: inserted, updated: updated}
}

func readFile(path, name string, maxSize int64) ([]byte, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if info.Size() > maxSize {
		return nil, &ParseError{File: name, Err: fmt.Errorf("file too large: %d bytes exceeds %dMB limit", info.Size(), maxSize/(1024*1024))}
	}
	return os.ReadFile(path)
}

// parseFile calls the adapter, turning a panic into a ParseError.
func parseFile(def AdapterDefinition, name string, raw []byte) (records []NormalizedRecord, err error) {
	defer func() {
		if r := recover(); r != nil {
			records = nil
			err = &ParseError{File: name, Err: fmt.Errorf("adapter panic: %v", r)}
		}
	}()

	records, err = def.Adapter.Parse(raw)
	if err != nil {
		var pe *ParseError
		if errors.As(err, &pe) {
			if pe.File == "" {
				pe.File = name
			}
			return nil, err
		}
		return nil, &ParseError{File: name, Err: err}
	}

	for i := range records {
		if records[i].Table == "" {
			records[i].Table = def.Info.Table
		}
	}
	return records, nil
}

// persist upserts every record of one file in a single unit, retrying the
// whole unit on transient store errors.
func (s *Service) persist(ctx context.Context, log *slog.Logger, records []NormalizedRecord) (inserted, updated int, err error) {
	if len(records) == 0 {
		return 0, 0, nil
	}

	err = retryTransient(ctx, s.opts.Retry, log, func() error {
		inserted, updated = 0, 0
		return asPersistError(s.store.InTx(ctx, func(u Upserter) error {
			for _, rec := range records {
				outcome, err := u.Upsert(ctx, rec)
				if err != nil {
					return err
				}
				if outcome == OutcomeInserted {
					inserted++
				} else {
					updated++
				}
			}
			return nil
		}))
	})
	if err != nil {
		return 0, 0, err
	}
	return inserted, updated, nil
}

func asPersistError(err error) error {
	if err == nil {
		return nil
	}
	var pe *PersistError
	if errors.As(err, &pe) {
		return err
	}
	return &PersistError{Err: err}
}

func failureMessage(name string, err error) string {
	msg := err.Error()
	if strings.Contains(msg, name) {
		return msg
	}
	return name + ": " + msg
}

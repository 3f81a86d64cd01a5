package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// DefaultMaxFileSize is the largest export a job will read (100MB).
const DefaultMaxFileSize int64 = 100 * 1024 * 1024

// DefaultFileTimeout bounds parse, persist and move for one file.
const DefaultFileTimeout = 5 * time.Minute

// DefaultJobRetention is how long a finished job stays pollable.
const DefaultJobRetention = 30 * time.Minute

// Options configures a Service. Zero values fall back to the defaults above.
type Options struct {
	Policy            ErrorPolicy
	MaxConcurrentJobs int
	MaxFileSize       int64
	FileTimeout       time.Duration
	Retry             RetryPolicy
	JobRetention      time.Duration

	// Filters replaces an adapter's registered scan filter, by adapter key.
	Filters map[string]ScanFilter

	// Recorder receives every terminal snapshot. When nil and the
	// Persistence also implements JobRecorder, the store is used.
	Recorder JobRecorder
	Logger   *slog.Logger
}

func (o Options) withDefaults() Options {
	if o.Policy == "" {
		o.Policy = PolicySkip
	}
	if o.MaxFileSize <= 0 {
		o.MaxFileSize = DefaultMaxFileSize
	}
	if o.FileTimeout <= 0 {
		o.FileTimeout = DefaultFileTimeout
	}
	if o.Retry == (RetryPolicy{}) {
		o.Retry = DefaultRetryPolicy
	}
	if o.JobRetention <= 0 {
		o.JobRetention = DefaultJobRetention
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	return o
}

// Service runs ingestion jobs. Every job is addressed by id; the service
// keeps no state shared between jobs other than the registries below.
type Service struct {
	store   Persistence
	opts    Options
	mover   *ArchiveMover
	limiter *JobLimiter

	// hardCtx is cancelled only when Shutdown gives up waiting; it aborts
	// in-flight persistence instead of waiting for a file boundary.
	hardCtx    context.Context
	hardCancel context.CancelFunc

	mu       sync.RWMutex
	jobs     map[string]*job
	flights  map[string]string // dirKey -> running job id
	shutdown bool
}

// NewService creates a Service that persists through store.
func NewService(store Persistence, opts Options) *Service {
	opts = opts.withDefaults()
	if opts.Recorder == nil {
		if rec, ok := store.(JobRecorder); ok {
			opts.Recorder = rec
		}
	}

	hardCtx, hardCancel := context.WithCancel(context.Background())

	return &Service{
		store:      store,
		opts:       opts,
		mover:      NewArchiveMover(),
		limiter:    NewJobLimiter(opts.MaxConcurrentJobs),
		hardCtx:    hardCtx,
		hardCancel: hardCancel,
		jobs:       make(map[string]*job),
		flights:    make(map[string]string),
	}
}

// Policy returns the error policy applied to every job of this service.
func (s *Service) Policy() ErrorPolicy {
	return s.opts.Policy
}

// ListAdapters returns display information for all registered adapters.
func (s *Service) ListAdapters() []AdapterInfo {
	defs := All()
	infos := make([]AdapterInfo, len(defs))
	for i, def := range defs {
		infos[i] = def.Info
	}
	return infos
}

// Start scans req.SourceDir and begins ingesting the pending files in the
// background. It returns as soon as the job is registered.
//
// A directory problem is returned as *DiscoveryError and no job is created.
// An empty inbox yields a job that is already Completed with zero files.
func (s *Service) Start(ctx context.Context, req StartRequest) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	def, ok := Get(req.AdapterID)
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownAdapter, req.AdapterID)
	}

	for _, dir := range []string{req.SourceDir, req.DestDir} {
		if err := requireDir(dir); err != nil {
			return "", err
		}
	}

	req.SourceDir = cleanDir(req.SourceDir)
	req.DestDir = cleanDir(req.DestDir)
	key := dirKey(req.SourceDir, req.DestDir)
	jobID := uuid.New().String()

	if err := s.claim(key, jobID); err != nil {
		return "", err
	}

	files, err := Enumerate(req.SourceDir, req.DestDir, s.filterFor(def))
	if err != nil {
		s.release(key, jobID)
		return "", err
	}

	trigger := TriggerFromContext(ctx)
	j := newJob(jobID, key, def, req, files, s.opts.Policy, trigger, time.Now().UTC())
	j.log = s.opts.Logger.With(
		"job_id", jobID,
		"adapter", def.Info.Key,
		"source_dir", req.SourceDir,
		"trigger", trigger,
	)

	if len(files) == 0 {
		final := j.outcome(StatusCompleted, "")
		s.record(j, final)
		s.release(key, jobID)
		j.finish(final)
		s.register(j)
		s.cleanup(jobID, s.opts.JobRetention)
		j.log.Info("no pending files", "dest_dir", req.DestDir)
		return jobID, nil
	}

	if !s.limiter.TryAcquire() {
		s.release(key, jobID)
		return "", ErrTooManyJobs
	}

	s.register(j)
	j.log.Info("ingestion started", "total_files", len(files), "policy", s.opts.Policy)

	go s.run(j)

	return jobID, nil
}

// Cancel asks a job to stop at its next file boundary. Cancelling a job
// that already finished is acknowledged and changes nothing.
func (s *Service) Cancel(jobID string) error {
	j, err := s.lookup(jobID)
	if err != nil {
		return err
	}
	if !j.progress.load().Status.Terminal() {
		j.log.Info("cancellation requested")
	}
	j.progress.requestCancel()
	return nil
}

// Poll returns the latest snapshot of a job without blocking its worker.
func (s *Service) Poll(jobID string) (Snapshot, error) {
	j, err := s.lookup(jobID)
	if err != nil {
		return Snapshot{}, err
	}
	return j.progress.load(), nil
}

// Wait blocks until the job is terminal or ctx ends and returns the latest snapshot.
func (s *Service) Wait(ctx context.Context, jobID string) (Snapshot, error) {
	j, err := s.lookup(jobID)
	if err != nil {
		return Snapshot{}, err
	}
	select {
	case <-j.done:
		return j.progress.load(), nil
	case <-ctx.Done():
		return j.progress.load(), ctx.Err()
	}
}

// Subscribe returns a channel of snapshots for jobID, starting with the
// current one. The channel is closed after the terminal snapshot; call the
// returned func to stop listening earlier.
func (s *Service) Subscribe(jobID string) (<-chan Snapshot, func(), error) {
	j, err := s.lookup(jobID)
	if err != nil {
		return nil, nil, err
	}
	ch, unsubscribe := j.progress.subscribe()
	return ch, unsubscribe, nil
}

// ListJobs returns a snapshot of every retained job, newest first.
func (s *Service) ListJobs() []Snapshot {
	s.mu.RLock()
	snaps := make([]Snapshot, 0, len(s.jobs))
	for _, j := range s.jobs {
		snaps = append(snaps, j.progress.load())
	}
	s.mu.RUnlock()

	sort.Slice(snaps, func(i, k int) bool {
		if !snaps[i].StartedAt.Equal(snaps[k].StartedAt) {
			return snaps[i].StartedAt.After(snaps[k].StartedAt)
		}
		return snaps[i].JobID < snaps[k].JobID
	})
	return snaps
}

// Preview lists the files a job would process without touching them.
func (s *Service) Preview(sourceDir, destDir, adapterID string) ([]string, error) {
	def, ok := Get(adapterID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownAdapter, adapterID)
	}
	return Enumerate(sourceDir, destDir, s.filterFor(def))
}

func (s *Service) filterFor(def AdapterDefinition) ScanFilter {
	if f, ok := s.opts.Filters[def.Info.Key]; ok {
		return f
	}
	return FilterFor(def)
}

// LimiterStatus reports how many job slots are in use.
func (s *Service) LimiterStatus() JobLimiterStatus {
	return s.limiter.Status()
}

// Shutdown refuses new jobs, cancels running ones at their next file
// boundary, and waits for them to finish. If ctx ends first, in-flight
// persistence is aborted (its transaction rolls back) and ctx.Err() is returned.
func (s *Service) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.shutdown = true
	running := make([]*job, 0, len(s.flights))
	for _, id := range s.flights {
		if j, ok := s.jobs[id]; ok {
			running = append(running, j)
		}
	}
	s.mu.Unlock()

	for _, j := range running {
		j.progress.requestCancel()
	}

	err := s.limiter.WaitForDrain(ctx)
	for _, j := range running {
		if err != nil {
			break
		}
		select {
		case <-j.done:
		case <-ctx.Done():
			err = ctx.Err()
		}
	}
	s.hardCancel()
	return err
}

// claim reserves the directory pair for jobID.
func (s *Service) claim(key, jobID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.shutdown {
		return ErrShuttingDown
	}
	if holder, busy := s.flights[key]; busy {
		return &JobInProgressError{JobID: holder}
	}
	s.flights[key] = jobID
	return nil
}

func (s *Service) release(key, jobID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.flights[key] == jobID {
		delete(s.flights, key)
	}
}

func (s *Service) register(j *job) {
	s.mu.Lock()
	s.jobs[j.id] = j
	stopping := s.shutdown
	s.mu.Unlock()

	// Shutdown began between claim and register.
	if stopping {
		j.progress.requestCancel()
	}
}

func (s *Service) lookup(jobID string) (*job, error) {
	s.mu.RLock()
	j, ok := s.jobs[jobID]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrJobNotFound, jobID)
	}
	return j, nil
}

// record writes the finished job to history.
func (s *Service) record(j *job, snap Snapshot) {
	if s.opts.Recorder == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.opts.Recorder.RecordJob(ctx, snap); err != nil && !errors.Is(err, context.Canceled) {
		j.log.Warn("failed to record job history", "error", err)
	}
}

// cleanup removes the job from tracking after a delay.
func (s *Service) cleanup(jobID string, delay time.Duration) {
	time.AfterFunc(delay, func() {
		s.mu.Lock()
		delete(s.jobs, jobID)
		s.mu.Unlock()
	})
}

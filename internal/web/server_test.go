package web

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/JonMunkholm/labingest/internal/config"
	"github.com/JonMunkholm/labingest/internal/core"
)

// ============================================================================
// Test doubles
// ============================================================================

// fakeStore keeps upserted rows and recorded jobs in memory.
type fakeStore struct {
	mu      sync.Mutex
	rows    map[string]core.NormalizedRecord
	history []core.Snapshot
	pingErr error
}

func newFakeStore() *fakeStore {
	return &fakeStore{rows: make(map[string]core.NormalizedRecord)}
}

func (f *fakeStore) InTx(ctx context.Context, fn func(core.Upserter) error) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return fn(f)
}

// Upsert is only called from inside InTx, which holds the lock.
func (f *fakeStore) Upsert(ctx context.Context, rec core.NormalizedRecord) (core.Outcome, error) {
	key := rec.Table + "/" + rec.NaturalKey()
	_, exists := f.rows[key]
	f.rows[key] = rec
	if exists {
		return core.OutcomeUpdated, nil
	}
	return core.OutcomeInserted, nil
}

func (f *fakeStore) RecordJob(ctx context.Context, snap core.Snapshot) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.history = append([]core.Snapshot{snap}, f.history...)
	return nil
}

func (f *fakeStore) History(ctx context.Context, limit int) ([]core.Snapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if limit > 0 && limit < len(f.history) {
		return append([]core.Snapshot(nil), f.history[:limit]...), nil
	}
	return append([]core.Snapshot(nil), f.history...), nil
}

func (f *fakeStore) Ping(ctx context.Context) error { return f.pingErr }

// lineRecords parses "id,value" lines.
func lineRecords(raw []byte) ([]core.NormalizedRecord, error) {
	var recs []core.NormalizedRecord
	for _, line := range strings.Split(string(raw), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		id, value, _ := strings.Cut(line, ",")
		recs = append(recs, core.NormalizedRecord{
			Table:  "samples",
			Key:    []core.Column{{Name: "sample_id", Value: id}},
			Fields: []core.Column{{Name: "value", Value: value}},
		})
	}
	return recs, nil
}

// blockingAdapter parses lines once release is closed.
func blockingAdapter(entered chan<- struct{}, release <-chan struct{}) core.FormatAdapter {
	return core.AdapterFunc(func(raw []byte) ([]core.NormalizedRecord, error) {
		entered <- struct{}{}
		<-release
		return lineRecords(raw)
	})
}

func registerAdapter(t *testing.T, key string, a core.FormatAdapter) {
	t.Helper()
	core.Clear()
	core.Register(core.AdapterDefinition{
		Info:       core.AdapterInfo{Key: key, Group: "Test", Label: "Test " + key, Table: "samples"},
		Extensions: []string{".csv"},
		KeyColumns: []string{"sample_id"},
		Adapter:    a,
	})
	t.Cleanup(core.Clear)
}

func testConfig() *config.Config {
	return &config.Config{
		Server: config.ServerConfig{RequestTimeout: 10 * time.Second},
		Rate:   config.RateLimitConfig{Enabled: false},
	}
}

type testEnv struct {
	srv     *Server
	service *core.Service
	store   *fakeStore
	inbox   string
	archive string
}

func newTestEnv(t *testing.T, cfg *config.Config) *testEnv {
	t.Helper()
	store := newFakeStore()
	service := core.NewService(store, core.Options{
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
		Retry:  core.RetryPolicy{MaxRetries: 1, InitialInterval: time.Millisecond, MaxInterval: time.Millisecond},
	})
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = service.Shutdown(ctx)
	})

	srv := NewServer(service, store, cfg)
	t.Cleanup(func() { _ = srv.Shutdown(context.Background()) })

	root := t.TempDir()
	env := &testEnv{
		srv:     srv,
		service: service,
		store:   store,
		inbox:   filepath.Join(root, "inbox"),
		archive: filepath.Join(root, "archive"),
	}
	for _, d := range []string{env.inbox, env.archive} {
		if err := os.Mkdir(d, 0o755); err != nil {
			t.Fatal(err)
		}
	}
	return env
}

func (e *testEnv) writeInbox(t *testing.T, name, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(e.inbox, name), []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func (e *testEnv) do(t *testing.T, method, target string, body any, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		r = strings.NewReader(b)
	default:
		data, err := json.Marshal(b)
		if err != nil {
			t.Fatal(err)
		}
		r = bytes.NewReader(data)
	}

	req := httptest.NewRequest(method, target, r)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rec := httptest.NewRecorder()
	e.srv.Router().ServeHTTP(rec, req)
	return rec
}

func (e *testEnv) startBody(adapter string) jobRequest {
	return jobRequest{SourceDir: e.inbox, DestDir: e.archive, Adapter: adapter}
}

func (e *testEnv) start(t *testing.T, adapter string) string {
	t.Helper()
	rec := e.do(t, http.MethodPost, "/api/jobs", e.startBody(adapter))
	if rec.Code != http.StatusAccepted {
		t.Fatalf("POST /api/jobs status = %d, body = %s", rec.Code, rec.Body)
	}
	var resp map[string]string
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	if resp["job_id"] == "" {
		t.Fatalf("POST /api/jobs returned no job_id: %v", resp)
	}
	return resp["job_id"]
}

func (e *testEnv) wait(t *testing.T, jobID string) core.Snapshot {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	snap, err := e.service.Wait(ctx, jobID)
	if err != nil {
		t.Fatalf("Wait(%s) = %v", jobID, err)
	}
	return snap
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	var resp ErrorResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode error body: %v (%s)", err, rec.Body)
	}
	return resp
}

// ============================================================================
// Job API
// ============================================================================

func TestStartAndPollJob(t *testing.T) {
	registerAdapter(t, "lines", core.AdapterFunc(lineRecords))
	env := newTestEnv(t, testConfig())
	env.writeInbox(t, "a.csv", "S1,10\nS2,20\n")
	env.writeInbox(t, "b.csv", "S3,30\n")

	jobID := env.start(t, "lines")
	env.wait(t, jobID)

	rec := env.do(t, http.MethodGet, "/api/jobs/"+jobID, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("GET status = %d, want 200", rec.Code)
	}
	var got jobResponse
	if err := json.NewDecoder(rec.Body).Decode(&got); err != nil {
		t.Fatal(err)
	}

	if got.Status != core.StatusCompleted {
		t.Errorf("Status = %q, want completed", got.Status)
	}
	if got.TotalFiles != 2 || got.SucceededCount != 2 || got.RowsInserted != 3 {
		t.Errorf("total/succeeded/inserted = %d/%d/%d, want 2/2/3", got.TotalFiles, got.SucceededCount, got.RowsInserted)
	}
	if got.Percent != 100 {
		t.Errorf("Percent = %d, want 100", got.Percent)
	}
	if got.Trigger != core.TriggerHTTP {
		t.Errorf("Trigger = %q, want %q", got.Trigger, core.TriggerHTTP)
	}
	if _, err := os.Stat(filepath.Join(env.archive, "a.csv")); err != nil {
		t.Errorf("a.csv not archived: %v", err)
	}
}

func TestStartJob_Errors(t *testing.T) {
	registerAdapter(t, "lines", core.AdapterFunc(lineRecords))
	env := newTestEnv(t, testConfig())

	tests := []struct {
		name       string
		body       any
		wantStatus int
		wantCode   string
	}{
		{"malformed json", "{", http.StatusBadRequest, "REQ001"},
		{"missing fields", jobRequest{Adapter: "lines"}, http.StatusBadRequest, "REQ001"},
		{"unknown adapter", env.startBody("nope"), http.StatusBadRequest, "ING001"},
		{"missing inbox", jobRequest{SourceDir: filepath.Join(env.inbox, "gone"), DestDir: env.archive, Adapter: "lines"}, http.StatusBadRequest, "ING002"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := env.do(t, http.MethodPost, "/api/jobs", tt.body)
			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d (%s)", rec.Code, tt.wantStatus, rec.Body)
			}
			if got := decodeError(t, rec); got.Code != tt.wantCode {
				t.Errorf("code = %q, want %q", got.Code, tt.wantCode)
			}
		})
	}

	if jobs := env.service.ListJobs(); len(jobs) != 0 {
		t.Errorf("rejected starts created %d jobs", len(jobs))
	}
}

func TestStartJob_ConflictReturnsRunningJob(t *testing.T) {
	entered, release := make(chan struct{}, 4), make(chan struct{})
	registerAdapter(t, "slow", blockingAdapter(entered, release))
	env := newTestEnv(t, testConfig())
	var once sync.Once
	releaseAll := func() { once.Do(func() { close(release) }) }
	t.Cleanup(releaseAll)
	env.writeInbox(t, "a.csv", "S1,1\n")

	first := env.start(t, "slow")
	<-entered

	rec := env.do(t, http.MethodPost, "/api/jobs", env.startBody("slow"))
	if rec.Code != http.StatusConflict {
		t.Fatalf("second start status = %d, want 409", rec.Code)
	}
	got := decodeError(t, rec)
	if got.Code != "JOB002" || got.JobID != first {
		t.Errorf("conflict = %+v, want JOB002 for %s", got, first)
	}

	releaseAll()
	env.wait(t, first)
}

func TestCancelJob(t *testing.T) {
	entered, release := make(chan struct{}, 4), make(chan struct{})
	registerAdapter(t, "slow", blockingAdapter(entered, release))
	env := newTestEnv(t, testConfig())
	var once sync.Once
	releaseAll := func() { once.Do(func() { close(release) }) }
	t.Cleanup(releaseAll)
	env.writeInbox(t, "a.csv", "S1,1\n")
	env.writeInbox(t, "b.csv", "S2,2\n")

	jobID := env.start(t, "slow")
	<-entered

	rec := env.do(t, http.MethodPost, "/api/jobs/"+jobID+"/cancel", nil)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("cancel status = %d, want 202", rec.Code)
	}
	var resp map[string]string
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	if resp["status"] != string(core.StatusCancelling) {
		t.Errorf("status = %q, want cancelling", resp["status"])
	}

	releaseAll()
	snap := env.wait(t, jobID)
	if snap.Status != core.StatusCancelled {
		t.Errorf("final status = %q, want cancelled", snap.Status)
	}
	if snap.SucceededCount != 1 {
		t.Errorf("SucceededCount = %d, want 1 (in-flight file finishes)", snap.SucceededCount)
	}

	// Cancelling a finished job is acknowledged and changes nothing.
	rec = env.do(t, http.MethodPost, "/api/jobs/"+jobID+"/cancel", nil)
	if rec.Code != http.StatusAccepted {
		t.Errorf("repeat cancel status = %d, want 202", rec.Code)
	}
}

func TestUnknownJob(t *testing.T) {
	env := newTestEnv(t, testConfig())

	for _, target := range []string{"/api/jobs/missing", "/api/jobs/missing/events"} {
		rec := env.do(t, http.MethodGet, target, nil)
		if rec.Code != http.StatusNotFound {
			t.Errorf("GET %s status = %d, want 404", target, rec.Code)
			continue
		}
		if got := decodeError(t, rec); got.Code != "JOB001" {
			t.Errorf("GET %s code = %q, want JOB001", target, got.Code)
		}
	}

	rec := env.do(t, http.MethodPost, "/api/jobs/missing/cancel", nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("cancel status = %d, want 404", rec.Code)
	}
}

func TestListJobsAndAdapters(t *testing.T) {
	registerAdapter(t, "lines", core.AdapterFunc(lineRecords))
	env := newTestEnv(t, testConfig())

	jobID := env.start(t, "lines") // empty inbox completes immediately

	rec := env.do(t, http.MethodGet, "/api/jobs", nil)
	var list struct {
		Jobs    []jobResponse         `json:"jobs"`
		Limiter core.JobLimiterStatus `json:"limiter"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&list); err != nil {
		t.Fatal(err)
	}
	if len(list.Jobs) != 1 || list.Jobs[0].JobID != jobID || list.Jobs[0].Status != core.StatusCompleted {
		t.Errorf("jobs = %+v, want one completed job %s", list.Jobs, jobID)
	}
	if list.Limiter.MaxConcurrent != core.DefaultMaxConcurrentJobs {
		t.Errorf("limiter max = %d, want %d", list.Limiter.MaxConcurrent, core.DefaultMaxConcurrentJobs)
	}

	rec = env.do(t, http.MethodGet, "/api/adapters", nil)
	var adapters []adapterResponse
	if err := json.NewDecoder(rec.Body).Decode(&adapters); err != nil {
		t.Fatal(err)
	}
	if len(adapters) != 1 || adapters[0].Key != "lines" || adapters[0].Table != "samples" {
		t.Errorf("adapters = %+v", adapters)
	}
	if len(adapters) == 1 && strings.Join(adapters[0].KeyColumns, ",") != "sample_id" {
		t.Errorf("KeyColumns = %v, want [sample_id]", adapters[0].KeyColumns)
	}
}

func TestPreview(t *testing.T) {
	registerAdapter(t, "lines", core.AdapterFunc(lineRecords))
	env := newTestEnv(t, testConfig())
	env.writeInbox(t, "b.csv", "S2,2\n")
	env.writeInbox(t, "a.csv", "S1,1\n")
	env.writeInbox(t, "notes.txt", "skip me")

	rec := env.do(t, http.MethodPost, "/api/preview", env.startBody("lines"))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body)
	}
	var resp struct {
		Files []string `json:"files"`
		Count int      `json:"count"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	if resp.Count != 2 || strings.Join(resp.Files, ",") != "a.csv,b.csv" {
		t.Errorf("preview = %+v, want [a.csv b.csv]", resp)
	}
	if _, err := os.Stat(filepath.Join(env.inbox, "a.csv")); err != nil {
		t.Error("preview moved a file")
	}
}

func TestHistory(t *testing.T) {
	env := newTestEnv(t, testConfig())
	env.store.history = []core.Snapshot{
		{JobID: "j2", Status: core.StatusFailed},
		{JobID: "j1", Status: core.StatusCompleted},
	}

	rec := env.do(t, http.MethodGet, "/api/history?limit=1", nil)
	var got []jobResponse
	if err := json.NewDecoder(rec.Body).Decode(&got); err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].JobID != "j2" {
		t.Errorf("history = %+v, want [j2]", got)
	}
}

// ============================================================================
// Health, auth, rate limiting
// ============================================================================

func TestHealth(t *testing.T) {
	env := newTestEnv(t, testConfig())

	rec := env.do(t, http.MethodGet, "/healthz", nil)
	if rec.Code != http.StatusOK {
		t.Errorf("healthy status = %d, want 200", rec.Code)
	}

	env.store.pingErr = errors.New("connection refused")
	rec = env.do(t, http.MethodGet, "/healthz", nil)
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("degraded status = %d, want 503", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "degraded") {
		t.Errorf("body = %s, want degraded", rec.Body)
	}
}

func TestAPIKeyProtectsAPIOnly(t *testing.T) {
	cfg := testConfig()
	cfg.Security = config.SecurityConfig{RequireAPIKey: true, APIKeys: []string{"k1"}}
	env := newTestEnv(t, cfg)

	if rec := env.do(t, http.MethodGet, "/api/jobs", nil); rec.Code != http.StatusUnauthorized {
		t.Errorf("without key status = %d, want 401", rec.Code)
	}
	if rec := env.do(t, http.MethodGet, "/api/jobs", nil, "X-API-Key", "k1"); rec.Code != http.StatusOK {
		t.Errorf("with key status = %d, want 200", rec.Code)
	}
	if rec := env.do(t, http.MethodGet, "/healthz", nil); rec.Code != http.StatusOK {
		t.Errorf("healthz status = %d, want 200", rec.Code)
	}
}

func TestStartRateLimit(t *testing.T) {
	registerAdapter(t, "lines", core.AdapterFunc(lineRecords))
	cfg := testConfig()
	cfg.Rate = config.RateLimitConfig{Enabled: true, RequestsPerMinute: 100, StartLimit: 1}
	env := newTestEnv(t, cfg)

	env.start(t, "lines")

	rec := env.do(t, http.MethodPost, "/api/jobs", env.startBody("lines"))
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("second start status = %d, want 429", rec.Code)
	}
	if rec.Header().Get("Retry-After") == "" {
		t.Error("missing Retry-After header")
	}
	if got := decodeError(t, rec); got.Code != "RATE001" {
		t.Errorf("code = %q, want RATE001", got.Code)
	}

	// Polling is not limited by the start budget.
	if rec := env.do(t, http.MethodGet, "/api/jobs", nil); rec.Code != http.StatusOK {
		t.Errorf("list status = %d, want 200", rec.Code)
	}
}

func TestSecurityHeaders(t *testing.T) {
	cfg := testConfig()
	cfg.Security.EnableCSP = true
	env := newTestEnv(t, cfg)

	rec := env.do(t, http.MethodGet, "/healthz", nil)
	for _, h := range []string{"X-Content-Type-Options", "X-Frame-Options", "Content-Security-Policy"} {
		if rec.Header().Get(h) == "" {
			t.Errorf("missing %s header", h)
		}
	}
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{core.ErrJobNotFound, http.StatusNotFound},
		{&core.JobInProgressError{JobID: "j"}, http.StatusConflict},
		{core.ErrTooManyJobs, http.StatusTooManyRequests},
		{core.ErrShuttingDown, http.StatusServiceUnavailable},
		{&core.DiscoveryError{Dir: "/in", Err: os.ErrNotExist}, http.StatusBadRequest},
		{badRequest("nope"), http.StatusBadRequest},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		if got := statusFor(tt.err); got != tt.want {
			t.Errorf("statusFor(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}
}

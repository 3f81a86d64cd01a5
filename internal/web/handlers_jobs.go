package web

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/JonMunkholm/labingest/internal/core"
)

// maxRequestBody bounds JSON request bodies.
const maxRequestBody = 64 * 1024

// jobRequest is the body of POST /api/jobs and POST /api/preview.
type jobRequest struct {
	SourceDir string `json:"source_dir"`
	DestDir   string `json:"dest_dir"`
	Adapter   string `json:"adapter"`
}

// jobResponse is a snapshot plus derived fields for clients.
type jobResponse struct {
	core.Snapshot
	Percent int `json:"percent"`
}

func newJobResponse(snap core.Snapshot) jobResponse {
	return jobResponse{Snapshot: snap, Percent: snap.Percent()}
}

type adapterResponse struct {
	Key             string   `json:"key"`
	Group           string   `json:"group"`
	Label           string   `json:"label"`
	Table           string   `json:"table"`
	Extensions      []string `json:"extensions"`
	ExcludePatterns []string `json:"exclude_patterns,omitempty"`
	KeyColumns      []string `json:"key_columns"`
}

// decodeJobRequest reads and validates a jobRequest body.
func decodeJobRequest(w http.ResponseWriter, r *http.Request) (jobRequest, error) {
	var req jobRequest
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBody)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return req, badRequest("invalid JSON body: %v", err)
	}

	req.SourceDir = strings.TrimSpace(req.SourceDir)
	req.DestDir = strings.TrimSpace(req.DestDir)
	req.Adapter = strings.TrimSpace(req.Adapter)

	var missing []string
	if req.SourceDir == "" {
		missing = append(missing, "source_dir")
	}
	if req.DestDir == "" {
		missing = append(missing, "dest_dir")
	}
	if req.Adapter == "" {
		missing = append(missing, "adapter")
	}
	if len(missing) > 0 {
		return req, badRequest("missing required fields: %s", strings.Join(missing, ", "))
	}
	return req, nil
}

// handleStartJob starts an ingestion run and returns its id immediately.
func (s *Server) handleStartJob(w http.ResponseWriter, r *http.Request) {
	req, err := decodeJobRequest(w, r)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	jobID, err := s.service.Start(withRequestMetadata(r, req.Adapter), core.StartRequest{
		SourceDir: req.SourceDir,
		DestDir:   req.DestDir,
		AdapterID: req.Adapter,
	})
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	w.Header().Set("Location", "/api/jobs/"+jobID)
	writeJSON(w, http.StatusAccepted, map[string]string{
		"job_id":     jobID,
		"status_url": "/api/jobs/" + jobID,
		"events_url": "/api/jobs/" + jobID + "/events",
	})
}

// handleListJobs returns every job still held in memory.
func (s *Server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	snaps := s.service.ListJobs()
	jobs := make([]jobResponse, len(snaps))
	for i, snap := range snaps {
		jobs[i] = newJobResponse(snap)
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"jobs":    jobs,
		"limiter": s.service.LimiterStatus(),
	})
}

// handlePollJob returns the latest snapshot of one job.
func (s *Server) handlePollJob(w http.ResponseWriter, r *http.Request) {
	snap, err := s.service.Poll(chi.URLParam(r, "jobID"))
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newJobResponse(snap))
}

// handleCancelJob requests cancellation. The job stops at its next file
// boundary, so the returned status is usually "cancelling".
func (s *Server) handleCancelJob(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobID")
	if err := s.service.Cancel(jobID); err != nil {
		s.respondError(w, r, err)
		return
	}

	snap, err := s.service.Poll(jobID)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{
		"job_id": jobID,
		"status": string(snap.Status),
	})
}

// handleListAdapters returns the registered instrument adapters.
func (s *Server) handleListAdapters(w http.ResponseWriter, r *http.Request) {
	defs := core.All()
	out := make([]adapterResponse, len(defs))
	for i, def := range defs {
		out[i] = adapterResponse{
			Key:             def.Info.Key,
			Group:           def.Info.Group,
			Label:           def.Info.Label,
			Table:           def.Info.Table,
			Extensions:      def.Extensions,
			ExcludePatterns: def.ExcludePatterns,
			KeyColumns:      def.KeyColumnNames(),
		}
	}
	writeJSON(w, http.StatusOK, out)
}

// handlePreview lists the files a run would ingest without touching them.
func (s *Server) handlePreview(w http.ResponseWriter, r *http.Request) {
	req, err := decodeJobRequest(w, r)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	files, err := s.service.Preview(req.SourceDir, req.DestDir, req.Adapter)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	if files == nil {
		files = []string{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"adapter": req.Adapter,
		"files":   files,
		"count":   len(files),
	})
}

// handleHistory returns finished jobs recorded by the store, newest first.
func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	jobs, err := s.history(r.Context(), parseIntParam(r, "limit", 0))
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	out := make([]jobResponse, len(jobs))
	for i, snap := range jobs {
		out[i] = newJobResponse(snap)
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) history(ctx context.Context, limit int) ([]core.Snapshot, error) {
	if s.store == nil {
		return nil, nil
	}
	return s.store.History(ctx, limit)
}

// handleHealth reports database reachability and job slot usage.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := http.StatusOK
	body := map[string]any{
		"status": "ok",
		"jobs":   s.service.LimiterStatus(),
	}

	if s.store != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.store.Ping(ctx); err != nil {
			status = http.StatusServiceUnavailable
			body["status"] = "degraded"
			body["database"] = err.Error()
		} else {
			body["database"] = "ok"
		}
	}

	writeJSON(w, status, body)
}

// parseIntParam parses a positive integer query parameter with a default value.
func parseIntParam(r *http.Request, name string, defaultVal int) int {
	val := r.URL.Query().Get(name)
	if val == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(val)
	if err != nil || i < 1 {
		return defaultVal
	}
	return i
}

package web

import (
	"net/http"

	"github.com/a-h/templ"
	"github.com/go-chi/chi/v5"

	"github.com/JonMunkholm/labingest/internal/logging"
	"github.com/JonMunkholm/labingest/internal/web/templates"
)

// dashboardHistory is how many recorded jobs the dashboard shows.
const dashboardHistory = 20

// handleDashboard renders the instrument list, live jobs and recent history.
func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	history, err := s.history(r.Context(), dashboardHistory)
	if err != nil {
		// The page is still useful without history.
		logging.FromContext(r.Context()).Warn("load job history", "error", err)
	}
	s.render(w, r, templates.Dashboard(s.service.ListAdapters(), s.service.ListJobs(), history))
}

// handleJobPage renders the progress page for one job.
func (s *Server) handleJobPage(w http.ResponseWriter, r *http.Request) {
	snap, err := s.service.Poll(chi.URLParam(r, "jobID"))
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	s.render(w, r, templates.JobPage(snap))
}

// handleJobPartial renders only the progress fragment for HTMX polling.
func (s *Server) handleJobPartial(w http.ResponseWriter, r *http.Request) {
	snap, err := s.service.Poll(chi.URLParam(r, "jobID"))
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	if snap.Status.Terminal() {
		// Tells HTMX to stop polling.
		w.Header().Set("HX-Trigger", "job-finished")
	}
	s.render(w, r, templates.JobProgress(snap))
}

// handleCancelFromPage backs the cancel button and returns to the job page.
func (s *Server) handleCancelFromPage(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobID")
	if err := s.service.Cancel(jobID); err != nil {
		s.respondError(w, r, err)
		return
	}
	http.Redirect(w, r, "/jobs/"+jobID, http.StatusSeeOther)
}

func (s *Server) render(w http.ResponseWriter, r *http.Request, c templ.Component) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := c.Render(r.Context(), w); err != nil {
		logging.FromContext(r.Context()).Error("failed to render template", "error", err)
	}
}

package web

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/JonMunkholm/labingest/internal/core"
	"github.com/JonMunkholm/labingest/internal/logging"
)

const (
	// sseKeepAlive is how often an idle event stream gets a comment line.
	sseKeepAlive = 15 * time.Second

	wsWriteWait  = 10 * time.Second
	wsPongWait   = 60 * time.Second
	wsPingPeriod = (wsPongWait * 9) / 10
)

// handleJobEvents streams job snapshots via Server-Sent Events.
//
// The event id is the job's currentIndex. A reconnecting client sends it
// back (Last-Event-ID header or lastEventId query parameter) and snapshots
// for files it has already seen are skipped.
func (s *Server) handleJobEvents(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobID")

	lastEventID := -1
	resume := r.Header.Get("Last-Event-ID")
	if resume == "" {
		resume = r.URL.Query().Get("lastEventId")
	}
	if resume != "" {
		if n, err := strconv.Atoi(resume); err == nil {
			lastEventID = n
		}
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		s.respondError(w, r, fmt.Errorf("streaming not supported"))
		return
	}

	updates, unsubscribe, err := s.service.Subscribe(jobID)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	defer unsubscribe()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	keepAlive := time.NewTicker(sseKeepAlive)
	defer keepAlive.Stop()

	var last core.Snapshot
	for {
		select {
		case snap, ok := <-updates:
			if !ok {
				// Closed after the terminal snapshot.
				data, _ := json.Marshal(newJobResponse(last))
				fmt.Fprintf(w, "id: %d\nevent: complete\ndata: %s\n\n", last.CurrentIndex, data)
				flusher.Flush()
				return
			}
			last = snap

			if snap.CurrentIndex < lastEventID && !snap.Status.Terminal() {
				continue
			}

			data, err := json.Marshal(newJobResponse(snap))
			if err != nil {
				logging.FromContext(r.Context()).Error("encode snapshot", "error", err, "job_id", jobID)
				return
			}
			fmt.Fprintf(w, "id: %d\nevent: progress\ndata: %s\n\n", snap.CurrentIndex, data)
			flusher.Flush()

		case <-keepAlive.C:
			fmt.Fprint(w, ": keep-alive\n\n")
			flusher.Flush()

		case <-r.Context().Done():
			return
		}
	}
}

// handleJobSocket pushes job snapshots over a websocket. The connection is
// closed with a normal closure after the terminal snapshot. Client messages
// are read only to process control frames; the text "cancel" cancels the job.
func (s *Server) handleJobSocket(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobID")
	logger := logging.WithFields(r.Context(), "job_id", jobID)

	// Look the job up first so an unknown id gets a JSON 404, not a failed upgrade.
	updates, unsubscribe, err := s.service.Subscribe(jobID)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	defer unsubscribe()

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Warn("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	clientGone := make(chan struct{})
	go s.readSocket(conn, jobID, clientGone)

	ping := time.NewTicker(wsPingPeriod)
	defer ping.Stop()

	for {
		select {
		case snap, ok := <-updates:
			if !ok {
				_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
				_ = conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, "job finished"))
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteJSON(newJobResponse(snap)); err != nil {
				logger.Debug("websocket write failed", "error", err)
				return
			}

		case <-ping.C:
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-clientGone:
			return
		}
	}
}

// readSocket drains client frames until the connection fails.
func (s *Server) readSocket(conn *websocket.Conn, jobID string, done chan<- struct{}) {
	defer close(done)

	conn.SetReadLimit(512)
	_ = conn.SetReadDeadline(time.Now().Add(wsPongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return
		}
		if string(msg) == "cancel" {
			_ = s.service.Cancel(jobID)
		}
	}
}

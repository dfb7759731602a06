package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/CR94168/learn-claude-code-cli/internal/logging"
)

const (
	// SSEHeartbeatInterval is the interval for SSE heartbeats.
	SSEHeartbeatInterval = 30 * time.Second
)

// sseWriter wraps http.ResponseWriter for SSE.
type sseWriter struct {
	w       http.ResponseWriter
	flusher http.Flusher
	rc      *http.ResponseController
}

// newSSEWriter creates a new SSE writer.
func newSSEWriter(w http.ResponseWriter) (*sseWriter, error) {
	rc := http.NewResponseController(w)

	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, fmt.Errorf("streaming not supported")
	}

	return &sseWriter{w: w, flusher: flusher, rc: rc}, nil
}

// writeEvent writes one SSE event whose data is already JSON.
func (s *sseWriter) writeEvent(eventType string, data json.RawMessage) error {
	if _, err := fmt.Fprintf(s.w, "event: %s\ndata: %s\n\n", eventType, data); err != nil {
		return err
	}
	if flushErr := s.rc.Flush(); flushErr != nil {
		s.flusher.Flush()
	}
	return nil
}

// writeHeartbeat writes an SSE heartbeat comment.
func (s *sseWriter) writeHeartbeat() {
	fmt.Fprintf(s.w, ": heartbeat\n\n")
	s.flusher.Flush()
}

// streamedEvent is the part of a streamed event the filter reads.
type streamedEvent struct {
	Data struct {
		RunID string `json:"runID"`
	} `json:"data"`
}

// belongsToRun reports whether a streamed event concerns runID. Events
// without a run, such as registry reloads, go to every stream.
func belongsToRun(payload json.RawMessage, runID string) bool {
	if runID == "" {
		return true
	}
	var e streamedEvent
	if err := json.Unmarshal(payload, &e); err != nil {
		return false
	}
	return e.Data.RunID == "" || e.Data.RunID == runID
}

// events handles GET /event. The optional runID query parameter restricts
// the stream to one run.
func (srv *Server) events(w http.ResponseWriter, r *http.Request) {
	runID := r.URL.Query().Get("runID")

	sse, err := newSSEWriter(w)
	if err != nil {
		writeError(w, http.StatusInternalServerError, ErrCodeInternalError, err.Error())
		return
	}

	stream, err := srv.svc.Bus().Stream(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, ErrCodeInternalError, err.Error())
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // Disable nginx buffering

	// Explicitly write status and flush headers immediately
	w.WriteHeader(http.StatusOK)
	sse.flusher.Flush()

	if err := sse.writeEvent("message", json.RawMessage(`{"type":"server.connected","data":{}}`)); err != nil {
		return
	}

	ticker := time.NewTicker(SSEHeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case payload, ok := <-stream:
			if !ok {
				return
			}
			if !belongsToRun(payload, runID) {
				continue
			}
			if err := sse.writeEvent("message", payload); err != nil {
				logging.Debug().Err(err).Msg("SSE client gone")
				return
			}
		case <-ticker.C:
			sse.writeHeartbeat()
		}
	}
}

package server

import (
	"log/slog"
	"net/http"

	"github.com/echotrail-io/echotrail/internal/protocol"
)

// streamSSE runs the chain and delivers each event as a server-sent
// events frame, flushing immediately. The request context cancels the
// run when the client disconnects.
func (s *Server) streamSSE(w http.ResponseWriter, r *http.Request, params runParams) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		s.writeError(w, &requestError{http.StatusInternalServerError, "streaming not supported"})
		return
	}

	run, rerr := s.startRun(r.Context(), params)
	if rerr != nil {
		s.writeError(w, rerr)
		return
	}

	log := s.logger.With(slog.String("run_id", run.ID))
	log.Info("streaming run",
		slog.Int("participants", params.participants),
		slog.String("tts", params.synthKey),
		slog.String("asr", params.recogKey))

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for ev := range run.Events {
		frame, err := protocol.EncodeSSE(ev)
		if err != nil {
			log.Error("failed to encode event", slog.String("error", err.Error()))
			return
		}
		if _, err := w.Write(frame); err != nil {
			// client went away; the request context will stop the run
			log.Info("client disconnected mid-stream")
			return
		}
		flusher.Flush()
		s.publish(run.ID, ev)
	}
}

package server

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/echotrail-io/echotrail/internal/protocol"
)

const wsWriteTimeout = 10 * time.Second

// handleWebSocket serves the same run event sequence over a websocket:
// the client sends one start request as its first text message, the
// server replies with one JSON event per message and then closes.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	upgrader := websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			return s.originAllowed(r.Header.Get("Origin"))
		},
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", slog.String("error", err.Error()))
		return
	}
	defer conn.Close()

	var req startRequest
	if err := conn.ReadJSON(&req); err != nil {
		s.closeWS(conn, websocket.CloseInvalidFramePayloadData, "invalid start request")
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		s.closeWS(conn, websocket.ClosePolicyViolation, "provide 'text' in start request")
		return
	}

	params, rerr := s.resolveParams(req.NumChildren, req.TTSModel, req.ASRModel, req.Text)
	if rerr != nil {
		s.closeWS(conn, websocket.ClosePolicyViolation, rerr.message)
		return
	}

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	// the client sends nothing further; reads only detect disconnect
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	run, rerr := s.startRun(ctx, params)
	if rerr != nil {
		s.closeWS(conn, websocket.ClosePolicyViolation, rerr.message)
		return
	}

	log := s.logger.With(slog.String("run_id", run.ID))
	log.Info("streaming run over websocket", slog.Int("participants", params.participants))

	for ev := range run.Events {
		data, err := protocol.Encode(ev)
		if err != nil {
			log.Error("failed to encode event", slog.String("error", err.Error()))
			return
		}
		conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
		if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
			log.Info("websocket client disconnected mid-stream")
			return
		}
		s.publish(run.ID, ev)
	}

	s.closeWS(conn, websocket.CloseNormalClosure, "")
}

func (s *Server) closeWS(conn *websocket.Conn, code int, reason string) {
	conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason))
}

func (s *Server) originAllowed(origin string) bool {
	if origin == "" {
		return true
	}
	for _, allowed := range s.cfg.HTTP.AllowedOrigins {
		if allowed == "*" || allowed == origin {
			return true
		}
	}
	return false
}

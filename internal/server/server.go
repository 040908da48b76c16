package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/echotrail-io/echotrail/internal/bus"
	"github.com/echotrail-io/echotrail/internal/chain"
	"github.com/echotrail-io/echotrail/internal/config"
	"github.com/echotrail-io/echotrail/internal/protocol"
	"github.com/echotrail-io/echotrail/internal/registry"
	"github.com/echotrail-io/echotrail/internal/stt"
	"github.com/echotrail-io/echotrail/internal/tts"
)

const maxUploadBytes = 32 << 20 // 32 MiB

// Server exposes the game API: request intake, backend resolution, and
// streaming delivery of run events.
type Server struct {
	cfg      config.Config
	registry *registry.Registry
	runner   *chain.Runner
	mirror   *bus.Client
	logger   *slog.Logger
}

func New(cfg config.Config, reg *registry.Registry, runner *chain.Runner, mirror *bus.Client, log *slog.Logger) *Server {
	return &Server{
		cfg:      cfg,
		registry: reg,
		runner:   runner,
		mirror:   mirror,
		logger:   log.With(slog.String("component", "api")),
	}
}

// Routes returns the API handler with middleware applied.
func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/game/start", s.handleStart)
	mux.HandleFunc("/api/game/start/json", s.handleStartJSON)
	mux.HandleFunc("/api/game/ws", s.handleWebSocket)
	mux.HandleFunc("/api/models", s.handleModels)
	return s.withMiddleware(mux)
}

// runParams is a fully validated run request: backends resolved, text
// present, participant count inside the configured bound.
type runParams struct {
	participants int
	synthKey     string
	recogKey     string
	synth        tts.Synthesizer
	recog        stt.Recognizer
	text         string
}

type startRequest struct {
	NumChildren int    `json:"num_children"`
	TTSModel    string `json:"tts_model"`
	ASRModel    string `json:"asr_model"`
	Text        string `json:"text"`
}

type requestError struct {
	status  int
	message string
}

func (e *requestError) Error() string { return e.message }

func badRequest(format string, args ...any) *requestError {
	return &requestError{status: http.StatusBadRequest, message: fmt.Sprintf(format, args...)}
}

func (s *Server) handleStartJSON(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeError(w, &requestError{http.StatusMethodNotAllowed, "method not allowed"})
		return
	}

	var req startRequest
	body := http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := json.NewDecoder(body).Decode(&req); err != nil {
		s.writeError(w, badRequest("invalid JSON body: %v", err))
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		s.writeError(w, badRequest("provide 'text' in body"))
		return
	}

	params, rerr := s.resolveParams(req.NumChildren, req.TTSModel, req.ASRModel, req.Text)
	if rerr != nil {
		s.writeError(w, rerr)
		return
	}
	s.streamSSE(w, r, params)
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeError(w, &requestError{http.StatusMethodNotAllowed, "method not allowed"})
		return
	}
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		s.writeError(w, badRequest("invalid multipart form: %v", err))
		return
	}

	numChildren := s.cfg.Game.DefaultParticipants
	if v := r.FormValue("num_children"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil {
			s.writeError(w, badRequest("num_children must be an integer"))
			return
		}
		numChildren = parsed
	}
	ttsModel := r.FormValue("tts_model")
	asrModel := r.FormValue("asr_model")
	text := strings.TrimSpace(r.FormValue("text"))

	file, header, err := r.FormFile("audio")
	hasAudio := err == nil
	if hasAudio {
		defer file.Close()
	}

	switch {
	case text == "" && !hasAudio:
		s.writeError(w, badRequest("provide either 'text' or 'audio' file"))
		return
	case text != "" && hasAudio:
		s.writeError(w, badRequest("provide either 'text' or 'audio', not both"))
		return
	}

	if hasAudio {
		text, err = s.transcribeUpload(r.Context(), asrModel, file, header.Header.Get("Content-Type"))
		if err != nil {
			var rerr *requestError
			if errors.As(err, &rerr) {
				s.writeError(w, rerr)
			} else {
				s.writeError(w, badRequest("transcription failed: %v", err))
			}
			return
		}
	}

	params, rerr := s.resolveParams(numChildren, ttsModel, asrModel, text)
	if rerr != nil {
		s.writeError(w, rerr)
		return
	}
	s.streamSSE(w, r, params)
}

// transcribeUpload turns an uploaded clip into the starting message.
// No detected speech is a request error, not a silent empty game.
func (s *Server) transcribeUpload(ctx context.Context, asrModel string, file io.Reader, mediaType string) (string, error) {
	if asrModel == "" {
		asrModel = s.cfg.Game.DefaultRecognition
	}
	recog, err := s.registry.ResolveRecognizer(asrModel)
	if err != nil {
		return "", badRequest("%v", err)
	}

	audio, err := io.ReadAll(io.LimitReader(file, maxUploadBytes))
	if err != nil {
		return "", fmt.Errorf("read upload: %w", err)
	}
	if mediaType == "" {
		mediaType = "audio/wav"
	}

	transcript, err := recog.Transcribe(ctx, audio, mediaType)
	if err != nil {
		return "", badRequest("transcription failed: %v", err)
	}
	if strings.TrimSpace(transcript.Text) == "" {
		return "", badRequest("no speech detected in audio")
	}
	return transcript.Text, nil
}

// resolveParams applies defaults, checks bounds, and resolves both
// backends. All failures here reject the request before any event.
func (s *Server) resolveParams(numChildren int, ttsModel, asrModel, text string) (runParams, *requestError) {
	if numChildren == 0 {
		numChildren = s.cfg.Game.DefaultParticipants
	}
	if numChildren < 1 || numChildren > s.cfg.Game.MaxParticipants {
		return runParams{}, badRequest("num_children must be between 1 and %d", s.cfg.Game.MaxParticipants)
	}
	if ttsModel == "" {
		ttsModel = s.cfg.Game.DefaultSynthesis
	}
	if asrModel == "" {
		asrModel = s.cfg.Game.DefaultRecognition
	}

	synth, err := s.registry.ResolveSynthesizer(ttsModel)
	if err != nil {
		return runParams{}, badRequest("%v", err)
	}
	recog, err := s.registry.ResolveRecognizer(asrModel)
	if err != nil {
		return runParams{}, badRequest("%v", err)
	}
	if strings.TrimSpace(text) == "" {
		return runParams{}, badRequest("initial text is empty")
	}

	return runParams{
		participants: numChildren,
		synthKey:     ttsModel,
		recogKey:     asrModel,
		synth:        synth,
		recog:        recog,
		text:         text,
	}, nil
}

func (s *Server) startRun(ctx context.Context, params runParams) (*chain.Run, *requestError) {
	run, err := s.runner.Run(ctx, params.participants, params.synth, params.recog, params.text)
	if err != nil {
		if errors.Is(err, chain.ErrEmptyMessage) || errors.Is(err, chain.ErrInvalidParticipants) {
			return nil, badRequest("%v", err)
		}
		return nil, &requestError{http.StatusInternalServerError, err.Error()}
	}
	return run, nil
}

func (s *Server) handleModels(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, &requestError{http.StatusMethodNotAllowed, "method not allowed"})
		return
	}
	s.writeJSON(w, http.StatusOK, map[string][]string{
		"tts": s.registry.SynthesizerKeys(),
		"asr": s.registry.RecognizerKeys(),
	})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Warn("failed to write response", slog.String("error", err.Error()))
	}
}

func (s *Server) writeError(w http.ResponseWriter, rerr *requestError) {
	s.writeJSON(w, rerr.status, map[string]string{"detail": rerr.message})
}

// publish mirrors one event to the bus when mirroring is on.
func (s *Server) publish(runID string, ev protocol.Event) {
	if s.mirror != nil {
		s.mirror.PublishEvent(runID, ev)
	}
}

package runtime

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/echotrail-io/echotrail/internal/bus"
	"github.com/echotrail-io/echotrail/internal/chain"
	"github.com/echotrail-io/echotrail/internal/config"
	"github.com/echotrail-io/echotrail/internal/natsserver"
	"github.com/echotrail-io/echotrail/internal/registry"
	"github.com/echotrail-io/echotrail/internal/server"
	"github.com/echotrail-io/echotrail/internal/tts"
)

// Runtime wires the service together: telemetry, optional event
// mirror, backend registry, chain runner, and the HTTP server.
type Runtime struct {
	cfg         config.Config
	logger      *slog.Logger
	httpServer  *http.Server
	tracerClose func(context.Context) error
	ready       atomic.Bool
	wg          sync.WaitGroup
}

func New(cfg config.Config, logger *slog.Logger) *Runtime {
	return &Runtime{
		cfg:    cfg,
		logger: logger,
	}
}

func (r *Runtime) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	shutdownTelemetry, metricsHandler, err := setupTelemetry(r.cfg, r.logger)
	if err != nil {
		return fmt.Errorf("failed to setup telemetry: %w", err)
	}
	r.tracerClose = shutdownTelemetry

	var mirror *bus.Client
	var embedded *natsserver.EmbeddedServer
	if r.cfg.Bus.Enabled {
		embedded, err = natsserver.Start(r.cfg.Bus, r.logger)
		if err != nil {
			return fmt.Errorf("failed to start embedded bus: %w", err)
		}
		busCfg := r.cfg.Bus
		if embedded != nil {
			busCfg.Servers = []string{fmt.Sprintf("nats://localhost:%d", busCfg.Port)}
		}
		mirror, err = bus.Connect(busCfg, r.logger)
		if err != nil {
			return fmt.Errorf("failed to connect event mirror: %w", err)
		}
		defer mirror.Close()
	}
	if embedded != nil {
		defer embedded.Shutdown()
	}

	var cache *tts.ClipCache
	if r.cfg.TTS.Cache.Enabled {
		cache, err = tts.OpenClipCache(ctx, r.cfg.TTS.Cache.Path, r.logger)
		if err != nil {
			return fmt.Errorf("failed to open clip cache: %w", err)
		}
		defer cache.Close()
	}

	reg, err := registry.FromConfig(r.cfg, cache, r.logger)
	if err != nil {
		return fmt.Errorf("failed to build backend registry: %w", err)
	}

	runner := chain.NewRunner(time.Duration(r.cfg.Game.StepTimeoutMS)*time.Millisecond, r.logger)
	api := server.New(r.cfg, reg, runner, mirror, r.logger)

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", r.handleHealth)
	mux.HandleFunc("/readyz", r.handleReady)
	if metricsHandler != nil {
		mux.Handle("/metrics", metricsHandler)
	}
	mux.Handle("/api/", api.Routes())

	addr := fmt.Sprintf("%s:%d", r.cfg.HTTP.Bind, r.cfg.HTTP.Port)
	r.httpServer = &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		if err := r.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			r.logger.Error("http server failed", slog.String("error", err.Error()))
		}
	}()

	r.ready.Store(true)
	r.logger.Info("runtime started", slog.String("addr", addr))

	<-ctx.Done()
	r.logger.Info("runtime stopping")
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShutdown()
	if err := r.httpServer.Shutdown(shutdownCtx); err != nil {
		r.logger.Error("http shutdown error", slog.String("error", err.Error()))
	}
	r.wg.Wait()

	if r.tracerClose != nil {
		if err := r.tracerClose(shutdownCtx); err != nil {
			r.logger.Error("telemetry shutdown error", slog.String("error", err.Error()))
		}
	}

	return nil
}

func (r *Runtime) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (r *Runtime) handleReady(w http.ResponseWriter, _ *http.Request) {
	if r.ready.Load() {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
		return
	}
	w.WriteHeader(http.StatusServiceUnavailable)
	_, _ = w.Write([]byte("not ready"))
}

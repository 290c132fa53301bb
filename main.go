package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/time/rate"

	"gojuon-server/config"
	"gojuon-server/dashscope"
	"gojuon-server/handlers"
	"gojuon-server/metrics"
	"gojuon-server/websocket"
)

func main() {
	configPath := flag.String("config", "", "path to a YAML config file")
	flag.Parse()

	// .env is optional, real environment variables win
	envErr := godotenv.Load()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "err", err)
		os.Exit(1)
	}

	logger := newLogger(cfg.Log)
	slog.SetDefault(logger)

	if envErr != nil {
		logger.Debug("no .env file loaded", "err", envErr)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("server failed", "err", err)
		os.Exit(1)
	}
}

func newLogger(cfg config.LogConfig) *slog.Logger {
	opts := &slog.HandlerOptions{Level: cfg.SlogLevel()}

	if strings.EqualFold(cfg.Format, "json") {
		return slog.New(slog.NewJSONHandler(os.Stdout, opts))
	}

	return slog.New(slog.NewTextHandler(os.Stdout, opts))
}

func newSynthesizer(cfg *config.TTSConfig, logger *slog.Logger) *dashscope.Client {
	options := []dashscope.Option{
		dashscope.WithHTTPClient(&http.Client{Timeout: cfg.Timeout}),
		dashscope.WithMaxResponseBytes(cfg.MaxResponseBytes),
		dashscope.WithLogger(logger),
	}

	if cfg.RateLimit != nil {
		limit := *cfg.RateLimit
		options = append(options, dashscope.WithLimiter(rate.NewLimiter(rate.Limit(limit), max(1, int(limit)))))
	}

	return dashscope.NewClient(cfg.Endpoint, cfg.Model, options...)
}

func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	deps := routerDeps{
		cfg:    cfg,
		logger: logger,
	}

	if cfg.Metrics.Enabled {
		registry := prometheus.NewRegistry()
		registry.MustRegister(collectors.NewGoCollector())
		registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		metrics.Register(registry)

		deps.registry = registry
	}

	ttsLogger := logger.With("component", "tts")
	deps.tts = handlers.NewTTSProxy(&cfg.TTS, newSynthesizer(&cfg.TTS, ttsLogger), ttsLogger)
	deps.static = handlers.NewStaticFiles(&cfg.Static, logger.With("component", "static"))

	if cfg.LiveReload.Enabled {
		hub := websocket.NewHub(logger.With("component", "livereload"))
		defer hub.Close()

		watcher, err := websocket.NewAssetWatcher(cfg.Static.Root, hub, logger.With("component", "watcher"))
		if err != nil {
			return err
		}
		defer watcher.Close()

		deps.hub = hub
	}

	srv := &http.Server{
		Addr:              cfg.Server.Address,
		Handler:           newRouter(deps),
		ReadHeaderTimeout: cfg.Server.ReadHeaderTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	logger.Info("server running", "url", localURL(cfg.Server.Address), "static_root", cfg.Static.Root)
	if cfg.TTS.APIKey == "" {
		logger.Info("no default API key, set " + config.EnvAPIKey + " or send apiKey with each request")
	}

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil

	case <-ctx.Done():
	}

	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	return srv.Shutdown(shutdownCtx)
}

// localURL turns a listen address into a clickable URL for the banner
func localURL(addr string) string {
	if len(addr) > 0 && addr[0] == ':' {
		return "http://localhost" + addr
	}

	return "http://" + addr
}

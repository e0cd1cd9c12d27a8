package main

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"

	"nexus-voice/internal/common/pagination"
	"nexus-voice/internal/config"
	"nexus-voice/internal/domain/entity"
	"nexus-voice/internal/infra/asr"
	"nexus-voice/internal/infra/chat"
	"nexus-voice/internal/infra/db"
	"nexus-voice/internal/infra/tts"
	"nexus-voice/internal/infra/worker"
	grpcserver "nexus-voice/internal/interface/grpc"
	"nexus-voice/internal/observability/logging"
	"nexus-voice/internal/observability/slo"
	"nexus-voice/internal/observability/tracing"
	pkgconfig "nexus-voice/internal/pkg/config"
	"nexus-voice/internal/resilience/health"
	"nexus-voice/internal/usecase/notify"
	"nexus-voice/internal/usecase/recovery"
	"nexus-voice/internal/usecase/synthesis"

	hhttp "nexus-voice/internal/handler/http"
	hconv "nexus-voice/internal/handler/http/conversation"
	hhistory "nexus-voice/internal/handler/http/history"
	"nexus-voice/internal/handler/http/middleware"
	"nexus-voice/internal/handler/http/requestid"
	hsystem "nexus-voice/internal/handler/http/system"
	hvoice "nexus-voice/internal/handler/http/voice"
)

func main() {
	logger := logging.NewLogger()
	slog.SetDefault(logger)

	cfgMetrics := pkgconfig.NewMetrics(prometheus.DefaultRegisterer)
	cfg := config.LoadAppConfig(logger, cfgMetrics)
	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", slog.Any("error", err))
		os.Exit(1)
	}

	shutdownTracer := tracing.InitTracer("nexus-voice", tracing.WithSampleRatio(cfg.TraceSampleRatio))
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracer(ctx); err != nil {
			logger.Error("failed to shut down tracer", slog.Any("error", err))
		}
	}()

	version := getVersion()
	app, err := buildApp(logger, cfg, cfgMetrics, prometheus.DefaultRegisterer)
	if err != nil {
		logger.Error("failed to initialise", slog.Any("error", err))
		os.Exit(1)
	}
	defer app.close(logger)

	if err := run(logger, cfg, cfgMetrics, app, version); err != nil {
		logger.Error("server stopped with error", slog.Any("error", err))
		os.Exit(1)
	}
}

// getVersion returns the application version from environment or default.
func getVersion() string {
	version := os.Getenv("VERSION")
	if version == "" {
		version = "dev"
	}
	return version
}

// components holds everything run and the router need.
type components struct {
	monitor     *health.Monitor
	pipeline    *synthesis.Pipeline
	store       *db.Manager
	chat        *chat.Service
	asr         *asr.Service
	coordinator *recovery.Coordinator
	grpcHealth  *grpcserver.HealthServer
	scheduler   *worker.Scheduler
	alerts      *notify.Service
	watcher     *notify.Watcher
	pages       pagination.Config
}

func (c *components) close(logger *slog.Logger) {
	if c.store == nil {
		return
	}
	if err := c.store.Close(); err != nil {
		logger.Error("failed to close database", slog.Any("error", err))
	}
}

// buildApp wires the capabilities to the monitor and the coordinator.
// Storage, chat and recognition are optional: a missing DATABASE_URL,
// chat key or ASR_URL leaves that capability without a backend.
func buildApp(logger *slog.Logger, cfg *config.AppConfig, cfgMetrics *pkgconfig.Metrics, reg prometheus.Registerer) (*components, error) {
	opts := []health.Option{
		health.WithRecorder(health.NewPrometheusRecorder(reg)),
		health.WithLogger(logger),
	}
	if sampler, err := health.NewProcSampler(cfg.DiskPath); err != nil {
		logger.Warn("system stats disabled", slog.Any("error", err))
	} else {
		opts = append(opts, health.WithSystemSampler(sampler))
	}
	monitor := health.NewMonitor(cfg.Monitor, opts...)
	monitor.SetAutoRecovery(cfg.AutoRecovery)

	c := &components{
		monitor:    monitor,
		grpcHealth: grpcserver.NewHealthServer(logger),
		pages:      pagination.LoadConfig(logger, cfgMetrics),
	}

	catalog, err := config.LoadVoiceCatalog(cfg.VoiceCatalogFile)
	if err != nil {
		return nil, err
	}
	engine, err := tts.NewHTTPEngine(tts.DefaultConfig(cfg.TTSURL), nil)
	if err != nil {
		return nil, err
	}
	c.pipeline, err = synthesis.NewPipeline(engine, monitor, cfg.Synthesis,
		synthesis.WithCatalog(catalog),
		synthesis.WithMetrics(synthesis.NewMetrics(reg)),
		synthesis.WithLogger(logger))
	if err != nil {
		return nil, err
	}

	if dbCfg := db.ConnectionConfigFromEnv(); dbCfg.DSN != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		database, err := db.Open(ctx, dbCfg)
		if err != nil {
			return nil, err
		}
		if err := db.MigrateUp(ctx, database); err != nil {
			_ = database.Close()
			return nil, err
		}
		c.store = db.NewManager(database, monitor, db.DefaultManagerConfig(), db.WithLogger(logger))
	} else {
		logger.Warn("DATABASE_URL not set, sessions and interaction logging disabled")
	}

	if cfg.ChatEnabled() {
		provider, err := chat.NewProvider(cfg.Chat)
		if err != nil {
			return nil, err
		}
		c.chat = chat.NewService(provider, monitor, chat.DefaultServiceConfig(cfg.Chat.Provider))
	} else {
		logger.Warn("chat provider not configured, chat endpoint disabled",
			slog.String("provider", cfg.Chat.Provider))
	}

	if cfg.ASRURL != "" {
		asrCfg := asr.DefaultConfig(cfg.ASRURL)
		asrCfg.APIKey = cfg.ASRAPIKey
		recognizer, err := asr.NewHTTPRecognizer(asrCfg, nil)
		if err != nil {
			return nil, err
		}
		c.asr = asr.NewService(recognizer, monitor, asr.DefaultServiceConfig())
	}

	notifyCfg := notify.LoadConfig(logger, cfgMetrics)
	if !notifyCfg.Enabled() {
		logger.Info("no alert webhook configured, health alerts disabled")
	}
	c.alerts = notify.NewService(notifyCfg.Channels(logger), notifyCfg.MaxConcurrent,
		notify.WithMetrics(notify.NewMetrics(reg)),
		notify.WithLogger(logger),
		notify.WithSendTimeout(notifyCfg.SendTimeout))
	c.watcher = notify.NewWatcher(c.alerts, monitor, cfg.Monitor.MaxRecoveryAttempts, logger)

	c.coordinator, err = recovery.NewCoordinator(monitor, cfg.Recovery,
		recovery.WithMetrics(recovery.NewMetrics(reg)),
		recovery.WithLogger(logger),
		recovery.WithPassHook(func(status health.HealthStatus) {
			c.grpcHealth.Update(status)
			slo.Update(monitor.AllMetrics())
			c.watcher.Observe(context.Background(), status)
		}))
	if err != nil {
		return nil, err
	}
	if err := registerRecovery(c); err != nil {
		return nil, err
	}

	if c.store != nil {
		workerCfg := worker.LoadConfigFromEnv(logger, cfgMetrics)
		c.scheduler, err = worker.NewScheduler(*workerCfg, c.store, c.store.DB().Stats,
			worker.NewWorkerMetrics(reg), logger)
		if err != nil {
			return nil, err
		}
	}
	return c, nil
}

// synthesisSettleDelay is how long the engine gets after a cache purge
// before the recovery probe runs.
const synthesisSettleDelay = 5 * time.Second

// ttsProbeInterval is the minimum spacing of live probes behind /health/tts.
const ttsProbeInterval = 30 * time.Second

// registerRecovery installs the per-capability hooks and probes.
func registerRecovery(c *components) error {
	actions := map[entity.Capability]recovery.Action{
		entity.CapabilitySynthesis: {
			Hook:  c.pipeline.RecoveryHook(synthesisSettleDelay),
			Probe: c.pipeline.Probe,
		},
	}
	if c.store != nil {
		actions[entity.CapabilityStorage] = recovery.Action{
			Hook:  c.store.Reconnect,
			Probe: func(ctx context.Context) bool { return c.store.Ping(ctx) == nil },
		}
	}
	if c.chat != nil {
		actions[entity.CapabilityChat] = recovery.Action{Probe: c.chat.Probe}
	}
	if c.asr != nil {
		actions[entity.CapabilityRecognition] = recovery.Action{Probe: c.asr.Probe}
	}
	for capability, a := range actions {
		if err := c.coordinator.Register(capability, a); err != nil {
			return err
		}
	}
	return nil
}

// setupRoutes registers every HTTP route.
func setupRoutes(logger *slog.Logger, cfg *config.AppConfig, c *components, version string) *http.ServeMux {
	mux := http.NewServeMux()

	healthHandler := hhttp.HealthHandler{Monitor: c.monitor, Version: version}
	mux.Handle("GET /health", healthHandler)
	mux.Handle("GET /api/health", healthHandler)
	mux.Handle("GET /health/tts", &hhttp.TTSHealthHandler{
		Prober:      c.pipeline,
		Monitor:     c.monitor,
		MinInterval: ttsProbeInterval,
	})
	mux.Handle("GET /live", hhttp.LiveHandler{})
	mux.Handle("GET /metrics", hhttp.MetricsHandler(nil))
	ready := hhttp.ReadyHandler{}
	if c.store != nil {
		ready.Store = c.store
	}
	mux.Handle("GET /ready", ready)

	voice := &hvoice.Handler{Synth: c.pipeline, Logger: logger}
	if c.asr != nil {
		voice.ASR = c.asr
	}
	conv := &hconv.Handler{SessionTimeout: cfg.SessionTimeout, Logger: logger}
	if c.chat != nil {
		conv.Chat = c.chat
	}
	history := &hhistory.Handler{Pagination: c.pages, Logger: logger}
	if c.store != nil {
		voice.Interactions = c.store
		conv.Store = c.store
		history.Store = c.store
	}
	hvoice.Register(mux, voice)
	hconv.Register(mux, conv)
	hhistory.Register(mux, history)
	hsystem.Register(mux, &hsystem.Handler{Monitor: c.monitor, Recovery: c.coordinator, Logger: logger})

	return mux
}

// applyMiddleware wraps the handler with the middleware chain.
// Order: CORS → Request ID → Tracing → Rate Limit → Recovery → Logging → Body Limit → Timeout → Metrics
func applyMiddleware(logger *slog.Logger, cfgMetrics *pkgconfig.Metrics, handler http.Handler) http.Handler {
	corsConfig := middleware.LoadCORSConfig(logger, cfgMetrics)
	logger.Info("CORS enabled",
		slog.Any("allowed_origins", corsConfig.AllowedOrigins),
		slog.Int("max_age", corsConfig.MaxAge))

	limiter := hhttp.NewRateLimiter(20, 40)

	h := handler
	h = hhttp.MetricsMiddleware(h)
	h = hhttp.Timeout(90 * time.Second)(h)
	// multipart audio uploads
	h = hhttp.LimitRequestBody(asr.MaxAudioBytes + 2<<20)(h)
	h = hhttp.Logging(logger)(h)
	h = hhttp.Recover(logger)(h)
	h = limiter.Limit(h)
	h = tracing.Middleware(h)
	h = requestid.Middleware(h)
	h = middleware.CORS(corsConfig)(h)
	return h
}

// run serves HTTP and gRPC and runs the recovery loop and the scheduler
// until SIGINT or SIGTERM.
func run(logger *slog.Logger, cfg *config.AppConfig, cfgMetrics *pkgconfig.Metrics, c *components, version string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           applyMiddleware(logger, cfgMetrics, setupRoutes(logger, cfg, c, version)),
		ReadHeaderTimeout: 10 * time.Second, // Prevent Slowloris attacks
		BaseContext: func(_ net.Listener) context.Context {
			return ctx
		},
	}
	grpcSrv := grpc.NewServer()
	c.grpcHealth.Register(grpcSrv)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("server starting",
			slog.String("addr", cfg.HTTPAddr),
			slog.String("version", version))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		lis, err := net.Listen("tcp", cfg.GRPCAddr)
		if err != nil {
			return err
		}
		logger.Info("grpc health server starting", slog.String("addr", cfg.GRPCAddr))
		return grpcSrv.Serve(lis)
	})

	g.Go(func() error { return c.coordinator.Run(gctx) })

	if c.scheduler != nil {
		g.Go(func() error { return c.scheduler.Run(gctx) })
	}

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down server...")
		c.grpcHealth.Shutdown()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		err := srv.Shutdown(shutdownCtx)
		grpcSrv.GracefulStop()
		if alertErr := c.alerts.Shutdown(shutdownCtx); alertErr != nil {
			logger.Warn("pending alerts abandoned", slog.Any("error", alertErr))
		}
		return err
	})

	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		err = nil
	}
	logger.Info("server stopped")
	return err
}

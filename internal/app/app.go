package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/Mohsen-rm/Clinical-Nutrition-Platform/internal/apiclient"
	"github.com/Mohsen-rm/Clinical-Nutrition-Platform/internal/bootstrap"
	"github.com/Mohsen-rm/Clinical-Nutrition-Platform/internal/config"
	"github.com/Mohsen-rm/Clinical-Nutrition-Platform/internal/credential"
	"github.com/Mohsen-rm/Clinical-Nutrition-Platform/internal/event"
	handler "github.com/Mohsen-rm/Clinical-Nutrition-Platform/internal/handler/http"
	"github.com/Mohsen-rm/Clinical-Nutrition-Platform/internal/navigation"
	"github.com/Mohsen-rm/Clinical-Nutrition-Platform/internal/service"
	"github.com/Mohsen-rm/Clinical-Nutrition-Platform/internal/session"
	"github.com/Mohsen-rm/Clinical-Nutrition-Platform/internal/storage"
	"github.com/Mohsen-rm/Clinical-Nutrition-Platform/pkg/health"
	"github.com/Mohsen-rm/Clinical-Nutrition-Platform/pkg/httpclient"
	pkgkafka "github.com/Mohsen-rm/Clinical-Nutrition-Platform/pkg/kafka"
	"github.com/Mohsen-rm/Clinical-Nutrition-Platform/pkg/tracing"
)

// App wires together all dependencies and runs the portal.
type App struct {
	cfg            *config.Config
	logger         *slog.Logger
	session        *session.Manager
	sequencer      *bootstrap.Sequencer
	producer       *pkgkafka.Producer
	publisher      *event.SessionPublisher
	httpServer     *http.Server
	closeStorage   func() error
	tracerShutdown func(context.Context) error
}

// NewApp creates a new application instance, initializing all dependencies.
// The session is restored from storage but not yet bootstrapped; Run does
// that once the server is listening.
func NewApp(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	initCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	// Initialize OpenTelemetry tracing.
	tracerShutdown, err := tracing.InitTracer(initCtx, tracing.Config{
		ServiceName:    config.ServiceName,
		ServiceVersion: cfg.Version,
		Environment:    cfg.Environment,
		OTLPEndpoint:   cfg.OTELEndpoint,
		SampleRate:     cfg.OTELSampleRate,
		Enabled:        cfg.OTELEnabled,
	})
	if err != nil {
		return nil, fmt.Errorf("init tracer: %w", err)
	}

	// Open persistent storage and restore the last session snapshot.
	kv, closeStorage, err := storage.New(initCtx, cfg.Storage())
	if err != nil {
		_ = tracerShutdown(context.Background())
		return nil, fmt.Errorf("open storage: %w", err)
	}
	logger.Info("storage opened", slog.String("backend", cfg.StorageBackend))

	creds := credential.NewStore(kv)
	mgr := session.NewManager(kv, creds, logger)
	if err := mgr.Restore(initCtx); err != nil {
		logger.Warn("restore session snapshot", slog.String("error", err.Error()))
	}

	// Outbound pipeline: retrying client behind a circuit breaker.
	hist := navigation.NewHistory()
	cbCfg := httpclient.DefaultCircuitBreakerConfig("backend")
	cbCfg.Timeout = cfg.CBTimeout
	cbCfg.FailureRatio = cfg.CBFailureRatio
	cbCfg.MinRequests = cfg.CBMinRequests

	httpCfg := httpclient.DefaultConfig()
	httpCfg.Timeout = cfg.HTTPTimeout
	httpCfg.MaxRetries = cfg.HTTPMaxRetries

	doer := httpclient.NewCircuitBreakerClient(httpclient.New(httpCfg), cbCfg, logger)
	client := apiclient.New(doer, apiclient.Config{
		BaseURL:             cfg.BackendURL(),
		SingleFlightRefresh: cfg.RefreshSingleFlight,
	}, creds, mgr, hist, logger)

	authService := service.NewAuthService(client.Auth(), mgr, creds, logger)
	sequencer := bootstrap.NewSequencer(creds, mgr, client.Auth(), logger)

	// Session events are optional.
	var (
		producer  *pkgkafka.Producer
		publisher *event.SessionPublisher
	)
	if len(cfg.KafkaBrokers) > 0 {
		producer = pkgkafka.NewProducer(pkgkafka.DefaultProducerConfig(cfg.KafkaBrokers), logger)
		publisher = event.NewSessionPublisher(producer, logger)
		mgr.OnChange(publisher.Listen)
		logger.Info("kafka producer initialized", slog.Any("brokers", cfg.KafkaBrokers))
	}

	// Health checks.
	healthHandler := health.NewHandler()
	healthHandler.Register("storage", kv.Ping)
	healthHandler.RegisterNonCritical("backend", backendCheck(cfg.APIURL))
	if producer != nil {
		healthHandler.RegisterNonCritical("kafka", producer.Ping)
	}

	router := handler.NewRouter(handler.Deps{
		Auth:          authService,
		Session:       mgr,
		Clearer:       mgr,
		Tokens:        creds,
		UserID:        mgr.UserID,
		Subscriptions: client.Subscriptions(),
		Nutrition:     client.Nutrition(),
		Affiliates:    client.Affiliates(),
		History:       hist,
		Health:        healthHandler,
		Logger:        logger,
	}, handler.RouterConfig{
		ServiceName:    config.ServiceName,
		Development:    cfg.IsDevelopment(),
		DebugCIDRs:     cfg.DebugAllowedCIDRs,
		RateLimitRPS:   cfg.RateLimitRPS,
		RateLimitBurst: cfg.RateLimitBurst,
	})

	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:           router,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
	}

	return &App{
		cfg:            cfg,
		logger:         logger,
		session:        mgr,
		sequencer:      sequencer,
		producer:       producer,
		publisher:      publisher,
		httpServer:     httpServer,
		closeStorage:   closeStorage,
		tracerShutdown: tracerShutdown,
	}, nil
}

// Handler returns the portal's HTTP handler.
func (a *App) Handler() http.Handler {
	return a.httpServer.Handler
}

// Bootstrap resolves the session once. Requests arriving before it finishes
// see the loading state.
func (a *App) Bootstrap(ctx context.Context) {
	outcome, err := a.sequencer.Run(ctx)
	attrs := []any{
		slog.String("outcome", string(outcome)),
		slog.Bool("authenticated", a.session.State().IsAuthenticated),
	}
	if err != nil {
		a.logger.WarnContext(ctx, "session bootstrap finished with error", append(attrs, slog.String("error", err.Error()))...)
		return
	}
	a.logger.InfoContext(ctx, "session bootstrap finished", attrs...)
}

// Run starts the HTTP server, bootstraps the session and blocks until the
// context is canceled.
func (a *App) Run(ctx context.Context) error {
	errCh := make(chan error, 1)

	go func() {
		a.logger.Info("starting HTTP server",
			slog.String("addr", a.httpServer.Addr),
			slog.String("backend", a.cfg.BackendURL()),
		)
		if err := a.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()

	go a.Bootstrap(ctx)

	select {
	case <-ctx.Done():
		a.logger.Info("shutdown signal received")
	case err := <-errCh:
		_ = a.Shutdown()
		return err
	}

	return a.Shutdown()
}

// Shutdown gracefully stops all components in the correct order:
// 1. HTTP server (drain in-flight requests)
// 2. Tracer (flush pending spans from drained requests)
// 3. Session events still in flight, then the Kafka producer
// 4. Storage
func (a *App) Shutdown() error {
	a.logger.Info("shutting down portal...")

	var errs []error

	httpCtx, httpCancel := context.WithTimeout(context.Background(), a.cfg.ShutdownTimeout)
	defer httpCancel()
	if err := a.httpServer.Shutdown(httpCtx); err != nil {
		a.logger.Error("http server shutdown error", slog.String("error", err.Error()))
		errs = append(errs, err)
	}

	if a.tracerShutdown != nil {
		tracerCtx, tracerCancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer tracerCancel()
		if err := a.tracerShutdown(tracerCtx); err != nil {
			a.logger.Error("tracer shutdown error", slog.String("error", err.Error()))
			errs = append(errs, err)
		}
	}

	if a.publisher != nil {
		a.publisher.Wait()
	}
	if a.producer != nil {
		if err := a.producer.Close(); err != nil {
			a.logger.Error("kafka producer close error", slog.String("error", err.Error()))
			errs = append(errs, err)
		}
	}

	if err := a.closeStorage(); err != nil {
		a.logger.Error("storage close error", slog.String("error", err.Error()))
		errs = append(errs, err)
	}

	a.logger.Info("portal shutdown complete")
	return errors.Join(errs...)
}

// backendCheck dials the backend host. Reachability is all it reports; the
// API itself may still answer with errors.
func backendCheck(apiURL string) health.Checker {
	return func(ctx context.Context) error {
		u, err := url.Parse(apiURL)
		if err != nil {
			return fmt.Errorf("parse backend url: %w", err)
		}
		host := u.Host
		if u.Port() == "" {
			port := "80"
			if u.Scheme == "https" {
				port = "443"
			}
			host = net.JoinHostPort(u.Hostname(), port)
		}
		var d net.Dialer
		conn, err := d.DialContext(ctx, "tcp", host)
		if err != nil {
			return fmt.Errorf("dial backend: %w", err)
		}
		return conn.Close()
	}
}

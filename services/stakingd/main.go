package stakingd

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"golang.org/x/net/netutil"

	"farmstake/config"
	"farmstake/observability/journal"
	"farmstake/observability/logging"
	telemetry "farmstake/observability/otel"
	"farmstake/storage"
)

// Version is stamped at build time.
var Version = "dev"

// Main initialises and runs the staking daemon.
func Main() error {
	var cfgPath string
	flag.StringVar(&cfgPath, "config", "stakingd.toml", "path to stakingd configuration (.toml or .yaml)")
	flag.Parse()

	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	env := strings.TrimSpace(os.Getenv("FARMSTAKE_ENV"))
	if env == "" {
		env = cfg.Environment
	}
	logger, logCloser := logging.SetupWithOptions(logging.Options{
		Service:    "stakingd",
		Env:        env,
		Level:      cfg.Logging.Level,
		File:       cfg.Logging.File,
		MaxSizeMB:  cfg.Logging.MaxSizeMB,
		MaxBackups: cfg.Logging.MaxBackups,
		MaxAgeDays: cfg.Logging.MaxAgeDays,
	})
	defer func() { _ = logCloser.Close() }()

	shutdownTelemetry, err := telemetry.Init(context.Background(), telemetry.Config{
		ServiceName:    "stakingd",
		ServiceVersion: Version,
		Environment:    env,
		Endpoint:       cfg.Telemetry.Endpoint,
		Insecure:       cfg.Telemetry.Insecure,
		Headers:        telemetryHeaders(cfg.Telemetry.Headers),
		Metrics:        cfg.Telemetry.EnableMetrics,
		Traces:         cfg.Telemetry.EnableTraces,
		MetricInterval: cfg.Telemetry.MetricInterval.Duration,
		SampleRatio:    cfg.Telemetry.SampleRatio,
	})
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	defer func() { _ = shutdownTelemetry(context.Background()) }()

	db, err := OpenStorage(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	var jrnl *journal.Journal
	if dsn := strings.TrimSpace(cfg.JournalDSN); dsn != "" {
		jrnl, err = journal.Open(journalDSN(cfg.DataDir, dsn))
		if err != nil {
			return err
		}
	}

	svc, err := NewService(context.Background(), Options{Config: cfg, DB: db, Journal: jrnl, Logger: logger})
	if err != nil {
		if jrnl != nil {
			_ = jrnl.Close()
		}
		return err
	}
	defer func() { _ = svc.Close() }()

	auth := NewAuthenticator(AuthConfig{
		HMACSecret: cfg.Admin.JWTSecret,
		Issuer:     cfg.Admin.Issuer,
		Audience:   cfg.Admin.Audience,
	}, logger)
	if !auth.Enabled() {
		logger.Warn("admin secret not configured; admin routes disabled")
	}
	server := NewServer(svc, ServerConfig{
		Auth:         auth,
		Limiter:      NewRateLimiter(cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.Burst, svc.metrics),
		AllowMint:    cfg.Admin.AllowMint,
		BindAccounts: cfg.Admin.RequireAccountTokens,
		Logger:       logger,
	})
	listener, err := listen(cfg.ListenAddress, cfg.MaxConnections)
	if err != nil {
		return err
	}
	httpServer := &http.Server{
		Addr:              cfg.ListenAddress,
		Handler:           server.Handler(),
		ReadHeaderTimeout: cfg.ReadHeaderTimeout.Duration,
	}

	stopCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errs := make(chan error, 1)
	go func() {
		logger.Info("stakingd listening",
			slog.String("address", cfg.ListenAddress),
			slog.String("backend", cfg.StorageBackend),
			slog.Int("maxConnections", cfg.MaxConnections))
		errs <- httpServer.Serve(listener)
	}()

	select {
	case <-stopCtx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout.Duration)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			_ = httpServer.Close()
			return err
		}
		return nil
	case err := <-errs:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}

// listen binds addr and caps concurrent connections when limit is positive.
func listen(addr string, limit int) (net.Listener, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listen %s: %w", addr, err)
	}
	if limit > 0 {
		ln = netutil.LimitListener(ln, limit)
	}
	return ln, nil
}

// OpenStorage opens the backend named by the configuration.
func OpenStorage(cfg *config.Config) (storage.Database, error) {
	switch cfg.StorageBackend {
	case config.BackendMemory:
		return storage.NewMemDB(), nil
	case config.BackendLevelDB:
		db, err := storage.NewLevelDB(filepath.Join(cfg.DataDir, "state"))
		if err != nil {
			return nil, fmt.Errorf("open leveldb: %w", err)
		}
		return db, nil
	case config.BackendBolt:
		if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
			return nil, fmt.Errorf("create data dir: %w", err)
		}
		db, err := storage.NewBoltDB(filepath.Join(cfg.DataDir, "state.bolt"), nil)
		if err != nil {
			return nil, fmt.Errorf("open bolt: %w", err)
		}
		return db, nil
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.StorageBackend)
	}
}

// journalDSN resolves bare sqlite file names against the data directory.
func journalDSN(dataDir, dsn string) string {
	if strings.Contains(dsn, "://") || strings.HasPrefix(dsn, "file:") || filepath.IsAbs(dsn) || dataDir == "" {
		return dsn
	}
	_ = os.MkdirAll(dataDir, 0o755)
	return filepath.Join(dataDir, dsn)
}

// telemetryHeaders layers OTEL_EXPORTER_OTLP_HEADERS over the configured
// exporter headers.
func telemetryHeaders(configured map[string]string) map[string]string {
	out := make(map[string]string, len(configured))
	for k, v := range configured {
		out[k] = v
	}
	for k, v := range telemetry.ParseHeaders(os.Getenv("OTEL_EXPORTER_OTLP_HEADERS")) {
		out[k] = v
	}
	return out
}

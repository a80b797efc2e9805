package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"time"

	"github.com/lmittmann/tint"
	"github.com/spf13/cobra"

	"github.com/Session-Vigil/Sessionvigil/internal/adapter/inbound/feed"
	"github.com/Session-Vigil/Sessionvigil/internal/adapter/inbound/http"
	"github.com/Session-Vigil/Sessionvigil/internal/adapter/outbound/cel"
	"github.com/Session-Vigil/Sessionvigil/internal/adapter/outbound/journal"
	"github.com/Session-Vigil/Sessionvigil/internal/adapter/outbound/memory"
	"github.com/Session-Vigil/Sessionvigil/internal/adapter/outbound/statusapi"
	"github.com/Session-Vigil/Sessionvigil/internal/config"
	"github.com/Session-Vigil/Sessionvigil/internal/domain/activity"
	"github.com/Session-Vigil/Sessionvigil/internal/domain/ratelimit"
	"github.com/Session-Vigil/Sessionvigil/internal/domain/session"
	"github.com/Session-Vigil/Sessionvigil/internal/service"
	"github.com/Session-Vigil/Sessionvigil/internal/telemetry"
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the liveness sidecar",
	Long: `Start the Session Vigil liveness sidecar.

The sidecar can watch sessions from two sources:

1. HTTP mode: poll a session authority's status endpoint
   Configure session.status_url in your config file.

2. Simulated mode: run an in-memory session countdown
   Set session.source to "simulated", or pass --dev.

Examples:
  # Start with config file settings
  session-vigil start

  # Start against a simulated 20-minute session
  session-vigil start --dev

  # Pipe newline-delimited activity events into the detector
  tail -f events.ndjson | session-vigil start --feed-stdin

  # Start with a specific config file
  session-vigil --config /path/to/config.yaml start`,
	RunE: runStart,
}

var (
	devMode   bool
	feedStdin bool
)

func init() {
	startCmd.Flags().BoolVar(&devMode, "dev", false, "Enable development mode (simulated session, debug logging)")
	startCmd.Flags().BoolVar(&feedStdin, "feed-stdin", false, "Read newline-delimited activity events from stdin")
	rootCmd.AddCommand(startCmd)
}

func runStart(cmd *cobra.Command, args []string) error {
	// Load configuration (without validation, so CLI flags can override first)
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// Override dev mode from CLI flag
	if devMode {
		cfg.DevMode = true
	}

	// Apply dev defaults (falls back to the simulated source when no
	// status URL is configured)
	cfg.SetDevDefaults()

	// Validate the configuration
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}

	// Create signal context for graceful shutdown.
	// stop() restores default signal handling so a second Ctrl+C does a hard kill.
	ctx, stop := signal.NotifyContext(context.Background(), gracefulSignals()...)
	go func() {
		<-ctx.Done()
		stop() // Restore default: next Ctrl+C = immediate exit.
	}()

	logger := buildLogger(cfg)
	logger.Debug("log level configured",
		"level", cfg.Server.LogLevel, "format", cfg.Server.LogFormat, "dev_mode", cfg.DevMode)

	// Log config file used if any
	if configFile := config.ConfigFileUsed(); configFile != "" {
		logger.Info("loaded config", "file", configFile)
	}
	if logger.Enabled(ctx, slog.LevelDebug) {
		if dump, err := cfg.Dump(); err == nil {
			logger.Debug("effective config", "config", string(dump))
		}
	}

	// Write PID file so "session-vigil stop" can find us.
	pidPath := pidFilePath()
	if err := writePIDFile(pidPath); err != nil {
		logger.Warn("failed to write PID file", "path", pidPath, "error", err)
	} else {
		defer os.Remove(pidPath)
	}

	if err := run(ctx, cfg, feedStdin, logger); err != nil {
		return err
	}

	logger.Info("session-vigil stopped")
	return nil
}

// run is the main orchestration function that wires all components together.
// It implements the boot sequence: BOOT-01 through BOOT-10.
func run(ctx context.Context, cfg *config.Config, feedStdin bool, logger *slog.Logger) error {
	// ===== BOOT-01: DevMode check =====
	if err := logDevModeWarning(logger, cfg.DevMode); err != nil {
		return err
	}

	// ===== BOOT-02: Telemetry providers =====
	providers, err := telemetry.NewProviders(telemetry.Config{
		Enabled:        cfg.Telemetry.Enabled,
		ServiceName:    "session-vigil",
		ServiceVersion: Version,
		MetricInterval: config.Duration(cfg.Telemetry.ExportInterval, 30*time.Second),
		Logger:         logger,
	})
	if err != nil {
		return fmt.Errorf("failed to set up telemetry: %w", err)
	}
	providers.SetGlobal()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = providers.Shutdown(shutdownCtx)
	}()
	if cfg.Telemetry.Enabled {
		logger.Info("telemetry enabled", "export_interval", cfg.Telemetry.ExportInterval)
	}

	// ===== BOOT-03: Activity journal =====
	var (
		sink   activity.ActivitySink
		reader activity.ActivityReader
	)
	switch cfg.Journal.Output {
	case "sqlite":
		store, err := journal.NewSQLiteStore(journal.SQLiteConfig{Path: cfg.Journal.DBPath}, logger)
		if err != nil {
			return fmt.Errorf("failed to open activity journal: %w", err)
		}
		defer func() { _ = store.Close() }()
		store.StartRetention(ctx, config.Duration(cfg.Journal.Retention, 0), time.Hour)
		sink, reader = store, store
		logger.Info("activity journal: sqlite",
			"path", cfg.Journal.DBPath, "retention", cfg.Journal.Retention)

	default: // "none"
		ring := memory.NewActivityLog(cfg.Journal.RecentBuffer)
		sink, reader = ring, ring
		logger.Debug("activity journal: memory ring", "capacity", cfg.Journal.RecentBuffer)
	}

	// ===== BOOT-04: Event bus + stdin feed =====
	bus := memory.NewBus()
	if feedStdin {
		feedReader := feed.NewReader(bus, os.Stdin, logger)
		go func() {
			if err := feedReader.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("event feed terminated", "error", err)
			}
		}()
		logger.Info("event feed attached", "source", feed.DefaultSource)
	}

	// ===== BOOT-05: Activity detector =====
	detectorOpts := []activity.DetectorOption{activity.WithLogger(logger)}
	if cfg.Activity.Filter != "" {
		filter, err := cel.NewFilter(cfg.Activity.Filter)
		if err != nil {
			return fmt.Errorf("invalid activity filter: %w", err)
		}
		detectorOpts = append(detectorOpts, activity.WithFilter(filter))
		logger.Info("activity filter compiled", "expression", filter.Expression())
	}
	detector := activity.NewDetector(activity.DetectorConfig{
		Enabled:             cfg.Activity.Enabled,
		TrackClicks:         cfg.Activity.TrackClicks,
		TrackScrolls:        cfg.Activity.TrackScrolls,
		TrackKeypresses:     cfg.Activity.TrackKeypresses,
		TrackPointerMove:    cfg.Activity.TrackPointerMove,
		DebounceWindow:      config.Duration(cfg.Activity.Debounce, activity.DefaultDebounceWindow),
		MaxEventsPerMinute:  cfg.Activity.MaxEventsPerMinute,
		InactivityThreshold: config.Duration(cfg.Activity.InactivityThreshold, activity.DefaultInactivityThreshold),
		SyncBatchSize:       cfg.Activity.SyncBatchSize,
		SyncInterval:        config.Duration(cfg.Activity.SyncInterval, activity.DefaultSyncInterval),
		PendingLimit:        cfg.Activity.PendingLimit,
	}, bus, sink, detectorOpts...)

	// ===== BOOT-06: Session status source =====
	var source session.StatusSource
	switch cfg.Session.Source {
	case "simulated":
		source = memory.NewSimulatedStatusSource(memory.SimulatedConfig{
			TTL:           config.Duration(cfg.Session.Simulated.TTL, memory.DefaultSimulatedTTL),
			MaxExtensions: cfg.Session.MaxExtensions,
			AllowExtend:   cfg.Session.MaxExtensions > 0,
			KeepAlive:     cfg.Session.Simulated.KeepAlive,
		})
		logger.Info("session source: simulated",
			"ttl", cfg.Session.Simulated.TTL,
			"max_extensions", cfg.Session.MaxExtensions,
			"keepalive", cfg.Session.Simulated.KeepAlive)

	default: // "http"
		client, err := statusapi.NewClient(statusapi.ClientConfig{
			BaseURL: cfg.Session.StatusURL,
			Token:   cfg.Session.Token,
			Timeout: config.Duration(cfg.Session.RequestTimeout, statusapi.DefaultTimeout),
		},
			statusapi.WithLogger(logger),
			statusapi.WithTracerProvider(providers.TracerProvider),
			statusapi.WithMeterProvider(providers.MeterProvider),
		)
		if err != nil {
			return fmt.Errorf("failed to create status client: %w", err)
		}
		source = client
		logger.Info("session source: http",
			"base_url", cfg.Session.StatusURL,
			"token_fp", client.Fingerprint(),
			"timeout", cfg.Session.RequestTimeout)
	}

	// ===== BOOT-07: Timeout controller =====
	stats := service.NewStatsService()
	tierPolicy, err := tierPolicyFromConfig(cfg)
	if err != nil {
		return fmt.Errorf("invalid tier config: %w", err)
	}

	// The hub doubles as the controller's redirector: expiry reaches
	// presenters as a redirect frame. It must exist before the
	// controller; AttachController closes the loop afterwards.
	hub := http.NewHub(bus, cfg.Session.LoginURL, logger)
	controller := session.NewTimeoutController(
		service.InstrumentSource(stats, source),
		service.CountRedirects(stats, hub),
		session.WithLogger(logger),
		session.WithPolicy(tierPolicy),
		session.WithPollInterval(config.Duration(cfg.Session.PollInterval, session.DefaultPollInterval)),
		session.WithMaxExtensions(cfg.Session.MaxExtensions),
	)
	hub.AttachController(controller)

	// ===== BOOT-08: Liveness service =====
	liveness := service.NewLivenessService(detector, controller, stats, logger)
	if err := liveness.Start(ctx); err != nil {
		return fmt.Errorf("failed to start liveness service: %w", err)
	}
	defer liveness.Stop()

	// ===== BOOT-09: HTTP transport =====
	var limiter *ratelimit.SlidingWindow
	if cfg.Ingest.RateLimitEnabled {
		limiter = ratelimit.NewSlidingWindowWithCleanup(
			cfg.Ingest.ClientRate,
			time.Minute,
			config.Duration(cfg.Ingest.CleanupInterval, 5*time.Minute),
		)
		limiter.StartCleanup(ctx)
		defer limiter.Stop()
		logger.Debug("ingest rate limiting enabled",
			"client_rate", cfg.Ingest.ClientRate,
			"cleanup_interval", cfg.Ingest.CleanupInterval)
	}

	apiOpts := []http.APIOption{
		http.WithController(controller),
		http.WithDetector(detector),
		http.WithStats(stats),
		http.WithBus(bus),
		http.WithReader(reader),
		http.WithHub(hub),
		http.WithVersion(Version),
		http.WithAPILogger(logger),
	}
	if limiter != nil {
		apiOpts = append(apiOpts, http.WithRateLimiter(limiter))
	}
	apiHandler := http.NewAPIHandler(apiOpts...)

	healthChecker := http.NewHealthChecker(liveness, limiter, hub, Version)

	transport := http.NewHTTPTransport(apiHandler,
		http.WithAddr(cfg.Server.HTTPAddr),
		http.WithLogger(logger),
		http.WithHealthChecker(healthChecker),
		http.WithAPIKeyHash(cfg.Auth.APIKeyHash),
	)

	// ===== BOOT-10: Startup banner =====
	logger.Info("session-vigil starting",
		"version", Version,
		"dev_mode", cfg.DevMode,
		"http_addr", cfg.Server.HTTPAddr,
		"source", cfg.Session.Source,
		"poll_interval", cfg.Session.PollInterval,
		"tier_policy", tierPolicy.Name(),
		"activity", cfg.Activity.Enabled,
		"journal", cfg.Journal.Output,
		"ingest_rate_limit", cfg.Ingest.RateLimitEnabled,
		"auth", cfg.Auth.APIKeyHash != "",
	)

	printBanner(cfg, tierPolicy)

	logger.Info("transport mode: HTTP", "addr", cfg.Server.HTTPAddr)
	return transport.Start(ctx)
}

// logDevModeWarning makes dev mode loud. Setting
// SESSION_VIGIL_ALLOW_DEVMODE=false refuses to start in dev mode at all,
// for hosts where a forgotten --dev must never reach users.
func logDevModeWarning(logger *slog.Logger, devMode bool) error {
	if !devMode {
		return nil
	}

	if os.Getenv("SESSION_VIGIL_ALLOW_DEVMODE") == "false" {
		logger.Error("SECURITY: DevMode is blocked by SESSION_VIGIL_ALLOW_DEVMODE=false",
			"action", "refusing to start")
		return errors.New("DevMode blocked by SESSION_VIGIL_ALLOW_DEVMODE=false")
	}

	logger.Warn("=== WARNING: DevMode is ENABLED ===")
	logger.Warn("DevMode can run against a simulated session - sessions never expire for real users!")
	logger.Warn("Set dev_mode: false in config or SESSION_VIGIL_DEV_MODE=false")
	logger.Warn("To block DevMode entirely: SESSION_VIGIL_ALLOW_DEVMODE=false")
	logger.Warn("===================================")

	return nil
}

// buildLogger constructs the process logger writing to stderr.
// DevMode forces debug regardless of the configured level.
func buildLogger(cfg *config.Config) *slog.Logger {
	level := parseLogLevel(cfg.Server.LogLevel)
	if cfg.DevMode {
		level = slog.LevelDebug
	}

	var handler slog.Handler
	switch cfg.Server.LogFormat {
	case "pretty":
		handler = tint.NewHandler(os.Stderr, &tint.Options{
			Level:      level,
			TimeFormat: time.Kitchen,
		})
	case "json":
		handler = slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	default:
		handler = slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	}
	return slog.New(handler)
}

// parseLogLevel converts a string log level to slog.Level.
// Returns slog.LevelInfo for unrecognized values.
func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// tierPolicyFromConfig resolves the warning tier table for the controller.
// Named profiles carry their own thresholds; the custom profile reads
// them from config (already validated as ascending).
func tierPolicyFromConfig(cfg *config.Config) (session.TierPolicy, error) {
	switch cfg.Session.TierProfile {
	case "presenter":
		return session.PresenterPolicy(), nil
	case "custom":
		return session.NewTierPolicy("custom",
			session.Tier{
				Threshold: config.Duration(cfg.Session.Tiers.Critical, time.Minute),
				Level:     session.LevelCritical,
			},
			session.Tier{
				Threshold: config.Duration(cfg.Session.Tiers.Prominent, 5*time.Minute),
				Level:     session.LevelProminent,
			},
			session.Tier{
				Threshold: config.Duration(cfg.Session.Tiers.Subtle, 10*time.Minute),
				Level:     session.LevelSubtle,
			},
		)
	default:
		return session.ServerPollPolicy(), nil
	}
}

// printBanner prints a formatted startup banner to stderr with version,
// endpoints, mode, and session settings.
func printBanner(cfg *config.Config, policy session.TierPolicy) {
	const (
		reset  = "\033[0m"
		bold   = "\033[1m"
		cyan   = "\033[36m"
		green  = "\033[32m"
		yellow = "\033[33m"
		dim    = "\033[2m"
	)

	httpAddr := cfg.Server.HTTPAddr
	baseURL := fmt.Sprintf("http://localhost%s", httpAddr)
	if !strings.HasPrefix(httpAddr, ":") {
		baseURL = fmt.Sprintf("http://%s", httpAddr)
	}

	modeStr := green + "production" + reset
	if cfg.DevMode {
		modeStr = yellow + "development" + reset
		if cfg.Session.Source == "simulated" {
			modeStr += dim + " (simulated session)" + reset
		}
	}

	sourceStr := cfg.Session.Source
	if cfg.Session.Source == "http" {
		sourceStr = fmt.Sprintf("http (%s)", cfg.Session.StatusURL)
	}

	journalStr := "memory ring"
	if cfg.Journal.Output == "sqlite" {
		journalStr = fmt.Sprintf("sqlite (%s)", cfg.Journal.DBPath)
	}

	fmt.Fprintf(os.Stderr, "\n")
	fmt.Fprintf(os.Stderr, "  %s%s Session Vigil %s%s\n", bold, cyan, Version, reset)
	fmt.Fprintf(os.Stderr, "  %s─────────────────────────────────────%s\n", dim, reset)
	fmt.Fprintf(os.Stderr, "  %-14s %s/api/v1/session\n", "Session API:", baseURL)
	fmt.Fprintf(os.Stderr, "  %-14s %s/health\n", "Health:", baseURL)
	fmt.Fprintf(os.Stderr, "  %-14s %s/metrics\n", "Metrics:", baseURL)
	fmt.Fprintf(os.Stderr, "  %-14s %s\n", "Mode:", modeStr)
	fmt.Fprintf(os.Stderr, "  %-14s %s\n", "Source:", sourceStr)
	fmt.Fprintf(os.Stderr, "  %-14s %s tiers\n", "Warnings:", policy.Name())
	fmt.Fprintf(os.Stderr, "  %-14s %s\n", "Journal:", journalStr)
	fmt.Fprintf(os.Stderr, "  %s─────────────────────────────────────%s\n", dim, reset)
	fmt.Fprintf(os.Stderr, "\n")
}

// pidFilePath returns the standard location for the Session Vigil PID file.
func pidFilePath() string {
	if homeDir, err := os.UserHomeDir(); err == nil {
		return filepath.Join(homeDir, ".session-vigil", "server.pid")
	}
	return filepath.Join(os.TempDir(), "session-vigil-server.pid")
}

// writePIDFile writes the current process PID to the given path, creating
// parent directories as needed.
func writePIDFile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	return os.WriteFile(path, []byte(fmt.Sprintf("%d\n", os.Getpid())), 0644)
}

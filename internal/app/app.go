// Package app wires configuration, storage and handlers into a running
// engine. Both the server and the riskctl CLI build on it.
package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/teamvidya/risk-hub/config"
	"github.com/teamvidya/risk-hub/internal/application/command"
	"github.com/teamvidya/risk-hub/internal/application/query"
	"github.com/teamvidya/risk-hub/internal/domain/attendance"
	"github.com/teamvidya/risk-hub/internal/domain/profile"
	"github.com/teamvidya/risk-hub/internal/domain/risk"
	"github.com/teamvidya/risk-hub/internal/infrastructure/metrics"
	"github.com/teamvidya/risk-hub/internal/infrastructure/notification"
	"github.com/teamvidya/risk-hub/internal/infrastructure/persistence/file"
	"github.com/teamvidya/risk-hub/internal/infrastructure/persistence/memory"
	"github.com/teamvidya/risk-hub/internal/infrastructure/persistence/postgres"
	"github.com/teamvidya/risk-hub/internal/infrastructure/persistence/redis"
	"github.com/teamvidya/risk-hub/internal/infrastructure/scheduler"
	"github.com/teamvidya/risk-hub/internal/infrastructure/scheduler/jobs"
	httpapi "github.com/teamvidya/risk-hub/internal/interface/http"
)

// ══════════════════════════════════════════════════════════════════════════════
// LOGGING
// ══════════════════════════════════════════════════════════════════════════════

// NewLogger builds the process logger: JSON or text output at the
// configured level.
func NewLogger(cfg config.ObservabilityConfig, w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{Level: parseLevel(cfg.LogLevel)}

	var handler slog.Handler
	if strings.EqualFold(cfg.LogFormat, "text") {
		handler = slog.NewTextHandler(w, opts)
	} else {
		handler = slog.NewJSONHandler(w, opts)
	}
	return slog.New(handler)
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
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

// ══════════════════════════════════════════════════════════════════════════════
// CONTAINER
// ══════════════════════════════════════════════════════════════════════════════

// App holds every wired component.
type App struct {
	Config  *config.Config
	Logger  *slog.Logger
	Metrics *metrics.Metrics

	// Infrastructure; DB and Cache are nil when not configured
	DB         *postgres.Connection
	Cache      *redis.Cache
	Events     attendance.EventStore
	Profiles   profile.Store
	SeedWriter command.SeedWriter
	Artifacts  risk.ArtifactStore
	Sender     command.AlertSender

	// Application
	Provider    *risk.Provider
	Engine      *command.Engine
	Attendance  *command.AttendanceHandler
	Alerts      *command.SendAlertsHandler
	Train       *command.TrainModelHandler
	Dashboard   *query.DashboardHandler
	Suggestions *query.SuggestionHandler
	History     *query.HistoryHandler

	closers []func()
}

// New connects to the configured backends and builds the handlers. Without
// DATABASE_URL the in-memory stores are used.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}
	a := &App{Config: cfg, Logger: logger, Metrics: metrics.New()}

	if err := a.openStorage(ctx); err != nil {
		a.Close()
		return nil, err
	}
	if err := a.openArtifacts(); err != nil {
		a.Close()
		return nil, err
	}
	a.openSender()
	a.buildHandlers()
	return a, nil
}

// Close releases connections in reverse order of opening.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

func (a *App) openStorage(ctx context.Context) error {
	cfg := a.Config

	if cfg.Database.Enabled() {
		pg := postgres.DefaultConfig(cfg.Database.URL)
		pg.MaxConns = int32(cfg.Database.MaxConns)
		pg.MinConns = int32(cfg.Database.MinConns)
		pg.MaxConnLifetime = cfg.Database.ConnMaxLifetime
		pg.MaxConnIdleTime = cfg.Database.ConnMaxIdleTime

		conn, err := postgres.NewConnection(ctx, pg)
		if err != nil {
			return err
		}
		a.DB = conn
		a.closers = append(a.closers, conn.Close)

		if cfg.Database.AutoMigrate {
			n, err := postgres.NewMigrator(conn).Migrate(ctx)
			if err != nil {
				return err
			}
			a.Logger.Info("database migrations applied", "count", n)
		}

		a.Events = postgres.NewEventRepository(conn)
		a.Profiles = postgres.NewProfileRepository(conn)
		a.SeedWriter = postgres.NewSeedRepository(conn)
		a.Logger.Info("connected to postgres")
	} else {
		events, profiles := memory.NewEventStore(), memory.NewProfileStore()
		a.Events, a.Profiles = events, profiles
		a.SeedWriter = memory.NewSeedWriter(events, profiles)
		a.Logger.Warn("DATABASE_URL not set, using in-memory stores")
	}

	if !cfg.Redis.Disabled {
		cache, err := redis.NewCache(ctx, redis.Config{
			URL:          cfg.Redis.URL,
			Host:         cfg.Redis.Host,
			Port:         cfg.Redis.Port,
			Password:     cfg.Redis.Password,
			DB:           cfg.Redis.DB,
			PoolSize:     cfg.Redis.PoolSize,
			MinIdleConns: cfg.Redis.MinIdleConns,
			MaxRetries:   redis.DefaultConfig().MaxRetries,
			DialTimeout:  cfg.Redis.DialTimeout,
			ReadTimeout:  cfg.Redis.ReadTimeout,
			WriteTimeout: cfg.Redis.WriteTimeout,
			KeyPrefix:    cfg.Redis.KeyPrefix,
		})
		if err != nil {
			return err
		}
		a.Cache = cache
		a.closers = append(a.closers, func() { _ = cache.Close() })
		a.Logger.Info("connected to redis")
	}
	return nil
}

func (a *App) openArtifacts() error {
	switch a.Config.Model.Backend {
	case "file", "":
		a.Artifacts = file.NewModelStore(a.Config.Model.ArtifactPath)
	case "redis":
		if a.Cache == nil {
			return fmt.Errorf("model backend redis requires redis to be enabled")
		}
		a.Artifacts = redis.NewModelStore(a.Cache)
	case "memory":
		a.Artifacts = memory.NewArtifactStore()
	default:
		return fmt.Errorf("unknown model backend %q", a.Config.Model.Backend)
	}
	return nil
}

func (a *App) openSender() {
	cfg := a.Config.Email
	renderer := notification.NewRenderer(a.Config.App.Name, cfg.DashboardURL, notification.Audience(cfg.Recipient))

	if cfg.Disabled {
		a.Sender = notification.NewLogSender(renderer, a.Logger)
		return
	}
	sendgrid := notification.NewSendGridSender(notification.SendGridConfig{
		APIKey:   cfg.SendGridAPIKey,
		Host:     cfg.SendGridHost,
		FromName: cfg.FromName,
		FromAddr: cfg.FromAddress,
	}, renderer, a.Logger)
	a.Sender = notification.NewBreakerSender(sendgrid, a.Logger)
}

func (a *App) buildHandlers() {
	cfg := a.Config

	train := risk.DefaultTrainOptions()
	if cfg.Model.MaxDepth > 0 {
		train.MaxDepth = cfg.Model.MaxDepth
	}
	if cfg.Model.MinSamplesSplit > 0 {
		train.MinSamplesSplit = cfg.Model.MinSamplesSplit
	}

	source := command.TrainingSource(a.Events, a.Profiles)
	a.Provider = risk.NewProvider(risk.ProviderConfig{
		UseModel:      cfg.Model.UseModel,
		TrainOnDemand: cfg.Model.TrainOnDemand,
		Train:         train,
	}, a.Artifacts, source)

	// In-process cycles are serialized locally first so that only one of
	// them polls the shared lock.
	var lock command.CycleLock = command.NewLocalLock()
	if a.Cache != nil {
		lock = command.ChainLock{
			lock,
			redis.NewCycleLock(a.Cache, cfg.Cycle.LockTTL, cfg.Cycle.LockAttempts, cfg.Cycle.LockInterval, a.Logger),
		}
	}

	a.Engine = command.NewEngine(a.Events, a.Profiles, a.Provider, command.EngineConfig{
		Lock:     lock,
		Observer: a.Metrics,
		Logger:   a.Logger,
		Seed:     a.SeedWriter,
	})
	a.Attendance = command.NewAttendanceHandler(a.Events, a.Engine, cfg.App.Location)
	a.Alerts = command.NewSendAlertsHandler(query.NewAlertSelector(a.Profiles), a.Sender, a.Metrics, a.Logger)
	a.Train = command.NewTrainModelHandler(a.Engine, source, a.Logger)
	a.Dashboard = query.NewDashboardHandler(a.Profiles)
	a.Suggestions = query.NewSuggestionHandler(a.Profiles)
	a.History = query.NewHistoryHandler(a.Events)
}

// ══════════════════════════════════════════════════════════════════════════════
// SURFACES
// ══════════════════════════════════════════════════════════════════════════════

// HealthChecker returns a readiness checker covering the open connections.
func (a *App) HealthChecker() *httpapi.HealthChecker {
	hc := httpapi.NewHealthChecker(a.Config.App.Version)
	if a.DB != nil {
		hc.AddCheck("postgres", httpapi.PingCheck(a.DB))
	}
	if a.Cache != nil {
		hc.AddCheck("redis", httpapi.PingCheck(a.Cache))
	}
	return hc
}

// HTTPServer builds the API server.
func (a *App) HTTPServer() *httpapi.Server {
	return httpapi.NewServer(httpapi.ConfigFrom(a.Config), httpapi.Dependencies{
		Attendance:  a.Attendance,
		Engine:      a.Engine,
		Alerts:      a.Alerts,
		Train:       a.Train,
		Dashboard:   a.Dashboard,
		Suggestions: a.Suggestions,
		History:     a.History,
		Health:      a.HealthChecker(),
		Metrics:     a.Metrics,
		Logger:      a.Logger,
		Version:     a.Config.App.Version,
	})
}

// Scheduler builds the background scheduler with the weekly alert job and,
// when a schedule is configured, the nightly recomputation.
func (a *App) Scheduler() (*scheduler.Scheduler, *jobs.WeeklyAlertsJob, error) {
	cfg := a.Config.Scheduler
	s := scheduler.New(
		scheduler.WithLocation(a.Config.App.Location),
		scheduler.WithLogger(a.Logger),
		scheduler.WithJobTimeout(cfg.JobTimeout),
		scheduler.WithObserver(a.Metrics),
	)

	alerts := jobs.NewWeeklyAlertsJob(a.Alerts, a.Logger)
	if err := s.Register(alerts, cfg.AlertCron); err != nil {
		return nil, nil, fmt.Errorf("register %s: %w", alerts.Name(), err)
	}
	if cfg.RecomputeCron != "" {
		recompute := jobs.NewRecomputeJob(a.Engine, a.Logger)
		if err := s.Register(recompute, cfg.RecomputeCron); err != nil {
			return nil, nil, fmt.Errorf("register %s: %w", recompute.Name(), err)
		}
	}
	return s, alerts, nil
}

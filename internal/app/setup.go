package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/chalssak/chalssak/internal/api"
	"github.com/chalssak/chalssak/internal/channel"
	"github.com/chalssak/chalssak/internal/chat"
	"github.com/chalssak/chalssak/internal/config"
	"github.com/chalssak/chalssak/internal/crawler"
	"github.com/chalssak/chalssak/internal/favorite"
	"github.com/chalssak/chalssak/internal/gemini"
	"github.com/chalssak/chalssak/internal/metrics"
	"github.com/chalssak/chalssak/internal/note"
	"github.com/chalssak/chalssak/internal/observability"
	"github.com/chalssak/chalssak/internal/scheduler"
	"github.com/chalssak/chalssak/internal/trash"
)

// fetchTimeout bounds URL ingestion page fetches.
const fetchTimeout = 30 * time.Second

// Setup creates and wires the application. Call Close on the returned
// App to release its resources.
func Setup(ctx context.Context, cfg *config.Config, logger *slog.Logger) (_ *App, retErr error) {
	if logger == nil {
		logger = slog.Default()
	}
	a := &App{Config: cfg, Logger: logger}

	// On error, release everything already initialized.
	defer func() {
		if retErr != nil {
			if err := a.Close(); err != nil {
				logger.Warn("cleanup during setup failure", "error", err)
			}
		}
	}()

	if cfg.Observability.Enabled {
		shutdown, err := observability.Setup(ctx, observability.Config{
			Endpoint:    cfg.Observability.Endpoint,
			Environment: cfg.Observability.Environment,
			ServiceName: cfg.Observability.ServiceName,
		}, logger)
		if err != nil {
			return nil, fmt.Errorf("setting up tracing: %w", err)
		}
		a.traceShutdown = shutdown
	}

	pool, err := providePool(ctx, cfg)
	if err != nil {
		return nil, err
	}
	a.Pool = pool

	gateway, err := gemini.NewClient(ctx, gemini.Config{
		APIKey:            cfg.APIKey(),
		Model:             cfg.ModelName,
		EmbedModel:        cfg.EmbedderModel,
		RequestsPerSecond: cfg.Rates.GatewayPerSecond,
		Logger:            logger,
	})
	if err != nil {
		return nil, fmt.Errorf("creating gemini client: %w", err)
	}
	a.Gateway = gateway

	if err := provideStores(a); err != nil {
		return nil, err
	}

	a.Crawler = crawler.New(fetchTimeout, logger)
	a.Metrics = metrics.NewRecorder()

	policy, err := channel.NewLifecyclePolicy(cfg.Lifecycle.IdleDays, cfg.Lifecycle.InactiveDays)
	if err != nil {
		return nil, fmt.Errorf("building lifecycle policy: %w", err)
	}

	if cfg.Scheduler.Enabled {
		sched, err := provideScheduler(a, policy)
		if err != nil {
			return nil, err
		}
		a.Scheduler = sched
	}

	server, err := api.NewServer(serverConfig(a, policy))
	if err != nil {
		return nil, fmt.Errorf("creating API server: %w", err)
	}
	a.Server = server

	return a, nil
}

// providePool connects to PostgreSQL and verifies the connection.
func providePool(ctx context.Context, cfg *config.Config) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, cfg.PostgresConnectionString())
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}
	return pool, nil
}

// provideStores builds the domain stores and the chat service.
func provideStores(a *App) error {
	var err error
	if a.Channels, err = channel.NewStore(a.Pool, a.Logger); err != nil {
		return fmt.Errorf("creating channel store: %w", err)
	}
	if a.Notes, err = note.NewStore(a.Pool, a.Gateway, a.Logger); err != nil {
		return fmt.Errorf("creating note store: %w", err)
	}
	if a.Favorites, err = favorite.NewStore(a.Pool, a.Logger); err != nil {
		return fmt.Errorf("creating favorite store: %w", err)
	}
	if a.Messages, err = chat.NewMessageStore(a.Pool, a.Logger); err != nil {
		return fmt.Errorf("creating message store: %w", err)
	}
	if a.Trash, err = trash.NewManager(a.Pool, a.Gateway, a.Config.Trash.RetentionDays, a.Logger); err != nil {
		return fmt.Errorf("creating trash manager: %w", err)
	}
	if a.Chat, err = chat.NewService(a.Messages, a.Channels, a.Gateway, 0, a.Logger); err != nil {
		return fmt.Errorf("creating chat service: %w", err)
	}
	return nil
}

// provideScheduler builds the background jobs.
func provideScheduler(a *App, policy channel.LifecyclePolicy) (*scheduler.Scheduler, error) {
	sc := a.Config.Scheduler
	sched, err := scheduler.New(a.Logger,
		scheduler.NewScanJob(a.Channels, policy, sc.ScanInterval, a.Logger),
		scheduler.NewStatsSyncJob(a.Channels, a.Gateway, sc.StatsInterval, a.Logger),
		scheduler.NewTrashCleanupJob(a.Trash, a.Gateway, sc.CleanupInterval, a.Logger),
	)
	if err != nil {
		return nil, fmt.Errorf("creating scheduler: %w", err)
	}
	return sched, nil
}

// serverConfig maps application config onto the API server's.
func serverConfig(a *App, policy channel.LifecyclePolicy) api.ServerConfig {
	cfg := a.Config
	sc := api.ServerConfig{
		Logger:    a.Logger,
		Pool:      a.Pool,
		Channels:  a.Channels,
		Notes:     a.Notes,
		Favorites: a.Favorites,
		Trash:     a.Trash,
		Chat:      a.Chat,
		Gateway:   a.Gateway,
		Fetcher:   a.Crawler,
		Metrics:   a.Metrics,
		Lifecycle: policy,
		Limits:    uploadLimits(cfg.Limits),

		CORSOrigins: cfg.CORSOrigins,
		TrustProxy:  cfg.TrustProxy,

		DefaultPerSecond: cfg.Rates.DefaultPerSecond,
		DefaultBurst:     cfg.Rates.DefaultBurst,
		ChatPerMinute:    cfg.Rates.ChatPerMinute,
		UploadPerHour:    cfg.Rates.UploadPerHour,
	}
	if a.Scheduler != nil {
		sc.Scheduler = a.Scheduler
	}
	return sc
}

// uploadLimits converts config megabytes into byte limits.
func uploadLimits(l config.LimitsConfig) api.UploadLimits {
	return api.UploadLimits{
		MaxFiles:          l.MaxFilesPerChannel,
		MaxChannelBytes:   l.MaxChannelSizeBytes(),
		MaxFileBytes:      l.MaxFileSizeBytes(),
		AllowedExtensions: l.AllowedExtensions,
	}
}

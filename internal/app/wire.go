package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	s3blob "github.com/alanyoungcy/decisionbot/internal/blob/s3"
	"github.com/alanyoungcy/decisionbot/internal/cache/redis"
	"github.com/alanyoungcy/decisionbot/internal/config"
	"github.com/alanyoungcy/decisionbot/internal/domain"
	"github.com/alanyoungcy/decisionbot/internal/notify"
	"github.com/alanyoungcy/decisionbot/internal/server/handler"
	"github.com/alanyoungcy/decisionbot/internal/server/middleware"
	"github.com/alanyoungcy/decisionbot/internal/store/memory"
	"github.com/alanyoungcy/decisionbot/internal/store/postgres"
)

// marketHistoryCap bounds the per-symbol price history kept for indicators.
const marketHistoryCap = 500

// tagStore is a TagSink whose bot tags can be read back.
type tagStore interface {
	domain.TagSink
	handler.BotTagReader
}

// Dependencies bundles every collaborator the engines and the API need. It
// is constructed by Wire and torn down by the returned cleanup function.
// Collaborators without a backing service fall back to process memory;
// the optional ones (LockManager, SignalBus, blob storage, Notifier) stay
// nil.
type Dependencies struct {
	// Stores
	Positions   domain.PositionStore
	Automations domain.AutomationStore
	Decisions   domain.DecisionRecordStore
	Executions  domain.ExecutionStore

	// State
	Market      handler.MarketStore
	BotState    domain.BotStateStore
	Tags        tagStore
	RateLimiter domain.RateLimiter
	LockManager domain.LockManager
	SignalBus   domain.SignalBus

	// Blob storage
	BlobWriter domain.BlobWriter
	BlobReader domain.BlobReader
	Archiver   *s3blob.Archiver

	// Notifications
	Notifier *notify.Notifier

	// Health checks by dependency name.
	Health map[string]handler.Pinger
}

// Wire constructs the concrete collaborators from cfg and returns them
// together with a cleanup function to call on shutdown.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{Health: map[string]handler.Pinger{}}

	// --- PostgreSQL ---
	if cfg.Postgres.Enabled {
		pgClient, err := postgres.New(ctx, postgres.ClientConfig{
			DSN:      cfg.Postgres.DSN,
			Host:     cfg.Postgres.Host,
			Port:     cfg.Postgres.Port,
			Database: cfg.Postgres.Database,
			User:     cfg.Postgres.User,
			Password: cfg.Postgres.Password,
			SSLMode:  cfg.Postgres.SSLMode,
			MaxConns: cfg.Postgres.PoolMaxConns,
			MinConns: cfg.Postgres.PoolMinConns,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: postgres: %w", err)
		}
		closers = append(closers, pgClient.Close)

		if cfg.Postgres.RunMigrations {
			if err := pgClient.RunMigrations(ctx); err != nil {
				cleanup()
				return nil, nil, fmt.Errorf("wire: postgres migrations: %w", err)
			}
		}

		pool := pgClient.Pool()
		deps.Positions = postgres.NewPositionStore(pool)
		deps.Automations = postgres.NewAutomationStore(pool)
		deps.Decisions = postgres.NewDecisionStore(pool)
		deps.Executions = postgres.NewExecutionStore(pool)
		deps.Health["postgres"] = pgClient.Ping
	} else {
		logger.Warn("postgres disabled, positions and records are kept in memory")
		deps.Positions = memory.NewPositionStore()
		deps.Automations = memory.NewAutomationStore()
		deps.Decisions = memory.NewDecisionStore(cfg.Decision.MaxRecords)
		deps.Executions = memory.NewExecutionStore(cfg.Execution.HistoryLimit)
	}

	// --- Redis ---
	if cfg.Redis.Enabled {
		redisClient, err := redis.New(ctx, redis.ClientConfig{
			Addr:       cfg.Redis.Addr,
			Password:   cfg.Redis.Password,
			DB:         cfg.Redis.DB,
			PoolSize:   cfg.Redis.PoolSize,
			MaxRetries: cfg.Redis.MaxRetries,
			TLSEnabled: cfg.Redis.TLSEnabled,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: redis: %w", err)
		}
		closers = append(closers, func() { _ = redisClient.Close() })

		deps.Market = redis.NewMarketData(redisClient, 0, marketHistoryCap)
		deps.BotState = redis.NewBotState(redisClient)
		deps.Tags = redis.NewTagSink(redisClient)
		deps.RateLimiter = redis.NewRateLimiter(redisClient)
		deps.LockManager = redis.NewLockManager(redisClient)
		deps.SignalBus = redis.NewSignalBus(redisClient, int64(cfg.Redis.StreamMaxLen))
		deps.Health["redis"] = redisClient.Ping
	} else {
		logger.Warn("redis disabled, market data and bot state are kept in memory")
		deps.Market = memory.NewMarketData(marketHistoryCap)
		deps.BotState = memory.NewBotState()
		deps.Tags = memory.NewTagSink()
		deps.RateLimiter = middleware.NewLocalLimiter()
	}

	// --- S3 blob storage ---
	if cfg.S3.Enabled {
		s3Client, err := s3blob.New(ctx, s3blob.ClientConfig{
			Endpoint:       cfg.S3.Endpoint,
			Region:         cfg.S3.Region,
			Bucket:         cfg.S3.Bucket,
			AccessKey:      cfg.S3.AccessKey,
			SecretKey:      cfg.S3.SecretKey,
			UseSSL:         cfg.S3.UseSSL,
			ForcePathStyle: cfg.S3.ForcePathStyle,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: s3: %w", err)
		}

		writer := s3blob.NewWriter(s3Client)
		deps.BlobWriter = writer
		deps.BlobReader = s3blob.NewReader(s3Client)
		deps.Archiver = s3blob.NewArchiver(writer, deps.Decisions, deps.Executions)
		deps.Health["s3"] = s3Client.Health
	}

	// --- Notifications ---
	var senders []notify.Sender
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender(
			cfg.Notify.TelegramToken,
			cfg.Notify.TelegramChatID,
			cfg.Notify.MaxRetries,
		))
	}
	if cfg.Notify.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.Notify.DiscordWebhookURL, cfg.Notify.MaxRetries))
	}
	if len(senders) > 0 {
		deps.Notifier = notify.NewNotifier(senders, cfg.Notify.Events, cfg.Notify.PerSecond, logger)
	} else {
		logger.Info("no notification channel configured")
	}

	logger.Info("dependencies wired",
		slog.Bool("postgres", cfg.Postgres.Enabled),
		slog.Bool("redis", cfg.Redis.Enabled),
		slog.Bool("s3", cfg.S3.Enabled),
		slog.Int("notify_channels", len(senders)),
	)
	return deps, cleanup, nil
}

// archiveWindow returns the window an archive pass taken at now covers.
func archiveWindow(now time.Time, interval time.Duration) (since, until time.Time) {
	until = now.UTC().Truncate(time.Hour)
	return until.Add(-interval), until
}

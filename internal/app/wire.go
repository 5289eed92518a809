package app

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	s3blob "github.com/alanyoungcy/perpbot/internal/blob/s3"
	"github.com/alanyoungcy/perpbot/internal/cache/redis"
	"github.com/alanyoungcy/perpbot/internal/config"
	"github.com/alanyoungcy/perpbot/internal/crypto"
	"github.com/alanyoungcy/perpbot/internal/domain"
	"github.com/alanyoungcy/perpbot/internal/executor"
	"github.com/alanyoungcy/perpbot/internal/notify"
	"github.com/alanyoungcy/perpbot/internal/platform/apex"
	"github.com/alanyoungcy/perpbot/internal/service"
	"github.com/alanyoungcy/perpbot/internal/store/postgres"
	"github.com/alanyoungcy/perpbot/internal/throttle"
)

// Dependencies bundles every dependency the application modes need. It is
// constructed by Wire and torn down by the returned cleanup function.
type Dependencies struct {
	Venue    domain.Venue
	Signer   domain.SettlementSigner
	Limiter  domain.RateLimiter
	Account  domain.Account
	Executor *executor.Client
	Orders   *service.OrderService

	Journal  domain.OrderJournal
	Deduper  domain.Deduper
	Archiver domain.Archiver
	Notifier *notify.Notifier
}

// Wire constructs all concrete dependency implementations from the given
// configuration and returns them together with a cleanup function to call
// on shutdown.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{
		Account: domain.Account{
			ID:          cfg.Account.ID,
			APIKey:      cfg.Account.ApiKey,
			APISecret:   cfg.Account.ApiSecret,
			Passphrase:  cfg.Account.Passphrase,
			PositionRef: cfg.Account.PositionRef,
			FeeRateBps:  cfg.Account.FeeRateBps,
		},
	}

	// --- Settlement signer (submit mode only; watch and archive never sign) ---
	if strings.ToLower(cfg.Mode) == "submit" {
		key, err := crypto.LoadKey(crypto.KeyConfig{
			RawPrivateKey:    cfg.Wallet.PrivateKey,
			EncryptedKeyPath: cfg.Wallet.EncryptedKeyPath,
			KeyPassword:      cfg.Wallet.KeyPassword,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: load signing key: %w", err)
		}
		signer, err := crypto.NewSettlementSigner(key, int(cfg.Apex.ChainID))
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: settlement signer: %w", err)
		}
		deps.Signer = signer
	}

	// --- Venue adapter ---
	deps.Venue = apex.NewClient(cfg.Apex.BaseURL, cfg.Apex.WsURL, deps.Account)

	// --- Redis (shared rate gate and dedup) ---
	var gate domain.RateGate
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

		if cfg.Limiter.GateEnabled {
			gate = redis.NewRateGate(redisClient, cfg.Limiter.GateLimit, cfg.Limiter.GateWindow.Duration)
		}
		deps.Deduper = redis.NewDeduper(redisClient, cfg.Execution.DedupWindow.Duration)
	}

	// --- Request limiter ---
	limiterOpts := []throttle.Option{
		throttle.WithQueueDepth(cfg.Limiter.QueueDepth),
	}
	if gate != nil {
		limiterOpts = append(limiterOpts, throttle.WithGate(gate, gateKey(cfg)))
	}
	limiter := throttle.New(cfg.Limiter.Budget, cfg.Limiter.Interval.Duration, logger, limiterOpts...)
	closers = append(closers, limiter.Close)
	deps.Limiter = limiter

	// --- PostgreSQL order journal ---
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

		deps.Journal = postgres.NewOrderJournal(pgClient.Pool())
	}

	// --- S3 journal archiver ---
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
		deps.Archiver = s3blob.NewArchiver(s3blob.NewWriter(s3Client), deps.Journal)
	}

	// --- Notifications ---
	var senders []notify.Sender
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender(
			cfg.Notify.TelegramToken,
			cfg.Notify.TelegramChatID,
		))
	}
	if cfg.Notify.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.Notify.DiscordWebhookURL))
	}
	events := make([]notify.Event, 0, len(cfg.Notify.Events))
	for _, e := range cfg.Notify.Events {
		events = append(events, notify.Event(e))
	}
	deps.Notifier = notify.NewNotifier(senders, events, logger)

	// --- Execution ---
	deps.Executor = executor.NewClient(deps.Venue, deps.Signer, deps.Limiter, logger)
	deps.Orders = service.NewOrderService(deps.Executor, deps.Venue, deps.Journal, deps.Deduper, deps.Notifier, logger)

	return deps, cleanup, nil
}

// gateKey namespaces the shared venue budget per account so two accounts do
// not throttle each other.
func gateKey(cfg *config.Config) string {
	if cfg.Account.ID != "" {
		return "apex:" + cfg.Account.ID
	}
	return "apex:default"
}

// monitorConfig translates config execution defaults into a MonitorConfig.
func monitorConfig(cfg *config.Config) executor.MonitorConfig {
	return executor.MonitorConfig{
		Retries:      cfg.Execution.Retries,
		Timeout:      cfg.Execution.Timeout.Duration,
		PollInterval: cfg.Execution.PollInterval.Duration,
		RetryPause:   cfg.Execution.RetryPause.Duration,
	}
}

// retentionCutoff is the archive boundary derived from the configured
// retention period.
func retentionCutoff(cfg *config.Config, now time.Time) time.Time {
	return now.AddDate(0, 0, -cfg.S3.RetentionDays)
}

// Package app builds the long-lived clients and the workflow dispatcher
// shared by the worker manager and qmsctl.
package app

import (
	"context"
	"fmt"
	"time"

	"qms-workers/internal/common/aws"
	"qms-workers/internal/common/config"
	"qms-workers/internal/common/database"
	commonhttp "qms-workers/internal/common/http"
	"qms-workers/internal/common/logger"
	"qms-workers/internal/common/observability"
	"qms-workers/internal/knowledge"
	"qms-workers/internal/notify"
	"qms-workers/internal/routing"
	"qms-workers/internal/workflow"
	"qms-workers/internal/workflow/storage"
)

const userAgent = "qms-workers/1.0"

// Services is everything a QMS job handler needs at runtime.
type Services struct {
	Postgres      *database.PostgresClient
	Redis         *database.RedisClient
	Elasticsearch *database.ElasticsearchClient
	Knowledge     *knowledge.Agent
	Notifier      *notify.Notifier
	Dispatcher    *workflow.Dispatcher

	log logger.Logger
}

// Options tunes Build.
type Options struct {
	// ConnectRetries bounds the startup ping loop per backing service.
	ConnectRetries int
	RetryDelay     time.Duration
	Observability  *observability.Observability
}

// RetryWithBackoff runs operation until it succeeds or maxRetries attempts
// have failed, doubling the delay after each failure.
func RetryWithBackoff(operation func() error, maxRetries int, initialDelay time.Duration, log logger.Logger, operationName string) error {
	var err error
	delay := initialDelay

	for i := 0; i < maxRetries; i++ {
		err = operation()
		if err == nil {
			return nil
		}

		if i < maxRetries-1 {
			log.Warn(fmt.Sprintf("%s failed, retrying...", operationName), map[string]interface{}{
				"error":       err.Error(),
				"attempt":     i + 1,
				"maxRetries":  maxRetries,
				"nextRetryIn": delay.String(),
			})
			time.Sleep(delay)
			delay *= 2
		}
	}

	return fmt.Errorf("%s failed after %d attempts: %w", operationName, maxRetries, err)
}

// Build connects to Postgres, Elasticsearch and Redis, applies migrations
// when configured and assembles the dispatcher. Close must be called on the
// returned Services even if a later step of the caller fails.
func Build(ctx context.Context, cfg *config.Config, log logger.Logger, opts Options) (*Services, error) {
	if opts.ConnectRetries <= 0 {
		opts.ConnectRetries = 5
	}
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = 2 * time.Second
	}

	svc := &Services{log: log}

	pg, err := database.NewPostgres(cfg.Database.Postgres)
	if err != nil {
		return nil, fmt.Errorf("postgres: %w", err)
	}
	svc.Postgres = pg
	if err := RetryWithBackoff(func() error { return pg.Ping(ctx) }, opts.ConnectRetries, opts.RetryDelay, log, "Postgres connection"); err != nil {
		svc.Close()
		return nil, err
	}
	log.Info("connected to postgres", map[string]interface{}{"host": cfg.Database.Postgres.Host})

	if cfg.Warehouse.MigrateOnStart {
		status, err := database.MigrateUp(pg.DB)
		if err != nil {
			svc.Close()
			return nil, fmt.Errorf("migrate: %w", err)
		}
		log.Info("warehouse schema ready", map[string]interface{}{
			"version": status.Version,
			"changed": status.Changed,
		})
	}

	es, err := database.NewElasticsearch(cfg.Database.Elasticsearch)
	if err != nil {
		svc.Close()
		return nil, fmt.Errorf("elasticsearch: %w", err)
	}
	svc.Elasticsearch = es
	if err := RetryWithBackoff(func() error { return es.Ping(ctx) }, opts.ConnectRetries, opts.RetryDelay, log, "Elasticsearch connection"); err != nil {
		svc.Close()
		return nil, err
	}

	svc.Redis = database.NewRedis(cfg.Database.Redis)
	if err := RetryWithBackoff(func() error { return svc.Redis.Ping(ctx) }, opts.ConnectRetries, opts.RetryDelay, log, "Redis connection"); err != nil {
		svc.Close()
		return nil, err
	}

	svc.Knowledge = knowledge.NewAgent(
		knowledge.NewElasticSearcher(es.Client, cfg.Knowledge.Index, cfg.Knowledge.PageSize),
		knowledge.NewOpenAIReasoner(cfg.Knowledge.OpenAI,
			commonhttp.NewClient(config.GetDuration(cfg.Knowledge.OpenAI.Timeout), userAgent)),
		knowledge.NewCache(svc.Redis.Client, cfg.Knowledge.CachePrefix,
			time.Duration(cfg.Knowledge.CacheTTLSeconds)*time.Second),
		log,
	)

	notifier, err := newNotifier(ctx, cfg.Notifications, log)
	if err != nil {
		svc.Close()
		return nil, err
	}
	svc.Notifier = notifier

	wh := storage.NewPostgres(pg.DB, cfg.Warehouse.Schema)
	svc.Dispatcher = workflow.New(workflow.Deps{
		Rules:             routing.RulesFromConfig(cfg.Routing),
		ChangeRequests:    storage.NewChangeRequests(wh, cfg.Warehouse.Schema, cfg.Warehouse.ResultLimit),
		CorrectiveActions: storage.NewCorrectiveActions(wh, cfg.Warehouse.Schema, cfg.Warehouse.ResultLimit),
		Knowledge:         svc.Knowledge,
		Notifier:          svc.Notifier,
		Defaults:          cfg.Defaults,
		Observability:     opts.Observability,
		Logger:            log,
	})

	return svc, nil
}

// newNotifier only loads AWS credentials when a channel is switched on.
func newNotifier(ctx context.Context, cfg config.NotificationConfig, log logger.Logger) (*notify.Notifier, error) {
	var sesClient notify.SESService
	var snsClient notify.SNSService

	if cfg.SES.Enabled || cfg.SNS.Enabled {
		awsCfg, err := aws.LoadConfig(ctx, cfg.AWS.Region)
		if err != nil {
			return nil, fmt.Errorf("aws config: %w", err)
		}
		if cfg.SES.Enabled {
			sesClient = aws.NewSESClient(awsCfg)
		}
		if cfg.SNS.Enabled {
			snsClient = aws.NewSNSClient(awsCfg)
		}
	}

	n := notify.New(cfg, sesClient, snsClient, log)
	log.Info("notifications configured", map[string]interface{}{
		"ses":     cfg.SES.Enabled,
		"sns":     cfg.SNS.Enabled,
		"enabled": n.Enabled(),
	})
	return n, nil
}

// Ping checks every backing service; the first failure wins.
func (s *Services) Ping(ctx context.Context) error {
	if err := s.Postgres.Ping(ctx); err != nil {
		return err
	}
	if err := s.Elasticsearch.Ping(ctx); err != nil {
		return err
	}
	return s.Redis.Ping(ctx)
}

// Close releases every connection that was opened.
func (s *Services) Close() {
	if s == nil {
		return
	}
	if s.Redis != nil {
		if err := s.Redis.Close(); err != nil {
			s.log.Error("failed to close redis", map[string]interface{}{"error": err.Error()})
		}
	}
	if s.Postgres != nil {
		if err := s.Postgres.Close(); err != nil {
			s.log.Error("failed to close postgres", map[string]interface{}{"error": err.Error()})
		}
	}
}

package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/good-yellow-bee/tuskguard/internal/alerting"
	"github.com/good-yellow-bee/tuskguard/internal/ingest"
	"github.com/good-yellow-bee/tuskguard/internal/notifier"
	"github.com/good-yellow-bee/tuskguard/internal/storage"
	"github.com/good-yellow-bee/tuskguard/internal/tracking"
)

// pipeline holds the components shared by serve and check.
type pipeline struct {
	store      *storage.SQLiteStorage
	redis      *storage.RedisStore
	dispatcher *notifier.Dispatcher
	gate       *alerting.CooldownGate
	raiser     *alerting.Raiser
	checker    *alerting.Checker
	ingestor   *tracking.Ingestor
	geofences  *tracking.GeofenceService
}

// newPipeline opens storage and wires alerting, notification and ingestion.
func newPipeline(ctx context.Context, cfg *Config, logger *zap.Logger) (*pipeline, error) {
	policy, err := cfg.BuildPolicy()
	if err != nil {
		return nil, fmt.Errorf("build policy: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(cfg.Database.Path), 0750); err != nil {
		return nil, fmt.Errorf("create data directory: %w", err)
	}

	p := &pipeline{store: storage.NewSQLiteStorage(cfg.Database.Path)}
	if err := p.store.Open(); err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := p.store.Migrate(); err != nil {
		p.close()
		return nil, fmt.Errorf("migrate database: %w", err)
	}
	logger.Info("database initialized", zap.String("path", cfg.Database.Path))

	if err := seedFleet(ctx, p.store, cfg.Fleet, logger); err != nil {
		p.close()
		return nil, fmt.Errorf("seed fleet: %w", err)
	}

	if cfg.Redis.Enabled {
		p.redis, err = storage.NewRedisStore(ctx, storage.RedisOptions{
			Addr:     cfg.Redis.Address,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			Prefix:   cfg.Redis.Prefix,
		})
		if err != nil {
			p.close()
			return nil, err
		}
		logger.Info("redis cooldown claims enabled", zap.String("addr", cfg.Redis.Address))
	}

	p.dispatcher, err = newDispatcher(cfg, p.store, logger)
	if err != nil {
		p.close()
		return nil, err
	}

	var claims alerting.Claimer
	if p.redis != nil {
		claims = p.redis
	}
	p.gate = alerting.NewCooldownGate(policy, p.store.Alerts(), claims, logger)
	p.raiser = alerting.NewRaiser(p.gate, p.dispatcher, logger)
	if p.redis != nil {
		p.raiser.SetPublisher(p.redis)
	}
	p.checker = alerting.NewChecker(p.store, p.raiser, policy, cfg.Scheduler.Concurrency, logger)

	registry := ingest.NewDefaultRegistry()
	if err := ingest.RegisterProviders(registry, cfg.Providers); err != nil {
		p.close()
		return nil, fmt.Errorf("register providers: %w", err)
	}
	normalizer := ingest.NewNormalizer(registry, p.store.Devices())
	normalizer.SetMaxClockSkew(cfg.Ingest.MaxClockSkew)
	p.ingestor = tracking.NewIngestor(p.store, normalizer, p.raiser, logger)
	p.geofences = tracking.NewGeofenceService(p.store.Geofences(), logger)

	return p, nil
}

func newDispatcher(cfg *Config, store storage.Storage, logger *zap.Logger) (*notifier.Dispatcher, error) {
	d, err := notifier.NewDispatcher(store.Alerts(), logger, notifier.Options{
		Concurrency: cfg.Notifier.Concurrency,
		Timeout:     cfg.Notifier.Timeout,
		RateLimit: notifier.RateLimitConfig{
			MaxPerWindow: cfg.Notifier.MaxPerWindow,
			Window:       cfg.Notifier.Window,
			Enabled:      true,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("create dispatcher: %w", err)
	}

	if cfg.SMTP.Enabled {
		email, err := notifier.NewEmailSender(notifier.EmailConfig{
			Host:     cfg.SMTP.Host,
			Port:     cfg.SMTP.Port,
			Username: cfg.SMTP.Username,
			Password: cfg.SMTP.Password,
			From:     cfg.SMTP.From,
		})
		if err != nil {
			d.Close()
			return nil, err
		}
		d.Register(email)
	}
	if cfg.SMS.Enabled {
		sms, err := notifier.NewSMSSender(notifier.SMSConfig{
			BaseURL:  cfg.SMS.BaseURL,
			Path:     cfg.SMS.Path,
			APIKey:   cfg.SMS.APIKey,
			SenderID: cfg.SMS.SenderID,
			Timeout:  cfg.SMS.Timeout,
			Retries:  cfg.SMS.Retries,
		})
		if err != nil {
			d.Close()
			return nil, err
		}
		d.Register(sms)
	}
	if len(d.Channels()) == 0 {
		logger.Warn("no notification channels configured, alerts are recorded but not delivered")
	}

	return d, nil
}

func (p *pipeline) close() error {
	var errs []error
	if p.dispatcher != nil {
		errs = append(errs, p.dispatcher.Close())
	}
	if p.redis != nil {
		errs = append(errs, p.redis.Close())
	}
	if p.store != nil {
		errs = append(errs, p.store.Close())
	}
	return errors.Join(errs...)
}

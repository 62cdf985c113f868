package main

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/bher20/powerdash/internal/alerting"
	"github.com/bher20/powerdash/internal/billing"
	"github.com/bher20/powerdash/internal/config"
	"github.com/bher20/powerdash/internal/logging"
	"github.com/bher20/powerdash/internal/notification"
	"github.com/bher20/powerdash/internal/storage"
	"github.com/bher20/powerdash/internal/tariff"
	"github.com/bher20/powerdash/internal/telemetry"
)

// app holds the services shared by every subcommand.
type app struct {
	cfg     config.Config
	logger  *zap.Logger
	store   storage.Storage
	catalog *billing.Catalog
	billing *billing.Service
	client  *telemetry.Client
	feed    *telemetry.LiveFeed
}

func newApp(ctx context.Context) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	logger, err := logging.New()
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	store, err := storage.Open(ctx, storageConfig(cfg, logger))
	if err != nil {
		return nil, fmt.Errorf("open storage: %w", err)
	}

	reg, err := buildRegistry(cfg)
	if err != nil {
		store.Close()
		return nil, err
	}
	catalog := billing.NewCatalog(reg, store, logger)
	if err := catalog.Load(ctx); err != nil {
		store.Close()
		return nil, fmt.Errorf("load schedules: %w", err)
	}

	client := telemetry.NewClient(cfg.BackendHTTPURL,
		telemetry.WithHTTPClient(telemetry.NewHTTPClient(cfg.HTTPTimeout, false)),
		telemetry.WithDevice(cfg.DeviceID),
		telemetry.WithLogger(logger),
	)

	var feed *telemetry.LiveFeed
	source := telemetry.MeteredFirst{Metered: client}
	if wsURL := telemetry.DeriveWSURL(cfg.BackendHTTPURL, cfg.BackendWSURL); wsURL != "" {
		if target, err := telemetry.WithParams(wsURL, map[string]string{"device": cfg.DeviceID}); err == nil {
			feed = telemetry.NewLiveFeed(target, telemetry.WithFeedLogger(logger))
			source.Live = feed
		} else {
			logger.Warn("live feed disabled: bad url", zap.String("url", wsURL), zap.Error(err))
		}
	}

	svc := billing.NewService(billing.Config{
		DefaultSchedule:     cfg.DefaultSchedule,
		TodayEstimateHours:  cfg.TodayEstimateHours,
		WeeklyEstimateHours: cfg.WeeklyEstimateHours,
		DailyBudget:         cfg.DailyBudget,
	}, catalog, source,
		billing.WithStorage(store),
		billing.WithWeekSource(client),
		billing.WithNotifiers(notifiers(cfg, logger)...),
		billing.WithLogger(logger),
	)

	return &app{
		cfg:     cfg,
		logger:  logger,
		store:   store,
		catalog: catalog,
		billing: svc,
		client:  client,
		feed:    feed,
	}, nil
}

func (a *app) Close() {
	if err := a.store.Close(); err != nil {
		a.logger.Warn("close storage", zap.Error(err))
	}
	_ = a.logger.Sync()
}

func storageConfig(cfg config.Config, logger *zap.Logger) storage.Config {
	return storage.Config{
		Driver:      cfg.DBDriver,
		DSN:         cfg.DBDSN,
		AutoMigrate: cfg.AutoMigrate,
		Logger:      logger,
	}
}

// buildRegistry starts from the built-in schedules and overlays the
// schedules file, if one is configured.
func buildRegistry(cfg config.Config) (*tariff.Registry, error) {
	reg, err := tariff.NewRegistry(tariff.Defaults())
	if err != nil {
		return nil, fmt.Errorf("built-in schedules: %w", err)
	}
	if cfg.SchedulesFile == "" {
		return reg, nil
	}
	list, err := tariff.LoadSchedulesYAML(cfg.SchedulesFile)
	if err != nil {
		return nil, err
	}
	for _, s := range list {
		if err := reg.Put(s); err != nil {
			return nil, fmt.Errorf("schedule %q: %w", s.Key, err)
		}
	}
	return reg, nil
}

func notifiers(cfg config.Config, logger *zap.Logger) []billing.Notifier {
	var out []billing.Notifier
	if alerter := alerting.NewAlerter(alerting.NewAlertConfig(cfg.AlertWebhookURL, cfg.AlertWebhookType), logger); alerter.Enabled() {
		out = append(out, alerter)
	}
	mailer := notification.NewService(notification.Config{
		APIKey:      cfg.SendgridAPIKey,
		FromAddress: cfg.AlertEmailFrom,
		To:          cfg.AlertEmailTo,
	}, logger)
	if mailer.Enabled() {
		out = append(out, mailer)
	}
	return out
}

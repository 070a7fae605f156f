package container

import (
	"context"
	"fmt"
	"net/http"

	"github.com/saulo-duarte/chronos-goals/internal/auth"
	"github.com/saulo-duarte/chronos-goals/internal/config"
	"github.com/saulo-duarte/chronos-goals/internal/event"
	"github.com/saulo-duarte/chronos-goals/internal/goal"
	"github.com/saulo-duarte/chronos-goals/internal/history"
	"github.com/saulo-duarte/chronos-goals/internal/lock"
	"github.com/saulo-duarte/chronos-goals/internal/metric"
	"github.com/saulo-duarte/chronos-goals/internal/router"
	"github.com/saulo-duarte/chronos-goals/internal/scheduler"
)

type Container struct {
	Settings      *config.Settings
	GoalContainer *goal.Container
	Scheduler     *scheduler.Scheduler
	Publisher     event.Publisher
}

// New reads the settings, connects the database and wires every component.
func New(ctx context.Context) (*Container, error) {
	settings, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load settings: %w", err)
	}
	config.Init()
	auth.Init()

	if err := config.Connect(ctx, settings.DatabaseDSN); err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}

	log := config.WithContext(ctx)

	var locker lock.Locker = lock.NewLocalLocker()
	if settings.RedisAddress != "" {
		redisLocker, err := lock.Connect(ctx, settings.RedisAddress, settings.LockTTL, settings.LockWait)
		if err != nil {
			return nil, err
		}
		locker = redisLocker
		log.WithField("address", settings.RedisAddress).Info("Using redis goal locks")
	} else {
		log.Warn("REDIS_ADDRESS not set, goal locks only hold within this process")
	}

	var publisher event.Publisher = event.LogPublisher{}
	if settings.PubSubProjectID != "" && settings.PubSubTopic != "" {
		pubsubPublisher, err := event.NewPubSubPublisher(ctx, settings.PubSubProjectID, settings.PubSubTopic)
		if err != nil {
			return nil, fmt.Errorf("connect pubsub: %w", err)
		}
		publisher = pubsubPublisher
	}

	provider := metric.NewGuarded(
		metric.NewHTTPProvider(settings.MetricProviderURL, settings.MetricRequestTimeout),
		metric.GuardOptions{
			RatePerSecond: settings.MetricRatePerSecond,
			MaxAttempts:   settings.MetricRetryAttempts,
		},
	)

	goalContainer := goal.NewContainer(config.DB, provider, locker, publisher, settings.ForecastTrailingDays)

	sched := scheduler.New(goalContainer.Service, scheduler.Options{
		Spec:           settings.SchedulerSpec,
		Concurrency:    settings.SchedulerConcurrency,
		RetryTransient: settings.SchedulerRetryTransient,
	})

	return &Container{
		Settings:      settings,
		GoalContainer: goalContainer,
		Scheduler:     sched,
		Publisher:     publisher,
	}, nil
}

// Migrate creates or updates the goal, team and history tables.
func (c *Container) Migrate() error {
	if err := goal.AutoMigrate(config.DB); err != nil {
		return err
	}
	return history.AutoMigrate(config.DB)
}

func (c *Container) Router() http.Handler {
	return router.New(router.RouterConfig{
		GoalHandler:  c.GoalContainer.Handler,
		CookieDomain: c.Settings.CookieDomain,
	})
}

// Close releases the publisher when it holds a connection.
func (c *Container) Close() error {
	if closer, ok := c.Publisher.(interface{ Close() error }); ok {
		return closer.Close()
	}
	return nil
}

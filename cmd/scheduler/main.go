package main

import (
	"context"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"

	"github.com/saulo-duarte/chronos-goals/internal/config"
	"github.com/saulo-duarte/chronos-goals/internal/container"
	"github.com/saulo-duarte/chronos-goals/internal/scheduler"
)

var sched *scheduler.Scheduler

// handler runs one scan per EventBridge tick.
func handler(ctx context.Context, tick events.CloudWatchEvent) (scheduler.RunReport, error) {
	config.WithContext(ctx).WithField("event_id", tick.ID).Debug("Scheduled tick received")
	return sched.RunOnce(ctx)
}

func main() {
	c, err := container.New(context.Background())
	if err != nil {
		config.Logger().WithError(err).Fatal("Failed to start scheduler")
	}
	sched = c.Scheduler
	lambda.Start(handler)
}

// Command worker long-polls the processing queue and runs document
// processing attempts outside the request path.
package main

import (
	"context"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sqs"

	"medocs-backend/internal/bootstrap"
	"medocs-backend/internal/shared/config"
	"medocs-backend/internal/shared/telemetry"
)

func main() {
	if err := run(); err != nil {
		telemetry.Error("worker.exit", map[string]any{"err": err})
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	queueURL := strings.TrimSpace(cfg.ProcessingQueueURL)
	if queueURL == "" {
		return errMissingQueue
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	opts := []func(*awsconfig.LoadOptions) error{}
	if cfg.AWSRegion != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.AWSRegion))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return err
	}

	app, err := bootstrap.Build(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = app.Close() }()

	p := &poller{
		client:      sqs.NewFromConfig(awsCfg),
		queueURL:    queueURL,
		exec:        app.Processing,
		concurrency: max(1, cfg.WorkerConcurrency),
		visibility:  time.Duration(cfg.SQSVisibilityTimeoutSecs) * time.Second,
		drain:       time.Duration(cfg.ShutdownTimeoutSeconds) * time.Second,
	}
	p.run(ctx)
	return nil
}

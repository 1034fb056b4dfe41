package main

// Build the Lambda handler binary:
//   GOOS=linux GOARCH=arm64 CGO_ENABLED=0 go build -o bootstrap ./cmd/lambda-worker

import (
	"context"
	"fmt"
	"sync"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"

	"medocs-backend/internal/bootstrap"
	"medocs-backend/internal/shared/config"
	"medocs-backend/internal/shared/metrics"
	"medocs-backend/internal/shared/telemetry"
	"medocs-backend/internal/workerproc"
)

// consumer handles SQS batches with partial batch responses. The executor
// is built once per execution environment.
type consumer struct {
	build func() (workerproc.Executor, error)

	once sync.Once
	err  error
	exec workerproc.Executor
}

func (c *consumer) handle(ctx context.Context, event events.SQSEvent) (events.SQSEventResponse, error) {
	c.once.Do(func() { c.exec, c.err = c.build() })
	if c.err != nil {
		// Failing the invocation returns the whole batch to the queue.
		return events.SQSEventResponse{}, fmt.Errorf("bootstrap: %w", c.err)
	}
	return process(ctx, c.exec, event.Records), nil
}

// process reports only retryable failures. Unrecoverable messages are
// acknowledged so they leave the queue, and a repeated document attempt
// within one batch runs once.
func process(ctx context.Context, exec workerproc.Executor, records []events.SQSMessage) events.SQSEventResponse {
	var resp events.SQSEventResponse
	seen := map[string]string{}
	for _, rec := range records {
		metrics.IncJobsReceived()
		fields := map[string]any{
			"sqs_message_id": rec.MessageId,
			"receive_count":  rec.Attributes["ApproximateReceiveCount"],
		}

		msg, _, err := workerproc.ParseMessage(rec.Body)
		if err == nil {
			fields["document_id"] = msg.DocumentID
			fields["attempt"] = msg.Attempt
			if first, dup := seen[msg.DedupID()]; dup {
				fields["duplicate_of"] = first
				telemetry.Info("lambda_worker.duplicate", fields)
				continue
			}
			seen[msg.DedupID()] = rec.MessageId
			err = workerproc.Run(ctx, exec, msg)
		}

		switch {
		case err == nil:
			metrics.IncJobsCompleted()
		case workerproc.Unrecoverable(err):
			fields["err"] = err
			telemetry.Error("lambda_worker.dropped", fields)
			metrics.IncJobsDeletedUnrecoverable()
		default:
			fields["err"] = err
			telemetry.Error("lambda_worker.failed", fields)
			metrics.IncJobsFailed()
			resp.BatchItemFailures = append(resp.BatchItemFailures, events.SQSBatchItemFailure{ItemIdentifier: rec.MessageId})
		}
	}
	return resp
}

func buildExecutor() (workerproc.Executor, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	app, err := bootstrap.Build(cfg)
	if err != nil {
		return nil, err
	}
	return app.Processing, nil
}

func main() {
	c := &consumer{build: buildExecutor}
	lambda.Start(c.handle)
}

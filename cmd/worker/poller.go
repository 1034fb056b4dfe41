package main

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	sqstypes "github.com/aws/aws-sdk-go-v2/service/sqs/types"

	"medocs-backend/internal/shared/metrics"
	"medocs-backend/internal/shared/telemetry"
	"medocs-backend/internal/workerproc"
)

var errMissingQueue = errors.New("PROCESSING_QUEUE_URL is required")

const (
	receiveBatch      = 10
	longPollSeconds   = 20
	receiveErrorPause = time.Second
	firstRetryDelay   = 15 * time.Second
	// SQS caps visibility at 12 hours; retries never wait that long.
	maxRetryDelay = 15 * time.Minute
)

type queueAPI interface {
	ReceiveMessage(ctx context.Context, params *sqs.ReceiveMessageInput, optFns ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error)
	DeleteMessage(ctx context.Context, params *sqs.DeleteMessageInput, optFns ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error)
	ChangeMessageVisibility(ctx context.Context, params *sqs.ChangeMessageVisibilityInput, optFns ...func(*sqs.Options)) (*sqs.ChangeMessageVisibilityOutput, error)
}

type poller struct {
	client      queueAPI
	queueURL    string
	exec        workerproc.Executor
	concurrency int
	visibility  time.Duration
	drain       time.Duration
}

// run receives until ctx is cancelled, then waits up to p.drain for
// in-flight attempts.
func (p *poller) run(ctx context.Context) {
	slots := make(chan struct{}, max(1, p.concurrency))
	var inflight sync.WaitGroup

	telemetry.Info("worker.started", map[string]any{
		"queue":       p.queueURL,
		"concurrency": cap(slots),
		"visibility":  p.visibility.String(),
	})

	for ctx.Err() == nil {
		batch, err := p.receive(ctx)
		if err != nil {
			if ctx.Err() == nil {
				telemetry.Error("worker.receive_failed", map[string]any{"err": err})
				pause(ctx, receiveErrorPause)
			}
			continue
		}
		for _, msg := range batch {
			select {
			case slots <- struct{}{}:
			case <-ctx.Done():
				// Unstarted messages reappear after their visibility timeout.
				p.wait(&inflight)
				return
			}
			metrics.IncJobsReceived()
			inflight.Add(1)
			go func(msg sqstypes.Message) {
				defer func() {
					<-slots
					inflight.Done()
				}()
				p.handle(context.WithoutCancel(ctx), msg)
			}(msg)
		}
	}
	p.wait(&inflight)
}

func (p *poller) receive(ctx context.Context) ([]sqstypes.Message, error) {
	in := &sqs.ReceiveMessageInput{
		QueueUrl:                    aws.String(p.queueURL),
		MaxNumberOfMessages:         receiveBatch,
		WaitTimeSeconds:             longPollSeconds,
		MessageSystemAttributeNames: []sqstypes.MessageSystemAttributeName{sqstypes.MessageSystemAttributeNameApproximateReceiveCount},
		MessageAttributeNames:       []string{"All"},
	}
	if p.visibility > 0 {
		in.VisibilityTimeout = int32(p.visibility / time.Second)
	}
	out, err := p.client.ReceiveMessage(ctx, in)
	if err != nil {
		return nil, err
	}
	return out.Messages, nil
}

func (p *poller) wait(inflight *sync.WaitGroup) {
	telemetry.Info("worker.draining", map[string]any{"timeout": p.drain.String()})
	done := make(chan struct{})
	go func() {
		inflight.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(p.drain):
		telemetry.Warn("worker.drain_timeout", nil)
	}
}

// handle runs one message. Completed and unrecoverable messages are deleted;
// anything else is made visible again after a growing delay.
func (p *poller) handle(ctx context.Context, msg sqstypes.Message) {
	received := receiveCount(msg)
	fields := map[string]any{
		"sqs_message_id": aws.ToString(msg.MessageId),
		"receive_count":  received,
	}

	decoded, meta, err := workerproc.ParseMessage(aws.ToString(msg.Body))
	if decoded.DocumentID != "" {
		fields["document_id"] = decoded.DocumentID
	}
	if decoded.RequestID != "" {
		fields["request_id"] = decoded.RequestID
	}
	if err != nil {
		fields["body_len"] = meta.Len
		fields["body_sha256"] = meta.SHA256
		fields["err"] = err
		telemetry.Error("worker.message.invalid", fields)
		if p.ack(ctx, msg, fields) {
			metrics.IncJobsDeletedUnrecoverable()
		}
		return
	}
	fields["attempt"] = decoded.Attempt

	if err := workerproc.Run(ctx, p.exec, decoded); err != nil {
		fields["err"] = err
		if workerproc.Unrecoverable(err) {
			telemetry.Error("worker.message.unrecoverable", fields)
			if p.ack(ctx, msg, fields) {
				metrics.IncJobsDeletedUnrecoverable()
			}
			return
		}
		delay := retryDelay(received, p.visibility)
		fields["retry_in"] = delay.String()
		telemetry.Error("worker.message.failed", fields)
		metrics.IncJobsFailed()
		p.postpone(ctx, msg, delay, fields)
		return
	}

	if p.ack(ctx, msg, fields) {
		telemetry.Info("worker.message.done", fields)
		metrics.IncJobsCompleted()
	}
}

func (p *poller) ack(ctx context.Context, msg sqstypes.Message, fields map[string]any) bool {
	if msg.ReceiptHandle == nil {
		telemetry.Error("worker.message.ack_failed", withErr(fields, "missing receipt handle"))
		return false
	}
	_, err := p.client.DeleteMessage(ctx, &sqs.DeleteMessageInput{
		QueueUrl:      aws.String(p.queueURL),
		ReceiptHandle: msg.ReceiptHandle,
	})
	if err != nil {
		telemetry.Error("worker.message.ack_failed", withErr(fields, err))
		return false
	}
	return true
}

// postpone shortens the visibility timeout so a failed message is retried
// sooner than the full processing window. Failure here only delays the retry.
func (p *poller) postpone(ctx context.Context, msg sqstypes.Message, delay time.Duration, fields map[string]any) {
	if msg.ReceiptHandle == nil {
		return
	}
	_, err := p.client.ChangeMessageVisibility(ctx, &sqs.ChangeMessageVisibilityInput{
		QueueUrl:          aws.String(p.queueURL),
		ReceiptHandle:     msg.ReceiptHandle,
		VisibilityTimeout: int32(delay / time.Second),
	})
	if err != nil {
		telemetry.Warn("worker.message.postpone_failed", withErr(fields, err))
	}
}

// retryDelay doubles from firstRetryDelay with each receive, bounded by the
// queue's visibility window.
func retryDelay(receiveCount int, visibility time.Duration) time.Duration {
	limit := maxRetryDelay
	if visibility > 0 && visibility < limit {
		limit = visibility
	}
	delay := firstRetryDelay
	for i := 1; i < receiveCount && delay < limit; i++ {
		delay *= 2
	}
	return min(delay, limit)
}

func pause(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

func receiveCount(msg sqstypes.Message) int {
	n, err := strconv.Atoi(msg.Attributes[string(sqstypes.MessageSystemAttributeNameApproximateReceiveCount)])
	if err != nil {
		return 0
	}
	return n
}

func withErr(fields map[string]any, err any) map[string]any {
	out := make(map[string]any, len(fields)+1)
	for k, v := range fields {
		out[k] = v
	}
	out["err"] = err
	return out
}

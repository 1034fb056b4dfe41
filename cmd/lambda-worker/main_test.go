package main

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-lambda-go/events"

	"medocs-backend/internal/documents"
	"medocs-backend/internal/queue"
	"medocs-backend/internal/workerproc"
)

type scriptedExecutor map[string]error

func (s scriptedExecutor) Execute(_ context.Context, documentID string, attempt int) (documents.Document, error) {
	return documents.Document{ID: documentID, Attempt: attempt}, s[documentID]
}

func record(t *testing.T, id string, msg queue.Message) events.SQSMessage {
	t.Helper()
	body, err := queue.EncodeMessage(msg)
	if err != nil {
		t.Fatalf("EncodeMessage: %v", err)
	}
	return events.SQSMessage{MessageId: id, Body: string(body)}
}

func TestProcessReportsOnlyRetryableFailures(t *testing.T) {
	exec := scriptedExecutor{
		"doc-retry": errors.New("timeout"),
		"doc-gone":  documents.ErrNotFound,
	}
	records := []events.SQSMessage{
		record(t, "ok", queue.Message{DocumentID: "doc-ok", Attempt: 1}),
		record(t, "retry", queue.Message{DocumentID: "doc-retry", Attempt: 1}),
		record(t, "gone", queue.Message{DocumentID: "doc-gone", Attempt: 1}),
		{MessageId: "garbage", Body: "not json"},
	}

	resp := process(context.Background(), exec, records)

	if len(resp.BatchItemFailures) != 1 || resp.BatchItemFailures[0].ItemIdentifier != "retry" {
		t.Fatalf("unexpected failures %+v", resp.BatchItemFailures)
	}
}

type countingExecutor struct{ calls map[string]int }

func (c *countingExecutor) Execute(_ context.Context, documentID string, attempt int) (documents.Document, error) {
	c.calls[documentID]++
	return documents.Document{ID: documentID, Attempt: attempt}, nil
}

func TestProcessRunsRepeatedAttemptOnce(t *testing.T) {
	exec := &countingExecutor{calls: map[string]int{}}
	records := []events.SQSMessage{
		record(t, "a", queue.Message{DocumentID: "doc-1", Attempt: 2}),
		record(t, "b", queue.Message{DocumentID: "doc-1", Attempt: 2}),
		record(t, "c", queue.Message{DocumentID: "doc-1", Attempt: 3}),
	}

	resp := process(context.Background(), exec, records)

	if len(resp.BatchItemFailures) != 0 {
		t.Fatalf("unexpected failures %+v", resp.BatchItemFailures)
	}
	if exec.calls["doc-1"] != 2 {
		t.Fatalf("expected 2 executions, got %d", exec.calls["doc-1"])
	}
}

func TestBootstrapFailureFailsInvocation(t *testing.T) {
	builds := 0
	c := &consumer{build: func() (workerproc.Executor, error) {
		builds++
		return nil, errors.New("no database")
	}}
	event := events.SQSEvent{Records: []events.SQSMessage{record(t, "m", queue.Message{DocumentID: "d", Attempt: 1})}}

	for i := 0; i < 2; i++ {
		if _, err := c.handle(context.Background(), event); err == nil {
			t.Fatal("expected error")
		}
	}
	if builds != 1 {
		t.Fatalf("expected one build, got %d", builds)
	}
}

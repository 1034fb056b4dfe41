// Package workerproc turns queue payloads into processing attempts and
// decides which failures are worth a redelivery. It is shared by the
// long-polling worker and the Lambda SQS handler.
package workerproc

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"

	"medocs-backend/internal/documents"
	"medocs-backend/internal/queue"
	"medocs-backend/internal/shared/telemetry"
)

// Executor runs a queued processing attempt.
type Executor interface {
	Execute(ctx context.Context, documentID string, attempt int) (documents.Document, error)
}

// BodyMeta identifies a payload in logs without printing it.
type BodyMeta struct {
	Len    int
	SHA256 string
}

func bodyMeta(body string) BodyMeta {
	if body == "" {
		return BodyMeta{}
	}
	sum := sha256.Sum256([]byte(body))
	return BodyMeta{Len: len(body), SHA256: hex.EncodeToString(sum[:])}
}

// ErrEmptyBody is returned for blank payloads.
type ErrEmptyBody struct{ Meta BodyMeta }

func (e ErrEmptyBody) Error() string { return "empty message body" }

// ErrDecode wraps a JSON decoding failure.
type ErrDecode struct {
	Meta BodyMeta
	Err  error
}

func (e ErrDecode) Error() string { return "decode message: " + errString(e.Err) }
func (e ErrDecode) Unwrap() error { return e.Err }

// ErrInvalid wraps a decoded message that fails validation.
type ErrInvalid struct {
	Meta      BodyMeta
	RequestID string
	Err       error
}

func (e ErrInvalid) Error() string { return errString(e.Err) }
func (e ErrInvalid) Unwrap() error { return e.Err }

// ErrProcess wraps a failure from the attempt itself.
type ErrProcess struct {
	DocumentID string
	Attempt    int
	RequestID  string
	Err        error
}

func (e ErrProcess) Error() string { return "process document: " + errString(e.Err) }
func (e ErrProcess) Unwrap() error { return e.Err }

func errString(err error) string {
	if err == nil {
		return "unknown error"
	}
	return err.Error()
}

// ParseMessage decodes and validates a payload. The returned BodyMeta is
// filled even on error so callers can log it.
func ParseMessage(body string) (queue.Message, BodyMeta, error) {
	meta := bodyMeta(body)
	if strings.TrimSpace(body) == "" {
		return queue.Message{}, meta, ErrEmptyBody{Meta: meta}
	}
	msg, err := queue.DecodeMessage([]byte(body))
	if err != nil {
		return queue.Message{}, meta, ErrDecode{Meta: meta, Err: err}
	}
	if err := msg.Validate(); err != nil {
		return msg, meta, ErrInvalid{Meta: meta, RequestID: msg.RequestID, Err: err}
	}
	return msg, meta, nil
}

// Unrecoverable reports whether redelivering the message can never help:
// malformed payloads, and attempts for documents that no longer exist.
func Unrecoverable(err error) bool {
	var (
		empty  ErrEmptyBody
		decode ErrDecode
	)
	return errors.As(err, &empty) ||
		errors.As(err, &decode) ||
		errors.Is(err, queue.ErrInvalidMessage) ||
		errors.Is(err, documents.ErrNotFound)
}

// Run executes a parsed message under its request ID.
func Run(ctx context.Context, exec Executor, msg queue.Message) error {
	if exec == nil {
		return errors.New("processing executor not configured")
	}
	ctx = telemetry.WithRequestID(ctx, msg.RequestID)
	if _, err := exec.Execute(ctx, msg.DocumentID, msg.Attempt); err != nil {
		return ErrProcess{DocumentID: msg.DocumentID, Attempt: msg.Attempt, RequestID: msg.RequestID, Err: err}
	}
	return nil
}

// HandleMessage parses body and runs the attempt it names.
func HandleMessage(ctx context.Context, exec Executor, body string) error {
	msg, _, err := ParseMessage(body)
	if err != nil {
		return err
	}
	return Run(ctx, exec, msg)
}

package processing

import (
	"errors"
	"strings"
	"unicode/utf8"
)

var (
	// ErrExternalService marks a failed pipeline step.
	ErrExternalService = errors.New("external service failure")
	// ErrQueueNotConfigured is returned by Enqueue without a queue client.
	ErrQueueNotConfigured = errors.New("processing queue not configured")
)

// Pipeline steps, in execution order.
const (
	StepLoad               = "load"
	StepExtractText        = "extract_text"
	StepClassify           = "classify"
	StepSimplify           = "simplify"
	StepExtractMedications = "extract_medications"
)

// ExternalServiceError reports which pipeline step failed.
type ExternalServiceError struct {
	Step string
	Err  error
}

func (e *ExternalServiceError) Error() string {
	if e.Err == nil {
		return e.Step + " failed"
	}
	return e.Step + " failed: " + e.Err.Error()
}

func (e *ExternalServiceError) Unwrap() []error {
	return []error{ErrExternalService, e.Err}
}

const maxErrorLen = 500

// sanitizeError flattens err into the single-line message stored on the
// document.
func sanitizeError(err error) string {
	if err == nil {
		return ""
	}
	msg := strings.ReplaceAll(err.Error(), "\n", " ")
	msg = strings.ReplaceAll(msg, "\r", " ")
	msg = strings.TrimSpace(msg)
	if len(msg) > maxErrorLen {
		msg = msg[:maxErrorLen]
		for !utf8.ValidString(msg) {
			msg = msg[:len(msg)-1]
		}
	}
	return msg
}

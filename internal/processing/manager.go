package processing

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"

	"medocs-backend/internal/documents"
	"medocs-backend/internal/extract"
	"medocs-backend/internal/llm"
	"medocs-backend/internal/medications"
	"medocs-backend/internal/queue"
	"medocs-backend/internal/shared/metrics"
	"medocs-backend/internal/shared/storage/object"
	"medocs-backend/internal/shared/telemetry"
)

// StartOutcome tells the caller whether StartProcessing began a new attempt.
type StartOutcome string

const (
	OutcomeStarted           StartOutcome = "started"
	OutcomeAlreadyProcessing StartOutcome = "already_processing"
)

// Result is the output of a successful pipeline run.
type Result struct {
	Classification documents.DocumentType
	ExtractedText  string
	SimplifiedText string
	Medications    []llm.Medication
}

// Manager drives a document through its processing lifecycle.
type Manager struct {
	Docs        documents.DocumentsRepo
	Medications medications.Repo
	Store       object.ObjectStore
	LLM         llm.Client
	Queue       queue.Client
	Now         func() time.Time
}

func (m *Manager) now() time.Time {
	if m.Now != nil {
		return m.Now().UTC()
	}
	return time.Now().UTC()
}

// StartProcessing moves the document to processing with a new attempt
// number. A document already processing is left alone unless force is set;
// that case returns the current record with OutcomeAlreadyProcessing.
func (m *Manager) StartProcessing(ctx context.Context, documentID string, force bool) (documents.Document, StartOutcome, error) {
	states := []documents.State{documents.StatePending, documents.StateProcessed, documents.StateError}
	if force {
		states = append(states, documents.StateProcessing)
	}

	startedAt := m.now()
	processing := documents.StateProcessing
	doc, err := m.Docs.CompareAndUpdate(ctx, documentID, documents.Condition{States: states}, documents.Update{
		State:                &processing,
		ClearProcessingError: true,
		BumpAttempt:          true,
		ProcessingStartedAt:  &startedAt,
	})
	if errors.Is(err, documents.ErrConditionFailed) {
		metrics.IncProcessingInProgress()
		telemetry.Info("document.status", map[string]any{
			"request_id":  telemetry.RequestID(ctx),
			"user_id":     doc.UserID,
			"document_id": doc.ID,
			"attempt":     doc.Attempt,
			"status":      string(doc.State),
			"outcome":     string(OutcomeAlreadyProcessing),
		})
		return doc, OutcomeAlreadyProcessing, nil
	}
	if err != nil {
		return documents.Document{}, "", err
	}

	metrics.IncProcessingStarted()
	telemetry.Info("document.status", map[string]any{
		"request_id":        telemetry.RequestID(ctx),
		"user_id":           doc.UserID,
		"document_id":       doc.ID,
		"attempt":           doc.Attempt,
		"status":            string(documents.StateProcessing),
		"status_transition": "->processing",
		"forced":            force,
	})
	return doc, OutcomeStarted, nil
}

// RunPipeline loads the stored object and runs extraction, classification,
// simplification and medication extraction in that order. The first failing
// step aborts the run with an *ExternalServiceError.
func (m *Manager) RunPipeline(ctx context.Context, doc documents.Document) (Result, error) {
	if m.Store == nil || m.LLM == nil {
		return Result{}, &ExternalServiceError{Step: StepLoad, Err: errors.New("missing store or llm dependencies")}
	}

	data, err := m.load(ctx, doc.StorageKey)
	if err != nil {
		return Result{}, &ExternalServiceError{Step: StepLoad, Err: fmt.Errorf("document %s: %w", doc.ID, err)}
	}

	var result Result
	content := llm.Content{Data: data, MimeType: doc.MimeType}
	if !content.IsImage() {
		text, err := extract.ExtractTextFromBytes(ctx, data, doc.MimeType, doc.Name)
		if err != nil {
			return Result{}, &ExternalServiceError{Step: StepExtractText, Err: fmt.Errorf("document %s mime %s: %w", doc.ID, doc.MimeType, err)}
		}
		if err := extract.SaveExtracted(ctx, m.Store, doc.StorageKey, text); err != nil && !errors.Is(err, extract.ErrNoKeySaver) {
			telemetry.Warn("document.extracted_copy_failed", map[string]any{
				"request_id":  telemetry.RequestID(ctx),
				"document_id": doc.ID,
				"error":       err.Error(),
			})
		}
		result.ExtractedText = text
		content = llm.Content{Text: text, MimeType: doc.MimeType}
	}

	docType, err := m.LLM.Classify(ctx, content)
	if err != nil {
		return Result{}, &ExternalServiceError{Step: StepClassify, Err: err}
	}
	result.Classification = documents.ParseDocumentType(string(docType))

	simplified, err := m.LLM.Simplify(ctx, content, result.Classification)
	if err != nil {
		return Result{}, &ExternalServiceError{Step: StepSimplify, Err: err}
	}
	if strings.TrimSpace(simplified) == "" {
		return Result{}, &ExternalServiceError{Step: StepSimplify, Err: errors.New("empty simplified text")}
	}
	result.SimplifiedText = simplified

	meds, err := m.LLM.ExtractMedications(ctx, content)
	if err != nil {
		return Result{}, &ExternalServiceError{Step: StepExtractMedications, Err: err}
	}
	if meds == nil {
		meds = []llm.Medication{}
	}
	result.Medications = meds
	return result, nil
}

// CompleteProcessing records a successful attempt: the occurrence batch,
// under the attempt's generation, and the move to processed commit together.
// A document no longer on this attempt yields ErrInvalidTransition and keeps
// its previous batch.
func (m *Manager) CompleteProcessing(ctx context.Context, documentID string, attempt int, result Result) (documents.Document, error) {
	doc, err := m.Docs.Get(ctx, documentID)
	if err != nil {
		return documents.Document{}, err
	}
	if doc.State != documents.StateProcessing || doc.Attempt != attempt {
		return doc, staleAttempt(doc, attempt)
	}

	processed := documents.StateProcessed
	classification := documents.ParseDocumentType(string(result.Classification))
	extracted := result.ExtractedText
	simplified := result.SimplifiedText
	processedAt := m.now()
	cond := documents.Condition{
		States:  []documents.State{documents.StateProcessing},
		Attempt: attempt,
	}
	upd := documents.Update{
		State:                &processed,
		Classification:       &classification,
		ExtractedText:        &extracted,
		SimplifiedText:       &simplified,
		ClearProcessingError: true,
		ProcessedAt:          &processedAt,
	}

	var updated documents.Document
	var occs []medications.Occurrence
	if m.Medications != nil {
		occs = toOccurrences(doc, attempt, result.Medications, processedAt)
		updated, err = m.Medications.Complete(ctx, medications.Completion{
			DocumentID:  documentID,
			UserID:      doc.UserID,
			Generation:  attempt,
			Occurrences: occs,
			Condition:   cond,
			Update:      upd,
		})
	} else {
		updated, err = m.Docs.CompareAndUpdate(ctx, documentID, cond, upd)
	}
	switch {
	case errors.Is(err, documents.ErrConditionFailed):
		return updated, staleAttempt(updated, attempt)
	case errors.Is(err, medications.ErrStaleGeneration):
		return doc, fmt.Errorf("%w: %w", documents.ErrInvalidTransition, err)
	case err != nil:
		return documents.Document{}, err
	}
	metrics.AddMedicationOccurrences(len(occs))
	return updated, nil
}

// FailProcessing moves the attempt to error with message. Output from an
// earlier successful run is kept.
func (m *Manager) FailProcessing(ctx context.Context, documentID string, attempt int, message string) (documents.Document, error) {
	failed := documents.StateError
	updated, err := m.Docs.CompareAndUpdate(ctx, documentID, documents.Condition{
		States:  []documents.State{documents.StateProcessing},
		Attempt: attempt,
	}, documents.Update{
		State:           &failed,
		ProcessingError: &message,
	})
	if errors.Is(err, documents.ErrConditionFailed) {
		return updated, staleAttempt(updated, attempt)
	}
	if err != nil {
		return documents.Document{}, err
	}
	return updated, nil
}

// Process starts an attempt and runs it to completion in the caller's
// goroutine. Pipeline failures come back as a document in the error state.
func (m *Manager) Process(ctx context.Context, documentID string, force bool) (documents.Document, StartOutcome, error) {
	doc, outcome, err := m.StartProcessing(ctx, documentID, force)
	if err != nil || outcome == OutcomeAlreadyProcessing {
		return doc, outcome, err
	}
	doc, err = m.run(ctx, doc)
	return doc, outcome, err
}

// Enqueue starts an attempt and hands it to the processing queue.
func (m *Manager) Enqueue(ctx context.Context, documentID string, force bool) (documents.Document, StartOutcome, error) {
	if m.Queue == nil {
		return documents.Document{}, "", ErrQueueNotConfigured
	}
	doc, outcome, err := m.StartProcessing(ctx, documentID, force)
	if err != nil || outcome == OutcomeAlreadyProcessing {
		return doc, outcome, err
	}

	msg := queue.Message{
		DocumentID: doc.ID,
		Attempt:    doc.Attempt,
		RequestID:  telemetry.RequestID(ctx),
		EnqueuedAt: m.now().UTC(),
		Version:    queue.MessageVersion,
	}
	if err := m.Queue.Send(ctx, msg); err != nil {
		sendErr := fmt.Errorf("enqueue: %w", err)
		if failed, failErr := m.FailProcessing(context.WithoutCancel(ctx), doc.ID, doc.Attempt, sanitizeError(sendErr)); failErr == nil {
			doc = failed
			metrics.IncProcessingFailed()
		}
		return doc, outcome, sendErr
	}
	return doc, outcome, nil
}

// Execute runs a queued attempt. An attempt that is no longer current is
// skipped without error.
func (m *Manager) Execute(ctx context.Context, documentID string, attempt int) (documents.Document, error) {
	doc, err := m.Docs.Get(ctx, documentID)
	if err != nil {
		return documents.Document{}, err
	}
	if doc.State != documents.StateProcessing || doc.Attempt != attempt {
		telemetry.Info("document.status", map[string]any{
			"request_id":  telemetry.RequestID(ctx),
			"user_id":     doc.UserID,
			"document_id": doc.ID,
			"attempt":     attempt,
			"current":     doc.Attempt,
			"status":      string(doc.State),
			"outcome":     "stale_attempt_skipped",
		})
		return doc, nil
	}
	return m.run(ctx, doc)
}

// ListStuck returns documents processing since before now minus olderThan.
func (m *Manager) ListStuck(ctx context.Context, olderThan time.Duration) ([]documents.Document, error) {
	return m.Docs.ListStuck(ctx, m.now().Add(-olderThan))
}

func (m *Manager) run(ctx context.Context, doc documents.Document) (out documents.Document, err error) {
	startedAt := m.now()
	if doc.ProcessingStartedAt != nil {
		startedAt = *doc.ProcessingStartedAt
	}
	defer func() {
		if r := recover(); r != nil {
			out, err = m.fail(ctx, doc, fmt.Errorf("panic: %v", r), startedAt)
		}
	}()

	result, err := m.RunPipeline(ctx, doc)
	if err != nil {
		return m.fail(ctx, doc, err, startedAt)
	}

	updated, err := m.CompleteProcessing(ctx, doc.ID, doc.Attempt, result)
	if err != nil {
		if errors.Is(err, documents.ErrInvalidTransition) {
			return m.superseded(ctx, doc)
		}
		if errors.Is(err, documents.ErrNotFound) {
			return documents.Document{}, err
		}
		return m.fail(ctx, doc, fmt.Errorf("complete: %w", err), startedAt)
	}

	completedAt := m.now()
	metrics.IncProcessingCompleted()
	metrics.ObserveProcessingDurationMs(metrics.DurationMs(startedAt, completedAt))
	telemetry.Info("document.status", map[string]any{
		"request_id":        telemetry.RequestID(ctx),
		"user_id":           doc.UserID,
		"document_id":       doc.ID,
		"attempt":           doc.Attempt,
		"document_type":     string(updated.Classification),
		"medications":       len(result.Medications),
		"status":            string(documents.StateProcessed),
		"status_transition": "processing->processed",
		"duration_ms":       metrics.DurationMs(startedAt, completedAt),
	})
	return updated, nil
}

func (m *Manager) fail(ctx context.Context, doc documents.Document, cause error, startedAt time.Time) (documents.Document, error) {
	msg := sanitizeError(cause)
	// The failure write must land even when the request context is gone.
	writeCtx := context.WithoutCancel(ctx)
	updated, err := m.FailProcessing(writeCtx, doc.ID, doc.Attempt, msg)
	if err != nil {
		if errors.Is(err, documents.ErrInvalidTransition) {
			return m.superseded(writeCtx, doc)
		}
		telemetry.Error("document.fail_write_failed", map[string]any{
			"request_id":  telemetry.RequestID(ctx),
			"document_id": doc.ID,
			"attempt":     doc.Attempt,
			"error":       err.Error(),
			"cause":       msg,
		})
		return documents.Document{}, err
	}

	completedAt := m.now()
	step := ""
	var extErr *ExternalServiceError
	if errors.As(cause, &extErr) {
		step = extErr.Step
	}
	metrics.IncProcessingFailed()
	metrics.ObserveProcessingDurationMs(metrics.DurationMs(startedAt, completedAt))
	telemetry.Info("document.status", map[string]any{
		"request_id":        telemetry.RequestID(ctx),
		"user_id":           doc.UserID,
		"document_id":       doc.ID,
		"attempt":           doc.Attempt,
		"status":            string(documents.StateError),
		"status_transition": "processing->error",
		"step":              step,
		"error":             msg,
		"duration_ms":       metrics.DurationMs(startedAt, completedAt),
	})
	return updated, nil
}

// superseded returns the current record after a newer attempt took over.
func (m *Manager) superseded(ctx context.Context, doc documents.Document) (documents.Document, error) {
	telemetry.Info("document.status", map[string]any{
		"request_id":  telemetry.RequestID(ctx),
		"user_id":     doc.UserID,
		"document_id": doc.ID,
		"attempt":     doc.Attempt,
		"outcome":     "superseded",
	})
	return m.Docs.Get(ctx, doc.ID)
}

func (m *Manager) load(ctx context.Context, storageKey string) ([]byte, error) {
	body, err := m.Store.Open(ctx, storageKey)
	if err != nil {
		return nil, err
	}
	defer body.Close()
	return io.ReadAll(body)
}

func staleAttempt(doc documents.Document, attempt int) error {
	return fmt.Errorf("%w: document %s is %s at attempt %d, not processing at attempt %d",
		documents.ErrInvalidTransition, doc.ID, doc.State, doc.Attempt, attempt)
}

func toOccurrences(doc documents.Document, attempt int, meds []llm.Medication, capturedAt time.Time) []medications.Occurrence {
	out := make([]medications.Occurrence, 0, len(meds))
	for _, med := range meds {
		out = append(out, medications.Occurrence{
			ID:                               uuid.NewString(),
			UserID:                           doc.UserID,
			DocumentID:                       doc.ID,
			GenericName:                      med.GenericName,
			BrandName:                        med.BrandName,
			SuggestedName:                    med.SuggestedName,
			Dosage:                           med.Dosage,
			Frequency:                        med.Frequency,
			Purpose:                          med.Purpose,
			SpecialInstructions:              med.SpecialInstructions,
			InstructionsFromGeneralKnowledge: med.InstructionsFromGeneralKnowledge,
			SideEffects:                      med.SideEffects,
			SideEffectsFromGeneralKnowledge:  med.SideEffectsFromGeneralKnowledge,
			Generation:                       attempt,
			CapturedAt:                       capturedAt,
		})
	}
	return out
}

package processing

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"medocs-backend/internal/documents"
	"medocs-backend/internal/llm"
	"medocs-backend/internal/medications"
	"medocs-backend/internal/queue"
	"medocs-backend/internal/shared/storage/object/local"
	"medocs-backend/internal/shared/telemetry"
)

type stubLLM struct {
	classify    string
	simplified  string
	meds        []llm.Medication
	classifyErr error
	simplifyErr error
	extractErr  error

	onClassify  func()
	calls       []string
	gotDocType  documents.DocumentType
	gotContents []llm.Content
}

func (s *stubLLM) Classify(ctx context.Context, content llm.Content) (documents.DocumentType, error) {
	s.calls = append(s.calls, StepClassify)
	s.gotContents = append(s.gotContents, content)
	if s.onClassify != nil {
		s.onClassify()
	}
	if s.classifyErr != nil {
		return "", s.classifyErr
	}
	return documents.DocumentType(s.classify), nil
}

func (s *stubLLM) Simplify(ctx context.Context, content llm.Content, docType documents.DocumentType) (string, error) {
	s.calls = append(s.calls, StepSimplify)
	s.gotDocType = docType
	if s.simplifyErr != nil {
		return "", s.simplifyErr
	}
	return s.simplified, nil
}

func (s *stubLLM) ExtractMedications(ctx context.Context, content llm.Content) ([]llm.Medication, error) {
	s.calls = append(s.calls, StepExtractMedications)
	if s.extractErr != nil {
		return nil, s.extractErr
	}
	return s.meds, nil
}

type recordingQueue struct {
	sent []queue.Message
	err  error
}

func (q *recordingQueue) Send(ctx context.Context, msg queue.Message) error {
	if q.err != nil {
		return q.err
	}
	q.sent = append(q.sent, msg)
	return nil
}

func strPtr(s string) *string { return &s }

func metformin() llm.Medication {
	return llm.Medication{
		GenericName: strPtr("Metformin"),
		Dosage:      strPtr("500mg"),
		Frequency:   strPtr("twice daily"),
		SideEffects: strPtr("nausea"),

		SideEffectsFromGeneralKnowledge: true,
	}
}

func newTestManager(t *testing.T, client llm.Client) (*Manager, *documents.MemoryRepo, *medications.MemoryRepo) {
	t.Helper()
	docs := documents.NewMemoryRepo()
	meds := medications.NewMemoryRepoFor(docs)
	return &Manager{
		Docs:        docs,
		Medications: meds,
		Store:       local.New(t.TempDir()),
		LLM:         client,
	}, docs, meds
}

func seedDocument(t *testing.T, m *Manager, docs *documents.MemoryRepo, name, mimeType string, content []byte) documents.Document {
	t.Helper()
	return seedDocumentFor(t, m, docs, "user-1", name, mimeType, content)
}

func seedDocumentFor(t *testing.T, m *Manager, docs *documents.MemoryRepo, userID, name, mimeType string, content []byte) documents.Document {
	t.Helper()
	ctx := context.Background()
	key, size, _, err := m.Store.Save(ctx, userID, name, bytes.NewReader(content))
	if err != nil {
		t.Fatalf("save object: %v", err)
	}
	now := time.Now().UTC()
	doc := documents.Document{
		ID:             "doc-1",
		UserID:         userID,
		Name:           name,
		StorageKey:     key,
		MimeType:       mimeType,
		SizeBytes:      size,
		State:          documents.StatePending,
		Classification: documents.TypeUnclassified,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := docs.Create(ctx, doc); err != nil {
		t.Fatalf("create doc: %v", err)
	}
	return doc
}

func TestProcessSuccess(t *testing.T) {
	client := &stubLLM{classify: "PRESCRIPTION", simplified: "Take one tablet twice a day.", meds: []llm.Medication{metformin()}}
	m, docs, meds := newTestManager(t, client)
	seedDocument(t, m, docs, "rx.txt", "text/plain; charset=utf-8", []byte("Metformin 500mg BID"))

	doc, outcome, err := m.Process(context.Background(), "doc-1", false)
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if outcome != OutcomeStarted {
		t.Fatalf("expected started outcome, got %s", outcome)
	}
	if doc.State != documents.StateProcessed {
		t.Fatalf("expected processed, got %s (%v)", doc.State, doc.ProcessingError)
	}
	if doc.Classification != documents.TypePrescription {
		t.Fatalf("expected PRESCRIPTION, got %s", doc.Classification)
	}
	if doc.SimplifiedText == nil || doc.Summary == nil || *doc.SimplifiedText != *doc.Summary {
		t.Fatalf("expected simplified text and summary alias to match: %v %v", doc.SimplifiedText, doc.Summary)
	}
	if doc.ExtractedText != "Metformin 500mg BID" {
		t.Fatalf("unexpected extracted text %q", doc.ExtractedText)
	}
	if doc.ProcessingError != nil {
		t.Fatalf("expected no processing error, got %q", *doc.ProcessingError)
	}
	if doc.Attempt != 1 || doc.ProcessedAt == nil {
		t.Fatalf("expected attempt 1 with processedAt, got %d %v", doc.Attempt, doc.ProcessedAt)
	}

	wantCalls := []string{StepClassify, StepSimplify, StepExtractMedications}
	if strings.Join(client.calls, ",") != strings.Join(wantCalls, ",") {
		t.Fatalf("unexpected call order %v", client.calls)
	}
	if client.gotDocType != documents.TypePrescription {
		t.Fatalf("simplify should receive the classification, got %s", client.gotDocType)
	}

	occs, err := meds.ListByDocument(context.Background(), "doc-1")
	if err != nil {
		t.Fatalf("ListByDocument: %v", err)
	}
	if len(occs) != 1 {
		t.Fatalf("expected 1 occurrence, got %d", len(occs))
	}
	occ := occs[0]
	if occ.UserID != "user-1" || occ.DocumentID != "doc-1" || occ.Generation != 1 || occ.ID == "" {
		t.Fatalf("unexpected occurrence identity: %+v", occ)
	}
	if !occ.SideEffectsFromGeneralKnowledge || occ.InstructionsFromGeneralKnowledge {
		t.Fatalf("provenance flags not preserved: %+v", occ)
	}
}

func TestProcessCoercesUnknownClassification(t *testing.T) {
	client := &stubLLM{classify: "FOO", simplified: "plain words"}
	m, docs, _ := newTestManager(t, client)
	seedDocument(t, m, docs, "note.txt", "text/plain", []byte("some note"))

	doc, _, err := m.Process(context.Background(), "doc-1", false)
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if doc.Classification != documents.TypeMiscellaneous {
		t.Fatalf("expected MISCELLANEOUS, got %s", doc.Classification)
	}
	if client.gotDocType != documents.TypeMiscellaneous {
		t.Fatalf("simplify should see the coerced type, got %s", client.gotDocType)
	}
}

func TestReprocessReplacesOccurrences(t *testing.T) {
	client := &stubLLM{classify: "PRESCRIPTION", simplified: "ok", meds: []llm.Medication{metformin(), {BrandName: strPtr("Lipitor")}}}
	m, docs, meds := newTestManager(t, client)
	seedDocument(t, m, docs, "rx.txt", "text/plain", []byte("rx"))

	for i := 0; i < 2; i++ {
		doc, outcome, err := m.Process(context.Background(), "doc-1", false)
		if err != nil || outcome != OutcomeStarted || doc.State != documents.StateProcessed {
			t.Fatalf("run %d: doc=%+v outcome=%s err=%v", i, doc, outcome, err)
		}
	}

	occs, err := meds.ListByDocument(context.Background(), "doc-1")
	if err != nil {
		t.Fatalf("ListByDocument: %v", err)
	}
	if len(occs) != 2 {
		t.Fatalf("expected 2 occurrences after two runs, got %d", len(occs))
	}
	for _, occ := range occs {
		if occ.Generation != 2 {
			t.Fatalf("expected generation 2, got %d", occ.Generation)
		}
	}
}

func TestProcessFailureCapturesStep(t *testing.T) {
	client := &stubLLM{classify: "LAB_REPORT", simplifyErr: errors.New("provider\nunavailable")}
	m, docs, meds := newTestManager(t, client)
	seedDocument(t, m, docs, "labs.txt", "text/plain", []byte("Hemoglobin"))

	doc, _, err := m.Process(context.Background(), "doc-1", false)
	if err != nil {
		t.Fatalf("pipeline failures must not surface as errors: %v", err)
	}
	if doc.State != documents.StateError {
		t.Fatalf("expected error state, got %s", doc.State)
	}
	if doc.ProcessingError == nil || *doc.ProcessingError != "simplify failed: provider unavailable" {
		t.Fatalf("unexpected processing error %v", doc.ProcessingError)
	}
	if doc.SimplifiedText != nil || doc.Classification != documents.TypeUnclassified {
		t.Fatalf("failed first run must not commit partial output: %+v", doc)
	}
	if len(client.calls) != 2 {
		t.Fatalf("pipeline should stop at the failing step, calls=%v", client.calls)
	}
	occs, _ := meds.ListByDocument(context.Background(), "doc-1")
	if len(occs) != 0 {
		t.Fatalf("expected no occurrences, got %d", len(occs))
	}
}

func TestFailedReprocessPreservesPriorOutput(t *testing.T) {
	client := &stubLLM{classify: "PRESCRIPTION", simplified: "first result", meds: []llm.Medication{metformin()}}
	m, docs, meds := newTestManager(t, client)
	seedDocument(t, m, docs, "rx.txt", "text/plain", []byte("rx"))

	if _, _, err := m.Process(context.Background(), "doc-1", false); err != nil {
		t.Fatalf("first run: %v", err)
	}

	client.classifyErr = errors.New("rate limited")
	doc, _, err := m.Process(context.Background(), "doc-1", false)
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if doc.State != documents.StateError {
		t.Fatalf("expected error state, got %s", doc.State)
	}
	if doc.SimplifiedText == nil || *doc.SimplifiedText != "first result" || doc.Classification != documents.TypePrescription {
		t.Fatalf("prior output should survive a failed re-run: %+v", doc)
	}
	occs, _ := meds.ListByDocument(context.Background(), "doc-1")
	if len(occs) != 1 || occs[0].Generation != 1 {
		t.Fatalf("prior occurrences should survive a failed re-run: %+v", occs)
	}
}

// interceptedCompletion lets a test act on the store right before (or
// instead of) the completion write.
type interceptedCompletion struct {
	medications.Repo
	before func()
	err    error
}

func (c *interceptedCompletion) Complete(ctx context.Context, done medications.Completion) (documents.Document, error) {
	if c.before != nil {
		c.before()
	}
	if c.err != nil {
		return documents.Document{}, c.err
	}
	return c.Repo.Complete(ctx, done)
}

func TestFailedCompletionWriteKeepsPriorOccurrences(t *testing.T) {
	client := &stubLLM{classify: "PRESCRIPTION", simplified: "first result", meds: []llm.Medication{metformin()}}
	m, docs, meds := newTestManager(t, client)
	seedDocument(t, m, docs, "rx.txt", "text/plain", []byte("rx"))
	ctx := context.Background()

	if _, _, err := m.Process(ctx, "doc-1", false); err != nil {
		t.Fatalf("first run: %v", err)
	}

	client.simplified = "second result"
	client.meds = []llm.Medication{metformin(), {GenericName: strPtr("Lisinopril"), Dosage: strPtr("10mg")}}
	m.Medications = &interceptedCompletion{Repo: meds, err: errors.New("db connection reset")}

	doc, _, err := m.Process(ctx, "doc-1", false)
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if doc.State != documents.StateError || doc.ProcessingError == nil || !strings.Contains(*doc.ProcessingError, "db connection reset") {
		t.Fatalf("expected error state carrying the write failure, got %+v", doc)
	}
	if doc.SimplifiedText == nil || *doc.SimplifiedText != "first result" {
		t.Fatalf("prior text should survive, got %v", doc.SimplifiedText)
	}
	occs, _ := meds.ListByDocument(ctx, "doc-1")
	if len(occs) != 1 || occs[0].Generation != 1 {
		t.Fatalf("occurrences must stay with the text they came from: %+v", occs)
	}
}

func TestRestartDuringCompletionKeepsPriorOccurrences(t *testing.T) {
	client := &stubLLM{classify: "PRESCRIPTION", simplified: "first result", meds: []llm.Medication{metformin()}}
	m, docs, meds := newTestManager(t, client)
	seedDocument(t, m, docs, "rx.txt", "text/plain", []byte("rx"))
	ctx := context.Background()

	if _, _, err := m.Process(ctx, "doc-1", false); err != nil {
		t.Fatalf("first run: %v", err)
	}
	second, _, err := m.StartProcessing(ctx, "doc-1", false)
	if err != nil {
		t.Fatalf("start second: %v", err)
	}

	var third documents.Document
	m.Medications = &interceptedCompletion{Repo: meds, before: func() {
		third, _, err = m.StartProcessing(ctx, "doc-1", true)
		if err != nil {
			t.Errorf("forced start: %v", err)
		}
	}}
	result := Result{
		Classification: documents.TypeLabReport,
		SimplifiedText: "second result",
		Medications:    []llm.Medication{metformin(), {GenericName: strPtr("Lisinopril")}},
	}
	if _, err := m.CompleteProcessing(ctx, "doc-1", second.Attempt, result); !errors.Is(err, documents.ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition once superseded, got %v", err)
	}
	if occs, _ := meds.ListByDocument(ctx, "doc-1"); len(occs) != 1 || occs[0].Generation != 1 {
		t.Fatalf("superseded completion must not write occurrences: %+v", occs)
	}

	doc, err := m.FailProcessing(ctx, "doc-1", third.Attempt, "model unavailable")
	if err != nil {
		t.Fatalf("FailProcessing: %v", err)
	}
	if doc.SimplifiedText == nil || *doc.SimplifiedText != "first result" || doc.Classification != documents.TypePrescription {
		t.Fatalf("prior output should survive: %+v", doc)
	}
	if occs, _ := meds.ListByDocument(ctx, "doc-1"); len(occs) != 1 || occs[0].Generation != 1 {
		t.Fatalf("prior occurrences should survive: %+v", occs)
	}
}

func TestStartProcessingShortCircuitsWhenInFlight(t *testing.T) {
	m, docs, _ := newTestManager(t, &stubLLM{})
	seedDocument(t, m, docs, "rx.txt", "text/plain", []byte("rx"))
	ctx := context.Background()

	first, outcome, err := m.StartProcessing(ctx, "doc-1", false)
	if err != nil || outcome != OutcomeStarted || first.State != documents.StateProcessing || first.Attempt != 1 {
		t.Fatalf("first start: doc=%+v outcome=%s err=%v", first, outcome, err)
	}

	second, outcome, err := m.StartProcessing(ctx, "doc-1", false)
	if err != nil {
		t.Fatalf("second start: %v", err)
	}
	if outcome != OutcomeAlreadyProcessing || second.Attempt != 1 {
		t.Fatalf("expected short-circuit on attempt 1, got %s attempt %d", outcome, second.Attempt)
	}

	forced, outcome, err := m.StartProcessing(ctx, "doc-1", true)
	if err != nil || outcome != OutcomeStarted || forced.Attempt != 2 {
		t.Fatalf("forced start: doc=%+v outcome=%s err=%v", forced, outcome, err)
	}
}

func TestStartProcessingClearsErrorKeepsAnnotations(t *testing.T) {
	m, docs, _ := newTestManager(t, &stubLLM{})
	seedDocument(t, m, docs, "rx.txt", "text/plain", []byte("rx"))
	ctx := context.Background()

	failed := documents.StateError
	endorsement := documents.Annotation{ReviewerID: "dr-1", DisplayName: "Dr. One", Note: "ok", At: time.Now().UTC()}
	if _, err := docs.UpdateFields(ctx, "doc-1", documents.Update{State: &failed, ProcessingError: strPtr("boom"), Endorsement: &endorsement}); err != nil {
		t.Fatalf("seed error state: %v", err)
	}
	if _, err := docs.AddShare(ctx, "doc-1", "dr-1"); err != nil {
		t.Fatalf("AddShare: %v", err)
	}

	doc, _, err := m.StartProcessing(ctx, "doc-1", false)
	if err != nil {
		t.Fatalf("StartProcessing: %v", err)
	}
	if doc.ProcessingError != nil {
		t.Fatalf("expected error cleared, got %q", *doc.ProcessingError)
	}
	if doc.Endorsement == nil || !doc.IsSharedWith("dr-1") {
		t.Fatalf("review state must be untouched: %+v", doc)
	}
}

func TestStartProcessingMissingDocument(t *testing.T) {
	m, _, _ := newTestManager(t, &stubLLM{})
	if _, _, err := m.StartProcessing(context.Background(), "missing", false); !errors.Is(err, documents.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestStaleAttemptCannotComplete(t *testing.T) {
	m, docs, meds := newTestManager(t, &stubLLM{})
	seedDocument(t, m, docs, "rx.txt", "text/plain", []byte("rx"))
	ctx := context.Background()

	first, _, err := m.StartProcessing(ctx, "doc-1", false)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if _, _, err := m.StartProcessing(ctx, "doc-1", true); err != nil {
		t.Fatalf("forced start: %v", err)
	}

	result := Result{Classification: documents.TypeLabReport, SimplifiedText: "stale", Medications: []llm.Medication{metformin()}}
	if _, err := m.CompleteProcessing(ctx, "doc-1", first.Attempt, result); !errors.Is(err, documents.ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition for stale attempt, got %v", err)
	}
	if _, err := m.FailProcessing(ctx, "doc-1", first.Attempt, "late failure"); !errors.Is(err, documents.ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition for stale failure, got %v", err)
	}

	doc, err := docs.Get(ctx, "doc-1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if doc.State != documents.StateProcessing || doc.Attempt != 2 || doc.ProcessingError != nil {
		t.Fatalf("stale writes must not land: %+v", doc)
	}
	occs, _ := meds.ListByDocument(ctx, "doc-1")
	if len(occs) != 0 {
		t.Fatalf("stale attempt must not write occurrences, got %d", len(occs))
	}
}

func TestCompleteRequiresProcessing(t *testing.T) {
	m, docs, _ := newTestManager(t, &stubLLM{})
	seedDocument(t, m, docs, "rx.txt", "text/plain", []byte("rx"))

	if _, err := m.CompleteProcessing(context.Background(), "doc-1", 0, Result{}); !errors.Is(err, documents.ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition from pending, got %v", err)
	}
}

func TestRunSupersededByForcedRestart(t *testing.T) {
	client := &stubLLM{classify: "PRESCRIPTION", simplified: "ok"}
	m, docs, _ := newTestManager(t, client)
	seedDocument(t, m, docs, "rx.txt", "text/plain", []byte("rx"))

	client.onClassify = func() {
		client.onClassify = nil
		if _, _, err := m.StartProcessing(context.Background(), "doc-1", true); err != nil {
			t.Errorf("forced start: %v", err)
		}
	}

	doc, _, err := m.Process(context.Background(), "doc-1", false)
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if doc.State != documents.StateProcessing || doc.Attempt != 2 {
		t.Fatalf("superseded run should leave the newer attempt in place, got %s attempt %d", doc.State, doc.Attempt)
	}
}

func TestImageSentAsMultimodalContent(t *testing.T) {
	client := &stubLLM{classify: "PRESCRIPTION", simplified: "ok"}
	m, docs, _ := newTestManager(t, client)
	png := []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n', 0, 0, 0, 0}
	seedDocument(t, m, docs, "rx.png", "image/png", png)

	doc, _, err := m.Process(context.Background(), "doc-1", false)
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if doc.State != documents.StateProcessed {
		t.Fatalf("expected processed, got %s (%v)", doc.State, doc.ProcessingError)
	}
	if len(client.gotContents) != 1 || !client.gotContents[0].IsImage() || client.gotContents[0].Text != "" {
		t.Fatalf("expected image content, got %+v", client.gotContents)
	}
}

func TestUnsupportedContentFailsAtExtraction(t *testing.T) {
	client := &stubLLM{}
	m, docs, _ := newTestManager(t, client)
	seedDocument(t, m, docs, "blob.bin", "application/octet-stream", []byte{1, 2, 3})

	doc, _, err := m.Process(context.Background(), "doc-1", false)
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if doc.State != documents.StateError || doc.ProcessingError == nil || !strings.HasPrefix(*doc.ProcessingError, "extract_text failed") {
		t.Fatalf("expected extraction failure, got %+v", doc)
	}
	if len(client.calls) != 0 {
		t.Fatalf("no provider calls expected, got %v", client.calls)
	}
}

func TestEnqueueAndExecute(t *testing.T) {
	client := &stubLLM{classify: "LAB_REPORT", simplified: "normal results"}
	m, docs, _ := newTestManager(t, client)
	q := &recordingQueue{}
	m.Queue = q
	seedDocument(t, m, docs, "labs.txt", "text/plain", []byte("labs"))
	ctx := telemetry.WithRequestID(context.Background(), "req-1")

	doc, outcome, err := m.Enqueue(ctx, "doc-1", false)
	if err != nil || outcome != OutcomeStarted || doc.State != documents.StateProcessing {
		t.Fatalf("Enqueue: doc=%+v outcome=%s err=%v", doc, outcome, err)
	}
	if len(q.sent) != 1 {
		t.Fatalf("expected one message, got %d", len(q.sent))
	}
	msg := q.sent[0]
	if msg.DocumentID != "doc-1" || msg.Attempt != 1 || msg.RequestID != "req-1" || msg.Version != queue.MessageVersion {
		t.Fatalf("unexpected message %+v", msg)
	}

	done, err := m.Execute(ctx, msg.DocumentID, msg.Attempt)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if done.State != documents.StateProcessed {
		t.Fatalf("expected processed, got %s", done.State)
	}
}

func TestExecuteStaleAttemptIsNoop(t *testing.T) {
	client := &stubLLM{classify: "LAB_REPORT", simplified: "ok"}
	m, docs, _ := newTestManager(t, client)
	m.Queue = &recordingQueue{}
	seedDocument(t, m, docs, "labs.txt", "text/plain", []byte("labs"))
	ctx := context.Background()

	if _, _, err := m.Enqueue(ctx, "doc-1", false); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	if _, _, err := m.Enqueue(ctx, "doc-1", true); err != nil {
		t.Fatalf("forced Enqueue: %v", err)
	}

	doc, err := m.Execute(ctx, "doc-1", 1)
	if err != nil {
		t.Fatalf("Execute stale: %v", err)
	}
	if doc.State != documents.StateProcessing || doc.Attempt != 2 {
		t.Fatalf("stale execution must not change the document: %+v", doc)
	}
	if len(client.calls) != 0 {
		t.Fatalf("stale execution must not call the provider, got %v", client.calls)
	}
}

func TestEnqueueSendFailureMovesToError(t *testing.T) {
	m, docs, _ := newTestManager(t, &stubLLM{})
	m.Queue = &recordingQueue{err: errors.New("sqs down")}
	seedDocument(t, m, docs, "labs.txt", "text/plain", []byte("labs"))

	doc, _, err := m.Enqueue(context.Background(), "doc-1", false)
	if err == nil {
		t.Fatal("expected enqueue error")
	}
	if doc.State != documents.StateError {
		t.Fatalf("expected error state so the document is not stuck, got %s", doc.State)
	}
}

func TestEnqueueWithoutQueue(t *testing.T) {
	m, docs, _ := newTestManager(t, &stubLLM{})
	seedDocument(t, m, docs, "labs.txt", "text/plain", []byte("labs"))

	if _, _, err := m.Enqueue(context.Background(), "doc-1", false); !errors.Is(err, ErrQueueNotConfigured) {
		t.Fatalf("expected ErrQueueNotConfigured, got %v", err)
	}
	doc, _ := docs.Get(context.Background(), "doc-1")
	if doc.State != documents.StatePending {
		t.Fatalf("document should stay pending, got %s", doc.State)
	}
}

func TestListStuck(t *testing.T) {
	m, docs, _ := newTestManager(t, &stubLLM{})
	seedDocument(t, m, docs, "labs.txt", "text/plain", []byte("labs"))
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	m.Now = func() time.Time { return base }

	if _, _, err := m.StartProcessing(context.Background(), "doc-1", false); err != nil {
		t.Fatalf("start: %v", err)
	}

	m.Now = func() time.Time { return base.Add(10 * time.Minute) }
	stuck, err := m.ListStuck(context.Background(), 15*time.Minute)
	if err != nil || len(stuck) != 0 {
		t.Fatalf("expected nothing stuck yet, got %d err=%v", len(stuck), err)
	}

	m.Now = func() time.Time { return base.Add(20 * time.Minute) }
	stuck, err = m.ListStuck(context.Background(), 15*time.Minute)
	if err != nil || len(stuck) != 1 {
		t.Fatalf("expected one stuck document, got %d err=%v", len(stuck), err)
	}
}

func TestSanitizeError(t *testing.T) {
	if got := sanitizeError(errors.New(" line one\r\nline two ")); got != "line one  line two" {
		t.Fatalf("unexpected sanitized message %q", got)
	}
	long := strings.Repeat("é", 400)
	got := sanitizeError(errors.New(long))
	if len(got) > maxErrorLen || !strings.HasPrefix(long, got) {
		t.Fatalf("expected rune-safe truncation, got len %d", len(got))
	}
	if sanitizeError(nil) != "" {
		t.Fatal("expected empty message for nil error")
	}
}

func TestExternalServiceErrorMatches(t *testing.T) {
	cause := errors.New("timeout")
	err := error(&ExternalServiceError{Step: StepClassify, Err: cause})
	if !errors.Is(err, ErrExternalService) || !errors.Is(err, cause) {
		t.Fatalf("expected both sentinel and cause to match: %v", err)
	}
	var ext *ExternalServiceError
	if !errors.As(err, &ext) || ext.Step != StepClassify {
		t.Fatalf("expected errors.As to find the step")
	}
}

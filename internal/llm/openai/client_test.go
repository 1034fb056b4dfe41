package openai

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"medocs-backend/internal/documents"
	"medocs-backend/internal/llm"
)

func TestIsGPT5(t *testing.T) {
	tests := []struct {
		name  string
		model string
		want  bool
	}{
		{name: "gpt5", model: "gpt-5", want: true},
		{name: "gpt5 variant", model: "gpt-5-mini", want: true},
		{name: "gpt5 uppercase", model: " GPT-5o ", want: true},
		{name: "gpt4", model: "gpt-4o", want: false},
		{name: "empty", model: "", want: false},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			if got := isGPT5(tt.model); got != tt.want {
				t.Fatalf("isGPT5(%q) = %v, want %v", tt.model, got, tt.want)
			}
		})
	}
}

type fakeReply struct {
	status     int
	retryAfter string
	body       string
}

func ok(content string) fakeReply {
	raw, _ := json.Marshal(map[string]any{
		"choices": []any{map[string]any{"message": map[string]any{"content": content}}},
		"usage":   map[string]any{"prompt_tokens": 12, "completion_tokens": 3},
	})
	return fakeReply{status: http.StatusOK, body: string(raw)}
}

func providerError(status int, message, kind string) fakeReply {
	raw, _ := json.Marshal(map[string]any{"error": map[string]any{"message": message, "type": kind}})
	return fakeReply{status: status, body: string(raw)}
}

// fakeAPI plays back replies in order, repeating the last one, and records
// every request body it receives.
type fakeAPI struct {
	url     string
	mu      sync.Mutex
	replies []fakeReply
	bodies  []map[string]any
	sleeps  []time.Duration
}

func newFakeAPI(t *testing.T, replies ...fakeReply) *fakeAPI {
	t.Helper()
	f := &fakeAPI{replies: replies}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer r.Body.Close()
		if r.URL.Path != "/chat/completions" || r.Header.Get("Authorization") != "Bearer test-key" {
			t.Errorf("unexpected request %s auth=%q", r.URL.Path, r.Header.Get("Authorization"))
		}
		var payload map[string]any
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			t.Errorf("decode request: %v", err)
		}
		f.mu.Lock()
		f.bodies = append(f.bodies, payload)
		reply := f.replies[len(f.replies)-1]
		if len(f.bodies) <= len(f.replies) {
			reply = f.replies[len(f.bodies)-1]
		}
		f.mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		if reply.retryAfter != "" {
			w.Header().Set("Retry-After", reply.retryAfter)
		}
		w.WriteHeader(reply.status)
		_, _ = w.Write([]byte(reply.body))
	}))
	t.Cleanup(server.Close)
	f.url = server.URL
	return f
}

func (f *fakeAPI) requests() []map[string]any {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]map[string]any(nil), f.bodies...)
}

func (f *fakeAPI) client(t *testing.T, model string, opts ...Option) *Client {
	t.Helper()
	client, err := NewClient("test-key", model, 0, append([]Option{WithBaseURL(f.url + "/")}, opts...)...)
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	client.sleep = func(_ context.Context, d time.Duration) error {
		f.mu.Lock()
		f.sleeps = append(f.sleeps, d)
		f.mu.Unlock()
		return nil
	}
	return client
}

func TestClassifyCoercesUnknownLabel(t *testing.T) {
	tests := []struct {
		reply string
		want  documents.DocumentType
	}{
		{`{"documentType":"LAB_REPORT"}`, documents.TypeLabReport},
		{`{"documentType":"FOO"}`, documents.TypeMiscellaneous},
		{`{"documentType":"lab_report"}`, documents.TypeMiscellaneous},
		{`PRESCRIPTION`, documents.TypePrescription},
	}
	for _, tt := range tests {
		api := newFakeAPI(t, ok(tt.reply))
		got, err := api.client(t, "gpt-4o-mini").Classify(context.Background(), llm.Content{Text: "Rx"})
		if err != nil {
			t.Fatalf("Classify: %v", err)
		}
		if got != tt.want {
			t.Fatalf("Classify(%s) = %s, want %s", tt.reply, got, tt.want)
		}
	}
}

func TestSimplifyRejectsEmptyText(t *testing.T) {
	api := newFakeAPI(t, ok(`{"simplifiedText":"   "}`))
	if _, err := api.client(t, "gpt-4o-mini").Simplify(context.Background(), llm.Content{Text: "x"}, documents.TypeLabReport); err == nil {
		t.Fatal("expected error for empty simplification")
	}
}

func TestSimplifySendsTypeGuidance(t *testing.T) {
	api := newFakeAPI(t, ok(`{"simplifiedText":"Your blood count is normal."}`))
	text, err := api.client(t, "gpt-4o-mini").Simplify(context.Background(), llm.Content{Text: "CBC"}, documents.TypeLabReport)
	if err != nil {
		t.Fatalf("Simplify: %v", err)
	}
	if text != "Your blood count is normal." {
		t.Fatalf("unexpected text %q", text)
	}

	body := api.requests()[0]
	if body["response_format"].(map[string]any)["type"] != "json_object" {
		t.Fatalf("expected json mode, got %v", body["response_format"])
	}
	raw, _ := json.Marshal(body["messages"])
	if !strings.Contains(string(raw), "LAB_REPORT") {
		t.Fatalf("expected prompt conditioned on type, got %s", raw)
	}
}

func TestExtractMedicationsCoercesMalformedPayload(t *testing.T) {
	api := newFakeAPI(t, ok(`{"medications":"none found"}`))
	meds, err := api.client(t, "gpt-4o-mini").ExtractMedications(context.Background(), llm.Content{Text: "x"})
	if err != nil {
		t.Fatalf("ExtractMedications: %v", err)
	}
	if meds == nil || len(meds) != 0 {
		t.Fatalf("expected empty list, got %+v", meds)
	}
}

func TestExtractMedicationsSendsImageAsDataURL(t *testing.T) {
	api := newFakeAPI(t, ok(`{"medications":[{"genericName":"Amoxicillin","dosage":"500mg"}]}`))
	meds, err := api.client(t, "gpt-4o-mini").ExtractMedications(context.Background(), llm.Content{
		Data:     []byte{0x89, 'P', 'N', 'G'},
		MimeType: "image/png",
	})
	if err != nil {
		t.Fatalf("ExtractMedications: %v", err)
	}
	if len(meds) != 1 || *meds[0].GenericName != "Amoxicillin" {
		t.Fatalf("unexpected medications: %+v", meds)
	}

	raw, _ := json.Marshal(api.requests()[0]["messages"])
	if !strings.Contains(string(raw), "data:image/png;base64,") {
		t.Fatalf("expected image data url in request, got %s", raw)
	}
}

func TestTemperatureOmittedForListedModels(t *testing.T) {
	for _, model := range []string{"o1-mini", "gpt-5-mini"} {
		api := newFakeAPI(t, ok(`{"documentType":"INSURANCE"}`))
		client := api.client(t, model, WithoutZeroTemperature(" O1-MINI "))
		if _, err := client.Classify(context.Background(), llm.Content{Text: "x"}); err != nil {
			t.Fatalf("Classify: %v", err)
		}
		if _, hasTemp := api.requests()[0]["temperature"]; hasTemp {
			t.Fatalf("%s: expected temperature to be omitted", model)
		}
	}
}

const temperatureRejected = "Unsupported value: 'temperature' does not support 0 with this model."

func TestTemperatureDroppedAfterRejection(t *testing.T) {
	api := newFakeAPI(t,
		providerError(http.StatusBadRequest, temperatureRejected, "invalid_request_error"),
		ok(`{"documentType":"INSURANCE"}`),
	)

	got, err := api.client(t, "gpt-4o-mini").Classify(context.Background(), llm.Content{Text: "x"})
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}
	if got != documents.TypeInsurance {
		t.Fatalf("unexpected type %s", got)
	}

	bodies := api.requests()
	if len(bodies) != 2 {
		t.Fatalf("expected 2 requests, got %d", len(bodies))
	}
	if _, ok := bodies[0]["temperature"]; !ok {
		t.Fatalf("expected first request to include temperature")
	}
	if _, ok := bodies[1]["temperature"]; ok {
		t.Fatalf("expected second request to omit temperature")
	}
}

func TestTemperatureRejectionRetriedOnlyOnce(t *testing.T) {
	api := newFakeAPI(t, providerError(http.StatusBadRequest, temperatureRejected, "invalid_request_error"))

	if _, err := api.client(t, "gpt-4o-mini").Classify(context.Background(), llm.Content{Text: "x"}); err == nil {
		t.Fatal("expected error when the model keeps rejecting the request")
	}
	if n := len(api.requests()); n != 2 {
		t.Fatalf("expected 2 requests, got %d", n)
	}
}

func TestThrottledCallsAreRetriedWithBackoff(t *testing.T) {
	api := newFakeAPI(t,
		fakeReply{status: http.StatusTooManyRequests, retryAfter: "2", body: `{}`},
		providerError(http.StatusBadGateway, "upstream", "server_error"),
		ok(`{"documentType":"LAB_REPORT"}`),
	)

	got, err := api.client(t, "gpt-4o-mini").Classify(context.Background(), llm.Content{Text: "x"})
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}
	if got != documents.TypeLabReport {
		t.Fatalf("unexpected type %s", got)
	}
	if n := len(api.requests()); n != 3 {
		t.Fatalf("expected 3 requests, got %d", n)
	}
	api.mu.Lock()
	defer api.mu.Unlock()
	want := []time.Duration{2 * time.Second, time.Second}
	if len(api.sleeps) != 2 || api.sleeps[0] != want[0] || api.sleeps[1] != want[1] {
		t.Fatalf("sleeps = %v, want %v", api.sleeps, want)
	}
}

func TestRetriesStopAtMaxAttempts(t *testing.T) {
	api := newFakeAPI(t, fakeReply{status: http.StatusServiceUnavailable, body: "overloaded"})

	_, err := api.client(t, "gpt-4o-mini", WithMaxAttempts(2)).Simplify(context.Background(), llm.Content{Text: "x"}, documents.TypeMiscellaneous)
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 APIError, got %v", err)
	}
	if n := len(api.requests()); n != 2 {
		t.Fatalf("expected 2 requests, got %d", n)
	}
}

func TestProviderErrorIsReturned(t *testing.T) {
	api := newFakeAPI(t, providerError(http.StatusOK, "quota exhausted", "insufficient_quota"))
	_, err := api.client(t, "gpt-4o-mini").Simplify(context.Background(), llm.Content{Text: "x"}, documents.TypePrescription)
	if err == nil || !strings.Contains(err.Error(), "quota exhausted") {
		t.Fatalf("expected provider error, got %v", err)
	}
	if n := len(api.requests()); n != 1 {
		t.Fatalf("expected no retry, got %d requests", n)
	}
}

func TestNewClientRequiresKeyAndModel(t *testing.T) {
	if _, err := NewClient("", "gpt-4o-mini", 0); err == nil {
		t.Fatal("expected error for missing key")
	}
	if _, err := NewClient("key", " ", 0); err == nil {
		t.Fatal("expected error for missing model")
	}
}

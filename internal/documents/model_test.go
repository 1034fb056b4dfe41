package documents

import (
	"testing"
	"time"
)

func TestParseDocumentType(t *testing.T) {
	cases := map[string]DocumentType{
		"PRESCRIPTION":      TypePrescription,
		" LAB_REPORT\n":     TypeLabReport,
		"INSURANCE":         TypeInsurance,
		"CLINICAL_NOTES":    TypeClinicalNotes,
		"MISCELLANEOUS":     TypeMiscellaneous,
		"FOO":               TypeMiscellaneous,
		"prescription":      TypeMiscellaneous,
		"":                  TypeMiscellaneous,
		"UNCLASSIFIED":      TypeMiscellaneous,
		"LAB_REPORT, maybe": TypeMiscellaneous,
	}
	for raw, want := range cases {
		if got := ParseDocumentType(raw); got != want {
			t.Fatalf("ParseDocumentType(%q) = %s, want %s", raw, got, want)
		}
	}
}

func TestDocumentTypeKnown(t *testing.T) {
	if !TypeUnclassified.Known() || !TypeLabReport.Known() {
		t.Fatal("expected enumeration members to be known")
	}
	if DocumentType("FOO").Known() {
		t.Fatal("expected FOO to be unknown")
	}
}

func TestStateRestartable(t *testing.T) {
	tests := []struct {
		state State
		want  bool
	}{
		{StatePending, true},
		{StateProcessing, false},
		{StateProcessed, true},
		{StateError, true},
	}
	for _, tt := range tests {
		if got := tt.state.Restartable(); got != tt.want {
			t.Fatalf("%s.Restartable() = %v, want %v", tt.state, got, tt.want)
		}
		if !tt.state.Valid() {
			t.Fatalf("%s should be valid", tt.state)
		}
	}
	if State("queued").Valid() {
		t.Fatal("unexpected valid state")
	}
}

func TestConditionMatches(t *testing.T) {
	doc := Document{State: StateProcessing, Attempt: 3}

	tests := []struct {
		name string
		cond Condition
		want bool
	}{
		{"empty", Condition{}, true},
		{"state match", Condition{States: []State{StatePending, StateProcessing}}, true},
		{"state mismatch", Condition{States: []State{StatePending}}, false},
		{"attempt match", Condition{States: []State{StateProcessing}, Attempt: 3}, true},
		{"attempt mismatch", Condition{States: []State{StateProcessing}, Attempt: 2}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.cond.Matches(doc); got != tt.want {
				t.Fatalf("Matches = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestUpdateApplyWritesSummaryAlias(t *testing.T) {
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	msg := "old failure"
	doc := Document{State: StateProcessing, ProcessingError: &msg, Attempt: 1}

	text := "Take one tablet daily."
	state := StateProcessed
	Update{State: &state, SimplifiedText: &text, ClearProcessingError: true}.apply(&doc, now)

	if doc.State != StateProcessed {
		t.Fatalf("expected processed, got %s", doc.State)
	}
	if doc.SimplifiedText == nil || doc.Summary == nil || *doc.SimplifiedText != *doc.Summary {
		t.Fatalf("expected summary alias to equal simplified text, got %v / %v", doc.SimplifiedText, doc.Summary)
	}
	if doc.ProcessingError != nil {
		t.Fatalf("expected processing error cleared, got %q", *doc.ProcessingError)
	}
	if !doc.UpdatedAt.Equal(now) {
		t.Fatalf("expected updatedAt %v, got %v", now, doc.UpdatedAt)
	}

	text = "mutated"
	if *doc.SimplifiedText == "mutated" {
		t.Fatal("update must copy values")
	}

	Update{BumpAttempt: true}.apply(&doc, now)
	if doc.Attempt != 2 {
		t.Fatalf("expected attempt 2, got %d", doc.Attempt)
	}
}

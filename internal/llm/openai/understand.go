package openai

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"medocs-backend/internal/documents"
	"medocs-backend/internal/llm"
)

// Classify asks for a document type and coerces the answer onto the
// enumeration.
func (c *Client) Classify(ctx context.Context, content llm.Content) (documents.DocumentType, error) {
	raw, err := c.complete(ctx, "classify", buildMessages(llm.ClassifyPrompt(), content))
	if err != nil {
		return "", err
	}

	var out struct {
		DocumentType string `json:"documentType"`
	}
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		// Not JSON; treat the whole reply as the label.
		return documents.ParseDocumentType(strings.Trim(raw, `"`)), nil
	}
	return documents.ParseDocumentType(out.DocumentType), nil
}

// Simplify returns patient-facing text. An empty result is an error.
func (c *Client) Simplify(ctx context.Context, content llm.Content, docType documents.DocumentType) (string, error) {
	raw, err := c.complete(ctx, "simplify", buildMessages(llm.SimplifyPrompt(docType), content))
	if err != nil {
		return "", err
	}

	var out struct {
		SimplifiedText string `json:"simplifiedText"`
	}
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return "", fmt.Errorf("openai simplify parse: %w", err)
	}
	text := strings.TrimSpace(out.SimplifiedText)
	if text == "" {
		return "", fmt.Errorf("openai simplify returned empty text")
	}
	return text, nil
}

// ExtractMedications returns the medications found in the document.
func (c *Client) ExtractMedications(ctx context.Context, content llm.Content) ([]llm.Medication, error) {
	raw, err := c.complete(ctx, "extract_medications", buildMessages(llm.ExtractMedicationsPrompt(), content))
	if err != nil {
		return nil, err
	}
	return llm.ParseMedications([]byte(raw)), nil
}

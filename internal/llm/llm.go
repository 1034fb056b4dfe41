package llm

import (
	"context"
	"errors"
	"strings"

	"medocs-backend/internal/documents"
)

// Client abstracts the document understanding provider. Each method is one
// external call.
type Client interface {
	// Classify returns one of the classifiable document types. Labels outside
	// the enumeration come back as MISCELLANEOUS, never as an error.
	Classify(ctx context.Context, content Content) (documents.DocumentType, error)
	// Simplify rewrites the document for a patient, guided by its type.
	Simplify(ctx context.Context, content Content, docType documents.DocumentType) (string, error)
	// ExtractMedications returns structured medication entries. Unusable
	// payloads yield an empty list.
	ExtractMedications(ctx context.Context, content Content) ([]Medication, error)
}

// Content is the document as handed to the provider: extracted text, or the
// raw bytes of an image sent in a multimodal request.
type Content struct {
	Text     string
	Data     []byte
	MimeType string
}

// IsImage reports whether the content should be sent as an image.
func (c Content) IsImage() bool {
	return len(c.Data) > 0 && strings.HasPrefix(strings.ToLower(strings.TrimSpace(c.MimeType)), "image/")
}

// Medication is one entry returned by medication extraction.
type Medication struct {
	GenericName                      *string `json:"genericName"`
	BrandName                        *string `json:"brandName"`
	SuggestedName                    *string `json:"suggestedName"`
	Dosage                           *string `json:"dosage"`
	Frequency                        *string `json:"frequency"`
	Purpose                          *string `json:"purpose"`
	SpecialInstructions              *string `json:"specialInstructions"`
	InstructionsFromGeneralKnowledge bool    `json:"instructionsFromGeneralKnowledge"`
	SideEffects                      *string `json:"sideEffects"`
	SideEffectsFromGeneralKnowledge  bool    `json:"sideEffectsFromGeneralKnowledge"`
}

// ErrNotImplemented is returned by the placeholder client.
var ErrNotImplemented = errors.New("LLM not implemented")

// PlaceholderClient is used when no provider is configured.
type PlaceholderClient struct{}

// Classify returns ErrNotImplemented.
func (PlaceholderClient) Classify(ctx context.Context, content Content) (documents.DocumentType, error) {
	return "", ErrNotImplemented
}

// Simplify returns ErrNotImplemented.
func (PlaceholderClient) Simplify(ctx context.Context, content Content, docType documents.DocumentType) (string, error) {
	return "", ErrNotImplemented
}

// ExtractMedications returns ErrNotImplemented.
func (PlaceholderClient) ExtractMedications(ctx context.Context, content Content) ([]Medication, error) {
	return nil, ErrNotImplemented
}

var _ Client = PlaceholderClient{}

package documents

import "time"

// DocumentResponse is the outward-facing representation of a document.
type DocumentResponse struct {
	DocumentID          string      `json:"documentId"`
	Name                string      `json:"name"`
	MimeType            string      `json:"mimeType"`
	SizeBytes           int64       `json:"sizeBytes"`
	Status              State       `json:"status"`
	DocumentType        string      `json:"documentType"`
	SimplifiedText      *string     `json:"simplifiedText,omitempty"`
	Summary             *string     `json:"summary,omitempty"`
	ProcessingError     *string     `json:"processingError,omitempty"`
	Endorsement         *Annotation `json:"endorsement,omitempty"`
	Flag                *Annotation `json:"flag,omitempty"`
	SharedWith          []string    `json:"sharedWith"`
	Attempt             int         `json:"attempt"`
	ProcessingStartedAt *time.Time  `json:"processingStartedAt,omitempty"`
	ProcessedAt         *time.Time  `json:"processedAt,omitempty"`
	UploadedAt          time.Time   `json:"uploadedAt"`
	UpdatedAt           time.Time   `json:"updatedAt"`
}

// ToResponse maps a document to its API shape.
func ToResponse(doc Document) DocumentResponse {
	shared := doc.SharedWith
	if shared == nil {
		shared = []string{}
	}
	return DocumentResponse{
		DocumentID:          doc.ID,
		Name:                doc.Name,
		MimeType:            doc.MimeType,
		SizeBytes:           doc.SizeBytes,
		Status:              doc.State,
		DocumentType:        string(doc.Classification),
		SimplifiedText:      doc.SimplifiedText,
		Summary:             doc.Summary,
		ProcessingError:     doc.ProcessingError,
		Endorsement:         doc.Endorsement,
		Flag:                doc.Flag,
		SharedWith:          shared,
		Attempt:             doc.Attempt,
		ProcessingStartedAt: doc.ProcessingStartedAt,
		ProcessedAt:         doc.ProcessedAt,
		UploadedAt:          doc.CreatedAt,
		UpdatedAt:           doc.UpdatedAt,
	}
}

// ToResponses maps a slice of documents.
func ToResponses(docs []Document) []DocumentResponse {
	out := make([]DocumentResponse, 0, len(docs))
	for _, doc := range docs {
		out = append(out, ToResponse(doc))
	}
	return out
}

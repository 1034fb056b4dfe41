package medications

import (
	"context"
	"errors"

	"medocs-backend/internal/documents"
)

// DocumentReader is the slice of the document store the engine reads.
type DocumentReader interface {
	Get(ctx context.Context, documentID string) (documents.Document, error)
}

// Service serves the per-document, flat, and aggregated medication views.
type Service struct {
	Repo      Repo
	Documents DocumentReader
	// Names is optional; nil reads every name from Documents.
	Names *NameCache
}

// ListForDocument returns the document's occurrences annotated with the
// document name. The viewer must own the document or have it shared.
func (s *Service) ListForDocument(ctx context.Context, viewerID, documentID string) ([]View, error) {
	doc, err := s.Documents.Get(ctx, documentID)
	if err != nil {
		return nil, err
	}
	if doc.UserID != viewerID && !doc.IsSharedWith(viewerID) {
		return nil, documents.ErrNotFound
	}

	occurrences, err := s.Repo.ListByDocument(ctx, documentID)
	if err != nil {
		return nil, err
	}
	return annotate(occurrences, map[string]string{doc.ID: doc.Name}), nil
}

// ListForUser returns the user's occurrences across all documents, without
// deduplication.
func (s *Service) ListForUser(ctx context.Context, userID string) ([]View, error) {
	occurrences, names, err := s.load(ctx, userID)
	if err != nil {
		return nil, err
	}
	return annotate(occurrences, names), nil
}

// Aggregated returns the deduplicated multi-source view for the user.
// Occurrences are folded on every call; only document names are cached.
func (s *Service) Aggregated(ctx context.Context, userID string) ([]Aggregated, error) {
	occurrences, names, err := s.load(ctx, userID)
	if err != nil {
		return nil, err
	}
	return Aggregate(occurrences, names), nil
}

func (s *Service) load(ctx context.Context, userID string) ([]Occurrence, map[string]string, error) {
	if userID == "" {
		return nil, nil, ErrInvalidInput
	}
	occurrences, err := s.Repo.ListByUser(ctx, userID)
	if err != nil {
		return nil, nil, err
	}
	names, err := s.documentNames(ctx, occurrences)
	if err != nil {
		return nil, nil, err
	}
	return occurrences, names, nil
}

func (s *Service) documentNames(ctx context.Context, occurrences []Occurrence) (map[string]string, error) {
	names := make(map[string]string)
	for _, occ := range occurrences {
		if _, ok := names[occ.DocumentID]; ok {
			continue
		}
		if name, ok := s.Names.get(occ.DocumentID); ok {
			names[occ.DocumentID] = name
			continue
		}
		doc, err := s.Documents.Get(ctx, occ.DocumentID)
		switch {
		case err == nil:
			names[occ.DocumentID] = doc.Name
			s.Names.put(doc.ID, doc.Name)
		case errors.Is(err, documents.ErrNotFound):
			// Deleted between the two reads; keep the source with no name.
			names[occ.DocumentID] = ""
		default:
			return nil, err
		}
	}
	return names, nil
}

func annotate(occurrences []Occurrence, names map[string]string) []View {
	out := make([]View, 0, len(occurrences))
	for i, occ := range occurrences {
		out = append(out, View{
			Occurrence:   occ,
			DocumentName: names[occ.DocumentID],
			DisplayName:  DisplayName(occ, i),
		})
	}
	return out
}

package review

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"medocs-backend/internal/documents"
	"medocs-backend/internal/shared/telemetry"
)

// Repo is the slice of the documents repository that review needs.
type Repo interface {
	UpdateFields(ctx context.Context, documentID string, upd documents.Update) (documents.Document, error)
	AddShare(ctx context.Context, documentID, reviewerID string) (documents.Document, error)
	RemoveShare(ctx context.Context, documentID, reviewerID string) (documents.Document, error)
}

// Service applies doctor annotations and manages the sharing set. None of
// its operations touch the processing state.
type Service struct {
	Repo Repo
	Now  func() time.Time
}

func NewService(repo Repo) *Service {
	return &Service{Repo: repo}
}

// Endorse overwrites the endorsement slot.
func (s *Service) Endorse(ctx context.Context, documentID, reviewerID, displayName, note string) (documents.Document, error) {
	ann, err := s.annotation(reviewerID, displayName, note)
	if err != nil {
		return documents.Document{}, err
	}
	doc, err := s.Repo.UpdateFields(ctx, documentID, documents.Update{Endorsement: &ann})
	if err != nil {
		return documents.Document{}, wrapMissing(err)
	}
	logAction("document.endorsed", documentID, reviewerID)
	return doc, nil
}

// Flag overwrites the flag slot. A document may be endorsed and flagged at
// the same time.
func (s *Service) Flag(ctx context.Context, documentID, reviewerID, displayName, note string) (documents.Document, error) {
	ann, err := s.annotation(reviewerID, displayName, note)
	if err != nil {
		return documents.Document{}, err
	}
	doc, err := s.Repo.UpdateFields(ctx, documentID, documents.Update{Flag: &ann})
	if err != nil {
		return documents.Document{}, wrapMissing(err)
	}
	logAction("document.flagged", documentID, reviewerID)
	return doc, nil
}

// Share adds reviewerID to the sharing set. Sharing twice is a no-op.
func (s *Service) Share(ctx context.Context, documentID, reviewerID string) (documents.Document, error) {
	reviewerID = strings.TrimSpace(reviewerID)
	if reviewerID == "" {
		return documents.Document{}, fmt.Errorf("%w: reviewer id is required", documents.ErrInvalidInput)
	}
	doc, err := s.Repo.AddShare(ctx, documentID, reviewerID)
	if err != nil {
		return documents.Document{}, wrapMissing(err)
	}
	logAction("document.shared", documentID, reviewerID)
	return doc, nil
}

// Unshare removes reviewerID from the sharing set. Removing an absent
// reviewer is a no-op.
func (s *Service) Unshare(ctx context.Context, documentID, reviewerID string) (documents.Document, error) {
	reviewerID = strings.TrimSpace(reviewerID)
	if reviewerID == "" {
		return documents.Document{}, fmt.Errorf("%w: reviewer id is required", documents.ErrInvalidInput)
	}
	doc, err := s.Repo.RemoveShare(ctx, documentID, reviewerID)
	if err != nil {
		return documents.Document{}, wrapMissing(err)
	}
	logAction("document.unshared", documentID, reviewerID)
	return doc, nil
}

func (s *Service) annotation(reviewerID, displayName, note string) (documents.Annotation, error) {
	reviewerID = strings.TrimSpace(reviewerID)
	if reviewerID == "" {
		return documents.Annotation{}, fmt.Errorf("%w: reviewer id is required", documents.ErrInvalidInput)
	}
	return documents.Annotation{
		ReviewerID:  reviewerID,
		DisplayName: strings.TrimSpace(displayName),
		Note:        strings.TrimSpace(note),
		At:          s.now(),
	}, nil
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

// wrapMissing reports a review on an unknown document as both an invalid
// transition and not found.
func wrapMissing(err error) error {
	if errors.Is(err, documents.ErrNotFound) {
		return fmt.Errorf("%w: %w", documents.ErrInvalidTransition, documents.ErrNotFound)
	}
	return err
}

func logAction(msg, documentID, reviewerID string) {
	telemetry.Info(msg, map[string]any{
		"document_id": documentID,
		"reviewer_id": reviewerID,
	})
}

package documents

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"

	"medocs-backend/internal/shared/storage/object"
	"medocs-backend/internal/shared/telemetry"
)

// MedicationRemover deletes the medication occurrences tied to a document.
type MedicationRemover interface {
	DeleteByDocument(ctx context.Context, documentID string) error
}

// Service contains business logic for documents.
type Service struct {
	Store       object.ObjectStore
	Repo        DocumentsRepo
	Medications MedicationRemover
}

// Upload saves the file to object storage and records a pending document.
func (s *Service) Upload(ctx context.Context, userID, fileName string, r io.Reader) (Document, error) {
	fileName = strings.TrimSpace(fileName)
	if userID == "" || fileName == "" {
		return Document{}, ErrInvalidInput
	}

	storageKey, size, mimeType, err := s.Store.Save(ctx, userID, fileName, r)
	if err != nil {
		return Document{}, err
	}
	if size == 0 {
		_ = s.Store.Delete(ctx, storageKey)
		return Document{}, fmt.Errorf("%w: empty file", ErrInvalidInput)
	}

	return s.create(ctx, userID, fileName, storageKey, mimeType, size)
}

// CreateFromStorage records a document for an object that was uploaded
// directly to the store. The key must be one issued for this user.
func (s *Service) CreateFromStorage(ctx context.Context, userID, storageKey, fileName, contentType string, sizeBytes int64) (Document, error) {
	if userID == "" || storageKey == "" || fileName == "" || contentType == "" || sizeBytes <= 0 {
		return Document{}, ErrInvalidInput
	}
	if !object.OwnedBy(storageKey, userID) {
		return Document{}, fmt.Errorf("%w: storage key outside user namespace", ErrForbidden)
	}
	// Trust the store over the client when it can tell us what landed.
	if st, ok := s.Store.(object.Statter); ok {
		info, err := st.Stat(ctx, storageKey)
		if errors.Is(err, object.ErrNotFound) {
			return Document{}, fmt.Errorf("%w: no object uploaded under storage key", ErrInvalidInput)
		}
		if err != nil {
			return Document{}, fmt.Errorf("stat uploaded object: %w", err)
		}
		if info.Size > 0 {
			sizeBytes = info.Size
		}
	}
	return s.create(ctx, userID, fileName, storageKey, contentType, sizeBytes)
}

func (s *Service) create(ctx context.Context, userID, fileName, storageKey, mimeType string, size int64) (Document, error) {
	now := time.Now().UTC()
	doc := Document{
		ID:             uuid.NewString(),
		UserID:         userID,
		Name:           fileName,
		StorageKey:     storageKey,
		MimeType:       mimeType,
		SizeBytes:      size,
		State:          StatePending,
		Classification: TypeUnclassified,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	if err := s.Repo.Create(ctx, doc); err != nil {
		return Document{}, err
	}
	telemetry.Info("document.created", map[string]any{
		"user_id":     userID,
		"document_id": doc.ID,
		"mime_type":   mimeType,
		"size_bytes":  size,
	})
	return doc, nil
}

// Get returns a document visible to the viewer: the owner or a reviewer the
// document is shared with.
func (s *Service) Get(ctx context.Context, viewerID, documentID string) (Document, error) {
	doc, err := s.Repo.Get(ctx, documentID)
	if err != nil {
		return Document{}, err
	}
	if doc.UserID != viewerID && !doc.IsSharedWith(viewerID) {
		return Document{}, ErrNotFound
	}
	return doc, nil
}

// List returns the user's own documents, newest first.
func (s *Service) List(ctx context.Context, userID string, limit, offset int) ([]Document, error) {
	if userID == "" {
		return nil, ErrInvalidInput
	}
	return s.Repo.ListByUser(ctx, userID, limit, offset)
}

// ListShared returns documents shared with the reviewer.
func (s *Service) ListShared(ctx context.Context, reviewerID string) ([]Document, error) {
	if reviewerID == "" {
		return nil, ErrInvalidInput
	}
	return s.Repo.ListSharedWith(ctx, reviewerID)
}

// Delete removes the document's medication occurrences, its stored object,
// and finally the record. Only the owner may delete.
func (s *Service) Delete(ctx context.Context, userID, documentID string) error {
	doc, err := s.Repo.Get(ctx, documentID)
	if err != nil {
		return err
	}
	if doc.UserID != userID {
		if doc.IsSharedWith(userID) {
			return ErrForbidden
		}
		return ErrNotFound
	}

	if s.Medications != nil {
		if err := s.Medications.DeleteByDocument(ctx, documentID); err != nil {
			return fmt.Errorf("delete medications: %w", err)
		}
	}
	if err := s.Store.Delete(ctx, doc.StorageKey); err != nil {
		return fmt.Errorf("delete object: %w", err)
	}
	if err := s.Repo.Delete(ctx, documentID); err != nil {
		return err
	}

	telemetry.Info("document.deleted", map[string]any{
		"user_id":     userID,
		"document_id": documentID,
	})
	return nil
}

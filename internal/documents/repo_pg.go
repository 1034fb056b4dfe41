package documents

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// shareSeparator joins reviewer ids in the aggregated shares column.
const shareSeparator = "\x1f"

const documentColumns = `d.id, d.user_id, d.name, d.storage_key, d.mime_type, d.size_bytes, d.state, d.classification,
    d.extracted_text, d.simplified_text, d.summary, d.processing_error, d.endorsement, d.flag, d.attempt,
    d.processing_started_at, d.processed_at, d.created_at, d.updated_at,
    COALESCE((SELECT string_agg(s.reviewer_id, chr(31) ORDER BY s.created_at, s.reviewer_id) FROM document_shares s WHERE s.document_id = d.id), '')`

// PGRepo implements DocumentsRepo using Postgres.
type PGRepo struct {
	DB *sql.DB
}

type rowScanner interface {
	Scan(dest ...any) error
}

// rowQuerier is satisfied by both *sql.DB and *sql.Tx.
type rowQuerier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Create inserts a new document.
func (r *PGRepo) Create(ctx context.Context, doc Document) error {
	const query = `
INSERT INTO documents (
    id,
    user_id,
    name,
    storage_key,
    mime_type,
    size_bytes,
    state,
    classification,
    extracted_text,
    attempt,
    created_at,
    updated_at
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`

	state := doc.State
	if state == "" {
		state = StatePending
	}
	classification := doc.Classification
	if classification == "" {
		classification = TypeUnclassified
	}
	updatedAt := doc.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = doc.CreatedAt
	}

	_, err := r.DB.ExecContext(
		ctx,
		query,
		doc.ID,
		doc.UserID,
		doc.Name,
		doc.StorageKey,
		doc.MimeType,
		doc.SizeBytes,
		string(state),
		string(classification),
		doc.ExtractedText,
		doc.Attempt,
		doc.CreatedAt,
		updatedAt,
	)
	return err
}

// Get fetches a document by ID.
func (r *PGRepo) Get(ctx context.Context, documentID string) (Document, error) {
	return getDocument(ctx, r.DB, documentID)
}

func getDocument(ctx context.Context, q rowQuerier, documentID string) (Document, error) {
	query := `SELECT ` + documentColumns + `
FROM documents d
WHERE d.id = $1
LIMIT 1`
	doc, err := scanDocument(q.QueryRowContext(ctx, query, documentID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Document{}, ErrNotFound
		}
		return Document{}, err
	}
	return doc, nil
}

// ListByUser lists documents ordered newest-first.
func (r *PGRepo) ListByUser(ctx context.Context, userID string, limit, offset int) ([]Document, error) {
	if limit <= 0 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}
	query := `SELECT ` + documentColumns + `
FROM documents d
WHERE d.user_id = $1
ORDER BY d.created_at DESC, d.id
LIMIT $2 OFFSET $3`
	return r.queryDocuments(ctx, query, userID, limit, offset)
}

// ListSharedWith lists documents shared with the reviewer, newest-first.
func (r *PGRepo) ListSharedWith(ctx context.Context, reviewerID string) ([]Document, error) {
	query := `SELECT ` + documentColumns + `
FROM documents d
JOIN document_shares ds ON ds.document_id = d.id
WHERE ds.reviewer_id = $1
ORDER BY d.created_at DESC, d.id`
	return r.queryDocuments(ctx, query, reviewerID)
}

// ListStuck lists documents left in processing since before the cutoff.
func (r *PGRepo) ListStuck(ctx context.Context, startedBefore time.Time) ([]Document, error) {
	query := `SELECT ` + documentColumns + `
FROM documents d
WHERE d.state = $1 AND d.processing_started_at < $2
ORDER BY d.processing_started_at`
	return r.queryDocuments(ctx, query, string(StateProcessing), startedBefore)
}

// UpdateFields applies a partial update unconditionally.
func (r *PGRepo) UpdateFields(ctx context.Context, documentID string, upd Update) (Document, error) {
	return r.CompareAndUpdate(ctx, documentID, Condition{}, upd)
}

// CompareAndUpdate applies upd in one statement guarded by cond.
func (r *PGRepo) CompareAndUpdate(ctx context.Context, documentID string, cond Condition, upd Update) (Document, error) {
	return compareAndUpdate(ctx, r.DB, documentID, cond, upd)
}

// CompareAndUpdateTx is CompareAndUpdate inside the caller's transaction, for
// writes that must commit together with the document transition.
func CompareAndUpdateTx(ctx context.Context, tx *sql.Tx, documentID string, cond Condition, upd Update) (Document, error) {
	return compareAndUpdate(ctx, tx, documentID, cond, upd)
}

func compareAndUpdate(ctx context.Context, q rowQuerier, documentID string, cond Condition, upd Update) (Document, error) {
	query, args, err := buildUpdate(documentID, cond, upd, time.Now().UTC())
	if err != nil {
		return Document{}, err
	}
	doc, err := scanDocument(q.QueryRowContext(ctx, query, args...))
	if err == nil {
		return doc, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return Document{}, err
	}

	current, getErr := getDocument(ctx, q, documentID)
	if getErr != nil {
		return Document{}, getErr
	}
	return current, ErrConditionFailed
}

// AddShare inserts the reviewer into the sharing set; existing entries are kept.
func (r *PGRepo) AddShare(ctx context.Context, documentID, reviewerID string) (Document, error) {
	const query = `
INSERT INTO document_shares (document_id, reviewer_id, created_at)
VALUES ($1, $2, $3)
ON CONFLICT (document_id, reviewer_id) DO NOTHING`
	return r.changeShares(ctx, documentID, query, documentID, reviewerID, time.Now().UTC())
}

// RemoveShare deletes the reviewer from the sharing set if present.
func (r *PGRepo) RemoveShare(ctx context.Context, documentID, reviewerID string) (Document, error) {
	const query = `DELETE FROM document_shares WHERE document_id = $1 AND reviewer_id = $2`
	return r.changeShares(ctx, documentID, query, documentID, reviewerID)
}

func (r *PGRepo) changeShares(ctx context.Context, documentID, query string, args ...any) (Document, error) {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return Document{}, err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `UPDATE documents SET updated_at = $2 WHERE id = $1`, documentID, time.Now().UTC())
	if err != nil {
		return Document{}, err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return Document{}, ErrNotFound
	}
	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		return Document{}, err
	}
	if err := tx.Commit(); err != nil {
		return Document{}, err
	}
	return r.Get(ctx, documentID)
}

// Delete removes a document; shares go with it through the foreign key.
func (r *PGRepo) Delete(ctx context.Context, documentID string) error {
	res, err := r.DB.ExecContext(ctx, `DELETE FROM documents WHERE id = $1`, documentID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *PGRepo) queryDocuments(ctx context.Context, query string, args ...any) ([]Document, error) {
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []Document{}
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, doc)
	}
	return out, rows.Err()
}

// buildUpdate renders the guarded UPDATE ... RETURNING statement.
func buildUpdate(documentID string, cond Condition, upd Update, now time.Time) (string, []any, error) {
	args := []any{documentID}
	next := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	var sets []string
	if upd.State != nil {
		sets = append(sets, "state = "+next(string(*upd.State)))
	}
	if upd.Classification != nil {
		sets = append(sets, "classification = "+next(string(*upd.Classification)))
	}
	if upd.ExtractedText != nil {
		sets = append(sets, "extracted_text = "+next(*upd.ExtractedText))
	}
	if upd.SimplifiedText != nil {
		p := next(*upd.SimplifiedText)
		sets = append(sets, "simplified_text = "+p, "summary = "+p)
	}
	if upd.ProcessingError != nil {
		sets = append(sets, "processing_error = "+next(*upd.ProcessingError))
	} else if upd.ClearProcessingError {
		sets = append(sets, "processing_error = NULL")
	}
	if upd.Endorsement != nil {
		raw, err := json.Marshal(upd.Endorsement)
		if err != nil {
			return "", nil, err
		}
		sets = append(sets, "endorsement = "+next(raw))
	}
	if upd.Flag != nil {
		raw, err := json.Marshal(upd.Flag)
		if err != nil {
			return "", nil, err
		}
		sets = append(sets, "flag = "+next(raw))
	}
	if upd.BumpAttempt {
		sets = append(sets, "attempt = attempt + 1")
	}
	if upd.ProcessingStartedAt != nil {
		sets = append(sets, "processing_started_at = "+next(*upd.ProcessingStartedAt))
	}
	if upd.ProcessedAt != nil {
		sets = append(sets, "processed_at = "+next(*upd.ProcessedAt))
	}
	sets = append(sets, "updated_at = "+next(now))

	where := []string{"d.id = $1"}
	if len(cond.States) > 0 {
		placeholders := make([]string, 0, len(cond.States))
		for _, s := range cond.States {
			placeholders = append(placeholders, next(string(s)))
		}
		where = append(where, "d.state IN ("+strings.Join(placeholders, ", ")+")")
	}
	if cond.Attempt > 0 {
		where = append(where, "d.attempt = "+next(cond.Attempt))
	}

	query := `UPDATE documents AS d SET ` + strings.Join(sets, ", ") + `
WHERE ` + strings.Join(where, " AND ") + `
RETURNING ` + documentColumns
	return query, args, nil
}

func scanDocument(row rowScanner) (Document, error) {
	var doc Document
	var state, classification string
	var simplified, summary, processingError sql.NullString
	var endorsement, flag []byte
	var startedAt, processedAt sql.NullTime
	var shares string
	err := row.Scan(
		&doc.ID,
		&doc.UserID,
		&doc.Name,
		&doc.StorageKey,
		&doc.MimeType,
		&doc.SizeBytes,
		&state,
		&classification,
		&doc.ExtractedText,
		&simplified,
		&summary,
		&processingError,
		&endorsement,
		&flag,
		&doc.Attempt,
		&startedAt,
		&processedAt,
		&doc.CreatedAt,
		&doc.UpdatedAt,
		&shares,
	)
	if err != nil {
		return Document{}, err
	}
	doc.State = State(state)
	doc.Classification = DocumentType(classification)
	if simplified.Valid {
		doc.SimplifiedText = &simplified.String
	}
	if summary.Valid {
		doc.Summary = &summary.String
	}
	if processingError.Valid {
		doc.ProcessingError = &processingError.String
	}
	if doc.Endorsement, err = unmarshalAnnotation(endorsement); err != nil {
		return Document{}, fmt.Errorf("decode endorsement: %w", err)
	}
	if doc.Flag, err = unmarshalAnnotation(flag); err != nil {
		return Document{}, fmt.Errorf("decode flag: %w", err)
	}
	if startedAt.Valid {
		doc.ProcessingStartedAt = &startedAt.Time
	}
	if processedAt.Valid {
		doc.ProcessedAt = &processedAt.Time
	}
	if shares != "" {
		doc.SharedWith = strings.Split(shares, shareSeparator)
	}
	return doc, nil
}

func unmarshalAnnotation(raw []byte) (*Annotation, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var a Annotation
	if err := json.Unmarshal(raw, &a); err != nil {
		return nil, err
	}
	return &a, nil
}

var _ DocumentsRepo = (*PGRepo)(nil)

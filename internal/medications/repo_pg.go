package medications

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"

	"medocs-backend/internal/documents"
)

const occurrenceColumns = `id, user_id, document_id, generation, generic_name, brand_name, suggested_name,
    dosage, frequency, purpose, special_instructions, instructions_from_general_knowledge,
    side_effects, side_effects_from_general_knowledge, captured_at`

// PGRepo implements Repo using Postgres.
type PGRepo struct {
	DB *sql.DB
}

// ListByDocument returns the document's occurrences in batch order.
func (r *PGRepo) ListByDocument(ctx context.Context, documentID string) ([]Occurrence, error) {
	return r.query(ctx, `SELECT `+occurrenceColumns+`
FROM medication_occurrences
WHERE document_id = $1
ORDER BY position`, documentID)
}

// ListByUser returns every occurrence owned by the user.
func (r *PGRepo) ListByUser(ctx context.Context, userID string) ([]Occurrence, error) {
	return r.query(ctx, `SELECT `+occurrenceColumns+`
FROM medication_occurrences
WHERE user_id = $1
ORDER BY captured_at, document_id, position`, userID)
}

// ReplaceForDocument swaps the document's batch inside one transaction that
// holds the document row lock, so concurrent completions serialize.
func (r *PGRepo) ReplaceForDocument(ctx context.Context, documentID, userID string, generation int, occurrences []Occurrence) error {
	if documentID == "" || userID == "" {
		return ErrInvalidInput
	}
	return r.inTx(ctx, func(tx *sql.Tx) error {
		return replaceTx(ctx, tx, documentID, userID, generation, occurrences)
	})
}

// Complete swaps the batch and applies the guarded document update in the
// same transaction. A failed condition rolls the batch back.
func (r *PGRepo) Complete(ctx context.Context, c Completion) (documents.Document, error) {
	if c.DocumentID == "" || c.UserID == "" {
		return documents.Document{}, ErrInvalidInput
	}
	var doc documents.Document
	err := r.inTx(ctx, func(tx *sql.Tx) error {
		if err := replaceTx(ctx, tx, c.DocumentID, c.UserID, c.Generation, c.Occurrences); err != nil {
			if errors.Is(err, ErrNotFound) {
				return documents.ErrNotFound
			}
			return err
		}
		var err error
		doc, err = documents.CompareAndUpdateTx(ctx, tx, c.DocumentID, c.Condition, c.Update)
		return err
	})
	return doc, err
}

func (r *PGRepo) inTx(ctx context.Context, fn func(tx *sql.Tx) error) (err error) {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()
	if err = fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

func replaceTx(ctx context.Context, tx *sql.Tx, documentID, userID string, generation int, occurrences []Occurrence) error {
	var stored int
	err := tx.QueryRowContext(ctx, `
SELECT medications_generation FROM documents WHERE id = $1 FOR UPDATE`, documentID).Scan(&stored)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		return err
	}
	if generation < stored {
		return ErrStaleGeneration
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM medication_occurrences WHERE document_id = $1`, documentID); err != nil {
		return err
	}

	const insert = `
INSERT INTO medication_occurrences (
    id,
    user_id,
    document_id,
    position,
    generation,
    generic_name,
    brand_name,
    suggested_name,
    dosage,
    frequency,
    purpose,
    special_instructions,
    instructions_from_general_knowledge,
    side_effects,
    side_effects_from_general_knowledge,
    captured_at
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)`
	for i, occ := range occurrences {
		id := occ.ID
		if id == "" {
			id = uuid.NewString()
		}
		if _, err := tx.ExecContext(ctx, insert,
			id,
			userID,
			documentID,
			i,
			generation,
			nullString(occ.GenericName),
			nullString(occ.BrandName),
			nullString(occ.SuggestedName),
			nullString(occ.Dosage),
			nullString(occ.Frequency),
			nullString(occ.Purpose),
			nullString(occ.SpecialInstructions),
			occ.InstructionsFromGeneralKnowledge,
			nullString(occ.SideEffects),
			occ.SideEffectsFromGeneralKnowledge,
			occ.CapturedAt,
		); err != nil {
			return err
		}
	}

	_, err = tx.ExecContext(ctx, `UPDATE documents SET medications_generation = $2 WHERE id = $1`, documentID, generation)
	return err
}

// DeleteByDocument removes all occurrences for the document.
func (r *PGRepo) DeleteByDocument(ctx context.Context, documentID string) error {
	_, err := r.DB.ExecContext(ctx, `DELETE FROM medication_occurrences WHERE document_id = $1`, documentID)
	return err
}

func (r *PGRepo) query(ctx context.Context, query string, args ...any) ([]Occurrence, error) {
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []Occurrence{}
	for rows.Next() {
		var occ Occurrence
		var generic, brand, suggested, dosage, frequency, purpose, instructions, sideEffects sql.NullString
		if err := rows.Scan(
			&occ.ID,
			&occ.UserID,
			&occ.DocumentID,
			&occ.Generation,
			&generic,
			&brand,
			&suggested,
			&dosage,
			&frequency,
			&purpose,
			&instructions,
			&occ.InstructionsFromGeneralKnowledge,
			&sideEffects,
			&occ.SideEffectsFromGeneralKnowledge,
			&occ.CapturedAt,
		); err != nil {
			return nil, err
		}
		occ.GenericName = stringPtr(generic)
		occ.BrandName = stringPtr(brand)
		occ.SuggestedName = stringPtr(suggested)
		occ.Dosage = stringPtr(dosage)
		occ.Frequency = stringPtr(frequency)
		occ.Purpose = stringPtr(purpose)
		occ.SpecialInstructions = stringPtr(instructions)
		occ.SideEffects = stringPtr(sideEffects)
		out = append(out, occ)
	}
	return out, rows.Err()
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func stringPtr(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	v := ns.String
	return &v
}

var _ Repo = (*PGRepo)(nil)

/**
 * @description
 * Queries for the attachment subsystem: evidentiary documents and free-text
 * notes. These writes run outside the transition transaction on purpose —
 * attaching evidence never touches the claim's status, and is allowed in
 * any lifecycle state including terminal ones (for record-keeping).
 */

package store

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/propie/htb-claims-service/internal/domain"
)

// foreignKeyViolation is the PostgreSQL error code for a missing parent row.
func isForeignKeyViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23503"
}

// CreateDocument links an externally stored artifact to a claim. Documents
// are immutable: there is no update path, corrections are new rows.
func (r *PostgresRepository) CreateDocument(ctx context.Context, doc *domain.Document) error {
	query := `
		INSERT INTO htb_documents (id, claim_id, url, name, type, uploaded_by)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING uploaded_at
	`
	err := r.db.QueryRow(ctx, query,
		doc.ID, doc.ClaimID, doc.URL, doc.Name, doc.Type, doc.UploadedBy,
	).Scan(&doc.UploadedAt)
	if err != nil {
		if isForeignKeyViolation(err) {
			return ErrClaimNotFound
		}
		return wrapStorageErr("insert document", err)
	}
	return nil
}

// ListDocuments returns a claim's documents, newest first.
func (r *PostgresRepository) ListDocuments(ctx context.Context, claimID uuid.UUID) ([]domain.Document, error) {
	query := `
		SELECT id, claim_id, url, name, type, uploaded_by, uploaded_at
		FROM htb_documents
		WHERE claim_id = $1
		ORDER BY uploaded_at DESC
	`
	rows, err := r.db.Query(ctx, query, claimID)
	if err != nil {
		return nil, wrapStorageErr("list documents", err)
	}
	defer rows.Close()

	var docs []domain.Document
	for rows.Next() {
		var d domain.Document
		if err := rows.Scan(&d.ID, &d.ClaimID, &d.URL, &d.Name, &d.Type, &d.UploadedBy, &d.UploadedAt); err != nil {
			return nil, err
		}
		docs = append(docs, d)
	}
	return docs, rows.Err()
}

// CreateNote adds a free-text annotation to a claim.
func (r *PostgresRepository) CreateNote(ctx context.Context, note *domain.Note) error {
	query := `
		INSERT INTO htb_notes (id, claim_id, content, is_private, created_by)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at
	`
	err := r.db.QueryRow(ctx, query,
		note.ID, note.ClaimID, note.Content, note.IsPrivate, note.CreatedBy,
	).Scan(&note.CreatedAt)
	if err != nil {
		if isForeignKeyViolation(err) {
			return ErrClaimNotFound
		}
		return wrapStorageErr("insert note", err)
	}
	return nil
}

// ListNotes returns a claim's notes, newest first. When includePrivate is
// false (buyer viewers), internal notes are filtered out in the query.
func (r *PostgresRepository) ListNotes(ctx context.Context, claimID uuid.UUID, includePrivate bool) ([]domain.Note, error) {
	query := `
		SELECT id, claim_id, content, is_private, created_by, created_at
		FROM htb_notes
		WHERE claim_id = $1 AND ($2 OR is_private = FALSE)
		ORDER BY created_at DESC
	`
	rows, err := r.db.Query(ctx, query, claimID, includePrivate)
	if err != nil {
		return nil, wrapStorageErr("list notes", err)
	}
	defer rows.Close()

	var notes []domain.Note
	for rows.Next() {
		var n domain.Note
		if err := rows.Scan(&n.ID, &n.ClaimID, &n.Content, &n.IsPrivate, &n.CreatedBy, &n.CreatedAt); err != nil {
			return nil, err
		}
		notes = append(notes, n)
	}
	return notes, rows.Err()
}

/**
 * @description
 * Append-only status history writer and reader. The writer is deliberately
 * unexported and takes the open transaction of the claim mutation it
 * records: a history row can only ever be created together with the claim
 * write it describes, which is what keeps the 1:1 coupling between
 * transitions and audit rows. No code in this service updates or deletes
 * rows in htb_status_history.
 */

package store

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/propie/htb-claims-service/internal/domain"
)

type historyEntry struct {
	ClaimID        uuid.UUID
	PreviousStatus *domain.ClaimStatus
	NewStatus      domain.ClaimStatus
	UpdatedBy      uuid.UUID
	Note           string
}

// appendStatusHistory writes one immutable audit row inside the caller's
// transaction. PreviousStatus is nil only for the creation event.
func appendStatusHistory(ctx context.Context, tx pgx.Tx, entry historyEntry) error {
	query := `
		INSERT INTO htb_status_history (id, claim_id, previous_status, new_status, updated_by, note)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err := tx.Exec(ctx, query,
		uuid.New(), entry.ClaimID, entry.PreviousStatus, entry.NewStatus, entry.UpdatedBy, entry.Note,
	)
	if err != nil {
		return wrapStorageErr("append status history", err)
	}
	return nil
}

// ListStatusHistory returns a claim's audit trail in the order the
// transitions were applied.
func (r *PostgresRepository) ListStatusHistory(ctx context.Context, claimID uuid.UUID) ([]domain.StatusHistory, error) {
	query := `
		SELECT id, claim_id, previous_status, new_status, updated_by, updated_at, note
		FROM htb_status_history
		WHERE claim_id = $1
		ORDER BY ordinal ASC
	`
	rows, err := r.db.Query(ctx, query, claimID)
	if err != nil {
		return nil, wrapStorageErr("list status history", err)
	}
	defer rows.Close()

	var history []domain.StatusHistory
	for rows.Next() {
		var h domain.StatusHistory
		if err := rows.Scan(&h.ID, &h.ClaimID, &h.PreviousStatus, &h.NewStatus, &h.UpdatedBy, &h.UpdatedAt, &h.Note); err != nil {
			return nil, err
		}
		history = append(history, h)
	}
	return history, rows.Err()
}

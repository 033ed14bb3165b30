/**
 * @description
 * This file provides the PostgreSQL implementation of the `Repository`
 * interface. It contains all the SQL for the claim aggregate: creation,
 * reads, role-scoped listings, and the locked transition transaction that
 * couples every status write to exactly one history row.
 *
 * @dependencies
 * - context, errors, fmt, strings, time: Standard Go libraries.
 * - github.com/jackc/pgx/v5: The PostgreSQL driver for database operations.
 * - internal/domain: Contains the domain models used for data transfer.
 */

package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/propie/htb-claims-service/internal/domain"
)

var (
	ErrClaimNotFound          = errors.New("claim not found")
	ErrConcurrentModification = errors.New("claim was modified concurrently")
	ErrLockTimeout            = errors.New("timed out waiting for claim row lock")
	ErrStorageUnavailable     = errors.New("storage unavailable")
)

const claimColumns = `id, buyer_id, developer_id, property_id, requested_amount,
	approved_amount, drawdown_amount, access_code, access_code_expiry_date,
	claim_code, claim_code_expiry_date, status, created_at, updated_at`

// PostgresRepository is a concrete implementation of the Repository
// interface for PostgreSQL. The lock timeout is fixed at construction; no
// claim state is cached between calls.
type PostgresRepository struct {
	db          *pgxpool.Pool
	lockTimeout time.Duration
}

// NewPostgresRepository creates a new instance of PostgresRepository.
// lockTimeout bounds how long a transition waits for the claim row lock
// before failing with ErrLockTimeout.
func NewPostgresRepository(db *pgxpool.Pool, lockTimeout time.Duration) *PostgresRepository {
	if lockTimeout <= 0 {
		lockTimeout = 3 * time.Second
	}
	return &PostgresRepository{db: db, lockTimeout: lockTimeout}
}

// lockNotAvailable is the PostgreSQL error class raised when lock_timeout
// elapses while waiting on FOR UPDATE.
func isLockNotAvailable(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "55P03"
}

// isConnectionFailure reports transient connectivity errors (class 08) so
// callers can distinguish retryable storage failures from data errors.
func isConnectionFailure(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && strings.HasPrefix(pgErr.Code, "08") {
		return true
	}
	return pgconn.SafeToRetry(err)
}

func wrapStorageErr(op string, err error) error {
	if isConnectionFailure(err) {
		return fmt.Errorf("%s: %w: %v", op, ErrStorageUnavailable, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}

func scanClaim(row pgx.Row) (*domain.Claim, error) {
	var c domain.Claim
	err := row.Scan(
		&c.ID, &c.BuyerID, &c.DeveloperID, &c.PropertyID, &c.RequestedAmount,
		&c.ApprovedAmount, &c.DrawdownAmount, &c.AccessCode, &c.AccessCodeExpiry,
		&c.ClaimCode, &c.ClaimCodeExpiry, &c.Status, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// CreateClaim inserts a claim in its initial status together with the
// creation history row, atomically.
func (r *PostgresRepository) CreateClaim(ctx context.Context, claim *domain.Claim) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return wrapStorageErr("begin create claim tx", err)
	}
	defer tx.Rollback(ctx)

	query := `
		INSERT INTO htb_claims (id, buyer_id, property_id, requested_amount, status)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at, updated_at
	`
	err = tx.QueryRow(ctx, query,
		claim.ID, claim.BuyerID, claim.PropertyID, claim.RequestedAmount, claim.Status,
	).Scan(&claim.CreatedAt, &claim.UpdatedAt)
	if err != nil {
		return wrapStorageErr("insert claim", err)
	}

	if err := appendStatusHistory(ctx, tx, historyEntry{
		ClaimID:   claim.ID,
		NewStatus: claim.Status,
		UpdatedBy: claim.BuyerID,
		Note:      "HTB claim initiated",
	}); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return wrapStorageErr("commit create claim tx", err)
	}
	return nil
}

// GetClaimByID retrieves a single claim without locking it.
func (r *PostgresRepository) GetClaimByID(ctx context.Context, claimID uuid.UUID) (*domain.Claim, error) {
	query := `SELECT ` + claimColumns + ` FROM htb_claims WHERE id = $1`
	claim, err := scanClaim(r.db.QueryRow(ctx, query, claimID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrClaimNotFound
		}
		return nil, wrapStorageErr("get claim", err)
	}
	return claim, nil
}

// ListClaimsByBuyer retrieves all claims initiated by a buyer, newest first.
func (r *PostgresRepository) ListClaimsByBuyer(ctx context.Context, buyerID uuid.UUID) ([]domain.Claim, error) {
	query := `SELECT ` + claimColumns + ` FROM htb_claims WHERE buyer_id = $1 ORDER BY created_at DESC`
	rows, err := r.db.Query(ctx, query, buyerID)
	if err != nil {
		return nil, wrapStorageErr("list buyer claims", err)
	}
	defer rows.Close()
	return collectClaims(rows)
}

// ListClaimsByDeveloper retrieves claims assigned to a developer, optionally
// narrowed by status and property.
func (r *PostgresRepository) ListClaimsByDeveloper(ctx context.Context, developerID uuid.UUID, filters domain.ClaimFilters) ([]domain.Claim, error) {
	query := `SELECT ` + claimColumns + ` FROM htb_claims WHERE developer_id = $1`
	args := []interface{}{developerID}

	if filters.Status != nil {
		args = append(args, *filters.Status)
		query += fmt.Sprintf(" AND status = $%d", len(args))
	}
	if filters.PropertyID != "" {
		args = append(args, filters.PropertyID)
		query += fmt.Sprintf(" AND property_id = $%d", len(args))
	}
	query += " ORDER BY created_at DESC"

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, wrapStorageErr("list developer claims", err)
	}
	defer rows.Close()
	return collectClaims(rows)
}

func collectClaims(rows pgx.Rows) ([]domain.Claim, error) {
	var claims []domain.Claim
	for rows.Next() {
		c, err := scanClaim(rows)
		if err != nil {
			return nil, err
		}
		claims = append(claims, *c)
	}
	return claims, rows.Err()
}

// TransitionClaim applies one validated status change. The transaction
// (a) locks the claim row with a bounded wait, (b) re-validates against the
// locked value rather than whatever the caller read earlier, (c) writes the
// new claim state, (d) appends exactly one history row, (e) commits. Any
// failure in (b)-(d) rolls the whole transaction back.
func (r *PostgresRepository) TransitionClaim(ctx context.Context, params TransitionParams) (*domain.Claim, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, wrapStorageErr("begin transition tx", err)
	}
	defer tx.Rollback(ctx)

	// lock_timeout is transaction-local; it bounds the FOR UPDATE wait below.
	if _, err := tx.Exec(ctx, fmt.Sprintf("SET LOCAL lock_timeout = '%dms'", r.lockTimeout.Milliseconds())); err != nil {
		return nil, wrapStorageErr("set lock timeout", err)
	}

	lockQuery := `SELECT ` + claimColumns + ` FROM htb_claims WHERE id = $1 FOR UPDATE`
	claim, err := scanClaim(tx.QueryRow(ctx, lockQuery, params.ClaimID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrClaimNotFound
		}
		if isLockNotAvailable(err) {
			return nil, fmt.Errorf("%w: claim %s", ErrLockTimeout, params.ClaimID)
		}
		return nil, wrapStorageErr("lock claim row", err)
	}

	// The one internal re-read-and-compare: if another writer got in
	// between the caller's read and our lock, surface the conflict
	// instead of validating against a state the caller never saw.
	if claim.Status != params.ExpectedStatus {
		return nil, fmt.Errorf("%w: claim %s is %s, caller saw %s",
			ErrConcurrentModification, params.ClaimID, claim.Status, params.ExpectedStatus)
	}

	now := time.Now().UTC()
	if err := domain.ValidateTransition(claim, params.NewStatus, params.Role, now); err != nil {
		return nil, err
	}

	previous := claim.Status
	claim.Status = params.NewStatus
	if params.SetAccessCode != nil {
		code, expiry := params.SetAccessCode.Code, params.SetAccessCode.Expiry
		claim.AccessCode, claim.AccessCodeExpiry = &code, &expiry
	}
	if params.SetClaimCode != nil {
		code, expiry := params.SetClaimCode.Code, params.SetClaimCode.Expiry
		claim.ClaimCode, claim.ClaimCodeExpiry = &code, &expiry
	}
	if params.SetApprovedAmount != nil {
		claim.ApprovedAmount = params.SetApprovedAmount
	}
	if params.SetDrawdownAmount != nil {
		claim.DrawdownAmount = params.SetDrawdownAmount
	}
	if params.AssignDeveloperID != nil && claim.DeveloperID == nil {
		claim.DeveloperID = params.AssignDeveloperID
	}

	// Financial bounds are re-checked against the locked values so the
	// database CHECK constraints never fire on a validated path.
	if claim.ApprovedAmount != nil && *claim.ApprovedAmount <= 0 {
		return nil, fmt.Errorf("%w: approved amount must be positive", domain.ErrInvalidAmount)
	}
	if claim.DrawdownAmount != nil {
		if claim.ApprovedAmount == nil {
			return nil, fmt.Errorf("%w: drawdown recorded without an approved amount", domain.ErrInvalidAmount)
		}
		if *claim.DrawdownAmount <= 0 || *claim.DrawdownAmount > *claim.ApprovedAmount {
			return nil, fmt.Errorf("%w: drawdown %d outside (0, %d]", domain.ErrInvalidAmount, *claim.DrawdownAmount, *claim.ApprovedAmount)
		}
	}

	updateQuery := `
		UPDATE htb_claims
		SET status = $2, developer_id = $3, approved_amount = $4, drawdown_amount = $5,
		    access_code = $6, access_code_expiry_date = $7,
		    claim_code = $8, claim_code_expiry_date = $9,
		    updated_at = NOW()
		WHERE id = $1
		RETURNING updated_at
	`
	err = tx.QueryRow(ctx, updateQuery,
		claim.ID, claim.Status, claim.DeveloperID, claim.ApprovedAmount, claim.DrawdownAmount,
		claim.AccessCode, claim.AccessCodeExpiry, claim.ClaimCode, claim.ClaimCodeExpiry,
	).Scan(&claim.UpdatedAt)
	if err != nil {
		return nil, wrapStorageErr("update claim", err)
	}

	if err := appendStatusHistory(ctx, tx, historyEntry{
		ClaimID:        claim.ID,
		PreviousStatus: &previous,
		NewStatus:      claim.Status,
		UpdatedBy:      params.ActorID,
		Note:           params.Note,
	}); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, wrapStorageErr("commit transition tx", err)
	}
	return claim, nil
}

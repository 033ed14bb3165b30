/**
 * @description
 * This file defines the `Repository` interface, which specifies the contract
 * for all data access operations required by the htb-claims-service. By
 * defining an interface, we decouple the application's business logic from
 * the PostgreSQL implementation, making the code more modular and easier to
 * test with stubs.
 *
 * @dependencies
 * - context, time: Standard Go libraries.
 * - github.com/google/uuid: For UUID handling.
 * - internal/domain: For the service's domain models.
 */

package store

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/propie/htb-claims-service/internal/domain"
)

// CodeUpdate carries a time-boxed code value written alongside a transition.
type CodeUpdate struct {
	Code   string
	Expiry time.Time
}

// TransitionParams describes one validated status change. ExpectedStatus is
// the status the caller observed before the call; the repository compares it
// against the row it holds under lock and fails with ErrConcurrentModification
// on mismatch rather than blindly overwriting.
type TransitionParams struct {
	ClaimID        uuid.UUID
	ExpectedStatus domain.ClaimStatus
	NewStatus      domain.ClaimStatus
	ActorID        uuid.UUID
	Role           domain.Role
	Note           string

	// Optional side effects applied in the same transaction as the
	// status write.
	SetAccessCode     *CodeUpdate
	SetClaimCode      *CodeUpdate
	SetApprovedAmount *int64
	SetDrawdownAmount *int64
	AssignDeveloperID *uuid.UUID // recorded only while the column is NULL
}

// Repository defines the set of methods for interacting with the database.
type Repository interface {
	// Claim aggregate
	CreateClaim(ctx context.Context, claim *domain.Claim) error
	GetClaimByID(ctx context.Context, claimID uuid.UUID) (*domain.Claim, error)
	ListClaimsByBuyer(ctx context.Context, buyerID uuid.UUID) ([]domain.Claim, error)
	ListClaimsByDeveloper(ctx context.Context, developerID uuid.UUID, filters domain.ClaimFilters) ([]domain.Claim, error)

	// TransitionClaim applies one validated status change inside a single
	// transaction: row lock, re-validation against the locked value, the
	// claim write, and exactly one history row. On any failure the claim
	// is left untouched.
	TransitionClaim(ctx context.Context, params TransitionParams) (*domain.Claim, error)

	// Audit trail (reads only; writes happen inside TransitionClaim)
	ListStatusHistory(ctx context.Context, claimID uuid.UUID) ([]domain.StatusHistory, error)

	// Attachments
	CreateDocument(ctx context.Context, doc *domain.Document) error
	ListDocuments(ctx context.Context, claimID uuid.UUID) ([]domain.Document, error)
	CreateNote(ctx context.Context, note *domain.Note) error
	ListNotes(ctx context.Context, claimID uuid.UUID, includePrivate bool) ([]domain.Note, error)
}

/**
 * @description
 * This file defines the core domain models for the htb-claims-service.
 * These structs represent the claim aggregate and its satellite records
 * (documents, notes, status history) used throughout the service's business
 * logic, database interactions, and API layers.
 *
 * @notes
 * - Amounts are stored as `int64` to represent the value in cents, which
 *   avoids floating-point inaccuracies with financial data.
 * - Nullable columns map to pointer fields; a claim's approved and drawdown
 *   amounts stay nil until the developer sets them during processing.
 */

package domain

import (
	"time"

	"github.com/google/uuid"
)

// Claim is the aggregate root for a Help-to-Buy claim. It maps directly to
// the `htb_claims` table. The status field is never written freely; every
// change goes through the validated transition path and leaves exactly one
// StatusHistory row behind.
type Claim struct {
	ID               uuid.UUID   `json:"id"`
	BuyerID          uuid.UUID   `json:"buyer_id"`
	DeveloperID      *uuid.UUID  `json:"developer_id,omitempty"`
	PropertyID       string      `json:"property_id"`
	RequestedAmount  int64       `json:"requested_amount"` // in cents
	ApprovedAmount   *int64      `json:"approved_amount,omitempty"`
	DrawdownAmount   *int64      `json:"drawdown_amount,omitempty"`
	AccessCode       *string     `json:"access_code,omitempty"`
	AccessCodeExpiry *time.Time  `json:"access_code_expiry,omitempty"`
	ClaimCode        *string     `json:"claim_code,omitempty"`
	ClaimCodeExpiry  *time.Time  `json:"claim_code_expiry,omitempty"`
	Status           ClaimStatus `json:"status"`
	CreatedAt        time.Time   `json:"created_at"`
	UpdatedAt        time.Time   `json:"updated_at"`
}

// StatusHistory is one append-only audit row per applied transition.
// PreviousStatus is nil only for the creation event. Rows are immutable:
// no code path updates or deletes them.
type StatusHistory struct {
	ID             uuid.UUID    `json:"id"`
	ClaimID        uuid.UUID    `json:"claim_id"`
	PreviousStatus *ClaimStatus `json:"previous_status,omitempty"`
	NewStatus      ClaimStatus  `json:"new_status"`
	UpdatedBy      uuid.UUID    `json:"updated_by"`
	UpdatedAt      time.Time    `json:"updated_at"`
	Note           string       `json:"note,omitempty"`
}

// Document is an evidentiary attachment linked to a claim. The URL is an
// opaque locator into external storage; this service never handles bytes.
// Documents are immutable once created; corrections are new documents.
type Document struct {
	ID         uuid.UUID `json:"id"`
	ClaimID    uuid.UUID `json:"claim_id"`
	URL        string    `json:"url"`
	Name       string    `json:"name"`
	Type       string    `json:"type"`
	UploadedBy uuid.UUID `json:"uploaded_by"`
	UploadedAt time.Time `json:"uploaded_at"`
}

// Note is a free-text annotation on a claim. Private notes are visible to
// developers only; notes never affect the claim's status.
type Note struct {
	ID        uuid.UUID `json:"id"`
	ClaimID   uuid.UUID `json:"claim_id"`
	Content   string    `json:"content"`
	IsPrivate bool      `json:"is_private"`
	CreatedBy uuid.UUID `json:"created_by"`
	CreatedAt time.Time `json:"created_at"`
}

// ClaimView is the assembled read-only projection for detail screens:
// the claim plus its documents, role-filtered notes, and full history.
type ClaimView struct {
	Claim     Claim           `json:"claim"`
	Documents []Document      `json:"documents"`
	Notes     []Note          `json:"notes"`
	History   []StatusHistory `json:"status_history"`
}

// CreateClaimRequest is the DTO for initiating a new claim.
type CreateClaimRequest struct {
	PropertyID      string `json:"property_id"`
	RequestedAmount int64  `json:"requested_amount"` // in cents
}

// SubmitAccessCodeRequest carries the buyer's time-boxed access code.
type SubmitAccessCodeRequest struct {
	AccessCode string    `json:"access_code"`
	ExpiryDate time.Time `json:"expiry_date"`
}

// ProcessAccessCodeRequest is the developer's decision on a submitted
// access code: accept into processing, or reject.
type ProcessAccessCodeRequest struct {
	Decision string `json:"decision"` // "processing" or "rejected"
	Note     string `json:"note,omitempty"`
}

// SubmitClaimCodeRequest carries the claim code issued by the scheme along
// with the approved amount, both recorded in the same transaction as the
// transition to CLAIM_CODE_RECEIVED.
type SubmitClaimCodeRequest struct {
	ClaimCode      string    `json:"claim_code"`
	ExpiryDate     time.Time `json:"expiry_date"`
	ApprovedAmount int64     `json:"approved_amount"` // in cents
}

// MarkFundsReceivedRequest records the drawdown amount actually received.
type MarkFundsReceivedRequest struct {
	ReceivedAmount int64  `json:"received_amount"` // in cents
	Note           string `json:"note,omitempty"`
}

// TransitionRequest is the generic DTO for edges that carry no financial
// side effects (request funds, apply deposit, complete, cancel, reject).
type TransitionRequest struct {
	Note string `json:"note,omitempty"`
}

// AddNoteRequest is the DTO for annotating a claim.
type AddNoteRequest struct {
	Content   string `json:"content"`
	IsPrivate bool   `json:"is_private"`
}

// AttachDocumentRequest links an already-uploaded artifact to a claim.
type AttachDocumentRequest struct {
	URL  string `json:"url"`
	Name string `json:"name"`
	Type string `json:"type"`
}

// ClaimFilters narrows developer claim listings.
type ClaimFilters struct {
	Status     *ClaimStatus
	PropertyID string
}

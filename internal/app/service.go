/**
 * @description
 * This file contains the core business logic for the htb-claims-service.
 * The `Service` struct orchestrates the claim lifecycle: creation, every
 * validated status transition, attachments, and the assembled read
 * projections, coordinating between the database repository and the
 * message broker.
 *
 * Key features:
 * - Routes all status mutations through a single transition path; there are
 *   no direct status-write helpers.
 * - Validates incoming values (amounts, codes, expiries) before opening the
 *   transaction; the repository re-validates graph and preconditions
 *   against the locked row.
 * - Publishes status-change events to RabbitMQ best-effort; a publish
 *   failure never rolls back a committed transition.
 *
 * @dependencies
 * - context, fmt, log, strings, time: Standard Go libraries.
 * - github.com/google/uuid: For UUID generation.
 * - internal/domain, internal/store: For domain models and data access.
 * - pkg/rabbitmq: For event publishing.
 */

package app

import (
	"context"
	"fmt"
	"log"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/propie/htb-claims-service/internal/domain"
	"github.com/propie/htb-claims-service/internal/store"
	"github.com/propie/htb-claims-service/pkg/rabbitmq"
)

// RateLimiter is implemented by the Redis limiter; a nil limiter disables
// rate limiting entirely.
type RateLimiter interface {
	ConsumeRateLimit(ctx context.Context, scope, subject string, limit int, window time.Duration) (count int, retryAfterSeconds int, err error)
}

// Service provides the core business logic for HTB claims.
type Service struct {
	repo          store.Repository
	eventProducer rabbitmq.Publisher
	limiter       RateLimiter

	eventExchange            string
	approvalCeilingBps       int64
	codeSubmitLimitPerMinute int
}

// NewService creates a new claims service instance. approvalCeilingFactor
// caps the approved amount at requested*factor; values <= 0 fall back to 1.
func NewService(repo store.Repository, producer rabbitmq.Publisher, eventExchange string, approvalCeilingFactor float64, codeSubmitLimitPerMinute int) *Service {
	if approvalCeilingFactor <= 0 {
		approvalCeilingFactor = 1.0
	}
	return &Service{
		repo:          repo,
		eventProducer: producer,
		eventExchange: eventExchange,
		// Held as basis points so the ceiling is computed with integer
		// arithmetic; amounts past float64's exact integer range would
		// otherwise round.
		approvalCeilingBps:       int64(math.Round(approvalCeilingFactor * 10_000)),
		codeSubmitLimitPerMinute: codeSubmitLimitPerMinute,
	}
}

// SetRateLimiter wires the optional distributed limiter for code submission.
func (s *Service) SetRateLimiter(limiter RateLimiter) {
	s.limiter = limiter
}

// CreateClaim opens a new claim in the initial status. The creation event
// counts as the first history row.
func (s *Service) CreateClaim(ctx context.Context, buyerID uuid.UUID, propertyID string, requestedAmount int64) (*domain.Claim, error) {
	if strings.TrimSpace(propertyID) == "" {
		return nil, ErrInvalidPropertyID
	}
	if requestedAmount <= 0 {
		return nil, fmt.Errorf("%w: requested amount must be positive, got %d", domain.ErrInvalidAmount, requestedAmount)
	}

	claim := &domain.Claim{
		ID:              uuid.New(),
		BuyerID:         buyerID,
		PropertyID:      strings.TrimSpace(propertyID),
		RequestedAmount: requestedAmount,
		Status:          domain.StatusInitiated,
	}
	if err := s.repo.CreateClaim(ctx, claim); err != nil {
		return nil, fmt.Errorf("create claim: %w", err)
	}

	s.publishStatusEvent(ctx, claim, nil, buyerID, "HTB claim initiated")
	return claim, nil
}

// SubmitAccessCode records the buyer's time-boxed access code and moves the
// claim to ACCESS_CODE_SUBMITTED. An already-expired code is rejected
// outright; the caller is expected to obtain a fresh code, not force the
// transition.
func (s *Service) SubmitAccessCode(ctx context.Context, claimID uuid.UUID, code string, expiry time.Time, buyerID uuid.UUID) (*domain.Claim, error) {
	if strings.TrimSpace(code) == "" {
		return nil, ErrInvalidCode
	}
	if !time.Now().UTC().Before(expiry) {
		return nil, fmt.Errorf("%w: access code expired at %s", domain.ErrCodeExpired, expiry.Format(time.RFC3339))
	}
	if err := s.consumeCodeSubmitBudget(ctx, buyerID); err != nil {
		return nil, err
	}

	return s.transition(ctx, transitionSpec{
		claimID: claimID,
		target:  domain.StatusAccessCodeSubmitted,
		actorID: buyerID,
		role:    domain.RoleBuyer,
		note:    "Access code submitted",
		mutate: func(p *store.TransitionParams) {
			p.SetAccessCode = &store.CodeUpdate{Code: strings.TrimSpace(code), Expiry: expiry.UTC()}
		},
	})
}

// ProcessAccessCode is the developer's decision on a submitted access code.
// Accepting moves the claim into DEVELOPER_PROCESSING; rejecting is a
// terminal side exit. Either way the acting developer becomes the claim's
// counter-party if none was assigned yet.
func (s *Service) ProcessAccessCode(ctx context.Context, claimID uuid.UUID, developerID uuid.UUID, decision string, note string) (*domain.Claim, error) {
	var target domain.ClaimStatus
	switch decision {
	case "processing":
		target = domain.StatusDeveloperProcessing
	case "rejected":
		target = domain.StatusRejected
	default:
		return nil, fmt.Errorf("%w: got %q", ErrInvalidDecision, decision)
	}

	return s.transition(ctx, transitionSpec{
		claimID: claimID,
		target:  target,
		actorID: developerID,
		role:    domain.RoleDeveloper,
		note:    note,
		mutate: func(p *store.TransitionParams) {
			devID := developerID
			p.AssignDeveloperID = &devID
		},
	})
}

// SubmitClaimCode records the claim code issued by the scheme together with
// the approved amount, in the same transaction as the transition to
// CLAIM_CODE_RECEIVED. The approved amount is capped by the policy ceiling
// applied to the requested amount.
func (s *Service) SubmitClaimCode(ctx context.Context, claimID uuid.UUID, developerID uuid.UUID, code string, expiry time.Time, approvedAmount int64) (*domain.Claim, error) {
	if strings.TrimSpace(code) == "" {
		return nil, ErrInvalidCode
	}
	if !time.Now().UTC().Before(expiry) {
		return nil, fmt.Errorf("%w: claim code expired at %s", domain.ErrCodeExpired, expiry.Format(time.RFC3339))
	}
	if approvedAmount <= 0 {
		return nil, fmt.Errorf("%w: approved amount must be positive, got %d", domain.ErrInvalidAmount, approvedAmount)
	}

	// The ceiling is computed from the requested amount, which is immutable
	// after creation, so the pre-read value cannot go stale.
	claim, err := s.repo.GetClaimByID(ctx, claimID)
	if err != nil {
		return nil, err
	}
	ceiling := approvalCeiling(claim.RequestedAmount, s.approvalCeilingBps)
	if approvedAmount > ceiling {
		return nil, fmt.Errorf("%w: approved %d exceeds ceiling %d", domain.ErrInvalidAmount, approvedAmount, ceiling)
	}

	return s.transition(ctx, transitionSpec{
		claimID: claimID,
		preRead: claim,
		target:  domain.StatusClaimCodeReceived,
		actorID: developerID,
		role:    domain.RoleDeveloper,
		note:    fmt.Sprintf("Claim code received, %d approved", approvedAmount),
		mutate: func(p *store.TransitionParams) {
			p.SetClaimCode = &store.CodeUpdate{Code: strings.TrimSpace(code), Expiry: expiry.UTC()}
			amount := approvedAmount
			p.SetApprovedAmount = &amount
		},
	})
}

// approvalCeiling scales the requested amount by the ceiling in basis
// points. Split into quotient and remainder so the product never overflows
// for realistic amounts and stays exact where float math would not.
func approvalCeiling(requested, bps int64) int64 {
	return requested/10_000*bps + requested%10_000*bps/10_000
}

// RequestFunds moves the claim to FUNDS_REQUESTED. The transition validator
// requires an unexpired claim code on the locked row.
func (s *Service) RequestFunds(ctx context.Context, claimID uuid.UUID, developerID uuid.UUID, note string) (*domain.Claim, error) {
	return s.transition(ctx, transitionSpec{
		claimID: claimID,
		target:  domain.StatusFundsRequested,
		actorID: developerID,
		role:    domain.RoleDeveloper,
		note:    note,
	})
}

// MarkFundsReceived records the drawdown actually received and moves the
// claim to FUNDS_RECEIVED. The drawdown may not exceed the approved amount;
// the repository re-checks the bound against the locked row.
func (s *Service) MarkFundsReceived(ctx context.Context, claimID uuid.UUID, developerID uuid.UUID, receivedAmount int64, note string) (*domain.Claim, error) {
	if receivedAmount <= 0 {
		return nil, fmt.Errorf("%w: received amount must be positive, got %d", domain.ErrInvalidAmount, receivedAmount)
	}
	if note == "" {
		note = fmt.Sprintf("Funds received: %d", receivedAmount)
	}
	return s.transition(ctx, transitionSpec{
		claimID: claimID,
		target:  domain.StatusFundsReceived,
		actorID: developerID,
		role:    domain.RoleDeveloper,
		note:    note,
		mutate: func(p *store.TransitionParams) {
			amount := receivedAmount
			p.SetDrawdownAmount = &amount
		},
	})
}

// ApplyDeposit moves the claim to DEPOSIT_APPLIED.
func (s *Service) ApplyDeposit(ctx context.Context, claimID uuid.UUID, developerID uuid.UUID, note string) (*domain.Claim, error) {
	return s.transition(ctx, transitionSpec{
		claimID: claimID,
		target:  domain.StatusDepositApplied,
		actorID: developerID,
		role:    domain.RoleDeveloper,
		note:    note,
	})
}

// CompleteClaim closes the happy path: DEPOSIT_APPLIED -> COMPLETED.
func (s *Service) CompleteClaim(ctx context.Context, claimID uuid.UUID, developerID uuid.UUID, note string) (*domain.Claim, error) {
	return s.transition(ctx, transitionSpec{
		claimID: claimID,
		target:  domain.StatusCompleted,
		actorID: developerID,
		role:    domain.RoleDeveloper,
		note:    note,
	})
}

// CancelClaim is the side exit available to either party from any
// non-terminal status. The claim row is kept; cancellation is a status,
// never a delete.
func (s *Service) CancelClaim(ctx context.Context, claimID uuid.UUID, actorID uuid.UUID, role domain.Role, note string) (*domain.Claim, error) {
	return s.transition(ctx, transitionSpec{
		claimID: claimID,
		target:  domain.StatusCancelled,
		actorID: actorID,
		role:    role,
		note:    note,
	})
}

// RejectClaim is the developer-only side exit.
func (s *Service) RejectClaim(ctx context.Context, claimID uuid.UUID, developerID uuid.UUID, note string) (*domain.Claim, error) {
	return s.transition(ctx, transitionSpec{
		claimID: claimID,
		target:  domain.StatusRejected,
		actorID: developerID,
		role:    domain.RoleDeveloper,
		note:    note,
	})
}

// ExpireClaim marks a claim whose codes lapsed without progress.
func (s *Service) ExpireClaim(ctx context.Context, claimID uuid.UUID, actorID uuid.UUID, role domain.Role, note string) (*domain.Claim, error) {
	return s.transition(ctx, transitionSpec{
		claimID: claimID,
		target:  domain.StatusExpired,
		actorID: actorID,
		role:    role,
		note:    note,
	})
}

// Transition is the generic operation for callers that address a target
// status directly. Targets whose edges must carry financial or code side
// effects are refused here and must go through their dedicated operation;
// accepting them bare would let callers skip recording the values the later
// preconditions depend on.
func (s *Service) Transition(ctx context.Context, claimID uuid.UUID, target domain.ClaimStatus, actorID uuid.UUID, role domain.Role, note string) (*domain.Claim, error) {
	switch target {
	case domain.StatusAccessCodeSubmitted, domain.StatusClaimCodeReceived, domain.StatusFundsReceived:
		return nil, fmt.Errorf("%w: %s requires its dedicated operation", domain.ErrInvalidTransition, target)
	}
	spec := transitionSpec{
		claimID: claimID,
		target:  target,
		actorID: actorID,
		role:    role,
		note:    note,
	}
	// Entering processing assigns the acting developer, same as the
	// dedicated decision operation; the repository only writes the
	// assignment while developer_id is still unset.
	if target == domain.StatusDeveloperProcessing {
		assignee := actorID
		spec.mutate = func(p *store.TransitionParams) {
			p.AssignDeveloperID = &assignee
		}
	}
	return s.transition(ctx, spec)
}

// transitionSpec bundles one status change request. preRead may carry a
// claim fetched by the caller to avoid a duplicate read; the repository
// still re-validates under lock.
type transitionSpec struct {
	claimID uuid.UUID
	preRead *domain.Claim
	target  domain.ClaimStatus
	actorID uuid.UUID
	role    domain.Role
	note    string
	mutate  func(*store.TransitionParams)
}

func (s *Service) transition(ctx context.Context, spec transitionSpec) (*domain.Claim, error) {
	pre := spec.preRead
	if pre == nil {
		var err error
		pre, err = s.repo.GetClaimByID(ctx, spec.claimID)
		if err != nil {
			return nil, err
		}
	}

	// Fail fast on edges the graph can never accept; the authoritative
	// check repeats inside the transaction against the locked row.
	if err := domain.ValidateTransition(pre, spec.target, spec.role, time.Now().UTC()); err != nil {
		return nil, err
	}

	params := store.TransitionParams{
		ClaimID:        spec.claimID,
		ExpectedStatus: pre.Status,
		NewStatus:      spec.target,
		ActorID:        spec.actorID,
		Role:           spec.role,
		Note:           spec.note,
	}
	if spec.mutate != nil {
		spec.mutate(&params)
	}

	claim, err := s.repo.TransitionClaim(ctx, params)
	if err != nil {
		transitionsTotal.WithLabelValues(string(spec.target), "rejected").Inc()
		return nil, err
	}
	transitionsTotal.WithLabelValues(string(spec.target), "committed").Inc()

	previous := pre.Status
	s.publishStatusEvent(ctx, claim, &previous, spec.actorID, spec.note)
	return claim, nil
}

// publishStatusEvent emits a claim.status.changed event. Best-effort only:
// the transition has already committed, so failures are logged and dropped.
func (s *Service) publishStatusEvent(ctx context.Context, claim *domain.Claim, previous *domain.ClaimStatus, actorID uuid.UUID, note string) {
	if s.eventProducer == nil {
		return
	}

	event := domain.ClaimStatusEvent{
		ClaimID:        claim.ID,
		BuyerID:        claim.BuyerID,
		DeveloperID:    claim.DeveloperID,
		PreviousStatus: previous,
		NewStatus:      claim.Status,
		UpdatedBy:      actorID,
		Note:           note,
		OccurredAt:     time.Now().UTC(),
	}
	routingKey := "claim.status.changed." + strings.ToLower(string(claim.Status))
	if err := s.eventProducer.Publish(ctx, s.eventExchange, routingKey, event); err != nil {
		log.Printf("level=warn component=app msg=\"status event publish failed\" claim_id=%s routing_key=%s err=%v", claim.ID, routingKey, err)
	}
}

// consumeCodeSubmitBudget applies the per-buyer rate limit on code
// submission. Limiter outages fail open: a validation path must not become
// unavailable because Redis is.
func (s *Service) consumeCodeSubmitBudget(ctx context.Context, buyerID uuid.UUID) error {
	if s.limiter == nil || s.codeSubmitLimitPerMinute <= 0 {
		return nil
	}
	count, _, err := s.limiter.ConsumeRateLimit(ctx, "code_submit", buyerID.String(), s.codeSubmitLimitPerMinute, time.Minute)
	if err != nil {
		log.Printf("level=warn component=app msg=\"rate limiter unavailable; failing open\" buyer_id=%s err=%v", buyerID, err)
		return nil
	}
	if count > s.codeSubmitLimitPerMinute {
		return ErrRateLimited
	}
	return nil
}

// AddNote annotates a claim. Buyers may only write shared notes; private
// notes are a developer-side channel.
func (s *Service) AddNote(ctx context.Context, claimID uuid.UUID, authorID uuid.UUID, role domain.Role, content string, isPrivate bool) (*domain.Note, error) {
	if strings.TrimSpace(content) == "" {
		return nil, ErrEmptyNote
	}
	if isPrivate && role != domain.RoleDeveloper {
		return nil, fmt.Errorf("%w: only developers may write private notes", domain.ErrUnauthorized)
	}

	note := &domain.Note{
		ID:        uuid.New(),
		ClaimID:   claimID,
		Content:   content,
		IsPrivate: isPrivate,
		CreatedBy: authorID,
	}
	if err := s.repo.CreateNote(ctx, note); err != nil {
		return nil, err
	}
	return note, nil
}

// AttachDocument links an externally stored artifact to a claim. Allowed in
// any status, terminal ones included, and never touches the state machine.
func (s *Service) AttachDocument(ctx context.Context, claimID uuid.UUID, uploaderID uuid.UUID, url, name, docType string) (*domain.Document, error) {
	if strings.TrimSpace(url) == "" || strings.TrimSpace(name) == "" || strings.TrimSpace(docType) == "" {
		return nil, ErrInvalidDocument
	}

	doc := &domain.Document{
		ID:         uuid.New(),
		ClaimID:    claimID,
		URL:        url,
		Name:       name,
		Type:       docType,
		UploadedBy: uploaderID,
	}
	if err := s.repo.CreateDocument(ctx, doc); err != nil {
		return nil, err
	}
	return doc, nil
}

// GetClaimView assembles the full detail projection: claim, documents,
// role-filtered notes, and the audit trail. Read-only.
func (s *Service) GetClaimView(ctx context.Context, claimID uuid.UUID, viewerID uuid.UUID, role domain.Role) (*domain.ClaimView, error) {
	claim, err := s.repo.GetClaimByID(ctx, claimID)
	if err != nil {
		return nil, err
	}
	if err := authorizeViewer(claim, viewerID, role); err != nil {
		return nil, err
	}

	documents, err := s.repo.ListDocuments(ctx, claimID)
	if err != nil {
		return nil, err
	}
	notes, err := s.repo.ListNotes(ctx, claimID, role == domain.RoleDeveloper)
	if err != nil {
		return nil, err
	}
	history, err := s.repo.ListStatusHistory(ctx, claimID)
	if err != nil {
		return nil, err
	}

	return &domain.ClaimView{
		Claim:     *claim,
		Documents: documents,
		Notes:     notes,
		History:   history,
	}, nil
}

// ListNotes returns a claim's notes with private ones hidden from buyers.
func (s *Service) ListNotes(ctx context.Context, claimID uuid.UUID, viewerID uuid.UUID, role domain.Role) ([]domain.Note, error) {
	claim, err := s.repo.GetClaimByID(ctx, claimID)
	if err != nil {
		return nil, err
	}
	if err := authorizeViewer(claim, viewerID, role); err != nil {
		return nil, err
	}
	return s.repo.ListNotes(ctx, claimID, role == domain.RoleDeveloper)
}

// ListDocuments returns a claim's documents.
func (s *Service) ListDocuments(ctx context.Context, claimID uuid.UUID, viewerID uuid.UUID, role domain.Role) ([]domain.Document, error) {
	claim, err := s.repo.GetClaimByID(ctx, claimID)
	if err != nil {
		return nil, err
	}
	if err := authorizeViewer(claim, viewerID, role); err != nil {
		return nil, err
	}
	return s.repo.ListDocuments(ctx, claimID)
}

// ListStatusHistory returns a claim's ordered audit trail.
func (s *Service) ListStatusHistory(ctx context.Context, claimID uuid.UUID, viewerID uuid.UUID, role domain.Role) ([]domain.StatusHistory, error) {
	claim, err := s.repo.GetClaimByID(ctx, claimID)
	if err != nil {
		return nil, err
	}
	if err := authorizeViewer(claim, viewerID, role); err != nil {
		return nil, err
	}
	return s.repo.ListStatusHistory(ctx, claimID)
}

// ListClaims returns the role-scoped claim listing: a buyer's own claims,
// or a developer's assigned claims narrowed by the optional filters.
func (s *Service) ListClaims(ctx context.Context, actorID uuid.UUID, role domain.Role, filters domain.ClaimFilters) ([]domain.Claim, error) {
	switch role {
	case domain.RoleBuyer:
		return s.repo.ListClaimsByBuyer(ctx, actorID)
	case domain.RoleDeveloper:
		return s.repo.ListClaimsByDeveloper(ctx, actorID, filters)
	}
	return nil, fmt.Errorf("%w: role %q", domain.ErrUnauthorized, role)
}

// authorizeViewer scopes detail reads: buyers see their own claims only;
// developers see claims assigned to them, plus unassigned ones awaiting a
// counter-party.
func authorizeViewer(claim *domain.Claim, viewerID uuid.UUID, role domain.Role) error {
	switch role {
	case domain.RoleBuyer:
		if claim.BuyerID == viewerID {
			return nil
		}
	case domain.RoleDeveloper:
		if claim.DeveloperID == nil || *claim.DeveloperID == viewerID {
			return nil
		}
	}
	return fmt.Errorf("%w: claim %s is not visible to this actor", domain.ErrUnauthorized, claim.ID)
}

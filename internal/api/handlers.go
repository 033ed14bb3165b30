/**
 * @description
 * This file contains the HTTP handlers for the claim service's API endpoints.
 * Handlers are responsible for parsing incoming requests, calling the appropriate
 * methods on the application service, and writing the HTTP response. They act as the
 * bridge between the web layer and the business logic layer.
 *
 * All claim mutations share one error taxonomy, so the sentinel-to-status
 * mapping lives in a single helper instead of being repeated per endpoint.
 *
 * @dependencies
 * - encoding/json, log, net/http: Standard Go libraries.
 * - internal/app, internal/domain, internal/store: For service logic, models, and custom errors.
 */

package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/propie/htb-claims-service/internal/app"
	"github.com/propie/htb-claims-service/internal/domain"
	"github.com/propie/htb-claims-service/internal/store"
)

// ClaimHandlers holds the application service that handlers will use.
type ClaimHandlers struct {
	service *app.Service
}

// NewClaimHandlers creates a new instance of ClaimHandlers.
func NewClaimHandlers(service *app.Service) *ClaimHandlers {
	return &ClaimHandlers{service: service}
}

// actor resolves the authenticated actor's ID and role from the request
// context. It writes the error response itself and returns ok=false when the
// request cannot be attributed.
func (h *ClaimHandlers) actor(w http.ResponseWriter, r *http.Request) (uuid.UUID, domain.Role, bool) {
	actorIDStr, ok := GetActorID(r.Context())
	if !ok {
		h.writeError(w, http.StatusInternalServerError, "Could not get actor ID from context")
		return uuid.Nil, "", false
	}
	actorID, err := uuid.Parse(actorIDStr)
	if err != nil {
		log.Printf("level=warn component=api outcome=reject reason=invalid_actor_id actor_id=%s", actorIDStr)
		h.writeError(w, http.StatusUnauthorized, "Invalid actor ID format")
		return uuid.Nil, "", false
	}

	roleStr, ok := GetActorRole(r.Context())
	if !ok {
		h.writeError(w, http.StatusInternalServerError, "Could not get actor role from context")
		return uuid.Nil, "", false
	}
	role, err := domain.ParseRole(roleStr)
	if err != nil {
		log.Printf("level=warn component=api outcome=reject reason=invalid_role actor_id=%s role=%s", actorID, roleStr)
		h.writeError(w, http.StatusForbidden, "Unknown actor role")
		return uuid.Nil, "", false
	}

	return actorID, role, true
}

// claimID parses the claim ID path parameter.
func (h *ClaimHandlers) claimID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	raw := chi.URLParam(r, "claimID")
	id, err := uuid.Parse(raw)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid claim ID format")
		return uuid.Nil, false
	}
	return id, true
}

// CreateClaimHandler handles requests to initiate a new claim.
func (h *ClaimHandlers) CreateClaimHandler(w http.ResponseWriter, r *http.Request) {
	actorID, role, ok := h.actor(w, r)
	if !ok {
		return
	}
	if role != domain.RoleBuyer {
		h.writeError(w, http.StatusForbidden, "Only buyers may initiate claims")
		return
	}

	var req domain.CreateClaimRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		log.Printf("level=warn component=api endpoint=create_claim outcome=reject reason=invalid_json err=%v", err)
		h.writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	claim, err := h.service.CreateClaim(r.Context(), actorID, req.PropertyID, req.RequestedAmount)
	if err != nil {
		log.Printf("level=warn component=api endpoint=create_claim outcome=failed buyer_id=%s err=%v", actorID, err)
		h.writeServiceError(w, err)
		return
	}

	log.Printf("level=info component=api endpoint=create_claim outcome=accepted claim_id=%s buyer_id=%s amount=%d", claim.ID, actorID, claim.RequestedAmount)
	h.writeJSON(w, http.StatusCreated, claim)
}

// ListClaimsHandler returns the role-scoped claim listing. Developers may
// narrow the result with ?status= and ?property_id= query parameters.
func (h *ClaimHandlers) ListClaimsHandler(w http.ResponseWriter, r *http.Request) {
	actorID, role, ok := h.actor(w, r)
	if !ok {
		return
	}

	var filters domain.ClaimFilters
	if raw := strings.TrimSpace(r.URL.Query().Get("status")); raw != "" {
		status, err := domain.ParseClaimStatus(raw)
		if err != nil {
			h.writeError(w, http.StatusBadRequest, "Unknown status filter")
			return
		}
		filters.Status = &status
	}
	filters.PropertyID = strings.TrimSpace(r.URL.Query().Get("property_id"))

	claims, err := h.service.ListClaims(r.Context(), actorID, role, filters)
	if err != nil {
		log.Printf("level=error component=api endpoint=list_claims outcome=failed actor_id=%s err=%v", actorID, err)
		h.writeServiceError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, claims)
}

// GetClaimHandler returns the full claim view: the claim row plus its
// documents, role-visible notes, and status history.
func (h *ClaimHandlers) GetClaimHandler(w http.ResponseWriter, r *http.Request) {
	actorID, role, ok := h.actor(w, r)
	if !ok {
		return
	}
	id, ok := h.claimID(w, r)
	if !ok {
		return
	}

	view, err := h.service.GetClaimView(r.Context(), id, actorID, role)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, view)
}

// SubmitAccessCodeHandler handles the buyer's submission of a time-boxed
// access code.
func (h *ClaimHandlers) SubmitAccessCodeHandler(w http.ResponseWriter, r *http.Request) {
	actorID, role, ok := h.actor(w, r)
	if !ok {
		return
	}
	if role != domain.RoleBuyer {
		h.writeError(w, http.StatusForbidden, "Only buyers may submit access codes")
		return
	}
	id, ok := h.claimID(w, r)
	if !ok {
		return
	}

	var req domain.SubmitAccessCodeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	claim, err := h.service.SubmitAccessCode(r.Context(), id, req.AccessCode, req.ExpiryDate, actorID)
	if err != nil {
		log.Printf("level=warn component=api endpoint=submit_access_code outcome=failed claim_id=%s buyer_id=%s err=%v", id, actorID, err)
		h.writeServiceError(w, err)
		return
	}

	log.Printf("level=info component=api endpoint=submit_access_code outcome=accepted claim_id=%s buyer_id=%s", id, actorID)
	h.writeJSON(w, http.StatusOK, claim)
}

// ProcessAccessCodeHandler records the developer's decision on a submitted
// access code: take the claim into processing, or reject it.
func (h *ClaimHandlers) ProcessAccessCodeHandler(w http.ResponseWriter, r *http.Request) {
	actorID, role, ok := h.actor(w, r)
	if !ok {
		return
	}
	if role != domain.RoleDeveloper {
		h.writeError(w, http.StatusForbidden, "Only developers may process access codes")
		return
	}
	id, ok := h.claimID(w, r)
	if !ok {
		return
	}

	var req domain.ProcessAccessCodeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	claim, err := h.service.ProcessAccessCode(r.Context(), id, actorID, req.Decision, req.Note)
	if err != nil {
		log.Printf("level=warn component=api endpoint=process_access_code outcome=failed claim_id=%s developer_id=%s decision=%s err=%v", id, actorID, req.Decision, err)
		h.writeServiceError(w, err)
		return
	}

	log.Printf("level=info component=api endpoint=process_access_code outcome=accepted claim_id=%s developer_id=%s decision=%s", id, actorID, req.Decision)
	h.writeJSON(w, http.StatusOK, claim)
}

// SubmitClaimCodeHandler records the claim code issued by the scheme along
// with the approved amount.
func (h *ClaimHandlers) SubmitClaimCodeHandler(w http.ResponseWriter, r *http.Request) {
	actorID, role, ok := h.actor(w, r)
	if !ok {
		return
	}
	if role != domain.RoleDeveloper {
		h.writeError(w, http.StatusForbidden, "Only developers may submit claim codes")
		return
	}
	id, ok := h.claimID(w, r)
	if !ok {
		return
	}

	var req domain.SubmitClaimCodeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	claim, err := h.service.SubmitClaimCode(r.Context(), id, actorID, req.ClaimCode, req.ExpiryDate, req.ApprovedAmount)
	if err != nil {
		log.Printf("level=warn component=api endpoint=submit_claim_code outcome=failed claim_id=%s developer_id=%s err=%v", id, actorID, err)
		h.writeServiceError(w, err)
		return
	}

	log.Printf("level=info component=api endpoint=submit_claim_code outcome=accepted claim_id=%s developer_id=%s approved_amount=%d", id, actorID, req.ApprovedAmount)
	h.writeJSON(w, http.StatusOK, claim)
}

// RequestFundsHandler moves a claim into FUNDS_REQUESTED.
func (h *ClaimHandlers) RequestFundsHandler(w http.ResponseWriter, r *http.Request) {
	h.developerTransition(w, r, "request_funds", h.service.RequestFunds)
}

// MarkFundsReceivedHandler records the drawdown amount actually received and
// moves the claim into FUNDS_RECEIVED.
func (h *ClaimHandlers) MarkFundsReceivedHandler(w http.ResponseWriter, r *http.Request) {
	actorID, role, ok := h.actor(w, r)
	if !ok {
		return
	}
	if role != domain.RoleDeveloper {
		h.writeError(w, http.StatusForbidden, "Only developers may record received funds")
		return
	}
	id, ok := h.claimID(w, r)
	if !ok {
		return
	}

	var req domain.MarkFundsReceivedRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	claim, err := h.service.MarkFundsReceived(r.Context(), id, actorID, req.ReceivedAmount, req.Note)
	if err != nil {
		log.Printf("level=warn component=api endpoint=mark_funds_received outcome=failed claim_id=%s developer_id=%s err=%v", id, actorID, err)
		h.writeServiceError(w, err)
		return
	}

	log.Printf("level=info component=api endpoint=mark_funds_received outcome=accepted claim_id=%s developer_id=%s received_amount=%d", id, actorID, req.ReceivedAmount)
	h.writeJSON(w, http.StatusOK, claim)
}

// ApplyDepositHandler moves a claim into DEPOSIT_APPLIED.
func (h *ClaimHandlers) ApplyDepositHandler(w http.ResponseWriter, r *http.Request) {
	h.developerTransition(w, r, "apply_deposit", h.service.ApplyDeposit)
}

// CompleteClaimHandler moves a claim into its COMPLETED terminal state.
func (h *ClaimHandlers) CompleteClaimHandler(w http.ResponseWriter, r *http.Request) {
	h.developerTransition(w, r, "complete_claim", h.service.CompleteClaim)
}

// RejectClaimHandler moves a claim into its REJECTED terminal state.
func (h *ClaimHandlers) RejectClaimHandler(w http.ResponseWriter, r *http.Request) {
	h.developerTransition(w, r, "reject_claim", h.service.RejectClaim)
}

// CancelClaimHandler moves a claim into its CANCELLED terminal state. Either
// party may cancel a non-terminal claim.
func (h *ClaimHandlers) CancelClaimHandler(w http.ResponseWriter, r *http.Request) {
	h.eitherPartyTransition(w, r, "cancel_claim", h.service.CancelClaim)
}

// ExpireClaimHandler moves a claim into its EXPIRED terminal state.
func (h *ClaimHandlers) ExpireClaimHandler(w http.ResponseWriter, r *http.Request) {
	h.eitherPartyTransition(w, r, "expire_claim", h.service.ExpireClaim)
}

// TransitionClaimHandler is the generic transition endpoint for edges that
// carry no side effects. Targets that require a dedicated payload (codes,
// amounts) are refused by the service.
func (h *ClaimHandlers) TransitionClaimHandler(w http.ResponseWriter, r *http.Request) {
	actorID, role, ok := h.actor(w, r)
	if !ok {
		return
	}
	id, ok := h.claimID(w, r)
	if !ok {
		return
	}

	var req struct {
		TargetStatus string `json:"target_status"`
		Note         string `json:"note,omitempty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	target, err := domain.ParseClaimStatus(req.TargetStatus)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "Unknown target status")
		return
	}

	claim, err := h.service.Transition(r.Context(), id, target, actorID, role, req.Note)
	if err != nil {
		log.Printf("level=warn component=api endpoint=transition_claim outcome=failed claim_id=%s actor_id=%s target=%s err=%v", id, actorID, target, err)
		h.writeServiceError(w, err)
		return
	}

	log.Printf("level=info component=api endpoint=transition_claim outcome=accepted claim_id=%s actor_id=%s target=%s", id, actorID, target)
	h.writeJSON(w, http.StatusOK, claim)
}

// AddNoteHandler annotates a claim. Private notes are developer-only.
func (h *ClaimHandlers) AddNoteHandler(w http.ResponseWriter, r *http.Request) {
	actorID, role, ok := h.actor(w, r)
	if !ok {
		return
	}
	id, ok := h.claimID(w, r)
	if !ok {
		return
	}

	var req domain.AddNoteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	note, err := h.service.AddNote(r.Context(), id, actorID, role, req.Content, req.IsPrivate)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	h.writeJSON(w, http.StatusCreated, note)
}

// ListNotesHandler returns a claim's notes, scoped by the viewer's role.
func (h *ClaimHandlers) ListNotesHandler(w http.ResponseWriter, r *http.Request) {
	actorID, role, ok := h.actor(w, r)
	if !ok {
		return
	}
	id, ok := h.claimID(w, r)
	if !ok {
		return
	}

	notes, err := h.service.ListNotes(r.Context(), id, actorID, role)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, notes)
}

// AttachDocumentHandler links an already-uploaded artifact to a claim.
func (h *ClaimHandlers) AttachDocumentHandler(w http.ResponseWriter, r *http.Request) {
	actorID, _, ok := h.actor(w, r)
	if !ok {
		return
	}
	id, ok := h.claimID(w, r)
	if !ok {
		return
	}

	var req domain.AttachDocumentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	doc, err := h.service.AttachDocument(r.Context(), id, actorID, req.URL, req.Name, req.Type)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	h.writeJSON(w, http.StatusCreated, doc)
}

// ListDocumentsHandler returns a claim's documents.
func (h *ClaimHandlers) ListDocumentsHandler(w http.ResponseWriter, r *http.Request) {
	actorID, role, ok := h.actor(w, r)
	if !ok {
		return
	}
	id, ok := h.claimID(w, r)
	if !ok {
		return
	}

	docs, err := h.service.ListDocuments(r.Context(), id, actorID, role)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, docs)
}

// ListHistoryHandler returns a claim's ordered audit trail.
func (h *ClaimHandlers) ListHistoryHandler(w http.ResponseWriter, r *http.Request) {
	actorID, role, ok := h.actor(w, r)
	if !ok {
		return
	}
	id, ok := h.claimID(w, r)
	if !ok {
		return
	}

	history, err := h.service.ListStatusHistory(r.Context(), id, actorID, role)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, history)
}

// developerTransition factors the developer-only endpoints whose request body
// is a bare optional note.
func (h *ClaimHandlers) developerTransition(
	w http.ResponseWriter,
	r *http.Request,
	endpoint string,
	op func(ctx context.Context, claimID uuid.UUID, developerID uuid.UUID, note string) (*domain.Claim, error),
) {
	actorID, role, ok := h.actor(w, r)
	if !ok {
		return
	}
	if role != domain.RoleDeveloper {
		h.writeError(w, http.StatusForbidden, "Only developers may perform this transition")
		return
	}
	id, ok := h.claimID(w, r)
	if !ok {
		return
	}

	req, ok := h.decodeTransitionRequest(w, r)
	if !ok {
		return
	}

	claim, err := op(r.Context(), id, actorID, req.Note)
	if err != nil {
		log.Printf("level=warn component=api endpoint=%s outcome=failed claim_id=%s developer_id=%s err=%v", endpoint, id, actorID, err)
		h.writeServiceError(w, err)
		return
	}

	log.Printf("level=info component=api endpoint=%s outcome=accepted claim_id=%s developer_id=%s status=%s", endpoint, id, actorID, claim.Status)
	h.writeJSON(w, http.StatusOK, claim)
}

// eitherPartyTransition factors the endpoints open to both sides of the claim.
func (h *ClaimHandlers) eitherPartyTransition(
	w http.ResponseWriter,
	r *http.Request,
	endpoint string,
	op func(ctx context.Context, claimID uuid.UUID, actorID uuid.UUID, role domain.Role, note string) (*domain.Claim, error),
) {
	actorID, role, ok := h.actor(w, r)
	if !ok {
		return
	}
	id, ok := h.claimID(w, r)
	if !ok {
		return
	}

	req, ok := h.decodeTransitionRequest(w, r)
	if !ok {
		return
	}

	claim, err := op(r.Context(), id, actorID, role, req.Note)
	if err != nil {
		log.Printf("level=warn component=api endpoint=%s outcome=failed claim_id=%s actor_id=%s err=%v", endpoint, id, actorID, err)
		h.writeServiceError(w, err)
		return
	}

	log.Printf("level=info component=api endpoint=%s outcome=accepted claim_id=%s actor_id=%s status=%s", endpoint, id, actorID, claim.Status)
	h.writeJSON(w, http.StatusOK, claim)
}

// decodeTransitionRequest reads the optional-note body shared by the bare
// transition endpoints. An empty body is accepted.
func (h *ClaimHandlers) decodeTransitionRequest(w http.ResponseWriter, r *http.Request) (domain.TransitionRequest, bool) {
	var req domain.TransitionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		h.writeError(w, http.StatusBadRequest, "Invalid request body")
		return req, false
	}
	return req, true
}

// writeServiceError maps the service and store error taxonomy onto HTTP
// status codes. Conflicting expectations (a stale status or a concurrent
// writer) both surface as 409 so clients re-read and retry deliberately.
func (h *ClaimHandlers) writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, store.ErrClaimNotFound):
		h.writeError(w, http.StatusNotFound, "Claim not found")
	case errors.Is(err, domain.ErrUnauthorized):
		h.writeError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, domain.ErrInvalidTransition),
		errors.Is(err, store.ErrConcurrentModification):
		h.writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, domain.ErrCodeExpired):
		h.writeError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, domain.ErrInvalidAmount),
		errors.Is(err, domain.ErrUnknownStatus),
		errors.Is(err, app.ErrInvalidPropertyID),
		errors.Is(err, app.ErrInvalidCode),
		errors.Is(err, app.ErrEmptyNote),
		errors.Is(err, app.ErrInvalidDocument),
		errors.Is(err, app.ErrInvalidDecision):
		h.writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, app.ErrRateLimited):
		h.writeError(w, http.StatusTooManyRequests, err.Error())
	case errors.Is(err, store.ErrLockTimeout),
		errors.Is(err, store.ErrStorageUnavailable):
		h.writeError(w, http.StatusServiceUnavailable, "Service temporarily unavailable, retry later")
	default:
		log.Printf("level=error component=api msg=\"unhandled service error\" err=%v", err)
		h.writeError(w, http.StatusInternalServerError, "Internal server error")
	}
}

// writeJSON is a helper for writing JSON responses.
func (h *ClaimHandlers) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

// writeError is a helper for writing JSON error responses.
func (h *ClaimHandlers) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}

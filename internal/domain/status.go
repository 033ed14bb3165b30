/**
 * @description
 * This file defines the closed set of claim statuses, the actor roles, and
 * the allowed-transition graph. All status validation lives here so that the
 * repository and service layers never reason about edges themselves: they
 * call ValidateTransition against the row they hold under lock.
 *
 * @notes
 * - The graph is a fixed adjacency table, not configuration. Any pair not
 *   present is rejected, including same-status resubmission, because a
 *   silently accepted duplicate would corrupt the history chain.
 * - Terminal statuses have no outgoing edges; side exits (cancel, reject,
 *   expire) are expressed as edges from every non-terminal status.
 */

package domain

import (
	"errors"
	"fmt"
	"time"
)

// ClaimStatus is the closed enumeration of claim lifecycle states. Values
// match the `htb_claim_status` PostgreSQL enum.
type ClaimStatus string

const (
	StatusInitiated           ClaimStatus = "INITIATED"
	StatusAccessCodeSubmitted ClaimStatus = "ACCESS_CODE_SUBMITTED"
	StatusDeveloperProcessing ClaimStatus = "DEVELOPER_PROCESSING"
	StatusClaimCodeReceived   ClaimStatus = "CLAIM_CODE_RECEIVED"
	StatusFundsRequested      ClaimStatus = "FUNDS_REQUESTED"
	StatusFundsReceived       ClaimStatus = "FUNDS_RECEIVED"
	StatusDepositApplied      ClaimStatus = "DEPOSIT_APPLIED"
	StatusCompleted           ClaimStatus = "COMPLETED"
	StatusRejected            ClaimStatus = "REJECTED"
	StatusExpired             ClaimStatus = "EXPIRED"
	StatusCancelled           ClaimStatus = "CANCELLED"
)

// Role identifies which side of the claim an actor acts for.
type Role string

const (
	RoleBuyer     Role = "buyer"
	RoleDeveloper Role = "developer"
)

// Validation error taxonomy. These are deterministic rejections and are
// never retried automatically.
var (
	ErrInvalidTransition = errors.New("transition not allowed from current status")
	ErrUnauthorized      = errors.New("actor role may not trigger this transition")
	ErrCodeExpired       = errors.New("time-boxed code has expired")
	ErrInvalidAmount     = errors.New("amount is invalid")
	ErrUnknownStatus     = errors.New("unknown claim status")
)

// allStatuses is used for membership checks when parsing external input.
var allStatuses = []ClaimStatus{
	StatusInitiated, StatusAccessCodeSubmitted, StatusDeveloperProcessing,
	StatusClaimCodeReceived, StatusFundsRequested, StatusFundsReceived,
	StatusDepositApplied, StatusCompleted, StatusRejected, StatusExpired,
	StatusCancelled,
}

// ParseClaimStatus validates a raw string against the closed enum.
func ParseClaimStatus(s string) (ClaimStatus, error) {
	for _, st := range allStatuses {
		if string(st) == s {
			return st, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownStatus, s)
}

// ParseRole validates a raw role claim from an auth token.
func ParseRole(s string) (Role, error) {
	switch Role(s) {
	case RoleBuyer, RoleDeveloper:
		return Role(s), nil
	}
	return "", fmt.Errorf("unknown actor role %q", s)
}

// IsTerminal reports whether a status has no outgoing edges.
func (s ClaimStatus) IsTerminal() bool {
	switch s {
	case StatusCompleted, StatusRejected, StatusExpired, StatusCancelled:
		return true
	}
	return false
}

// edge annotates one allowed transition with the roles that may trigger it.
type edge struct {
	buyer     bool
	developer bool
}

func (e edge) allows(r Role) bool {
	switch r {
	case RoleBuyer:
		return e.buyer
	case RoleDeveloper:
		return e.developer
	}
	return false
}

var (
	buyerOnly     = edge{buyer: true}
	developerOnly = edge{developer: true}
	eitherParty   = edge{buyer: true, developer: true}
)

// transitions is the forward-path adjacency table. Side exits to the
// terminal statuses are added for every non-terminal status in init.
var transitions = map[ClaimStatus]map[ClaimStatus]edge{
	StatusInitiated: {
		StatusAccessCodeSubmitted: buyerOnly,
	},
	StatusAccessCodeSubmitted: {
		StatusDeveloperProcessing: developerOnly,
	},
	StatusDeveloperProcessing: {
		StatusClaimCodeReceived: developerOnly,
	},
	StatusClaimCodeReceived: {
		StatusFundsRequested: developerOnly,
	},
	StatusFundsRequested: {
		StatusFundsReceived: developerOnly,
	},
	StatusFundsReceived: {
		StatusDepositApplied: developerOnly,
	},
	StatusDepositApplied: {
		StatusCompleted: developerOnly,
	},
}

func init() {
	for _, st := range allStatuses {
		if st.IsTerminal() {
			continue
		}
		if transitions[st] == nil {
			transitions[st] = map[ClaimStatus]edge{}
		}
		transitions[st][StatusCancelled] = eitherParty
		transitions[st][StatusRejected] = developerOnly
		transitions[st][StatusExpired] = eitherParty
	}
}

// ValidateTransition checks an edge traversal against the claim as it
// currently stands. Callers must hold the claim row under lock so that the
// values checked here cannot go stale before the write. The checks run in
// precedence order: graph membership, role authorization, then the
// time-boxed and financial preconditions stored on the claim.
func ValidateTransition(c *Claim, target ClaimStatus, role Role, now time.Time) error {
	e, ok := transitions[c.Status][target]
	if !ok {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, c.Status, target)
	}
	if !e.allows(role) {
		return fmt.Errorf("%w: role %s on %s -> %s", ErrUnauthorized, role, c.Status, target)
	}

	switch target {
	case StatusFundsRequested:
		// Requesting funds spends the claim code, so it must exist and
		// still be inside its validity window.
		if c.ClaimCode == nil || c.ClaimCodeExpiry == nil {
			return fmt.Errorf("%w: claim code not recorded before %s", ErrInvalidTransition, target)
		}
		if !now.Before(*c.ClaimCodeExpiry) {
			return fmt.Errorf("%w: claim code expired at %s", ErrCodeExpired, c.ClaimCodeExpiry.Format(time.RFC3339))
		}
	case StatusFundsReceived:
		if c.ApprovedAmount == nil {
			return fmt.Errorf("%w: approved amount not set before %s", ErrInvalidTransition, target)
		}
	case StatusDepositApplied:
		if c.DrawdownAmount == nil {
			return fmt.Errorf("%w: drawdown amount not recorded before %s", ErrInvalidTransition, target)
		}
	}

	return nil
}

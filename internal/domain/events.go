package domain

import (
	"time"

	"github.com/google/uuid"
)

// ClaimStatusEvent is the message published after a claim transition
// commits. Delivery is best-effort; consumers (notification dispatch,
// dashboards) must tolerate gaps and never drive claim state from it.
type ClaimStatusEvent struct {
	ClaimID        uuid.UUID    `json:"claim_id"`
	BuyerID        uuid.UUID    `json:"buyer_id"`
	DeveloperID    *uuid.UUID   `json:"developer_id,omitempty"`
	PreviousStatus *ClaimStatus `json:"previous_status,omitempty"`
	NewStatus      ClaimStatus  `json:"new_status"`
	UpdatedBy      uuid.UUID    `json:"updated_by"`
	Note           string       `json:"note,omitempty"`
	OccurredAt     time.Time    `json:"occurred_at"`
}

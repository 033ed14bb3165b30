package domain

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testClaim(status ClaimStatus) *Claim {
	return &Claim{
		ID:              uuid.New(),
		BuyerID:         uuid.New(),
		PropertyID:      "PROP-001",
		RequestedAmount: 3_000_000,
		Status:          status,
	}
}

func TestValidateTransition_ForwardPath(t *testing.T) {
	now := time.Now().UTC()
	code := "CC-123"
	expiry := now.Add(time.Hour)
	approved := int64(2_500_000)
	drawdown := int64(2_500_000)

	steps := []struct {
		from   ClaimStatus
		to     ClaimStatus
		role   Role
		mutate func(*Claim)
	}{
		{StatusInitiated, StatusAccessCodeSubmitted, RoleBuyer, nil},
		{StatusAccessCodeSubmitted, StatusDeveloperProcessing, RoleDeveloper, nil},
		{StatusDeveloperProcessing, StatusClaimCodeReceived, RoleDeveloper, nil},
		{StatusClaimCodeReceived, StatusFundsRequested, RoleDeveloper, func(c *Claim) {
			c.ClaimCode = &code
			c.ClaimCodeExpiry = &expiry
		}},
		{StatusFundsRequested, StatusFundsReceived, RoleDeveloper, func(c *Claim) {
			c.ApprovedAmount = &approved
		}},
		{StatusFundsReceived, StatusDepositApplied, RoleDeveloper, func(c *Claim) {
			c.DrawdownAmount = &drawdown
		}},
		{StatusDepositApplied, StatusCompleted, RoleDeveloper, nil},
	}

	for _, step := range steps {
		claim := testClaim(step.from)
		if step.mutate != nil {
			step.mutate(claim)
		}
		err := ValidateTransition(claim, step.to, step.role, now)
		assert.NoError(t, err, "%s -> %s as %s", step.from, step.to, step.role)
	}
}

func TestValidateTransition_TerminalStatusesHaveNoExits(t *testing.T) {
	now := time.Now().UTC()
	for _, terminal := range []ClaimStatus{StatusCompleted, StatusRejected, StatusExpired, StatusCancelled} {
		for _, target := range allStatuses {
			claim := testClaim(terminal)
			err := ValidateTransition(claim, target, RoleDeveloper, now)
			assert.ErrorIs(t, err, ErrInvalidTransition, "%s -> %s should be refused", terminal, target)
		}
	}
}

func TestValidateTransition_RoleAuthorization(t *testing.T) {
	now := time.Now().UTC()

	// Only the buyer submits the access code.
	err := ValidateTransition(testClaim(StatusInitiated), StatusAccessCodeSubmitted, RoleDeveloper, now)
	assert.ErrorIs(t, err, ErrUnauthorized)

	// Only the developer takes a submitted code into processing.
	err = ValidateTransition(testClaim(StatusAccessCodeSubmitted), StatusDeveloperProcessing, RoleBuyer, now)
	assert.ErrorIs(t, err, ErrUnauthorized)

	// Rejection is developer-only even though cancellation is not.
	err = ValidateTransition(testClaim(StatusInitiated), StatusRejected, RoleBuyer, now)
	assert.ErrorIs(t, err, ErrUnauthorized)
}

func TestValidateTransition_SideExitsFromEveryNonTerminalStatus(t *testing.T) {
	now := time.Now().UTC()
	for _, st := range allStatuses {
		if st.IsTerminal() {
			continue
		}
		claim := testClaim(st)
		assert.NoError(t, ValidateTransition(claim, StatusCancelled, RoleBuyer, now), "buyer cancel from %s", st)
		assert.NoError(t, ValidateTransition(claim, StatusCancelled, RoleDeveloper, now), "developer cancel from %s", st)
		assert.NoError(t, ValidateTransition(claim, StatusExpired, RoleDeveloper, now), "expire from %s", st)
		assert.NoError(t, ValidateTransition(claim, StatusRejected, RoleDeveloper, now), "reject from %s", st)
	}
}

func TestValidateTransition_SkippingAStageIsRefused(t *testing.T) {
	now := time.Now().UTC()
	err := ValidateTransition(testClaim(StatusInitiated), StatusFundsRequested, RoleDeveloper, now)
	assert.ErrorIs(t, err, ErrInvalidTransition)

	err = ValidateTransition(testClaim(StatusDeveloperProcessing), StatusCompleted, RoleDeveloper, now)
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestValidateTransition_FundsRequestedNeedsLiveClaimCode(t *testing.T) {
	now := time.Now().UTC()

	// No claim code recorded at all.
	claim := testClaim(StatusClaimCodeReceived)
	err := ValidateTransition(claim, StatusFundsRequested, RoleDeveloper, now)
	assert.ErrorIs(t, err, ErrInvalidTransition)

	// Code present but already expired.
	code := "CC-123"
	expired := now.Add(-time.Minute)
	claim.ClaimCode = &code
	claim.ClaimCodeExpiry = &expired
	err = ValidateTransition(claim, StatusFundsRequested, RoleDeveloper, now)
	assert.ErrorIs(t, err, ErrCodeExpired)

	// Expiry exactly at now counts as expired.
	atNow := now
	claim.ClaimCodeExpiry = &atNow
	err = ValidateTransition(claim, StatusFundsRequested, RoleDeveloper, now)
	assert.ErrorIs(t, err, ErrCodeExpired)
}

func TestValidateTransition_FinancialPreconditions(t *testing.T) {
	now := time.Now().UTC()

	// Funds cannot be received without an approved amount on record.
	err := ValidateTransition(testClaim(StatusFundsRequested), StatusFundsReceived, RoleDeveloper, now)
	assert.ErrorIs(t, err, ErrInvalidTransition)

	// The deposit cannot be applied without a recorded drawdown.
	err = ValidateTransition(testClaim(StatusFundsReceived), StatusDepositApplied, RoleDeveloper, now)
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestParseClaimStatus(t *testing.T) {
	st, err := ParseClaimStatus("FUNDS_REQUESTED")
	require.NoError(t, err)
	assert.Equal(t, StatusFundsRequested, st)

	_, err = ParseClaimStatus("funds_requested")
	assert.ErrorIs(t, err, ErrUnknownStatus)

	_, err = ParseClaimStatus("")
	assert.ErrorIs(t, err, ErrUnknownStatus)
}

func TestParseRole(t *testing.T) {
	role, err := ParseRole("buyer")
	require.NoError(t, err)
	assert.Equal(t, RoleBuyer, role)

	role, err = ParseRole("developer")
	require.NoError(t, err)
	assert.Equal(t, RoleDeveloper, role)

	_, err = ParseRole("admin")
	assert.Error(t, err)
}

func TestIsTerminal(t *testing.T) {
	assert.True(t, StatusCompleted.IsTerminal())
	assert.True(t, StatusRejected.IsTerminal())
	assert.True(t, StatusExpired.IsTerminal())
	assert.True(t, StatusCancelled.IsTerminal())
	assert.False(t, StatusInitiated.IsTerminal())
	assert.False(t, StatusDepositApplied.IsTerminal())
}

/**
 * @description
 * Integration tests for the Postgres repository against a real database in
 * a testcontainers-managed instance. These exercise the behavior that only
 * exists inside TransitionClaim's transaction: the compare-under-lock
 * conflict detection, the lock_timeout bound, and the status history chain.
 *
 * The tests are skipped unless TEST_INTEGRATION is set, so the unit suite
 * stays runnable without Docker.
 */

package store

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/propie/htb-claims-service/internal/database"
	"github.com/propie/htb-claims-service/internal/domain"
)

// setupTestDB starts a PostgreSQL container, applies the embedded
// migrations, and returns a connected pool. Cleanup is registered on t.
func setupTestDB(t *testing.T) *pgxpool.Pool {
	t.Helper()

	if os.Getenv("TEST_INTEGRATION") == "" {
		t.Skip("skipping integration test: TEST_INTEGRATION not set")
	}

	ctx := context.Background()

	container, err := postgres.Run(ctx,
		"docker.io/postgres:16-alpine",
		postgres.WithDatabase("htb_claims_test"),
		postgres.WithUsername("htb"),
		postgres.WithPassword("test-password"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	if err != nil {
		t.Fatalf("failed to start PostgreSQL container: %v", err)
	}
	t.Cleanup(func() {
		if err := container.Terminate(ctx); err != nil {
			t.Logf("failed to terminate container: %v", err)
		}
	})

	databaseURL, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatalf("failed to build connection string: %v", err)
	}

	if err := database.Migrate(databaseURL); err != nil {
		t.Fatalf("failed to run migrations: %v", err)
	}

	pool, err := database.Connect(ctx, databaseURL)
	if err != nil {
		t.Fatalf("failed to connect: %v", err)
	}
	t.Cleanup(pool.Close)

	return pool
}

func createTestClaim(t *testing.T, repo *PostgresRepository, buyerID uuid.UUID) *domain.Claim {
	t.Helper()

	claim := &domain.Claim{
		ID:              uuid.New(),
		BuyerID:         buyerID,
		PropertyID:      "PROP-IT-001",
		RequestedAmount: 3_000_000,
		Status:          domain.StatusInitiated,
	}
	if err := repo.CreateClaim(context.Background(), claim); err != nil {
		t.Fatalf("CreateClaim() error: %v", err)
	}
	return claim
}

// Two writers race the same edge from the same observed status. Exactly one
// transition commits; the loser locks the row after the winner's commit,
// finds a status it never saw, and gets the conflict error. The audit trail
// ends up with exactly one row for the applied transition.
func TestTransitionClaim_ConcurrentWritersOneWins(t *testing.T) {
	pool := setupTestDB(t)
	ctx := context.Background()
	repo := NewPostgresRepository(pool, 3*time.Second)

	buyerID := uuid.New()
	claim := createTestClaim(t, repo, buyerID)

	params := func(code string) TransitionParams {
		return TransitionParams{
			ClaimID:        claim.ID,
			ExpectedStatus: domain.StatusInitiated,
			NewStatus:      domain.StatusAccessCodeSubmitted,
			ActorID:        buyerID,
			Role:           domain.RoleBuyer,
			Note:           "access code " + code,
			SetAccessCode:  &CodeUpdate{Code: code, Expiry: time.Now().UTC().Add(24 * time.Hour)},
		}
	}

	start := make(chan struct{})
	results := make([]error, 2)
	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			_, results[i] = repo.TransitionClaim(ctx, params("AC-RACE"))
		}(i)
	}
	close(start)
	wg.Wait()

	var committed, conflicted int
	for _, err := range results {
		switch {
		case err == nil:
			committed++
		case errors.Is(err, ErrConcurrentModification):
			conflicted++
		default:
			t.Fatalf("unexpected transition error: %v", err)
		}
	}
	if committed != 1 || conflicted != 1 {
		t.Fatalf("expected one commit and one conflict, got %d commits, %d conflicts", committed, conflicted)
	}

	history, err := repo.ListStatusHistory(ctx, claim.ID)
	if err != nil {
		t.Fatalf("ListStatusHistory() error: %v", err)
	}
	if len(history) != 2 {
		t.Fatalf("expected creation row plus one transition row, got %d", len(history))
	}
}

// Walking a claim through its forward path produces N+1 history rows whose
// previous/new statuses chain without gaps, in insert order.
func TestTransitionClaim_HistoryRowsChain(t *testing.T) {
	pool := setupTestDB(t)
	ctx := context.Background()
	repo := NewPostgresRepository(pool, 3*time.Second)

	buyerID := uuid.New()
	developerID := uuid.New()
	claim := createTestClaim(t, repo, buyerID)
	expiry := time.Now().UTC().Add(24 * time.Hour)
	approved := int64(2_500_000)

	steps := []TransitionParams{
		{
			ClaimID:        claim.ID,
			ExpectedStatus: domain.StatusInitiated,
			NewStatus:      domain.StatusAccessCodeSubmitted,
			ActorID:        buyerID,
			Role:           domain.RoleBuyer,
			SetAccessCode:  &CodeUpdate{Code: "AC-1", Expiry: expiry},
		},
		{
			ClaimID:           claim.ID,
			ExpectedStatus:    domain.StatusAccessCodeSubmitted,
			NewStatus:         domain.StatusDeveloperProcessing,
			ActorID:           developerID,
			Role:              domain.RoleDeveloper,
			AssignDeveloperID: &developerID,
		},
		{
			ClaimID:           claim.ID,
			ExpectedStatus:    domain.StatusDeveloperProcessing,
			NewStatus:         domain.StatusClaimCodeReceived,
			ActorID:           developerID,
			Role:              domain.RoleDeveloper,
			SetClaimCode:      &CodeUpdate{Code: "CC-1", Expiry: expiry},
			SetApprovedAmount: &approved,
		},
	}
	for _, p := range steps {
		if _, err := repo.TransitionClaim(ctx, p); err != nil {
			t.Fatalf("TransitionClaim(%s) error: %v", p.NewStatus, err)
		}
	}

	history, err := repo.ListStatusHistory(ctx, claim.ID)
	if err != nil {
		t.Fatalf("ListStatusHistory() error: %v", err)
	}
	if len(history) != len(steps)+1 {
		t.Fatalf("expected %d history rows, got %d", len(steps)+1, len(history))
	}
	if history[0].PreviousStatus != nil || history[0].NewStatus != domain.StatusInitiated {
		t.Fatalf("expected creation row first, got %+v", history[0])
	}
	for i := 1; i < len(history); i++ {
		if history[i].PreviousStatus == nil || *history[i].PreviousStatus != history[i-1].NewStatus {
			t.Fatalf("history row %d does not chain from the previous row: %+v", i, history[i])
		}
	}

	got, err := repo.GetClaimByID(ctx, claim.ID)
	if err != nil {
		t.Fatalf("GetClaimByID() error: %v", err)
	}
	if got.DeveloperID == nil || *got.DeveloperID != developerID {
		t.Fatalf("expected assigned developer %s, got %+v", developerID, got.DeveloperID)
	}
	if got.ApprovedAmount == nil || *got.ApprovedAmount != approved {
		t.Fatalf("expected approved amount %d, got %+v", approved, got.ApprovedAmount)
	}
}

// A writer holding the row past the configured lock_timeout surfaces as
// ErrLockTimeout rather than blocking indefinitely.
func TestTransitionClaim_LockTimeout(t *testing.T) {
	pool := setupTestDB(t)
	ctx := context.Background()
	repo := NewPostgresRepository(pool, 200*time.Millisecond)

	buyerID := uuid.New()
	claim := createTestClaim(t, repo, buyerID)

	blocker, err := pool.Begin(ctx)
	if err != nil {
		t.Fatalf("begin blocking tx: %v", err)
	}
	defer blocker.Rollback(ctx)
	if _, err := blocker.Exec(ctx, "SELECT 1 FROM htb_claims WHERE id = $1 FOR UPDATE", claim.ID); err != nil {
		t.Fatalf("lock claim row: %v", err)
	}

	_, err = repo.TransitionClaim(ctx, TransitionParams{
		ClaimID:        claim.ID,
		ExpectedStatus: domain.StatusInitiated,
		NewStatus:      domain.StatusAccessCodeSubmitted,
		ActorID:        buyerID,
		Role:           domain.RoleBuyer,
		SetAccessCode:  &CodeUpdate{Code: "AC-1", Expiry: time.Now().UTC().Add(time.Hour)},
	})
	if !errors.Is(err, ErrLockTimeout) {
		t.Fatalf("expected ErrLockTimeout while the row is held, got %v", err)
	}
}

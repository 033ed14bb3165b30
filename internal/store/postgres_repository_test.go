package store

import (
	"errors"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
)

func TestIsLockNotAvailable(t *testing.T) {
	if !isLockNotAvailable(&pgconn.PgError{Code: "55P03"}) {
		t.Fatalf("expected 55P03 to classify as lock timeout")
	}
	if isLockNotAvailable(&pgconn.PgError{Code: "23503"}) {
		t.Fatalf("expected foreign key violation not to classify as lock timeout")
	}
	if isLockNotAvailable(errors.New("plain error")) {
		t.Fatalf("expected non-pg error not to classify as lock timeout")
	}
}

func TestIsForeignKeyViolation(t *testing.T) {
	if !isForeignKeyViolation(&pgconn.PgError{Code: "23503"}) {
		t.Fatalf("expected 23503 to classify as foreign key violation")
	}
	if isForeignKeyViolation(&pgconn.PgError{Code: "55P03"}) {
		t.Fatalf("expected lock timeout not to classify as foreign key violation")
	}
}

func TestWrapStorageErr_ConnectionFailure(t *testing.T) {
	wrapped := wrapStorageErr("get claim", &pgconn.PgError{Code: "08006"})
	if !errors.Is(wrapped, ErrStorageUnavailable) {
		t.Fatalf("expected class 08 to wrap as ErrStorageUnavailable, got %v", wrapped)
	}
}

func TestWrapStorageErr_DataErrorPassesThrough(t *testing.T) {
	cause := &pgconn.PgError{Code: "23514"}
	wrapped := wrapStorageErr("update claim", cause)
	if errors.Is(wrapped, ErrStorageUnavailable) {
		t.Fatalf("expected check violation not to classify as storage unavailable")
	}
	var pgErr *pgconn.PgError
	if !errors.As(wrapped, &pgErr) || pgErr.Code != "23514" {
		t.Fatalf("expected original pg error preserved in chain, got %v", wrapped)
	}
}

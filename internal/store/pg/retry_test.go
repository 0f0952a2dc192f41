package pg

import (
	"context"
	"database/sql/driver"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
)

func TestIsTransient(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"bad conn", driver.ErrBadConn, true},
		{"connection exception", &pgconn.PgError{Code: "08006"}, true},
		{"unique violation", &pgconn.PgError{Code: pgErrUniqueViolation}, false},
		{"reset", errors.New("read tcp: connection reset by peer"), true},
		{"semantic", errors.New("role not found"), false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := isTransient(tc.err); got != tc.want {
				t.Fatalf("isTransient(%v) = %v, want %v", tc.err, got, tc.want)
			}
		})
	}
}

func TestWithRetryRecoversOnce(t *testing.T) {
	calls := 0
	err := withRetry(context.Background(), func(ctx context.Context) error {
		calls++
		if calls == 1 {
			return driver.ErrBadConn
		}
		return nil
	})
	if err != nil {
		t.Fatalf("expected recovery, got %v", err)
	}
	if calls != 2 {
		t.Fatalf("expected 2 attempts, got %d", calls)
	}
}

func TestWithRetryGivesUpAfterSecondFailure(t *testing.T) {
	calls := 0
	err := withRetry(context.Background(), func(ctx context.Context) error {
		calls++
		return driver.ErrBadConn
	})
	if !errors.Is(err, ErrTransient) {
		t.Fatalf("expected ErrTransient, got %v", err)
	}
	if calls != 2 {
		t.Fatalf("expected exactly 2 attempts, got %d", calls)
	}
}

func TestWithRetryPassesSemanticErrorsThrough(t *testing.T) {
	sentinel := errors.New("conflict")
	calls := 0
	err := withRetry(context.Background(), func(ctx context.Context) error {
		calls++
		return sentinel
	})
	if !errors.Is(err, sentinel) {
		t.Fatalf("expected the original error, got %v", err)
	}
	if calls != 1 {
		t.Fatalf("semantic failures must not retry, got %d attempts", calls)
	}
}

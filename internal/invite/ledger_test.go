package invite

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"voxhall.org/internal/access"
)

type stubAuthorizer struct {
	allowed map[int64][]string
}

func (a *stubAuthorizer) Require(ctx context.Context, userID int64, permission string) error {
	for _, p := range a.allowed[userID] {
		if p == permission || p == access.PermAdministrator {
			return nil
		}
	}
	return fmt.Errorf("%w: requires %s", access.ErrPermissionDenied, permission)
}

func newTestLedger(t *testing.T, authz Authorizer) *Ledger {
	t.Helper()
	if authz == nil {
		authz = &stubAuthorizer{allowed: map[int64][]string{
			1: {access.PermCreateInvites},
		}}
	}
	l, err := NewLedger(NewInMemory(), authz)
	if err != nil {
		t.Fatalf("NewLedger: %v", err)
	}
	return l
}

func TestIssueRequiresPermission(t *testing.T) {
	l := newTestLedger(t, nil)
	ctx := context.Background()

	if _, err := l.Issue(ctx, 2, 0, time.Time{}); !errors.Is(err, access.ErrPermissionDenied) {
		t.Fatalf("expected permission denied, got %v", err)
	}

	code, err := l.Issue(ctx, 1, 0, time.Time{})
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if len(code.Code) != codeLength {
		t.Fatalf("expected %d-character code, got %q", codeLength, code.Code)
	}
}

func TestIssueValidation(t *testing.T) {
	l := newTestLedger(t, nil)
	ctx := context.Background()

	if _, err := l.Issue(ctx, 0, 0, time.Time{}); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for zero creator, got %v", err)
	}
	if _, err := l.Issue(ctx, 1, -1, time.Time{}); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for negative max uses, got %v", err)
	}
	if _, err := l.Issue(ctx, 1, 0, time.Now().Add(-time.Hour)); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for past expiry, got %v", err)
	}
}

func TestIssueRetriesOnCodeCollision(t *testing.T) {
	store := NewInMemory()
	l, err := NewLedger(&collidingStore{Store: store, collisions: 2}, &stubAuthorizer{
		allowed: map[int64][]string{1: {access.PermCreateInvites}},
	})
	if err != nil {
		t.Fatalf("NewLedger: %v", err)
	}

	code, err := l.Issue(context.Background(), 1, 0, time.Time{})
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if code.Code == "" {
		t.Fatal("expected a code after retrying past collisions")
	}
}

// collidingStore forces the first N inserts to collide.
type collidingStore struct {
	Store
	collisions int
}

func (s *collidingStore) Insert(ctx context.Context, code Code) (Code, error) {
	if s.collisions > 0 {
		s.collisions--
		return Code{}, fmt.Errorf("%w: code already exists", ErrConflict)
	}
	return s.Store.Insert(ctx, code)
}

func TestRedeemUnknownCode(t *testing.T) {
	l := newTestLedger(t, nil)
	if _, err := l.Redeem(context.Background(), "NOSUCHCO", 7); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestRedeemExpiredCode(t *testing.T) {
	store := NewInMemory()
	l, err := NewLedger(store, &stubAuthorizer{allowed: map[int64][]string{}})
	if err != nil {
		t.Fatalf("NewLedger: %v", err)
	}
	code, err := store.Insert(context.Background(), Code{
		Code:      "EXPIRED2",
		CreatorID: 1,
		ExpiresAt: time.Now().Add(-time.Minute),
	})
	if err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if _, err := l.Redeem(context.Background(), code.Code, 7); !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict for expired code, got %v", err)
	}
}

func TestRedeemBoundedByMaxUses(t *testing.T) {
	l := newTestLedger(t, nil)
	ctx := context.Background()

	code, err := l.Issue(ctx, 1, 2, time.Time{})
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	if _, err := l.Redeem(ctx, code.Code, 10); err != nil {
		t.Fatalf("first redemption: %v", err)
	}
	if _, err := l.Redeem(ctx, code.Code, 11); err != nil {
		t.Fatalf("second redemption: %v", err)
	}
	if _, err := l.Redeem(ctx, code.Code, 12); !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict once exhausted, got %v", err)
	}

	uses, err := l.Uses(ctx, code.ID)
	if err != nil {
		t.Fatalf("Uses: %v", err)
	}
	if len(uses) != 2 {
		t.Fatalf("expected 2 use records, got %d", len(uses))
	}
}

func TestConcurrentRedemptionNeverOvershoots(t *testing.T) {
	l := newTestLedger(t, nil)
	ctx := context.Background()

	code, err := l.Issue(ctx, 1, 1, time.Time{})
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	const attempts = 20
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
	)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(userID int64) {
			defer wg.Done()
			if _, err := l.Redeem(ctx, code.Code, userID); err == nil {
				mu.Lock()
				successes++
				mu.Unlock()
			}
		}(int64(100 + i))
	}
	wg.Wait()

	if successes != 1 {
		t.Fatalf("expected exactly 1 successful redemption, got %d", successes)
	}
	final, err := l.Get(ctx, code.Code)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if final.Uses != 1 {
		t.Fatalf("expected 1 recorded use, got %d", final.Uses)
	}
}

func TestRedeemRateLimitedPerUser(t *testing.T) {
	l := newTestLedger(t, nil)
	ctx := context.Background()

	code, err := l.Issue(ctx, 1, 0, time.Time{})
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	var rateLimited bool
	for i := 0; i < redeemBurst+1; i++ {
		if _, err := l.Redeem(ctx, code.Code, 42); errors.Is(err, ErrRateLimited) {
			rateLimited = true
			break
		}
	}
	if !rateLimited {
		t.Fatal("expected a rate-limited attempt past the burst")
	}

	// Other users keep their own bucket.
	if _, err := l.Redeem(ctx, code.Code, 43); err != nil {
		t.Fatalf("unrelated user should not be limited: %v", err)
	}
}

func TestListByCreator(t *testing.T) {
	l := newTestLedger(t, &stubAuthorizer{allowed: map[int64][]string{
		1: {access.PermCreateInvites},
		2: {access.PermAdministrator},
	}})
	ctx := context.Background()

	if _, err := l.Issue(ctx, 1, 0, time.Time{}); err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if _, err := l.Issue(ctx, 1, 5, time.Time{}); err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if _, err := l.Issue(ctx, 2, 0, time.Time{}); err != nil {
		t.Fatalf("Issue as admin: %v", err)
	}

	mine, err := l.ListByCreator(ctx, 1)
	if err != nil {
		t.Fatalf("ListByCreator: %v", err)
	}
	if len(mine) != 2 {
		t.Fatalf("expected 2 codes, got %d", len(mine))
	}
}

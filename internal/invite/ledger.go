package invite

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"voxhall.org/internal/access"
	"voxhall.org/internal/audit"
	"voxhall.org/internal/ids"
	"voxhall.org/internal/obs"
)

const (
	codeLength = 8

	// issueAttempts bounds the collision retry loop on Insert. With a
	// 31-character alphabet at length 8 a second collision in a row means
	// something is badly wrong with the entropy source.
	issueAttempts = 5

	redeemBurst       = 5
	redeemRefill      = time.Second
	limiterIdleExpiry = 10 * time.Minute
)

// Authorizer answers whether a user holds a permission.
type Authorizer interface {
	Require(ctx context.Context, userID int64, permission string) error
}

type redeemLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// Ledger issues invite codes and arbitrates bounded redemption. Redemption
// attempts are rate limited per user to blunt brute-force guessing of code
// strings.
type Ledger struct {
	store Store
	authz Authorizer

	mu        sync.Mutex
	limiters  map[int64]*redeemLimiter
	lastSweep time.Time
}

// NewLedger constructs a Ledger over the given store and authorizer.
func NewLedger(store Store, authz Authorizer) (*Ledger, error) {
	if store == nil {
		return nil, errors.New("invite store is required")
	}
	if authz == nil {
		return nil, errors.New("authorizer is required")
	}
	return &Ledger{
		store:     store,
		authz:     authz,
		limiters:  make(map[int64]*redeemLimiter),
		lastSweep: time.Now(),
	}, nil
}

// Issue creates a new invite code for the creator. MaxUses 0 means
// unlimited and a zero expiresAt never expires. Requires the
// create_invites permission.
func (l *Ledger) Issue(ctx context.Context, creatorID int64, maxUses int, expiresAt time.Time) (_ Code, err error) {
	defer func(start time.Time) { obs.ObserveOp("invite.issue", start, err) }(time.Now())
	if creatorID <= 0 {
		return Code{}, fmt.Errorf("%w: creator is required", ErrInvalidInput)
	}
	if maxUses < 0 {
		return Code{}, fmt.Errorf("%w: max uses must not be negative", ErrInvalidInput)
	}
	if !expiresAt.IsZero() && !expiresAt.After(time.Now()) {
		return Code{}, fmt.Errorf("%w: expiry must be in the future", ErrInvalidInput)
	}
	if err := l.authz.Require(ctx, creatorID, access.PermCreateInvites); err != nil {
		return Code{}, err
	}

	var lastErr error
	for attempt := 0; attempt < issueAttempts; attempt++ {
		code, err := l.store.Insert(ctx, Code{
			Code:      ids.Code(codeLength),
			CreatorID: creatorID,
			MaxUses:   maxUses,
			ExpiresAt: expiresAt,
			CreatedAt: time.Now().UTC(),
		})
		if errors.Is(err, ErrConflict) {
			lastErr = err
			continue
		}
		if err != nil {
			return Code{}, err
		}
		return code, nil
	}
	return Code{}, fmt.Errorf("issue invite: %w", lastErr)
}

// Redeem consumes one use of the code for the user. The expiry check,
// the bound check, and the increment happen inside a single store
// operation, so concurrent redeemers can never push Uses past MaxUses.
func (l *Ledger) Redeem(ctx context.Context, codeStr string, userID int64) (Code, error) {
	start := time.Now()
	code, err := l.redeem(ctx, codeStr, userID)
	obs.CountInviteRedemption(err)
	obs.ObserveOp("invite.redeem", start, err)
	return code, err
}

func (l *Ledger) redeem(ctx context.Context, codeStr string, userID int64) (Code, error) {
	if userID <= 0 {
		return Code{}, fmt.Errorf("%w: user is required", ErrInvalidInput)
	}
	if codeStr == "" {
		return Code{}, fmt.Errorf("%w: code is required", ErrInvalidInput)
	}
	if !l.limiterFor(userID).Allow() {
		return Code{}, ErrRateLimited
	}

	code, err := l.store.Redeem(ctx, codeStr, userID, time.Now().UTC())
	if err != nil {
		return Code{}, err
	}
	_ = audit.LogEvent(ctx, "invite.redeem", map[string]any{
		"code_id": code.ID,
		"user_id": userID,
		"uses":    code.Uses,
	})
	return code, nil
}

// Get returns the code's current state.
func (l *Ledger) Get(ctx context.Context, codeStr string) (Code, error) {
	return l.store.GetByCode(ctx, codeStr)
}

// Uses returns the redemption audit trail for a code.
func (l *Ledger) Uses(ctx context.Context, codeID int64) ([]Use, error) {
	return l.store.Uses(ctx, codeID)
}

// ListByCreator returns the codes a user has issued.
func (l *Ledger) ListByCreator(ctx context.Context, creatorID int64) ([]Code, error) {
	return l.store.ListByCreator(ctx, creatorID)
}

func (l *Ledger) limiterFor(userID int64) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	if now.Sub(l.lastSweep) > limiterIdleExpiry {
		for id, rl := range l.limiters {
			if now.Sub(rl.lastSeen) > limiterIdleExpiry {
				delete(l.limiters, id)
			}
		}
		l.lastSweep = now
	}

	rl, ok := l.limiters[userID]
	if !ok {
		rl = &redeemLimiter{limiter: rate.NewLimiter(rate.Every(redeemRefill), redeemBurst)}
		l.limiters[userID] = rl
	}
	rl.lastSeen = now
	return rl.limiter
}

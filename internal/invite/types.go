package invite

import (
	"errors"
	"time"
)

// Code is a redeemable invite. MaxUses 0 means unlimited; a zero
// ExpiresAt never expires. Uses never exceeds MaxUses when set.
type Code struct {
	ID        int64
	Code      string
	CreatorID int64
	MaxUses   int
	Uses      int
	ExpiresAt time.Time
	CreatedAt time.Time
}

// Use is one append-only audit record of a redemption.
type Use struct {
	CodeID int64
	UserID int64
	UsedAt time.Time
}

var (
	ErrInvalidInput = errors.New("invite: invalid input")
	ErrNotFound     = errors.New("invite: not found")
	ErrConflict     = errors.New("invite: conflict")
	ErrRateLimited  = errors.New("invite: too many attempts")
)

// Expired reports whether the code is past its expiry at the given time.
func (c Code) Expired(now time.Time) bool {
	return !c.ExpiresAt.IsZero() && now.After(c.ExpiresAt)
}

// Exhausted reports whether the bounded use counter is spent.
func (c Code) Exhausted() bool {
	return c.MaxUses > 0 && c.Uses >= c.MaxUses
}

package invite

import (
	"context"
	"time"
)

// Store describes persistence for invite codes. Redeem is a single atomic
// operation: the bound check and the increment must never be separate
// reads and writes, or concurrent redemptions overshoot the bound.
type Store interface {
	// Insert stores a freshly issued code, failing with ErrConflict on a
	// code-string collision so the issuer can retry with a new code.
	Insert(ctx context.Context, code Code) (Code, error)

	GetByCode(ctx context.Context, code string) (Code, error)

	// Redeem increments the use counter and appends the use record iff
	// the code is neither expired nor exhausted at `now`.
	Redeem(ctx context.Context, code string, userID int64, now time.Time) (Code, error)

	Uses(ctx context.Context, codeID int64) ([]Use, error)
	ListByCreator(ctx context.Context, creatorID int64) ([]Code, error)
}

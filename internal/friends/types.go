package friends

import (
	"errors"
	"time"
)

// Status is the lifecycle state of a friend request. Cancellation deletes
// the row, so it never appears as a stored status.
type Status string

const (
	StatusPending  Status = "pending"
	StatusAccepted Status = "accepted"
	StatusDeclined Status = "declined"
)

// Request is a directed friend request. At most one row exists per
// ordered (sender, receiver) pair.
type Request struct {
	ID         int64
	SenderID   int64
	ReceiverID int64
	Status     Status
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Friendship is the canonical symmetric relation: User1ID < User2ID
// always, so each unordered pair maps to exactly one row. DM channel ids
// are zero until lazily provisioned.
type Friendship struct {
	User1ID          int64
	User2ID          int64
	DMChannelID      int64
	DMVoiceChannelID int64
	CreatedAt        time.Time
}

var (
	ErrInvalidInput     = errors.New("friends: invalid input")
	ErrNotFound         = errors.New("friends: not found")
	ErrConflict         = errors.New("friends: conflict")
	ErrPermissionDenied = errors.New("friends: permission denied")
)

// NormalizePair orders a user pair canonically (smaller id first).
func NormalizePair(a, b int64) (int64, int64) {
	if a <= b {
		return a, b
	}
	return b, a
}

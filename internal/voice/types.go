package voice

import (
	"errors"
	"time"
)

// Channel is a voice room with an optional capacity bound.
type Channel struct {
	ID        int64
	Name      string
	MaxUsers  int // 0 = unlimited
	CreatedAt time.Time
}

// Member is a user's presence in a voice channel. The store enforces that
// a user occupies at most one channel system-wide.
type Member struct {
	ID        int64
	ChannelID int64
	UserID    int64
	Muted     bool
	Deafened  bool
	JoinedAt  time.Time
}

var (
	ErrNotFound    = errors.New("voice: not found")
	ErrChannelFull = errors.New("voice: channel full")
)

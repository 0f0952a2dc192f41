package voice

import (
	"context"
	"errors"
	"strconv"
	"time"

	"voxhall.org/internal/access"
	"voxhall.org/internal/audit"
	"voxhall.org/internal/obs"
	"voxhall.org/internal/stream"
)

// Authorizer is the slice of the permission resolver the manager needs.
type Authorizer interface {
	Require(ctx context.Context, userID int64, permission string) error
}

// Manager governs presence in voice channels. Each user is either absent
// or joined to exactly one channel; every committed transition emits a
// domain event for the real-time transport.
type Manager struct {
	store  Store
	authz  Authorizer
	events *stream.Stream
}

// NewManager constructs a Manager. The event stream may be nil in tests.
func NewManager(store Store, authz Authorizer, events *stream.Stream) (*Manager, error) {
	if store == nil {
		return nil, errors.New("voice store is required")
	}
	if authz == nil {
		return nil, errors.New("authorizer is required")
	}
	return &Manager{store: store, authz: authz, events: events}, nil
}

// CreateChannel provisions a voice channel; capacity 0 means unlimited.
func (m *Manager) CreateChannel(ctx context.Context, actorID int64, name string, maxUsers int) (Channel, error) {
	if err := m.authz.Require(ctx, actorID, access.PermManageChannels); err != nil {
		return Channel{}, err
	}
	return m.store.CreateChannel(ctx, name, maxUsers)
}

// Join places the user in the channel, releasing any membership elsewhere
// first. The capacity check and insert are one atomic store operation.
func (m *Manager) Join(ctx context.Context, userID, channelID int64) (_ Member, err error) {
	defer func(start time.Time) { obs.ObserveOp("voice.join", start, err) }(time.Now())
	member, prev, err := m.store.Join(ctx, userID, channelID)
	if err != nil {
		return Member{}, err
	}
	// Rejoining the current channel changed nothing; subscribers already
	// saw this membership.
	if prev == channelID {
		return member, nil
	}
	if prev != 0 {
		m.events.Emit(stream.VoiceLeft, userID, 0, prev)
		m.publishOccupancy(ctx, prev)
	}
	m.events.Emit(stream.VoiceJoined, userID, 0, channelID)
	m.publishOccupancy(ctx, channelID)
	return member, nil
}

// Leave releases the user's membership; absent users are a no-op.
func (m *Manager) Leave(ctx context.Context, userID int64) (err error) {
	defer func(start time.Time) { obs.ObserveOp("voice.leave", start, err) }(time.Now())
	member, ok, err := m.store.Leave(ctx, userID)
	if err != nil {
		return err
	}
	if ok {
		m.events.Emit(stream.VoiceLeft, userID, 0, member.ChannelID)
		m.publishOccupancy(ctx, member.ChannelID)
	}
	return nil
}

// ToggleMute flips the user's own mute flag.
func (m *Manager) ToggleMute(ctx context.Context, userID int64) (Member, error) {
	return m.store.ToggleMute(ctx, userID)
}

// ToggleDeafen flips the user's own deafen flag.
func (m *Manager) ToggleDeafen(ctx context.Context, userID int64) (Member, error) {
	return m.store.ToggleDeafen(ctx, userID)
}

// ForceDisconnect removes the target's membership. Requires move_members
// (or administrator). A target with no membership is a no-op.
func (m *Manager) ForceDisconnect(ctx context.Context, actorID, targetID int64) (err error) {
	defer func(start time.Time) { obs.ObserveOp("voice.force_disconnect", start, err) }(time.Now())
	if err := m.authz.Require(ctx, actorID, access.PermMoveMembers); err != nil {
		return err
	}
	member, ok, err := m.store.Leave(ctx, targetID)
	if err != nil {
		return err
	}
	if ok {
		m.events.Emit(stream.VoiceForceDisconnect, targetID, actorID, member.ChannelID)
		m.publishOccupancy(ctx, member.ChannelID)
		_ = audit.LogEvent(ctx, "voice.force_disconnect", map[string]any{
			"actor_id":   actorID,
			"target_id":  targetID,
			"channel_id": member.ChannelID,
		})
	}
	return nil
}

// Reconcile removes any lingering membership for a user whose client just
// re-established a session, compensating for abrupt disconnects. It is
// idempotent and must run before any Join in the same session.
func (m *Manager) Reconcile(ctx context.Context, userID int64) (err error) {
	defer func(start time.Time) { obs.ObserveOp("voice.reconcile", start, err) }(time.Now())
	member, ok, err := m.store.Leave(ctx, userID)
	if err != nil {
		return err
	}
	if ok {
		m.events.Emit(stream.VoiceLeft, userID, 0, member.ChannelID)
		m.publishOccupancy(ctx, member.ChannelID)
	}
	return nil
}

// Members lists current members of a channel.
func (m *Manager) Members(ctx context.Context, channelID int64) ([]Member, error) {
	return m.store.Members(ctx, channelID)
}

// MemberOf reports the user's current membership, if any.
func (m *Manager) MemberOf(ctx context.Context, userID int64) (Member, bool, error) {
	return m.store.MemberOf(ctx, userID)
}

func (m *Manager) publishOccupancy(ctx context.Context, channelID int64) {
	members, err := m.store.Members(ctx, channelID)
	if err != nil {
		return
	}
	obs.SetVoiceOccupancy(strconv.FormatInt(channelID, 10), len(members))
}

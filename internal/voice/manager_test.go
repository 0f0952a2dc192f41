package voice

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"

	"voxhall.org/internal/access"
	"voxhall.org/internal/obs"
	"voxhall.org/internal/stream"
)

type stubAuthorizer struct {
	allowed map[int64][]string
}

func (s *stubAuthorizer) Require(ctx context.Context, userID int64, permission string) error {
	for _, p := range s.allowed[userID] {
		if p == permission || p == access.PermAdministrator {
			return nil
		}
	}
	return access.ErrPermissionDenied
}

func newTestManager(t *testing.T) (*Manager, *InMemory, *stubAuthorizer) {
	t.Helper()
	store := NewInMemory()
	authz := &stubAuthorizer{allowed: map[int64][]string{}}
	mgr, err := NewManager(store, authz, nil)
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	return mgr, store, authz
}

func TestJoinCapacityBound(t *testing.T) {
	mgr, store, _ := newTestManager(t)
	ctx := context.Background()
	ch, err := store.CreateChannel(ctx, "General", 2)
	if err != nil {
		t.Fatalf("CreateChannel: %v", err)
	}

	if _, err := mgr.Join(ctx, 1, ch.ID); err != nil {
		t.Fatalf("join A: %v", err)
	}
	if _, err := mgr.Join(ctx, 2, ch.ID); err != nil {
		t.Fatalf("join B: %v", err)
	}
	if _, err := mgr.Join(ctx, 3, ch.ID); !errors.Is(err, ErrChannelFull) {
		t.Fatalf("expected ErrChannelFull, got %v", err)
	}

	if err := mgr.Leave(ctx, 1); err != nil {
		t.Fatalf("leave A: %v", err)
	}
	if _, err := mgr.Join(ctx, 3, ch.ID); err != nil {
		t.Fatalf("join C after vacancy: %v", err)
	}
}

func TestConcurrentJoinsNeverOvershoot(t *testing.T) {
	mgr, store, _ := newTestManager(t)
	ctx := context.Background()
	const capacity = 5
	ch, _ := store.CreateChannel(ctx, "Crowded", capacity)

	var wg sync.WaitGroup
	for i := 1; i <= 50; i++ {
		wg.Add(1)
		go func(userID int64) {
			defer wg.Done()
			_, _ = mgr.Join(ctx, userID, ch.ID)
		}(int64(i))
	}
	wg.Wait()

	members, err := mgr.Members(ctx, ch.ID)
	if err != nil {
		t.Fatalf("Members: %v", err)
	}
	if len(members) > capacity {
		t.Fatalf("capacity overshoot: %d > %d", len(members), capacity)
	}
}

func TestJoinMoveSemantics(t *testing.T) {
	mgr, store, _ := newTestManager(t)
	ctx := context.Background()
	ch1, _ := store.CreateChannel(ctx, "One", 0)
	ch2, _ := store.CreateChannel(ctx, "Two", 0)

	if _, err := mgr.Join(ctx, 7, ch1.ID); err != nil {
		t.Fatalf("join ch1: %v", err)
	}
	if _, err := mgr.Join(ctx, 7, ch2.ID); err != nil {
		t.Fatalf("move to ch2: %v", err)
	}

	m, ok, err := mgr.MemberOf(ctx, 7)
	if err != nil || !ok {
		t.Fatalf("MemberOf: ok=%v err=%v", ok, err)
	}
	if m.ChannelID != ch2.ID {
		t.Fatalf("expected membership in ch2, got %d", m.ChannelID)
	}
	old, _ := mgr.Members(ctx, ch1.ID)
	if len(old) != 0 {
		t.Fatalf("cross-channel exclusivity violated: %v", old)
	}
}

func TestMoveIntoFullChannelKeepsOldMembership(t *testing.T) {
	mgr, store, _ := newTestManager(t)
	ctx := context.Background()
	ch1, _ := store.CreateChannel(ctx, "One", 0)
	full, _ := store.CreateChannel(ctx, "Full", 1)

	if _, err := mgr.Join(ctx, 1, full.ID); err != nil {
		t.Fatalf("fill channel: %v", err)
	}
	if _, err := mgr.Join(ctx, 7, ch1.ID); err != nil {
		t.Fatalf("join ch1: %v", err)
	}
	if _, err := mgr.Join(ctx, 7, full.ID); !errors.Is(err, ErrChannelFull) {
		t.Fatalf("expected ErrChannelFull, got %v", err)
	}
	m, ok, _ := mgr.MemberOf(ctx, 7)
	if !ok || m.ChannelID != ch1.ID {
		t.Fatalf("failed move should keep old membership, got ok=%v channel=%d", ok, m.ChannelID)
	}
}

func TestToggleFlags(t *testing.T) {
	mgr, store, _ := newTestManager(t)
	ctx := context.Background()
	ch, _ := store.CreateChannel(ctx, "General", 0)

	if _, err := mgr.ToggleMute(ctx, 7); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for absent user, got %v", err)
	}

	if _, err := mgr.Join(ctx, 7, ch.ID); err != nil {
		t.Fatalf("join: %v", err)
	}
	m, err := mgr.ToggleMute(ctx, 7)
	if err != nil || !m.Muted {
		t.Fatalf("expected muted, got %#v err=%v", m, err)
	}
	m, err = mgr.ToggleDeafen(ctx, 7)
	if err != nil || !m.Deafened || !m.Muted {
		t.Fatalf("deafen must not clear mute: %#v err=%v", m, err)
	}
	m, err = mgr.ToggleMute(ctx, 7)
	if err != nil || m.Muted {
		t.Fatalf("expected unmuted, got %#v err=%v", m, err)
	}
}

func TestForceDisconnectRequiresPermission(t *testing.T) {
	mgr, store, authz := newTestManager(t)
	ctx := context.Background()
	ch, _ := store.CreateChannel(ctx, "General", 0)
	_, _ = mgr.Join(ctx, 5, ch.ID)

	if err := mgr.ForceDisconnect(ctx, 9, 5); !errors.Is(err, access.ErrPermissionDenied) {
		t.Fatalf("expected ErrPermissionDenied, got %v", err)
	}

	authz.allowed[9] = []string{access.PermMoveMembers}
	if err := mgr.ForceDisconnect(ctx, 9, 5); err != nil {
		t.Fatalf("ForceDisconnect: %v", err)
	}
	if _, ok, _ := mgr.MemberOf(ctx, 5); ok {
		t.Fatal("target should have been disconnected")
	}

	// Disconnecting an absent target is a no-op, not an error.
	if err := mgr.ForceDisconnect(ctx, 9, 5); err != nil {
		t.Fatalf("repeat ForceDisconnect: %v", err)
	}
}

func TestForceDisconnectAdministratorOverride(t *testing.T) {
	mgr, store, authz := newTestManager(t)
	ctx := context.Background()
	ch, _ := store.CreateChannel(ctx, "General", 0)
	_, _ = mgr.Join(ctx, 5, ch.ID)

	authz.allowed[1] = []string{access.PermAdministrator}
	if err := mgr.ForceDisconnect(ctx, 1, 5); err != nil {
		t.Fatalf("administrator ForceDisconnect: %v", err)
	}
}

func TestReconcileClearsStaleMembership(t *testing.T) {
	mgr, store, _ := newTestManager(t)
	ctx := context.Background()
	ch, _ := store.CreateChannel(ctx, "General", 1)
	_, _ = mgr.Join(ctx, 7, ch.ID)

	// Client crashed without an explicit Leave; a new session reconciles.
	if err := mgr.Reconcile(ctx, 7); err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	if err := mgr.Reconcile(ctx, 7); err != nil {
		t.Fatalf("Reconcile must be idempotent: %v", err)
	}
	if _, ok, _ := mgr.MemberOf(ctx, 7); ok {
		t.Fatal("stale membership not removed")
	}
	// The vacated slot is usable again.
	if _, err := mgr.Join(ctx, 8, ch.ID); err != nil {
		t.Fatalf("join after reconcile: %v", err)
	}
}

func TestRejoinSameChannelEmitsNothing(t *testing.T) {
	store := NewInMemory()
	events := stream.New()
	mgr, err := NewManager(store, &stubAuthorizer{allowed: map[int64][]string{}}, events)
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sub := events.Subscribe(ctx)
	ch, _ := store.CreateChannel(ctx, "General", 0)

	if _, err := mgr.Join(ctx, 7, ch.ID); err != nil {
		t.Fatalf("join: %v", err)
	}
	if _, err := mgr.Join(ctx, 7, ch.ID); err != nil {
		t.Fatalf("rejoin: %v", err)
	}

	var kinds []stream.Kind
drain:
	for {
		select {
		case evt := <-sub:
			kinds = append(kinds, evt.Kind)
		default:
			break drain
		}
	}
	if len(kinds) != 1 || kinds[0] != stream.VoiceJoined {
		t.Fatalf("rejoin must not re-emit, got %v", kinds)
	}
}

func TestJoinRecordsOperationMetric(t *testing.T) {
	obs.Init()
	mgr, store, _ := newTestManager(t)
	ctx := context.Background()
	ch, _ := store.CreateChannel(ctx, "General", 0)
	if _, err := mgr.Join(ctx, 7, ch.ID); err != nil {
		t.Fatalf("join: %v", err)
	}

	families, err := prometheus.DefaultGatherer.Gather()
	if err != nil {
		t.Fatalf("Gather: %v", err)
	}
	for _, f := range families {
		if f.GetName() != "core_operations_total" {
			continue
		}
		for _, m := range f.GetMetric() {
			var op, outcome string
			for _, l := range m.GetLabel() {
				switch l.GetName() {
				case "op":
					op = l.GetValue()
				case "outcome":
					outcome = l.GetValue()
				}
			}
			if op == "voice.join" && outcome == "ok" && m.GetCounter().GetValue() >= 1 {
				return
			}
		}
	}
	t.Fatal("voice.join not observed in core_operations_total")
}

func TestExclusivityAfterRandomTransitions(t *testing.T) {
	mgr, store, authz := newTestManager(t)
	ctx := context.Background()
	authz.allowed[1] = []string{access.PermMoveMembers}
	var chans []Channel
	for i := 0; i < 3; i++ {
		ch, _ := store.CreateChannel(ctx, "c", 0)
		chans = append(chans, ch)
	}

	for i := 0; i < 100; i++ {
		user := int64(i%5 + 1)
		switch i % 4 {
		case 0, 1:
			_, _ = mgr.Join(ctx, user, chans[i%3].ID)
		case 2:
			_ = mgr.Leave(ctx, user)
		case 3:
			_ = mgr.ForceDisconnect(ctx, 1, user)
		}
	}

	seen := map[int64]int{}
	for _, ch := range chans {
		members, _ := mgr.Members(ctx, ch.ID)
		for _, m := range members {
			seen[m.UserID]++
		}
	}
	for user, n := range seen {
		if n > 1 {
			t.Fatalf("user %d holds %d memberships", user, n)
		}
	}
}

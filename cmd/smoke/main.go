package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"voxhall.org/internal/access"
	"voxhall.org/internal/friends"
	"voxhall.org/internal/invite"
	"voxhall.org/internal/voice"
)

// Drives the core's invariants end to end against the in-memory stores:
// administrator override, default role protection, voice capacity and
// exclusivity, friendship canonicalization, and bounded invite redemption.
func main() {
	log.SetFlags(0)
	ctx := context.Background()

	store := access.NewInMemory()
	registry, err := access.NewRegistry(store, nil)
	if err != nil {
		log.Fatalf("wire registry: %v", err)
	}
	resolver, err := access.NewResolver(store)
	if err != nil {
		log.Fatalf("wire resolver: %v", err)
	}

	adminRole, err := registry.CreateRole(ctx, "admin", "#ff0000", []string{access.PermAdministrator})
	if err != nil {
		log.Fatalf("create admin role: %v", err)
	}
	modRole, err := registry.CreateRole(ctx, "moderator", "#00ff00", []string{
		access.PermManageMessages, access.PermMoveMembers, access.PermCreateInvites,
	})
	if err != nil {
		log.Fatalf("create moderator role: %v", err)
	}
	if err := registry.AssignRole(ctx, 1, adminRole.ID); err != nil {
		log.Fatalf("assign admin: %v", err)
	}
	if err := registry.AssignRole(ctx, 2, modRole.ID); err != nil {
		log.Fatalf("assign moderator: %v", err)
	}

	// Administrator override: the admin passes checks for permissions the
	// role never names.
	if ok, err := resolver.Has(ctx, 1, access.PermBanMembers); err != nil || !ok {
		log.Fatalf("administrator override failed: ok=%v err=%v", ok, err)
	}
	if ok, _ := resolver.Has(ctx, 3, access.PermManageMessages); ok {
		log.Fatalf("user without roles must not hold permissions")
	}

	if err := registry.SetRolePermissions(ctx, modRole.ID, []string{"no_such_permission"}); !errors.Is(err, access.ErrNotFound) {
		log.Fatalf("unknown permission name must be rejected, got %v", err)
	}

	def, err := registry.DefaultRole(ctx)
	if err != nil {
		log.Fatalf("default role: %v", err)
	}
	if err := registry.DeleteRole(ctx, def.ID); !errors.Is(err, access.ErrConflict) {
		log.Fatalf("default role delete must conflict, got %v", err)
	}
	if err := registry.RemoveRole(ctx, 1, def.ID); !errors.Is(err, access.ErrConflict) {
		log.Fatalf("default role removal must conflict, got %v", err)
	}

	manager, err := voice.NewManager(voice.NewInMemory(), resolver, nil)
	if err != nil {
		log.Fatalf("wire voice manager: %v", err)
	}

	// Capacity bound with slot reuse.
	lounge, err := manager.CreateChannel(ctx, 1, "lounge", 2)
	if err != nil {
		log.Fatalf("create channel: %v", err)
	}
	if _, err := manager.Join(ctx, 10, lounge.ID); err != nil {
		log.Fatalf("join A: %v", err)
	}
	if _, err := manager.Join(ctx, 11, lounge.ID); err != nil {
		log.Fatalf("join B: %v", err)
	}
	if _, err := manager.Join(ctx, 12, lounge.ID); !errors.Is(err, voice.ErrChannelFull) {
		log.Fatalf("full channel must reject, got %v", err)
	}
	if err := manager.Leave(ctx, 10); err != nil {
		log.Fatalf("leave A: %v", err)
	}
	if _, err := manager.Join(ctx, 12, lounge.ID); err != nil {
		log.Fatalf("join C after slot freed: %v", err)
	}

	// Move semantics and cross-channel exclusivity.
	stage, err := manager.CreateChannel(ctx, 1, "stage", 0)
	if err != nil {
		log.Fatalf("create channel: %v", err)
	}
	if _, err := manager.Join(ctx, 11, stage.ID); err != nil {
		log.Fatalf("move B: %v", err)
	}
	if m, ok, _ := manager.MemberOf(ctx, 11); !ok || m.ChannelID != stage.ID {
		log.Fatalf("move left user in the wrong channel: %+v ok=%v", m, ok)
	}
	members, err := manager.Members(ctx, lounge.ID)
	if err != nil {
		log.Fatalf("members: %v", err)
	}
	for _, m := range members {
		if m.UserID == 11 {
			log.Fatalf("moved user still present in the old channel")
		}
	}

	// Forced disconnect is privileged.
	if err := manager.ForceDisconnect(ctx, 3, 12); !errors.Is(err, access.ErrPermissionDenied) {
		log.Fatalf("unprivileged force disconnect must be denied, got %v", err)
	}
	if err := manager.ForceDisconnect(ctx, 2, 12); err != nil {
		log.Fatalf("moderator force disconnect: %v", err)
	}
	if _, ok, _ := manager.MemberOf(ctx, 12); ok {
		log.Fatalf("force-disconnected user still has a membership")
	}

	// Concurrent joins never overshoot the bound.
	arena, err := manager.CreateChannel(ctx, 1, "arena", 5)
	if err != nil {
		log.Fatalf("create channel: %v", err)
	}
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(userID int64) {
			defer wg.Done()
			_, _ = manager.Join(ctx, userID, arena.ID)
		}(int64(100 + i))
	}
	wg.Wait()
	if members, _ := manager.Members(ctx, arena.ID); len(members) != 5 {
		log.Fatalf("capacity overshoot: %d members in a 5-slot channel", len(members))
	}

	coordinator, err := friends.NewCoordinator(friends.NewInMemory(), nil)
	if err != nil {
		log.Fatalf("wire coordinator: %v", err)
	}
	req, err := coordinator.SendRequest(ctx, 9, 3)
	if err != nil {
		log.Fatalf("send request: %v", err)
	}
	if _, err := coordinator.SendRequest(ctx, 3, 9); !errors.Is(err, friends.ErrConflict) {
		log.Fatalf("reverse pending must conflict, got %v", err)
	}
	friendship, err := coordinator.AcceptRequest(ctx, req.ID, 3)
	if err != nil {
		log.Fatalf("accept request: %v", err)
	}
	if friendship.User1ID != 3 || friendship.User2ID != 9 {
		log.Fatalf("friendship not canonical: (%d,%d)", friendship.User1ID, friendship.User2ID)
	}
	first, err := coordinator.DMChannels(ctx, 9, 3)
	if err != nil {
		log.Fatalf("dm channels: %v", err)
	}
	second, err := coordinator.DMChannels(ctx, 3, 9)
	if err != nil {
		log.Fatalf("dm channels repeat: %v", err)
	}
	if first.DMChannelID != second.DMChannelID || first.DMVoiceChannelID != second.DMVoiceChannelID {
		log.Fatalf("dm provisioning is not idempotent")
	}

	ledger, err := invite.NewLedger(invite.NewInMemory(), resolver)
	if err != nil {
		log.Fatalf("wire invite ledger: %v", err)
	}
	if _, err := ledger.Issue(ctx, 3, 0, time.Time{}); !errors.Is(err, access.ErrPermissionDenied) {
		log.Fatalf("unprivileged issue must be denied, got %v", err)
	}
	code, err := ledger.Issue(ctx, 2, 1, time.Time{})
	if err != nil {
		log.Fatalf("issue invite: %v", err)
	}
	var (
		redeemMu  sync.Mutex
		successes int
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(userID int64) {
			defer wg.Done()
			if _, err := ledger.Redeem(ctx, code.Code, userID); err == nil {
				redeemMu.Lock()
				successes++
				redeemMu.Unlock()
			}
		}(int64(200 + i))
	}
	wg.Wait()
	if successes != 1 {
		log.Fatalf("bounded redemption violated: %d successes for max_uses=1", successes)
	}

	fmt.Println("✅ core smoke test passed")
}

package registry

import (
	"context"
	"errors"
	"testing"

	"github.com/CrossMart-Network/bridge_layer/internal/app/domain/asset"
	"github.com/CrossMart-Network/bridge_layer/internal/app/domain/bridge"
	"github.com/CrossMart-Network/bridge_layer/internal/app/domain/registry"
	"github.com/CrossMart-Network/bridge_layer/internal/app/events"
	"github.com/CrossMart-Network/bridge_layer/internal/app/storage/memory"
)

func newTestService(t *testing.T) (*Service, *events.RingBuffer) {
	t.Helper()
	store := memory.New()
	audit := events.NewRingBuffer(64)
	svc := New(store, store, store, audit, nil, []string{"bridge-controller"})
	return svc, audit
}

func TestRegisterAssetUniqueness(t *testing.T) {
	svc, audit := newTestService(t)
	ctx := context.Background()
	id := asset.DeriveToken(1, "0xmarket", 7)

	rec, err := svc.RegisterAsset(ctx, id, "0xmarket", "0xremote", 1, 2, 7)
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if !rec.Active || rec.Locked {
		t.Fatalf("expected active unlocked record, got %+v", rec)
	}
	if rec.SyncCount != 0 {
		t.Fatalf("expected zero sync count, got %d", rec.SyncCount)
	}

	if _, err := svc.RegisterAsset(ctx, id, "0xmarket", "0xremote", 1, 2, 7); !errors.Is(err, registry.ErrAssetExists) {
		t.Fatalf("expected ErrAssetExists, got %v", err)
	}

	if got := audit.RecentByType(events.EventAssetRegistered, 10); len(got) != 1 {
		t.Fatalf("expected 1 registered event, got %d", len(got))
	}
}

func TestUpdateSyncIncrementsCount(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	id := asset.DeriveToken(1, "0xmarket", 7)

	if _, err := svc.RegisterAsset(ctx, id, "0xmarket", "0xremote", 1, 2, 7); err != nil {
		t.Fatalf("register: %v", err)
	}

	for i := 1; i <= 3; i++ {
		rec, err := svc.UpdateSync(ctx, id, int64(1000*i), uint64(100+i), 2)
		if err != nil {
			t.Fatalf("sync %d: %v", i, err)
		}
		if rec.SyncCount != uint64(i) {
			t.Fatalf("sync %d: expected count %d, got %d", i, i, rec.SyncCount)
		}
		if rec.LastSyncPrice != int64(1000*i) {
			t.Fatalf("sync %d: expected price %d, got %d", i, 1000*i, rec.LastSyncPrice)
		}
		if !rec.Verified {
			t.Fatalf("sync %d: asset should be verified after a sync", i)
		}
	}

	missing := asset.DeriveToken(1, "0xother", 1)
	if _, err := svc.UpdateSync(ctx, missing, 1, 1, 2); !errors.Is(err, registry.ErrAssetNotFound) {
		t.Fatalf("expected ErrAssetNotFound, got %v", err)
	}
}

func TestLockUnlockAuthorization(t *testing.T) {
	svc, audit := newTestService(t)
	ctx := context.Background()
	id := asset.DeriveToken(1, "0xmarket", 7)

	if _, err := svc.RegisterAsset(ctx, id, "0xmarket", "0xremote", 1, 2, 7); err != nil {
		t.Fatalf("register: %v", err)
	}

	if _, err := svc.LockAsset(ctx, "stranger", id); !errors.Is(err, registry.ErrNotAuthorized) {
		t.Fatalf("expected ErrNotAuthorized, got %v", err)
	}

	rec, err := svc.LockAsset(ctx, "bridge-controller", id)
	if err != nil {
		t.Fatalf("lock: %v", err)
	}
	if !rec.Locked {
		t.Fatal("expected record to be locked")
	}

	if _, err := svc.LockAsset(ctx, "bridge-controller", id); !errors.Is(err, bridge.ErrAssetLocked) {
		t.Fatalf("expected ErrAssetLocked on double lock, got %v", err)
	}

	rec, err = svc.UnlockAsset(ctx, "bridge-controller", id)
	if err != nil {
		t.Fatalf("unlock: %v", err)
	}
	if rec.Locked {
		t.Fatal("expected record to be unlocked")
	}

	// unlocking an unlocked asset is a no-op
	if _, err := svc.UnlockAsset(ctx, "bridge-controller", id); err != nil {
		t.Fatalf("repeat unlock: %v", err)
	}

	if got := audit.RecentByType(events.EventAssetUnlocked, 10); len(got) != 1 {
		t.Fatalf("expected exactly 1 unlock event, got %d", len(got))
	}
}

func TestQueueMessage(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	msg, err := svc.QueueMessage(ctx, bridge.MessageAssetTransfer, 1, 2, "deadbeef")
	if err != nil {
		t.Fatalf("queue: %v", err)
	}
	if msg.ID == "" || msg.Processed {
		t.Fatalf("expected fresh unprocessed message with id, got %+v", msg)
	}

	if _, err := svc.QueueMessage(ctx, bridge.MessageAssetTransfer, 1, 2, "  "); err == nil {
		t.Fatal("expected error for empty hash")
	}
}

func TestChainConfig(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	if svc.SupportedChain(ctx, 2) {
		t.Fatal("unconfigured chain reported supported")
	}

	cfg, err := svc.SetChainConfig(ctx, registry.ChainConfig{Chain: 2, Endpoint: "0xremote-bridge", Confirmations: 12, FeeBps: 30, Active: true})
	if err != nil {
		t.Fatalf("set chain config: %v", err)
	}
	if cfg.UpdatedAt.IsZero() {
		t.Fatal("expected UpdatedAt to be stamped")
	}

	if !svc.SupportedChain(ctx, 2) {
		t.Fatal("configured active chain reported unsupported")
	}

	cfg.Active = false
	if _, err := svc.SetChainConfig(ctx, cfg); err != nil {
		t.Fatalf("deactivate chain: %v", err)
	}
	if svc.SupportedChain(ctx, 2) {
		t.Fatal("deactivated chain reported supported")
	}
}

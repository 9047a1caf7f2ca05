package memory

import (
	"context"
	"errors"
	"testing"

	"github.com/CrossMart-Network/bridge_layer/internal/app/domain/asset"
	"github.com/CrossMart-Network/bridge_layer/internal/app/domain/bridge"
	"github.com/CrossMart-Network/bridge_layer/internal/app/domain/registry"
)

func TestStore_LockLifecycle(t *testing.T) {
	store := New()
	ctx := context.Background()
	id := asset.DeriveToken(1, "0xabc", 7)

	rec, err := store.CreateLock(ctx, registry.LockRecord{
		AssetID:        id,
		OriginContract: "0xabc",
		OriginChain:    1,
		TargetChain:    2,
		TokenOrListing: 7,
		Active:         true,
	})
	if err != nil {
		t.Fatalf("create lock: %v", err)
	}
	if rec.CreatedAt.IsZero() || rec.AssetIDHex != id.Hex() {
		t.Fatalf("record not normalised: %+v", rec)
	}

	if _, err := store.CreateLock(ctx, registry.LockRecord{AssetID: id}); !errors.Is(err, registry.ErrAssetExists) {
		t.Fatalf("duplicate create: got %v, want ErrAssetExists", err)
	}

	rec.Locked = true
	updated, err := store.UpdateLock(ctx, rec)
	if err != nil {
		t.Fatalf("update lock: %v", err)
	}
	if !updated.Locked {
		t.Fatal("locked flag not persisted")
	}
	if !updated.CreatedAt.Equal(rec.CreatedAt) {
		t.Fatal("created_at must be preserved on update")
	}

	missing := asset.DeriveToken(9, "0xmissing", 1)
	if _, err := store.GetLock(ctx, missing); !errors.Is(err, registry.ErrAssetNotFound) {
		t.Fatalf("get missing: got %v, want ErrAssetNotFound", err)
	}
	if _, err := store.UpdateLock(ctx, registry.LockRecord{AssetID: missing}); !errors.Is(err, registry.ErrAssetNotFound) {
		t.Fatalf("update missing: got %v, want ErrAssetNotFound", err)
	}
}

func TestStore_AcquireRelease(t *testing.T) {
	store := New()
	ctx := context.Background()
	id := asset.DeriveToken(1, "0xabc", 7)

	if _, err := store.AcquireLock(ctx, id); !errors.Is(err, registry.ErrAssetNotFound) {
		t.Fatalf("acquire unknown asset: got %v, want ErrAssetNotFound", err)
	}

	if _, err := store.CreateLock(ctx, registry.LockRecord{AssetID: id, Active: true}); err != nil {
		t.Fatalf("create lock: %v", err)
	}

	rec, err := store.AcquireLock(ctx, id)
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	if !rec.Locked {
		t.Fatal("acquire must set locked")
	}
	if _, err := store.AcquireLock(ctx, id); !errors.Is(err, bridge.ErrAssetLocked) {
		t.Fatalf("second acquire: got %v, want ErrAssetLocked", err)
	}

	rec, released, err := store.ReleaseLock(ctx, id)
	if err != nil || !released {
		t.Fatalf("release: released=%v err=%v", released, err)
	}
	if rec.Locked {
		t.Fatal("release must clear locked")
	}
	if _, released, err := store.ReleaseLock(ctx, id); err != nil || released {
		t.Fatalf("release of unlocked asset must be a no-op: released=%v err=%v", released, err)
	}
}

func TestStore_ProcessedSet(t *testing.T) {
	store := New()
	ctx := context.Background()

	ok, err := store.IsProcessed(ctx, "h1")
	if err != nil || ok {
		t.Fatalf("fresh hash should be unprocessed: %v %v", ok, err)
	}
	if err := store.MarkProcessed(ctx, "h1"); err != nil {
		t.Fatalf("mark processed: %v", err)
	}
	ok, err = store.IsProcessed(ctx, "h1")
	if err != nil || !ok {
		t.Fatalf("hash should be processed: %v %v", ok, err)
	}
}

func TestStore_RetryEntries(t *testing.T) {
	store := New()
	ctx := context.Background()

	if _, err := store.GetRetry(ctx, 1, "ep", 5); !errors.Is(err, bridge.ErrRetryNotFound) {
		t.Fatalf("get missing retry: got %v", err)
	}

	entry := registry.RetryEntry{SourceChain: 1, SourceEndpoint: "ep", Sequence: 5, PayloadHash: "h"}
	if err := store.PutRetry(ctx, entry); err != nil {
		t.Fatalf("put retry: %v", err)
	}

	got, err := store.GetRetry(ctx, 1, "ep", 5)
	if err != nil {
		t.Fatalf("get retry: %v", err)
	}
	if got.PayloadHash != "h" || got.FailedAt.IsZero() {
		t.Fatalf("entry not normalised: %+v", got)
	}

	if err := store.DeleteRetry(ctx, 1, "ep", 5); err != nil {
		t.Fatalf("delete retry: %v", err)
	}
	if err := store.DeleteRetry(ctx, 1, "ep", 5); !errors.Is(err, bridge.ErrRetryNotFound) {
		t.Fatalf("second delete: got %v, want ErrRetryNotFound", err)
	}
}

func TestStore_PendingQueue(t *testing.T) {
	store := New()
	ctx := context.Background()

	msg, err := store.AppendPending(ctx, registry.PendingMessage{
		MessageHash: "h1",
		MessageType: bridge.MessageAssetTransfer,
		SourceChain: 1,
		TargetChain: 2,
	})
	if err != nil {
		t.Fatalf("append pending: %v", err)
	}
	if msg.ID == "" || msg.Timestamp.IsZero() {
		t.Fatalf("message not normalised: %+v", msg)
	}

	if err := store.MarkPendingProcessed(ctx, "h1"); err != nil {
		t.Fatalf("mark pending processed: %v", err)
	}
	queue, err := store.ListPending(ctx, 2)
	if err != nil {
		t.Fatalf("list pending: %v", err)
	}
	if len(queue) != 1 || !queue[0].Processed {
		t.Fatalf("queue state wrong: %+v", queue)
	}

	other, err := store.ListPending(ctx, 9)
	if err != nil || len(other) != 0 {
		t.Fatalf("empty queue expected for unknown chain: %v %v", other, err)
	}
}

func TestStore_Requests(t *testing.T) {
	store := New()
	ctx := context.Background()

	if _, err := store.CreateRequest(ctx, bridge.Request{}); err == nil {
		t.Fatal("expected error for empty request id")
	}

	req := bridge.Request{ID: "r1", Owner: "alice", Status: bridge.StatusPending}
	if _, err := store.CreateRequest(ctx, req); err != nil {
		t.Fatalf("create request: %v", err)
	}
	if _, err := store.CreateRequest(ctx, req); err == nil {
		t.Fatal("expected duplicate request error")
	}

	req.Status = bridge.StatusCompleted
	if _, err := store.UpdateRequest(ctx, req); err != nil {
		t.Fatalf("update request: %v", err)
	}

	byOwner, err := store.ListRequestsByOwner(ctx, "alice")
	if err != nil || len(byOwner) != 1 {
		t.Fatalf("list by owner: %v %v", byOwner, err)
	}
	completed, err := store.ListRequestsByStatus(ctx, bridge.StatusCompleted)
	if err != nil || len(completed) != 1 {
		t.Fatalf("list by status: %v %v", completed, err)
	}
}

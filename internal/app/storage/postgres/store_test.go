package postgres

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"testing"
	"time"

	_ "github.com/lib/pq"

	"github.com/CrossMart-Network/bridge_layer/internal/app/domain/asset"
	"github.com/CrossMart-Network/bridge_layer/internal/app/domain/bridge"
	"github.com/CrossMart-Network/bridge_layer/internal/app/domain/registry"
)

func TestStoreIntegration(t *testing.T) {
	dsn := os.Getenv("TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("TEST_POSTGRES_DSN not set; skipping postgres integration test")
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	defer db.Close()

	store := New(db)
	ctx := context.Background()

	id := asset.DeriveToken(1, "0xintegration", uint64(time.Now().UnixNano()))
	rec, err := store.CreateLock(ctx, registry.LockRecord{
		AssetID:        id,
		OriginContract: "0xintegration",
		OriginChain:    1,
		TargetChain:    2,
		Active:         true,
	})
	if err != nil {
		t.Fatalf("create lock: %v", err)
	}
	if _, err := store.CreateLock(ctx, rec); !errors.Is(err, registry.ErrAssetExists) {
		t.Fatalf("duplicate lock: got %v", err)
	}

	rec.Locked = true
	if _, err := store.UpdateLock(ctx, rec); err != nil {
		t.Fatalf("update lock: %v", err)
	}
	got, err := store.GetLock(ctx, id)
	if err != nil || !got.Locked {
		t.Fatalf("get lock: %+v %v", got, err)
	}

	req := bridge.Request{
		ID:             bridge.DeriveRequestID("owner", "0xintegration", "1", 2, time.Now()),
		Owner:          "owner",
		OriginContract: "0xintegration",
		Timestamp:      time.Now().UTC(),
		OriginChain:    1,
		TargetChain:    2,
		Status:         bridge.StatusPending,
		IsToken:        true,
		Identity:       id,
	}
	if _, err := store.CreateRequest(ctx, req); err != nil {
		t.Fatalf("create request: %v", err)
	}
	req.Status = bridge.StatusCompleted
	if _, err := store.UpdateRequest(ctx, req); err != nil {
		t.Fatalf("update request: %v", err)
	}

	entry := registry.RetryEntry{SourceChain: 1, SourceEndpoint: "0xep", Sequence: uint64(time.Now().UnixNano()), PayloadHash: "h"}
	if err := store.PutRetry(ctx, entry); err != nil {
		t.Fatalf("put retry: %v", err)
	}
	if err := store.DeleteRetry(ctx, entry.SourceChain, entry.SourceEndpoint, entry.Sequence); err != nil {
		t.Fatalf("delete retry: %v", err)
	}
}

package storage

import (
	"context"

	"github.com/CrossMart-Network/bridge_layer/internal/app/domain/asset"
	"github.com/CrossMart-Network/bridge_layer/internal/app/domain/bridge"
	"github.com/CrossMart-Network/bridge_layer/internal/app/domain/registry"
)

// LockStore persists the per-asset lock ledger.
type LockStore interface {
	CreateLock(ctx context.Context, rec registry.LockRecord) (registry.LockRecord, error)
	UpdateLock(ctx context.Context, rec registry.LockRecord) (registry.LockRecord, error)
	GetLock(ctx context.Context, id asset.Identity) (registry.LockRecord, error)
	ListLocks(ctx context.Context) ([]registry.LockRecord, error)

	// AcquireLock atomically flips an unlocked record to locked. It
	// fails with bridge.ErrAssetLocked when the record is already
	// locked, so concurrent acquirers see exactly one winner.
	AcquireLock(ctx context.Context, id asset.Identity) (registry.LockRecord, error)
	// ReleaseLock atomically clears the locked flag. Releasing an
	// unlocked record is a no-op; the bool reports whether a lock was
	// actually held.
	ReleaseLock(ctx context.Context, id asset.Identity) (registry.LockRecord, bool, error)
}

// RequestStore persists bridge requests, indexed by request id and owner.
type RequestStore interface {
	CreateRequest(ctx context.Context, req bridge.Request) (bridge.Request, error)
	UpdateRequest(ctx context.Context, req bridge.Request) (bridge.Request, error)
	GetRequest(ctx context.Context, id string) (bridge.Request, error)
	ListRequestsByOwner(ctx context.Context, owner string) ([]bridge.Request, error)
	ListRequestsByStatus(ctx context.Context, status bridge.RequestStatus) ([]bridge.Request, error)
}

// MessageStore persists pending-message queues, the processed set and
// retry commitments.
type MessageStore interface {
	AppendPending(ctx context.Context, msg registry.PendingMessage) (registry.PendingMessage, error)
	MarkPendingProcessed(ctx context.Context, hash string) error
	ListPending(ctx context.Context, target asset.ChainTag) ([]registry.PendingMessage, error)

	MarkProcessed(ctx context.Context, hash string) error
	IsProcessed(ctx context.Context, hash string) (bool, error)

	PutRetry(ctx context.Context, entry registry.RetryEntry) error
	GetRetry(ctx context.Context, chain asset.ChainTag, endpoint string, seq uint64) (registry.RetryEntry, error)
	DeleteRetry(ctx context.Context, chain asset.ChainTag, endpoint string, seq uint64) error
	ListRetries(ctx context.Context) ([]registry.RetryEntry, error)
}

// ChainStore persists per-chain administrative configuration.
type ChainStore interface {
	UpsertChain(ctx context.Context, cfg registry.ChainConfig) (registry.ChainConfig, error)
	GetChain(ctx context.Context, chain asset.ChainTag) (registry.ChainConfig, error)
	ListChains(ctx context.Context) ([]registry.ChainConfig, error)
}

// Package registry implements the cross-chain bookkeeping primitives:
// asset registration, sync updates, message queueing and the lock
// ledger's guarded transitions.
package registry

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/CrossMart-Network/bridge_layer/internal/app/domain/asset"
	"github.com/CrossMart-Network/bridge_layer/internal/app/domain/bridge"
	"github.com/CrossMart-Network/bridge_layer/internal/app/domain/registry"
	"github.com/CrossMart-Network/bridge_layer/internal/app/events"
	"github.com/CrossMart-Network/bridge_layer/internal/app/storage"
	"github.com/CrossMart-Network/bridge_layer/pkg/logger"
)

// Service exposes registry operations over the lock, message and chain
// stores. Lock and unlock are restricted to the configured caller set;
// everything else is open to the owning process.
type Service struct {
	locks    storage.LockStore
	messages storage.MessageStore
	chains   storage.ChainStore
	audit    events.Logger
	log      *logger.Logger

	authorized map[string]struct{}
}

// New constructs a registry service. callers is the set of identities
// permitted to drive lock transitions.
func New(locks storage.LockStore, messages storage.MessageStore, chains storage.ChainStore, audit events.Logger, log *logger.Logger, callers []string) *Service {
	if log == nil {
		log = logger.NewDefault("registry")
	}
	if audit == nil {
		audit = events.NoOpLogger{}
	}
	auth := make(map[string]struct{}, len(callers))
	for _, c := range callers {
		c = strings.TrimSpace(c)
		if c != "" {
			auth[c] = struct{}{}
		}
	}
	return &Service{
		locks:      locks,
		messages:   messages,
		chains:     chains,
		audit:      audit,
		log:        log,
		authorized: auth,
	}
}

// Authorized reports whether caller may drive lock transitions.
func (s *Service) Authorized(caller string) bool {
	_, ok := s.authorized[caller]
	return ok
}

// RegisterAsset creates the lock record for a previously unknown asset.
// The record starts active and unlocked with zeroed sync state.
func (s *Service) RegisterAsset(ctx context.Context, id asset.Identity, originContract, targetContract string, originChain, targetChain asset.ChainTag, tokenOrListing uint64) (registry.LockRecord, error) {
	originContract = strings.TrimSpace(originContract)
	targetContract = strings.TrimSpace(targetContract)
	if originContract == "" {
		return registry.LockRecord{}, fmt.Errorf("origin contract is required")
	}

	now := time.Now().UTC()
	rec := registry.LockRecord{
		AssetID:        id,
		AssetIDHex:     id.Hex(),
		OriginContract: originContract,
		TargetContract: targetContract,
		OriginChain:    originChain,
		TargetChain:    targetChain,
		TokenOrListing: tokenOrListing,
		Active:         true,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	created, err := s.locks.CreateLock(ctx, rec)
	if err != nil {
		return registry.LockRecord{}, err
	}

	s.audit.Log(events.Event{
		Type:        events.EventAssetRegistered,
		AssetID:     created.AssetIDHex,
		SourceChain: chainLabel(originChain),
		TargetChain: chainLabel(targetChain),
		Message:     fmt.Sprintf("asset registered from contract %s", originContract),
	})
	s.log.WithField("asset", created.AssetIDHex).Info("asset registered")
	return created, nil
}

// UpdateSync records a price synchronization for a registered asset.
// SyncCount increments by exactly one per call.
func (s *Service) UpdateSync(ctx context.Context, id asset.Identity, newPrice int64, newBlock uint64, targetChain asset.ChainTag) (registry.LockRecord, error) {
	rec, err := s.locks.GetLock(ctx, id)
	if err != nil {
		return registry.LockRecord{}, err
	}

	rec.LastSyncPrice = newPrice
	rec.LastSyncBlock = newBlock
	rec.SyncCount++
	// The first successful sync proves the counterpart chain knows
	// this asset, so it flips verified and the flag never clears.
	rec.Verified = true
	rec.TargetChain = targetChain
	rec.UpdatedAt = time.Now().UTC()

	updated, err := s.locks.UpdateLock(ctx, rec)
	if err != nil {
		return registry.LockRecord{}, err
	}

	s.audit.Log(events.Event{
		Type:        events.EventAssetSynced,
		AssetID:     updated.AssetIDHex,
		TargetChain: chainLabel(targetChain),
		Message:     fmt.Sprintf("sync %d: price=%d block=%d", updated.SyncCount, newPrice, newBlock),
	})
	return updated, nil
}

// QueueMessage appends a pending message to the destination chain's
// queue and returns the stored entry with its hash.
func (s *Service) QueueMessage(ctx context.Context, msgType bridge.MessageType, sourceChain, targetChain asset.ChainTag, payloadHash string) (registry.PendingMessage, error) {
	payloadHash = strings.TrimSpace(payloadHash)
	if payloadHash == "" {
		return registry.PendingMessage{}, fmt.Errorf("payload hash is required")
	}

	msg := registry.PendingMessage{
		ID:          uuid.NewString(),
		MessageHash: payloadHash,
		Timestamp:   time.Now().UTC(),
		MessageType: msgType,
		SourceChain: sourceChain,
		TargetChain: targetChain,
	}
	stored, err := s.messages.AppendPending(ctx, msg)
	if err != nil {
		return registry.PendingMessage{}, err
	}

	s.audit.Log(events.Event{
		Type:        events.EventMessageQueued,
		MessageHash: stored.MessageHash,
		SourceChain: chainLabel(sourceChain),
		TargetChain: chainLabel(targetChain),
		Message:     fmt.Sprintf("queued %s message", msgType),
	})
	return stored, nil
}

// LockAsset marks an asset as held by the bridge. It fails when the
// caller is not authorized, the asset is unknown, or a lock is already
// outstanding.
func (s *Service) LockAsset(ctx context.Context, caller string, id asset.Identity) (registry.LockRecord, error) {
	if !s.Authorized(caller) {
		return registry.LockRecord{}, registry.ErrNotAuthorized
	}

	updated, err := s.locks.AcquireLock(ctx, id)
	if err != nil {
		return registry.LockRecord{}, err
	}

	s.audit.Log(events.Event{
		Type:    events.EventAssetLocked,
		AssetID: updated.AssetIDHex,
		Message: "asset locked by " + caller,
	})
	return updated, nil
}

// UnlockAsset releases a lock. Unlocking an asset that is not locked is
// a no-op, so delivery replays cannot fail here.
func (s *Service) UnlockAsset(ctx context.Context, caller string, id asset.Identity) (registry.LockRecord, error) {
	if !s.Authorized(caller) {
		return registry.LockRecord{}, registry.ErrNotAuthorized
	}

	updated, released, err := s.locks.ReleaseLock(ctx, id)
	if err != nil {
		return registry.LockRecord{}, err
	}
	if !released {
		return updated, nil
	}

	s.audit.Log(events.Event{
		Type:    events.EventAssetUnlocked,
		AssetID: updated.AssetIDHex,
		Message: "asset unlocked by " + caller,
	})
	return updated, nil
}

// GetAsset returns the lock record for an identity.
func (s *Service) GetAsset(ctx context.Context, id asset.Identity) (registry.LockRecord, error) {
	return s.locks.GetLock(ctx, id)
}

// ListAssets returns every lock record.
func (s *Service) ListAssets(ctx context.Context) ([]registry.LockRecord, error) {
	return s.locks.ListLocks(ctx)
}

// SetChainConfig upserts the configuration for one chain.
func (s *Service) SetChainConfig(ctx context.Context, cfg registry.ChainConfig) (registry.ChainConfig, error) {
	if strings.TrimSpace(cfg.Endpoint) == "" {
		return registry.ChainConfig{}, fmt.Errorf("endpoint is required")
	}
	cfg.UpdatedAt = time.Now().UTC()

	stored, err := s.chains.UpsertChain(ctx, cfg)
	if err != nil {
		return registry.ChainConfig{}, err
	}

	s.audit.Log(events.Event{
		Type:        events.EventChainConfigured,
		TargetChain: chainLabel(cfg.Chain),
		Message:     fmt.Sprintf("chain %d configured: endpoint=%s active=%t", cfg.Chain, cfg.Endpoint, cfg.Active),
	})
	return stored, nil
}

// ChainConfig returns the configuration for one chain.
func (s *Service) ChainConfig(ctx context.Context, chain asset.ChainTag) (registry.ChainConfig, error) {
	return s.chains.GetChain(ctx, chain)
}

// ListChains returns every configured chain.
func (s *Service) ListChains(ctx context.Context) ([]registry.ChainConfig, error) {
	return s.chains.ListChains(ctx)
}

// SupportedChain reports whether a chain is configured and active.
func (s *Service) SupportedChain(ctx context.Context, chain asset.ChainTag) bool {
	cfg, err := s.chains.GetChain(ctx, chain)
	if err != nil {
		return false
	}
	return cfg.Active
}

func chainLabel(tag asset.ChainTag) string {
	return strconv.FormatUint(uint64(tag), 10)
}

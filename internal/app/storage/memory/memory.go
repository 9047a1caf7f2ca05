package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/CrossMart-Network/bridge_layer/internal/app/domain/asset"
	"github.com/CrossMart-Network/bridge_layer/internal/app/domain/bridge"
	"github.com/CrossMart-Network/bridge_layer/internal/app/domain/registry"
	"github.com/CrossMart-Network/bridge_layer/internal/app/storage"
)

// Store is an in-memory implementation of the storage interfaces. It is safe
// for concurrent use and is primarily intended for tests and local development.
type Store struct {
	mu       sync.RWMutex
	locks    map[asset.Identity]registry.LockRecord
	requests map[string]bridge.Request
	pending  map[asset.ChainTag][]registry.PendingMessage
	done     map[string]struct{}
	retries  map[retryKey]registry.RetryEntry
	chains   map[asset.ChainTag]registry.ChainConfig
}

type retryKey struct {
	chain    asset.ChainTag
	endpoint string
	seq      uint64
}

var _ storage.LockStore = (*Store)(nil)
var _ storage.RequestStore = (*Store)(nil)
var _ storage.MessageStore = (*Store)(nil)
var _ storage.ChainStore = (*Store)(nil)

// New creates an empty in-memory store.
func New() *Store {
	return &Store{
		locks:    make(map[asset.Identity]registry.LockRecord),
		requests: make(map[string]bridge.Request),
		pending:  make(map[asset.ChainTag][]registry.PendingMessage),
		done:     make(map[string]struct{}),
		retries:  make(map[retryKey]registry.RetryEntry),
		chains:   make(map[asset.ChainTag]registry.ChainConfig),
	}
}

// LockStore implementation ----------------------------------------------------

func (s *Store) CreateLock(_ context.Context, rec registry.LockRecord) (registry.LockRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.locks[rec.AssetID]; exists {
		return registry.LockRecord{}, registry.ErrAssetExists
	}

	now := time.Now().UTC()
	rec.AssetIDHex = rec.AssetID.Hex()
	rec.CreatedAt = now
	rec.UpdatedAt = now

	s.locks[rec.AssetID] = rec
	return rec, nil
}

func (s *Store) UpdateLock(_ context.Context, rec registry.LockRecord) (registry.LockRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	original, ok := s.locks[rec.AssetID]
	if !ok {
		return registry.LockRecord{}, registry.ErrAssetNotFound
	}

	rec.AssetIDHex = rec.AssetID.Hex()
	rec.CreatedAt = original.CreatedAt
	rec.UpdatedAt = time.Now().UTC()

	s.locks[rec.AssetID] = rec
	return rec, nil
}

func (s *Store) AcquireLock(_ context.Context, id asset.Identity) (registry.LockRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.locks[id]
	if !ok {
		return registry.LockRecord{}, registry.ErrAssetNotFound
	}
	if rec.Locked {
		return registry.LockRecord{}, bridge.ErrAssetLocked
	}

	rec.Locked = true
	rec.UpdatedAt = time.Now().UTC()
	s.locks[id] = rec
	return rec, nil
}

func (s *Store) ReleaseLock(_ context.Context, id asset.Identity) (registry.LockRecord, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.locks[id]
	if !ok {
		return registry.LockRecord{}, false, registry.ErrAssetNotFound
	}
	if !rec.Locked {
		return rec, false, nil
	}

	rec.Locked = false
	rec.UpdatedAt = time.Now().UTC()
	s.locks[id] = rec
	return rec, true, nil
}

func (s *Store) GetLock(_ context.Context, id asset.Identity) (registry.LockRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.locks[id]
	if !ok {
		return registry.LockRecord{}, registry.ErrAssetNotFound
	}
	return rec, nil
}

func (s *Store) ListLocks(_ context.Context) ([]registry.LockRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]registry.LockRecord, 0, len(s.locks))
	for _, rec := range s.locks {
		result = append(result, rec)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].AssetIDHex < result[j].AssetIDHex })
	return result, nil
}

// RequestStore implementation -------------------------------------------------

func (s *Store) CreateRequest(_ context.Context, req bridge.Request) (bridge.Request, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if req.ID == "" {
		return bridge.Request{}, fmt.Errorf("request id required")
	}
	if _, exists := s.requests[req.ID]; exists {
		return bridge.Request{}, fmt.Errorf("request %s already exists", req.ID)
	}

	req.IdentityHex = req.Identity.Hex()
	s.requests[req.ID] = req
	return req, nil
}

func (s *Store) UpdateRequest(_ context.Context, req bridge.Request) (bridge.Request, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	original, ok := s.requests[req.ID]
	if !ok {
		return bridge.Request{}, fmt.Errorf("request %s not found", req.ID)
	}

	req.Timestamp = original.Timestamp
	req.IdentityHex = req.Identity.Hex()
	s.requests[req.ID] = req
	return req, nil
}

func (s *Store) GetRequest(_ context.Context, id string) (bridge.Request, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	req, ok := s.requests[id]
	if !ok {
		return bridge.Request{}, fmt.Errorf("request %s not found", id)
	}
	return req, nil
}

func (s *Store) ListRequestsByOwner(_ context.Context, owner string) ([]bridge.Request, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]bridge.Request, 0)
	for _, req := range s.requests {
		if owner == "" || req.Owner == owner {
			result = append(result, req)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Timestamp.Before(result[j].Timestamp) })
	return result, nil
}

func (s *Store) ListRequestsByStatus(_ context.Context, status bridge.RequestStatus) ([]bridge.Request, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]bridge.Request, 0)
	for _, req := range s.requests {
		if req.Status == status {
			result = append(result, req)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Timestamp.Before(result[j].Timestamp) })
	return result, nil
}

// MessageStore implementation -------------------------------------------------

func (s *Store) AppendPending(_ context.Context, msg registry.PendingMessage) (registry.PendingMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now().UTC()
	}

	s.pending[msg.TargetChain] = append(s.pending[msg.TargetChain], msg)
	return msg, nil
}

func (s *Store) MarkPendingProcessed(_ context.Context, hash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for chain, queue := range s.pending {
		for i := range queue {
			if queue[i].MessageHash == hash && !queue[i].Processed {
				queue[i].Processed = true
				s.pending[chain] = queue
			}
		}
	}
	return nil
}

func (s *Store) ListPending(_ context.Context, target asset.ChainTag) ([]registry.PendingMessage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	queue := s.pending[target]
	result := make([]registry.PendingMessage, len(queue))
	copy(result, queue)
	return result, nil
}

func (s *Store) MarkProcessed(_ context.Context, hash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.done[hash] = struct{}{}
	return nil
}

func (s *Store) IsProcessed(_ context.Context, hash string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.done[hash]
	return ok, nil
}

func (s *Store) PutRetry(_ context.Context, entry registry.RetryEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if entry.FailedAt.IsZero() {
		entry.FailedAt = time.Now().UTC()
	}
	s.retries[retryKey{entry.SourceChain, entry.SourceEndpoint, entry.Sequence}] = entry
	return nil
}

func (s *Store) GetRetry(_ context.Context, chain asset.ChainTag, endpoint string, seq uint64) (registry.RetryEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entry, ok := s.retries[retryKey{chain, endpoint, seq}]
	if !ok {
		return registry.RetryEntry{}, bridge.ErrRetryNotFound
	}
	return entry, nil
}

func (s *Store) DeleteRetry(_ context.Context, chain asset.ChainTag, endpoint string, seq uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := retryKey{chain, endpoint, seq}
	if _, ok := s.retries[key]; !ok {
		return bridge.ErrRetryNotFound
	}
	delete(s.retries, key)
	return nil
}

func (s *Store) ListRetries(_ context.Context) ([]registry.RetryEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]registry.RetryEntry, 0, len(s.retries))
	for _, entry := range s.retries {
		result = append(result, entry)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].FailedAt.Before(result[j].FailedAt) })
	return result, nil
}

// ChainStore implementation ---------------------------------------------------

func (s *Store) UpsertChain(_ context.Context, cfg registry.ChainConfig) (registry.ChainConfig, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cfg.UpdatedAt = time.Now().UTC()
	s.chains[cfg.Chain] = cfg
	return cfg, nil
}

func (s *Store) GetChain(_ context.Context, chain asset.ChainTag) (registry.ChainConfig, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cfg, ok := s.chains[chain]
	if !ok {
		return registry.ChainConfig{}, registry.ErrChainNotSupported
	}
	return cfg, nil
}

func (s *Store) ListChains(_ context.Context) ([]registry.ChainConfig, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]registry.ChainConfig, 0, len(s.chains))
	for _, cfg := range s.chains {
		result = append(result, cfg)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Chain < result[j].Chain })
	return result, nil
}

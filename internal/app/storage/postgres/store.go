package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/CrossMart-Network/bridge_layer/internal/app/domain/asset"
	"github.com/CrossMart-Network/bridge_layer/internal/app/domain/bridge"
	"github.com/CrossMart-Network/bridge_layer/internal/app/domain/registry"
	"github.com/CrossMart-Network/bridge_layer/internal/app/storage"
)

// Store implements the storage interfaces backed by PostgreSQL.
type Store struct {
	db *sql.DB
}

var _ storage.LockStore = (*Store)(nil)
var _ storage.RequestStore = (*Store)(nil)
var _ storage.MessageStore = (*Store)(nil)
var _ storage.ChainStore = (*Store)(nil)

// New creates a Store using the provided database handle.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// --- LockStore --------------------------------------------------------------

func (s *Store) CreateLock(ctx context.Context, rec registry.LockRecord) (registry.LockRecord, error) {
	now := time.Now().UTC()
	rec.AssetIDHex = rec.AssetID.Hex()
	rec.CreatedAt = now
	rec.UpdatedAt = now

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO bridge_locks (asset_id, origin_contract, target_contract, last_sync_price, last_sync_block, sync_count, active, verified, locked, origin_chain, target_chain, token_or_listing, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`, rec.AssetIDHex, rec.OriginContract, rec.TargetContract, rec.LastSyncPrice, rec.LastSyncBlock, rec.SyncCount, rec.Active, rec.Verified, rec.Locked, rec.OriginChain, rec.TargetChain, rec.TokenOrListing, rec.CreatedAt, rec.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return registry.LockRecord{}, registry.ErrAssetExists
		}
		return registry.LockRecord{}, err
	}
	return rec, nil
}

func (s *Store) UpdateLock(ctx context.Context, rec registry.LockRecord) (registry.LockRecord, error) {
	rec.AssetIDHex = rec.AssetID.Hex()
	rec.UpdatedAt = time.Now().UTC()

	result, err := s.db.ExecContext(ctx, `
		UPDATE bridge_locks
		SET target_contract = $2, last_sync_price = $3, last_sync_block = $4, sync_count = $5, active = $6, verified = $7, locked = $8, target_chain = $9, updated_at = $10
		WHERE asset_id = $1
	`, rec.AssetIDHex, rec.TargetContract, rec.LastSyncPrice, rec.LastSyncBlock, rec.SyncCount, rec.Active, rec.Verified, rec.Locked, rec.TargetChain, rec.UpdatedAt)
	if err != nil {
		return registry.LockRecord{}, err
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return registry.LockRecord{}, registry.ErrAssetNotFound
	}
	return rec, nil
}

func (s *Store) AcquireLock(ctx context.Context, id asset.Identity) (registry.LockRecord, error) {
	result, err := s.db.ExecContext(ctx, `
		UPDATE bridge_locks
		SET locked = TRUE, updated_at = $2
		WHERE asset_id = $1 AND locked = FALSE
	`, id.Hex(), time.Now().UTC())
	if err != nil {
		return registry.LockRecord{}, err
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		// distinguish missing record from lost race
		rec, err := s.GetLock(ctx, id)
		if err != nil {
			return registry.LockRecord{}, err
		}
		if rec.Locked {
			return registry.LockRecord{}, bridge.ErrAssetLocked
		}
		return registry.LockRecord{}, registry.ErrAssetNotFound
	}
	return s.GetLock(ctx, id)
}

func (s *Store) ReleaseLock(ctx context.Context, id asset.Identity) (registry.LockRecord, bool, error) {
	result, err := s.db.ExecContext(ctx, `
		UPDATE bridge_locks
		SET locked = FALSE, updated_at = $2
		WHERE asset_id = $1 AND locked = TRUE
	`, id.Hex(), time.Now().UTC())
	if err != nil {
		return registry.LockRecord{}, false, err
	}
	released := false
	if rows, _ := result.RowsAffected(); rows > 0 {
		released = true
	}
	rec, err := s.GetLock(ctx, id)
	if err != nil {
		return registry.LockRecord{}, false, err
	}
	return rec, released, nil
}

func (s *Store) GetLock(ctx context.Context, id asset.Identity) (registry.LockRecord, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT asset_id, origin_contract, target_contract, last_sync_price, last_sync_block, sync_count, active, verified, locked, origin_chain, target_chain, token_or_listing, created_at, updated_at
		FROM bridge_locks
		WHERE asset_id = $1
	`, id.Hex())

	rec, err := scanLock(row)
	if errors.Is(err, sql.ErrNoRows) {
		return registry.LockRecord{}, registry.ErrAssetNotFound
	}
	return rec, err
}

func (s *Store) ListLocks(ctx context.Context) ([]registry.LockRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT asset_id, origin_contract, target_contract, last_sync_price, last_sync_block, sync_count, active, verified, locked, origin_chain, target_chain, token_or_listing, created_at, updated_at
		FROM bridge_locks
		ORDER BY created_at
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []registry.LockRecord
	for rows.Next() {
		rec, err := scanLock(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, rec)
	}
	return result, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanLock(sc scanner) (registry.LockRecord, error) {
	var rec registry.LockRecord
	if err := sc.Scan(&rec.AssetIDHex, &rec.OriginContract, &rec.TargetContract, &rec.LastSyncPrice, &rec.LastSyncBlock, &rec.SyncCount, &rec.Active, &rec.Verified, &rec.Locked, &rec.OriginChain, &rec.TargetChain, &rec.TokenOrListing, &rec.CreatedAt, &rec.UpdatedAt); err != nil {
		return registry.LockRecord{}, err
	}
	id, err := asset.ParseIdentity(rec.AssetIDHex)
	if err != nil {
		return registry.LockRecord{}, err
	}
	rec.AssetID = id
	return rec, nil
}

// --- RequestStore -----------------------------------------------------------

func (s *Store) CreateRequest(ctx context.Context, req bridge.Request) (bridge.Request, error) {
	req.IdentityHex = req.Identity.Hex()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO bridge_requests (id, owner, origin_contract, target_contract, token_or_listing, fee, ts, origin_chain, target_chain, status, is_token, asset_kind, asset_id, identity)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`, req.ID, req.Owner, req.OriginContract, req.TargetContract, req.TokenOrListing, req.Fee, req.Timestamp, req.OriginChain, req.TargetChain, req.Status, req.IsToken, req.AssetKind, req.AssetID, req.IdentityHex)
	if err != nil {
		return bridge.Request{}, err
	}
	return req, nil
}

func (s *Store) UpdateRequest(ctx context.Context, req bridge.Request) (bridge.Request, error) {
	result, err := s.db.ExecContext(ctx, `
		UPDATE bridge_requests
		SET status = $2, fee = $3
		WHERE id = $1
	`, req.ID, req.Status, req.Fee)
	if err != nil {
		return bridge.Request{}, err
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return bridge.Request{}, sql.ErrNoRows
	}
	return s.GetRequest(ctx, req.ID)
}

func (s *Store) GetRequest(ctx context.Context, id string) (bridge.Request, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, owner, origin_contract, target_contract, token_or_listing, fee, ts, origin_chain, target_chain, status, is_token, asset_kind, asset_id, identity
		FROM bridge_requests
		WHERE id = $1
	`, id)
	return scanRequest(row)
}

func (s *Store) ListRequestsByOwner(ctx context.Context, owner string) ([]bridge.Request, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, owner, origin_contract, target_contract, token_or_listing, fee, ts, origin_chain, target_chain, status, is_token, asset_kind, asset_id, identity
		FROM bridge_requests
		WHERE $1 = '' OR owner = $1
		ORDER BY ts
	`, owner)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectRequests(rows)
}

func (s *Store) ListRequestsByStatus(ctx context.Context, status bridge.RequestStatus) ([]bridge.Request, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, owner, origin_contract, target_contract, token_or_listing, fee, ts, origin_chain, target_chain, status, is_token, asset_kind, asset_id, identity
		FROM bridge_requests
		WHERE status = $1
		ORDER BY ts
	`, status)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectRequests(rows)
}

func scanRequest(sc scanner) (bridge.Request, error) {
	var req bridge.Request
	if err := sc.Scan(&req.ID, &req.Owner, &req.OriginContract, &req.TargetContract, &req.TokenOrListing, &req.Fee, &req.Timestamp, &req.OriginChain, &req.TargetChain, &req.Status, &req.IsToken, &req.AssetKind, &req.AssetID, &req.IdentityHex); err != nil {
		return bridge.Request{}, err
	}
	id, err := asset.ParseIdentity(req.IdentityHex)
	if err != nil {
		return bridge.Request{}, err
	}
	req.Identity = id
	return req, nil
}

func collectRequests(rows *sql.Rows) ([]bridge.Request, error) {
	var result []bridge.Request
	for rows.Next() {
		req, err := scanRequest(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, req)
	}
	return result, rows.Err()
}

// --- MessageStore -----------------------------------------------------------

func (s *Store) AppendPending(ctx context.Context, msg registry.PendingMessage) (registry.PendingMessage, error) {
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO bridge_pending_messages (id, message_hash, ts, retry_count, message_type, source_chain, target_chain, processed)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, msg.ID, msg.MessageHash, msg.Timestamp, msg.RetryCount, msg.MessageType, msg.SourceChain, msg.TargetChain, msg.Processed)
	if err != nil {
		return registry.PendingMessage{}, err
	}
	return msg, nil
}

func (s *Store) MarkPendingProcessed(ctx context.Context, hash string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE bridge_pending_messages SET processed = TRUE WHERE message_hash = $1 AND processed = FALSE
	`, hash)
	return err
}

func (s *Store) ListPending(ctx context.Context, target asset.ChainTag) ([]registry.PendingMessage, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, message_hash, ts, retry_count, message_type, source_chain, target_chain, processed
		FROM bridge_pending_messages
		WHERE target_chain = $1
		ORDER BY ts
	`, target)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []registry.PendingMessage
	for rows.Next() {
		var msg registry.PendingMessage
		if err := rows.Scan(&msg.ID, &msg.MessageHash, &msg.Timestamp, &msg.RetryCount, &msg.MessageType, &msg.SourceChain, &msg.TargetChain, &msg.Processed); err != nil {
			return nil, err
		}
		result = append(result, msg)
	}
	return result, rows.Err()
}

func (s *Store) MarkProcessed(ctx context.Context, hash string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO bridge_processed (message_hash, processed_at)
		VALUES ($1, $2)
		ON CONFLICT (message_hash) DO NOTHING
	`, hash, time.Now().UTC())
	return err
}

func (s *Store) IsProcessed(ctx context.Context, hash string) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx, `
		SELECT EXISTS (SELECT 1 FROM bridge_processed WHERE message_hash = $1)
	`, hash).Scan(&exists)
	return exists, err
}

func (s *Store) PutRetry(ctx context.Context, entry registry.RetryEntry) error {
	if entry.FailedAt.IsZero() {
		entry.FailedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO bridge_retries (source_chain, source_endpoint, sequence, payload_hash, failed_at, attempts)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (source_chain, source_endpoint, sequence)
		DO UPDATE SET payload_hash = EXCLUDED.payload_hash, failed_at = EXCLUDED.failed_at, attempts = EXCLUDED.attempts
	`, entry.SourceChain, entry.SourceEndpoint, entry.Sequence, entry.PayloadHash, entry.FailedAt, entry.Attempts)
	return err
}

func (s *Store) GetRetry(ctx context.Context, chain asset.ChainTag, endpoint string, seq uint64) (registry.RetryEntry, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT source_chain, source_endpoint, sequence, payload_hash, failed_at, attempts
		FROM bridge_retries
		WHERE source_chain = $1 AND source_endpoint = $2 AND sequence = $3
	`, chain, endpoint, seq)

	var entry registry.RetryEntry
	if err := row.Scan(&entry.SourceChain, &entry.SourceEndpoint, &entry.Sequence, &entry.PayloadHash, &entry.FailedAt, &entry.Attempts); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return registry.RetryEntry{}, bridge.ErrRetryNotFound
		}
		return registry.RetryEntry{}, err
	}
	return entry, nil
}

func (s *Store) DeleteRetry(ctx context.Context, chain asset.ChainTag, endpoint string, seq uint64) error {
	result, err := s.db.ExecContext(ctx, `
		DELETE FROM bridge_retries
		WHERE source_chain = $1 AND source_endpoint = $2 AND sequence = $3
	`, chain, endpoint, seq)
	if err != nil {
		return err
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return bridge.ErrRetryNotFound
	}
	return nil
}

func (s *Store) ListRetries(ctx context.Context) ([]registry.RetryEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT source_chain, source_endpoint, sequence, payload_hash, failed_at, attempts
		FROM bridge_retries
		ORDER BY failed_at
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []registry.RetryEntry
	for rows.Next() {
		var entry registry.RetryEntry
		if err := rows.Scan(&entry.SourceChain, &entry.SourceEndpoint, &entry.Sequence, &entry.PayloadHash, &entry.FailedAt, &entry.Attempts); err != nil {
			return nil, err
		}
		result = append(result, entry)
	}
	return result, rows.Err()
}

// --- ChainStore -------------------------------------------------------------

func (s *Store) UpsertChain(ctx context.Context, cfg registry.ChainConfig) (registry.ChainConfig, error) {
	cfg.UpdatedAt = time.Now().UTC()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO bridge_chains (chain, endpoint, confirmations, fee_bps, active, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (chain)
		DO UPDATE SET endpoint = EXCLUDED.endpoint, confirmations = EXCLUDED.confirmations, fee_bps = EXCLUDED.fee_bps, active = EXCLUDED.active, updated_at = EXCLUDED.updated_at
	`, cfg.Chain, cfg.Endpoint, cfg.Confirmations, cfg.FeeBps, cfg.Active, cfg.UpdatedAt)
	if err != nil {
		return registry.ChainConfig{}, err
	}
	return cfg, nil
}

func (s *Store) GetChain(ctx context.Context, chain asset.ChainTag) (registry.ChainConfig, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT chain, endpoint, confirmations, fee_bps, active, updated_at
		FROM bridge_chains
		WHERE chain = $1
	`, chain)

	var cfg registry.ChainConfig
	if err := row.Scan(&cfg.Chain, &cfg.Endpoint, &cfg.Confirmations, &cfg.FeeBps, &cfg.Active, &cfg.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return registry.ChainConfig{}, registry.ErrChainNotSupported
		}
		return registry.ChainConfig{}, err
	}
	return cfg, nil
}

func (s *Store) ListChains(ctx context.Context) ([]registry.ChainConfig, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT chain, endpoint, confirmations, fee_bps, active, updated_at
		FROM bridge_chains
		ORDER BY chain
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []registry.ChainConfig
	for rows.Next() {
		var cfg registry.ChainConfig
		if err := rows.Scan(&cfg.Chain, &cfg.Endpoint, &cfg.Confirmations, &cfg.FeeBps, &cfg.Active, &cfg.UpdatedAt); err != nil {
			return nil, err
		}
		result = append(result, cfg)
	}
	return result, rows.Err()
}

// isUniqueViolation reports whether err is a postgres unique_violation.
func isUniqueViolation(err error) bool {
	type coder interface{ SQLState() string }
	var c coder
	if errors.As(err, &c) {
		return c.SQLState() == "23505"
	}
	return false
}

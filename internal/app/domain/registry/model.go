// Package registry defines the cross-chain bookkeeping records: the
// per-asset lock ledger, pending-message queues and chain configuration.
package registry

import (
	"errors"
	"time"

	"github.com/CrossMart-Network/bridge_layer/internal/app/domain/asset"
	"github.com/CrossMart-Network/bridge_layer/internal/app/domain/bridge"
)

// LockRecord tracks one asset's cross-chain state. locked=true means the
// asset is held by the bridge and unusable by its nominal owner on the
// origin chain; at most one outstanding lock exists per identity.
type LockRecord struct {
	AssetID        asset.Identity `json:"-"`
	AssetIDHex     string         `json:"asset_id"`
	OriginContract string         `json:"origin_contract"`
	TargetContract string         `json:"target_contract"`
	LastSyncPrice  int64          `json:"last_sync_price"`
	LastSyncBlock  uint64         `json:"last_sync_block"`
	SyncCount      uint64         `json:"sync_count"`
	Active         bool           `json:"active"`
	Verified       bool           `json:"verified"`
	Locked         bool           `json:"locked"`
	OriginChain    asset.ChainTag `json:"origin_chain"`
	TargetChain    asset.ChainTag `json:"target_chain"`
	TokenOrListing uint64         `json:"token_or_listing"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
}

// PendingMessage is a bookkeeping entry appended to a destination
// chain's queue. processed is monotonic false -> true.
type PendingMessage struct {
	ID          string             `json:"id"`
	MessageHash string             `json:"message_hash"`
	Timestamp   time.Time          `json:"timestamp"`
	RetryCount  int                `json:"retry_count"`
	MessageType bridge.MessageType `json:"message_type"`
	SourceChain asset.ChainTag     `json:"source_chain"`
	TargetChain asset.ChainTag     `json:"target_chain"`
	Processed   bool               `json:"processed"`
}

// ChainConfig is the administrative configuration for one chain.
type ChainConfig struct {
	Chain         asset.ChainTag `json:"chain"`
	Endpoint      string         `json:"endpoint"`
	Confirmations uint64         `json:"confirmations"`
	FeeBps        int64          `json:"fee_bps"`
	Active        bool           `json:"active"`
	UpdatedAt     time.Time      `json:"updated_at"`
}

// RetryEntry commits a failed delivery to its payload hash so only the
// identical payload can be retried under the same coordinates.
type RetryEntry struct {
	SourceChain    asset.ChainTag `json:"source_chain"`
	SourceEndpoint string         `json:"source_endpoint"`
	Sequence       uint64         `json:"sequence"`
	PayloadHash    string         `json:"payload_hash"`
	FailedAt       time.Time      `json:"failed_at"`
	Attempts       int            `json:"attempts"`
}

// Errors surfaced by registry operations.
var (
	ErrAssetExists       = errors.New("asset already registered")
	ErrAssetNotFound     = errors.New("asset not registered")
	ErrChainNotSupported = errors.New("chain not supported")
	ErrNotAuthorized     = errors.New("caller not authorized")
)

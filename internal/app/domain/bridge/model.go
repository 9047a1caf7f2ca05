// Package bridge defines the records and wire messages of the
// cross-chain bridging protocol.
package bridge

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"time"

	"github.com/CrossMart-Network/bridge_layer/internal/app/domain/asset"
)

// MessageType tags a wire payload so the inbound processor can route it.
type MessageType uint8

const (
	// MessageAssetTransfer moves a token asset between chains.
	MessageAssetTransfer MessageType = 1
	// MessageNamedTransfer moves an externally-verified non-token asset.
	MessageNamedTransfer MessageType = 2
)

func (m MessageType) String() string {
	switch m {
	case MessageAssetTransfer:
		return "asset_transfer"
	case MessageNamedTransfer:
		return "named_transfer"
	default:
		return "unknown"
	}
}

// RequestStatus is the lifecycle state of a bridge request.
type RequestStatus string

const (
	StatusPending   RequestStatus = "pending"
	StatusCompleted RequestStatus = "completed"
	StatusFailed    RequestStatus = "failed"
)

// Request is the durable record of one outbound bridging attempt,
// independent of whether the underlying message has been delivered.
type Request struct {
	ID             string         `json:"id"`
	Owner          string         `json:"owner"`
	OriginContract string         `json:"origin_contract"`
	TargetContract string         `json:"target_contract"`
	TokenOrListing uint64         `json:"token_or_listing"`
	Fee            int64          `json:"fee"`
	Timestamp      time.Time      `json:"timestamp"`
	OriginChain    asset.ChainTag `json:"origin_chain"`
	TargetChain    asset.ChainTag `json:"target_chain"`
	Status         RequestStatus  `json:"status"`
	IsToken        bool           `json:"is_token"`
	AssetKind      asset.Kind     `json:"asset_kind"`
	AssetID        string         `json:"asset_id,omitempty"`
	Identity       asset.Identity `json:"-"`
	IdentityHex    string         `json:"identity"`
}

// Message is the tagged wire payload relayed between chains. Contract
// and TokenOrListing always describe the asset's binding on its origin
// chain, so the identity stays the same no matter how many hops the
// asset takes. SourceChain is the chain this hop was sent from, which
// equals OriginChain only on the first hop.
type Message struct {
	Type           MessageType    `json:"type"`
	RequestID      string         `json:"request_id"`
	Owner          string         `json:"owner"`
	Contract       string         `json:"contract"`
	TokenOrListing uint64         `json:"token_or_listing"`
	TargetContract string         `json:"target_contract"`
	OriginChain    asset.ChainTag `json:"origin_chain"`
	SourceChain    asset.ChainTag `json:"source_chain"`
	TargetChain    asset.ChainTag `json:"target_chain"`
	Timestamp      time.Time      `json:"timestamp"`
	IsToken        bool           `json:"is_token"`
	AssetKind      asset.Kind     `json:"asset_kind"`
	AssetID        string         `json:"asset_id,omitempty"`
}

// Identity recomputes the asset identity the message refers to, from
// the perspective of the chain the asset originated on.
func (m Message) Identity() asset.Identity {
	if m.IsToken {
		return asset.DeriveToken(m.OriginChain, m.Contract, m.TokenOrListing)
	}
	return asset.DeriveNamed(m.OriginChain, m.Contract, m.AssetID)
}

// DeriveRequestID produces the request key for one bridging attempt.
// The timestamp participates so concurrent requests from the same owner
// for different assets never collide.
func DeriveRequestID(owner, contract string, tokenOrAssetID string, target asset.ChainTag, ts time.Time) string {
	h := sha256.New()
	h.Write([]byte("bridge/request/v1"))
	writeField(h, owner)
	writeField(h, contract)
	writeField(h, tokenOrAssetID)
	var tag [2]byte
	binary.BigEndian.PutUint16(tag[:], uint16(target))
	h.Write(tag[:])
	var nanos [8]byte
	binary.BigEndian.PutUint64(nanos[:], uint64(ts.UnixNano()))
	h.Write(nanos[:])
	return hex.EncodeToString(h.Sum(nil))
}

func writeField(h interface{ Write([]byte) (int, error) }, s string) {
	var n [4]byte
	binary.BigEndian.PutUint32(n[:], uint32(len(s)))
	h.Write(n[:])
	h.Write([]byte(s))
}

// Errors surfaced by the bridge controller and inbound processor.
var (
	ErrAssetLocked            = errors.New("asset already locked")
	ErrInsufficientFee        = errors.New("attached fee below required minimum")
	ErrNotOwner               = errors.New("caller does not hold the asset")
	ErrListingInactive        = errors.New("listing is not active")
	ErrListingExpired         = errors.New("listing has expired")
	ErrListingNotTransferable = errors.New("listing is not transferable")
	ErrListingAssetMismatch   = errors.New("listing asset id does not match")
	ErrUnknownMessageType     = errors.New("unknown message type")
	ErrRetryNotFound          = errors.New("no failed delivery recorded for these coordinates")
	ErrRetryMismatch          = errors.New("payload hash does not match stored commitment")
)

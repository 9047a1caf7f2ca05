// Package bridge implements the outbound bridge controller and the
// inbound message processor.
package bridge

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/CrossMart-Network/bridge_layer/internal/app/domain/asset"
	"github.com/CrossMart-Network/bridge_layer/internal/app/domain/bridge"
	domainregistry "github.com/CrossMart-Network/bridge_layer/internal/app/domain/registry"
	"github.com/CrossMart-Network/bridge_layer/internal/app/events"
	"github.com/CrossMart-Network/bridge_layer/internal/app/metrics"
	registrysvc "github.com/CrossMart-Network/bridge_layer/internal/app/services/registry"
	"github.com/CrossMart-Network/bridge_layer/internal/app/storage"
	"github.com/CrossMart-Network/bridge_layer/internal/app/transport"
	"github.com/CrossMart-Network/bridge_layer/pkg/logger"
)

// TokenCustodian is the marketplace hook the bridge uses to verify and
// hold token assets on the local chain.
type TokenCustodian interface {
	HolderOf(ctx context.Context, contract string, tokenID uint64) (string, error)
	TakeCustody(ctx context.Context, contract string, tokenID uint64, from string) error
	ReleaseCustody(ctx context.Context, contract string, tokenID uint64, to string) error
}

// Listing is the marketplace view of one non-token asset offer.
type Listing struct {
	ID           uint64
	Seller       string
	AssetID      string
	Active       bool
	Transferable bool
	Expiry       time.Time
}

// ListingBook is the marketplace hook for named-asset listings.
type ListingBook interface {
	Listing(ctx context.Context, id uint64) (Listing, error)
	Deactivate(ctx context.Context, id uint64) error
	Reactivate(ctx context.Context, id uint64, seller string) error
}

// Config carries the controller's operating parameters.
type Config struct {
	// LocalChain is the chain this node bridges assets away from.
	LocalChain asset.ChainTag
	// LocalEndpoint identifies this node's inbound relay endpoint.
	LocalEndpoint string
	// MinBridgeFee is the protocol margin required on top of the
	// relay's fee estimate.
	MinBridgeFee int64
	// CallerID is the identity the controller presents to the
	// registry for lock transitions.
	CallerID string
}

// Service is the bridge controller: it validates initiation requests,
// drives lock transitions through the registry, and hands encoded
// messages to the relay. It is also the relay's inbound receiver.
type Service struct {
	cfg       Config
	requests  storage.RequestStore
	messages  storage.MessageStore
	registry  *registrysvc.Service
	relay     transport.Transport
	custodian TokenCustodian
	listings  ListingBook
	audit     events.Logger
	log       *logger.Logger
}

// New constructs a bridge controller.
func New(cfg Config, requests storage.RequestStore, messages storage.MessageStore, reg *registrysvc.Service, relay transport.Transport, custodian TokenCustodian, listings ListingBook, audit events.Logger, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("bridge")
	}
	if audit == nil {
		audit = events.NoOpLogger{}
	}
	if cfg.CallerID == "" {
		cfg.CallerID = "bridge-controller"
	}
	return &Service{
		cfg:       cfg,
		requests:  requests,
		messages:  messages,
		registry:  reg,
		relay:     relay,
		custodian: custodian,
		listings:  listings,
		audit:     audit,
		log:       log,
	}
}

// InitiateRequest is one outbound bridging attempt as submitted by an
// asset owner.
type InitiateRequest struct {
	Owner          string
	Contract       string
	TargetContract string
	TokenOrListing uint64
	AssetID        string
	IsToken        bool
	TargetChain    asset.ChainTag
	Fee            int64
	RefundAddr     string
}

// InitiateBridge validates and executes one outbound bridge. All
// validation happens before any state changes; a validation failure
// leaves no trace. After the lock is taken, the pending request is
// persisted before the relay send so a crash between the two leaves a
// visible pending record rather than an untracked in-flight asset.
func (s *Service) InitiateBridge(ctx context.Context, req InitiateRequest) (bridge.Request, error) {
	rec, err := s.initiateBridge(ctx, req)
	metrics.RecordBridgeInitiated(chainLabel(req.TargetChain), req.Fee, err)
	return rec, err
}

func (s *Service) initiateBridge(ctx context.Context, req InitiateRequest) (bridge.Request, error) {
	req.Owner = strings.TrimSpace(req.Owner)
	req.Contract = strings.TrimSpace(req.Contract)
	req.TargetContract = strings.TrimSpace(req.TargetContract)
	if req.Owner == "" || req.Contract == "" {
		return bridge.Request{}, fmt.Errorf("owner and contract are required")
	}
	if !req.IsToken && strings.TrimSpace(req.AssetID) == "" {
		return bridge.Request{}, fmt.Errorf("asset id is required for named assets")
	}

	if !s.registry.SupportedChain(ctx, req.TargetChain) {
		return bridge.Request{}, domainregistry.ErrChainNotSupported
	}
	chainCfg, err := s.registry.ChainConfig(ctx, req.TargetChain)
	if err != nil {
		return bridge.Request{}, domainregistry.ErrChainNotSupported
	}

	if req.IsToken && s.custodian == nil {
		return bridge.Request{}, fmt.Errorf("token bridging is not configured")
	}
	if !req.IsToken && s.listings == nil {
		return bridge.Request{}, fmt.Errorf("named-asset bridging is not configured")
	}

	var seller string
	if req.IsToken {
		holder, err := s.custodian.HolderOf(ctx, req.Contract, req.TokenOrListing)
		if err != nil {
			return bridge.Request{}, fmt.Errorf("holder lookup: %w", err)
		}
		if holder != req.Owner {
			return bridge.Request{}, bridge.ErrNotOwner
		}
	} else {
		listing, err := s.listings.Listing(ctx, req.TokenOrListing)
		if err != nil {
			return bridge.Request{}, fmt.Errorf("listing lookup: %w", err)
		}
		if listing.Seller != req.Owner {
			return bridge.Request{}, bridge.ErrNotOwner
		}
		if !listing.Active {
			return bridge.Request{}, bridge.ErrListingInactive
		}
		if !listing.Expiry.IsZero() && !listing.Expiry.After(time.Now()) {
			return bridge.Request{}, bridge.ErrListingExpired
		}
		if !listing.Transferable {
			return bridge.Request{}, bridge.ErrListingNotTransferable
		}
		if listing.AssetID != req.AssetID {
			return bridge.Request{}, bridge.ErrListingAssetMismatch
		}
		seller = listing.Seller
	}

	origin, err := s.resolveOrigin(ctx, req)
	if err != nil {
		return bridge.Request{}, err
	}

	now := time.Now().UTC()
	msg := bridge.Message{
		Type:           bridge.MessageAssetTransfer,
		Owner:          req.Owner,
		Contract:       origin.contract,
		TokenOrListing: origin.tokenOrListing,
		TargetContract: req.TargetContract,
		OriginChain:    origin.chain,
		SourceChain:    s.cfg.LocalChain,
		TargetChain:    req.TargetChain,
		Timestamp:      now,
		IsToken:        req.IsToken,
		AssetKind:      asset.KindToken,
	}
	assetKey := strconv.FormatUint(req.TokenOrListing, 10)
	if !req.IsToken {
		msg.Type = bridge.MessageNamedTransfer
		msg.AssetKind = asset.KindNamed
		msg.AssetID = req.AssetID
		assetKey = req.AssetID
	}
	msg.RequestID = bridge.DeriveRequestID(req.Owner, req.Contract, assetKey, req.TargetChain, now)

	payload, err := transport.Encode(msg)
	if err != nil {
		return bridge.Request{}, err
	}

	estimate, err := s.relay.EstimateFee(ctx, req.TargetChain, req.Owner, payload, transport.Params{})
	if err != nil {
		return bridge.Request{}, fmt.Errorf("fee estimate: %w", err)
	}
	if req.Fee < estimate+s.cfg.MinBridgeFee {
		return bridge.Request{}, fmt.Errorf("%w: attached %d, required %d", bridge.ErrInsufficientFee, req.Fee, estimate+s.cfg.MinBridgeFee)
	}

	identity := origin.identity
	if existing, err := s.registry.GetAsset(ctx, identity); err == nil {
		if existing.Locked {
			return bridge.Request{}, bridge.ErrAssetLocked
		}
	} else if errors.Is(err, domainregistry.ErrAssetNotFound) {
		// a concurrent initiator may register first; the lock below
		// still decides the winner
		if _, err := s.registry.RegisterAsset(ctx, identity, req.Contract, req.TargetContract, s.cfg.LocalChain, req.TargetChain, req.TokenOrListing); err != nil && !errors.Is(err, domainregistry.ErrAssetExists) {
			return bridge.Request{}, err
		}
	} else {
		return bridge.Request{}, err
	}

	if _, err := s.registry.LockAsset(ctx, s.cfg.CallerID, identity); err != nil {
		return bridge.Request{}, err
	}

	// Custody after the lock: losing the race for the lock must not
	// move the asset.
	if req.IsToken {
		if err := s.custodian.TakeCustody(ctx, req.Contract, req.TokenOrListing, req.Owner); err != nil {
			s.rollbackLock(ctx, identity)
			return bridge.Request{}, fmt.Errorf("take custody: %w", err)
		}
	} else {
		if err := s.listings.Deactivate(ctx, req.TokenOrListing); err != nil {
			s.rollbackLock(ctx, identity)
			return bridge.Request{}, fmt.Errorf("deactivate listing: %w", err)
		}
	}

	record := bridge.Request{
		ID:             msg.RequestID,
		Owner:          req.Owner,
		OriginContract: req.Contract,
		TargetContract: req.TargetContract,
		TokenOrListing: req.TokenOrListing,
		Fee:            req.Fee,
		Timestamp:      now,
		OriginChain:    s.cfg.LocalChain,
		TargetChain:    req.TargetChain,
		Status:         bridge.StatusPending,
		IsToken:        req.IsToken,
		AssetKind:      msg.AssetKind,
		AssetID:        msg.AssetID,
		Identity:       identity,
		IdentityHex:    identity.Hex(),
	}
	stored, err := s.requests.CreateRequest(ctx, record)
	if err != nil {
		s.rollbackCustody(ctx, req, seller)
		s.rollbackLock(ctx, identity)
		return bridge.Request{}, err
	}

	if _, err := s.registry.QueueMessage(ctx, msg.Type, s.cfg.LocalChain, req.TargetChain, transport.PayloadHash(payload)); err != nil {
		s.log.WithError(err).Warn("pending-queue bookkeeping failed")
	}

	s.audit.Log(events.Event{
		Type:        events.EventRequestCreated,
		RequestID:   stored.ID,
		AssetID:     stored.IdentityHex,
		SourceChain: chainLabel(s.cfg.LocalChain),
		TargetChain: chainLabel(req.TargetChain),
		Message:     fmt.Sprintf("bridge initiated by %s, fee %d", req.Owner, req.Fee),
	})

	if err := s.relay.Send(ctx, req.TargetChain, chainCfg.Endpoint, payload, refundAddr(req), transport.Params{}); err != nil {
		stored.Status = bridge.StatusFailed
		if _, uerr := s.requests.UpdateRequest(ctx, stored); uerr != nil {
			s.log.WithError(uerr).Error("failed to mark request failed")
		}
		s.rollbackCustody(ctx, req, seller)
		s.rollbackLock(ctx, identity)
		s.audit.Log(events.Event{
			Type:      events.EventRequestFailed,
			Severity:  events.SeverityError,
			RequestID: stored.ID,
			AssetID:   stored.IdentityHex,
			Error:     err.Error(),
			Message:   "relay rejected outbound message",
		})
		return bridge.Request{}, fmt.Errorf("relay send: %w", err)
	}

	s.log.WithField("request", stored.ID).WithField("asset", stored.IdentityHex).Info("bridge initiated")
	return stored, nil
}

// originBinding pins a bridge request to the chain the asset
// originally came from.
type originBinding struct {
	chain          asset.ChainTag
	contract       string
	tokenOrListing uint64
	identity       asset.Identity
}

// resolveOrigin decides which chain's binding the outbound message
// carries. A native asset binds to this chain. An asset that arrived
// over the bridge keeps its origin-chain binding: the identity must
// derive from the origin chain and contract or the counterpart chain
// will not recognise its own asset coming home.
func (s *Service) resolveOrigin(ctx context.Context, req InitiateRequest) (originBinding, error) {
	native := originBinding{
		chain:          s.cfg.LocalChain,
		contract:       req.Contract,
		tokenOrListing: req.TokenOrListing,
	}
	if req.IsToken {
		native.identity = asset.DeriveToken(s.cfg.LocalChain, req.Contract, req.TokenOrListing)
	} else {
		native.identity = asset.DeriveNamed(s.cfg.LocalChain, req.Contract, req.AssetID)
	}

	if _, err := s.registry.GetAsset(ctx, native.identity); err == nil {
		return native, nil
	} else if !errors.Is(err, domainregistry.ErrAssetNotFound) {
		return originBinding{}, err
	}

	recs, err := s.registry.ListAssets(ctx)
	if err != nil {
		return originBinding{}, err
	}
	for _, rec := range recs {
		if rec.OriginChain == s.cfg.LocalChain || rec.TargetContract != req.Contract {
			continue
		}
		// the record must re-derive its own identity from its origin
		// binding, which rules out unrelated assets sharing a contract
		if req.IsToken {
			if rec.TokenOrListing != req.TokenOrListing {
				continue
			}
			if asset.DeriveToken(rec.OriginChain, rec.OriginContract, rec.TokenOrListing) != rec.AssetID {
				continue
			}
		} else if asset.DeriveNamed(rec.OriginChain, rec.OriginContract, req.AssetID) != rec.AssetID {
			continue
		}
		return originBinding{
			chain:          rec.OriginChain,
			contract:       rec.OriginContract,
			tokenOrListing: rec.TokenOrListing,
			identity:       rec.AssetID,
		}, nil
	}
	return native, nil
}

// Request returns one bridge request by id.
func (s *Service) Request(ctx context.Context, id string) (bridge.Request, error) {
	return s.requests.GetRequest(ctx, id)
}

// RequestsByOwner returns the owner's bridge requests.
func (s *Service) RequestsByOwner(ctx context.Context, owner string) ([]bridge.Request, error) {
	return s.requests.ListRequestsByOwner(ctx, owner)
}

func (s *Service) rollbackLock(ctx context.Context, id asset.Identity) {
	if _, err := s.registry.UnlockAsset(ctx, s.cfg.CallerID, id); err != nil {
		s.log.WithError(err).WithField("asset", id.Hex()).Error("lock rollback failed")
	}
}

func (s *Service) rollbackCustody(ctx context.Context, req InitiateRequest, seller string) {
	if req.IsToken {
		if err := s.custodian.ReleaseCustody(ctx, req.Contract, req.TokenOrListing, req.Owner); err != nil {
			s.log.WithError(err).Error("custody rollback failed")
		}
		return
	}
	if err := s.listings.Reactivate(ctx, req.TokenOrListing, seller); err != nil {
		s.log.WithError(err).Error("listing rollback failed")
	}
}

func refundAddr(req InitiateRequest) string {
	if req.RefundAddr != "" {
		return req.RefundAddr
	}
	return req.Owner
}

func chainLabel(tag asset.ChainTag) string {
	return strconv.FormatUint(uint64(tag), 10)
}

package bridge

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/CrossMart-Network/bridge_layer/internal/app/domain/asset"
	"github.com/CrossMart-Network/bridge_layer/internal/app/domain/bridge"
	domainregistry "github.com/CrossMart-Network/bridge_layer/internal/app/domain/registry"
	"github.com/CrossMart-Network/bridge_layer/internal/app/events"
	"github.com/CrossMart-Network/bridge_layer/internal/app/metrics"
	"github.com/CrossMart-Network/bridge_layer/internal/app/transport"
)

// OnMessageDelivered is the relay's inbound callback. Delivery is
// at-least-once, so the payload hash is checked against the processed
// set first; a replay of an already-processed payload is a silent
// no-op. Processing failures are absorbed: the delivery is
// acknowledged, the failure recorded for retry under its exact
// (chain, endpoint, sequence) coordinates.
func (s *Service) OnMessageDelivered(ctx context.Context, sourceChain asset.ChainTag, sourceEndpoint string, sequence uint64, payload []byte) error {
	start := time.Now()
	hash := transport.PayloadHash(payload)

	done, err := s.messages.IsProcessed(ctx, hash)
	if err != nil {
		return fmt.Errorf("processed lookup: %w", err)
	}
	if done {
		s.audit.Log(events.Event{
			Type:        events.EventMessageDeduped,
			MessageHash: hash,
			SourceChain: chainLabel(sourceChain),
			Message:     "duplicate delivery ignored",
		})
		metrics.RecordMessage("deduped", time.Since(start))
		return nil
	}

	if err := s.process(ctx, payload); err != nil {
		s.recordFailure(ctx, sourceChain, sourceEndpoint, sequence, hash, err)
		metrics.RecordMessage("failed", time.Since(start))
		return nil
	}

	s.finishProcessing(ctx, hash, sourceChain)
	metrics.RecordMessage("processed", time.Since(start))
	return nil
}

// RetryMessage re-dispatches a previously failed delivery. The caller
// supplies the payload; it must hash to the commitment stored when the
// delivery failed, so no authorization is needed beyond possession of
// the original bytes. The retry entry is cleared only when the retry
// succeeds.
func (s *Service) RetryMessage(ctx context.Context, sourceChain asset.ChainTag, sourceEndpoint string, sequence uint64, payload []byte) error {
	entry, err := s.messages.GetRetry(ctx, sourceChain, sourceEndpoint, sequence)
	if err != nil {
		return err
	}

	hash := transport.PayloadHash(payload)
	if hash != entry.PayloadHash {
		return bridge.ErrRetryMismatch
	}

	start := time.Now()
	if err := s.process(ctx, payload); err != nil {
		entry.Attempts++
		entry.FailedAt = time.Now().UTC()
		if perr := s.messages.PutRetry(ctx, entry); perr != nil {
			s.log.WithError(perr).Error("failed to re-arm retry entry")
		}
		s.audit.Log(events.Event{
			Type:        events.EventMessageFailed,
			Severity:    events.SeverityWarning,
			MessageHash: hash,
			SourceChain: chainLabel(sourceChain),
			Error:       err.Error(),
			Message:     fmt.Sprintf("retry attempt %d failed", entry.Attempts),
		})
		metrics.RecordMessage("failed", time.Since(start))
		return err
	}

	if err := s.messages.DeleteRetry(ctx, sourceChain, sourceEndpoint, sequence); err != nil && !errors.Is(err, bridge.ErrRetryNotFound) {
		s.log.WithError(err).Error("failed to clear retry entry")
	}
	s.finishProcessing(ctx, hash, sourceChain)
	s.audit.Log(events.Event{
		Type:        events.EventMessageRetried,
		MessageHash: hash,
		SourceChain: chainLabel(sourceChain),
		Message:     fmt.Sprintf("retry succeeded after %d failed attempts", entry.Attempts),
	})
	metrics.RecordMessage("retried", time.Since(start))
	return nil
}

func (s *Service) process(ctx context.Context, payload []byte) error {
	msg, err := transport.Decode(payload)
	if err != nil {
		return err
	}
	switch msg.Type {
	case bridge.MessageAssetTransfer:
		return s.handleAssetTransfer(ctx, msg)
	case bridge.MessageNamedTransfer:
		return s.handleNamedTransfer(ctx, msg)
	default:
		return fmt.Errorf("%w (%d)", bridge.ErrUnknownMessageType, msg.Type)
	}
}

// handleAssetTransfer settles an inbound token message. A locked record
// means the asset is coming back to this chain: release it. An unknown
// or unlocked record means the asset is arriving for the first time.
func (s *Service) handleAssetTransfer(ctx context.Context, msg bridge.Message) error {
	identity := msg.Identity()

	rec, err := s.registry.GetAsset(ctx, identity)
	switch {
	case errors.Is(err, domainregistry.ErrAssetNotFound):
		return s.recordArrival(ctx, msg, identity)
	case err != nil:
		return err
	}

	if !rec.Locked {
		return s.recordArrival(ctx, msg, identity)
	}

	// custody first: if the release fails the lock stays held and a
	// retry repeats the whole step
	if s.custodian == nil {
		return fmt.Errorf("token bridging is not configured")
	}
	if err := s.custodian.ReleaseCustody(ctx, rec.OriginContract, rec.TokenOrListing, msg.Owner); err != nil {
		return fmt.Errorf("release custody: %w", err)
	}
	if _, err := s.registry.UnlockAsset(ctx, s.cfg.CallerID, identity); err != nil {
		return fmt.Errorf("unlock: %w", err)
	}
	s.completeRequest(ctx, msg, identity)
	return nil
}

// handleNamedTransfer settles an inbound named-asset message. The
// release path reactivates the listing that was taken down when the
// asset left.
func (s *Service) handleNamedTransfer(ctx context.Context, msg bridge.Message) error {
	identity := msg.Identity()

	rec, err := s.registry.GetAsset(ctx, identity)
	switch {
	case errors.Is(err, domainregistry.ErrAssetNotFound):
		return s.recordArrival(ctx, msg, identity)
	case err != nil:
		return err
	}

	if !rec.Locked {
		return s.recordArrival(ctx, msg, identity)
	}

	if s.listings == nil {
		return fmt.Errorf("named-asset bridging is not configured")
	}
	if err := s.listings.Reactivate(ctx, rec.TokenOrListing, msg.Owner); err != nil {
		return fmt.Errorf("reactivate listing: %w", err)
	}
	if _, err := s.registry.UnlockAsset(ctx, s.cfg.CallerID, identity); err != nil {
		return fmt.Errorf("unlock: %w", err)
	}
	s.audit.Log(events.Event{
		Type:    events.EventListingReactivated,
		AssetID: identity.Hex(),
		Message: fmt.Sprintf("listing %d reactivated for %s", rec.TokenOrListing, msg.Owner),
	})
	s.completeRequest(ctx, msg, identity)
	return nil
}

// recordArrival registers an asset seen on this chain for the first
// time. The record is created unlocked: the asset now lives here.
func (s *Service) recordArrival(ctx context.Context, msg bridge.Message, identity asset.Identity) error {
	if _, err := s.registry.GetAsset(ctx, identity); errors.Is(err, domainregistry.ErrAssetNotFound) {
		if _, rerr := s.registry.RegisterAsset(ctx, identity, msg.Contract, msg.TargetContract, msg.OriginChain, msg.TargetChain, msg.TokenOrListing); rerr != nil && !errors.Is(rerr, domainregistry.ErrAssetExists) {
			return rerr
		}
	}
	s.audit.Log(events.Event{
		Type:        events.EventAssetArrived,
		RequestID:   msg.RequestID,
		AssetID:     identity.Hex(),
		SourceChain: chainLabel(msg.SourceChain),
		TargetChain: chainLabel(msg.TargetChain),
		Message:     fmt.Sprintf("asset arrived for %s", msg.Owner),
	})
	return nil
}

// completeRequest closes the originating request when it is known
// locally. A return delivery carries the counterpart chain's request
// id, not ours, so an unknown id falls back to the pending request
// that locked this asset. Messages for round trips initiated elsewhere
// match neither; that is not an error.
func (s *Service) completeRequest(ctx context.Context, msg bridge.Message, identity asset.Identity) {
	req, err := s.requests.GetRequest(ctx, msg.RequestID)
	if err != nil {
		pending, perr := s.requests.ListRequestsByStatus(ctx, bridge.StatusPending)
		if perr != nil {
			s.log.WithError(perr).Error("failed to list pending requests")
			return
		}
		found := false
		for _, p := range pending {
			if p.Identity == identity {
				req, found = p, true
				break
			}
		}
		if !found {
			return
		}
	}
	if req.Status == bridge.StatusCompleted {
		return
	}
	req.Status = bridge.StatusCompleted
	if _, err := s.requests.UpdateRequest(ctx, req); err != nil {
		s.log.WithError(err).WithField("request", req.ID).Error("failed to complete request")
		return
	}
	metrics.RecordBridgeCompleted()
	s.audit.Log(events.Event{
		Type:      events.EventRequestCompleted,
		RequestID: req.ID,
		AssetID:   identity.Hex(),
		Message:   "bridge round trip complete",
	})
}

func (s *Service) finishProcessing(ctx context.Context, hash string, sourceChain asset.ChainTag) {
	if err := s.messages.MarkProcessed(ctx, hash); err != nil {
		s.log.WithError(err).WithField("hash", hash).Error("failed to mark payload processed")
	}
	if err := s.messages.MarkPendingProcessed(ctx, hash); err != nil {
		s.log.WithField("hash", hash).Debug("no pending bookkeeping entry for payload")
	}
	s.audit.Log(events.Event{
		Type:        events.EventMessageProcessed,
		MessageHash: hash,
		SourceChain: chainLabel(sourceChain),
		Message:     "inbound message processed",
	})
}

func (s *Service) recordFailure(ctx context.Context, sourceChain asset.ChainTag, sourceEndpoint string, sequence uint64, hash string, cause error) {
	entry := domainregistry.RetryEntry{
		SourceChain:    sourceChain,
		SourceEndpoint: sourceEndpoint,
		Sequence:       sequence,
		PayloadHash:    hash,
		FailedAt:       time.Now().UTC(),
		Attempts:       1,
	}
	if prev, err := s.messages.GetRetry(ctx, sourceChain, sourceEndpoint, sequence); err == nil {
		entry.Attempts = prev.Attempts + 1
	}
	if err := s.messages.PutRetry(ctx, entry); err != nil {
		s.log.WithError(err).Error("failed to record retry entry")
	}
	s.audit.Log(events.Event{
		Type:        events.EventMessageFailed,
		Severity:    events.SeverityWarning,
		MessageHash: hash,
		SourceChain: chainLabel(sourceChain),
		Error:       cause.Error(),
		Message:     fmt.Sprintf("delivery %d from endpoint %s failed", sequence, sourceEndpoint),
	})
}

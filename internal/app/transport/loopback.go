package transport

import (
	"context"
	"sync"

	"github.com/CrossMart-Network/bridge_layer/internal/app/domain/asset"
)

// SentMessage records one accepted Send call on the loopback relay.
type SentMessage struct {
	TargetChain  asset.ChainTag
	DestEndpoint string
	Payload      []byte
	RefundAddr   string
	Params       Params
}

// Loopback is an in-process relay for tests and single-node runs. It
// records outbound sends and can redeliver them to a registered
// receiver, with injectable fees and failures.
type Loopback struct {
	mu       sync.Mutex
	fee      int64
	feeErr   error
	sendErr  error
	sent     []SentMessage
	receiver Receiver
	endpoint string
	chain    asset.ChainTag
	seq      uint64
}

// NewLoopback returns a loopback relay that identifies inbound
// deliveries as originating from the given chain and endpoint.
func NewLoopback(chain asset.ChainTag, endpoint string) *Loopback {
	return &Loopback{chain: chain, endpoint: endpoint}
}

// Chain reports the chain tag inbound deliveries are labelled with.
func (l *Loopback) Chain() asset.ChainTag {
	return l.chain
}

// SetFee fixes the estimate returned by EstimateFee.
func (l *Loopback) SetFee(fee int64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.fee = fee
}

// FailEstimates makes EstimateFee return err until cleared with nil.
func (l *Loopback) FailEstimates(err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.feeErr = err
}

// FailSends makes Send return err until cleared with nil.
func (l *Loopback) FailSends(err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.sendErr = err
}

// Register connects the inbound receiver deliveries are pushed to.
func (l *Loopback) Register(r Receiver) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.receiver = r
}

func (l *Loopback) EstimateFee(ctx context.Context, targetChain asset.ChainTag, sender string, payload []byte, params Params) (int64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.feeErr != nil {
		return 0, l.feeErr
	}
	return l.fee, nil
}

func (l *Loopback) Send(ctx context.Context, targetChain asset.ChainTag, destEndpoint string, payload []byte, refundAddr string, params Params) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.sendErr != nil {
		return l.sendErr
	}
	l.sent = append(l.sent, SentMessage{
		TargetChain:  targetChain,
		DestEndpoint: destEndpoint,
		Payload:      append([]byte(nil), payload...),
		RefundAddr:   refundAddr,
		Params:       params,
	})
	return nil
}

// Sent returns a copy of every accepted send, in order.
func (l *Loopback) Sent() []SentMessage {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]SentMessage, len(l.sent))
	copy(out, l.sent)
	return out
}

// DeliverLast pushes the most recent send to the registered receiver
// as a fresh inbound delivery and returns the sequence it was
// delivered under.
func (l *Loopback) DeliverLast(ctx context.Context) (uint64, error) {
	l.mu.Lock()
	if l.receiver == nil || len(l.sent) == 0 {
		l.mu.Unlock()
		return 0, ErrChainUnreachable
	}
	msg := l.sent[len(l.sent)-1]
	l.seq++
	seq := l.seq
	r := l.receiver
	chain, endpoint := l.chain, l.endpoint
	l.mu.Unlock()

	return seq, r.OnMessageDelivered(ctx, chain, endpoint, seq, msg.Payload)
}

// Deliver pushes an arbitrary payload to the registered receiver under
// the next sequence number. Calling it twice with the same payload
// models the relay's at-least-once redelivery.
func (l *Loopback) Deliver(ctx context.Context, payload []byte) (uint64, error) {
	l.mu.Lock()
	if l.receiver == nil {
		l.mu.Unlock()
		return 0, ErrChainUnreachable
	}
	l.seq++
	seq := l.seq
	r := l.receiver
	chain, endpoint := l.chain, l.endpoint
	l.mu.Unlock()

	return seq, r.OnMessageDelivered(ctx, chain, endpoint, seq, payload)
}

// Redeliver replays a payload under a previously used sequence number,
// modeling duplicate delivery of the same relay message.
func (l *Loopback) Redeliver(ctx context.Context, seq uint64, payload []byte) error {
	l.mu.Lock()
	r := l.receiver
	chain, endpoint := l.chain, l.endpoint
	l.mu.Unlock()
	if r == nil {
		return ErrChainUnreachable
	}
	return r.OnMessageDelivered(ctx, chain, endpoint, seq, payload)
}

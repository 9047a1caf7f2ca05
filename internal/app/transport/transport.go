// Package transport abstracts the cross-chain message relay the bridge
// sends through and receives deliveries from.
package transport

import (
	"context"
	"errors"

	"github.com/CrossMart-Network/bridge_layer/internal/app/domain/asset"
)

// Params carries relay tuning options attached to an outbound send.
// A zero value requests the relay defaults.
type Params struct {
	GasLimit     uint64 `json:"gas_limit,omitempty"`
	Priority     uint8  `json:"priority,omitempty"`
	CallbackData []byte `json:"callback_data,omitempty"`
}

// Transport is the outbound side of the relay. Fee estimation and
// sending are separate so callers can validate an attached fee before
// committing any state.
type Transport interface {
	// EstimateFee returns the relay cost of delivering payload to
	// targetChain, in the origin chain's base units.
	EstimateFee(ctx context.Context, targetChain asset.ChainTag, sender string, payload []byte, params Params) (int64, error)

	// Send hands payload to the relay for delivery to destEndpoint on
	// targetChain. Excess fee is returned to refundAddr by the relay.
	// A nil return means the relay accepted the message, not that the
	// remote side has processed it.
	Send(ctx context.Context, targetChain asset.ChainTag, destEndpoint string, payload []byte, refundAddr string, params Params) error
}

// Receiver is the inbound side: the relay invokes OnMessageDelivered
// once per delivery attempt. Deliveries are at-least-once; receivers
// must tolerate replays.
type Receiver interface {
	OnMessageDelivered(ctx context.Context, sourceChain asset.ChainTag, sourceEndpoint string, sequence uint64, payload []byte) error
}

// ErrChainUnreachable is returned when the relay has no route to the
// requested target chain.
var ErrChainUnreachable = errors.New("no relay route to target chain")

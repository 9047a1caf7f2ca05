package transport

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/CrossMart-Network/bridge_layer/internal/app/domain/bridge"
)

// Encode serializes a bridge message into its wire form.
func Encode(msg bridge.Message) ([]byte, error) {
	if msg.Type != bridge.MessageAssetTransfer && msg.Type != bridge.MessageNamedTransfer {
		return nil, fmt.Errorf("encode: %w (%d)", bridge.ErrUnknownMessageType, msg.Type)
	}
	return json.Marshal(msg)
}

// Decode parses a wire payload back into a bridge message. Payloads
// carrying an unrecognized type tag are rejected so the processor's
// dispatch switch stays exhaustive.
func Decode(payload []byte) (bridge.Message, error) {
	var msg bridge.Message
	if err := json.Unmarshal(payload, &msg); err != nil {
		return bridge.Message{}, fmt.Errorf("decode: %w", err)
	}
	switch msg.Type {
	case bridge.MessageAssetTransfer, bridge.MessageNamedTransfer:
		return msg, nil
	default:
		return bridge.Message{}, fmt.Errorf("decode: %w (%d)", bridge.ErrUnknownMessageType, msg.Type)
	}
}

// PayloadHash is the dedup and retry-commitment key for a delivery:
// the hex sha256 of the raw payload bytes as delivered, not of any
// decoded form.
func PayloadHash(payload []byte) string {
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:])
}

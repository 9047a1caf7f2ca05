package transport

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/CrossMart-Network/bridge_layer/internal/app/domain/asset"
	"github.com/CrossMart-Network/bridge_layer/internal/app/domain/bridge"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	msg := bridge.Message{
		Type:           bridge.MessageAssetTransfer,
		RequestID:      "req-1",
		Owner:          "0xabc",
		Contract:       "0xmarket",
		TokenOrListing: 42,
		TargetContract: "0xremote",
		OriginChain:    1,
		SourceChain:    1,
		TargetChain:    2,
		Timestamp:      time.Unix(1700000000, 0).UTC(),
		IsToken:        true,
		AssetKind:      asset.KindToken,
	}

	payload, err := Encode(msg)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	got, err := Decode(payload)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !got.Timestamp.Equal(msg.Timestamp) {
		t.Fatalf("timestamp mismatch: got %v want %v", got.Timestamp, msg.Timestamp)
	}
	got.Timestamp = msg.Timestamp
	if got != msg {
		t.Fatalf("round trip mismatch: got %+v want %+v", got, msg)
	}
}

func TestDecodeRejectsUnknownType(t *testing.T) {
	if _, err := Decode([]byte(`{"type":99,"request_id":"x"}`)); !errors.Is(err, bridge.ErrUnknownMessageType) {
		t.Fatalf("expected ErrUnknownMessageType, got %v", err)
	}
	if _, err := Decode([]byte(`{"type":0}`)); !errors.Is(err, bridge.ErrUnknownMessageType) {
		t.Fatalf("expected ErrUnknownMessageType for zero tag, got %v", err)
	}
}

func TestEncodeRejectsUnknownType(t *testing.T) {
	if _, err := Encode(bridge.Message{Type: 7}); !errors.Is(err, bridge.ErrUnknownMessageType) {
		t.Fatalf("expected ErrUnknownMessageType, got %v", err)
	}
}

func TestDecodeRejectsMalformedPayload(t *testing.T) {
	if _, err := Decode([]byte("not json")); err == nil {
		t.Fatal("expected error for malformed payload")
	}
}

func TestPayloadHashStability(t *testing.T) {
	a := PayloadHash([]byte("payload"))
	b := PayloadHash([]byte("payload"))
	c := PayloadHash([]byte("payload2"))
	if a != b {
		t.Fatalf("hash not deterministic: %s vs %s", a, b)
	}
	if a == c {
		t.Fatal("distinct payloads hashed equal")
	}
	if len(a) != 64 {
		t.Fatalf("expected hex sha256, got %d chars", len(a))
	}
}

type recordingReceiver struct {
	calls []uint64
	err   error
}

func (r *recordingReceiver) OnMessageDelivered(_ context.Context, _ asset.ChainTag, _ string, seq uint64, _ []byte) error {
	r.calls = append(r.calls, seq)
	return r.err
}

func TestLoopbackDelivery(t *testing.T) {
	lb := NewLoopback(1, "relay.local")
	lb.SetFee(500)

	fee, err := lb.EstimateFee(context.Background(), 2, "0xabc", []byte("p"), Params{})
	if err != nil {
		t.Fatalf("estimate: %v", err)
	}
	if fee != 500 {
		t.Fatalf("expected fee 500, got %d", fee)
	}

	if err := lb.Send(context.Background(), 2, "0xremote", []byte("p"), "0xabc", Params{}); err != nil {
		t.Fatalf("send: %v", err)
	}
	if got := len(lb.Sent()); got != 1 {
		t.Fatalf("expected 1 sent message, got %d", got)
	}

	rec := &recordingReceiver{}
	lb.Register(rec)
	seq, err := lb.DeliverLast(context.Background())
	if err != nil {
		t.Fatalf("deliver: %v", err)
	}
	if seq != 1 || len(rec.calls) != 1 {
		t.Fatalf("expected one delivery at seq 1, got seq=%d calls=%d", seq, len(rec.calls))
	}

	if err := lb.Redeliver(context.Background(), seq, []byte("p")); err != nil {
		t.Fatalf("redeliver: %v", err)
	}
	if len(rec.calls) != 2 || rec.calls[1] != seq {
		t.Fatalf("expected redelivery under seq %d, got %v", seq, rec.calls)
	}
}

func TestLoopbackInjectedFailures(t *testing.T) {
	lb := NewLoopback(1, "relay.local")
	boom := errors.New("relay down")

	lb.FailSends(boom)
	if err := lb.Send(context.Background(), 2, "e", []byte("p"), "r", Params{}); !errors.Is(err, boom) {
		t.Fatalf("expected injected send error, got %v", err)
	}

	lb.FailEstimates(boom)
	if _, err := lb.EstimateFee(context.Background(), 2, "s", []byte("p"), Params{}); !errors.Is(err, boom) {
		t.Fatalf("expected injected estimate error, got %v", err)
	}

	if _, err := lb.DeliverLast(context.Background()); err == nil {
		t.Fatal("expected error delivering with no receiver")
	}
}

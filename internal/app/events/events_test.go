package events

import (
	"fmt"
	"testing"
)

func TestRingBuffer_LogAndRecent(t *testing.T) {
	rb := NewRingBuffer(4)

	for i := 0; i < 3; i++ {
		rb.Log(Event{Type: EventAssetLocked, AssetID: fmt.Sprintf("a%d", i)})
	}

	if rb.Count() != 3 {
		t.Fatalf("count = %d, want 3", rb.Count())
	}

	recent := rb.Recent(2)
	if len(recent) != 2 {
		t.Fatalf("recent = %d events, want 2", len(recent))
	}
	if recent[0].AssetID != "a2" || recent[1].AssetID != "a1" {
		t.Fatalf("wrong order: %s, %s", recent[0].AssetID, recent[1].AssetID)
	}
	if recent[0].ID == "" || recent[0].Timestamp.IsZero() || recent[0].Severity != SeverityInfo {
		t.Fatalf("event not normalised: %+v", recent[0])
	}
}

func TestRingBuffer_Wraps(t *testing.T) {
	rb := NewRingBuffer(2)
	for i := 0; i < 5; i++ {
		rb.Log(Event{Type: EventMessageProcessed, MessageHash: fmt.Sprintf("h%d", i)})
	}
	if rb.Count() != 2 {
		t.Fatalf("count = %d, want 2", rb.Count())
	}
	recent := rb.Recent(10)
	if len(recent) != 2 || recent[0].MessageHash != "h4" {
		t.Fatalf("unexpected contents: %+v", recent)
	}
}

func TestRingBuffer_Filters(t *testing.T) {
	rb := NewRingBuffer(8)
	rb.Log(Event{Type: EventAssetLocked, AssetID: "x"})
	rb.Log(Event{Type: EventAssetUnlocked, AssetID: "x"})
	rb.Log(Event{Type: EventAssetLocked, AssetID: "y"})

	byType := rb.RecentByType(EventAssetLocked, 10)
	if len(byType) != 2 {
		t.Fatalf("by type = %d, want 2", len(byType))
	}
	byAsset := rb.RecentByAsset("x", 10)
	if len(byAsset) != 2 {
		t.Fatalf("by asset = %d, want 2", len(byAsset))
	}
}

func TestRingBuffer_Subscribe(t *testing.T) {
	rb := NewRingBuffer(8)

	var seen []Event
	unsub := rb.Subscribe(func(e Event) { seen = append(seen, e) })

	rb.Log(Event{Type: EventRequestCreated, RequestID: "r1"})
	if len(seen) != 1 || seen[0].RequestID != "r1" {
		t.Fatalf("handler not notified: %+v", seen)
	}

	unsub()
	rb.Log(Event{Type: EventRequestCreated, RequestID: "r2"})
	if len(seen) != 1 {
		t.Fatalf("handler notified after unsubscribe: %+v", seen)
	}
}

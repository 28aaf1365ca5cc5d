package transport

import (
	"context"
	"testing"
	"time"
)

func TestPairDeliversPacketsBothWays(t *testing.T) {
	a, b := NewPair(1, "our-tc", "peer-tc", 65536, "/tmp/files")

	// Delivery is asynchronous (the peer's inbox is drained by a
	// goroutine), so wait for each payload with a timeout.
	recvOnB := make(chan []byte, 1)
	b.OnReceive(func(payload []byte) { recvOnB <- payload })

	if err := a.SendPacket(context.Background(), []byte("hello")); err != nil {
		t.Fatalf("SendPacket: %v", err)
	}
	var gotOnB []byte
	select {
	case gotOnB = <-recvOnB:
	case <-time.After(time.Second):
	}
	if string(gotOnB) != "hello" {
		t.Errorf("got %q on b, want %q", gotOnB, "hello")
	}

	recvOnA := make(chan []byte, 1)
	a.OnReceive(func(payload []byte) { recvOnA <- payload })
	if err := b.SendPacket(context.Background(), []byte("world")); err != nil {
		t.Fatalf("SendPacket: %v", err)
	}
	var gotOnA []byte
	select {
	case gotOnA = <-recvOnA:
	case <-time.After(time.Second):
	}
	if string(gotOnA) != "world" {
		t.Errorf("got %q on a, want %q", gotOnA, "world")
	}
}

func TestCloseTransitionsStateAndFiresCallback(t *testing.T) {
	a, _ := NewPair(1, "our", "peer", 1024, "")

	var gotReason CloseReason
	var gotState State
	a.OnStateChange(func(new State, reason CloseReason) {
		gotState, gotReason = new, reason
	})

	if err := a.Close(ReasonSuccess); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if a.State() != Closed {
		t.Errorf("State() = %v, want Closed", a.State())
	}
	if gotState != Closed || gotReason != ReasonSuccess {
		t.Errorf("callback got state=%v reason=%v", gotState, gotReason)
	}
}

func TestRequestIdsAreMonotonic(t *testing.T) {
	a, _ := NewPair(1, "our", "peer", 1024, "")
	first := a.NewRequestId()
	second := a.NewRequestId()
	if second <= first {
		t.Errorf("expected monotonically increasing request ids, got %d then %d", first, second)
	}
}

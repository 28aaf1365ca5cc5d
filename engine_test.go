package engine

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/petervdpas/conversation-engine/internal/config"
	"github.com/petervdpas/conversation-engine/internal/events"
)

// openPairedEngines wires two in-process Engines (Alice, Bob) through one
// LoopbackHub so they exchange real IQ traffic with no network, mirroring
// spec.md §8 scenario 1's "Send and deliver a text message" setup.
func openPairedEngines(t *testing.T) (alice, bob *Engine) {
	t.Helper()
	hub := NewLoopbackHub()

	aliceTwincode := uuid.New()
	bobTwincode := uuid.New()

	aliceCfg := config.Default()
	aliceCfg.Storage.DatabasePath = filepath.Join(t.TempDir(), "alice.db")
	aliceOpener := NewLoopbackOpener(hub, aliceTwincode.String(), 4096, t.TempDir())
	var err error
	alice, err = Open(aliceCfg, aliceTwincode, aliceOpener, nil)
	if err != nil {
		t.Fatalf("open alice: %v", err)
	}

	bobCfg := config.Default()
	bobCfg.Storage.DatabasePath = filepath.Join(t.TempDir(), "bob.db")
	bobOpener := NewLoopbackOpener(hub, bobTwincode.String(), 4096, t.TempDir())
	bob, err = Open(bobCfg, bobTwincode, bobOpener, nil)
	if err != nil {
		alice.Close()
		t.Fatalf("open bob: %v", err)
	}

	aliceConv, err := alice.OpenContact("contact-uuid", "alice-subject", "alice-resource", bobTwincode.String())
	if err != nil {
		t.Fatalf("alice OpenContact: %v", err)
	}
	bobConv, err := bob.OpenContact("contact-uuid", "bob-subject", "bob-resource", aliceTwincode.String())
	if err != nil {
		t.Fatalf("bob OpenContact: %v", err)
	}
	if aliceConv.DbId != bobConv.DbId {
		t.Fatalf("loopback hub requires matching conversation ids, got %v and %v", aliceConv.DbId, bobConv.DbId)
	}

	ctx := context.Background()
	alice.Run(ctx)
	bob.Run(ctx)

	t.Cleanup(func() {
		alice.Close()
		bob.Close()
	})
	return alice, bob
}

func waitForEvent(t *testing.T, ch <-chan events.Event, typ events.Type, timeout time.Duration) events.Event {
	t.Helper()
	deadline := time.After(timeout)
	for {
		select {
		case ev := <-ch:
			if ev.Type == typ {
				return ev
			}
		case <-deadline:
			t.Fatalf("timed out waiting for event %s", typ)
		}
	}
}

// TestSendAndDeliverTextMessage implements spec.md §8 scenario 1: enqueue
// a PushObject, let the loopback link carry it to the peer, and observe
// the descriptor reach sentTimestamp > 0 once the peer's response lands
// with no operation row left behind.
func TestSendAndDeliverTextMessage(t *testing.T) {
	alice, bob := openPairedEngines(t)

	bobEvents := bob.Events()
	aliceEvents := alice.Events()

	obj, opId, err := alice.SendMessage(1, "hi", false)
	if err != nil {
		t.Fatalf("SendMessage: %v", err)
	}
	if opId == 0 {
		t.Fatalf("expected non-zero operation id")
	}

	waitForEvent(t, bobEvents, events.DescriptorReceived, 5*time.Second)
	waitForEvent(t, aliceEvents, events.OperationCompleted, 5*time.Second)

	loaded, err := alice.Store().LoadDescriptor(1, obj.Id.TwincodeOutboundId, obj.Id.SequenceId)
	if err != nil {
		t.Fatalf("LoadDescriptor: %v", err)
	}
	if loaded.Base().SentTimestamp <= 0 {
		t.Fatalf("expected sentTimestamp > 0, got %d", loaded.Base().SentTimestamp)
	}

	remaining, err := alice.Store().LoadOperations(time.Now().UnixMilli())
	if err != nil {
		t.Fatalf("LoadOperations: %v", err)
	}
	if len(remaining[1]) != 0 {
		t.Fatalf("expected no operation rows left, got %d", len(remaining[1]))
	}

	peerDescs, err := bob.Store().ListLastDescriptors(1, false)
	if err != nil {
		t.Fatalf("ListLastDescriptors: %v", err)
	}
	if len(peerDescs) != 1 {
		t.Fatalf("expected bob to have received exactly one descriptor, got %d", len(peerDescs))
	}
}

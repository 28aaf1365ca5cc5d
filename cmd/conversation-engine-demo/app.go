package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	engine "github.com/petervdpas/conversation-engine"
	"github.com/petervdpas/conversation-engine/internal/config"
	"github.com/petervdpas/conversation-engine/internal/events"
)

// Options configures one demo run, mirroring the teacher's app.Options
// (peer directory, loaded config) but scoped to what the engine needs:
// a scratch directory for two sqlite files and the message to send.
type Options struct {
	DbDir   string
	Message string
}

// Run wires Alice and Bob engines through an engine.LoopbackHub, sends
// Options.Message from Alice to Bob, and logs every lifecycle event
// until ctx is done.
func Run(ctx context.Context, opts Options) error {
	dbDir := opts.DbDir
	if dbDir == "" {
		tmp, err := os.MkdirTemp("", "conversation-engine-demo-*")
		if err != nil {
			return fmt.Errorf("demo: create scratch dir: %w", err)
		}
		defer os.RemoveAll(tmp)
		dbDir = tmp
	}

	hub := engine.NewLoopbackHub()

	aliceTwincode := uuid.New()
	bobTwincode := uuid.New()

	alice, err := openDemoEngine(dbDir, "alice", aliceTwincode, hub)
	if err != nil {
		return fmt.Errorf("demo: open alice: %w", err)
	}
	defer alice.Close()

	bob, err := openDemoEngine(dbDir, "bob", bobTwincode, hub)
	if err != nil {
		return fmt.Errorf("demo: open bob: %w", err)
	}
	defer bob.Close()

	aliceConv, err := alice.OpenContact("demo-conversation", "alice-subject", "alice-resource", bobTwincode.String())
	if err != nil {
		return fmt.Errorf("demo: alice OpenContact: %w", err)
	}
	if _, err := bob.OpenContact("demo-conversation", "bob-subject", "bob-resource", aliceTwincode.String()); err != nil {
		return fmt.Errorf("demo: bob OpenContact: %w", err)
	}

	go logEvents("alice", alice.Events())
	go logEvents("bob", bob.Events())

	alice.Run(ctx)
	bob.Run(ctx)

	log.Printf("alice: sending %q to bob", opts.Message)
	if _, _, err := alice.SendMessage(aliceConv.DbId, opts.Message, false); err != nil {
		return fmt.Errorf("demo: SendMessage: %w", err)
	}

	<-ctx.Done()
	log.Println("demo: done")
	return nil
}

func openDemoEngine(dbDir, name string, twincode uuid.UUID, hub *engine.LoopbackHub) (*engine.Engine, error) {
	filesDir := filepath.Join(dbDir, name, "files")
	if err := os.MkdirAll(filesDir, 0o755); err != nil {
		return nil, err
	}

	cfg := config.Default()
	cfg.Storage.DatabasePath = filepath.Join(dbDir, name, "conversations.db")
	cfg.Storage.FilesDir = filesDir
	if err := os.MkdirAll(filepath.Dir(cfg.Storage.DatabasePath), 0o755); err != nil {
		return nil, err
	}

	opener := engine.NewLoopbackOpener(hub, twincode.String(), 4096, filesDir)
	return engine.Open(cfg, twincode, opener, nil)
}

func logEvents(who string, ch <-chan events.Event) {
	for ev := range ch {
		log.Printf("%s: %s conv=%v op=%d", who, ev.Type, ev.Conv, ev.OperationId)
	}
}

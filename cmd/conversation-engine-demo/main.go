// main.go is the demo CLI's flag parsing and lifecycle, split from the
// engine wiring in app.go the way the teacher's main.go defers to
// internal/app.Run (spec.md §2's data flow end to end, with no real
// transport).
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"
)

var (
	showHelp = flag.Bool("h", false, "Show help")
	message  = flag.String("message", "hello from the conversation engine demo", "text message Alice sends to Bob")
	dbDir    = flag.String("db-dir", "", "directory for the demo's two sqlite databases (defaults to a temp dir)")
)

func main() {
	flag.Parse()

	if *showHelp {
		showUsage()
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Println("\nShutting down gracefully...")
		cancel()
	}()

	runCtx, runCancel := context.WithTimeout(ctx, 10*time.Second)
	defer runCancel()

	if err := Run(runCtx, Options{DbDir: *dbDir, Message: *message}); err != nil {
		log.Fatalf("demo failed: %v", err)
	}
}

func showUsage() {
	fmt.Println("conversation-engine-demo — exercise the engine end to end with no network")
	fmt.Println()
	fmt.Println("Pairs two in-process Engines (Alice, Bob) over a LoopbackHub, sends one")
	fmt.Println("text message, and prints the operation/descriptor lifecycle events as")
	fmt.Println("they are published (spec.md §6.3).")
	fmt.Println()
	flag.PrintDefaults()
}

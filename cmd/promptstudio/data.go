package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/allaspectsdev/promptstudio/internal/archive"
	"github.com/allaspectsdev/promptstudio/internal/daemon"
	"github.com/allaspectsdev/promptstudio/internal/session"
	"github.com/allaspectsdev/promptstudio/internal/store"
)

// openService opens the daemon's database directly. SQLite serialises the
// writes if the daemon is running at the same time.
func openService() (*session.Service, *store.Store) {
	cfg := loadConfig()
	st, err := store.Open(daemon.DBPath(cfg.Server.DataDir))
	if err != nil {
		fatalf("error opening store: %v", err)
	}
	return session.NewService(store.NewSessionAdapter(st)), st
}

func cmdSeed(args []string) {
	path := flagValue(args, "file", "sampleData.jsonl")
	sessionID := flagValue(args, "session-id", "seed-session-1")

	in, err := archive.Open(path)
	if err != nil {
		fatalf("error opening %s: %v", path, err)
	}
	prompts, skipped, err := archive.ReadTranscript(in, time.Now)
	in.Close()
	if err != nil {
		fatalf("error reading %s: %v", path, err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	svc, st := openService()
	defer st.Close()

	res, err := archive.Seed(ctx, svc, sessionID, prompts)
	if err != nil {
		fatalf("error seeding: %v", err)
	}
	fmt.Printf("Imported %s prompts into session %s", humanize.Comma(int64(res.Imported)), sessionID)
	if res.ConversationID != "" {
		fmt.Printf(" (conversation %s)", res.ConversationID)
	}
	fmt.Println()
	if skipped > 0 {
		fmt.Printf("Skipped %s lines that were not user prompts\n", humanize.Comma(int64(skipped)))
	}
	if res.Failed > 0 {
		fmt.Fprintf(os.Stderr, "%d prompts failed to import\n", res.Failed)
	}
}

func cmdExport(args []string) {
	path := positional(args)
	if path == "" {
		path = "promptstudio-conversations.jsonl"
	}

	svc, st := openService()
	defer st.Close()

	out, err := archive.Create(path)
	if err != nil {
		fatalf("error creating %s: %v", path, err)
	}
	n, err := archive.Export(context.Background(), svc, out)
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		fatalf("error exporting: %v", err)
	}

	size := ""
	if fi, err := os.Stat(path); err == nil {
		size = ", " + humanize.IBytes(uint64(fi.Size()))
	}
	fmt.Printf("Exported %s conversations to %s%s\n", humanize.Comma(int64(n)), path, size)
}

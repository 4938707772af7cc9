package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"golang.org/x/term"

	"github.com/allaspectsdev/promptstudio/internal/hook"
	"github.com/allaspectsdev/promptstudio/internal/sysinfo"
)

const hookTimeout = 10 * time.Second

// cmdHook is meant to be registered as an editor prompt hook. It never
// fails the editor's prompt when the daemon is down.
func cmdHook(args []string) {
	cfg := loadConfig()
	baseURL := flagValue(args, "url", cfg.Server.BaseURL())

	payload, err := hookPayload(args)
	if err != nil {
		fatalf("hook: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), hookTimeout)
	defer cancel()

	collect := func(ctx context.Context) (json.RawMessage, error) {
		return sysinfo.Collect(ctx).JSON()
	}
	res, err := hook.Run(ctx, hook.NewClient(baseURL, hookTimeout), payload, collect)
	if hook.IsUnreachable(err) && res == nil {
		fmt.Fprintf(os.Stderr, "promptstudio: server at %s not reachable, prompt not recorded\n", baseURL)
		return
	}
	if err != nil {
		fatalf("hook: %v", err)
	}
	if res.WebhookError != "" {
		fmt.Fprintf(os.Stderr, "promptstudio: system info stored, webhook failed: %s\n", res.WebhookError)
	}
}

// hookPayload builds the body from flags when --session-id is given, and
// otherwise reads it from stdin.
func hookPayload(args []string) ([]byte, error) {
	if sid := flagValue(args, "session-id", ""); sid != "" {
		return hook.Payload(sid, flagValue(args, "prompt", ""), flagValue(args, "ai-prompt", ""))
	}
	if term.IsTerminal(int(os.Stdin.Fd())) {
		return nil, fmt.Errorf("expected a JSON payload on stdin or --session-id")
	}
	return io.ReadAll(io.LimitReader(os.Stdin, 8<<20))
}

package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"slices"
	"syscall"

	"github.com/alecthomas/kingpin/v2"
	"github.com/fatih/color"

	"github.com/tiation/riggerhire/internal/config"
	"github.com/tiation/riggerhire/pkg/clog"
)

var version = "dev"

// logColumns lead each local log line, request columns first.
var logColumns = append(slices.Clone(clog.HTTPColumns), "task_id")

var (
	app = kingpin.New("riggerhire", "Task and application lifecycle engine for labour hire")

	serveCmd = app.Command("serve", "Run the HTTP API with the actor sync worker and payment reconciler").Default()

	mcpCmd = app.Command("mcp", "Serve the dispatch table as MCP tools on stdio")

	reconcileCmd        = app.Command("reconcile", "Resolve stale pending payments once and exit")
	reconcileStaleAfter = reconcileCmd.Flag("stale-after", "Override RIGGERHIRE_PAYMENT_STALE_AFTER").Duration()

	drainCmd = app.Command("drain", "Apply every queued actor update, ignoring backoff, and exit. Do not run while a server is up.")

	superviseCmd            = app.Command("supervise", "Keep a serve child running and restart it when the binary changes")
	superviseInitialBackoff = superviseCmd.Flag("initial-backoff", "Delay before the first restart").Default("1s").Duration()
	superviseMaxBackoff     = superviseCmd.Flag("max-backoff", "Upper bound for the restart delay").Default("1m").Duration()
)

func main() {
	app.Version(version)
	command := kingpin.MustParse(app.Parse(os.Args[1:]))

	env, err := config.LoadEnv()
	if err != nil {
		slog.Error("failed to load env", "error", err)
		os.Exit(1)
	}
	setupLogger(env)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer cancel()

	switch command {
	case serveCmd.FullCommand():
		err = runServe(ctx, env)
	case mcpCmd.FullCommand():
		err = runMCP(ctx, env)
	case reconcileCmd.FullCommand():
		if *reconcileStaleAfter > 0 {
			env.StaleAfter = *reconcileStaleAfter
		}
		err = runReconcile(ctx, env, os.Stdout)
	case drainCmd.FullCommand():
		err = runDrain(ctx, env, os.Stdout)
	case superviseCmd.FullCommand():
		err = runSupervise(ctx, *superviseInitialBackoff, *superviseMaxBackoff)
	}
	if err != nil {
		slog.Error("command failed", "command", command, "error", err)
		cancel()
		os.Exit(1)
	}
}

func setupLogger(env *config.Env) {
	level := env.SlogLevel()
	var handler slog.Handler
	if env.Env == "local" {
		handler = clog.NewTextHandler(os.Stderr,
			clog.WithLevel(level),
			clog.WithColor(!color.NoColor),
			clog.WithColumns(logColumns...),
		)
	} else {
		handler = slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	}
	slog.SetDefault(slog.New(clog.NewAttributesHandler(handler)))
}

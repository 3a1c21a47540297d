package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/sourcegraph/conc/pool"

	server "github.com/tiation/riggerhire/internal"
	"github.com/tiation/riggerhire/internal/api"
	"github.com/tiation/riggerhire/internal/config"
	"github.com/tiation/riggerhire/internal/dispatch"
	"github.com/tiation/riggerhire/internal/engine"
	"github.com/tiation/riggerhire/internal/event"
	"github.com/tiation/riggerhire/internal/mcpserver"
	"github.com/tiation/riggerhire/pkg/sentinel"
)

const (
	shutdownTimeout = 10 * time.Second
	eventLogBufSize = 256
)

func runServe(ctx context.Context, env *config.Env) error {
	if err := env.RequireAPIKey(); err != nil {
		return err
	}
	c, err := newComponents(ctx, env)
	if err != nil {
		return err
	}
	defer c.Close()

	var eventLog *event.Logger
	if env.LogDir != "" {
		if eventLog, err = event.NewLogger(env.LogDir); err != nil {
			return err
		}
	}

	srv := server.NewServer(env, api.NewHandler(c.engine, dispatch.New(c.engine), c.bus))

	p := pool.New().WithContext(ctx).WithCancelOnError()
	p.Go(func(ctx context.Context) error {
		if err := srv.ListenAndServe(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})
	p.Go(func(ctx context.Context) error {
		<-ctx.Done()
		slog.Info("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	p.Go(c.worker.Run)
	p.Go(func(ctx context.Context) error {
		runReconciler(ctx, c.engine, env.ReconcileInterval)
		return nil
	})
	if eventLog != nil {
		subID, ch := c.bus.Subscribe(eventLogBufSize)
		p.Go(func(ctx context.Context) error {
			defer c.bus.Unsubscribe(subID)
			eventLog.Run(ctx, ch)
			return nil
		})
	}
	return p.Wait()
}

// runReconciler resolves stale pending payments every interval.
func runReconciler(ctx context.Context, e *engine.Engine, interval time.Duration) {
	if interval <= 0 {
		slog.InfoContext(ctx, "payment reconciler disabled")
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		report, err := e.Reconcile(ctx)
		if err != nil {
			if ctx.Err() == nil {
				slog.ErrorContext(ctx, "payment reconcile failed", "error", err)
			}
			continue
		}
		if report.Checked > 0 {
			slog.InfoContext(ctx, "payment reconcile finished",
				"checked", report.Checked,
				"settled", len(report.Settled),
				"reverted", len(report.Reverted),
				"failed", len(report.Failed),
			)
		}
	}
}

func runMCP(ctx context.Context, env *config.Env) error {
	c, err := newComponents(ctx, env)
	if err != nil {
		return err
	}
	defer c.Close()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		if err := c.worker.Run(ctx); err != nil {
			slog.ErrorContext(ctx, "actor sync worker failed", "error", err)
		}
	}()

	return mcpserver.Serve(mcpserver.NewServer(dispatch.New(c.engine), version))
}

func runReconcile(ctx context.Context, env *config.Env, out io.Writer) error {
	c, err := newComponents(ctx, env)
	if err != nil {
		return err
	}
	defer c.Close()

	report, err := c.engine.Reconcile(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "checked %d pending payment(s)\n", report.Checked)
	printIDs(out, color.New(color.FgGreen), "settled", report.Settled)
	printIDs(out, color.New(color.FgYellow), "reverted", report.Reverted)
	printIDs(out, color.New(color.FgRed), "failed", report.Failed)
	if len(report.Failed) > 0 {
		return fmt.Errorf("%d payment(s) could not be reconciled", len(report.Failed))
	}
	return nil
}

func printIDs(out io.Writer, c *color.Color, label string, ids []string) {
	if len(ids) == 0 {
		return
	}
	c.Fprintf(out, "%-9s", label)
	fmt.Fprintln(out, strings.Join(ids, " "))
}

func runDrain(ctx context.Context, env *config.Env, out io.Writer) error {
	c, err := newComponents(ctx, env)
	if err != nil {
		return err
	}
	defer c.Close()

	res, err := c.worker.Drain(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "applied %d, failed %d, remaining %d\n", res.Applied, res.Failed, res.Remaining)
	if res.Remaining > 0 {
		color.New(color.FgYellow).Fprintf(out, "%d job(s) are still queued\n", res.Remaining)
	}
	return nil
}

func runSupervise(ctx context.Context, initialBackoff, maxBackoff time.Duration) error {
	s, err := sentinel.New(sentinel.Config{
		Args:           []string{serveCmd.FullCommand()},
		InitialBackoff: initialBackoff,
		MaxBackoff:     maxBackoff,
	})
	if err != nil {
		return err
	}
	return s.Run(ctx)
}

package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"time"

	"asset-tracker-go/internal/tracker"
	"github.com/google/subcommands"
	"go.uber.org/zap"
)

type runCmd struct {
	once bool
}

func (*runCmd) Name() string     { return "run" }
func (*runCmd) Synopsis() string { return "sync exchanges, refresh prices and snapshot on a schedule" }
func (*runCmd) Usage() string {
	return `run [-once]

  Runs exchange sync, price refresh and the daily snapshot every
  tracker.refresh_interval until interrupted. The engine status is served on
  tracker.status_port when it is non-zero.
`
}

func (c *runCmd) SetFlags(f *flag.FlagSet) {
	f.BoolVar(&c.once, "once", false, "Run a single cycle and exit")
}

func (c *runCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	return withApp(func(a *app) error {
		engine := tracker.NewEngine(a.log, tracker.DefaultTasks(a.service), a.cfg.Tracker.RefreshInterval)
		if c.once {
			return cycleError(engine.RunOnce(ctx))
		}

		// Setup context for graceful shutdown
		ctx, cancel := context.WithCancel(ctx)
		defer cancel()
		go func() {
			sigchan := make(chan os.Signal, 1)
			signal.Notify(sigchan, syscall.SIGINT, syscall.SIGTERM)
			<-sigchan
			a.log.Info("Shutdown signal received, gracefully shutting down...")
			cancel()
		}()

		if a.cfg.Tracker.StatusPort > 0 {
			api := tracker.NewAPIServer(engine, a.cfg.Tracker.StatusPort, a.log)
			api.Start()
			defer func() {
				shutdownCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
				defer done()
				if err := api.Stop(shutdownCtx); err != nil {
					a.log.Error("API server shutdown failed", zap.Error(err))
				}
			}()
		}

		engine.Run(ctx)
		a.log.Info("Tracker has been shut down.")
		return nil
	})
}

// cycleError reports the failed tasks of one cycle as a single error.
func cycleError(status *tracker.RunStatus) error {
	if len(status.Errors) == 0 {
		return nil
	}
	names := make([]string, 0, len(status.Errors))
	for name := range status.Errors {
		names = append(names, name)
	}
	sort.Strings(names)

	msgs := make([]string, len(names))
	for i, name := range names {
		msgs[i] = name + ": " + status.Errors[name]
	}
	return fmt.Errorf("%d task(s) failed: %s", len(names), strings.Join(msgs, "; "))
}

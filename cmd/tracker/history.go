package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"asset-tracker-go/internal/tracker"
	"github.com/google/subcommands"
)

type snapshotCmd struct{}

func (*snapshotCmd) Name() string     { return "snapshot" }
func (*snapshotCmd) Synopsis() string { return "record today's total value in the history" }
func (*snapshotCmd) Usage() string {
	return `snapshot

  Values the portfolio in the base currency and stores it under today's
  date, replacing an earlier snapshot of the same day.
`
}
func (*snapshotCmd) SetFlags(*flag.FlagSet) {}

func (*snapshotCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	return withApp(func(a *app) error {
		snap, err := a.service.SnapshotNow(ctx)
		if err != nil {
			return err
		}
		fmt.Printf("%s %s\n", snap.Date, formatValue(snap.TotalValue, snap.Currency))
		return nil
	})
}

type historyCmd struct{}

func (*historyCmd) Name() string           { return "history" }
func (*historyCmd) Synopsis() string       { return "list the daily value snapshots" }
func (*historyCmd) Usage() string          { return "history\n" }
func (*historyCmd) SetFlags(*flag.FlagSet) {}

func (*historyCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	return withApp(func(a *app) error {
		history, err := a.service.History(ctx)
		if err != nil {
			return err
		}
		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "Date\tValue\tNote")
		for _, h := range history {
			fmt.Fprintf(w, "%s\t%s\t%s\n", h.Date, formatValue(h.TotalValue, h.Currency), h.Note)
		}
		return w.Flush()
	})
}

type noteCmd struct{}

func (*noteCmd) Name() string     { return "note" }
func (*noteCmd) Synopsis() string { return "annotate a history snapshot" }
func (*noteCmd) Usage() string {
	return `note <YYYY-MM-DD> <text>...

  Sets the note of the snapshot on the given day. An empty text clears it.
`
}
func (*noteCmd) SetFlags(*flag.FlagSet) {}

func (*noteCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if f.NArg() < 1 {
		f.Usage()
		return subcommands.ExitUsageError
	}
	return withApp(func(a *app) error {
		return a.service.UpdateNote(ctx, f.Arg(0), strings.Join(f.Args()[1:], " "))
	})
}

// formatValue renders a stored amount, tolerating legacy rows without a
// currency.
func formatValue(amount float64, currency string) string {
	if currency == "" {
		return tracker.FormatAmount(amount, "TWD")
	}
	return tracker.FormatAmount(amount, currency)
}

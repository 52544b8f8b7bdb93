package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/google/subcommands"
)

type exchangesCmd struct{}

func (*exchangesCmd) Name() string           { return "exchanges" }
func (*exchangesCmd) Synopsis() string       { return "list configured exchange accounts" }
func (*exchangesCmd) Usage() string          { return "exchanges\n" }
func (*exchangesCmd) SetFlags(*flag.FlagSet) {}

func (*exchangesCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	return withApp(func(a *app) error {
		creds, err := a.service.Exchanges(ctx)
		if err != nil {
			return err
		}
		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tExchange\tAPI key\tLast synced")
		for _, c := range creds {
			synced := "never"
			if c.LastSynced > 0 {
				synced = time.UnixMilli(c.LastSynced).Format(time.DateTime)
			}
			fmt.Fprintf(w, "%d\t%s\t%s\t%s\n", c.ID, c.ExchangeName, maskKey(c.ApiKey), synced)
		}
		return w.Flush()
	})
}

type exchangeAddCmd struct {
	key    string
	secret string
}

func (*exchangeAddCmd) Name() string     { return "exchange-add" }
func (*exchangeAddCmd) Synopsis() string { return "add an exchange account (pionex, bitopro)" }
func (*exchangeAddCmd) Usage() string {
	return `exchange-add -key <api key> -secret <api secret> <exchange>
`
}

func (c *exchangeAddCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.key, "key", "", "API key")
	f.StringVar(&c.secret, "secret", "", "API secret")
}

func (c *exchangeAddCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if f.NArg() != 1 {
		f.Usage()
		return subcommands.ExitUsageError
	}
	return withApp(func(a *app) error {
		cred, err := a.service.AddExchange(ctx, f.Arg(0), c.key, c.secret)
		if err != nil {
			return err
		}
		fmt.Printf("Added %s as #%d\n", cred.ExchangeName, cred.ID)
		return nil
	})
}

type exchangeRemoveCmd struct{}

func (*exchangeRemoveCmd) Name() string     { return "exchange-remove" }
func (*exchangeRemoveCmd) Synopsis() string { return "remove an exchange account and its holdings" }
func (*exchangeRemoveCmd) Usage() string    { return "exchange-remove <id>\n" }
func (*exchangeRemoveCmd) SetFlags(*flag.FlagSet) {}

func (*exchangeRemoveCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if f.NArg() != 1 {
		f.Usage()
		return subcommands.ExitUsageError
	}
	id, err := parseID(f.Arg(0))
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitUsageError
	}
	return withApp(func(a *app) error {
		removed, err := a.service.DeleteExchange(ctx, id)
		if err != nil {
			return err
		}
		fmt.Printf("Removed exchange #%d and %d holdings\n", id, removed)
		return nil
	})
}

type syncExchangesCmd struct{}

func (*syncExchangesCmd) Name() string     { return "sync-exchanges" }
func (*syncExchangesCmd) Synopsis() string { return "replace exchange holdings with live balances" }
func (*syncExchangesCmd) Usage() string {
	return `sync-exchanges

  Fetches the balances of every configured exchange account. A failing
  exchange keeps its previous holdings.
`
}
func (*syncExchangesCmd) SetFlags(*flag.FlagSet) {}

func (*syncExchangesCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	return withApp(func(a *app) error {
		res, err := a.service.SyncExchangeBalances(ctx)
		if err != nil {
			return err
		}
		for _, v := range res.Venues {
			if v.Error != "" {
				fmt.Printf("%-8s failed: %s\n", v.Exchange, v.Error)
				continue
			}
			fmt.Printf("%-8s %d assets\n", v.Exchange, v.Assets)
		}
		if n := len(res.Venues); n > 0 && res.Failed() == n {
			return fmt.Errorf("all %d exchanges failed", n)
		}
		return nil
	})
}

// maskKey keeps the first and last four characters of an API key.
func maskKey(key string) string {
	if len(key) <= 8 {
		return "****"
	}
	return key[:4] + "…" + key[len(key)-4:]
}

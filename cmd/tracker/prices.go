package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"asset-tracker-go/internal/models"
	"github.com/google/subcommands"
)

type refreshCmd struct{}

func (*refreshCmd) Name() string     { return "refresh" }
func (*refreshCmd) Synopsis() string { return "fetch the latest price of every holding" }
func (*refreshCmd) Usage() string    { return "refresh\n" }
func (*refreshCmd) SetFlags(*flag.FlagSet) {}

func (*refreshCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	return withApp(func(a *app) error {
		res, err := a.service.RefreshPrices(ctx)
		if err != nil {
			return err
		}
		fmt.Printf("Priced %d of %d symbols, %d holdings updated\n", res.Symbols-len(res.Missing), res.Symbols, res.Updated)
		if len(res.Missing) > 0 {
			fmt.Printf("No price for: %s\n", strings.Join(res.Missing, ", "))
		}
		return nil
	})
}

type quoteCmd struct {
	rng      string
	interval string
}

func (*quoteCmd) Name() string     { return "quote" }
func (*quoteCmd) Synopsis() string { return "look up spot prices or price history" }
func (*quoteCmd) Usage() string {
	return `quote [-range <1d|5d|1mo|...> [-interval <1d|1wk|...>]] <symbol>...

  Without -range, prints the spot price of each symbol. With -range, prints
  the candles of the first symbol.
`
}

func (c *quoteCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.rng, "range", "", "History range, e.g. 1mo")
	f.StringVar(&c.interval, "interval", "1d", "History candle interval")
}

func (c *quoteCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if f.NArg() == 0 {
		f.Usage()
		return subcommands.ExitUsageError
	}
	return withApp(func(a *app) error {
		if c.rng != "" {
			candles, err := a.quotes.GetHistory(ctx, f.Arg(0), c.rng, c.interval)
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', tabwriter.AlignRight)
			fmt.Fprintln(w, "Time\tOpen\tHigh\tLow\tClose\tVolume\t")
			for _, k := range candles {
				fmt.Fprintf(w, "%s\t%g\t%g\t%g\t%g\t%g\t\n", k.Time.Format(time.DateTime), k.Open, k.High, k.Low, k.Close, k.Volume)
			}
			return w.Flush()
		}

		prices := a.quotes.GetSpotPrices(ctx, f.Args())
		found := make(map[string]bool, len(prices))
		for _, p := range prices {
			found[p.Symbol] = true
			fmt.Printf("%-12s %g\n", p.Symbol, p.Price)
		}
		for _, s := range f.Args() {
			if !found[s] {
				fmt.Printf("%-12s -\n", s)
			}
		}
		return nil
	})
}

type searchCmd struct {
	market string
}

func (*searchCmd) Name() string     { return "search" }
func (*searchCmd) Synopsis() string { return "find symbols by code or name" }
func (*searchCmd) Usage() string {
	return `search [-market <US|TW|Crypto>] <query>...

  TW also searches the Taiwan exchange's code lookup.
`
}

func (c *searchCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.market, "market", string(models.MarketUS), "Market to search")
}

func (c *searchCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if f.NArg() == 0 {
		f.Usage()
		return subcommands.ExitUsageError
	}
	return withApp(func(a *app) error {
		results, err := a.quotes.Search(ctx, strings.Join(f.Args(), " "), models.Market(c.market))
		if err != nil {
			return err
		}
		if len(results) == 0 {
			fmt.Println("No matches")
			return nil
		}
		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "Symbol\tName\tMarket\tType")
		for _, r := range results {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", r.Symbol, r.Name, r.Market, r.Type)
		}
		return w.Flush()
	})
}

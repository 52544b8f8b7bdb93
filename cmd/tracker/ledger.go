package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strconv"
	"text/tabwriter"
	"time"

	"asset-tracker-go/internal/models"
	"asset-tracker-go/internal/tracker"
	"github.com/google/subcommands"
)

type holdingsCmd struct{}

func (*holdingsCmd) Name() string     { return "holdings" }
func (*holdingsCmd) Synopsis() string { return "list every holding in the local ledger" }
func (*holdingsCmd) Usage() string {
	return `holdings

  Prints the holdings with their quantity, cost, last price and value in
  the holding's pricing currency.
`
}
func (*holdingsCmd) SetFlags(*flag.FlagSet) {}

func (*holdingsCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	return withApp(func(a *app) error {
		holdings, err := a.service.Holdings(ctx)
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', tabwriter.AlignRight)
		fmt.Fprintln(w, "ID\tSymbol\tMarket\tSource\tQuantity\tCost\tPrice\tValue\tUpdated\t")
		for _, h := range holdings {
			currency := "USD"
			if h.Market == models.MarketTW {
				currency = "TWD"
			}
			price := "-"
			if h.CurrentPrice != nil {
				price = strconv.FormatFloat(*h.CurrentPrice, 'f', -1, 64)
			}
			updated := "-"
			if h.LastUpdated > 0 {
				updated = time.UnixMilli(h.LastUpdated).Format(time.DateTime)
			}
			fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\t\n",
				h.ID, h.Symbol, h.Market, h.Source,
				strconv.FormatFloat(h.Quantity, 'f', -1, 64),
				strconv.FormatFloat(h.CostBasis, 'f', -1, 64),
				price, tracker.FormatAmount(h.Value(), currency), updated)
		}
		return w.Flush()
	})
}

type addCmd struct {
	name     string
	market   string
	kind     string
	quantity float64
	cost     float64
}

func (*addCmd) Name() string     { return "add" }
func (*addCmd) Synopsis() string { return "add a manual holding" }
func (*addCmd) Usage() string {
	return `add [-market TW|US|Crypto] [-type stock|crypto|other] [-name <name>] -q <quantity> -cost <unit cost> <symbol>

  Adds a holding. Market and type are inferred from the symbol when omitted;
  Taiwan codes get a .TW suffix and bare coin codes a -USD suffix.
`
}

func (c *addCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.name, "name", "", "Display name (defaults to the symbol)")
	f.StringVar(&c.market, "market", "", "Market: TW, US or Crypto")
	f.StringVar(&c.kind, "type", "", "Asset type: stock, crypto or other")
	f.Float64Var(&c.quantity, "q", 0, "Quantity held")
	f.Float64Var(&c.cost, "cost", 0, "Average unit cost")
}

func (c *addCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if f.NArg() != 1 {
		f.Usage()
		return subcommands.ExitUsageError
	}
	return withApp(func(a *app) error {
		h, err := a.service.AddHolding(ctx, models.Holding{
			Symbol:    f.Arg(0),
			Name:      c.name,
			Market:    models.Market(c.market),
			AssetType: models.AssetType(c.kind),
			Quantity:  c.quantity,
			CostBasis: c.cost,
		})
		if err != nil {
			return err
		}
		fmt.Printf("Added %s (%s, %s) as #%d\n", h.Symbol, h.Market, h.AssetType, h.ID)
		return nil
	})
}

type editCmd struct {
	name     string
	quantity string
	cost     string
}

func (*editCmd) Name() string     { return "edit" }
func (*editCmd) Synopsis() string { return "edit the name, quantity or cost of a holding" }
func (*editCmd) Usage() string {
	return `edit [-name <name>] [-q <quantity>] [-cost <unit cost>] <id>

  Quantities of exchange-synced holdings are owned by the exchange and
  cannot be edited; their cost can.
`
}

func (c *editCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.name, "name", "", "New display name")
	f.StringVar(&c.quantity, "q", "", "New quantity")
	f.StringVar(&c.cost, "cost", "", "New average unit cost")
}

func (c *editCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if f.NArg() != 1 {
		f.Usage()
		return subcommands.ExitUsageError
	}
	id, err := parseID(f.Arg(0))
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitUsageError
	}

	var patch tracker.HoldingPatch
	if c.name != "" {
		patch.Name = &c.name
	}
	if patch.Quantity, err = optionalFloat(c.quantity); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitUsageError
	}
	if patch.CostBasis, err = optionalFloat(c.cost); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitUsageError
	}

	return withApp(func(a *app) error {
		return a.service.UpdateHolding(ctx, id, patch)
	})
}

type removeCmd struct{}

func (*removeCmd) Name() string           { return "remove" }
func (*removeCmd) Synopsis() string       { return "remove a holding" }
func (*removeCmd) Usage() string          { return "remove <id>\n" }
func (*removeCmd) SetFlags(*flag.FlagSet) {}

func (*removeCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
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
		return a.service.DeleteHolding(ctx, id)
	})
}

type valueCmd struct {
	currency string
}

func (*valueCmd) Name() string     { return "value" }
func (*valueCmd) Synopsis() string { return "show the total portfolio value" }
func (*valueCmd) Usage() string {
	return `value [-currency <ISO code>]

  Values every holding at its last price, or its cost when unpriced, and
  converts to the requested currency (default: the configured base currency).
`
}

func (c *valueCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.currency, "currency", "", "Target currency")
}

func (c *valueCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	return withApp(func(a *app) error {
		currency := c.currency
		if currency == "" {
			currency = a.cfg.Tracker.BaseCurrency
		}
		v, err := a.service.TotalValue(ctx, currency)
		if err != nil {
			return err
		}

		for _, m := range []models.Market{models.MarketTW, models.MarketUS, models.MarketCrypto} {
			if total, ok := v.ByMarket[m]; ok {
				fmt.Printf("%-8s %s\n", m, tracker.FormatAmount(total, v.Currency))
			}
		}
		fmt.Printf("%-8s %s\n", "Total", tracker.FormatAmount(v.Total, v.Currency))
		if v.Estimated {
			fmt.Println("(estimated: live exchange rate unavailable, fallback rate used)")
		}
		return nil
	})
}

func parseID(s string) (uint, error) {
	id, err := strconv.ParseUint(s, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid id %q", s)
	}
	return uint(id), nil
}

func optionalFloat(s string) (*float64, error) {
	if s == "" {
		return nil, nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid number %q", s)
	}
	return &v, nil
}

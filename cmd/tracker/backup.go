package main

import (
	"context"
	"flag"
	"fmt"

	"github.com/google/subcommands"
)

type uploadCmd struct {
	token string
}

func (*uploadCmd) Name() string     { return "upload" }
func (*uploadCmd) Synopsis() string { return "back up the ledger to the spreadsheet store" }
func (*uploadCmd) Usage() string {
	return `upload [-token <access token>]

  Replaces the Portfolio, ExchangeConfigs and History sheets of the backup
  spreadsheet with the local ledger. The spreadsheet is created on first use.
`
}

func (c *uploadCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.token, "token", "", "OAuth access token (default: sheets.access_token)")
}

func (c *uploadCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	return withApp(func(a *app) error {
		token, err := a.token(c.token)
		if err != nil {
			return err
		}
		res, err := a.syncer.Upload(ctx, token)
		if err != nil {
			return err
		}
		fmt.Printf("Uploaded %s to %s\n", res, res.StoreID)
		return nil
	})
}

type downloadCmd struct {
	token string
}

func (*downloadCmd) Name() string     { return "download" }
func (*downloadCmd) Synopsis() string { return "restore the ledger from the spreadsheet store" }
func (*downloadCmd) Usage() string {
	return `download [-token <access token>]

  Replaces local holdings and exchange accounts with the backup and merges
  its history with the local one. Refuses to run when the backup is empty.
`
}

func (c *downloadCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.token, "token", "", "OAuth access token (default: sheets.access_token)")
}

func (c *downloadCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	return withApp(func(a *app) error {
		token, err := a.token(c.token)
		if err != nil {
			return err
		}
		res, err := a.syncer.Download(ctx, token)
		if err != nil {
			return err
		}
		fmt.Printf("Downloaded %s from %s\n", res, res.StoreID)
		return nil
	})
}

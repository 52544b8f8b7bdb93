package main

import (
	"context"
	"flag"
	"os"
	"path"

	"github.com/google/subcommands"
	"github.com/joho/godotenv"
)

var configDir = flag.String("config", "./configs", "Directory holding config.yml")

func main() {
	// A missing .env file is fine; the environment and config file still apply.
	_ = godotenv.Load()

	commander := subcommands.NewCommander(flag.CommandLine, path.Base(os.Args[0]))
	commander.Register(commander.HelpCommand(), "")
	commander.Register(commander.FlagsCommand(), "")
	commander.Register(commander.CommandsCommand(), "")

	commander.Register(&holdingsCmd{}, "ledger")
	commander.Register(&addCmd{}, "ledger")
	commander.Register(&editCmd{}, "ledger")
	commander.Register(&removeCmd{}, "ledger")
	commander.Register(&valueCmd{}, "ledger")

	commander.Register(&exchangesCmd{}, "exchanges")
	commander.Register(&exchangeAddCmd{}, "exchanges")
	commander.Register(&exchangeRemoveCmd{}, "exchanges")
	commander.Register(&syncExchangesCmd{}, "exchanges")

	commander.Register(&refreshCmd{}, "prices")
	commander.Register(&quoteCmd{}, "prices")
	commander.Register(&searchCmd{}, "prices")

	commander.Register(&snapshotCmd{}, "history")
	commander.Register(&historyCmd{}, "history")
	commander.Register(&noteCmd{}, "history")

	commander.Register(&uploadCmd{}, "backup")
	commander.Register(&downloadCmd{}, "backup")

	commander.Register(&runCmd{}, "daemon")

	flag.Parse()
	os.Exit(int(commander.Execute(context.Background())))
}

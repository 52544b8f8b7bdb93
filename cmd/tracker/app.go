package main

import (
	"errors"
	"fmt"
	"os"

	"asset-tracker-go/internal/config"
	"asset-tracker-go/internal/database"
	"asset-tracker-go/internal/exchange"
	"asset-tracker-go/internal/logger"
	"asset-tracker-go/internal/quote"
	"asset-tracker-go/internal/repository"
	"asset-tracker-go/internal/sheets"
	"asset-tracker-go/internal/syncer"
	"asset-tracker-go/internal/tracker"
	"github.com/google/subcommands"
	"go.uber.org/zap"
)

// app wires the ledger services of one command invocation.
type app struct {
	cfg     config.Config
	log     *zap.Logger
	store   *repository.Store
	quotes  *quote.Client
	remote  *sheets.Client
	service *tracker.Service
	syncer  *syncer.Orchestrator
}

func newApp() (*app, error) {
	// Load application configuration
	cfg, err := config.LoadConfig(*configDir)
	if err != nil {
		return nil, fmt.Errorf("could not load config: %w", err)
	}

	// Initialize logger
	log, err := logger.NewLogger(cfg.Logger.Level, cfg.Logger.Format, cfg.Logger.Components)
	if err != nil {
		return nil, fmt.Errorf("could not initialize logger: %w", err)
	}

	// Initialize database
	db, err := database.NewDatabase(cfg.Database.DSN)
	if err != nil {
		return nil, err
	}
	store := repository.NewStore(db)

	quotes, err := quote.NewClient(&cfg.Quote, log)
	if err != nil {
		return nil, err
	}
	exchanges, err := exchange.NewClient(&cfg.Exchange, log)
	if err != nil {
		return nil, err
	}
	remote := sheets.NewClient(&cfg.Sheets, store, log)

	parser := syncer.Parser{DefaultCurrency: cfg.Tracker.BaseCurrency}
	return &app{
		cfg:     cfg,
		log:     log,
		store:   store,
		quotes:  quotes,
		remote:  remote,
		service: tracker.NewService(store, quotes, exchanges, &cfg.Tracker, cfg.Quote.FallbackUSDTWD, log),
		syncer:  syncer.NewOrchestrator(store, remote, parser, log),
	}, nil
}

// withApp builds the app, runs fn and maps its error to an exit status.
func withApp(fn func(a *app) error) subcommands.ExitStatus {
	a, err := newApp()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitFailure
	}
	defer a.log.Sync()

	if err := fn(a); err != nil {
		if errors.Is(err, sheets.ErrUnauthorized) {
			fmt.Fprintln(os.Stderr, "The access token was rejected; obtain a new one and pass it with -token or SHEETS_ACCESS_TOKEN.")
		}
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitFailure
	}
	return subcommands.ExitSuccess
}

// token returns the explicit flag value or the configured access token.
func (a *app) token(flagValue string) (string, error) {
	if flagValue != "" {
		return flagValue, nil
	}
	if a.cfg.Sheets.AccessToken != "" {
		return a.cfg.Sheets.AccessToken, nil
	}
	return "", errors.New("no access token: pass -token or set SHEETS_ACCESS_TOKEN")
}

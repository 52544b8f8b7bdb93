package tracker

import (
	"context"
	"fmt"
)

// Task is one step of an engine cycle.
type Task interface {
	// Name returns the unique name of the task.
	Name() string

	// Run performs the task once.
	Run(ctx context.Context) error
}

// ExchangeSyncTask pulls balances from every configured exchange.
type ExchangeSyncTask struct {
	Service *Service
}

func (t ExchangeSyncTask) Name() string { return "exchange-sync" }

func (t ExchangeSyncTask) Run(ctx context.Context) error {
	res, err := t.Service.SyncExchangeBalances(ctx)
	if err != nil {
		return err
	}
	if len(res.Venues) > 0 && res.Failed() == len(res.Venues) {
		return fmt.Errorf("all %d exchanges failed", len(res.Venues))
	}
	return nil
}

// RefreshTask updates the price of every holding.
type RefreshTask struct {
	Service *Service
}

func (t RefreshTask) Name() string { return "refresh" }

func (t RefreshTask) Run(ctx context.Context) error {
	_, err := t.Service.RefreshPrices(ctx)
	return err
}

// SnapshotTask records today's total value in the base currency.
type SnapshotTask struct {
	Service *Service
}

func (t SnapshotTask) Name() string { return "snapshot" }

func (t SnapshotTask) Run(ctx context.Context) error {
	_, err := t.Service.SnapshotNow(ctx)
	return err
}

// DefaultTasks returns the cycle of a tracker engine: exchange sync, price
// refresh and, when enabled, the daily snapshot.
func DefaultTasks(s *Service) []Task {
	tasks := []Task{ExchangeSyncTask{Service: s}, RefreshTask{Service: s}}
	if s.cfg.Snapshot {
		tasks = append(tasks, SnapshotTask{Service: s})
	}
	return tasks
}

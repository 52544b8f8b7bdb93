package tracker

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// RunStatus describes the last engine cycle.
type RunStatus struct {
	StartedAt  time.Time         `json:"started_at"`
	FinishedAt time.Time         `json:"finished_at"`
	Errors     map[string]string `json:"errors,omitempty"`
}

// Engine runs its tasks once at start and then on every tick until its
// context is cancelled.
type Engine struct {
	UUID      string
	Name      string
	StartTime time.Time

	logger   *zap.Logger
	tasks    []Task
	interval time.Duration

	mu      sync.RWMutex
	lastRun *RunStatus
	cycles  int
}

// NewEngine creates an engine running tasks every interval.
func NewEngine(logger *zap.Logger, tasks []Task, interval time.Duration) *Engine {
	return &Engine{
		UUID:     uuid.NewString(),
		Name:     "asset-tracker",
		logger:   logger.Named("engine"),
		tasks:    tasks,
		interval: interval,
	}
}

// Run starts the engine's main loop and blocks until ctx is done.
func (e *Engine) Run(ctx context.Context) {
	e.mu.Lock()
	e.StartTime = time.Now()
	e.mu.Unlock()

	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()

	e.logger.Info("Starting tracker loop", zap.Duration("interval", e.interval), zap.String("uuid", e.UUID))
	e.RunOnce(ctx)

	for {
		select {
		case <-ctx.Done():
			e.logger.Info("Stopping tracker engine...")
			return
		case <-ticker.C:
			e.RunOnce(ctx)
		}
	}
}

// RunOnce runs every task in order. A failing task is logged and does not
// stop the ones after it.
func (e *Engine) RunOnce(ctx context.Context) *RunStatus {
	status := &RunStatus{StartedAt: time.Now()}
	for _, t := range e.tasks {
		if ctx.Err() != nil {
			break
		}
		if err := t.Run(ctx); err != nil {
			e.logger.Error("Task failed", zap.String("task", t.Name()), zap.Error(err))
			if status.Errors == nil {
				status.Errors = make(map[string]string)
			}
			status.Errors[t.Name()] = err.Error()
		}
	}
	status.FinishedAt = time.Now()

	e.mu.Lock()
	e.lastRun = status
	e.cycles++
	e.mu.Unlock()

	e.logger.Info("Cycle complete", zap.Int("failed_tasks", len(status.Errors)), zap.Duration("took", status.FinishedAt.Sub(status.StartedAt)))
	return status
}

// LastRun returns the status of the most recent cycle and the number of
// cycles run so far.
func (e *Engine) LastRun() (*RunStatus, int) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.lastRun, e.cycles
}

func (e *Engine) startTime() time.Time {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.StartTime
}

package scheduler

import (
	"context"
	"errors"
	"sync/atomic"

	"rwa-market-indexer/logger"
)

var ErrTaskRunning = errors.New("task already running")

// Task runs fn at most once at a time. A run requested while the previous
// one is still in progress is skipped.
type Task struct {
	name    string
	fn      func(ctx context.Context) error
	running atomic.Bool
	runs    atomic.Uint64
	skipped atomic.Uint64
}

func NewTask(name string, fn func(ctx context.Context) error) *Task {
	return &Task{name: name, fn: fn}
}

func (t *Task) Name() string {
	return t.name
}

// Run returns ErrTaskRunning without calling fn if a run is in progress.
func (t *Task) Run(ctx context.Context) error {
	if !t.running.CompareAndSwap(false, true) {
		t.skipped.Add(1)
		logger.Warn("Skipping %s: previous run still in progress", t.name)
		return ErrTaskRunning
	}
	defer t.running.Store(false)

	t.runs.Add(1)
	return t.fn(ctx)
}

func (t *Task) Running() bool {
	return t.running.Load()
}

// Runs counts started runs, Skipped counts runs refused by the guard.
func (t *Task) Runs() uint64 {
	return t.runs.Load()
}

func (t *Task) Skipped() uint64 {
	return t.skipped.Load()
}

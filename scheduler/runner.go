package scheduler

import (
	"context"
	"sync"

	"rwa-market-indexer/logger"

	"github.com/pkg/errors"
	"github.com/robfig/cron/v3"
)

type entry struct {
	spec     string
	schedule cron.Schedule
	task     *Task
}

// Runner triggers tasks on standard five-field cron schedules. Every task
// also runs once as soon as Run is called.
type Runner struct {
	entries []entry
}

func NewRunner() *Runner {
	return &Runner{}
}

func (r *Runner) Add(spec string, task *Task) error {
	schedule, err := cron.ParseStandard(spec)
	if err != nil {
		return errors.Wrapf(err, "schedule %q for %s", spec, task.Name())
	}

	r.entries = append(r.entries, entry{spec: spec, schedule: schedule, task: task})
	return nil
}

// Run blocks until ctx is done and every started run has returned.
func (r *Runner) Run(ctx context.Context) error {
	c := cron.New(cron.WithLogger(logger.Cron()))

	var wg sync.WaitGroup
	for _, e := range r.entries {
		task := e.task
		c.Schedule(e.schedule, cron.FuncJob(func() {
			_ = task.Run(ctx)
		}))

		logger.Info("Scheduled %s with %q", task.Name(), e.spec)

		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = task.Run(ctx)
		}()
	}

	c.Start()
	<-ctx.Done()

	<-c.Stop().Done()
	wg.Wait()

	return nil
}

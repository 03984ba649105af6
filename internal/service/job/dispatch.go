package job

import (
	"context"
	"log"
)

// Dispatcher detaches job execution from the webhook request that
// triggered it, so a long download never blocks inbound events.
type Dispatcher struct {
	runner *Runner
}

// NewDispatcher wraps a Runner for asynchronous dispatch.
func NewDispatcher(runner *Runner) *Dispatcher {
	return &Dispatcher{runner: runner}
}

// Dispatch runs the job in its own goroutine. The recover guard keeps an
// unexpected panic inside a job from taking down the whole process.
func (d *Dispatcher) Dispatch(j Job) {
	go func() {
		defer func() {
			if rec := recover(); rec != nil {
				log.Printf("[job %s] panic: %v", j.ID, rec)
			}
		}()
		d.runner.Run(context.Background(), j)
	}()
}

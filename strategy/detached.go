package strategy

import (
	"context"
	"fmt"
	"sync"

	"github.com/jonwraymond/offlineworker/observe"
)

// Detached runs background tasks that outlive the request that started them.
// A task's failure is logged and never reaches the caller.
type Detached struct {
	wg  sync.WaitGroup
	log observe.Logger
}

// NewDetached creates a task runner that logs failures to log.
func NewDetached(log observe.Logger) *Detached {
	return &Detached{log: log}
}

// Go starts task with a context detached from ctx's cancellation.
func (d *Detached) Go(ctx context.Context, name string, task func(context.Context) error) {
	ctx = context.WithoutCancel(ctx)
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				d.log.Error(ctx, "background task panicked", observe.F("task", name), observe.F("panic", fmt.Sprint(r)))
			}
		}()
		if err := task(ctx); err != nil {
			d.log.Warn(ctx, "background task failed", observe.F("task", name), observe.Err(err))
		}
	}()
}

// Wait blocks until every started task has finished.
func (d *Detached) Wait() {
	d.wg.Wait()
}

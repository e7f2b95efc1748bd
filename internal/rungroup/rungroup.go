// Package rungroup supervises long-running tasks that must terminate
// together: the first task error or an INT/TERM signal cancels the shared
// context, every task drains, the first error surfaces.
package rungroup

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"
)

// Logger provides logging methods for the group
type Logger interface {
	Info(args ...interface{})
	Error(args ...interface{})
}

type task struct {
	name string
	run  func(ctx context.Context) error
}

type Group struct {
	logger Logger
	tasks  []task
}

func New(logger Logger) *Group {
	return &Group{logger: logger}
}

// Add registers a named task. The task must watch its context and return
// promptly once it is done.
func (g *Group) Add(name string, run func(ctx context.Context) error) {
	g.tasks = append(g.tasks, task{name: name, run: run})
}

// Run starts every task and blocks until all of them returned. A task
// finishing cleanly doesn't stop its peers, a task error or an OS signal
// does.
func (g *Group) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	group, ctx := errgroup.WithContext(ctx)
	for _, t := range g.tasks {
		t := t
		group.Go(func() error {
			g.logger.Info("Started ", t.name)
			if err := t.run(ctx); err != nil {
				g.logger.Error("Failure running ", t.name, ": ", err)
				return fmt.Errorf("%s: %w", t.name, err)
			}
			g.logger.Info("Stopped ", t.name)
			return nil
		})
	}
	return group.Wait()
}

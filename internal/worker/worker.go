// Package worker defines what a per-application CI worker must provide and the
// shared machinery that drives it: the execute wrapper, the run loop, the
// registry of implementations and the supervisor that runs a worker set.
package worker

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/rs/zerolog/log"

	"ciex/internal/task"
)

// Worker is an independently scheduled consumer bound to one application.
type Worker interface {
	App() string
	Run(ctx context.Context)
}

// Handler performs one operation for a task. A nil error marks the task
// successful, anything else marks it failed.
type Handler func(ctx context.Context, t *task.Task) error

// Handlers maps each supported command to its handler.
type Handlers map[task.Command]Handler

// Supports reports whether cmd has a handler.
func (h Handlers) Supports(cmd task.Command) bool {
	_, ok := h[cmd]
	return ok
}

// Execute runs the handler for t.Command and leaves t in a terminal state.
// Handler errors and panics are recorded on the task and never escape.
func Execute(ctx context.Context, handlers Handlers, t *task.Task) *task.Task {
	handler, ok := handlers[t.Command]
	if !ok {
		t.Fail(fmt.Errorf("%w: %s", ErrUnsupportedCommand, t.Command))
		log.Error().Str("app", t.AppName).Str("task_id", t.ID).Str("command", string(t.Command)).Msg("unsupported command")
		return t
	}

	started := time.Now()
	if err := safeCall(ctx, handler, t); err != nil {
		t.Fail(err)
		log.Error().Str("app", t.AppName).Str("task_id", t.ID).Str("command", string(t.Command)).
			Dur("took", time.Since(started)).Err(err).Msg("task failed")
		return t
	}
	t.Succeed()
	log.Info().Str("app", t.AppName).Str("task_id", t.ID).Str("command", string(t.Command)).
		Dur("took", time.Since(started)).Msg("task succeeded")
	return t
}

func safeCall(ctx context.Context, handler Handler, t *task.Task) (err error) {
	defer func() {
		if r := recover(); r != nil {
			log.Debug().Str("stack", string(debug.Stack())).Msg("handler panic")
			err = fmt.Errorf("%w: %v", ErrHandlerPanic, r)
		}
	}()
	return handler(ctx, t)
}

// Loop is the standard run loop: take the next task for AppName, execute it
// and report it back, until ctx is cancelled or the router is closed.
type Loop struct {
	AppName  string
	Router   *task.Router
	Handlers Handlers
}

func (l *Loop) App() string { return l.AppName }

func (l *Loop) Run(ctx context.Context) {
	log.Info().Str("app", l.AppName).Msg("worker started")
	defer log.Info().Str("app", l.AppName).Msg("worker stopped")

	for {
		log.Debug().Str("app", l.AppName).Msg("waiting for task")
		t, err := l.Router.TakeNext(ctx, l.AppName)
		if err != nil {
			if !errors.Is(err, context.Canceled) && !errors.Is(err, task.ErrRouterClosed) {
				log.Warn().Str("app", l.AppName).Err(err).Msg("take next task failed")
			}
			return
		}
		// a taken task runs to completion even when the worker is being stopped
		Execute(context.WithoutCancel(ctx), l.Handlers, t)
		if err := l.Router.RecordFinished(t); err != nil {
			log.Warn().Str("app", l.AppName).Str("task_id", t.ID).Err(err).Msg("record finished task failed")
			return
		}
	}
}

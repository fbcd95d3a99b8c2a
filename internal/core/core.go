// Package core is the command façade of the daemon. It loads app settings and
// binds workers on first use, and turns external commands into routed tasks.
package core

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/rs/zerolog/log"

	"ciex/internal/appconfig"
	"ciex/internal/task"
	"ciex/internal/worker"
)

type State int

const (
	StateUninitialized State = iota
	StateReady
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateReady:
		return "ready"
	case StateFailed:
		return "failed"
	default:
		return "uninitialized"
	}
}

// Options wires the collaborators of a Core.
type Options struct {
	Source     appconfig.Source
	Registry   *worker.Registry
	Supervisor *worker.Supervisor
}

// Result is the outcome of a guarded command. A rejected task is a normal
// result, not an error.
type Result struct {
	Admitted bool       `json:"admitted"`
	Message  string     `json:"message"`
	Task     *task.Task `json:"task,omitempty"`
}

type Core struct {
	opts Options

	// reloadMu serializes initializations. mu guards the committed state only
	// and is never held while workers drain.
	reloadMu sync.Mutex
	mu       sync.Mutex
	state    State
	initErr  error
	apps     map[string]*appconfig.AppConfig
	router   *task.Router
}

func New(opts Options) *Core {
	if opts.Registry == nil {
		opts.Registry = worker.NewRegistry()
	}
	if opts.Supervisor == nil {
		opts.Supervisor = worker.NewSupervisor()
	}
	return &Core{opts: opts}
}

// State reports the initialization state and the last initialization error.
func (c *Core) State() (State, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state, c.initErr
}

// Initialize loads app settings, builds a fresh router, binds one worker per
// app and hands the workers to the supervisor. Nothing is committed unless
// every step succeeds; on failure the core moves to StateFailed.
//
// The new router is committed before the previous workers drain, so
// commands and queries are answered while a running task finishes. Tasks
// admitted on the previous router but never taken are moved to the new one.
func (c *Core) Initialize() error {
	c.reloadMu.Lock()
	defer c.reloadMu.Unlock()
	return c.initialize()
}

// initialize runs with reloadMu held.
func (c *Core) initialize() error {
	if c.opts.Source == nil {
		return c.fail(errors.New("no app settings source"))
	}
	apps, err := appconfig.Load(c.opts.Source)
	if err != nil {
		return c.fail(err)
	}

	names := sortedNames(apps)
	router := task.NewRouter(names)
	workers := make([]worker.Worker, 0, len(names))
	for _, name := range names {
		w, err := c.opts.Registry.Bind(apps[name], router)
		if err != nil {
			router.Close()
			return c.fail(err)
		}
		workers = append(workers, w)
	}

	c.mu.Lock()
	old := c.router
	c.apps, c.router = apps, router
	c.state, c.initErr = StateReady, nil
	c.mu.Unlock()

	c.opts.Supervisor.Replace(workers)
	if old != nil {
		carryOver(old, router, apps)
		old.Close()
	}
	log.Info().Strs("apps", names).Msg("core initialized")
	return nil
}

func (c *Core) fail(err error) error {
	c.mu.Lock()
	c.state, c.initErr = StateFailed, err
	c.mu.Unlock()
	log.Error().Err(err).Msg("core initialization failed")
	return err
}

// carryOver moves tasks admitted on old but never taken to next. A task is
// dropped when its app is gone or already has a new outstanding task.
func carryOver(old, next *task.Router, apps map[string]*appconfig.AppConfig) {
	for _, t := range old.Queued() {
		cfg, ok := apps[t.AppName]
		if !ok {
			log.Warn().Str("app", t.AppName).Str("task_id", t.ID).Msg("queued task dropped: app no longer configured")
			continue
		}
		t.Env = cfg
		if err := next.Submit(&t); err != nil {
			log.Warn().Str("app", t.AppName).Str("task_id", t.ID).Err(err).Msg("queued task dropped on reload")
			continue
		}
		log.Info().Str("app", t.AppName).Str("task_id", t.ID).Msg("queued task carried over")
	}
}

// ready initializes on first use. A failed core stays failed until Reload.
func (c *Core) ready() (*task.Router, map[string]*appconfig.AppConfig, error) {
	if c.uninitialized() {
		c.reloadMu.Lock()
		if c.uninitialized() {
			_ = c.initialize()
		}
		c.reloadMu.Unlock()
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateReady {
		return nil, nil, fmt.Errorf("%w: %w", ErrNotReady, c.initErr)
	}
	return c.router, c.apps, nil
}

func (c *Core) uninitialized() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state == StateUninitialized
}

// Reload re-runs initialization and reports "ok" or "Err: <reason>". It is
// the recovery path, so it never returns an error.
func (c *Core) Reload() string {
	if err := c.Initialize(); err != nil {
		return "Err: " + err.Error()
	}
	return "ok"
}

func (c *Core) Start(app string) (Result, error)     { return c.create(app, task.CommandStart) }
func (c *Core) Stop(app string) (Result, error)      { return c.create(app, task.CommandStop) }
func (c *Core) Deploy(app string) (Result, error)    { return c.create(app, task.CommandDeploy) }
func (c *Core) Build(app string) (Result, error)     { return c.create(app, task.CommandBuild) }
func (c *Core) Upgrade(app string) (Result, error)   { return c.create(app, task.CommandUpgrade) }
func (c *Core) Downgrade(app string) (Result, error) { return c.create(app, task.CommandDowngrade) }
func (c *Core) Pull(app string) (Result, error)      { return c.create(app, task.CommandPull) }

// Dispatch runs the guarded command named by an external command name.
func (c *Core) Dispatch(app, command string) (Result, error) {
	cmd, err := task.ParseCommand(command)
	if err != nil {
		return Result{}, err
	}
	return c.create(app, cmd)
}

func (c *Core) create(app string, cmd task.Command) (Result, error) {
	router, apps, err := c.ready()
	if err != nil {
		return Result{}, err
	}
	cfg, ok := apps[app]
	if !ok {
		return Result{}, unknownApp(app, apps)
	}

	t := task.New(app, cmd)
	t.Env = cfg
	switch err := router.Submit(t); {
	case err == nil:
		log.Info().Str("app", app).Str("task_id", t.ID).Str("command", string(cmd)).Msg("task admitted")
		return Result{Admitted: true, Message: t.String(), Task: t}, nil
	case errors.Is(err, task.ErrTaskRejected):
		log.Warn().Str("app", app).Str("command", string(cmd)).Msg("task rejected: pending task exists")
		return Result{Admitted: false, Message: err.Error()}, nil
	default:
		return Result{}, err
	}
}

// Last returns the string form of the last task recorded for app.
func (c *Core) Last(app string) (string, error) {
	t, err := c.LastTask(app)
	if err != nil {
		return "", err
	}
	return t.String(), nil
}

// LastTask returns a copy of the last task recorded for app.
func (c *Core) LastTask(app string) (task.Task, error) {
	router, apps, err := c.ready()
	if err != nil {
		return task.Task{}, err
	}
	if _, ok := apps[app]; !ok {
		return task.Task{}, unknownApp(app, apps)
	}
	return router.Last(app)
}

// List returns the configured app names, sorted.
func (c *Core) List() ([]string, error) {
	router, _, err := c.ready()
	if err != nil {
		return nil, err
	}
	return router.Apps(), nil
}

// Statuses returns the last task of every app, ordered by app name.
func (c *Core) Statuses() ([]task.Task, error) {
	router, _, err := c.ready()
	if err != nil {
		return nil, err
	}
	apps := router.Apps()
	out := make([]task.Task, 0, len(apps))
	for _, app := range apps {
		t, err := router.Last(app)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, nil
}

// Shutdown stops the workers and the router. It returns false when workers
// did not finish before ctx was done.
func (c *Core) Shutdown(ctx context.Context) bool {
	done := c.opts.Supervisor.Stop(ctx)
	c.mu.Lock()
	if c.router != nil {
		c.router.Close()
	}
	c.mu.Unlock()
	return done
}

func unknownApp(name string, apps map[string]*appconfig.AppConfig) error {
	return &UnknownAppError{Name: name, Suggestion: suggest(name, sortedNames(apps))}
}

func sortedNames(apps map[string]*appconfig.AppConfig) []string {
	names := make([]string, 0, len(apps))
	for name := range apps {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

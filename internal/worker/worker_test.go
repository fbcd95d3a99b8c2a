package worker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ciex/internal/appconfig"
	"ciex/internal/task"
)

func TestExecuteMarksSuccess(t *testing.T) {
	handlers := Handlers{task.CommandBuild: func(context.Context, *task.Task) error { return nil }}

	tsk := Execute(context.Background(), handlers, task.New("appname1", task.CommandBuild))
	assert.Equal(t, task.StatusSuccess, tsk.Status)
	assert.NotNil(t, tsk.Finish)
	assert.Empty(t, tsk.Error)
}

func TestExecuteRecordsHandlerError(t *testing.T) {
	handlers := Handlers{task.CommandBuild: func(context.Context, *task.Task) error {
		return errors.New("mix release: exit status 1")
	}}

	tsk := Execute(context.Background(), handlers, task.New("appname1", task.CommandBuild))
	assert.Equal(t, task.StatusFailure, tsk.Status)
	assert.Equal(t, "mix release: exit status 1", tsk.Error)
	assert.NotNil(t, tsk.Finish)
}

func TestExecuteRecoversPanic(t *testing.T) {
	handlers := Handlers{task.CommandDeploy: func(context.Context, *task.Task) error {
		panic("chdir: no such file or directory")
	}}

	tsk := Execute(context.Background(), handlers, task.New("appname1", task.CommandDeploy))
	assert.Equal(t, task.StatusFailure, tsk.Status)
	assert.Contains(t, tsk.Error, "no such file or directory")
}

func TestExecuteUnsupportedCommand(t *testing.T) {
	tsk := Execute(context.Background(), Handlers{}, task.New("appname1", task.CommandUpgrade))
	assert.Equal(t, task.StatusFailure, tsk.Status)
	assert.Contains(t, tsk.Error, ErrUnsupportedCommand.Error())
}

func TestLoopSurvivesFailingTask(t *testing.T) {
	router := task.NewRouter([]string{"appname1"})
	defer router.Close()

	handled := make(chan task.Command, 2)
	loop := &Loop{AppName: "appname1", Router: router, Handlers: Handlers{
		task.CommandBuild: func(context.Context, *task.Task) error {
			handled <- task.CommandBuild
			return errors.New("build exploded")
		},
		task.CommandDeploy: func(context.Context, *task.Task) error {
			handled <- task.CommandDeploy
			return nil
		},
	}}

	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	go func() {
		loop.Run(ctx)
		close(stopped)
	}()

	require.True(t, router.Enqueue(task.New("appname1", task.CommandBuild)))
	waitCommand(t, handled, task.CommandBuild)
	last := waitTerminal(t, router, "appname1")
	assert.Equal(t, task.StatusFailure, last.Status)
	assert.Equal(t, "build exploded", last.Error)

	require.True(t, router.Enqueue(task.New("appname1", task.CommandDeploy)))
	waitCommand(t, handled, task.CommandDeploy)
	last = waitTerminal(t, router, "appname1")
	assert.Equal(t, task.StatusSuccess, last.Status)
	assert.Equal(t, task.CommandDeploy, last.Command)

	cancel()
	select {
	case <-stopped:
	case <-time.After(2 * time.Second):
		t.Fatalf("loop did not stop after cancel")
	}
}

func TestRegistryBind(t *testing.T) {
	reg := NewRegistry()
	reg.MustRegister("ShellWorker", func(cfg *appconfig.AppConfig, router *task.Router) (Worker, error) {
		return &Loop{AppName: cfg.Name, Router: router}, nil
	})
	reg.MustRegister("workers.CustomWorker1", func(cfg *appconfig.AppConfig, router *task.Router) (Worker, error) {
		return nil, errors.New("not configured")
	})

	router := task.NewRouter([]string{"local", "external"})
	defer router.Close()

	w, err := reg.Bind(&appconfig.AppConfig{Name: "local", Worker: appconfig.WorkerLocation{Dir: ".", Module: ".", Class: "ShellWorker"}}, router)
	require.NoError(t, err)
	assert.Equal(t, "local", w.App())

	_, err = reg.Bind(&appconfig.AppConfig{Name: "external", Worker: appconfig.WorkerLocation{Dir: "/opt/w", Module: "workers", Class: "CustomWorker1"}}, router)
	assert.ErrorContains(t, err, "not configured")

	_, err = reg.Bind(&appconfig.AppConfig{Name: "local", Worker: appconfig.WorkerLocation{Dir: "/opt/w", Module: "workers", Class: "Missing"}}, router)
	assert.ErrorIs(t, err, ErrUnknownWorker)

	assert.ErrorIs(t, reg.Register("ShellWorker", nil), ErrDuplicateWorker)
	assert.Equal(t, []string{"ShellWorker", "workers.CustomWorker1"}, reg.Keys())
}

type blockingWorker struct {
	app     string
	started chan struct{}
}

func (w *blockingWorker) App() string { return w.app }

func (w *blockingWorker) Run(ctx context.Context) {
	close(w.started)
	<-ctx.Done()
}

func TestSupervisorReplaceStopsPreviousSet(t *testing.T) {
	s := NewSupervisor()

	first := &blockingWorker{app: "a", started: make(chan struct{})}
	s.Replace([]Worker{first})
	<-first.started
	assert.Equal(t, 1, s.Running())

	second := &blockingWorker{app: "a", started: make(chan struct{})}
	third := &blockingWorker{app: "b", started: make(chan struct{})}
	s.Replace([]Worker{second, third})
	<-second.started
	<-third.started
	assert.Equal(t, 2, s.Running())
	assert.Len(t, s.Workers(), 2)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.True(t, s.Stop(ctx))
	assert.Equal(t, 0, s.Running())
}

func TestSupervisorWaitAllTimesOut(t *testing.T) {
	s := NewSupervisor()
	w := &blockingWorker{app: "a", started: make(chan struct{})}
	s.Replace([]Worker{w})
	<-w.started

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.False(t, s.WaitAll(ctx))

	require.True(t, s.Stop(context.Background()))
}

func waitCommand(t *testing.T, ch <-chan task.Command, want task.Command) {
	t.Helper()
	select {
	case got := <-ch:
		require.Equal(t, want, got)
	case <-time.After(2 * time.Second):
		t.Fatalf("timeout waiting for %s", want)
	}
}

func waitTerminal(t *testing.T, router *task.Router, app string) task.Task {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		last, err := router.Last(app)
		require.NoError(t, err)
		if last.Status.IsTerminal() && last.Command != task.CommandNothing {
			return last
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timeout waiting for %s to finish", app)
	return task.Task{}
}

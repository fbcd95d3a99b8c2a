package contrib

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ciex/internal/appconfig"
	fileutil "ciex/internal/file"
	"ciex/internal/task"
	"ciex/internal/worker"
)

type fakeRunner struct {
	mu     sync.Mutex
	cmds   []Cmd
	failOn string
}

func (f *fakeRunner) Run(_ context.Context, c Cmd) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cmds = append(f.cmds, c)
	if f.failOn != "" && strings.Contains(c.String(), f.failOn) {
		return nil, errors.New(c.String() + ": exit status 1")
	}
	return []byte("ok"), nil
}

func (f *fakeRunner) recorded() []Cmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Cmd(nil), f.cmds...)
}

func newAppConfig(t *testing.T, class string, options map[string]string) *appconfig.AppConfig {
	t.Helper()
	root := t.TempDir()
	if options == nil {
		options = map[string]string{}
	}
	return &appconfig.AppConfig{
		Name:        "appname1",
		Repo:        "git@example.org:org/appname1.git",
		SrcPath:     filepath.Join(root, "src"),
		InstallPath: filepath.Join(root, "install"),
		Worker:      appconfig.WorkerLocation{Dir: ".", Module: ".", Class: class},
		Options:     options,
	}
}

func execute(loop *worker.Loop, cmd task.Command) *task.Task {
	return worker.Execute(context.Background(), loop.Handlers, task.New(loop.AppName, cmd))
}

func TestShellWorkerDeployClonesIntoSrcPath(t *testing.T) {
	cfg := newAppConfig(t, "ShellWorker", nil)
	runner := &fakeRunner{}
	loop := NewShellWorker(cfg, nil, runner)

	tsk := execute(loop, task.CommandDeploy)
	require.Equal(t, task.StatusSuccess, tsk.Status, tsk.Error)
	assert.True(t, fileutil.IsDir(cfg.SrcPath), "deploy should create src_path")

	cmds := runner.recorded()
	require.Len(t, cmds, 1)
	assert.Equal(t, "git", cmds[0].Name)
	assert.Equal(t, []string{"clone", cfg.Repo, "appname1"}, cmds[0].Args)
	assert.Equal(t, cfg.SrcPath, cmds[0].Dir)
	assert.Contains(t, cmds[0].Env, "CIEX_APP=appname1")
}

func TestShellWorkerDeployRefusesExistingClone(t *testing.T) {
	cfg := newAppConfig(t, "ShellWorker", nil)
	require.NoError(t, os.MkdirAll(filepath.Join(cfg.SrcPath, cfg.Name), 0o750))
	runner := &fakeRunner{}

	tsk := execute(NewShellWorker(cfg, nil, runner), task.CommandDeploy)
	assert.Equal(t, task.StatusFailure, tsk.Status)
	assert.Contains(t, tsk.Error, ErrAlreadyDeployed.Error())
	assert.Empty(t, runner.recorded())
}

func TestShellWorkerPullNeedsClone(t *testing.T) {
	cfg := newAppConfig(t, "ShellWorker", nil)
	runner := &fakeRunner{}
	loop := NewShellWorker(cfg, nil, runner)

	tsk := execute(loop, task.CommandPull)
	assert.Equal(t, task.StatusFailure, tsk.Status)
	assert.Contains(t, tsk.Error, ErrNotDeployed.Error())

	require.NoError(t, os.MkdirAll(filepath.Join(cfg.SrcPath, cfg.Name), 0o750))
	tsk = execute(loop, task.CommandPull)
	require.Equal(t, task.StatusSuccess, tsk.Status, tsk.Error)
	assert.Equal(t, []string{"pull"}, runner.recorded()[0].Args)
}

func TestShellWorkerRunsConfiguredCommands(t *testing.T) {
	cfg := newAppConfig(t, "ShellWorker", map[string]string{"build_cmd": "make release"})
	runner := &fakeRunner{}
	loop := NewShellWorker(cfg, nil, runner)

	tsk := execute(loop, task.CommandBuild)
	require.Equal(t, task.StatusSuccess, tsk.Status, tsk.Error)
	cmds := runner.recorded()
	require.Len(t, cmds, 1)
	assert.Equal(t, "sh", cmds[0].Name)
	assert.Equal(t, []string{"-c", "make release"}, cmds[0].Args)
	assert.Equal(t, filepath.Join(cfg.SrcPath, cfg.Name), cmds[0].Dir)

	tsk = execute(loop, task.CommandStart)
	assert.Equal(t, task.StatusFailure, tsk.Status)
	assert.Contains(t, tsk.Error, "start_cmd")
	assert.ErrorIs(t, notConfigured("start_cmd"), ErrNotConfigured)
}

func TestElixirWorkerBuildUsesProdRelease(t *testing.T) {
	cfg := newAppConfig(t, "ElixirWorker", nil)
	runner := &fakeRunner{}

	tsk := execute(NewElixirWorker(cfg, nil, runner), task.CommandBuild)
	require.Equal(t, task.StatusSuccess, tsk.Status, tsk.Error)

	cmds := runner.recorded()
	require.Len(t, cmds, 2)
	assert.Equal(t, "mix deps.get", cmds[0].String())
	assert.Equal(t, "mix release", cmds[1].String())
	for _, c := range cmds {
		assert.Contains(t, c.Env, "MIX_ENV=prod")
		assert.Equal(t, filepath.Join(cfg.SrcPath, "appname1"), c.Dir)
	}
}

func TestElixirWorkerBuildStopsOnFailure(t *testing.T) {
	cfg := newAppConfig(t, "ElixirWorker", nil)
	runner := &fakeRunner{failOn: "deps.get"}

	tsk := execute(NewElixirWorker(cfg, nil, runner), task.CommandBuild)
	assert.Equal(t, task.StatusFailure, tsk.Status)
	assert.Contains(t, tsk.Error, "mix deps.get")
	assert.Len(t, runner.recorded(), 1)
}

func TestElixirWorkerReleaseCommands(t *testing.T) {
	cfg := newAppConfig(t, "ElixirWorker", map[string]string{"release_tag": "0.2.0"})
	runner := &fakeRunner{}
	loop := NewElixirWorker(cfg, nil, runner)

	require.Equal(t, task.StatusSuccess, execute(loop, task.CommandStart).Status)
	require.Equal(t, task.StatusSuccess, execute(loop, task.CommandUpgrade).Status)
	downgrade := execute(loop, task.CommandDowngrade)
	assert.Equal(t, task.StatusFailure, downgrade.Status)
	assert.Contains(t, downgrade.Error, "previous_tag")

	cmds := runner.recorded()
	require.Len(t, cmds, 2)
	bin := filepath.Join(cfg.SrcPath, "appname1", "rel", "appname1", "bin")
	assert.Equal(t, "./appname1 start", cmds[0].String())
	assert.Equal(t, "./appname1 upgrade 0.2.0", cmds[1].String())
	assert.Equal(t, bin, cmds[0].Dir)
}

func TestGolangWorkerBuildWritesRelease(t *testing.T) {
	cfg := newAppConfig(t, "GolangWorker", map[string]string{"build_flags": "-trimpath", "main_pkg": "./cmd/server"})
	runner := &fakeRunner{}
	loop := NewGolangWorker(cfg, nil, runner)

	tsk := execute(loop, task.CommandBuild)
	require.Equal(t, task.StatusSuccess, tsk.Status, tsk.Error)

	binary := filepath.Join(cfg.InstallPath, "appname1", "appname1")
	cmds := runner.recorded()
	require.Len(t, cmds, 1)
	assert.Equal(t, []string{"build", "-o", binary, "-trimpath", "./cmd/server"}, cmds[0].Args)

	var rel Release
	require.NoError(t, fileutil.ReadJSON(filepath.Join(cfg.InstallPath, "appname1", "release.json"), &rel))
	assert.Equal(t, tsk.ID, rel.TaskID)
	assert.Equal(t, binary, rel.Binary)

	assert.False(t, loop.Handlers.Supports(task.CommandDowngrade))
	assert.Equal(t, task.StatusFailure, execute(loop, task.CommandDowngrade).Status)
}

func TestGolangWorkerUpgradePullsThenBuilds(t *testing.T) {
	cfg := newAppConfig(t, "GolangWorker", nil)
	require.NoError(t, os.MkdirAll(filepath.Join(cfg.SrcPath, cfg.Name), 0o750))
	runner := &fakeRunner{}

	tsk := execute(NewGolangWorker(cfg, nil, runner), task.CommandUpgrade)
	require.Equal(t, task.StatusSuccess, tsk.Status, tsk.Error)
	cmds := runner.recorded()
	require.Len(t, cmds, 2)
	assert.Equal(t, "git pull", cmds[0].String())
	assert.Equal(t, "go", cmds[1].Name)
}

func TestRegisterInstallsBuiltins(t *testing.T) {
	reg := worker.NewRegistry()
	Register(reg, &fakeRunner{})
	assert.Equal(t, []string{"ElixirCIWorker", "ElixirWorker", "GolangWorker", "ShellWorker"}, reg.Keys())

	router := task.NewRouter([]string{"appname1"})
	defer router.Close()
	w, err := reg.Bind(newAppConfig(t, "GolangWorker", nil), router)
	require.NoError(t, err)
	assert.Equal(t, "appname1", w.App())
}

func TestRegisterKeepsElixirCIWorkerName(t *testing.T) {
	reg := worker.NewRegistry()
	Register(reg, &fakeRunner{})

	router := task.NewRouter([]string{"appname1"})
	defer router.Close()
	w, err := reg.Bind(newAppConfig(t, "ElixirCIWorker", nil), router)
	require.NoError(t, err)
	loop, ok := w.(*worker.Loop)
	require.True(t, ok)
	assert.True(t, loop.Handlers.Supports(task.CommandDowngrade))
}

func TestExecRunner(t *testing.T) {
	out, err := ExecRunner{}.Run(context.Background(), Cmd{Name: "sh", Args: []string{"-c", "echo $GREETING"}, Env: []string{"GREETING=hello"}})
	require.NoError(t, err)
	assert.Equal(t, "hello", strings.TrimSpace(string(out)))

	_, err = ExecRunner{}.Run(context.Background(), Cmd{Name: "sh", Args: []string{"-c", "echo broken >&2; exit 3"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broken")
}

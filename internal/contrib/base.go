package contrib

import (
	"context"
	"fmt"
	"path/filepath"

	"ciex/internal/appconfig"
	fileutil "ciex/internal/file"
	"ciex/internal/task"
	"ciex/internal/worker"
)

// Register installs the built-in workers in the local catalog.
func Register(reg *worker.Registry, runner Runner) {
	if runner == nil {
		runner = ExecRunner{}
	}
	reg.MustRegister("ShellWorker", func(cfg *appconfig.AppConfig, router *task.Router) (worker.Worker, error) {
		return NewShellWorker(cfg, router, runner), nil
	})
	elixir := func(cfg *appconfig.AppConfig, router *task.Router) (worker.Worker, error) {
		return NewElixirWorker(cfg, router, runner), nil
	}
	reg.MustRegister("ElixirWorker", elixir)
	// older settings files name the Elixir worker by its previous class name
	reg.MustRegister("ElixirCIWorker", elixir)
	reg.MustRegister("GolangWorker", func(cfg *appconfig.AppConfig, router *task.Router) (worker.Worker, error) {
		return NewGolangWorker(cfg, router, runner), nil
	})
}

// base carries what every built-in worker needs: the app settings and a way
// to run commands.
type base struct {
	cfg    *appconfig.AppConfig
	runner Runner
}

// repoDir is where the app repository is cloned: <src_path>/<app>.
func (b base) repoDir() string {
	return filepath.Join(b.cfg.SrcPath, b.cfg.Name)
}

// installDir is where build outputs land: <install_path>/<app>.
func (b base) installDir() string {
	return filepath.Join(b.cfg.InstallPath, b.cfg.Name)
}

func (b base) env(t *task.Task, extra ...string) []string {
	return append([]string{
		"CIEX_APP=" + b.cfg.Name,
		"CIEX_TASK_ID=" + t.ID,
		"CIEX_SRC_PATH=" + b.repoDir(),
		"CIEX_INSTALL_PATH=" + b.installDir(),
	}, extra...)
}

func (b base) run(ctx context.Context, c Cmd) error {
	_, err := b.runner.Run(ctx, c)
	return err
}

// deploy clones the repository into src_path, creating src_path if needed.
func (b base) deploy(ctx context.Context, t *task.Task) error {
	if err := fileutil.EnsureDir(b.cfg.SrcPath); err != nil {
		return err
	}
	if fileutil.IsDir(b.repoDir()) {
		return fmt.Errorf("%w: %s", ErrAlreadyDeployed, b.repoDir())
	}
	return b.run(ctx, Cmd{
		Dir:  b.cfg.SrcPath,
		Env:  b.env(t),
		Name: "git",
		Args: []string{"clone", b.cfg.Repo, b.cfg.Name},
	})
}

// pull fetches remote changes into the cloned repository.
func (b base) pull(ctx context.Context, t *task.Task) error {
	if !fileutil.IsDir(b.repoDir()) {
		return fmt.Errorf("%w: %s", ErrNotDeployed, b.repoDir())
	}
	return b.run(ctx, Cmd{Dir: b.repoDir(), Env: b.env(t), Name: "git", Args: []string{"pull"}})
}

// shell runs the command line stored under option through sh -c in dir.
func (b base) shell(option, dir string) worker.Handler {
	return func(ctx context.Context, t *task.Task) error {
		line := b.cfg.Option(option, "")
		if line == "" {
			return notConfigured(option)
		}
		return b.run(ctx, Cmd{Dir: dir, Env: b.env(t), Name: "sh", Args: []string{"-c", line}})
	}
}

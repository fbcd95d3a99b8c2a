package contrib

import (
	"context"
	"path/filepath"
	"strings"
	"time"

	"ciex/internal/appconfig"
	fileutil "ciex/internal/file"
	"ciex/internal/task"
	"ciex/internal/worker"
)

// Release describes the binary last built by the Go worker. It is written
// next to the binary as release.json.
type Release struct {
	App     string    `json:"app"`
	TaskID  string    `json:"task_id"`
	Binary  string    `json:"binary"`
	BuiltAt time.Time `json:"built_at"`
}

type golangWorker struct {
	base
}

// NewGolangWorker builds a worker for Go services: build compiles main_pkg
// (default ".") into <install_path>/<app>/<app>, upgrade pulls and rebuilds,
// start_cmd and stop_cmd run from the install directory.
func NewGolangWorker(cfg *appconfig.AppConfig, router *task.Router, runner Runner) *worker.Loop {
	w := golangWorker{base{cfg: cfg, runner: runner}}
	return &worker.Loop{
		AppName: cfg.Name,
		Router:  router,
		Handlers: worker.Handlers{
			task.CommandDeploy:  w.deploy,
			task.CommandPull:    w.pull,
			task.CommandBuild:   w.build,
			task.CommandUpgrade: w.upgrade,
			task.CommandStart:   w.shell("start_cmd", w.installDir()),
			task.CommandStop:    w.shell("stop_cmd", w.installDir()),
		},
	}
}

func (w golangWorker) binary() string {
	return filepath.Join(w.installDir(), w.cfg.Name)
}

func (w golangWorker) build(ctx context.Context, t *task.Task) error {
	if err := fileutil.EnsureDir(w.installDir()); err != nil {
		return err
	}
	args := []string{"build", "-o", w.binary()}
	args = append(args, strings.Fields(w.cfg.Option("build_flags", ""))...)
	args = append(args, w.cfg.Option("main_pkg", "."))
	if err := w.run(ctx, Cmd{Dir: w.repoDir(), Env: w.env(t), Name: "go", Args: args}); err != nil {
		return err
	}
	return fileutil.WriteJSONAtomic(filepath.Join(w.installDir(), "release.json"), Release{
		App:     w.cfg.Name,
		TaskID:  t.ID,
		Binary:  w.binary(),
		BuiltAt: time.Now().UTC(),
	})
}

func (w golangWorker) upgrade(ctx context.Context, t *task.Task) error {
	if err := w.pull(ctx, t); err != nil {
		return err
	}
	return w.build(ctx, t)
}

package contrib

import (
	"context"
	"path/filepath"

	"ciex/internal/appconfig"
	"ciex/internal/task"
	"ciex/internal/worker"
)

type elixirWorker struct {
	base
}

// NewElixirWorker builds a worker for mix-based apps shipped as releases.
// Upgrades and downgrades go to the versions named by the release_tag and
// previous_tag options.
func NewElixirWorker(cfg *appconfig.AppConfig, router *task.Router, runner Runner) *worker.Loop {
	w := elixirWorker{base{cfg: cfg, runner: runner}}
	return &worker.Loop{
		AppName: cfg.Name,
		Router:  router,
		Handlers: worker.Handlers{
			task.CommandDeploy:    w.deploy,
			task.CommandPull:      w.pull,
			task.CommandBuild:     w.build,
			task.CommandStart:     w.releaseCommand("start", ""),
			task.CommandStop:      w.releaseCommand("stop", ""),
			task.CommandUpgrade:   w.releaseCommand("upgrade", "release_tag"),
			task.CommandDowngrade: w.releaseCommand("downgrade", "previous_tag"),
		},
	}
}

// releaseBin is the unversioned release bin directory.
func (w elixirWorker) releaseBin() string {
	return filepath.Join(w.repoDir(), "rel", w.cfg.Name, "bin")
}

func (w elixirWorker) build(ctx context.Context, t *task.Task) error {
	env := w.env(t, "MIX_ENV=prod")
	if err := w.run(ctx, Cmd{Dir: w.repoDir(), Env: env, Name: "mix", Args: []string{"deps.get"}}); err != nil {
		return err
	}
	return w.run(ctx, Cmd{Dir: w.repoDir(), Env: env, Name: "mix", Args: []string{"release"}})
}

// releaseCommand runs "./<app> <action> [tag]" from the release bin
// directory. tagOption, when set, names the option holding the version.
func (w elixirWorker) releaseCommand(action, tagOption string) worker.Handler {
	return func(ctx context.Context, t *task.Task) error {
		args := []string{action}
		if tagOption != "" {
			tag := w.cfg.Option(tagOption, "")
			if tag == "" {
				return notConfigured(tagOption)
			}
			args = append(args, tag)
		}
		return w.run(ctx, Cmd{
			Dir:  w.releaseBin(),
			Env:  w.env(t),
			Name: "./" + w.cfg.Name,
			Args: args,
		})
	}
}

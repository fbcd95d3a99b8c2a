package contrib

import (
	"ciex/internal/appconfig"
	"ciex/internal/task"
	"ciex/internal/worker"
)

// NewShellWorker builds a worker that clones and pulls with git and runs the
// command lines configured in the app options for everything else:
// build_cmd, start_cmd, stop_cmd, upgrade_cmd and downgrade_cmd. Lines run
// in the cloned repository.
func NewShellWorker(cfg *appconfig.AppConfig, router *task.Router, runner Runner) *worker.Loop {
	b := base{cfg: cfg, runner: runner}
	return &worker.Loop{
		AppName: cfg.Name,
		Router:  router,
		Handlers: worker.Handlers{
			task.CommandDeploy:    b.deploy,
			task.CommandPull:      b.pull,
			task.CommandBuild:     b.shell("build_cmd", b.repoDir()),
			task.CommandStart:     b.shell("start_cmd", b.repoDir()),
			task.CommandStop:      b.shell("stop_cmd", b.repoDir()),
			task.CommandUpgrade:   b.shell("upgrade_cmd", b.repoDir()),
			task.CommandDowngrade: b.shell("downgrade_cmd", b.repoDir()),
		},
	}
}

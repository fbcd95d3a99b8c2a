// Package contrib holds the built-in CI workers: a generic shell worker and
// flavours for Elixir releases and Go binaries.
package contrib

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

// Cmd is one external command invocation.
type Cmd struct {
	Dir  string
	Env  []string
	Name string
	Args []string
}

func (c Cmd) String() string {
	return strings.TrimSpace(c.Name + " " + strings.Join(c.Args, " "))
}

// Runner executes external commands. Tests swap in a recording fake.
type Runner interface {
	Run(ctx context.Context, c Cmd) ([]byte, error)
}

// ExecRunner runs commands with os/exec, inheriting the daemon environment.
type ExecRunner struct{}

func (ExecRunner) Run(ctx context.Context, c Cmd) ([]byte, error) {
	cmd := exec.CommandContext(ctx, c.Name, c.Args...)
	cmd.Dir = c.Dir
	if len(c.Env) > 0 {
		cmd.Env = append(os.Environ(), c.Env...)
	}

	started := time.Now()
	out, err := cmd.CombinedOutput()
	log.Debug().Str("cmd", c.String()).Str("dir", c.Dir).Dur("took", time.Since(started)).
		Int("output_bytes", len(out)).Msg("command finished")
	if err != nil {
		return out, fmt.Errorf("%s: %w\n%s", c, err, strings.TrimSpace(string(out)))
	}
	return out, nil
}

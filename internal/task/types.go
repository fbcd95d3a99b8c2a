package task

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"ciex/internal/appconfig"
)

type Status string

const (
	StatusPending Status = "pending"
	StatusSuccess Status = "success"
	StatusFailure Status = "failure"
)

// IsTerminal reports whether the status is a finished one.
func (s Status) IsTerminal() bool {
	return s == StatusSuccess || s == StatusFailure
}

// Command is the worker operation a task asks for.
type Command string

const (
	CommandNothing   Command = "nothing"
	CommandDeploy    Command = "deploy"
	CommandBuild     Command = "build"
	CommandStart     Command = "start_"
	CommandStop      Command = "stop"
	CommandUpgrade   Command = "upgrade"
	CommandDowngrade Command = "downgrade"
	CommandPull      Command = "pull"
)

// external command names; "start" is routed to the worker operation "start_"
var commandsByName = map[string]Command{
	"deploy":    CommandDeploy,
	"build":     CommandBuild,
	"start":     CommandStart,
	"stop":      CommandStop,
	"upgrade":   CommandUpgrade,
	"downgrade": CommandDowngrade,
	"pull":      CommandPull,
}

// ParseCommand maps an external command name to its worker operation.
func ParseCommand(name string) (Command, error) {
	if cmd, ok := commandsByName[strings.ToLower(strings.TrimSpace(name))]; ok {
		return cmd, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownCommand, name)
}

// CommandNames lists the external command names accepted by ParseCommand.
func CommandNames() []string {
	names := make([]string, 0, len(commandsByName))
	for name := range commandsByName {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Task is one unit of requested work for one application.
type Task struct {
	ID      string               `json:"id"`
	AppName string               `json:"app_name"`
	Command Command              `json:"command"`
	Status  Status               `json:"status"`
	Error   string               `json:"error,omitempty"`
	Env     *appconfig.AppConfig `json:"-"`
	Start   time.Time            `json:"start"`
	Finish  *time.Time           `json:"finish,omitempty"`
}

// New creates a pending task stamped with the current time.
func New(appName string, cmd Command) *Task {
	return &Task{
		ID:      uuid.NewString(),
		AppName: appName,
		Command: cmd,
		Status:  StatusPending,
		Start:   time.Now(),
	}
}

// Pending resets the task to pending and clears any previous outcome.
func (t *Task) Pending() *Task {
	t.Status = StatusPending
	t.Error = ""
	t.Finish = nil
	return t
}

// Succeed marks the task as successfully completed.
func (t *Task) Succeed() *Task {
	t.Status = StatusSuccess
	return t.finished()
}

// Fail records err and marks the task as failed.
func (t *Task) Fail(err error) *Task {
	if err != nil {
		t.Error = err.Error()
	}
	if t.Error == "" {
		t.Error = "unknown failure"
	}
	t.Status = StatusFailure
	return t.finished()
}

func (t *Task) finished() *Task {
	now := time.Now()
	t.Finish = &now
	return t
}

func (t Task) String() string {
	finish := "none"
	if t.Finish != nil {
		finish = t.Finish.Format(time.RFC3339)
	}
	errText := "none"
	if t.Error != "" {
		errText = t.Error
	}
	return fmt.Sprintf("<Task(app_name=%s, command=%s, status=%s, error=%s, start=%s, finish=%s)>",
		t.AppName, t.Command, t.Status, errText, t.Start.Format(time.RFC3339), finish)
}

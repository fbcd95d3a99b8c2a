package api

import (
	"fmt"
	"sort"
	"sync"

	"github.com/gin-gonic/gin"
)

// CommandHandler serves one named command. app is empty for commands that
// do not target an application.
type CommandHandler func(c *gin.Context, app string)

// Command is one entry of the command table.
type Command struct {
	Name    string `json:"name"`
	Help    string `json:"help"`
	handler CommandHandler
}

// Commands is the table of commands the daemon answers to.
type Commands struct {
	mu     sync.RWMutex
	byName map[string]Command
}

func NewCommands() *Commands {
	return &Commands{byName: make(map[string]Command)}
}

// AddCommand registers a command under name. Names are unique.
func (cs *Commands) AddCommand(name, help string, h CommandHandler) error {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	if _, ok := cs.byName[name]; ok {
		return fmt.Errorf("command %q already registered", name)
	}
	cs.byName[name] = Command{Name: name, Help: help, handler: h}
	return nil
}

func (cs *Commands) lookup(name string) (Command, bool) {
	cs.mu.RLock()
	defer cs.mu.RUnlock()
	cmd, ok := cs.byName[name]
	return cmd, ok
}

// List returns the registered commands sorted by name.
func (cs *Commands) List() []Command {
	cs.mu.RLock()
	defer cs.mu.RUnlock()
	out := make([]Command, 0, len(cs.byName))
	for _, cmd := range cs.byName {
		out = append(out, cmd)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

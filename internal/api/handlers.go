package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"ciex/internal/core"
	"ciex/internal/task"
)

type taskResponse struct {
	ID      string       `json:"id"`
	App     string       `json:"app"`
	Command task.Command `json:"command"`
	Status  task.Status  `json:"status"`
	Error   string       `json:"error,omitempty"`
	Start   string       `json:"start"`
	Finish  string       `json:"finish,omitempty"`
	Echo    string       `json:"echo"`
}

type commandResponse struct {
	Admitted bool          `json:"admitted"`
	Message  string        `json:"message"`
	Task     *taskResponse `json:"task,omitempty"`
}

type API struct {
	core     *core.Core
	commands *Commands
}

var taskCommands = map[string]string{
	"deploy":    "clone the app repository into src_path",
	"build":     "build the app",
	"start":     "start the app",
	"stop":      "stop the app",
	"upgrade":   "upgrade the running app",
	"downgrade": "downgrade the running app",
	"pull":      "pull the latest sources",
}

func NewAPI(c *core.Core) *API {
	a := &API{core: c, commands: NewCommands()}
	for name, help := range taskCommands {
		a.mustAdd(name, help, a.runTask(name))
	}
	a.mustAdd("reload", "reload app settings and restart workers", func(c *gin.Context, _ string) { a.Reload(c) })
	a.mustAdd("list", "list configured apps", func(c *gin.Context, _ string) { a.ListApps(c) })
	a.mustAdd("ping", "check that the daemon answers", func(c *gin.Context, _ string) { a.Ping(c) })
	a.mustAdd("last", "show the last task of an app", a.last)
	return a
}

func (a *API) mustAdd(name, help string, h CommandHandler) {
	if err := a.commands.AddCommand(name, help, h); err != nil {
		panic(err)
	}
}

// Commands exposes the command table so callers can add their own.
func (a *API) Commands() *Commands { return a.commands }

// RegisterRoutes registers API routes on the provided gin engine
func (a *API) RegisterRoutes(router *gin.Engine) {
	api := router.Group("/api/v1")
	{
		api.GET("/ping", a.Ping)
		api.GET("/commands", a.ListCommands)
		api.POST("/reload", a.Reload)
		api.GET("/apps", a.ListApps)
		api.GET("/apps/:app/last", a.Last)
		api.POST("/apps/:app/:command", a.RunCommand)
	}
}

// Ping answers pong
func (a *API) Ping(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"result": "pong"})
}

// ListCommands returns the command table with help text
func (a *API) ListCommands(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"commands": a.commands.List()})
}

// Reload re-reads app settings. A failed reload is reported as data.
func (a *API) Reload(c *gin.Context) {
	result := a.core.Reload()
	log.Info().Str("result", result).Msg("reload requested")
	c.JSON(http.StatusOK, gin.H{"result": result})
}

// ListApps returns the configured app names
func (a *API) ListApps(c *gin.Context) {
	apps, err := a.core.List()
	if err != nil {
		a.fail(c, "", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"apps": apps})
}

// Last returns the last task recorded for an app
func (a *API) Last(c *gin.Context) {
	a.last(c, c.Param("app"))
}

func (a *API) last(c *gin.Context, app string) {
	t, err := a.core.LastTask(app)
	if err != nil {
		a.fail(c, app, err)
		return
	}
	c.JSON(http.StatusOK, toTaskResponse(t))
}

// RunCommand dispatches a command from the table against an app
func (a *API) RunCommand(c *gin.Context) {
	name := c.Param("command")
	cmd, ok := a.commands.lookup(name)
	if !ok {
		log.Warn().Str("command", name).Msg("unknown command requested")
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown command: " + name})
		return
	}
	cmd.handler(c, c.Param("app"))
}

func (a *API) runTask(name string) CommandHandler {
	return func(c *gin.Context, app string) {
		res, err := a.core.Dispatch(app, name)
		if err != nil {
			a.fail(c, app, err)
			return
		}
		resp := commandResponse{Admitted: res.Admitted, Message: res.Message}
		if res.Task != nil {
			tr := toTaskResponse(*res.Task)
			resp.Task = &tr
		}
		if !res.Admitted {
			c.JSON(http.StatusConflict, resp)
			return
		}
		c.JSON(http.StatusAccepted, resp)
	}
}

func (a *API) fail(c *gin.Context, app string, err error) {
	status := statusFor(err)
	evt := log.Warn()
	if status >= http.StatusInternalServerError {
		evt = log.Error()
	}
	evt.Str("app", app).Err(err).Msg("command failed")
	c.JSON(status, gin.H{"error": err.Error()})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, core.ErrNotReady):
		return http.StatusServiceUnavailable
	case errors.Is(err, task.ErrUnknownApp):
		return http.StatusNotFound
	case errors.Is(err, task.ErrUnknownCommand):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func toTaskResponse(t task.Task) taskResponse {
	resp := taskResponse{
		ID:      t.ID,
		App:     t.AppName,
		Command: t.Command,
		Status:  t.Status,
		Error:   t.Error,
		Start:   t.Start.UTC().Format(time.RFC3339),
		Echo:    t.String(),
	}
	if t.Finish != nil {
		resp.Finish = t.Finish.UTC().Format(time.RFC3339)
	}
	return resp
}

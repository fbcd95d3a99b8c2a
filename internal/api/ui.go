package api

import (
	"errors"
	"html/template"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"ciex/internal/core"
	"ciex/internal/task"
)

var uiTemplates = template.Must(template.New("layout").Funcs(template.FuncMap{
	"ts": func(t *time.Time) string {
		if t == nil {
			return "-"
		}
		return t.Format(time.RFC3339)
	},
}).Parse(`{{define "status"}}
<!doctype html>
<html lang="en">
<head>
  <meta charset="utf-8"/>
  <meta name="viewport" content="width=device-width, initial-scale=1"/>
  <title>ciex</title>
  <style>
    body{font-family:system-ui,-apple-system,Segoe UI,Roboto,Ubuntu,Cantarell,Noto Sans,sans-serif;max-width:960px;margin:32px auto;padding:0 16px;color:#0b0b0b;background:#fafafa}
    header{margin-bottom:24px}
    h1{font-size:22px;margin:0 0 8px}
    .card{background:#fff;border:1px solid #e9e9e9;border-radius:10px;padding:16px;margin:12px 0}
    .row{display:flex;gap:8px;flex-wrap:wrap;margin-top:8px}
    .btn{display:inline-block;background:#0b63e5;color:#fff;border:none;padding:6px 10px;border-radius:6px;cursor:pointer;font-size:13px}
    .btn.secondary{background:#444}
    .muted{color:#666}
    .mono{font-family:ui-monospace,SFMono-Regular,Menlo,Monaco,Consolas,monospace}
    .status{display:inline-block;padding:4px 8px;border-radius:6px;background:#efefef;font-size:12px}
    .status.pending{background:#fff4cc}
    .status.success{background:#dff5e1}
    .status.failure{background:#fbe1df}
    footer{margin-top:24px;color:#666;font-size:12px}
  </style>
</head>
<body>
  <header>
    <h1>ciex</h1>
    <div class="muted">Core state: <span class="status">{{.State}}</span></div>
    <form method="post" action="/ui/reload" class="row">
      <button class="btn secondary" type="submit">Reload settings</button>
    </form>
  </header>
  {{if .Error}}
  <div class="card" style="border-color:#f2b8b5;background:#fff6f6">
    <strong style="color:#b3261e">Error:</strong> <span class="muted">{{.Error}}</span>
  </div>
  {{end}}
  {{range .Apps}}
  <div class="card">
    <h2 class="mono">{{.AppName}}</h2>
    <div>Last: <span class="mono">{{.Command}}</span> <span class="status {{.Status}}">{{.Status}}</span></div>
    {{if .Error}}<div class="muted">error: {{.Error}}</div>{{end}}
    <div class="muted">started {{.Start.Format "2006-01-02T15:04:05Z07:00"}} · finished {{ts .Finish}}</div>
    <div class="row">
      {{$app := .AppName}}
      {{range $.Commands}}
      <form method="post" action="/ui/apps/{{$app}}/{{.}}">
        <button class="btn" type="submit">{{.}}</button>
      </form>
      {{end}}
    </div>
  </div>
  {{else}}
  <div class="card muted">No apps configured</div>
  {{end}}
  <footer>
    <div>API base: <span class="mono">/api/v1</span></div>
  </footer>
</body>
</html>
{{end}}
`))

// RegisterUIRoutes registers the HTML status page, no JS
func (a *API) RegisterUIRoutes(router *gin.Engine) {
	router.SetHTMLTemplate(uiTemplates)
	router.GET("/", a.UIStatus)
	router.POST("/ui/reload", a.UIReload)
	router.POST("/ui/apps/:app/:command", a.UIRunCommand)
}

// UIStatus renders every app with its last task
func (a *API) UIStatus(c *gin.Context) {
	a.renderStatus(c, http.StatusOK, "")
}

// UIReload reloads settings and renders the result
func (a *API) UIReload(c *gin.Context) {
	if result := a.core.Reload(); result != "ok" {
		a.renderStatus(c, http.StatusOK, result)
		return
	}
	c.Redirect(http.StatusFound, "/")
}

// UIRunCommand submits a task command from the status page
func (a *API) UIRunCommand(c *gin.Context) {
	res, err := a.core.Dispatch(c.Param("app"), c.Param("command"))
	if err != nil {
		a.renderStatus(c, statusFor(err), err.Error())
		return
	}
	if !res.Admitted {
		a.renderStatus(c, http.StatusConflict, res.Message)
		return
	}
	c.Redirect(http.StatusFound, "/")
}

func (a *API) renderStatus(c *gin.Context, status int, msg string) {
	apps, err := a.core.Statuses()
	if err != nil {
		if msg == "" {
			msg = err.Error()
		}
		if errors.Is(err, core.ErrNotReady) && status == http.StatusOK {
			status = http.StatusServiceUnavailable
		}
	}
	state, _ := a.core.State()
	c.HTML(status, "status", gin.H{
		"State":    state.String(),
		"Apps":     apps,
		"Commands": task.CommandNames(),
		"Error":    msg,
	})
}

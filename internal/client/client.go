// Package client talks to the daemon's command surface over TCP or a unix
// socket.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const defaultTimeout = 30 * time.Second

// APIError is a non-success answer from the daemon.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("daemon answered %d: %s", e.Status, e.Message)
}

// Task is the daemon's view of a task.
type Task struct {
	ID      string `json:"id"`
	App     string `json:"app"`
	Command string `json:"command"`
	Status  string `json:"status"`
	Error   string `json:"error,omitempty"`
	Start   string `json:"start"`
	Finish  string `json:"finish,omitempty"`
	Echo    string `json:"echo"`
}

// Result is the outcome of a task command. A rejected task is not an error.
type Result struct {
	Admitted bool   `json:"admitted"`
	Message  string `json:"message"`
	Task     *Task  `json:"task,omitempty"`
}

type Command struct {
	Name string `json:"name"`
	Help string `json:"help"`
}

type Client struct {
	base string
	http *http.Client
}

// New builds a client for addr: "unix:///path/to.sock", "http://host:port"
// or a bare "host:port".
func New(addr string) (*Client, error) {
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return nil, errors.New("empty daemon address")
	}
	if path, ok := strings.CutPrefix(addr, "unix://"); ok {
		if path == "" {
			return nil, fmt.Errorf("invalid unix address %q", addr)
		}
		var dialer net.Dialer
		transport := &http.Transport{
			DialContext: func(ctx context.Context, _, _ string) (net.Conn, error) {
				return dialer.DialContext(ctx, "unix", path)
			},
		}
		return &Client{base: "http://unix", http: &http.Client{Timeout: defaultTimeout, Transport: transport}}, nil
	}
	if !strings.Contains(addr, "://") {
		addr = "http://" + addr
	}
	u, err := url.Parse(addr)
	if err != nil {
		return nil, fmt.Errorf("parse daemon address: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	return &Client{base: strings.TrimRight(u.String(), "/"), http: &http.Client{Timeout: defaultTimeout}}, nil
}

func (c *Client) Ping(ctx context.Context) (string, error) {
	var out struct {
		Result string `json:"result"`
	}
	err := c.do(ctx, http.MethodGet, "/ping", &out)
	return out.Result, err
}

func (c *Client) Commands(ctx context.Context) ([]Command, error) {
	var out struct {
		Commands []Command `json:"commands"`
	}
	err := c.do(ctx, http.MethodGet, "/commands", &out)
	return out.Commands, err
}

// Reload returns "ok" or the daemon's "Err: ..." report.
func (c *Client) Reload(ctx context.Context) (string, error) {
	var out struct {
		Result string `json:"result"`
	}
	err := c.do(ctx, http.MethodPost, "/reload", &out)
	return out.Result, err
}

func (c *Client) Apps(ctx context.Context) ([]string, error) {
	var out struct {
		Apps []string `json:"apps"`
	}
	err := c.do(ctx, http.MethodGet, "/apps", &out)
	return out.Apps, err
}

func (c *Client) Last(ctx context.Context, app string) (Task, error) {
	var out Task
	err := c.do(ctx, http.MethodGet, "/apps/"+url.PathEscape(app)+"/last", &out)
	return out, err
}

// Run submits a task command for app.
func (c *Client) Run(ctx context.Context, app, command string) (Result, error) {
	var out Result
	err := c.do(ctx, http.MethodPost, "/apps/"+url.PathEscape(app)+"/"+url.PathEscape(command), &out)
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.Status == http.StatusConflict {
		return out, nil
	}
	return out, err
}

func (c *Client) do(ctx context.Context, method, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, c.base+"/api/v1"+path, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 || resp.StatusCode == http.StatusConflict {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode %s response: %w", path, err)
		}
		if resp.StatusCode == http.StatusConflict {
			return &APIError{Status: resp.StatusCode, Message: "task rejected"}
		}
		return nil
	}

	var body struct {
		Error string `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil || body.Error == "" {
		body.Error = http.StatusText(resp.StatusCode)
	}
	return &APIError{Status: resp.StatusCode, Message: body.Error}
}

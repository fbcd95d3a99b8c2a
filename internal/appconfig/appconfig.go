// Package appconfig turns raw "settings.app.<name>" sections into per-application
// configuration records.
package appconfig

import (
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
)

// SectionPrefix marks a section as describing one application.
const SectionPrefix = "settings.app."

const (
	KeyRepo            = "repo"
	KeySrcPath         = "src_path"
	KeyInstallPath     = "install_path"
	KeyWorkerDirpath   = "worker_dirpath"
	KeyWorkerModname   = "worker_modname"
	KeyWorkerClassname = "worker_classname"
)

var requiredKeys = []string{
	KeyRepo, KeySrcPath, KeyInstallPath,
	KeyWorkerDirpath, KeyWorkerModname, KeyWorkerClassname,
}

// WorkerLocation identifies the worker implementation bound to an app.
type WorkerLocation struct {
	Dir    string `json:"dir"`
	Module string `json:"module"`
	Class  string `json:"class"`
}

// IsLocal reports whether the location points at the built-in catalog.
func (l WorkerLocation) IsLocal() bool {
	return l.Dir == "." && l.Module == "."
}

// Key is the registry key for the location: the class name for built-in
// workers, "module.class" for everything else.
func (l WorkerLocation) Key() string {
	if l.IsLocal() {
		return l.Class
	}
	return l.Module + "." + l.Class
}

// AppConfig is the validated configuration of one application.
type AppConfig struct {
	Name        string            `json:"name"`
	Repo        string            `json:"repo"`
	SrcPath     string            `json:"src_path"`
	InstallPath string            `json:"install_path"`
	Worker      WorkerLocation    `json:"worker"`
	Options     map[string]string `json:"options,omitempty"`
}

// Option returns an extra option value or def when it is unset.
func (c *AppConfig) Option(key, def string) string {
	if v, ok := c.Options[key]; ok && v != "" {
		return v
	}
	return def
}

// New validates a single section and builds its AppConfig.
func New(sec Section) (*AppConfig, error) {
	values := make(map[string]string, len(sec.Values))
	for k, v := range sec.Values {
		values[strings.ToLower(strings.TrimSpace(k))] = trimValue(v)
	}
	for _, key := range requiredKeys {
		if v, ok := values[key]; !ok || v == "" {
			return nil, &ValidationError{Section: sec.Name, Key: key}
		}
	}

	cfg := &AppConfig{
		Name:        strings.TrimPrefix(sec.Name, SectionPrefix),
		Repo:        values[KeyRepo],
		SrcPath:     values[KeySrcPath],
		InstallPath: values[KeyInstallPath],
		Worker: WorkerLocation{
			Dir:    values[KeyWorkerDirpath],
			Module: values[KeyWorkerModname],
			Class:  values[KeyWorkerClassname],
		},
		Options: make(map[string]string),
	}
	for k, v := range values {
		if isRequired(k) {
			continue
		}
		cfg.Options[k] = v
	}
	return cfg, nil
}

// Load reads every app section from src. The first invalid section aborts the
// whole load and no partial map is returned.
func Load(src Source) (map[string]*AppConfig, error) {
	sections, err := src.Sections()
	if err != nil {
		return nil, fmt.Errorf("read app settings: %w", err)
	}

	apps := make(map[string]*AppConfig)
	for _, sec := range sections {
		if !strings.HasPrefix(sec.Name, SectionPrefix) {
			continue
		}
		cfg, err := New(sec)
		if err != nil {
			return nil, err
		}
		if _, dup := apps[cfg.Name]; dup {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateApp, cfg.Name)
		}
		apps[cfg.Name] = cfg
	}
	log.Debug().Int("apps", len(apps)).Msg("app settings loaded")
	return apps, nil
}

func isRequired(key string) bool {
	for _, k := range requiredKeys {
		if k == key {
			return true
		}
	}
	return false
}

// trimValue strips whitespace and one level of surrounding quotes.
func trimValue(v string) string {
	v = strings.TrimSpace(v)
	if len(v) >= 2 {
		if (v[0] == '"' && v[len(v)-1] == '"') || (v[0] == '\'' && v[len(v)-1] == '\'') {
			v = v[1 : len(v)-1]
		}
	}
	return strings.TrimSpace(v)
}

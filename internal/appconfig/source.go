package appconfig

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/ini.v1"
)

// Section is one named group of key/value settings.
type Section struct {
	Name   string
	Values map[string]string
}

// Source yields configuration sections. File-backed sources re-read their file
// on every call so a reload observes edits.
type Source interface {
	Sections() ([]Section, error)
}

type staticSource []Section

func (s staticSource) Sections() ([]Section, error) { return s, nil }

// Sections returns an in-memory source over the given sections.
func Sections(secs ...Section) Source { //nolint:ireturn
	return staticSource(secs)
}

type iniFile struct {
	path string
}

// IniFile returns a source reading an ini-style settings file.
func IniFile(path string) Source { //nolint:ireturn
	return iniFile{path: path}
}

func (s iniFile) Sections() ([]Section, error) {
	cfg, err := ini.LoadSources(ini.LoadOptions{InsensitiveKeys: true}, s.path)
	if err != nil {
		return nil, fmt.Errorf("parse ini %s: %w", s.path, err)
	}
	out := make([]Section, 0, len(cfg.Sections()))
	for _, sec := range cfg.Sections() {
		if sec.Name() == ini.DefaultSection {
			continue
		}
		values := make(map[string]string, len(sec.Keys()))
		for _, key := range sec.Keys() {
			values[key.Name()] = key.String()
		}
		out = append(out, Section{Name: sec.Name(), Values: values})
	}
	return out, nil
}

type tomlFile struct {
	path string
}

// TomlFile returns a source reading [settings.app.<name>] tables from a TOML file.
func TomlFile(path string) Source { //nolint:ireturn
	return tomlFile{path: path}
}

func (s tomlFile) Sections() ([]Section, error) {
	var raw map[string]any
	if _, err := toml.DecodeFile(s.path, &raw); err != nil {
		return nil, fmt.Errorf("parse toml %s: %w", s.path, err)
	}
	settings, _ := raw["settings"].(map[string]any)
	apps, _ := settings["app"].(map[string]any)

	names := make([]string, 0, len(apps))
	for name := range apps {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make([]Section, 0, len(names))
	for _, name := range names {
		table, ok := apps[name].(map[string]any)
		if !ok {
			return nil, fmt.Errorf("parse toml %s: %s%s is not a table", s.path, SectionPrefix, name)
		}
		values := make(map[string]string, len(table))
		for k, v := range table {
			values[k] = fmt.Sprint(v)
		}
		out = append(out, Section{Name: SectionPrefix + name, Values: values})
	}
	return out, nil
}

// File picks the source format from the file extension: .toml is read as
// TOML, anything else as ini.
func File(path string) Source { //nolint:ireturn
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		return TomlFile(path)
	}
	return IniFile(path)
}

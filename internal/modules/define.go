// Package modules discovers, installs and toggles plugins and themes. Disk
// modules are directories holding a _define.yaml manifest; builtin plugins
// are compiled in and registered at startup.
package modules

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

// DefineFile is the manifest every disk module carries.
const DefineFile = "_define.yaml"

// Type is plugin or theme.
type Type string

// Module types.
const (
	TypePlugin Type = "plugin"
	TypeTheme  Type = "theme"
)

var idPattern = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// Requirement names a module (or "core") and the lowest accepted version.
type Requirement struct {
	ID      string `yaml:"id" json:"id"`
	Version string `yaml:"version,omitempty" json:"version,omitempty"`
}

// Setting declares a configurable key and its default.
type Setting struct {
	Key     string `yaml:"key" json:"key"`
	Default string `yaml:"default,omitempty" json:"default,omitempty"`
	Desc    string `yaml:"desc,omitempty" json:"desc,omitempty"`
}

// Define is the module manifest.
type Define struct {
	Name        string        `yaml:"name" json:"name"`
	Desc        string        `yaml:"desc,omitempty" json:"desc,omitempty"`
	Author      string        `yaml:"author,omitempty" json:"author,omitempty"`
	Version     string        `yaml:"version" json:"version"`
	Type        Type          `yaml:"type,omitempty" json:"type"`
	Permissions string        `yaml:"permissions,omitempty" json:"permissions,omitempty"`
	Priority    int           `yaml:"priority,omitempty" json:"priority"`
	Requires    []Requirement `yaml:"requires,omitempty" json:"requires,omitempty"`
	Settings    []Setting     `yaml:"settings,omitempty" json:"settings,omitempty"`
	// Parent is the theme a theme inherits documents from.
	Parent  string `yaml:"parent,omitempty" json:"parent,omitempty"`
	Support string `yaml:"support,omitempty" json:"support,omitempty"`
	Details string `yaml:"details,omitempty" json:"details,omitempty"`
}

// ParseDefine decodes and validates a manifest. A missing type means plugin.
func ParseDefine(data []byte) (Define, error) {
	var d Define
	if err := yaml.Unmarshal(data, &d); err != nil {
		return Define{}, fmt.Errorf("parse %s: %w", DefineFile, err)
	}
	if d.Type == "" {
		d.Type = TypePlugin
	}
	if err := d.Validate(); err != nil {
		return Define{}, err
	}
	return d, nil
}

// Validate checks the required manifest fields.
func (d Define) Validate() error {
	var errs []error
	if strings.TrimSpace(d.Name) == "" {
		errs = append(errs, errors.New("name is required"))
	}
	if strings.TrimSpace(d.Version) == "" {
		errs = append(errs, errors.New("version is required"))
	}
	if d.Type != TypePlugin && d.Type != TypeTheme {
		errs = append(errs, fmt.Errorf("unknown type %q", d.Type))
	}
	for _, r := range d.Requires {
		if r.ID == "" {
			errs = append(errs, errors.New("requirement without id"))
		}
	}
	seen := map[string]bool{}
	for _, s := range d.Settings {
		if s.Key == "" || seen[s.Key] {
			errs = append(errs, fmt.Errorf("bad setting key %q", s.Key))
		}
		seen[s.Key] = true
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalidDefine, errors.Join(errs...))
	}
	return nil
}

// ValidID reports whether id can name a module directory.
func ValidID(id string) bool {
	return idPattern.MatchString(id)
}

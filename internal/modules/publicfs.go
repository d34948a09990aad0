package modules

import (
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// PublicDir is the module subdirectory served to visitors.
const PublicDir = "public"

// TemplateDir is the module subdirectory holding template overrides.
const TemplateDir = "tpl"

// PublicFS serves <module id>/<file> from the public/ directory of active
// disk modules.
func (m *Manager) PublicFS() fs.FS {
	return publicFS{m: m}
}

type publicFS struct {
	m *Manager
}

func (p publicFS) Open(name string) (fs.File, error) {
	if !fs.ValidPath(name) {
		return nil, &fs.PathError{Op: "open", Path: name, Err: fs.ErrInvalid}
	}
	id, rest, _ := strings.Cut(name, "/")
	if rest == "" {
		rest = "."
	}
	mod, err := p.m.Get(id)
	if err != nil || !mod.Active() || mod.Root == "" {
		return nil, &fs.PathError{Op: "open", Path: name, Err: fs.ErrNotExist}
	}
	return os.DirFS(filepath.Join(mod.Root, PublicDir)).Open(rest)
}

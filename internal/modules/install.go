package modules

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"
)

const defaultMaxPackageSize = 50 << 20

// InstallZip installs or updates a module from a zip archive. The archive
// holds a single root directory named after the module id with a manifest
// inside. want restricts the module type ("" accepts both). An installed
// module is only replaced by a strictly newer version.
func (m *Manager) InstallZip(ctx context.Context, data []byte, want Type) (mod Module, err error) {
	id := "?"
	defer func() { m.done("install", id, &err) }()

	zr, root, def, err := openPackage(data)
	if err != nil {
		return Module{}, err
	}
	id = root
	if want != "" && def.Type != want {
		return Module{}, fmt.Errorf("%w: %s is a %s, not a %s", ErrInvalidPackage, id, def.Type, want)
	}

	parent, err := m.installDir(def.Type)
	if err != nil {
		return Module{}, err
	}
	if old, err := m.Get(id); err == nil {
		if old.Builtin {
			return Module{}, fmt.Errorf("install %s: %w", id, ErrProtected)
		}
		if CompareVersions(def.Version, old.Version) <= 0 {
			return Module{}, fmt.Errorf("install %s %s: %w", id, def.Version, ErrNotNewer)
		}
	}

	if err := os.MkdirAll(parent, 0o750); err != nil {
		return Module{}, fmt.Errorf("install %s: %w", id, err)
	}
	staging, err := os.MkdirTemp(parent, "."+id+"-")
	if err != nil {
		return Module{}, fmt.Errorf("install %s: %w", id, err)
	}
	defer os.RemoveAll(staging)
	if err := m.extract(ctx, zr, root, staging); err != nil {
		return Module{}, fmt.Errorf("install %s: %w", id, err)
	}

	target := filepath.Join(parent, id)
	if _, err := os.Stat(filepath.Join(target, DisabledMarker)); err == nil {
		if err := os.WriteFile(filepath.Join(staging, DisabledMarker), nil, 0o600); err != nil {
			return Module{}, fmt.Errorf("install %s: %w", id, err)
		}
	}
	backup := staging + ".old"
	hadOld := false
	if _, err := os.Stat(target); err == nil {
		if err := os.Rename(target, backup); err != nil {
			return Module{}, fmt.Errorf("install %s: %w", id, err)
		}
		hadOld = true
	}
	if err := os.Rename(staging, target); err != nil {
		if hadOld {
			_ = os.Rename(backup, target)
		}
		return Module{}, fmt.Errorf("install %s: %w", id, err)
	}
	if hadOld {
		_ = os.RemoveAll(backup)
	}

	if err := m.Scan(ctx); err != nil {
		return Module{}, err
	}
	return m.Get(id)
}

// InspectZip returns the module id and manifest of an archive without
// installing it.
func InspectZip(data []byte) (string, Define, error) {
	_, root, def, err := openPackage(data)
	return root, def, err
}

func openPackage(data []byte) (*zip.Reader, string, Define, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, "", Define{}, fmt.Errorf("%w: %w", ErrInvalidPackage, err)
	}
	root, err := packageRoot(zr)
	if err != nil {
		return nil, "", Define{}, err
	}
	def, err := readDefine(zr, root)
	if err != nil {
		return nil, "", Define{}, err
	}
	return zr, root, def, nil
}

func (m *Manager) installDir(typ Type) (string, error) {
	if typ == TypeTheme {
		if m.cfg.ThemesDir == "" {
			return "", fmt.Errorf("%w: no themes directory configured", ErrInvalidPackage)
		}
		return m.cfg.ThemesDir, nil
	}
	if len(m.cfg.PluginDirs) == 0 {
		return "", fmt.Errorf("%w: no plugin directory configured", ErrInvalidPackage)
	}
	return m.cfg.PluginDirs[0], nil
}

// packageRoot returns the single top-level directory of the archive.
func packageRoot(zr *zip.Reader) (string, error) {
	root := ""
	for _, f := range zr.File {
		name := strings.TrimPrefix(f.Name, "./")
		first, _, _ := strings.Cut(name, "/")
		if first == "" || first == "__MACOSX" {
			continue
		}
		if !strings.Contains(name, "/") && !f.FileInfo().IsDir() {
			return "", fmt.Errorf("%w: file %q outside the module directory", ErrInvalidPackage, f.Name)
		}
		if root != "" && first != root {
			return "", fmt.Errorf("%w: more than one top-level directory", ErrInvalidPackage)
		}
		root = first
	}
	if root == "" {
		return "", fmt.Errorf("%w: empty archive", ErrInvalidPackage)
	}
	if !ValidID(root) {
		return "", fmt.Errorf("%w: bad module id %q", ErrInvalidPackage, root)
	}
	return root, nil
}

func readDefine(zr *zip.Reader, root string) (Define, error) {
	want := root + "/" + DefineFile
	for _, f := range zr.File {
		if strings.TrimPrefix(f.Name, "./") != want {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return Define{}, fmt.Errorf("%w: %w", ErrInvalidPackage, err)
		}
		defer rc.Close()
		data, err := io.ReadAll(io.LimitReader(rc, 1<<20))
		if err != nil {
			return Define{}, fmt.Errorf("%w: %w", ErrInvalidPackage, err)
		}
		return ParseDefine(data)
	}
	return Define{}, fmt.Errorf("%w: %s is missing", ErrInvalidPackage, DefineFile)
}

// extract writes the entries below root into dst, refusing paths that
// escape it and archives larger than the configured limit.
func (m *Manager) extract(ctx context.Context, zr *zip.Reader, root, dst string) error {
	limit := m.cfg.MaxPackageSize
	if limit <= 0 {
		limit = defaultMaxPackageSize
	}
	var total int64
	for _, f := range zr.File {
		if err := ctx.Err(); err != nil {
			return err
		}
		name := strings.TrimPrefix(f.Name, "./")
		rel, ok := strings.CutPrefix(name, root+"/")
		if !ok || rel == "" || rel == DisabledMarker {
			continue
		}
		rel = path.Clean(rel)
		if !filepath.IsLocal(filepath.FromSlash(rel)) {
			return fmt.Errorf("%w: unsafe path %q", ErrInvalidPackage, f.Name)
		}
		out := filepath.Join(dst, filepath.FromSlash(rel))
		if f.FileInfo().IsDir() {
			if err := os.MkdirAll(out, 0o750); err != nil {
				return err
			}
			continue
		}
		if !f.Mode().IsRegular() {
			return fmt.Errorf("%w: %q is not a regular file", ErrInvalidPackage, f.Name)
		}
		n, err := writeEntry(f, out, limit-total)
		total += n
		if err != nil {
			return err
		}
	}
	return nil
}

var errTooBig = errors.New("package too large")

func writeEntry(f *zip.File, out string, budget int64) (int64, error) {
	if err := os.MkdirAll(filepath.Dir(out), 0o750); err != nil {
		return 0, err
	}
	rc, err := f.Open()
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrInvalidPackage, err)
	}
	defer rc.Close()
	w, err := os.OpenFile(out, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o640)
	if err != nil {
		return 0, err
	}
	n, err := io.Copy(w, io.LimitReader(rc, budget+1))
	if cerr := w.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return n, err
	}
	if n > budget {
		return n, fmt.Errorf("%w: %w", ErrInvalidPackage, errTooBig)
	}
	return n, nil
}

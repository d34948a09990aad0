package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/JakeFAU/inkpress/internal/modules"
)

func parseType(raw string, def modules.Type) (modules.Type, error) {
	switch modules.Type(raw) {
	case "":
		return def, nil
	case modules.TypePlugin, modules.TypeTheme:
		return modules.Type(raw), nil
	default:
		return "", fmt.Errorf("unknown module type %q", raw)
	}
}

func (s *Server) listModules(w http.ResponseWriter, r *http.Request) {
	typ, err := parseType(r.URL.Query().Get("type"), modules.TypePlugin)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	list := s.mods.List(typ)
	if list == nil {
		list = []modules.Module{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"modules": list})
}

func (s *Server) scanModules(w http.ResponseWriter, r *http.Request) {
	if err := s.mods.Scan(r.Context()); err != nil {
		s.fail(w, "scan modules failed", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "scanned"})
}

func (s *Server) getModule(w http.ResponseWriter, r *http.Request) {
	mod, err := s.mods.Get(chi.URLParam(r, "id"))
	if err != nil {
		s.fail(w, "get module failed", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"module": mod})
}

func (s *Server) activateModule(w http.ResponseWriter, r *http.Request) {
	s.toggle(w, r, true)
}

func (s *Server) deactivateModule(w http.ResponseWriter, r *http.Request) {
	s.toggle(w, r, false)
}

func (s *Server) toggle(w http.ResponseWriter, r *http.Request, on bool) {
	id := chi.URLParam(r, "id")
	op := s.mods.Deactivate
	if on {
		op = s.mods.Activate
	}
	if err := op(r.Context(), id); err != nil {
		s.fail(w, "toggle module failed", err)
		return
	}
	mod, err := s.mods.Get(id)
	if err != nil {
		s.fail(w, "get module failed", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"module": mod})
}

func (s *Server) deleteModule(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.mods.Delete(r.Context(), id); err != nil {
		s.fail(w, "delete module failed", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func blogParam(r *http.Request) (string, error) {
	blogID := strings.TrimSpace(r.URL.Query().Get("blog"))
	if blogID == "" {
		return "", errors.New("blog query parameter required")
	}
	return blogID, nil
}

func (s *Server) moduleSettings(w http.ResponseWriter, r *http.Request) {
	blogID, err := blogParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	values, err := s.mods.Settings(r.Context(), blogID, chi.URLParam(r, "id"))
	if err != nil {
		s.fail(w, "load module settings failed", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"settings": values})
}

func (s *Server) configureModule(w http.ResponseWriter, r *http.Request) {
	blogID, err := blogParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	var values map[string]string
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(&values); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	id := chi.URLParam(r, "id")
	if err := s.mods.Configure(r.Context(), blogID, id, values); err != nil {
		s.fail(w, "configure module failed", err)
		return
	}
	s.moduleSettings(w, r)
}

type installRequest struct {
	// ID installs from the repository of Type.
	ID   string `json:"id"`
	Type string `json:"type"`
}

// installModule accepts either a multipart upload (field "file", optional
// "type") or a JSON body naming a repository entry.
func (s *Server) installModule(w http.ResponseWriter, r *http.Request) {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "multipart/form-data" {
		s.installUpload(w, r)
		return
	}
	var req installRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<16)).Decode(&req); err != nil || req.ID == "" {
		writeError(w, http.StatusBadRequest, "module id required")
		return
	}
	typ, err := parseType(req.Type, modules.TypePlugin)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	catalog, ok := s.catalogs[typ]
	if !ok {
		writeError(w, http.StatusNotFound, "no repository for "+string(typ))
		return
	}
	mod, err := catalog.Install(r.Context(), req.ID, s.mods)
	if err != nil {
		s.fail(w, "install module failed", err)
		return
	}
	s.logger.Info("module installed from repository", zap.String("id", mod.ID), zap.String("version", mod.Version))
	writeJSON(w, http.StatusCreated, map[string]any{"module": mod})
}

func (s *Server) installUpload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadBytes+1<<20)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		writeError(w, http.StatusBadRequest, "invalid upload")
		return
	}
	typ, err := parseType(r.FormValue("type"), modules.TypePlugin)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	f, _, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "file field required")
		return
	}
	defer f.Close()
	data, err := io.ReadAll(io.LimitReader(f, s.cfg.MaxUploadBytes+1))
	if err != nil {
		writeError(w, http.StatusBadRequest, "read upload failed")
		return
	}
	if int64(len(data)) > s.cfg.MaxUploadBytes {
		writeError(w, http.StatusRequestEntityTooLarge, "package too large")
		return
	}
	mod, err := s.mods.InstallZip(r.Context(), data, typ)
	if err != nil {
		s.fail(w, "install module failed", err)
		return
	}
	s.logger.Info("module uploaded", zap.String("id", mod.ID), zap.String("version", mod.Version))
	writeJSON(w, http.StatusCreated, map[string]any{"module": mod})
}

func (s *Server) catalog(w http.ResponseWriter, r *http.Request) (Catalog, modules.Type, bool) {
	typ, err := parseType(chi.URLParam(r, "type"), "")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return nil, "", false
	}
	c, ok := s.catalogs[typ]
	if !ok {
		writeError(w, http.StatusNotFound, "no repository for "+string(typ))
		return nil, "", false
	}
	return c, typ, true
}

func (s *Server) searchRepository(w http.ResponseWriter, r *http.Request) {
	c, _, ok := s.catalog(w, r)
	if !ok {
		return
	}
	entries, err := c.Search(r.Context(), r.URL.Query().Get("q"))
	if err != nil {
		s.fail(w, "search repository failed", err)
		return
	}
	if entries == nil {
		entries = []modules.Entry{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": entries})
}

func (s *Server) repositoryUpdates(w http.ResponseWriter, r *http.Request) {
	c, typ, ok := s.catalog(w, r)
	if !ok {
		return
	}
	updates, err := c.Updates(r.Context(), s.mods.List(typ))
	if err != nil {
		s.fail(w, "check updates failed", err)
		return
	}
	if updates == nil {
		updates = []modules.Update{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"updates": updates})
}

package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/JakeFAU/inkpress/internal/blog"
	"github.com/JakeFAU/inkpress/internal/metrics"
)

// blogAdmin checks the caller administers the blog in the URL.
func (s *Server) blogAdmin(w http.ResponseWriter, r *http.Request) (string, bool) {
	if s.maint == nil {
		writeError(w, http.StatusNotFound, "maintenance disabled")
		return "", false
	}
	blogID := chi.URLParam(r, "blog_id")
	u, _ := UserFrom(r.Context())
	if !u.Can(blogID, blog.PermAdmin) {
		writeError(w, http.StatusForbidden, "blog admin required")
		return "", false
	}
	return blogID, true
}

func (s *Server) listTasks(w http.ResponseWriter, r *http.Request) {
	blogID, ok := s.blogAdmin(w, r)
	if !ok {
		return
	}
	statuses, err := s.maint.Statuses(r.Context(), blogID)
	if err != nil {
		s.fail(w, "list maintenance tasks failed", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"tasks": statuses})
}

func (s *Server) runTask(w http.ResponseWriter, r *http.Request) {
	blogID, ok := s.blogAdmin(w, r)
	if !ok {
		return
	}
	task := chi.URLParam(r, "task")
	res, err := s.maint.Run(r.Context(), blogID, task)
	if err != nil {
		metrics.ObserveMaintenance(task, "error")
		s.fail(w, "maintenance task failed", err)
		return
	}
	metrics.ObserveMaintenance(task, "ok")
	writeJSON(w, http.StatusOK, map[string]any{"result": res})
}

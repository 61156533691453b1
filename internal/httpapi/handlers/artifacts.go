package handlers

import (
	"io"
	"io/fs"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"renderhub/internal/pkg/errors"
)

// GetArtifact streams a stored object from the artifact store.
func (h *Handler) GetArtifact(w http.ResponseWriter, r *http.Request) error {
	if h.artifacts == nil {
		return errors.NotFound("artifact", r.URL.Path)
	}
	key := chi.URLParam(r, "*")

	rc, contentType, size, err := h.artifacts.GetObject(r.Context(), key)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return errors.NotFound("artifact", key)
		}
		return errors.Wrap(err, "handlers.GetArtifact", "read artifact")
	}
	defer rc.Close()

	if contentType == "" {
		contentType = "application/octet-stream"
	}
	w.Header().Set("Content-Type", contentType)
	if size > 0 {
		w.Header().Set("Content-Length", strconv.FormatInt(size, 10))
	}
	w.WriteHeader(http.StatusOK)
	if r.Method != http.MethodHead {
		_, _ = io.Copy(w, rc)
	}
	return nil
}

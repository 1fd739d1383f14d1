package api

import (
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/yegors/co-hud/pkg/logger"
)

// StaticFileHandler serves the HUD page and its scripts from disk
type StaticFileHandler struct {
	root   string
	logger *logger.Logger
}

// NewStaticFileHandler creates a new static file handler rooted at dir
func NewStaticFileHandler(dir string, log *logger.Logger) *StaticFileHandler {
	root, err := filepath.Abs(dir)
	if err != nil {
		root = filepath.Clean(dir)
	}
	return &StaticFileHandler{
		root:   root,
		logger: log.Named("static-handler"),
	}
}

// ServeHTTP resolves the request path inside the root; unknown paths without
// an extension fall back to index.html so the page can own its routes
func (h *StaticFileHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		w.Header().Set("Allow", "GET, HEAD")
		http.Error(w, "Method Not Allowed", http.StatusMethodNotAllowed)
		return
	}

	rel := strings.TrimPrefix(filepath.Clean("/"+r.URL.Path), "/")
	full, ok := h.resolve(rel)
	if !ok {
		h.logger.Warn("Rejected path outside static root", logger.String("path", r.URL.Path))
		http.Error(w, "Forbidden", http.StatusForbidden)
		return
	}

	info, err := os.Stat(full)
	switch {
	case err == nil && info.IsDir():
		full = filepath.Join(full, "index.html")
		if _, err := os.Stat(full); err != nil {
			http.Error(w, "Forbidden", http.StatusForbidden)
			return
		}
	case os.IsNotExist(err) && filepath.Ext(rel) == "":
		full = filepath.Join(h.root, "index.html")
	case os.IsNotExist(err):
		http.NotFound(w, r)
		return
	case err != nil:
		h.logger.Error("Failed to stat file", logger.Error(err), logger.String("path", full))
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	// The page and the bridge script change with the server, so never cache
	w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")
	w.Header().Set("Pragma", "no-cache")
	w.Header().Set("Expires", "0")

	h.logger.Debug("Serving static file", logger.String("path", full))
	http.ServeFile(w, r, full)
}

func (h *StaticFileHandler) resolve(rel string) (string, bool) {
	full := filepath.Join(h.root, rel)
	if full != h.root && !strings.HasPrefix(full, h.root+string(filepath.Separator)) {
		return "", false
	}
	return full, true
}

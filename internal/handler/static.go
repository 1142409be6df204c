package handler

import (
	"errors"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"path"

	"github.com/sakif/covid-dashboard/internal/apperror"
)

// IndexFile is served for "/".
const IndexFile = "index.html"

// StaticHandler serves the prebuilt single-page app.
//
// PATH MAPPING:
//
//	GET /                  → <dir>/index.html
//	GET /static/js/main.js → <dir>/static/js/main.js
//
// There is no fallback to index.html for unknown paths and no directory
// listings: anything that is not a regular file is a 404.
type StaticHandler struct {
	root   http.FileSystem
	logger *slog.Logger
}

// NewStaticHandler serves files below dir. The directory is not required to
// exist at startup; requests simply 404 until it does.
func NewStaticHandler(dir string, logger *slog.Logger) *StaticHandler {
	return &StaticHandler{
		root:   http.Dir(dir),
		logger: logger,
	}
}

// ServeHTTP serves the file named by the request path.
func (h *StaticHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	// path.Clean on a rooted path cannot climb above "/", and http.Dir
	// rejects anything that would escape dir.
	name := path.Clean("/" + r.URL.Path)
	if name == "/" {
		name = "/" + IndexFile
	}

	f, err := h.root.Open(name)
	if err != nil {
		h.fail(w, name, err)
		return
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		h.fail(w, name, err)
		return
	}
	if info.IsDir() {
		writeError(w, apperror.NotFound("file", name))
		return
	}

	// ServeContent sets Content-Type from the extension and handles
	// Range and If-Modified-Since.
	http.ServeContent(w, r, info.Name(), info.ModTime(), f)
}

func (h *StaticHandler) fail(w http.ResponseWriter, name string, err error) {
	if errors.Is(err, fs.ErrNotExist) || errors.Is(err, os.ErrPermission) {
		writeError(w, apperror.NotFound("file", name))
		return
	}
	h.logger.Error("failed to open static file",
		slog.String("path", name),
		slog.String("error", err.Error()),
	)
	writeError(w, err)
}

// Package fileserve maps an incoming request onto a file beneath a document
// root: it sanitizes the URI, resolves directories to index.html, detects
// MIME type by extension, and serves through a filecache.Cache when one is
// configured.
package fileserve

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/nabbar/staticd/internal/filecache"
	"github.com/nabbar/staticd/internal/httpkind"
	"github.com/nabbar/staticd/internal/httpwire"
)

const maxFileSize = 10 * 1024 * 1024

var mimeTypes = map[string]string{
	".html": "text/html",
	".css":  "text/css",
	".js":   "application/javascript",
	".json": "application/json",
	".png":  "image/png",
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".gif":  "image/gif",
	".txt":  "text/plain",
	".svg":  "image/svg+xml",
	".ico":  "image/x-icon",
}

// Handler serves files rooted at Root, optionally through a shared Cache.
type Handler struct {
	root      string
	canonRoot string
	cache     *filecache.Cache
}

// New builds a Handler rooted at docRoot. docRoot is created if it does not
// already exist, then canonicalized once; every request is resolved and
// checked against this canonical root. cache may be nil, in which case every
// request reads straight from disk.
func New(docRoot string, cache *filecache.Cache) (*Handler, error) {
	if _, err := os.Stat(docRoot); os.IsNotExist(err) {
		if err := os.MkdirAll(docRoot, 0o755); err != nil {
			return nil, err
		}
	}
	canon, err := filepath.Abs(docRoot)
	if err != nil {
		return nil, err
	}
	canon, err = filepath.EvalSymlinks(canon)
	if err != nil {
		// EvalSymlinks fails when some component of docRoot cannot be
		// resolved (for example, it is missing or unreadable); fall back to
		// the absolute path rather than failing handler construction.
		canon, _ = filepath.Abs(docRoot)
	}
	return &Handler{root: docRoot, canonRoot: canon, cache: cache}, nil
}

// Handle serves req and always returns a response, never an error: every
// failure mode maps onto an HTTP error response via httpwire.ErrorResponse.
func (h *Handler) Handle(req *httpwire.Request) *httpwire.Response {
	if req.Method != "GET" && req.Method != "HEAD" {
		return httpwire.ErrorResponse(httpkind.MethodNotAllowed, "")
	}

	path, ok := h.resolvePath(req.URI)
	if !ok {
		return httpwire.ErrorResponse(httpkind.NotFound, "")
	}

	if info, err := os.Stat(path); err == nil && info.IsDir() {
		path = filepath.Join(path, "index.html")
	}

	info, err := os.Stat(path)
	if err != nil || !info.Mode().IsRegular() {
		return httpwire.ErrorResponse(httpkind.NotFound, "")
	}
	if info.Size() > maxFileSize {
		return httpwire.ErrorResponse(httpkind.InternalError, "File too large or unreadable")
	}

	mimeType := detectMimeType(path)
	content, ok := h.readThroughCache(path, mimeType)
	if !ok {
		return httpwire.ErrorResponse(httpkind.InternalError, "Could not open file")
	}

	resp := httpwire.NewResponse(200, "OK")
	resp.SetHeader("Content-Type", mimeType)
	if req.IsKeepAlive() {
		resp.SetHeader("Connection", "keep-alive")
	} else {
		resp.SetHeader("Connection", "close")
	}

	if req.Method == "HEAD" {
		resp.SetHeader("Content-Length", strconv.Itoa(len(content)))
	} else {
		resp.Body = content
	}
	return resp
}

// readThroughCache returns path's content, consulting cache first (if any)
// and populating it on miss.
func (h *Handler) readThroughCache(path, mimeType string) ([]byte, bool) {
	if h.cache != nil {
		if e, hit := h.cache.Get(path); hit {
			return e.Content, true
		}
	}

	content, err := os.ReadFile(path)
	if err != nil {
		return nil, false
	}
	if h.cache != nil {
		h.cache.Put(path, content, mimeType)
	}
	return content, true
}

// resolvePath strips any query string, rejects ".." anywhere in the URI,
// joins the remainder onto the canonical root, canonicalizes the join (so a
// symlink inside the root pointing outside it can't be used to escape), and
// verifies the resolved path does not escape the root.
func (h *Handler) resolvePath(uri string) (string, bool) {
	clean := uri
	if q := strings.IndexByte(clean, '?'); q >= 0 {
		clean = clean[:q]
	}
	if clean == "" {
		clean = "/"
	}
	if strings.Contains(clean, "..") {
		return "", false
	}
	clean = strings.TrimLeft(clean, "/")

	candidate := filepath.Join(h.canonRoot, clean)
	resolved, err := filepath.EvalSymlinks(candidate)
	if err != nil {
		return "", false
	}
	rel, err := filepath.Rel(h.canonRoot, resolved)
	if err != nil {
		return "", false
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", false
	}
	return resolved, true
}

func detectMimeType(path string) string {
	ext := filepath.Ext(path)
	if mt, ok := mimeTypes[strings.ToLower(ext)]; ok {
		return mt
	}
	return "application/octet-stream"
}

// Package static resolves request paths to files under a fixed root
// directory and streams them.
//
// Resolution canonicalizes the joined path, following symlinks, and rejects
// anything whose canonical location is not inside the canonical root. This
// holds for ".." segments, separators that were percent-encoded before
// decoding, and symlinks pointing elsewhere.
package static

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
)

var (
	// ErrForbidden means the path escapes the root or is not a regular file.
	ErrForbidden = errors.New("forbidden")

	// ErrNotFound means the path does not exist under the root.
	ErrNotFound = errors.New("not found")
)

// defaultContentType is used for extensions missing from the MIME table.
const defaultContentType = "application/octet-stream"

var mimeTypes = map[string]string{
	".htm":  "text/html",
	".html": "text/html",
	".png":  "image/png",
	".gif":  "image/gif",
	".js":   "text/javascript",
	".css":  "text/css",
	".json": "application/json",
	".svg":  "image/svg+xml",
	".ico":  "image/x-icon",
	".txt":  "text/plain",
}

// Resource is a validated regular file inside the resolver root.
type Resource struct {
	// Path is the canonical filesystem location.
	Path string

	// ContentType is the MIME type derived from the file extension.
	ContentType string
}

// Resolver maps URL paths onto a canonical root directory.
type Resolver struct {
	root string
}

// NewResolver creates a [Resolver] for root. The root must exist and is
// canonicalized once, so a root reached through a symlink works as expected.
func NewResolver(root string) (*Resolver, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("web root %q: %w", root, err)
	}
	canon, err := filepath.EvalSymlinks(abs)
	if err != nil {
		return nil, fmt.Errorf("web root %q: %w", root, err)
	}
	info, err := os.Stat(canon)
	if err != nil {
		return nil, fmt.Errorf("web root %q: %w", root, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("web root %q is not a directory", root)
	}
	return &Resolver{root: canon}, nil
}

// Root returns the canonical root directory.
func (r *Resolver) Root() string {
	return r.root
}

// Resolve validates a decoded, absolute URL path.
//
// It returns [ErrForbidden] for paths outside the root and for anything that
// is not a regular file, [ErrNotFound] for missing paths, and a wrapped error
// for any other filesystem failure.
func (r *Resolver) Resolve(urlPath string) (Resource, error) {
	rel := strings.TrimPrefix(urlPath, "/")
	joined := filepath.Join(r.root, filepath.FromSlash(rel))

	canon, err := filepath.EvalSymlinks(joined)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) || errors.Is(err, syscall.ENOTDIR) {
			if !r.contains(joined) {
				return Resource{}, ErrForbidden
			}
			return Resource{}, ErrNotFound
		}
		return Resource{}, fmt.Errorf("resolve %q: %w", urlPath, err)
	}

	if !r.contains(canon) {
		return Resource{}, ErrForbidden
	}

	info, err := os.Stat(canon)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Resource{}, ErrNotFound
		}
		return Resource{}, fmt.Errorf("stat %q: %w", urlPath, err)
	}
	if !info.Mode().IsRegular() {
		return Resource{}, ErrForbidden
	}

	return Resource{Path: canon, ContentType: ContentType(canon)}, nil
}

// contains reports whether p is the root or lies beneath it.
func (r *Resolver) contains(p string) bool {
	if p == r.root {
		return true
	}
	return strings.HasPrefix(p, r.root+string(filepath.Separator))
}

// ContentType classifies a file name by extension: exact match first, then
// the lowercased extension, then application/octet-stream.
func ContentType(name string) string {
	ext := filepath.Ext(name)
	if ct, ok := mimeTypes[ext]; ok {
		return ct
	}
	if ct, ok := mimeTypes[strings.ToLower(ext)]; ok {
		return ct
	}
	return defaultContentType
}

// Serve writes res with a 200 status, Content-Type, and a Content-Length equal
// to the file size at open time. The body is omitted when withBody is false.
//
// An error returned before anything was written means the caller may still
// send an error status. The file is closed on every path.
func Serve(w http.ResponseWriter, res Resource, withBody bool) (int64, error) {
	f, err := os.Open(res.Path)
	if err != nil {
		return 0, fmt.Errorf("open %s: %w", res.Path, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return 0, fmt.Errorf("stat %s: %w", res.Path, err)
	}
	if !info.Mode().IsRegular() {
		return 0, ErrForbidden
	}
	size := info.Size()

	w.Header().Set("Content-Type", res.ContentType)
	w.Header().Set("Content-Length", strconv.FormatInt(size, 10))
	w.WriteHeader(http.StatusOK)

	if !withBody {
		return 0, nil
	}
	return io.CopyN(w, f, size)
}

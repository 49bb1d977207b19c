package server

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"runtime/debug"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/jpalmerr/tailgate/internal/auth"
	"github.com/jpalmerr/tailgate/internal/broadcast"
	"github.com/jpalmerr/tailgate/internal/static"
)

const (
	// DefaultDocument replaces requests for "/".
	DefaultDocument = "/static/init/init.htm"

	// DefaultStreamPath is the log-tail endpoint when none is configured.
	DefaultStreamPath = "/api/log/stream"

	// DefaultRealm is sent in the Basic authentication challenge.
	DefaultRealm = "tailgate"

	// Levels for access lines published into the host log.
	levelRequest       = 800
	levelRequestFailed = 600
)

// Action carries everything a [Handler] gets for a POST request.
type Action struct {
	// Request is the raw HTTP request.
	Request *http.Request

	// Path is the decoded request path the handler was looked up by.
	Path string

	// Privilege is the label granted by the request's credentials.
	Privilege string
}

// Handler serves a POST path. The handler owns the whole response,
// including status and headers.
type Handler interface {
	ServeAction(w http.ResponseWriter, a *Action)
}

// HandlerFunc adapts a function to [Handler].
type HandlerFunc func(w http.ResponseWriter, a *Action)

// ServeAction calls f(w, a).
func (f HandlerFunc) ServeAction(w http.ResponseWriter, a *Action) {
	f(w, a)
}

// Config holds the collaborators of a [Router].
type Config struct {
	// Credentials is the static credential table. Required.
	Credentials auth.CredentialTable

	// Broadcaster feeds log-tail streams. Required.
	Broadcaster *broadcast.Broadcaster

	// Resolver serves static files. If nil, every static path is 404.
	Resolver *static.Resolver

	// Handlers maps exact POST paths to handlers. Not modified by the router.
	Handlers map[string]Handler

	// DefaultDocument replaces "/" for GET and HEAD. Defaults to [DefaultDocument].
	DefaultDocument string

	// StreamPaths are the GET paths served as log-tail streams.
	// Defaults to [DefaultStreamPath].
	StreamPaths []string

	// Realm is named in the 401 challenge. Defaults to [DefaultRealm].
	Realm string

	// Name prefixes access lines published through AccessLog.
	Name string

	// Logger receives diagnostics. Defaults to slog.Default().
	Logger *slog.Logger

	// AccessLog, if set, receives one record per completed request.
	AccessLog func(broadcast.Record)
}

// Router produces exactly one response per request.
//
// Router is safe for concurrent use; all of its tables are read-only after
// construction.
type Router struct {
	credentials     auth.CredentialTable
	broadcaster     *broadcast.Broadcaster
	resolver        *static.Resolver
	handlers        map[string]Handler
	defaultDocument string
	streamPaths     map[string]struct{}
	challenge       string
	name            string
	logger          *slog.Logger
	accessLog       func(broadcast.Record)
}

// NewRouter creates a [Router] from cfg.
func NewRouter(cfg Config) (*Router, error) {
	if cfg.Broadcaster == nil {
		return nil, errors.New("broadcaster is required")
	}

	rt := &Router{
		credentials:     cfg.Credentials,
		broadcaster:     cfg.Broadcaster,
		resolver:        cfg.Resolver,
		handlers:        make(map[string]Handler, len(cfg.Handlers)),
		defaultDocument: cfg.DefaultDocument,
		streamPaths:     make(map[string]struct{}),
		logger:          cfg.Logger,
		accessLog:       cfg.AccessLog,
		name:            cfg.Name,
	}

	for path, h := range cfg.Handlers {
		if h == nil {
			return nil, fmt.Errorf("handler for %q is nil", path)
		}
		rt.handlers[path] = h
	}

	if rt.defaultDocument == "" {
		rt.defaultDocument = DefaultDocument
	}
	if !strings.HasPrefix(rt.defaultDocument, "/") {
		return nil, fmt.Errorf("default document must be absolute, got %q", rt.defaultDocument)
	}

	paths := cfg.StreamPaths
	if len(paths) == 0 {
		paths = []string{DefaultStreamPath}
	}
	for _, p := range paths {
		if !strings.HasPrefix(p, "/") {
			return nil, fmt.Errorf("stream path must be absolute, got %q", p)
		}
		rt.streamPaths[p] = struct{}{}
	}

	realm := cfg.Realm
	if realm == "" {
		realm = DefaultRealm
	}
	rt.challenge = "Basic realm=" + strconv.Quote(realm)

	if rt.logger == nil {
		rt.logger = slog.Default()
	}

	return rt, nil
}

// ServeHTTP implements [http.Handler].
func (rt *Router) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	rw := &responseWriter{ResponseWriter: w}
	start := time.Now()

	defer func() {
		if p := recover(); p != nil {
			if p == http.ErrAbortHandler {
				panic(p)
			}
			correlationID := uuid.NewString()
			rt.logger.Error("request handler panic",
				"correlation_id", correlationID,
				"panic", fmt.Sprintf("%v", p),
				"method", r.Method,
				"uri", r.RequestURI,
				"stack", string(debug.Stack()),
			)
			if !rw.wroteHeader {
				fail(rw, http.StatusInternalServerError)
			}
		}
		rt.logRequest(r, rw, time.Since(start))
	}()

	switch r.Method {
	case http.MethodGet:
		rt.serveRetrieval(rw, r, true)
	case http.MethodHead:
		rt.serveRetrieval(rw, r, false)
	case http.MethodPost:
		rt.serveSubmission(rw, r)
	default:
		rw.Header().Set("Allow", "GET, HEAD, POST")
		fail(rw, http.StatusNotImplemented)
	}
}

// serveRetrieval handles GET and HEAD.
func (rt *Router) serveRetrieval(w *responseWriter, r *http.Request, withBody bool) {
	path, ok := requestPath(r)
	if !ok {
		fail(w, http.StatusBadRequest)
		return
	}
	if path == "/" {
		path = rt.defaultDocument
	}

	if _, ok := rt.authenticate(w, r); !ok {
		return
	}

	if _, ok := rt.streamPaths[path]; ok {
		rt.serveStream(w, r, withBody)
		return
	}

	if rt.resolver == nil {
		fail(w, http.StatusNotFound)
		return
	}

	res, err := rt.resolver.Resolve(path)
	if err != nil {
		rt.failResolve(w, path, err)
		return
	}

	if _, err := static.Serve(w, res, withBody); err != nil {
		if w.wroteHeader {
			rt.logger.Debug("static response interrupted", "path", path, "error", err)
			return
		}
		rt.failResolve(w, path, err)
	}
}

// serveSubmission handles POST.
func (rt *Router) serveSubmission(w *responseWriter, r *http.Request) {
	path, ok := requestPath(r)
	if !ok {
		fail(w, http.StatusBadRequest)
		return
	}

	privilege, ok := rt.authenticate(w, r)
	if !ok {
		return
	}

	h, ok := rt.handlers[path]
	if !ok {
		fail(w, http.StatusNotFound)
		return
	}

	h.ServeAction(w, &Action{Request: r, Path: path, Privilege: privilege})
}

// authenticate writes the 401 challenge and returns false when the request
// carries no valid credential.
func (rt *Router) authenticate(w http.ResponseWriter, r *http.Request) (string, bool) {
	privilege, ok := rt.credentials.CheckAuth(r.Header)
	if !ok {
		w.Header().Set("WWW-Authenticate", rt.challenge)
		fail(w, http.StatusUnauthorized)
		return "", false
	}
	return privilege, true
}

func (rt *Router) failResolve(w http.ResponseWriter, path string, err error) {
	switch {
	case errors.Is(err, static.ErrForbidden):
		fail(w, http.StatusForbidden)
	case errors.Is(err, static.ErrNotFound):
		fail(w, http.StatusNotFound)
	default:
		rt.logger.Error("static resource error", "path", path, "error", err)
		fail(w, http.StatusInternalServerError)
	}
}

// requestPath strips query and fragment from the request target and
// percent-decodes it. ok is false unless the result is an absolute path.
func requestPath(r *http.Request) (string, bool) {
	target := r.RequestURI
	if target == "" {
		target = r.URL.RequestURI()
	}
	target, _, _ = strings.Cut(target, "?")
	target, _, _ = strings.Cut(target, "#")

	path, err := url.PathUnescape(target)
	if err != nil {
		return "", false
	}
	if path == "" || path[0] != '/' || strings.IndexByte(path, 0) >= 0 {
		return "", false
	}
	return path, true
}

// fail sends a bodiless status response.
func fail(w http.ResponseWriter, status int) {
	w.Header().Set("Content-Length", "0")
	w.WriteHeader(status)
}

// logRequest reports a finished request to the debug log and, when
// configured, into the host log.
func (rt *Router) logRequest(r *http.Request, w *responseWriter, elapsed time.Duration) {
	status := w.status
	if status == 0 {
		status = http.StatusOK
	}

	rt.logger.Debug("http request",
		"method", r.Method,
		"uri", r.RequestURI,
		"status", status,
		"bytes", w.written,
		"remote", r.RemoteAddr,
		"duration_ms", elapsed.Milliseconds(),
	)

	if rt.accessLog == nil {
		return
	}

	line := fmt.Sprintf("%s \"%s %s %s\" %d %d\n", r.RemoteAddr, r.Method, r.RequestURI, r.Proto, status, w.written)
	prefix := ""
	if rt.name != "" {
		prefix = rt.name + ": "
	}
	if status < http.StatusBadRequest {
		rt.accessLog(broadcast.NewRecord(time.Now(), levelRequest,
			broadcast.Segment{Text: prefix + "HTTP request: " + line}))
		return
	}
	rt.accessLog(broadcast.NewRecord(time.Now(), levelRequestFailed,
		broadcast.Segment{Text: prefix + "Request failed: " + line, Format: "y"}))
}

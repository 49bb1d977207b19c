package tailgate

import (
	"net/http"

	"github.com/jpalmerr/tailgate/internal/server"
)

// Request is what a POST [Handler] receives.
type Request struct {
	// Host is the value passed to [WithHost], typically the embedding
	// application.
	Host any

	// Frontend is the frontend serving the request.
	Frontend *Frontend

	// HTTP is the raw request. Its body has not been read.
	HTTP *http.Request

	// Path is the decoded request path, without query or fragment.
	Path string

	// Privilege is the label of the credential the request authenticated with.
	Privilege string
}

// Handler serves POST requests for one exact path, registered with
// [WithHandler]. Requests reach a handler only after authentication.
//
// The handler writes the complete response. A panicking handler produces a
// 500 response if nothing was written yet; the server keeps running.
type Handler interface {
	ServeAction(w http.ResponseWriter, req *Request)
}

// HandlerFunc adapts a function to [Handler].
type HandlerFunc func(w http.ResponseWriter, req *Request)

// ServeAction calls f(w, req).
func (f HandlerFunc) ServeAction(w http.ResponseWriter, req *Request) {
	f(w, req)
}

// serverHandlers converts the registered handlers to the router's form.
func (f *Frontend) serverHandlers() map[string]server.Handler {
	out := make(map[string]server.Handler, len(f.handlers))
	for path, h := range f.handlers {
		h := h
		out[path] = server.HandlerFunc(func(w http.ResponseWriter, a *server.Action) {
			h.ServeAction(w, &Request{
				Host:      f.host,
				Frontend:  f,
				HTTP:      a.Request,
				Path:      a.Path,
				Privilege: a.Privilege,
			})
		})
	}
	return out
}

package tailgate

import (
	"bytes"
	"context"
	"log/slog"
	"net/http"
	"strings"
	"testing"
	"time"
)

type nopSink struct{}

func (nopSink) Deliver(context.Context, LogRecord) error { return nil }
func (nopSink) Close() error                             { return nil }

func TestNew_Defaults(t *testing.T) {
	f, err := New()
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	if f.addr != ":8832" {
		t.Errorf("addr = %q, want :8832", f.addr)
	}
	if f.Name() != "WebUI" {
		t.Errorf("Name() = %q, want WebUI", f.Name())
	}
	if priv, ok := f.credentials.Lookup("admin:tailgate"); !ok || priv != "admin" {
		t.Errorf("default credential = %q, %v", priv, ok)
	}
	if !f.defaultCreds {
		t.Error("defaultCreds should be set when no credential is configured")
	}
	if max, purge := f.broadcaster.Limits(); max != 1000 || purge != 100 {
		t.Errorf("Limits() = %d, %d; want 1000, 100", max, purge)
	}
	if len(f.streamPaths) != 1 || f.streamPaths[0] != "/api/log/stream" {
		t.Errorf("streamPaths = %v", f.streamPaths)
	}
	if f.defaultDocument != "/static/init/init.htm" {
		t.Errorf("defaultDocument = %q", f.defaultDocument)
	}
}

func TestNew_ConfiguredCredentialsReplaceDefault(t *testing.T) {
	f, err := New(WithCredential("viewer", "pw", "read"))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if _, ok := f.credentials.Lookup("admin:tailgate"); ok {
		t.Error("default credential should not be present when credentials are configured")
	}
	if priv, ok := f.credentials.Lookup("viewer:pw"); !ok || priv != "read" {
		t.Errorf("Lookup(viewer:pw) = %q, %v", priv, ok)
	}
	if f.defaultCreds {
		t.Error("defaultCreds should be false")
	}
}

func TestOptions_Invalid(t *testing.T) {
	h := HandlerFunc(func(http.ResponseWriter, *Request) {})

	tests := []struct {
		name    string
		opts    []Option
		wantErr string
	}{
		{"port zero", []Option{WithPort(0)}, "port"},
		{"port too large", []Option{WithPort(70000)}, "port"},
		{"empty listen addr", []Option{WithListenAddr("")}, "listen address"},
		{"empty realm", []Option{WithRealm("")}, "realm"},
		{"empty username", []Option{WithCredential("", "pw", "admin")}, "username"},
		{"colon in username", []Option{WithCredential("a:b", "pw", "admin")}, "cannot contain"},
		{"credential without colon", []Option{WithCredentials(map[string]string{"admin": "admin"})}, "username:password"},
		{"empty privilege", []Option{WithCredential("guest", "guest", "")}, "needs a privilege"},
		{"empty privilege in table", []Option{WithCredentials(map[string]string{"guest:guest": ""})}, "needs a privilege"},
		{"relative handler path", []Option{WithHandler("api/x", h)}, "must start with"},
		{"nil handler", []Option{WithHandler("/api/x", nil)}, "cannot be nil"},
		{"duplicate handler", []Option{WithHandler("/api/x", h), WithHandler("/api/x", h)}, "duplicate handler"},
		{"relative default document", []Option{WithDefaultDocument("index.htm")}, "default document"},
		{"relative stream path", []Option{WithStreamPath("stream")}, "stream path"},
		{"zero max length", []Option{WithHistoryLimits(0, 0)}, "max length"},
		{"purge larger than max", []Option{WithHistoryLimits(10, 11)}, "purge size"},
		{"zero purge", []Option{WithHistoryLimits(10, 0)}, "purge size"},
		{"zero shutdown timeout", []Option{WithShutdownTimeout(0)}, "shutdown timeout"},
		{"nil logger", []Option{WithLogger(nil)}, "logger"},
		{"nil sink", []Option{WithSink(nil)}, "sink"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.opts...)
			if err == nil {
				t.Fatal("New() expected error, got nil")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("New() error = %v, want error containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestOptions_Valid(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	h := HandlerFunc(func(http.ResponseWriter, *Request) {})
	host := struct{ name string }{"miner"}

	f, err := New(
		WithName("MPBM"),
		WithPort(9090),
		WithRealm("MPBM WebUI"),
		WithCredentials(map[string]string{"admin:mpbm": "admin"}),
		WithHandlers(map[string]Handler{"/api/a": h, "/api/b": h}),
		WithWebRoot("/srv/www"),
		WithDefaultDocument("/index.htm"),
		WithStreamPath("/log"),
		WithStreamPath("/api/log/stream"),
		WithHistoryLimits(50, 5),
		WithShutdownTimeout(3*time.Second),
		WithLogger(logger),
		WithHost(host),
		WithSink(nopSink{}),
	)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	if f.addr != ":9090" || f.realm != "MPBM WebUI" || f.webRoot != "/srv/www" {
		t.Errorf("addr, realm, webRoot = %q, %q, %q", f.addr, f.realm, f.webRoot)
	}
	if len(f.handlers) != 2 {
		t.Errorf("len(handlers) = %d, want 2", len(f.handlers))
	}
	if len(f.streamPaths) != 2 {
		t.Errorf("streamPaths = %v", f.streamPaths)
	}
	if max, purge := f.broadcaster.Limits(); max != 50 || purge != 5 {
		t.Errorf("Limits() = %d, %d", max, purge)
	}
	if f.shutdownTimeout != 3*time.Second {
		t.Errorf("shutdownTimeout = %v", f.shutdownTimeout)
	}
	if f.logger != logger {
		t.Error("logger not applied")
	}
	if f.Host() != host {
		t.Errorf("Host() = %v", f.Host())
	}
	if len(f.sinks) != 1 {
		t.Errorf("len(sinks) = %d, want 1", len(f.sinks))
	}
	if got := f.Stats().Subscribers; got != 1 {
		t.Errorf("sink subscriptions = %d, want 1", got)
	}
}

func TestWithListenAddr_OverridesPort(t *testing.T) {
	f, err := New(WithPort(9000), WithListenAddr("127.0.0.1:9001"))
	if err != nil {
		t.Fatal(err)
	}
	if f.addr != "127.0.0.1:9001" {
		t.Errorf("addr = %q", f.addr)
	}
}

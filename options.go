package tailgate

import (
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"
)

// frontendConfig holds mutable state during Frontend construction.
type frontendConfig struct {
	name            string
	addr            string
	realm           string
	credentials     map[string]string
	handlers        map[string]Handler
	webRoot         string
	defaultDocument string
	streamPaths     []string
	maxLength       int
	purgeSize       int
	shutdownTimeout time.Duration
	logger          *slog.Logger
	host            any
	sinks           []Sink
	historyFile     string
}

// Option is a function that configures a [Frontend] instance during construction.
//
// Option implements the functional options pattern, allowing optional
// configuration to be passed to [New] in a type-safe, extensible way.
// Options return an error if validation fails.
type Option func(*frontendConfig) error

// WithName sets the name prefixed to the access lines the frontend publishes
// into its own log. Defaults to "WebUI".
func WithName(name string) Option {
	return func(cfg *frontendConfig) error {
		cfg.name = name
		return nil
	}
}

// WithPort sets the TCP port to listen on, on all interfaces.
//
// Defaults to 8832 if not specified.
//
// Returns an error if the port is outside the valid range (1-65535).
func WithPort(port int) Option {
	return func(cfg *frontendConfig) error {
		if port < 1 || port > 65535 {
			return errors.New("port must be between 1 and 65535")
		}
		cfg.addr = ":" + strconv.Itoa(port)
		return nil
	}
}

// WithListenAddr sets the full listen address, e.g. "127.0.0.1:8832".
// Port 0 picks a free port; see [Frontend.Addr].
func WithListenAddr(addr string) Option {
	return func(cfg *frontendConfig) error {
		if addr == "" {
			return errors.New("listen address cannot be empty")
		}
		cfg.addr = addr
		return nil
	}
}

// WithRealm sets the realm named in the authentication challenge.
func WithRealm(realm string) Option {
	return func(cfg *frontendConfig) error {
		if realm == "" {
			return errors.New("realm cannot be empty")
		}
		cfg.realm = realm
		return nil
	}
}

// WithCredential grants privilege to requests authenticating as
// username:password.
//
// Can be called multiple times. If no credential is configured at all, the
// frontend accepts only admin:tailgate with privilege "admin".
func WithCredential(username, password, privilege string) Option {
	return func(cfg *frontendConfig) error {
		if username == "" {
			return errors.New("credential username cannot be empty")
		}
		if strings.Contains(username, ":") {
			return fmt.Errorf("credential username %q cannot contain ':'", username)
		}
		if privilege == "" {
			return fmt.Errorf("credential %q needs a privilege", username)
		}
		if cfg.credentials == nil {
			cfg.credentials = make(map[string]string)
		}
		cfg.credentials[username+":"+password] = privilege
		return nil
	}
}

// WithCredentials adds credentials keyed by the exact "username:password"
// string a client sends.
//
// Example:
//
//	f, err := tailgate.New(
//	    tailgate.WithCredentials(map[string]string{
//	        "admin:secret":  "admin",
//	        "viewer:secret": "read",
//	    }),
//	)
func WithCredentials(credentials map[string]string) Option {
	return func(cfg *frontendConfig) error {
		for key, privilege := range credentials {
			if !strings.Contains(key, ":") {
				return fmt.Errorf("credential %q must have the form username:password", key)
			}
			if privilege == "" {
				user, _, _ := strings.Cut(key, ":")
				return fmt.Errorf("credential %q needs a privilege", user)
			}
			if cfg.credentials == nil {
				cfg.credentials = make(map[string]string, len(credentials))
			}
			cfg.credentials[key] = privilege
		}
		return nil
	}
}

// WithHandler registers h for POST requests to exactly path.
//
// Returns an error if path is not absolute, h is nil, or path is already
// registered.
func WithHandler(path string, h Handler) Option {
	return func(cfg *frontendConfig) error {
		if !strings.HasPrefix(path, "/") {
			return fmt.Errorf("handler path must start with '/', got %q", path)
		}
		if h == nil {
			return fmt.Errorf("handler for %q cannot be nil", path)
		}
		if _, dup := cfg.handlers[path]; dup {
			return fmt.Errorf("duplicate handler path: %q", path)
		}
		if cfg.handlers == nil {
			cfg.handlers = make(map[string]Handler)
		}
		cfg.handlers[path] = h
		return nil
	}
}

// WithHandlers registers every entry of handlers as by [WithHandler].
func WithHandlers(handlers map[string]Handler) Option {
	return func(cfg *frontendConfig) error {
		for path, h := range handlers {
			if err := WithHandler(path, h)(cfg); err != nil {
				return err
			}
		}
		return nil
	}
}

// WithWebRoot sets the directory static files are served from. Files
// outside it are never served. An empty root disables static files.
//
// Defaults to "./web".
func WithWebRoot(dir string) Option {
	return func(cfg *frontendConfig) error {
		cfg.webRoot = dir
		return nil
	}
}

// WithDefaultDocument sets the path served for GET "/".
//
// Defaults to "/static/init/init.htm".
func WithDefaultDocument(path string) Option {
	return func(cfg *frontendConfig) error {
		if !strings.HasPrefix(path, "/") {
			return fmt.Errorf("default document must start with '/', got %q", path)
		}
		cfg.defaultDocument = path
		return nil
	}
}

// WithStreamPath adds a GET path that serves the log stream. Can be called
// multiple times. Defaults to "/api/log/stream" when never called.
func WithStreamPath(path string) Option {
	return func(cfg *frontendConfig) error {
		if !strings.HasPrefix(path, "/") {
			return fmt.Errorf("stream path must start with '/', got %q", path)
		}
		cfg.streamPaths = append(cfg.streamPaths, path)
		return nil
	}
}

// WithHistoryLimits sets how many records are kept for replay and how many
// of the oldest are dropped at once when the limit is exceeded.
//
// Defaults to 1000 and 100. Returns an error unless
// 1 <= purgeSize <= maxLength.
func WithHistoryLimits(maxLength, purgeSize int) Option {
	return func(cfg *frontendConfig) error {
		if maxLength < 1 {
			return errors.New("history max length must be positive")
		}
		if purgeSize < 1 || purgeSize > maxLength {
			return fmt.Errorf("history purge size must be between 1 and %d", maxLength)
		}
		cfg.maxLength = maxLength
		cfg.purgeSize = purgeSize
		return nil
	}
}

// WithShutdownTimeout bounds how long [Frontend.Start] waits for in-flight
// requests after its context is cancelled. Defaults to 10 seconds.
func WithShutdownTimeout(d time.Duration) Option {
	return func(cfg *frontendConfig) error {
		if d <= 0 {
			return errors.New("shutdown timeout must be positive")
		}
		cfg.shutdownTimeout = d
		return nil
	}
}

// WithLogger sets a custom [slog.Logger] for the Frontend instance.
//
// This allows SDK consumers to control where logs are written and in what
// format. If not specified, [slog.Default] is used.
//
// Returns an error if the logger is nil.
func WithLogger(logger *slog.Logger) Option {
	return func(cfg *frontendConfig) error {
		if logger == nil {
			return errors.New("logger cannot be nil")
		}
		cfg.logger = logger
		return nil
	}
}

// WithHost sets the value handed to every [Handler] as [Request.Host].
func WithHost(host any) Option {
	return func(cfg *frontendConfig) error {
		cfg.host = host
		return nil
	}
}

// WithSink adds a [Sink] that receives every record published after [New]
// returns. Sinks are closed when [Frontend.Start] returns.
func WithSink(s Sink) Option {
	return func(cfg *frontendConfig) error {
		if s == nil {
			return errors.New("sink cannot be nil")
		}
		cfg.sinks = append(cfg.sinks, s)
		return nil
	}
}

// WithHistoryFile persists the history buffer to path. [New] restores it
// and [Frontend.Start] writes it back on shutdown.
func WithHistoryFile(path string) Option {
	return func(cfg *frontendConfig) error {
		cfg.historyFile = path
		return nil
	}
}

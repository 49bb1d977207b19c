package tailgate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/jpalmerr/tailgate/internal/auth"
	"github.com/jpalmerr/tailgate/internal/broadcast"
	"github.com/jpalmerr/tailgate/internal/history"
	"github.com/jpalmerr/tailgate/internal/server"
	"github.com/jpalmerr/tailgate/internal/static"
)

const (
	defaultName     = "WebUI"
	defaultPort     = 8832
	defaultWebRoot  = "./web"
	defaultUser     = "admin:tailgate"
	defaultUserPriv = "admin"
)

// ErrSubscriptionClosed is returned by [Subscription.Next] after
// [Frontend.Unsubscribe].
var ErrSubscriptionClosed = broadcast.ErrQueueClosed

// Frontend serves a web UI and the live log of its host application.
//
// Frontend is created using [New] with functional options and started with
// [Frontend.Start]. Records can be published at any time after New returns;
// they are buffered for replay and fanned out to every connected log stream.
//
// The typical lifecycle is:
//
//	f, err := tailgate.New(tailgate.WithCredential("admin", "secret", "admin"))
//	if err != nil {
//	    slog.Error("failed to create frontend", "error", err)
//	    os.Exit(1)
//	}
//
//	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
//	defer cancel()
//
//	f.Start(ctx) // blocks until context cancelled
type Frontend struct {
	name            string
	addr            string
	realm           string
	credentials     auth.CredentialTable
	defaultCreds    bool
	handlers        map[string]Handler
	webRoot         string
	defaultDocument string
	streamPaths     []string
	shutdownTimeout time.Duration
	logger          *slog.Logger
	host            any
	historyFile     string

	broadcaster *broadcast.Broadcaster
	sinks       []Sink
	restoredSeq uint64

	started atomic.Bool
	mu      sync.Mutex
	bound   net.Addr
}

// New creates a new [Frontend] with the given options.
//
// Defaults:
//   - Listen address: ":8832"
//   - Credentials: admin:tailgate with privilege "admin", only when none are configured
//   - History: 1000 records, evicted 100 at a time
//   - Web root: ./web, default document /static/init/init.htm
//   - Stream path: /api/log/stream
//
// When [WithHistoryFile] is set, the saved history is restored here so it
// is available to the first stream client.
func New(opts ...Option) (*Frontend, error) {
	cfg := &frontendConfig{
		name:            defaultName,
		addr:            fmt.Sprintf(":%d", defaultPort),
		realm:           server.DefaultRealm,
		webRoot:         defaultWebRoot,
		defaultDocument: server.DefaultDocument,
		maxLength:       broadcast.DefaultMaxLength,
		purgeSize:       broadcast.DefaultPurgeSize,
		shutdownTimeout: server.DefaultShutdownTimeout,
	}

	for _, opt := range opts {
		if err := opt(cfg); err != nil {
			return nil, err
		}
	}

	defaultCreds := false
	if len(cfg.credentials) == 0 {
		cfg.credentials = map[string]string{defaultUser: defaultUserPriv}
		defaultCreds = true
	}

	if len(cfg.streamPaths) == 0 {
		cfg.streamPaths = []string{server.DefaultStreamPath}
	}

	// default to slog.Default() if no logger provided
	logger := cfg.logger
	if logger == nil {
		logger = slog.Default()
	}

	b, err := broadcast.New(cfg.maxLength, cfg.purgeSize)
	if err != nil {
		return nil, err
	}

	if cfg.historyFile != "" {
		recs, err := history.Load(cfg.historyFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load history: %w", err)
		}
		if err := b.Restore(recs); err != nil {
			return nil, err
		}
		if len(recs) > 0 {
			logger.Info("history restored", "records", b.Stats().Buffered, "file", cfg.historyFile)
		}
	}

	f := &Frontend{
		name:            cfg.name,
		addr:            cfg.addr,
		realm:           cfg.realm,
		credentials:     auth.NewCredentialTable(cfg.credentials),
		defaultCreds:    defaultCreds,
		handlers:        cfg.handlers,
		webRoot:         cfg.webRoot,
		defaultDocument: cfg.defaultDocument,
		streamPaths:     cfg.streamPaths,
		shutdownTimeout: cfg.shutdownTimeout,
		logger:          logger,
		host:            cfg.host,
		historyFile:     cfg.historyFile,
		broadcaster:     b,
		sinks:           cfg.sinks,
		restoredSeq:     b.Stats().LastSeq,
	}

	return f, nil
}

// Start binds the listener and serves requests until ctx is cancelled.
//
// Start is a blocking call. During execution:
//
//   - GET and HEAD serve static files from the web root and the log stream
//   - POST dispatches to the registered handlers
//   - every request is logged into the frontend's own history
//   - each sink receives every published record
//
// On cancellation the listener closes, open streams end, in-flight requests
// get up to the shutdown timeout, sinks drain, and the history is written
// to the history file if one is configured.
//
// Returns nil on graceful shutdown. Returns an error if the web root is
// unusable, the listener cannot be bound, or Start was already called, and
// wraps [ErrSinkDrainTimeout] if a sink was left with undelivered records.
func (f *Frontend) Start(ctx context.Context) error {
	if !f.started.CompareAndSwap(false, true) {
		return errors.New("frontend already started")
	}

	// check if context already cancelled
	if ctx.Err() != nil {
		f.closeSinks()
		return nil
	}

	// sinks get what was published since New and is still buffered, but
	// not restored history
	runners := make([]sinkRunner, len(f.sinks))
	for i, s := range f.sinks {
		runners[i] = sinkRunner{sink: s, queue: broadcast.NewQueue()}
		f.broadcaster.SubscribeAfter(runners[i].queue, f.restoredSeq)
	}
	unsubscribe := func() {
		for _, sr := range runners {
			f.broadcaster.Unsubscribe(sr.queue)
			sr.queue.Close()
		}
	}

	var resolver *static.Resolver
	if f.webRoot != "" {
		r, err := static.NewResolver(f.webRoot)
		if err != nil {
			unsubscribe()
			f.closeSinks()
			return err
		}
		resolver = r
	}

	router, err := server.NewRouter(server.Config{
		Credentials:     f.credentials,
		Broadcaster:     f.broadcaster,
		Resolver:        resolver,
		Handlers:        f.serverHandlers(),
		DefaultDocument: f.defaultDocument,
		StreamPaths:     f.streamPaths,
		Realm:           f.realm,
		Name:            f.name,
		Logger:          f.logger,
		AccessLog:       func(rec broadcast.Record) { f.PublishRecord(rec) },
	})
	if err != nil {
		unsubscribe()
		f.closeSinks()
		return err
	}

	httpServer := server.NewServer(router, f.addr, f.shutdownTimeout, f.logger)
	if err := httpServer.Start(ctx); err != nil {
		unsubscribe()
		f.closeSinks()
		return fmt.Errorf("failed to start HTTP server: %w", err)
	}

	f.mu.Lock()
	f.bound = httpServer.Addr()
	f.mu.Unlock()

	if f.defaultCreds {
		f.logger.Warn("no credentials configured, accepting the default admin credential")
	}
	f.logger.Info("tailgate started",
		"addr", f.bound.String(),
		"web_root", f.webRoot,
		"handlers", len(f.handlers),
		"sinks", len(f.sinks),
	)

	// sinks keep delivering until the server has fully stopped, so the
	// access lines of the last requests reach them
	sinkCtx, stopSinks := context.WithCancel(context.Background())
	defer stopSinks()

	var g errgroup.Group
	g.Go(func() error {
		defer stopSinks()
		return httpServer.Wait()
	})
	for _, sr := range runners {
		sr := sr
		g.Go(func() error {
			return sr.run(sinkCtx, f.shutdownTimeout, f.broadcaster, f.logger)
		})
	}

	serveErr := g.Wait()
	f.closeSinks()

	if f.historyFile != "" {
		if err := history.Save(f.historyFile, f.broadcaster.History()); err != nil {
			f.logger.Error("failed to save history", "file", f.historyFile, "error", err)
			serveErr = errors.Join(serveErr, fmt.Errorf("failed to save history: %w", err))
		}
	}

	f.logger.Info("tailgate stopped")
	return serveErr
}

// Publish adds a record stamped ts to the log and returns its sequence
// number. It never blocks on stream clients.
func (f *Frontend) Publish(ts time.Time, level int, segments ...Segment) uint64 {
	return f.broadcaster.Publish(NewRecord(ts, level, segments...))
}

// PublishRecord adds rec to the log and returns its sequence number.
func (f *Frontend) PublishRecord(rec LogRecord) uint64 {
	return f.broadcaster.Publish(rec)
}

// Subscription is an in-process log stream.
type Subscription struct {
	queue *broadcast.Queue
}

// Next blocks until the next entry is available, ctx ends, or the
// subscription is closed.
func (s *Subscription) Next(ctx context.Context) (Entry, error) {
	return s.queue.Pop(ctx)
}

// Subscribe returns a [Subscription] that first yields the buffered history
// and then every later record.
func (f *Frontend) Subscribe() *Subscription {
	return f.SubscribeAfter(0)
}

// SubscribeAfter is like [Frontend.Subscribe] but skips buffered records
// with a sequence number up to and including after.
func (f *Frontend) SubscribeAfter(after uint64) *Subscription {
	s := &Subscription{queue: broadcast.NewQueue()}
	f.broadcaster.SubscribeAfter(s.queue, after)
	return s
}

// Unsubscribe stops delivery to s. Entries already queued can still be read;
// after that Next returns [ErrSubscriptionClosed]. Safe to call more than once.
func (f *Frontend) Unsubscribe(s *Subscription) {
	f.broadcaster.Unsubscribe(s.queue)
	s.queue.Close()
}

// History returns a copy of the buffered records, oldest first.
func (f *Frontend) History() []LogRecord {
	return f.broadcaster.History()
}

// Stats returns the current buffer and subscriber counters.
func (f *Frontend) Stats() Stats {
	return f.broadcaster.Stats()
}

// Addr returns the bound listen address, or nil before [Frontend.Start]
// has bound it.
func (f *Frontend) Addr() net.Addr {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.bound
}

// Name returns the configured frontend name.
func (f *Frontend) Name() string {
	return f.name
}

// Host returns the value set with [WithHost].
func (f *Frontend) Host() any {
	return f.host
}

func (f *Frontend) closeSinks() {
	for _, s := range f.sinks {
		if err := s.Close(); err != nil {
			f.logger.Warn("sink close failed", "error", err)
		}
	}
}

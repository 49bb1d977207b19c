// Package tailgate provides an embeddable web frontend for a host
// application: authenticated static files, pluggable POST handlers, and a
// live, replayable stream of the host's log.
//
// Tailgate is designed as an SDK-first library. The host creates a
// [Frontend] with functional options, publishes log records into it from
// any goroutine, and runs it with a context that controls its lifetime.
//
// # Quick Start
//
//	f, _ := tailgate.New(
//	    tailgate.WithCredential("admin", "secret", "admin"),
//	    tailgate.WithWebRoot("./web"),
//	)
//
//	// Set up graceful shutdown on SIGINT/SIGTERM
//	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
//	defer stop()
//
//	f.Publish(time.Now(), tailgate.LevelInfo, tailgate.Segment{Text: "host ready\n"})
//	f.Start(ctx) // blocks until context is cancelled
//
// # Requests
//
// Every request needs HTTP Basic credentials from the static credential
// table; the matching entry's privilege label is passed to handlers.
//
//   - GET and HEAD serve files below the web root. "/" serves the default
//     document. Paths that escape the root are refused with 403.
//   - GET on a stream path (default /api/log/stream) replays the buffered
//     log and then follows it as Server-Sent Events. The stream accepts a
//     filter expression, a resume cursor, and a live-only flag.
//   - POST is dispatched by exact path to a [Handler].
//   - Other methods get 501.
//
// # Logging
//
// Records are leveled ints (lower is more severe) made of formatted
// [Segment] values. [NewLogHandler] adapts the frontend to [log/slog], so
// the host can send its structured logs to the browser, and [NewTeeHandler]
// keeps them on stderr as well.
//
// # Architecture
//
// Tailgate consists of several internal packages (under internal/):
//
//   - internal/broadcast: bounded history and subscriber fan-out
//   - internal/server: routing, authentication, SSE streams, lifecycle
//   - internal/static: contained static file resolution
//   - internal/auth: Basic credential checking
//   - internal/filter: stream filter expressions
//   - internal/history: history persistence across restarts
//   - internal/mirror: Redis stream sink
//   - internal/tailclient: stream client used by the tail command
//
// The internal packages are not part of the public API and may change
// without notice.
package tailgate

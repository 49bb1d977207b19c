package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/jpalmerr/tailgate/internal/broadcast"
	"github.com/jpalmerr/tailgate/internal/filter"
)

const (
	// sseWriteTimeout is the maximum time allowed for a single SSE write operation.
	// This prevents goroutine leaks when clients are slow or disconnected.
	sseWriteTimeout = 5 * time.Second

	// maxBatch bounds how many queued entries are written before a flush.
	maxBatch = 256
)

// serveStream registers a subscriber and streams buffered and live records
// as Server-Sent Events until the request context ends.
//
// Query parameters:
//   - filter: expression selecting records (see package filter)
//   - after:  only replay records with a greater sequence number
//   - live:   "1" or "true" skips the history replay entirely
//
// A Last-Event-ID header, sent by reconnecting EventSource clients, takes
// the place of after.
func (rt *Router) serveStream(w *responseWriter, r *http.Request, withBody bool) {
	query := r.URL.Query()

	flt, err := filter.Compile(query.Get("filter"))
	if err != nil {
		rt.logger.Debug("rejected stream filter", "filter", query.Get("filter"), "error", err)
		fail(w, http.StatusBadRequest)
		return
	}

	after, err := streamCursor(r)
	if err != nil {
		fail(w, http.StatusBadRequest)
		return
	}
	if live := query.Get("live"); live == "1" || strings.EqualFold(live, "true") {
		after = rt.broadcaster.Stats().LastSeq
	}

	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")

	if !withBody {
		w.WriteHeader(http.StatusOK)
		return
	}

	// ResponseController provides deadline-aware write and flush operations.
	rc := http.NewResponseController(w)

	// track if write deadlines are supported (may not be for some ResponseWriter impls)
	deadlinesSupported := true
	setDeadline := func() {
		if !deadlinesSupported {
			return
		}
		if err := rc.SetWriteDeadline(time.Now().Add(sseWriteTimeout)); err != nil {
			rt.logger.Debug("sse write deadlines not supported", "error", err)
			deadlinesSupported = false
		}
	}

	q := broadcast.NewQueue()
	rt.broadcaster.SubscribeAfter(q, after)
	defer rt.broadcaster.Unsubscribe(q)

	setDeadline()
	w.WriteHeader(http.StatusOK)
	if err := rc.Flush(); err != nil {
		return
	}

	ctx := r.Context()
	for {
		// request context is derived from the server context via BaseContext,
		// so this unblocks on both client disconnect and server shutdown
		e, err := q.Pop(ctx)
		if err != nil {
			return
		}

		setDeadline()
		for n := 0; ; n++ {
			if flt.Match(e.Record) {
				if err := writeEvent(w, e); err != nil {
					return
				}
			}
			if n == maxBatch {
				break
			}
			var ok bool
			if e, ok = q.TryPop(); !ok {
				break
			}
		}

		if err := rc.Flush(); err != nil {
			return
		}
	}
}

// writeEvent writes one entry as an SSE event whose id is the sequence number.
func writeEvent(w http.ResponseWriter, e broadcast.Entry) error {
	data, err := json.Marshal(e.Record)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "id: %d\ndata: %s\n\n", e.Seq, data)
	return err
}

// streamCursor returns the sequence number after which replay starts.
func streamCursor(r *http.Request) (uint64, error) {
	raw := strings.TrimSpace(r.Header.Get("Last-Event-ID"))
	if raw == "" {
		raw = r.URL.Query().Get("after")
	}
	if raw == "" {
		return 0, nil
	}
	return strconv.ParseUint(raw, 10, 64)
}

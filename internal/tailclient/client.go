package tailclient

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/jpalmerr/tailgate/internal/broadcast"
)

// DefaultStreamPath is appended to the base URL when the URL has no path.
const DefaultStreamPath = "/api/log/stream"

// maxEventSize bounds a single data line.
const maxEventSize = 1 << 20 // 1MB

// connection pooling limits; a tail holds one long-lived connection
const (
	defaultMaxIdleConns    = 4
	defaultIdleConnTimeout = 60 * time.Second
)

var (
	// ErrUnauthorized means the server rejected the credentials.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrStreamClosed means the server ended the stream.
	ErrStreamClosed = errors.New("stream closed by server")
)

// StatusError reports an unexpected HTTP status.
type StatusError struct {
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d", e.StatusCode)
}

// Options select which records a stream delivers.
type Options struct {
	// Filter is an expression evaluated by the server.
	Filter string

	// Live skips the replay of buffered records.
	Live bool

	// After resumes after the given sequence number.
	After uint64
}

// Client reads log streams from one server.
type Client struct {
	streamURL  *url.URL
	username   string
	password   string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates a [Client] for rawURL. A URL without a path gets
// [DefaultStreamPath]. username may be empty to send no credentials.
//
// The HTTP client has no overall timeout; streams are bounded by the
// context passed to [Client.Stream].
func NewClient(rawURL, username, password string, logger *slog.Logger) (*Client, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("invalid url %q: scheme must be http or https", rawURL)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("invalid url %q: missing host", rawURL)
	}
	if u.Path == "" || u.Path == "/" {
		u.Path = DefaultStreamPath
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Client{
		streamURL: u,
		username:  username,
		password:  password,
		httpClient: &http.Client{
			Transport: &http.Transport{
				MaxIdleConns:    defaultMaxIdleConns,
				IdleConnTimeout: defaultIdleConnTimeout,
			},
		},
		logger: logger,
	}, nil
}

// Stream opens one stream and calls fn for each entry in order until ctx
// ends, fn returns an error, or the connection fails. The last delivered
// sequence number is returned with the error so callers can resume.
//
// When the server ends the stream, the error is [ErrStreamClosed].
func (c *Client) Stream(ctx context.Context, opts Options, fn func(broadcast.Entry) error) (uint64, error) {
	last := opts.After

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.requestURL(opts), nil)
	if err != nil {
		return last, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "text/event-stream")
	if opts.After > 0 {
		req.Header.Set("Last-Event-ID", strconv.FormatUint(opts.After, 10))
	}
	if c.username != "" {
		req.SetBasicAuth(c.username, c.password)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return last, fmt.Errorf("request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return last, ErrUnauthorized
	case resp.StatusCode != http.StatusOK:
		return last, &StatusError{StatusCode: resp.StatusCode}
	}

	sc := bufio.NewScanner(resp.Body)
	sc.Buffer(make([]byte, 0, 64*1024), maxEventSize)

	var (
		id   uint64
		data strings.Builder
	)
	for sc.Scan() {
		line := sc.Text()

		if line == "" {
			if data.Len() == 0 {
				continue
			}
			var rec broadcast.Record
			if err := json.Unmarshal([]byte(data.String()), &rec); err != nil {
				return last, fmt.Errorf("decode event %d: %w", id, err)
			}
			data.Reset()
			if err := fn(broadcast.Entry{Seq: id, Record: rec}); err != nil {
				return last, err
			}
			// ids restart at 1 when the server restarts
			last = id
			continue
		}

		field, value, _ := strings.Cut(line, ":")
		value = strings.TrimPrefix(value, " ")
		switch field {
		case "id":
			if n, err := strconv.ParseUint(value, 10, 64); err == nil {
				id = n
			}
		case "data":
			if data.Len() > 0 {
				data.WriteByte('\n')
			}
			data.WriteString(value)
		}
	}

	if err := sc.Err(); err != nil {
		if ctx.Err() != nil {
			return last, ctx.Err()
		}
		return last, fmt.Errorf("read stream: %w", err)
	}
	if ctx.Err() != nil {
		return last, ctx.Err()
	}
	return last, ErrStreamClosed
}

// Follow calls [Client.Stream] repeatedly, resuming after the last delivered
// record, until ctx ends or a permanent error occurs. 4xx responses other than
// 408 and 429 are permanent, as are errors returned by fn. retry is the delay
// between attempts; it doubles after each consecutive failure up to one minute.
func (c *Client) Follow(ctx context.Context, opts Options, retry time.Duration, fn func(broadcast.Entry) error) error {
	if retry <= 0 {
		retry = time.Second
	}
	const maxRetry = time.Minute

	var fnErr error
	wrapped := func(e broadcast.Entry) error {
		if err := fn(e); err != nil {
			fnErr = err
			return err
		}
		return nil
	}

	delay := retry
	for {
		last, err := c.Stream(ctx, opts, wrapped)
		if fnErr != nil {
			return fnErr
		}
		if ctx.Err() != nil {
			return nil
		}
		if errors.Is(err, ErrUnauthorized) {
			return err
		}
		var se *StatusError
		if errors.As(err, &se) && se.StatusCode >= 400 && se.StatusCode < 500 &&
			se.StatusCode != http.StatusRequestTimeout && se.StatusCode != http.StatusTooManyRequests {
			return err
		}

		// resume after the last shown record; a live-only stream that has
		// shown nothing stays live-only
		if last != opts.After {
			opts.After = last
			opts.Live = false
			delay = retry
		}

		c.logger.Debug("log stream interrupted, reconnecting", "error", err, "after", opts.After, "delay", delay.String())

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(delay):
		}
		delay = min(delay*2, maxRetry)
	}
}

func (c *Client) requestURL(opts Options) string {
	u := *c.streamURL
	q := u.Query()
	if opts.Filter != "" {
		q.Set("filter", opts.Filter)
	}
	if opts.Live {
		q.Set("live", "1")
	}
	u.RawQuery = q.Encode()
	return u.String()
}

// Close closes idle connections.
func (c *Client) Close() {
	if transport, ok := c.httpClient.Transport.(*http.Transport); ok {
		transport.CloseIdleConnections()
	}
}

// Package mirror copies published log records into a Redis stream so other
// processes can consume the host's log without holding an HTTP connection.
package mirror

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	redis "github.com/redis/go-redis/v9"

	"github.com/jpalmerr/tailgate/internal/broadcast"
)

const (
	// DefaultStream is the stream key when none is configured.
	DefaultStream = "tailgate:log"

	// DefaultMaxLen approximately bounds the stream length.
	DefaultMaxLen = 10000

	defaultDialTimeout = 5 * time.Second
)

// Config configures a [Mirror].
type Config struct {
	Addr        string
	Addrs       []string
	Username    string
	Password    string
	Stream      string
	MaxLen      int64
	DialTimeout time.Duration
}

// Mirror appends records to a Redis stream with XADD.
type Mirror struct {
	client redis.UniversalClient
	stream string
	maxLen int64
	logger *slog.Logger
}

// New creates a Mirror. The connection is established lazily on the first
// delivery, so New succeeds even while Redis is unreachable.
func New(cfg Config, logger *slog.Logger) (*Mirror, error) {
	addrs := make([]string, 0, len(cfg.Addrs)+1)
	for _, addr := range cfg.Addrs {
		if trimmed := strings.TrimSpace(addr); trimmed != "" {
			addrs = append(addrs, trimmed)
		}
	}
	if addr := strings.TrimSpace(cfg.Addr); addr != "" {
		addrs = append(addrs, addr)
	}
	if len(addrs) == 0 {
		return nil, errors.New("redis addr is required")
	}

	stream := strings.TrimSpace(cfg.Stream)
	if stream == "" {
		stream = DefaultStream
	}
	if cfg.MaxLen < 0 {
		return nil, fmt.Errorf("max_len must not be negative, got %d", cfg.MaxLen)
	}
	if cfg.MaxLen == 0 {
		cfg.MaxLen = DefaultMaxLen
	}
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = defaultDialTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}

	client := redis.NewUniversalClient(&redis.UniversalOptions{
		Addrs:       addrs,
		Username:    strings.TrimSpace(cfg.Username),
		Password:    cfg.Password,
		DialTimeout: cfg.DialTimeout,
		MaxRetries:  1,
	})

	logger.Debug("redis mirror configured", "addrs", addrs, "stream", stream, "max_len", cfg.MaxLen)

	return &Mirror{
		client: client,
		stream: stream,
		maxLen: cfg.MaxLen,
		logger: logger,
	}, nil
}

// Stream returns the stream key records are appended to.
func (m *Mirror) Stream() string {
	return m.stream
}

// Deliver appends rec to the stream.
func (m *Mirror) Deliver(ctx context.Context, rec broadcast.Record) error {
	payload, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal record: %w", err)
	}

	err = m.client.XAdd(ctx, &redis.XAddArgs{
		Stream: m.stream,
		MaxLen: m.maxLen,
		Approx: true,
		Values: map[string]any{
			"timestamp": strconv.FormatFloat(rec.Timestamp, 'f', -1, 64),
			"level":     strconv.Itoa(rec.Level),
			"text":      rec.Text(),
			"record":    string(payload),
		},
	}).Err()
	if err != nil {
		return fmt.Errorf("xadd %s: %w", m.stream, err)
	}
	return nil
}

// Close releases the connection pool.
func (m *Mirror) Close() error {
	return m.client.Close()
}

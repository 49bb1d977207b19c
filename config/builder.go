package config

import (
	"log/slog"
	"strings"

	"github.com/jpalmerr/tailgate"
	"github.com/jpalmerr/tailgate/handlers"
	"github.com/jpalmerr/tailgate/internal/mirror"
)

// BuildOptions converts parsed configuration into SDK options.
//
// logger is used for the frontend itself and for the Redis mirror, if one
// is configured. It should not feed back into the frontend's own log.
func BuildOptions(cfg *Config, logger *slog.Logger) ([]tailgate.Option, error) {
	if logger == nil {
		logger = slog.Default()
	}

	opts := []tailgate.Option{
		tailgate.WithName(cfg.Name),
		tailgate.WithRealm(cfg.Realm),
		tailgate.WithWebRoot(cfg.WebRoot),
		tailgate.WithDefaultDocument(cfg.DefaultDocument),
		tailgate.WithHistoryLimits(cfg.LogBuffer.MaxLength, cfg.LogBuffer.PurgeSize),
		tailgate.WithShutdownTimeout(cfg.ShutdownTimeout.Duration()),
		tailgate.WithLogger(logger),
	}

	if cfg.ListenAddr != "" {
		opts = append(opts, tailgate.WithListenAddr(cfg.ListenAddr))
	} else {
		opts = append(opts, tailgate.WithPort(cfg.Port))
	}

	if len(cfg.Users) > 0 {
		opts = append(opts, tailgate.WithCredentials(cfg.Users))
	}

	for _, p := range cfg.StreamPaths {
		opts = append(opts, tailgate.WithStreamPath(p))
	}

	if !cfg.Handlers.Disabled {
		opts = append(opts,
			tailgate.WithHandler(handlers.PublishPath, handlers.Publish(cfg.Handlers.PublishPrivileges...)),
			tailgate.WithHandler(handlers.StatusPath, handlers.Status()),
		)
	}

	if cfg.HistoryFile != "" {
		opts = append(opts, tailgate.WithHistoryFile(cfg.HistoryFile))
	}

	if cfg.Mirror != nil {
		m, err := mirror.New(mirror.Config{
			Addr:        cfg.Mirror.RedisAddr,
			Addrs:       cfg.Mirror.RedisAddrs,
			Username:    cfg.Mirror.Username,
			Password:    cfg.Mirror.Password,
			Stream:      cfg.Mirror.Stream,
			MaxLen:      cfg.Mirror.MaxLen,
			DialTimeout: cfg.Mirror.DialTimeout.Duration(),
		}, logger)
		if err != nil {
			return nil, err
		}
		opts = append(opts, tailgate.WithSink(m))
	}

	return opts, nil
}

// SlogLevel returns the slog level named by cfg.LogLevel.
func (c *Config) SlogLevel() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

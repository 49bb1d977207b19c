package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
	"github.com/spf13/cobra"

	"github.com/jpalmerr/tailgate"
	"github.com/jpalmerr/tailgate/config"
)

// shutdownGrace is added to the configured shutdown timeout before the CLI
// gives up waiting for the frontend to stop.
const shutdownGrace = 5 * time.Second

// serveCmd starts the tailgate frontend.
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the frontend server",
	Long: `Start the tailgate frontend server.

The server will:
  - Load configuration from the specified YAML file
  - Restore the log history, if a history file is configured
  - Serve static files, the log stream, and the built-in handlers
  - Notify systemd once it is listening (Type=notify units)

The process's own log lines are written to stderr and into the log stream.
The server runs until interrupted (Ctrl+C) or receives SIGTERM.

Example:
  tailgate serve -c config.yaml
  tailgate serve --config /etc/tailgate/config.yaml`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringP("config", "c", "", "path to config file (required)")
	_ = serveCmd.MarkFlagRequired("config")
}

func runServe(cmd *cobra.Command, args []string) error {
	configFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(configFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// the frontend and the mirror log to stderr only; their lines must not
	// feed back into the log they serve
	stderrHandler := slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.SlogLevel()})
	baseLogger := slog.New(stderrHandler)

	opts, err := config.BuildOptions(cfg, baseLogger)
	if err != nil {
		return fmt.Errorf("failed to build options: %w", err)
	}

	f, err := tailgate.New(opts...)
	if err != nil {
		return fmt.Errorf("failed to create frontend: %w", err)
	}

	logger := slog.New(tailgate.NewTeeHandler(
		stderrHandler,
		tailgate.NewLogHandler(f, &slog.HandlerOptions{Level: cfg.SlogLevel()}),
	))

	logger.Info("config loaded",
		"file", configFile,
		"users", len(cfg.Users),
		"web_root", cfg.WebRoot,
		"mirror", cfg.Mirror != nil,
	)

	// set up context with signal handling - cancel on SIGINT/SIGTERM
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// start server - blocks until context cancelled
	errChan := make(chan error, 1)
	go func() {
		errChan <- f.Start(ctx)
	}()

	if stopped, startErr := waitListening(ctx, f, errChan); stopped {
		if startErr != nil {
			return fmt.Errorf("server error: %w", startErr)
		}
		baseLogger.Info("shutdown complete")
		return nil
	}
	if ctx.Err() == nil {
		logger.Info("listening", "addr", f.Addr().String())
		notifySystemd(logger, daemon.SdNotifyReady)
	}

	// wait for server to finish
	select {
	case err := <-errChan:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
		logger.Info("shutdown complete")
		return nil

	case <-ctx.Done():
		notifySystemd(logger, daemon.SdNotifyStopping)

		// signal received, wait for graceful shutdown with timeout
		timeout := cfg.ShutdownTimeout.Duration() + shutdownGrace
		select {
		case err := <-errChan:
			if err != nil {
				return fmt.Errorf("server error: %w", err)
			}
			baseLogger.Info("shutdown complete")
			return nil
		case <-time.After(timeout):
			baseLogger.Warn("shutdown timed out",
				"timeout", timeout.String(),
				"action", "forcing exit",
			)
			return nil
		}
	}
}

// waitListening blocks until f has bound its listener, ctx ends, or Start
// returns. stopped reports the latter, with the result of Start in err.
func waitListening(ctx context.Context, f *tailgate.Frontend, errChan <-chan error) (stopped bool, err error) {
	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()

	for f.Addr() == nil {
		select {
		case err := <-errChan:
			return true, err
		case <-ctx.Done():
			return false, nil
		case <-ticker.C:
		}
	}
	return false, nil
}

// notifySystemd sends state to the service manager when running under a
// Type=notify unit. Outside systemd it is a no-op.
func notifySystemd(logger *slog.Logger, state string) {
	sent, err := daemon.SdNotify(false, state)
	if err != nil {
		logger.Warn("sd_notify failed", "state", state, "error", err)
		return
	}
	if sent {
		logger.Debug("sd_notify sent", "state", state)
	}
}

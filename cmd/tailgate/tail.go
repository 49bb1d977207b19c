package main

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/jpalmerr/tailgate/internal/broadcast"
	"github.com/jpalmerr/tailgate/internal/tailclient"
)

// tailCmd follows a running frontend's log stream in the terminal.
var tailCmd = &cobra.Command{
	Use:   "tail",
	Short: "Follow a frontend's log stream",
	Long: `Follow the log stream of a running tailgate frontend.

Buffered records are printed first, then new records as they are published.
Segments tagged as errors, warnings, or successes are colored when stdout is
a terminal. The connection is re-established after network failures without
repeating records already shown.

The password may also be given in the TAILGATE_PASSWORD environment variable.

Filter expressions see level, timestamp, text, and formats:

  tailgate tail --filter 'level <= 200'
  tailgate tail --filter 'text contains "miner" && level < 800'

Example:
  tailgate tail --url http://localhost:8832 --user admin --password secret
  tailgate tail --live --no-color > today.log`,
	RunE: runTail,
}

func init() {
	rootCmd.AddCommand(tailCmd)

	tailCmd.Flags().String("url", "http://localhost:8832", "frontend URL or stream URL")
	tailCmd.Flags().StringP("user", "u", "admin", "username")
	tailCmd.Flags().StringP("password", "p", "", "password (default $TAILGATE_PASSWORD)")
	tailCmd.Flags().StringP("filter", "f", "", "filter expression evaluated by the server")
	tailCmd.Flags().Bool("live", false, "skip buffered records")
	tailCmd.Flags().Bool("no-color", false, "disable colors")
	tailCmd.Flags().Bool("once", false, "exit when the server closes the stream instead of reconnecting")
}

func runTail(cmd *cobra.Command, args []string) error {
	rawURL, _ := cmd.Flags().GetString("url")
	user, _ := cmd.Flags().GetString("user")
	password, _ := cmd.Flags().GetString("password")
	filterExpr, _ := cmd.Flags().GetString("filter")
	live, _ := cmd.Flags().GetBool("live")
	noColor, _ := cmd.Flags().GetBool("no-color")
	once, _ := cmd.Flags().GetBool("once")

	if password == "" {
		password = os.Getenv("TAILGATE_PASSWORD")
	}

	logger := slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: slog.LevelWarn}))

	client, err := tailclient.NewClient(rawURL, user, password, logger)
	if err != nil {
		return err
	}
	defer client.Close()

	out := cmd.OutOrStdout()
	r := newRenderer(out, !noColor && isTerminal(out))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	opts := tailclient.Options{Filter: filterExpr, Live: live}
	show := func(e broadcast.Entry) error {
		return r.render(e.Record)
	}

	if once {
		_, err = client.Stream(ctx, opts, show)
		if errors.Is(err, tailclient.ErrStreamClosed) || ctx.Err() != nil {
			return nil
		}
	} else {
		err = client.Follow(ctx, opts, time.Second, show)
	}

	var se *tailclient.StatusError
	switch {
	case errors.Is(err, tailclient.ErrUnauthorized):
		return errors.New("authentication failed: check --user and --password")
	case errors.As(err, &se) && se.StatusCode == 400:
		return errors.New("server rejected the request: check --filter")
	}
	return err
}

// isTerminal reports whether w is a terminal.
func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// renderer prints records as text lines, coloring segments by format tag.
type renderer struct {
	w      io.Writer
	colors map[string]*color.Color
}

func newRenderer(w io.Writer, useColor bool) *renderer {
	r := &renderer{
		w: w,
		colors: map[string]*color.Color{
			"r": color.New(color.FgRed, color.Bold),
			"y": color.New(color.FgYellow),
			"g": color.New(color.FgGreen),
		},
	}
	for _, c := range r.colors {
		setColor(c, useColor)
	}
	return r
}

func setColor(c *color.Color, enabled bool) {
	if enabled {
		c.EnableColor()
	} else {
		c.DisableColor()
	}
}

// render writes one record as a timestamped, newline-terminated line.
func (r *renderer) render(rec broadcast.Record) error {
	var b strings.Builder
	b.WriteString(rec.Time().Format("2006-01-02 15:04:05.000"))
	b.WriteByte(' ')
	b.WriteString(levelName(rec.Level))
	b.WriteByte(' ')

	for _, seg := range rec.Segments {
		text := seg.Text
		if c, ok := r.colors[seg.Format]; ok {
			// escapes must not span newlines
			lines := strings.SplitAfter(text, "\n")
			for _, line := range lines {
				body := strings.TrimSuffix(line, "\n")
				if body != "" {
					b.WriteString(c.Sprint(body))
				}
				if len(body) < len(line) {
					b.WriteByte('\n')
				}
			}
			continue
		}
		b.WriteString(text)
	}

	s := b.String()
	if !strings.HasSuffix(s, "\n") {
		s += "\n"
	}
	_, err := io.WriteString(r.w, s)
	return err
}

// levelName returns a fixed-width name for level.
func levelName(level int) string {
	switch {
	case level <= 0:
		return "CRIT "
	case level <= 100:
		return "ERROR"
	case level <= 200:
		return "WARN "
	case level <= 500:
		return "INFO "
	case level <= 800:
		return "HTTP "
	default:
		return "DEBUG"
	}
}

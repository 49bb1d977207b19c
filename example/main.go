package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jpalmerr/tailgate"
)

func main() {
	stderr := slog.New(slog.NewTextHandler(os.Stderr, nil))

	farm := newFarm("rig-a", "rig-b", "rig-c")

	// the frontend serves ../web, so run this from the repository root:
	//   go run ./example
	f, err := tailgate.New(
		tailgate.WithName("Demo Farm"),
		tailgate.WithPort(8080),
		tailgate.WithCredential("admin", "demo", "admin"),
		tailgate.WithCredential("viewer", "demo", "readonly"),
		tailgate.WithHost(farm),
		tailgate.WithHandler("/api/restart", tailgate.HandlerFunc(restart)),
		tailgate.WithLogger(stderr),
	)
	if err != nil {
		stderr.Error("failed to create frontend", "error", err)
		os.Exit(1)
	}

	// application logs go to stderr and to the browser
	logger := slog.New(tailgate.NewTeeHandler(
		stderr.Handler(),
		tailgate.NewLogHandler(f, &slog.HandlerOptions{Level: slog.LevelDebug}),
	))

	fmt.Println()
	fmt.Println("  ╔═══════════════════════════════════════════════════════╗")
	fmt.Println("  ║                                                       ║")
	fmt.Println("  ║   tailgate demo                                       ║")
	fmt.Println("  ║                                                       ║")
	fmt.Println("  ║   Open http://localhost:8080 (admin / demo)           ║")
	fmt.Println("  ║   or run: tailgate tail --url http://localhost:8080   ║")
	fmt.Println("  ║           --password demo                             ║")
	fmt.Println("  ║                                                       ║")
	fmt.Println("  ║   Press Ctrl+C to stop                                ║")
	fmt.Println("  ║                                                       ║")
	fmt.Println("  ╚═══════════════════════════════════════════════════════╝")
	fmt.Println()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go farm.run(ctx, logger)

	if err := f.Start(ctx); err != nil {
		stderr.Error("frontend error", "error", err)
		os.Exit(1)
	}
}

// restart restarts the rig named by the "rig" form field. Only admin
// credentials may use it.
func restart(w http.ResponseWriter, req *tailgate.Request) {
	if req.Privilege != "admin" {
		w.WriteHeader(http.StatusForbidden)
		return
	}
	farm := req.Host.(*farm)
	name := req.HTTP.FormValue("rig")
	if !farm.restart(name) {
		http.Error(w, "unknown rig", http.StatusNotFound)
		return
	}
	req.Frontend.Publish(time.Now(), tailgate.LevelWarning,
		tailgate.Segment{Text: "restart requested for "},
		tailgate.Segment{Text: name, Format: tailgate.FormatWarning},
		tailgate.Segment{Text: "\n"},
	)
	w.WriteHeader(http.StatusNoContent)
}

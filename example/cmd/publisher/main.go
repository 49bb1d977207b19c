// Standalone publisher for testing the CLI server's publish endpoint.
//
// Usage:
//
//	go run ./cmd/tailgate serve -c example/config.yaml
//
// Then in another terminal:
//
//	go run ./example/cmd/publisher -password demo
package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"math/rand"
	"net/http"
	"os"
	"time"
)

type segment struct {
	Data   string `json:"data"`
	Format string `json:"format,omitempty"`
}

type record struct {
	Level     int       `json:"level"`
	Timestamp int64     `json:"timestamp"`
	Message   []segment `json:"message"`
}

var samples = []record{
	{Level: 500, Message: []segment{{Data: "job "}, {Data: "accepted", Format: "g"}}},
	{Level: 200, Message: []segment{{Data: "pool latency "}, {Data: "high", Format: "y"}}},
	{Level: 100, Message: []segment{{Data: "device "}, {Data: "overheated", Format: "r"}}},
	{Level: 900, Message: []segment{{Data: "heartbeat"}}},
}

func main() {
	url := flag.String("url", "http://localhost:8832/api/log/publish", "publish endpoint")
	user := flag.String("user", "admin", "username")
	password := flag.String("password", "", "password")
	interval := flag.Duration("interval", time.Second, "delay between records")
	flag.Parse()

	fmt.Printf("Publishing to %s every %s\n", *url, *interval)
	fmt.Println("Press Ctrl+C to stop")
	fmt.Println()

	client := &http.Client{Timeout: 5 * time.Second}

	for {
		rec := samples[rand.Intn(len(samples))]
		rec.Timestamp = time.Now().UnixMilli()

		body, err := json.Marshal(rec)
		if err != nil {
			slog.Error("failed to encode record", "error", err)
			os.Exit(1)
		}

		req, err := http.NewRequest(http.MethodPost, *url, bytes.NewReader(body))
		if err != nil {
			slog.Error("bad url", "error", err)
			os.Exit(1)
		}
		req.SetBasicAuth(*user, *password)
		req.Header.Set("Content-Type", "application/json")

		resp, err := client.Do(req)
		if err != nil {
			slog.Warn("publish failed", "error", err)
		} else {
			_ = resp.Body.Close()
			if resp.StatusCode != http.StatusNoContent {
				slog.Warn("publish rejected", "status", resp.StatusCode)
			}
		}

		time.Sleep(*interval)
	}
}

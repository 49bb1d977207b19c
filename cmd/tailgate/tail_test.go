package main

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/jpalmerr/tailgate/internal/broadcast"
)

func testRecord(level int, segs ...broadcast.Segment) broadcast.Record {
	ts := time.Date(2024, 3, 9, 14, 5, 7, 250*int(time.Millisecond), time.Local)
	return broadcast.NewRecord(ts, level, segs...)
}

func TestRenderer_Plain(t *testing.T) {
	var buf bytes.Buffer
	r := newRenderer(&buf, false)

	rec := testRecord(200,
		broadcast.Segment{Text: "pool "},
		broadcast.Segment{Text: "rejected share", Format: "y"},
	)
	if err := r.render(rec); err != nil {
		t.Fatalf("render() error = %v", err)
	}

	want := "2024-03-09 14:05:07.250 WARN  pool rejected share\n"
	if got := buf.String(); got != want {
		t.Errorf("render() = %q, want %q", got, want)
	}
}

func TestRenderer_KeepsTrailingNewline(t *testing.T) {
	var buf bytes.Buffer
	r := newRenderer(&buf, false)

	if err := r.render(testRecord(500, broadcast.Segment{Text: "started\n"})); err != nil {
		t.Fatalf("render() error = %v", err)
	}

	if got := buf.String(); strings.Count(got, "\n") != 1 || !strings.HasSuffix(got, "started\n") {
		t.Errorf("render() = %q, want exactly one trailing newline", got)
	}
}

func TestRenderer_Color(t *testing.T) {
	var buf bytes.Buffer
	r := newRenderer(&buf, true)

	rec := testRecord(100,
		broadcast.Segment{Text: "device failed", Format: "r"},
		broadcast.Segment{Text: " ok", Format: "g"},
		broadcast.Segment{Text: " plain"},
	)
	if err := r.render(rec); err != nil {
		t.Fatalf("render() error = %v", err)
	}

	got := buf.String()
	if !strings.Contains(got, "\x1b[31;1mdevice failed\x1b[") {
		t.Errorf("error segment not red: %q", got)
	}
	if !strings.Contains(got, "\x1b[32m ok\x1b[") {
		t.Errorf("success segment not green: %q", got)
	}
	if !strings.HasSuffix(got, " plain\n") {
		t.Errorf("plain segment colored: %q", got)
	}
}

func TestRenderer_ColorDoesNotSpanNewlines(t *testing.T) {
	var buf bytes.Buffer
	r := newRenderer(&buf, true)

	if err := r.render(testRecord(200, broadcast.Segment{Text: "a\nb\n", Format: "y"})); err != nil {
		t.Fatalf("render() error = %v", err)
	}

	for _, line := range strings.Split(strings.TrimSuffix(buf.String(), "\n"), "\n") {
		open := strings.Index(line, "\x1b[33m")
		if open >= 0 && strings.LastIndex(line, "\x1b[") == open {
			t.Errorf("line %q leaves color open", line)
		}
	}
}

func TestLevelName(t *testing.T) {
	tests := []struct {
		level int
		want  string
	}{
		{0, "CRIT "},
		{100, "ERROR"},
		{200, "WARN "},
		{500, "INFO "},
		{600, "HTTP "},
		{800, "HTTP "},
		{900, "DEBUG"},
	}

	for _, tt := range tests {
		if got := levelName(tt.level); got != tt.want {
			t.Errorf("levelName(%d) = %q, want %q", tt.level, got, tt.want)
		}
	}
}

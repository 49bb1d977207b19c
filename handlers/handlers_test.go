package handlers

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/jpalmerr/tailgate"
)

func newFrontend(t *testing.T) *tailgate.Frontend {
	t.Helper()
	f, err := tailgate.New(
		tailgate.WithName("MPBM"),
		tailgate.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	)
	if err != nil {
		t.Fatalf("tailgate.New() error = %v", err)
	}
	return f
}

func serve(f *tailgate.Frontend, h tailgate.Handler, privilege, body string) *httptest.ResponseRecorder {
	r := httptest.NewRequest(http.MethodPost, PublishPath, strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.ServeAction(rec, &tailgate.Request{
		Frontend:  f,
		HTTP:      r,
		Path:      r.URL.Path,
		Privilege: privilege,
	})
	return rec
}

func TestPublish_SingleRecord(t *testing.T) {
	f := newFrontend(t)

	rec := serve(f, Publish(), "admin", `{"level": 200, "message": "fan slow\n", "timestamp": 1700000000000}`)

	if rec.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want 204; body %q", rec.Code, rec.Body.String())
	}
	hist := f.History()
	if len(hist) != 1 {
		t.Fatalf("published %d records, want 1", len(hist))
	}
	if hist[0].Level != 200 || hist[0].Timestamp != 1700000000000 || hist[0].Text() != "fan slow\n" {
		t.Errorf("record = %+v", hist[0])
	}
}

func TestPublish_BatchWithSegments(t *testing.T) {
	f := newFrontend(t)

	body := `[
		{"loglevel": 100, "message": [{"data": "disk ", "format": ""}, {"data": "failed", "format": "r"}]},
		{"message": [{"data": "no format"}]}
	]`
	rec := serve(f, Publish(), "admin", body)

	if rec.Code != http.StatusNoContent {
		t.Fatalf("status = %d, body %q", rec.Code, rec.Body.String())
	}
	hist := f.History()
	if len(hist) != 2 {
		t.Fatalf("published %d records, want 2", len(hist))
	}
	if hist[0].Level != 100 || hist[0].Segments[1].Format != "r" || hist[0].Text() != "disk failed" {
		t.Errorf("record 0 = %+v", hist[0])
	}
	if hist[1].Level != tailgate.LevelInfo || hist[1].Segments[0].Format != "" {
		t.Errorf("record 1 = %+v", hist[1])
	}
	if hist[1].Timestamp == 0 {
		t.Error("missing timestamp should default to now")
	}
}

func TestPublish_Rejections(t *testing.T) {
	tests := []struct {
		name      string
		privilege string
		body      string
		want      int
	}{
		{"wrong privilege", "read", `{"message": "x"}`, http.StatusForbidden},
		{"invalid json", "admin", `{"message": `, http.StatusBadRequest},
		{"not an object", "admin", `"hello"`, http.StatusBadRequest},
		{"missing message", "admin", `{"level": 1}`, http.StatusBadRequest},
		{"string level", "admin", `{"level": "high", "message": "x"}`, http.StatusBadRequest},
		{"string timestamp", "admin", `{"timestamp": "now", "message": "x"}`, http.StatusBadRequest},
		{"numeric message", "admin", `{"message": 5}`, http.StatusBadRequest},
		{"segment not object", "admin", `{"message": ["x"]}`, http.StatusBadRequest},
		{"segment without data", "admin", `{"message": [{"format": "r"}]}`, http.StatusBadRequest},
		{"numeric format", "admin", `{"message": [{"data": "x", "format": 1}]}`, http.StatusBadRequest},
		{"one bad record in batch", "admin", `[{"message": "ok"}, {"message": 1}]`, http.StatusBadRequest},
		{"too large", "admin", `{"message": "` + strings.Repeat("a", maxBodySize) + `"}`, http.StatusRequestEntityTooLarge},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFrontend(t)
			rec := serve(f, Publish(), tt.privilege, tt.body)
			if rec.Code != tt.want {
				t.Errorf("status = %d, want %d", rec.Code, tt.want)
			}
			if n := len(f.History()); n != 0 {
				t.Errorf("rejected request published %d records", n)
			}
		})
	}
}

func TestPublish_CustomPrivileges(t *testing.T) {
	f := newFrontend(t)
	h := Publish("writer", "admin")

	if rec := serve(f, h, "writer", `{"message": "x"}`); rec.Code != http.StatusNoContent {
		t.Errorf("writer status = %d, want 204", rec.Code)
	}
	if rec := serve(f, h, "read", `{"message": "x"}`); rec.Code != http.StatusForbidden {
		t.Errorf("read status = %d, want 403", rec.Code)
	}
}

func TestStatus(t *testing.T) {
	f := newFrontend(t)
	serve(f, Publish(), "admin", `[{"message": "a"}, {"message": "b"}]`)

	rec := serve(f, Status(), "read", "")

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q", ct)
	}
	var got statusResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if got.Name != "MPBM" || got.Buffered != 2 || got.Published != 2 || got.LastSeq != 2 || got.Privilege != "read" {
		t.Errorf("status = %+v", got)
	}
}

func TestDefault(t *testing.T) {
	table := Default()
	if len(table) != 2 {
		t.Fatalf("len(Default()) = %d, want 2", len(table))
	}
	for _, path := range []string{PublishPath, StatusPath} {
		if table[path] == nil {
			t.Errorf("Default() missing %s", path)
		}
	}

	if _, err := tailgate.New(tailgate.WithHandlers(Default())); err != nil {
		t.Errorf("New(WithHandlers(Default())) error = %v", err)
	}
}

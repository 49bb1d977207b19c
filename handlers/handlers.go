// Package handlers provides ready-made POST handlers for a tailgate
// frontend: remote log publishing and a status summary.
//
//	f, err := tailgate.New(tailgate.WithHandlers(handlers.Default()))
package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/valyala/fastjson"

	"github.com/jpalmerr/tailgate"
)

const (
	// PublishPath is where [Default] mounts [Publish].
	PublishPath = "/api/log/publish"

	// StatusPath is where [Default] mounts [Status].
	StatusPath = "/api/status"

	// maxBodySize limits a publish request body.
	maxBodySize = 1 << 20 // 1MB

	// defaultPrivilege may publish when [Publish] is given no privileges.
	defaultPrivilege = "admin"
)

// Default returns the built-in handler table.
func Default() map[string]tailgate.Handler {
	return map[string]tailgate.Handler{
		PublishPath: Publish(),
		StatusPath:  Status(),
	}
}

type publishHandler struct {
	allowed map[string]struct{}
	parser  fastjson.ParserPool
}

// Publish returns a handler that adds the records in the request body to
// the frontend's log. Only requests authenticated with one of privileges
// may publish; with no privileges given, only "admin" may.
//
// The body is one record or an array of records:
//
//	{"level": 200, "message": "fan slow\n", "timestamp": 1700000000000}
//	[{"level": 100, "message": [{"data": "disk ", "format": ""}, {"data": "failed", "format": "r"}]}]
//
// level defaults to 500 (loglevel is accepted as well) and timestamp, in
// milliseconds, to the time of the request. Records are published only if
// every record in the body is valid.
//
// Responds 204 on success, 400 for malformed input, 403 for insufficient
// privilege and 413 for bodies over 1MB.
func Publish(privileges ...string) tailgate.Handler {
	if len(privileges) == 0 {
		privileges = []string{defaultPrivilege}
	}
	h := &publishHandler{allowed: make(map[string]struct{}, len(privileges))}
	for _, p := range privileges {
		h.allowed[p] = struct{}{}
	}
	return h
}

func (h *publishHandler) ServeAction(w http.ResponseWriter, req *tailgate.Request) {
	if _, ok := h.allowed[req.Privilege]; !ok {
		http.Error(w, "insufficient privilege", http.StatusForbidden)
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, req.HTTP.Body, maxBodySize))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			http.Error(w, "request body too large", http.StatusRequestEntityTooLarge)
			return
		}
		http.Error(w, "failed to read body", http.StatusBadRequest)
		return
	}

	p := h.parser.Get()
	defer h.parser.Put(p)

	v, err := p.ParseBytes(body)
	if err != nil {
		http.Error(w, fmt.Sprintf("invalid JSON: %v", err), http.StatusBadRequest)
		return
	}

	now := time.Now()
	var recs []tailgate.LogRecord

	// handle batch (array) or single (object)
	if v.Type() == fastjson.TypeArray {
		arr, _ := v.Array()
		recs = make([]tailgate.LogRecord, 0, len(arr))
		for i, val := range arr {
			rec, err := parseRecord(val, now)
			if err != nil {
				http.Error(w, fmt.Sprintf("record %d: %v", i, err), http.StatusBadRequest)
				return
			}
			recs = append(recs, rec)
		}
	} else {
		rec, err := parseRecord(v, now)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		recs = append(recs, rec)
	}

	for _, rec := range recs {
		req.Frontend.PublishRecord(rec)
	}
	w.WriteHeader(http.StatusNoContent)
}

// parseRecord converts one JSON object into a record.
func parseRecord(v *fastjson.Value, now time.Time) (tailgate.LogRecord, error) {
	if v.Type() != fastjson.TypeObject {
		return tailgate.LogRecord{}, errors.New("record must be an object")
	}

	level := tailgate.LevelInfo
	lv := v.Get("level")
	if lv == nil {
		lv = v.Get("loglevel")
	}
	if lv != nil {
		n, err := lv.Int()
		if err != nil {
			return tailgate.LogRecord{}, fmt.Errorf("level: %w", err)
		}
		level = n
	}

	rec := tailgate.NewRecord(now, level)
	if ts := v.Get("timestamp"); ts != nil {
		f, err := ts.Float64()
		if err != nil {
			return tailgate.LogRecord{}, fmt.Errorf("timestamp: %w", err)
		}
		rec.Timestamp = f
	}

	msg := v.Get("message")
	if msg == nil {
		return tailgate.LogRecord{}, errors.New("message is required")
	}
	switch msg.Type() {
	case fastjson.TypeString:
		rec.Segments = []tailgate.Segment{{Text: string(msg.GetStringBytes())}}
	case fastjson.TypeArray:
		segs, _ := msg.Array()
		rec.Segments = make([]tailgate.Segment, 0, len(segs))
		for i, s := range segs {
			if s.Type() != fastjson.TypeObject {
				return tailgate.LogRecord{}, fmt.Errorf("message segment %d must be an object", i)
			}
			data := s.Get("data")
			if data == nil || data.Type() != fastjson.TypeString {
				return tailgate.LogRecord{}, fmt.Errorf("message segment %d: data must be a string", i)
			}
			format := s.Get("format")
			if format != nil && format.Type() != fastjson.TypeString {
				return tailgate.LogRecord{}, fmt.Errorf("message segment %d: format must be a string", i)
			}
			rec.Segments = append(rec.Segments, tailgate.Segment{
				Text:   string(data.GetStringBytes()),
				Format: string(s.GetStringBytes("format")),
			})
		}
	default:
		return tailgate.LogRecord{}, errors.New("message must be a string or an array of segments")
	}

	return rec, nil
}

// statusResponse is the body written by [Status].
type statusResponse struct {
	Name        string `json:"name"`
	Buffered    int    `json:"buffered"`
	Subscribers int    `json:"subscribers"`
	Published   uint64 `json:"published"`
	Evicted     uint64 `json:"evicted"`
	LastSeq     uint64 `json:"last_seq"`
	Privilege   string `json:"privilege"`
}

// Status returns a handler that reports the frontend's log counters as JSON.
// Any authenticated request may read it.
func Status() tailgate.Handler {
	return tailgate.HandlerFunc(func(w http.ResponseWriter, req *tailgate.Request) {
		st := req.Frontend.Stats()
		resp := statusResponse{
			Name:        req.Frontend.Name(),
			Buffered:    st.Buffered,
			Subscribers: st.Subscribers,
			Published:   st.Published,
			Evicted:     st.Evicted,
			LastSeq:     st.LastSeq,
			Privilege:   req.Privilege,
		}

		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Cache-Control", "no-cache")
		_ = json.NewEncoder(w).Encode(resp)
	})
}

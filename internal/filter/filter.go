// Package filter compiles per-subscriber record filters.
//
// Filters are boolean expressions in the expr language evaluated against a
// small environment describing one record:
//
//	level      int       severity, lower is more severe
//	timestamp  float64   milliseconds since the Unix epoch
//	text       string    concatenated segment text
//	formats    []string  distinct non-empty format tags
//
// Examples:
//
//	level <= 600
//	text contains "error" || "y" in formats
//	timestamp > 1700000000000 && level < 800
package filter

import (
	"fmt"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"

	"github.com/jpalmerr/tailgate/internal/broadcast"
)

// maxSourceLen bounds the expression length accepted from a request.
const maxSourceLen = 1024

// env is the evaluation environment for one record.
type env struct {
	Level     int      `expr:"level"`
	Timestamp float64  `expr:"timestamp"`
	Text      string   `expr:"text"`
	Formats   []string `expr:"formats"`
}

// Filter is a compiled record predicate. A nil *Filter matches everything.
//
// A Filter is immutable and safe for concurrent use.
type Filter struct {
	source  string
	program *vm.Program
}

// Compile parses src. An empty src yields a nil filter that matches every
// record.
func Compile(src string) (*Filter, error) {
	if src == "" {
		return nil, nil
	}
	if len(src) > maxSourceLen {
		return nil, fmt.Errorf("filter longer than %d bytes", maxSourceLen)
	}

	program, err := expr.Compile(src, expr.Env(env{}), expr.AsBool())
	if err != nil {
		return nil, fmt.Errorf("compile filter: %w", err)
	}
	return &Filter{source: src, program: program}, nil
}

// Match reports whether rec satisfies the filter. Evaluation errors count
// as no match.
func (f *Filter) Match(rec broadcast.Record) bool {
	if f == nil {
		return true
	}

	out, err := expr.Run(f.program, env{
		Level:     rec.Level,
		Timestamp: rec.Timestamp,
		Text:      rec.Text(),
		Formats:   rec.Formats(),
	})
	if err != nil {
		return false
	}
	ok, _ := out.(bool)
	return ok
}

// String returns the filter source.
func (f *Filter) String() string {
	if f == nil {
		return ""
	}
	return f.source
}

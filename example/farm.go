package main

import (
	"context"
	"log/slog"
	"math/rand"
	"sync"
	"time"
)

// rig is a simulated mining device whose hashrate drifts and which fails
// now and then.
type rig struct {
	name     string
	hashrate float64
	failed   bool
}

// farm simulates a handful of rigs and logs what happens to them.
type farm struct {
	mu   sync.Mutex
	rigs map[string]*rig
}

func newFarm(names ...string) *farm {
	f := &farm{rigs: make(map[string]*rig, len(names))}
	for _, n := range names {
		f.rigs[n] = &rig{name: n, hashrate: 400 + rand.Float64()*50}
	}
	return f
}

func (f *farm) restart(name string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.rigs[name]
	if ok {
		r.failed = false
	}
	return ok
}

// run ticks every two seconds until ctx ends.
func (f *farm) run(ctx context.Context, logger *slog.Logger) {
	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			f.tick(logger)
		}
	}
}

func (f *farm) tick(logger *slog.Logger) {
	f.mu.Lock()
	defer f.mu.Unlock()

	for _, r := range f.rigs {
		if r.failed {
			continue
		}
		r.hashrate += rand.NormFloat64() * 5

		switch n := rand.Intn(100); {
		case n < 3:
			r.failed = true
			logger.Error("rig stopped responding", "rig", r.name)
		case n < 10:
			logger.Warn("share rejected", "rig", r.name)
		case n < 40:
			logger.Info("share accepted", "rig", r.name, "mhs", int(r.hashrate))
		default:
			logger.Debug("poll", "rig", r.name, "mhs", r.hashrate)
		}
	}
}

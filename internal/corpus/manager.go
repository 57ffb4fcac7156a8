package corpus

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/agentic-research/medgraph/internal/graph"
	"github.com/agentic-research/medgraph/internal/logging"
	"github.com/agentic-research/medgraph/internal/metrics"
)

// Source supplies complete batches of raw records.
type Source interface {
	Load(ctx context.Context) (*Batch, error)
}

// SourceFunc adapts a function to Source.
type SourceFunc func(ctx context.Context) (*Batch, error)

func (f SourceFunc) Load(ctx context.Context) (*Batch, error) {
	return f(ctx)
}

// Manager reloads generations from a Source and publishes them through a
// HotSwap. A failed reload leaves the previous generation live.
type Manager struct {
	source Source
	swap   *HotSwap
	log    *logging.Logger

	mu     sync.Mutex // one reload at a time
	onSwap []func(*Generation)
}

func NewManager(source Source, log *logging.Logger) *Manager {
	if log == nil {
		log = logging.Nop()
	}
	return &Manager{source: source, swap: NewHotSwap(), log: log}
}

// OnSwap registers fn to run after each successful publish, in the
// reloading goroutine. Register hooks before the first Reload.
func (m *Manager) OnSwap(fn func(*Generation)) {
	m.onSwap = append(m.onSwap, fn)
}

func (m *Manager) HotSwap() *HotSwap {
	return m.swap
}

func (m *Manager) Current() (*Generation, error) {
	return m.swap.Current()
}

// Reload loads a batch, builds a generation and publishes it. On any error
// nothing is published.
func (m *Manager) Reload(ctx context.Context) (*Generation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	start := time.Now()
	batch, err := m.source.Load(ctx)
	if err != nil {
		metrics.GenerationLoads.WithLabelValues("failed").Inc()
		m.log.Error("corpus load failed", "error", err)
		return nil, fmt.Errorf("load corpus: %w", err)
	}
	if err := ctx.Err(); err != nil {
		metrics.GenerationLoads.WithLabelValues("failed").Inc()
		return nil, err
	}

	gen, err := Build(batch)
	if err != nil {
		metrics.GenerationLoads.WithLabelValues("rejected").Inc()
		var dup *graph.DuplicateIDError
		if errors.As(err, &dup) {
			m.log.Error("corpus rejected: duplicate ids", "ids", dup.IDs)
		} else {
			m.log.Error("corpus rejected", "error", err)
		}
		return nil, err
	}

	prev := m.swap.Swap(gen)
	elapsed := time.Since(start)
	m.observe(gen, elapsed)

	kv := []any{
		"generation", gen.ID,
		"seq", gen.Seq,
		"accepted", gen.Validation.Accepted,
		"quarantined", len(gen.Validation.Quarantined),
		"dangling", gen.Resolution.DanglingCount,
		"cycles", gen.Resolution.CycleCount,
		"asymmetries", gen.Resolution.AsymmetryCount,
		"duration", elapsed,
	}
	if prev != nil {
		kv = append(kv, "replaced", prev.ID)
	}
	m.log.Info("corpus generation published", kv...)

	for _, fn := range m.onSwap {
		fn(gen)
	}
	return gen, nil
}

func (m *Manager) observe(gen *Generation, elapsed time.Duration) {
	metrics.GenerationLoads.WithLabelValues("promoted").Inc()
	metrics.LoadDuration.Observe(elapsed.Seconds())
	metrics.GenerationSeq.Set(float64(gen.Seq))
	metrics.Records.WithLabelValues("accepted").Set(float64(gen.Validation.Accepted))
	metrics.Records.WithLabelValues("quarantined").Set(float64(len(gen.Validation.Quarantined)))
	metrics.Resolution.WithLabelValues("dangling").Set(float64(gen.Resolution.DanglingCount))
	metrics.Resolution.WithLabelValues("cycle").Set(float64(gen.Resolution.CycleCount))
	metrics.Resolution.WithLabelValues("asymmetry").Set(float64(gen.Resolution.AsymmetryCount))
	metrics.Resolution.WithLabelValues("orphan").Set(float64(len(gen.Resolution.Orphans)))
}

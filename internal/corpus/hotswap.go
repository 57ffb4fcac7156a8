package corpus

import (
	"sync/atomic"

	"github.com/agentic-research/medgraph/internal/query"
)

// HotSwap holds the live generation. Readers load the pointer once per
// request and keep using that generation even if a newer one is published
// while they run.
type HotSwap struct {
	current atomic.Pointer[Generation]
	seq     atomic.Uint64
}

func NewHotSwap() *HotSwap {
	return &HotSwap{}
}

// Swap publishes gen, stamping it with the next sequence number, and returns
// the generation it replaced (nil on first publish). gen must not be
// published anywhere else.
func (h *HotSwap) Swap(gen *Generation) *Generation {
	gen.Seq = h.seq.Add(1)
	return h.current.Swap(gen)
}

// Current returns the live generation or ErrNoGeneration.
func (h *HotSwap) Current() (*Generation, error) {
	gen := h.current.Load()
	if gen == nil {
		return nil, ErrNoGeneration
	}
	return gen, nil
}

// Query is a shortcut for the live generation's engine.
func (h *HotSwap) Query() (*query.Engine, error) {
	gen, err := h.Current()
	if err != nil {
		return nil, err
	}
	return gen.Query, nil
}

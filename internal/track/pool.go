package track

import (
	"sync"

	"github.com/san-kum/beamsim/internal/beam"
)

// statePool recycles the per-element state snapshots a run discards as it
// advances. Reuse keeps the hot loop from allocating one charge-state
// slice per element.
type statePool struct {
	pool sync.Pool
}

func (p *statePool) get() *beam.State {
	if v := p.pool.Get(); v != nil {
		return v.(*beam.State)
	}
	return &beam.State{}
}

func (p *statePool) put(s *beam.State) {
	if s == nil {
		return
	}
	s.States = s.States[:0]
	p.pool.Put(s)
}

package track

import (
	"runtime"
	"sync"

	"github.com/san-kum/beamsim/internal/beam"
)

// parallelStates is the charge-state count above which per-state work fans
// out to goroutines. Small sets run serially.
const parallelStates = 4

// eachState applies fn to every charge state, in parallel when the set is
// large enough. Each call touches only its own slot; the first error wins
// in slot order.
func eachState(s *beam.State, fn func(cs *beam.ChargeState) error) error {
	if len(s.States) < parallelStates {
		for i := range s.States {
			if err := fn(&s.States[i]); err != nil {
				return err
			}
		}
		return nil
	}

	errs := make([]error, len(s.States))
	sem := make(chan struct{}, runtime.GOMAXPROCS(0))
	var wg sync.WaitGroup
	for i := range s.States {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()
			errs[i] = fn(&s.States[i])
		}(i)
	}
	wg.Wait()

	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}

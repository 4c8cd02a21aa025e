package stats

import (
	"context"
	"sync"
)

type Counters struct {
	OK          int64
	RateLimited int64
	Errors      int64
	Attempts    int64
}

func (c *Counters) add(ev Event) {
	c.Attempts += int64(ev.Attempts)
	switch ev.Outcome {
	case OutcomeOK:
		c.OK++
	case OutcomeRateLimited:
		c.RateLimited++
	default:
		c.Errors++
	}
}

// MemoryRecorder keeps counters in process. Used in tests and when no Redis is configured.
type MemoryRecorder struct {
	mu     sync.Mutex
	total  Counters
	byMode map[string]Counters
	events []Event
	keep   int
}

func NewMemoryRecorder(keep int) *MemoryRecorder {
	return &MemoryRecorder{
		byMode: make(map[string]Counters),
		keep:   keep,
	}
}

func (r *MemoryRecorder) Record(_ context.Context, ev Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.total.add(ev)
	c := r.byMode[ev.Mode]
	c.add(ev)
	r.byMode[ev.Mode] = c

	if r.keep > 0 {
		r.events = append(r.events, ev)
		if len(r.events) > r.keep {
			r.events = r.events[len(r.events)-r.keep:]
		}
	}
	return nil
}

func (r *MemoryRecorder) Total() Counters {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.total
}

func (r *MemoryRecorder) ByMode() map[string]Counters {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]Counters, len(r.byMode))
	for k, v := range r.byMode {
		out[k] = v
	}
	return out
}

// Events returns the most recent events, oldest first.
func (r *MemoryRecorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}

package manager

import "sync"

// MemoryPublisher is a simple in-memory publisher useful for tests and
// for the /v1/events endpoint. It keeps at most max events, oldest
// dropped first.
type MemoryPublisher struct {
	mu     sync.Mutex
	max    int
	events []Event
}

// NewMemoryPublisher returns a publisher retaining up to max events;
// max <= 0 means 256.
func NewMemoryPublisher(max int) *MemoryPublisher {
	if max <= 0 {
		max = 256
	}
	return &MemoryPublisher{max: max}
}

func (p *MemoryPublisher) Publish(e Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	if len(p.events) > p.max {
		p.events = p.events[len(p.events)-p.max:]
	}
}

// Events returns a copy of the captured events in publish order.
func (p *MemoryPublisher) Events() []Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]Event, len(p.events))
	copy(out, p.events)
	return out
}
